package vectorworker

import (
	"fmt"
	"math"
	"sync"

	"github.com/coder/hnsw"

	coreerrors "github.com/Aman-CERP/ragcore/internal/errors"
	"github.com/Aman-CERP/ragcore/internal/vectorindex"
)

// state is the worker's lifecycle stage.
type state int

const (
	stateUninit state = iota
	stateReady
	stateTerminal
)

// engine holds the in-memory HNSW graph and the id-to-key indirection
// that lets a vector be replaced without corrupting the graph: deleting
// the last node from a coder/hnsw graph is unsafe, so a replacement
// orphans the old graph node instead of removing it. Orphans are purged
// by loadIndex, which rebuilds the graph from scratch.
type engine struct {
	mu sync.Mutex

	st     state
	dims   int
	maxMax int
	ef     int

	graph   *hnsw.Graph[uint64]
	idMap   map[uint64]uint64   // external id -> internal graph key
	keyMap  map[uint64]uint64   // internal graph key -> external id
	vectors map[uint64][]float32 // internal graph key -> stored (normalized) vector, for saveIndex
	nextKey uint64
}

func newEngine() *engine {
	return &engine{st: stateUninit}
}

func (e *engine) requireState(want state) error {
	if e.st != want {
		return coreerrors.InvalidArguments(fmt.Sprintf("worker not in required state: have %d, want %d", e.st, want), nil)
	}
	return nil
}

func (e *engine) init(p InitParams) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.st != stateUninit {
		return coreerrors.InvalidArguments("worker already initialized", nil)
	}
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return coreerrors.InvalidArguments(err.Error(), err)
	}

	e.buildGraph(p.Dims, p.M, p.EfConstruction, p.Seed)
	e.maxMax = p.MaxElements
	e.st = stateReady
	return nil
}

func (e *engine) buildGraph(dims, m, efConstruction, seed int) {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = m
	graph.EfSearch = efConstruction
	graph.Ml = 0.25

	e.graph = graph
	e.dims = dims
	e.ef = efConstruction
	e.idMap = make(map[uint64]uint64)
	e.keyMap = make(map[uint64]uint64)
	e.vectors = make(map[uint64][]float32)
	e.nextKey = 0
}

// loadIndex reads the on-disk format and re-inserts vectors in batches of
// 1000 to bound peak native memory while the graph is rebuilt.
func (e *engine) loadIndex(path string) (int, error) {
	header, records, err := vectorindex.Load(path)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.st == stateUninit {
		e.buildGraph(int(header.Dimensions), int(header.M), int(header.EfConstruction), int(header.Seed))
		e.maxMax = int(header.MaxElements)
	} else if int(header.Dimensions) != e.dims {
		return 0, coreerrors.DimensionMismatch(e.dims, int(header.Dimensions))
	} else {
		e.buildGraph(e.dims, e.graph.M, e.ef, int(header.Seed))
	}

	const batchSize = 1000
	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}
		for _, rec := range records[i:end] {
			if err := e.addLocked(rec.ID, rec.Vector); err != nil {
				return 0, coreerrors.WorkerMemoryExhausted(err)
			}
		}
	}

	e.st = stateReady
	return len(records), nil
}

func (e *engine) saveIndex(path string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireState(stateReady); err != nil {
		return err
	}

	records := make([]vectorindex.Record, 0, len(e.idMap))
	for id, key := range e.idMap {
		vec, ok := e.vectors[key]
		if !ok {
			continue
		}
		records = append(records, vectorindex.Record{ID: id, Vector: vec})
	}

	header := vectorindex.Header{
		Dimensions:     uint32(e.dims),
		MaxElements:    uint32(e.maxMax),
		M:              uint32(e.graph.M),
		EfConstruction: uint32(e.ef),
		Seed:           100,
	}
	return vectorindex.Save(path, header, records)
}

func (e *engine) addVector(id uint64, vector []float32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireState(stateReady); err != nil {
		return err
	}
	if len(vector) != e.dims {
		return coreerrors.DimensionMismatch(e.dims, len(vector))
	}
	if err := e.addLocked(id, vector); err != nil {
		return coreerrors.WorkerMemoryExhausted(err)
	}
	return nil
}

func (e *engine) addVectors(batch []AddVectorParams) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireState(stateReady); err != nil {
		return 0, err
	}
	for _, item := range batch {
		if len(item.Vector) != e.dims {
			return 0, coreerrors.DimensionMismatch(e.dims, len(item.Vector))
		}
	}
	for i, item := range batch {
		if err := e.addLocked(item.ID, item.Vector); err != nil {
			return i, coreerrors.WorkerMemoryExhausted(err)
		}
	}
	return len(batch), nil
}

// addLocked inserts or replaces a vector. Replacing an id orphans the
// old graph node rather than deleting it (see the engine type doc).
func (e *engine) addLocked(id uint64, vector []float32) error {
	if existingKey, exists := e.idMap[id]; exists {
		delete(e.keyMap, existingKey)
		delete(e.idMap, id)
		delete(e.vectors, existingKey)
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)
	normalize(vec)

	key := e.nextKey
	e.nextKey++

	node := hnsw.MakeNode(key, vec)
	e.graph.Add(node)

	e.idMap[id] = key
	e.keyMap[key] = id
	e.vectors[key] = vec
	return nil
}

func (e *engine) search(query []float32, k int) (SearchResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.requireState(stateReady); err != nil {
		return SearchResult{}, err
	}
	if len(query) != e.dims {
		return SearchResult{}, coreerrors.DimensionMismatch(e.dims, len(query))
	}
	if e.graph.Len() == 0 {
		return SearchResult{Neighbours: []uint64{}, Distances: []float32{}}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	normalize(q)

	nodes := e.graph.Search(q, k)
	result := SearchResult{
		Neighbours: make([]uint64, 0, len(nodes)),
		Distances:  make([]float32, 0, len(nodes)),
	}
	for _, node := range nodes {
		id, ok := e.keyMap[node.Key]
		if !ok {
			continue // orphaned node from a replaced id
		}
		result.Neighbours = append(result.Neighbours, id)
		result.Distances = append(result.Distances, e.graph.Distance(q, node.Value))
	}
	return result, nil
}

func (e *engine) currentCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.idMap)
}

func (e *engine) resizeIndex(newMax int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireState(stateReady); err != nil {
		return err
	}
	if newMax <= e.maxMax {
		return coreerrors.InvalidArguments(fmt.Sprintf("resizeIndex requires newMax > currentMax (%d <= %d)", newMax, e.maxMax), nil)
	}
	e.maxMax = newMax
	return nil
}

func (e *engine) setEf(ef int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.requireState(stateReady); err != nil {
		return err
	}
	e.ef = ef
	e.graph.EfSearch = ef
	return nil
}

func (e *engine) reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.st == stateReady {
		e.buildGraph(e.dims, e.graph.M, e.ef, 100)
	}
}

func (e *engine) stats() StatsResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.graph == nil {
		return StatsResult{}
	}
	validIDs := len(e.idMap)
	graphNodes := e.graph.Len()
	return StatsResult{ValidIDs: validIDs, GraphNodes: graphNodes, Orphans: graphNodes - validIDs}
}

func (e *engine) cleanup() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.st = stateTerminal
	e.graph = nil
	e.idMap = nil
	e.keyMap = nil
	e.vectors = nil
}

func normalize(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}
