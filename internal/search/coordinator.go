package search

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Aman-CERP/ragcore/internal/embed"
	coreerrors "github.com/Aman-CERP/ragcore/internal/errors"
	"github.com/Aman-CERP/ragcore/internal/rerank"
	"github.com/Aman-CERP/ragcore/internal/store"
)

// rerankPoolMultiplier and rerankPoolFloor implement spec's
// k = rerank ? max(topK*3, 30) : topK rule.
const (
	rerankPoolMultiplier = 3
	rerankPoolFloor      = 30
)

// textEmbedder is the subset of embed.Embedder the coordinator needs
// for text queries.
type textEmbedder interface {
	EmbedText(ctx context.Context, text string) (embed.Result, error)
}

// imageEmbedder is the subset of embed.Embedder needed for image
// queries; only present when the committed mode is multimodal.
type imageEmbedder interface {
	EmbedImage(ctx context.Context, path string) (embed.Result, error)
}

// Coordinator implements the C8 search contract.
type Coordinator struct {
	store    store.Store
	searcher vectorSearcher
	embedder textEmbedder
	imager   imageEmbedder // nil when the embedder has no image support
	reranker rerank.Reranker
	mode     store.Mode
}

// New builds a Coordinator. imager and reranker may be nil.
func New(s store.Store, searcher vectorSearcher, embedder textEmbedder, imager imageEmbedder, reranker rerank.Reranker, mode store.Mode) *Coordinator {
	if reranker == nil {
		reranker = rerank.NoOpReranker{}
	}
	return &Coordinator{store: s, searcher: searcher, embedder: embedder, imager: imager, reranker: reranker, mode: mode}
}

var imageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true,
}

func looksLikeImagePath(query string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(query))]
}

// Search implements the C8 contract: text queries, or image queries
// given as a filesystem path when the committed mode supports images.
func (c *Coordinator) Search(ctx context.Context, query string, opts Options) (Response, error) {
	opts.applyDefaults()
	if strings.TrimSpace(query) == "" {
		return Response{}, coreerrors.InvalidArguments("query must not be empty", nil)
	}

	if c.mode == store.ModeMultimodal && c.imager != nil && looksLikeImagePath(query) {
		return c.searchImagePath(ctx, query, opts)
	}

	embedded, err := c.embedder.EmbedText(ctx, query)
	if err != nil {
		return Response{}, err
	}
	return c.searchWithVector(ctx, embedded.Vector, query, opts, nil)
}

func (c *Coordinator) searchImagePath(ctx context.Context, path string, opts Options) (Response, error) {
	embedded, err := c.imager.EmbedImage(ctx, path)
	if err != nil {
		return Response{}, err
	}
	vector := embedded.Vector
	var warnings []Warning
	if opts.Rerank {
		warnings = append(warnings, "rerank disabled: cross-encoders only score text queries")
		opts.Rerank = false
	}
	return c.searchWithVector(ctx, vector, "", opts, warnings)
}

// SearchWithVector implements the parallel contract for callers that
// already hold an embedding (e.g. an image embedded upstream).
func (c *Coordinator) SearchWithVector(ctx context.Context, vector []float32, opts Options) (Response, error) {
	opts.applyDefaults()
	return c.searchWithVector(ctx, vector, "", opts, nil)
}

func (c *Coordinator) searchWithVector(ctx context.Context, vector []float32, query string, opts Options, warnings []Warning) (Response, error) {
	k := opts.TopK
	if opts.Rerank {
		k = opts.TopK * rerankPoolMultiplier
		if k < rerankPoolFloor {
			k = rerankPoolFloor
		}
	}

	ann, err := c.searcher.Search(ctx, vector, k)
	if err != nil {
		return Response{}, err
	}
	if len(ann.Neighbours) == 0 {
		return Response{Warnings: warnings}, nil
	}

	order := breakTies(ann.Neighbours, ann.Distances)

	ids := make([]int64, len(order))
	distanceByID := make(map[int64]float32, len(order))
	for i, n := range order {
		ids[i] = int64(n.id)
		distanceByID[int64(n.id)] = n.distance
	}

	chunks, err := c.store.GetChunks(ctx, ids)
	if err != nil {
		return Response{}, err
	}
	byID := make(map[int64]*store.Chunk, len(chunks))
	for _, ch := range chunks {
		byID[ch.ID] = ch
	}

	results := make([]Result, 0, len(ids))
	for _, id := range ids {
		ch, ok := byID[id]
		if !ok {
			continue // missing vector-to-chunk row: skip per spec's missing-vector rule
		}
		results = append(results, Result{Chunk: ch, Score: 1 - float64(distanceByID[id])})
	}

	if opts.Rerank && c.mode == store.ModeText {
		results, err = c.rerankResults(ctx, query, results, opts.TopK)
		if err != nil {
			return Response{}, err
		}
	} else if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}

	results = filterByContentType(results, opts.ContentTypeFilter)

	return Response{Results: results, Warnings: warnings}, nil
}

func (c *Coordinator) rerankResults(ctx context.Context, query string, results []Result, topK int) ([]Result, error) {
	candidates := make([]rerank.Candidate, len(results))
	byID := make(map[int64]Result, len(results))
	for i, r := range results {
		candidates[i] = rerank.Candidate{ID: r.Chunk.ID, Text: r.Chunk.Content}
		byID[r.Chunk.ID] = r
	}

	scored, err := c.reranker.Rerank(ctx, query, candidates)
	if err != nil {
		return nil, err
	}
	if len(scored) > topK {
		scored = scored[:topK]
	}

	out := make([]Result, len(scored))
	for i, s := range scored {
		r := byID[s.ID]
		r.Score = s.Score
		out[i] = r
	}
	return out, nil
}

func filterByContentType(results []Result, filter ContentTypeFilter) []Result {
	if filter == FilterAll || filter == "" {
		return results
	}
	want := store.ContentType(filter)
	out := results[:0]
	for _, r := range results {
		if r.Chunk.ContentType == want {
			out = append(out, r)
		}
	}
	return out
}

type annNeighbour struct {
	id       uint64
	distance float32
}

// breakTies orders ANN results by ascending distance, breaking exact
// ties by lower id, per spec.md §4.8.
func breakTies(neighbours []uint64, distances []float32) []annNeighbour {
	out := make([]annNeighbour, len(neighbours))
	for i, n := range neighbours {
		d := float32(0)
		if i < len(distances) {
			d = distances[i]
		}
		out[i] = annNeighbour{id: n, distance: d}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].distance != out[j].distance {
			return out[i].distance < out[j].distance
		}
		return out[i].id < out[j].id
	})
	return out
}
