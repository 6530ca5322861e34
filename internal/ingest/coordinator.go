package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/ragcore/internal/chunk"
	"github.com/Aman-CERP/ragcore/internal/commitment"
	"github.com/Aman-CERP/ragcore/internal/content"
	"github.com/Aman-CERP/ragcore/internal/embed"
	coreerrors "github.com/Aman-CERP/ragcore/internal/errors"
	"github.com/Aman-CERP/ragcore/internal/store"
	"github.com/Aman-CERP/ragcore/internal/vectorworker"
)

// contentStore is the subset of content.Store the coordinator needs.
type contentStore interface {
	PutPath(path string) (content.Put, error)
	PutBytes(data []byte, ext string) (content.Put, error)
}

// vectorAdder is the subset of the vector worker client the
// coordinator needs.
type vectorAdder interface {
	AddVectors(ctx context.Context, batch []vectorworker.AddVectorParams) (int, error)
	SaveIndex(ctx context.Context, path string) error
}

// batchEmbedder is the subset of embed.Embedder the coordinator needs.
// EmbedImage embeds an image source directly: images aren't split by
// the text chunker, so each one is a single embedding call rather than
// a batch.
type batchEmbedder interface {
	EmbedBatch(ctx context.Context, items []embed.Item) ([]embed.Result, error)
	EmbedImage(ctx context.Context, path string) (embed.Result, error)
	Dimensions() int
	ModelName() string
	ModelType() embed.ModelType
	SupportedContentTypes() []embed.ContentType
}

// Coordinator implements the C7 ingestion pipeline.
type Coordinator struct {
	store      store.Store
	content    contentStore
	chunker    chunk.Chunker
	embedder   batchEmbedder
	vectors    vectorAdder
	parser     Parser
	indexPath  string
	batchSize  int
	extensions map[string]bool
}

// Config wires a Coordinator's collaborators.
type Config struct {
	Store      store.Store
	Content    contentStore
	Chunker    chunk.Chunker
	Embedder   batchEmbedder
	Vectors    vectorAdder
	Parser     Parser
	IndexPath  string
	BatchSize  int
	Extensions map[string]bool
}

// New builds a Coordinator.
func New(cfg Config) *Coordinator {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = embed.DefaultBatchSize
	}
	return &Coordinator{
		store:      cfg.Store,
		content:    cfg.Content,
		chunker:    cfg.Chunker,
		embedder:   cfg.Embedder,
		vectors:    cfg.Vectors,
		parser:     cfg.Parser,
		indexPath:  cfg.IndexPath,
		batchSize:  batchSize,
		extensions: cfg.Extensions,
	}
}

// Ingest runs the full pipeline over src, reconciling the committed
// mode/model first. A worker failure while adding vectors is fatal to
// the whole call; any other per-file failure is skipped and counted.
func (c *Coordinator) Ingest(ctx context.Context, src Source, requested store.SystemInfo) (Stats, error) {
	if err := c.reconcileCommitment(ctx, requested); err != nil {
		return Stats{}, err
	}

	items, err := resolve(src, c.extensions)
	if err != nil {
		return Stats{}, err
	}

	var stats Stats
	for _, it := range items {
		if len(it.data) == 0 {
			stats.Skipped++
			stats.SkippedReasons = append(stats.SkippedReasons, fmt.Sprintf("%s: unreadable or empty", displayPath(it)))
			continue
		}

		chunksEmbedded, err := c.ingestOne(ctx, it)
		if err != nil {
			if coreerrors.GetKind(err) == coreerrors.KindWorkerMemoryExhausted {
				return stats, err // fatal: worker failure during add
			}
			stats.Skipped++
			stats.SkippedReasons = append(stats.SkippedReasons, fmt.Sprintf("%s: %v", displayPath(it), err))
			continue
		}
		if chunksEmbedded == 0 {
			stats.Skipped++
			stats.SkippedReasons = append(stats.SkippedReasons, fmt.Sprintf("%s: no chunks survived embedding", displayPath(it)))
			continue
		}

		stats.DocumentsProcessed++
		stats.ChunksEmbedded += chunksEmbedded
	}

	if stats.DocumentsProcessed > 0 {
		if err := c.vectors.SaveIndex(ctx, c.indexPath); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

func displayPath(it item) string {
	if it.path != "" {
		return it.path
	}
	return it.displayName
}

func (c *Coordinator) reconcileCommitment(ctx context.Context, requested store.SystemInfo) error {
	stored, err := commitment.DetectMode(ctx, c.store)
	if err != nil {
		return err
	}

	empty, err := c.storeIsEmpty(ctx)
	if err != nil {
		return err
	}

	if empty {
		binding := requested
		if binding.Mode == "" {
			binding = commitment.DefaultTextMode
		}
		// The commitment binds the store to the embedder actually doing
		// the work, not just to whatever the caller asked for.
		binding.ModelName = c.embedder.ModelName()
		binding.ModelType = store.ModelType(c.embedder.ModelType())
		binding.ModelDimensions = c.embedder.Dimensions()
		binding.SupportedContentTypes = nil
		for _, ct := range c.embedder.SupportedContentTypes() {
			binding.SupportedContentTypes = append(binding.SupportedContentTypes, store.ContentType(ct))
		}
		return commitment.Commit(ctx, c.store, binding)
	}

	return commitment.AssertCompatibility(requested, stored)
}

func (c *Coordinator) storeIsEmpty(ctx context.Context) (bool, error) {
	info, err := c.store.GetSystemInfo(ctx)
	if err != nil {
		return false, err
	}
	return info == nil, nil
}

// ingestOne runs the per-source pipeline and returns the number of
// chunks successfully embedded and persisted.
func (c *Coordinator) ingestOne(ctx context.Context, it item) (int, error) {
	var put content.Put
	var err error
	if it.path != "" {
		put, err = c.content.PutPath(it.path)
	} else {
		ext := strings.TrimPrefix(filepath.Ext(it.displayName), ".")
		put, err = c.content.PutBytes(it.data, ext)
	}
	if err != nil {
		return 0, coreerrors.ParseFailed(displayPath(it), err)
	}

	if it.isImage {
		return c.ingestImage(ctx, it)
	}

	parsed, err := c.parser(ctx, it.path, it.data)
	if err != nil {
		return 0, coreerrors.ParseFailed(displayPath(it), err)
	}

	doc := chunk.Document{Source: put.StoragePath, Title: parsed.Title, Content: parsed.Content}
	rawChunks, err := c.chunker.Chunk(ctx, doc)
	if err != nil {
		return 0, coreerrors.ParseFailed(displayPath(it), err)
	}
	if len(rawChunks) == 0 {
		return 0, nil
	}

	embedded, err := c.embedAll(ctx, rawChunks)
	if err != nil {
		return 0, err
	}

	chunkIDs, err := c.persist(ctx, it, parsed, rawChunks, embedded)
	if err != nil {
		return 0, err
	}

	batch := make([]vectorworker.AddVectorParams, 0, len(chunkIDs))
	for i, id := range chunkIDs {
		if embedded[i] == nil {
			continue
		}
		batch = append(batch, vectorworker.AddVectorParams{ID: uint64(id), Vector: embedded[i].Vector})
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if _, err := c.vectors.AddVectors(ctx, batch); err != nil {
		return 0, coreerrors.WorkerMemoryExhausted(err)
	}

	return len(batch), nil
}

// embedAll embeds rawChunks in batches, isolating per-item failures:
// a nil entry means that chunk failed embedding and is dropped from
// persistence.
func (c *Coordinator) embedAll(ctx context.Context, rawChunks []chunk.Chunk) ([]*embed.Result, error) {
	results := make([]*embed.Result, len(rawChunks))

	for start := 0; start < len(rawChunks); start += c.batchSize {
		end := start + c.batchSize
		if end > len(rawChunks) {
			end = len(rawChunks)
		}

		items := make([]embed.Item, end-start)
		for i, ch := range rawChunks[start:end] {
			items[i] = embed.Item{Text: ch.Text}
		}

		batchResults, err := c.embedder.EmbedBatch(ctx, items)
		if err != nil {
			// EmbedBatch only returns an error when it couldn't attempt
			// any item in this window at all (e.g. embedder not
			// loaded); per-item failures come back as zero-value
			// entries in batchResults instead, so only skip the window
			// here when there's nothing usable to read from it.
			continue
		}
		for i, r := range batchResults {
			if r.EmbeddingID == "" {
				continue // per-item failure: left nil, dropped at persist
			}
			rr := r
			results[start+i] = &rr
		}
	}

	return results, nil
}

func (c *Coordinator) persist(ctx context.Context, it item, parsed Parsed, rawChunks []chunk.Chunk, embedded []*embed.Result) ([]int64, error) {
	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, coreerrors.TransactionFailed(err)
	}

	source := it.path
	if source == "" {
		source = it.displayName
	}

	docID, err := tx.InsertDocument(ctx, &store.Document{
		Source:      source,
		Title:       parsed.Title,
		ContentType: store.ContentTypeText,
	})
	if err != nil {
		_ = tx.Rollback()
		return nil, coreerrors.TransactionFailed(err)
	}

	var toInsert []*store.Chunk
	var keptIdx []int
	for i, ch := range rawChunks {
		if embedded[i] == nil {
			continue
		}
		toInsert = append(toInsert, &store.Chunk{
			DocumentID:  docID,
			Content:     ch.Text,
			ChunkIndex:  ch.ChunkIndex,
			TokenCount:  ch.TokenCount,
			EmbeddingID: embedded[i].EmbeddingID,
			ContentType: store.ContentTypeText,
		})
		keptIdx = append(keptIdx, i)
	}

	if len(toInsert) == 0 {
		_ = tx.Rollback()
		return nil, nil
	}

	ids, err := tx.InsertChunks(ctx, toInsert)
	if err != nil {
		_ = tx.Rollback()
		return nil, coreerrors.TransactionFailed(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, coreerrors.TransactionFailed(err)
	}

	// Re-expand to rawChunks-indexed positions so embedAll's []*Result
	// slice and this id slice line up by index in ingestOne.
	out := make([]int64, len(rawChunks))
	for i, idx := range keptIdx {
		out[idx] = ids[i]
	}
	return out, nil
}

// ingestImage embeds one image source as a single chunk: there's no
// text to split on, so the three-tier chunker doesn't apply. Content
// holds the display name as a placeholder for descriptive text; an
// image captioner would populate richer content here, but that model
// is an external collaborator this package doesn't depend on.
func (c *Coordinator) ingestImage(ctx context.Context, it item) (int, error) {
	result, err := c.embedder.EmbedImage(ctx, it.path)
	if err != nil {
		return 0, coreerrors.EmbedItemFailed(err)
	}

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return 0, coreerrors.TransactionFailed(err)
	}

	source := it.path
	if source == "" {
		source = it.displayName
	}

	docID, err := tx.InsertDocument(ctx, &store.Document{
		Source:      source,
		Title:       it.displayName,
		ContentType: store.ContentTypeImage,
	})
	if err != nil {
		_ = tx.Rollback()
		return 0, coreerrors.TransactionFailed(err)
	}

	ids, err := tx.InsertChunks(ctx, []*store.Chunk{{
		DocumentID:  docID,
		Content:     it.displayName,
		ChunkIndex:  0,
		EmbeddingID: result.EmbeddingID,
		ContentType: store.ContentTypeImage,
	}})
	if err != nil {
		_ = tx.Rollback()
		return 0, coreerrors.TransactionFailed(err)
	}

	if err := tx.Commit(); err != nil {
		return 0, coreerrors.TransactionFailed(err)
	}

	batch := []vectorworker.AddVectorParams{{ID: uint64(ids[0]), Vector: result.Vector}}
	if _, err := c.vectors.AddVectors(ctx, batch); err != nil {
		return 0, coreerrors.WorkerMemoryExhausted(err)
	}

	return 1, nil
}
