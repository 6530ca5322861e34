package integration

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragcore/internal/ingest"
	"github.com/Aman-CERP/ragcore/internal/search"
	"github.com/Aman-CERP/ragcore/internal/store"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// TestIngestThenSearch_TextCorpus covers the spec's first end-to-end
// scenario: a small mixed corpus, one empty file skipped, and a query
// that should rank the matching document first.
func TestIngestThenSearch_TextCorpus(t *testing.T) {
	dir := t.TempDir()
	corpus := filepath.Join(dir, "corpus")
	require.NoError(t, os.MkdirAll(corpus, 0o755))

	writeFile(t, corpus, "ml.md", "# Machine Learning Basics\n\n"+
		strings.Repeat("supervised learning trains a model on labeled examples. ", 40))
	writeFile(t, corpus, "quick.md", "")
	writeFile(t, corpus, "other.md", strings.Repeat("baking bread requires flour yeast water and time. ", 25))

	eng := newTestEngine(t, dir)
	defer eng.Close()

	ctx := context.Background()
	stats, err := eng.ingest.Ingest(ctx, ingest.Source{Kind: ingest.SourceDir, Path: corpus}, store.SystemInfo{})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.DocumentsProcessed, "empty file should be skipped, not counted as a document")
	assert.GreaterOrEqual(t, stats.ChunksEmbedded, 2)
	assert.Equal(t, 1, stats.Skipped)

	resp, err := eng.search.Search(ctx, "supervised learning", search.Options{TopK: 3})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	top := resp.Results[0]
	assert.Contains(t, top.Chunk.Content, "supervised learning")
	assert.Greater(t, top.Score, 0.0)

	for i := 1; i < len(resp.Results); i++ {
		assert.GreaterOrEqual(t, resp.Results[i-1].Score, resp.Results[i].Score, "results must be sorted by score descending")
	}
}

// TestReingestSameContent_IsIdempotent covers the round-trip law:
// re-ingesting identical bytes produces the same embedding ids and
// doesn't grow the index.
func TestReingestSameContent_IsIdempotent(t *testing.T) {
	dir := t.TempDir()
	corpus := filepath.Join(dir, "corpus")
	require.NoError(t, os.MkdirAll(corpus, 0o755))
	writeFile(t, corpus, "doc.md", strings.Repeat("content addressed chunking is deterministic. ", 30))

	eng := newTestEngine(t, dir)
	defer eng.Close()

	ctx := context.Background()
	src := ingest.Source{Kind: ingest.SourceDir, Path: corpus}

	first, err := eng.ingest.Ingest(ctx, src, store.SystemInfo{})
	require.NoError(t, err)

	firstResp, err := eng.search.Search(ctx, "content addressed chunking", search.Options{TopK: 5})
	require.NoError(t, err)

	second, err := eng.ingest.Ingest(ctx, src, store.SystemInfo{})
	require.NoError(t, err)
	assert.Equal(t, first.ChunksEmbedded, second.ChunksEmbedded)

	secondResp, err := eng.search.Search(ctx, "content addressed chunking", search.Options{TopK: 5})
	require.NoError(t, err)

	require.Equal(t, len(firstResp.Results), len(secondResp.Results))
	for i := range firstResp.Results {
		assert.Equal(t, firstResp.Results[i].Chunk.EmbeddingID, secondResp.Results[i].Chunk.EmbeddingID)
		assert.InDelta(t, firstResp.Results[i].Score, secondResp.Results[i].Score, 1e-9)
	}
}

// TestEmptyDocument_ProducesNoChunks covers the boundary behaviour:
// an empty document yields zero chunks and no Document row.
func TestEmptyDocument_ProducesNoChunks(t *testing.T) {
	dir := t.TempDir()
	corpus := filepath.Join(dir, "corpus")
	require.NoError(t, os.MkdirAll(corpus, 0o755))
	writeFile(t, corpus, "empty.md", "")

	eng := newTestEngine(t, dir)
	defer eng.Close()

	ctx := context.Background()
	stats, err := eng.ingest.Ingest(ctx, ingest.Source{Kind: ingest.SourceDir, Path: corpus}, store.SystemInfo{})
	require.NoError(t, err)

	assert.Equal(t, 0, stats.DocumentsProcessed)
	assert.Equal(t, 0, stats.ChunksEmbedded)
	assert.Equal(t, 1, stats.Skipped)
}

// TestIngestImageAndText_ImageQueryRanksImageFirst covers the spec's
// fourth end-to-end scenario: a multimodal store holding one image and
// one text document about the same subject, queried by image path.
func TestIngestImageAndText_ImageQueryRanksImageFirst(t *testing.T) {
	dir := t.TempDir()
	corpus := filepath.Join(dir, "corpus")
	require.NoError(t, os.MkdirAll(corpus, 0o755))

	imgPath := writeFile(t, corpus, "cat.jpg", "fake jpeg bytes for a cat photo")
	writeFile(t, corpus, "about-cats.md", strings.Repeat("cats are small domesticated carnivorous mammals. ", 20))

	eng := newTestEngineMode(t, dir, store.ModeMultimodal)
	defer eng.Close()

	ctx := context.Background()
	stats, err := eng.ingest.Ingest(ctx, ingest.Source{Kind: ingest.SourceDir, Path: corpus}, store.SystemInfo{Mode: store.ModeMultimodal})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.DocumentsProcessed)

	resp, err := eng.search.Search(ctx, imgPath, search.Options{TopK: 2, Rerank: true})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)

	assert.Equal(t, store.ContentTypeImage, resp.Results[0].Chunk.ContentType, "the image itself should rank first against an image query")
	assert.NotEmpty(t, resp.Warnings, "rerank=true against an image query must be forced off with a warning")
}

// TestSearch_TopKExceedsIndexSize covers the boundary behaviour: a
// top_k larger than the current vector count returns every available
// result instead of erroring.
func TestSearch_TopKExceedsIndexSize(t *testing.T) {
	dir := t.TempDir()
	corpus := filepath.Join(dir, "corpus")
	require.NoError(t, os.MkdirAll(corpus, 0o755))
	writeFile(t, corpus, "small.md", "a short note about gardening and tomatoes")

	eng := newTestEngine(t, dir)
	defer eng.Close()

	ctx := context.Background()
	stats, err := eng.ingest.Ingest(ctx, ingest.Source{Kind: ingest.SourceDir, Path: corpus}, store.SystemInfo{})
	require.NoError(t, err)
	require.Greater(t, stats.ChunksEmbedded, 0)

	resp, err := eng.search.Search(ctx, "tomatoes", search.Options{TopK: 1000})
	require.NoError(t, err)
	assert.Len(t, resp.Results, stats.ChunksEmbedded)
}
