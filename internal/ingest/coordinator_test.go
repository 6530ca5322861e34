package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/ragcore/internal/chunk"
	"github.com/Aman-CERP/ragcore/internal/content"
	"github.com/Aman-CERP/ragcore/internal/embed"
	"github.com/Aman-CERP/ragcore/internal/store"
	"github.com/Aman-CERP/ragcore/internal/vectorworker"
)

type fakeContentStore struct{}

func (fakeContentStore) PutPath(path string) (content.Put, error) {
	return content.Put{ID: "deadbeef", StorageType: content.StorageTypeFilesystem, StoragePath: path}, nil
}

func (fakeContentStore) PutBytes(data []byte, ext string) (content.Put, error) {
	return content.Put{ID: "deadbeef", StorageType: content.StorageTypeContentDir, StoragePath: "buf." + ext}, nil
}

type fakeEmbedder struct {
	failAll   bool
	failItems map[string]bool
}

func (f *fakeEmbedder) EmbedBatch(_ context.Context, items []embed.Item) ([]embed.Result, error) {
	if f.failAll {
		return nil, assertErr
	}
	out := make([]embed.Result, len(items))
	for i, it := range items {
		key := it.Text
		if it.ImagePath != "" {
			key = it.ImagePath
		}
		if f.failItems[key] {
			continue // zero-value Result: this item failed, the rest didn't
		}
		if it.ImagePath != "" {
			out[i] = embed.Result{EmbeddingID: it.ImagePath, Vector: []float32{0, 1, 0}}
			continue
		}
		out[i] = embed.Result{EmbeddingID: it.Text, Vector: []float32{1, 0, 0}}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedImage(_ context.Context, path string) (embed.Result, error) {
	return embed.Result{EmbeddingID: path, Vector: []float32{0, 1, 0}}, nil
}
func (f *fakeEmbedder) Dimensions() int                       { return 3 }
func (f *fakeEmbedder) ModelName() string                     { return "test-model" }
func (f *fakeEmbedder) ModelType() embed.ModelType             { return embed.ModelTypeSentenceTransformer }
func (f *fakeEmbedder) SupportedContentTypes() []embed.ContentType {
	return []embed.ContentType{embed.ContentTypeText}
}

var assertErr = &fakeErr{"embed batch failed"}

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }

type fakeVectors struct {
	added     int
	savedPath string
	failAdd   bool
}

func (f *fakeVectors) AddVectors(_ context.Context, batch []vectorworker.AddVectorParams) (int, error) {
	if f.failAdd {
		return 0, assertErr
	}
	f.added += len(batch)
	return len(batch), nil
}

func (f *fakeVectors) SaveIndex(_ context.Context, path string) error {
	f.savedPath = path
	return nil
}

type fakeTx struct {
	store  *fakeStore2
	docID  int64
	chunks []*store.Chunk
}

func (tx *fakeTx) InsertDocument(_ context.Context, doc *store.Document) (int64, error) {
	tx.docID = int64(len(tx.store.docs) + 1)
	doc.ID = tx.docID
	tx.store.pendingDoc = doc
	return tx.docID, nil
}

func (tx *fakeTx) InsertChunks(_ context.Context, chunks []*store.Chunk) ([]int64, error) {
	ids := make([]int64, len(chunks))
	for i, c := range chunks {
		id := int64(len(tx.store.pendingChunks) + 1)
		c.ID = id
		ids[i] = id
		tx.store.pendingChunks = append(tx.store.pendingChunks, c)
	}
	tx.chunks = chunks
	return ids, nil
}

func (tx *fakeTx) Commit() error {
	tx.store.docs = append(tx.store.docs, tx.store.pendingDoc)
	tx.store.committedChunks = append(tx.store.committedChunks, tx.store.pendingChunks...)
	return nil
}

func (tx *fakeTx) Rollback() error {
	tx.store.pendingDoc = nil
	tx.store.pendingChunks = nil
	return nil
}

type fakeStore2 struct {
	store.Store
	info            *store.SystemInfo
	docs            []*store.Document
	pendingDoc      *store.Document
	pendingChunks   []*store.Chunk
	committedChunks []*store.Chunk
}

func (s *fakeStore2) GetSystemInfo(context.Context) (*store.SystemInfo, error) { return s.info, nil }

func (s *fakeStore2) WriteSystemInfo(_ context.Context, info *store.SystemInfo) error {
	if s.info != nil && !s.info.Equal(*info) {
		return assertErr
	}
	s.info = info
	return nil
}

func (s *fakeStore2) Begin(context.Context) (store.Tx, error) {
	return &fakeTx{store: s}, nil
}

func identityParser(_ context.Context, _ string, data []byte) (Parsed, error) {
	return Parsed{Title: "doc", Content: string(data)}, nil
}

func newTestCoordinator(embedder *fakeEmbedder, vectors *fakeVectors) (*Coordinator, *fakeStore2) {
	s := &fakeStore2{}
	c := New(Config{
		Store:     s,
		Content:   fakeContentStore{},
		Chunker:   chunk.New(chunk.Options{ChunkSize: 100, ChunkOverlap: 10}),
		Embedder:  embedder,
		Vectors:   vectors,
		Parser:    identityParser,
		IndexPath: "/tmp/index.bin",
		BatchSize: 32,
	})
	return c, s
}

func TestIngest_SingleFile_PersistsChunksAndVectors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("hello world, this is a small document."), 0o644))

	vectors := &fakeVectors{}
	c, s := newTestCoordinator(&fakeEmbedder{}, vectors)

	stats, err := c.Ingest(context.Background(), Source{Kind: SourceFile, Path: path}, store.SystemInfo{})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.DocumentsProcessed)
	assert.Greater(t, stats.ChunksEmbedded, 0)
	assert.Equal(t, 0, stats.Skipped)
	assert.Len(t, s.committedChunks, stats.ChunksEmbedded)
	assert.Equal(t, stats.ChunksEmbedded, vectors.added)
	assert.Equal(t, "/tmp/index.bin", vectors.savedPath)
	require.NotNil(t, s.info)
	assert.Equal(t, store.ModeText, s.info.Mode)
}

func TestIngest_CommitsDefaultTextModeOnEmptyStore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("some content"), 0o644))

	c, s := newTestCoordinator(&fakeEmbedder{}, &fakeVectors{})
	_, err := c.Ingest(context.Background(), Source{Kind: SourceFile, Path: path}, store.SystemInfo{})
	require.NoError(t, err)
	require.NotNil(t, s.info)
	assert.Equal(t, store.ModeText, s.info.Mode)
}

func TestIngest_IncompatibleModeFailsFast(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("some content"), 0o644))

	c, s := newTestCoordinator(&fakeEmbedder{}, &fakeVectors{})
	s.info = &store.SystemInfo{Mode: store.ModeMultimodal, ModelName: "clip-vit", ModelDimensions: 512}

	_, err := c.Ingest(context.Background(), Source{Kind: SourceFile, Path: path}, store.SystemInfo{Mode: store.ModeText})
	require.Error(t, err)
}

func TestIngest_EmbedBatchFailureSkipsSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("some content"), 0o644))

	c, _ := newTestCoordinator(&fakeEmbedder{failAll: true}, &fakeVectors{})
	stats, err := c.Ingest(context.Background(), Source{Kind: SourceFile, Path: path}, store.SystemInfo{})
	require.NoError(t, err)
	assert.Equal(t, 0, stats.DocumentsProcessed)
	assert.Equal(t, 1, stats.Skipped)
}

func TestIngest_WorkerFailureDuringAddIsFatal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.txt")
	require.NoError(t, os.WriteFile(path, []byte("some content"), 0o644))

	c, _ := newTestCoordinator(&fakeEmbedder{}, &fakeVectors{failAdd: true})
	_, err := c.Ingest(context.Background(), Source{Kind: SourceFile, Path: path}, store.SystemInfo{})
	require.Error(t, err)
}

func TestIngest_DirectoryDiscovery_FiltersByExtension(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("markdown content here"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.bin"), []byte("binary, ignored"), 0o644))

	c, _ := newTestCoordinator(&fakeEmbedder{}, &fakeVectors{})
	stats, err := c.Ingest(context.Background(), Source{Kind: SourceDir, Path: dir}, store.SystemInfo{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocumentsProcessed)
}

func TestIngest_BufferSource(t *testing.T) {
	c, _ := newTestCoordinator(&fakeEmbedder{}, &fakeVectors{})
	stats, err := c.Ingest(context.Background(), Source{
		Kind: SourceBuffer, Buffer: []byte("in-memory document content"), DisplayName: "note.txt", MimeType: "text/plain",
	}, store.SystemInfo{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.DocumentsProcessed)
}

func TestIngest_ImageFile_EmbedsAsSingleImageChunk(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cat.jpg")
	require.NoError(t, os.WriteFile(path, []byte("fake jpeg bytes"), 0o644))

	vectors := &fakeVectors{}
	c, s := newTestCoordinator(&fakeEmbedder{}, vectors)

	stats, err := c.Ingest(context.Background(), Source{Kind: SourceFile, Path: path}, store.SystemInfo{})
	require.NoError(t, err)

	assert.Equal(t, 1, stats.DocumentsProcessed)
	assert.Equal(t, 1, stats.ChunksEmbedded)
	require.Len(t, s.committedChunks, 1)
	assert.Equal(t, store.ContentTypeImage, s.committedChunks[0].ContentType)
	assert.Equal(t, 1, vectors.added)
}

func TestIngest_DirectoryDiscovery_IncludesImagesAlongsideText(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cats.md"), []byte("a document about cats"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cat.jpg"), []byte("fake jpeg bytes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignore.bin"), []byte("binary, ignored"), 0o644))

	c, s := newTestCoordinator(&fakeEmbedder{}, &fakeVectors{})
	stats, err := c.Ingest(context.Background(), Source{Kind: SourceDir, Path: dir}, store.SystemInfo{})
	require.NoError(t, err)

	assert.Equal(t, 2, stats.DocumentsProcessed)

	var sawText, sawImage bool
	for _, ch := range s.committedChunks {
		switch ch.ContentType {
		case store.ContentTypeText:
			sawText = true
		case store.ContentTypeImage:
			sawImage = true
		}
	}
	assert.True(t, sawText, "expected a text chunk from cats.md")
	assert.True(t, sawImage, "expected an image chunk from cat.jpg")
}

func TestEmbedAll_PerItemFailureDoesNotDropRestOfBatch(t *testing.T) {
	embedder := &fakeEmbedder{failItems: map[string]bool{"bad": true}}
	c, _ := newTestCoordinator(embedder, &fakeVectors{})

	rawChunks := []chunk.Chunk{
		{Text: "good1", ChunkIndex: 0},
		{Text: "bad", ChunkIndex: 1},
		{Text: "good2", ChunkIndex: 2},
	}

	results, err := c.embedAll(context.Background(), rawChunks)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.NotNil(t, results[0])
	assert.Nil(t, results[1], "a failed item must not discard the already-succeeded siblings in its batch")
	assert.NotNil(t, results[2])
}
