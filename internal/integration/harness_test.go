// Package integration exercises the full ingest-then-search round trip
// across real collaborators (SQLite store, filesystem content store,
// the three-tier chunker, and a real vector worker reached over a Unix
// socket) with a deterministic fake embedder standing in for the HTTP
// model servers, which this suite doesn't have available.
package integration

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Aman-CERP/ragcore/internal/chunk"
	"github.com/Aman-CERP/ragcore/internal/content"
	"github.com/Aman-CERP/ragcore/internal/embed"
	"github.com/Aman-CERP/ragcore/internal/ingest"
	"github.com/Aman-CERP/ragcore/internal/rerank"
	"github.com/Aman-CERP/ragcore/internal/search"
	"github.com/Aman-CERP/ragcore/internal/store"
	"github.com/Aman-CERP/ragcore/internal/vectorworker"
)

const hashEmbedDims = 32

// hashEmbedder is a deterministic stand-in for a real sentence-transformer
// or CLIP server: it bag-of-words hashes a text's tokens into a fixed-size
// vector and L2-normalizes it, so documents sharing vocabulary land close
// together in cosine distance the same way a real text embedding would.
type hashEmbedder struct{}

func (hashEmbedder) LoadModel(context.Context) error { return nil }
func (hashEmbedder) IsLoaded() bool                  { return true }

func (hashEmbedder) EmbedText(_ context.Context, text string) (embed.Result, error) {
	return embed.Result{EmbeddingID: embeddingID(text), Vector: hashVector(text)}, nil
}

func (hashEmbedder) EmbedImage(_ context.Context, path string) (embed.Result, error) {
	return embed.Result{EmbeddingID: embeddingID(path), Vector: hashVector(path)}, nil
}

func (e hashEmbedder) EmbedBatch(ctx context.Context, items []embed.Item) ([]embed.Result, error) {
	out := make([]embed.Result, len(items))
	for i, it := range items {
		if it.ImagePath != "" {
			r, err := e.EmbedImage(ctx, it.ImagePath)
			if err != nil {
				return nil, err
			}
			out[i] = r
			continue
		}
		r, err := e.EmbedText(ctx, it.Text)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func (hashEmbedder) ModelName() string { return "hash-embedder-test" }
func (hashEmbedder) ModelType() embed.ModelType {
	return embed.ModelTypeSentenceTransformer
}
func (hashEmbedder) Dimensions() int { return hashEmbedDims }
func (hashEmbedder) SupportedContentTypes() []embed.ContentType {
	return []embed.ContentType{embed.ContentTypeText, embed.ContentTypeImage}
}
func (hashEmbedder) Cleanup() error { return nil }

func embeddingID(text string) string {
	return fmt.Sprintf("%x", fnv.New64a().Sum([]byte(strings.TrimSpace(text))))
}

func hashVector(text string) []float32 {
	vec := make([]float32, hashEmbedDims)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(tok))
		vec[int(h.Sum32())%hashEmbedDims]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}

func plainTextParser(_ context.Context, _ string, data []byte) (ingest.Parsed, error) {
	return ingest.Parsed{Content: string(data)}, nil
}

// testEngine bundles the real collaborators a bootstrap.Handle would
// wire, minus the embedder (hashEmbedder stands in for the HTTP model
// server) and the worker process (a real vectorworker.Server, run
// in-process over a Unix socket instead of a spawned subprocess).
type testEngine struct {
	store   *store.SQLiteStore
	content *content.Store
	vectors *vectorworker.Client
	ingest  *ingest.Coordinator
	search  *search.Coordinator

	stopServer context.CancelFunc
	serverDone chan struct{}
}

func (e *testEngine) Close() {
	e.stopServer()
	<-e.serverDone
	_ = e.store.Close()
}

func newTestEngine(t *testing.T, dir string) *testEngine {
	return newTestEngineMode(t, dir, store.ModeText)
}

// newTestEngineMode builds a testEngine committed to mode, wiring the
// hashEmbedder in as both the text and image embedder so multimodal
// scenarios (image ingestion, image-path queries) can be exercised
// without a real CLIP server.
func newTestEngineMode(t *testing.T, dir string, mode store.Mode) *testEngine {
	t.Helper()

	s, err := store.Open(filepath.Join(dir, "store.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	contentStore := content.New(filepath.Join(dir, "content"))

	socketPath := filepath.Join(dir, "vector.sock")
	srv := vectorworker.NewServer(socketPath)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = srv.ListenAndServe(ctx)
		close(done)
	}()

	client := vectorworker.NewClient(socketPath, 2*time.Second)
	if !waitForSocket(client, 2*time.Second) {
		cancel()
		t.Fatalf("vector worker did not come up on %s", socketPath)
	}

	embedder := hashEmbedder{}
	if err := client.Init(context.Background(), vectorworker.InitParams{
		Dims:        embedder.Dimensions(),
		MaxElements: 10_000,
		IndexPath:   filepath.Join(dir, "index.rlvi"),
	}); err != nil {
		cancel()
		t.Fatalf("init index: %v", err)
	}

	chunker := chunk.New(chunk.Options{ChunkSize: 250, ChunkOverlap: 50})

	ingestCoord := ingest.New(ingest.Config{
		Store:     s,
		Content:   contentStore,
		Chunker:   chunker,
		Embedder:  embedder,
		Vectors:   client,
		Parser:    plainTextParser,
		IndexPath: filepath.Join(dir, "index.rlvi"),
	})

	searchCoord := search.New(s, client, embedder, embedder, rerank.NoOpReranker{}, mode)

	return &testEngine{
		store:      s,
		content:    contentStore,
		vectors:    client,
		ingest:     ingestCoord,
		search:     searchCoord,
		stopServer: cancel,
		serverDone: done,
	}
}

func waitForSocket(c *vectorworker.Client, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if c.IsRunning() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return c.IsRunning()
}
