// Package bootstrap wires a ready-to-use engine from a Config: opens the
// relational store and content-addressed store, attaches (spawning if
// necessary) the vector worker process, reads the store's commitment and
// constructs the matching embedder variant, and assembles the ingest and
// search coordinators on top.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Aman-CERP/ragcore/internal/chunk"
	"github.com/Aman-CERP/ragcore/internal/commitment"
	"github.com/Aman-CERP/ragcore/internal/config"
	"github.com/Aman-CERP/ragcore/internal/content"
	"github.com/Aman-CERP/ragcore/internal/embed"
	coreerrors "github.com/Aman-CERP/ragcore/internal/errors"
	"github.com/Aman-CERP/ragcore/internal/ingest"
	"github.com/Aman-CERP/ragcore/internal/lifecycle"
	"github.com/Aman-CERP/ragcore/internal/rerank"
	"github.com/Aman-CERP/ragcore/internal/search"
	"github.com/Aman-CERP/ragcore/internal/store"
	"github.com/Aman-CERP/ragcore/internal/vectorworker"
)

// Handle is the wired set of collaborators a CLI verb operates on.
type Handle struct {
	Config  *config.Config
	Store   *store.SQLiteStore
	Content *content.Store
	Vectors *vectorworker.Client
	Search   *search.Coordinator
	Ingest   *ingest.Coordinator
	Reranker rerank.Reranker

	worker *workerHandle
}

// Close releases the store handle and, if this process spawned the
// vector worker, tells it to clean up and exit.
func (h *Handle) Close(ctx context.Context) error {
	if h.worker != nil && h.worker.owned {
		_ = h.Vectors.Cleanup(ctx)
	}
	if h.Store != nil {
		return h.Store.Close()
	}
	return nil
}

// Open validates the on-disk layout, attaches to (or spawns) the vector
// worker, and wires the engine according to the store's existing
// commitment (or cfg.Embed if the store is empty). Errors from the layout
// check, store open, embedder startup, worker readiness and index load
// name the failing path or endpoint and carry a remediation suggestion.
// Errors from reading the commitment, spawning the worker, initializing
// a new index and setting efSearch do not name a path.
func Open(ctx context.Context, cfg *config.Config) (*Handle, error) {
	if err := checkLayout(cfg); err != nil {
		return nil, err
	}

	s, err := store.Open(cfg.Paths.StorePath)
	if err != nil {
		return nil, coreerrors.InternalError(
			fmt.Sprintf("open store %s", cfg.Paths.StorePath), err).
			WithSuggestion("run 'ragcore rebuild' if the store file is corrupt")
	}

	info, err := commitment.DetectMode(ctx, s)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	contentStore := content.New(cfg.Paths.ContentDir)

	chunker := chunk.New(chunk.Options{
		ChunkSize:    cfg.Chunk.ChunkSize,
		ChunkOverlap: cfg.Chunk.ChunkOverlap,
	})

	embedder, imager, err := buildEmbedder(ctx, cfg, info)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	reranker, err := buildReranker(ctx, cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	worker, client, err := attachWorker(ctx, cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}

	if err := initOrLoadIndex(ctx, client, cfg, embedder.Dimensions()); err != nil {
		_ = s.Close()
		return nil, err
	}

	searchCoord := search.New(s, client, embedder, imager, reranker, info.Mode)

	ingestCoord := ingest.New(ingest.Config{
		Store:     s,
		Content:   contentStore,
		Chunker:   chunker,
		Embedder:  embedder,
		Vectors:   client,
		Parser:    defaultParser,
		IndexPath: cfg.Paths.IndexPath,
		BatchSize: cfg.Embed.BatchSize,
	})

	return &Handle{
		Config:   cfg,
		Store:    s,
		Content:  contentStore,
		Vectors:  client,
		Search:   searchCoord,
		Ingest:   ingestCoord,
		Reranker: reranker,
		worker:   worker,
	}, nil
}

// checkLayout enforces that the store file and index file are either both
// present (an existing corpus) or both absent (a fresh first-run ingest);
// one without the other means a previous run was interrupted mid-write.
func checkLayout(cfg *config.Config) error {
	storeExists := fileExists(cfg.Paths.StorePath)
	indexExists := fileExists(cfg.Paths.IndexPath)

	if storeExists == indexExists {
		return nil
	}

	missing, present := cfg.Paths.IndexPath, cfg.Paths.StorePath
	if indexExists {
		missing, present = cfg.Paths.StorePath, cfg.Paths.IndexPath
	}
	return coreerrors.InternalError(
		fmt.Sprintf("%s exists but %s does not — the store and index are out of sync", present, missing), nil).
		WithSuggestion("run 'ragcore rebuild' to reset both files and re-ingest")
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// defaultParser treats raw bytes as already-extracted plain text. Real
// format-aware parsing (markdown/PDF/DOCX/HTML) is an external contract
// per the engine's scope — a caller with richer parsing wires its own
// ingest.Parser into Handle.Ingest's Config instead of using this one.
func defaultParser(_ context.Context, _ string, data []byte) (ingest.Parsed, error) {
	return ingest.Parsed{Content: string(data)}, nil
}

func buildEmbedder(ctx context.Context, cfg *config.Config, info store.SystemInfo) (embed.Embedder, embed.Embedder, error) {
	// An empty store reads back as DefaultTextMode, which has no model
	// name; only a committed store decides the mode.
	mode := info.Mode
	if info.ModelName == "" {
		mode = store.Mode(cfg.Embed.Mode)
	}

	model := info.ModelName
	if model == "" {
		model = cfg.Embed.Model
	}

	switch mode {
	case store.ModeMultimodal:
		mm, err := newMultimodal(ctx, cfg, model)
		if err != nil {
			return nil, nil, err
		}
		return embed.NewCachedEmbedder(mm, cfg.Embed.CacheSize), mm, nil

	default:
		text, err := newText(ctx, cfg, model)
		if err != nil {
			return nil, nil, err
		}
		return embed.NewCachedEmbedder(text, cfg.Embed.CacheSize), nil, nil
	}
}

func newText(ctx context.Context, cfg *config.Config, model string) (*embed.TextEmbedder, error) {
	if err := ensureServerReady(ctx, "sentence-transformer server", cfg.Embed.Endpoint); err != nil {
		return nil, err
	}
	e := embed.NewTextEmbedder(embed.TextEmbedderConfig{
		Endpoint:  cfg.Embed.Endpoint,
		Model:     model,
		BatchSize: cfg.Embed.BatchSize,
		MaxTokens: cfg.Embed.MaxTokens,
	})
	if err := e.LoadModel(ctx); err != nil {
		return nil, coreerrors.EmbedderLoadFailed(
			fmt.Sprintf("sentence-transformer server at %s", cfg.Embed.Endpoint), err).
			WithSuggestion("start the embedding server or check embed.endpoint in ragcore.yaml")
	}
	return e, nil
}

func newMultimodal(ctx context.Context, cfg *config.Config, model string) (*embed.MultimodalEmbedder, error) {
	if err := ensureServerReady(ctx, "CLIP server", cfg.Embed.Endpoint); err != nil {
		return nil, err
	}
	e := embed.NewMultimodalEmbedder(embed.MultimodalEmbedderConfig{
		Endpoint:  cfg.Embed.Endpoint,
		Model:     model,
		BatchSize: cfg.Embed.BatchSize,
	})
	if err := e.LoadModel(ctx); err != nil {
		return nil, coreerrors.EmbedderLoadFailed(
			fmt.Sprintf("CLIP server at %s", cfg.Embed.Endpoint), err).
			WithSuggestion("start the CLIP server or check embed.endpoint in ragcore.yaml")
	}
	return e, nil
}

// ensureServerReady gives a clearer, immediate error when a local model
// server isn't running at all, before handing off to the embedder's own
// LoadModel health check for anything more specific (wrong model, bad
// response shape). No start command is configured here — ragcore
// expects these servers to already be running, the same assumption
// LoadModel itself makes.
func ensureServerReady(ctx context.Context, name, endpoint string) error {
	mgr := lifecycle.NewServerManager(name, endpoint, nil)
	if mgr.IsRunning(ctx) {
		return nil
	}
	return coreerrors.EmbedderLoadFailed(fmt.Sprintf("%s at %s", name, endpoint), &lifecycle.NotRunningError{Name: name}).
		WithSuggestion(fmt.Sprintf("start the %s or check embed.endpoint in ragcore.yaml", name))
}

func buildReranker(ctx context.Context, cfg *config.Config) (rerank.Reranker, error) {
	if cfg.Embed.RerankEndpoint == "" {
		return rerank.NoOpReranker{}, nil
	}
	r, err := rerank.NewHTTPReranker(ctx, rerank.HTTPRerankerConfig{
		Endpoint: cfg.Embed.RerankEndpoint,
	})
	if err != nil {
		// Reranking is optional: a down reranker degrades to no-op rather
		// than blocking the engine from starting.
		return rerank.NoOpReranker{}, nil
	}
	return r, nil
}

func initOrLoadIndex(ctx context.Context, client *vectorworker.Client, cfg *config.Config, dims int) error {
	if fileExists(cfg.Paths.IndexPath) {
		if _, err := client.LoadIndex(ctx, cfg.Paths.IndexPath); err != nil {
			return coreerrors.IndexVersionMismatch(
				fmt.Sprintf("load index %s: %v — rebuild required", cfg.Paths.IndexPath, err))
		}
	} else {
		params := vectorworker.InitParams{
			Dims:           dims,
			MaxElements:    cfg.Index.MaxElements,
			M:              cfg.Index.M,
			EfConstruction: cfg.Index.EfConstruction,
			Seed:           cfg.Index.Seed,
			IndexPath:      cfg.Paths.IndexPath,
		}
		if err := client.Init(ctx, params); err != nil {
			return coreerrors.InternalError("initialize vector index", err)
		}
	}

	if cfg.Index.EfSearch > 0 {
		if err := client.SetEf(ctx, cfg.Index.EfSearch); err != nil {
			return coreerrors.InternalError("set index efSearch", err)
		}
	}
	return nil
}

// attachWorker connects to an already-running vector worker on cfg's
// socket, or spawns one via a hidden re-exec of the current binary.
func attachWorker(ctx context.Context, cfg *config.Config) (*workerHandle, *vectorworker.Client, error) {
	socketPath := filepath.Join(cfg.Worker.SocketDir, "vector.sock")
	pidfilePath := filepath.Join(cfg.Worker.PIDFileDir, "vector.pid")
	timeout := time.Duration(cfg.Worker.StartTimeoutSeconds) * time.Second

	client := vectorworker.NewClient(socketPath, timeout)
	if client.IsRunning() {
		return &workerHandle{owned: false}, client, nil
	}

	wh, err := spawnWorker(socketPath, pidfilePath)
	if err != nil {
		return nil, nil, coreerrors.InternalError("spawn vector worker process", err).
			WithSuggestion("check that the ragcore binary is executable and the socket directory is writable")
	}

	if !waitForReady(ctx, client, timeout) {
		_ = wh.cmd.Process.Kill()
		return nil, nil, coreerrors.InternalError(
			fmt.Sprintf("vector worker did not become ready on %s within %s", socketPath, timeout), nil).
			WithSuggestion("increase worker.start_timeout_seconds or check worker logs")
	}

	return wh, client, nil
}

func waitForReady(ctx context.Context, client *vectorworker.Client, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	backoff := 50 * time.Millisecond
	for time.Now().Before(deadline) {
		if client.IsRunning() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		if backoff < 500*time.Millisecond {
			backoff *= 2
		}
	}
	return client.IsRunning()
}
