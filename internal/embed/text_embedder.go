package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	coreerrors "github.com/Aman-CERP/ragcore/internal/errors"
)

// TextEmbedderConfig configures a TextEmbedder.
type TextEmbedderConfig struct {
	Endpoint        string // base URL of the sentence-transformer server
	Model           string
	BatchSize       int
	MaxTokens       int
	SkipHealthCheck bool
}

func (c *TextEmbedderConfig) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchSize > MaxBatchSize {
		c.BatchSize = MaxBatchSize
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = DefaultMaxTokens
	}
}

// TextEmbedder embeds plain text via a local sentence-transformer HTTP
// server. Vectors are L2-normalised on return. A batch-level failure is
// never fatal: EmbedBatch degrades to embedding items one at a time so
// one malformed input cannot poison the rest of the batch.
type TextEmbedder struct {
	config TextEmbedderConfig
	client *http.Client
	dims   int

	mu     sync.RWMutex
	loaded bool
}

// NewTextEmbedder constructs a TextEmbedder. LoadModel must be called
// before use.
func NewTextEmbedder(cfg TextEmbedderConfig) *TextEmbedder {
	cfg.applyDefaults()
	return &TextEmbedder{
		config: cfg,
		dims:   TextDimensions,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// LoadModel verifies the backing server is reachable and healthy.
func (e *TextEmbedder) LoadModel(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.config.SkipHealthCheck {
		e.loaded = true
		return nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, e.config.Endpoint+"/health", nil)
	if err != nil {
		return coreerrors.EmbedderLoadFailed("building health check request", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return coreerrors.EmbedderLoadFailed(fmt.Sprintf("connecting to %s", e.config.Endpoint), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return coreerrors.EmbedderLoadFailed(fmt.Sprintf("server unhealthy (status %d): %s", resp.StatusCode, body), nil)
	}

	if dims, err := e.fetchDimensions(checkCtx); err == nil && dims > 0 {
		e.dims = dims
	}

	e.loaded = true
	return nil
}

func (e *TextEmbedder) fetchDimensions(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.config.Endpoint+"/models/"+e.config.Model, nil)
	if err != nil {
		return 0, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("status %d", resp.StatusCode)
	}
	var out struct {
		Dimensions int `json:"dimensions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Dimensions, nil
}

// IsLoaded implements Embedder.
func (e *TextEmbedder) IsLoaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loaded
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (e *TextEmbedder) embedRaw(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(embedRequest{Model: e.config.Model, Input: texts})
	if err != nil {
		return nil, coreerrors.InternalError("marshalling embed request", err)
	}

	timeout := DefaultWarmTimeout
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Endpoint+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, coreerrors.InternalError("building embed request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, coreerrors.EmbedBatchFailed(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, coreerrors.EmbedBatchFailed(fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, coreerrors.EmbedBatchFailed(err)
	}
	if len(decoded.Embeddings) != len(texts) {
		return nil, coreerrors.EmbedBatchFailed(fmt.Errorf("expected %d embeddings, got %d", len(texts), len(decoded.Embeddings)))
	}
	return decoded.Embeddings, nil
}

func (e *TextEmbedder) truncate(text string) string {
	words := strings.Fields(text)
	if len(words) <= e.config.MaxTokens {
		return text
	}
	return strings.Join(words[:e.config.MaxTokens], " ")
}

// EmbedText implements Embedder.
func (e *TextEmbedder) EmbedText(ctx context.Context, text string) (Result, error) {
	if !e.IsLoaded() {
		return Result{}, coreerrors.InvalidArguments("embedder not loaded", nil)
	}
	vecs, err := e.embedRaw(ctx, []string{e.truncate(text)})
	if err != nil {
		return Result{}, err
	}
	return Result{EmbeddingID: textEmbeddingID(text), Vector: normalizeVector(vecs[0])}, nil
}

// EmbedImage implements Embedder. TextEmbedder has no image support.
func (e *TextEmbedder) EmbedImage(context.Context, string) (Result, error) {
	return Result{}, coreerrors.InvalidArguments("text embedder does not support images", nil)
}

// EmbedBatch implements Embedder. On batch failure it falls back to
// embedding each item individually so a single bad item doesn't
// sacrifice the whole batch.
func (e *TextEmbedder) EmbedBatch(ctx context.Context, items []Item) ([]Result, error) {
	if !e.IsLoaded() {
		return nil, coreerrors.InvalidArguments("embedder not loaded", nil)
	}
	if len(items) == 0 {
		return nil, nil
	}

	texts := make([]string, len(items))
	for i, item := range items {
		if item.ImagePath != "" {
			return nil, coreerrors.InvalidArguments("text embedder received an image item", nil)
		}
		texts[i] = e.truncate(item.Text)
	}

	vecs, err := e.embedRaw(ctx, texts)
	if err == nil {
		results := make([]Result, len(items))
		for i, v := range vecs {
			results[i] = Result{EmbeddingID: textEmbeddingID(items[i].Text), Vector: normalizeVector(v)}
		}
		return results, nil
	}

	// Batch failed: fall back to per-item embedding, isolating failures.
	// A failed item becomes a zero-value Result at its index rather
	// than discarding every already-succeeded item in the batch.
	results := make([]Result, len(items))
	for i, item := range items {
		r, itemErr := e.EmbedText(ctx, item.Text)
		if itemErr != nil {
			continue
		}
		results[i] = r
	}
	return results, nil
}

// ModelName implements Embedder.
func (e *TextEmbedder) ModelName() string { return e.config.Model }

// ModelType implements Embedder.
func (e *TextEmbedder) ModelType() ModelType { return ModelTypeSentenceTransformer }

// Dimensions implements Embedder.
func (e *TextEmbedder) Dimensions() int { return e.dims }

// SupportedContentTypes implements Embedder.
func (e *TextEmbedder) SupportedContentTypes() []ContentType {
	return []ContentType{ContentTypeText}
}

// Cleanup implements Embedder.
func (e *TextEmbedder) Cleanup() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loaded = false
	e.client.CloseIdleConnections()
	return nil
}
