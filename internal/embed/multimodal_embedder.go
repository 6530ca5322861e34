package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	coreerrors "github.com/Aman-CERP/ragcore/internal/errors"
)

// MultimodalEmbedderConfig configures a MultimodalEmbedder.
type MultimodalEmbedderConfig struct {
	Endpoint        string // base URL of the CLIP server
	Model           string
	BatchSize       int
	SkipHealthCheck bool
}

func (c *MultimodalEmbedderConfig) applyDefaults() {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.BatchSize > MaxBatchSize {
		c.BatchSize = MaxBatchSize
	}
}

// MultimodalEmbedder embeds text and images into a single shared CLIP
// space via a local HTTP server. Text goes through the text-projection
// head only, so embedding text never requires a pixel input. Image
// embedding accepts a filesystem path.
type MultimodalEmbedder struct {
	config MultimodalEmbedderConfig
	client *http.Client
	dims   int

	mu     sync.RWMutex
	loaded bool
}

// NewMultimodalEmbedder constructs a MultimodalEmbedder. LoadModel must
// be called before use.
func NewMultimodalEmbedder(cfg MultimodalEmbedderConfig) *MultimodalEmbedder {
	cfg.applyDefaults()
	return &MultimodalEmbedder{
		config: cfg,
		dims:   CLIPDimensions,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}
}

// LoadModel verifies the backing CLIP server is reachable and healthy.
func (e *MultimodalEmbedder) LoadModel(ctx context.Context) error {
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

	e.loaded = true
	return nil
}

// IsLoaded implements Embedder.
func (e *MultimodalEmbedder) IsLoaded() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.loaded
}

func clipTruncate(text string) string {
	words := strings.Fields(text)
	if len(words) <= CLIPMaxTokens {
		return text
	}
	return strings.Join(words[:CLIPMaxTokens], " ")
}

type clipTextRequest struct {
	Model string   `json:"model"`
	Texts []string `json:"texts"`
}

type clipImageRequest struct {
	Model  string   `json:"model"`
	Images []string `json:"images"` // base64-encoded image bytes
}

type clipEmbedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

func (e *MultimodalEmbedder) embedTextRaw(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(clipTextRequest{Model: e.config.Model, Texts: texts})
	if err != nil {
		return nil, coreerrors.InternalError("marshalling CLIP text request", err)
	}
	return e.post(ctx, "/embed/text", body, len(texts))
}

func (e *MultimodalEmbedder) embedImageRaw(ctx context.Context, encoded []string) ([][]float32, error) {
	body, err := json.Marshal(clipImageRequest{Model: e.config.Model, Images: encoded})
	if err != nil {
		return nil, coreerrors.InternalError("marshalling CLIP image request", err)
	}
	return e.post(ctx, "/embed/image", body, len(encoded))
}

func (e *MultimodalEmbedder) post(ctx context.Context, path string, body []byte, want int) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, DefaultWarmTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, e.config.Endpoint+path, bytes.NewReader(body))
	if err != nil {
		return nil, coreerrors.InternalError("building CLIP request", err)
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

	var decoded clipEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, coreerrors.EmbedBatchFailed(err)
	}
	if len(decoded.Embeddings) != want {
		return nil, coreerrors.EmbedBatchFailed(fmt.Errorf("expected %d embeddings, got %d", want, len(decoded.Embeddings)))
	}
	return decoded.Embeddings, nil
}

// EmbedText implements Embedder via the text-projection head.
func (e *MultimodalEmbedder) EmbedText(ctx context.Context, text string) (Result, error) {
	if !e.IsLoaded() {
		return Result{}, coreerrors.InvalidArguments("embedder not loaded", nil)
	}
	vecs, err := e.embedTextRaw(ctx, []string{clipTruncate(text)})
	if err != nil {
		return Result{}, err
	}
	return Result{EmbeddingID: textEmbeddingID(text), Vector: normalizeVector(vecs[0])}, nil
}

// EmbedImage implements Embedder.
func (e *MultimodalEmbedder) EmbedImage(ctx context.Context, path string) (Result, error) {
	if !e.IsLoaded() {
		return Result{}, coreerrors.InvalidArguments("embedder not loaded", nil)
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(path), "."))
	if !SupportedImageExtensions[ext] {
		return Result{}, coreerrors.InvalidArguments(fmt.Sprintf("unsupported image format %q", ext), nil)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, coreerrors.FileNotFound(fmt.Sprintf("reading image %s", path), err)
	}

	vecs, err := e.embedImageRaw(ctx, []string{encodeImage(data)})
	if err != nil {
		return Result{}, err
	}
	return Result{EmbeddingID: bytesEmbeddingID(data), Vector: normalizeVector(vecs[0])}, nil
}

// EmbedBatch implements Embedder. Text and image items are grouped by
// kind and sent to their respective endpoints, then recombined in the
// original order. A batch failure on either group falls back to
// per-item embedding for that group only; an item that still fails
// leaves a zero-value Result at its index rather than failing the
// whole batch.
func (e *MultimodalEmbedder) EmbedBatch(ctx context.Context, items []Item) ([]Result, error) {
	if !e.IsLoaded() {
		return nil, coreerrors.InvalidArguments("embedder not loaded", nil)
	}
	if len(items) == 0 {
		return nil, nil
	}

	results := make([]Result, len(items))

	var textIdx, imageIdx []int
	var texts []string
	var imageData [][]byte

	for i, item := range items {
		if item.ImagePath != "" {
			ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(item.ImagePath), "."))
			if !SupportedImageExtensions[ext] {
				return nil, coreerrors.InvalidArguments(fmt.Sprintf("unsupported image format %q", ext), nil)
			}
			data, err := os.ReadFile(item.ImagePath)
			if err != nil {
				return nil, coreerrors.FileNotFound(fmt.Sprintf("reading image %s", item.ImagePath), err)
			}
			imageIdx = append(imageIdx, i)
			imageData = append(imageData, data)
			continue
		}
		textIdx = append(textIdx, i)
		texts = append(texts, clipTruncate(item.Text))
	}

	if len(texts) > 0 {
		vecs, err := e.embedTextRaw(ctx, texts)
		if err != nil {
			// Batch failed: fall back to per-item embedding, isolating
			// failures. A failed item leaves a zero-value Result at its
			// index instead of discarding every already-succeeded item.
			for _, idx := range textIdx {
				r, itemErr := e.EmbedText(ctx, items[idx].Text)
				if itemErr != nil {
					continue
				}
				results[idx] = r
			}
		} else {
			for j, idx := range textIdx {
				results[idx] = Result{EmbeddingID: textEmbeddingID(items[idx].Text), Vector: normalizeVector(vecs[j])}
			}
		}
	}

	if len(imageData) > 0 {
		encoded := make([]string, len(imageData))
		for j, data := range imageData {
			encoded[j] = encodeImage(data)
		}
		vecs, err := e.embedImageRaw(ctx, encoded)
		if err != nil {
			for _, idx := range imageIdx {
				r, itemErr := e.EmbedImage(ctx, items[idx].ImagePath)
				if itemErr != nil {
					continue
				}
				results[idx] = r
			}
		} else {
			for j, idx := range imageIdx {
				results[idx] = Result{EmbeddingID: bytesEmbeddingID(imageData[j]), Vector: normalizeVector(vecs[j])}
			}
		}
	}

	return results, nil
}

// ModelName implements Embedder.
func (e *MultimodalEmbedder) ModelName() string { return e.config.Model }

// ModelType implements Embedder.
func (e *MultimodalEmbedder) ModelType() ModelType { return ModelTypeCLIP }

// Dimensions implements Embedder.
func (e *MultimodalEmbedder) Dimensions() int { return e.dims }

// SupportedContentTypes implements Embedder.
func (e *MultimodalEmbedder) SupportedContentTypes() []ContentType {
	return []ContentType{ContentTypeText, ContentTypeImage}
}

// Cleanup implements Embedder.
func (e *MultimodalEmbedder) Cleanup() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.loaded = false
	e.client.CloseIdleConnections()
	return nil
}
