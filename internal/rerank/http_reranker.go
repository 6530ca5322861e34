package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	coreerrors "github.com/Aman-CERP/ragcore/internal/errors"
)

const (
	// DefaultTimeout bounds a single rerank request.
	DefaultTimeout = 30 * time.Second
	// DefaultPoolSize is the default number of candidates reranked at once.
	DefaultPoolSize = 50
)

// HTTPRerankerConfig configures an HTTPReranker.
type HTTPRerankerConfig struct {
	Endpoint        string
	Model           string
	Timeout         time.Duration
	SkipHealthCheck bool
}

func (c *HTTPRerankerConfig) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
}

// HTTPReranker implements Reranker via a local cross-encoder HTTP
// server.
type HTTPReranker struct {
	config HTTPRerankerConfig
	client *http.Client

	mu     sync.RWMutex
	loaded bool
}

var _ Reranker = (*HTTPReranker)(nil)

// NewHTTPReranker constructs an HTTPReranker and health-checks the
// backing server unless SkipHealthCheck is set.
func NewHTTPReranker(ctx context.Context, cfg HTTPRerankerConfig) (*HTTPReranker, error) {
	cfg.applyDefaults()
	r := &HTTPReranker{
		config: cfg,
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
	}

	if cfg.SkipHealthCheck {
		r.loaded = true
		return r, nil
	}

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := r.healthCheck(checkCtx); err != nil {
		return nil, coreerrors.EmbedderLoadFailed("reranker health check failed", err)
	}
	r.loaded = true
	return r, nil
}

func (r *HTTPReranker) healthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.config.Endpoint+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return nil
}

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Scores []float64 `json:"scores"`
}

// Rerank implements Reranker. Falls back to input order if the
// backing model is not loaded, per spec: no-op rather than an error.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]Scored, error) {
	if !r.Available(ctx) || len(candidates) == 0 {
		return NoOpReranker{}.Rerank(ctx, query, candidates)
	}

	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Text
	}

	body, err := json.Marshal(rerankRequest{Model: r.config.Model, Query: query, Documents: docs})
	if err != nil {
		return nil, coreerrors.InternalError("marshalling rerank request", err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, r.config.Endpoint+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, coreerrors.InternalError("building rerank request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, coreerrors.InternalError("calling reranker", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, coreerrors.InternalError(fmt.Sprintf("reranker status %d: %s", resp.StatusCode, respBody), nil)
	}

	var decoded rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, coreerrors.InternalError("decoding rerank response", err)
	}
	if len(decoded.Scores) != len(candidates) {
		return nil, coreerrors.InternalError(
			fmt.Sprintf("expected %d scores, got %d", len(candidates), len(decoded.Scores)), nil)
	}

	results := make([]Scored, len(candidates))
	for i, c := range candidates {
		results[i] = Scored{Candidate: c, Score: decoded.Scores[i]}
	}
	sortByScoreDesc(results)
	return results, nil
}

// Available implements Reranker.
func (r *HTTPReranker) Available(context.Context) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loaded
}

// Close implements Reranker.
func (r *HTTPReranker) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loaded = false
	r.client.CloseIdleConnections()
	return nil
}
