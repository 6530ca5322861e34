package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCLIPServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("/embed/text", func(w http.ResponseWriter, r *http.Request) {
		var req clipTextRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		out := make([][]float32, len(req.Texts))
		for i := range req.Texts {
			v := make([]float32, dims)
			v[0] = 1
			out[i] = v
		}
		_ = json.NewEncoder(w).Encode(clipEmbedResponse{Embeddings: out})
	})
	mux.HandleFunc("/embed/image", func(w http.ResponseWriter, r *http.Request) {
		var req clipImageRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		out := make([][]float32, len(req.Images))
		for i := range req.Images {
			v := make([]float32, dims)
			v[1] = 1
			out[i] = v
		}
		_ = json.NewEncoder(w).Encode(clipEmbedResponse{Embeddings: out})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// newTestCLIPServerMixedFailure fails any multi-text /embed/text
// request (forcing the batch call into its per-item fallback) and any
// single-text request matching failText, succeeding otherwise.
func newTestCLIPServerMixedFailure(t *testing.T, dims int, failText string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	mux.HandleFunc("/embed/text", func(w http.ResponseWriter, r *http.Request) {
		var req clipTextRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if len(req.Texts) > 1 || (len(req.Texts) == 1 && req.Texts[0] == failText) {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		out := make([][]float32, len(req.Texts))
		for i := range req.Texts {
			v := make([]float32, dims)
			v[0] = 1
			out[i] = v
		}
		_ = json.NewEncoder(w).Encode(clipEmbedResponse{Embeddings: out})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestMultimodalEmbedder_EmbedBatch_MixedSuccessAndFailure_KeepsGoodResults(t *testing.T) {
	srv := newTestCLIPServerMixedFailure(t, 512, "bad")
	e := NewMultimodalEmbedder(MultimodalEmbedderConfig{Endpoint: srv.URL, Model: "clip-vit"})
	require.NoError(t, e.LoadModel(context.Background()))

	results, err := e.EmbedBatch(context.Background(), []Item{{Text: "good1"}, {Text: "bad"}, {Text: "good2"}})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NotEmpty(t, results[0].EmbeddingID)
	assert.NotEmpty(t, results[0].Vector)

	assert.Empty(t, results[1].EmbeddingID, "the failed item must be a zero-value Result, not poison the rest of the batch")
	assert.Nil(t, results[1].Vector)

	assert.NotEmpty(t, results[2].EmbeddingID)
	assert.NotEmpty(t, results[2].Vector)
}

func TestMultimodalEmbedder_EmbedText(t *testing.T) {
	srv := newTestCLIPServer(t, 512)
	e := NewMultimodalEmbedder(MultimodalEmbedderConfig{Endpoint: srv.URL, Model: "clip-vit"})
	require.NoError(t, e.LoadModel(context.Background()))

	r, err := e.EmbedText(context.Background(), "a photo of a cat")
	require.NoError(t, err)
	assert.Len(t, r.Vector, 512)
	assert.Equal(t, textEmbeddingID("a photo of a cat"), r.EmbeddingID)
}

func TestMultimodalEmbedder_EmbedImage_RejectsUnsupportedFormat(t *testing.T) {
	srv := newTestCLIPServer(t, 512)
	e := NewMultimodalEmbedder(MultimodalEmbedderConfig{Endpoint: srv.URL, Model: "clip-vit"})
	require.NoError(t, e.LoadModel(context.Background()))

	_, err := e.EmbedImage(context.Background(), "/tmp/a.bmp")
	assert.Error(t, err)
}

func TestMultimodalEmbedder_EmbedImage_RoundTrips(t *testing.T) {
	srv := newTestCLIPServer(t, 512)
	e := NewMultimodalEmbedder(MultimodalEmbedderConfig{Endpoint: srv.URL, Model: "clip-vit"})
	require.NoError(t, e.LoadModel(context.Background()))

	dir := t.TempDir()
	path := filepath.Join(dir, "cat.png")
	require.NoError(t, os.WriteFile(path, []byte("fake png bytes"), 0o644))

	r, err := e.EmbedImage(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, r.Vector, 512)
	assert.Equal(t, bytesEmbeddingID([]byte("fake png bytes")), r.EmbeddingID)
}

func TestMultimodalEmbedder_EmbedBatch_MixedTextAndImagePreservesOrder(t *testing.T) {
	srv := newTestCLIPServer(t, 512)
	e := NewMultimodalEmbedder(MultimodalEmbedderConfig{Endpoint: srv.URL, Model: "clip-vit"})
	require.NoError(t, e.LoadModel(context.Background()))

	dir := t.TempDir()
	path := filepath.Join(dir, "dog.jpg")
	require.NoError(t, os.WriteFile(path, []byte("fake jpg bytes"), 0o644))

	items := []Item{
		{Text: "first text"},
		{ImagePath: path},
		{Text: "second text"},
	}
	results, err := e.EmbedBatch(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, textEmbeddingID("first text"), results[0].EmbeddingID)
	assert.Equal(t, bytesEmbeddingID([]byte("fake jpg bytes")), results[1].EmbeddingID)
	assert.Equal(t, textEmbeddingID("second text"), results[2].EmbeddingID)
}

func TestMultimodalEmbedder_SupportedContentTypes(t *testing.T) {
	e := NewMultimodalEmbedder(MultimodalEmbedderConfig{Endpoint: "http://unused", Model: "clip-vit"})
	types := e.SupportedContentTypes()
	assert.Contains(t, types, ContentTypeText)
	assert.Contains(t, types, ContentTypeImage)
}
