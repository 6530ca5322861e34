// Package embed implements the embedding abstraction: text and
// multimodal embedders backed by local HTTP model servers, plus an
// LRU-caching wrapper. Both concrete embedders speak to a server the
// caller is responsible for starting (see internal/lifecycle) and
// normalise every output vector to unit length so cosine similarity
// reduces to a dot product downstream.
package embed

import (
	"context"
	"math"
	"time"
)

// ModelType identifies the embedding model family.
type ModelType string

const (
	ModelTypeSentenceTransformer ModelType = "sentence-transformer"
	ModelTypeCLIP                ModelType = "clip"
)

// ContentType identifies what an embedder can consume.
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
)

const (
	// MinBatchSize is the minimum allowed batch size.
	MinBatchSize = 1
	// MaxBatchSize caps a single batch request to bound server memory.
	MaxBatchSize = 256
	// DefaultBatchSize is the batch size used when none is configured.
	DefaultBatchSize = 32

	// DefaultMaxTokens is the sentence-transformer truncation length.
	DefaultMaxTokens = 512
	// CLIPMaxTokens is CLIP's fixed tokenizer context length.
	CLIPMaxTokens = 77

	// TextDimensions is the sentence-transformer embedding width.
	TextDimensions = 768
	// CLIPDimensions is the shared text/image embedding width for CLIP.
	CLIPDimensions = 512

	// DefaultWarmTimeout bounds requests once the model server is loaded.
	DefaultWarmTimeout = 30 * time.Second
	// DefaultColdTimeout is a longer bound for a first request that may need
	// to load the model. Neither embedder applies it: every request, the
	// first included, is bounded by DefaultWarmTimeout.
	DefaultColdTimeout = 120 * time.Second
)

// SupportedImageExtensions lists the file extensions MultimodalEmbedder
// accepts for EmbedImage, without the leading dot.
var SupportedImageExtensions = map[string]bool{
	"jpg": true, "jpeg": true, "png": true, "webp": true, "gif": true,
}

// Result is the outcome of embedding a single item: its deterministic
// id and the (already normalised) vector.
type Result struct {
	EmbeddingID string
	Vector      []float32
}

// Item is one unit of work passed to EmbedBatch: either Text or
// ImagePath is set, never both.
type Item struct {
	Text      string
	ImagePath string
}

// Embedder is the capability surface every concrete embedder and the
// caching wrapper implement.
type Embedder interface {
	// LoadModel prepares the embedder for use, failing fast if the
	// backing model server cannot be reached.
	LoadModel(ctx context.Context) error
	// IsLoaded reports whether LoadModel has succeeded and the
	// embedder has not since been closed.
	IsLoaded() bool

	// EmbedText embeds a single piece of text.
	EmbedText(ctx context.Context, text string) (Result, error)
	// EmbedImage embeds a single image given its filesystem path.
	// Returns InvalidArguments if the embedder has no image support.
	EmbedImage(ctx context.Context, path string) (Result, error)
	// EmbedBatch embeds a mix of text and image items, preserving
	// order. A per-item failure (after batch-level fallback) surfaces
	// as a zero-value Result (empty EmbeddingID, nil Vector) at that
	// index rather than failing every item in the batch; EmbedBatch
	// only returns a non-nil error when it could not attempt any item
	// at all (e.g. the embedder isn't loaded).
	EmbedBatch(ctx context.Context, items []Item) ([]Result, error)

	ModelName() string
	ModelType() ModelType
	Dimensions() int
	SupportedContentTypes() []ContentType

	Cleanup() error
}

// normalizeVector L2-normalises v in place semantics (returns a new
// slice), leaving a zero vector untouched.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}
	out := make([]float32, len(v))
	for i, val := range v {
		out[i] = float32(float64(val) / magnitude)
	}
	return out
}
