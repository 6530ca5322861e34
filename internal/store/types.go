// Package store provides the relational persistence layer: documents,
// chunks, content-item references, and the mode/model commitment row.
package store

import (
	"context"
	"time"
)

// ContentType distinguishes textual chunks from image chunks.
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeImage ContentType = "image"
)

// Mode is the commitment's embedding mode.
type Mode string

const (
	ModeText       Mode = "text"
	ModeMultimodal Mode = "multimodal"
)

// ModelType names the embedding model family.
type ModelType string

const (
	ModelTypeSentenceTransformer ModelType = "sentence-transformer"
	ModelTypeCLIP                ModelType = "clip"
)

// StorageType records where a ContentItem's bytes physically live.
type StorageType string

const (
	StorageTypeFilesystem StorageType = "filesystem"
	StorageTypeContentDir StorageType = "content_dir"
)

// Document identifies an ingested source.
type Document struct {
	ID          int64
	Source      string
	Title       string
	ContentType ContentType
	CreatedAt   time.Time
}

// Chunk is a retrievable unit belonging to a Document.
type Chunk struct {
	ID          int64
	DocumentID  int64
	Content     string
	ChunkIndex  int
	TokenCount  int
	EmbeddingID string
	ContentType ContentType
	Metadata    map[string]string
	CreatedAt   time.Time
}

// ContentItem is a deduplicated record of raw ingested bytes.
type ContentItem struct {
	ID          string // content hash
	DisplayName string
	MimeType    string
	FileSize    int64
	StoragePath string
	StorageType StorageType
	CreatedAt   time.Time
}

// SystemInfo is the singleton mode/model commitment row.
type SystemInfo struct {
	Mode                  Mode
	ModelName             string
	ModelType             ModelType
	ModelDimensions       int
	SupportedContentTypes []ContentType
	CreatedAt             time.Time
}

// Equal reports whether two commitments describe the same binding
// (ignoring CreatedAt, which is assigned at write time).
func (s SystemInfo) Equal(other SystemInfo) bool {
	if s.Mode != other.Mode || s.ModelName != other.ModelName ||
		s.ModelType != other.ModelType || s.ModelDimensions != other.ModelDimensions {
		return false
	}
	if len(s.SupportedContentTypes) != len(other.SupportedContentTypes) {
		return false
	}
	for i, ct := range s.SupportedContentTypes {
		if other.SupportedContentTypes[i] != ct {
			return false
		}
	}
	return true
}

// Stats summarizes store contents for getStats().
type Stats struct {
	TotalChunks             int
	TotalDocuments          int
	Mode                    Mode
	ModelName               string
	ModelDimensions         int
	RerankerLoaded          bool
	ContentTypeDistribution map[ContentType]int
}

// Tx is a single-writer transaction handle over the store.
type Tx interface {
	// InsertDocument inserts a Document row and returns its generated id.
	InsertDocument(ctx context.Context, doc *Document) (int64, error)
	// InsertChunks bulk-inserts chunks in slice order, returning
	// their generated ids in the same order.
	InsertChunks(ctx context.Context, chunks []*Chunk) ([]int64, error)
	Commit() error
	Rollback() error
}

// Store is the C1 relational store's handle.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	GetDocument(ctx context.Context, id int64) (*Document, error)
	GetChunk(ctx context.Context, id int64) (*Chunk, error)
	GetChunks(ctx context.Context, ids []int64) ([]*Chunk, error)

	GetContentItem(ctx context.Context, id string) (*ContentItem, error)
	SaveContentItem(ctx context.Context, item *ContentItem) error
	DeleteUnreferencedContentItems(ctx context.Context) (int, error)

	// GetSystemInfo returns nil, nil on an empty store.
	GetSystemInfo(ctx context.Context) (*SystemInfo, error)
	// WriteSystemInfo fails with errors.CommitmentExists if a different
	// commitment is already present; succeeds idempotently if the
	// incoming commitment is identical to the one on record.
	WriteSystemInfo(ctx context.Context, info *SystemInfo) error
	// ResetSystemInfo clears the commitment row; used only by force-rebuild.
	ResetSystemInfo(ctx context.Context) error

	GetStats(ctx context.Context) (*Stats, error)

	// Reset drops all documents, chunks, content items, and the
	// commitment. Used only by force-rebuild.
	Reset(ctx context.Context) error

	Close() error
}
