// Package ingest implements the ingestion coordinator: discover
// sources, store their raw bytes, parse, chunk, embed in batches, and
// persist chunks and vectors with consistent identifiers.
package ingest

import "context"

// DefaultExtensions is the discovery allow-list used when walking a
// directory source for text documents.
var DefaultExtensions = map[string]bool{
	".md": true, ".txt": true, ".markdown": true,
}

// DefaultImageExtensions is the discovery allow-list for image
// sources; a directory walk always picks these up alongside whatever
// text extensions are configured, since images are a distinct content
// type rather than a caller-selectable parsing format.
var DefaultImageExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true,
}

// SourceKind distinguishes how a Source's bytes are obtained.
type SourceKind string

const (
	SourceDir    SourceKind = "dir"
	SourceFile   SourceKind = "file"
	SourceBuffer SourceKind = "buffer"
)

// Source describes one ingestion input.
type Source struct {
	Kind SourceKind

	// Path is the filesystem path for SourceDir and SourceFile.
	Path string

	// Buffer, DisplayName, MimeType apply to SourceBuffer.
	Buffer      []byte
	DisplayName string
	MimeType    string
}

// Parsed is what an injected Parser produces from a resolved item:
// already-extracted plain text plus a display title. Parsing itself
// (markdown/PDF/DOCX/HTML, Mermaid preprocessing) is external to this
// package.
type Parsed struct {
	Title   string
	Content string
}

// Parser extracts text from one resolved item. path is empty for
// buffer-backed items; data holds the raw bytes either way.
type Parser func(ctx context.Context, path string, data []byte) (Parsed, error)

// Stats summarizes the outcome of a single Ingest call.
type Stats struct {
	DocumentsProcessed int
	ChunksEmbedded     int
	Skipped            int
	SkippedReasons     []string
}

// item is one resolved unit of work after directory discovery: a
// single file or buffer ready for content storage and embedding.
type item struct {
	path        string // empty for in-memory buffers
	data        []byte
	displayName string
	mimeType    string
	isImage     bool
}
