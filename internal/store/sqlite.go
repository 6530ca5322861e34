package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver (no CGO)

	coreerrors "github.com/Aman-CERP/ragcore/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	source TEXT NOT NULL,
	title TEXT NOT NULL,
	content_type TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id INTEGER NOT NULL REFERENCES documents(id),
	content TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	token_count INTEGER NOT NULL,
	embedding_id TEXT NOT NULL,
	content_type TEXT NOT NULL,
	metadata TEXT,
	created_at TEXT NOT NULL,
	UNIQUE(document_id, chunk_index)
);

CREATE TABLE IF NOT EXISTS content_items (
	id TEXT PRIMARY KEY,
	display_name TEXT NOT NULL,
	mime_type TEXT NOT NULL,
	file_size INTEGER NOT NULL,
	storage_path TEXT NOT NULL,
	storage_type TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS system_info (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	mode TEXT NOT NULL,
	model_name TEXT NOT NULL,
	model_type TEXT NOT NULL,
	model_dimensions INTEGER NOT NULL,
	supported_content_types TEXT NOT NULL,
	created_at TEXT NOT NULL
);
`

// SQLiteStore implements Store over a single-writer SQLite database in WAL mode.
type SQLiteStore struct {
	mu   sync.Mutex
	db   *sql.DB
	path string
}

var _ Store = (*SQLiteStore)(nil)

// Open opens (creating if necessary) the relational store at path.
func Open(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, coreerrors.InvalidArguments("store path must not be empty", nil)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, coreerrors.Wrap(coreerrors.ErrCodeFileNotFound, fmt.Errorf("create store directory %s: %w", dir, err))
		}
	}

	dsn := path + "?_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.ErrCodeInternal, fmt.Errorf("open store %s: %w", path, err))
	}

	// Single writer: SQLite under WAL tolerates many readers but this
	// store is accessed by exactly one host process at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, coreerrors.Wrap(coreerrors.ErrCodeInternal, fmt.Errorf("set pragma %q: %w", p, err))
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, coreerrors.Wrap(coreerrors.ErrCodeInternal, fmt.Errorf("initialize schema: %w", err))
	}

	return &SQLiteStore{db: db, path: path}, nil
}

func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	err := s.db.Close()
	s.db = nil
	return err
}

// sqliteTx implements Tx over a *sql.Tx.
type sqliteTx struct {
	tx *sql.Tx
}

func (s *SQLiteStore) Begin(ctx context.Context) (Tx, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, coreerrors.TransactionFailed(err)
	}
	return &sqliteTx{tx: tx}, nil
}

func (t *sqliteTx) InsertDocument(ctx context.Context, doc *Document) (int64, error) {
	now := time.Now().UTC()
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO documents (source, title, content_type, created_at) VALUES (?, ?, ?, ?)`,
		doc.Source, doc.Title, string(doc.ContentType), now.Format(time.RFC3339Nano))
	if err != nil {
		return 0, coreerrors.TransactionFailed(fmt.Errorf("insert document: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, coreerrors.TransactionFailed(fmt.Errorf("read generated document id: %w", err))
	}
	doc.ID = id
	doc.CreatedAt = now
	return id, nil
}

func (t *sqliteTx) InsertChunks(ctx context.Context, chunks []*Chunk) ([]int64, error) {
	if len(chunks) == 0 {
		return nil, nil
	}
	stmt, err := t.tx.PrepareContext(ctx,
		`INSERT INTO chunks (document_id, content, chunk_index, token_count, embedding_id, content_type, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, coreerrors.TransactionFailed(fmt.Errorf("prepare chunk insert: %w", err))
	}
	defer stmt.Close()

	ids := make([]int64, len(chunks))
	for i, c := range chunks {
		metaJSON, err := marshalMetadata(c.Metadata)
		if err != nil {
			return nil, coreerrors.TransactionFailed(fmt.Errorf("encode chunk metadata: %w", err))
		}
		now := time.Now().UTC()
		res, err := stmt.ExecContext(ctx, c.DocumentID, c.Content, c.ChunkIndex, c.TokenCount,
			c.EmbeddingID, string(c.ContentType), metaJSON, now.Format(time.RFC3339Nano))
		if err != nil {
			return nil, coreerrors.TransactionFailed(fmt.Errorf("insert chunk %d: %w", c.ChunkIndex, err))
		}
		id, err := res.LastInsertId()
		if err != nil {
			return nil, coreerrors.TransactionFailed(fmt.Errorf("read generated chunk id: %w", err))
		}
		c.ID = id
		c.CreatedAt = now
		ids[i] = id
	}
	return ids, nil
}

func (t *sqliteTx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return coreerrors.TransactionFailed(err)
	}
	return nil
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (s *SQLiteStore) GetDocument(ctx context.Context, id int64) (*Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, source, title, content_type, created_at FROM documents WHERE id = ?`, id)
	doc := &Document{}
	var createdAt string
	var contentType string
	if err := row.Scan(&doc.ID, &doc.Source, &doc.Title, &contentType, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, coreerrors.FileNotFound(fmt.Sprintf("document %d not found", id), err)
		}
		return nil, coreerrors.Wrap(coreerrors.ErrCodeInternal, err)
	}
	doc.ContentType = ContentType(contentType)
	doc.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return doc, nil
}

func (s *SQLiteStore) GetChunk(ctx context.Context, id int64) (*Chunk, error) {
	chunks, err := s.GetChunks(ctx, []int64{id})
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, coreerrors.FileNotFound(fmt.Sprintf("chunk %d not found", id), nil)
	}
	return chunks[0], nil
}

// GetChunks fetches chunks in the order the caller's ids were given, which
// matters for C8's "preserve neighbour order" hydration step.
func (s *SQLiteStore) GetChunks(ctx context.Context, ids []int64) ([]*Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(
		`SELECT id, document_id, content, chunk_index, token_count, embedding_id, content_type, metadata, created_at
		 FROM chunks WHERE id IN (%s)`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.ErrCodeInternal, err)
	}
	defer rows.Close()

	byID := make(map[int64]*Chunk, len(ids))
	for rows.Next() {
		c := &Chunk{}
		var createdAt, metaJSON, contentType string
		var metaNull sql.NullString
		if err := rows.Scan(&c.ID, &c.DocumentID, &c.Content, &c.ChunkIndex, &c.TokenCount,
			&c.EmbeddingID, &contentType, &metaNull, &createdAt); err != nil {
			return nil, coreerrors.Wrap(coreerrors.ErrCodeInternal, err)
		}
		c.ContentType = ContentType(contentType)
		c.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if metaNull.Valid {
			metaJSON = metaNull.String
			c.Metadata, err = unmarshalMetadata(metaJSON)
			if err != nil {
				return nil, coreerrors.Wrap(coreerrors.ErrCodeInternal, err)
			}
		}
		byID[c.ID] = c
	}
	if err := rows.Err(); err != nil {
		return nil, coreerrors.Wrap(coreerrors.ErrCodeInternal, err)
	}

	out := make([]*Chunk, 0, len(ids))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *SQLiteStore) GetContentItem(ctx context.Context, id string) (*ContentItem, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, mime_type, file_size, storage_path, storage_type, created_at
		 FROM content_items WHERE id = ?`, id)
	item := &ContentItem{}
	var createdAt, storageType string
	if err := row.Scan(&item.ID, &item.DisplayName, &item.MimeType, &item.FileSize,
		&item.StoragePath, &storageType, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, coreerrors.ContentNotFound(id)
		}
		return nil, coreerrors.Wrap(coreerrors.ErrCodeInternal, err)
	}
	item.StorageType = StorageType(storageType)
	item.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return item, nil
}

// SaveContentItem inserts a ContentItem, no-op if one with the same
// hash-derived id already exists (deduplication per spec.md §3).
func (s *SQLiteStore) SaveContentItem(ctx context.Context, item *ContentItem) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO content_items (id, display_name, mime_type, file_size, storage_path, storage_type, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.DisplayName, item.MimeType, item.FileSize, item.StoragePath, string(item.StorageType),
		now.Format(time.RFC3339Nano))
	if err != nil {
		return coreerrors.Wrap(coreerrors.ErrCodeInternal, fmt.Errorf("save content item: %w", err))
	}
	return nil
}

// DeleteUnreferencedContentItems removes ContentItems no Chunk's metadata
// references, implementing the "best-effort GC" lifecycle rule (spec.md §3).
// Chunks do not carry a content_item_id column directly; a ContentItem
// counts as referenced when some chunk's metadata holds its id under
// "content_id". The ingestion coordinator neither saves ContentItems nor
// sets that metadata key.
func (s *SQLiteStore) DeleteUnreferencedContentItems(ctx context.Context) (int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM content_items`)
	if err != nil {
		return 0, coreerrors.Wrap(coreerrors.ErrCodeInternal, err)
	}
	var allIDs []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, coreerrors.Wrap(coreerrors.ErrCodeInternal, err)
		}
		allIDs = append(allIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, coreerrors.Wrap(coreerrors.ErrCodeInternal, err)
	}

	referenced, err := s.referencedContentIDs(ctx)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, id := range allIDs {
		if referenced[id] {
			continue
		}
		if _, err := s.db.ExecContext(ctx, `DELETE FROM content_items WHERE id = ?`, id); err != nil {
			return removed, coreerrors.Wrap(coreerrors.ErrCodeInternal, err)
		}
		removed++
	}
	return removed, nil
}

func (s *SQLiteStore) referencedContentIDs(ctx context.Context) (map[string]bool, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT metadata FROM chunks WHERE metadata IS NOT NULL`)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.ErrCodeInternal, err)
	}
	defer rows.Close()

	referenced := make(map[string]bool)
	for rows.Next() {
		var metaJSON string
		if err := rows.Scan(&metaJSON); err != nil {
			return nil, coreerrors.Wrap(coreerrors.ErrCodeInternal, err)
		}
		meta, err := unmarshalMetadata(metaJSON)
		if err != nil {
			continue
		}
		if id, ok := meta["content_id"]; ok {
			referenced[id] = true
		}
	}
	return referenced, rows.Err()
}

func (s *SQLiteStore) GetSystemInfo(ctx context.Context) (*SystemInfo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT mode, model_name, model_type, model_dimensions, supported_content_types, created_at
		 FROM system_info WHERE id = 1`)
	info := &SystemInfo{}
	var mode, modelType, supported, createdAt string
	if err := row.Scan(&mode, &info.ModelName, &modelType, &info.ModelDimensions, &supported, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, coreerrors.Wrap(coreerrors.ErrCodeInternal, err)
	}
	info.Mode = Mode(mode)
	info.ModelType = ModelType(modelType)
	info.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	for _, ct := range strings.Split(supported, ",") {
		if ct != "" {
			info.SupportedContentTypes = append(info.SupportedContentTypes, ContentType(ct))
		}
	}
	return info, nil
}

func (s *SQLiteStore) WriteSystemInfo(ctx context.Context, info *SystemInfo) error {
	existing, err := s.GetSystemInfo(ctx)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.Equal(*info) {
			return nil
		}
		return coreerrors.CommitmentExists(fmt.Sprintf(
			"store is already committed to mode=%s model=%s dims=%d",
			existing.Mode, existing.ModelName, existing.ModelDimensions))
	}

	supportedCT := make([]string, len(info.SupportedContentTypes))
	for i, ct := range info.SupportedContentTypes {
		supportedCT[i] = string(ct)
	}
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO system_info (id, mode, model_name, model_type, model_dimensions, supported_content_types, created_at)
		 VALUES (1, ?, ?, ?, ?, ?, ?)`,
		string(info.Mode), info.ModelName, string(info.ModelType), info.ModelDimensions,
		strings.Join(supportedCT, ","), now.Format(time.RFC3339Nano))
	if err != nil {
		return coreerrors.Wrap(coreerrors.ErrCodeInternal, fmt.Errorf("write system info: %w", err))
	}
	info.CreatedAt = now
	return nil
}

func (s *SQLiteStore) ResetSystemInfo(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM system_info WHERE id = 1`)
	if err != nil {
		return coreerrors.Wrap(coreerrors.ErrCodeInternal, err)
	}
	return nil
}

func (s *SQLiteStore) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ContentTypeDistribution: make(map[ContentType]int)}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&stats.TotalDocuments); err != nil {
		return nil, coreerrors.Wrap(coreerrors.ErrCodeInternal, err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&stats.TotalChunks); err != nil {
		return nil, coreerrors.Wrap(coreerrors.ErrCodeInternal, err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT content_type, COUNT(*) FROM chunks GROUP BY content_type`)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.ErrCodeInternal, err)
	}
	for rows.Next() {
		var ct string
		var count int
		if err := rows.Scan(&ct, &count); err != nil {
			rows.Close()
			return nil, coreerrors.Wrap(coreerrors.ErrCodeInternal, err)
		}
		stats.ContentTypeDistribution[ContentType(ct)] = count
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, coreerrors.Wrap(coreerrors.ErrCodeInternal, err)
	}

	info, err := s.GetSystemInfo(ctx)
	if err != nil {
		return nil, err
	}
	if info != nil {
		stats.Mode = info.Mode
		stats.ModelName = info.ModelName
		stats.ModelDimensions = info.ModelDimensions
	}

	return stats, nil
}

func (s *SQLiteStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return coreerrors.TransactionFailed(err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, table := range []string{"chunks", "documents", "content_items", "system_info"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return coreerrors.TransactionFailed(fmt.Errorf("clear %s: %w", table, err))
		}
	}
	if err := tx.Commit(); err != nil {
		return coreerrors.TransactionFailed(err)
	}
	return nil
}

func marshalMetadata(m map[string]string) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func unmarshalMetadata(data string) (map[string]string, error) {
	if data == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, err
	}
	return m, nil
}
