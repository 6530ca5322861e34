// Package content implements the content-addressed store: deduplicated
// storage of ingested bytes, addressed by the SHA-256 hash of their
// content, with a format-adapting retrieval API.
package content

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	coreerrors "github.com/Aman-CERP/ragcore/internal/errors"
)

// StorageType mirrors internal/store's StorageType values.
type StorageType string

const (
	StorageTypeFilesystem StorageType = "filesystem"
	StorageTypeContentDir StorageType = "content_dir"
)

// streamThreshold is the file size above which base64 retrieval streams
// through an encoder instead of loading the whole file into memory.
const streamThreshold = 10 * 1024 * 1024 // 10 MiB

// batchConcurrency bounds in-flight I/O for BatchGet.
const batchConcurrency = 15

// Put is the outcome of storing either a filesystem path or a byte buffer.
type Put struct {
	ID          string
	StorageType StorageType
	StoragePath string
	FileSize    int64
}

// Store manages the content directory fan-out layout
// <root>/<aa>/<bb>/<hash>.<ext>.
type Store struct {
	root string
}

// New creates a content store rooted at dir. The directory is created
// lazily on first write.
func New(dir string) *Store {
	return &Store{root: dir}
}

// PutPath hashes a filesystem path in place: the bytes are hashed but
// never copied, and the returned Put names the original path as the
// storage location. A second call with identical bytes at a different
// path yields the same content id with that other path; the Store keeps
// no record of either call.
func (s *Store) PutPath(path string) (Put, error) {
	f, err := os.Open(path)
	if err != nil {
		return Put{}, coreerrors.FileNotFound(fmt.Sprintf("content source not found: %s", path), err)
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return Put{}, coreerrors.InternalError(fmt.Sprintf("hash content source: %s", path), err)
	}

	return Put{
		ID:          hex.EncodeToString(h.Sum(nil)),
		StorageType: StorageTypeFilesystem,
		StoragePath: path,
		FileSize:    size,
	}, nil
}

// PutBytes hashes data and, if an item with that hash is not already
// present in the content directory, copies it into the fan-out layout.
// Dedup is last-writer-wins on identical bytes: a racing concurrent
// write of the same content is harmless because the bytes are identical.
func (s *Store) PutBytes(data []byte, ext string) (Put, error) {
	sum := sha256.Sum256(data)
	id := hex.EncodeToString(sum[:])
	path := s.fanOutPath(id, ext)

	if _, err := os.Stat(path); err == nil {
		return Put{ID: id, StorageType: StorageTypeContentDir, StoragePath: path, FileSize: int64(len(data))}, nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Put{}, coreerrors.InternalError(fmt.Sprintf("create content directory: %s", dir), err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return Put{}, coreerrors.InternalError(fmt.Sprintf("write content: %s", path), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return Put{}, coreerrors.InternalError(fmt.Sprintf("place content: %s", path), err)
	}

	return Put{ID: id, StorageType: StorageTypeContentDir, StoragePath: path, FileSize: int64(len(data))}, nil
}

func (s *Store) fanOutPath(id, ext string) string {
	aa, bb := id[0:2], id[2:4]
	name := id
	if ext != "" {
		name += "." + ext
	}
	return filepath.Join(s.root, aa, bb, name)
}

// GetFile adapts retrieval for local consumers: returns the path
// directly, whether on the filesystem or inside the content directory.
func (s *Store) GetFile(storagePath string) (string, error) {
	if _, err := os.Stat(storagePath); err != nil {
		if os.IsNotExist(err) {
			return "", coreerrors.ContentNotFound(storagePath)
		}
		return "", coreerrors.InternalError(fmt.Sprintf("stat content: %s", storagePath), err)
	}
	return storagePath, nil
}

// GetBase64 adapts retrieval for remote consumers. Files larger than
// streamThreshold are streamed through a base64 encoder to bound memory;
// smaller files are encoded directly.
func (s *Store) GetBase64(storagePath string) (string, error) {
	info, err := os.Stat(storagePath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", coreerrors.ContentNotFound(storagePath)
		}
		return "", coreerrors.InternalError(fmt.Sprintf("stat content: %s", storagePath), err)
	}

	f, err := os.Open(storagePath)
	if err != nil {
		return "", coreerrors.InternalError(fmt.Sprintf("open content: %s", storagePath), err)
	}
	defer f.Close()

	if info.Size() <= streamThreshold {
		data, err := io.ReadAll(f)
		if err != nil {
			return "", coreerrors.InternalError(fmt.Sprintf("read content: %s", storagePath), err)
		}
		return base64.StdEncoding.EncodeToString(data), nil
	}

	var sb strings.Builder
	enc := base64.NewEncoder(base64.StdEncoding, &sb)
	if _, err := io.Copy(enc, f); err != nil {
		return "", coreerrors.InternalError(fmt.Sprintf("stream content: %s", storagePath), err)
	}
	if err := enc.Close(); err != nil {
		return "", coreerrors.InternalError(fmt.Sprintf("finalize content stream: %s", storagePath), err)
	}
	return sb.String(), nil
}

// GetRequest is one item of a BatchGet call.
type GetRequest struct {
	ID          string
	StoragePath string
	Format      string // "file" or "base64"
}

// GetResult independently succeeds or fails per request; a single
// failure never aborts the rest of the batch.
type GetResult struct {
	ID    string
	Value string
	Err   error
}

// BatchGet retrieves N requests concurrently, bounded to
// batchConcurrency in-flight I/Os, and returns N results in the same
// order as the requests.
func (s *Store) BatchGet(ctx context.Context, requests []GetRequest) []GetResult {
	results := make([]GetResult, len(requests))

	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)

	for i, req := range requests {
		i, req := i, req
		g.Go(func() error {
			var value string
			var err error
			switch req.Format {
			case "base64":
				value, err = s.GetBase64(req.StoragePath)
			default:
				value, err = s.GetFile(req.StoragePath)
			}
			results[i] = GetResult{ID: req.ID, Value: value, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results
}
