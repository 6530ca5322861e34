// Package vectorindex implements the on-disk binary format for the ANN
// index: a fixed header, a metadata block, and a length-prefixed section
// of vector records. Owning the format (rather than delegating to the
// HNSW library's own serializer) makes loading deterministic, portable,
// and streamable, independent of the in-memory graph representation the
// vector worker builds from it.
package vectorindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	coreerrors "github.com/Aman-CERP/ragcore/internal/errors"
)

// Magic identifies a ragcore vector-index file.
var Magic = [4]byte{'R', 'L', 'V', 'I'}

// FormatVersion is the current on-disk format version. A mismatch on
// load is fatal: the caller must rebuild the index.
const FormatVersion uint32 = 1

// Header is the fixed-size metadata block preceding the vector records.
type Header struct {
	Dimensions     uint32
	MaxElements    uint32
	M              uint32
	EfConstruction uint32
	Seed           uint32
	CurrentSize    uint64
}

// Record is a single vector entry: the id referencing the owning
// Chunk's integer id in the relational store, and its embedding vector.
type Record struct {
	ID     uint64
	Vector []float32
}

// Save atomically writes header and records to path (write temp file,
// then rename), so a reader never observes a partially-written index.
func Save(path string, header Header, records []Record) error {
	header.CurrentSize = uint64(len(records))

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return coreerrors.Wrap(coreerrors.ErrCodeFileNotFound, fmt.Errorf("create index directory %s: %w", dir, err))
		}
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return coreerrors.Wrap(coreerrors.ErrCodeFileNotFound, fmt.Errorf("create temp index file: %w", err))
	}

	w := bufio.NewWriter(f)
	if err := writeAll(w, header, records); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return coreerrors.Wrap(coreerrors.ErrCodeInternal, fmt.Errorf("write index: %w", err))
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return coreerrors.Wrap(coreerrors.ErrCodeInternal, fmt.Errorf("flush index: %w", err))
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return coreerrors.Wrap(coreerrors.ErrCodeInternal, fmt.Errorf("close index file: %w", err))
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return coreerrors.Wrap(coreerrors.ErrCodeInternal, fmt.Errorf("rename index into place: %w", err))
	}
	return nil
}

func writeAll(w io.Writer, header Header, records []Record) error {
	if _, err := w.Write(Magic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, FormatVersion); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, header.Dimensions); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, header.MaxElements); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, header.M); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, header.EfConstruction); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, header.Seed); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, header.CurrentSize); err != nil {
		return err
	}
	for _, rec := range records {
		if uint32(len(rec.Vector)) != header.Dimensions {
			return fmt.Errorf("record %d has %d dimensions, header declares %d", rec.ID, len(rec.Vector), header.Dimensions)
		}
		if err := binary.Write(w, binary.LittleEndian, rec.ID); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, rec.Vector); err != nil {
			return err
		}
	}
	return nil
}

// Load reads header and records from path. A magic mismatch or version
// mismatch is reported as an IndexVersionMismatch, fatal to the caller
// ("rebuild required").
func Load(path string) (Header, []Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Header{}, nil, coreerrors.FileNotFound(fmt.Sprintf("index file not found: %s", path), err)
		}
		return Header{}, nil, coreerrors.Wrap(coreerrors.ErrCodeFileNotFound, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return Header{}, nil, coreerrors.IndexVersionMismatch(fmt.Sprintf("truncated index header: %s", path))
	}
	if magic != Magic {
		return Header{}, nil, coreerrors.IndexVersionMismatch(fmt.Sprintf("not a ragcore index file: %s", path))
	}

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return Header{}, nil, coreerrors.IndexVersionMismatch(fmt.Sprintf("truncated index header: %s", path))
	}
	if version != FormatVersion {
		return Header{}, nil, coreerrors.IndexVersionMismatch(
			fmt.Sprintf("index format version %d, this build understands %d", version, FormatVersion))
	}

	var header Header
	for _, field := range []*uint32{&header.Dimensions, &header.MaxElements, &header.M, &header.EfConstruction, &header.Seed} {
		if err := binary.Read(r, binary.LittleEndian, field); err != nil {
			return Header{}, nil, coreerrors.Wrap(coreerrors.ErrCodeInternal, fmt.Errorf("read index header: %w", err))
		}
	}
	if err := binary.Read(r, binary.LittleEndian, &header.CurrentSize); err != nil {
		return Header{}, nil, coreerrors.Wrap(coreerrors.ErrCodeInternal, fmt.Errorf("read index record count: %w", err))
	}

	records := make([]Record, 0, header.CurrentSize)
	for i := uint64(0); i < header.CurrentSize; i++ {
		var rec Record
		if err := binary.Read(r, binary.LittleEndian, &rec.ID); err != nil {
			return Header{}, nil, coreerrors.Wrap(coreerrors.ErrCodeInternal, fmt.Errorf("read record %d id: %w", i, err))
		}
		rec.Vector = make([]float32, header.Dimensions)
		if err := binary.Read(r, binary.LittleEndian, rec.Vector); err != nil {
			return Header{}, nil, coreerrors.Wrap(coreerrors.ErrCodeInternal, fmt.Errorf("read record %d vector: %w", i, err))
		}
		records = append(records, rec)
	}

	return header, records, nil
}

// Exists reports whether path names an existing index file, without
// validating its contents.
func Exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
