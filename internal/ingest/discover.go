package ingest

import (
	"os"
	"path/filepath"
	"strings"

	coreerrors "github.com/Aman-CERP/ragcore/internal/errors"
)

// resolve turns a Source into the flat list of items it contributes:
// a directory is walked recursively filtering by extension allow-list,
// a file is itself, and a buffer carries its bytes as-is.
func resolve(src Source, extensions map[string]bool) ([]item, error) {
	switch src.Kind {
	case SourceBuffer:
		if len(src.Buffer) == 0 {
			return nil, coreerrors.InvalidArguments("buffer source has no bytes", nil)
		}
		isImage := strings.HasPrefix(src.MimeType, "image/") || DefaultImageExtensions[strings.ToLower(filepath.Ext(src.DisplayName))]
		return []item{{data: src.Buffer, displayName: src.DisplayName, mimeType: src.MimeType, isImage: isImage}}, nil

	case SourceFile:
		data, err := os.ReadFile(src.Path)
		if err != nil {
			return nil, coreerrors.FileNotFound(src.Path, err)
		}
		isImage := DefaultImageExtensions[strings.ToLower(filepath.Ext(src.Path))]
		return []item{{path: src.Path, data: data, displayName: filepath.Base(src.Path), isImage: isImage}}, nil

	case SourceDir:
		return discoverDir(src.Path, extensions)

	default:
		return nil, coreerrors.InvalidArguments("unknown source kind", nil)
	}
}

func discoverDir(root string, extensions map[string]bool) ([]item, error) {
	if extensions == nil {
		extensions = DefaultExtensions
	}

	var items []item
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		isImage := DefaultImageExtensions[ext]
		if !extensions[ext] && !isImage {
			return nil
		}
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			// Unreadable file: counted as a parse-stage skip by the caller.
			items = append(items, item{path: path, data: nil, displayName: filepath.Base(path), isImage: isImage})
			return nil
		}
		items = append(items, item{path: path, data: data, displayName: filepath.Base(path), isImage: isImage})
		return nil
	})
	if err != nil {
		return nil, coreerrors.FileNotFound(root, err)
	}
	return items, nil
}
