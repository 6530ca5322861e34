// Package validation checks CLI-facing caller input before it reaches
// the search and ingest coordinators, surfacing failures as
// InvalidArguments errors with a remediation suggestion rather than
// letting a coordinator fail deeper with a less specific message.
package validation

import (
	"fmt"
	"os"
	"strings"

	coreerrors "github.com/Aman-CERP/ragcore/internal/errors"
	"github.com/Aman-CERP/ragcore/internal/search"
	"github.com/Aman-CERP/ragcore/internal/store"
)

// Query rejects an empty or all-whitespace search query.
func Query(query string) error {
	if strings.TrimSpace(query) == "" {
		return coreerrors.InvalidArguments("query must not be empty", nil).
			WithSuggestion("pass a non-empty search string")
	}
	return nil
}

// TopK rejects a non-positive result limit.
func TopK(topK int) error {
	if topK <= 0 {
		return coreerrors.InvalidArguments(
			fmt.Sprintf("limit must be a positive integer, got %d", topK), nil).
			WithSuggestion("pass --limit with a value of 1 or greater")
	}
	return nil
}

// SourcePath rejects an empty path or one that doesn't exist on disk.
func SourcePath(path string) error {
	if strings.TrimSpace(path) == "" {
		return coreerrors.InvalidArguments("source path must not be empty", nil).
			WithSuggestion("pass the file or directory to ingest as an argument")
	}
	if _, err := os.Stat(path); err != nil {
		return coreerrors.InvalidArguments(
			fmt.Sprintf("source path %q does not exist", path), err).
			WithSuggestion("check the path and try again")
	}
	return nil
}

// Mode rejects a mode string that isn't a known commitment mode.
func Mode(mode string) error {
	if mode == "" {
		return nil
	}
	switch store.Mode(mode) {
	case store.ModeText, store.ModeMultimodal:
		return nil
	default:
		return coreerrors.InvalidArguments(
			fmt.Sprintf("mode must be %q or %q, got %q", store.ModeText, store.ModeMultimodal, mode), nil).
			WithSuggestion("pass --mode text or --mode multimodal")
	}
}

// ContentTypeFilter rejects a filter string that isn't a known search filter.
func ContentTypeFilter(filter string) error {
	switch search.ContentTypeFilter(filter) {
	case search.FilterAll, search.FilterText, search.FilterImage, "":
		return nil
	default:
		return coreerrors.InvalidArguments(
			fmt.Sprintf("filter must be %q, %q, or %q, got %q",
				search.FilterAll, search.FilterText, search.FilterImage, filter), nil).
			WithSuggestion("pass --filter all, --filter text, or --filter image")
	}
}

// ContentID rejects an empty content identifier.
func ContentID(id string) error {
	if strings.TrimSpace(id) == "" {
		return coreerrors.InvalidArguments("content id must not be empty", nil).
			WithSuggestion("pass the content id returned by a prior search")
	}
	return nil
}
