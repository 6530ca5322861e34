// Package search implements the search coordinator: embed a query (or
// image), look up nearest neighbours in the vector worker, hydrate
// chunk rows from the relational store in neighbour order, optionally
// rerank, and apply a final content-type filter.
package search

import (
	"context"

	"github.com/Aman-CERP/ragcore/internal/store"
	"github.com/Aman-CERP/ragcore/internal/vectorworker"
)

// ContentTypeFilter selects which chunk content types a search
// returns.
type ContentTypeFilter string

const (
	FilterAll   ContentTypeFilter = "all"
	FilterText  ContentTypeFilter = "text"
	FilterImage ContentTypeFilter = "image"
)

// DefaultTopK is used when a caller leaves TopK unset.
const DefaultTopK = 10

// Options configures a single search call.
type Options struct {
	TopK              int
	Rerank            bool
	ContentTypeFilter ContentTypeFilter
}

func (o *Options) applyDefaults() {
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.ContentTypeFilter == "" {
		o.ContentTypeFilter = FilterAll
	}
}

// Result is one hydrated, scored chunk returned by a search.
type Result struct {
	Chunk *store.Chunk
	Score float64
}

// Warning is attached to a search's metadata when the coordinator
// silently adjusted the caller's request (e.g. disabling rerank for
// an image query).
type Warning string

// Response is the full outcome of a search call.
type Response struct {
	Results  []Result
	Warnings []Warning
}

// vectorSearcher is the subset of the vector worker client the
// coordinator needs.
type vectorSearcher interface {
	Search(ctx context.Context, query []float32, k int) (vectorworker.SearchResult, error)
}
