// Package rerank implements cross-encoder reranking of candidate text
// chunks: a second, more expensive pass that jointly scores a query
// against each candidate's full text instead of comparing bi-encoder
// vectors.
package rerank

import (
	"context"
	"sort"
)

// Candidate is one chunk eligible for reranking, keyed by its store id
// so the caller can map results back without re-threading text.
type Candidate struct {
	ID   int64
	Text string
}

// Scored is a Candidate with its cross-encoder relevance score,
// higher is more relevant.
type Scored struct {
	Candidate
	Score float64
}

// Reranker scores and reorders text candidates by relevance to a
// query. Only ever applied to text; image queries/chunks never reach
// it.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate) ([]Scored, error)
	Available(ctx context.Context) bool
	Close() error
}

// NoOpReranker preserves input order, used when no reranker is
// configured or the backing model failed to load.
type NoOpReranker struct{}

// Rerank implements Reranker by returning candidates in their
// original order with a descending synthetic score.
func (NoOpReranker) Rerank(_ context.Context, _ string, candidates []Candidate) ([]Scored, error) {
	out := make([]Scored, len(candidates))
	for i, c := range candidates {
		out[i] = Scored{Candidate: c, Score: 1.0 - float64(i)*0.001}
	}
	return out, nil
}

// Available always reports true for NoOpReranker.
func (NoOpReranker) Available(context.Context) bool { return true }

// Close is a no-op.
func (NoOpReranker) Close() error { return nil }

var _ Reranker = NoOpReranker{}

// sortByScoreDesc sorts scored results by descending score, breaking
// ties by the lower candidate id to match the ANN tie-breaking rule.
func sortByScoreDesc(results []Scored) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}
