package search

import "context"

// ScoredChunk is one ranked retrieval hit.
type ScoredChunk struct {
	Name  string  `json:"doc_name"`
	Chunk string  `json:"chunk"`
	Score float64 `json:"score"`
}

// Backend is opaque ranked retrieval. An empty result is valid; the caller
// must not assume relevance beyond the ranking.
type Backend interface {
	Search(ctx context.Context, query, category string) ([]ScoredChunk, error)
}
