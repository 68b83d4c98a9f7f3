// Package search provides ranked document retrieval for the search tool.
//
// The Elasticsearch backend runs a hybrid query: kNN vector retrieval over an
// embedding field plus BM25 full-text matching, fused with manual Reciprocal
// Rank Fusion. Relevance judgment happens downstream in the filter package
// and is independent of this ranking.
package search
