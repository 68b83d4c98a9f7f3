package search

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// ESOptions configure the Elasticsearch backend.
type ESOptions struct {
	// Index is the default search index; IndexMapping routes categories to
	// dedicated indices, falling back to Index.
	Index        string
	IndexMapping map[string]string

	// Auth is sent verbatim in the authorization header when non-empty.
	Auth    string
	Timeout time.Duration

	// SearchSize caps the fused result list; the candidate counts bound the
	// two retrieval legs feeding the fusion.
	SearchSize       int
	RRFK             int
	VectorCandidates int
	TextCandidates   int
}

// ESBackend implements Backend with hybrid kNN + full-text retrieval and
// manual RRF fusion. A nil embedder degrades to full-text-only retrieval.
type ESBackend struct {
	client   *resty.Client
	embedder Embedder
	opts     ESOptions
}

// NewESBackend creates a backend against the given Elasticsearch endpoint.
func NewESBackend(endpoint string, embedder Embedder, optFns ...func(o *ESOptions)) *ESBackend {
	opts := ESOptions{
		Index:            "documents",
		Timeout:          60 * time.Second,
		SearchSize:       15,
		RRFK:             10,
		VectorCandidates: 20,
		TextCandidates:   20,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	client := resty.New().
		SetBaseURL(endpoint).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json")
	if opts.Auth != "" {
		client.SetHeader("Authorization", opts.Auth)
	}

	return &ESBackend{client: client, embedder: embedder, opts: opts}
}

// esHit is one raw hit of a single retrieval leg, in rank order.
type esHit struct {
	id    string
	name  string
	chunk string
}

// Search implements Backend. Failure of one retrieval leg degrades to the
// other; only both legs failing is an error.
func (b *ESBackend) Search(ctx context.Context, query, category string) ([]ScoredChunk, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	index := b.indexFor(category)

	var (
		vectorHits []esHit
		vectorErr  error
	)
	if b.embedder != nil {
		vectorHits, vectorErr = b.vectorSearch(ctx, index, query)
	}

	textHits, textErr := b.textSearch(ctx, index, query)

	if vectorErr != nil && textErr != nil {
		return nil, fmt.Errorf("search: hybrid retrieval failed: %w", textErr)
	}

	return rrfFuse(vectorHits, textHits, b.opts.RRFK, b.opts.SearchSize), nil
}

func (b *ESBackend) indexFor(category string) string {
	if idx, ok := b.opts.IndexMapping[category]; ok && idx != "" {
		return idx
	}
	return b.opts.Index
}

func (b *ESBackend) vectorSearch(ctx context.Context, index, query string) ([]esHit, error) {
	vector, err := b.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"knn": map[string]any{
			"field":          "embedding",
			"query_vector":   vector,
			"k":              b.opts.VectorCandidates,
			"num_candidates": b.opts.VectorCandidates * 3,
		},
		"_source": []string{"doc_name", "chunk"},
		"size":    b.opts.VectorCandidates,
	}
	return b.searchOnce(ctx, index, body)
}

func (b *ESBackend) textSearch(ctx context.Context, index, query string) ([]esHit, error) {
	body := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"must": []any{
					map[string]any{"match": map[string]any{"chunk": query}},
				},
			},
		},
		"_source": []string{"doc_name", "chunk"},
		"size":    b.opts.TextCandidates,
	}
	return b.searchOnce(ctx, index, body)
}

func (b *ESBackend) searchOnce(ctx context.Context, index string, body map[string]any) ([]esHit, error) {
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(body).
		Post(fmt.Sprintf("/%s/_search", index))
	if err != nil {
		return nil, fmt.Errorf("search: es request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("search: es returned %s", resp.Status())
	}

	var hits []esHit
	for _, hit := range gjson.GetBytes(resp.Body(), "hits.hits").Array() {
		hits = append(hits, esHit{
			id:    hit.Get("_id").String(),
			name:  hit.Get("_source.doc_name").String(),
			chunk: hit.Get("_source.chunk").String(),
		})
	}
	return hits, nil
}

// rrfFuse merges two rank-ordered hit lists with Reciprocal Rank Fusion:
// score(d) = Σ 1/(k + rank_i(d)), 1-based ranks, sorted descending and capped
// at topN.
func rrfFuse(vectorHits, textHits []esHit, k, topN int) []ScoredChunk {
	type fused struct {
		hit   esHit
		score float64
		seen  int
	}

	docs := make(map[string]*fused)
	order := 0
	accumulate := func(hits []esHit) {
		for rank, hit := range hits {
			f, ok := docs[hit.id]
			if !ok {
				f = &fused{hit: hit, seen: order}
				order++
				docs[hit.id] = f
			}
			f.score += 1.0 / float64(k+rank+1)
		}
	}
	accumulate(vectorHits)
	accumulate(textHits)

	merged := make([]*fused, 0, len(docs))
	for _, f := range docs {
		merged = append(merged, f)
	}
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].score != merged[j].score {
			return merged[i].score > merged[j].score
		}
		return merged[i].seen < merged[j].seen
	})

	if topN > 0 && len(merged) > topN {
		merged = merged[:topN]
	}
	out := make([]ScoredChunk, len(merged))
	for i, f := range merged {
		out[i] = ScoredChunk{Name: f.hit.name, Chunk: f.hit.chunk, Score: f.score}
	}
	return out
}
