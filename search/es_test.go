package search

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticEmbedder struct {
	vector []float64
	err    error
}

func (e *staticEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	return e.vector, e.err
}

func esResponse(hits ...[3]string) map[string]any {
	out := make([]map[string]any, 0, len(hits))
	for _, h := range hits {
		out = append(out, map[string]any{
			"_id":     h[0],
			"_score":  1.0,
			"_source": map[string]any{"doc_name": h[1], "chunk": h[2]},
		})
	}
	return map[string]any{"hits": map[string]any{"hits": out}}
}

func TestRRFFuse(t *testing.T) {
	vector := []esHit{
		{id: "a", name: "doc-a", chunk: "chunk a"},
		{id: "b", name: "doc-b", chunk: "chunk b"},
	}
	text := []esHit{
		{id: "b", name: "doc-b", chunk: "chunk b"},
		{id: "c", name: "doc-c", chunk: "chunk c"},
	}

	fused := rrfFuse(vector, text, 10, 15)
	require.Len(t, fused, 3)

	// b appears in both legs: 1/(10+2) + 1/(10+1) > a's 1/(10+1).
	assert.Equal(t, "doc-b", fused[0].Name)
	assert.Equal(t, "doc-a", fused[1].Name)
	assert.Equal(t, "doc-c", fused[2].Name)
	assert.InDelta(t, 1.0/12+1.0/11, fused[0].Score, 1e-9)
}

func TestRRFFuse_TopN(t *testing.T) {
	var hits []esHit
	for i := 0; i < 30; i++ {
		hits = append(hits, esHit{id: fmt.Sprintf("doc-%d", i)})
	}
	assert.Len(t, rrfFuse(hits, nil, 10, 15), 15)
}

func TestESBackend_HybridSearch(t *testing.T) {
	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		if _, isVector := body["knn"]; isVector {
			requests = append(requests, "vector:"+r.URL.Path)
			_ = json.NewEncoder(w).Encode(esResponse(
				[3]string{"a", "doc-a", "vector chunk"},
			))
			return
		}
		requests = append(requests, "text:"+r.URL.Path)
		_ = json.NewEncoder(w).Encode(esResponse(
			[3]string{"a", "doc-a", "vector chunk"},
			[3]string{"b", "doc-b", "text chunk"},
		))
	}))
	defer srv.Close()

	backend := NewESBackend(srv.URL, &staticEmbedder{vector: []float64{0.1, 0.2}}, func(o *ESOptions) {
		o.Index = "documents"
		o.IndexMapping = map[string]string{"technical-troubleshooting": "tech_docs"}
	})

	chunks, err := backend.Search(context.Background(), "pump failure", "technical-troubleshooting")
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "doc-a", chunks[0].Name)
	assert.Equal(t, []string{"vector:/tech_docs/_search", "text:/tech_docs/_search"}, requests)
}

func TestESBackend_DegradesWhenEmbedderFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(esResponse([3]string{"b", "doc-b", "text chunk"}))
	}))
	defer srv.Close()

	backend := NewESBackend(srv.URL, &staticEmbedder{err: fmt.Errorf("embedding service down")})

	chunks, err := backend.Search(context.Background(), "pump failure", "")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "text chunk", chunks[0].Chunk)
}

func TestESBackend_EmptyQuery(t *testing.T) {
	backend := NewESBackend("http://127.0.0.1:1", nil)
	chunks, err := backend.Search(context.Background(), "   ", "")
	assert.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestParseEmbedding_Formats(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []float64
	}{
		{name: "success wrapper", body: `{"success":true,"data":[[0.1,0.2]]}`, want: []float64{0.1, 0.2}},
		{name: "openai style", body: `{"data":[{"embedding":[0.3,0.4]}]}`, want: []float64{0.3, 0.4}},
		{name: "bare array", body: `[[0.5]]`, want: []float64{0.5}},
		{name: "garbage", body: `{"error":"nope"}`, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseEmbedding([]byte(tt.body)))
		})
	}
}
