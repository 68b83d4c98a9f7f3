package search

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// Embedder converts a query into a dense vector for kNN retrieval.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
}

// HTTPEmbedderOptions configure an HTTPEmbedder.
type HTTPEmbedderOptions struct {
	// Token is sent as a bearer Authorization header when non-empty.
	Token string
}

// HTTPEmbedder calls an online embedding service accepting
// {"texts": [...]} requests. It tolerates the three response shapes the
// service is known to emit.
type HTTPEmbedder struct {
	client *resty.Client
	url    string
}

// NewHTTPEmbedder creates an embedder against the given endpoint URL.
func NewHTTPEmbedder(url string, optFns ...func(o *HTTPEmbedderOptions)) *HTTPEmbedder {
	var opts HTTPEmbedderOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	client := resty.New().SetHeader("Content-Type", "application/json")
	if opts.Token != "" {
		client.SetAuthToken(opts.Token)
	}
	return &HTTPEmbedder{client: client, url: url}
}

// EmbedQuery implements Embedder.
func (e *HTTPEmbedder) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	resp, err := e.client.R().
		SetContext(ctx).
		SetBody(map[string]any{"texts": []string{text}}).
		Post(e.url)
	if err != nil {
		return nil, fmt.Errorf("search: embedding request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("search: embedding service returned %s", resp.Status())
	}

	vector := parseEmbedding(resp.Body())
	if len(vector) == 0 {
		return nil, fmt.Errorf("search: unexpected embedding response format")
	}
	return vector, nil
}

// parseEmbedding accepts {"success":true,"data":[[...]]},
// {"data":[{"embedding":[...]}]} and a bare top-level [[...]] body.
func parseEmbedding(body []byte) []float64 {
	root := gjson.ParseBytes(body)

	candidates := []gjson.Result{
		root.Get("data.0.embedding"),
		root.Get("data.0"),
		root.Get("0"),
	}
	for _, c := range candidates {
		if !c.IsArray() {
			continue
		}
		values := c.Array()
		if len(values) == 0 || !values[0].Exists() || values[0].Type != gjson.Number {
			continue
		}
		vector := make([]float64, len(values))
		for i, v := range values {
			vector[i] = v.Float()
		}
		return vector
	}
	return nil
}
