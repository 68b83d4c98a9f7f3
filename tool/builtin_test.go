package tool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/model"
	"github.com/hupe1980/researchmesh/search"
)

type fakeBackend struct {
	hits []search.ScoredChunk
	err  error
}

func (b *fakeBackend) Search(ctx context.Context, query, category string) ([]search.ScoredChunk, error) {
	return b.hits, b.err
}

func TestSearchTool(t *testing.T) {
	backend := &fakeBackend{hits: []search.ScoredChunk{
		{Name: "doc-a", Chunk: "泵密封圈老化会导致泄漏", Score: 0.12},
	}}
	lt := NewLocalTransport(NewSearchTool(backend))

	out, err := lt.CallTool(context.Background(), SearchTool, map[string]any{
		"query":    "泵故障",
		"category": "technical-troubleshooting",
	}, time.Second)
	require.NoError(t, err)

	chunks := ParseSearchChunks(out)
	assert.Equal(t, []string{"泵密封圈老化会导致泄漏"}, chunks)
}

func TestSearchTool_EmptyQuery(t *testing.T) {
	lt := NewLocalTransport(NewSearchTool(&fakeBackend{}))

	out, err := lt.CallTool(context.Background(), SearchTool, map[string]any{"query": "  "}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestConcludeTool(t *testing.T) {
	m := model.NewMockModel("conclusion")
	m.SetFallback("<think>归纳要点</think>\n结论：更换密封圈")
	lt := NewLocalTransport(NewConcludeTool(m))

	out, err := lt.CallTool(context.Background(), ConcludeTool, map[string]any{
		"query":      "如何处理泄漏",
		"doc_chunks": []string{"chunk"},
	}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "结论：更换密封圈", out)
}

func TestConcludeTool_RequiresChunks(t *testing.T) {
	lt := NewLocalTransport(NewConcludeTool(model.NewMockModel("conclusion")))

	_, err := lt.CallTool(context.Background(), ConcludeTool, map[string]any{"query": "q"}, time.Second)
	require.Error(t, err)
	var terr *ToolError
	assert.ErrorAs(t, err, &terr)
}
