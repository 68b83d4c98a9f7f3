package tool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/core"
)

// flakyTransport fails a configurable number of calls before succeeding.
type flakyTransport struct {
	mu         sync.Mutex
	failures   int
	failWith   error
	reconnects int
	calls      []map[string]any
	tools      []Info
}

func (t *flakyTransport) ListTools(ctx context.Context) ([]Info, error) {
	return t.tools, nil
}

func (t *flakyTransport) CallTool(ctx context.Context, name string, args map[string]any, timeout time.Duration) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.calls = append(t.calls, args)
	if t.failures > 0 {
		t.failures--
		return "", t.failWith
	}
	return "ok", nil
}

func (t *flakyTransport) Reconnect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.reconnects++
	return nil
}

func (t *flakyTransport) Close() error { return nil }

func searchSchema() []Info {
	return []Info{
		{
			Name: SearchTool,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string"},
				},
			},
		},
		{
			Name: ConcludeTool,
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string"},
				},
			},
		},
	}
}

func fastRetries(o *DispatcherOptions) {
	o.RetryBackoff = time.Millisecond
	o.CallTimeout = time.Second
}

func TestDispatcher_PrunesUndeclaredArguments(t *testing.T) {
	transport := &flakyTransport{tools: searchSchema()}
	d := NewDispatcher(transport, fastRetries)

	sc := core.NewSessionContext()
	sc.Category = "technical-troubleshooting"

	_, err := d.Dispatch(context.Background(), core.ToolCall{
		Name: SearchTool,
		Args: map[string]any{
			"query":        "pump",
			"hallucinated": "value",
		},
	}, sc)
	require.NoError(t, err)

	require.Len(t, transport.calls, 1)
	args := transport.calls[0]
	assert.Equal(t, "pump", args["query"])
	assert.Equal(t, "technical-troubleshooting", args["category"])
	assert.NotContains(t, args, "hallucinated")
}

func TestDispatcher_InjectsConcludeArguments(t *testing.T) {
	transport := &flakyTransport{tools: searchSchema()}
	d := NewDispatcher(transport, fastRetries)

	sc := core.NewSessionContext()
	sc.AddMessage(core.NewUserMessage("如何排查泵故障"))
	sc.RelevantChunks = []string{"chunk one", "chunk two"}

	_, err := d.Dispatch(context.Background(), core.ToolCall{Name: ConcludeTool}, sc)
	require.NoError(t, err)

	args := transport.calls[0]
	assert.Equal(t, "如何排查泵故障", args["query"])
	assert.Equal(t, []string{"chunk one", "chunk two"}, args["doc_chunks"])
}

func TestDispatcher_ModelSuppliedQueryWins(t *testing.T) {
	transport := &flakyTransport{tools: searchSchema()}
	d := NewDispatcher(transport, fastRetries)

	sc := core.NewSessionContext()
	sc.AddMessage(core.NewUserMessage("original question"))

	_, err := d.Dispatch(context.Background(), core.ToolCall{
		Name: ConcludeTool,
		Args: map[string]any{"query": "refined question"},
	}, sc)
	require.NoError(t, err)
	assert.Equal(t, "refined question", transport.calls[0]["query"])
}

func TestDispatcher_RetriesOnTimeout(t *testing.T) {
	transport := &flakyTransport{
		tools:    searchSchema(),
		failures: 2,
		failWith: NewToolError(SearchTool, "call timed out", CodeTimeout),
	}
	d := NewDispatcher(transport, fastRetries)

	res, err := d.Dispatch(context.Background(), core.ToolCall{
		Name: SearchTool,
		Args: map[string]any{"query": "q"},
	}, core.NewSessionContext())
	require.NoError(t, err)
	assert.True(t, res.IsSearch)
	assert.Len(t, transport.calls, 3)
}

func TestDispatcher_ReconnectsOnDisconnection(t *testing.T) {
	transport := &flakyTransport{
		tools:    searchSchema(),
		failures: 1,
		failWith: NewToolError(SearchTool, "client is not connected", CodeNotConnected),
	}
	d := NewDispatcher(transport, fastRetries)

	_, err := d.Dispatch(context.Background(), core.ToolCall{
		Name: SearchTool,
		Args: map[string]any{"query": "q"},
	}, core.NewSessionContext())
	require.NoError(t, err)
	assert.Equal(t, 1, transport.reconnects)
}

func TestDispatcher_ExhaustedRetriesSurfaceError(t *testing.T) {
	transport := &flakyTransport{
		tools:    searchSchema(),
		failures: 99,
		failWith: NewToolError(SearchTool, "call timed out", CodeTimeout),
	}
	d := NewDispatcher(transport, fastRetries)

	_, err := d.Dispatch(context.Background(), core.ToolCall{
		Name: SearchTool,
		Args: map[string]any{"query": "q"},
	}, core.NewSessionContext())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Len(t, transport.calls, 3)
}

func TestDispatcher_NonRetryableErrorFailsFast(t *testing.T) {
	transport := &flakyTransport{
		tools:    searchSchema(),
		failures: 99,
		failWith: NewToolError(SearchTool, "schema validation failed", CodeExecution),
	}
	d := NewDispatcher(transport, fastRetries)

	_, err := d.Dispatch(context.Background(), core.ToolCall{
		Name: SearchTool,
		Args: map[string]any{"query": "q"},
	}, core.NewSessionContext())
	require.Error(t, err)
	assert.Len(t, transport.calls, 1)
}

func TestParseSearchChunks(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "array of hits",
			text: `[{"doc_name":"a","chunk":"first"},{"doc_name":"b","chunk":"second"}]`,
			want: []string{"first", "second"},
		},
		{
			name: "chunk list inside hit",
			text: `[{"chunk":["one","two"]}]`,
			want: []string{"one", "two"},
		},
		{
			name: "single object",
			text: `{"chunk":"only"}`,
			want: []string{"only"},
		},
		{
			name: "invalid json kept as raw chunk",
			text: "没有检索到相关文档",
			want: []string{"没有检索到相关文档"},
		},
		{
			name: "empty",
			text: "   ",
			want: nil,
		},
		{
			name: "valid json without chunks",
			text: `[{"doc_name":"a"}]`,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseSearchChunks(tt.text))
		})
	}
}

func TestLocalTransport_Lifecycle(t *testing.T) {
	lt := NewLocalTransport(LocalTool{
		Info: Info{Name: "echo"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			s, _ := args["text"].(string)
			return s, nil
		},
	})

	out, err := lt.CallTool(context.Background(), "echo", map[string]any{"text": "hi"}, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "hi", out)

	require.NoError(t, lt.Close())
	_, err = lt.CallTool(context.Background(), "echo", nil, time.Second)
	var terr *ToolError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, CodeNotConnected, terr.Code)

	require.NoError(t, lt.Reconnect(context.Background()))
	_, err = lt.CallTool(context.Background(), "echo", nil, time.Second)
	assert.NoError(t, err)
}

func TestLocalTransport_Timeout(t *testing.T) {
	lt := NewLocalTransport(LocalTool{
		Info: Info{Name: "slow"},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(5 * time.Second):
				return "late", nil
			}
		},
	})

	_, err := lt.CallTool(context.Background(), "slow", nil, 20*time.Millisecond)
	var terr *ToolError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, CodeTimeout, terr.Code)
}

func TestLocalTransport_UnknownTool(t *testing.T) {
	lt := NewLocalTransport()
	_, err := lt.CallTool(context.Background(), "missing", nil, time.Second)
	var terr *ToolError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, CodeNotFound, terr.Code)
}
