package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tidwall/gjson"

	"github.com/hupe1980/researchmesh/core"
	"github.com/hupe1980/researchmesh/logging"
)

// DispatcherOptions configure dispatch behavior.
type DispatcherOptions struct {
	// CallTimeout bounds one tool invocation.
	CallTimeout time.Duration

	// MaxRetries caps attempts on timeout or transport disconnection.
	MaxRetries int

	// RetryBackoff is multiplied by the attempt number between retries.
	RetryBackoff time.Duration

	Logger logging.Logger
}

// Dispatcher sanitizes arguments, injects engine-supplied values and calls
// the transport with retry. Safe for concurrent use across branches.
type Dispatcher struct {
	transport Transport
	opts      DispatcherOptions

	mu          sync.Mutex
	schemaCache map[string]map[string]any
}

// NewDispatcher creates a dispatcher over the given transport.
func NewDispatcher(transport Transport, optFns ...func(o *DispatcherOptions)) *Dispatcher {
	opts := DispatcherOptions{
		CallTimeout:  60 * time.Second,
		MaxRetries:   3,
		RetryBackoff: time.Second,
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Dispatcher{
		transport:   transport,
		opts:        opts,
		schemaCache: make(map[string]map[string]any),
	}
}

// Transport exposes the underlying transport, e.g. for listing the tool
// catalogue when rendering prompts.
func (d *Dispatcher) Transport() Transport {
	return d.transport
}

// Result is the normalized outcome of one dispatch.
type Result struct {
	// Text is the raw tool output.
	Text string

	// Chunks holds document chunks extracted from a search response, before
	// relevance filtering. Only set when IsSearch.
	Chunks []string

	// IsSearch marks results that should flow through the chunk filter.
	IsSearch bool
}

// Dispatch executes one tool call for the session. The returned error is
// terminal for this call only; the reasoning loop records it as an
// observation and continues.
func (d *Dispatcher) Dispatch(ctx context.Context, call core.ToolCall, session *core.SessionContext) (*Result, error) {
	args := injectArgs(call, session)
	args = d.pruneArgs(ctx, call.Name, args)

	text, err := d.callWithRetry(ctx, call.Name, args)
	if err != nil {
		return nil, err
	}

	if call.Name == SearchTool {
		return &Result{Text: text, Chunks: ParseSearchChunks(text), IsSearch: true}, nil
	}
	return &Result{Text: text}, nil
}

// injectArgs adds the engine-supplied arguments the model is not trusted to
// construct: the cached relevant chunks and a query for the conclude tool,
// the current category for the search tool. Model-supplied values win.
func injectArgs(call core.ToolCall, session *core.SessionContext) map[string]any {
	args := make(map[string]any, len(call.Args)+2)
	for k, v := range call.Args {
		args[k] = v
	}

	switch call.Name {
	case ConcludeTool:
		if _, ok := args["query"]; !ok {
			args["query"] = session.LastUserMessage()
		}
		if len(session.RelevantChunks) > 0 {
			args["doc_chunks"] = append([]string(nil), session.RelevantChunks...)
		}
	case SearchTool:
		if _, ok := args["category"]; !ok {
			category := session.Category
			if category == "" {
				category = "research-general"
			}
			args["category"] = category
		}
	}
	return args
}

// pruneArgs drops every argument not declared in the tool's published schema,
// keeping the fixed injected allow-list. Schema lookup failures leave the
// arguments untouched.
func (d *Dispatcher) pruneArgs(ctx context.Context, name string, args map[string]any) map[string]any {
	allowed, err := d.allowedKeys(ctx, name)
	if err != nil {
		d.opts.Logger.Warn("Schema lookup failed, skipping argument pruning", "tool", name, "error", err)
		return args
	}

	pruned := make(map[string]any, len(args))
	for k, v := range args {
		if _, ok := allowed[k]; ok {
			pruned[k] = v
		}
	}
	return pruned
}

func (d *Dispatcher) allowedKeys(ctx context.Context, name string) (map[string]struct{}, error) {
	schema, err := d.inputSchema(ctx, name)
	if err != nil {
		return nil, err
	}

	allowed := map[string]struct{}{
		"doc_chunks": {},
		"category":   {},
	}
	if props, ok := schema["properties"].(map[string]any); ok {
		for key := range props {
			allowed[key] = struct{}{}
		}
	}
	return allowed, nil
}

func (d *Dispatcher) inputSchema(ctx context.Context, name string) (map[string]any, error) {
	d.mu.Lock()
	if schema, ok := d.schemaCache[name]; ok {
		d.mu.Unlock()
		return schema, nil
	}
	d.mu.Unlock()

	tools, err := d.transport.ListTools(ctx)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range tools {
		d.schemaCache[t.Name] = t.InputSchema
	}
	schema, ok := d.schemaCache[name]
	if !ok {
		// Cache the miss so an unpublished tool does not re-list every call.
		d.schemaCache[name] = map[string]any{}
		schema = d.schemaCache[name]
	}
	return schema, nil
}

func (d *Dispatcher) callWithRetry(ctx context.Context, name string, args map[string]any) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= d.opts.MaxRetries; attempt++ {
		text, err := d.transport.CallTool(ctx, name, args, d.opts.CallTimeout)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", fmt.Errorf("tool %s call aborted: %w", name, err)
		}
		if !retryable(err) {
			return "", err
		}
		if isNotConnected(err) {
			d.opts.Logger.Warn("Transport disconnected, forcing reconnect", "tool", name)
			if rerr := d.transport.Reconnect(ctx); rerr != nil {
				d.opts.Logger.Warn("Reconnect failed", "tool", name, "error", rerr)
			}
		}
		if attempt < d.opts.MaxRetries {
			d.opts.Logger.Warn("Tool call failed, retrying",
				"tool", name, "attempt", attempt, "max_retries", d.opts.MaxRetries, "error", err)
			if !sleepCtx(ctx, d.opts.RetryBackoff*time.Duration(attempt)) {
				return "", fmt.Errorf("tool %s call aborted: %w", name, ctx.Err())
			}
		}
	}
	return "", fmt.Errorf("tool %s failed after %d attempts: %w", name, d.opts.MaxRetries, lastErr)
}

// retryable reports whether the error is a timeout or transport-level
// disconnection. Everything else surfaces immediately.
func retryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var terr *ToolError
	if errors.As(err, &terr) {
		return terr.Code == CodeTimeout || terr.Code == CodeNotConnected
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") || strings.Contains(msg, "not connected")
}

func isNotConnected(err error) bool {
	var terr *ToolError
	if errors.As(err, &terr) && terr.Code == CodeNotConnected {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "not connected")
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// ParseSearchChunks extracts document chunks from a search tool response.
// The response is expected to be a JSON array of hits whose "chunk" field is
// a string or string list; a single object is accepted too. A response that
// is not valid JSON is kept as one raw chunk rather than dropped.
func ParseSearchChunks(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	if !gjson.Valid(trimmed) {
		return []string{trimmed}
	}

	parsed := gjson.Parse(trimmed)
	var chunks []string
	collect := func(item gjson.Result) {
		c := item.Get("chunk")
		switch {
		case c.IsArray():
			for _, v := range c.Array() {
				if v.Type == gjson.String {
					chunks = append(chunks, v.String())
				}
			}
		case c.Type == gjson.String:
			chunks = append(chunks, c.String())
		}
	}

	switch {
	case parsed.IsArray():
		for _, item := range parsed.Array() {
			if item.IsObject() {
				collect(item)
			}
		}
	case parsed.IsObject():
		collect(parsed)
	}
	return chunks
}
