package tool

import (
	"context"
	"errors"
	"sync"
	"time"
)

// LocalTool is one in-process tool hosted by a LocalTransport.
type LocalTool struct {
	Info Info

	// Timeout overrides the dispatcher's call timeout when set. Long-running
	// tools (summarization) declare their own budget here.
	Timeout time.Duration

	Handler func(ctx context.Context, args map[string]any) (string, error)
}

// LocalTransport is an in-process Transport hosting the built-in tools. It
// mimics a remote tool server including the connected/disconnected lifecycle
// so dispatcher retry and reconnect logic is exercised identically.
type LocalTransport struct {
	mu        sync.RWMutex
	tools     map[string]LocalTool
	order     []string
	connected bool
}

// NewLocalTransport creates a connected transport hosting the given tools.
func NewLocalTransport(tools ...LocalTool) *LocalTransport {
	t := &LocalTransport{
		tools:     make(map[string]LocalTool),
		connected: true,
	}
	for _, lt := range tools {
		t.Register(lt)
	}
	return t
}

// Register adds or replaces a tool.
func (t *LocalTransport) Register(lt LocalTool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.tools[lt.Info.Name]; !exists {
		t.order = append(t.order, lt.Info.Name)
	}
	t.tools[lt.Info.Name] = lt
}

// ListTools implements Transport; tools are listed in registration order.
func (t *LocalTransport) ListTools(ctx context.Context) ([]Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.connected {
		return nil, NewToolError("", "transport is not connected", CodeNotConnected)
	}
	infos := make([]Info, 0, len(t.order))
	for _, name := range t.order {
		infos = append(infos, t.tools[name].Info)
	}
	return infos, nil
}

// CallTool implements Transport. The tool's own timeout wins over the
// dispatcher's when declared.
func (t *LocalTransport) CallTool(ctx context.Context, name string, args map[string]any, timeout time.Duration) (string, error) {
	t.mu.RLock()
	connected := t.connected
	lt, ok := t.tools[name]
	t.mu.RUnlock()

	if !connected {
		return "", NewToolError(name, "transport is not connected", CodeNotConnected)
	}
	if !ok {
		return "", NewToolError(name, "unknown tool", CodeNotFound)
	}

	if lt.Timeout > 0 {
		timeout = lt.Timeout
	}
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type callOut struct {
		text string
		err  error
	}
	done := make(chan callOut, 1)
	go func() {
		text, err := lt.Handler(callCtx, args)
		done <- callOut{text: text, err: err}
	}()

	select {
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", NewToolError(name, "call timed out", CodeTimeout)
		}
		return "", callCtx.Err()
	case out := <-done:
		if out.err != nil {
			var terr *ToolError
			if errors.As(out.err, &terr) {
				return "", out.err
			}
			return "", NewToolError(name, out.err.Error(), CodeExecution)
		}
		return out.text, nil
	}
}

// Reconnect implements Transport.
func (t *LocalTransport) Reconnect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.connected = true
	return nil
}

// Close implements Transport; subsequent calls fail until Reconnect.
func (t *LocalTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.connected = false
	return nil
}
