package model

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/researchmesh/core"
)

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "mock", etc.
}

// Model is the minimal interface required by the engine and filter to drive
// generation. Completions may carry thinking/answer section markers consumed
// by the stream package.
type Model interface {
	// Complete returns the full completion for a single prompt.
	Complete(ctx context.Context, prompt string) (string, error)

	// StreamChat streams token deltas for a conversation. The delta channel
	// is closed at stream end; at most one error is sent on the error
	// channel.
	StreamChat(ctx context.Context, messages []core.Message) (<-chan string, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// Factory creates a fresh model client. Pools and filter lanes call it so
// concurrent workers never share per-call mutable state.
type Factory func() Model

// mockRule is a substring-matched canned response.
type mockRule struct {
	contains string
	response string
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
// Responses are resolved in order: first matching substring rule, then the
// FIFO queue, then the fallback. Safe for concurrent use.
type MockModel struct {
	info Info

	mu       sync.Mutex
	rules    []mockRule
	queue    []string
	fallback string
}

// NewMockModel constructs a MockModel with the given name.
func NewMockModel(name string) *MockModel {
	return &MockModel{
		info: Info{Name: name, Provider: "mock"},
	}
}

// AddResponse registers a canned completion returned whenever the prompt
// contains the given substring. Rules match in registration order.
func (m *MockModel) AddResponse(promptContains, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, mockRule{contains: promptContains, response: response})
}

// QueueResponse appends a completion consumed in FIFO order when no substring
// rule matches.
func (m *MockModel) QueueResponse(response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queue = append(m.queue, response)
}

// SetFallback sets the completion returned when neither a rule nor a queued
// response applies.
func (m *MockModel) SetFallback(response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = response
}

func (m *MockModel) lookup(prompt string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rules {
		if r.contains != "" && strings.Contains(prompt, r.contains) {
			return r.response
		}
	}
	if len(m.queue) > 0 {
		resp := m.queue[0]
		m.queue = m.queue[1:]
		return resp
	}
	if m.fallback != "" {
		return m.fallback
	}
	return fmt.Sprintf("Mock response to: %s", truncate(prompt, 80))
}

// Complete implements Model.
func (m *MockModel) Complete(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return m.lookup(prompt), nil
}

// StreamChat implements Model; the canned response is emitted in small rune
// chunks so marker-across-delta handling gets exercised.
func (m *MockModel) StreamChat(ctx context.Context, messages []core.Message) (<-chan string, <-chan error) {
	deltas := make(chan string, 32)
	errs := make(chan error, 1)

	go func() {
		defer close(deltas)
		defer close(errs)

		var prompt string
		if len(messages) > 0 {
			prompt = messages[len(messages)-1].Content
		}
		full := []rune(m.lookup(prompt))

		const chunkRunes = 7
		for i := 0; i < len(full); i += chunkRunes {
			end := i + chunkRunes
			if end > len(full) {
				end = len(full)
			}
			select {
			case <-ctx.Done():
				errs <- ctx.Err()
				return
			case deltas <- string(full[i:end]):
			}
		}
	}()

	return deltas, errs
}

// Info implements Model.
func (m *MockModel) Info() Info { return m.info }

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
