package model

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/researchmesh/core"
)

func TestMockModel_ResponseResolution(t *testing.T) {
	m := NewMockModel("test-model")
	m.AddResponse("泵故障", "检查密封圈")
	m.QueueResponse("queued one")
	m.QueueResponse("queued two")
	m.SetFallback("fallback")

	got, err := m.Complete(context.Background(), "如何排查泵故障")
	require.NoError(t, err)
	assert.Equal(t, "检查密封圈", got)

	got, _ = m.Complete(context.Background(), "unrelated")
	assert.Equal(t, "queued one", got)

	got, _ = m.Complete(context.Background(), "unrelated")
	assert.Equal(t, "queued two", got)

	got, _ = m.Complete(context.Background(), "unrelated")
	assert.Equal(t, "fallback", got)
}

func TestMockModel_StreamChat(t *testing.T) {
	m := NewMockModel("test-model")
	m.SetFallback("streamed 回复 content")

	deltas, errs := m.StreamChat(context.Background(), []core.Message{core.NewUserMessage("hi")})

	var full string
	for delta := range deltas {
		full += delta
	}
	require.NoError(t, <-errs)
	assert.Equal(t, "streamed 回复 content", full)
}

func TestMockModel_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMockModel("test-model")
	_, err := m.Complete(ctx, "anything")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCategoryPool(t *testing.T) {
	var created int
	pool := NewCategoryPool(func() Model {
		created++
		return NewMockModel("pooled")
	})

	a := pool.Get("technical-troubleshooting")
	b := pool.Get("research-general")
	assert.Same(t, a, pool.Get("technical-troubleshooting"))
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, created)
	assert.Equal(t, 2, pool.Size())

	pool.Clear()
	pool.Clear() // idempotent
	assert.Equal(t, 0, pool.Size())

	// A fresh client is created after Clear.
	pool.Get("technical-troubleshooting")
	assert.Equal(t, 3, created)
}
