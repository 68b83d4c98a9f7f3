package planstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storesUnderTest(t *testing.T, categories ...string) map[string]Store {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(categories...),
		"redis": NewRedisStore(client, func(o *RedisOptions) {
			o.Categories = categories
		}),
	}
}

func TestStore_ExactMatchRoundTrip(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.PutPlan(ctx, "如何排查泵故障", "1. 查日志\n2. 定位根因", "technical-troubleshooting"))

			plan, err := store.GetPlan(ctx, "如何排查泵故障", "technical-troubleshooting")
			require.NoError(t, err)
			assert.Equal(t, "1. 查日志\n2. 定位根因", plan)

			// Whitespace around the query is ignored; anything else is not
			// an exact match.
			plan, err = store.GetPlan(ctx, "  如何排查泵故障  ", "technical-troubleshooting")
			require.NoError(t, err)
			assert.Equal(t, "1. 查日志\n2. 定位根因", plan)

			_, err = store.GetPlan(ctx, "如何排查泵故障?", "technical-troubleshooting")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = store.GetPlan(ctx, "如何排查泵故障", "research-general")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_Overwrite(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.PutPlan(ctx, "q", "old plan", "research-general"))
			require.NoError(t, store.PutPlan(ctx, "q", "new plan", "research-general"))

			plan, err := store.GetPlan(ctx, "q", "research-general")
			require.NoError(t, err)
			assert.Equal(t, "new plan", plan)
		})
	}
}

func TestStore_CategoryWhitelist(t *testing.T) {
	for name, store := range storesUnderTest(t, "technical-troubleshooting") {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, store.PutPlan(ctx, "q", "plan", "technical-troubleshooting"))

			// Writes with an unknown category are rejected.
			err := store.PutPlan(ctx, "q", "plan", "made-up-category")
			assert.ErrorIs(t, err, ErrInvalidCategory)

			// Reads with an unknown category are a miss, not an error.
			_, err = store.GetPlan(ctx, "q", "made-up-category")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_EmptyInputs(t *testing.T) {
	for name, store := range storesUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			assert.ErrorIs(t, store.PutPlan(ctx, "", "plan", "c"), ErrEmptyKey)
			assert.ErrorIs(t, store.PutPlan(ctx, "q", "plan", "  "), ErrEmptyKey)
			assert.ErrorIs(t, store.PutPlan(ctx, "q", "   ", "c"), ErrEmptyKey)

			_, err := store.GetPlan(ctx, "", "c")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}
