package planstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists plans in Redis under hashed (query, category) keys.
// Entries do not expire; plans are reference material, not cache.
type RedisStore struct {
	client  redis.UniversalClient
	allowed map[string]struct{}
	prefix  string
}

// RedisOptions configure a RedisStore.
type RedisOptions struct {
	// KeyPrefix namespaces the store inside a shared Redis. Defaults to
	// "researchmesh:plan".
	KeyPrefix string

	// Categories restricts reads and writes to the whitelist. Empty allows
	// all.
	Categories []string
}

// NewRedisStore creates a plan store on an existing Redis client.
func NewRedisStore(client redis.UniversalClient, optFns ...func(o *RedisOptions)) *RedisStore {
	opts := RedisOptions{
		KeyPrefix: "researchmesh:plan",
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &RedisStore{
		client:  client,
		allowed: whitelistSet(opts.Categories),
		prefix:  opts.KeyPrefix,
	}
}

// GetPlan implements Store. A non-whitelisted category reads as not found,
// never as an error.
func (s *RedisStore) GetPlan(ctx context.Context, query, category string) (string, error) {
	query, category, err := normalizeKey(query, category, s.allowed)
	if err != nil {
		return "", ErrNotFound
	}

	plan, err := s.client.Get(ctx, s.key(query, category)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("planstore: redis get: %w", err)
	}
	return plan, nil
}

// PutPlan implements Store; an existing plan for the same key is overwritten.
func (s *RedisStore) PutPlan(ctx context.Context, query, plan, category string) error {
	query, category, err := normalizeKey(query, category, s.allowed)
	if err != nil {
		return err
	}
	if strings.TrimSpace(plan) == "" {
		return ErrEmptyKey
	}

	if err := s.client.Set(ctx, s.key(query, category), plan, 0).Err(); err != nil {
		return fmt.Errorf("planstore: redis set: %w", err)
	}
	return nil
}

// key hashes the query so arbitrary user text never lands in a Redis key.
func (s *RedisStore) key(query, category string) string {
	sum := sha256.Sum256([]byte(query))
	return fmt.Sprintf("%s:%s:%s", s.prefix, category, hex.EncodeToString(sum[:]))
}
