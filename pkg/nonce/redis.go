package nonce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis SETNX, which is atomic server-side
// and shared across gateway replicas.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore creates a Redis-backed nonce store. ttl bounds how long a
// consumed pair is remembered; zero keeps pairs forever. Envelope timestamps
// already bound how old a replayable request can be, so a ttl comfortably
// above the envelope freshness window is safe.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) InsertIfAbsent(ctx context.Context, sessionAddress, nonce string) (bool, error) {
	key := fmt.Sprintf("nonce:%s:%s", strings.ToLower(sessionAddress), nonce)
	inserted, err := s.client.SetNX(ctx, key, "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("nonce: redis setnx: %w", err)
	}
	return inserted, nil
}
