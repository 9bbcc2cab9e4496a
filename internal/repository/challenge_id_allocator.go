package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ChallengeIDAllocator hands out monotonically increasing challenge IDs.
type ChallengeIDAllocator interface {
	Next(ctx context.Context) (uint64, error)
}

const challengeIDKey = "challenge:id:seq"

// RedisChallengeIDAllocator allocates IDs with an atomic Redis INCR, so
// concurrent creators never receive the same ID.
type RedisChallengeIDAllocator struct {
	client *redis.Client
}

func NewRedisChallengeIDAllocator(client *redis.Client) *RedisChallengeIDAllocator {
	return &RedisChallengeIDAllocator{client: client}
}

// Next returns the next challenge ID.
func (a *RedisChallengeIDAllocator) Next(ctx context.Context) (uint64, error) {
	id, err := a.client.Incr(ctx, challengeIDKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to allocate challenge id: %w", err)
	}

	return uint64(id), nil
}
