// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/karnagge/llmanager/metrics"
)

// Usage is a point-in-time snapshot of the live token counters for a
// tenant and one of its users.
type Usage struct {
	TenantTokens int64
	UserTokens   int64
}

// CounterStore is the authoritative live token balance. Increments
// must be atomic across concurrent callers; reads of missing counters
// return zero.
type CounterStore interface {
	// IncrementTokens atomically adds tokens to both the tenant and
	// user counters and returns the post-increment values.
	IncrementTokens(ctx context.Context, tenantID, userID string, tokens int64) (Usage, error)

	// ReadUsage returns the current counter values without modifying
	// them. Missing counters read as zero.
	ReadUsage(ctx context.Context, tenantID, userID string) (Usage, error)
}

// RedisCounterStore keeps counters in Redis under
// token_quota:{tenant} and token_quota:{tenant}:{user}.
type RedisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore wraps an existing Redis client.
func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

func tenantCounterKey(tenantID string) string {
	return fmt.Sprintf("token_quota:%s", tenantID)
}

func userCounterKey(tenantID, userID string) string {
	return fmt.Sprintf("token_quota:%s:%s", tenantID, userID)
}

// IncrementTokens bumps both counters in one pipelined round trip.
// INCRBY is atomic per key, so concurrent increments never lose
// updates even though the two keys are not updated transactionally.
func (s *RedisCounterStore) IncrementTokens(ctx context.Context, tenantID, userID string, tokens int64) (Usage, error) {
	start := time.Now()
	pipe := s.client.Pipeline()
	tenantCmd := pipe.IncrBy(ctx, tenantCounterKey(tenantID), tokens)
	userCmd := pipe.IncrBy(ctx, userCounterKey(tenantID, userID), tokens)
	if _, err := pipe.Exec(ctx); err != nil {
		return Usage{}, fmt.Errorf("failed to increment token counters: %w", err)
	}
	metrics.CounterStoreDuration.WithLabelValues("increment").Observe(time.Since(start).Seconds())
	return Usage{
		TenantTokens: tenantCmd.Val(),
		UserTokens:   userCmd.Val(),
	}, nil
}

// ReadUsage fetches both counters in one pipelined round trip.
func (s *RedisCounterStore) ReadUsage(ctx context.Context, tenantID, userID string) (Usage, error) {
	start := time.Now()
	pipe := s.client.Pipeline()
	tenantCmd := pipe.Get(ctx, tenantCounterKey(tenantID))
	userCmd := pipe.Get(ctx, userCounterKey(tenantID, userID))
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return Usage{}, fmt.Errorf("failed to read token counters: %w", err)
	}
	usage := Usage{}
	if v, err := tenantCmd.Int64(); err == nil {
		usage.TenantTokens = v
	} else if err != redis.Nil {
		return Usage{}, fmt.Errorf("failed to read tenant counter: %w", err)
	}
	if v, err := userCmd.Int64(); err == nil {
		usage.UserTokens = v
	} else if err != redis.Nil {
		return Usage{}, fmt.Errorf("failed to read user counter: %w", err)
	}
	metrics.CounterStoreDuration.WithLabelValues("read").Observe(time.Since(start).Seconds())
	return usage, nil
}
