// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Delivery status values published to the side channel.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// DefaultStatusTTL bounds how long a delivery status stays readable.
const DefaultStatusTTL = 5 * time.Minute

// StatusStore is the best-effort delivery status side channel. A
// missing status reads as the empty string.
type StatusStore interface {
	SetStatus(ctx context.Context, webhookID, status string) error
	GetStatus(ctx context.Context, webhookID string) (string, error)
}

// RedisStatusStore keeps statuses under webhook_status:{id} with a TTL.
type RedisStatusStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStatusStore wraps an existing Redis client with the default
// TTL.
func NewRedisStatusStore(client *redis.Client) *RedisStatusStore {
	return &RedisStatusStore{client: client, ttl: DefaultStatusTTL}
}

func statusKey(webhookID string) string {
	return fmt.Sprintf("webhook_status:%s", webhookID)
}

func (s *RedisStatusStore) SetStatus(ctx context.Context, webhookID, status string) error {
	if err := s.client.Set(ctx, statusKey(webhookID), status, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set webhook status: %w", err)
	}
	return nil
}

func (s *RedisStatusStore) GetStatus(ctx context.Context, webhookID string) (string, error) {
	status, err := s.client.Get(ctx, statusKey(webhookID)).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get webhook status: %w", err)
	}
	return status, nil
}
