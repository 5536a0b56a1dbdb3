// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.9, cfg.AlertThreshold)
	assert.Equal(t, int64(100000), cfg.DefaultTokenQuota)
	assert.Equal(t, "gpt-3.5-turbo", cfg.DefaultModel)
	assert.Equal(t, 3, cfg.WebhookRetryAttempts)
	assert.Equal(t, 5*time.Second, cfg.WebhookRetryDelay)
	assert.Equal(t, 10*time.Second, cfg.WebhookTimeout)
	assert.Equal(t, DefaultRedisAddr, cfg.RedisAddr)
	assert.Equal(t, DefaultOpsListenAddr, cfg.OpsListenAddr)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("TOKEN_QUOTA_ALERT_THRESHOLD", "0.75")
	t.Setenv("DEFAULT_TOKEN_QUOTA", "500000")
	t.Setenv("WEBHOOK_RETRY_ATTEMPTS", "5")
	t.Setenv("WEBHOOK_RETRY_DELAY", "2s")
	t.Setenv("REDIS_ADDR", "redis.internal:6379")
	t.Setenv("DATABASE_URL", "postgres://llm:llm@db/llm?sslmode=disable")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.75, cfg.AlertThreshold)
	assert.Equal(t, int64(500000), cfg.DefaultTokenQuota)
	assert.Equal(t, 5, cfg.WebhookRetryAttempts)
	assert.Equal(t, 2*time.Second, cfg.WebhookRetryDelay)
	assert.Equal(t, "redis.internal:6379", cfg.RedisAddr)
	assert.Equal(t, "postgres://llm:llm@db/llm?sslmode=disable", cfg.PostgresDSN)
}

func TestLoadBareSecondsDuration(t *testing.T) {
	t.Setenv("WEBHOOK_RETRY_DELAY", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7*time.Second, cfg.WebhookRetryDelay)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults valid", mutate: func(c *Config) {}},
		{name: "threshold zero", mutate: func(c *Config) { c.AlertThreshold = 0 }, wantErr: true},
		{name: "threshold above one", mutate: func(c *Config) { c.AlertThreshold = 1.5 }, wantErr: true},
		{name: "threshold exactly one", mutate: func(c *Config) { c.AlertThreshold = 1 }},
		{name: "zero retries", mutate: func(c *Config) { c.WebhookRetryAttempts = 0 }, wantErr: true},
		{name: "zero timeout", mutate: func(c *Config) { c.WebhookTimeout = 0 }, wantErr: true},
		{name: "negative quota", mutate: func(c *Config) { c.DefaultTokenQuota = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPlainResolverPassesThrough(t *testing.T) {
	got, err := PlainResolver{}.Resolve(context.Background(), "sk-plain-key")
	require.NoError(t, err)
	assert.Equal(t, "sk-plain-key", got)
}

type mapResolver struct {
	secrets map[string]string
	err     error
}

func (r mapResolver) Resolve(ctx context.Context, value string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	if secret, ok := r.secrets[value]; ok {
		return secret, nil
	}
	return value, nil
}

func TestResolveSecrets(t *testing.T) {
	t.Setenv("DATABASE_URL", "arn:aws:secretsmanager:us-east-1:123456789012:secret:db-dsn")
	t.Setenv("REDIS_PASSWORD", "arn:aws:secretsmanager:us-east-1:123456789012:secret:redis-pw")

	cfg, err := Load()
	require.NoError(t, err)

	resolver := mapResolver{secrets: map[string]string{
		"arn:aws:secretsmanager:us-east-1:123456789012:secret:db-dsn":   "postgres://llm:s3cr3t@db/llm",
		"arn:aws:secretsmanager:us-east-1:123456789012:secret:redis-pw": "redis-s3cr3t",
	}}
	require.NoError(t, cfg.ResolveSecrets(context.Background(), resolver))

	assert.Equal(t, "postgres://llm:s3cr3t@db/llm", cfg.PostgresDSN)
	assert.Equal(t, "redis-s3cr3t", cfg.RedisPassword)
}

func TestResolveSecretsPlainValuesUntouched(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://llm:llm@db/llm?sslmode=disable")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.ResolveSecrets(context.Background(), PlainResolver{}))

	assert.Equal(t, "postgres://llm:llm@db/llm?sslmode=disable", cfg.PostgresDSN)
	assert.Empty(t, cfg.RedisPassword)
}

func TestResolveSecretsFailurePropagates(t *testing.T) {
	t.Setenv("DATABASE_URL", "arn:aws:secretsmanager:us-east-1:123456789012:secret:db-dsn")

	cfg, err := Load()
	require.NoError(t, err)

	err = cfg.ResolveSecrets(context.Background(), mapResolver{err: assert.AnError})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	// The unresolved reference stays put so the failure is visible.
	assert.Equal(t, "arn:aws:secretsmanager:us-east-1:123456789012:secret:db-dsn", cfg.PostgresDSN)
}

func TestMaskARN(t *testing.T) {
	assert.Equal(t, "***", maskARN("short"))
	assert.Equal(t, "...cret-123",
		maskARN("arn:aws:secretsmanager:us-east-1:123456789012:secret:my-secret-123"))
}
