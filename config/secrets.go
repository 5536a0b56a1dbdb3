// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretsResolver turns a configured value into its real secret. A
// value that is not a reference resolves to itself.
type SecretsResolver interface {
	Resolve(ctx context.Context, value string) (string, error)
}

// PlainResolver passes values through unchanged, for development
// setups without a secrets backend.
type PlainResolver struct{}

func (PlainResolver) Resolve(ctx context.Context, value string) (string, error) {
	return value, nil
}

// ResolveSecrets replaces the secret-bearing fields with their
// resolved values. Plain values pass through untouched, so this is
// safe to call unconditionally at startup.
func (c *Config) ResolveSecrets(ctx context.Context, resolver SecretsResolver) error {
	dsn, err := resolver.Resolve(ctx, c.PostgresDSN)
	if err != nil {
		return fmt.Errorf("failed to resolve DATABASE_URL: %w", err)
	}
	c.PostgresDSN = dsn

	password, err := resolver.Resolve(ctx, c.RedisPassword)
	if err != nil {
		return fmt.Errorf("failed to resolve REDIS_PASSWORD: %w", err)
	}
	c.RedisPassword = password
	return nil
}

// AWSSecretsResolver resolves "arn:" prefixed values through AWS
// Secrets Manager with a TTL cache. Plain values pass through.
type AWSSecretsResolver struct {
	client *secretsmanager.Client
	cache  map[string]*secretCacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
	logger *log.Logger
}

type secretCacheEntry struct {
	value     string
	expiresAt time.Time
}

// NewAWSSecretsResolver builds a resolver from the default AWS config
// chain. region may be empty to use the chain's region.
func NewAWSSecretsResolver(ctx context.Context, region string, cacheTTL time.Duration, logger *log.Logger) (*AWSSecretsResolver, error) {
	if logger == nil {
		logger = log.New(os.Stdout, "[SECRETS] ", log.LstdFlags)
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &AWSSecretsResolver{
		client: secretsmanager.NewFromConfig(cfg),
		cache:  make(map[string]*secretCacheEntry),
		ttl:    cacheTTL,
		logger: logger,
	}, nil
}

// Resolve fetches the secret when value is an ARN, otherwise returns
// value unchanged. JSON secrets resolve to their "value" key; plain
// string secrets resolve verbatim.
func (r *AWSSecretsResolver) Resolve(ctx context.Context, value string) (string, error) {
	if !strings.HasPrefix(value, "arn:") {
		return value, nil
	}

	r.mu.RLock()
	entry, ok := r.cache[value]
	r.mu.RUnlock()
	if ok && time.Now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	r.logger.Printf("Fetching secret %s", maskARN(value))
	result, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(value),
	})
	if err != nil {
		return "", fmt.Errorf("failed to get secret %s: %w", maskARN(value), err)
	}
	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", maskARN(value))
	}

	secret := *result.SecretString
	var asJSON map[string]string
	if err := json.Unmarshal([]byte(secret), &asJSON); err == nil {
		if v, ok := asJSON["value"]; ok {
			secret = v
		}
	}

	r.mu.Lock()
	r.cache[value] = &secretCacheEntry{value: secret, expiresAt: time.Now().Add(r.ttl)}
	r.mu.Unlock()
	return secret, nil
}

// Invalidate drops a cached secret so the next Resolve refetches it.
func (r *AWSSecretsResolver) Invalidate(value string) {
	r.mu.Lock()
	delete(r.cache, value)
	r.mu.Unlock()
}

// maskARN shows only the last 8 characters of an ARN in logs.
func maskARN(arn string) string {
	if len(arn) <= 12 {
		return "***"
	}
	return "..." + arn[len(arn)-8:]
}
