// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads service configuration from the environment.
// Secret-bearing fields accept either a literal value or an AWS
// Secrets Manager ARN, resolved at startup through the secrets
// resolver in this package.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Defaults applied when the environment leaves a knob unset.
const (
	DefaultAlertThreshold       = 0.9
	DefaultWebhookRetryAttempts = 3
	DefaultWebhookRetryDelay    = 5 * time.Second
	DefaultWebhookTimeout       = 10 * time.Second
	DefaultTokenQuota           = 100000
	DefaultModel                = "gpt-3.5-turbo"
	DefaultRedisAddr            = "localhost:6379"
	DefaultOpsListenAddr        = ":9090"
)

// Config holds every runtime knob for the service.
type Config struct {
	// Quota
	AlertThreshold    float64
	DefaultTokenQuota int64
	DefaultModel      string
	PricingFile       string

	// Webhooks
	WebhookRetryAttempts int
	WebhookRetryDelay    time.Duration
	WebhookTimeout       time.Duration

	// Storage
	PostgresDSN   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Ops
	OpsListenAddr string
	LogLevel      string

	// AWS
	AWSRegion string
}

// Load reads configuration from the environment, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		AlertThreshold:       getEnvFloat("TOKEN_QUOTA_ALERT_THRESHOLD", DefaultAlertThreshold),
		DefaultTokenQuota:    getEnvInt64("DEFAULT_TOKEN_QUOTA", DefaultTokenQuota),
		DefaultModel:         getEnv("DEFAULT_MODEL", DefaultModel),
		PricingFile:          os.Getenv("PRICING_FILE"),
		WebhookRetryAttempts: getEnvInt("WEBHOOK_RETRY_ATTEMPTS", DefaultWebhookRetryAttempts),
		WebhookRetryDelay:    getEnvDuration("WEBHOOK_RETRY_DELAY", DefaultWebhookRetryDelay),
		WebhookTimeout:       getEnvDuration("WEBHOOK_TIMEOUT", DefaultWebhookTimeout),
		PostgresDSN:          os.Getenv("DATABASE_URL"),
		RedisAddr:            getEnv("REDIS_ADDR", DefaultRedisAddr),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		OpsListenAddr:        getEnv("OPS_LISTEN_ADDR", DefaultOpsListenAddr),
		LogLevel:             getEnv("LOG_LEVEL", "INFO"),
		AWSRegion:            os.Getenv("AWS_REGION"),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations that cannot work.
func (c *Config) Validate() error {
	if c.AlertThreshold <= 0 || c.AlertThreshold > 1 {
		return fmt.Errorf("alert threshold must be in (0, 1], got %v", c.AlertThreshold)
	}
	if c.WebhookRetryAttempts <= 0 {
		return fmt.Errorf("webhook retry attempts must be positive, got %d", c.WebhookRetryAttempts)
	}
	if c.WebhookTimeout <= 0 {
		return fmt.Errorf("webhook timeout must be positive, got %v", c.WebhookTimeout)
	}
	if c.DefaultTokenQuota <= 0 {
		return fmt.Errorf("default token quota must be positive, got %d", c.DefaultTokenQuota)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration strings ("5s") and bare second
// counts ("5").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
