// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

// Package types provides shared entity definitions used across llmanager
// components. These are plain data records: all I/O needed to load or
// persist them lives in the repositories that consume them.
package types

import "time"

// UserRole represents the role of a tenant-scoped user
type UserRole string

const (
	RoleAdmin    UserRole = "admin"
	RoleUser     UserRole = "user"
	RoleReadOnly UserRole = "readonly"
)

// String returns the string representation of the UserRole
func (r UserRole) String() string {
	return string(r)
}

// IsValid returns true if the UserRole is a valid known value
func (r UserRole) IsValid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleReadOnly:
		return true
	default:
		return false
	}
}

// Tenant is the top-level billing and isolation unit. It owns users,
// API keys and webhooks, and carries the tenant-wide token quota.
//
// CurrentQuotaUsage is a best-effort snapshot of the counter store value;
// the counter store is authoritative during a request lifecycle and the
// durable field is reconciled after each usage update.
type Tenant struct {
	ID                string                 `json:"id"`
	Name              string                 `json:"name"`
	IsActive          bool                   `json:"is_active"`
	QuotaLimit        int64                  `json:"quota_limit"`
	CurrentQuotaUsage int64                  `json:"current_quota_usage"`
	Config            map[string]interface{} `json:"config,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// User is a tenant-scoped principal. A nil QuotaLimit means the user is
// exempt from user-level quota checks (only the tenant limit applies).
type User struct {
	ID                string    `json:"id"`
	TenantID          string    `json:"tenant_id"`
	Email             string    `json:"email"`
	Name              string    `json:"name"`
	Role              UserRole  `json:"role"`
	IsActive          bool      `json:"is_active"`
	QuotaLimit        *int64    `json:"quota_limit,omitempty"`
	CurrentQuotaUsage int64     `json:"current_quota_usage"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// APIKey is an authentication credential for a tenant. Only the SHA-256
// hash of the raw secret is ever stored; the raw secret is returned once
// at creation time and never persisted.
type APIKey struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	UserID            string     `json:"user_id,omitempty"`
	Name              string     `json:"name"`
	KeyHash           string     `json:"-"`
	IsActive          bool       `json:"is_active"`
	ExpiresAt         *time.Time `json:"expires_at,omitempty"`
	LastUsedAt        *time.Time `json:"last_used_at,omitempty"`
	Permissions       []string   `json:"permissions"`
	QuotaLimit        *int64     `json:"quota_limit,omitempty"`
	CurrentQuotaUsage int64      `json:"current_quota_usage"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// Expired reports whether the key has an expiry in the past.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && k.ExpiresAt.Before(now)
}

// Webhook is a tenant-registered callback endpoint. The core only ever
// reads webhooks and delivers notifications to them; lifecycle management
// is an external admin concern.
type Webhook struct {
	ID       string                 `json:"id"`
	TenantID string                 `json:"tenant_id"`
	URL      string                 `json:"url"`
	Secret   string                 `json:"-"`
	IsActive bool                   `json:"is_active"`
	Events   []string               `json:"events"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// SubscribedTo reports whether the webhook subscribes to the given event type.
func (w *Webhook) SubscribedTo(event string) bool {
	for _, e := range w.Events {
		if e == event {
			return true
		}
	}
	return false
}

// TokenUsage is the token accounting returned by a generation provider.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// UsageRecord is the append-only per-request billing record. Created
// exactly once per successfully billed generation and never mutated.
type UsageRecord struct {
	ID               string                 `json:"id"`
	TenantID         string                 `json:"tenant_id"`
	UserID           string                 `json:"user_id"`
	RequestID        string                 `json:"request_id"`
	Model            string                 `json:"model"`
	Provider         string                 `json:"provider"`
	PromptTokens     int                    `json:"prompt_tokens"`
	CompletionTokens int                    `json:"completion_tokens"`
	TotalTokens      int                    `json:"total_tokens"`
	Cost             float64                `json:"cost"`
	Timestamp        time.Time              `json:"timestamp"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}
