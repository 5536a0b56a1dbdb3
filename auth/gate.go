// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/karnagge/llmanager/permissions"
	"github.com/karnagge/llmanager/shared/types"
)

// APIKeyPrefix is prepended to every generated raw key so keys are
// recognizable in configs and log redaction.
const APIKeyPrefix = "llm_"

// GenerateAPIKey returns a new raw API key. The raw value is shown to
// the caller once; only its hash is ever persisted.
func GenerateAPIKey() string {
	id := uuid.New()
	return APIKeyPrefix + hex.EncodeToString(id[:])
}

// HashAPIKey returns the hex SHA-256 digest stored and looked up in
// place of the raw key.
func HashAPIKey(raw string) string {
	hash := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(hash[:])
}

// Gate authenticates API keys against Postgres and authorizes
// operations against the permissions attached to each key.
type Gate struct {
	db     *sql.DB
	logger *log.Logger
	now    func() time.Time
}

// NewGate creates a gate over an existing database handle.
func NewGate(db *sql.DB, logger *log.Logger) *Gate {
	if logger == nil {
		logger = log.Default()
	}
	return &Gate{db: db, logger: logger, now: time.Now}
}

// Authenticate resolves a raw API key to its tenant and key records.
// tenantIDClaim is the tenant the caller says it belongs to (for
// example from a header); when non-empty it must match the key's
// tenant. Every failure returns ErrInvalidAPIKey; the reason is only
// logged.
func (g *Gate) Authenticate(ctx context.Context, rawKey, tenantIDClaim string) (*types.Tenant, *types.APIKey, error) {
	if rawKey == "" {
		return nil, nil, ErrInvalidAPIKey
	}

	query := `
		SELECT
			k.id,
			k.tenant_id,
			k.user_id,
			k.name,
			k.is_active,
			k.expires_at,
			k.last_used_at,
			k.permissions,
			t.id,
			t.name,
			t.is_active,
			t.quota_limit,
			t.current_quota_usage,
			t.created_at,
			t.updated_at
		FROM api_keys k
		JOIN tenants t ON k.tenant_id = t.id
		WHERE k.key_hash = $1`

	var key types.APIKey
	var tenant types.Tenant
	var userID sql.NullString
	var expiresAt, lastUsedAt sql.NullTime
	var permissionsJSON []byte

	err := g.db.QueryRowContext(ctx, query, HashAPIKey(rawKey)).Scan(
		&key.ID,
		&key.TenantID,
		&userID,
		&key.Name,
		&key.IsActive,
		&expiresAt,
		&lastUsedAt,
		&permissionsJSON,
		&tenant.ID,
		&tenant.Name,
		&tenant.IsActive,
		&tenant.QuotaLimit,
		&tenant.CurrentQuotaUsage,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		g.logger.Printf("[Auth] Rejected API key: no matching hash")
		return nil, nil, ErrInvalidAPIKey
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up API key: %w", err)
	}

	key.UserID = userID.String
	if expiresAt.Valid {
		key.ExpiresAt = &expiresAt.Time
	}
	if lastUsedAt.Valid {
		key.LastUsedAt = &lastUsedAt.Time
	}
	if len(permissionsJSON) > 0 {
		if err := json.Unmarshal(permissionsJSON, &key.Permissions); err != nil {
			return nil, nil, fmt.Errorf("failed to decode key permissions: %w", err)
		}
	}

	if !key.IsActive {
		g.logger.Printf("[Auth] Rejected API key %s: key disabled", key.ID)
		return nil, nil, ErrInvalidAPIKey
	}
	if !tenant.IsActive {
		g.logger.Printf("[Auth] Rejected API key %s: tenant %s disabled", key.ID, tenant.ID)
		return nil, nil, ErrInvalidAPIKey
	}
	if key.Expired(g.now()) {
		g.logger.Printf("[Auth] Rejected API key %s: expired at %s", key.ID, key.ExpiresAt)
		return nil, nil, ErrInvalidAPIKey
	}
	if tenantIDClaim != "" && tenantIDClaim != key.TenantID {
		g.logger.Printf("[Auth] Rejected API key %s: tenant claim mismatch", key.ID)
		return nil, nil, ErrInvalidAPIKey
	}

	// Fire and forget; the request does not wait on the touch.
	go g.touchAPIKey(context.Background(), key.ID)

	return &tenant, &key, nil
}

// Authorize checks that the key's granted permissions satisfy every
// required permission. A key with no permissions is authorized for
// nothing, including the empty requirement.
func (g *Gate) Authorize(key *types.APIKey, required []string) error {
	if len(key.Permissions) == 0 {
		return &InsufficientPermissionsError{Required: required}
	}
	if !permissions.Satisfies(required, key.Permissions) {
		return &InsufficientPermissionsError{Required: required}
	}
	return nil
}

func (g *Gate) touchAPIKey(ctx context.Context, keyID string) {
	query := `
		UPDATE api_keys
		SET last_used_at = NOW(), updated_at = NOW()
		WHERE id = $1`

	if _, err := g.db.ExecContext(ctx, query, keyID); err != nil {
		g.logger.Printf("[Auth] Failed to update last_used_at for key %s: %v", keyID, err)
	}
}
