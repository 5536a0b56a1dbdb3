// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

package quota

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/karnagge/llmanager/shared/types"
)

// PostgresRepository implements Repository on a Postgres database
// opened with lib/pq.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository wraps an existing database handle.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetTenant(ctx context.Context, tenantID string) (*types.Tenant, error) {
	query := `
		SELECT id, name, is_active, quota_limit, current_quota_usage, config, created_at, updated_at
		FROM tenants
		WHERE id = $1`

	var tenant types.Tenant
	var config []byte
	err := r.db.QueryRowContext(ctx, query, tenantID).Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.IsActive,
		&tenant.QuotaLimit,
		&tenant.CurrentQuotaUsage,
		&config,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tenant: %w", err)
	}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &tenant.Config); err != nil {
			return nil, fmt.Errorf("failed to decode tenant config: %w", err)
		}
	}
	return &tenant, nil
}

func (r *PostgresRepository) GetUser(ctx context.Context, tenantID, userID string) (*types.User, error) {
	query := `
		SELECT id, tenant_id, email, name, role, is_active, quota_limit, current_quota_usage, created_at, updated_at
		FROM users
		WHERE tenant_id = $1 AND id = $2`

	var user types.User
	var quotaLimit sql.NullInt64
	err := r.db.QueryRowContext(ctx, query, tenantID, userID).Scan(
		&user.ID,
		&user.TenantID,
		&user.Email,
		&user.Name,
		&user.Role,
		&user.IsActive,
		&quotaLimit,
		&user.CurrentQuotaUsage,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	if quotaLimit.Valid {
		user.QuotaLimit = &quotaLimit.Int64
	}
	return &user, nil
}

func (r *PostgresRepository) SaveTenantUsage(ctx context.Context, tenantID string, usage int64) error {
	query := `
		UPDATE tenants
		SET current_quota_usage = $2, updated_at = NOW()
		WHERE id = $1`

	result, err := r.db.ExecContext(ctx, query, tenantID, usage)
	if err != nil {
		return fmt.Errorf("failed to save tenant usage: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check tenant usage update: %w", err)
	}
	if rows == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (r *PostgresRepository) SaveUserUsage(ctx context.Context, tenantID, userID string, usage int64) error {
	query := `
		UPDATE users
		SET current_quota_usage = $3, updated_at = NOW()
		WHERE tenant_id = $1 AND id = $2`

	result, err := r.db.ExecContext(ctx, query, tenantID, userID, usage)
	if err != nil {
		return fmt.Errorf("failed to save user usage: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check user usage update: %w", err)
	}
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *PostgresRepository) InsertUsageRecord(ctx context.Context, record *types.UsageRecord) error {
	query := `
		INSERT INTO usage_records (
			id, tenant_id, user_id, request_id, model, provider,
			prompt_tokens, completion_tokens, total_tokens, cost, metadata, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	metadata := []byte("{}")
	if record.Metadata != nil {
		encoded, err := json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode usage metadata: %w", err)
		}
		metadata = encoded
	}

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.TenantID,
		record.UserID,
		record.RequestID,
		record.Model,
		record.Provider,
		record.PromptTokens,
		record.CompletionTokens,
		record.TotalTokens,
		record.Cost,
		metadata,
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ActiveWebhooksForEvent(ctx context.Context, tenantID, event string) ([]types.Webhook, error) {
	query := `
		SELECT id, tenant_id, url, secret, events, is_active
		FROM webhooks
		WHERE tenant_id = $1 AND is_active = true AND events @> $2`

	eventFilter, err := json.Marshal([]string{event})
	if err != nil {
		return nil, fmt.Errorf("failed to encode event filter: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, tenantID, eventFilter)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhooks: %w", err)
	}
	defer rows.Close()

	var webhooks []types.Webhook
	for rows.Next() {
		var wh types.Webhook
		var events []byte
		if err := rows.Scan(&wh.ID, &wh.TenantID, &wh.URL, &wh.Secret, &events, &wh.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan webhook: %w", err)
		}
		if len(events) > 0 {
			if err := json.Unmarshal(events, &wh.Events); err != nil {
				return nil, fmt.Errorf("failed to decode webhook events: %w", err)
			}
		}
		webhooks = append(webhooks, wh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate webhooks: %w", err)
	}
	return webhooks, nil
}
