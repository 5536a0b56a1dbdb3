// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

package quota

import (
	"context"

	"github.com/karnagge/llmanager/shared/types"
)

// Repository is the persistence boundary for the ledger: tenant and
// user limits, counter snapshots, the append-only usage trail, and
// webhook subscriptions.
type Repository interface {
	// GetTenant returns ErrTenantNotFound when no row exists.
	GetTenant(ctx context.Context, tenantID string) (*types.Tenant, error)

	// GetUser returns ErrUserNotFound when no row exists.
	GetUser(ctx context.Context, tenantID, userID string) (*types.User, error)

	// SaveTenantUsage writes the counter snapshot onto the tenant row.
	SaveTenantUsage(ctx context.Context, tenantID string, usage int64) error

	// SaveUserUsage writes the counter snapshot onto the user row.
	SaveUserUsage(ctx context.Context, tenantID, userID string, usage int64) error

	// InsertUsageRecord appends one billing record.
	InsertUsageRecord(ctx context.Context, record *types.UsageRecord) error

	// ActiveWebhooksForEvent returns the tenant's active webhooks
	// subscribed to the given event type.
	ActiveWebhooksForEvent(ctx context.Context, tenantID, event string) ([]types.Webhook, error)
}
