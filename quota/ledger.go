// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

package quota

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/karnagge/llmanager/metrics"
	"github.com/karnagge/llmanager/shared/types"
)

// EventQuotaThreshold is the subscription event name stored on
// webhook rows.
const EventQuotaThreshold = "quota_threshold"

// eventTypeThresholdReached is the event_type carried in the webhook
// payload envelope.
const eventTypeThresholdReached = "quota_threshold_reached"

// DefaultAlertThreshold fires threshold webhooks once tenant usage
// reaches 90% of the limit.
const DefaultAlertThreshold = 0.9

// DefaultRetryAfter is the advisory retry hint attached to quota
// failures.
const DefaultRetryAfter = time.Hour

// Notifier delivers a tenant-facing notification to one webhook
// endpoint. Implementations retry internally; a returned error means
// delivery gave up for good.
type Notifier interface {
	Notify(ctx context.Context, webhook types.Webhook, eventType string, data map[string]interface{}) error
}

// LogNotifier is a notifier that only logs, used when no webhook
// delivery stack is wired in.
type LogNotifier struct {
	logger *log.Logger
}

// NewLogNotifier creates a log-based notifier.
func NewLogNotifier(logger *log.Logger) *LogNotifier {
	if logger == nil {
		logger = log.Default()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the notification.
func (n *LogNotifier) Notify(ctx context.Context, webhook types.Webhook, eventType string, data map[string]interface{}) error {
	n.logger.Printf("[QUOTA ALERT] %s webhook=%s tenant=%s data=%v", eventType, webhook.ID, webhook.TenantID, data)
	return nil
}

// UsageUpdate describes one completed generation to be billed.
type UsageUpdate struct {
	TenantID         string
	UserID           string
	RequestID        string
	Model            string
	Provider         string
	PromptTokens     int
	CompletionTokens int
	Metadata         map[string]interface{}
}

// Ledger enforces token quotas and records usage. The counter store
// holds the live balance consulted on every check; Postgres holds the
// limits, the snapshots and the billing trail.
type Ledger struct {
	counters       CounterStore
	repo           Repository
	pricing        *Pricing
	notifier       Notifier
	logger         *log.Logger
	alertThreshold float64
	retryAfter     time.Duration
}

// NewLedger creates a ledger with default pricing, threshold and a
// log-only notifier.
func NewLedger(counters CounterStore, repo Repository) *Ledger {
	return NewLedgerWithOptions(counters, repo, nil, nil, DefaultAlertThreshold, nil)
}

// NewLedgerWithOptions creates a ledger with custom collaborators.
// alertThreshold is a fraction in (0, 1]; zero selects the default.
func NewLedgerWithOptions(counters CounterStore, repo Repository, pricing *Pricing, notifier Notifier, alertThreshold float64, logger *log.Logger) *Ledger {
	if logger == nil {
		logger = log.Default()
	}
	if pricing == nil {
		pricing = NewPricing(logger)
	}
	if notifier == nil {
		notifier = NewLogNotifier(logger)
	}
	if alertThreshold <= 0 || alertThreshold > 1 {
		alertThreshold = DefaultAlertThreshold
	}
	return &Ledger{
		counters:       counters,
		repo:           repo,
		pricing:        pricing,
		notifier:       notifier,
		logger:         logger,
		alertThreshold: alertThreshold,
		retryAfter:     DefaultRetryAfter,
	}
}

// SetRetryAfter overrides the advisory retry hint on quota failures.
func (l *Ledger) SetRetryAfter(d time.Duration) {
	l.retryAfter = d
}

// CheckQuota reports whether the requested tokens fit under both the
// tenant and user limits. The tenant limit is checked first and a
// zero limit admits nothing; a user with a nil limit is only bound by
// the tenant limit. The check is
// advisory, not a reservation: concurrent requests may each pass and
// overshoot slightly, which UpdateUsage records faithfully.
func (l *Ledger) CheckQuota(ctx context.Context, tenantID, userID string, requested int64) error {
	usage, err := l.counters.ReadUsage(ctx, tenantID, userID)
	if err != nil {
		return fmt.Errorf("quota check unavailable: %w", err)
	}

	tenant, err := l.repo.GetTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return err
		}
		return &DatabaseError{Op: "get tenant", Err: err}
	}

	if usage.TenantTokens+requested > tenant.QuotaLimit {
		metrics.QuotaBreaches.WithLabelValues(string(ScopeTenant)).Inc()
		return &QuotaExceededError{
			Scope:        ScopeTenant,
			TenantID:     tenantID,
			Limit:        tenant.QuotaLimit,
			CurrentUsage: usage.TenantTokens,
			Requested:    requested,
			RetryAfter:   l.retryAfter,
		}
	}

	user, err := l.repo.GetUser(ctx, tenantID, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Unknown users fall through to the tenant limit only.
			return nil
		}
		return &DatabaseError{Op: "get user", Err: err}
	}

	if user.QuotaLimit != nil && usage.UserTokens+requested > *user.QuotaLimit {
		metrics.QuotaBreaches.WithLabelValues(string(ScopeUser)).Inc()
		return &QuotaExceededError{
			Scope:        ScopeUser,
			TenantID:     tenantID,
			UserID:       userID,
			Limit:        *user.QuotaLimit,
			CurrentUsage: usage.UserTokens,
			Requested:    requested,
			RetryAfter:   l.retryAfter,
		}
	}

	return nil
}

// UpdateUsage bills one completed generation: it bumps the live
// counters, prices the tokens, snapshots the counters to Postgres and
// appends a usage record, then fires threshold webhooks asynchronously
// when tenant usage crosses the alert threshold.
//
// A counter store failure aborts before anything is billed. A Postgres
// failure after the increment returns *DatabaseError with the counters
// left intact; the durable snapshot catches up on the next update.
func (l *Ledger) UpdateUsage(ctx context.Context, upd UsageUpdate) error {
	totalTokens := upd.PromptTokens + upd.CompletionTokens
	cost := l.pricing.CostFor(upd.Model, upd.PromptTokens, upd.CompletionTokens)

	usage, err := l.counters.IncrementTokens(ctx, upd.TenantID, upd.UserID, int64(totalTokens))
	if err != nil {
		return fmt.Errorf("failed to record usage: %w", err)
	}

	tenant, err := l.repo.GetTenant(ctx, upd.TenantID)
	if err != nil {
		if errors.Is(err, ErrTenantNotFound) {
			return err
		}
		return &DatabaseError{Op: "get tenant", Err: err}
	}

	if err := l.repo.SaveTenantUsage(ctx, upd.TenantID, usage.TenantTokens); err != nil {
		return &DatabaseError{Op: "save tenant usage", Err: err}
	}
	if err := l.repo.SaveUserUsage(ctx, upd.TenantID, upd.UserID, usage.UserTokens); err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			return &DatabaseError{Op: "save user usage", Err: err}
		}
	}

	record := &types.UsageRecord{
		ID:               uuid.NewString(),
		TenantID:         upd.TenantID,
		UserID:           upd.UserID,
		RequestID:        upd.RequestID,
		Model:            upd.Model,
		Provider:         upd.Provider,
		PromptTokens:     upd.PromptTokens,
		CompletionTokens: upd.CompletionTokens,
		TotalTokens:      totalTokens,
		Cost:             cost,
		Timestamp:        time.Now().UTC(),
		Metadata:         upd.Metadata,
	}
	if err := l.repo.InsertUsageRecord(ctx, record); err != nil {
		return &DatabaseError{Op: "insert usage record", Err: err}
	}

	metrics.TokensRecorded.WithLabelValues(upd.Model).Add(float64(totalTokens))
	l.logger.Printf("[Quota] Recorded usage: tenant=%s user=%s model=%s tokens=%d cost=$%.6f",
		upd.TenantID, upd.UserID, upd.Model, totalTokens, cost)

	if tenant.QuotaLimit > 0 && float64(usage.TenantTokens) >= l.alertThreshold*float64(tenant.QuotaLimit) {
		go l.notifyThreshold(context.Background(), tenant, usage.TenantTokens)
	}

	return nil
}

// notifyThreshold delivers quota_threshold_reached to every active
// subscribed webhook. Failures are logged, never propagated; billing
// already succeeded.
func (l *Ledger) notifyThreshold(ctx context.Context, tenant *types.Tenant, currentUsage int64) {
	webhooks, err := l.repo.ActiveWebhooksForEvent(ctx, tenant.ID, EventQuotaThreshold)
	if err != nil {
		l.logger.Printf("[Quota] Failed to load webhooks for tenant %s: %v", tenant.ID, err)
		return
	}

	percentage := roundCost(float64(currentUsage) / float64(tenant.QuotaLimit) * 100)
	data := map[string]interface{}{
		"tenant_id":        tenant.ID,
		"quota_limit":      tenant.QuotaLimit,
		"current_usage":    currentUsage,
		"usage_percentage": percentage,
	}

	for _, wh := range webhooks {
		if err := l.notifier.Notify(ctx, wh, eventTypeThresholdReached, data); err != nil {
			l.logger.Printf("[Quota] Failed to notify webhook %s: %v", wh.ID, err)
		}
	}
}
