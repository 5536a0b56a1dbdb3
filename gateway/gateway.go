// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

// Package gateway composes the admission pipeline: authenticate the
// API key, authorize the operation, check quota against an estimate,
// generate, then bill the actual usage. A failed generation bills
// nothing.
package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/karnagge/llmanager/auth"
	"github.com/karnagge/llmanager/llm"
	"github.com/karnagge/llmanager/metrics"
	"github.com/karnagge/llmanager/quota"
	"github.com/karnagge/llmanager/shared/logger"
	"github.com/karnagge/llmanager/shared/types"
)

// DefaultRequiredPermission guards generation when the caller does not
// name a finer-grained requirement.
const DefaultRequiredPermission = "llm:generate"

// Rejection reasons used as metric labels.
const (
	reasonInvalidAPIKey           = "invalid_api_key"
	reasonInsufficientPermissions = "insufficient_permissions"
	reasonQuotaExceeded           = "quota_exceeded"
	reasonModelNotAvailable       = "model_not_available"
	reasonGenerationFailed        = "generation_failed"
	reasonInternal                = "internal"
)

// Request is one admission-gated generation call.
type Request struct {
	APIKey              string
	TenantIDClaim       string
	RequiredPermissions []string
	Generation          llm.GenerationRequest
	Metadata            map[string]interface{}
}

// Response carries the completion plus the accounting identifiers the
// caller can correlate with usage records.
type Response struct {
	RequestID string           `json:"request_id"`
	TenantID  string           `json:"tenant_id"`
	Content   string           `json:"content"`
	Model     string           `json:"model"`
	Provider  string           `json:"provider"`
	Usage     types.TokenUsage `json:"usage"`
}

// Authenticator is the auth gate surface the gateway needs.
type Authenticator interface {
	Authenticate(ctx context.Context, rawKey, tenantIDClaim string) (*types.Tenant, *types.APIKey, error)
	Authorize(key *types.APIKey, required []string) error
}

// Ledger is the quota surface the gateway needs.
type Ledger interface {
	CheckQuota(ctx context.Context, tenantID, userID string, requested int64) error
	UpdateUsage(ctx context.Context, upd quota.UsageUpdate) error
}

// ProviderResolver maps a model name to a generation provider.
type ProviderResolver interface {
	ProviderFor(model string) (llm.Provider, error)
}

// Gateway wires the admission pipeline together. All collaborators
// are injected once at construction.
type Gateway struct {
	auth      Authenticator
	ledger    Ledger
	providers ProviderResolver
	logger    *logger.Logger
}

// New creates a gateway. logger may be nil.
func New(authGate Authenticator, ledger Ledger, providers ProviderResolver, lg *logger.Logger) *Gateway {
	if lg == nil {
		lg = logger.New("gateway")
	}
	return &Gateway{
		auth:      authGate,
		ledger:    ledger,
		providers: providers,
		logger:    lg,
	}
}

// Handle runs one request through the full pipeline. Errors keep
// their package types so transports can map them to stable codes.
func (g *Gateway) Handle(ctx context.Context, req Request) (*Response, error) {
	requestID := uuid.NewString()

	tenant, key, err := g.auth.Authenticate(ctx, req.APIKey, req.TenantIDClaim)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidAPIKey) {
			metrics.RequestsRejected.WithLabelValues(reasonInvalidAPIKey).Inc()
		} else {
			metrics.RequestsRejected.WithLabelValues(reasonInternal).Inc()
		}
		return nil, err
	}

	required := req.RequiredPermissions
	if len(required) == 0 {
		required = []string{DefaultRequiredPermission}
	}
	if err := g.auth.Authorize(key, required); err != nil {
		metrics.RequestsRejected.WithLabelValues(reasonInsufficientPermissions).Inc()
		g.logger.Warn(tenant.ID, requestID, "request denied", map[string]interface{}{
			"required": required,
		})
		return nil, err
	}

	provider, err := g.providers.ProviderFor(req.Generation.Model)
	if err != nil {
		metrics.RequestsRejected.WithLabelValues(reasonModelNotAvailable).Inc()
		return nil, err
	}

	estimate, err := provider.CountTokens(req.Generation.Model, req.Generation.Prompt)
	if err != nil {
		metrics.RequestsRejected.WithLabelValues(reasonInternal).Inc()
		return nil, fmt.Errorf("failed to estimate tokens: %w", err)
	}

	if err := g.ledger.CheckQuota(ctx, tenant.ID, key.UserID, int64(estimate)); err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			metrics.RequestsRejected.WithLabelValues(reasonQuotaExceeded).Inc()
		} else {
			metrics.RequestsRejected.WithLabelValues(reasonInternal).Inc()
		}
		return nil, err
	}

	result, err := provider.Generate(ctx, req.Generation)
	if err != nil {
		metrics.RequestsRejected.WithLabelValues(reasonGenerationFailed).Inc()
		g.logger.ErrorWithErr(tenant.ID, requestID, "generation failed", err, map[string]interface{}{
			"model": req.Generation.Model,
		})
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	err = g.ledger.UpdateUsage(ctx, quota.UsageUpdate{
		TenantID:         tenant.ID,
		UserID:           key.UserID,
		RequestID:        requestID,
		Model:            result.Model,
		Provider:         provider.Name(),
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		Metadata:         req.Metadata,
	})
	if err != nil {
		// The generation happened but could not be billed; surface the
		// failure so the caller knows accounting is behind.
		metrics.RequestsRejected.WithLabelValues(reasonInternal).Inc()
		return nil, err
	}

	metrics.RequestsAdmitted.Inc()
	g.logger.Info(tenant.ID, requestID, "request completed", map[string]interface{}{
		"model":        result.Model,
		"provider":     provider.Name(),
		"total_tokens": result.Usage.TotalTokens,
	})

	return &Response{
		RequestID: requestID,
		TenantID:  tenant.ID,
		Content:   result.Content,
		Model:     result.Model,
		Provider:  provider.Name(),
		Usage:     result.Usage,
	}, nil
}
