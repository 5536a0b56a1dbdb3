// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/karnagge/llmanager/metrics"
	"github.com/karnagge/llmanager/shared/types"
)

const (
	// DefaultTimeout bounds each delivery attempt.
	DefaultTimeout = 10 * time.Second
	// DefaultMaxAttempts is the total attempt count including the first.
	DefaultMaxAttempts = 3
	// DefaultRetryDelay is the fixed wait between attempts. Fixed
	// rather than exponential: the retry window is short and tenant
	// endpoints see at most three requests.
	DefaultRetryDelay = 5 * time.Second
)

// DeliveryResult reports the outcome of one notification.
type DeliveryResult struct {
	WebhookID  string `json:"webhook_id"`
	EventType  string `json:"event_type"`
	Attempts   int    `json:"attempts"`
	StatusCode int    `json:"status_code,omitempty"`
	Delivered  bool   `json:"delivered"`
}

// DeliveryError reports a notification that exhausted its attempts.
type DeliveryError struct {
	WebhookID string
	Attempts  int
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("webhook %s delivery failed after %d attempts: %v", e.WebhookID, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Code returns the stable machine-readable code for API responses.
func (e *DeliveryError) Code() string { return "webhook_delivery_error" }

// Notifier delivers signed webhook notifications with retries. It
// satisfies the quota package's Notifier interface through Notify.
type Notifier struct {
	client      *http.Client
	status      StatusStore
	logger      *log.Logger
	maxAttempts int
	retryDelay  time.Duration
	now         func() time.Time
}

// NewNotifier creates a notifier with default timeout, attempts and
// delay. status may be nil when no side channel is wired in.
func NewNotifier(status StatusStore) *Notifier {
	return NewNotifierWithOptions(status, nil, DefaultMaxAttempts, DefaultRetryDelay, nil)
}

// NewNotifierWithOptions creates a notifier with custom collaborators.
func NewNotifierWithOptions(status StatusStore, client *http.Client, maxAttempts int, retryDelay time.Duration, logger *log.Logger) *Notifier {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Notifier{
		client:      client,
		status:      status,
		logger:      logger,
		maxAttempts: maxAttempts,
		retryDelay:  retryDelay,
		now:         time.Now,
	}
}

// Deliver sends one signed notification, retrying on any transport
// error or non-2xx response. The status side channel is set to pending
// between attempts, then success or failed once the outcome is known.
func (n *Notifier) Deliver(ctx context.Context, wh types.Webhook, eventType string, data map[string]interface{}) (*DeliveryResult, error) {
	payload, err := Envelope(eventType, n.now(), data)
	if err != nil {
		return nil, err
	}
	signature := Sign(wh.Secret, payload)

	result := &DeliveryResult{WebhookID: wh.ID, EventType: eventType}

	var lastErr error
	for attempt := 1; attempt <= n.maxAttempts; attempt++ {
		result.Attempts = attempt
		metrics.WebhookAttempts.Inc()

		statusCode, err := n.post(ctx, wh.URL, payload, signature)
		result.StatusCode = statusCode
		if err == nil {
			result.Delivered = true
			n.setStatus(ctx, wh.ID, StatusSuccess)
			metrics.WebhookDeliveries.WithLabelValues(StatusSuccess).Inc()
			return result, nil
		}
		lastErr = err
		n.logger.Printf("[Webhook] Delivery attempt %d/%d failed for %s: %v", attempt, n.maxAttempts, wh.ID, err)

		if attempt == n.maxAttempts {
			break
		}
		n.setStatus(ctx, wh.ID, StatusPending)

		select {
		case <-ctx.Done():
			n.setStatus(context.Background(), wh.ID, StatusFailed)
			metrics.WebhookDeliveries.WithLabelValues(StatusFailed).Inc()
			return result, &DeliveryError{WebhookID: wh.ID, Attempts: attempt, Err: ctx.Err()}
		case <-time.After(n.retryDelay):
		}
	}

	n.setStatus(ctx, wh.ID, StatusFailed)
	metrics.WebhookDeliveries.WithLabelValues(StatusFailed).Inc()
	return result, &DeliveryError{WebhookID: wh.ID, Attempts: result.Attempts, Err: lastErr}
}

// Notify adapts Deliver to the notifier interface consumed by the
// quota ledger.
func (n *Notifier) Notify(ctx context.Context, wh types.Webhook, eventType string, data map[string]interface{}) error {
	_, err := n.Deliver(ctx, wh, eventType, data)
	return err
}

func (n *Notifier) post(ctx context.Context, url string, payload []byte, signature string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := n.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

// setStatus writes to the side channel, logging failures. The side
// channel is best effort and never fails a delivery.
func (n *Notifier) setStatus(ctx context.Context, webhookID, status string) {
	if n.status == nil {
		return
	}
	if err := n.status.SetStatus(ctx, webhookID, status); err != nil {
		n.logger.Printf("[Webhook] Failed to set status %s for %s: %v", status, webhookID, err)
	}
}
