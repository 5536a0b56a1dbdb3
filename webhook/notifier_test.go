// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karnagge/llmanager/shared/types"
)

const testRetryDelay = 10 * time.Millisecond

func newTestStatusStore(t *testing.T) (*RedisStatusStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStatusStore(client), mr
}

func testWebhook(url string) types.Webhook {
	return types.Webhook{
		ID:       "wh-1",
		TenantID: "tenant-1",
		URL:      url,
		Secret:   "whsec_test",
		IsActive: true,
		Events:   []string{"quota_threshold"},
	}
}

func TestDeliverFirstAttemptSuccess(t *testing.T) {
	var gotSignature string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSignature = r.Header.Get(SignatureHeader)
		gotBody, _ = io.ReadAll(r.Body)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	status, _ := newTestStatusStore(t)
	n := NewNotifierWithOptions(status, nil, 3, testRetryDelay, nil)

	result, err := n.Deliver(context.Background(), testWebhook(server.URL), "quota_threshold_reached",
		map[string]interface{}{"tenant_id": "tenant-1"})
	require.NoError(t, err)
	assert.True(t, result.Delivered)
	assert.Equal(t, 1, result.Attempts)
	assert.Equal(t, http.StatusOK, result.StatusCode)

	// Receiver can verify the signature against the raw body.
	assert.True(t, VerifySignature("whsec_test", gotBody, gotSignature))

	var envelope struct {
		EventType string                 `json:"event_type"`
		Timestamp string                 `json:"timestamp"`
		Data      map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(gotBody, &envelope))
	assert.Equal(t, "quota_threshold_reached", envelope.EventType)
	assert.Equal(t, "tenant-1", envelope.Data["tenant_id"])
	_, err = time.Parse(time.RFC3339, envelope.Timestamp)
	assert.NoError(t, err)

	got, err := status.GetStatus(context.Background(), "wh-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, got)
}

func TestDeliverRetriesThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	status, _ := newTestStatusStore(t)
	n := NewNotifierWithOptions(status, nil, 3, testRetryDelay, nil)

	result, err := n.Deliver(context.Background(), testWebhook(server.URL), "quota_threshold_reached", nil)
	require.NoError(t, err)
	assert.True(t, result.Delivered)
	assert.Equal(t, 3, result.Attempts)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	got, _ := status.GetStatus(context.Background(), "wh-1")
	assert.Equal(t, StatusSuccess, got)
}

func TestDeliverExhaustsRetries(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	status, _ := newTestStatusStore(t)
	n := NewNotifierWithOptions(status, nil, 3, testRetryDelay, nil)

	result, err := n.Deliver(context.Background(), testWebhook(server.URL), "quota_threshold_reached", nil)
	require.Error(t, err)

	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "wh-1", derr.WebhookID)
	assert.Equal(t, 3, derr.Attempts)
	assert.Equal(t, "webhook_delivery_error", derr.Code())

	assert.False(t, result.Delivered)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	got, _ := status.GetStatus(context.Background(), "wh-1")
	assert.Equal(t, StatusFailed, got)
}

func TestDeliverNon2xxIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	n := NewNotifierWithOptions(nil, nil, 1, testRetryDelay, nil)

	result, err := n.Deliver(context.Background(), testWebhook(server.URL), "quota_threshold_reached", nil)
	require.Error(t, err)
	assert.False(t, result.Delivered)
	assert.Equal(t, http.StatusBadRequest, result.StatusCode)
}

func TestDeliverPendingBetweenAttempts(t *testing.T) {
	statusCh := make(chan string, 3)
	status, _ := newTestStatusStore(t)

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 2 {
			// By the second attempt the side channel shows pending.
			got, _ := status.GetStatus(r.Context(), "wh-1")
			statusCh <- got
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := NewNotifierWithOptions(status, nil, 3, testRetryDelay, nil)

	_, err := n.Deliver(context.Background(), testWebhook(server.URL), "quota_threshold_reached", nil)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, <-statusCh)
}

func TestDeliverUnreachableEndpoint(t *testing.T) {
	status, _ := newTestStatusStore(t)
	n := NewNotifierWithOptions(status, nil, 2, testRetryDelay, nil)

	wh := testWebhook("http://127.0.0.1:1/hook")
	_, err := n.Deliver(context.Background(), wh, "quota_threshold_reached", nil)

	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 2, derr.Attempts)
}

func TestDeliverContextCancelledDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	status, _ := newTestStatusStore(t)
	n := NewNotifierWithOptions(status, nil, 3, time.Minute, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := n.Deliver(ctx, testWebhook(server.URL), "quota_threshold_reached", nil)
	require.Error(t, err)

	var derr *DeliveryError
	require.ErrorAs(t, err, &derr)
	assert.ErrorIs(t, derr.Err, context.Canceled)
	assert.Less(t, time.Since(start), 10*time.Second)

	got, _ := status.GetStatus(context.Background(), "wh-1")
	assert.Equal(t, StatusFailed, got)
}

func TestDeliverWithoutStatusStore(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := NewNotifier(nil)
	result, err := n.Deliver(context.Background(), testWebhook(server.URL), "quota_threshold_reached", nil)
	require.NoError(t, err)
	assert.True(t, result.Delivered)
}

func TestStatusStoreTTL(t *testing.T) {
	status, mr := newTestStatusStore(t)
	ctx := context.Background()

	require.NoError(t, status.SetStatus(ctx, "wh-1", StatusSuccess))

	got, err := status.GetStatus(ctx, "wh-1")
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, got)
	assert.Equal(t, DefaultStatusTTL, mr.TTL("webhook_status:wh-1"))

	// Status expires after the TTL window.
	mr.FastForward(DefaultStatusTTL + time.Second)
	got, err = status.GetStatus(ctx, "wh-1")
	require.NoError(t, err)
	assert.Equal(t, "", got)
}

func TestNotifyAdapterPropagatesError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	n := NewNotifierWithOptions(nil, nil, 1, testRetryDelay, nil)
	err := n.Notify(context.Background(), testWebhook(server.URL), "quota_threshold_reached", nil)
	assert.Error(t, err)
}
