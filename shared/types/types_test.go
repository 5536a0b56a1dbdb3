// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestUserRoleIsValid(t *testing.T) {
	valid := []UserRole{RoleAdmin, RoleUser, RoleReadOnly}
	for _, r := range valid {
		if !r.IsValid() {
			t.Errorf("expected %s to be valid", r)
		}
	}
	if UserRole("superuser").IsValid() {
		t.Error("expected superuser to be invalid")
	}
	if UserRole("").IsValid() {
		t.Error("expected empty role to be invalid")
	}
}

func TestAPIKeyExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name      string
		expiresAt *time.Time
		want      bool
	}{
		{name: "no expiry", expiresAt: nil, want: false},
		{name: "future expiry", expiresAt: &future, want: false},
		{name: "past expiry", expiresAt: &past, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := &APIKey{ExpiresAt: tt.expiresAt}
			if got := k.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWebhookSubscribedTo(t *testing.T) {
	w := &Webhook{Events: []string{"quota_threshold", "key_rotated"}}
	if !w.SubscribedTo("quota_threshold") {
		t.Error("expected subscription to quota_threshold")
	}
	if w.SubscribedTo("tenant_deleted") {
		t.Error("unexpected subscription to tenant_deleted")
	}

	empty := &Webhook{}
	if empty.SubscribedTo("quota_threshold") {
		t.Error("webhook with no events should subscribe to nothing")
	}
}

func TestSecretsNeverSerialized(t *testing.T) {
	key, err := json.Marshal(APIKey{ID: "key-1", KeyHash: "deadbeef"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(key), "deadbeef") {
		t.Error("key hash leaked into JSON")
	}

	wh, err := json.Marshal(Webhook{ID: "wh-1", Secret: "whsec_topsecret"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(wh), "whsec_topsecret") {
		t.Error("webhook secret leaked into JSON")
	}
}
