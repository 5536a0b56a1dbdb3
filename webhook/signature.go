// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the payload.
const SignatureHeader = "X-Webhook-Signature"

// Envelope builds the wire payload for an event. The envelope is
// marshaled from a map so keys serialize in sorted order; receivers
// verify the signature against these exact bytes, so the key order is
// part of the wire contract.
func Envelope(eventType string, timestamp time.Time, data map[string]interface{}) ([]byte, error) {
	payload := map[string]interface{}{
		"event_type": eventType,
		"timestamp":  timestamp.UTC().Format(time.RFC3339),
		"data":       data,
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode webhook payload: %w", err)
	}
	return encoded, nil
}

// Sign computes the hex-encoded HMAC-SHA256 of payload under secret.
func Sign(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether signature matches payload under
// secret, in constant time.
func VerifySignature(secret string, payload []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, payload)), []byte(signature))
}
