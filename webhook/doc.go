// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

// Package webhook delivers signed event notifications to tenant
// endpoints. Payloads are wrapped in a stable envelope, signed with
// HMAC-SHA256 over the canonical JSON bytes, and POSTed with a small
// fixed-delay retry loop. Delivery status is mirrored into a
// TTL-bounded Redis side channel that dashboards can poll; the side
// channel is best-effort and never authoritative.
package webhook
