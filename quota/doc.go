// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

// Package quota implements token quota accounting for tenants and
// users. The Ledger answers admission checks against live Redis
// counters and records usage after each completed generation: it
// bumps the atomic counters, prices the tokens, persists a usage
// record plus counter snapshots to Postgres, and fires threshold
// webhooks when a tenant crosses the configured alert fraction of
// its limit.
//
// The Redis counters are the authoritative live balance. Postgres
// rows are periodic snapshots plus the append-only billing trail;
// a failed snapshot write never rolls the counters back.
package quota
