// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth validates API keys and authorizes requests against the
// permission sets attached to them. Keys are looked up by SHA-256
// hash; the raw secret is never stored or logged. All validation
// failures surface as the same invalid-key error so callers cannot
// probe which check rejected them.
package auth
