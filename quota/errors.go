// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

package quota

import (
	"errors"
	"fmt"
	"time"
)

// Scope identifies which limit a quota failure was evaluated against.
type Scope string

const (
	ScopeTenant Scope = "tenant"
	ScopeUser   Scope = "user"
)

// Stable error codes returned to API clients.
const (
	CodeQuotaExceeded = "quota_exceeded"
	CodeDatabaseError = "database_error"
)

// ErrQuotaExceeded is the sentinel matched by errors.Is for any
// *QuotaExceededError.
var ErrQuotaExceeded = errors.New("token quota exceeded")

// ErrTenantNotFound is returned by repositories when the tenant row
// does not exist.
var ErrTenantNotFound = errors.New("tenant not found")

// ErrUserNotFound is returned by repositories when the user row does
// not exist.
var ErrUserNotFound = errors.New("user not found")

// QuotaExceededError reports an admission check that would push a
// counter past its limit. RetryAfter is advisory: counters only grow
// until an operator raises the limit or resets usage, so it is a
// polling hint rather than a promise.
type QuotaExceededError struct {
	Scope        Scope
	TenantID     string
	UserID       string
	Limit        int64
	CurrentUsage int64
	Requested    int64
	RetryAfter   time.Duration
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("%s quota exceeded for tenant %s: usage %d + requested %d > limit %d",
		e.Scope, e.TenantID, e.CurrentUsage, e.Requested, e.Limit)
}

func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// Code returns the stable machine-readable code for API responses.
func (e *QuotaExceededError) Code() string { return CodeQuotaExceeded }

// DatabaseError wraps a persistence failure on the billing path. When
// it is returned from UpdateUsage the Redis counters have already been
// bumped and are not rolled back; the caller may retry the snapshot
// write out of band.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database error during %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// Code returns the stable machine-readable code for API responses.
func (e *DatabaseError) Code() string { return CodeDatabaseError }
