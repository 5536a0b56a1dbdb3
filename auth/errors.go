// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"errors"
	"fmt"
	"strings"
)

// Stable error codes returned to API clients.
const (
	CodeInvalidAPIKey           = "invalid_api_key"
	CodeInsufficientPermissions = "insufficient_permissions"
)

// ErrInvalidAPIKey covers every authentication failure: unknown key,
// disabled key, disabled tenant, expired key, or a tenant claim that
// does not match the key. The specific reason is logged server-side
// only.
var ErrInvalidAPIKey = errors.New("invalid API key")

// InsufficientPermissionsError reports an authorization failure. It
// names the required permissions but never the granted set.
type InsufficientPermissionsError struct {
	Required []string
}

func (e *InsufficientPermissionsError) Error() string {
	return fmt.Sprintf("insufficient permissions: requires %s", strings.Join(e.Required, ", "))
}

// Code returns the stable machine-readable code for API responses.
func (e *InsufficientPermissionsError) Code() string { return CodeInsufficientPermissions }
