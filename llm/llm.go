// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm defines the generation provider boundary: the Provider
// interface the gateway calls into and a concurrent-safe Registry
// that maps model names to providers. Provider-specific API adapters
// live outside this module; deployments register implementations at
// startup.
package llm

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/karnagge/llmanager/shared/types"
)

// CodeModelNotAvailable is the stable error code for API responses.
const CodeModelNotAvailable = "model_not_available"

// GenerationRequest asks a provider for one completion.
type GenerationRequest struct {
	Model       string                 `json:"model"`
	Prompt      string                 `json:"prompt"`
	MaxTokens   int                    `json:"max_tokens,omitempty"`
	Temperature float64                `json:"temperature,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// GenerationResult carries the completion and the provider-reported
// token accounting the quota ledger bills from.
type GenerationResult struct {
	Content string           `json:"content"`
	Model   string           `json:"model"`
	Usage   types.TokenUsage `json:"usage"`
}

// Provider is one upstream generation backend. Implementations must
// be safe for concurrent use.
type Provider interface {
	// Name identifies the provider in usage records and logs.
	Name() string

	// Generate produces a completion. The returned usage must reflect
	// what the provider actually consumed.
	Generate(ctx context.Context, req GenerationRequest) (*GenerationResult, error)

	// CountTokens estimates the prompt token count for a model. The
	// gateway uses this for quota admission before generating.
	CountTokens(model, text string) (int, error)
}

// ModelNotAvailableError reports a model no registered provider can
// serve.
type ModelNotAvailableError struct {
	Model string
}

func (e *ModelNotAvailableError) Error() string {
	return fmt.Sprintf("model %s is not available", e.Model)
}

// Code returns the stable machine-readable code for API responses.
func (e *ModelNotAvailableError) Code() string { return CodeModelNotAvailable }

// Registry maps model names to providers. Lookup order: exact model
// binding, then the longest matching model prefix binding (for
// versioned model names like gpt-4-0613), then the default provider
// when one is set.
type Registry struct {
	providers map[string]Provider
	models    map[string]string
	defName   string
	logger    *log.Logger
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *log.Logger) *Registry {
	if logger == nil {
		logger = log.New(os.Stdout, "[LLM] ", log.LstdFlags)
	}
	return &Registry{
		providers: make(map[string]Provider),
		models:    make(map[string]string),
		logger:    logger,
	}
}

// Register adds a provider and binds the given model names (exact or
// prefix) to it. Registering an existing provider name replaces it.
func (r *Registry) Register(provider Provider, models ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.Name()] = provider
	for _, model := range models {
		r.models[model] = provider.Name()
	}
	r.logger.Printf("registered provider %s for models %v", provider.Name(), models)
}

// SetDefault names the provider used for models with no binding.
func (r *Registry) SetDefault(providerName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.providers[providerName]; !ok {
		return fmt.Errorf("unknown provider %s", providerName)
	}
	r.defName = providerName
	return nil
}

// ProviderFor resolves the provider serving model.
func (r *Registry) ProviderFor(model string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name, ok := r.models[model]; ok {
		return r.providers[name], nil
	}
	// Longest matching prefix wins so "gpt-4" beats "gpt" for
	// gpt-4-0613. Distinct prefixes of equal length cannot both match,
	// so the choice is deterministic.
	var best string
	for prefix := range r.models {
		if strings.HasPrefix(model, prefix+"-") && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best != "" {
		return r.providers[r.models[best]], nil
	}
	if r.defName != "" {
		return r.providers[r.defName], nil
	}
	return nil, &ModelNotAvailableError{Model: model}
}

// Providers returns the registered provider names.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}
