// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

package quota

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCostForKnownModels(t *testing.T) {
	p := NewPricing(nil)

	tests := []struct {
		name             string
		model            string
		promptTokens     int
		completionTokens int
		want             float64
	}{
		{
			name:             "gpt-4 round numbers",
			model:            "gpt-4",
			promptTokens:     1000,
			completionTokens: 1000,
			want:             0.09,
		},
		{
			name:             "gpt-4-32k",
			model:            "gpt-4-32k",
			promptTokens:     500,
			completionTokens: 250,
			want:             0.06,
		},
		{
			name:             "gpt-3.5-turbo small request",
			model:            "gpt-3.5-turbo",
			promptTokens:     30,
			completionTokens: 20,
			want:             0.000085,
		},
		{
			name:             "gpt-3.5-turbo-16k",
			model:            "gpt-3.5-turbo-16k",
			promptTokens:     2000,
			completionTokens: 1000,
			want:             0.01,
		},
		{
			name:  "zero tokens",
			model: "gpt-4",
			want:  0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.CostFor(tt.model, tt.promptTokens, tt.completionTokens)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCostForUnknownModelFallsBack(t *testing.T) {
	p := NewPricing(nil)

	got := p.CostFor("some-future-model", 30, 20)
	want := p.CostFor("gpt-3.5-turbo", 30, 20)
	assert.Equal(t, want, got)
}

func TestCostRoundedToSixDecimals(t *testing.T) {
	p := NewPricing(nil)

	// 1 prompt token of gpt-3.5-turbo is 0.0000015 exactly; rounds up.
	got := p.CostFor("gpt-3.5-turbo", 1, 0)
	assert.Equal(t, 0.000002, got)
}

func TestLoadPricingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pricing.yaml")
	content := `
gpt-4:
  prompt: 0.01
  completion: 0.02
my-custom-model:
  prompt: 0.005
  completion: 0.01
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	p := NewPricing(nil)
	require.NoError(t, p.LoadPricingFile(path))

	// Overridden model uses the new rates.
	assert.Equal(t, 0.03, p.CostFor("gpt-4", 1000, 1000))
	// New model is priced directly, no fallback.
	assert.Equal(t, 0.015, p.CostFor("my-custom-model", 1000, 1000))
	// Untouched models keep defaults.
	assert.Equal(t, 0.0035, p.CostFor("gpt-3.5-turbo", 1000, 1000))
}

func TestLoadPricingFileErrors(t *testing.T) {
	p := NewPricing(nil)

	assert.Error(t, p.LoadPricingFile("/nonexistent/pricing.yaml"))

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml:::"), 0o600))
	assert.Error(t, p.LoadPricingFile(path))
}
