// Copyright 2025 LLManager Authors
// SPDX-License-Identifier: Apache-2.0

package quota

import (
	"fmt"
	"log"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPricingModel is priced when a request names a model the
// table does not know.
const DefaultPricingModel = "gpt-3.5-turbo"

// ModelRate holds USD prices per 1000 tokens.
type ModelRate struct {
	Prompt     float64 `yaml:"prompt"`
	Completion float64 `yaml:"completion"`
}

// defaultRates mirrors the published OpenAI list prices.
func defaultRates() map[string]ModelRate {
	return map[string]ModelRate{
		"gpt-4":             {Prompt: 0.03, Completion: 0.06},
		"gpt-4-32k":         {Prompt: 0.06, Completion: 0.12},
		"gpt-3.5-turbo":     {Prompt: 0.0015, Completion: 0.002},
		"gpt-3.5-turbo-16k": {Prompt: 0.003, Completion: 0.004},
	}
}

// Pricing converts token counts into USD costs. Unknown models fall
// back to DefaultPricingModel so a new model never blocks billing.
type Pricing struct {
	rates        map[string]ModelRate
	defaultModel string
	logger       *log.Logger
}

// NewPricing returns a Pricing seeded with the built-in rate table.
func NewPricing(logger *log.Logger) *Pricing {
	if logger == nil {
		logger = log.New(os.Stdout, "[pricing] ", log.LstdFlags)
	}
	return &Pricing{
		rates:        defaultRates(),
		defaultModel: DefaultPricingModel,
		logger:       logger,
	}
}

// LoadPricingFile reads a YAML rate table keyed by model name. Entries
// override or extend the built-in defaults.
func (p *Pricing) LoadPricingFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read pricing file: %w", err)
	}
	overrides := make(map[string]ModelRate)
	if err := yaml.Unmarshal(raw, &overrides); err != nil {
		return fmt.Errorf("failed to parse pricing file: %w", err)
	}
	for model, rate := range overrides {
		p.rates[model] = rate
	}
	return nil
}

// Rate returns the rate used for model, falling back to the default
// model when unknown.
func (p *Pricing) Rate(model string) ModelRate {
	if rate, ok := p.rates[model]; ok {
		return rate
	}
	p.logger.Printf("no pricing for model %s, using %s rates", model, p.defaultModel)
	return p.rates[p.defaultModel]
}

// CostFor prices a completed generation in USD, rounded to six
// decimal places.
func (p *Pricing) CostFor(model string, promptTokens, completionTokens int) float64 {
	rate := p.Rate(model)
	cost := float64(promptTokens)/1000*rate.Prompt + float64(completionTokens)/1000*rate.Completion
	return roundCost(cost)
}

func roundCost(c float64) float64 {
	return math.Round(c*1e6) / 1e6
}
