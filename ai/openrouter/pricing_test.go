package openrouter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalculateCost(t *testing.T) {
	tests := []struct {
		name       string
		model      string
		prompt     int
		completion int
		want       float64
	}{
		{"gpt-4o-mini", "openai/gpt-4o-mini", 1_000_000, 1_000_000, 0.75},
		{"typical fast completion", "openai/gpt-4o-mini", 500, 20, 0.000075 + 0.000012},
		{"claude sonnet", "anthropic/claude-3.5-sonnet", 2000, 500, 0.006 + 0.0075},
		{"zero tokens", "openai/gpt-4o", 0, 0, 0},
		{"unknown model uses fallback", "someone/unknown", 10, 10, DefaultPricingFallback},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CalculateCost(tt.model, tt.prompt, tt.completion), 1e-9)
		})
	}
}

func TestGetPricing(t *testing.T) {
	p, ok := GetPricing("openai/gpt-4o-mini")
	assert.True(t, ok)
	assert.Equal(t, 0.15, p.PromptPrice)

	_, ok = GetPricing("nope/nope")
	assert.False(t, ok)
}
