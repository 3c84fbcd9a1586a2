package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/ghostwrite/ai/anthropic"
	"github.com/teranos/ghostwrite/ai/openrouter"
	"github.com/teranos/ghostwrite/am"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name     string
		config   am.Config
		explicit Provider
		expected Provider
	}{
		{
			name:     "explicit provider wins",
			config:   am.Config{LocalInference: am.LocalInferenceConfig{Enabled: true, BaseURL: "http://localhost:11434"}},
			explicit: ProviderOpenRouter,
			expected: ProviderOpenRouter,
		},
		{
			name:     "local enabled and configured",
			config:   am.Config{LocalInference: am.LocalInferenceConfig{Enabled: true, BaseURL: "http://localhost:11434"}},
			explicit: ProviderAuto,
			expected: ProviderLocal,
		},
		{
			name:     "local enabled without base url",
			config:   am.Config{LocalInference: am.LocalInferenceConfig{Enabled: true}},
			explicit: ProviderAuto,
			expected: ProviderOpenRouter,
		},
		{
			name:     "anthropic key beats openrouter",
			config:   am.Config{Anthropic: am.AnthropicConfig{APIKey: "sk-ant"}, OpenRouter: am.OpenRouterConfig{APIKey: "sk-or"}},
			explicit: "",
			expected: ProviderAnthropic,
		},
		{
			name:     "nothing configured falls back to openrouter",
			config:   am.Config{},
			explicit: ProviderAuto,
			expected: ProviderOpenRouter,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Resolve(&tt.config, tt.explicit))
		})
	}
}

func TestNewAIClientWithProvider(t *testing.T) {
	cfg := &am.Config{
		LocalInference: am.LocalInferenceConfig{Enabled: true, BaseURL: "http://localhost:11434", Model: "qwen2.5-coder:7b"},
		Anthropic:      am.AnthropicConfig{APIKey: "sk-ant", Model: "claude-3-5-haiku-latest"},
		OpenRouter:     am.OpenRouterConfig{APIKey: "sk-or", Model: "openai/gpt-4o-mini"},
	}

	sel := NewAIClientWithProvider(cfg, ProviderAuto, ClientConfig{})
	assert.Equal(t, ProviderLocal, sel.Provider)
	assert.Equal(t, "qwen2.5-coder:7b", sel.Model)
	assert.IsType(t, &LocalClient{}, sel.Client)

	sel = NewAIClientWithProvider(cfg, ProviderAnthropic, ClientConfig{})
	assert.IsType(t, &anthropic.Client{}, sel.Client)
	assert.Equal(t, "claude-3-5-haiku-latest", sel.Model)

	sel = NewAIClientWithProvider(cfg, ProviderOpenRouter, ClientConfig{})
	assert.IsType(t, &openrouter.Client{}, sel.Client)
	assert.Equal(t, "openai/gpt-4o-mini", sel.Model)
}

func TestNewAIClientParsesConfiguredProvider(t *testing.T) {
	sel, err := NewAIClient(&am.Config{Provider: "claude", Anthropic: am.AnthropicConfig{APIKey: "k"}}, ClientConfig{})
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, sel.Provider)

	_, err = NewAIClient(&am.Config{Provider: "gemini"}, ClientConfig{})
	assert.Error(t, err)
}

func TestParseProvider(t *testing.T) {
	for in, want := range map[string]Provider{
		"local": ProviderLocal, "ollama": ProviderLocal,
		"or": ProviderOpenRouter, "claude": ProviderAnthropic,
		"": ProviderAuto, "auto": ProviderAuto,
	} {
		got, err := ParseProvider(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}

func TestGetAvailableProviders(t *testing.T) {
	assert.Empty(t, GetAvailableProviders(&am.Config{}))
	assert.Equal(t, []Provider{ProviderAnthropic, ProviderOpenRouter}, GetAvailableProviders(&am.Config{
		Anthropic:  am.AnthropicConfig{APIKey: "a"},
		OpenRouter: am.OpenRouterConfig{APIKey: "o"},
	}))
}
