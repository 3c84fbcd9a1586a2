package provider

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"github.com/teranos/ghostwrite/ai/anthropic"
	"github.com/teranos/ghostwrite/ai/openrouter"
	"github.com/teranos/ghostwrite/am"
	"github.com/teranos/ghostwrite/errors"
)

// Provider represents an LLM provider type
type Provider string

const (
	// ProviderLocal uses local inference (Ollama, LocalAI)
	ProviderLocal Provider = "local"
	// ProviderOpenRouter uses OpenRouter.ai API
	ProviderOpenRouter Provider = "openrouter"
	// ProviderAnthropic uses direct Anthropic API
	ProviderAnthropic Provider = "anthropic"
	// ProviderAuto selects based on configuration
	ProviderAuto Provider = "auto"
)

// AIClient is implemented by every provider client
type AIClient interface {
	Chat(ctx context.Context, req openrouter.ChatRequest) (*openrouter.ChatResponse, error)
}

// ModelNamer reports the default model of a client
type ModelNamer interface {
	Model() string
}

// ClientConfig holds common configuration for creating AI clients
type ClientConfig struct {
	DB        *sql.DB
	Verbosity int
	Logger    *zap.SugaredLogger
}

// Selection is a constructed client plus what was chosen
type Selection struct {
	Client   AIClient
	Provider Provider
	Model    string
}

// NewAIClient creates an AI client using cfg.Provider (auto when empty)
func NewAIClient(cfg *am.Config, clientCfg ClientConfig) (Selection, error) {
	p, err := ParseProvider(cfg.Provider)
	if err != nil {
		return Selection{}, err
	}
	return NewAIClientWithProvider(cfg, p, clientCfg), nil
}

// NewAIClientWithProvider creates an AI client for a specific provider.
// ProviderAuto picks: local (if enabled) → Anthropic (if key set) → OpenRouter.
func NewAIClientWithProvider(cfg *am.Config, provider Provider, clientCfg ClientConfig) Selection {
	provider = Resolve(cfg, provider)

	var client AIClient
	switch provider {
	case ProviderLocal:
		client = newLocalClient(cfg, clientCfg)
	case ProviderAnthropic:
		client = newAnthropicClient(cfg, clientCfg)
	default:
		provider = ProviderOpenRouter
		client = newOpenRouterClient(cfg, clientCfg)
	}

	sel := Selection{Client: client, Provider: provider}
	if namer, ok := client.(ModelNamer); ok {
		sel.Model = namer.Model()
	}
	return sel
}

// Resolve turns ProviderAuto into a concrete provider
func Resolve(cfg *am.Config, provider Provider) Provider {
	if provider != ProviderAuto && provider != "" {
		return provider
	}
	if cfg.LocalInference.Enabled && cfg.LocalInference.BaseURL != "" {
		return ProviderLocal
	}
	if cfg.Anthropic.APIKey != "" {
		return ProviderAnthropic
	}
	return ProviderOpenRouter
}

func newLocalClient(cfg *am.Config, clientCfg ClientConfig) AIClient {
	return NewLocalClient(LocalClientConfig{
		BaseURL:        cfg.LocalInference.BaseURL,
		Model:          cfg.LocalInference.Model,
		TimeoutSeconds: cfg.LocalInference.TimeoutSeconds,
		ContextSize:    cfg.LocalInference.ContextSize,
		DB:             clientCfg.DB,
		Verbosity:      clientCfg.Verbosity,
		Logger:         clientCfg.Logger,
	})
}

func newAnthropicClient(cfg *am.Config, clientCfg ClientConfig) AIClient {
	return anthropic.NewClient(anthropic.Config{
		APIKey:      cfg.Anthropic.APIKey,
		Model:       cfg.Anthropic.Model,
		Temperature: cfg.Anthropic.Temperature,
		MaxTokens:   cfg.Anthropic.MaxTokens,
		Logger:      clientCfg.Logger,
		DB:          clientCfg.DB,
		Verbosity:   clientCfg.Verbosity,
	})
}

func newOpenRouterClient(cfg *am.Config, clientCfg ClientConfig) AIClient {
	return openrouter.NewClient(openrouter.Config{
		APIKey:      cfg.OpenRouter.APIKey,
		Model:       cfg.OpenRouter.Model,
		Temperature: cfg.OpenRouter.Temperature,
		MaxTokens:   cfg.OpenRouter.MaxTokens,
		Logger:      clientCfg.Logger,
		DB:          clientCfg.DB,
		Verbosity:   clientCfg.Verbosity,
	})
}

// GetAvailableProviders returns the providers that are configured
func GetAvailableProviders(cfg *am.Config) []Provider {
	var providers []Provider
	if cfg.LocalInference.Enabled {
		providers = append(providers, ProviderLocal)
	}
	if cfg.Anthropic.APIKey != "" {
		providers = append(providers, ProviderAnthropic)
	}
	if cfg.OpenRouter.APIKey != "" {
		providers = append(providers, ProviderOpenRouter)
	}
	return providers
}

// ParseProvider converts a string to a Provider type
func ParseProvider(s string) (Provider, error) {
	switch s {
	case "local", "ollama", "localai":
		return ProviderLocal, nil
	case "openrouter", "or":
		return ProviderOpenRouter, nil
	case "anthropic", "claude":
		return ProviderAnthropic, nil
	case "auto", "":
		return ProviderAuto, nil
	default:
		return "", errors.NewInvalidRequestError("unknown provider: %s (valid: local, openrouter, anthropic, auto)", s)
	}
}

var (
	_ AIClient = (*openrouter.Client)(nil)
	_ AIClient = (*anthropic.Client)(nil)
	_ AIClient = (*LocalClient)(nil)
)
