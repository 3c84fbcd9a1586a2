package am

import "github.com/teranos/ghostwrite/errors"

var validStrategies = map[string]bool{"fast": true, "reasoned": true, "block_rewrite": true}
var validProviders = map[string]bool{"auto": true, "local": true, "openrouter": true, "anthropic": true}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Provider != "" && !validProviders[c.Provider] {
		return errors.Newf("provider must be one of auto, local, openrouter, anthropic, got %q", c.Provider)
	}

	switch c.Server.Transport {
	case "", TransportStdio, TransportWebSocket:
	default:
		return errors.Newf("server.transport must be %q or %q, got %q", TransportStdio, TransportWebSocket, c.Server.Transport)
	}
	if c.Server.Transport == TransportWebSocket && c.Server.Address == "" {
		return errors.New("server.address cannot be empty for the websocket transport")
	}
	if c.Server.MaxDocuments < 0 {
		return errors.Newf("server.max_documents must be >= 0, got %d", c.Server.MaxDocuments)
	}

	comp := c.Completion
	if comp.Strategy != "" && !validStrategies[comp.Strategy] {
		return errors.Newf("completion.strategy must be one of fast, reasoned, block_rewrite, got %q", comp.Strategy)
	}
	// 0 = no debounce, negative = invalid
	if comp.DebounceMs < 0 {
		return errors.Newf("completion.debounce_ms must be >= 0, got %d", comp.DebounceMs)
	}
	if comp.MinOffset < 0 {
		return errors.Newf("completion.min_offset must be >= 0, got %d", comp.MinOffset)
	}
	if comp.Cache.Enabled {
		if comp.Cache.Size <= 0 {
			return errors.Newf("completion.cache.size must be > 0 when enabled, got %d", comp.Cache.Size)
		}
		if comp.Cache.TTLMinutes < 0 {
			return errors.Newf("completion.cache.ttl_minutes must be >= 0, got %d", comp.Cache.TTLMinutes)
		}
	}
	// 0 = unlimited
	if comp.RateLimit.RequestsPerSecond < 0 {
		return errors.Newf("completion.rate_limit.requests_per_second must be >= 0, got %f", comp.RateLimit.RequestsPerSecond)
	}
	if comp.RateLimit.RequestsPerSecond > 0 && comp.RateLimit.Burst <= 0 {
		return errors.Newf("completion.rate_limit.burst must be > 0 when rate limiting, got %d", comp.RateLimit.Burst)
	}

	for name, sc := range map[string]StrategyConfig{
		"fast":          comp.Strategies.Fast,
		"reasoned":      comp.Strategies.Reasoned,
		"block_rewrite": comp.Strategies.BlockRewrite,
	} {
		if err := sc.validate("completion.strategies." + name); err != nil {
			return err
		}
	}

	if c.Telemetry.Enabled && c.Telemetry.BufferSize <= 0 {
		return errors.Newf("telemetry.buffer_size must be > 0 when enabled, got %d", c.Telemetry.BufferSize)
	}

	if c.LocalInference.Enabled {
		if c.LocalInference.BaseURL == "" {
			return errors.New("local_inference.base_url cannot be empty when enabled")
		}
		if c.LocalInference.Model == "" {
			return errors.New("local_inference.model cannot be empty when enabled")
		}
		if c.LocalInference.TimeoutSeconds <= 0 {
			return errors.Newf("local_inference.timeout_seconds must be > 0, got %d", c.LocalInference.TimeoutSeconds)
		}
	}

	if c.OpenRouter.Temperature != nil && (*c.OpenRouter.Temperature < 0 || *c.OpenRouter.Temperature > 2) {
		return errors.Newf("openrouter.temperature must be within [0, 2], got %f", *c.OpenRouter.Temperature)
	}
	if c.OpenRouter.MaxTokens != nil && *c.OpenRouter.MaxTokens <= 0 {
		return errors.Newf("openrouter.max_tokens must be > 0 (omit for default), got %d", *c.OpenRouter.MaxTokens)
	}

	return nil
}

// Zero fields fall back to strategy defaults, so only negatives are rejected.
func (s StrategyConfig) validate(prefix string) error {
	checks := []struct {
		name  string
		value int
	}{
		{"lines_before", s.LinesBefore},
		{"lines_after", s.LinesAfter},
		{"max_context_chars", s.MaxContextChars},
		{"file_context_chars", s.FileContextChars},
		{"timeout_ms", s.TimeoutMs},
		{"max_tokens", s.MaxTokens},
	}
	for _, c := range checks {
		if c.value < 0 {
			return errors.Newf("%s.%s must be >= 0, got %d", prefix, c.name, c.value)
		}
	}
	if s.Temperature != nil && (*s.Temperature < 0 || *s.Temperature > 2) {
		return errors.Newf("%s.temperature must be within [0, 2], got %f", prefix, *s.Temperature)
	}
	return nil
}
