package openrouter

// ModelPricing contains per-token pricing in USD per million tokens
type ModelPricing struct {
	PromptPrice     float64
	CompletionPrice float64
}

// TODO: pull pricing from the OpenRouter /models endpoint instead of this table
var modelPricing = map[string]ModelPricing{
	"openai/gpt-4o":                    {PromptPrice: 2.50, CompletionPrice: 10.00},
	"openai/gpt-4o-mini":               {PromptPrice: 0.15, CompletionPrice: 0.60},
	"openai/gpt-4.1-mini":              {PromptPrice: 0.40, CompletionPrice: 1.60},
	"anthropic/claude-3.5-sonnet":      {PromptPrice: 3.00, CompletionPrice: 15.00},
	"anthropic/claude-3.5-haiku":       {PromptPrice: 0.80, CompletionPrice: 4.00},
	"anthropic/claude-3-haiku":         {PromptPrice: 0.25, CompletionPrice: 1.25},
	"x-ai/grok-code-fast-1":            {PromptPrice: 0.20, CompletionPrice: 1.50},
	"google/gemini-flash-1.5":          {PromptPrice: 0.075, CompletionPrice: 0.30},
	"mistralai/codestral-2501":         {PromptPrice: 0.30, CompletionPrice: 0.90},
	"qwen/qwen-2.5-coder-32b-instruct": {PromptPrice: 0.07, CompletionPrice: 0.16},
	"meta-llama/llama-3.1-8b-instruct": {PromptPrice: 0.055, CompletionPrice: 0.055},
	"deepseek/deepseek-chat":           {PromptPrice: 0.27, CompletionPrice: 1.10},
}

// DefaultPricingFallback is the per-request cost charged for unknown models
const DefaultPricingFallback = 0.01

// CalculateCost computes the cost of an API call in USD
func CalculateCost(model string, promptTokens, completionTokens int) float64 {
	pricing, found := modelPricing[model]
	if !found {
		return DefaultPricingFallback
	}

	promptCost := (float64(promptTokens) / 1_000_000.0) * pricing.PromptPrice
	completionCost := (float64(completionTokens) / 1_000_000.0) * pricing.CompletionPrice
	return promptCost + completionCost
}

// GetPricing returns pricing information for a model, if available
func GetPricing(model string) (ModelPricing, bool) {
	pricing, found := modelPricing[model]
	return pricing, found
}
