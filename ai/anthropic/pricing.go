package anthropic

// ModelPricing contains per-token pricing in USD per million tokens
type ModelPricing struct {
	InputPrice  float64
	OutputPrice float64
}

var modelPricing = map[string]ModelPricing{
	"claude-sonnet-4-20250514":   {InputPrice: 3.00, OutputPrice: 15.00},
	"claude-opus-4-20250514":     {InputPrice: 15.00, OutputPrice: 75.00},
	"claude-3-5-sonnet-20241022": {InputPrice: 3.00, OutputPrice: 15.00},
	"claude-3-5-sonnet-latest":   {InputPrice: 3.00, OutputPrice: 15.00},
	"claude-3-5-haiku-20241022":  {InputPrice: 0.80, OutputPrice: 4.00},
	"claude-3-5-haiku-latest":    {InputPrice: 0.80, OutputPrice: 4.00},
	"claude-3-haiku-20240307":    {InputPrice: 0.25, OutputPrice: 1.25},
}

// CalculateCost computes the cost of a Messages API call in USD.
// Unknown models are priced as Sonnet.
func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	pricing, found := modelPricing[model]
	if !found {
		pricing = modelPricing["claude-3-5-sonnet-latest"]
	}
	return float64(inputTokens)/1_000_000.0*pricing.InputPrice +
		float64(outputTokens)/1_000_000.0*pricing.OutputPrice
}
