package models

// Usage holds token accounting and the cost estimate for one exchange.
// TotalTokens is always recomputed locally as InputTokens + OutputTokens;
// provider-reported totals are never trusted blindly.
type Usage struct {
	Model        string  `json:"model"`
	InputTokens  int     `json:"input_tokens"`
	OutputTokens int     `json:"output_tokens"`
	TotalTokens  int     `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`
	PricingKnown bool    `json:"pricing_known"`
}
