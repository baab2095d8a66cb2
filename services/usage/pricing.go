package usage

// ModelPricing holds per-token USD rates for a model.
type ModelPricing struct {
	InputPerToken  float64
	OutputPerToken float64
}

// defaultPricing is the static pricing table, keyed by model name.
// Rates are USD per token (provider list prices divided by 1M).
var defaultPricing = map[string]ModelPricing{
	"gemini-2.0-flash-001":      {InputPerToken: 0.10 / 1e6, OutputPerToken: 0.40 / 1e6},
	"gemini-2.0-flash-lite-001": {InputPerToken: 0.075 / 1e6, OutputPerToken: 0.30 / 1e6},
	"gemini-1.5-pro-002":        {InputPerToken: 1.25 / 1e6, OutputPerToken: 5.00 / 1e6},
	"gemini-1.5-flash-002":      {InputPerToken: 0.075 / 1e6, OutputPerToken: 0.30 / 1e6},
	"text-embedding-005":        {InputPerToken: 0.025 / 1e6, OutputPerToken: 0},
}

// PricingTable looks up per-token rates by model name.
type PricingTable struct {
	rates map[string]ModelPricing
}

// NewPricingTable returns the default static pricing table.
func NewPricingTable() *PricingTable {
	return &PricingTable{rates: defaultPricing}
}

// NewPricingTableWith returns a table with custom rates, used by tests and
// deployments that override list prices.
func NewPricingTableWith(rates map[string]ModelPricing) *PricingTable {
	copied := make(map[string]ModelPricing, len(rates))
	for k, v := range rates {
		copied[k] = v
	}
	return &PricingTable{rates: copied}
}

// Lookup returns the rates for a model and whether the model is known.
func (t *PricingTable) Lookup(model string) (ModelPricing, bool) {
	p, ok := t.rates[model]
	return p, ok
}
