package usage

import (
	"github.com/omniguard/llm-observability/models"
	"go.uber.org/zap"
)

// ProviderUsage is the raw token accounting reported by the LLM provider.
type ProviderUsage struct {
	Model        string
	InputTokens  int
	OutputTokens int
	TotalTokens  int // as reported; never trusted blindly
}

// Extractor derives normalized token counts and a cost estimate from a
// provider response.
type Extractor struct {
	pricing *PricingTable
	logger  *zap.Logger
}

// NewExtractor creates a usage extractor backed by the given pricing table.
func NewExtractor(pricing *PricingTable, logger *zap.Logger) *Extractor {
	return &Extractor{
		pricing: pricing,
		logger:  logger,
	}
}

// Extract normalizes provider usage into models.Usage. The total is always
// recomputed as input + output; a provider-reported total that disagrees is
// logged as a warning, not treated as an error. An unknown model yields
// cost 0 with PricingKnown=false rather than failing the request.
func (e *Extractor) Extract(pu ProviderUsage) models.Usage {
	total := pu.InputTokens + pu.OutputTokens
	if pu.TotalTokens != 0 && pu.TotalTokens != total {
		e.logger.Warn("provider-reported total tokens mismatch",
			zap.String("model", pu.Model),
			zap.Int("reported_total", pu.TotalTokens),
			zap.Int("computed_total", total))
	}

	u := models.Usage{
		Model:        pu.Model,
		InputTokens:  pu.InputTokens,
		OutputTokens: pu.OutputTokens,
		TotalTokens:  total,
	}

	rates, known := e.pricing.Lookup(pu.Model)
	if !known {
		e.logger.Warn("unknown pricing for model", zap.String("model", pu.Model))
		return u
	}

	u.PricingKnown = true
	u.CostUSD = float64(pu.InputTokens)*rates.InputPerToken + float64(pu.OutputTokens)*rates.OutputPerToken
	return u
}
