package metering

import (
	"math"

	"github.com/upb/rag-query-service/config"
)

// costScale rounds costs to 10 fractional digits
const costScale = 1e10

// Rate is the price in USD of one thousand tokens
type Rate struct {
	InputPer1K  float64
	OutputPer1K float64
}

// DefaultRate applies to any model missing from the table
var DefaultRate = Rate{InputPer1K: 0.003, OutputPer1K: 0.015}

var builtinRates = map[string]Rate{
	config.DefaultChatModelID:      {InputPer1K: 0.003, OutputPer1K: 0.015},
	config.DefaultEmbeddingModelID: {InputPer1K: 0.00002, OutputPer1K: 0},
}

// PriceTable maps model IDs to per-1K-token rates. It is read-only after construction.
type PriceTable struct {
	rates    map[string]Rate
	fallback Rate
}

// NewPriceTable returns the built-in table with the overrides from a pricing file applied
func NewPriceTable(overrides *config.Pricing) *PriceTable {
	t := &PriceTable{
		rates:    make(map[string]Rate, len(builtinRates)),
		fallback: DefaultRate,
	}
	for id, r := range builtinRates {
		t.rates[id] = r
	}

	if overrides == nil {
		return t
	}
	if overrides.Default != nil {
		t.fallback = Rate{InputPer1K: overrides.Default.InputPer1K, OutputPer1K: overrides.Default.OutputPer1K}
	}
	for id, r := range overrides.Models {
		t.rates[id] = Rate{InputPer1K: r.InputPer1K, OutputPer1K: r.OutputPer1K}
	}
	return t
}

// DefaultPriceTable returns the built-in table
func DefaultPriceTable() *PriceTable {
	return NewPriceTable(nil)
}

// Rate returns the rate of a model and whether it was found in the table
func (t *PriceTable) Rate(modelID string) (Rate, bool) {
	r, ok := t.rates[modelID]
	if !ok {
		return t.fallback, false
	}
	return r, true
}

// CalculateCost returns (in/1000)*input_rate + (out/1000)*output_rate rounded to
// 10 fractional digits. Unknown models are priced at the fallback rate.
func (t *PriceTable) CalculateCost(modelID string, inputTokens, outputTokens int) float64 {
	r, _ := t.Rate(modelID)
	cost := float64(inputTokens)/1000*r.InputPer1K + float64(outputTokens)/1000*r.OutputPer1K
	return RoundCost(cost)
}

// CalculateCost prices a call with the built-in table
func CalculateCost(modelID string, inputTokens, outputTokens int) float64 {
	return defaultTable.CalculateCost(modelID, inputTokens, outputTokens)
}

var defaultTable = DefaultPriceTable()

// RoundCost rounds half away from zero to 10 fractional digits
func RoundCost(cost float64) float64 {
	return math.Round(cost*costScale) / costScale
}
