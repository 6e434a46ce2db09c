package cost

import "strings"

// modelRate is the estimated USD price per million tokens for models whose
// name contains the pattern. Pricing is approximate and exists for budget
// alerting, not billing reconciliation.
type modelRate struct {
	pattern       string // matched case-insensitively as a substring
	promptPerM    float64
	completionPerM float64
}

// pricingTable is checked in order, most specific pattern first.
var pricingTable = []modelRate{
	{"opus", 15.0, 75.0},
	{"sonnet", 3.0, 15.0},
	{"haiku", 0.80, 4.0},
	{"gpt-4o-mini", 0.15, 0.60},
	{"gpt-4o", 2.50, 10.0},
	{"gpt-4", 10.0, 30.0},
	{"gpt-3.5", 0.50, 1.50},
	{"gemini-flash", 0.10, 0.40},
	{"gemini", 1.25, 5.0},
	{"deepseek", 0.27, 1.10},
	{"mistral", 2.0, 6.0},
}

// defaultRate covers models absent from the table: a moderate mid-range
// price so unknown models neither evade the budget nor blow through it.
var defaultRate = modelRate{"", 1.0, 3.0}

// EstimateCost returns the estimated USD cost of one completion. A
// "local" backend is always free regardless of model.
func EstimateCost(backend, model string, promptTokens, completionTokens int64) float64 {
	if strings.EqualFold(backend, "local") {
		return 0
	}
	rate := defaultRate
	lower := strings.ToLower(model)
	for _, r := range pricingTable {
		if strings.Contains(lower, r.pattern) {
			rate = r
			break
		}
	}
	return float64(promptTokens)/1_000_000*rate.promptPerM +
		float64(completionTokens)/1_000_000*rate.completionPerM
}
