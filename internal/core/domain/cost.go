package domain

import (
	"math"
	"strings"
	"time"
)

// ModelPrice is USD per one million tokens.
type ModelPrice struct {
	Input  float64
	Output float64
}

type pricedModel struct {
	name  string
	price ModelPrice
}

// Partial matches prefer the longest key; equal lengths resolve in table order.
var modelPricing = []pricedModel{
	{"claude-sonnet-4-5", ModelPrice{Input: 3.00, Output: 15.00}},
	{"claude-sonnet-4-20250514", ModelPrice{Input: 3.00, Output: 15.00}},
	{"claude-opus-4-5-20251101", ModelPrice{Input: 15.00, Output: 75.00}},
	{"claude-3-5-sonnet-20241022", ModelPrice{Input: 3.00, Output: 15.00}},
	{"claude-3-haiku-20240307", ModelPrice{Input: 0.25, Output: 1.25}},
	{"models/gemini-2.5-flash", ModelPrice{Input: 0.075, Output: 0.30}},
	{"models/gemini-2.5-pro", ModelPrice{Input: 1.25, Output: 5.00}},
	{"ollama", ModelPrice{Input: 0, Output: 0}},
}

// PriceFor resolves a model name exactly, then by the longest partial match.
func PriceFor(model string) (ModelPrice, bool) {
	lower := strings.ToLower(strings.TrimSpace(model))
	if lower == "" {
		return ModelPrice{}, false
	}
	best := -1
	for i, m := range modelPricing {
		k := strings.ToLower(m.name)
		if k == lower {
			return m.price, true
		}
		if strings.Contains(lower, k) || strings.Contains(k, lower) {
			if best < 0 || len(k) > len(modelPricing[best].name) {
				best = i
			}
		}
	}
	if best < 0 {
		return ModelPrice{}, false
	}
	return modelPricing[best].price, true
}

// CalculateCost returns USD cost rounded to four decimals; unknown models cost 0.
func CalculateCost(model string, inputTokens, outputTokens int) float64 {
	price, ok := PriceFor(model)
	if !ok {
		return 0
	}
	cost := float64(inputTokens)/1_000_000*price.Input + float64(outputTokens)/1_000_000*price.Output
	return RoundCost(cost)
}

func RoundCost(v float64) float64 {
	return math.Round(v*10000) / 10000
}

// EstimateTokens approximates token count as one token per four characters.
func EstimateTokens(text string) int {
	return len(text) / 4
}

// CostEntry is one line of the cost ledger.
type CostEntry struct {
	Model        string    `json:"model"`
	VideoID      string    `json:"video_id"`
	Rubric       string    `json:"rubric"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Cost         float64   `json:"cost"`
	Timestamp    Timestamp `json:"timestamp"`
}

type CostSummary struct {
	TotalCost   float64            `json:"total_cost"`
	Evaluations int                `json:"evaluations"`
	ByModel     map[string]float64 `json:"by_model"`
	DatabaseSum float64            `json:"database_total,omitempty"`
	GeneratedAt time.Time          `json:"generated_at"`
}
