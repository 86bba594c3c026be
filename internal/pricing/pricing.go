// Package pricing derives outcome probabilities from pooled liquidity.
package pricing

import "github.com/shopspring/decimal"

// Probabilities returns liquidity[i] / sum(liquidity) for every outcome. When
// the total is zero every outcome gets 1/N.
func Probabilities(liquidity []decimal.Decimal) []float64 {
	n := len(liquidity)
	out := make([]float64, n)
	if n == 0 {
		return out
	}

	total := decimal.Sum(decimal.Zero, liquidity...)
	if total.IsZero() {
		uniform := 1 / float64(n)
		for i := range out {
			out[i] = uniform
		}
		return out
	}

	for i, l := range liquidity {
		out[i] = l.Div(total).InexactFloat64()
	}
	return out
}

// Sum adds up a probability vector.
func Sum(probs []float64) float64 {
	var s float64
	for _, p := range probs {
		s += p
	}
	return s
}
