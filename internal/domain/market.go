package domain

import "github.com/shopspring/decimal"

// Outcome is one possible resolution of a market. Probability is derived from
// Liquidity and is recomputed after every liquidity change.
type Outcome struct {
	Name        string          `json:"name"`
	Liquidity   decimal.Decimal `json:"liquidity"`
	Probability float64         `json:"probability"`
}

// Market is a single prediction question with a fixed, ordered set of
// mutually exclusive outcomes. Timestamps are Unix milliseconds. Version
// starts at 1 and grows by one with every trade and the resolution, so of
// two copies of a market the higher Version is the newer.
type Market struct {
	ID                  string    `json:"id"`
	Question            string    `json:"question"`
	Outcomes            []Outcome `json:"outcomes"`
	EndTime             int64     `json:"endTime"`
	CreatedAt           int64     `json:"createdAt"`
	Resolved            bool      `json:"resolved"`
	WinningOutcomeIndex *int      `json:"winningOutcomeIndex"`
	Evidence            *string   `json:"evidence"`
	Version             int64     `json:"version"`
}

// Clone returns a deep copy of m. Markets handed out of the ledger are always
// clones so callers never alias ledger state.
func (m Market) Clone() Market {
	out := m
	out.Outcomes = make([]Outcome, len(m.Outcomes))
	copy(out.Outcomes, m.Outcomes)
	if m.WinningOutcomeIndex != nil {
		idx := *m.WinningOutcomeIndex
		out.WinningOutcomeIndex = &idx
	}
	if m.Evidence != nil {
		ev := *m.Evidence
		out.Evidence = &ev
	}
	return out
}

// ValidOutcome reports whether idx addresses one of the market's outcomes.
func (m Market) ValidOutcome(idx int) bool {
	return idx >= 0 && idx < len(m.Outcomes)
}

// Liquidities returns the per-outcome liquidity in outcome order.
func (m Market) Liquidities() []decimal.Decimal {
	out := make([]decimal.Decimal, len(m.Outcomes))
	for i, o := range m.Outcomes {
		out[i] = o.Liquidity
	}
	return out
}

// Probabilities returns the per-outcome probability in outcome order.
func (m Market) Probabilities() []float64 {
	out := make([]float64, len(m.Outcomes))
	for i, o := range m.Outcomes {
		out[i] = o.Probability
	}
	return out
}

// TotalLiquidity sums the liquidity of every outcome.
func (m Market) TotalLiquidity() decimal.Decimal {
	return decimal.Sum(decimal.Zero, m.Liquidities()...)
}
