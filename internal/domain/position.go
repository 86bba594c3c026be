package domain

import "github.com/shopspring/decimal"

// Position is a wallet's accumulated share holdings per outcome within a
// market. One unit of stake buys one share.
type Position struct {
	Wallet   string                  `json:"wallet"`
	MarketID string                  `json:"marketId"`
	Shares   map[int]decimal.Decimal `json:"sharesPerOutcome"`
}

// Clone returns a deep copy of p.
func (p Position) Clone() Position {
	out := p
	out.Shares = make(map[int]decimal.Decimal, len(p.Shares))
	for k, v := range p.Shares {
		out.Shares[k] = v
	}
	return out
}

// Add returns a copy of p with amount added to the given outcome.
func (p Position) Add(outcomeIndex int, amount decimal.Decimal) Position {
	out := p.Clone()
	out.Shares[outcomeIndex] = out.Shares[outcomeIndex].Add(amount)
	return out
}

// SharesOf returns the shares held on one outcome (zero when none).
func (p Position) SharesOf(outcomeIndex int) decimal.Decimal {
	return p.Shares[outcomeIndex]
}

// PositionView is a Position enriched with the current state of its market.
type PositionView struct {
	Position
	Question      string    `json:"question"`
	Outcomes      []string  `json:"outcomes"`
	Probabilities []float64 `json:"probabilities"`
	Resolved      bool      `json:"resolved"`
}

// PositionMismatch reports an outcome whose recorded shares disagree with
// the wallet's trade history.
type PositionMismatch struct {
	MarketID     string          `json:"marketId"`
	OutcomeIndex int             `json:"outcomeIndex"`
	Recorded     decimal.Decimal `json:"recorded"`
	FromTrades   decimal.Decimal `json:"fromTrades"`
}
