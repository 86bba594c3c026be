package domain

import "github.com/shopspring/decimal"

// Trade is an immutable record of a stake placed on one outcome of one
// market. Trades form an append-only log.
type Trade struct {
	ID            string          `json:"id"`
	MarketID      string          `json:"marketId"`
	OutcomeIndex  int             `json:"outcomeIndex"`
	Amount        decimal.Decimal `json:"amount"`
	Timestamp     int64           `json:"timestamp"`
	WalletAddress *string         `json:"walletAddress,omitempty"`
	// TxID is set when the trade was submitted to a chain before it was
	// recorded.
	TxID *string `json:"txId,omitempty"`
}

// Wallet returns the trading wallet, or "" for anonymous trades.
func (t Trade) Wallet() string {
	if t.WalletAddress == nil {
		return ""
	}
	return *t.WalletAddress
}

// TradeIntent describes a trade that has not been recorded yet. It is what a
// ChainSubmitter sees.
type TradeIntent struct {
	MarketID      string
	OutcomeIndex  int
	Amount        decimal.Decimal
	WalletAddress *string
}

// Clone returns a copy of t that shares no pointers with it.
func (t Trade) Clone() Trade {
	out := t
	if t.WalletAddress != nil {
		w := *t.WalletAddress
		out.WalletAddress = &w
	}
	if t.TxID != nil {
		tx := *t.TxID
		out.TxID = &tx
	}
	return out
}
