package domain

// Bus channels carrying ledger events.
const (
	ChannelMarkets     = "markets"
	ChannelTrades      = "trades"
	ChannelResolutions = "resolutions"
)

// Event types.
const (
	EventMarketCreated  = "market_created"
	EventTradePlaced    = "trade_placed"
	EventMarketResolved = "market_resolved"
)

// StreamLedgerEvents is the durable stream every ledger event is appended to.
const StreamLedgerEvents = "ledger:events"

// LedgerEvent is the envelope published on the bus for every committed
// ledger mutation. Events are published after the mutation commits, so two
// events for one market can arrive out of commit order; Market.Version
// orders them.
type LedgerEvent struct {
	Type   string  `json:"type"`
	Market *Market `json:"market,omitempty"`
	Trade  *Trade  `json:"trade,omitempty"`
	At     int64   `json:"at"`
}

// IsLedgerEvent reports whether typ names a ledger mutation.
func IsLedgerEvent(typ string) bool {
	switch typ {
	case EventMarketCreated, EventTradePlaced, EventMarketResolved:
		return true
	}
	return false
}
