package domain

import (
	"context"
	"time"
)

// Clock is the ledger's time source.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// IDGenerator hands out identifiers that are unique for the lifetime of the
// process.
type IDGenerator interface {
	NextID() (string, error)
}

// ChainSubmitter submits a trade for externally verifiable settlement and
// returns the transaction id.
type ChainSubmitter interface {
	SubmitTrade(ctx context.Context, intent TradeIntent) (txID string, err error)
	Name() string
}
