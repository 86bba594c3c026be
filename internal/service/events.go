package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/predictionledger/internal/domain"
	"github.com/alanyoungcy/predictionledger/internal/notify"
)

const notifyTimeout = 15 * time.Second

// Events fans committed ledger mutations out to the signal bus, the durable
// event stream, the audit log and operator notifications. Every sink is
// best-effort: the mutation has already happened, so failures are logged
// and never returned.
type Events struct {
	bus      domain.SignalBus
	audit    domain.AuditStore
	notifier *notify.Notifier
	clock    domain.Clock
	logger   *slog.Logger
}

// NewEvents creates an Events fan-out. bus, audit and notifier may be nil.
func NewEvents(bus domain.SignalBus, audit domain.AuditStore, notifier *notify.Notifier, clock domain.Clock, logger *slog.Logger) *Events {
	if clock == nil {
		clock = domain.SystemClock
	}
	return &Events{bus: bus, audit: audit, notifier: notifier, clock: clock, logger: logger}
}

func channelFor(eventType string) string {
	switch eventType {
	case domain.EventMarketCreated:
		return domain.ChannelMarkets
	case domain.EventTradePlaced:
		return domain.ChannelTrades
	default:
		return domain.ChannelResolutions
	}
}

func (e *Events) emit(ctx context.Context, evt domain.LedgerEvent, detail map[string]any) {
	evt.At = e.clock.Now().UnixMilli()

	if e.bus != nil {
		payload, err := json.Marshal(evt)
		if err != nil {
			e.logger.WarnContext(ctx, "events: marshal failed",
				slog.String("type", evt.Type),
				slog.String("error", err.Error()),
			)
		} else {
			if err := e.bus.Publish(ctx, channelFor(evt.Type), payload); err != nil {
				e.logger.WarnContext(ctx, "events: publish failed",
					slog.String("type", evt.Type),
					slog.String("error", err.Error()),
				)
			}
			if err := e.bus.StreamAppend(ctx, domain.StreamLedgerEvents, payload); err != nil {
				e.logger.WarnContext(ctx, "events: stream append failed",
					slog.String("type", evt.Type),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	if e.audit != nil {
		if err := e.audit.Log(ctx, evt.Type, detail); err != nil {
			e.logger.WarnContext(ctx, "events: audit log failed",
				slog.String("type", evt.Type),
				slog.String("error", err.Error()),
			)
		}
	}
}

// notify runs fn in the background so slow chat APIs never hold up a
// request.
func (e *Events) notify(ctx context.Context, fn func(context.Context, *notify.Notifier) error) {
	if !e.notifier.Enabled() {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()
		if err := fn(ctx, e.notifier); err != nil {
			e.logger.WarnContext(ctx, "events: notify failed", slog.String("error", err.Error()))
		}
	}()
}

// MarketCreated records a new market.
func (e *Events) MarketCreated(ctx context.Context, m domain.Market) {
	e.emit(ctx, domain.LedgerEvent{Type: domain.EventMarketCreated, Market: &m}, map[string]any{
		"marketId": m.ID,
		"question": m.Question,
		"outcomes": len(m.Outcomes),
		"endTime":  m.EndTime,
	})
	e.notify(ctx, func(ctx context.Context, n *notify.Notifier) error { return n.MarketCreated(ctx, m) })
}

// TradePlaced records a committed trade with the market state after it.
func (e *Events) TradePlaced(ctx context.Context, m domain.Market, t domain.Trade) {
	detail := map[string]any{
		"marketId":      t.MarketID,
		"tradeId":       t.ID,
		"outcomeIndex":  t.OutcomeIndex,
		"amount":        t.Amount.String(),
		"probabilities": m.Probabilities(),
	}
	if t.WalletAddress != nil {
		detail["walletAddress"] = *t.WalletAddress
	}
	if t.TxID != nil {
		detail["txId"] = *t.TxID
	}
	e.emit(ctx, domain.LedgerEvent{Type: domain.EventTradePlaced, Market: &m, Trade: &t}, detail)
}

// MarketResolved records a resolution.
func (e *Events) MarketResolved(ctx context.Context, m domain.Market) {
	detail := map[string]any{"marketId": m.ID}
	if m.WinningOutcomeIndex != nil {
		detail["winningOutcomeIndex"] = *m.WinningOutcomeIndex
	}
	if m.Evidence != nil {
		detail["evidence"] = *m.Evidence
	}
	e.emit(ctx, domain.LedgerEvent{Type: domain.EventMarketResolved, Market: &m}, detail)
	e.notify(ctx, func(ctx context.Context, n *notify.Notifier) error { return n.MarketResolved(ctx, m) })
}
