// Package notify sends operator notifications about ledger lifecycle events
// to chat channels. Every configured sender receives each allowed event.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/predictionledger/internal/domain"
)

// Sender delivers one notification to a channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// Notifier fans notifications out to its senders, dropping event types that
// are not in the allow list. An empty allow list passes every event.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify sends title and message for event when the event is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "notifier: event filtered", slog.String("event", event))
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.WarnContext(ctx, "notifier: send failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// MarketCreated announces a new market.
func (n *Notifier) MarketCreated(ctx context.Context, m domain.Market) error {
	names := make([]string, len(m.Outcomes))
	for i, o := range m.Outcomes {
		names[i] = o.Name
	}
	msg := fmt.Sprintf("#%s %s\nOutcomes: %s", m.ID, m.Question, strings.Join(names, " / "))
	return n.Notify(ctx, domain.EventMarketCreated, "New market", msg)
}

// MarketResolved announces a resolution with its winning outcome and
// evidence.
func (n *Notifier) MarketResolved(ctx context.Context, m domain.Market) error {
	winner := "?"
	if m.WinningOutcomeIndex != nil && m.ValidOutcome(*m.WinningOutcomeIndex) {
		winner = m.Outcomes[*m.WinningOutcomeIndex].Name
	}
	msg := fmt.Sprintf("#%s %s\nWinner: %s", m.ID, m.Question, winner)
	if m.Evidence != nil && *m.Evidence != "" {
		msg += "\nEvidence: " + *m.Evidence
	}
	return n.Notify(ctx, domain.EventMarketResolved, "Market resolved", msg)
}
