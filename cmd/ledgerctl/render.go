package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alanyoungcy/predictionledger/internal/domain"
)

func pct(p float64) string {
	return fmt.Sprintf("%.1f%%", p*100)
}

func formatMillis(ms int64) string {
	if ms == 0 {
		return "-"
	}
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}

func marketStatus(m domain.Market) string {
	if !m.Resolved {
		return "open"
	}
	if m.WinningOutcomeIndex != nil && m.ValidOutcome(*m.WinningOutcomeIndex) {
		return "resolved: " + m.Outcomes[*m.WinningOutcomeIndex].Name
	}
	return "resolved"
}

func renderMarkets(w io.Writer, markets []domain.Market) {
	if len(markets) == 0 {
		fmt.Fprintln(w, "no markets")
		return
	}
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Question", "Outcomes", "Liquidity", "Status", "Ends")
	for _, m := range markets {
		parts := make([]string, len(m.Outcomes))
		for i, o := range m.Outcomes {
			parts[i] = o.Name + " " + pct(o.Probability)
		}
		table.Append(
			m.ID,
			m.Question,
			strings.Join(parts, " / "),
			m.TotalLiquidity().String(),
			marketStatus(m),
			formatMillis(m.EndTime),
		)
	}
	table.Render()
}

func renderMarket(w io.Writer, m domain.Market) {
	fmt.Fprintf(w, "#%s %s\n", m.ID, m.Question)
	fmt.Fprintf(w, "created %s, ends %s, %s\n", formatMillis(m.CreatedAt), formatMillis(m.EndTime), marketStatus(m))
	if m.Evidence != nil && *m.Evidence != "" {
		fmt.Fprintf(w, "evidence: %s\n", *m.Evidence)
	}

	table := tablewriter.NewWriter(w)
	table.Header("#", "Outcome", "Liquidity", "Probability")
	for i, o := range m.Outcomes {
		table.Append(strconv.Itoa(i), o.Name, o.Liquidity.String(), pct(o.Probability))
	}
	table.Render()
}

func renderTrades(w io.Writer, trades []domain.Trade) {
	if len(trades) == 0 {
		fmt.Fprintln(w, "no trades")
		return
	}
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Market", "Outcome", "Amount", "Wallet", "Tx", "Time")
	for _, t := range trades {
		wallet := t.Wallet()
		if wallet == "" {
			wallet = "-"
		}
		tx := "-"
		if t.TxID != nil {
			tx = *t.TxID
		}
		table.Append(
			t.ID,
			t.MarketID,
			strconv.Itoa(t.OutcomeIndex),
			t.Amount.String(),
			wallet,
			tx,
			formatMillis(t.Timestamp),
		)
	}
	table.Render()
}

func renderPositions(w io.Writer, wallet string, positions []domain.PositionView) {
	if len(positions) == 0 {
		fmt.Fprintf(w, "no positions for %s\n", wallet)
		return
	}
	table := tablewriter.NewWriter(w)
	table.Header("Market", "Question", "Outcome", "Shares", "Probability", "Status")
	for _, p := range positions {
		status := "open"
		if p.Resolved {
			status = "resolved"
		}
		for i := range p.Outcomes {
			shares, ok := p.Shares[i]
			if !ok {
				continue
			}
			prob := "-"
			if i < len(p.Probabilities) {
				prob = pct(p.Probabilities[i])
			}
			table.Append(p.MarketID, p.Question, p.Outcomes[i], shares.String(), prob, status)
		}
	}
	table.Render()
}

// formatEvent renders one stream event as a single line.
func formatEvent(evt domain.LedgerEvent) string {
	at := "-"
	if evt.At != 0 {
		at = time.UnixMilli(evt.At).UTC().Format(time.TimeOnly)
	}
	if evt.Market == nil {
		return fmt.Sprintf("%s %s", at, evt.Type)
	}

	m := *evt.Market
	probs := make([]string, len(m.Outcomes))
	for i, o := range m.Outcomes {
		probs[i] = o.Name + " " + pct(o.Probability)
	}
	line := fmt.Sprintf("%s %s #%s %q [%s]", at, evt.Type, m.ID, m.Question, strings.Join(probs, " / "))
	if t := evt.Trade; t != nil && m.ValidOutcome(t.OutcomeIndex) {
		line += fmt.Sprintf(" %s on %s", t.Amount.String(), m.Outcomes[t.OutcomeIndex].Name)
	}
	if m.Resolved {
		line += " " + marketStatus(m)
	}
	return line
}
