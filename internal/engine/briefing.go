package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"portfolio-alerts/internal/config"
)

// IndexReading is an index value resolved for the briefing. Value is nil when
// the fetch failed.
type IndexReading struct {
	Index config.Index
	Value *decimal.Decimal
}

// PositionLine is one computed row of the portfolio snapshot.
type PositionLine struct {
	Position  config.Position
	Price     *decimal.Decimal
	Profit    decimal.Decimal
	ProfitPct decimal.Decimal
}

// Snapshot is the portfolio valued at the resolved prices.
type Snapshot struct {
	Lines []PositionLine
	// Complete is false when any price is missing; totals are then withheld.
	Complete  bool
	Cost      decimal.Decimal
	Value     decimal.Decimal
	Profit    decimal.Decimal
	ProfitPct decimal.Decimal
}

// Valuate computes per-position and aggregate profit/loss.
func Valuate(positions []config.Position, prices map[string]*decimal.Decimal) Snapshot {
	snap := Snapshot{Complete: true}
	for _, pos := range positions {
		line := PositionLine{Position: pos, Price: prices[pos.Symbol]}
		if line.Price == nil {
			snap.Complete = false
			snap.Lines = append(snap.Lines, line)
			continue
		}
		line.Profit, line.ProfitPct = ProfitLoss(pos, *line.Price)
		shares := decimal.NewFromInt(pos.Shares)
		snap.Cost = snap.Cost.Add(pos.AvgCost.Mul(shares))
		snap.Value = snap.Value.Add(line.Price.Mul(shares))
		snap.Lines = append(snap.Lines, line)
	}
	snap.Profit = snap.Value.Sub(snap.Cost)
	if snap.Cost.IsPositive() {
		snap.ProfitPct = snap.Profit.Div(snap.Cost).Mul(hundred)
	}
	return snap
}

// BuildBriefing renders the morning briefing. now should already be in the
// configured timezone; it selects the advisory for today's date.
func BuildBriefing(positions []config.Position, prices map[string]*decimal.Decimal, indices []IndexReading, now time.Time, advisories map[string]string) string {
	snap := Valuate(positions, prices)

	var b strings.Builder
	fmt.Fprintf(&b, "☀️ *Morning briefing* %s\n\n", now.Format("2006-01-02 (Mon)"))

	for _, line := range snap.Lines {
		pos := line.Position
		if line.Price == nil {
			fmt.Fprintf(&b, "*%s*: price unavailable\n", EscapeMarkdown(pos.Symbol))
			continue
		}
		fmt.Fprintf(&b, "*%s*: %s | P/L %s (%s)\n", EscapeMarkdown(pos.Symbol), money(*line.Price), signedMoney(line.Profit), signedPct(line.ProfitPct))
	}

	if snap.Complete && len(snap.Lines) > 0 {
		fmt.Fprintf(&b, "\n*Total P/L*: %s (%s)\n", signedMoney(snap.Profit), signedPct(snap.ProfitPct))
	}

	var idxLines []string
	for _, r := range indices {
		if r.Value == nil {
			continue
		}
		idxLines = append(idxLines, fmt.Sprintf("%s: %s", EscapeMarkdown(r.Index.DisplayName()), r.Value.StringFixed(2)))
	}
	if len(idxLines) > 0 {
		b.WriteString("\n*Markets*\n")
		b.WriteString(strings.Join(idxLines, "\n"))
		b.WriteString("\n")
	}

	if note, ok := advisories[now.Format("2006-01-02")]; ok && note != "" {
		fmt.Fprintf(&b, "\n📌 %s\n", EscapeMarkdown(note))
	}

	return strings.TrimRight(b.String(), "\n")
}
