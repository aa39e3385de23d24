package engine

import (
	"github.com/shopspring/decimal"

	"portfolio-alerts/internal/config"
)

// EvaluateIndexAlert fires when an index moved by at least its threshold since
// the last observation. There is no crossing guard, so a sustained trend can
// alert on consecutive runs.
func EvaluateIndexAlert(idx config.Index, current decimal.Decimal, last *decimal.Decimal) *Alert {
	if last == nil || !last.IsPositive() {
		return nil
	}
	prev := *last
	change := relativeChange(current, prev)
	if change.Abs().LessThan(idx.Threshold) {
		return nil
	}

	return &Alert{
		Kind:      KindIndexMove,
		Symbol:    idx.Symbol,
		Label:     idx.DisplayName(),
		Inverted:  idx.Inverted,
		Current:   current,
		Previous:  prev,
		ChangePct: change.Mul(hundred),
		Threshold: idx.Threshold,
		Direction: directionOf(current, prev),
	}
}
