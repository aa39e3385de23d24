package engine

import (
	"github.com/shopspring/decimal"

	"portfolio-alerts/internal/config"
)

// DefaultVolatilityThreshold is the run-over-run move that counts as a spike.
var DefaultVolatilityThreshold = decimal.RequireFromString("0.03")

// EvaluatePriceAlert decides at most one price alert for a position.
//
// Rules are checked in order and the first match wins: target crossed upward,
// stop-loss crossed downward, then a move of at least volatility since the last
// observation. last == nil means no prior observation; nothing fires then.
// The caller records current as the new last price whatever the outcome.
func EvaluatePriceAlert(pos config.Position, current decimal.Decimal, last *decimal.Decimal, volatility decimal.Decimal) *Alert {
	if last == nil || !last.IsPositive() || !current.IsPositive() {
		return nil
	}
	prev := *last
	if !volatility.IsPositive() {
		volatility = DefaultVolatilityThreshold
	}

	alert := &Alert{
		Symbol:    pos.Symbol,
		Name:      pos.Name,
		Current:   current,
		Previous:  prev,
		ChangePct: relativeChange(current, prev).Mul(hundred),
		Direction: directionOf(current, prev),
	}
	alert.Profit, alert.ProfitPct = ProfitLoss(pos, current)

	switch {
	case pos.Target != nil && current.GreaterThanOrEqual(*pos.Target) && prev.LessThan(*pos.Target):
		alert.Kind = KindTargetReached
		alert.Threshold = *pos.Target
	case pos.StopLoss != nil && current.LessThanOrEqual(*pos.StopLoss) && prev.GreaterThan(*pos.StopLoss):
		alert.Kind = KindStopLossHit
		alert.Threshold = *pos.StopLoss
	case relativeChange(current, prev).Abs().GreaterThanOrEqual(volatility):
		alert.Kind = KindVolatilitySpike
		alert.Threshold = volatility
	default:
		return nil
	}
	return alert
}

// ProfitLoss returns the unrealised profit and its percentage of cost.
func ProfitLoss(pos config.Position, current decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	shares := decimal.NewFromInt(pos.Shares)
	profit := current.Sub(pos.AvgCost).Mul(shares)
	if !pos.AvgCost.IsPositive() {
		return profit, decimal.Zero
	}
	pct := current.Sub(pos.AvgCost).Div(pos.AvgCost).Mul(hundred)
	return profit, pct
}
