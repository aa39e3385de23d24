package engine

import (
	"github.com/shopspring/decimal"

	"portfolio-alerts/internal/fetcher"
)

// Kind names an alert rule.
type Kind string

const (
	KindTargetReached   Kind = "target_reached"
	KindStopLossHit     Kind = "stop_loss_hit"
	KindVolatilitySpike Kind = "volatility_spike"
	KindIndexMove       Kind = "market_index_move"
	KindNews            Kind = "news"
)

// Direction of a move relative to the previous observation.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

var hundred = decimal.NewFromInt(100)

// Alert is a decided notification. It lives only until it is rendered and sent.
type Alert struct {
	Kind      Kind
	Symbol    string
	Name      string
	Direction Direction

	Current  decimal.Decimal
	Previous decimal.Decimal
	// ChangePct is the move from Previous to Current in percent.
	ChangePct decimal.Decimal
	// Threshold is the level or fraction that was crossed.
	Threshold decimal.Decimal

	Profit    decimal.Decimal
	ProfitPct decimal.Decimal

	News           *fetcher.NewsItem
	Classification Classification

	Label    string
	Inverted bool
}

func directionOf(current, previous decimal.Decimal) Direction {
	if current.LessThan(previous) {
		return DirectionDown
	}
	return DirectionUp
}

// relativeChange returns (current-previous)/previous. previous must be positive.
func relativeChange(current, previous decimal.Decimal) decimal.Decimal {
	return current.Sub(previous).Div(previous)
}
