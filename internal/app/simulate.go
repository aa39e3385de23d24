package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"portfolio-alerts/internal/engine"
)

// SimulateOptions describe a synthetic price move for one position.
type SimulateOptions struct {
	Symbol string
	Last   decimal.Decimal
	Price  decimal.Decimal
	DryRun bool
}

// SimulateAlert evaluates a synthetic move through the price rules and
// delivers the resulting message, if any. State is not touched.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	pos, ok := a.Config.Position(opts.Symbol)
	if !ok {
		return fmt.Errorf("symbol %s is not in the portfolio", opts.Symbol)
	}
	if !opts.Last.IsPositive() || !opts.Price.IsPositive() {
		return errors.New("--last and --price must be greater than zero")
	}

	last := opts.Last
	alert := engine.EvaluatePriceAlert(pos, opts.Price, &last, a.Config.Alerts.VolatilityThreshold)
	if alert == nil {
		a.Logger.Info().
			Str("symbol", pos.Symbol).
			Str("last", opts.Last.String()).
			Str("price", opts.Price.String()).
			Msg("no alert would fire for this move")
		return nil
	}

	text := engine.Render(alert)
	if err := a.newNotifier(opts.DryRun).Send(ctx, text); err != nil {
		return fmt.Errorf("simulated alert not delivered: %w", err)
	}

	a.Logger.Info().Str("symbol", pos.Symbol).Str("kind", string(alert.Kind)).Msg("simulated alert sent")
	return nil
}
