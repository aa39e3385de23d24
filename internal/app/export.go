package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"portfolio-alerts/internal/config"
	"portfolio-alerts/internal/engine"
	"portfolio-alerts/internal/fetcher"
)

// Export renders the portfolio profit/loss snapshot as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}
	if len(a.Config.Portfolio) == 0 {
		return errors.New("portfolio is empty; nothing to export")
	}

	prices, err := a.snapshotPrices(ctx, opts.FromState)
	if err != nil {
		return err
	}

	snap := engine.Valuate(a.Config.Portfolio, prices)
	a.Logger.Info().
		Int("positions", len(snap.Lines)).
		Bool("complete", snap.Complete).
		Msg("exporting portfolio snapshot")

	if opts.CSVPath != "" {
		if err := writeSnapshotCSV(opts.CSVPath, snap, time.Now().UTC()); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSnapshotPNG(opts.PNGPath, snap, a.Config.Export); err != nil {
			return err
		}
	}

	return nil
}

// snapshotPrices resolves position prices from the providers, or from the
// persisted last prices when fromState is set.
func (a *App) snapshotPrices(ctx context.Context, fromState bool) (map[string]*decimal.Decimal, error) {
	prices := make(map[string]*decimal.Decimal, len(a.Config.Portfolio))

	if fromState {
		store, closeStore := a.openStore(ctx)
		defer closeStore()

		st, err := store.Load(ctx)
		if err != nil {
			a.Logger.Warn().Err(err).Msg("state unreadable; exporting without prices")
		}
		for _, pos := range a.Config.Portfolio {
			prices[pos.Symbol] = st.Price(pos.Symbol)
		}
		return prices, nil
	}

	source, _ := a.newSources()
	return quotePositions(ctx, source, a.Config.Portfolio, a.Logger), nil
}

func quotePositions(ctx context.Context, source fetcher.PriceSource, positions []config.Position, logger zerolog.Logger) map[string]*decimal.Decimal {
	prices := make(map[string]*decimal.Decimal, len(positions))
	for _, pos := range positions {
		q, err := source.Quote(ctx, pos.Symbol)
		if err != nil {
			logger.Warn().Err(err).Str("symbol", pos.Symbol).Msg("price unavailable")
			continue
		}
		price := q.Price
		prices[pos.Symbol] = &price
	}
	return prices
}

func writeSnapshotCSV(path string, snap engine.Snapshot, at time.Time) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"as_of", "symbol", "shares", "avg_cost", "price", "profit", "profit_pct"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, line := range snap.Lines {
		price, profit, pct := "", "", ""
		if line.Price != nil {
			price = line.Price.String()
			profit = line.Profit.StringFixed(2)
			pct = line.ProfitPct.StringFixed(2)
		}
		record := []string{
			at.Format(time.RFC3339),
			line.Position.Symbol,
			fmt.Sprintf("%d", line.Position.Shares),
			line.Position.AvgCost.String(),
			price,
			profit,
			pct,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	if snap.Complete {
		total := []string{at.Format(time.RFC3339), "TOTAL", "", snap.Cost.StringFixed(2), snap.Value.StringFixed(2), snap.Profit.StringFixed(2), snap.ProfitPct.StringFixed(2)}
		if err := writer.Write(total); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeSnapshotPNG(path string, snap engine.Snapshot, cfg config.ExportConfig) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	bars := make([]chart.Value, 0, len(snap.Lines))
	lo, hi := 0.0, 0.0
	for _, line := range snap.Lines {
		if line.Price == nil {
			continue
		}
		v := line.Profit.InexactFloat64()
		lo, hi = math.Min(lo, v), math.Max(hi, v)
		bars = append(bars, chart.Value{Label: line.Position.Symbol, Value: v})
	}
	if len(bars) == 0 {
		return errors.New("no position has a price; nothing to chart")
	}

	width, height := cfg.ChartWidth, cfg.ChartHeight
	if width <= 0 {
		width = 1280
	}
	if height <= 0 {
		height = 720
	}

	title := "Unrealised P/L by position"
	if snap.Complete {
		title = fmt.Sprintf("%s (total %s)", title, snap.Profit.StringFixed(2))
	}

	graph := chart.BarChart{
		Title:        title,
		Width:        width,
		Height:       height,
		BarWidth:     60,
		UseBaseValue: true,
		BaseValue:    0,
		YAxis: chart.YAxis{
			Range: &chart.ContinuousRange{Min: lo, Max: paddedMax(lo, hi)},
			ValueFormatter: func(v interface{}) string {
				return chart.FloatValueFormatterWithFormat(v, "%.2f")
			},
		},
		Bars: bars,
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

// paddedMax keeps the axis non-degenerate when every bar is zero.
func paddedMax(lo, hi float64) float64 {
	if hi <= lo {
		return lo + 1
	}
	return hi
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
