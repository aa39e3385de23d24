package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"portfolio-alerts/internal/alerting"
	"portfolio-alerts/internal/config"
	"portfolio-alerts/internal/engine"
	"portfolio-alerts/internal/fetcher"
	"portfolio-alerts/internal/scheduler"
	"portfolio-alerts/internal/service"
	"portfolio-alerts/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	// newNotifier is swapped in tests.
	newNotifier func(dryRun bool) alerting.Notifier
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	a := &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
	a.newNotifier = a.defaultNotifier
	return a
}

func (a *App) providerOptions(p config.ProviderConfig) fetcher.Options {
	return fetcher.Options{
		BaseURL:           p.BaseURL,
		APIKey:            p.APIKey,
		Timeout:           p.Timeout,
		RequestsPerMinute: p.RequestsPerMinute,
		UserAgent:         p.UserAgent,
	}
}

// newSources builds the price and news fallback chains in configured order.
// Providers lacking a credential are skipped with a warning.
func (a *App) newSources() (fetcher.PriceSource, fetcher.NewsSource) {
	p := a.Config.Providers
	var (
		alpha    *fetcher.AlphaVantage
		alphaErr error
	)
	alphaOnce := func() (*fetcher.AlphaVantage, error) {
		if alpha == nil && alphaErr == nil {
			alpha, alphaErr = fetcher.NewAlphaVantage(a.providerOptions(p.AlphaVantage), a.Logger)
		}
		return alpha, alphaErr
	}

	var prices []fetcher.PriceSource
	for _, name := range p.PriceOrder {
		var (
			src fetcher.PriceSource
			err error
		)
		switch name {
		case "alphavantage":
			var av *fetcher.AlphaVantage
			av, err = alphaOnce()
			if err == nil {
				src = av
			}
		case "polygon":
			var pg *fetcher.Polygon
			pg, err = fetcher.NewPolygon(a.providerOptions(p.Polygon), a.Logger)
			if err == nil {
				src = pg
			}
		case "yahoo":
			src = fetcher.NewYahoo(a.providerOptions(p.Yahoo), a.Logger)
		default:
			err = fmt.Errorf("unknown price provider %q", name)
		}
		if err != nil {
			a.Logger.Warn().Err(err).Str("provider", name).Msg("price provider skipped")
			continue
		}
		prices = append(prices, src)
	}

	var news []fetcher.NewsSource
	for _, name := range p.NewsOrder {
		var (
			src fetcher.NewsSource
			err error
		)
		switch name {
		case "benzinga":
			var bz *fetcher.Benzinga
			bz, err = fetcher.NewBenzinga(a.providerOptions(p.Benzinga), a.Logger)
			if err == nil {
				src = bz
			}
		case "alphavantage":
			var av *fetcher.AlphaVantage
			av, err = alphaOnce()
			if err == nil {
				src = av
			}
		case "yahoo_rss":
			src = fetcher.NewYahooRSS(a.providerOptions(p.YahooRSS), a.Logger)
		default:
			err = fmt.Errorf("unknown news provider %q", name)
		}
		if err != nil {
			a.Logger.Warn().Err(err).Str("provider", name).Msg("news provider skipped")
			continue
		}
		news = append(news, src)
	}

	if len(prices) == 0 {
		a.Logger.Warn().Msg("no price provider available; every quote will be unavailable")
	}
	if len(news) == 0 {
		a.Logger.Warn().Msg("no news provider available; every headline fetch will be unavailable")
	}

	priceChain := fetcher.NewChain(a.Logger, prices...)
	return fetcher.NewCached(priceChain, p.CacheTTL), fetcher.NewNewsChain(a.Logger, news...)
}

func (a *App) defaultNotifier(dryRun bool) alerting.Notifier {
	cfg := a.Config.Telegram
	if dryRun {
		return alerting.NewConsoleNotifier(a.Logger)
	}
	if !cfg.Configured() {
		a.Logger.Warn().Msg("telegram not configured; messages will be logged instead of delivered")
		return alerting.NewConsoleNotifier(a.Logger)
	}
	return alerting.NewTelegramNotifier(alerting.TelegramOptions{
		BotToken:          cfg.BotToken,
		ChatID:            cfg.ChatID,
		BaseURL:           cfg.APIBase,
		Timeout:           cfg.Timeout,
		MessagesPerMinute: cfg.MessagesPerMinute,
	}, a.Logger)
}

// openStore opens the configured state backend. When it cannot be opened the
// failure is logged and an in-memory stand-in is returned, so a pass still
// evaluates alerts. The returned closer is never nil.
func (a *App) openStore(ctx context.Context) (storage.StateStore, func()) {
	store, closer, err := a.openBackend(ctx)
	if err != nil {
		a.Logger.Error().
			Err(err).
			Str("backend", a.Config.State.Backend).
			Msg("state backend unavailable; continuing with in-memory state")
		return storage.NewUnavailableStore(err), func() {}
	}
	return store, closer
}

func (a *App) openBackend(ctx context.Context) (storage.StateStore, func(), error) {
	switch a.Config.State.Backend {
	case config.BackendPostgres:
		if a.Config.Database.AutoMigrate {
			version, err := storage.Migrate(a.Config.Database.DSN)
			if err != nil {
				return nil, nil, backendErr(config.BackendPostgres, err)
			}
			a.Logger.Debug().Uint("schema_version", version).Msg("database schema up to date")
		}
		pool, err := storage.NewPool(ctx, a.Config.Database)
		if err != nil {
			return nil, nil, backendErr(config.BackendPostgres, err)
		}
		store := storage.NewPGStore(pool)
		return store, store.Close, nil
	case config.BackendRedis:
		client, err := storage.NewRedisClient(ctx, a.Config.Redis)
		if err != nil {
			return nil, nil, backendErr(config.BackendRedis, err)
		}
		store := storage.NewRedisStore(client, a.Config.Redis.KeyPrefix)
		return store, func() { _ = store.Close() }, nil
	default:
		return storage.NewFileStore(a.Config.State.Path), func() {}, nil
	}
}

func backendErr(backend string, err error) error {
	return fmt.Errorf("open %s state backend: %w", backend, errors.Join(storage.ErrPersistence, err))
}

// RunOptions configure a single pass.
type RunOptions struct {
	Mode   string
	DryRun bool
}

// Run executes one pass of the action selected for opts.Mode. A panic or an
// error escaping the pass triggers a best-effort failure message.
func (a *App) Run(ctx context.Context, opts RunOptions) (err error) {
	notifier := a.newNotifier(opts.DryRun)

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("run panicked: %v", rec)
		}
		if err != nil && !errors.Is(err, context.Canceled) {
			a.reportFailure(notifier, err)
		}
	}()

	selector, err := scheduler.NewSelector(a.Config.Scheduler)
	if err != nil {
		return err
	}
	action := selector.Select(opts.Mode, time.Now())

	store, closeStore := a.openStore(ctx)
	defer closeStore()

	prices, news := a.newSources()
	svc := service.New(a.Config, prices, news, store, notifier, a.Logger, service.Options{DryRun: opts.DryRun})

	summary, err := svc.Run(ctx, action)
	if err != nil {
		return err
	}

	a.Logger.Info().
		Str("run_id", summary.RunID).
		Str("action", string(summary.Action)).
		Int("sent", summary.Sent).
		Int("failed", summary.Failed).
		Strs("unavailable", summary.Unavailable).
		Bool("skipped", summary.Skipped).
		Msg("run finished")
	return nil
}

func (a *App) reportFailure(notifier alerting.Notifier, cause error) {
	a.Logger.Error().Err(cause).Msg("run failed")
	if notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	text := fmt.Sprintf("🚨 *portfolio-alerts run failed*\n%s\nCheck the job logs.", engine.EscapeMarkdown(cause.Error()))
	if err := notifier.Send(ctx, text); err != nil {
		a.Logger.Error().Err(err).Msg("failure notification not delivered")
	}
}

// Serve repeats passes on a fixed interval until ctx is cancelled.
func (a *App) Serve(ctx context.Context, interval time.Duration, dryRun bool) error {
	loop := scheduler.NewLoop(scheduler.LoopOptions{
		Interval:     interval,
		AlignToStart: true,
		RunAtStart:   true,
	}, a.Logger)

	a.Logger.Info().Dur("interval", interval).Msg("starting scheduled passes")
	err := loop.Run(ctx, func(ctx context.Context, _ time.Time) error {
		return a.Run(ctx, RunOptions{DryRun: dryRun})
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	a.Logger.Info().Msg("scheduled passes stopped")
	return nil
}

// ExportOptions hold parameters for exporting the portfolio snapshot.
type ExportOptions struct {
	PNGPath string
	CSVPath string
	// FromState values positions at the persisted last prices instead of live quotes.
	FromState bool
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// Migrate applies the embedded PostgreSQL schema migrations.
func (a *App) Migrate(_ context.Context) error {
	if a.Config.Database.DSN == "" {
		return errors.New("database.dsn not configured; nothing to migrate")
	}
	version, err := storage.Migrate(a.Config.Database.DSN)
	if err != nil {
		return err
	}
	a.Logger.Info().Uint("schema_version", version).Msg("migrations applied")
	return nil
}
