package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"portfolio-alerts/internal/alerting"
	"portfolio-alerts/internal/config"
	"portfolio-alerts/internal/engine"
	"portfolio-alerts/internal/fetcher"
	"portfolio-alerts/internal/scheduler"
	"portfolio-alerts/internal/storage"
)

// Options adjust a Service.
type Options struct {
	// DryRun skips every state write.
	DryRun bool
	// Now overrides the clock.
	Now func() time.Time
}

// Service runs one pass: fetch, decide, deliver, record.
type Service struct {
	cfg      *config.Config
	prices   fetcher.PriceSource
	news     fetcher.NewsSource
	store    storage.StateStore
	notifier alerting.Notifier
	logger   zerolog.Logger

	recorder storage.AlertRecorder
	locker   storage.AdvisoryLocker
	lockKey  int64

	policy   engine.NewsPolicy
	location *time.Location
	dryRun   bool
	now      func() time.Time
}

// Summary reports what a pass did.
type Summary struct {
	RunID       string
	Action      scheduler.Action
	Sent        int
	Failed      int
	Unavailable []string
	Skipped     bool
}

// New constructs the service.
func New(cfg *config.Config, prices fetcher.PriceSource, news fetcher.NewsSource, store storage.StateStore, notifier alerting.Notifier, logger zerolog.Logger, opts Options) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}
	var recorder storage.AlertRecorder
	if r, ok := store.(storage.AlertRecorder); ok {
		recorder = r
	}

	loc, err := cfg.Location()
	if err != nil {
		loc = time.UTC
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		cfg:      cfg,
		prices:   prices,
		news:     news,
		store:    store,
		notifier: notifier,
		logger:   logger.With().Str("component", "service").Logger(),
		recorder: recorder,
		locker:   locker,
		lockKey:  cfg.Database.AdvisoryLockKey,
		policy:   engine.NewsPolicyFromConfig(cfg.News),
		location: loc,
		dryRun:   opts.DryRun,
		now:      now,
	}
}

// run carries the mutable state of one pass. Only the calling goroutine touches it.
type run struct {
	id      string
	action  scheduler.Action
	state   *storage.State
	summary *Summary
	logger  zerolog.Logger
}

// Run performs one pass of action. Recoverable failures are logged and
// counted; the returned error is reserved for conditions that stop the pass.
func (s *Service) Run(ctx context.Context, action scheduler.Action) (Summary, error) {
	r := &run{
		id:     uuid.NewString(),
		action: action,
	}
	r.summary = &Summary{RunID: r.id, Action: action}
	r.logger = s.logger.With().Str("run_id", r.id).Str("action", string(action)).Logger()

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("advisory lock unavailable, running without it")
		unlock, proceed = nil, true
	}
	if !proceed {
		r.logger.Warn().Msg("another run holds the advisory lock, skipping")
		r.summary.Skipped = true
		return *r.summary, nil
	}
	if unlock != nil {
		defer unlock()
	}

	st, err := s.store.Load(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("state unreadable, starting from empty state")
	}
	if st == nil {
		st = storage.NewState()
	}
	r.state = st

	r.logger.Info().Int("positions", len(s.cfg.Portfolio)).Int("indices", len(s.cfg.Indices)).Msg("run started")

	switch action {
	case scheduler.ActionBriefing:
		s.briefing(ctx, r)
	case scheduler.ActionNews:
		s.sweep(ctx, r, true, false)
	case scheduler.ActionMarket:
		s.sweep(ctx, r, false, true)
	case scheduler.ActionAll:
		s.sweep(ctx, r, true, true)
	default:
		return *r.summary, fmt.Errorf("unsupported action %q", action)
	}

	s.save(ctx, r)

	r.logger.Info().
		Int("sent", r.summary.Sent).
		Int("failed", r.summary.Failed).
		Strs("unavailable", r.summary.Unavailable).
		Msg("run finished")
	return *r.summary, nil
}

func (s *Service) sweep(ctx context.Context, r *run, withNews, withIndices bool) {
	symbols := positionSymbols(s.cfg.Portfolio)
	if withIndices {
		symbols = append(symbols, indexSymbols(s.cfg.Indices)...)
	}
	quotes := s.fetchQuotes(ctx, r, symbols)

	var headlines map[string][]fetcher.NewsItem
	if withNews {
		headlines = s.fetchNews(ctx, r)
	}

	for _, pos := range s.cfg.Portfolio {
		s.isolate(r, pos.Symbol, func() { s.processPrice(ctx, r, pos, quotes[pos.Symbol]) })
	}
	if withIndices {
		for _, idx := range s.cfg.Indices {
			s.isolate(r, idx.Symbol, func() { s.processIndex(ctx, r, idx, quotes[idx.Symbol]) })
		}
	}
	if withNews {
		for _, pos := range s.cfg.Portfolio {
			s.isolate(r, pos.Symbol, func() { s.processNews(ctx, r, pos, headlines[pos.Symbol]) })
		}
	}
}

func (s *Service) processPrice(ctx context.Context, r *run, pos config.Position, current *decimal.Decimal) {
	if current == nil {
		return
	}
	alert := engine.EvaluatePriceAlert(pos, *current, r.state.Price(pos.Symbol), s.cfg.Alerts.VolatilityThreshold)
	if alert != nil {
		s.deliver(ctx, r, alert)
	}
	r.state.SetPrice(pos.Symbol, *current, s.now())
}

func (s *Service) processIndex(ctx context.Context, r *run, idx config.Index, current *decimal.Decimal) {
	if current == nil {
		return
	}
	alert := engine.EvaluateIndexAlert(idx, *current, r.state.IndexValue(idx.Symbol))
	if alert != nil {
		s.deliver(ctx, r, alert)
	}
	r.state.SetIndexValue(idx.Symbol, *current, s.now())
}

func (s *Service) processNews(ctx context.Context, r *run, pos config.Position, items []fetcher.NewsItem) {
	for _, item := range engine.FirstN(items, s.cfg.News.MaxItemsPerSymbol) {
		alert := engine.EvaluateNewsAlert(pos, item, r.state, s.policy)
		if alert == nil {
			continue
		}
		if !s.deliver(ctx, r, alert) {
			continue
		}
		r.state.MarkNotified(item.URL, s.now())
		if s.cfg.State.SavePolicy == config.SaveImmediate {
			s.save(ctx, r)
		}
	}
}

func (s *Service) briefing(ctx context.Context, r *run) {
	symbols := positionSymbols(s.cfg.Portfolio)
	if s.cfg.Briefing.IncludeIndices {
		symbols = append(symbols, indexSymbols(s.cfg.Indices)...)
	}
	quotes := s.fetchQuotes(ctx, r, symbols)

	var readings []engine.IndexReading
	if s.cfg.Briefing.IncludeIndices {
		for _, idx := range s.cfg.Indices {
			readings = append(readings, engine.IndexReading{Index: idx, Value: quotes[idx.Symbol]})
		}
	}

	text := engine.BuildBriefing(s.cfg.Portfolio, quotes, readings, s.now().In(s.location), s.cfg.Briefing.Advisories)
	if err := s.notifier.Send(ctx, text); err != nil {
		r.summary.Failed++
		r.logger.Error().Err(err).Msg("failed to deliver briefing")
		return
	}
	r.summary.Sent++
	s.record(ctx, r, "briefing", "", text)
}

// deliver sends the rendered alert once and reports whether the sink accepted it.
func (s *Service) deliver(ctx context.Context, r *run, alert *engine.Alert) bool {
	text := engine.Render(alert)
	if err := s.notifier.Send(ctx, text); err != nil {
		r.summary.Failed++
		r.logger.Error().Err(err).Str("symbol", alert.Symbol).Str("kind", string(alert.Kind)).Msg("failed to deliver alert")
		return false
	}
	r.summary.Sent++
	r.logger.Info().Str("symbol", alert.Symbol).Str("kind", string(alert.Kind)).Msg("alert delivered")
	s.record(ctx, r, string(alert.Kind), alert.Symbol, text)
	return true
}

func (s *Service) record(ctx context.Context, r *run, kind, symbol, text string) {
	if s.recorder == nil || s.dryRun {
		return
	}
	rec := storage.AlertRecord{RunID: r.id, Kind: kind, Symbol: symbol, Message: text, CreatedAt: s.now().UTC()}
	if err := s.recorder.RecordAlert(ctx, rec); err != nil {
		r.logger.Warn().Err(err).Str("symbol", symbol).Msg("failed to persist alert record")
	}
}

func (s *Service) save(ctx context.Context, r *run) {
	if s.dryRun {
		return
	}
	if err := s.store.Save(ctx, r.state); err != nil {
		r.logger.Error().Err(err).Msg("failed to save state, continuing with in-memory state")
	}
}

// isolate keeps a defect in one symbol from stopping the others.
func (s *Service) isolate(r *run, symbol string, fn func()) {
	defer func() {
		if rec := recover(); rec != nil {
			r.summary.Failed++
			r.logger.Error().Str("symbol", symbol).Interface("panic", rec).Msg("symbol processing panicked")
		}
	}()
	fn()
}

// fetchQuotes resolves prices in parallel. Missing entries are nil.
func (s *Service) fetchQuotes(ctx context.Context, r *run, symbols []string) map[string]*decimal.Decimal {
	results := make([]*decimal.Decimal, len(symbols))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for i, symbol := range symbols {
		i, symbol := i, symbol
		g.Go(func() error {
			defer s.recoverFetch(r, symbol)
			q, err := s.prices.Quote(gctx, symbol)
			if err != nil {
				r.logger.Warn().Err(err).Str("symbol", symbol).Msg("price unavailable")
				return nil
			}
			price := q.Price
			results[i] = &price
			r.logger.Debug().Str("symbol", symbol).Str("price", price.String()).Str("provider", q.Provider).Msg("price fetched")
			return nil
		})
	}
	_ = g.Wait()

	quotes := make(map[string]*decimal.Decimal, len(symbols))
	for i, symbol := range symbols {
		quotes[symbol] = results[i]
		if results[i] == nil {
			r.summary.Unavailable = append(r.summary.Unavailable, symbol)
		}
	}
	return quotes
}

// fetchNews resolves headlines for every position in parallel.
func (s *Service) fetchNews(ctx context.Context, r *run) map[string][]fetcher.NewsItem {
	if s.news == nil {
		return nil
	}
	limit := s.cfg.News.MaxItemsPerSymbol
	results := make([][]fetcher.NewsItem, len(s.cfg.Portfolio))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency())
	for i, pos := range s.cfg.Portfolio {
		i := i
		symbol := pos.Symbol
		g.Go(func() error {
			defer s.recoverFetch(r, symbol)
			items, err := s.news.News(gctx, symbol, limit)
			if err != nil {
				r.logger.Warn().Err(err).Str("symbol", symbol).Msg("news unavailable")
				return nil
			}
			results[i] = items
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string][]fetcher.NewsItem, len(results))
	for i, pos := range s.cfg.Portfolio {
		out[pos.Symbol] = results[i]
	}
	return out
}

func (s *Service) recoverFetch(r *run, symbol string) {
	if rec := recover(); rec != nil {
		r.logger.Error().Str("symbol", symbol).Interface("panic", rec).Msg("fetch panicked")
	}
}

func (s *Service) concurrency() int {
	if s.cfg.Fetch.Concurrency > 0 {
		return s.cfg.Fetch.Concurrency
	}
	return 1
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil || s.dryRun {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func positionSymbols(positions []config.Position) []string {
	out := make([]string, 0, len(positions))
	for _, p := range positions {
		out = append(out, p.Symbol)
	}
	return out
}

func indexSymbols(indices []config.Index) []string {
	out := make([]string, 0, len(indices))
	for _, idx := range indices {
		out = append(out, idx.Symbol)
	}
	return out
}
