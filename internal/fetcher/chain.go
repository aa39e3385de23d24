package fetcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Chain tries price providers in order; the first success wins.
type Chain struct {
	sources []PriceSource
	logger  zerolog.Logger
}

// NewChain builds a fallback chain over the given providers.
func NewChain(logger zerolog.Logger, sources ...PriceSource) *Chain {
	return &Chain{sources: sources, logger: logger.With().Str("component", "price_chain").Logger()}
}

// Len reports how many providers are chained.
func (c *Chain) Len() int {
	return len(c.sources)
}

// Quote implements PriceSource.
func (c *Chain) Quote(ctx context.Context, symbol string) (Quote, error) {
	if len(c.sources) == 0 {
		return Quote{}, fmt.Errorf("%s: %w: no price provider configured", symbol, ErrUnavailable)
	}

	var errs []error
	for _, src := range c.sources {
		q, err := src.Quote(ctx, symbol)
		if err == nil {
			return q, nil
		}
		c.logger.Warn().Err(err).Str("symbol", symbol).Str("provider", nameOf(src)).Msg("price provider failed, trying next")
		errs = append(errs, err)
	}
	return Quote{}, fmt.Errorf("%s: all price providers failed: %w", symbol, errors.Join(errs...))
}

// NewsChain tries news providers in order. An empty list from a provider
// that answered counts as success.
type NewsChain struct {
	sources []NewsSource
	logger  zerolog.Logger
}

// NewNewsChain builds a fallback chain over the given news providers.
func NewNewsChain(logger zerolog.Logger, sources ...NewsSource) *NewsChain {
	return &NewsChain{sources: sources, logger: logger.With().Str("component", "news_chain").Logger()}
}

// Len reports how many providers are chained.
func (c *NewsChain) Len() int {
	return len(c.sources)
}

// News implements NewsSource.
func (c *NewsChain) News(ctx context.Context, symbol string, limit int) ([]NewsItem, error) {
	if len(c.sources) == 0 {
		return nil, fmt.Errorf("%s: %w: no news provider configured", symbol, ErrUnavailable)
	}

	var errs []error
	for _, src := range c.sources {
		items, err := src.News(ctx, symbol, limit)
		if err == nil {
			return items, nil
		}
		c.logger.Warn().Err(err).Str("symbol", symbol).Str("provider", nameOf(src)).Msg("news provider failed, trying next")
		errs = append(errs, err)
	}
	return nil, fmt.Errorf("%s: all news providers failed: %w", symbol, errors.Join(errs...))
}

func nameOf(v any) string {
	if n, ok := v.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", v)
}

var (
	_ PriceSource = (*Chain)(nil)
	_ NewsSource  = (*NewsChain)(nil)
)
