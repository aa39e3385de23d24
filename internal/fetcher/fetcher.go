package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrUnavailable reports that a provider produced no usable observation.
var ErrUnavailable = errors.New("data unavailable")

// Quote is one price observation for a symbol.
type Quote struct {
	Symbol        string
	Price         decimal.Decimal
	PreviousClose *decimal.Decimal
	Provider      string
	ObservedAt    time.Time
}

// NewsItem is a headline associated with a symbol. URL identifies it.
type NewsItem struct {
	Symbol      string
	Title       string
	Summary     string
	URL         string
	Source      string
	PublishedAt time.Time
}

// PriceSource retrieves the latest price for a symbol.
type PriceSource interface {
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// NewsSource retrieves recent headlines for a symbol, newest first.
type NewsSource interface {
	News(ctx context.Context, symbol string, limit int) ([]NewsItem, error)
}

// Named is implemented by providers that can identify themselves in logs.
type Named interface {
	Name() string
}

func unavailable(provider, symbol string, err error) error {
	return fmt.Errorf("%s %s: %w", provider, symbol, errors.Join(ErrUnavailable, err))
}

func validQuote(q Quote) error {
	if !q.Price.IsPositive() {
		return fmt.Errorf("non-positive price %s", q.Price.String())
	}
	return nil
}
