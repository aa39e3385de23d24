package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"portfolio-alerts/internal/config"
)

// Polygon serves the previous-session aggregate as a backup price.
type Polygon struct {
	httpProvider
	apiKey string
}

// NewPolygon constructs the Polygon provider.
func NewPolygon(opts Options, logger zerolog.Logger) (*Polygon, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("polygon: %w", config.ErrMissingCredential)
	}
	return &Polygon{
		httpProvider: newHTTPProvider("polygon", "https://api.polygon.io", opts, logger),
		apiKey:       opts.APIKey,
	}, nil
}

type polygonPrevResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Close     json.Number `json:"c"`
		Open      json.Number `json:"o"`
		Timestamp int64       `json:"t"`
	} `json:"results"`
}

// Quote implements PriceSource.
func (p *Polygon) Quote(ctx context.Context, symbol string) (Quote, error) {
	query := url.Values{}
	query.Set("adjusted", "true")
	query.Set("apiKey", p.apiKey)

	var res polygonPrevResponse
	endpoint := "/v2/aggs/ticker/" + url.PathEscape(symbol) + "/prev"
	if err := p.getJSON(ctx, endpoint, query, &res); err != nil {
		return Quote{}, unavailable(p.name, symbol, err)
	}
	if len(res.Results) == 0 {
		return Quote{}, unavailable(p.name, symbol, errors.New("no aggregate returned"))
	}

	bar := res.Results[0]
	price, err := decimal.NewFromString(bar.Close.String())
	if err != nil {
		return Quote{}, unavailable(p.name, symbol, fmt.Errorf("parse close: %w", err))
	}

	q := Quote{Symbol: symbol, Price: price, Provider: p.name, ObservedAt: time.Now().UTC()}
	if bar.Timestamp > 0 {
		q.ObservedAt = time.UnixMilli(bar.Timestamp).UTC()
	}
	if err := validQuote(q); err != nil {
		return Quote{}, unavailable(p.name, symbol, err)
	}
	return q, nil
}

var _ PriceSource = (*Polygon)(nil)
