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
)

// Yahoo serves chart metadata prices. It needs no key and also resolves
// index symbols such as ^VIX and ^GSPC.
type Yahoo struct {
	httpProvider
}

// NewYahoo constructs the Yahoo Finance chart provider.
func NewYahoo(opts Options, logger zerolog.Logger) *Yahoo {
	return &Yahoo{httpProvider: newHTTPProvider("yahoo", "https://query1.finance.yahoo.com", opts, logger)}
}

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string      `json:"symbol"`
				RegularMarketPrice json.Number `json:"regularMarketPrice"`
				ChartPreviousClose json.Number `json:"chartPreviousClose"`
				RegularMarketTime  int64       `json:"regularMarketTime"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Quote implements PriceSource.
func (y *Yahoo) Quote(ctx context.Context, symbol string) (Quote, error) {
	query := url.Values{}
	query.Set("interval", "1d")
	query.Set("range", "5d")

	var res yahooChartResponse
	if err := y.getJSON(ctx, "/v8/finance/chart/"+url.PathEscape(symbol), query, &res); err != nil {
		return Quote{}, unavailable(y.name, symbol, err)
	}
	if res.Chart.Error != nil {
		return Quote{}, unavailable(y.name, symbol, errors.New(res.Chart.Error.Description))
	}
	if len(res.Chart.Result) == 0 {
		return Quote{}, unavailable(y.name, symbol, errors.New("empty chart result"))
	}

	meta := res.Chart.Result[0].Meta
	price, err := decimal.NewFromString(meta.RegularMarketPrice.String())
	if err != nil {
		return Quote{}, unavailable(y.name, symbol, fmt.Errorf("parse price: %w", err))
	}

	q := Quote{Symbol: symbol, Price: price, Provider: y.name, ObservedAt: time.Now().UTC()}
	if meta.RegularMarketTime > 0 {
		q.ObservedAt = time.Unix(meta.RegularMarketTime, 0).UTC()
	}
	if prev, err := decimal.NewFromString(meta.ChartPreviousClose.String()); err == nil && prev.IsPositive() {
		q.PreviousClose = &prev
	}
	if err := validQuote(q); err != nil {
		return Quote{}, unavailable(y.name, symbol, err)
	}
	return q, nil
}

var _ PriceSource = (*Yahoo)(nil)
