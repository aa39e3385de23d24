package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"portfolio-alerts/internal/config"
)

const alphaVantageTimeLayout = "20060102T150405"

// AlphaVantage serves GLOBAL_QUOTE prices and NEWS_SENTIMENT headlines.
type AlphaVantage struct {
	httpProvider
	apiKey string
}

// NewAlphaVantage constructs the Alpha Vantage provider.
func NewAlphaVantage(opts Options, logger zerolog.Logger) (*AlphaVantage, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("alphavantage: %w", config.ErrMissingCredential)
	}
	return &AlphaVantage{
		httpProvider: newHTTPProvider("alphavantage", "https://www.alphavantage.co", opts, logger),
		apiKey:       opts.APIKey,
	}, nil
}

type alphaVantageQuote struct {
	GlobalQuote map[string]string `json:"Global Quote"`
	Note        string            `json:"Note"`
	Information string            `json:"Information"`
	Error       string            `json:"Error Message"`
}

// Quote implements PriceSource.
func (a *AlphaVantage) Quote(ctx context.Context, symbol string) (Quote, error) {
	query := url.Values{}
	query.Set("function", "GLOBAL_QUOTE")
	query.Set("symbol", symbol)
	query.Set("apikey", a.apiKey)

	var res alphaVantageQuote
	if err := a.getJSON(ctx, "/query", query, &res); err != nil {
		return Quote{}, unavailable(a.name, symbol, err)
	}
	if msg := firstNonEmpty(res.Error, res.Note, res.Information); msg != "" {
		return Quote{}, unavailable(a.name, symbol, errors.New(msg))
	}

	priceStr := res.GlobalQuote["05. price"]
	if priceStr == "" {
		return Quote{}, unavailable(a.name, symbol, errors.New("empty global quote"))
	}
	price, err := decimal.NewFromString(priceStr)
	if err != nil {
		return Quote{}, unavailable(a.name, symbol, fmt.Errorf("parse price: %w", err))
	}

	q := Quote{Symbol: symbol, Price: price, Provider: a.name, ObservedAt: time.Now().UTC()}
	if prev, err := decimal.NewFromString(res.GlobalQuote["08. previous close"]); err == nil && prev.IsPositive() {
		q.PreviousClose = &prev
	}
	if err := validQuote(q); err != nil {
		return Quote{}, unavailable(a.name, symbol, err)
	}
	return q, nil
}

type alphaVantageNews struct {
	Feed []struct {
		Title         string `json:"title"`
		URL           string `json:"url"`
		TimePublished string `json:"time_published"`
		Summary       string `json:"summary"`
		Source        string `json:"source"`
	} `json:"feed"`
	Note        string `json:"Note"`
	Information string `json:"Information"`
}

// News implements NewsSource.
func (a *AlphaVantage) News(ctx context.Context, symbol string, limit int) ([]NewsItem, error) {
	query := url.Values{}
	query.Set("function", "NEWS_SENTIMENT")
	query.Set("tickers", symbol)
	query.Set("sort", "LATEST")
	query.Set("limit", strconv.Itoa(limit))
	query.Set("apikey", a.apiKey)

	var res alphaVantageNews
	if err := a.getJSON(ctx, "/query", query, &res); err != nil {
		return nil, unavailable(a.name, symbol, err)
	}
	if msg := firstNonEmpty(res.Note, res.Information); msg != "" && len(res.Feed) == 0 {
		return nil, unavailable(a.name, symbol, errors.New(msg))
	}

	items := make([]NewsItem, 0, len(res.Feed))
	for _, entry := range res.Feed {
		if entry.URL == "" || entry.Title == "" {
			continue
		}
		item := NewsItem{
			Symbol:  symbol,
			Title:   strings.TrimSpace(entry.Title),
			Summary: CleanText(entry.Summary),
			URL:     entry.URL,
			Source:  entry.Source,
		}
		if ts, err := time.ParseInLocation(alphaVantageTimeLayout, entry.TimePublished, time.UTC); err == nil {
			item.PublishedAt = ts
		}
		items = append(items, item)
		if len(items) >= limit {
			break
		}
	}
	return items, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var (
	_ PriceSource = (*AlphaVantage)(nil)
	_ NewsSource  = (*AlphaVantage)(nil)
)
