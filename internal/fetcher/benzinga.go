package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"portfolio-alerts/internal/config"
)

// Benzinga serves ticker news from the v2 news endpoint.
type Benzinga struct {
	httpProvider
	token string
}

// NewBenzinga constructs the Benzinga provider.
func NewBenzinga(opts Options, logger zerolog.Logger) (*Benzinga, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("benzinga: %w", config.ErrMissingCredential)
	}
	return &Benzinga{
		httpProvider: newHTTPProvider("benzinga", "https://api.benzinga.com", opts, logger),
		token:        opts.APIKey,
	}, nil
}

type benzingaArticle struct {
	ID      int64  `json:"id"`
	Title   string `json:"title"`
	Teaser  string `json:"teaser"`
	URL     string `json:"url"`
	Created string `json:"created"`
	Author  string `json:"author"`
}

// News implements NewsSource. Articles come back newest first.
func (b *Benzinga) News(ctx context.Context, symbol string, limit int) ([]NewsItem, error) {
	query := url.Values{}
	query.Set("token", b.token)
	query.Set("tickers", symbol)
	query.Set("pageSize", strconv.Itoa(limit))
	query.Set("displayOutput", "abstract")
	query.Set("sort", "created:desc")

	var articles []benzingaArticle
	if err := b.getJSON(ctx, "/api/v2/news", query, &articles); err != nil {
		return nil, unavailable(b.name, symbol, err)
	}

	items := make([]NewsItem, 0, len(articles))
	for _, a := range articles {
		if a.URL == "" || a.Title == "" {
			continue
		}
		item := NewsItem{
			Symbol:  symbol,
			Title:   strings.TrimSpace(a.Title),
			Summary: CleanText(a.Teaser),
			URL:     a.URL,
			Source:  "Benzinga",
		}
		if ts, err := time.Parse(time.RFC1123Z, a.Created); err == nil {
			item.PublishedAt = ts.UTC()
		}
		items = append(items, item)
		if len(items) >= limit {
			break
		}
	}
	return items, nil
}

var _ NewsSource = (*Benzinga)(nil)
