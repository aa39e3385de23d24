package fetcher

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
)

// YahooRSS reads the per-ticker Yahoo Finance headline feed. It needs no key
// and serves as the last news fallback.
type YahooRSS struct {
	httpProvider
	parser *gofeed.Parser
}

// NewYahooRSS constructs the RSS news provider.
func NewYahooRSS(opts Options, logger zerolog.Logger) *YahooRSS {
	base := newHTTPProvider("yahoo_rss", "https://feeds.finance.yahoo.com", opts, logger)
	parser := gofeed.NewParser()
	parser.Client = base.client
	parser.UserAgent = base.userAgent
	return &YahooRSS{httpProvider: base, parser: parser}
}

// News implements NewsSource.
func (r *YahooRSS) News(ctx context.Context, symbol string, limit int) ([]NewsItem, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, unavailable(r.name, symbol, fmt.Errorf("wait for rate limit: %w", err))
	}

	query := url.Values{}
	query.Set("s", symbol)
	query.Set("region", "US")
	query.Set("lang", "en-US")

	feed, err := r.parser.ParseURLWithContext(r.baseURL+"/rss/2.0/headline?"+query.Encode(), ctx)
	if err != nil {
		return nil, unavailable(r.name, symbol, redactURL(err))
	}

	items := make([]NewsItem, 0, limit)
	for _, entry := range newestFirst(feed.Items) {
		if entry.Link == "" || entry.Title == "" {
			continue
		}
		item := NewsItem{
			Symbol:  symbol,
			Title:   strings.TrimSpace(entry.Title),
			Summary: CleanText(entry.Description),
			URL:     entry.Link,
			Source:  "Yahoo Finance",
		}
		if entry.PublishedParsed != nil {
			item.PublishedAt = entry.PublishedParsed.UTC()
		}
		items = append(items, item)
		if len(items) >= limit {
			break
		}
	}
	return items, nil
}

// newestFirst orders dated entries newest first and appends undated entries
// after them in feed order.
func newestFirst(entries []*gofeed.Item) []*gofeed.Item {
	dated := make([]*gofeed.Item, 0, len(entries))
	var undated []*gofeed.Item
	for _, entry := range entries {
		if entry.PublishedParsed == nil {
			undated = append(undated, entry)
			continue
		}
		dated = append(dated, entry)
	}
	sort.SliceStable(dated, func(i, j int) bool {
		return dated[i].PublishedParsed.After(*dated[j].PublishedParsed)
	})
	return append(dated, undated...)
}

var _ NewsSource = (*YahooRSS)(nil)
