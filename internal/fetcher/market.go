package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"portfolio-alerts/internal/version"
)

const maxResponseBytes = 4 << 20

// Options parameterise an HTTP market-data or news provider.
type Options struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerMinute int
	UserAgent         string
}

// httpProvider carries the plumbing shared by all HTTP providers.
type httpProvider struct {
	name      string
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
	logger    zerolog.Logger
}

func newHTTPProvider(name, defaultBaseURL string, opts Options, logger zerolog.Logger) httpProvider {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = version.UserAgent()
	}

	return httpProvider{
		name:      name,
		baseURL:   baseURL,
		userAgent: ua,
		client:    &http.Client{Timeout: timeout},
		limiter:   NewLimiter(opts.RequestsPerMinute),
		logger:    logger.With().Str("component", name+"_fetcher").Logger(),
	}
}

// NewLimiter builds a limiter allowing perMinute calls spaced evenly. A
// non-positive value disables limiting.
func NewLimiter(perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
}

// Name identifies the provider.
func (p *httpProvider) Name() string {
	return p.name
}

func (p *httpProvider) get(ctx context.Context, endpoint string, query url.Values) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limit: %w", err)
	}

	target := p.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create %s request: %w", p.name, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send %s request: %w", p.name, redactURL(err))
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", p.name, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseHTTPError(p.name, resp.StatusCode, payload)
	}
	return payload, nil
}

func (p *httpProvider) getJSON(ctx context.Context, endpoint string, query url.Values, out any) error {
	payload, err := p.get(ctx, endpoint, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("decode %s response: %w", p.name, err)
	}
	return nil
}

type errorResponse struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	Description string `json:"description"`
}

func parseHTTPError(provider string, status int, payload []byte) error {
	var apiErr errorResponse
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		for _, msg := range []string{apiErr.Message, apiErr.Description, apiErr.Error} {
			if msg != "" {
				return fmt.Errorf("%s api error (%d): %s", provider, status, msg)
			}
		}
	}
	if len(payload) > 0 {
		body := strings.TrimSpace(string(payload))
		if len(body) > 200 {
			body = body[:200]
		}
		return fmt.Errorf("%s api error (%d): %s", provider, status, body)
	}
	return fmt.Errorf("%s api error (%d)", provider, status)
}

// redactURL drops the request URL, which may carry an API key, from transport errors.
func redactURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", urlErr.Op, urlErr.Err)
	}
	return err
}
