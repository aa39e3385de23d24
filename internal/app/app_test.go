package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-alerts/internal/alerting"
	"portfolio-alerts/internal/config"
	"portfolio-alerts/internal/fetcher"
	"portfolio-alerts/internal/storage"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []string
}

func (r *recordingNotifier) Send(_ context.Context, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
	return nil
}

func decimalPtr(s string) *decimal.Decimal {
	v := decimal.RequireFromString(s)
	return &v
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Portfolio: []config.Position{{
			Symbol:  "X",
			Name:    "Example",
			Shares:  10,
			AvgCost: decimal.NewFromInt(100),
			Target:  decimalPtr("120"),
		}},
		Alerts: config.AlertsConfig{VolatilityThreshold: decimal.RequireFromString("0.03")},
		News:   config.NewsConfig{MaxItemsPerSymbol: 3, RelevanceFilter: true},
		Fetch:  config.FetchConfig{Concurrency: 2},
		State: config.StateConfig{
			Backend:    config.BackendFile,
			Path:       filepath.Join(t.TempDir(), "state", "alert_state.json"),
			SavePolicy: config.SaveImmediate,
		},
		Scheduler: config.SchedulerConfig{Timezone: "UTC"},
		Export:    config.ExportConfig{ChartWidth: 640, ChartHeight: 360},
	}
}

func newTestApp(cfg *config.Config, notifier alerting.Notifier) *App {
	a := NewApp(cfg, zerolog.Nop())
	a.newNotifier = func(bool) alerting.Notifier { return notifier }
	return a
}

func yahooServer(t *testing.T, prices map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		symbol := filepath.Base(r.URL.Path)
		price, ok := prices[symbol]
		if !ok {
			http.Error(w, `{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`, http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"chart":{"result":[{"meta":{"symbol":%q,"regularMarketPrice":%s}}],"error":null}}`, symbol, price)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func seedState(t *testing.T, path string, st *storage.State) {
	t.Helper()
	require.NoError(t, storage.NewFileStore(path).Save(context.Background(), st))
}

func TestNewSourcesSkipsProvidersWithoutCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.Providers = config.ProvidersConfig{
		PriceOrder: []string{"alphavantage", "polygon", "yahoo", "bogus"},
		NewsOrder:  []string{"benzinga", "alphavantage", "yahoo_rss"},
	}

	prices, news := newTestApp(cfg, &recordingNotifier{}).newSources()

	chain, ok := prices.(*fetcher.Chain)
	require.True(t, ok, "a zero cache ttl leaves the chain unwrapped")
	assert.Equal(t, 1, chain.Len())

	newsChain, ok := news.(*fetcher.NewsChain)
	require.True(t, ok)
	assert.Equal(t, 1, newsChain.Len())
}

func TestNewSourcesWrapsChainInCache(t *testing.T) {
	cfg := testConfig(t)
	cfg.Providers = config.ProvidersConfig{
		PriceOrder: []string{"yahoo"},
		CacheTTL:   time.Minute,
	}

	prices, _ := newTestApp(cfg, &recordingNotifier{}).newSources()
	_, ok := prices.(*fetcher.Cached)
	assert.True(t, ok)
}

func TestRunDeliversTargetAlertAndPersists(t *testing.T) {
	cfg := testConfig(t)
	srv := yahooServer(t, map[string]string{"X": "121"})
	cfg.Providers = config.ProvidersConfig{
		PriceOrder: []string{"yahoo"},
		Yahoo:      config.ProviderConfig{BaseURL: srv.URL, Timeout: time.Second},
	}

	seed := storage.NewState()
	seed.SetPrice("X", decimal.NewFromInt(115), time.Now())
	seedState(t, cfg.State.Path, seed)

	notifier := &recordingNotifier{}
	require.NoError(t, newTestApp(cfg, notifier).Run(context.Background(), RunOptions{Mode: "market"}))

	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "target reached")
	assert.Contains(t, notifier.messages[0], "+210.00")
	assert.Contains(t, notifier.messages[0], "+21.0%")

	st, err := storage.NewFileStore(cfg.State.Path).Load(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st.Price("X"))
	assert.True(t, st.Price("X").Equal(decimal.NewFromInt(121)))
}

func TestRunDryRunLeavesStateUntouched(t *testing.T) {
	cfg := testConfig(t)
	srv := yahooServer(t, map[string]string{"X": "121"})
	cfg.Providers = config.ProvidersConfig{
		PriceOrder: []string{"yahoo"},
		Yahoo:      config.ProviderConfig{BaseURL: srv.URL, Timeout: time.Second},
	}

	notifier := &recordingNotifier{}
	require.NoError(t, newTestApp(cfg, notifier).Run(context.Background(), RunOptions{Mode: "market", DryRun: true}))

	_, err := os.Stat(cfg.State.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestRunReportsFailure(t *testing.T) {
	cfg := testConfig(t)
	cfg.Scheduler.Windows = []config.WindowConfig{{Cron: "not a cron", Action: "news"}}

	notifier := &recordingNotifier{}
	err := newTestApp(cfg, notifier).Run(context.Background(), RunOptions{})
	require.Error(t, err)

	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "run failed")
}

func TestRunReportsPanic(t *testing.T) {
	notifier := &recordingNotifier{}
	a := newTestApp(testConfig(t), notifier)
	// A nil Config surfaces as a panic inside the pass.
	a.Config = nil

	err := a.Run(context.Background(), RunOptions{Mode: "news"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	require.Len(t, notifier.messages, 1)
}

func TestSimulateAlert(t *testing.T) {
	cfg := testConfig(t)
	notifier := &recordingNotifier{}
	a := newTestApp(cfg, notifier)

	err := a.SimulateAlert(context.Background(), SimulateOptions{
		Symbol: "x",
		Last:   decimal.NewFromInt(115),
		Price:  decimal.NewFromInt(121),
	})
	require.NoError(t, err)
	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "target reached")

	// A move below every threshold sends nothing.
	err = a.SimulateAlert(context.Background(), SimulateOptions{
		Symbol: "X",
		Last:   decimal.NewFromInt(100),
		Price:  decimal.NewFromInt(101),
	})
	require.NoError(t, err)
	assert.Len(t, notifier.messages, 1)

	err = a.SimulateAlert(context.Background(), SimulateOptions{Symbol: "NOPE", Last: decimal.NewFromInt(1), Price: decimal.NewFromInt(2)})
	assert.Error(t, err)
}

func TestExportFromState(t *testing.T) {
	cfg := testConfig(t)
	seed := storage.NewState()
	seed.SetPrice("X", decimal.NewFromInt(121), time.Now())
	seedState(t, cfg.State.Path, seed)

	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out", "snapshot.csv")
	pngPath := filepath.Join(dir, "out", "snapshot.png")

	a := newTestApp(cfg, &recordingNotifier{})
	require.NoError(t, a.Export(context.Background(), ExportOptions{CSVPath: csvPath, PNGPath: pngPath, FromState: true}))

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, records, 3)
	assert.Equal(t, []string{"X", "10", "100", "121", "210.00", "21.00"}, records[1][1:])
	assert.Equal(t, "TOTAL", records[2][1])

	info, err := os.Stat(pngPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestExportRequiresOutput(t *testing.T) {
	a := newTestApp(testConfig(t), &recordingNotifier{})
	assert.Error(t, a.Export(context.Background(), ExportOptions{}))
}

func TestWriteState(t *testing.T) {
	st := storage.NewState()
	st.SetPrice("X", decimal.NewFromInt(121), time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))
	st.SetIndexValue("^VIX", decimal.NewFromInt(17), time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))
	st.MarkNotified("https://example.com/old", time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC))
	st.MarkNotified("https://example.com/new", time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC))

	alerts := []storage.AlertRecord{{RunID: "r1", Kind: "news", Symbol: "X", Message: "line one\nline two", CreatedAt: time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)}}

	var buf bytes.Buffer
	require.NoError(t, writeState(&buf, st, alerts, 1))

	out := buf.String()
	assert.Contains(t, out, "121")
	assert.Contains(t, out, "^VIX")
	assert.Contains(t, out, "Notified news: 2")
	assert.Contains(t, out, "https://example.com/new")
	assert.NotContains(t, out, "https://example.com/old")
	assert.Contains(t, out, "line one line two")
}

func TestRunContinuesWhenStateBackendUnreachable(t *testing.T) {
	cfg := testConfig(t)
	srv := yahooServer(t, map[string]string{"X": "121"})
	cfg.Providers = config.ProvidersConfig{
		PriceOrder: []string{"yahoo"},
		Yahoo:      config.ProviderConfig{BaseURL: srv.URL, Timeout: time.Second},
	}
	cfg.State.Backend = config.BackendRedis
	cfg.Redis = config.RedisConfig{Addr: "127.0.0.1:1"}

	notifier := &recordingNotifier{}
	require.NoError(t, newTestApp(cfg, notifier).Run(context.Background(), RunOptions{Mode: "briefing"}))

	require.Len(t, notifier.messages, 1)
	assert.Contains(t, notifier.messages[0], "Morning briefing")
	assert.Contains(t, notifier.messages[0], "121.00")
	assert.NotContains(t, notifier.messages[0], "run failed")
}
