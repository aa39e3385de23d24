package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"portfolio-alerts/internal/logging"
)

// ErrMissingCredential marks an operation skipped because a credential is absent.
var ErrMissingCredential = errors.New("credential not configured")

// Config materialises application configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logging   logging.Config  `mapstructure:"logging"`
	Portfolio []Position      `mapstructure:"portfolio"`
	Indices   []Index         `mapstructure:"indices"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	News      NewsConfig      `mapstructure:"news"`
	Briefing  BriefingConfig  `mapstructure:"briefing"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	State     StateConfig     `mapstructure:"state"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Export    ExportConfig    `mapstructure:"export"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// Position is one holding of the watched portfolio.
type Position struct {
	Symbol   string           `mapstructure:"symbol"`
	Name     string           `mapstructure:"name"`
	Aliases  []string         `mapstructure:"aliases"`
	Shares   int64            `mapstructure:"shares"`
	AvgCost  decimal.Decimal  `mapstructure:"avg_cost"`
	Target   *decimal.Decimal `mapstructure:"target"`
	StopLoss *decimal.Decimal `mapstructure:"stop_loss"`
}

// Index is a market index watched for run-over-run moves.
type Index struct {
	Symbol    string          `mapstructure:"symbol"`
	Label     string          `mapstructure:"label"`
	Threshold decimal.Decimal `mapstructure:"threshold"`
	// Inverted indices read a rise as increasing fear.
	Inverted bool `mapstructure:"inverted"`
}

// DisplayName returns the label, falling back to the symbol.
func (i Index) DisplayName() string {
	if i.Label != "" {
		return i.Label
	}
	return i.Symbol
}

// AlertsConfig holds price-alert thresholds.
type AlertsConfig struct {
	VolatilityThreshold decimal.Decimal `mapstructure:"volatility_threshold"`
}

// NewsConfig tunes the news sweep.
type NewsConfig struct {
	MaxItemsPerSymbol int      `mapstructure:"max_items_per_symbol"`
	RelevanceFilter   bool     `mapstructure:"relevance_filter"`
	Exclusions        []string `mapstructure:"exclusions"`
	// Keyword overrides replace the built-in lists when non-empty.
	CriticalKeywords []string `mapstructure:"critical_keywords"`
	PositiveKeywords []string `mapstructure:"positive_keywords"`
	NegativeKeywords []string `mapstructure:"negative_keywords"`
}

// BriefingConfig tunes the morning briefing.
type BriefingConfig struct {
	// Advisories maps a YYYY-MM-DD date to a reminder line.
	Advisories     map[string]string `mapstructure:"advisories"`
	IncludeIndices bool              `mapstructure:"include_indices"`
}

// ProvidersConfig lists market-data and news providers.
type ProvidersConfig struct {
	PriceOrder   []string       `mapstructure:"price_order"`
	NewsOrder    []string       `mapstructure:"news_order"`
	CacheTTL     time.Duration  `mapstructure:"cache_ttl"`
	AlphaVantage ProviderConfig `mapstructure:"alphavantage"`
	Polygon      ProviderConfig `mapstructure:"polygon"`
	Yahoo        ProviderConfig `mapstructure:"yahoo"`
	Benzinga     ProviderConfig `mapstructure:"benzinga"`
	YahooRSS     ProviderConfig `mapstructure:"yahoo_rss"`
}

// ProviderConfig captures connectivity for one HTTP provider.
type ProviderConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	UserAgent         string        `mapstructure:"user_agent"`
}

// FetchConfig bounds parallel provider calls.
type FetchConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// TelegramConfig describes the chat destination.
type TelegramConfig struct {
	BotToken          string        `mapstructure:"bot_token"`
	ChatID            string        `mapstructure:"chat_id"`
	APIBase           string        `mapstructure:"api_base"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MessagesPerMinute int           `mapstructure:"messages_per_minute"`
	Enabled           bool          `mapstructure:"enabled"`
}

// Configured reports whether delivery is enabled and both token and chat are present.
func (t TelegramConfig) Configured() bool {
	return t.Enabled && t.BotToken != "" && t.ChatID != ""
}

// StateConfig selects the alert-state backend.
type StateConfig struct {
	Backend    string `mapstructure:"backend"`
	Path       string `mapstructure:"path"`
	SavePolicy string `mapstructure:"save_policy"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	AdvisoryLockKey int64         `mapstructure:"advisory_lock_key"`
}

// RedisConfig encapsulates Redis connectivity.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// SchedulerConfig governs run-mode selection when no mode is given.
type SchedulerConfig struct {
	Timezone string         `mapstructure:"timezone"`
	Windows  []WindowConfig `mapstructure:"windows"`
}

// WindowConfig binds a cron expression to a run action.
type WindowConfig struct {
	Cron      string        `mapstructure:"cron"`
	Tolerance time.Duration `mapstructure:"tolerance"`
	Action    string        `mapstructure:"action"`
}

// ExportConfig sets CLI export behaviour.
type ExportConfig struct {
	ChartWidth  int `mapstructure:"chart_width"`
	ChartHeight int `mapstructure:"chart_height"`
}

const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"

	SaveImmediate = "immediate"
	SaveAtEnd     = "end"
)

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PORTFOLIO_ALERTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// bindLegacyEnv accepts the unprefixed secret names used by the CI workflow.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"telegram.bot_token":              {"PORTFOLIO_ALERTS_TELEGRAM_BOT_TOKEN", "TELEGRAM_BOT_TOKEN"},
		"telegram.chat_id":                {"PORTFOLIO_ALERTS_TELEGRAM_CHAT_ID", "CHAT_ID"},
		"providers.alphavantage.api_key": {"PORTFOLIO_ALERTS_PROVIDERS_ALPHAVANTAGE_API_KEY", "ALPHA_VANTAGE_KEY"},
		"providers.polygon.api_key":      {"PORTFOLIO_ALERTS_PROVIDERS_POLYGON_API_KEY", "POLYGON_KEY"},
		"providers.benzinga.api_key":     {"PORTFOLIO_ALERTS_PROVIDERS_BENZINGA_API_KEY", "BENZINGA_KEY"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind env %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "portfolio-alerts")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")

	v.SetDefault("alerts.volatility_threshold", "0.03")

	v.SetDefault("news.max_items_per_symbol", 3)
	v.SetDefault("news.relevance_filter", true)
	v.SetDefault("news.exclusions", []string{})

	v.SetDefault("briefing.include_indices", true)

	v.SetDefault("providers.price_order", []string{"alphavantage", "polygon", "yahoo"})
	v.SetDefault("providers.news_order", []string{"benzinga", "alphavantage", "yahoo_rss"})
	v.SetDefault("providers.cache_ttl", "2m")

	v.SetDefault("providers.alphavantage.api_key", "")
	v.SetDefault("providers.alphavantage.base_url", "https://www.alphavantage.co")
	v.SetDefault("providers.alphavantage.timeout", "10s")
	v.SetDefault("providers.alphavantage.requests_per_minute", 5)

	v.SetDefault("providers.polygon.api_key", "")
	v.SetDefault("providers.polygon.base_url", "https://api.polygon.io")
	v.SetDefault("providers.polygon.timeout", "10s")
	v.SetDefault("providers.polygon.requests_per_minute", 5)

	v.SetDefault("providers.yahoo.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("providers.yahoo.timeout", "10s")
	v.SetDefault("providers.yahoo.requests_per_minute", 30)
	v.SetDefault("providers.yahoo.user_agent", "Mozilla/5.0 (compatible; portfolio-alerts/1.0)")

	v.SetDefault("providers.benzinga.api_key", "")
	v.SetDefault("providers.benzinga.base_url", "https://api.benzinga.com")
	v.SetDefault("providers.benzinga.timeout", "10s")
	v.SetDefault("providers.benzinga.requests_per_minute", 30)

	v.SetDefault("providers.yahoo_rss.base_url", "https://feeds.finance.yahoo.com")
	v.SetDefault("providers.yahoo_rss.timeout", "10s")
	v.SetDefault("providers.yahoo_rss.requests_per_minute", 30)

	v.SetDefault("fetch.concurrency", 4)

	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.chat_id", "")
	v.SetDefault("telegram.api_base", "https://api.telegram.org")
	v.SetDefault("telegram.timeout", "10s")
	v.SetDefault("telegram.messages_per_minute", 20)
	v.SetDefault("telegram.enabled", true)

	v.SetDefault("state.backend", BackendFile)
	v.SetDefault("state.path", "state/alert_state.json")
	v.SetDefault("state.save_policy", SaveImmediate)

	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 1)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.advisory_lock_key", int64(0x736f6669))

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "portfolio_alerts")

	v.SetDefault("scheduler.timezone", "UTC")
	v.SetDefault("scheduler.windows", []map[string]any{
		{"cron": "30 23 * * *", "tolerance": "15m", "action": "briefing"},
	})

	v.SetDefault("export.chart_width", 1280)
	v.SetDefault("export.chart_height", 720)
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			stringToDecimalHookFunc(),
		)
	}
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

func stringToDecimalHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != decimalType {
			return data, nil
		}
		switch value := data.(type) {
		case string:
			return decimal.NewFromString(strings.TrimSpace(value))
		case float64:
			return decimal.NewFromFloat(value), nil
		case float32:
			return decimal.NewFromFloat32(value), nil
		case int:
			return decimal.NewFromInt(int64(value)), nil
		case int64:
			return decimal.NewFromInt(value), nil
		}
		return data, nil
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Portfolio))
	for i := range c.Portfolio {
		pos := &c.Portfolio[i]
		pos.Symbol = strings.ToUpper(strings.TrimSpace(pos.Symbol))
		if pos.Symbol == "" {
			return fmt.Errorf("portfolio[%d].symbol must be set", i)
		}
		if _, dup := seen[pos.Symbol]; dup {
			return fmt.Errorf("portfolio symbol %s listed twice", pos.Symbol)
		}
		seen[pos.Symbol] = struct{}{}
		if pos.Shares < 0 {
			return fmt.Errorf("portfolio %s: shares cannot be negative", pos.Symbol)
		}
		if !pos.AvgCost.IsPositive() {
			return fmt.Errorf("portfolio %s: avg_cost must be greater than zero", pos.Symbol)
		}
		if pos.Target != nil && !pos.Target.IsPositive() {
			return fmt.Errorf("portfolio %s: target must be greater than zero", pos.Symbol)
		}
		if pos.StopLoss != nil && !pos.StopLoss.IsPositive() {
			return fmt.Errorf("portfolio %s: stop_loss must be greater than zero", pos.Symbol)
		}
	}
	for i := range c.Indices {
		idx := &c.Indices[i]
		idx.Symbol = strings.TrimSpace(idx.Symbol)
		if idx.Symbol == "" {
			return fmt.Errorf("indices[%d].symbol must be set", i)
		}
		if !idx.Threshold.IsPositive() {
			return fmt.Errorf("index %s: threshold must be greater than zero", idx.Symbol)
		}
	}
	if !c.Alerts.VolatilityThreshold.IsPositive() {
		return fmt.Errorf("alerts.volatility_threshold must be greater than zero")
	}
	if c.News.MaxItemsPerSymbol <= 0 {
		return fmt.Errorf("news.max_items_per_symbol must be greater than zero")
	}
	if c.Fetch.Concurrency <= 0 {
		return fmt.Errorf("fetch.concurrency must be greater than zero")
	}
	switch c.State.Backend {
	case BackendFile:
		if c.State.Path == "" {
			return fmt.Errorf("state.path must be set for the file backend")
		}
	case BackendPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn must be set for the postgres backend")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr must be set for the redis backend")
		}
	default:
		return fmt.Errorf("state.backend %q is not supported", c.State.Backend)
	}
	if c.State.SavePolicy != SaveImmediate && c.State.SavePolicy != SaveAtEnd {
		return fmt.Errorf("state.save_policy must be %q or %q", SaveImmediate, SaveAtEnd)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the scheduler timezone.
func (c *Config) Location() (*time.Location, error) {
	name := c.Scheduler.Timezone
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("scheduler.timezone %q: %w", name, err)
	}
	return loc, nil
}

// Position looks up a portfolio position by symbol.
func (c *Config) Position(symbol string) (Position, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	for _, pos := range c.Portfolio {
		if pos.Symbol == symbol {
			return pos, true
		}
	}
	return Position{}, false
}
