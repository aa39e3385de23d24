package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
portfolio:
  - symbol: tsla
    name: Tesla
    aliases: ["Elon Musk"]
    shares: 10
    avg_cost: 100
    target: "120.5"
    stop_loss: 80
  - symbol: NVDA
    name: Nvidia
    shares: 5
    avg_cost: 450.25
indices:
  - symbol: "^VIX"
    label: VIX
    threshold: 0.15
    inverted: true
briefing:
  advisories:
    "2026-10-22": "TSLA earnings after the close"
scheduler:
  timezone: Asia/Seoul
  windows:
    - cron: "30 8 * * *"
      tolerance: 10m
      action: briefing
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadParsesPortfolio(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	require.Len(t, cfg.Portfolio, 2)
	tsla := cfg.Portfolio[0]
	assert.Equal(t, "TSLA", tsla.Symbol)
	assert.Equal(t, int64(10), tsla.Shares)
	assert.True(t, tsla.AvgCost.Equal(decimal.NewFromInt(100)))
	require.NotNil(t, tsla.Target)
	assert.True(t, tsla.Target.Equal(decimal.RequireFromString("120.5")))
	require.NotNil(t, tsla.StopLoss)
	assert.True(t, tsla.StopLoss.Equal(decimal.NewFromInt(80)))
	assert.Equal(t, []string{"Elon Musk"}, tsla.Aliases)

	nvda := cfg.Portfolio[1]
	assert.Nil(t, nvda.Target)
	assert.Nil(t, nvda.StopLoss)

	require.Len(t, cfg.Indices, 1)
	assert.True(t, cfg.Indices[0].Inverted)
	assert.True(t, cfg.Indices[0].Threshold.Equal(decimal.RequireFromString("0.15")))

	assert.Equal(t, "TSLA earnings after the close", cfg.Briefing.Advisories["2026-10-22"])
	require.Len(t, cfg.Scheduler.Windows, 1)
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.Windows[0].Tolerance)
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "portfolio: []\n"))
	require.NoError(t, err)

	assert.True(t, cfg.Alerts.VolatilityThreshold.Equal(decimal.RequireFromString("0.03")))
	assert.Equal(t, 3, cfg.News.MaxItemsPerSymbol)
	assert.Equal(t, BackendFile, cfg.State.Backend)
	assert.Equal(t, SaveImmediate, cfg.State.SavePolicy)
	assert.Equal(t, []string{"alphavantage", "polygon", "yahoo"}, cfg.Providers.PriceOrder)
	require.Len(t, cfg.Scheduler.Windows, 1)
	assert.Equal(t, "briefing", cfg.Scheduler.Windows[0].Action)
}

func TestLoadLegacyEnvCredentials(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "legacy-token")
	t.Setenv("CHAT_ID", "42")
	t.Setenv("ALPHA_VANTAGE_KEY", "av")

	cfg, err := Load(writeConfig(t, "portfolio: []\n"))
	require.NoError(t, err)

	assert.Equal(t, "legacy-token", cfg.Telegram.BotToken)
	assert.Equal(t, "42", cfg.Telegram.ChatID)
	assert.True(t, cfg.Telegram.Configured())
	assert.Equal(t, "av", cfg.Providers.AlphaVantage.APIKey)
}

func TestPrefixedEnvWinsOverLegacy(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "legacy-token")
	t.Setenv("PORTFOLIO_ALERTS_TELEGRAM_BOT_TOKEN", "new-token")

	cfg, err := Load(writeConfig(t, "portfolio: []\n"))
	require.NoError(t, err)
	assert.Equal(t, "new-token", cfg.Telegram.BotToken)
}

func TestValidateRejectsBadPositions(t *testing.T) {
	cases := map[string]string{
		"missing cost": "portfolio:\n  - symbol: X\n    shares: 1\n",
		"negative shares": "portfolio:\n  - symbol: X\n    shares: -1\n    avg_cost: 1\n",
		"duplicate": "portfolio:\n  - symbol: X\n    avg_cost: 1\n  - symbol: x\n    avg_cost: 2\n",
		"zero index threshold": "indices:\n  - symbol: SPY\n    threshold: 0\n",
		"unknown backend": "state:\n  backend: etcd\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestPositionLookup(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	pos, ok := cfg.Position("tsla")
	require.True(t, ok)
	assert.Equal(t, "Tesla", pos.Name)

	_, ok = cfg.Position("AAPL")
	assert.False(t, ok)
}
