package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"portfolio-alerts/internal/config"
)

func portfolio() []config.Position {
	return []config.Position{
		{Symbol: "AAA", Shares: 10, AvgCost: d("100")},
		{Symbol: "BBB", Shares: 5, AvgCost: d("20")},
		{Symbol: "CCC", Shares: 2, AvgCost: d("50")},
	}
}

func TestBriefingOmitsTotalWhenPriceMissing(t *testing.T) {
	prices := map[string]*decimal.Decimal{
		"AAA": dp("110"),
		"BBB": nil,
		"CCC": dp("40"),
	}
	now := time.Date(2026, 10, 20, 8, 30, 0, 0, time.UTC)

	msg := BuildBriefing(portfolio(), prices, nil, now, nil)
	assert.Contains(t, msg, "*BBB*: price unavailable")
	assert.Contains(t, msg, "*AAA*: 110.00 | P/L +100.00 (+10.0%)")
	assert.Contains(t, msg, "*CCC*: 40.00 | P/L -20.00 (-20.0%)")
	assert.NotContains(t, msg, "Total")
}

func TestBriefingTotalWhenComplete(t *testing.T) {
	prices := map[string]*decimal.Decimal{
		"AAA": dp("110"),
		"BBB": dp("20"),
		"CCC": dp("40"),
	}
	now := time.Date(2026, 10, 20, 8, 30, 0, 0, time.UTC)

	msg := BuildBriefing(portfolio(), prices, nil, now, nil)
	// cost 1000+100+100 = 1200, value 1100+100+80 = 1280
	assert.Contains(t, msg, "*Total P/L*: +80.00 (+6.7%)")
}

func TestBriefingAdvisoryAndIndices(t *testing.T) {
	prices := map[string]*decimal.Decimal{"AAA": dp("100"), "BBB": dp("20"), "CCC": dp("50")}
	seoul := time.FixedZone("KST", 9*3600)
	now := time.Date(2026, 10, 22, 8, 30, 0, 0, seoul)
	advisories := map[string]string{
		"2026-10-22": "AAA reports earnings after the close",
		"2026-10-23": "not today",
	}
	indices := []IndexReading{
		{Index: config.Index{Symbol: "^GSPC", Label: "S&P 500"}, Value: dp("5800.123")},
		{Index: config.Index{Symbol: "^VIX"}, Value: nil},
	}

	msg := BuildBriefing(portfolio(), prices, indices, now, advisories)
	assert.Contains(t, msg, "📌 AAA reports earnings after the close")
	assert.NotContains(t, msg, "not today")
	assert.Contains(t, msg, "S&P 500: 5800.12")
	assert.NotContains(t, msg, "^VIX")
	assert.Contains(t, msg, "2026-10-22")
}

func TestValuateSnapshot(t *testing.T) {
	snap := Valuate(portfolio(), map[string]*decimal.Decimal{"AAA": dp("110")})
	assert.False(t, snap.Complete)
	assert.Len(t, snap.Lines, 3)
	assert.True(t, snap.Lines[0].Profit.Equal(d("100")))
}
