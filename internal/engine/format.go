package engine

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

const maxSummaryRunes = 280

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// EscapeMarkdown escapes the characters that carry meaning in Telegram Markdown.
func EscapeMarkdown(s string) string {
	return markdownEscaper.Replace(s)
}

// Render formats an alert as a Markdown chat message.
func Render(a *Alert) string {
	switch a.Kind {
	case KindTargetReached:
		return renderPrice(a, "🎯", "target reached", "Target")
	case KindStopLossHit:
		return renderPrice(a, "🛑", "stop-loss hit", "Stop-loss")
	case KindVolatilitySpike:
		return renderVolatility(a)
	case KindIndexMove:
		return renderIndex(a)
	case KindNews:
		return renderNews(a)
	}
	return fmt.Sprintf("%s: %s", a.Kind, EscapeMarkdown(a.Symbol))
}

func heading(a *Alert) string {
	h := "*" + EscapeMarkdown(a.Symbol) + "*"
	if a.Name != "" {
		h += " " + EscapeMarkdown(a.Name)
	}
	return h
}

func renderPrice(a *Alert, icon, what, levelName string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s\n", icon, heading(a), what)
	fmt.Fprintf(&b, "Price: %s (last %s, %s)\n", money(a.Current), money(a.Previous), signedPct(a.ChangePct))
	fmt.Fprintf(&b, "%s: %s\n", levelName, money(a.Threshold))
	fmt.Fprintf(&b, "P/L: %s (%s)", signedMoney(a.Profit), signedPct(a.ProfitPct))
	return b.String()
}

func renderVolatility(a *Alert) string {
	icon := "🚀"
	if a.Direction == DirectionDown {
		icon = "📉"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s moved %s %s since last check\n", icon, heading(a), a.Direction, a.ChangePct.Abs().StringFixed(2)+"%")
	fmt.Fprintf(&b, "Price: %s (last %s)\n", money(a.Current), money(a.Previous))
	fmt.Fprintf(&b, "P/L: %s (%s)", signedMoney(a.Profit), signedPct(a.ProfitPct))
	return b.String()
}

func renderIndex(a *Alert) string {
	var b strings.Builder
	icon := "📈"
	if a.Direction == DirectionDown {
		icon = "📉"
	}
	fmt.Fprintf(&b, "%s *%s* %s %s\n", icon, EscapeMarkdown(a.Label), a.Direction, a.ChangePct.Abs().StringFixed(2)+"%")
	fmt.Fprintf(&b, "%s → %s", a.Previous.StringFixed(2), a.Current.StringFixed(2))
	if a.Inverted {
		if a.Direction == DirectionUp {
			b.WriteString("\n😨 _Fear is rising. Consider tightening risk._")
		} else {
			b.WriteString("\n😌 _Volatility is easing. Markets are calming._")
		}
	}
	return b.String()
}

func renderNews(a *Alert) string {
	icon := "📰"
	if a.Classification.Importance == ImportanceVeryImportant {
		icon = "🔥"
	}
	tone := "➖"
	switch a.Classification.Sentiment {
	case SentimentPositive:
		tone = "🟢"
	case SentimentNegative:
		tone = "🔴"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s news %s\n", icon, heading(a), a.Classification.Importance, tone)
	if a.News == nil {
		return strings.TrimRight(b.String(), "\n")
	}
	fmt.Fprintf(&b, "*%s*\n", EscapeMarkdown(a.News.Title))
	if summary := truncate(a.News.Summary, maxSummaryRunes); summary != "" {
		fmt.Fprintf(&b, "%s\n", EscapeMarkdown(summary))
	}
	if a.News.Source != "" {
		fmt.Fprintf(&b, "_%s_\n", EscapeMarkdown(a.News.Source))
	}
	b.WriteString(EscapeMarkdown(a.News.URL))
	return b.String()
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:n])) + "…"
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func signedMoney(d decimal.Decimal) string {
	if d.IsNegative() {
		return d.StringFixed(2)
	}
	return "+" + d.StringFixed(2)
}

func signedPct(d decimal.Decimal) string {
	if d.IsNegative() {
		return d.StringFixed(1) + "%"
	}
	return "+" + d.StringFixed(1) + "%"
}
