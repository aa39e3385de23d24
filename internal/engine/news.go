package engine

import (
	"strings"
	"unicode"

	"portfolio-alerts/internal/config"
	"portfolio-alerts/internal/fetcher"
)

// DefaultMaxNewsItems bounds how many headlines per symbol one run looks at.
const DefaultMaxNewsItems = 3

// NotifiedChecker answers whether a news URL was already delivered.
type NotifiedChecker interface {
	HasNotified(url string) bool
}

// NewsPolicy configures news evaluation.
type NewsPolicy struct {
	// RelevanceFilter drops headlines that do not name the position, and
	// headlines led by an excluded company.
	RelevanceFilter bool
	Exclusions      []string
	Vocabulary      Vocabulary
}

// NewsPolicyFromConfig builds the policy for cfg.
func NewsPolicyFromConfig(cfg config.NewsConfig) NewsPolicy {
	return NewsPolicy{
		RelevanceFilter: cfg.RelevanceFilter,
		Exclusions:      lowerAll(cfg.Exclusions),
		Vocabulary:      DefaultVocabulary().WithOverrides(cfg.CriticalKeywords, cfg.PositiveKeywords, cfg.NegativeKeywords),
	}
}

// FirstN returns at most n items, keeping provider order.
func FirstN(items []fetcher.NewsItem, n int) []fetcher.NewsItem {
	if n <= 0 {
		n = DefaultMaxNewsItems
	}
	if len(items) > n {
		return items[:n]
	}
	return items
}

// EvaluateNewsAlert decides whether item deserves an alert for pos. Items
// already delivered, irrelevant items and general news yield nil.
func EvaluateNewsAlert(pos config.Position, item fetcher.NewsItem, notified NotifiedChecker, policy NewsPolicy) *Alert {
	if item.URL == "" || notified.HasNotified(item.URL) {
		return nil
	}
	if policy.RelevanceFilter && !policy.Relevant(pos, item) {
		return nil
	}

	vocab := policy.Vocabulary
	if len(vocab.Critical) == 0 {
		vocab = DefaultVocabulary()
	}
	c := vocab.Classify(item.Title + " " + item.Summary)
	if c.Score < 1 {
		return nil
	}

	news := item
	return &Alert{
		Kind:           KindNews,
		Symbol:         pos.Symbol,
		Name:           pos.Name,
		News:           &news,
		Classification: c,
	}
}

// Relevant reports whether item is about pos. The headline or summary must
// name the symbol, company name or an alias, and the headline must not name
// an excluded company unless it also names the position.
func (p NewsPolicy) Relevant(pos config.Position, item fetcher.NewsItem) bool {
	title := strings.ToLower(item.Title)
	body := title + " " + strings.ToLower(item.Summary)

	if !mentions(body, pos) {
		return false
	}
	for _, ex := range p.Exclusions {
		if ex != "" && strings.Contains(title, ex) && !mentions(title, pos) {
			return false
		}
	}
	return true
}

func mentions(text string, pos config.Position) bool {
	symbol := strings.ToLower(pos.Symbol)
	if symbol != "" {
		for _, word := range strings.FieldsFunc(text, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '.'
		}) {
			if strings.Trim(word, ".") == symbol {
				return true
			}
		}
	}
	for _, name := range append([]string{pos.Name}, pos.Aliases...) {
		name = strings.ToLower(strings.TrimSpace(name))
		if name != "" && strings.Contains(text, name) {
			return true
		}
	}
	return false
}
