package engine

import "strings"

// Importance grades a headline by how many critical keywords it carries.
type Importance int

const (
	ImportanceGeneral Importance = iota
	ImportanceImportant
	ImportanceVeryImportant
)

func (i Importance) String() string {
	switch i {
	case ImportanceVeryImportant:
		return "very important"
	case ImportanceImportant:
		return "important"
	default:
		return "general"
	}
}

// Sentiment is the majority tone of a headline.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// Classification is the result of scoring one piece of text.
type Classification struct {
	// Score counts distinct critical keywords found.
	Score      int
	Importance Importance
	Sentiment  Sentiment
	Keywords   []string
}

// Vocabulary holds the keyword lists used for scoring. All entries are lower case.
type Vocabulary struct {
	Critical []string
	Positive []string
	Negative []string
}

// DefaultVocabulary is the built-in keyword set.
func DefaultVocabulary() Vocabulary {
	return Vocabulary{
		Critical: []string{
			"earnings", "revenue", "guidance", "acquisition", "acquire", "merger",
			"partnership", "upgrade", "downgrade", "price target", "fda", "approval",
			"lawsuit", "recall", "investigation", "buyback", "dividend", "stock split",
			"bankruptcy", "layoffs", "contract", "forecast", "outlook", "delivery",
		},
		Positive: []string{
			"beat", "surge", "soar", "rally", "record", "growth", "strong", "gains",
			"jumps", "raises", "outperform", "bullish", "exceeds", "approval", "upgrade",
		},
		Negative: []string{
			"miss", "plunge", "slump", "falls", "drops", "weak", "loss", "cuts",
			"decline", "bearish", "lawsuit", "recall", "downgrade", "investigation", "layoffs",
		},
	}
}

// WithOverrides replaces any list given a non-empty override.
func (v Vocabulary) WithOverrides(critical, positive, negative []string) Vocabulary {
	if len(critical) > 0 {
		v.Critical = lowerAll(critical)
	}
	if len(positive) > 0 {
		v.Positive = lowerAll(positive)
	}
	if len(negative) > 0 {
		v.Negative = lowerAll(negative)
	}
	return v
}

// Classify scores text with the default vocabulary.
func Classify(text string) Classification {
	return DefaultVocabulary().Classify(text)
}

// Classify scores text. Matching is case-insensitive substring search and each
// keyword counts once however often it appears.
func (v Vocabulary) Classify(text string) Classification {
	lowered := strings.ToLower(text)

	critical := matches(lowered, v.Critical)
	c := Classification{Score: len(critical), Keywords: critical}
	switch {
	case c.Score >= 2:
		c.Importance = ImportanceVeryImportant
	case c.Score == 1:
		c.Importance = ImportanceImportant
	default:
		c.Importance = ImportanceGeneral
	}

	pos := len(matches(lowered, v.Positive))
	neg := len(matches(lowered, v.Negative))
	switch {
	case pos > neg:
		c.Sentiment = SentimentPositive
	case neg > pos:
		c.Sentiment = SentimentNegative
	default:
		c.Sentiment = SentimentNeutral
	}
	return c
}

func matches(text string, keywords []string) []string {
	var found []string
	seen := make(map[string]struct{}, len(keywords))
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		if strings.Contains(text, kw) {
			found = append(found, kw)
		}
	}
	return found
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.ToLower(strings.TrimSpace(v)); v != "" {
			out = append(out, v)
		}
	}
	return out
}
