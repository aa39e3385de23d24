package engine

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"portfolio-alerts/internal/config"
	"portfolio-alerts/internal/fetcher"
)

type notifiedSet map[string]bool

func (n notifiedSet) HasNotified(url string) bool { return n[url] }

func tesla() config.Position {
	return config.Position{Symbol: "TSLA", Name: "Tesla", Aliases: []string{"Elon Musk"}, Shares: 5, AvgCost: d("200")}
}

func TestClassifyImportance(t *testing.T) {
	c := Classify("Tesla earnings beat as revenue climbs")
	assert.Equal(t, ImportanceVeryImportant, c.Importance)
	assert.Equal(t, 2, c.Score)

	c = Classify("Analyst issues UPGRADE on shares")
	assert.Equal(t, ImportanceImportant, c.Importance)

	c = Classify("Company hosts annual picnic")
	assert.Equal(t, ImportanceGeneral, c.Importance)
	assert.Equal(t, SentimentNeutral, c.Sentiment)
}

func TestClassifyCountsDistinctKeywords(t *testing.T) {
	c := Classify("earnings earnings earnings")
	assert.Equal(t, 1, c.Score)
	assert.Equal(t, ImportanceImportant, c.Importance)
}

func TestClassifySentiment(t *testing.T) {
	assert.Equal(t, SentimentPositive, Classify("shares surge to record").Sentiment)
	assert.Equal(t, SentimentNegative, Classify("shares plunge after weak quarter").Sentiment)
	assert.Equal(t, SentimentNeutral, Classify("shares surge then plunge").Sentiment)
}

func TestVocabularyOverrides(t *testing.T) {
	v := DefaultVocabulary().WithOverrides([]string{" Robotaxi "}, nil, nil)
	assert.Equal(t, ImportanceImportant, v.Classify("robotaxi launch").Importance)
	assert.Equal(t, ImportanceGeneral, v.Classify("earnings call").Importance)
	assert.NotEmpty(t, v.Positive)
}

func TestNewsAlertSkipsNotified(t *testing.T) {
	item := fetcher.NewsItem{Title: "Tesla earnings and revenue", URL: "https://n/1"}
	policy := NewsPolicy{RelevanceFilter: true, Vocabulary: DefaultVocabulary()}

	alert := EvaluateNewsAlert(tesla(), item, notifiedSet{}, policy)
	require.NotNil(t, alert)
	assert.Equal(t, KindNews, alert.Kind)
	assert.Equal(t, ImportanceVeryImportant, alert.Classification.Importance)

	assert.Nil(t, EvaluateNewsAlert(tesla(), item, notifiedSet{"https://n/1": true}, policy))
}

func TestNewsAlertSuppressesGeneral(t *testing.T) {
	item := fetcher.NewsItem{Title: "Tesla opens a new showroom", URL: "https://n/2"}
	assert.Nil(t, EvaluateNewsAlert(tesla(), item, notifiedSet{}, NewsPolicy{}))
}

func TestRelevanceFilter(t *testing.T) {
	policy := NewsPolicy{RelevanceFilter: true, Exclusions: []string{"rivian"}, Vocabulary: DefaultVocabulary()}

	unrelated := fetcher.NewsItem{Title: "Ford earnings and guidance", URL: "u1"}
	assert.Nil(t, EvaluateNewsAlert(tesla(), unrelated, notifiedSet{}, policy))

	bySymbol := fetcher.NewsItem{Title: "TSLA: earnings preview", URL: "u2"}
	assert.NotNil(t, EvaluateNewsAlert(tesla(), bySymbol, notifiedSet{}, policy))

	byAlias := fetcher.NewsItem{Title: "Elon Musk outlines guidance", URL: "u3"}
	assert.NotNil(t, EvaluateNewsAlert(tesla(), byAlias, notifiedSet{}, policy))

	excluded := fetcher.NewsItem{Title: "Rivian earnings crush estimates", Summary: "Analysts compare with Tesla", URL: "u4"}
	assert.Nil(t, EvaluateNewsAlert(tesla(), excluded, notifiedSet{}, policy))

	both := fetcher.NewsItem{Title: "Rivian and Tesla sign partnership", URL: "u5"}
	assert.NotNil(t, EvaluateNewsAlert(tesla(), both, notifiedSet{}, policy))

	// Short symbols only match whole words.
	ford := config.Position{Symbol: "F", Name: "Ford Motor", AvgCost: d("10")}
	noise := fetcher.NewsItem{Title: "Fed signals earnings pressure", URL: "u6"}
	assert.Nil(t, EvaluateNewsAlert(ford, noise, notifiedSet{}, policy))
}

func TestFirstN(t *testing.T) {
	items := []fetcher.NewsItem{{URL: "1"}, {URL: "2"}, {URL: "3"}, {URL: "4"}}
	got := FirstN(items, 3)
	require.Len(t, got, 3)
	assert.Equal(t, "1", got[0].URL)
	assert.Len(t, FirstN(items[:2], 3), 2)
	assert.Len(t, FirstN(items, 0), DefaultMaxNewsItems)
}

func TestRenderNewsEscapesMarkdown(t *testing.T) {
	item := fetcher.NewsItem{Title: "Tesla_Q3 *earnings*", Summary: "revenue [up]", URL: "https://n/x", Source: "Wire"}
	alert := EvaluateNewsAlert(tesla(), item, notifiedSet{}, NewsPolicy{})
	require.NotNil(t, alert)

	msg := Render(alert)
	assert.Contains(t, msg, `Tesla\_Q3 \*earnings\*`)
	assert.Contains(t, msg, `revenue \[up]`)
	assert.Contains(t, msg, "https://n/x")
}

func TestRenderNewsEscapesURL(t *testing.T) {
	item := fetcher.NewsItem{Title: "Tesla earnings beat", URL: "https://www.example.com/news/tesla_q3_earnings"}
	alert := EvaluateNewsAlert(tesla(), item, notifiedSet{}, NewsPolicy{})
	require.NotNil(t, alert)

	lines := strings.Split(Render(alert), "\n")
	assert.Equal(t, `https://www.example.com/news/tesla\_q3\_earnings`, lines[len(lines)-1])
}
