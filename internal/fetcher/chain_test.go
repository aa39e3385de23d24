package fetcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubPrice struct {
	name  string
	price decimal.Decimal
	err   error
	calls int
}

func (s *stubPrice) Name() string { return s.name }

func (s *stubPrice) Quote(ctx context.Context, symbol string) (Quote, error) {
	s.calls++
	if s.err != nil {
		return Quote{}, unavailable(s.name, symbol, s.err)
	}
	return Quote{Symbol: symbol, Price: s.price, Provider: s.name}, nil
}

type stubNews struct {
	items []NewsItem
	err   error
	calls int
}

func (s *stubNews) News(ctx context.Context, symbol string, limit int) ([]NewsItem, error) {
	s.calls++
	return s.items, s.err
}

func TestChainFallsBackInOrder(t *testing.T) {
	primary := &stubPrice{name: "primary", err: errors.New("boom")}
	backup := &stubPrice{name: "backup", price: decimal.NewFromInt(10)}
	never := &stubPrice{name: "never", price: decimal.NewFromInt(99)}

	q, err := NewChain(noopLogger(), primary, backup, never).Quote(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, "backup", q.Provider)
	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, never.calls)
}

func TestChainAllFailingIsUnavailable(t *testing.T) {
	a := &stubPrice{name: "a", err: errors.New("down")}
	b := &stubPrice{name: "b", err: errors.New("down too")}

	_, err := NewChain(noopLogger(), a, b).Quote(context.Background(), "X")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))

	_, err = NewChain(noopLogger()).Quote(context.Background(), "X")
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestNewsChainEmptyAnswerStops(t *testing.T) {
	first := &stubNews{}
	second := &stubNews{items: []NewsItem{{URL: "u"}}}

	items, err := NewNewsChain(noopLogger(), first, second).News(context.Background(), "X", 3)
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 0, second.calls)
}

func TestNewsChainFallsBack(t *testing.T) {
	first := &stubNews{err: unavailable("first", "X", errors.New("down"))}
	second := &stubNews{items: []NewsItem{{URL: "u"}}}

	items, err := NewNewsChain(noopLogger(), first, second).News(context.Background(), "X", 3)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestCachedQuoteMemoisesSuccessOnly(t *testing.T) {
	failing := &stubPrice{name: "f", err: errors.New("down")}
	cached := NewCached(failing, time.Minute)
	_, _ = cached.Quote(context.Background(), "X")
	_, _ = cached.Quote(context.Background(), "X")
	assert.Equal(t, 2, failing.calls)

	ok := &stubPrice{name: "ok", price: decimal.NewFromInt(5)}
	cached = NewCached(ok, time.Minute)
	_, err := cached.Quote(context.Background(), "x")
	require.NoError(t, err)
	q, err := cached.Quote(context.Background(), "X")
	require.NoError(t, err)
	assert.Equal(t, 1, ok.calls)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(5)))
}

func TestNewCachedDisabled(t *testing.T) {
	src := &stubPrice{name: "s", price: decimal.NewFromInt(1)}
	assert.Same(t, PriceSource(src), NewCached(src, 0))
}

func TestNewLimiterSpacing(t *testing.T) {
	assert.True(t, NewLimiter(0).Allow())
	l := NewLimiter(60)
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())
}
