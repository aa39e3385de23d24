package storage

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// State is the small amount of memory carried between runs.
type State struct {
	// NotifiedNews holds every news URL whose alert was confirmed delivered,
	// with the delivery time. It only grows.
	NotifiedNews   map[string]time.Time       `json:"notified_news"`
	LastPrice      map[string]decimal.Decimal `json:"last_price"`
	LastIndexValue map[string]decimal.Decimal `json:"last_index_value"`
	UpdatedAt      time.Time                  `json:"updated_at"`

	// unsaved holds URLs marked since the last successful save.
	unsaved map[string]struct{}
}

// NewState returns an empty state.
func NewState() *State {
	return &State{
		NotifiedNews:   make(map[string]time.Time),
		LastPrice:      make(map[string]decimal.Decimal),
		LastIndexValue: make(map[string]decimal.Decimal),
	}
}

func (s *State) ensure() {
	if s.NotifiedNews == nil {
		s.NotifiedNews = make(map[string]time.Time)
	}
	if s.LastPrice == nil {
		s.LastPrice = make(map[string]decimal.Decimal)
	}
	if s.LastIndexValue == nil {
		s.LastIndexValue = make(map[string]decimal.Decimal)
	}
}

// HasNotified reports whether an alert for url was already delivered.
func (s *State) HasNotified(url string) bool {
	_, ok := s.NotifiedNews[url]
	return ok
}

// MarkNotified records a confirmed delivery. Call only after the sink accepted the message.
func (s *State) MarkNotified(url string, at time.Time) {
	s.ensure()
	if _, ok := s.NotifiedNews[url]; ok {
		return
	}
	s.NotifiedNews[url] = at.UTC()
	if s.unsaved == nil {
		s.unsaved = make(map[string]struct{})
	}
	s.unsaved[url] = struct{}{}
	s.UpdatedAt = at.UTC()
}

// UnsavedNotified returns the URLs marked since the last successful save with
// their delivery times.
func (s *State) UnsavedNotified() map[string]time.Time {
	out := make(map[string]time.Time, len(s.unsaved))
	for url := range s.unsaved {
		out[url] = s.NotifiedNews[url]
	}
	return out
}

// markSaved forgets the URLs written by a successful save.
func (s *State) markSaved(urls map[string]time.Time) {
	for url := range urls {
		delete(s.unsaved, url)
	}
}

// Price returns the last observed price of symbol, or nil on cold start.
func (s *State) Price(symbol string) *decimal.Decimal {
	v, ok := s.LastPrice[strings.ToUpper(symbol)]
	if !ok {
		return nil
	}
	return &v
}

// SetPrice stores a successfully fetched price.
func (s *State) SetPrice(symbol string, price decimal.Decimal, at time.Time) {
	s.ensure()
	s.LastPrice[strings.ToUpper(symbol)] = price
	s.UpdatedAt = at.UTC()
}

// IndexValue returns the last observed value of an index, or nil on cold start.
func (s *State) IndexValue(symbol string) *decimal.Decimal {
	v, ok := s.LastIndexValue[symbol]
	if !ok {
		return nil
	}
	return &v
}

// SetIndexValue stores a successfully fetched index value.
func (s *State) SetIndexValue(symbol string, value decimal.Decimal, at time.Time) {
	s.ensure()
	s.LastIndexValue[symbol] = value
	s.UpdatedAt = at.UTC()
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	out := NewState()
	for k, v := range s.NotifiedNews {
		out.NotifiedNews[k] = v
	}
	for k, v := range s.LastPrice {
		out.LastPrice[k] = v
	}
	for k, v := range s.LastIndexValue {
		out.LastIndexValue[k] = v
	}
	for k := range s.unsaved {
		if out.unsaved == nil {
			out.unsaved = make(map[string]struct{}, len(s.unsaved))
		}
		out.unsaved[k] = struct{}{}
	}
	out.UpdatedAt = s.UpdatedAt
	return out
}

// AlertRecord captures a delivered alert for auditing.
type AlertRecord struct {
	ID        int64
	RunID     string
	Kind      string
	Symbol    string
	Message   string
	CreatedAt time.Time
}
