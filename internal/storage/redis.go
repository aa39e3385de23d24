package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"portfolio-alerts/internal/config"
)

const redisAlertLogSize = 500

// RedisStore keeps the alert state in Redis hashes under a common prefix.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisClient opens and pings a client for cfg.
func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// NewRedisStore wraps client. An empty prefix defaults to portfolio_alerts.
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "portfolio_alerts"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Close releases the client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) key(name string) string {
	return r.prefix + ":" + name
}

// Load implements StateStore.
func (r *RedisStore) Load(ctx context.Context) (*State, error) {
	pipe := r.client.Pipeline()
	newsCmd := pipe.HGetAll(ctx, r.key("notified_news"))
	pricesCmd := pipe.HGetAll(ctx, r.key("last_price"))
	indexCmd := pipe.HGetAll(ctx, r.key("last_index_value"))
	updatedCmd := pipe.Get(ctx, r.key("updated_at"))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return NewState(), persistErr("load redis state", err)
	}

	st := NewState()
	for url, raw := range newsCmd.Val() {
		var at time.Time
		if unix, err := strconv.ParseInt(raw, 10, 64); err == nil && unix > 0 {
			at = time.Unix(unix, 0).UTC()
		}
		st.NotifiedNews[url] = at
	}
	if err := parseDecimalHash(pricesCmd.Val(), st.LastPrice); err != nil {
		return NewState(), persistErr("decode last_price", err)
	}
	if err := parseDecimalHash(indexCmd.Val(), st.LastIndexValue); err != nil {
		return NewState(), persistErr("decode last_index_value", err)
	}
	if ts, err := time.Parse(time.RFC3339, updatedCmd.Val()); err == nil {
		st.UpdatedAt = ts
	}
	return st, nil
}

func parseDecimalHash(values map[string]string, into map[string]decimal.Decimal) error {
	for symbol, raw := range values {
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", symbol, err)
		}
		into[symbol] = v
	}
	return nil
}

// Save implements StateStore. URLs notified since the previous save are
// written with HSETNX so the first delivery time is kept.
func (r *RedisStore) Save(ctx context.Context, st *State) error {
	fresh := st.UnsavedNotified()
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for url, at := range fresh {
			pipe.HSetNX(ctx, r.key("notified_news"), url, at.Unix())
		}
		if len(st.LastPrice) > 0 {
			pipe.HSet(ctx, r.key("last_price"), decimalFields(st.LastPrice))
		}
		if len(st.LastIndexValue) > 0 {
			pipe.HSet(ctx, r.key("last_index_value"), decimalFields(st.LastIndexValue))
		}
		pipe.Set(ctx, r.key("updated_at"), time.Now().UTC().Format(time.RFC3339), 0)
		return nil
	})
	if err != nil {
		return persistErr("save redis state", err)
	}
	st.markSaved(fresh)
	return nil
}

func decimalFields(values map[string]decimal.Decimal) map[string]any {
	fields := make(map[string]any, len(values))
	for k, v := range values {
		fields[k] = v.String()
	}
	return fields
}

// RecordAlert implements AlertRecorder with a capped list, newest first.
func (r *RedisStore) RecordAlert(ctx context.Context, rec AlertRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	entry := fmt.Sprintf("%d|%s|%s|%s|%s", rec.CreatedAt.Unix(), rec.RunID, rec.Kind, rec.Symbol, rec.Message)

	pipe := r.client.Pipeline()
	pipe.LPush(ctx, r.key("alerts"), entry)
	pipe.LTrim(ctx, r.key("alerts"), 0, redisAlertLogSize-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return persistErr("record alert", err)
	}
	return nil
}

// ListRecentAlerts implements AlertRecorder.
func (r *RedisStore) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	entries, err := r.client.LRange(ctx, r.key("alerts"), 0, int64(limit)-1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("list recent alerts: %w", err)
	}

	out := make([]AlertRecord, 0, len(entries))
	for _, entry := range entries {
		if rec, ok := parseAlertEntry(entry); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

func parseAlertEntry(entry string) (AlertRecord, bool) {
	parts := strings.SplitN(entry, "|", 5)
	if len(parts) != 5 {
		return AlertRecord{}, false
	}
	unix, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return AlertRecord{}, false
	}
	return AlertRecord{
		CreatedAt: time.Unix(unix, 0).UTC(),
		RunID:     parts[1],
		Kind:      parts[2],
		Symbol:    parts[3],
		Message:   parts[4],
	}, true
}

var (
	_ StateStore    = (*RedisStore)(nil)
	_ AlertRecorder = (*RedisStore)(nil)
)
