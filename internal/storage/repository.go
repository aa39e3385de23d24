package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	listNotifiedNewsSQL = `SELECT url, notified_at FROM notified_news;`

	listLastPricesSQL = `SELECT symbol, price::text FROM last_prices;`

	listLastIndexValuesSQL = `SELECT symbol, value::text FROM last_index_values;`

	insertNotifiedNewsSQL = `INSERT INTO notified_news (url, notified_at)
    VALUES ($1, $2)
    ON CONFLICT (url) DO NOTHING;`

	upsertLastPriceSQL = `INSERT INTO last_prices (symbol, price, updated_at)
    VALUES ($1, $2::numeric, $3)
    ON CONFLICT (symbol) DO UPDATE
    SET price      = EXCLUDED.price,
        updated_at = EXCLUDED.updated_at;`

	upsertLastIndexValueSQL = `INSERT INTO last_index_values (symbol, value, updated_at)
    VALUES ($1, $2::numeric, $3)
    ON CONFLICT (symbol) DO UPDATE
    SET value      = EXCLUDED.value,
        updated_at = EXCLUDED.updated_at;`

	insertAlertSQL = `INSERT INTO alerts (
        run_id,
        kind,
        symbol,
        message
    ) VALUES (
        $1,$2,$3,$4
    );`

	listRecentAlertsSQL = `SELECT
        id,
        run_id,
        kind,
        symbol,
        message,
        created_at
    FROM alerts
    ORDER BY created_at DESC
    LIMIT $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// PGStore keeps the alert state in PostgreSQL tables.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wires a pgx pool into a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Close releases the underlying pool resources.
func (s *PGStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *PGStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *PGStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// Load implements StateStore.
func (s *PGStore) Load(ctx context.Context) (*State, error) {
	st := NewState()
	pool, err := s.getPool()
	if err != nil {
		return st, persistErr("load state", err)
	}

	rows, err := pool.Query(ctx, listNotifiedNewsSQL)
	if err != nil {
		return NewState(), persistErr("list notified news", err)
	}
	for rows.Next() {
		var url string
		var at time.Time
		if err := rows.Scan(&url, &at); err != nil {
			rows.Close()
			return NewState(), persistErr("scan notified news", err)
		}
		st.NotifiedNews[url] = at.UTC()
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return NewState(), persistErr("list notified news", err)
	}

	if err := scanDecimals(ctx, pool, listLastPricesSQL, st.LastPrice); err != nil {
		return NewState(), persistErr("list last prices", err)
	}
	if err := scanDecimals(ctx, pool, listLastIndexValuesSQL, st.LastIndexValue); err != nil {
		return NewState(), persistErr("list last index values", err)
	}
	return st, nil
}

func scanDecimals(ctx context.Context, pool *pgxpool.Pool, query string, into map[string]decimal.Decimal) error {
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var symbol, valueStr string
		if err := rows.Scan(&symbol, &valueStr); err != nil {
			return err
		}
		value, err := decimal.NewFromString(valueStr)
		if err != nil {
			return fmt.Errorf("parse %s: %w", symbol, err)
		}
		into[symbol] = value
	}
	return rows.Err()
}

// Save implements StateStore. Only URLs notified since the previous save are
// inserted; existing rows are never touched.
func (s *PGStore) Save(ctx context.Context, st *State) error {
	pool, err := s.getPool()
	if err != nil {
		return persistErr("save state", err)
	}

	now := time.Now().UTC()
	fresh := st.UnsavedNotified()
	batch := &pgx.Batch{}
	for url, at := range fresh {
		if at.IsZero() {
			at = now
		}
		batch.Queue(insertNotifiedNewsSQL, url, at)
	}
	for symbol, price := range st.LastPrice {
		batch.Queue(upsertLastPriceSQL, symbol, price.String(), now)
	}
	for symbol, value := range st.LastIndexValue {
		batch.Queue(upsertLastIndexValueSQL, symbol, value.String(), now)
	}
	if batch.Len() == 0 {
		return nil
	}

	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return persistErr("save state", err)
	}
	st.markSaved(fresh)
	return nil
}

// RecordAlert implements AlertRecorder.
func (s *PGStore) RecordAlert(ctx context.Context, rec AlertRecord) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, insertAlertSQL, rec.RunID, rec.Kind, rec.Symbol, rec.Message); err != nil {
		return persistErr("insert alert", err)
	}
	return nil
}

// ListRecentAlerts implements AlertRecorder.
func (s *PGStore) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.RunID,
			&rec.Kind,
			&rec.Symbol,
			&rec.Message,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

var (
	_ StateStore     = (*PGStore)(nil)
	_ AlertRecorder  = (*PGStore)(nil)
	_ AdvisoryLocker = (*PGStore)(nil)
)
