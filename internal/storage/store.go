package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"portfolio-alerts/internal/config"
)

// ErrPersistence reports that state could not be read or written.
var ErrPersistence = errors.New("state persistence failed")

// StateStore loads and saves the alert state.
//
// Load always returns a usable state. When the stored state is missing it is
// empty and the error is nil; when it is unreadable it is empty and the error
// wraps ErrPersistence so the caller can log it and continue.
type StateStore interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, st *State) error
}

// AlertRecorder is implemented by stores that keep an audit trail of delivered alerts.
type AlertRecorder interface {
	RecordAlert(ctx context.Context, rec AlertRecord) error
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

func persistErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrPersistence, err))
}

// unavailableStore stands in for a backend that could not be opened.
type unavailableStore struct {
	cause error
}

// NewUnavailableStore returns a StateStore for a backend that failed to open.
// Load yields an empty state and Save fails, both wrapping ErrPersistence, so
// a pass can still run on in-memory state.
func NewUnavailableStore(cause error) StateStore {
	return &unavailableStore{cause: cause}
}

func (u *unavailableStore) Load(context.Context) (*State, error) {
	return NewState(), persistErr("state backend unavailable", u.cause)
}

func (u *unavailableStore) Save(context.Context, *State) error {
	return persistErr("state backend unavailable", u.cause)
}

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}
