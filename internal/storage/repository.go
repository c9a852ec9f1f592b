package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"stock-price-alerts/internal/config"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	insertTriggerSQL = `INSERT INTO alert_triggers (
        alert_id,
        symbol,
        kind,
        threshold,
        current_price,
        origin,
        triggered_at,
        delivered
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    RETURNING id, created_at;`

	listRecentTriggersSQL = `SELECT
        id,
        alert_id,
        symbol,
        kind,
        threshold,
        current_price,
        origin,
        triggered_at,
        delivered,
        created_at
    FROM alert_triggers
    ORDER BY triggered_at DESC
    LIMIT $1;`

	deleteTriggersBeforeSQL = `DELETE FROM alert_triggers WHERE created_at < $1;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// TriggerRecord is an audited alert firing.
type TriggerRecord struct {
	ID           int64
	AlertID      string
	Symbol       string
	Kind         Kind
	Threshold    decimal.Decimal
	CurrentPrice decimal.Decimal
	Origin       string
	TriggeredAt  time.Time
	Delivered    bool
	CreatedAt    time.Time
}

// TriggerAuditStore records alert firings.
type TriggerAuditStore interface {
	InsertTrigger(ctx context.Context, rec TriggerRecord) (TriggerRecord, error)
	ListRecentTriggers(ctx context.Context, limit int) ([]TriggerRecord, error)
	DeleteTriggersBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// AuditStore is the PostgreSQL-backed trigger log.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore wires a pgx pool into an AuditStore.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// OpenAuditStore dials PostgreSQL with the configured pool limits and checks
// connectivity before returning.
func OpenAuditStore(ctx context.Context, cfg config.DatabaseConfig) (*AuditStore, error) {
	if cfg.DSN == "" {
		return nil, ErrNotConfigured
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return NewAuditStore(pool), nil
}

// Close releases the underlying pool resources.
func (s *AuditStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *AuditStore) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
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

func (s *AuditStore) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// InsertTrigger persists one firing.
func (s *AuditStore) InsertTrigger(ctx context.Context, rec TriggerRecord) (TriggerRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return TriggerRecord{}, err
	}

	row := pool.QueryRow(ctx, insertTriggerSQL,
		rec.AlertID,
		rec.Symbol,
		string(rec.Kind),
		rec.Threshold.String(),
		rec.CurrentPrice.String(),
		rec.Origin,
		rec.TriggeredAt,
		rec.Delivered,
	)
	if err := row.Scan(&rec.ID, &rec.CreatedAt); err != nil {
		return TriggerRecord{}, fmt.Errorf("insert trigger: %w", err)
	}
	return rec, nil
}

// ListRecentTriggers lists the newest firings first.
func (s *AuditStore) ListRecentTriggers(ctx context.Context, limit int) ([]TriggerRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentTriggersSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent triggers: %w", queryErr)
	}
	defer rows.Close()

	records := make([]TriggerRecord, 0, limit)
	for rows.Next() {
		var rec TriggerRecord
		var kind, thresholdStr, priceStr string
		if err := rows.Scan(
			&rec.ID,
			&rec.AlertID,
			&rec.Symbol,
			&kind,
			&thresholdStr,
			&priceStr,
			&rec.Origin,
			&rec.TriggeredAt,
			&rec.Delivered,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Kind = Kind(kind)

		var convErr error
		rec.Threshold, convErr = decimal.NewFromString(thresholdStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse threshold: %w", convErr)
		}
		rec.CurrentPrice, convErr = decimal.NewFromString(priceStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse current price: %w", convErr)
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

// DeleteTriggersBefore prunes audit rows recorded before olderThan and
// reports how many were removed.
func (s *AuditStore) DeleteTriggersBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteTriggersBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete triggers before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

var (
	_ TriggerAuditStore = (*AuditStore)(nil)
	_ AdvisoryLocker    = (*AuditStore)(nil)
)
