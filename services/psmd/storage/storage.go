package storage

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"psmswap/crypto"
	"psmswap/curve"
	"psmswap/permission"
	"psmswap/pool"
)

// Storage wraps the psmd persistence layer: pool state, permission records,
// and the append-only rate update audit log.
type Storage struct {
	db *sql.DB
}

// ErrPathRequired is returned when the backing store path is missing.
var ErrPathRequired = errors.New("psmd storage path must be configured")

// Open initialises the backing store using a sqlite-compatible DSN.
func Open(dsn string) (*Storage, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := sql.Open("sqlite", trimmed)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Storage{db: db}, nil
}

// Close releases database resources.
func (s *Storage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// GetPool loads a pool record, returning nil without error when none exists.
func (s *Storage) GetPool(ctx context.Context, id pool.PoolID) (*pool.Pool, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	row := s.db.QueryRowContext(ctx, `
        SELECT token_a, token_b, reserve_a, reserve_b, pool_supply, curve
        FROM pools
        WHERE id = ?
    `, poolKey(id))
	var (
		tokenA, tokenB                 string
		reserveA, reserveB, poolSupply string
		packed                         []byte
	)
	if err := row.Scan(&tokenA, &tokenB, &reserveA, &reserveB, &poolSupply, &packed); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query pool: %w", err)
	}

	swapCurve, err := curve.UnpackSwapCurve(packed)
	if err != nil {
		return nil, fmt.Errorf("decode pool curve: %w", err)
	}
	record := &pool.Pool{
		ID:     id,
		TokenA: tokenA,
		TokenB: tokenB,
		Curve:  swapCurve,
	}
	if record.ReserveA, err = uint256.FromDecimal(reserveA); err != nil {
		return nil, fmt.Errorf("decode reserve a: %w", err)
	}
	if record.ReserveB, err = uint256.FromDecimal(reserveB); err != nil {
		return nil, fmt.Errorf("decode reserve b: %w", err)
	}
	if record.PoolTokenSupply, err = uint256.FromDecimal(poolSupply); err != nil {
		return nil, fmt.Errorf("decode pool supply: %w", err)
	}
	return record, nil
}

// PutPool persists the whole pool record in one statement.
func (s *Storage) PutPool(ctx context.Context, id pool.PoolID, p *pool.Pool) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if p == nil || p.Curve == nil || p.ReserveA == nil || p.ReserveB == nil || p.PoolTokenSupply == nil {
		return fmt.Errorf("pool record incomplete")
	}
	packed, err := p.Curve.Bytes()
	if err != nil {
		return fmt.Errorf("encode pool curve: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO pools(id, token_a, token_b, reserve_a, reserve_b, pool_supply, curve, updated_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            token_a = excluded.token_a,
            token_b = excluded.token_b,
            reserve_a = excluded.reserve_a,
            reserve_b = excluded.reserve_b,
            pool_supply = excluded.pool_supply,
            curve = excluded.curve,
            updated_at = excluded.updated_at
    `, poolKey(id), p.TokenA, p.TokenB, p.ReserveA.Dec(), p.ReserveB.Dec(), p.PoolTokenSupply.Dec(), packed, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert pool: %w", err)
	}
	return nil
}

// GetPermission loads a permission record for the (pool, authority) pair,
// returning nil without error when none exists.
func (s *Storage) GetPermission(ctx context.Context, id pool.PoolID, authority crypto.Address) (*permission.Record, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	row := s.db.QueryRowContext(ctx, `
        SELECT record
        FROM permissions
        WHERE pool_id = ? AND authority = ?
    `, poolKey(id), authority.String())
	var packed []byte
	if err := row.Scan(&packed); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("query permission: %w", err)
	}
	record, err := permission.Unpack(packed)
	if err != nil {
		return nil, fmt.Errorf("decode permission: %w", err)
	}
	return record, nil
}

// PutPermission persists a permission record keyed by its (pool, authority)
// pair.
func (s *Storage) PutPermission(ctx context.Context, record *permission.Record) error {
	if s == nil {
		return fmt.Errorf("storage not configured")
	}
	if record == nil {
		return fmt.Errorf("permission record required")
	}
	packed, err := record.Bytes()
	if err != nil {
		return fmt.Errorf("encode permission: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO permissions(pool_id, authority, super_admin, can_update, record, updated_at)
        VALUES(?, ?, ?, ?, ?, ?)
        ON CONFLICT(pool_id, authority) DO UPDATE SET
            super_admin = excluded.super_admin,
            can_update = excluded.can_update,
            record = excluded.record,
            updated_at = excluded.updated_at
    `, hex.EncodeToString(record.Pool[:]), record.Authority.String(), record.SuperAdmin, record.CanUpdateParameters, packed, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert permission: %w", err)
	}
	return nil
}

// ListPermissions returns all permission records for a pool.
func (s *Storage) ListPermissions(ctx context.Context, id pool.PoolID) ([]*permission.Record, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT record
        FROM permissions
        WHERE pool_id = ?
        ORDER BY authority
    `, poolKey(id))
	if err != nil {
		return nil, fmt.Errorf("query permissions: %w", err)
	}
	defer rows.Close()

	var records []*permission.Record
	for rows.Next() {
		var packed []byte
		if err := rows.Scan(&packed); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		record, err := permission.Unpack(packed)
		if err != nil {
			return nil, fmt.Errorf("decode permission: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// RateUpdateRecord is one row of the rate update audit log.
type RateUpdateRecord struct {
	ID          string
	Digest      string
	Authority   string
	SSR         string
	Rho         uint64
	Chi         string
	Outcome     string
	SubmittedAt time.Time
}

// RecordRateUpdate appends an audit row for a submitted rate update,
// accepted or rejected, and returns the generated row id.
func (s *Storage) RecordRateUpdate(ctx context.Context, id pool.PoolID, digest, authority, ssr string, rho uint64, chi, outcome string) (string, error) {
	if s == nil {
		return "", fmt.Errorf("storage not configured")
	}
	rowID := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO rate_updates(id, pool_id, digest, authority, ssr, rho, chi, outcome, submitted_at)
        VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, rowID, poolKey(id), digest, authority, ssr, rho, chi, outcome, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("insert rate update: %w", err)
	}
	return rowID, nil
}

// RecentRateUpdates returns the newest audit rows for a pool, most recent
// first.
func (s *Storage) RecentRateUpdates(ctx context.Context, id pool.PoolID, limit int) ([]RateUpdateRecord, error) {
	if s == nil {
		return nil, fmt.Errorf("storage not configured")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, digest, authority, ssr, rho, chi, outcome, submitted_at
        FROM rate_updates
        WHERE pool_id = ?
        ORDER BY submitted_at DESC, rowid DESC
        LIMIT ?
    `, poolKey(id), limit)
	if err != nil {
		return nil, fmt.Errorf("query rate updates: %w", err)
	}
	defer rows.Close()

	var records []RateUpdateRecord
	for rows.Next() {
		var record RateUpdateRecord
		if err := rows.Scan(&record.ID, &record.Digest, &record.Authority, &record.SSR, &record.Rho, &record.Chi, &record.Outcome, &record.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan rate update: %w", err)
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

func poolKey(id pool.PoolID) string {
	return hex.EncodeToString(id[:])
}

const schema = `
CREATE TABLE IF NOT EXISTS pools (
    id TEXT PRIMARY KEY,
    token_a TEXT NOT NULL,
    token_b TEXT NOT NULL,
    reserve_a TEXT NOT NULL,
    reserve_b TEXT NOT NULL,
    pool_supply TEXT NOT NULL,
    curve BLOB NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS permissions (
    pool_id TEXT NOT NULL,
    authority TEXT NOT NULL,
    super_admin INTEGER NOT NULL,
    can_update INTEGER NOT NULL,
    record BLOB NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (pool_id, authority)
);

CREATE TABLE IF NOT EXISTS rate_updates (
    id TEXT PRIMARY KEY,
    pool_id TEXT NOT NULL,
    digest TEXT NOT NULL,
    authority TEXT NOT NULL,
    ssr TEXT NOT NULL,
    rho INTEGER NOT NULL,
    chi TEXT NOT NULL,
    outcome TEXT NOT NULL,
    submitted_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rate_updates_pool_ts ON rate_updates(pool_id, submitted_at);
`
