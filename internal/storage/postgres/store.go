// Package postgres implements the ledger store on Postgres for deployments
// that keep the ledger in a shared database instead of a local file.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"poolwatch/internal/model"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS block_earnings (
		time BIGINT NOT NULL,
		block_hash TEXT NOT NULL,
		earned_sats BIGINT NOT NULL,
		pool_fee BIGINT NOT NULL,
		time_added_first BIGINT NOT NULL,
		time_updated BIGINT NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS block_earnings_hash ON block_earnings (block_hash)`,
	`CREATE INDEX IF NOT EXISTS block_earnings_time ON block_earnings (time)`,
	`CREATE TABLE IF NOT EXISTS earn_snapshots (
		time BIGINT NOT NULL,
		estimated BIGINT NOT NULL,
		acctd_unpaid BIGINT NOT NULL,
		acctd_paid BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS earn_snapshots_time ON earn_snapshots (time)`,
}

// Store provides Postgres persistence for block earnings and snapshots.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects a read-write pool.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	return connect(ctx, dsn, false)
}

// NewReadOnlyStore connects a pool whose sessions refuse writes; Postgres
// MVCC reads never block the ingest writer.
func NewReadOnlyStore(ctx context.Context, dsn string) (*Store, error) {
	return connect(ctx, dsn, true)
}

func connect(ctx context.Context, dsn string, readOnly bool) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse pg dsn: %w", err)
	}
	if readOnly {
		cfg.ConnConfig.RuntimeParams["default_transaction_read_only"] = "on"
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// Setup creates the schema if absent.
func (s *Store) Setup(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

func (s *Store) GetBlockEarning(ctx context.Context, blockHash string) (model.BlockEarning, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT time, block_hash, earned_sats, pool_fee, time_added_first, time_updated
		FROM block_earnings WHERE block_hash = $1
	`, blockHash)

	var e model.BlockEarning
	err := row.Scan(&e.Time, &e.BlockHash, &e.EarnedSats, &e.PoolFee,
		&e.TimeAddedFirst, &e.TimeUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.BlockEarning{}, false, nil
	}
	if err != nil {
		return model.BlockEarning{}, false, err
	}
	return e, true, nil
}

func (s *Store) InsertBlockEarning(ctx context.Context, e model.BlockEarning) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO block_earnings (time, block_hash, earned_sats, pool_fee, time_added_first, time_updated)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, e.Time, e.BlockHash, e.EarnedSats, e.PoolFee, e.TimeAddedFirst, e.TimeUpdated)
	return err
}

func (s *Store) UpdateBlockEarning(ctx context.Context, e model.BlockEarning) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE block_earnings
		SET time = $1, earned_sats = $2, pool_fee = $3, time_updated = $4
		WHERE block_hash = $5
	`, e.Time, e.EarnedSats, e.PoolFee, e.TimeUpdated, e.BlockHash)
	return err
}

func (s *Store) CountBlocks(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM block_earnings`).Scan(&count)
	return count, err
}

func (s *Store) SumEarnings(ctx context.Context) (int64, error) {
	var sum int64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(earned_sats), 0) FROM block_earnings`).Scan(&sum)
	return sum, err
}

func (s *Store) LastBlock(ctx context.Context) (model.BlockEarning, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT time, block_hash, earned_sats, pool_fee, time_added_first, time_updated
		FROM block_earnings ORDER BY time DESC LIMIT 1
	`)

	var e model.BlockEarning
	err := row.Scan(&e.Time, &e.BlockHash, &e.EarnedSats, &e.PoolFee,
		&e.TimeAddedFirst, &e.TimeUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.BlockEarning{}, false, nil
	}
	if err != nil {
		return model.BlockEarning{}, false, err
	}
	return e, true, nil
}

func (s *Store) BlocksAfter(ctx context.Context, after int64) ([]model.BlockEarning, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT time, block_hash, earned_sats, pool_fee, time_added_first, time_updated
		FROM block_earnings WHERE time > $1 ORDER BY time ASC
	`, after)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var earnings []model.BlockEarning
	for rows.Next() {
		var e model.BlockEarning
		if err := rows.Scan(&e.Time, &e.BlockHash, &e.EarnedSats, &e.PoolFee,
			&e.TimeAddedFirst, &e.TimeUpdated); err != nil {
			return nil, err
		}
		earnings = append(earnings, e)
	}
	return earnings, rows.Err()
}

func (s *Store) InsertSnapshot(ctx context.Context, snap model.EarningSnapshot) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO earn_snapshots (time, estimated, acctd_unpaid, acctd_paid)
		VALUES ($1, $2, $3, $4)
	`, snap.Time, snap.Estimated, snap.AccountedUnpaid, snap.AccountedPaid)
	return err
}

func (s *Store) LastSnapshot(ctx context.Context) (model.EarningSnapshot, bool, error) {
	return s.lastSnapshot(ctx, `
		SELECT time, estimated, acctd_unpaid, acctd_paid
		FROM earn_snapshots ORDER BY time DESC LIMIT 1
	`)
}

func (s *Store) LastSnapshotBefore(ctx context.Context, before int64) (model.EarningSnapshot, bool, error) {
	return s.lastSnapshot(ctx, `
		SELECT time, estimated, acctd_unpaid, acctd_paid
		FROM earn_snapshots WHERE time < $1 ORDER BY time DESC LIMIT 1
	`, before)
}

func (s *Store) lastSnapshot(ctx context.Context, query string, args ...any) (model.EarningSnapshot, bool, error) {
	var snap model.EarningSnapshot
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&snap.Time, &snap.Estimated, &snap.AccountedUnpaid, &snap.AccountedPaid)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.EarningSnapshot{}, false, nil
	}
	if err != nil {
		return model.EarningSnapshot{}, false, err
	}
	return snap, true, nil
}

func (s *Store) AllSnapshots(ctx context.Context) (map[int64]model.SnapshotTotals, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT time, estimated, acctd_unpaid, acctd_paid
		FROM earn_snapshots ORDER BY time DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	totals := make(map[int64]model.SnapshotTotals)
	for rows.Next() {
		var snap model.EarningSnapshot
		if err := rows.Scan(&snap.Time, &snap.Estimated, &snap.AccountedUnpaid,
			&snap.AccountedPaid); err != nil {
			return nil, err
		}
		totals[snap.Time] = model.SnapshotTotals{Total: snap.Total(), Paid: snap.AccountedPaid}
	}
	return totals, rows.Err()
}
