// Package sqlite implements the ledger store on a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"poolwatch/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS block_earnings (
	time INTEGER NOT NULL,
	block_hash TEXT NOT NULL,
	earned_sats INTEGER NOT NULL,
	pool_fee INTEGER NOT NULL,
	time_added_first INTEGER NOT NULL,
	time_updated INTEGER NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS block_earnings_hash ON block_earnings (block_hash);
CREATE INDEX IF NOT EXISTS block_earnings_time ON block_earnings (time);

CREATE TABLE IF NOT EXISTS earn_snapshots (
	time INTEGER NOT NULL,
	estimated INTEGER NOT NULL,
	acctd_unpaid INTEGER NOT NULL,
	acctd_paid INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS earn_snapshots_time ON earn_snapshots (time);
`

// Store provides SQLite persistence for block earnings and snapshots.
type Store struct {
	db *sql.DB
}

// NewStore wraps an already-open database handle. The caller keeps
// ownership of lifecycle decisions made before the handle was passed in;
// Close still closes it.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open opens (or creates) the database file for the single writer. WAL
// journaling keeps concurrent read-only connections from blocking on the
// writer.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writes; a single connection avoids lock contention
	// from the driver's own pooling.
	db.SetMaxOpenConns(1)

	return &Store{db: db}, nil
}

// OpenReadOnly opens the database for reporting queries without taking the
// write lock.
func OpenReadOnly(path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf(
		"file:%s?mode=ro&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite read-only: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Setup creates the schema if absent.
func (s *Store) Setup(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *Store) GetBlockEarning(ctx context.Context, blockHash string) (model.BlockEarning, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT time, block_hash, earned_sats, pool_fee, time_added_first, time_updated
		FROM block_earnings WHERE block_hash = ?
	`, blockHash)
	return scanBlock(row)
}

func (s *Store) InsertBlockEarning(ctx context.Context, e model.BlockEarning) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO block_earnings (time, block_hash, earned_sats, pool_fee, time_added_first, time_updated)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.Time, e.BlockHash, e.EarnedSats, e.PoolFee, e.TimeAddedFirst, e.TimeUpdated)
	if err != nil {
		return fmt.Errorf("insert block earning: %w", err)
	}
	return nil
}

func (s *Store) UpdateBlockEarning(ctx context.Context, e model.BlockEarning) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE block_earnings
		SET time = ?, earned_sats = ?, pool_fee = ?, time_updated = ?
		WHERE block_hash = ?
	`, e.Time, e.EarnedSats, e.PoolFee, e.TimeUpdated, e.BlockHash)
	if err != nil {
		return fmt.Errorf("update block earning: %w", err)
	}
	return nil
}

func (s *Store) CountBlocks(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM block_earnings`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count blocks: %w", err)
	}
	return count, nil
}

func (s *Store) SumEarnings(ctx context.Context) (int64, error) {
	var sum int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(earned_sats), 0) FROM block_earnings`).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum earnings: %w", err)
	}
	return sum, nil
}

func (s *Store) LastBlock(ctx context.Context) (model.BlockEarning, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT time, block_hash, earned_sats, pool_fee, time_added_first, time_updated
		FROM block_earnings ORDER BY time DESC LIMIT 1
	`)
	return scanBlock(row)
}

func (s *Store) BlocksAfter(ctx context.Context, after int64) ([]model.BlockEarning, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time, block_hash, earned_sats, pool_fee, time_added_first, time_updated
		FROM block_earnings WHERE time > ? ORDER BY time ASC
	`, after)
	if err != nil {
		return nil, fmt.Errorf("query blocks after: %w", err)
	}
	defer rows.Close()

	var earnings []model.BlockEarning
	for rows.Next() {
		var e model.BlockEarning
		if err := rows.Scan(&e.Time, &e.BlockHash, &e.EarnedSats, &e.PoolFee,
			&e.TimeAddedFirst, &e.TimeUpdated); err != nil {
			return nil, fmt.Errorf("scan block earning: %w", err)
		}
		earnings = append(earnings, e)
	}
	return earnings, rows.Err()
}

func (s *Store) InsertSnapshot(ctx context.Context, snap model.EarningSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO earn_snapshots (time, estimated, acctd_unpaid, acctd_paid)
		VALUES (?, ?, ?, ?)
	`, snap.Time, snap.Estimated, snap.AccountedUnpaid, snap.AccountedPaid)
	if err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}
	return nil
}

func (s *Store) LastSnapshot(ctx context.Context) (model.EarningSnapshot, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT time, estimated, acctd_unpaid, acctd_paid
		FROM earn_snapshots ORDER BY time DESC LIMIT 1
	`)
	return scanSnapshot(row)
}

func (s *Store) LastSnapshotBefore(ctx context.Context, before int64) (model.EarningSnapshot, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT time, estimated, acctd_unpaid, acctd_paid
		FROM earn_snapshots WHERE time < ? ORDER BY time DESC LIMIT 1
	`, before)
	return scanSnapshot(row)
}

func (s *Store) AllSnapshots(ctx context.Context) (map[int64]model.SnapshotTotals, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT time, estimated, acctd_unpaid, acctd_paid
		FROM earn_snapshots ORDER BY time DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	totals := make(map[int64]model.SnapshotTotals)
	for rows.Next() {
		var snap model.EarningSnapshot
		if err := rows.Scan(&snap.Time, &snap.Estimated, &snap.AccountedUnpaid,
			&snap.AccountedPaid); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		totals[snap.Time] = model.SnapshotTotals{Total: snap.Total(), Paid: snap.AccountedPaid}
	}
	return totals, rows.Err()
}

func scanBlock(row *sql.Row) (model.BlockEarning, bool, error) {
	var e model.BlockEarning
	err := row.Scan(&e.Time, &e.BlockHash, &e.EarnedSats, &e.PoolFee,
		&e.TimeAddedFirst, &e.TimeUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return model.BlockEarning{}, false, nil
	}
	if err != nil {
		return model.BlockEarning{}, false, fmt.Errorf("scan block earning: %w", err)
	}
	return e, true, nil
}

func scanSnapshot(row *sql.Row) (model.EarningSnapshot, bool, error) {
	var snap model.EarningSnapshot
	err := row.Scan(&snap.Time, &snap.Estimated, &snap.AccountedUnpaid, &snap.AccountedPaid)
	if errors.Is(err, sql.ErrNoRows) {
		return model.EarningSnapshot{}, false, nil
	}
	if err != nil {
		return model.EarningSnapshot{}, false, fmt.Errorf("scan snapshot: %w", err)
	}
	return snap, true, nil
}
