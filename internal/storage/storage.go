package storage

import (
	"context"

	"poolwatch/internal/model"
)

// Store is the persistence collaborator for the earnings ledger. Exactly
// one writer is assumed; implementations must additionally offer a
// read-only open mode that does not block the writer, so reporting can run
// against a live ingest.
//
// Read operations return a found flag or zero values on an empty store:
// absence of data is a normal state for a fresh deployment, not an error.
type Store interface {
	// Setup creates the schema if absent.
	Setup(ctx context.Context) error

	GetBlockEarning(ctx context.Context, blockHash string) (model.BlockEarning, bool, error)
	InsertBlockEarning(ctx context.Context, earning model.BlockEarning) error
	UpdateBlockEarning(ctx context.Context, earning model.BlockEarning) error

	CountBlocks(ctx context.Context) (int64, error)
	SumEarnings(ctx context.Context) (int64, error)
	LastBlock(ctx context.Context) (model.BlockEarning, bool, error)
	// BlocksAfter returns rows with time strictly greater than after,
	// ascending by time.
	BlocksAfter(ctx context.Context, after int64) ([]model.BlockEarning, error)

	InsertSnapshot(ctx context.Context, snapshot model.EarningSnapshot) error
	LastSnapshot(ctx context.Context) (model.EarningSnapshot, bool, error)
	LastSnapshotBefore(ctx context.Context, before int64) (model.EarningSnapshot, bool, error)
	// AllSnapshots returns every snapshot condensed to (total, paid),
	// keyed by snapshot time.
	AllSnapshots(ctx context.Context) (map[int64]model.SnapshotTotals, error)

	Close() error
}
