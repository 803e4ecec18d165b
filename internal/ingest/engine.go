// Package ingest contains the deduplicating ingestion engine and the
// polling scheduler that drives it.
package ingest

import (
	"context"

	"poolwatch/internal/model"
	"poolwatch/internal/storage"
)

// Engine deduplicates and upserts block earnings by natural key and
// appends balance snapshots. It owns the upsert decision; the store only
// provides point lookup, insert and update. Single-writer: concurrent
// ingestors racing on the same hash are out of scope.
type Engine struct {
	store storage.Store
}

func NewEngine(store storage.Store) *Engine {
	return &Engine{store: store}
}

// UpsertBlockEarning inserts the earning on first sighting, stamping both
// bookkeeping instants with observedAt. On resighting it overwrites time,
// earned sats and fee (pool backends revise provisional values) and bumps
// TimeUpdated, leaving TimeAddedFirst untouched to preserve first-sight
// provenance. Returns whether a new row was created.
func (e *Engine) UpsertBlockEarning(ctx context.Context, earning model.BlockEarning, observedAt int64) (bool, error) {
	existing, found, err := e.store.GetBlockEarning(ctx, earning.BlockHash)
	if err != nil {
		return false, err
	}

	if !found {
		earning.TimeAddedFirst = observedAt
		earning.TimeUpdated = observedAt
		return true, e.store.InsertBlockEarning(ctx, earning)
	}

	earning.TimeAddedFirst = existing.TimeAddedFirst
	earning.TimeUpdated = observedAt
	return false, e.store.UpdateBlockEarning(ctx, earning)
}

// IngestBlockEarnings upserts a fetched batch and returns how many records
// were processed. A storage failure aborts mid-batch; the remaining rows
// are picked up again on the next cycle since upserts are idempotent.
func (e *Engine) IngestBlockEarnings(ctx context.Context, earnings []model.BlockEarning, observedAt int64) (int, error) {
	for i, earning := range earnings {
		if _, err := e.UpsertBlockEarning(ctx, earning, observedAt); err != nil {
			return i, err
		}
	}
	return len(earnings), nil
}

// AppendSnapshot stores one balance reading. Pure insert: snapshots are
// append-only and never deduplicated.
func (e *Engine) AppendSnapshot(ctx context.Context, snapshot model.EarningSnapshot) error {
	return e.store.InsertSnapshot(ctx, snapshot)
}

func (e *Engine) CountBlocks(ctx context.Context) (int64, error) {
	return e.store.CountBlocks(ctx)
}

func (e *Engine) SumEarnings(ctx context.Context) (int64, error) {
	return e.store.SumEarnings(ctx)
}

func (e *Engine) LastBlock(ctx context.Context) (model.BlockEarning, bool, error) {
	return e.store.LastBlock(ctx)
}

func (e *Engine) BlocksAfter(ctx context.Context, after int64) ([]model.BlockEarning, error) {
	return e.store.BlocksAfter(ctx, after)
}

func (e *Engine) LastSnapshot(ctx context.Context) (model.EarningSnapshot, bool, error) {
	return e.store.LastSnapshot(ctx)
}

func (e *Engine) LastSnapshotBefore(ctx context.Context, before int64) (model.EarningSnapshot, bool, error) {
	return e.store.LastSnapshotBefore(ctx, before)
}

func (e *Engine) AllSnapshots(ctx context.Context) (map[int64]model.SnapshotTotals, error) {
	return e.store.AllSnapshots(ctx)
}

// Summary is the read-only totals view reported after each cycle and by
// the reporting surfaces.
type Summary struct {
	BlockCount    int64                 `json:"block_count"`
	SumEarnedSats int64                 `json:"sum_earned_sats"`
	LastBlockTime int64                 `json:"last_block_time"`
	HasSnapshot   bool                  `json:"has_snapshot"`
	Latest        model.EarningSnapshot `json:"latest_snapshot"`
}

// Summarize collects current ledger totals. All parts default to zero on
// an empty store.
func (e *Engine) Summarize(ctx context.Context) (Summary, error) {
	var summary Summary
	var err error

	if summary.BlockCount, err = e.store.CountBlocks(ctx); err != nil {
		return Summary{}, err
	}
	if summary.SumEarnedSats, err = e.store.SumEarnings(ctx); err != nil {
		return Summary{}, err
	}

	last, found, err := e.store.LastBlock(ctx)
	if err != nil {
		return Summary{}, err
	}
	if found {
		summary.LastBlockTime = last.Time
	}

	snap, found, err := e.store.LastSnapshot(ctx)
	if err != nil {
		return Summary{}, err
	}
	summary.HasSnapshot = found
	summary.Latest = snap

	return summary, nil
}
