package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"poolwatch/internal/config"
	"poolwatch/internal/ingest"
	"poolwatch/internal/storage"
)

// openReadOnlyEngine is shared by the reporting commands; it opens the
// store in its read-only mode so a live ingest loop is never blocked.
func openReadOnlyEngine(ctx context.Context, cmd *cobra.Command) (*ingest.Engine, storage.Store, config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, nil, config.Config{}, err
	}

	store, err := openStore(ctx, cfg, true)
	if err != nil {
		return nil, nil, config.Config{}, err
	}
	return ingest.NewEngine(store), store, cfg, nil
}

func runReport(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	engine, store, cfg, err := openReadOnlyEngine(ctx, cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := engine.Summarize(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Sum block earnings: %d sats (in %d blocks, last block %s)\n",
		summary.SumEarnedSats, summary.BlockCount, formatInstant(summary.LastBlockTime))

	if !summary.HasSnapshot {
		fmt.Println("No snapshot stored yet")
	} else {
		fmt.Println("Current latest snapshot:")
		fmt.Println("  " + summary.Latest.String())
	}

	cursor := ingest.NewCursorStore(cfg.Cursor, cfg.CursorEnabled)
	cur, found, err := cursor.Load()
	if err != nil {
		return err
	}
	if found {
		fresh, err := engine.BlocksAfter(ctx, cur.LastBlockTime)
		if err != nil {
			return err
		}
		fmt.Printf("Blocks newer than cursor (%s): %d\n",
			formatInstant(cur.LastBlockTime), len(fresh))
	}

	return nil
}

func runSnapshots(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	engine, store, _, err := openReadOnlyEngine(ctx, cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	totals, err := engine.AllSnapshots(ctx)
	if err != nil {
		return err
	}

	times := make([]int64, 0, len(totals))
	for ts := range totals {
		times = append(times, ts)
	}
	sort.Slice(times, func(i, j int) bool { return times[i] > times[j] })

	for _, ts := range times {
		fmt.Printf("%s: total %d  paid %d\n", formatInstant(ts), totals[ts].Total, totals[ts].Paid)
	}
	return nil
}

// snapshotExportRow flattens a snapshot's totals for the JSONL export.
type snapshotExportRow struct {
	Time  int64 `json:"time"`
	Total int64 `json:"total"`
	Paid  int64 `json:"paid"`
}

func runExport(cmd *cobra.Command, _ []string) error {
	ctx := context.Background()
	engine, store, cfg, err := openReadOnlyEngine(ctx, cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	blocks, err := engine.BlocksAfter(ctx, -1)
	if err != nil {
		return err
	}
	blocksPath := filepath.Join(cfg.OutDir, "block_earnings.jsonl")
	if err := storage.ExportJSONL(blocksPath, blocks); err != nil {
		return err
	}

	totals, err := engine.AllSnapshots(ctx)
	if err != nil {
		return err
	}
	rows := make([]snapshotExportRow, 0, len(totals))
	for ts, t := range totals {
		rows = append(rows, snapshotExportRow{Time: ts, Total: t.Total, Paid: t.Paid})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Time < rows[j].Time })

	snapshotsPath := filepath.Join(cfg.OutDir, "snapshots.jsonl")
	if err := storage.ExportJSONL(snapshotsPath, rows); err != nil {
		return err
	}

	fmt.Printf("Exported %d blocks to %s\n", len(blocks), blocksPath)
	fmt.Printf("Exported %d snapshots to %s\n", len(rows), snapshotsPath)
	return nil
}

func formatInstant(ts int64) string {
	if ts == 0 {
		return "never"
	}
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}
