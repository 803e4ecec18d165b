package ingest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"poolwatch/internal/model"
)

type fakeFetcher struct {
	mu         sync.Mutex
	earnings   []model.BlockEarning
	snapshot   model.EarningSnapshot
	blocksErr  error
	snapErr    error
	fetchTimes []time.Time
}

func (f *fakeFetcher) FetchBlockEarnings(ctx context.Context, account string) ([]model.BlockEarning, error) {
	f.mu.Lock()
	f.fetchTimes = append(f.fetchTimes, time.Now())
	f.mu.Unlock()
	if f.blocksErr != nil {
		return nil, f.blocksErr
	}
	return f.earnings, nil
}

func (f *fakeFetcher) FetchSnapshot(ctx context.Context, account string) (model.EarningSnapshot, error) {
	if f.snapErr != nil {
		return model.EarningSnapshot{}, f.snapErr
	}
	return f.snapshot, nil
}

func (f *fakeFetcher) times() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.fetchTimes...)
}

func newTestPoller(t *testing.T, fetcher *fakeFetcher, cfg PollerConfig) (*Poller, *Engine) {
	t.Helper()
	engine := newTestEngine(t)
	if cfg.Account == "" {
		cfg.Account = "acct"
	}
	return NewPoller(cfg, fetcher, engine, nil, nil), engine
}

func TestCycleIngestsBlocksAndSnapshot(t *testing.T) {
	fetcher := &fakeFetcher{
		earnings: []model.BlockEarning{
			{Time: 200, BlockHash: "b", EarnedSats: 2},
			{Time: 100, BlockHash: "a", EarnedSats: 1},
		},
		snapshot: model.EarningSnapshot{Time: 300, Estimated: 5, AccountedUnpaid: 6, AccountedPaid: 7},
	}
	poller, engine := newTestPoller(t, fetcher, PollerConfig{Period: time.Minute})

	result := poller.cycle(context.Background())
	require.NoError(t, result.err)
	require.Equal(t, 2, result.blocks)

	summary, err := engine.Summarize(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(2), summary.BlockCount)
	require.Equal(t, int64(3), summary.SumEarnedSats)
	require.True(t, summary.HasSnapshot)
	require.Equal(t, fetcher.snapshot, summary.Latest)
}

func TestCycleAbortsOnBlockFetchFailure(t *testing.T) {
	fetcher := &fakeFetcher{blocksErr: errors.New("pool down")}
	poller, engine := newTestPoller(t, fetcher, PollerConfig{Period: time.Minute})

	result := poller.cycle(context.Background())
	require.Error(t, result.err)
	require.Equal(t, "fetch-blocks", result.stage)

	count, err := engine.CountBlocks(context.Background())
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestCycleSnapshotFailureKeepsIngestedBlocks(t *testing.T) {
	fetcher := &fakeFetcher{
		earnings: []model.BlockEarning{{Time: 100, BlockHash: "a", EarnedSats: 1}},
		snapErr:  errors.New("layout changed"),
	}
	poller, engine := newTestPoller(t, fetcher, PollerConfig{Period: time.Minute})

	result := poller.cycle(context.Background())
	require.Error(t, result.err)
	require.Equal(t, "fetch-snapshot", result.stage)
	require.Equal(t, 1, result.blocks)

	// the block upserts before the failure stand; the next cycle repeats
	// them idempotently
	count, err := engine.CountBlocks(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), count)

	_, found, err := engine.LastSnapshot(context.Background())
	require.NoError(t, err)
	require.False(t, found)
}

func TestRunSurvivesFailingCyclesWithoutDrift(t *testing.T) {
	if testing.Short() {
		t.Skip("timing test")
	}

	fetcher := &fakeFetcher{blocksErr: errors.New("pool down")}
	poller, _ := newTestPoller(t, fetcher, PollerConfig{Period: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()

	err := poller.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	times := fetcher.times()
	require.GreaterOrEqual(t, len(times), 2, "loop must keep cycling through failures")

	// consecutive wake-ups stay one period apart even when cycles fail
	gap := times[1].Sub(times[0])
	require.InDelta(t, float64(time.Second), float64(gap), float64(300*time.Millisecond))
}

func TestSleepUntil(t *testing.T) {
	now := time.Unix(1000, 0)

	if got := sleepUntil(now.Add(5*time.Second), now); got != 5*time.Second {
		t.Fatalf("sleepUntil = %v, want 5s", got)
	}
	// floor at one second, including for targets already in the past
	if got := sleepUntil(now.Add(200*time.Millisecond), now); got != time.Second {
		t.Fatalf("sleepUntil = %v, want 1s floor", got)
	}
	if got := sleepUntil(now.Add(-time.Minute), now); got != time.Second {
		t.Fatalf("sleepUntil = %v, want 1s floor", got)
	}
}

func TestCycleAdvancesCursor(t *testing.T) {
	dir := t.TempDir()
	cursor := NewCursorStore(dir+"/cursor.json", true)

	fetcher := &fakeFetcher{
		earnings: []model.BlockEarning{
			{Time: 100, BlockHash: "a", EarnedSats: 1},
			{Time: 300, BlockHash: "c", EarnedSats: 3},
			{Time: 200, BlockHash: "b", EarnedSats: 2},
		},
		snapshot: model.EarningSnapshot{Time: 400},
	}
	engine := newTestEngine(t)
	poller := NewPoller(PollerConfig{Account: "acct", Period: time.Minute}, fetcher, engine, cursor, nil)

	result := poller.cycle(context.Background())
	require.NoError(t, result.err)

	cur, found, err := cursor.Load()
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, int64(300), cur.LastBlockTime)

	// a later cycle with no newer blocks leaves the cursor alone
	result = poller.cycle(context.Background())
	require.NoError(t, result.err)
	cur, _, err = cursor.Load()
	require.NoError(t, err)
	require.Equal(t, int64(300), cur.LastBlockTime)
}
