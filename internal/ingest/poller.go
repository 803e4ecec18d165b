package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"poolwatch/internal/model"
)

// Fetcher is the network side of a polling cycle.
type Fetcher interface {
	FetchSnapshot(ctx context.Context, account string) (model.EarningSnapshot, error)
	FetchBlockEarnings(ctx context.Context, account string) ([]model.BlockEarning, error)
}

// PollerConfig holds runtime settings for the polling loop.
type PollerConfig struct {
	Account      string
	Period       time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

// Poller drives one fetch+ingest cycle per period. The schedule is
// anchored at the start instant plus whole multiples of the period, so a
// slow cycle does not shift every later one. A failed cycle is logged and
// still consumes its slot; no error terminates the loop.
type Poller struct {
	cfg     PollerConfig
	fetcher Fetcher
	engine  *Engine
	cursor  *CursorStore
	logger  *zap.Logger
}

func NewPoller(cfg PollerConfig, fetcher Fetcher, engine *Engine, cursor *CursorStore, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Period <= 0 {
		cfg.Period = 10 * time.Minute
	}
	return &Poller{
		cfg:     cfg,
		fetcher: fetcher,
		engine:  engine,
		cursor:  cursor,
		logger:  logger,
	}
}

// cycleResult carries a cycle's outcome across the loop boundary. Failures
// are values, not panics: the scheduler decides to log and continue.
type cycleResult struct {
	stage  string
	blocks int
	err    error
}

// Run executes cycles until the context is cancelled; cancellation between
// cycles is the only supported stop point.
func (p *Poller) Run(ctx context.Context) error {
	if p.fetcher == nil {
		return fmt.Errorf("fetcher is nil")
	}
	if p.engine == nil {
		return fmt.Errorf("engine is nil")
	}
	if p.cfg.Account == "" {
		return fmt.Errorf("account is required")
	}

	target := time.Now()
	for {
		result := p.cycle(ctx)
		if result.err != nil {
			p.logger.Warn("cycle failed",
				zap.String("stage", result.stage),
				zap.Error(result.err),
			)
		} else {
			p.logger.Info("cycle complete", zap.Int("blocks", result.blocks))
			p.reportTotals(ctx)
		}

		target = target.Add(p.cfg.Period)
		wait := sleepUntil(target, time.Now())
		p.logger.Info("sleeping",
			zap.Duration("wait", wait),
			zap.Time("next_cycle", target),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// sleepUntil returns how long to wait for the next slot, floored at one
// second so a backlog of missed slots cannot turn the loop hot.
func sleepUntil(target, now time.Time) time.Duration {
	wait := target.Sub(now)
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}

// cycle performs one fetch+ingest pass: block earnings first, then the
// balance snapshot, mirroring the order the figures appear upstream. Any
// failure aborts the rest of the cycle.
func (p *Poller) cycle(ctx context.Context) cycleResult {
	observedAt := time.Now().UTC().Unix()

	var earnings []model.BlockEarning
	err := withRetry(ctx, p.cfg.MaxRetries, p.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		earnings, err = p.fetcher.FetchBlockEarnings(ctx, p.cfg.Account)
		if err != nil {
			p.logger.Warn("fetch block earnings failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return cycleResult{stage: "fetch-blocks", err: err}
	}

	count, err := p.engine.IngestBlockEarnings(ctx, earnings, observedAt)
	if err != nil {
		return cycleResult{stage: "ingest-blocks", blocks: count, err: err}
	}

	var snapshot model.EarningSnapshot
	err = withRetry(ctx, p.cfg.MaxRetries, p.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		snapshot, err = p.fetcher.FetchSnapshot(ctx, p.cfg.Account)
		if err != nil {
			p.logger.Warn("fetch snapshot failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return cycleResult{stage: "fetch-snapshot", blocks: count, err: err}
	}

	if err := p.engine.AppendSnapshot(ctx, snapshot); err != nil {
		return cycleResult{stage: "ingest-snapshot", blocks: count, err: err}
	}

	p.advanceCursor(earnings)

	return cycleResult{blocks: count}
}

// advanceCursor persists the newest block time seen so far. The cursor is
// auxiliary reporting state; failures are logged, never fatal to the cycle.
func (p *Poller) advanceCursor(earnings []model.BlockEarning) {
	if p.cursor == nil || len(earnings) == 0 {
		return
	}

	newest := int64(0)
	for _, e := range earnings {
		if e.Time > newest {
			newest = e.Time
		}
	}

	prev, ok, err := p.cursor.Load()
	if err != nil {
		p.logger.Warn("load cursor failed", zap.Error(err))
		return
	}
	if ok && prev.LastBlockTime >= newest {
		return
	}
	if err := p.cursor.Save(newest); err != nil {
		p.logger.Warn("save cursor failed", zap.Error(err))
	}
}

// reportTotals logs the current ledger totals after a successful cycle.
// Read-only; a failure here does not fail the cycle.
func (p *Poller) reportTotals(ctx context.Context) {
	summary, err := p.engine.Summarize(ctx)
	if err != nil {
		p.logger.Warn("summarize failed", zap.Error(err))
		return
	}

	fields := []zap.Field{
		zap.Int64("sum_earned_sats", summary.SumEarnedSats),
		zap.Int64("blocks", summary.BlockCount),
		zap.Int64("last_block_time", summary.LastBlockTime),
	}
	if summary.HasSnapshot {
		fields = append(fields,
			zap.Int64("estimated", summary.Latest.Estimated),
			zap.Int64("acctd_unpaid", summary.Latest.AccountedUnpaid),
			zap.Int64("acctd_paid", summary.Latest.AccountedPaid),
			zap.Int64("total", summary.Latest.Total()),
		)
	}
	p.logger.Info("current earnings", fields...)
}
