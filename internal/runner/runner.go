// Package runner orchestrates the periodic scrape cycle: fetch, extract,
// filter, store, notify, persist. It owns all writes to the project store.
package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fundwatch/internal/metrics"
	"fundwatch/internal/scrape"
	"fundwatch/internal/store"
)

// Config controls the run cycle.
type Config struct {
	SourceURL string
	Interval  time.Duration
}

// Runner executes guarded scrape runs against a single listing URL.
type Runner struct {
	fetcher   scrape.Fetcher
	extractor *scrape.Extractor
	filter    *scrape.Filter
	store     *store.Store
	notifier  scrape.Notifier
	clock     scrape.Clock
	cfg       Config
	logger    *zap.Logger
	inFlight  atomic.Bool
}

// New constructs a Runner.
func New(
	fetcher scrape.Fetcher,
	extractor *scrape.Extractor,
	filter *scrape.Filter,
	st *store.Store,
	notifier scrape.Notifier,
	clock scrape.Clock,
	cfg Config,
	logger *zap.Logger,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Minute
	}
	return &Runner{
		fetcher:   fetcher,
		extractor: extractor,
		filter:    filter,
		store:     st,
		notifier:  notifier,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start executes one eager run, then one per tick until ctx ends.
func (r *Runner) Start(ctx context.Context) {
	r.RunOnce(ctx)
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single scrape cycle. A call arriving while a previous
// run is still in flight is dropped, not queued, so the store only ever has
// one writer.
func (r *Runner) RunOnce(ctx context.Context) {
	if !r.inFlight.CompareAndSwap(false, true) {
		r.logger.Warn("run already in progress, dropping tick")
		metrics.ObserveRun("dropped")
		return
	}
	defer r.inFlight.Store(false)

	start := r.clock.Now()
	r.logger.Info("starting run", zap.String("url", r.cfg.SourceURL))

	resp, err := r.fetcher.Fetch(ctx, r.cfg.SourceURL)
	if err != nil {
		r.logger.Error("fetch failed, aborting run", zap.Error(err))
		metrics.ObserveRun("fetch_failed")
		return
	}
	metrics.ObserveFetch(resp.Duration)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		r.logger.Error("unexpected response status, aborting run", zap.Int("status", resp.StatusCode))
		metrics.ObserveRun("fetch_failed")
		return
	}

	candidates, err := r.extractor.Extract(resp.Body)
	if err != nil {
		r.logger.Error("extraction failed, aborting run", zap.Error(err))
		metrics.ObserveRun("extract_failed")
		return
	}
	if len(candidates) == 0 {
		r.logger.Warn("no project blocks found in listing")
	}

	var sends sync.WaitGroup
	accepted := r.processCandidates(ctx, candidates, &sends)

	// Persist once per run, after the whole batch. A write failure is logged
	// and the in-memory acceptances stand, so a rerun within this process
	// cannot re-notify.
	if err := r.store.Persist(); err != nil {
		r.logger.Error("persist failed", zap.Error(err))
	}
	metrics.SetStoreSize(r.store.Len())

	// Notifications never gate persistence, but a run's side effects finish
	// before the guard is released.
	sends.Wait()

	metrics.ObserveRun("completed")
	r.logger.Info("run completed",
		zap.Int("candidates", len(candidates)),
		zap.Int("accepted", accepted),
		zap.Duration("elapsed", r.clock.Now().Sub(start)),
	)
}

func (r *Runner) processCandidates(ctx context.Context, candidates []scrape.RawFields, sends *sync.WaitGroup) int {
	accepted := 0
	for _, raw := range candidates {
		if r.store.Contains(raw.ID) {
			r.logger.Info("already known",
				zap.String("id", raw.ID),
				zap.String("title", raw.Title),
			)
			continue
		}

		ev := r.filter.Evaluate(raw)
		switch ev.Outcome {
		case scrape.OutcomeAccepted:
			r.store.Upsert(ev.Record)
			accepted++
			metrics.ObserveAccepted()
			r.logger.Info("accepted project",
				zap.String("id", ev.Record.ID),
				zap.String("title", ev.Record.Title),
				zap.Float64("adjusted_yield", ev.Record.AdjustedYield),
			)
			r.notifyAsync(ctx, ev.Record, sends)
		case scrape.OutcomeRejected:
			metrics.ObserveRejected(string(ev.Reason))
			r.logger.Info("rejected project",
				zap.String("id", raw.ID),
				zap.String("title", raw.Title),
				zap.String("reason", string(ev.Reason)),
			)
		case scrape.OutcomeMalformed:
			r.logger.Warn("malformed project block, skipping",
				zap.String("id", raw.ID),
				zap.String("title", raw.Title),
				zap.Error(ev.Err),
			)
		}
	}
	return accepted
}

func (r *Runner) notifyAsync(ctx context.Context, rec scrape.ProjectRecord, sends *sync.WaitGroup) {
	sends.Add(1)
	go func() {
		defer sends.Done()
		if err := r.notifier.Notify(ctx, rec); err != nil {
			r.logger.Error("notification failed",
				zap.String("id", rec.ID),
				zap.Error(err),
			)
			metrics.ObserveNotification("failed")
			return
		}
		metrics.ObserveNotification("sent")
	}()
}
