// Package live implements the Live-mode dispatcher: one immediate request per
// keyword under a global requests-per-minute ceiling.
package live

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/rankscope/rankscope/internal/metrics"
	"github.com/rankscope/rankscope/internal/progress"
	"github.com/rankscope/rankscope/internal/serp"
)

// Config controls Dispatcher behavior.
type Config struct {
	Workers           int
	RequestsPerMinute int
	// RequestTimeout bounds each remote call independently of run
	// cancellation, so in-flight requests can finish after a stop.
	RequestTimeout time.Duration
}

// Dispatcher issues one Live request per keyword through a bounded worker
// pool, spacing launches so no two start closer than 60s/rpm apart.
type Dispatcher struct {
	api     serp.API
	cfg     Config
	logger  *zap.Logger
	emitter progress.Emitter
	runID   [16]byte
}

// New constructs a Dispatcher.
func New(api serp.API, cfg Config, logger *zap.Logger, emitter progress.Emitter, runID [16]byte) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 10
	}
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 600
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = progress.Nop{}
	}
	return &Dispatcher{
		api:     api,
		cfg:     cfg,
		logger:  logger,
		emitter: emitter,
		runID:   runID,
	}
}

// Run processes all jobs and returns exactly one RankRecord per job, in
// completion order. Cancelling ctx stops new launches; launched workers are
// drained and never-launched jobs receive "Stopped before start" records.
func (d *Dispatcher) Run(ctx context.Context, jobs []serp.KeywordJob) []serp.RankRecord {
	// Burst 1 keeps the limiter a fixed-spacing gate: idle time never
	// accumulates into a burst allowance beyond a single launch.
	spacing := time.Minute / time.Duration(d.cfg.RequestsPerMinute)
	limiter := rate.NewLimiter(rate.Every(spacing), 1)

	results := make(chan serp.RankRecord, len(jobs))
	sem := make(chan struct{}, d.cfg.Workers)
	var wg sync.WaitGroup
	launched := 0

launch:
	for _, job := range jobs {
		select {
		case <-ctx.Done():
			break launch
		default:
		}

		waitStart := time.Now()
		if err := limiter.Wait(ctx); err != nil {
			break launch
		}
		if delay := time.Since(waitStart); delay > time.Millisecond {
			metrics.ObserveRateLimitDelay(delay)
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break launch
		}

		launched++
		wg.Add(1)
		go func(job serp.KeywordJob) {
			defer wg.Done()
			defer func() { <-sem }()
			results <- d.checkKeyword(ctx, job)
		}(job)
	}

	wg.Wait()
	close(results)

	records := make([]serp.RankRecord, 0, len(jobs))
	for rec := range results {
		records = append(records, rec)
	}

	// Every job not launched still yields a record.
	if len(records) < len(jobs) {
		done := make(map[string]int, len(records))
		for _, rec := range records {
			done[rec.Keyword]++
		}
		for _, job := range jobs {
			if done[job.Keyword] > 0 {
				done[job.Keyword]--
				continue
			}
			rec := serp.MissRecord(job, "Stopped before start")
			d.emitUnitDone(job.Keyword, rec, 0)
			records = append(records, rec)
		}
	}

	d.logger.Info("live dispatch finished",
		zap.Int("jobs", len(jobs)),
		zap.Int("launched", launched),
		zap.Bool("cancelled", ctx.Err() != nil),
	)
	return records
}

// checkKeyword performs one Live request and converts every failure shape
// into a terminal record; a single keyword's failure never aborts the batch.
func (d *Dispatcher) checkKeyword(ctx context.Context, job serp.KeywordJob) serp.RankRecord {
	d.emitter.Emit(progress.Event{
		RunID:   d.runID,
		TS:      time.Now().UTC(),
		Stage:   progress.StageUnitStart,
		Mode:    "live",
		Keyword: job.Keyword,
	})
	start := time.Now()

	// Detached from run cancellation: an in-flight request is allowed to
	// complete, bounded only by its own timeout.
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.RequestTimeout)
	defer cancel()

	rec := d.submit(reqCtx, job)
	d.emitUnitDone(job.Keyword, rec, time.Since(start))
	return rec
}

func (d *Dispatcher) submit(ctx context.Context, job serp.KeywordJob) serp.RankRecord {
	outcome, err := d.api.SubmitImmediate(ctx, job)
	if err != nil {
		d.logger.Warn("live request failed", zap.String("keyword", job.Keyword), zap.Error(err))
		return serp.MissRecord(job, "Error: "+err.Error())
	}
	if outcome.Status != serp.StatusOK {
		return serp.MissRecord(job, "API error: "+outcome.Message)
	}
	if outcome.Result == nil {
		return serp.MissRecord(job, "Empty result from API")
	}
	// No client-side domain filter: the remote filtered by target server-side.
	return serp.ParseRecord(*outcome.Result, job, "")
}

func (d *Dispatcher) emitUnitDone(keyword string, rec serp.RankRecord, dur time.Duration) {
	d.emitter.Emit(progress.Event{
		RunID:   d.runID,
		TS:      time.Now().UTC(),
		Stage:   progress.StageUnitDone,
		Mode:    "live",
		Keyword: keyword,
		Outcome: progress.ClassifyRecord(rec),
		Dur:     dur,
	})
}
