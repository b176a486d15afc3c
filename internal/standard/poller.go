package standard

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rankscope/rankscope/internal/metrics"
	"github.com/rankscope/rankscope/internal/progress"
	"github.com/rankscope/rankscope/internal/serp"
)

// minPollInterval floors the inter-cycle sleep.
const minPollInterval = 500 * time.Millisecond

// PollerConfig controls readiness polling and result fetching.
type PollerConfig struct {
	PollInterval time.Duration
	FetchWorkers int
	// RequestTimeout bounds each fetch independently of run cancellation.
	RequestTimeout time.Duration
}

// Poller repeatedly queries task readiness and fetches completed tasks
// concurrently until every handle reaches a terminal record or the run is
// cancelled.
type Poller struct {
	api     serp.API
	cfg     PollerConfig
	logger  *zap.Logger
	emitter progress.Emitter
	runID   [16]byte
}

// NewPoller constructs a Poller.
func NewPoller(api serp.API, cfg PollerConfig, logger *zap.Logger, emitter progress.Emitter, runID [16]byte) *Poller {
	if cfg.PollInterval < minPollInterval {
		cfg.PollInterval = minPollInterval
	}
	if cfg.FetchWorkers <= 0 {
		cfg.FetchWorkers = 12
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
	return &Poller{
		api:     api,
		cfg:     cfg,
		logger:  logger,
		emitter: emitter,
		runID:   runID,
	}
}

// fetchResult pairs a task id with either a terminal record or a signal that
// the task is still queued remotely.
type fetchResult struct {
	id          string
	stillQueued bool
	record      serp.RankRecord
}

// Run fetches results for all handles. Every handle contributes exactly one
// record: a terminal fetch outcome, or a "Stopped before fetch" placeholder
// when the run is cancelled first.
func (p *Poller) Run(ctx context.Context, handles []serp.TaskHandle) []serp.RankRecord {
	pending := newPendingSet(handles)
	records := make([]serp.RankRecord, 0, len(handles))
	metrics.SetTasksPending(pending.len())

	for pending.len() > 0 && ctx.Err() == nil {
		metrics.IncPollCycle()
		ready := p.readyIDs(ctx, pending)
		if len(ready) == 0 {
			if !sleepCtx(ctx, p.cfg.PollInterval) {
				break
			}
			continue
		}

		settled := 0
		for _, res := range p.fetchReady(ctx, pending, ready) {
			if res.stillQueued {
				// Non-terminal: leave the handle pending for the next cycle.
				continue
			}
			pending.remove(res.id)
			records = append(records, res.record)
			settled++
		}
		metrics.SetTasksPending(pending.len())
		if settled == 0 && !sleepCtx(ctx, p.cfg.PollInterval) {
			break
		}
	}

	// Cancellation: account for every submitted task.
	for _, h := range pending.drain() {
		rec := serp.MissRecord(h.Job, "Stopped before fetch")
		p.emitUnitDone(h.Job.Keyword, rec, 0)
		records = append(records, rec)
	}
	metrics.SetTasksPending(0)

	p.logger.Info("task fetch finished",
		zap.Int("tasks", len(handles)),
		zap.Int("records", len(records)),
		zap.Bool("cancelled", ctx.Err() != nil),
	)
	return records
}

// readyIDs asks the remote which pending tasks are ready. When the readiness
// query fails the poller degrades to attempting a fixed-size sample of
// pending ids directly instead of halting the run.
func (p *Poller) readyIDs(ctx context.Context, pending *pendingSet) []string {
	ids, err := p.api.ListReadyTasks(ctx)
	if err != nil {
		metrics.IncReadinessFailure()
		p.logger.Warn("readiness query failed, sampling pending tasks", zap.Error(err))
		return pending.sample(p.cfg.FetchWorkers * 2)
	}
	return pending.intersect(ids)
}

// fetchReady fetches up to FetchWorkers ready ids concurrently.
func (p *Poller) fetchReady(ctx context.Context, pending *pendingSet, ready []string) []fetchResult {
	take := ready
	if len(take) > p.cfg.FetchWorkers {
		take = take[:p.cfg.FetchWorkers]
	}

	results := make(chan fetchResult, len(take))
	var wg sync.WaitGroup
	for _, id := range take {
		handle, ok := pending.get(id)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(h serp.TaskHandle) {
			defer wg.Done()
			results <- p.fetchOne(ctx, h)
		}(handle)
	}
	wg.Wait()
	close(results)

	out := make([]fetchResult, 0, len(take))
	for res := range results {
		out = append(out, res)
	}
	return out
}

// fetchOne retrieves one task result and converts every terminal shape into
// a record; a "still queued" status is the only non-terminal outcome.
func (p *Poller) fetchOne(ctx context.Context, h serp.TaskHandle) fetchResult {
	p.emitter.Emit(progress.Event{
		RunID:   p.runID,
		TS:      time.Now().UTC(),
		Stage:   progress.StageUnitStart,
		Mode:    "standard",
		Keyword: h.Job.Keyword,
	})
	start := time.Now()

	// In-flight fetches may complete after cancellation.
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.RequestTimeout)
	defer cancel()

	outcome, err := p.api.FetchTaskResult(reqCtx, h.ID)
	if err != nil {
		rec := serp.MissRecord(h.Job, "Fetch error "+h.ID+": "+err.Error())
		p.emitUnitDone(h.Job.Keyword, rec, time.Since(start))
		return fetchResult{id: h.ID, record: rec}
	}

	switch outcome.Status {
	case serp.StatusQueued:
		return fetchResult{id: h.ID, stillQueued: true}
	case serp.StatusOK:
		if outcome.Result == nil {
			rec := serp.MissRecord(h.Job, "No result "+h.ID)
			p.emitUnitDone(h.Job.Keyword, rec, time.Since(start))
			return fetchResult{id: h.ID, record: rec}
		}
		// The queued API could not filter by target server-side; filter here.
		rec := serp.ParseRecord(*outcome.Result, h.Job, h.Job.Domain)
		p.emitUnitDone(rec.Keyword, rec, time.Since(start))
		return fetchResult{id: h.ID, record: rec}
	default:
		rec := serp.MissRecord(h.Job, "GET error "+h.ID+": "+outcome.Message)
		p.emitUnitDone(h.Job.Keyword, rec, time.Since(start))
		return fetchResult{id: h.ID, record: rec}
	}
}

func (p *Poller) emitUnitDone(keyword string, rec serp.RankRecord, dur time.Duration) {
	p.emitter.Emit(progress.Event{
		RunID:   p.runID,
		TS:      time.Now().UTC(),
		Stage:   progress.StageUnitDone,
		Mode:    "standard",
		Keyword: keyword,
		Outcome: progress.ClassifyRecord(rec),
		Dur:     dur,
	})
}
