package standard

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/rankscope/rankscope/internal/metrics"
	"github.com/rankscope/rankscope/internal/serp"
)

// BatcherConfig controls batch submission.
type BatcherConfig struct {
	BatchSize int
	// MaxAttempts bounds retries of a batch whose submission call failed
	// outright (the client already retried transient statuses internally).
	MaxAttempts int
	// RetryDelay is the pause before re-submitting a failed batch.
	RetryDelay time.Duration
	// InterBatchDelay is a courtesy pause between successive batches.
	InterBatchDelay time.Duration
}

// Batcher groups keywords into bounded batches and submits each as one
// queued-task call.
type Batcher struct {
	api    serp.API
	cfg    BatcherConfig
	logger *zap.Logger
}

// NewBatcher constructs a Batcher.
func NewBatcher(api serp.API, cfg BatcherConfig, logger *zap.Logger) *Batcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.InterBatchDelay < 0 {
		cfg.InterBatchDelay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batcher{api: api, cfg: cfg, logger: logger}
}

// Run submits all jobs in batches and returns the handles obtained plus the
// number of leading jobs that were actually offered to the remote. The
// returned handles are a subset of the jobs: submission failures shrink the
// set, application logic never does. Cancelling ctx stops further batches but
// keeps handles already obtained; jobs beyond the attempted count were never
// submitted because the run stopped, not because the remote refused them.
func (b *Batcher) Run(ctx context.Context, jobs []serp.KeywordJob) ([]serp.TaskHandle, int) {
	handles := make([]serp.TaskHandle, 0, len(jobs))
	attempted := 0

	for start := 0; start < len(jobs); start += b.cfg.BatchSize {
		if ctx.Err() != nil {
			b.logger.Info("batch submission stopped",
				zap.Int("submitted", len(handles)),
				zap.Int("remaining", len(jobs)-start),
			)
			break
		}

		end := min(start+b.cfg.BatchSize, len(jobs))
		chunk := jobs[start:end]

		outcomes, ok := b.submitBatch(ctx, chunk)
		if !ok {
			if ctx.Err() != nil {
				// The batch failed because the run stopped mid-attempt.
				b.logger.Info("batch submission stopped",
					zap.Int("submitted", len(handles)),
					zap.Int("remaining", len(jobs)-start),
				)
				break
			}
			// Unrecoverable batch: its keywords yield no handle. The caller
			// reconciles them against the original job list.
			b.logger.Warn("giving up on batch",
				zap.Int("offset", start),
				zap.Int("size", len(chunk)),
			)
			attempted = end
			continue
		}
		attempted = end

		for i, outcome := range outcomes {
			if i >= len(chunk) {
				break
			}
			if outcome.Status != serp.StatusCreated {
				b.logger.Warn("task rejected",
					zap.String("keyword", chunk[i].Keyword),
					zap.String("message", outcome.Message),
				)
				continue
			}
			handles = append(handles, serp.TaskHandle{ID: outcome.TaskID, Job: chunk[i]})
		}

		if end < len(jobs) && b.cfg.InterBatchDelay > 0 {
			sleepCtx(ctx, b.cfg.InterBatchDelay)
		}
	}

	b.logger.Info("batch submission finished",
		zap.Int("jobs", len(jobs)),
		zap.Int("attempted", attempted),
		zap.Int("tasks", len(handles)),
	)
	return handles, attempted
}

// submitBatch tries one chunk up to MaxAttempts times.
func (b *Batcher) submitBatch(ctx context.Context, chunk []serp.KeywordJob) ([]serp.EnqueueOutcome, bool) {
	for attempt := 0; attempt < b.cfg.MaxAttempts; attempt++ {
		if attempt > 0 {
			metrics.IncSubmissionRetry()
			if !sleepCtx(ctx, b.cfg.RetryDelay) {
				return nil, false
			}
		}
		outcomes, err := b.api.EnqueueBatch(ctx, chunk)
		if err == nil {
			return outcomes, true
		}
		b.logger.Warn("batch submission failed",
			zap.Int("attempt", attempt+1),
			zap.Int("size", len(chunk)),
			zap.Error(err),
		)
		if ctx.Err() != nil {
			return nil, false
		}
	}
	return nil, false
}

// sleepCtx waits for d unless ctx ends first; reports whether the full wait
// elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
