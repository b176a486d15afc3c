// Package runner assembles a retrieval run end to end: keyword jobs, mode
// dispatch, reconciliation, persistence, and notification.
package runner

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rankscope/rankscope/internal/config"
	"github.com/rankscope/rankscope/internal/live"
	"github.com/rankscope/rankscope/internal/progress"
	"github.com/rankscope/rankscope/internal/serp"
	"github.com/rankscope/rankscope/internal/standard"
	"github.com/rankscope/rankscope/internal/storage"
)

// Mode selects the delivery mode for a run.
type Mode string

// Delivery modes.
const (
	// ModeLive issues one immediate request per keyword.
	ModeLive Mode = "live"
	// ModeStandard submits queued tasks and polls for their results.
	ModeStandard Mode = "standard"
)

// ParseMode validates a mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeLive:
		return ModeLive, nil
	case ModeStandard:
		return ModeStandard, nil
	default:
		return "", fmt.Errorf("unknown mode %q (want live or standard)", s)
	}
}

// Request describes one retrieval run.
type Request struct {
	Keywords []string
	Domain   string
	Mode     Mode
}

// RecordSink receives the completed run as secondary persistence, e.g. a
// Postgres table. Sink failures are logged, never fatal.
type RecordSink interface {
	StoreRun(ctx context.Context, run storage.RunRecord) error
}

// Options carries the optional collaborators of a Runner.
type Options struct {
	Store     storage.RunStore
	Sink      RecordSink
	Publisher serp.Publisher
	Topic     string
	Emitter   progress.Emitter
}

// Runner executes retrieval runs.
type Runner struct {
	api     serp.API
	cfg     config.Config
	logger  *zap.Logger
	store   storage.RunStore
	sink    RecordSink
	pub     serp.Publisher
	topic   string
	emitter progress.Emitter
}

// New constructs a Runner.
func New(api serp.API, cfg config.Config, logger *zap.Logger, opts Options) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	emitter := opts.Emitter
	if emitter == nil {
		emitter = progress.Nop{}
	}
	return &Runner{
		api:     api,
		cfg:     cfg,
		logger:  logger,
		store:   opts.Store,
		sink:    opts.Sink,
		pub:     opts.Publisher,
		topic:   opts.Topic,
		emitter: emitter,
	}
}

// notification is the run-completion payload published after persistence.
type notification struct {
	RunID     string    `json:"run_id"`
	Timestamp time.Time `json:"timestamp"`
	Mode      string    `json:"mode"`
	Domain    string    `json:"domain"`
	Total     int       `json:"total"`
	Found     int       `json:"found"`
	StoredAs  string    `json:"stored_as,omitempty"`
}

// Run executes one retrieval run and returns its record. Exactly one
// RankRecord per distinct keyword, whatever happens to individual requests;
// the returned error covers whole-run failures only.
func (r *Runner) Run(ctx context.Context, req Request) (storage.RunRecord, error) {
	jobs := r.buildJobs(req)
	if len(jobs) == 0 {
		return storage.RunRecord{}, fmt.Errorf("no keywords to check")
	}
	if strings.TrimSpace(req.Domain) == "" {
		return storage.RunRecord{}, fmt.Errorf("target domain is required")
	}

	runID := uuid.New()
	start := time.Now().UTC()
	r.emitter.Emit(progress.Event{
		RunID: progress.UUIDToBytes(runID),
		TS:    start,
		Stage: progress.StageRunStart,
		Mode:  string(req.Mode),
		Total: len(jobs),
	})
	r.logger.Info("run started",
		zap.String("run_id", runID.String()),
		zap.String("mode", string(req.Mode)),
		zap.String("domain", req.Domain),
		zap.Int("keywords", len(jobs)),
	)

	var records []serp.RankRecord
	var err error
	switch req.Mode {
	case ModeLive:
		records = r.runLive(ctx, runID, jobs)
	case ModeStandard:
		records, err = r.runStandard(ctx, runID, jobs)
	default:
		err = fmt.Errorf("unknown mode %q", req.Mode)
	}
	if err != nil {
		r.emitter.Emit(progress.Event{
			RunID: progress.UUIDToBytes(runID),
			TS:    time.Now().UTC(),
			Stage: progress.StageRunError,
			Mode:  string(req.Mode),
			Total: len(jobs),
			Note:  err.Error(),
		})
		return storage.RunRecord{}, err
	}

	found := 0
	for _, rec := range records {
		if rec.Found {
			found++
		}
	}
	run := storage.RunRecord{
		ID:        runID.String(),
		Timestamp: start,
		Mode:      string(req.Mode),
		Domain:    req.Domain,
		Total:     len(jobs),
		Found:     found,
		Records:   records,
	}

	r.emitter.Emit(progress.Event{
		RunID: progress.UUIDToBytes(runID),
		TS:    time.Now().UTC(),
		Stage: progress.StageRunDone,
		Mode:  string(req.Mode),
		Total: len(jobs),
		Done:  len(records),
	})

	// A cancelled run still persists and notifies with whatever it gathered.
	tail, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	storedAs := r.persist(tail, run)
	r.notify(tail, run, storedAs)

	r.logger.Info("run finished",
		zap.String("run_id", run.ID),
		zap.Int("total", run.Total),
		zap.Int("found", run.Found),
		zap.Duration("elapsed", time.Since(start)),
	)
	return run, nil
}

// buildJobs turns the request keywords into jobs, trimming blanks and
// dropping duplicates while preserving order.
func (r *Runner) buildJobs(req Request) []serp.KeywordJob {
	q := r.cfg.Query
	device := serp.Device(q.Device)
	os := q.OS
	if os == "" {
		os = device.DefaultOS()
	}
	seen := make(map[string]bool, len(req.Keywords))
	jobs := make([]serp.KeywordJob, 0, len(req.Keywords))
	for _, raw := range req.Keywords {
		kw := strings.TrimSpace(raw)
		if kw == "" || seen[kw] {
			continue
		}
		seen[kw] = true
		jobs = append(jobs, serp.KeywordJob{
			Keyword:           kw,
			Domain:            req.Domain,
			LocationCode:      q.LocationCode,
			LanguageCode:      q.LanguageCode,
			Device:            device,
			OS:                os,
			Depth:             q.Depth,
			IncludeSubdomains: q.IncludeSubdomains,
		})
	}
	return jobs
}

func (r *Runner) runLive(ctx context.Context, runID uuid.UUID, jobs []serp.KeywordJob) []serp.RankRecord {
	d := live.New(r.api, live.Config{
		Workers:           r.cfg.Live.Workers,
		RequestsPerMinute: r.cfg.Live.RequestsPerMinute,
		RequestTimeout:    r.cfg.RequestTimeout(),
	}, r.logger, r.emitter, progress.UUIDToBytes(runID))
	return d.Run(ctx, jobs)
}

func (r *Runner) runStandard(ctx context.Context, runID uuid.UUID, jobs []serp.KeywordJob) ([]serp.RankRecord, error) {
	b := standard.NewBatcher(r.api, standard.BatcherConfig{
		BatchSize:       r.cfg.Standard.BatchSize,
		MaxAttempts:     r.cfg.API.MaxRetries,
		InterBatchDelay: r.cfg.SubmitDelay(),
	}, r.logger)
	handles, attempted := b.Run(ctx, jobs)
	if len(handles) == 0 && ctx.Err() == nil {
		return nil, fmt.Errorf("all task submissions failed")
	}

	p := standard.NewPoller(r.api, standard.PollerConfig{
		PollInterval:   r.cfg.PollInterval(),
		FetchWorkers:   r.cfg.Standard.FetchWorkers,
		RequestTimeout: r.cfg.RequestTimeout(),
	}, r.logger, r.emitter, progress.UUIDToBytes(runID))
	records := p.Run(ctx, handles)

	return r.reconcile(runID, jobs, handles, attempted, records), nil
}

// reconcile guarantees one record per job. Keywords the remote refused get a
// submission-failure placeholder; keywords the batcher never reached because
// the run stopped get a stop placeholder, so cancellation stays
// distinguishable from rejection in records and outcome counts.
func (r *Runner) reconcile(runID uuid.UUID, jobs []serp.KeywordJob, handles []serp.TaskHandle, attempted int, records []serp.RankRecord) []serp.RankRecord {
	submitted := make(map[string]bool, len(handles))
	for _, h := range handles {
		submitted[h.Job.Keyword] = true
	}
	for i, job := range jobs {
		if submitted[job.Keyword] {
			continue
		}
		note := "Task submission failed"
		if i >= attempted {
			note = "Stopped before start"
		}
		rec := serp.MissRecord(job, note)
		r.emitter.Emit(progress.Event{
			RunID:   progress.UUIDToBytes(runID),
			TS:      time.Now().UTC(),
			Stage:   progress.StageUnitDone,
			Mode:    string(ModeStandard),
			Keyword: job.Keyword,
			Outcome: progress.ClassifyRecord(rec),
		})
		records = append(records, rec)
	}
	return records
}

// persist saves the run to the primary store and the optional sink. Returns
// the primary storage key, empty when unsaved.
func (r *Runner) persist(ctx context.Context, run storage.RunRecord) string {
	var storedAs string
	if r.store != nil {
		key, err := r.store.Save(ctx, run)
		if err != nil {
			r.logger.Error("saving run history failed", zap.String("run_id", run.ID), zap.Error(err))
		} else {
			storedAs = key
		}
	}
	if r.sink != nil {
		if err := r.sink.StoreRun(ctx, run); err != nil {
			r.logger.Warn("record sink failed", zap.String("run_id", run.ID), zap.Error(err))
		}
	}
	return storedAs
}

func (r *Runner) notify(ctx context.Context, run storage.RunRecord, storedAs string) {
	if r.pub == nil || r.topic == "" {
		return
	}
	msgID, err := r.pub.Publish(ctx, r.topic, notification{
		RunID:     run.ID,
		Timestamp: run.Timestamp,
		Mode:      run.Mode,
		Domain:    run.Domain,
		Total:     run.Total,
		Found:     run.Found,
		StoredAs:  storedAs,
	})
	if err != nil {
		r.logger.Warn("run notification failed", zap.String("run_id", run.ID), zap.Error(err))
		return
	}
	r.logger.Debug("run notification published", zap.String("message_id", msgID))
}
