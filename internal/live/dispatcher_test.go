package live

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rankscope/rankscope/internal/serp"
)

type fakeAPI struct {
	mu        sync.Mutex
	launches  []time.Time
	delay     time.Duration
	err       error
	outcomes  map[string]serp.SubmitOutcome
	inFlight  atomic.Int32
	maxSeen   atomic.Int32
	submitted atomic.Int32
}

func (f *fakeAPI) SubmitImmediate(ctx context.Context, job serp.KeywordJob) (serp.SubmitOutcome, error) {
	f.submitted.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		prev := f.maxSeen.Load()
		if cur <= prev || f.maxSeen.CompareAndSwap(prev, cur) {
			break
		}
	}

	f.mu.Lock()
	f.launches = append(f.launches, time.Now())
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return serp.SubmitOutcome{}, ctx.Err()
		}
	}
	if f.err != nil {
		return serp.SubmitOutcome{}, f.err
	}
	if out, ok := f.outcomes[job.Keyword]; ok {
		return out, nil
	}
	rank := 1
	return serp.SubmitOutcome{
		Status: serp.StatusOK,
		Result: &serp.RawResult{
			Keyword: job.Keyword,
			Items: []serp.RawSerpItem{
				{Type: "organic", RankGroup: &rank, RankAbsolute: &rank, URL: "https://example.com"},
			},
		},
	}, nil
}

func (f *fakeAPI) EnqueueBatch(context.Context, []serp.KeywordJob) ([]serp.EnqueueOutcome, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAPI) ListReadyTasks(context.Context) ([]string, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeAPI) FetchTaskResult(context.Context, string) (serp.FetchOutcome, error) {
	return serp.FetchOutcome{}, errors.New("not implemented")
}

func makeJobs(keywords ...string) []serp.KeywordJob {
	jobs := make([]serp.KeywordJob, 0, len(keywords))
	for _, kw := range keywords {
		jobs = append(jobs, serp.KeywordJob{
			Keyword:      kw,
			Domain:       "example.com",
			LanguageCode: "en",
			Device:       serp.DeviceDesktop,
			OS:           "windows",
			Depth:        100,
		})
	}
	return jobs
}

func keywordSet(t *testing.T, records []serp.RankRecord) map[string]int {
	t.Helper()
	set := make(map[string]int, len(records))
	for _, rec := range records {
		set[rec.Keyword]++
	}
	return set
}

func TestDispatcher_OneRecordPerJob(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	d := New(api, Config{Workers: 4, RequestsPerMinute: 60000}, zap.NewNop(), nil, [16]byte{1})

	jobs := makeJobs("a", "b", "c", "d", "e")
	records := d.Run(context.Background(), jobs)

	require.Len(t, records, 5)
	set := keywordSet(t, records)
	for _, job := range jobs {
		require.Equal(t, 1, set[job.Keyword])
	}
	for _, rec := range records {
		require.True(t, rec.Found)
	}
}

func TestDispatcher_LaunchSpacingEnforced(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	// 1200 rpm = 50ms spacing; 4 jobs need at least 3 gaps.
	d := New(api, Config{Workers: 4, RequestsPerMinute: 1200}, zap.NewNop(), nil, [16]byte{1})

	start := time.Now()
	records := d.Run(context.Background(), makeJobs("a", "b", "c", "d"))
	elapsed := time.Since(start)

	require.Len(t, records, 4)
	require.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
}

func TestDispatcher_WorkerBoundRespected(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{delay: 50 * time.Millisecond}
	d := New(api, Config{Workers: 2, RequestsPerMinute: 60000}, zap.NewNop(), nil, [16]byte{1})

	records := d.Run(context.Background(), makeJobs("a", "b", "c", "d", "e", "f"))
	require.Len(t, records, 6)
	require.LessOrEqual(t, api.maxSeen.Load(), int32(2))
}

func TestDispatcher_RemoteErrorBecomesRecord(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{outcomes: map[string]serp.SubmitOutcome{
		"bad": {Status: serp.StatusError, Message: "You have exceeded the limit"},
	}}
	d := New(api, Config{Workers: 2, RequestsPerMinute: 60000}, zap.NewNop(), nil, [16]byte{1})

	records := d.Run(context.Background(), makeJobs("good", "bad"))
	require.Len(t, records, 2)
	for _, rec := range records {
		if rec.Keyword == "bad" {
			require.False(t, rec.Found)
			require.Equal(t, "API error: You have exceeded the limit", rec.Note)
		} else {
			require.True(t, rec.Found)
		}
	}
}

func TestDispatcher_TransportErrorBecomesRecord(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{err: errors.New("connection refused")}
	d := New(api, Config{Workers: 2, RequestsPerMinute: 60000}, zap.NewNop(), nil, [16]byte{1})

	records := d.Run(context.Background(), makeJobs("a"))
	require.Len(t, records, 1)
	require.False(t, records[0].Found)
	require.Equal(t, "Error: connection refused", records[0].Note)
}

func TestDispatcher_CancelDrainsAndPlaceholders(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{delay: 30 * time.Millisecond}
	// 600 rpm = 100ms spacing keeps later launches queued behind the limiter.
	d := New(api, Config{Workers: 2, RequestsPerMinute: 600}, zap.NewNop(), nil, [16]byte{1})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(120 * time.Millisecond)
		cancel()
	}()

	jobs := makeJobs("a", "b", "c", "d", "e", "f", "g", "h")
	records := d.Run(ctx, jobs)

	require.Len(t, records, len(jobs))
	set := keywordSet(t, records)
	for _, job := range jobs {
		require.Equal(t, 1, set[job.Keyword])
	}

	stopped := 0
	for _, rec := range records {
		if rec.Note == "Stopped before start" {
			stopped++
			require.False(t, rec.Found)
		}
	}
	require.Greater(t, stopped, 0)
	// Launched workers were drained, not abandoned.
	require.Equal(t, int(api.submitted.Load()), len(jobs)-stopped)
}
