package dataforseo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rankscope/rankscope/internal/serp"
)

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(Config{
		BaseURL:    baseURL,
		Login:      "login",
		Password:   "secret",
		SerpType:   "google",
		Timeout:    5 * time.Second,
		MaxRetries: 3,
		BackoffMin: time.Millisecond,
		BackoffMax: 5 * time.Millisecond,
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func testJob() serp.KeywordJob {
	return serp.KeywordJob{
		Keyword:           "seo tools",
		Domain:            "example.com",
		LocationCode:      2840,
		LanguageCode:      "en",
		Device:            serp.DeviceDesktop,
		Depth:             100,
		IncludeSubdomains: true,
	}
}

func TestSubmitImmediate_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/serp/google/organic/live/advanced", r.URL.Path)
		login, pass, ok := r.BasicAuth()
		require.True(t, ok)
		require.Equal(t, "login", login)
		require.Equal(t, "secret", pass)

		var payloads []map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payloads))
		require.Len(t, payloads, 1)
		require.Equal(t, "example.com", payloads[0]["target"])
		require.Equal(t, "windows", payloads[0]["os"])

		writeJSON(t, w, `{"status_code":20000,"tasks":[{"id":"t1","status_code":20000,
			"result":[{"keyword":"seo tools","se_domain":"google.com","location_name":"United States",
			"items":[{"type":"organic","rank_group":3,"rank_absolute":4,"url":"https://example.com"}]}]}]}`)
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv.URL).SubmitImmediate(context.Background(), testJob())
	require.NoError(t, err)
	require.Equal(t, serp.StatusOK, out.Status)
	require.NotNil(t, out.Result)
	require.Equal(t, "google.com", out.Result.SEDomain)
	require.Len(t, out.Result.Items, 1)
	require.Equal(t, 3, *out.Result.Items[0].RankGroup)
}

func TestSubmitImmediate_TaskError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, `{"status_code":20000,"tasks":[{"id":"t1","status_code":40501,
			"status_message":"Invalid Field"}]}`)
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv.URL).SubmitImmediate(context.Background(), testJob())
	require.NoError(t, err)
	require.Equal(t, serp.StatusError, out.Status)
	require.Equal(t, "Invalid Field", out.Message)
}

func TestDo_RetriesTransientInternalError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(t, w, `{"status_code":50000,"status_message":"Internal Error","tasks":[]}`)
			return
		}
		writeJSON(t, w, `{"status_code":20000,"tasks":[{"id":"t1","status_code":20000,
			"result":[{"keyword":"seo tools","items":[]}]}]}`)
	}))
	defer srv.Close()

	out, err := newTestClient(t, srv.URL).SubmitImmediate(context.Background(), testJob())
	require.NoError(t, err)
	require.Equal(t, serp.StatusOK, out.Status)
	require.Equal(t, int32(3), calls.Load())
}

func TestDo_ExhaustsRetriesOnServerError(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv.URL).SubmitImmediate(context.Background(), testJob())
	require.Error(t, err)
	require.Equal(t, int32(3), calls.Load())
}

func TestEnqueueBatch_MixedOutcomes(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/serp/google/organic/task_post", r.URL.Path)

		var payloads []map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payloads))
		require.Len(t, payloads, 2)
		// Standard mode cannot filter server-side; target must be absent.
		_, hasTarget := payloads[0]["target"]
		require.False(t, hasTarget)

		writeJSON(t, w, `{"status_code":20000,"tasks":[
			{"id":"env-1","status_code":20100,"result":[{"id":"task-1"}]},
			{"id":"env-2","status_code":40501,"status_message":"Invalid Field"}]}`)
	}))
	defer srv.Close()

	jobs := []serp.KeywordJob{testJob(), testJob()}
	outcomes, err := newTestClient(t, srv.URL).EnqueueBatch(context.Background(), jobs)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	require.Equal(t, serp.StatusCreated, outcomes[0].Status)
	require.Equal(t, "task-1", outcomes[0].TaskID)
	require.Equal(t, serp.StatusError, outcomes[1].Status)
}

func TestEnqueueBatch_FallsBackToEnvelopeID(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(t, w, `{"status_code":20000,"tasks":[{"id":"env-9","status_code":20100,"result":[]}]}`)
	}))
	defer srv.Close()

	outcomes, err := newTestClient(t, srv.URL).EnqueueBatch(context.Background(), []serp.KeywordJob{testJob()})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	require.Equal(t, "env-9", outcomes[0].TaskID)
}

func TestListReadyTasks(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/serp/google/organic/tasks_ready", r.URL.Path)
		writeJSON(t, w, `{"status_code":20000,"tasks":[{"status_code":20000,
			"result":[{"id":"task-1"},{"id":"task-2"}]}]}`)
	}))
	defer srv.Close()

	ids, err := newTestClient(t, srv.URL).ListReadyTasks(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"task-1", "task-2"}, ids)
}

func TestFetchTaskResult_Classification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want serp.Status
	}{
		{
			"success",
			`{"tasks":[{"status_code":20000,"result":[{"keyword":"kw","items":[]}]}]}`,
			serp.StatusOK,
		},
		{
			"in queue",
			`{"tasks":[{"status_code":40602,"status_message":"Task In Queue"}]}`,
			serp.StatusQueued,
		},
		{
			"handed",
			`{"tasks":[{"status_code":40601,"status_message":"Task Handed"}]}`,
			serp.StatusQueued,
		},
		{
			"unknown status stays pending",
			`{"tasks":[{"status_code":30001,"status_message":"???"}]}`,
			serp.StatusQueued,
		},
		{
			"hard error",
			`{"tasks":[{"status_code":40400,"status_message":"Not Found"}]}`,
			serp.StatusError,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/serp/google/organic/task_get/advanced/task-1", r.URL.Path)
				writeJSON(t, w, tc.body)
			}))
			defer srv.Close()

			out, err := newTestClient(t, srv.URL).FetchTaskResult(context.Background(), "task-1")
			require.NoError(t, err)
			require.Equal(t, tc.want, out.Status)
		})
	}
}

func TestLanguagesAndLocations(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/serp/google/languages":
			writeJSON(t, w, `{"tasks":[{"status_code":20000,
				"result":[{"language_name":"English","language_code":"en"}]}]}`)
		case "/serp/google/locations/us":
			writeJSON(t, w, `{"tasks":[{"status_code":20000,
				"result":[{"location_code":2840,"location_name":"United States","country_iso_code":"US"}]}]}`)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	langs, err := c.Languages(context.Background())
	require.NoError(t, err)
	require.Len(t, langs, 1)
	require.Equal(t, "en", langs[0].Code)

	locs, err := c.Locations(context.Background(), "US")
	require.NoError(t, err)
	require.Len(t, locs, 1)
	require.Equal(t, 2840, locs[0].Code)
}

func writeJSON(t *testing.T, w http.ResponseWriter, body string) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write([]byte(body)); err != nil {
		t.Errorf("write response: %v", err)
	}
}
