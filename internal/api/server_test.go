package api

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rankscope/rankscope/internal/serp"
	"github.com/rankscope/rankscope/internal/storage"
)

func seedStore(t *testing.T) (*storage.FSStore, storage.RunRecord) {
	t.Helper()
	store, err := storage.NewFSStore(storage.FSConfig{Dir: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)

	rank := 4
	abs := 6
	run := storage.RunRecord{
		ID:        uuid.NewString(),
		Timestamp: time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC),
		Mode:      "live",
		Domain:    "example.com",
		Total:     1,
		Found:     1,
		Records: []serp.RankRecord{{
			Keyword:      "coffee grinder",
			Found:        true,
			OrganicRank:  &rank,
			AbsoluteRank: &abs,
			URL:          "https://example.com/grinders",
			LanguageCode: "en",
			Device:       serp.DeviceDesktop,
			OS:           "windows",
			Depth:        100,
		}},
	}
	_, err = store.Save(context.Background(), run)
	require.NoError(t, err)
	return store, run
}

func TestHealthz(t *testing.T) {
	store, _ := seedStore(t)
	srv := httptest.NewServer(NewServer(store, zap.NewNop()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestListRuns(t *testing.T) {
	store, run := seedStore(t)
	srv := httptest.NewServer(NewServer(store, zap.NewNop()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/runs")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Runs []runSummary `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Runs, 1)
	require.Equal(t, run.ID, body.Runs[0].ID)
	require.Equal(t, 1, body.Runs[0].Found)
}

func TestListRunsRejectsBadLimit(t *testing.T) {
	store, _ := seedStore(t)
	srv := httptest.NewServer(NewServer(store, zap.NewNop()).Handler())
	defer srv.Close()

	for _, limit := range []string{"0", "-1", "9999", "abc"} {
		resp, err := http.Get(srv.URL + "/api/runs?limit=" + limit)
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, "limit=%s", limit)
	}
}

func TestGetRun(t *testing.T) {
	store, run := seedStore(t)
	srv := httptest.NewServer(NewServer(store, zap.NewNop()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/runs/" + run.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got storage.RunRecord
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	require.Equal(t, run.ID, got.ID)
	require.Len(t, got.Records, 1)
	require.Equal(t, "coffee grinder", got.Records[0].Keyword)
}

func TestGetRunNotFound(t *testing.T) {
	store, _ := seedStore(t)
	srv := httptest.NewServer(NewServer(store, zap.NewNop()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/runs/" + uuid.NewString())
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExportRunCSV(t *testing.T) {
	store, run := seedStore(t)
	srv := httptest.NewServer(NewServer(store, zap.NewNop()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/runs/" + run.ID + "/export.csv")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/csv", resp.Header.Get("Content-Type"))

	rows, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "keyword", rows[0][0])
	require.Equal(t, "coffee grinder", rows[1][0])
	require.Equal(t, "4", rows[1][2])
}

func TestMetricsEndpoint(t *testing.T) {
	store, _ := seedStore(t)
	srv := httptest.NewServer(NewServer(store, zap.NewNop()).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
