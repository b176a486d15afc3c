package storage

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rankscope/rankscope/internal/serp"
)

func testRun(ts time.Time) RunRecord {
	rank := 3
	abs := 5
	return RunRecord{
		ID:        uuid.NewString(),
		Timestamp: ts,
		Mode:      "live",
		Domain:    "example.com",
		Total:     2,
		Found:     1,
		Records: []serp.RankRecord{
			{
				Keyword:      "coffee grinder",
				Found:        true,
				OrganicRank:  &rank,
				AbsoluteRank: &abs,
				URL:          "https://example.com/grinders",
				LanguageCode: "en",
				Device:       serp.DeviceDesktop,
				OS:           "windows",
				Depth:        100,
			},
			{
				Keyword:      "espresso beans",
				LanguageCode: "en",
				Device:       serp.DeviceDesktop,
				OS:           "windows",
				Depth:        100,
				Note:         "Not found in top 100",
			},
		},
	}
}

func newTestStore(t *testing.T) *FSStore {
	t.Helper()
	store, err := NewFSStore(FSConfig{Dir: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	return store
}

func TestFSStoreSaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	run := testRun(time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC))

	name, err := store.Save(ctx, run)
	require.NoError(t, err)
	require.Contains(t, name, "run_20260314_093000_")

	got, err := store.Get(ctx, run.ID)
	require.NoError(t, err)
	require.Equal(t, run.ID, got.ID)
	require.Equal(t, run.Domain, got.Domain)
	require.Len(t, got.Records, 2)
	require.Equal(t, 3, *got.Records[0].OrganicRank)
	require.Nil(t, got.Records[1].OrganicRank)
}

func TestFSStoreListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	older := testRun(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := testRun(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	for _, run := range []RunRecord{older, newer} {
		_, err := store.Save(ctx, run)
		require.NoError(t, err)
	}

	runs, err := store.List(ctx, 50)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, newer.ID, runs[0].ID)
	require.Equal(t, older.ID, runs[1].ID)

	runs, err = store.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	require.Equal(t, newer.ID, runs[0].ID)
}

func TestFSStoreDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	run := testRun(time.Now().UTC())

	_, err := store.Save(ctx, run)
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, run.ID))

	_, err = store.Get(ctx, run.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, store.Delete(ctx, run.ID), ErrNotFound)
}

func TestFSStoreGetUnknownID(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "nope")
	require.ErrorIs(t, err, ErrNotFound)
}
