package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mdazatorres/Rt-reproductive-number-CALCAT/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "rt.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func day(n int) time.Time {
	return time.Date(2022, time.May, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func summary(id string, finished time.Time, rows int) domain.RunSummary {
	return domain.RunSummary{
		RunID:      id,
		StartedAt:  finished.Add(-time.Minute),
		FinishedAt: finished,
		Processed:  []string{"Alameda", "Yolo"},
		Skipped:    map[string]string{"Marin": "no_data"},
		Rows:       rows,
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("  ")
	require.Error(t, err)
}

func TestStore_WriteResultsAndRead(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	rows := domain.CombinedResult{
		{Date: day(0), County: "Alameda", Rt: 1.2, Lower: 1, Upper: 1.4},
		{Date: day(0), County: "Yolo", Rt: 0.9, Lower: 0.7, Upper: 1.05},
		{Date: day(1), County: "Yolo", Rt: 0.95, Lower: 0.75, Upper: 1.1},
	}
	finished := time.Date(2023, time.July, 20, 6, 0, 0, 0, time.UTC)

	require.NoError(t, store.WriteResults(ctx, summary("run-1", finished, len(rows)), rows))

	all, err := store.Estimates(ctx, "")
	require.NoError(t, err)
	if diff := cmp.Diff(rows, all); diff != "" {
		t.Fatalf("estimates mismatch (-want +got):\n%s", diff)
	}

	yolo, err := store.Estimates(ctx, "Yolo")
	require.NoError(t, err)
	assert.Len(t, yolo, 2)

	latest, err := store.LatestRun(ctx)
	require.NoError(t, err)
	if diff := cmp.Diff(summary("run-1", finished, 3), latest); diff != "" {
		t.Fatalf("run mismatch (-want +got):\n%s", diff)
	}
}

func TestStore_WriteResultsReplacesPreviousTable(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	finished := time.Date(2023, time.July, 20, 6, 0, 0, 0, time.UTC)

	require.NoError(t, store.WriteResults(ctx, summary("run-1", finished, 2), domain.CombinedResult{
		{Date: day(0), County: "Napa", Rt: 1, Lower: 0.9, Upper: 1.1},
		{Date: day(1), County: "Napa", Rt: 1, Lower: 0.9, Upper: 1.1},
	}))
	require.NoError(t, store.WriteResults(ctx, summary("run-2", finished.Add(24*time.Hour), 1), domain.CombinedResult{
		{Date: day(5), County: "Yolo", Rt: 1.1, Lower: 1, Upper: 1.2},
	}))

	all, err := store.Estimates(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Yolo", all[0].County)

	latest, err := store.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-2", latest.RunID)
}

func TestStore_LatestRunEmpty(t *testing.T) {
	_, err := openTestStore(t).LatestRun(context.Background())
	assert.ErrorIs(t, err, ErrNoRun)
}

func TestStore_DuplicateRowRollsBack(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	finished := time.Date(2023, time.July, 20, 6, 0, 0, 0, time.UTC)

	require.NoError(t, store.WriteResults(ctx, summary("run-1", finished, 1), domain.CombinedResult{
		{Date: day(0), County: "Napa", Rt: 1, Lower: 0.9, Upper: 1.1},
	}))

	dup := domain.Estimate{Date: day(3), County: "Yolo", Rt: 1, Lower: 1, Upper: 1}
	err := store.WriteResults(ctx, summary("run-2", finished.Add(time.Hour), 2), domain.CombinedResult{dup, dup})
	require.Error(t, err)

	all, err := store.Estimates(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Napa", all[0].County)

	latest, err := store.LatestRun(ctx)
	require.NoError(t, err)
	assert.Equal(t, "run-1", latest.RunID)
}
