package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wesleyorama2/stampede/internal/loadtest/engine"
	"github.com/wesleyorama2/stampede/internal/loadtest/metrics"
)

func testResult(id string, start time.Time, fails int) *engine.Result {
	agg := metrics.NewAggregator()
	for i := 0; i < 10; i++ {
		outcome := metrics.Pass
		if i < fails {
			outcome = metrics.Fail
		}
		agg.Record(metrics.Sample{Metric: metrics.HTTPReqDuration, Duration: time.Duration(i+1) * time.Millisecond, Outcome: outcome})
		agg.Record(metrics.Sample{Metric: metrics.IterationDuration, Duration: time.Duration(i+1) * time.Millisecond, Outcome: outcome})
	}

	return &engine.Result{
		RunID:     id,
		Name:      "exchange",
		StartTime: start,
		EndTime:   start.Add(30 * time.Second),
		Duration:  30 * time.Second,
		Report:    agg.Snapshot(),
		MaxVUs:    20,
		Passed:    fails == 0,
	}
}

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "runs.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStore_SaveAndList(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	base := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.Save(ctx, testResult("a", base, 0)))
	require.NoError(t, store.Save(ctx, testResult("b", base.Add(time.Hour), 2)))
	require.NoError(t, store.Save(ctx, testResult("c", base.Add(2*time.Hour), 0)))

	runs, err := store.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].ID)
	assert.Equal(t, "b", runs[1].ID)

	b := runs[1]
	assert.Equal(t, "exchange", b.Name)
	assert.Equal(t, 30*time.Second, b.Duration)
	assert.Equal(t, int64(10), b.Iterations)
	assert.Equal(t, int64(2), b.FailedIterations)
	assert.Equal(t, int64(10), b.HTTPReqs)
	assert.InDelta(t, 0.2, b.HTTPReqFailed, 1e-9)
	assert.Equal(t, 20, b.MaxVUs)
	assert.False(t, b.Passed)
	assert.True(t, b.StartedAt.Equal(base.Add(time.Hour)))
	assert.InDelta(t, float64(10*time.Millisecond), float64(b.P95), float64(100*time.Microsecond))

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestStore_P95WithoutSelectedStat(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	stats, err := metrics.ParseTrendStats([]string{"min", "max"})
	require.NoError(t, err)
	agg := metrics.NewAggregator(stats...)
	for i := 1; i <= 10; i++ {
		agg.Record(metrics.Sample{Metric: metrics.HTTPReqDuration, Duration: time.Duration(i) * time.Millisecond})
	}
	result := testResult("custom", time.Date(2026, 10, 2, 9, 0, 0, 0, time.UTC), 0)
	result.Report = agg.Snapshot()
	require.NoError(t, store.Save(ctx, result))

	runs, err := store.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.InDelta(t, float64(10*time.Millisecond), float64(runs[0].P95), float64(100*time.Microsecond))
}

func TestStore_Get(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	saved := testResult("run-1", time.Now(), 1)
	require.NoError(t, store.Save(ctx, saved))

	got, err := store.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, saved.Report.Iterations, got.Report.Iterations)
	assert.Equal(t, saved.Report.Trends[metrics.HTTPReqDuration].Fails, got.Report.Trends[metrics.HTTPReqDuration].Fails)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_SaveReplaces(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)

	start := time.Now()
	require.NoError(t, store.Save(ctx, testResult("same", start, 3)))
	require.NoError(t, store.Save(ctx, testResult("same", start, 0)))

	runs, err := store.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Passed)
}

func TestOpen_ReappliesMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runs.db")

	first, err := Open(context.Background(), path, nil)
	require.NoError(t, err)
	require.NoError(t, first.Save(context.Background(), testResult("x", time.Now(), 0)))
	require.NoError(t, first.Close())

	second, err := Open(context.Background(), path, nil)
	require.NoError(t, err)
	defer second.Close()

	runs, err := second.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestStore_SaveRejectsEmptyResult(t *testing.T) {
	store := openStore(t)
	assert.Error(t, store.Save(context.Background(), &engine.Result{RunID: "x"}))
}
