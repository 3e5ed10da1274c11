package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-ivscan/scan"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "data", "ivscan.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

var testPlan = scan.RampPlan{
	Voltages:     []float64{0, 50, 100},
	TestVoltage:  100,
	Settle:       2 * time.Second,
	TestDuration: 10 * time.Second,
	Repetitions:  3,
	RampDown:     true,
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := openTestStore(t)

	started := time.Date(2024, 3, 1, 12, 0, 0, 123456789, time.UTC)
	require.NoError(s.StartRun(ctx, scan.RunInfo{ID: "run-1", Plan: testPlan, StartedAt: started}))

	rec, err := s.Run(ctx, "run-1")
	require.NoError(err)
	require.Equal("running", rec.State)
	require.False(rec.Finished())
	require.True(started.Equal(rec.StartedAt))
	require.Equal(testPlan, rec.Plan.RampPlan())

	points := []scan.ResultPoint{
		{Stage: 0, Voltage: 0, Mean: 1e-12, StdDev: 1e-14, Samples: 3},
		{Stage: 1, Voltage: 50, Mean: 5e-8, StdDev: 2e-13, Samples: 3},
	}
	for _, p := range points {
		require.NoError(s.AddPoint(ctx, "run-1", p))
	}
	samples := []scan.StabilitySample{
		{Stage: 2, Voltage: 100, Elapsed: 8 * time.Second, Current: 1e-7, Timestamp: 9},
		{Stage: 2, Voltage: 100, Elapsed: 10 * time.Second, Current: 1.01e-7, Timestamp: 10},
	}
	for _, sample := range samples {
		require.NoError(s.AddStabilitySample(ctx, "run-1", sample))
	}

	finished := started.Add(time.Minute)
	require.NoError(s.FinishRun(ctx, &scan.Result{
		RunID:      "run-1",
		State:      scan.StateAborted,
		Err:        errors.New("sensor read failed"),
		FinishedAt: finished,
	}))

	gotPoints, err := s.Points(ctx, "run-1")
	require.NoError(err)
	require.Equal(points, gotPoints)

	gotSamples, err := s.StabilitySamples(ctx, "run-1")
	require.NoError(err)
	require.Equal(samples, gotSamples)

	rec, err = s.Run(ctx, "run-1")
	require.NoError(err)
	require.Equal("aborted", rec.State)
	require.Equal("sensor read failed", rec.Error)
	require.True(rec.Finished())
	require.True(finished.Equal(rec.FinishedAt))
	require.Equal(2, rec.Points)
}

func TestSQLiteStore_Runs(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := openTestStore(t)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(s.StartRun(ctx, scan.RunInfo{ID: id, Plan: testPlan, StartedAt: base.Add(time.Duration(i) * time.Hour)}))
	}

	runs, err := s.Runs(ctx, 2)
	require.NoError(err)
	require.Len(runs, 2)
	require.Equal("c", runs[0].ID)
	require.Equal("b", runs[1].ID)

	n, err := s.DeleteBefore(ctx, base.Add(90*time.Minute))
	require.NoError(err)
	require.Equal(int64(2), n)

	runs, err = s.Runs(ctx, 10)
	require.NoError(err)
	require.Len(runs, 1)
	require.Equal("c", runs[0].ID)
}

func TestSQLiteStore_Errors(t *testing.T) {
	require := require.New(t)
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.Run(ctx, "missing")
	require.ErrorIs(err, ErrRunNotFound)

	require.ErrorIs(s.FinishRun(ctx, &scan.Result{RunID: "missing"}), ErrRunNotFound)

	// Points need a known run.
	require.Error(s.AddPoint(ctx, "missing", scan.ResultPoint{}))

	require.NoError(s.StartRun(ctx, scan.RunInfo{ID: "dup", Plan: testPlan, StartedAt: time.Now()}))
	require.Error(s.StartRun(ctx, scan.RunInfo{ID: "dup", Plan: testPlan, StartedAt: time.Now()}))

	require.NoError(s.Close())
	require.NoError(s.Close())
	require.ErrorIs(s.StartRun(ctx, scan.RunInfo{ID: "late"}), ErrClosed)
	_, err = s.Points(ctx, "dup")
	require.ErrorIs(err, ErrClosed)
}

func TestSQLiteStore_AsSink(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	mem := scan.NewMemorySink()
	sink := scan.MultiSink{mem, s}

	require.NoError(t, sink.StartRun(ctx, scan.RunInfo{ID: "run-2", Plan: testPlan, StartedAt: time.Now()}))
	require.NoError(t, sink.AddPoint(ctx, "run-2", scan.ResultPoint{Stage: 0, Samples: 1}))

	points, err := s.Points(ctx, "run-2")
	require.NoError(t, err)
	require.Equal(t, mem.Points("run-2"), points)
}
