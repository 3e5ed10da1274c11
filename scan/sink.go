package scan

import (
	"context"
	"errors"
	"sync"
	"time"
)

// RunInfo describes a run when it starts.
type RunInfo struct {
	ID        string
	Plan      RampPlan
	StartedAt time.Time
}

// Sink receives scan output as it is produced. A failing sink never aborts a
// scan; the returned Result stays authoritative.
type Sink interface {
	StartRun(ctx context.Context, run RunInfo) error
	AddPoint(ctx context.Context, runID string, p ResultPoint) error
	AddStabilitySample(ctx context.Context, runID string, s StabilitySample) error
	FinishRun(ctx context.Context, result *Result) error
}

// MemorySink keeps everything in memory. It is safe for concurrent use.
type MemorySink struct {
	mu       sync.Mutex
	runs     []RunInfo
	points   map[string][]ResultPoint
	samples  map[string][]StabilitySample
	finished map[string]*Result
}

var _ Sink = (*MemorySink)(nil)

// NewMemorySink creates an empty MemorySink.
func NewMemorySink() *MemorySink {
	return &MemorySink{
		points:   make(map[string][]ResultPoint),
		samples:  make(map[string][]StabilitySample),
		finished: make(map[string]*Result),
	}
}

func (s *MemorySink) StartRun(_ context.Context, run RunInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs = append(s.runs, run)

	return nil
}

func (s *MemorySink) AddPoint(_ context.Context, runID string, p ResultPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.points[runID] = append(s.points[runID], p)

	return nil
}

func (s *MemorySink) AddStabilitySample(_ context.Context, runID string, sample StabilitySample) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.samples[runID] = append(s.samples[runID], sample)

	return nil
}

func (s *MemorySink) FinishRun(_ context.Context, result *Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.finished[result.RunID] = result

	return nil
}

// Runs returns the started runs in start order.
func (s *MemorySink) Runs() []RunInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]RunInfo(nil), s.runs...)
}

// Points returns the points received for runID.
func (s *MemorySink) Points(runID string) []ResultPoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]ResultPoint(nil), s.points[runID]...)
}

// StabilitySamples returns the stability samples received for runID.
func (s *MemorySink) StabilitySamples(runID string) []StabilitySample {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]StabilitySample(nil), s.samples[runID]...)
}

// Finished returns the result of runID, nil while the run is not finished.
func (s *MemorySink) Finished(runID string) *Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.finished[runID]
}

// MultiSink forwards to every sink and joins their errors.
type MultiSink []Sink

var _ Sink = MultiSink(nil)

func (m MultiSink) StartRun(ctx context.Context, run RunInfo) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.StartRun(ctx, run))
	}

	return errors.Join(errs...)
}

func (m MultiSink) AddPoint(ctx context.Context, runID string, p ResultPoint) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.AddPoint(ctx, runID, p))
	}

	return errors.Join(errs...)
}

func (m MultiSink) AddStabilitySample(ctx context.Context, runID string, sample StabilitySample) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.AddStabilitySample(ctx, runID, sample))
	}

	return errors.Join(errs...)
}

func (m MultiSink) FinishRun(ctx context.Context, result *Result) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.FinishRun(ctx, result))
	}

	return errors.Join(errs...)
}
