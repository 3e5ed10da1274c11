package scan

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-ivscan/device"
	"github.com/arloliu/go-ivscan/internal/clock"
	"github.com/arloliu/go-ivscan/logger"
	"github.com/arloliu/go-ivscan/scpi"
)

// Instrument is the part of *device.Device used by the controller.
type Instrument interface {
	Role() device.Role
	Identify(ctx context.Context) (string, error)
	Initialise(ctx context.Context) error
	Send(ctx context.Context, cmd string) error
	ReadValue(ctx context.Context, command, unit string) (scpi.Reading, error)
	Close(ctx context.Context) error
}

var _ Instrument = (*device.Device)(nil)

// Controller runs one IV scan over a voltage source and a current sensor.
//
// The source voltage is always set before the sensor is read within a stage,
// so every reading is attributed to the voltage that caused it. A Controller
// runs once; Status may be called from any goroutine.
type Controller struct {
	source Instrument
	sensor Instrument
	plan   RampPlan
	cfg    *config
	logger logger.Logger
	clock  clock.Clock
	states *StateMgr

	ran      atomic.Bool
	verified bool
	applied  []float64

	mu        sync.Mutex
	status    Status
	stability []StabilitySample

	closeOnce sync.Once
}

// NewController validates plan and returns a controller for it.
func NewController(source, sensor Instrument, plan RampPlan, opts ...Option) (*Controller, error) {
	if source == nil || sensor == nil {
		return nil, errors.New("scan: source and sensor are required")
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		source: source,
		sensor: sensor,
		plan:   plan,
		cfg:    cfg,
		logger: cfg.logger.With("run_id", cfg.runID),
		clock:  cfg.clock,
	}
	c.states = NewStateMgr(c.logger, c.onStateChange)
	c.states.AddHandler(cfg.handlers...)
	c.status = Status{RunID: cfg.runID, State: StateIdle, Stage: -1, Stages: len(plan.Voltages)}

	return c, nil
}

// RunID returns the run identifier.
func (c *Controller) RunID() string { return c.cfg.runID }

// Plan returns the ramp plan.
func (c *Controller) Plan() RampPlan { return c.plan }

// State returns the current state.
func (c *Controller) State() State { return c.states.State() }

// Metrics returns the controller counters.
func (c *Controller) Metrics() *Metrics { return c.cfg.metrics }

// Status returns a snapshot of the run.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.status
	s.Points = append([]ResultPoint(nil), c.status.Points...)

	return s
}

func (c *Controller) onStateChange(_ State, next State) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status.State = next
}

func (c *Controller) setStage(stage int, voltage float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status.Stage = stage
	c.status.Voltage = voltage
}

// Run performs the scan: verify both instruments, initialise them, run every
// ramp stage, then ramp down when enabled.
//
// Any failure aborts the run. On abort the source is ramped down over the
// voltages actually applied (when ramp-down is enabled and verification
// passed) and both instruments are closed, even if ctx was cancelled. The
// returned Result holds the points produced before the failure; the error is
// an *AbortError.
func (c *Controller) Run(ctx context.Context) (*Result, error) {
	result, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}

	err = c.prepare(ctx)
	if err == nil {
		for stage, v := range c.plan.Voltages {
			if err = c.runStage(ctx, stage, v); err != nil {
				break
			}
		}
	}
	if err == nil && c.plan.RampDown {
		if err = c.transition(StateRampDown); err == nil {
			if rdErr := c.rampDown(ctx); rdErr != nil {
				err = c.abortError(rdErr)
			}
		}
	}

	return c.finish(ctx, result, err)
}

// begin marks the controller as used and notifies the sink.
func (c *Controller) begin(ctx context.Context) (*Result, error) {
	if !c.ran.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}

	result := &Result{RunID: c.cfg.runID, Plan: c.plan, StartedAt: c.clock.Now()}
	c.mu.Lock()
	c.status.StartedAt = result.StartedAt
	c.mu.Unlock()

	c.cfg.metrics.incRunCount()
	c.logger.Info("scan started", "stages", len(c.plan.Voltages), "test_voltage", c.plan.TestVoltage,
		"settle", c.plan.Settle, "test_duration", c.plan.TestDuration, "repetitions", c.plan.Repetitions)
	c.sinkCall("start run", func(s Sink) error {
		return s.StartRun(ctx, RunInfo{ID: c.cfg.runID, Plan: c.plan, StartedAt: result.StartedAt})
	})

	return result, nil
}

// finish aborts on err, tears the instruments down and completes result.
func (c *Controller) finish(ctx context.Context, result *Result, err error) (*Result, error) {
	defer c.cfg.metrics.decRunningGauge()

	if err == nil {
		err = c.transition(StateDone)
	}
	if err != nil {
		c.abort(ctx, err)
	}
	c.teardown(ctx)

	result.State = c.states.State()
	result.Err = err
	result.FinishedAt = c.clock.Now()
	c.mu.Lock()
	result.Points = append(result.Points, c.status.Points...)
	result.Stability = append(result.Stability, c.stability...)
	if err != nil {
		c.status.Error = err.Error()
	}
	c.mu.Unlock()

	c.sinkCall("finish run", func(s Sink) error { return s.FinishRun(context.WithoutCancel(ctx), result) })

	if err != nil {
		c.logger.Error("scan aborted", "state", result.State, "points", len(result.Points), "error", err)
		return result, err
	}
	c.logger.Info("scan finished", "points", len(result.Points), "stability_samples", len(result.Stability))

	return result, nil
}

// transition moves to next and converts a refused transition into an abort.
func (c *Controller) transition(next State) error {
	if err := c.states.To(next); err != nil {
		return c.abortError(err)
	}

	return nil
}

// abortError wraps err with the current position of the run. It returns err
// unchanged when it already is an *AbortError.
func (c *Controller) abortError(err error) error {
	var abortErr *AbortError
	if errors.As(err, &abortErr) {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return &AbortError{State: c.status.State, Stage: c.status.Stage, Voltage: c.status.Voltage, Err: err}
}

// prepare verifies and initialises both instruments, then enters StateRamping.
func (c *Controller) prepare(ctx context.Context) error {
	if err := c.transition(StateVerifying); err != nil {
		return err
	}
	if err := c.verify(ctx, c.source, c.cfg.sourceIdentity); err != nil {
		return c.abortError(err)
	}
	if err := c.verify(ctx, c.sensor, c.cfg.sensorIdentity); err != nil {
		return c.abortError(err)
	}
	c.verified = true

	if err := c.transition(StateInitialising); err != nil {
		return err
	}
	for _, inst := range []Instrument{c.source, c.sensor} {
		if err := inst.Initialise(ctx); err != nil {
			return c.abortError(err)
		}
	}

	return c.transition(StateRamping)
}

func (c *Controller) verify(ctx context.Context, inst Instrument, want Identity) error {
	raw, err := inst.Identify(ctx)
	if err != nil {
		return err
	}
	if !want.Matches(raw) {
		return &UnexpectedInstrumentError{Role: inst.Role(), Expected: want, Raw: raw}
	}
	c.logger.Info("instrument verified", "role", inst.Role(), "idn", raw)

	return nil
}

func (c *Controller) runStage(ctx context.Context, stage int, v float64) error {
	c.setStage(stage, v)
	c.logger.Info("ramping", "stage", stage+1, "stages", len(c.plan.Voltages), "voltage", v)

	if err := c.source.Send(ctx, scpi.SetVoltage(v)); err != nil {
		return c.abortError(err)
	}
	// Only voltages the source accepted are walked back by the ramp-down.
	c.applied = append(c.applied, v)

	var (
		ramp []float64
		err  error
	)
	if c.plan.IsTestStage(v) {
		if err = c.transition(StateStabilityTest); err != nil {
			return err
		}
		ramp, err = c.stabilityTest(ctx, stage, v)
	} else {
		if err = c.transition(StateSettleWait); err != nil {
			return err
		}
		ramp, err = c.settleWait(ctx)
	}
	if err != nil {
		return c.abortError(err)
	}

	summary, err := Summarize(ramp)
	if err != nil {
		return c.abortError(err)
	}
	if err := c.transition(StateRamping); err != nil {
		return err
	}

	point := ResultPoint{Stage: stage, Voltage: v, Mean: summary.Mean, StdDev: summary.StdDev, Samples: summary.N}
	c.mu.Lock()
	c.status.Points = append(c.status.Points, point)
	c.mu.Unlock()
	c.cfg.metrics.incStageCount()

	c.logger.Info("measurement",
		"stage", stage+1, "stages", len(c.plan.Voltages), "voltage", v,
		"current", summary.Mean, "stddev", summary.StdDev, "samples", summary.N)
	c.sinkCall("add point", func(s Sink) error { return s.AddPoint(ctx, c.cfg.runID, point) })

	return nil
}

// settleWait waits the settle time, then takes the stage readings.
func (c *Controller) settleWait(ctx context.Context) ([]float64, error) {
	if err := c.clock.Sleep(ctx, c.plan.Settle); err != nil {
		return nil, err
	}

	ramp := make([]float64, 0, c.plan.Repetitions)
	for range c.plan.Repetitions {
		reading, err := c.read(ctx)
		if err != nil {
			return nil, err
		}
		ramp = append(ramp, reading.Value)
	}

	return ramp, nil
}

// stabilityTest samples until the test duration has elapsed. Each iteration
// waits the settle time and takes one reading. The first Repetitions readings
// form the ramp set; the later ones are recorded as stability samples. The
// loop stops after the first reading taken at or past the test duration.
func (c *Controller) stabilityTest(ctx context.Context, stage int, v float64) ([]float64, error) {
	c.logger.Info("stability test started", "voltage", v, "duration", c.plan.TestDuration)

	start := c.clock.Now()
	ramp := make([]float64, 0, c.plan.Repetitions)
	for n := 0; c.clock.Since(start) < c.plan.TestDuration; n++ {
		if err := c.clock.Sleep(ctx, c.plan.Settle); err != nil {
			return nil, err
		}

		reading, err := c.read(ctx)
		if err != nil {
			return nil, err
		}
		if n < c.plan.Repetitions {
			ramp = append(ramp, reading.Value)
			continue
		}

		sample := StabilitySample{
			Stage:     stage,
			Voltage:   v,
			Elapsed:   c.clock.Since(start),
			Current:   reading.Value,
			Timestamp: reading.Timestamp,
		}
		c.addStabilitySample(ctx, sample)
	}
	c.logger.Info("stability test finished", "voltage", v, "ramp_samples", len(ramp))

	return ramp, nil
}

func (c *Controller) read(ctx context.Context) (scpi.Reading, error) {
	reading, err := c.sensor.ReadValue(ctx, scpi.Read, c.cfg.unit)
	if err != nil {
		return scpi.Reading{}, err
	}
	c.cfg.metrics.incReadingCount()

	return reading, nil
}

func (c *Controller) addStabilitySample(ctx context.Context, sample StabilitySample) {
	c.mu.Lock()
	c.stability = append(c.stability, sample)
	c.status.StabilitySamples++
	c.mu.Unlock()

	c.sinkCall("add stability sample", func(s Sink) error { return s.AddStabilitySample(ctx, c.cfg.runID, sample) })
}

// abort performs the best-effort ramp-down, then moves to StateAborted.
// Secondary errors are logged.
func (c *Controller) abort(ctx context.Context, cause error) {
	c.cfg.metrics.incAbortCount()
	c.logger.Error("aborting scan", "state", c.states.State(), "error", cause)

	cur := c.states.State()
	if c.plan.RampDown && c.verified && cur != StateRampDown && CanTransition(cur, StateRampDown) {
		if err := c.states.To(StateRampDown); err == nil {
			if err := c.rampDown(ctx); err != nil {
				c.logger.Warn("ramp-down after abort incomplete", "error", err)
			}
		}
	}

	if err := c.states.To(StateAborted); err != nil {
		c.logger.Warn("failed to enter aborted state", "error", err)
	}
}

// rampDown walks the source over RampDownSequence of the applied voltages,
// waiting the settle time after each step, and ends at 0 V. It runs detached
// from ctx cancellation and continues past failed steps.
func (c *Controller) rampDown(ctx context.Context) error {
	dctx := context.WithoutCancel(ctx)

	seq := RampDownSequence(c.applied)
	if seq[len(seq)-1] != 0 {
		seq = append(seq, 0)
	}
	c.logger.Info("ramping down", "sequence", seq)

	var errs []error
	for _, v := range seq {
		c.setStage(-1, v)
		if err := c.source.Send(dctx, scpi.SetVoltage(v)); err != nil {
			c.logger.Warn("ramp-down step failed", "voltage", v, "error", err)
			errs = append(errs, err)

			continue
		}
		if err := c.clock.Sleep(dctx, c.plan.Settle); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("ramp-down: %w", errors.Join(errs...))
	}

	return nil
}

// teardown closes both instruments once.
func (c *Controller) teardown(ctx context.Context) {
	c.closeOnce.Do(func() {
		for _, inst := range []Instrument{c.source, c.sensor} {
			if err := inst.Close(ctx); err != nil {
				c.logger.Warn("failed to close instrument", "role", inst.Role(), "error", err)
			}
		}
	})
}

func (c *Controller) sinkCall(op string, fn func(Sink) error) {
	if c.cfg.sink == nil {
		return
	}
	if err := fn(c.cfg.sink); err != nil {
		c.cfg.metrics.incSinkErrCount()
		c.logger.Warn("sink failed", "op", op, "error", err)
	}
}
