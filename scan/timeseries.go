package scan

import (
	"context"
	"fmt"

	"github.com/arloliu/go-ivscan/scpi"
)

// TimePoint is one reading of a time series.
type TimePoint struct {
	Timestamp uint64  `json:"timestamp"`
	Value     float64 `json:"value"`
}

// RunTimeSeries verifies and initialises both instruments, applies voltage,
// takes samples consecutive sensor readings and commands 0 V again. Every
// reading is also sent to the sink as a stability sample of stage 0.
//
// It shares the single-run rule and the abort behaviour of Run.
func (c *Controller) RunTimeSeries(ctx context.Context, voltage float64, samples int) ([]TimePoint, error) {
	if samples < 1 {
		return nil, fmt.Errorf("scan: samples %d < 1", samples)
	}

	result, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}

	var points []TimePoint
	err = c.prepare(ctx)
	if err == nil {
		points, err = c.timeSeries(ctx, voltage, samples)
	}
	if err == nil {
		if err = c.transition(StateRampDown); err == nil {
			c.setStage(-1, 0)
			if sendErr := c.source.Send(context.WithoutCancel(ctx), scpi.SetVoltage(0)); sendErr != nil {
				err = c.abortError(sendErr)
			}
		}
	}

	_, err = c.finish(ctx, result, err)

	return points, err
}

func (c *Controller) timeSeries(ctx context.Context, voltage float64, samples int) ([]TimePoint, error) {
	c.setStage(0, voltage)
	if err := c.source.Send(ctx, scpi.SetVoltage(voltage)); err != nil {
		return nil, c.abortError(err)
	}
	c.applied = append(c.applied, voltage)

	start := c.clock.Now()
	points := make([]TimePoint, 0, samples)
	for range samples {
		reading, err := c.read(ctx)
		if err != nil {
			return points, c.abortError(err)
		}
		points = append(points, TimePoint{Timestamp: reading.Timestamp, Value: reading.Value})

		c.addStabilitySample(ctx, StabilitySample{
			Stage:     0,
			Voltage:   voltage,
			Elapsed:   c.clock.Since(start),
			Current:   reading.Value,
			Timestamp: reading.Timestamp,
		})
	}
	c.logger.Info("time series finished", "voltage", voltage, "samples", len(points))

	return points, nil
}
