package scan

import (
	"errors"

	"github.com/google/uuid"

	"github.com/arloliu/go-ivscan/internal/clock"
	"github.com/arloliu/go-ivscan/logger"
)

// DefaultUnit is the unit letter every sensor reading must carry.
const DefaultUnit = "A"

type config struct {
	sourceIdentity Identity
	sensorIdentity Identity
	runID          string
	unit           string
	sink           Sink
	metrics        *Metrics
	clock          clock.Clock
	logger         logger.Logger
	handlers       []StateChangeHandler
}

// Option is a functional option for configuring a Controller.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

func newConfig(opts ...Option) (*config, error) {
	cfg := &config{
		unit:   DefaultUnit,
		clock:  clock.Real(),
		logger: logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.sourceIdentity.Validate(); err != nil {
		return nil, errors.Join(errors.New("scan: source identity"), err)
	}
	if err := cfg.sensorIdentity.Validate(); err != nil {
		return nil, errors.Join(errors.New("scan: sensor identity"), err)
	}
	if cfg.runID == "" {
		cfg.runID = uuid.NewString()
	}
	if cfg.metrics == nil {
		cfg.metrics = &Metrics{}
	}

	return cfg, nil
}

// WithSourceIdentity sets the expected identity of the voltage source. Required.
func WithSourceIdentity(id Identity) Option {
	return optFunc(func(cfg *config) error {
		cfg.sourceIdentity = id
		return nil
	})
}

// WithSensorIdentity sets the expected identity of the current sensor. Required.
func WithSensorIdentity(id Identity) Option {
	return optFunc(func(cfg *config) error {
		cfg.sensorIdentity = id
		return nil
	})
}

// WithRunID sets the run identifier. Default: a random UUID.
func WithRunID(id string) Option {
	return optFunc(func(cfg *config) error {
		if id == "" {
			return errors.New("scan: empty run id")
		}
		cfg.runID = id

		return nil
	})
}

// WithUnit sets the unit letter required on sensor readings. Default "A".
func WithUnit(unit string) Option {
	return optFunc(func(cfg *config) error {
		cfg.unit = unit
		return nil
	})
}

// WithSink sets the sink receiving points and stability samples.
func WithSink(s Sink) Option {
	return optFunc(func(cfg *config) error {
		cfg.sink = s
		return nil
	})
}

// WithMetrics sets the counters updated by the controller, so that several
// runs can share them.
func WithMetrics(m *Metrics) Option {
	return optFunc(func(cfg *config) error {
		if m == nil {
			return errors.New("scan: metrics is nil")
		}
		cfg.metrics = m

		return nil
	})
}

// WithClock sets the clock used for settle waits and elapsed time.
func WithClock(c clock.Clock) Option {
	return optFunc(func(cfg *config) error {
		if c == nil {
			return errors.New("scan: clock is nil")
		}
		cfg.clock = c

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return errors.New("scan: logger is nil")
		}
		cfg.logger = l

		return nil
	})
}

// WithStateChangeHandler adds a handler invoked on every state change.
func WithStateChangeHandler(h StateChangeHandler) Option {
	return optFunc(func(cfg *config) error {
		cfg.handlers = append(cfg.handlers, h)
		return nil
	})
}
