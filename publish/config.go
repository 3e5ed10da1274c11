package publish

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-ivscan/internal/clock"
	"github.com/arloliu/go-ivscan/logger"
)

const (
	// DefaultChannel is the Pub/Sub channel events are published on.
	DefaultChannel = "ivscan"
	// DefaultListLen is the number of events kept per run list.
	DefaultListLen = 1000
	// DefaultKeyPrefix prefixes the per-run list keys.
	DefaultKeyPrefix = "ivscan:run:"
)

type config struct {
	channel   string
	keyPrefix string
	listLen   int64
	clock     clock.Clock
	logger    logger.Logger
}

// Option is a functional option for configuring a RedisPublisher.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

func newConfig(opts ...Option) (*config, error) {
	cfg := &config{
		channel:   DefaultChannel,
		keyPrefix: DefaultKeyPrefix,
		listLen:   DefaultListLen,
		clock:     clock.Real(),
		logger:    logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// WithChannel sets the Pub/Sub channel. Default "ivscan".
func WithChannel(channel string) Option {
	return optFunc(func(cfg *config) error {
		if channel == "" {
			return errors.New("publish: empty channel")
		}
		cfg.channel = channel

		return nil
	})
}

// WithKeyPrefix sets the prefix of the per-run list keys. Default "ivscan:run:".
func WithKeyPrefix(prefix string) Option {
	return optFunc(func(cfg *config) error {
		cfg.keyPrefix = prefix
		return nil
	})
}

// WithListLen sets the number of events kept per run list. Zero disables the
// lists. Default 1000.
func WithListLen(n int64) Option {
	return optFunc(func(cfg *config) error {
		if n < 0 {
			return fmt.Errorf("publish: list length %d < 0", n)
		}
		cfg.listLen = n

		return nil
	})
}

// WithClock sets the clock stamping events.
func WithClock(c clock.Clock) Option {
	return optFunc(func(cfg *config) error {
		if c == nil {
			return errors.New("publish: clock is nil")
		}
		cfg.clock = c

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return errors.New("publish: logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
