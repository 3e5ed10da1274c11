package device

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-ivscan/logger"
	"github.com/arloliu/go-ivscan/messenger"
	"github.com/arloliu/go-ivscan/scpi"
)

// DefaultCloseTimeout bounds the closing commands sent by Close.
const DefaultCloseTimeout = 5 * time.Second

type config struct {
	grammar       scpi.Grammar
	closeTimeout  time.Duration
	messengerOpts []messenger.Option
	logger        logger.Logger
}

// Option is a functional option for configuring a Device.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

func newConfig(opts ...Option) (*config, error) {
	cfg := &config{
		grammar:      scpi.DefaultGrammar,
		closeTimeout: DefaultCloseTimeout,
		logger:       logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// WithGrammar sets the grammar used by ReadValue. Default scpi.GrammarV1.
func WithGrammar(g scpi.Grammar) Option {
	return optFunc(func(cfg *config) error {
		if g.MinFields < 1 || g.MaxFields < g.MinFields {
			return fmt.Errorf("device: invalid grammar %q", g.Version)
		}
		cfg.grammar = g

		return nil
	})
}

// WithCloseTimeout bounds the closing commands sent by Close. Default 5s.
func WithCloseTimeout(d time.Duration) Option {
	return optFunc(func(cfg *config) error {
		if d <= 0 {
			return fmt.Errorf("device: close timeout %v must be positive", d)
		}
		cfg.closeTimeout = d

		return nil
	})
}

// WithMessengerOptions passes opts to the underlying messenger.
func WithMessengerOptions(opts ...messenger.Option) Option {
	return optFunc(func(cfg *config) error {
		cfg.messengerOpts = append(cfg.messengerOpts, opts...)
		return nil
	})
}

// WithLogger sets the logger of the device and of its messenger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return errors.New("device: logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
