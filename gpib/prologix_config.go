package gpib

import (
	"fmt"
	"time"

	"github.com/arloliu/go-ivscan/logger"
)

// Prologix defaults and limits.
const (
	DefaultReadTimeout = 3 * time.Second
	MinReadTimeout     = 10 * time.Millisecond
	MaxReadTimeout     = 60 * time.Second

	// maxAdapterReadTimeout is the upper bound of "++read_tmo_ms".
	maxAdapterReadTimeout = 3 * time.Second

	DefaultTerminator = '\n'
)

// PrologixConfig holds the configuration of a PrologixTransport.
type PrologixConfig struct {
	readTimeout  time.Duration
	terminator   byte
	versionCheck bool
	logger       logger.Logger
}

// NewPrologixConfig creates a configuration with defaults and applies opts in order.
func NewPrologixConfig(opts ...PrologixOption) (*PrologixConfig, error) {
	cfg := &PrologixConfig{
		readTimeout:  DefaultReadTimeout,
		terminator:   DefaultTerminator,
		versionCheck: true,
		logger:       logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// ReadTimeout returns the per-read timeout.
func (cfg *PrologixConfig) ReadTimeout() time.Duration { return cfg.readTimeout }

// Terminator returns the byte that ends an instrument response.
func (cfg *PrologixConfig) Terminator() byte { return cfg.terminator }

// VersionCheck reports whether Open probes the controller with "++ver".
func (cfg *PrologixConfig) VersionCheck() bool { return cfg.versionCheck }

// GetLogger returns the configured logger.
func (cfg *PrologixConfig) GetLogger() logger.Logger { return cfg.logger }

// PrologixOption is a functional option for configuring a PrologixConfig.
type PrologixOption interface {
	apply(*PrologixConfig) error
}

type prologixOptFunc func(*PrologixConfig) error

func (f prologixOptFunc) apply(cfg *PrologixConfig) error { return f(cfg) }

// WithReadTimeout sets the per-read timeout, in [10ms, 60s].
// The controller's own "++read_tmo_ms" is capped at 3s.
func WithReadTimeout(d time.Duration) PrologixOption {
	return prologixOptFunc(func(cfg *PrologixConfig) error {
		if d < MinReadTimeout || d > MaxReadTimeout {
			return fmt.Errorf("gpib: read timeout %v out of range [%v, %v]", d, MinReadTimeout, MaxReadTimeout)
		}
		cfg.readTimeout = d

		return nil
	})
}

// WithTerminator sets the byte that ends an instrument response. Default '\n'.
func WithTerminator(b byte) PrologixOption {
	return prologixOptFunc(func(cfg *PrologixConfig) error {
		cfg.terminator = b
		return nil
	})
}

// WithVersionCheck enables or disables the "++ver" probe during Open.
// Enabled by default.
func WithVersionCheck(enabled bool) PrologixOption {
	return prologixOptFunc(func(cfg *PrologixConfig) error {
		cfg.versionCheck = enabled
		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) PrologixOption {
	return prologixOptFunc(func(cfg *PrologixConfig) error {
		if l == nil {
			return fmt.Errorf("gpib: logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
