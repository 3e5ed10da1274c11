package messenger

import (
	"errors"
	"fmt"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"

	"github.com/arloliu/go-ivscan/internal/clock"
	"github.com/arloliu/go-ivscan/logger"
)

// Defaults and limits.
const (
	DefaultAckDelay       = 200 * time.Millisecond
	MaxAckDelay           = 10 * time.Second
	DefaultTerminator     = '\n'
	DefaultReadBufferSize = 1024
	MinReadBufferSize     = 16
	MaxReadBufferSize     = 1 << 20
)

// Config holds the configuration of a Messenger.
type Config struct {
	ackDelay       time.Duration
	terminator     byte
	readBufferSize int
	encoding       encoding.Encoding
	clock          clock.Clock
	logger         logger.Logger
}

// NewConfig creates a configuration with defaults and applies opts in order.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		ackDelay:       DefaultAckDelay,
		terminator:     DefaultTerminator,
		readBufferSize: DefaultReadBufferSize,
		encoding:       charmap.ISO8859_1,
		clock:          clock.Real(),
		logger:         logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// AckDelay returns the wait between writing a query and reading its response.
func (cfg *Config) AckDelay() time.Duration { return cfg.ackDelay }

// Terminator returns the byte appended to commands and splitting response lines.
func (cfg *Config) Terminator() byte { return cfg.terminator }

// ReadBufferSize returns the size of the response buffer.
func (cfg *Config) ReadBufferSize() int { return cfg.readBufferSize }

// Clock returns the clock used for the ack delay.
func (cfg *Config) Clock() clock.Clock { return cfg.clock }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// Option is a functional option for configuring a Messenger.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithAckDelay sets the wait between a query and its read, in [0, 10s].
// Default 200ms.
func WithAckDelay(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 || d > MaxAckDelay {
			return fmt.Errorf("messenger: ack delay %v out of range [0, %v]", d, MaxAckDelay)
		}
		cfg.ackDelay = d

		return nil
	})
}

// WithTerminator sets the line terminator. Default '\n'.
func WithTerminator(b byte) Option {
	return optFunc(func(cfg *Config) error {
		if b == 0 {
			return errors.New("messenger: terminator must not be NUL")
		}
		cfg.terminator = b

		return nil
	})
}

// WithReadBufferSize sets the response buffer size, in [16, 1MiB].
// Default 1024.
func WithReadBufferSize(size int) Option {
	return optFunc(func(cfg *Config) error {
		if size < MinReadBufferSize || size > MaxReadBufferSize {
			return fmt.Errorf("messenger: read buffer size %d out of range [%d, %d]", size, MinReadBufferSize, MaxReadBufferSize)
		}
		cfg.readBufferSize = size

		return nil
	})
}

// WithEncoding sets the character encoding of the wire. Default ISO-8859-1.
func WithEncoding(enc encoding.Encoding) Option {
	return optFunc(func(cfg *Config) error {
		if enc == nil {
			return errors.New("messenger: encoding is nil")
		}
		cfg.encoding = enc

		return nil
	})
}

// WithClock sets the clock used for the ack delay.
func WithClock(c clock.Clock) Option {
	return optFunc(func(cfg *Config) error {
		if c == nil {
			return errors.New("messenger: clock is nil")
		}
		cfg.clock = c

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("messenger: logger is nil")
		}
		cfg.logger = l

		return nil
	})
}
