// Package messenger implements the command/response exchange with one bus
// instrument: write a command, wait the acknowledge delay, read the reply.
//
// The protocol has no pipelining and no ready signal, so a Messenger keeps at
// most one command outstanding and always waits the ack delay before reading.
// A Messenger is NOT goroutine-safe; it must have a single owner.
package messenger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/transform"

	"github.com/arloliu/go-ivscan/gpib"
	"github.com/arloliu/go-ivscan/logger"
	"github.com/arloliu/go-ivscan/scpi"
)

// BatchError reports the command of a batch that failed. Commands before
// Index were sent and are not rolled back.
type BatchError struct {
	Index   int
	Command string
	Err     error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("messenger: batch stopped at command %d (%q): %v", e.Index, e.Command, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Messenger sends commands to and fetches responses from one instrument.
type Messenger struct {
	transport gpib.Transport
	addr      gpib.Address
	cfg       *Config
	logger    logger.Logger
	buf       []byte

	lastCommand string
	metrics     Metrics
}

// New opens transport at addr and returns a Messenger using it.
//
// The address is validated before the transport touches any hardware. Open
// failures are returned unchanged (gpib.ErrAddressOutOfRange or a
// *gpib.DeviceInitError).
func New(ctx context.Context, transport gpib.Transport, addr gpib.Address, opts ...Option) (*Messenger, error) {
	if transport == nil {
		return nil, errors.New("messenger: transport is nil")
	}

	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	if err := transport.Open(ctx, addr); err != nil {
		return nil, err
	}

	return &Messenger{
		transport: transport,
		addr:      addr,
		cfg:       cfg,
		logger:    cfg.logger.With("address", addr.String()),
		buf:       make([]byte, cfg.readBufferSize),
	}, nil
}

// Address returns the instrument address.
func (m *Messenger) Address() gpib.Address { return m.addr }

// Config returns the messenger configuration.
func (m *Messenger) Config() *Config { return m.cfg }

// LastCommand returns the last command passed to Send, for diagnostics.
func (m *Messenger) LastCommand() string { return m.lastCommand }

// Metrics returns the messenger counters.
func (m *Messenger) Metrics() *Metrics { return &m.metrics }

// Send writes cmd followed by the terminator. Failures are *gpib.SendError.
// There is no retry.
func (m *Messenger) Send(ctx context.Context, cmd string) error {
	m.lastCommand = cmd

	if err := ctx.Err(); err != nil {
		return &gpib.SendError{Command: cmd, Err: err}
	}

	data, _, err := transform.Bytes(m.cfg.encoding.NewEncoder(), []byte(cmd))
	if err != nil {
		m.metrics.incSendErrCount()
		return &gpib.SendError{Command: cmd, Err: fmt.Errorf("encode: %w", err)}
	}
	data = append(data, m.cfg.terminator)

	if err := m.transport.Write(data); err != nil {
		m.metrics.incSendErrCount()
		m.logger.Debug("send failed", "command", cmd, "error", err)

		return &gpib.SendError{Command: cmd, Err: err}
	}
	m.metrics.incCommandSendCount(len(data))
	m.logger.Debug("command sent", "command", cmd)

	return nil
}

// SendBatch sends cmds in order and stops at the first failure, which is
// returned as *BatchError. The batch is not atomic.
func (m *Messenger) SendBatch(ctx context.Context, cmds []string) error {
	for i, cmd := range cmds {
		if err := m.Send(ctx, cmd); err != nil {
			return &BatchError{Index: i, Command: cmd, Err: err}
		}
	}

	return nil
}

// Fetch sends cmd, waits the ack delay and reads the response. The response
// is split into lines on the terminator, with trailing CR removed and the
// empty segment after a final terminator dropped.
//
// The wait returns early with ctx.Err() when ctx is done.
func (m *Messenger) Fetch(ctx context.Context, cmd string) ([]string, error) {
	if err := m.Send(ctx, cmd); err != nil {
		return nil, err
	}

	if err := m.cfg.clock.Sleep(ctx, m.cfg.ackDelay); err != nil {
		return nil, fmt.Errorf("messenger: waiting for %q: %w", cmd, err)
	}

	n, err := m.transport.Read(m.buf)
	if err != nil {
		m.metrics.incReadErrCount()
		return nil, fmt.Errorf("messenger: fetch %q: %w", cmd, err)
	}

	text, _, err := transform.Bytes(m.cfg.encoding.NewDecoder(), m.buf[:n])
	if err != nil {
		m.metrics.incReadErrCount()
		return nil, fmt.Errorf("messenger: fetch %q: %w: decode: %w", cmd, gpib.ErrReadFailed, err)
	}
	m.metrics.incFetchCount(n)

	lines := m.splitLines(string(text))
	m.logger.Debug("response fetched", "command", cmd, "lines", len(lines))

	return lines, nil
}

func (m *Messenger) splitLines(text string) []string {
	parts := strings.Split(text, string(m.cfg.terminator))
	if len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	for i, p := range parts {
		parts[i] = strings.TrimRight(p, "\r")
	}

	return parts
}

// FetchOne fetches cmd and requires exactly one response line.
func (m *Messenger) FetchOne(ctx context.Context, cmd string) (string, error) {
	lines, err := m.Fetch(ctx, cmd)
	if err != nil {
		return "", err
	}
	if len(lines) != 1 {
		return "", &scpi.ParseError{
			Input:  strings.Join(lines, "\n"),
			Reason: fmt.Sprintf("got %d response lines to %q, want 1", len(lines), cmd),
		}
	}

	return lines[0], nil
}

// Clear sends a selected device clear.
func (m *Messenger) Clear(_ context.Context) error {
	return m.transport.Clear()
}

// Close closes the transport. It is idempotent.
func (m *Messenger) Close() error {
	return m.transport.Close()
}

// Answer is the set of types a typed query can be decoded as.
type Answer interface {
	string | int | float64
}

// Get fetches cmd and decodes the single response line as T with the typed
// answer grammar:
//
//	string   word characters followed by "A"
//	int      digits followed by "A"
//	float64  digits and dots followed by "A"
//
// A response that is not exactly one line matches scpi.ErrMalformedResponse;
// a line that does not match the grammar is *scpi.InvalidResponseTypeError.
func Get[T Answer](ctx context.Context, m *Messenger, cmd string) (T, error) {
	var zero T

	line, err := m.FetchOne(ctx, cmd)
	if err != nil {
		return zero, err
	}

	var result any
	switch any(zero).(type) {
	case string:
		result, err = scpi.DecodeString(line)
	case int:
		result, err = scpi.DecodeInt(line)
	case float64:
		result, err = scpi.DecodeFloat(line)
	}
	if err != nil {
		m.metrics.incDecodeErrCount()
		return zero, err
	}

	v, _ := result.(T)

	return v, nil
}
