// Package device models one bench instrument: a role, a set of command lists
// and a messenger that owns the bus connection.
//
// The lifecycle is Open (which resets the instrument), Initialise, any number
// of reads, then Close, which sends the closing commands exactly once. A
// Device is NOT goroutine-safe.
package device

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/arloliu/go-ivscan/gpib"
	"github.com/arloliu/go-ivscan/logger"
	"github.com/arloliu/go-ivscan/messenger"
	"github.com/arloliu/go-ivscan/scpi"
)

// Device is an instrument with a role and its command lists.
type Device struct {
	role     Role
	commands CommandSet
	msg      *messenger.Messenger
	cfg      *config
	logger   logger.Logger

	closeOnce sync.Once
	closed    bool
}

// Open connects to the instrument at addr through transport and resets it.
// If the reset fails the transport is closed and no Device is returned.
func Open(ctx context.Context, role Role, transport gpib.Transport, addr gpib.Address, commands CommandSet, opts ...Option) (*Device, error) {
	cfg, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}

	log := cfg.logger.With("role", string(role), "address", addr.String())
	msgOpts := append([]messenger.Option{messenger.WithLogger(cfg.logger)}, cfg.messengerOpts...)

	msg, err := messenger.New(ctx, transport, addr, msgOpts...)
	if err != nil {
		return nil, &CommandError{Role: role, Command: "open " + addr.String(), Err: err}
	}

	if err := msg.Send(ctx, scpi.Reset); err != nil {
		_ = msg.Close()
		return nil, &CommandError{Role: role, Command: scpi.Reset, Err: err}
	}
	log.Debug("device opened")

	return &Device{
		role:     role,
		commands: commands,
		msg:      msg,
		cfg:      cfg,
		logger:   log,
	}, nil
}

// Role returns the device role.
func (d *Device) Role() Role { return d.role }

// Address returns the bus address.
func (d *Device) Address() gpib.Address { return d.msg.Address() }

// Commands returns the command lists.
func (d *Device) Commands() CommandSet { return d.commands }

// LastCommand returns the last command sent, for diagnostics.
func (d *Device) LastCommand() string { return d.msg.LastCommand() }

// Metrics returns the counters of the underlying messenger.
func (d *Device) Metrics() *messenger.Metrics { return d.msg.Metrics() }

// Grammar returns the grammar used by ReadValue.
func (d *Device) Grammar() scpi.Grammar { return d.cfg.grammar }

// Initialise sends the configuration commands, then the operation commands.
//
// It stops at the first failure. Commands sent before the failure stay
// applied; there is no rollback.
func (d *Device) Initialise(ctx context.Context) error {
	if d.closed {
		return &CommandError{Role: d.role, Command: "initialise", Err: ErrClosed}
	}

	for _, cmds := range [][]string{d.commands.Config, d.commands.Operation} {
		if err := d.msg.SendBatch(ctx, cmds); err != nil {
			var batchErr *messenger.BatchError
			if errors.As(err, &batchErr) {
				return &CommandError{Role: d.role, Command: batchErr.Command, Err: batchErr.Err}
			}

			return &CommandError{Role: d.role, Command: d.msg.LastCommand(), Err: err}
		}
	}
	d.logger.Info("device initialised", "config_commands", len(d.commands.Config), "operation_commands", len(d.commands.Operation))

	return nil
}

// Send sends one command.
func (d *Device) Send(ctx context.Context, cmd string) error {
	if d.closed {
		return &CommandError{Role: d.role, Command: cmd, Err: ErrClosed}
	}
	if err := d.msg.Send(ctx, cmd); err != nil {
		return &CommandError{Role: d.role, Command: cmd, Err: err}
	}

	return nil
}

// Fetch sends a query and returns all response lines.
func (d *Device) Fetch(ctx context.Context, cmd string) ([]string, error) {
	if d.closed {
		return nil, &CommandError{Role: d.role, Command: cmd, Err: ErrClosed}
	}

	lines, err := d.msg.Fetch(ctx, cmd)
	if err != nil {
		return nil, &CommandError{Role: d.role, Command: cmd, Err: err}
	}

	return lines, nil
}

// Reset sends the reset command.
func (d *Device) Reset(ctx context.Context) error {
	return d.Send(ctx, scpi.Reset)
}

// Clear sends a selected device clear.
func (d *Device) Clear(ctx context.Context) error {
	if d.closed {
		return &CommandError{Role: d.role, Command: "clear", Err: ErrClosed}
	}
	if err := d.msg.Clear(ctx); err != nil {
		return &CommandError{Role: d.role, Command: "clear", Err: err}
	}

	return nil
}

// Identify queries the identification string. Multi-line replies are joined
// with "\n".
func (d *Device) Identify(ctx context.Context) (string, error) {
	lines, err := d.Fetch(ctx, scpi.Identify)
	if err != nil {
		return "", err
	}
	if len(lines) == 0 {
		return "", &CommandError{
			Role:    d.role,
			Command: scpi.Identify,
			Err:     &scpi.ParseError{Reason: "empty identification"},
		}
	}

	return strings.Join(lines, "\n"), nil
}

// ReadValue queries command, scpi.Read when empty, and decodes the single
// response line with the device grammar. When unit is not empty the value
// must carry that unit letter.
func (d *Device) ReadValue(ctx context.Context, command, unit string) (scpi.Reading, error) {
	if command == "" {
		command = scpi.Read
	}
	if d.closed {
		return scpi.Reading{}, &CommandError{Role: d.role, Command: command, Err: ErrClosed}
	}

	line, err := d.msg.FetchOne(ctx, command)
	if err != nil {
		cmdErr := &CommandError{Role: d.role, Command: command, Err: err}
		var perr *scpi.ParseError
		if errors.As(err, &perr) {
			cmdErr.Raw = perr.Input
		}

		return scpi.Reading{}, cmdErr
	}

	reading, err := scpi.ParseReading(line, unit, d.cfg.grammar)
	if err != nil {
		return scpi.Reading{}, &CommandError{Role: d.role, Command: command, Raw: line, Err: err}
	}

	return reading, nil
}

// Get sends a typed query to d; see messenger.Get for the answer grammar.
func Get[T messenger.Answer](ctx context.Context, d *Device, cmd string) (T, error) {
	var zero T
	if d.closed {
		return zero, &CommandError{Role: d.role, Command: cmd, Err: ErrClosed}
	}

	v, err := messenger.Get[T](ctx, d.msg, cmd)
	if err != nil {
		cmdErr := &CommandError{Role: d.role, Command: cmd, Err: err}
		var typeErr *scpi.InvalidResponseTypeError
		if errors.As(err, &typeErr) {
			cmdErr.Raw = typeErr.Raw
		}

		return zero, cmdErr
	}

	return v, nil
}

// Close sends the closing commands and closes the bus connection. Only the
// first call has an effect.
//
// Closing commands run under a context detached from ctx and bounded by the
// close timeout, so teardown completes after a cancelled scan. Individual
// failures are logged and do not stop the sequence. Close always returns nil.
func (d *Device) Close(ctx context.Context) error {
	d.closeOnce.Do(func() {
		d.closed = true

		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.closeTimeout)
		defer cancel()

		for _, cmd := range d.commands.Closing {
			if err := d.msg.Send(cctx, cmd); err != nil {
				d.logger.Warn("closing command failed", "command", cmd, "error", err)
			}
		}

		if err := d.msg.Close(); err != nil {
			d.logger.Warn("failed to close bus connection", "error", err)
		}
		d.logger.Debug("device closed", "closing_commands", len(d.commands.Closing))
	})

	return nil
}

// Closed reports whether Close was called.
func (d *Device) Closed() bool { return d.closed }
