package gpib

import (
	"context"
	"fmt"
	"strings"
)

// Responder produces the simulated instrument reply to one command.
type Responder interface {
	// Respond handles command written to addr. When ok is true, reply is
	// queued for the next Read.
	Respond(addr Address, command string) (reply string, ok bool)
}

// ResponderFunc adapts a function to the Responder interface.
type ResponderFunc func(addr Address, command string) (string, bool)

func (f ResponderFunc) Respond(addr Address, command string) (string, bool) { return f(addr, command) }

// SimTransport is an in-memory Transport replaying the replies of a
// Responder. It records every write and supports fault injection, which makes
// it the test seam for the upper layers.
//
// This type is NOT goroutine-safe.
type SimTransport struct {
	responder  Responder
	terminator byte

	addr    Address
	open    bool
	local   bool
	pending []string
	last    string

	writes        []string
	hardwareOpens int
	closes        int
	clears        int

	openFailCode *int
	failWrite    map[string]bool
	failRead     map[string]bool
	failClear    bool
}

var _ Transport = (*SimTransport)(nil)

// NewSimTransport creates a simulator answering through r.
func NewSimTransport(r Responder) *SimTransport {
	return &SimTransport{
		responder:  r,
		terminator: DefaultTerminator,
		failWrite:  make(map[string]bool),
		failRead:   make(map[string]bool),
	}
}

// FailOpen makes the next Open fail with a DeviceInitError carrying code.
func (s *SimTransport) FailOpen(code int) *SimTransport {
	s.openFailCode = &code
	return s
}

// FailWriteOn makes every write of command fail.
func (s *SimTransport) FailWriteOn(command string) *SimTransport {
	s.failWrite[command] = true
	return s
}

// FailReadOn makes the read following command fail.
func (s *SimTransport) FailReadOn(command string) *SimTransport {
	s.failRead[command] = true
	return s
}

// FailClear makes Clear fail.
func (s *SimTransport) FailClear() *SimTransport {
	s.failClear = true
	return s
}

func (s *SimTransport) Open(ctx context.Context, addr Address) error {
	if err := addr.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &DeviceInitError{Code: CodeDialFailed, Err: err}
	}

	s.hardwareOpens++
	if s.openFailCode != nil {
		code := *s.openFailCode
		s.openFailCode = nil

		return &DeviceInitError{Code: code, Err: fmt.Errorf("simulated open failure at %s", addr)}
	}

	s.addr = addr
	s.open = true
	s.local = false
	s.pending = nil

	return nil
}

func (s *SimTransport) Write(data []byte) error {
	if !s.open {
		return fmt.Errorf("%w: %w", ErrSendFailed, ErrNotOpen)
	}

	command := strings.TrimRight(string(data), "\r\n")
	s.writes = append(s.writes, command)
	s.last = command

	if s.failWrite[command] {
		return fmt.Errorf("%w: simulated write failure", ErrSendFailed)
	}

	if s.responder == nil {
		return nil
	}
	if reply, ok := s.responder.Respond(s.addr, command); ok {
		if !strings.HasSuffix(reply, string(s.terminator)) {
			reply += string(s.terminator)
		}
		s.pending = append(s.pending, reply)
	}

	return nil
}

func (s *SimTransport) Read(buf []byte) (int, error) {
	if !s.open {
		return 0, fmt.Errorf("%w: %w", ErrReadFailed, ErrNotOpen)
	}
	if s.failRead[s.last] {
		return 0, fmt.Errorf("%w: simulated read failure after %q", ErrReadFailed, s.last)
	}
	if len(s.pending) == 0 {
		return 0, fmt.Errorf("%w: timeout, no response pending", ErrReadFailed)
	}

	reply := s.pending[0]
	s.pending = s.pending[1:]
	if len(reply) > len(buf) {
		return 0, fmt.Errorf("%w: response exceeds %d byte buffer", ErrReadFailed, len(buf))
	}

	return copy(buf, reply), nil
}

func (s *SimTransport) Clear() error {
	if !s.open {
		return fmt.Errorf("%w: %w", ErrClearFailed, ErrNotOpen)
	}
	if s.failClear {
		return fmt.Errorf("%w: simulated clear failure", ErrClearFailed)
	}

	s.clears++
	s.pending = nil

	return nil
}

func (s *SimTransport) Close() error {
	if !s.open {
		return nil
	}

	s.open = false
	s.local = true
	s.closes++

	return nil
}

// Writes returns every command written, terminator stripped, in order.
func (s *SimTransport) Writes() []string {
	out := make([]string, len(s.writes))
	copy(out, s.writes)

	return out
}

// CountWrites returns how many times command was written.
func (s *SimTransport) CountWrites(command string) int {
	count := 0
	for _, w := range s.writes {
		if w == command {
			count++
		}
	}

	return count
}

// HardwareOpens returns the number of Open calls that passed address validation.
func (s *SimTransport) HardwareOpens() int { return s.hardwareOpens }

// Closes returns the number of effective Close calls.
func (s *SimTransport) Closes() int { return s.closes }

// Clears returns the number of successful Clear calls.
func (s *SimTransport) Clears() int { return s.clears }

// IsOpen reports whether the transport is open.
func (s *SimTransport) IsOpen() bool { return s.open }

// IsLocal reports whether the instrument was returned to local by Close.
func (s *SimTransport) IsLocal() bool { return s.local }

// Address returns the address of the last successful Open.
func (s *SimTransport) Address() Address { return s.addr }

// ScriptResponder replies with canned lines per command. Queued replies are
// consumed first; afterwards the sticky reply set with Set is used.
type ScriptResponder struct {
	queued map[string][]string
	sticky map[string]string
}

var _ Responder = (*ScriptResponder)(nil)

// NewScriptResponder creates an empty script.
func NewScriptResponder() *ScriptResponder {
	return &ScriptResponder{
		queued: make(map[string][]string),
		sticky: make(map[string]string),
	}
}

// Queue appends one-shot replies for command.
func (s *ScriptResponder) Queue(command string, replies ...string) *ScriptResponder {
	s.queued[command] = append(s.queued[command], replies...)
	return s
}

// Set sets the reply used for command once its queue is empty.
func (s *ScriptResponder) Set(command, reply string) *ScriptResponder {
	s.sticky[command] = reply
	return s
}

func (s *ScriptResponder) Respond(_ Address, command string) (string, bool) {
	if q := s.queued[command]; len(q) > 0 {
		s.queued[command] = q[1:]
		return q[0], true
	}

	reply, ok := s.sticky[command]

	return reply, ok
}
