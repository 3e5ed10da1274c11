package gpib

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/arloliu/go-ivscan/logger"
)

// Control characters escaped in data sent through a Prologix controller.
const (
	esc = 0x1B
	cr  = '\r'
	lf  = '\n'
)

// PrologixTransport drives one instrument through a Prologix-protocol GPIB
// controller in controller mode.
//
// Controller commands start with "++" and end with LF. Instrument data is sent
// with CR, LF, ESC and '+' escaped by ESC, followed by an unescaped LF that
// ends the controller line. The controller is configured with "++auto 0", so
// every Read explicitly requests the response with "++read eoi".
//
// This type is NOT goroutine-safe.
type PrologixTransport struct {
	dial   Dialer
	cfg    *PrologixConfig
	logger logger.Logger

	port     Port
	addr     Address
	addrLine string
	version  string
}

var _ Transport = (*PrologixTransport)(nil)

// NewPrologixTransport creates a transport that opens its controller with dial.
func NewPrologixTransport(dial Dialer, opts ...PrologixOption) (*PrologixTransport, error) {
	if dial == nil {
		return nil, errors.New("gpib: dialer is nil")
	}

	cfg, err := NewPrologixConfig(opts...)
	if err != nil {
		return nil, err
	}

	return &PrologixTransport{
		dial:   dial,
		cfg:    cfg,
		logger: cfg.logger.With("component", "prologix"),
	}, nil
}

// Version returns the controller version string read during Open, if any.
func (t *PrologixTransport) Version() string { return t.version }

// Address returns the address passed to the last successful Open.
func (t *PrologixTransport) Address() Address { return t.addr }

// Open validates addr, connects to the controller and addresses the instrument.
func (t *PrologixTransport) Open(ctx context.Context, addr Address) error {
	if err := addr.Validate(); err != nil {
		return err
	}

	if t.port != nil {
		_ = t.Close()
	}

	port, err := t.dial(ctx)
	if err != nil {
		var initErr *DeviceInitError
		if errors.As(err, &initErr) {
			return initErr
		}

		return &DeviceInitError{Code: CodeDialFailed, Err: err}
	}

	if err := port.SetReadTimeout(t.cfg.readTimeout); err != nil {
		_ = port.Close()
		return &DeviceInitError{Code: CodeConfigureFailed, Err: err}
	}
	t.port = port

	if err := t.configure(addr); err != nil {
		_ = port.Close()
		t.port = nil

		return err
	}
	t.addr = addr
	t.logger.Debug("instrument addressed", "address", addr.String(), "version", t.version)

	return nil
}

func (t *PrologixTransport) configure(addr Address) error {
	adapterTimeout := t.cfg.readTimeout
	if adapterTimeout > maxAdapterReadTimeout {
		adapterTimeout = maxAdapterReadTimeout
	}

	setup := []string{
		"++mode 1",
		"++auto 0",
		"++eoi 1",
		"++eos 3",
		fmt.Sprintf("++read_tmo_ms %d", adapterTimeout.Milliseconds()),
	}
	for _, line := range setup {
		if err := t.writeLine(line); err != nil {
			return &DeviceInitError{Code: CodeConfigureFailed, Err: fmt.Errorf("%s: %w", line, err)}
		}
	}

	if t.cfg.versionCheck {
		if err := t.writeLine("++ver"); err != nil {
			return &DeviceInitError{Code: CodeNoController, Err: err}
		}
		buf := make([]byte, 128)
		n, err := t.readResponse(buf, lf)
		if err != nil {
			return &DeviceInitError{Code: CodeNoController, Err: fmt.Errorf("no reply to ++ver: %w", err)}
		}
		t.version = strings.TrimSpace(string(buf[:n]))
	}

	addrLine := fmt.Sprintf("++addr %d", addr.Primary)
	if addr.HasSecondary() {
		addrLine = fmt.Sprintf("++addr %d %d", addr.Primary, secondaryBase+int(addr.Secondary))
	}
	if err := t.writeLine(addrLine); err != nil {
		return &DeviceInitError{Code: CodeConfigureFailed, Err: err}
	}
	t.addrLine = addrLine
	if tr, ok := t.port.(addressTracker); ok {
		tr.setLastAddress(addrLine)
	}

	return nil
}

// readdress selects this transport's instrument again when the controller is
// shared and another transport addressed a different one.
func (t *PrologixTransport) readdress() error {
	tr, ok := t.port.(addressTracker)
	if !ok || tr.lastAddress() == t.addrLine {
		return nil
	}

	if err := t.writeLine(t.addrLine); err != nil {
		return err
	}
	tr.setLastAddress(t.addrLine)

	return nil
}

// Write sends data to the addressed instrument.
func (t *PrologixTransport) Write(data []byte) error {
	if t.port == nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, ErrNotOpen)
	}

	if err := t.readdress(); err != nil {
		return fmt.Errorf("%w: address instrument: %w", ErrSendFailed, err)
	}
	if err := t.writeAll(escape(data)); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	return nil
}

// Read requests the instrument response and reads it into buf, up to and
// including the terminator.
func (t *PrologixTransport) Read(buf []byte) (int, error) {
	if t.port == nil {
		return 0, fmt.Errorf("%w: %w", ErrReadFailed, ErrNotOpen)
	}

	if err := t.readdress(); err != nil {
		return 0, fmt.Errorf("%w: address instrument: %w", ErrReadFailed, err)
	}
	if err := t.writeLine("++read eoi"); err != nil {
		return 0, fmt.Errorf("%w: request read: %w", ErrReadFailed, err)
	}

	n, err := t.readResponse(buf, t.cfg.terminator)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrReadFailed, err)
	}

	return n, nil
}

// Clear sends a selected device clear to the addressed instrument.
func (t *PrologixTransport) Clear() error {
	if t.port == nil {
		return fmt.Errorf("%w: %w", ErrClearFailed, ErrNotOpen)
	}

	if err := t.readdress(); err != nil {
		return fmt.Errorf("%w: address instrument: %w", ErrClearFailed, err)
	}
	if err := t.writeLine("++clr"); err != nil {
		return fmt.Errorf("%w: %w", ErrClearFailed, err)
	}

	return nil
}

// Close returns the instrument to local control and closes the controller port.
func (t *PrologixTransport) Close() error {
	if t.port == nil {
		return nil
	}

	if err := t.readdress(); err != nil {
		t.logger.Warn("failed to address instrument", "address", t.addr.String(), "error", err)
	}
	if err := t.writeLine("++loc"); err != nil {
		t.logger.Warn("failed to return instrument to local", "address", t.addr.String(), "error", err)
	}
	if err := t.port.Close(); err != nil {
		t.logger.Warn("failed to close controller port", "address", t.addr.String(), "error", err)
	}
	t.port = nil

	return nil
}

// --- Low-level I/O helpers ---

// writeLine writes a controller command followed by LF.
func (t *PrologixTransport) writeLine(line string) error {
	return t.writeAll([]byte(line + "\n"))
}

// writeAll writes all bytes in data to the port.
func (t *PrologixTransport) writeAll(data []byte) error {
	for written := 0; written < len(data); {
		n, err := t.port.Write(data[written:])
		written += n

		if err != nil {
			return err
		}
	}

	return nil
}

// readResponse reads into buf until term is received.
//
// A read timeout with no data is an error. A timeout after partial data
// returns what was read, since the controller stops on EOI even when the
// instrument sends no terminator. Filling buf without seeing term is a
// malformed transfer.
func (t *PrologixTransport) readResponse(buf []byte, term byte) (int, error) {
	read := 0
	for read < len(buf) {
		n, err := t.port.Read(buf[read:])
		read += n

		if err != nil {
			return read, err
		}
		if n == 0 {
			if read == 0 {
				return 0, fmt.Errorf("timeout after %v", t.cfg.readTimeout)
			}

			return read, nil
		}
		if buf[read-1] == term {
			return read, nil
		}
	}

	return read, fmt.Errorf("response exceeds %d byte buffer", len(buf))
}

// escape prefixes CR, LF, ESC and '+' with ESC and appends the unescaped LF
// that terminates the controller line.
func escape(data []byte) []byte {
	out := make([]byte, 0, len(data)+8)
	for _, b := range data {
		switch b {
		case cr, lf, esc, '+':
			out = append(out, esc)
		}
		out = append(out, b)
	}

	return append(out, lf)
}
