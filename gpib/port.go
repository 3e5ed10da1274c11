package gpib

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"go.bug.st/serial"
)

// Port is the byte stream to a bus controller.
//
// Read returns (0, nil) when the read timeout expires without data, which is
// the behaviour of go.bug.st/serial ports; ConnPort adapts net.Conn to it.
type Port interface {
	io.ReadWriteCloser
	SetReadTimeout(t time.Duration) error
}

// Dialer opens the Port to a bus controller.
type Dialer func(ctx context.Context) (Port, error)

// Codes reported in DeviceInitError when the failure does not come with a
// backend-specific code.
const (
	CodeDialFailed      = -1
	CodeConfigureFailed = -2
	CodeNoController    = -3
)

// DefaultBaudRate is the baud rate of Prologix GPIB-USB controllers. The USB
// CDC interface ignores it, but the serial driver requires one.
const DefaultBaudRate = 115200

// SerialDialer returns a Dialer for a controller attached to a serial port,
// e.g. "/dev/ttyUSB0" or "COM3".
func SerialDialer(portName string, baudRate int) Dialer {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}

	return func(ctx context.Context) (Port, error) {
		if err := ctx.Err(); err != nil {
			return nil, &DeviceInitError{Code: CodeDialFailed, Err: err}
		}

		mode := &serial.Mode{
			BaudRate: baudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		p, err := serial.Open(portName, mode)
		if err != nil {
			return nil, &DeviceInitError{Code: serialErrorCode(err), Err: fmt.Errorf("open serial port %s: %w", portName, err)}
		}

		return p, nil
	}
}

func serialErrorCode(err error) int {
	var portErr *serial.PortError
	if errors.As(err, &portErr) {
		return int(portErr.Code())
	}

	return CodeDialFailed
}

// TCPDialer returns a Dialer for a controller reachable over TCP, such as the
// Prologix GPIB-ETHERNET on port 1234.
func TCPDialer(host string, port int) Dialer {
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	return func(ctx context.Context) (Port, error) {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, &DeviceInitError{Code: CodeDialFailed, Err: fmt.Errorf("dial %s: %w", addr, err)}
		}

		return NewConnPort(conn), nil
	}
}

// ConnPort adapts a net.Conn to the Port interface.
type ConnPort struct {
	conn    net.Conn
	timeout time.Duration
}

var _ Port = (*ConnPort)(nil)

// NewConnPort wraps conn.
func NewConnPort(conn net.Conn) *ConnPort {
	return &ConnPort{conn: conn}
}

// SetReadTimeout sets the timeout applied to every subsequent Read.
// Zero disables the timeout.
func (p *ConnPort) SetReadTimeout(t time.Duration) error {
	p.timeout = t
	return nil
}

// Read reads from the connection. A read timeout returns (0, nil).
func (p *ConnPort) Read(b []byte) (int, error) {
	if p.timeout > 0 {
		if err := p.conn.SetReadDeadline(time.Now().Add(p.timeout)); err != nil {
			return 0, err
		}
	}

	n, err := p.conn.Read(b)
	var netErr net.Error
	if err != nil && errors.As(err, &netErr) && netErr.Timeout() {
		return n, nil
	}

	return n, err
}

func (p *ConnPort) Write(b []byte) (int, error) { return p.conn.Write(b) }

func (p *ConnPort) Close() error { return p.conn.Close() }
