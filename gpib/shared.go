package gpib

import (
	"context"
	"sync"
	"time"
)

// SharedDialer lets several transports use one bus controller, which is how a
// source and a sensor on the same GPIB bus are wired. The first dial opens the
// underlying port; later dials return handles to the same port. The port is
// closed when the last handle is closed.
//
// A PrologixTransport on a shared port re-sends "++addr" whenever another
// transport addressed a different instrument since its last command.
func SharedDialer(dial Dialer) Dialer {
	sc := &sharedConn{dial: dial}

	return sc.open
}

type sharedConn struct {
	dial Dialer

	mu       sync.Mutex
	port     Port
	refs     int
	lastAddr string
}

func (sc *sharedConn) open(ctx context.Context) (Port, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.port == nil {
		port, err := sc.dial(ctx)
		if err != nil {
			return nil, err
		}
		sc.port = port
		sc.lastAddr = ""
	}
	sc.refs++

	return &sharedPort{conn: sc}, nil
}

func (sc *sharedConn) release() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.refs--
	if sc.refs > 0 {
		return nil
	}

	err := sc.port.Close()
	sc.port = nil

	return err
}

// addressTracker is implemented by ports shared between transports.
type addressTracker interface {
	lastAddress() string
	setLastAddress(line string)
}

type sharedPort struct {
	conn   *sharedConn
	closed bool
}

var (
	_ Port           = (*sharedPort)(nil)
	_ addressTracker = (*sharedPort)(nil)
)

func (p *sharedPort) Read(b []byte) (int, error) { return p.conn.port.Read(b) }

func (p *sharedPort) Write(b []byte) (int, error) { return p.conn.port.Write(b) }

func (p *sharedPort) SetReadTimeout(t time.Duration) error { return p.conn.port.SetReadTimeout(t) }

func (p *sharedPort) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true

	return p.conn.release()
}

func (p *sharedPort) lastAddress() string {
	p.conn.mu.Lock()
	defer p.conn.mu.Unlock()

	return p.conn.lastAddr
}

func (p *sharedPort) setLastAddress(line string) {
	p.conn.mu.Lock()
	defer p.conn.mu.Unlock()

	p.conn.lastAddr = line
}
