package gpib

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testControllerVersion = "Prologix GPIB-USB Controller version 6.107"

// fakeAdapter plays the controller side of a Prologix connection.
type fakeAdapter struct {
	conn   net.Conn
	silent bool

	mu      sync.Mutex
	lines   []string
	raw     [][]byte
	replies []string

	done chan struct{}
}

func newFakeAdapter(t *testing.T, silent bool, replies ...string) (*fakeAdapter, Dialer) {
	t.Helper()

	client, server := net.Pipe()
	a := &fakeAdapter{conn: server, silent: silent, replies: replies, done: make(chan struct{})}
	go a.serve()

	t.Cleanup(func() {
		_ = client.Close()
		_ = server.Close()
	})

	dial := func(context.Context) (Port, error) { return NewConnPort(client), nil }

	return a, dial
}

func (a *fakeAdapter) serve() {
	defer close(a.done)

	r := bufio.NewReader(a.conn)
	var line, raw []byte
	escaped := false
	for {
		b, err := r.ReadByte()
		if err != nil {
			return
		}

		if escaped {
			line = append(line, b)
			raw = append(raw, b)
			escaped = false

			continue
		}
		if b == esc {
			raw = append(raw, b)
			escaped = true

			continue
		}
		if b != lf {
			line = append(line, b)
			raw = append(raw, b)

			continue
		}

		cmd := string(line)
		a.mu.Lock()
		a.lines = append(a.lines, cmd)
		a.raw = append(a.raw, raw)
		var reply string
		switch {
		case a.silent:
		case cmd == "++ver":
			reply = testControllerVersion + "\r\n"
		case cmd == "++read eoi" && len(a.replies) > 0:
			reply = a.replies[0]
			a.replies = a.replies[1:]
		}
		a.mu.Unlock()

		if reply != "" {
			if _, err := a.conn.Write([]byte(reply)); err != nil {
				return
			}
		}
		line, raw = nil, nil
	}
}

func (a *fakeAdapter) wait(t *testing.T) {
	t.Helper()

	select {
	case <-a.done:
	case <-time.After(2 * time.Second):
		t.Fatal("fake adapter did not finish")
	}
}

func (a *fakeAdapter) Lines() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]string(nil), a.lines...)
}

func (a *fakeAdapter) Raw() [][]byte {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([][]byte(nil), a.raw...)
}

func newTestPrologix(t *testing.T, dial Dialer, opts ...PrologixOption) *PrologixTransport {
	t.Helper()

	opts = append([]PrologixOption{WithReadTimeout(200 * time.Millisecond)}, opts...)
	tr, err := NewPrologixTransport(dial, opts...)
	require.NoError(t, err)

	return tr
}

func TestPrologixOpen_WireSequence(t *testing.T) {
	adapter, dial := newFakeAdapter(t, false)
	tr := newTestPrologix(t, dial)

	require.NoError(t, tr.Open(context.Background(), Address{Primary: 22}))
	assert.Equal(t, testControllerVersion, tr.Version())
	assert.Equal(t, Address{Primary: 22}, tr.Address())

	require.NoError(t, tr.Close())
	adapter.wait(t)

	assert.Equal(t, []string{
		"++mode 1",
		"++auto 0",
		"++eoi 1",
		"++eos 3",
		"++read_tmo_ms 200",
		"++ver",
		"++addr 22",
		"++loc",
	}, adapter.Lines())
}

func TestPrologixOpen_SecondaryAddress(t *testing.T) {
	adapter, dial := newFakeAdapter(t, false)
	tr := newTestPrologix(t, dial, WithVersionCheck(false))

	require.NoError(t, tr.Open(context.Background(), Address{Primary: 22, Secondary: 5}))
	require.NoError(t, tr.Close())
	adapter.wait(t)

	lines := adapter.Lines()
	require.Len(t, lines, 7)
	assert.Equal(t, "++addr 22 101", lines[5])
	assert.Empty(t, tr.Version())
}

func TestPrologixOpen_ReadTimeoutCappedOnAdapter(t *testing.T) {
	adapter, dial := newFakeAdapter(t, false)
	tr := newTestPrologix(t, dial, WithReadTimeout(10*time.Second), WithVersionCheck(false))

	require.NoError(t, tr.Open(context.Background(), Address{Primary: 1}))
	require.NoError(t, tr.Close())
	adapter.wait(t)

	assert.Contains(t, adapter.Lines(), "++read_tmo_ms 3000")
}

func TestPrologixOpen_NoController(t *testing.T) {
	_, dial := newFakeAdapter(t, true)
	tr := newTestPrologix(t, dial, WithReadTimeout(50*time.Millisecond))

	err := tr.Open(context.Background(), Address{Primary: 22})
	require.ErrorIs(t, err, ErrDeviceInitFailed)

	var initErr *DeviceInitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, CodeNoController, initErr.Code)
}

func TestPrologixOpen_DialErrorCode(t *testing.T) {
	tr := newTestPrologix(t, func(context.Context) (Port, error) {
		return nil, &DeviceInitError{Code: 2, Err: errors.New("port busy")}
	})

	err := tr.Open(context.Background(), Address{Primary: 22})
	require.ErrorIs(t, err, ErrDeviceInitFailed)

	var initErr *DeviceInitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, 2, initErr.Code)

	tr = newTestPrologix(t, func(context.Context) (Port, error) { return nil, errors.New("refused") })
	err = tr.Open(context.Background(), Address{Primary: 22})
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, CodeDialFailed, initErr.Code)
}

func TestPrologixWrite_Escaping(t *testing.T) {
	adapter, dial := newFakeAdapter(t, false)
	tr := newTestPrologix(t, dial, WithVersionCheck(false))

	require.NoError(t, tr.Open(context.Background(), Address{Primary: 24}))
	require.NoError(t, tr.Write([]byte(":SOUR:VOLT:LEV +50\n")))
	require.NoError(t, tr.Close())
	adapter.wait(t)

	lines := adapter.Lines()
	raw := adapter.Raw()
	require.Len(t, lines, 8)
	assert.Equal(t, ":SOUR:VOLT:LEV +50\n", lines[6])
	assert.Equal(t, []byte(":SOUR:VOLT:LEV \x1b+50\x1b\n"), raw[6])
}

func TestPrologixRead(t *testing.T) {
	adapter, dial := newFakeAdapter(t, false, "+1.234000E-06A,+1.000000E+02,+0.000000E+00\n")
	tr := newTestPrologix(t, dial, WithVersionCheck(false))

	require.NoError(t, tr.Open(context.Background(), Address{Primary: 22}))
	require.NoError(t, tr.Write([]byte(":READ?\n")))

	buf := make([]byte, 256)
	n, err := tr.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "+1.234000E-06A,+1.000000E+02,+0.000000E+00\n", string(buf[:n]))

	require.NoError(t, tr.Close())
	adapter.wait(t)
	assert.Equal(t, []string{":READ?\n", "++read eoi"}, adapter.Lines()[6:8])
}

func TestPrologixRead_Timeout(t *testing.T) {
	_, dial := newFakeAdapter(t, false)
	tr := newTestPrologix(t, dial, WithReadTimeout(50*time.Millisecond), WithVersionCheck(false))

	require.NoError(t, tr.Open(context.Background(), Address{Primary: 22}))

	_, err := tr.Read(make([]byte, 64))
	require.ErrorIs(t, err, ErrReadFailed)
}

func TestPrologixRead_BufferOverflow(t *testing.T) {
	_, dial := newFakeAdapter(t, false, "0123456789ABCDEF\n")
	tr := newTestPrologix(t, dial, WithVersionCheck(false))

	require.NoError(t, tr.Open(context.Background(), Address{Primary: 22}))

	_, err := tr.Read(make([]byte, 4))
	require.ErrorIs(t, err, ErrReadFailed)
	assert.Contains(t, err.Error(), "exceeds")
}

func TestPrologixClear(t *testing.T) {
	adapter, dial := newFakeAdapter(t, false)
	tr := newTestPrologix(t, dial, WithVersionCheck(false))

	require.ErrorIs(t, tr.Clear(), ErrClearFailed)

	require.NoError(t, tr.Open(context.Background(), Address{Primary: 22}))
	require.NoError(t, tr.Clear())
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())
	adapter.wait(t)

	lines := adapter.Lines()
	assert.Equal(t, []string{"++clr", "++loc"}, lines[len(lines)-2:])
}

func TestPrologix_NotOpen(t *testing.T) {
	tr := newTestPrologix(t, func(context.Context) (Port, error) { return nil, errors.New("unused") })

	err := tr.Write([]byte("*RST"))
	require.ErrorIs(t, err, ErrSendFailed)
	require.ErrorIs(t, err, ErrNotOpen)

	_, err = tr.Read(make([]byte, 8))
	require.ErrorIs(t, err, ErrReadFailed)
}

func TestPrologixConfig_Options(t *testing.T) {
	_, err := NewPrologixConfig(WithReadTimeout(time.Millisecond))
	require.Error(t, err)

	_, err = NewPrologixConfig(WithLogger(nil))
	require.Error(t, err)

	cfg, err := NewPrologixConfig(WithTerminator('\r'), WithVersionCheck(false))
	require.NoError(t, err)
	assert.Equal(t, byte('\r'), cfg.Terminator())
	assert.False(t, cfg.VersionCheck())
	assert.Equal(t, DefaultReadTimeout, cfg.ReadTimeout())
	assert.NotNil(t, cfg.GetLogger())
}

func TestEscape(t *testing.T) {
	assert.Equal(t, []byte("*IDN?\n"), escape([]byte("*IDN?")))
	assert.Equal(t, []byte{esc, esc, esc, '+', esc, cr, esc, lf, lf}, escape([]byte{esc, '+', cr, lf}))
}

func TestPrologixSharedController(t *testing.T) {
	require := require.New(t)

	adapter, dial := newFakeAdapter(t, false, "+1.000000E-09A\n")
	shared := SharedDialer(dial)
	source := newTestPrologix(t, shared)
	sensor := newTestPrologix(t, shared)

	ctx := context.Background()
	require.NoError(source.Open(ctx, Address{Primary: 24}))
	require.NoError(sensor.Open(ctx, Address{Primary: 22}))

	require.NoError(source.Write([]byte(":OUTP ON\n")))
	require.NoError(source.Write([]byte(":SOUR:VOLT:LEV 0\n")))
	require.NoError(sensor.Write([]byte(":READ?\n")))

	buf := make([]byte, 64)
	n, err := sensor.Read(buf)
	require.NoError(err)
	require.Equal("+1.000000E-09A\n", string(buf[:n]))

	require.NoError(source.Close())
	require.NoError(sensor.Close())
	adapter.wait(t)

	lines := adapter.Lines()
	require.Len(lines, 24)
	require.Equal("++addr 24", lines[6])
	require.Equal("++addr 22", lines[13])
	require.Equal([]string{
		"++addr 24", ":OUTP ON\n", ":SOUR:VOLT:LEV 0\n",
		"++addr 22", ":READ?\n", "++read eoi",
		"++addr 24", "++loc",
		"++addr 22", "++loc",
	}, lines[14:])
}

func TestSharedDialer_RefCount(t *testing.T) {
	dials := 0
	closes := 0
	dial := func(context.Context) (Port, error) {
		dials++
		return &countingPort{closes: &closes}, nil
	}
	shared := SharedDialer(dial)

	p1, err := shared(context.Background())
	require.NoError(t, err)
	p2, err := shared(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, dials)

	require.NoError(t, p1.Close())
	require.NoError(t, p1.Close())
	assert.Zero(t, closes)
	require.NoError(t, p2.Close())
	assert.Equal(t, 1, closes)

	_, err = shared(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, dials)

	failing := SharedDialer(func(context.Context) (Port, error) { return nil, errors.New("no device") })
	_, err = failing(context.Background())
	require.Error(t, err)
}

type countingPort struct {
	closes *int
}

func (p *countingPort) Read([]byte) (int, error) { return 0, nil }

func (p *countingPort) Write(b []byte) (int, error) { return len(b), nil }

func (p *countingPort) SetReadTimeout(time.Duration) error { return nil }

func (p *countingPort) Close() error {
	*p.closes++
	return nil
}
