package publish

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-ivscan/internal/clock"
	"github.com/arloliu/go-ivscan/scan"
)

// fakeRedis speaks enough RESP2 for the publisher: PUBLISH, LPUSH, LTRIM and
// LRANGE. HELLO is refused, so the client falls back to RESP2.
type fakeRedis struct {
	ln net.Listener

	mu          sync.Mutex
	published   map[string][]string
	lists       map[string][]string
	commands    []string
	failPublish bool
}

func newFakeRedis(t *testing.T) *fakeRedis {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeRedis{ln: ln, published: map[string][]string{}, lists: map[string][]string{}}
	go f.serve()
	t.Cleanup(func() { _ = ln.Close() })

	return f
}

func (f *fakeRedis) Addr() string { return f.ln.Addr().String() }

func (f *fakeRedis) serve() {
	for {
		conn, err := f.ln.Accept()
		if err != nil {
			return
		}
		go f.handle(conn)
	}
}

func (f *fakeRedis) handle(conn net.Conn) {
	defer conn.Close()

	r := bufio.NewReader(conn)
	for {
		args, err := readCommand(r)
		if err != nil {
			return
		}
		if _, err := io.WriteString(conn, f.exec(args)); err != nil {
			return
		}
	}
}

func readCommand(r *bufio.Reader) ([]string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(line, "*") {
		return nil, fmt.Errorf("unexpected line %q", line)
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[1:]))
	if err != nil {
		return nil, err
	}

	args := make([]string, 0, n)
	for range n {
		header, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		size, err := strconv.Atoi(strings.TrimSpace(header[1:]))
		if err != nil {
			return nil, err
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		args = append(args, string(buf[:size]))
	}

	return args, nil
}

func (f *fakeRedis) exec(args []string) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	cmd := strings.ToUpper(args[0])
	f.commands = append(f.commands, cmd)

	switch cmd {
	case "HELLO":
		return "-ERR unknown command 'HELLO'\r\n"
	case "PING":
		return "+PONG\r\n"
	case "PUBLISH":
		if f.failPublish {
			return "-ERR publish refused\r\n"
		}
		f.published[args[1]] = append(f.published[args[1]], args[2])

		return ":0\r\n"
	case "LPUSH":
		key := args[1]
		for _, v := range args[2:] {
			f.lists[key] = append([]string{v}, f.lists[key]...)
		}

		return fmt.Sprintf(":%d\r\n", len(f.lists[key]))
	case "LTRIM":
		key := args[1]
		start, _ := strconv.Atoi(args[2])
		stop, _ := strconv.Atoi(args[3])
		list := f.lists[key]
		if stop+1 < len(list) {
			list = list[:stop+1]
		}
		f.lists[key] = list[start:]

		return "+OK\r\n"
	case "LRANGE":
		list := f.lists[args[1]]
		var b strings.Builder
		fmt.Fprintf(&b, "*%d\r\n", len(list))
		for _, v := range list {
			fmt.Fprintf(&b, "$%d\r\n%s\r\n", len(v), v)
		}

		return b.String()
	default:
		return "+OK\r\n"
	}
}

func (f *fakeRedis) Published(channel string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.published[channel]...)
}

func (f *fakeRedis) Count(cmd string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, c := range f.commands {
		if c == cmd {
			n++
		}
	}

	return n
}

func (f *fakeRedis) setFailPublish(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.failPublish = v
}

var testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func dialFake(t *testing.T, f *fakeRedis, opts ...Option) *RedisPublisher {
	t.Helper()

	opts = append([]Option{WithClock(clock.NewFake(testStart))}, opts...)
	p, err := Dial(context.Background(), &redis.Options{Addr: f.Addr(), Protocol: 2}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	return p
}

func emitRun(t *testing.T, p *RedisPublisher, runID string) {
	t.Helper()
	ctx := context.Background()

	plan := scan.RampPlan{Voltages: []float64{0, 100}, TestVoltage: 100, Settle: time.Second, TestDuration: 3 * time.Second, Repetitions: 2}
	require.NoError(t, p.StartRun(ctx, scan.RunInfo{ID: runID, Plan: plan, StartedAt: testStart}))
	require.NoError(t, p.AddPoint(ctx, runID, scan.ResultPoint{Stage: 0, Voltage: 0, Mean: 1e-12, Samples: 2}))
	require.NoError(t, p.AddStabilitySample(ctx, runID, scan.StabilitySample{Stage: 1, Voltage: 100, Elapsed: 3 * time.Second, Current: 1e-7, Timestamp: 5}))
	require.NoError(t, p.FinishRun(ctx, &scan.Result{
		RunID:      runID,
		State:      scan.StateAborted,
		Err:        errors.New("sensor read failed"),
		Points:     []scan.ResultPoint{{}},
		FinishedAt: testStart.Add(time.Minute),
	}))
}

func TestRedisPublisher_Events(t *testing.T) {
	require := require.New(t)
	f := newFakeRedis(t)
	p := dialFake(t, f, WithChannel("ivscan-test"))

	emitRun(t, p, "run-1")

	published := f.Published("ivscan-test")
	require.Len(published, 4)

	var first Event
	require.NoError(json.Unmarshal([]byte(published[0]), &first))
	require.Equal(EventRunStarted, first.Type)
	require.Equal("run-1", first.RunID)
	require.True(testStart.Equal(first.Time))

	var started RunStarted
	require.NoError(json.Unmarshal(first.Data, &started))
	require.Equal([]float64{0, 100}, started.Voltages)
	require.Equal(2, started.Repetitions)

	history, err := p.History(context.Background(), "run-1")
	require.NoError(err)
	require.Len(history, 4)
	types := make([]EventType, 0, len(history))
	for _, ev := range history {
		types = append(types, ev.Type)
	}
	require.Equal([]EventType{EventRunStarted, EventPoint, EventStabilitySample, EventRunFinished}, types)

	var point scan.ResultPoint
	require.NoError(json.Unmarshal(history[1].Data, &point))
	require.InDelta(1e-12, point.Mean, 0)

	var finished RunFinished
	require.NoError(json.Unmarshal(history[3].Data, &finished))
	require.Equal(scan.StateAborted, finished.State)
	require.Equal("sensor read failed", finished.Error)
	require.Equal(1, finished.Points)
	require.JSONEq(`"aborted"`, string(mustMarshal(t, finished.State)))
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()

	b, err := json.Marshal(v)
	require.NoError(t, err)

	return b
}

func TestRedisPublisher_ListCapped(t *testing.T) {
	f := newFakeRedis(t)
	p := dialFake(t, f, WithListLen(2), WithKeyPrefix("test:"))
	require.Equal(t, "test:run-2:events", p.ListKey("run-2"))

	emitRun(t, p, "run-2")

	history, err := p.History(context.Background(), "run-2")
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.Equal(t, EventStabilitySample, history[0].Type)
	require.Equal(t, EventRunFinished, history[1].Type)
}

func TestRedisPublisher_ListDisabled(t *testing.T) {
	f := newFakeRedis(t)
	p := dialFake(t, f, WithListLen(0))

	emitRun(t, p, "run-3")
	require.Len(t, f.Published(DefaultChannel), 4)
	require.Zero(t, f.Count("LPUSH"))
}

func TestRedisPublisher_PublishFailure(t *testing.T) {
	f := newFakeRedis(t)
	p := dialFake(t, f)
	f.setFailPublish(true)

	err := p.AddPoint(context.Background(), "run-4", scan.ResultPoint{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "publish refused")
	require.Zero(t, f.Count("LPUSH"))
}

func TestRedisPublisher_Options(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer client.Close()

	_, err := New(nil)
	require.Error(t, err)
	_, err = New(client, WithChannel(""))
	require.Error(t, err)
	_, err = New(client, WithListLen(-1))
	require.Error(t, err)
	_, err = New(client, WithClock(nil))
	require.Error(t, err)
	_, err = New(client, WithLogger(nil))
	require.Error(t, err)

	p, err := New(client)
	require.NoError(t, err)
	require.Equal(t, DefaultChannel, p.Channel())
}

func TestDial_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = Dial(ctx, &redis.Options{Addr: addr, MaxRetries: -1})
	require.Error(t, err)
}
