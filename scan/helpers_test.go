package scan

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/arloliu/go-ivscan/device"
	"github.com/arloliu/go-ivscan/gpib"
	"github.com/arloliu/go-ivscan/internal/clock"
	"github.com/arloliu/go-ivscan/messenger"
	"github.com/arloliu/go-ivscan/scpi"
)

var (
	sourceIdentity = Identity{Manufacturer: "KEITHLEY", Model: "MODEL 2410"}
	sensorIdentity = Identity{Manufacturer: "KEITHLEY", Model: "MODEL 6487"}

	sourceCommands = device.NewCommandSet(
		[]string{":SOUR:FUNC VOLT", ":SOUR:VOLT:LEV 0"},
		[]string{":OUTP ON"},
		[]string{":SOUR:VOLT:LEV 0", ":OUTP OFF"},
	)
	sensorCommands = device.NewCommandSet(
		[]string{"*CLS", ":SYST:ZCH OFF"},
		[]string{""},
		[]string{":SYST:ZCH ON"},
	)
)

// benchRig is a simulated source and sensor sharing one virtual bench.
type benchRig struct {
	bench     *gpib.Bench
	sourceSim *gpib.SimTransport
	sensorSim *gpib.SimTransport
	source    *device.Device
	sensor    *device.Device
	clk       *clock.Fake
}

func newBenchRig(t *testing.T, wrapSensor func(gpib.Responder) gpib.Responder) *benchRig {
	t.Helper()

	rig := &benchRig{bench: gpib.NewBench(), clk: clock.NewFake(time.Unix(1700000000, 0))}

	sensorResponder := rig.bench.Sensor()
	if wrapSensor != nil {
		sensorResponder = wrapSensor(sensorResponder)
	}
	rig.sourceSim = gpib.NewSimTransport(rig.bench.Source())
	rig.sensorSim = gpib.NewSimTransport(sensorResponder)

	opts := []device.Option{device.WithMessengerOptions(messenger.WithAckDelay(0), messenger.WithClock(rig.clk))}

	var err error
	rig.source, err = device.Open(context.Background(), device.RoleSource, rig.sourceSim, gpib.Address{Primary: 24}, sourceCommands, opts...)
	require.NoError(t, err)
	rig.sensor, err = device.Open(context.Background(), device.RoleSensor, rig.sensorSim, gpib.Address{Primary: 22}, sensorCommands, opts...)
	require.NoError(t, err)

	return rig
}

func (r *benchRig) controller(t *testing.T, plan RampPlan, opts ...Option) *Controller {
	t.Helper()

	opts = append([]Option{
		WithSourceIdentity(sourceIdentity),
		WithSensorIdentity(sensorIdentity),
		WithClock(r.clk),
	}, opts...)

	c, err := NewController(r.source, r.sensor, plan, opts...)
	require.NoError(t, err)

	return c
}

// voltageWrites returns the source level commands in write order.
func (r *benchRig) voltageWrites() []string {
	var out []string
	for _, w := range r.sourceSim.Writes() {
		if strings.HasPrefix(w, ":SOUR:VOLT:LEV ") {
			out = append(out, w)
		}
	}

	return out
}

// failAfter stops answering cmd after n replies, which the transport reports
// as a read failure.
func failAfter(r gpib.Responder, cmd string, n int) gpib.Responder {
	count := 0
	return gpib.ResponderFunc(func(addr gpib.Address, c string) (string, bool) {
		if c == cmd {
			count++
			if count > n {
				return "", false
			}
		}

		return r.Respond(addr, c)
	})
}

// mockInstrument is a testify mock of Instrument.
type mockInstrument struct {
	mock.Mock
	role device.Role
}

func (m *mockInstrument) Role() device.Role { return m.role }

func (m *mockInstrument) Identify(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *mockInstrument) Initialise(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *mockInstrument) Send(ctx context.Context, cmd string) error {
	return m.Called(ctx, cmd).Error(0)
}

func (m *mockInstrument) ReadValue(ctx context.Context, command, unit string) (scpi.Reading, error) {
	args := m.Called(ctx, command, unit)
	r, _ := args.Get(0).(scpi.Reading)

	return r, args.Error(1)
}

func (m *mockInstrument) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

var errSinkDown = errors.New("sink unavailable")

// failingSink fails every call.
type failingSink struct{}

func (failingSink) StartRun(context.Context, RunInfo) error { return errSinkDown }

func (failingSink) AddPoint(context.Context, string, ResultPoint) error { return errSinkDown }

func (failingSink) AddStabilitySample(context.Context, string, StabilitySample) error {
	return errSinkDown
}

func (failingSink) FinishRun(context.Context, *Result) error { return errSinkDown }
