package gpib

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, tr Transport) string {
	t.Helper()

	buf := make([]byte, 256)
	n, err := tr.Read(buf)
	require.NoError(t, err)

	return string(buf[:n])
}

func TestSimTransport_ScriptedReplies(t *testing.T) {
	script := NewScriptResponder().
		Queue("*IDN?", "FIRST", "SECOND").
		Set("*IDN?", "STICKY")
	sim := NewSimTransport(script)

	require.NoError(t, sim.Open(context.Background(), Address{Primary: 22}))
	assert.Equal(t, 1, sim.HardwareOpens())

	for _, want := range []string{"FIRST\n", "SECOND\n", "STICKY\n", "STICKY\n"} {
		require.NoError(t, sim.Write([]byte("*IDN?\n")))
		assert.Equal(t, want, readAll(t, sim))
	}

	require.NoError(t, sim.Write([]byte("*RST\n")))
	_, err := sim.Read(make([]byte, 8))
	require.ErrorIs(t, err, ErrReadFailed)

	assert.Equal(t, 4, sim.CountWrites("*IDN?"))
	assert.Equal(t, "*RST", sim.Writes()[4])
}

func TestSimTransport_FaultInjection(t *testing.T) {
	ctx := context.Background()
	sim := NewSimTransport(NewScriptResponder().Set(":READ?", "1A")).
		FailOpen(7).
		FailWriteOn(":OUTP ON").
		FailReadOn(":READ?").
		FailClear()

	err := sim.Open(ctx, Address{Primary: 24})
	require.ErrorIs(t, err, ErrDeviceInitFailed)
	var initErr *DeviceInitError
	require.ErrorAs(t, err, &initErr)
	assert.Equal(t, 7, initErr.Code)

	require.NoError(t, sim.Open(ctx, Address{Primary: 24}))
	assert.Equal(t, 2, sim.HardwareOpens())

	require.ErrorIs(t, sim.Write([]byte(":OUTP ON\n")), ErrSendFailed)
	require.NoError(t, sim.Write([]byte(":READ?\n")))
	_, err = sim.Read(make([]byte, 8))
	require.ErrorIs(t, err, ErrReadFailed)
	require.ErrorIs(t, sim.Clear(), ErrClearFailed)
}

func TestSimTransport_ReadBufferTooSmall(t *testing.T) {
	sim := NewSimTransport(NewScriptResponder().Set("*IDN?", "KEITHLEY INSTRUMENTS INC.,MODEL 6487"))
	require.NoError(t, sim.Open(context.Background(), Address{Primary: 22}))
	require.NoError(t, sim.Write([]byte("*IDN?\n")))

	_, err := sim.Read(make([]byte, 4))
	require.ErrorIs(t, err, ErrReadFailed)
}

func TestSimTransport_CloseIdempotent(t *testing.T) {
	sim := NewSimTransport(nil)
	require.NoError(t, sim.Close())
	assert.Zero(t, sim.Closes())

	require.NoError(t, sim.Open(context.Background(), Address{Primary: 3}))
	require.NoError(t, sim.Clear())
	assert.Equal(t, 1, sim.Clears())

	require.NoError(t, sim.Close())
	require.NoError(t, sim.Close())
	assert.Equal(t, 1, sim.Closes())
	assert.True(t, sim.IsLocal())
	assert.False(t, sim.IsOpen())

	require.ErrorIs(t, sim.Write([]byte("*RST")), ErrNotOpen)
}

func TestSimTransport_OpenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sim := NewSimTransport(nil)
	require.ErrorIs(t, sim.Open(ctx, Address{Primary: 3}), ErrDeviceInitFailed)
}

func TestBench_LeakageFollowsSource(t *testing.T) {
	bench := NewBench()
	bench.Noise = 0
	bench.Offset = 0

	source := NewSimTransport(bench.Source())
	sensor := NewSimTransport(bench.Sensor())
	require.NoError(t, source.Open(context.Background(), Address{Primary: 24}))
	require.NoError(t, sensor.Open(context.Background(), Address{Primary: 22}))

	require.NoError(t, source.Write([]byte("*IDN?\n")))
	assert.Equal(t, SimSourceIDN+"\n", readAll(t, source))
	require.NoError(t, sensor.Write([]byte("*IDN?\n")))
	assert.Equal(t, SimSensorIDN+"\n", readAll(t, sensor))

	require.NoError(t, source.Write([]byte(":SOUR:VOLT:LEV 100\n")))
	require.NoError(t, sensor.Write([]byte(":READ?\n")))
	assert.Equal(t, "+0.000000E+00A,+1.000000E+00,+0.000000E+00\n", readAll(t, sensor))

	require.NoError(t, source.Write([]byte(":OUTP ON\n")))
	assert.True(t, bench.OutputOn())
	assert.InDelta(t, 100.0, bench.Voltage(), 0)

	require.NoError(t, sensor.Write([]byte(":READ?\n")))
	assert.Equal(t, "+1.000000E-07A,+2.000000E+00,+0.000000E+00\n", readAll(t, sensor))

	require.NoError(t, source.Write([]byte(":SOUR:VOLT:LEV?\n")))
	assert.Equal(t, "+1.000000E+02\n", readAll(t, source))

	require.NoError(t, source.Write([]byte("*RST\n")))
	assert.Zero(t, bench.Voltage())
	assert.False(t, bench.OutputOn())
}
