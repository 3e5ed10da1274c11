package messenger

import (
	"sync/atomic"
)

// Metrics contains atomic counters of one Messenger.
// Each counter can be used as the value of a prometheus CounterFunc.
type Metrics struct {
	// CommandSendCount is the number of commands written.
	CommandSendCount atomic.Uint64
	// FetchCount is the number of completed query round trips.
	FetchCount atomic.Uint64
	// BytesWritten is the number of encoded bytes written, terminators included.
	BytesWritten atomic.Uint64
	// BytesRead is the number of bytes read.
	BytesRead atomic.Uint64
	// SendErrCount is the number of failed writes.
	SendErrCount atomic.Uint64
	// ReadErrCount is the number of failed reads.
	ReadErrCount atomic.Uint64
	// DecodeErrCount is the number of typed answers that failed to decode.
	DecodeErrCount atomic.Uint64
}

func (m *Metrics) incCommandSendCount(n int) {
	m.CommandSendCount.Add(1)
	m.BytesWritten.Add(uint64(n))
}

func (m *Metrics) incFetchCount(n int) {
	m.FetchCount.Add(1)
	m.BytesRead.Add(uint64(n))
}

func (m *Metrics) incSendErrCount() {
	m.SendErrCount.Add(1)
}

func (m *Metrics) incReadErrCount() {
	m.ReadErrCount.Add(1)
}

func (m *Metrics) incDecodeErrCount() {
	m.DecodeErrCount.Add(1)
}
