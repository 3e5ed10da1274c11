package gpib

import "context"

// Transport is a raw byte channel to one addressed instrument.
type Transport interface {
	// Open validates addr, then connects to the instrument at addr.
	// Address errors match ErrAddressOutOfRange and are reported before any
	// hardware access; hardware errors are *DeviceInitError.
	Open(ctx context.Context, addr Address) error
	// Write sends data as is. Errors match ErrSendFailed; there is no retry.
	Write(data []byte) error
	// Read reads one response into buf and returns the number of bytes read.
	// Errors match ErrReadFailed.
	Read(buf []byte) (int, error)
	// Clear resets the bus-level state of the addressed instrument.
	// Errors match ErrClearFailed.
	Clear() error
	// Close returns the instrument to a neutral bus state and releases the
	// controller. It is idempotent; failures are logged, never returned.
	Close() error
}
