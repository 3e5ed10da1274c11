// Package gpib provides the transport layer for IEEE-488 (GPIB) instruments.
//
// A Transport is a raw, addressed byte channel to exactly one instrument:
// Open selects the instrument by its primary/secondary address, Write and
// Read move bytes, Clear issues a selected device clear and Close returns the
// instrument to local control.
//
// # Backends
//
//   - PrologixTransport talks to a Prologix-protocol GPIB controller, reached
//     either through its USB serial interface (SerialDialer, go.bug.st/serial)
//     or over TCP (TCPDialer).
//   - SimTransport replays scripted responses or a virtual Bench and is the
//     test seam for the messenger, device and scan packages.
//
// # Addressing
//
// Primary addresses are in [0, 30] and secondary addresses in [0, 15], where a
// secondary address of 0 means "not used". Every Open validates the address
// before any hardware is touched and fails with ErrAddressOutOfRange.
//
// Transports are not goroutine-safe: each instrument must have a single owner
// for its whole lifetime.
package gpib
