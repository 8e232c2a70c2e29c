// File: api/transport.go
// Package api
//
// Transport abstracts a full-duplex, non-blocking byte stream over plain
// TCP or TLS-wrapped TCP, uniform enough for the multiplexer to drive
// both with the same poll/accept/service loop.

package api

// TransportFeatures reports the capabilities a concrete Transport offers,
// so callers can pick batching/zero-copy paths when available without a
// type switch on the concrete implementation.
type TransportFeatures struct {
	ZeroCopy     bool
	Batch        bool
	NUMAAware    bool
	LockFree     bool
	SharedMemory bool
	OS           []string
}

// Transport is implemented by every concrete connection kind the
// multiplexer can hold in a slot: plain TCP, TLS, and the loopback
// broadcast-ingress sockets.
type Transport interface {
	// Send writes buffers as one logical write; implementations may
	// batch them into a single syscall.
	Send(buffers [][]byte) error

	// Recv returns zero or more received buffers without blocking.
	// A nil slice with a nil error means no data is currently available.
	Recv() ([][]byte, error)

	// Shutdown half-closes the transport (both directions where the
	// underlying protocol supports it) ahead of Close.
	Shutdown() error

	// Close releases the transport's underlying descriptor. Idempotent.
	Close() error

	// Features reports this transport's capabilities.
	Features() TransportFeatures

	// Fd returns the raw OS descriptor backing this transport, for
	// registration with the multiplexer's readiness wait.
	Fd() int
}
