// File: protocol/connection.go
// Package protocol implements the connection lifecycle, protocol
// registry, and frame handling that sit between the multiplexer and
// user-supplied callbacks.

package protocol

import (
	"sync"

	"github.com/tidalws/core/api"
)

// State is a Connection's lifecycle state.
type State int32

const (
	// StateHTTP is the initial state: awaiting the Upgrade handshake.
	StateHTTP State = iota
	// StateEstablished is reached once the handshake selects a protocol.
	StateEstablished
	// StateDead is terminal; no transition leaves it.
	StateDead
)

func (s State) String() string {
	switch s {
	case StateHTTP:
		return "HTTP"
	case StateEstablished:
		return "ESTABLISHED"
	case StateDead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// Connection is a per-accepted-socket record driven by the event loop.
// Every field is mutated only from the multiplexer goroutine; there is
// no internal locking, because the single-mutator invariant is the
// caller's responsibility (see wsserver.Server.Run).
type Connection struct {
	Transport    api.Transport
	SlotIndex    int
	WireRevision int

	state State
	proto *Protocol

	userData    any
	userDataSet bool

	// pending buffers bytes read but not yet consumed by Ingest,
	// across partial reads (e.g. a handshake split over two frames).
	pending []byte

	closeOnce sync.Once
}

// NewConnection wraps tr in a fresh Connection in StateHTTP, tentatively
// bound to first (the head of the registry, per §4.2).
func NewConnection(tr api.Transport, first *Protocol) *Connection {
	return &Connection{
		Transport:    tr,
		WireRevision: 76,
		state:        StateHTTP,
		proto:        first,
	}
}

// State reports the connection's current lifecycle state.
func (c *Connection) State() State { return c.state }

// Protocol reports the connection's currently bound protocol, or nil
// before any protocol has been registered.
func (c *Connection) Protocol() *Protocol { return c.proto }

func (c *Connection) setState(s State) { c.state = s }

func (c *Connection) bindProtocol(p *Protocol) { c.proto = p }

// UserData returns a pointer to the per-session slot so a Handler can
// both read and populate it in place on ReasonEstablished.
func (c *Connection) UserData() *any {
	return &c.userData
}

func (c *Connection) allocateUserData(v any) {
	c.userData = v
	c.userDataSet = true
}

// releaseUserData clears the per-session slot at most once per
// allocation; Go's GC reclaims the value once unreferenced.
func (c *Connection) releaseUserData() {
	if !c.userDataSet {
		return
	}
	c.userData = nil
	c.userDataSet = false
}

// Close shuts down and closes the underlying transport. It is
// idempotent. Callers inside the event loop should prefer the
// multiplexer's destroy path so the CLOSED callback and slot
// compaction happen together; Close alone does neither.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.Transport == nil {
			return
		}
		_ = c.Transport.Shutdown()
		err = c.Transport.Close()
	})
	return err
}
