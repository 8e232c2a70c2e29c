// File: wsserver/slots.go
//
// Slot is the explicit tagged union data model §9's Design Notes demand
// in place of the source's address-range pointer-tagging trick: every
// wsi[k] entry in the original becomes one Slot value with a Kind field
// instead of a raw pointer whose low bits or magnitude carry meaning.

package wsserver

import (
	"github.com/tidalws/core/api"
	"github.com/tidalws/core/protocol"
	"github.com/tidalws/core/transport"
)

// SlotKind discriminates the four things a poll-array entry can be.
type SlotKind int

const (
	// SlotListener is the external accept-new-client listener, always
	// at index 0.
	SlotListener SlotKind = iota
	// SlotBroadcastIngress is a per-protocol loopback listener awaiting
	// a writer connection. Indices 1..countProtocols.
	SlotBroadcastIngress
	// SlotBroadcastWriter is an accepted connection on a broadcast
	// ingress listener: a writer submitting cross-context broadcasts
	// for ProtocolIndex.
	SlotBroadcastWriter
	// SlotConnection is a real client Connection.
	SlotConnection
)

func (k SlotKind) String() string {
	switch k {
	case SlotListener:
		return "LISTENER"
	case SlotBroadcastIngress:
		return "BROADCAST_INGRESS"
	case SlotBroadcastWriter:
		return "BROADCAST_WRITER"
	case SlotConnection:
		return "CONNECTION"
	default:
		return "UNKNOWN"
	}
}

// Slot is one entry of the server's parallel fds[]/slots[] arrays.
// Only the fields documented below for its Kind are meaningful; the
// rest are zero.
type Slot struct {
	Kind SlotKind

	// Listener is set for SlotListener and SlotBroadcastIngress.
	Listener *transport.TCP

	// ProtocolIndex is set for SlotBroadcastIngress and
	// SlotBroadcastWriter.
	ProtocolIndex int

	// Writer is the broadcast-writer's transport, set for
	// SlotBroadcastWriter.
	Writer api.Transport

	// Conn is the live Connection, set for SlotConnection.
	Conn *protocol.Connection
}
