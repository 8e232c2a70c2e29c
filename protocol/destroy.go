// File: protocol/destroy.go
//
// Connection destruction protocol (data model §4.3): deliver CLOSED iff
// the connection ever reached ESTABLISHED, mark it DEAD, shut the
// transport down and close it, then release the user-data slot. Idempotent once
// state is DEAD so callers never need to guard a second call.

package protocol

import "log"

// Destroy runs the full connection-destruction protocol on conn. It is
// called both by the frame handler (self-destruction on handshake or
// frame error) and by the multiplexer (hangup, zero-byte read).
func Destroy(conn *Connection) {
	if conn.state == StateDead {
		return
	}
	if conn.state == StateEstablished && conn.proto != nil && conn.proto.Handler != nil {
		if err := conn.proto.Handler.Handle(conn, ReasonClosed, conn.UserData(), nil); err != nil {
			log.Printf("protocol: CLOSED handler error: %v", err)
		}
	}
	conn.setState(StateDead)
	if err := conn.Close(); err != nil {
		log.Printf("protocol: transport close: %v", err)
	}
	conn.releaseUserData()
}
