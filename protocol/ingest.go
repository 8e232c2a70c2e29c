// File: protocol/ingest.go
//
// Ingest is the Frame Handler collaborator surface from the data model:
// HTTP request parsing up to and including the Upgrade negotiation,
// protocol selection by name, the HTTP→ESTABLISHED transition, and
// per-frame decode/dispatch once established.

package protocol

import "log"

// Ingest feeds newly received bytes into conn. A non-negative return
// means conn remains live, regardless of whether any bytes were
// consumed internally. A negative return means Ingest has already run
// the full destruction protocol on conn (see Destroy) and the caller's
// only remaining job is to compact its slot.
func Ingest(conn *Connection, registry *Registry, data []byte) int {
	conn.pending = append(conn.pending, data...)

	switch conn.state {
	case StateHTTP:
		return ingestHandshake(conn, registry)
	case StateEstablished:
		return ingestFrames(conn)
	default:
		return -1
	}
}

func ingestHandshake(conn *Connection, registry *Registry) int {
	result, consumed, err := ParseHandshake(conn.pending)
	if err != nil {
		log.Printf("protocol: handshake error: %v", err)
		Destroy(conn)
		return -1
	}
	if result == nil {
		return len(conn.pending)
	}
	conn.pending = conn.pending[consumed:]

	first, ok := registry.First()
	if !ok {
		Destroy(conn)
		return -1
	}

	if !result.isUpgrade {
		if first.Handler != nil {
			if err := first.Handler.Handle(conn, ReasonHTTP, conn.UserData(), []byte(result.path)); err != nil {
				log.Printf("protocol: HTTP handler error: %v", err)
			}
		}
		Destroy(conn)
		return -1
	}

	target := first
	if result.protocolHdr != "" {
		if p, ok := registry.ByName(result.protocolHdr); ok {
			target = p
		}
	}
	conn.bindProtocol(target)

	if err := WriteHandshakeResponse(conn.Transport, result.accept); err != nil {
		log.Printf("protocol: handshake write error: %v", err)
		Destroy(conn)
		return -1
	}

	conn.setState(StateEstablished)
	if target.UserDataSize > 0 {
		conn.allocateUserData(make([]byte, target.UserDataSize))
	}
	if target.Handler != nil {
		if err := target.Handler.Handle(conn, ReasonEstablished, conn.UserData(), nil); err != nil {
			log.Printf("protocol: ESTABLISHED handler error: %v", err)
			Destroy(conn)
			return -1
		}
	}

	// A pipelined client may have sent frame bytes in the same segment
	// as the handshake; drain them now rather than waiting for the
	// next readiness event.
	if len(conn.pending) == 0 {
		return 0
	}
	return ingestFrames(conn)
}

func ingestFrames(conn *Connection) int {
	for {
		frame, consumed, err := DecodeFrame(conn.pending)
		if err != nil {
			log.Printf("protocol: frame decode error: %v", err)
			Destroy(conn)
			return -1
		}
		if frame == nil {
			return len(conn.pending)
		}
		conn.pending = conn.pending[consumed:]

		switch frame.Opcode {
		case OpcodePing:
			pong := &Frame{IsFinal: true, Opcode: OpcodePong, PayloadLen: frame.PayloadLen, Payload: frame.Payload}
			if out, err := EncodeFrame(pong, false, nil); err == nil {
				_ = conn.Transport.Send([][]byte{out})
			}
		case OpcodePong:
			// Acknowledged; latency tracking is the caller's business.
		case OpcodeClose:
			if out, err := EncodeFrame(frame, false, nil); err == nil {
				_ = conn.Transport.Send([][]byte{out})
			}
			Destroy(conn)
			return -1
		case OpcodeContinuation, OpcodeText, OpcodeBinary:
			if conn.proto != nil && conn.proto.Handler != nil {
				if err := conn.proto.Handler.Handle(conn, ReasonReceive, conn.UserData(), frame.Payload); err != nil {
					log.Printf("protocol: RECEIVE handler error: %v", err)
					Destroy(conn)
					return -1
				}
			}
		default:
			log.Printf("protocol: unrecognized opcode %#x, closing", frame.Opcode)
			Destroy(conn)
			return -1
		}
	}
}
