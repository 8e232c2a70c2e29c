// File: wsserver/broadcast.go
//
// Wires each Protocol's dispatch strategy (protocol.Protocol.BindDispatch)
// to the single unified broadcast path decided in SPEC_FULL.md §4.5:
// every Protocol.Broadcast call, in-loop or external, writes to the
// protocol's own loopback ingress; the event loop fans out on its next
// tick from multiplexer.go's broadcast-writer servicing step.

package wsserver

import (
	"fmt"
	"time"

	"github.com/eapache/queue"
	"github.com/tidalws/core/protocol"
	"github.com/tidalws/core/transport"
)

// bindBroadcastDispatch dials one loopback writer per protocol (the
// "connected writer descriptor" of data model §3), synchronously
// accepts the matching server-side connection on that protocol's
// ingress listener so it is already installed as a SlotBroadcastWriter
// before Run's poll loop starts (rather than racing the loop's first
// tick for it), and installs a dispatch closure on each Protocol that
// sends over the dialed half.
func bindBroadcastDispatch(s *Server, protocols []*protocol.Protocol, ingress map[int]*transport.TCP) error {
	s.writers = make(map[int]*transport.TCP, len(protocols))
	s.pendingQueues = make(map[int]*queue.Queue, len(protocols))
	for _, p := range protocols {
		w, err := transport.DialLoopback(p.IngressPort)
		if err != nil {
			return fmt.Errorf("wsserver: dial broadcast writer for %q: %w", p.Name, err)
		}
		s.writers[p.Index] = w
		s.pendingQueues[p.Index] = queue.New()

		accepted, err := acceptWithRetry(ingress[p.Index])
		if err != nil {
			return fmt.Errorf("wsserver: accept internal broadcast writer for %q: %w", p.Name, err)
		}
		s.appendSlot(Slot{Kind: SlotBroadcastWriter, ProtocolIndex: p.Index, Writer: accepted}, accepted.Fd())

		idx := p.Index
		p.BindDispatch(func(payload []byte) (int, error) {
			writer := s.writers[idx]
			if writer == nil {
				return 0, fmt.Errorf("wsserver: no broadcast writer for protocol index %d", idx)
			}
			if err := writer.Send([][]byte{payload}); err != nil {
				return 0, err
			}
			return len(payload), nil
		})
	}
	return nil
}

// acceptWithRetry polls Accept on a non-blocking listener until the
// just-dialed loopback connection shows up. The peer is on the same
// host and already connecting, so this converges in well under a
// millisecond; it exists only because ln is non-blocking and has no
// readiness-wait primitive of its own at construction time.
func acceptWithRetry(ln *transport.TCP) (*transport.TCP, error) {
	deadline := time.Now().Add(time.Second)
	for {
		conn, err := ln.Accept()
		if err == nil {
			return conn, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(100 * time.Microsecond)
	}
}
