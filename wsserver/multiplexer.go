// File: wsserver/multiplexer.go
//
// The Multiplexer/Event Loop (§4.2): a single-threaded cooperative poll
// loop over the listener, one broadcast-ingress socket per protocol,
// and N live connections, implemented with unix.Poll over the parallel
// fds[]/slots[] arrays rather than Go's net.Listener goroutine-per-
// connection model, since the spec's readiness wait and revents checks
// map directly onto poll(2).

package wsserver

import (
	"context"
	"fmt"
	"log"

	"github.com/tidalws/core/api"
	"github.com/tidalws/core/protocol"
	"github.com/tidalws/core/transport"
	"golang.org/x/sys/unix"
)

// Run pins the event-loop goroutine's OS thread if cfg.PinCPU is set,
// signals Ready, then blocks servicing readiness ticks until ctx is
// canceled or Shutdown is called. A listener-death error (hangup or
// error on slot 0) is fatal per §7 and is returned to the caller after
// tearing down every slot.
func (s *Server) Run(ctx context.Context) error {
	if s.cfg.PinCPU >= 0 {
		if err := s.affinity.Pin(s.cfg.PinCPU, s.cfg.NUMANode); err != nil {
			log.Printf("wsserver: affinity pin failed, continuing unpinned: %v", err)
		}
	}
	defer s.closeAll()

	s.signalReady()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.shutdown:
			return nil
		default:
		}

		if err := s.tick(); err != nil {
			return err
		}
	}
}

// tick runs exactly one poll iteration: the readiness wait, the
// accept pass over [0, countProtocols], and the per-connection
// servicing pass over the remaining slots.
func (s *Server) tick() error {
	if len(s.fds) == 0 {
		return fmt.Errorf("wsserver: no slots to poll")
	}

	n, err := unix.Poll(s.fds, int(s.cfg.PollTimeout.Milliseconds()))
	if err != nil {
		if err == unix.EINTR {
			return nil
		}
		return fmt.Errorf("wsserver: poll: %w", err)
	}
	if n == 0 {
		return nil // timeout tick; legitimate no-event wakeup
	}

	if err := s.serviceListenerDeath(); err != nil {
		return err
	}
	s.runAcceptPass()
	s.runServicingPass()
	return nil
}

// serviceListenerDeath treats hangup/error on slot 0 as fatal, per §7.
func (s *Server) serviceListenerDeath() error {
	if len(s.fds) == 0 {
		return nil
	}
	rv := s.fds[0].Revents
	if rv&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
		return fmt.Errorf("wsserver: listener socket died (revents=%#x)", rv)
	}
	return nil
}

// runAcceptPass accepts at most one connection per ready descriptor in
// [0, countProtocols], per §4.2.
func (s *Server) runAcceptPass() {
	limit := s.countProtocols
	if limit >= len(s.fds) {
		limit = len(s.fds) - 1
	}
	for k := 0; k <= limit; k++ {
		if s.fds[k].Revents&unix.POLLIN == 0 {
			continue
		}
		if k == 0 {
			s.acceptClient()
		} else {
			s.acceptBroadcastWriter(k)
		}
	}
}

func (s *Server) acceptClient() {
	listener := s.slots[0].Listener
	raw, err := listener.Accept()
	if err != nil {
		return // EAGAIN or a transient accept error; try again next tick
	}

	if len(s.slots) >= s.cfg.MaxClients {
		_ = raw.Close()
		return
	}

	var tr api.Transport = raw
	if s.tlsConfig != nil {
		tlsTr, err := transport.NewTLSTransport(raw, s.tlsConfig)
		if err != nil {
			// Browsers are known to probe with incompatible TLS parameters;
			// discard silently per §4.2 rather than logging noise.
			_ = raw.Close()
			return
		}
		tr = tlsTr
	}

	first, ok := s.registry.First()
	if !ok {
		log.Printf("wsserver: no protocols registered, discarding accepted connection")
		_ = tr.Close()
		return
	}

	conn := protocol.NewConnection(tr, first)
	s.appendSlot(Slot{Kind: SlotConnection, Conn: conn}, tr.Fd())
}

func (s *Server) acceptBroadcastWriter(k int) {
	ingress := s.slots[k].Listener
	w, err := ingress.Accept()
	if err != nil {
		return
	}
	if len(s.slots) >= s.cfg.MaxClients {
		_ = w.Close()
		return
	}
	protoIdx := s.slots[k].ProtocolIndex
	s.appendSlot(Slot{Kind: SlotBroadcastWriter, ProtocolIndex: protoIdx, Writer: w}, w.Fd())
}

// runServicingPass implements §4.2's per-connection servicing: hangup
// destroys and breaks (indices beyond have shifted by compaction),
// broadcast-writer slots drain one queued payload and fan it out,
// connection slots read and feed the frame handler. A broadcast-writer
// slot with a non-empty backlog is serviced even on a tick where it
// has no fresh POLLIN, so a burst that outpaces one-dequeue-per-tick
// draining still empties out over subsequent ticks instead of sitting
// forever behind readiness.
func (s *Server) runServicingPass() {
	start := s.countProtocols + 1
	for k := start; k < len(s.slots); k++ {
		rv := s.fds[k].Revents
		if rv&(unix.POLLHUP|unix.POLLERR|unix.POLLNVAL) != 0 {
			s.destroySlot(k)
			return
		}

		sl := s.slots[k]
		readable := rv&unix.POLLIN != 0
		backlogged := sl.Kind == SlotBroadcastWriter && s.pendingQueues[sl.ProtocolIndex].Length() > 0
		if !readable && !backlogged {
			continue
		}

		switch sl.Kind {
		case SlotBroadcastWriter:
			if s.serviceBroadcastWriter(k, readable) {
				return
			}
		case SlotConnection:
			if s.serviceConnection(k) {
				return
			}
		}
	}
}

// serviceBroadcastWriter reads whatever payloads arrived on a
// broadcast-ingress writer this tick (if readable) into that
// protocol's persistent pending queue, then dequeues and fans out
// exactly one payload — bounding a single tick's broadcast-dispatch
// work to one dequeue regardless of how many payloads piled up.
// Anything left queued is picked up on a later tick by the backlog
// check in runServicingPass, so a burst of broadcasts is buffered
// across ticks rather than requiring one poll-ready event per
// payload. Returns true if the pass must restart due to compaction
// (never the case here: the writer slot itself survives a short read
// per §7's "ingress socket is not torn down" rule).
func (s *Server) serviceBroadcastWriter(k int, readable bool) bool {
	protoIdx := s.slots[k].ProtocolIndex
	pending := s.pendingQueues[protoIdx]

	if readable {
		writer := s.slots[k].Writer
		bufs, err := writer.Recv()
		if err != nil {
			log.Printf("wsserver: broadcast ingress read failed for protocol %d: %v", protoIdx, err)
		} else {
			for _, payload := range bufs {
				pending.Add(payload)
			}
		}
	}

	if pending.Length() > 0 {
		payload := pending.Remove().([]byte)
		s.fanOut(protoIdx, payload)
	}
	return false
}

// fanOut walks every Connection slot and invokes ReasonBroadcast on
// each ESTABLISHED one bound to protoIdx, wrapping the payload in a
// padded buffer per the stable ABI.
func (s *Server) fanOut(protoIdx int, payload []byte) {
	full, padded := protocol.NewPaddedBuffer(s.bufpool, len(payload), s.cfg.NUMANode)
	copy(padded, payload)
	defer full.Release()

	for _, sl := range s.slots {
		if sl.Kind != SlotConnection {
			continue
		}
		conn := sl.Conn
		if conn.State() != protocol.StateEstablished {
			continue
		}
		p := conn.Protocol()
		if p == nil || p.Index != protoIdx {
			continue
		}
		if err := p.Handler.Handle(conn, protocol.ReasonBroadcast, conn.UserData(), padded); err != nil {
			log.Printf("wsserver: BROADCAST handler error: %v", err)
		}
	}
}

// serviceConnection reads one buffer-full and feeds it to Ingest.
// Returns true if the slot was destroyed and the pass must restart.
func (s *Server) serviceConnection(k int) bool {
	conn := s.slots[k].Conn
	bufs, err := conn.Transport.Recv()
	if err != nil {
		s.destroySlot(k)
		return true
	}
	if len(bufs) == 0 {
		return false // EAGAIN-equivalent: no data this tick despite POLLIN
	}
	for _, b := range bufs {
		if protocol.Ingest(conn, s.registry, b) < 0 {
			s.destroySlot(k)
			return true
		}
	}
	return false
}

// destroySlot runs the destruction protocol (for a real Connection) or
// simply closes the writer (for a broadcast-writer slot whose peer
// hung up), then compacts the slot out per §4.2.
func (s *Server) destroySlot(k int) {
	switch s.slots[k].Kind {
	case SlotConnection:
		protocol.Destroy(s.slots[k].Conn)
	case SlotBroadcastWriter:
		_ = s.slots[k].Writer.Close()
	}
	s.removeSlot(k)
}
