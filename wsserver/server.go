// File: wsserver/server.go
//
// Server Context (data model §3/§4.1): owns the parallel fds[]/slots[]
// arrays, the protocol registry, and the ambient control-plane and
// buffer/affinity adapters wired in as the domain stack.

package wsserver

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/eapache/queue"
	"github.com/tidalws/core/adapters"
	"github.com/tidalws/core/affinity"
	"github.com/tidalws/core/api"
	"github.com/tidalws/core/pool"
	"github.com/tidalws/core/protocol"
	"github.com/tidalws/core/transport"
	"golang.org/x/sys/unix"
)

// Option configures a Server at construction time.
type Option func(*Server)

// WithTLS terminates TLS on the external listener using cfg.
func WithTLS(cfg *tls.Config) Option {
	return func(s *Server) { s.tlsConfig = cfg }
}

// WithIdentity drops privileges to uid/gid once the listener is bound.
// -1 for either leaves that half of the identity unchanged.
func WithIdentity(uid, gid int) Option {
	return func(s *Server) { s.cfg.UID, s.cfg.GID = uid, gid }
}

// WithControl replaces the server's default no-op-free control plane
// with a caller-supplied one (e.g. shared across multiple servers).
func WithControl(c api.Control) Option {
	return func(s *Server) { s.control = c }
}

// WithBufferPool overrides the default pool.Pool, e.g. to share one
// pool across several servers.
func WithBufferPool(p api.BufferPool) Option {
	return func(s *Server) { s.bufpool = p }
}

// Server is the Server Context of the data model: the parallel
// fds[]/slots[] arrays, the registry, and the transport/control/buffer
// adapters a running event loop needs.
type Server struct {
	cfg      Config
	registry *protocol.Registry

	tlsConfig *tls.Config
	control   api.Control
	bufpool   api.BufferPool
	affinity  *affinity.Binder

	mu    sync.Mutex
	fds   []unix.PollFd
	slots []Slot

	countProtocols int
	writers        map[int]*transport.TCP

	// pendingQueues holds, per protocol index, payloads read off that
	// protocol's broadcast-ingress socket but not yet fanned out —
	// populated and drained across poll ticks by serviceBroadcastWriter.
	pendingQueues map[int]*queue.Queue

	ready     chan struct{}
	readyOnce sync.Once
	shutdown  chan struct{}
}

// New constructs a Server: binds the external listener at slot 0,
// creates one loopback broadcast-ingress listener per registered
// protocol at slots 1..count_protocols, and records each protocol's
// assigned port. Privileges are dropped (if requested) only after
// every listener is bound, per §4.1.
func New(cfg Config, registry *protocol.Registry, opts ...Option) (*Server, error) {
	// A caller building Config{Addr: ...} by hand rather than starting
	// from DefaultConfig gets the Go zero value for every other field;
	// for NUMANode/PinCPU/UID/GID that zero value collides with a
	// meaningful setting (NUMA node 0, CPU 0, root), so a literal
	// Config must route through the same -1-means-"no preference"
	// fallback DefaultConfig already uses, same as MaxClients/PollTimeout
	// below. The fallback applies to every Config, so NUMA node 0, CPU 0
	// and uid/gid 0 cannot be selected through Config; WithIdentity runs
	// after this fallback and can still set uid/gid 0.
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = DefaultConfig(cfg.Addr).MaxClients
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultConfig(cfg.Addr).PollTimeout
	}
	if cfg.NUMANode == 0 {
		cfg.NUMANode = -1
	}
	if cfg.PinCPU == 0 {
		cfg.PinCPU = -1
	}
	if cfg.UID == 0 {
		cfg.UID = -1
	}
	if cfg.GID == 0 {
		cfg.GID = -1
	}

	s := &Server{
		cfg:      cfg,
		registry: registry,
		control:  newDefaultControl(),
		bufpool:  pool.New(),
		affinity: affinity.NewBinder(),
		ready:    make(chan struct{}),
		shutdown: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	// Options mutate s.cfg, not the local cfg parameter; read s.cfg from
	// here on so WithIdentity's UID/GID actually reach dropIdentity below.
	ip, port, err := parseAddr(s.cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("wsserver: %w", err)
	}
	listener, err := transport.ListenTCP(ip, port)
	if err != nil {
		return nil, fmt.Errorf("wsserver: listen %s: %w", s.cfg.Addr, err)
	}
	s.appendSlot(Slot{Kind: SlotListener, Listener: listener}, listener.Fd())

	protocols := registry.Protocols()
	s.countProtocols = len(protocols)
	ingressByIndex := make(map[int]*transport.TCP, len(protocols))
	for _, p := range protocols {
		ingress, err := transport.ListenTCP([4]byte{127, 0, 0, 1}, 0)
		if err != nil {
			s.closeAll()
			return nil, fmt.Errorf("wsserver: broadcast ingress for %q: %w", p.Name, err)
		}
		lp, err := ingress.LocalPort()
		if err != nil {
			s.closeAll()
			return nil, fmt.Errorf("wsserver: ingress port for %q: %w", p.Name, err)
		}
		p.IngressPort = lp
		p.Owner = s
		s.appendSlot(Slot{Kind: SlotBroadcastIngress, Listener: ingress, ProtocolIndex: p.Index}, ingress.Fd())
		ingressByIndex[p.Index] = ingress
	}

	if err := bindBroadcastDispatch(s, protocols, ingressByIndex); err != nil {
		s.closeAll()
		return nil, err
	}

	if s.cfg.UID >= 0 || s.cfg.GID >= 0 {
		if err := dropIdentity(s.cfg.UID, s.cfg.GID); err != nil {
			s.closeAll()
			return nil, fmt.Errorf("wsserver: drop identity: %w", err)
		}
	}

	return s, nil
}

// Control returns the server's control-plane handle (config snapshot,
// stats, debug probes, reload hooks).
func (s *Server) Control() api.Control { return s.control }

// Ready returns a channel closed once the listener and every
// per-protocol broadcast-ingress socket are bound and Run's poll loop
// is about to start — the explicit readiness handoff design note §9(d)
// calls for in place of a fixed sleep.
func (s *Server) Ready() <-chan struct{} { return s.ready }

func (s *Server) signalReady() {
	s.readyOnce.Do(func() { close(s.ready) })
}

// ListenPort reports the external listener's OS-assigned port, useful
// when Config.Addr requested an ephemeral port (":0") and a caller
// needs to dial back in, e.g. from tests.
func (s *Server) ListenPort() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.slots) == 0 || s.slots[0].Listener == nil {
		return 0, fmt.Errorf("wsserver: listener not bound")
	}
	return s.slots[0].Listener.LocalPort()
}

// Shutdown stops a running Run loop. Call it at most once: a second
// call closes an already-closed channel and panics.
func (s *Server) Shutdown() {
	close(s.shutdown)
}

func (s *Server) appendSlot(sl Slot, fd int) {
	s.mu.Lock()
	s.slots = append(s.slots, sl)
	s.fds = append(s.fds, unix.PollFd{Fd: int32(fd), Events: unix.POLLIN})
	s.mu.Unlock()
}

// removeSlot implements the compaction rule of §4.2: shift every slot
// in (k, len) down by one and shrink both arrays by one, preserving
// relative order of survivors.
func (s *Server) removeSlot(k int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots = append(s.slots[:k], s.slots[k+1:]...)
	s.fds = append(s.fds[:k], s.fds[k+1:]...)
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sl := range s.slots {
		switch sl.Kind {
		case SlotListener, SlotBroadcastIngress:
			if sl.Listener != nil {
				_ = sl.Listener.Close()
			}
		case SlotBroadcastWriter:
			if sl.Writer != nil {
				_ = sl.Writer.Close()
			}
		case SlotConnection:
			if sl.Conn != nil {
				protocol.Destroy(sl.Conn)
			}
		}
	}
	for _, w := range s.writers {
		_ = w.Close()
	}
	s.slots = nil
	s.fds = nil
}

func parseAddr(addr string) ([4]byte, int, error) {
	hostPart, portPart, err := net.SplitHostPort(addr)
	if err != nil {
		return [4]byte{}, 0, fmt.Errorf("invalid address %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portPart)
	if err != nil {
		return [4]byte{}, 0, fmt.Errorf("invalid port in %q: %w", addr, err)
	}
	ip, err := parseIPv4(hostPart)
	if err != nil {
		return [4]byte{}, 0, err
	}
	return ip, port, nil
}

func parseIPv4(host string) ([4]byte, error) {
	if host == "" {
		return [4]byte{0, 0, 0, 0}, nil
	}
	ip := net.ParseIP(host)
	v4 := ip.To4()
	if v4 == nil {
		return [4]byte{}, fmt.Errorf("invalid IPv4 address %q", host)
	}
	return [4]byte{v4[0], v4[1], v4[2], v4[3]}, nil
}

func dropIdentity(uid, gid int) error {
	if gid >= 0 {
		if err := unix.Setgid(gid); err != nil {
			return fmt.Errorf("setgid(%d): %w", gid, err)
		}
	}
	if uid >= 0 {
		if err := unix.Setuid(uid); err != nil {
			return fmt.Errorf("setuid(%d): %w", uid, err)
		}
	}
	return nil
}

// newDefaultControl wires the same ambient config/metrics/debug stack
// adapters.NewControlAdapter assembles for every other entry point in
// this module, so a Server constructed without WithControl still
// exposes Config/Stats/RegisterDebugProbe consistently.
func newDefaultControl() api.Control {
	return adapters.NewControlAdapter()
}
