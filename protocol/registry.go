// File: protocol/registry.go

package protocol

import "sync"

// Protocol is a named callback plus its broadcast-ingress plumbing,
// selected by name at handshake time.
type Protocol struct {
	Name         string
	Handler      Handler
	UserDataSize int
	Index        int

	// IngressPort is the OS-chosen loopback port of this protocol's
	// broadcast-ingress listener, filled in by wsserver at construction.
	IngressPort int

	// Owner is the owning server context. It is typed as any rather
	// than a concrete *wsserver.Server to avoid an import cycle
	// (wsserver imports protocol); callers that need the server back
	// should type-assert.
	Owner any

	dispatchMu sync.RWMutex
	dispatch   func(payload []byte) (int, error)
}

// BindDispatch installs the broadcast dispatch strategy for this
// protocol. wsserver calls this once during server construction with a
// closure that sends every payload over the protocol's loopback writer,
// whichever goroutine calls Broadcast.
func (p *Protocol) BindDispatch(fn func(payload []byte) (int, error)) {
	p.dispatchMu.Lock()
	p.dispatch = fn
	p.dispatchMu.Unlock()
}

// Broadcast hands payload to the bound dispatch strategy, which fans it
// out to every ESTABLISHED connection bound to this protocol. The same
// path is used whether or not the caller runs on the event loop.
func (p *Protocol) Broadcast(payload []byte) (int, error) {
	p.dispatchMu.RLock()
	fn := p.dispatch
	p.dispatchMu.RUnlock()
	if fn == nil {
		return 0, ErrProtocolNotBound
	}
	return fn(payload)
}

// Registry is the ordered list of named protocols a server was
// constructed with. A Go slice's length stands in for the source's
// null-callback sentinel terminator; there is no analogous fixed-size
// C array to overrun.
type Registry struct {
	mu        sync.RWMutex
	protocols []*Protocol
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a new Protocol and returns it. Index is assigned as
// the protocol's position at registration time and never changes.
func (r *Registry) Register(name string, h Handler, userDataSize int) *Protocol {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := &Protocol{
		Name:         name,
		Handler:      h,
		UserDataSize: userDataSize,
		Index:        len(r.protocols),
	}
	r.protocols = append(r.protocols, p)
	return p
}

// Protocols returns the registered protocols in registration order.
func (r *Registry) Protocols() []*Protocol {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Protocol, len(r.protocols))
	copy(out, r.protocols)
	return out
}

// ByName looks up a protocol by its stable name.
func (r *Registry) ByName(name string) (*Protocol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.protocols {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// ByIndex looks up a protocol by its registration index.
func (r *Registry) ByIndex(idx int) (*Protocol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx < 0 || idx >= len(r.protocols) {
		return nil, false
	}
	return r.protocols[idx], true
}

// First returns the head-of-registry protocol — the tentative binding
// for freshly accepted connections and the sole recipient of HTTP
// (non-upgrade) callbacks.
func (r *Registry) First() (*Protocol, bool) {
	return r.ByIndex(0)
}

// Count reports the number of registered protocols.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.protocols)
}
