// File: affinity/binder.go
//
// Binder adapts the package-level SetAffinity helper to the api.Affinity
// contract so callers (the event-loop startup path) can Pin/Unpin/inspect
// binding state through one small object instead of a bare function call.

package affinity

import (
	"sync"

	"github.com/tidalws/core/api"
)

// Binder implements api.Affinity for the calling goroutine's OS thread.
type Binder struct {
	mu    sync.Mutex
	state api.AffinityDescriptor
}

// NewBinder returns an unpinned Binder scoped to the current OS thread.
func NewBinder() *Binder {
	return &Binder{state: api.AffinityDescriptor{CPUID: -1, NUMAID: -1, Scope: api.ScopeThread}}
}

// Pin binds the calling OS thread to cpuID. numaID is recorded for
// reporting only; this package does not itself resolve NUMA topology.
func (b *Binder) Pin(cpuID, numaID int) error {
	if err := SetAffinity(cpuID); err != nil {
		return err
	}
	b.mu.Lock()
	b.state = api.AffinityDescriptor{CPUID: cpuID, NUMAID: numaID, Scope: api.ScopeThread, Pinned: true}
	b.mu.Unlock()
	return nil
}

// Unpin clears the recorded binding. Most platforms have no syscall to
// reverse sched_setaffinity back to "no mask"; we simply stop tracking
// it as pinned so a later Pin call is unambiguous.
func (b *Binder) Unpin() error {
	b.mu.Lock()
	b.state.Pinned = false
	b.mu.Unlock()
	return nil
}

// Get reports the last CPU/NUMA id passed to Pin.
func (b *Binder) Get() (cpuID, numaID int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.CPUID, b.state.NUMAID, nil
}

// Scope reports the binding scope (always thread-level for this binder).
func (b *Binder) Scope() api.AffinityScope {
	return api.ScopeThread
}

// ImmutableDescriptor returns a snapshot of the current binding state.
func (b *Binder) ImmutableDescriptor() api.AffinityDescriptor {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

var _ api.Affinity = (*Binder)(nil)
