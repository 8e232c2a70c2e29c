// File: pool/pool.go
//
// Pool implements api.BufferPool over a set of sync.Pool size classes,
// one per power-of-two bucket, segmented by caller-supplied NUMA node id.
// The node id is not resolved against real topology here: most deployments
// of this core run a single event-loop thread, and the payoff of true
// NUMA-local allocation is confined to the multi-reactor configurations
// this package's teacher targets. We keep the partitioning key because
// callers (wsserver.Config.NUMANode) already plumb it through, but the
// buckets per node are otherwise identical sync.Pool instances.
package pool

import (
	"sync"

	"github.com/tidalws/core/api"
)

const (
	minClassShift = 6  // 64 bytes
	maxClassShift = 20 // 1 MiB
)

// Pool is a concrete api.BufferPool backed by per-size-class sync.Pools.
type Pool struct {
	mu     sync.RWMutex
	nodes  map[int]*nodePools
	stats  api.BufferPoolStats
	statMu sync.Mutex
}

type nodePools struct {
	classes [maxClassShift - minClassShift + 1]sync.Pool
}

// New creates an empty Pool. NUMA node buckets are created lazily on
// first Get/Put for that node.
func New() *Pool {
	return &Pool{nodes: make(map[int]*nodePools)}
}

func classShiftFor(size int) int {
	shift := minClassShift
	for (1 << shift) < size {
		shift++
		if shift > maxClassShift {
			return maxClassShift
		}
	}
	return shift
}

func (p *Pool) nodeFor(numaPreferred int) *nodePools {
	p.mu.RLock()
	np, ok := p.nodes[numaPreferred]
	p.mu.RUnlock()
	if ok {
		return np
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if np, ok = p.nodes[numaPreferred]; ok {
		return np
	}
	np = &nodePools{}
	for i := range np.classes {
		shift := minClassShift + i
		np.classes[i].New = func() any {
			return make([]byte, 1<<shift)
		}
	}
	p.nodes[numaPreferred] = np
	return np
}

// Get returns a Buffer of at least size bytes, preferring the pool for
// numaPreferred (-1 selects the default/unpartitioned pool).
func (p *Pool) Get(size int, numaPreferred int) api.Buffer {
	np := p.nodeFor(numaPreferred)
	shift := classShiftFor(size)
	idx := shift - minClassShift
	raw := np.classes[idx].Get().([]byte)
	if cap(raw) < size {
		raw = make([]byte, size)
	}
	p.statMu.Lock()
	p.stats.TotalAlloc++
	p.stats.InUse++
	p.statMu.Unlock()
	return api.Buffer{Data: raw[:size], NUMA: numaPreferred, Pool: p, Class: idx}
}

// Put implements api.Releaser, returning b to its size class.
func (p *Pool) Put(b api.Buffer) {
	if b.Data == nil {
		return
	}
	np := p.nodeFor(b.NUMA)
	if b.Class >= 0 && b.Class < len(np.classes) {
		np.classes[b.Class].Put(b.Data[:cap(b.Data)])
	}
	p.statMu.Lock()
	p.stats.TotalFree++
	p.stats.InUse--
	p.statMu.Unlock()
}

// Stats returns a snapshot of pool usage counters.
func (p *Pool) Stats() api.BufferPoolStats {
	p.statMu.Lock()
	defer p.statMu.Unlock()
	return p.stats
}

var _ api.BufferPool = (*Pool)(nil)
var _ api.Releaser = (*Pool)(nil)
