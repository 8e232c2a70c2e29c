// Package pool provides a size-classed, NUMA-labeled buffer pool. In this
// module it backs the padded buffers the broadcast dispatcher allocates
// through protocol.NewPaddedBuffer; transport reads do not draw from it.
package pool
