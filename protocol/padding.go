// File: protocol/padding.go
//
// PrePadding/PostPadding are part of the stable ABI of broadcast and
// write buffers: framing code writes a header in the slack before the
// payload and a trailer in the slack after it, both in place, so callers
// must never hand the dispatcher a buffer sized to exactly the payload.

package protocol

import "github.com/tidalws/core/api"

const (
	// PrePadding is the number of writable bytes reserved before the
	// payload region of a broadcast/write buffer.
	PrePadding = 16
	// PostPadding is the number of writable bytes reserved after the
	// payload region of a broadcast/write buffer.
	PostPadding = 16
)

// NewPaddedBuffer allocates a buffer of PrePadding+payloadLen+PostPadding
// bytes from pool and returns the full Buffer plus the payload-only slice
// view (Data[PrePadding:PrePadding+payloadLen]) a caller should fill.
func NewPaddedBuffer(pool api.BufferPool, payloadLen int, numaPreferred int) (full api.Buffer, payload []byte) {
	full = pool.Get(PrePadding+payloadLen+PostPadding, numaPreferred)
	payload = full.Data[PrePadding : PrePadding+payloadLen]
	return full, payload
}

// ErrPaddingViolation is returned by CheckPadding when a caller-supplied buffer does not
// reserve PrePadding/PostPadding slack around its payload.
var ErrPaddingViolation = paddingError{}

type paddingError struct{}

func (paddingError) Error() string {
	return "protocol: buffer does not reserve PrePadding/PostPadding slack"
}

// CheckPadding validates that buf is large enough to hold payloadLen bytes
// with the required slack on both sides, starting at offset PrePadding.
func CheckPadding(buf []byte, payloadLen int) error {
	if len(buf) < PrePadding+payloadLen+PostPadding {
		return ErrPaddingViolation
	}
	return nil
}
