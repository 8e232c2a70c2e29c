package protocol

import (
	"sync"

	"github.com/tidalws/core/api"
)

// fakeTransport is a minimal api.Transport double for protocol-package
// unit tests, in the spirit of the project's fake.Transport test double.
type fakeTransport struct {
	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{}
}

func (t *fakeTransport) Send(buffers [][]byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return api.ErrTransportClosed
	}
	for _, b := range buffers {
		cp := make([]byte, len(b))
		copy(cp, b)
		t.sent = append(t.sent, cp)
	}
	return nil
}

func (t *fakeTransport) Recv() ([][]byte, error) { return nil, nil }

func (t *fakeTransport) Shutdown() error { return nil }

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *fakeTransport) Features() api.TransportFeatures { return api.TransportFeatures{} }

func (t *fakeTransport) Fd() int { return -1 }

func (t *fakeTransport) sentFrames() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.sent))
	copy(out, t.sent)
	return out
}

var _ api.Transport = (*fakeTransport)(nil)
