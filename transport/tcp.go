// File: transport/tcp.go
//
// Plain-TCP api.Transport over a raw non-blocking socket, grounded on
// the teacher's direct unix.Socket/SendmsgBuffers/RecvmsgBuffers use
// for its Linux transport.

package transport

import (
	"fmt"
	"io"

	"github.com/tidalws/core/api"
	"golang.org/x/sys/unix"
)

// TCP implements api.Transport directly over a raw socket descriptor.
type TCP struct {
	fd       int
	closed   bool
	features api.TransportFeatures
}

// ListenTCP creates a non-blocking listening socket bound to ip:port
// with SO_REUSEADDR set, so the port can be rebound while a previous
// listener's sockets are still in TIME_WAIT. port == 0 lets the kernel
// choose an ephemeral port, used for per-protocol broadcast ingress.
func ListenTCP(ip [4]byte, port int) (*TCP, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("transport: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrInet4{Port: port, Addr: ip}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: bind: %w", err)
	}
	if err := unix.Listen(fd, 1024); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: listen: %w", err)
	}
	return &TCP{fd: fd, features: api.TransportFeatures{Batch: true, OS: []string{"linux"}}}, nil
}

// DialLoopback connects a non-blocking client socket to 127.0.0.1:port,
// used to obtain the "connected writer descriptor" an external context
// needs to submit a cross-context broadcast.
func DialLoopback(port int) (*TCP, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, fmt.Errorf("transport: socket: %w", err)
	}
	if err := unix.Connect(fd, &unix.SockaddrInet4{Port: port, Addr: [4]byte{127, 0, 0, 1}}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: connect loopback: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("transport: set nonblocking: %w", err)
	}
	return &TCP{fd: fd, features: api.TransportFeatures{OS: []string{"linux"}}}, nil
}

// LocalPort reports the OS-assigned port of a socket bound to port 0.
func (t *TCP) LocalPort() (int, error) {
	sa, err := unix.Getsockname(t.fd)
	if err != nil {
		return 0, fmt.Errorf("transport: getsockname: %w", err)
	}
	v, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return 0, fmt.Errorf("transport: unexpected sockaddr type %T", sa)
	}
	return v.Port, nil
}

// Accept accepts one pending connection on a listening socket.
func (t *TCP) Accept() (*TCP, error) {
	nfd, _, err := unix.Accept4(t.fd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return nil, err
	}
	_ = unix.SetsockoptInt(nfd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	return &TCP{fd: nfd, features: api.TransportFeatures{ZeroCopy: true, Batch: true, OS: []string{"linux"}}}, nil
}

// Send implements api.Transport.
func (t *TCP) Send(buffers [][]byte) error {
	if t.closed {
		return api.ErrTransportClosed
	}
	_, err := unix.SendmsgBuffers(t.fd, buffers, nil, nil, 0)
	return err
}

// Recv implements api.Transport. A zero-byte read is reported as
// io.EOF, matching Go's io.Reader convention for a closed peer; EAGAIN
// is reported as (nil, nil) meaning "no data yet this tick".
func (t *TCP) Recv() ([][]byte, error) {
	if t.closed {
		return nil, api.ErrTransportClosed
	}
	buf := make([]byte, 65536)
	n, err := unix.Read(t.fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return nil, nil
		}
		return nil, err
	}
	if n == 0 {
		return nil, io.EOF
	}
	return [][]byte{buf[:n]}, nil
}

// Shutdown half-closes both directions ahead of Close.
func (t *TCP) Shutdown() error {
	if t.closed {
		return nil
	}
	return unix.Shutdown(t.fd, unix.SHUT_RDWR)
}

// Close releases the descriptor. Idempotent.
func (t *TCP) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	return unix.Close(t.fd)
}

// Features implements api.Transport.
func (t *TCP) Features() api.TransportFeatures { return t.features }

// Fd implements api.Transport.
func (t *TCP) Fd() int { return t.fd }

var _ api.Transport = (*TCP)(nil)
