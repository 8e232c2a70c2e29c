// File: transport/rawconn.go
//
// rawConn adapts a raw unix fd to net.Conn so crypto/tls can wrap it
// directly. net.FileConn would work too but duplicates the descriptor;
// since the multiplexer's poll array already owns fd by number, a
// second fd number referring to the same socket is one more thing to
// keep in sync on close. rawConn avoids that by never owning the fd at
// all — TCP.Close is the only place that actually closes it.

package transport

import (
	"io"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

type rawConn struct {
	fd     int
	readDL time.Time
}

func newRawConn(fd int) *rawConn { return &rawConn{fd: fd} }

func (c *rawConn) Read(b []byte) (int, error) {
	n, err := unix.Read(c.fd, b)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, os.ErrDeadlineExceeded
		}
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (c *rawConn) Write(b []byte) (int, error) {
	n, err := unix.Write(c.fd, b)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return 0, os.ErrDeadlineExceeded
		}
		return 0, err
	}
	return n, nil
}

// Close is a no-op: descriptor lifetime is owned by the TCP transport
// that constructed this rawConn, not by the tls.Conn wrapping it.
func (c *rawConn) Close() error { return nil }

func (c *rawConn) LocalAddr() net.Addr  { return rawAddr{} }
func (c *rawConn) RemoteAddr() net.Addr { return rawAddr{} }

// SetDeadline/SetReadDeadline record the deadline, but Read never
// consults it: Read reports EAGAIN as os.ErrDeadlineExceeded on its
// own, which is what the non-blocking peek in TLSTransport.Recv uses.
func (c *rawConn) SetDeadline(t time.Time) error     { c.readDL = t; return nil }
func (c *rawConn) SetReadDeadline(t time.Time) error { c.readDL = t; return nil }
func (c *rawConn) SetWriteDeadline(time.Time) error  { return nil }

type rawAddr struct{}

func (rawAddr) Network() string { return "tcp" }
func (rawAddr) String() string  { return "raw" }

var _ net.Conn = (*rawConn)(nil)
