// Package transport implements api.Transport over raw, non-blocking
// unix sockets so the multiplexer can drive readiness with
// golang.org/x/sys/unix.Poll directly against the descriptors it owns,
// instead of going through Go's net package and its own internal
// poller. TCP covers plain listeners/connections and the per-protocol
// loopback broadcast-ingress sockets; TLSTransport layers crypto/tls
// over the same raw descriptor via rawConn.
package transport
