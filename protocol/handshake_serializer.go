// File: protocol/handshake_serializer.go
//
// Serialization of the handshake response and the minimal HTTP
// fallback response, written directly over a Connection's transport
// rather than an io.Writer so the same padded-buffer-free path works
// for both plain TCP and TLS transports.

package protocol

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/tidalws/core/api"
)

// WriteHandshakeResponse sends a "101 Switching Protocols" response
// carrying hdr over tr.
func WriteHandshakeResponse(tr api.Transport, hdr http.Header) error {
	var buf bytes.Buffer
	buf.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	for k, vs := range hdr {
		for _, v := range vs {
			fmt.Fprintf(&buf, "%s: %s\r\n", k, v)
		}
	}
	buf.WriteString("\r\n")
	return tr.Send([][]byte{buf.Bytes()})
}

// WriteHTTPFallback writes a minimal non-upgrade response for a
// connection the registry's first protocol declined to service.
func WriteHTTPFallback(tr api.Transport, path string) error {
	body := fmt.Sprintf("no upgrade handler for %s\n", path)
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "HTTP/1.1 404 Not Found\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		len(body), body)
	return tr.Send([][]byte{buf.Bytes()})
}
