package http

import "fmt"

// Method is a request method token.
type Method string

const (
	MethodGet  Method = "GET"
	MethodHead Method = "HEAD"
)

// StatusCode is an HTTP status code.
type StatusCode int

const (
	StatusOK         StatusCode = 200
	StatusBadRequest StatusCode = 400
	StatusForbidden  StatusCode = 403
	StatusNotFound   StatusCode = 404

	// StatusNotAllowed is 405. The parser rejects unknown methods with 400
	// before a Request exists, so the wire never produces it.
	StatusNotAllowed StatusCode = 405
)

// Reason returns the reason phrase sent on the status line.
func (s StatusCode) Reason() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusBadRequest:
		return "Bad Request"
	case StatusForbidden:
		return "Forbidden"
	case StatusNotFound:
		return "Not Found"
	case StatusNotAllowed:
		return "Not Allowed"
	default:
		return "Unknown"
	}
}

// String returns "<code> <reason>", e.g. "404 Not Found".
func (s StatusCode) String() string {
	return fmt.Sprintf("%d %s", int(s), s.Reason())
}

// Header names emitted by the server.
const (
	HeaderContentType   = "Content-Type"
	HeaderContentLength = "Content-Length"
	HeaderDate          = "Date"
	HeaderServer        = "Server"
	HeaderConnection    = "Connection"
)

const (
	// ProtocolVersion is written at the start of every status line.
	ProtocolVersion = "HTTP/1.1"

	// DateLayout is RFC 1123 with a literal GMT zone. Times must be in UTC.
	DateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

	// IndexFile is appended to request paths ending in "/".
	IndexFile = "index.html"

	// DefaultServerName is the Server header value when none is configured.
	DefaultServerName = "staticd"

	// DefaultChunkSize is the body streaming unit: 1 MiB.
	DefaultChunkSize = 1 << 20

	// DefaultReadBufferSize bounds how much of the request head is read.
	DefaultReadBufferSize = 4 << 10
)

var crlf = []byte("\r\n")
