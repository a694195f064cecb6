package http

import (
	"bytes"
	"fmt"
	"strings"
)

// Request is a parsed request line.
//
// Path is the percent-decoded request path with the query string removed
// and, for auto-index requests, IndexFile appended. It always starts with
// "/" and never contains "/..".
type Request struct {
	Method    Method
	Path      string
	AutoIndex bool

	// Target and Version are the raw tokens, kept for logging.
	Target  string
	Version string
}

// ParseRequest parses the request line at the start of raw.
//
// Only the first CRLF-terminated line is examined. It is split on single
// spaces and must yield at least three tokens: method, request target and
// version. Extra tokens are ignored, as are any following header lines.
//
// Returns an error wrapping ErrBadRequest when:
//   - raw has no CRLF, or the first line is empty
//   - the line has fewer than three tokens
//   - the method is not exactly GET or HEAD
//   - the request target fails path resolution (see parseTarget)
func ParseRequest(raw []byte) (*Request, error) {
	end := bytes.Index(raw, crlf)
	if end < 0 {
		return nil, ErrMissingTerminator
	}
	if end == 0 {
		return nil, ErrEmptyRequestLine
	}

	tokens := strings.Split(string(raw[:end]), " ")
	if len(tokens) < 3 {
		return nil, ErrTooFewTokens
	}

	method := Method(tokens[0])
	if method != MethodGet && method != MethodHead {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedMethod, tokens[0])
	}

	path, autoIndex, err := parseTarget(tokens[1])
	if err != nil {
		return nil, err
	}

	return &Request{
		Method:    method,
		Path:      path,
		AutoIndex: autoIndex,
		Target:    tokens[1],
		Version:   tokens[2],
	}, nil
}
