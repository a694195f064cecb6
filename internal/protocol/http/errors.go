package http

import (
	"errors"
	"fmt"
)

// ErrBadRequest is wrapped by every parse failure. Callers answer it with 400.
var ErrBadRequest = errors.New("bad request")

var (
	ErrMissingTerminator = fmt.Errorf("%w: request line not terminated by CRLF", ErrBadRequest)
	ErrEmptyRequestLine  = fmt.Errorf("%w: empty request line", ErrBadRequest)
	ErrTooFewTokens      = fmt.Errorf("%w: request line needs method, target and version", ErrBadRequest)
	ErrUnsupportedMethod = fmt.Errorf("%w: unsupported method", ErrBadRequest)
	ErrPathTraversal     = fmt.Errorf("%w: path traversal", ErrBadRequest)
	ErrInvalidEncoding   = fmt.Errorf("%w: invalid percent-encoding", ErrBadRequest)
	ErrRelativeTarget    = fmt.Errorf("%w: request target must start with /", ErrBadRequest)
)
