package http

import (
	"bytes"
	"errors"
	"io"
	"sort"
	"strconv"
	"time"
)

// Response is a status, a unique-key header map and an optional body.
//
// A Response is written once and then closed; closing releases the body
// (usually an open file) whether or not it was streamed.
type Response struct {
	Status StatusCode

	headers  map[string]string
	body     io.ReadCloser
	bodySize int64
}

// NewResponse creates a response with no headers and no body.
func NewResponse(status StatusCode) *Response {
	return &Response{
		Status:  status,
		headers: make(map[string]string),
	}
}

// SetHeader sets name to value, replacing any previous value.
func (r *Response) SetHeader(name, value string) {
	r.headers[name] = value
}

// Header returns the value of name, or "" if unset.
func (r *Response) Header(name string) string {
	return r.headers[name]
}

// Headers returns a copy of the header map.
func (r *Response) Headers() map[string]string {
	out := make(map[string]string, len(r.headers))
	for k, v := range r.headers {
		out[k] = v
	}
	return out
}

// SetBody attaches body and sets Content-Length to size. Exactly size
// bytes are streamed even if the source holds more.
func (r *Response) SetBody(body io.ReadCloser, size int64) {
	r.body = body
	r.bodySize = size
	r.SetHeader(HeaderContentLength, strconv.FormatInt(size, 10))
}

// HasBody reports whether a body is attached.
func (r *Response) HasBody() bool {
	return r.body != nil
}

// BodySize is the declared body length, or 0 without a body.
func (r *Response) BodySize() int64 {
	return r.bodySize
}

// Finalize adds the headers every response carries: Date, Server and
// Connection: close.
func (r *Response) Finalize(serverName string, now time.Time) {
	if serverName == "" {
		serverName = DefaultServerName
	}
	r.SetHeader(HeaderDate, now.UTC().Format(DateLayout))
	r.SetHeader(HeaderServer, serverName)
	r.SetHeader(HeaderConnection, "close")
}

// Head renders the status line, the headers in sorted order and the blank
// line that ends them.
func (r *Response) Head() []byte {
	names := make([]string, 0, len(r.headers))
	for name := range r.headers {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	buf.WriteString(ProtocolVersion)
	buf.WriteByte(' ')
	buf.WriteString(r.Status.String())
	buf.Write(crlf)
	for _, name := range names {
		buf.WriteString(name)
		buf.WriteString(": ")
		buf.WriteString(r.headers[name])
		buf.Write(crlf)
	}
	buf.Write(crlf)

	return buf.Bytes()
}

// WriteTo streams the response using DefaultChunkSize.
func (r *Response) WriteTo(w io.Writer) (int64, error) {
	return r.Stream(w, DefaultChunkSize)
}

// Stream writes the head and then the body in chunkSize pieces.
//
// There is no retry: the first failed write ends the transfer and its error
// is returned with the number of bytes already written. The head has been
// sent by then, so the caller can only drop the connection.
//
// A body shorter than its declared size yields io.ErrUnexpectedEOF.
func (r *Response) Stream(w io.Writer, chunkSize int) (int64, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}

	n, err := w.Write(r.Head())
	written := int64(n)
	if err != nil {
		return written, err
	}

	if r.body == nil {
		return written, nil
	}

	buf := GetBuffer(chunkSize)
	defer PutBuffer(buf)

	src := io.LimitReader(r.body, r.bodySize)
	var sent int64
	for sent < r.bodySize {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := w.Write(buf[:nr])
			written += int64(nw)
			sent += int64(nw)
			if werr != nil {
				return written, werr
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			return written, rerr
		}
	}

	if sent < r.bodySize {
		return written, io.ErrUnexpectedEOF
	}
	return written, nil
}

// Close releases the body, if any.
func (r *Response) Close() error {
	if r.body == nil {
		return nil
	}
	err := r.body.Close()
	r.body = nil
	return err
}
