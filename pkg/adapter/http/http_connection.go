package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/marmos91/staticd/internal/logger"
	protocol "github.com/marmos91/staticd/internal/protocol/http"
)

var crlf = []byte("\r\n")

// HTTPConnection serves exactly one request on one accepted connection.
type HTTPConnection struct {
	server *HTTPAdapter
	task   *connTask
}

// newHTTPConnection binds a queued task to the adapter whose configuration
// (buffer size, timeouts, chunk size, server name) governs how it is served.
func newHTTPConnection(server *HTTPAdapter, task *connTask) *HTTPConnection {
	return &HTTPConnection{
		server: server,
		task:   task,
	}
}

// Serve reads the request head, builds the response and streams it, then
// closes the connection. Every error is terminal for this connection only.
func (c *HTTPConnection) Serve(ctx context.Context) {
	conn := c.task.conn
	clientAddr := conn.RemoteAddr().String()

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Panic in HTTP connection handler from %s: %v", clientAddr, r)
		}
		_ = conn.Close()
	}()

	buf := protocol.GetBuffer(c.server.config.ReadBufferSize)
	defer protocol.PutBuffer(buf)

	n, err := c.readRequestHead(buf)
	if err != nil {
		c.logReadError(clientAddr, err)
		return
	}

	// ===== Step 1: Parse =====
	start := time.Now()
	req, err := protocol.ParseRequest(buf[:n])

	// ===== Step 2: Resolve and build =====
	var resp *protocol.Response
	if err != nil {
		logger.Debug("Bad request from %s: %v", clientAddr, err)
		resp = protocol.BadRequest()
	} else {
		resp = protocol.BuildResponse(ctx, req, c.task.sctx.DocumentRoot(), c.task.sctx.Store())
	}
	defer func() {
		if cerr := resp.Close(); cerr != nil {
			logger.Debug("Error closing response body for %s: %v", clientAddr, cerr)
		}
	}()

	resp.Finalize(c.server.config.ServerName, time.Now())

	// ===== Step 3: Stream =====
	if c.server.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(c.server.config.WriteTimeout)); err != nil {
			logger.Debug("Failed to set write deadline for %s: %v", clientAddr, err)
		}
	}

	written, err := resp.Stream(conn, c.server.config.ChunkSize)
	duration := time.Since(start)

	method := "-"
	if req != nil {
		method = string(req.Method)
	}
	c.server.metrics.RecordRequest(method, int(resp.Status), duration)
	c.server.metrics.RecordBytesSent(written)

	if err != nil {
		logger.Debug("Response to %s aborted after %s: %v", clientAddr, humanize.Bytes(uint64(written)), err)
		return
	}

	logger.Info("%s %s -> %d (%s) in %v", clientAddr, requestLine(req), int(resp.Status),
		humanize.Bytes(uint64(written)), duration)
}

// readRequestHead fills buf until it holds a CRLF, the buffer is full or the
// peer stops sending. A peer that sends nothing and closes yields io.EOF.
//
// Each Read gets its own ReadTimeout deadline, so time spent queued before a
// worker picked the task up does not count against the client. Data received
// before EOF or the deadline is returned without error so an incomplete
// request line is answered with 400.
func (c *HTTPConnection) readRequestHead(buf []byte) (int, error) {
	conn := c.task.conn
	timeout := c.server.config.ReadTimeout

	n := 0
	for n < len(buf) {
		if timeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
				return n, fmt.Errorf("set read deadline: %w", err)
			}
		}

		m, err := conn.Read(buf[n:])
		scanFrom := max(0, n-1)
		n += m

		if bytes.Contains(buf[scanFrom:n], crlf) {
			return n, nil
		}

		if err != nil {
			if n > 0 && (errors.Is(err, io.EOF) || isTimeout(err)) {
				return n, nil
			}
			return n, err
		}
	}
	return n, nil
}

func (c *HTTPConnection) logReadError(clientAddr string, err error) {
	switch {
	case errors.Is(err, io.EOF):
		logger.Debug("HTTP connection from %s closed without data", clientAddr)
	case isTimeout(err):
		logger.Debug("HTTP connection from %s timed out waiting for request", clientAddr)
	case errors.Is(err, net.ErrClosed):
		logger.Debug("HTTP connection from %s closed during read", clientAddr)
	default:
		logger.Debug("Error reading request from %s: %v", clientAddr, err)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func requestLine(req *protocol.Request) string {
	if req == nil {
		return "-"
	}
	return fmt.Sprintf("%s %s", req.Method, req.Target)
}
