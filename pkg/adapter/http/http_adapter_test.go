package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/staticd/pkg/adapter"
	"github.com/marmos91/staticd/pkg/content"
	"github.com/marmos91/staticd/pkg/content/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRoot = "/www"

// ============================================================================
// Helpers
// ============================================================================

func newTestStore(t *testing.T, files map[string]string) *memory.MemoryContentStore {
	t.Helper()

	store, err := memory.NewMemoryContentStore(context.Background(), memory.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	for name, data := range files {
		require.NoError(t, store.Put(context.Background(), testRoot+name, []byte(data)))
	}
	return store
}

// blockingStore holds every Open until release is closed or the request
// context is cancelled.
type blockingStore struct {
	content.Store
	entered chan string
	release chan struct{}
}

func newBlockingStore(inner content.Store) *blockingStore {
	return &blockingStore{
		Store:   inner,
		entered: make(chan string, 64),
		release: make(chan struct{}),
	}
}

func (b *blockingStore) Open(ctx context.Context, name string) (*content.Object, error) {
	b.entered <- name
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.Store.Open(ctx, name)
}

type runningAdapter struct {
	adapter *HTTPAdapter
	addr    string
	cancel  context.CancelFunc
	done    chan error
}

func startAdapter(t *testing.T, config HTTPConfig, store content.Store) *runningAdapter {
	t.Helper()

	config.Address = "127.0.0.1"
	a := New(config, nil)
	a.SetServerContext(adapter.NewServerContext(testRoot, store))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()

	require.Eventually(t, func() bool { return a.Addr() != nil }, 2*time.Second, 5*time.Millisecond,
		"listener did not start")

	ra := &runningAdapter{adapter: a, addr: a.Addr().String(), cancel: cancel, done: done}
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("adapter did not stop")
		}
	})
	return ra
}

func (ra *runningAdapter) wait(t *testing.T) error {
	t.Helper()
	select {
	case err := <-ra.done:
		ra.done <- err // leave it for Cleanup
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

type rawResponse struct {
	statusLine string
	headers    map[string]string
	body       []byte
}

func (r *rawResponse) status() int {
	parts := strings.SplitN(r.statusLine, " ", 3)
	if len(parts) < 2 {
		return 0
	}
	code, _ := strconv.Atoi(parts[1])
	return code
}

func parseRawResponse(t *testing.T, raw []byte) *rawResponse {
	t.Helper()

	head, body, found := bytes.Cut(raw, []byte("\r\n\r\n"))
	require.True(t, found, "response has no header terminator: %q", raw)

	lines := strings.Split(string(head), "\r\n")
	resp := &rawResponse{statusLine: lines[0], headers: make(map[string]string), body: body}
	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ": ")
		require.True(t, ok, "malformed header line %q", line)
		resp.headers[name] = value
	}
	return resp
}

// exchange sends raw on a new connection and returns everything the server
// wrote before closing.
func exchange(t *testing.T, addr, raw string) []byte {
	t.Helper()

	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))
	_, err = io.WriteString(conn, raw)
	require.NoError(t, err)

	data, err := io.ReadAll(conn)
	require.NoError(t, err)
	return data
}

func request(t *testing.T, addr, raw string) *rawResponse {
	t.Helper()
	return parseRawResponse(t, exchange(t, addr, raw))
}

// ============================================================================
// Request handling over the wire
// ============================================================================

func TestServeGet(t *testing.T) {
	store := newTestStore(t, map[string]string{"/hello.txt": "hello, world"})
	ra := startAdapter(t, HTTPConfig{Workers: 2}, store)

	resp := request(t, ra.addr, "GET /hello.txt HTTP/1.1\r\nHost: localhost\r\n\r\n")

	assert.Equal(t, "HTTP/1.1 200 OK", resp.statusLine)
	assert.Equal(t, "12", resp.headers["Content-Length"])
	assert.Equal(t, "application/octet-stream", resp.headers["Content-Type"])
	assert.Equal(t, "close", resp.headers["Connection"])
	assert.Equal(t, "staticd", resp.headers["Server"])
	assert.NotEmpty(t, resp.headers["Date"])
	assert.Equal(t, "hello, world", string(resp.body))
}

func TestServeHeadHasNoBody(t *testing.T) {
	store := newTestStore(t, map[string]string{"/page.html": "<p>page</p>"})
	ra := startAdapter(t, HTTPConfig{Workers: 1}, store)

	resp := request(t, ra.addr, "HEAD /page.html HTTP/1.1\r\n\r\n")

	assert.Equal(t, 200, resp.status())
	assert.Equal(t, "11", resp.headers["Content-Length"])
	assert.Equal(t, "text/html", resp.headers["Content-Type"])
	assert.Empty(t, resp.body)
}

func TestServeAutoIndex(t *testing.T) {
	store := newTestStore(t, map[string]string{"/index.html": "root index", "/docs/index.html": "docs index"})
	ra := startAdapter(t, HTTPConfig{Workers: 1}, store)

	resp := request(t, ra.addr, "GET / HTTP/1.1\r\n\r\n")
	assert.Equal(t, 200, resp.status())
	assert.Equal(t, "root index", string(resp.body))

	resp = request(t, ra.addr, "GET /docs/?lang=en HTTP/1.1\r\n\r\n")
	assert.Equal(t, 200, resp.status())
	assert.Equal(t, "docs index", string(resp.body))
}

func TestServeStatusCodes(t *testing.T) {
	store := newTestStore(t, map[string]string{"/a b.txt": "spaced"})
	ra := startAdapter(t, HTTPConfig{Workers: 2}, store)

	tests := []struct {
		name    string
		request string
		status  int
	}{
		{"percent-decoded path", "GET /a%20b.txt HTTP/1.1\r\n\r\n", 200},
		{"missing file", "GET /missing.html HTTP/1.1\r\n\r\n", 404},
		{"missing index", "GET /nodir/ HTTP/1.1\r\n\r\n", 403},
		{"HEAD missing index", "HEAD /nodir/ HTTP/1.1\r\n\r\n", 403},
		{"unsupported method", "POST /a%20b.txt HTTP/1.1\r\n\r\n", 400},
		{"lowercase method", "get /a%20b.txt HTTP/1.1\r\n\r\n", 400},
		{"traversal", "GET /../etc/passwd HTTP/1.1\r\n\r\n", 400},
		{"encoded traversal", "GET /%2e%2e/etc/passwd HTTP/1.1\r\n\r\n", 400},
		{"two tokens", "GET /\r\n\r\n", 400},
		{"empty line", "\r\n", 400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := request(t, ra.addr, tt.request)
			assert.Equal(t, tt.status, resp.status())
			assert.Equal(t, "close", resp.headers["Connection"])
			if tt.status != 200 {
				assert.Empty(t, resp.body)
			}
		})
	}
}

func TestServeIncompleteRequestLineAfterTimeout(t *testing.T) {
	store := newTestStore(t, nil)
	ra := startAdapter(t, HTTPConfig{Workers: 1, ReadTimeout: 200 * time.Millisecond}, store)

	conn, err := net.Dial("tcp", ra.addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = io.WriteString(conn, "GET /index.html HTTP/1.1")
	require.NoError(t, err)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	data, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, 400, parseRawResponse(t, data).status())
}

func TestServeSilentCloseWithoutData(t *testing.T) {
	store := newTestStore(t, nil)
	ra := startAdapter(t, HTTPConfig{Workers: 1, ReadTimeout: 200 * time.Millisecond}, store)

	t.Run("PeerClosesWriteSide", func(t *testing.T) {
		conn, err := net.Dial("tcp", ra.addr)
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.(*net.TCPConn).CloseWrite())
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

		data, err := io.ReadAll(conn)
		require.NoError(t, err)
		assert.Empty(t, data)
	})

	t.Run("ReadTimeout", func(t *testing.T) {
		conn, err := net.Dial("tcp", ra.addr)
		require.NoError(t, err)
		defer conn.Close()

		start := time.Now()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

		data, err := io.ReadAll(conn)
		require.NoError(t, err)
		assert.Empty(t, data)
		assert.Less(t, time.Since(start), 4*time.Second)
	})
}

func TestServeConcurrentDistinctFiles(t *testing.T) {
	const clients = 32

	files := make(map[string]string, clients)
	for i := 0; i < clients; i++ {
		files[fmt.Sprintf("/file-%02d.bin", i)] = strings.Repeat(string(rune('a'+i%26)), 1000*(i+1))
	}
	store := newTestStore(t, files)
	ra := startAdapter(t, HTTPConfig{Workers: 4, ChunkSize: 4096}, store)

	var wg sync.WaitGroup
	type result struct {
		name string
		resp *rawResponse
		err  error
	}
	results := make(chan result, clients)

	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()

			conn, err := net.Dial("tcp", ra.addr)
			if err != nil {
				results <- result{name: name, err: err}
				return
			}
			defer conn.Close()

			_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
			if _, err := fmt.Fprintf(conn, "GET %s HTTP/1.1\r\n\r\n", name); err != nil {
				results <- result{name: name, err: err}
				return
			}
			data, err := io.ReadAll(conn)
			if err != nil {
				results <- result{name: name, err: err}
				return
			}
			results <- result{name: name, resp: parseRawResponse(t, data)}
		}(fmt.Sprintf("/file-%02d.bin", i))
	}

	wg.Wait()
	close(results)

	count := 0
	for r := range results {
		require.NoError(t, r.err, r.name)
		want := files[r.name]
		assert.Equal(t, 200, r.resp.status(), r.name)
		assert.Equal(t, strconv.Itoa(len(want)), r.resp.headers["Content-Length"], r.name)
		assert.Equal(t, want, string(r.resp.body), r.name)
		count++
	}
	assert.Equal(t, clients, count)

	require.Eventually(t, func() bool { return ra.adapter.GetActiveConnections() == 0 },
		2*time.Second, 10*time.Millisecond)
}

// ============================================================================
// Shutdown
// ============================================================================

func TestGracefulShutdownServesQueuedConnections(t *testing.T) {
	store := newBlockingStore(newTestStore(t, map[string]string{"/a.txt": "first", "/b.txt": "second"}))
	ra := startAdapter(t, HTTPConfig{Workers: 1, ShutdownTimeout: 5 * time.Second}, store)

	type answer struct {
		data []byte
		err  error
	}
	send := func(name string) chan answer {
		ch := make(chan answer, 1)
		go func() {
			conn, err := net.Dial("tcp", ra.addr)
			if err != nil {
				ch <- answer{err: err}
				return
			}
			defer conn.Close()
			_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
			_, _ = fmt.Fprintf(conn, "GET %s HTTP/1.1\r\n\r\n", name)
			data, err := io.ReadAll(conn)
			ch <- answer{data: data, err: err}
		}()
		return ch
	}

	first := send("/a.txt")
	<-store.entered // the only worker is now busy

	second := send("/b.txt")
	require.Eventually(t, func() bool { return ra.adapter.GetActiveConnections() == 2 },
		2*time.Second, 5*time.Millisecond, "second connection was not queued")

	ra.cancel()

	// New connections are refused once the listener is closed.
	require.Eventually(t, func() bool {
		conn, err := net.DialTimeout("tcp", ra.addr, 100*time.Millisecond)
		if err != nil {
			return true
		}
		_ = conn.Close()
		return false
	}, 2*time.Second, 10*time.Millisecond)

	close(store.release)

	for name, ch := range map[string]chan answer{"first": first, "second": second} {
		a := <-ch
		require.NoError(t, a.err, name)
		assert.Equal(t, 200, parseRawResponse(t, a.data).status(), name)
	}

	assert.NoError(t, ra.wait(t))
	assert.Zero(t, ra.adapter.GetActiveConnections())
}

func TestQueuedConnectionOutlivesReadTimeout(t *testing.T) {
	store := newBlockingStore(newTestStore(t, map[string]string{"/a.html": "first", "/b.html": "second"}))
	ra := startAdapter(t, HTTPConfig{Workers: 1, ReadTimeout: 300 * time.Millisecond}, store)

	get := func(name string) chan []byte {
		ch := make(chan []byte, 1)
		go func() {
			conn, err := net.Dial("tcp", ra.addr)
			if err != nil {
				ch <- nil
				return
			}
			defer conn.Close()
			_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
			_, _ = fmt.Fprintf(conn, "GET %s HTTP/1.1\r\n\r\n", name)
			data, _ := io.ReadAll(conn)
			ch <- data
		}()
		return ch
	}

	first := get("/a.html")
	<-store.entered

	second := get("/b.html")
	require.Eventually(t, func() bool { return ra.adapter.GetActiveConnections() == 2 },
		2*time.Second, 5*time.Millisecond, "second connection was not queued")

	// Keep the only worker busy for twice the read timeout.
	time.Sleep(600 * time.Millisecond)
	close(store.release)

	firstResp := parseRawResponse(t, <-first)
	assert.Equal(t, 200, firstResp.status())
	assert.Equal(t, "first", string(firstResp.body))

	data := <-second
	require.NotEmpty(t, data, "queued client got no response")
	secondResp := parseRawResponse(t, data)
	assert.Equal(t, 200, secondResp.status())
	assert.Equal(t, "second", string(secondResp.body))
}

func TestForcedConnectionClosure(t *testing.T) {
	store := newBlockingStore(newTestStore(t, map[string]string{"/slow.txt": "never sent"}))
	ra := startAdapter(t, HTTPConfig{Workers: 1, ShutdownTimeout: 200 * time.Millisecond}, store)

	conn, err := net.Dial("tcp", ra.addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = io.WriteString(conn, "GET /slow.txt HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	<-store.entered

	start := time.Now()
	ra.cancel()

	err = ra.wait(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "force-closed")
	assert.Less(t, time.Since(start), 3*time.Second)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	data, _ := io.ReadAll(conn)
	assert.NotContains(t, string(data), "200 OK")
}

func TestStopIsIdempotent(t *testing.T) {
	store := newTestStore(t, nil)
	ra := startAdapter(t, HTTPConfig{Workers: 2}, store)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			assert.NoError(t, ra.adapter.Stop(ctx))
		}()
	}
	wg.Wait()

	assert.NoError(t, ra.wait(t))
}

func TestStopBeforeServe(t *testing.T) {
	a := New(HTTPConfig{Address: "127.0.0.1", Workers: 1}, nil)
	a.SetServerContext(adapter.NewServerContext(testRoot, newTestStore(t, nil)))

	require.NoError(t, a.Stop(context.Background()))

	done := make(chan error, 1)
	go func() { done <- a.Serve(context.Background()) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve kept running after Stop")
	}
}

func TestServeWithoutServerContext(t *testing.T) {
	a := New(HTTPConfig{Address: "127.0.0.1"}, nil)
	err := a.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server context")
}

func TestServeListenError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	a := New(HTTPConfig{Address: "127.0.0.1", Port: ln.Addr().(*net.TCPAddr).Port}, nil)
	a.SetServerContext(adapter.NewServerContext(testRoot, newTestStore(t, nil)))

	err = a.Serve(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create HTTP listener")
}

// ============================================================================
// Connection limiting
// ============================================================================

func TestConnectionLimiting(t *testing.T) {
	store := newBlockingStore(newTestStore(t, map[string]string{"/a.txt": "a", "/b.txt": "b"}))
	ra := startAdapter(t, HTTPConfig{Workers: 2, MaxConnections: 1}, store)

	first, err := net.Dial("tcp", ra.addr)
	require.NoError(t, err)
	defer first.Close()
	_, err = io.WriteString(first, "GET /a.txt HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	<-store.entered

	// The kernel completes the handshake but the adapter does not accept it.
	second, err := net.Dial("tcp", ra.addr)
	require.NoError(t, err)
	defer second.Close()
	_, err = io.WriteString(second, "GET /b.txt HTTP/1.1\r\n\r\n")
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(1), ra.adapter.GetActiveConnections())
	assert.Len(t, store.entered, 0, "second request must not reach the store yet")

	close(store.release)

	for _, conn := range []net.Conn{first, second} {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		data, err := io.ReadAll(conn)
		require.NoError(t, err)
		assert.Equal(t, 200, parseRawResponse(t, data).status())
	}
}

// ============================================================================
// Metrics
// ============================================================================

type recordingMetrics struct {
	mu        sync.Mutex
	requests  map[string]int
	bytesSent int64
	accepted  int
	closed    int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{requests: make(map[string]int)}
}

func (m *recordingMetrics) RecordRequest(method string, status int, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests[fmt.Sprintf("%s %d", method, status)]++
}

func (m *recordingMetrics) RecordBytesSent(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bytesSent += n
}

func (m *recordingMetrics) RecordConnectionAccepted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accepted++
}

func (m *recordingMetrics) RecordConnectionClosed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
}

func (m *recordingMetrics) SetActiveConnections(int32)  {}
func (m *recordingMetrics) RecordConnectionForceClosed() {}
func (m *recordingMetrics) SetQueueDepth(int)            {}
func (m *recordingMetrics) SetBusyWorkers(int)           {}

func TestMetricsRecorded(t *testing.T) {
	rec := newRecordingMetrics()
	store := newTestStore(t, map[string]string{"/x.txt": "xyz"})

	a := New(HTTPConfig{Address: "127.0.0.1", Workers: 1}, rec)
	a.SetServerContext(adapter.NewServerContext(testRoot, store))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx) }()
	require.Eventually(t, func() bool { return a.Addr() != nil }, 2*time.Second, 5*time.Millisecond)

	request(t, a.Addr().String(), "GET /x.txt HTTP/1.1\r\n\r\n")
	request(t, a.Addr().String(), "DELETE /x.txt HTTP/1.1\r\n\r\n")

	cancel()
	require.NoError(t, <-done)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, 1, rec.requests["GET 200"])
	assert.Equal(t, 1, rec.requests["- 400"])
	assert.Equal(t, 2, rec.accepted)
	assert.Equal(t, 2, rec.closed)
	assert.Positive(t, rec.bytesSent)
}

// ============================================================================
// Configuration
// ============================================================================

func TestHTTPConfigDefaults(t *testing.T) {
	var cfg HTTPConfig
	cfg.applyDefaults()

	assert.Equal(t, "staticd", cfg.ServerName)
	assert.Positive(t, cfg.Workers)
	assert.Equal(t, 10*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, 4096, cfg.ReadBufferSize)
	assert.Equal(t, 1<<20, cfg.ChunkSize)
	assert.Zero(t, cfg.WriteTimeout)
	assert.Zero(t, cfg.MaxConnections)
	require.NoError(t, cfg.validate())
}

func TestHTTPConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*HTTPConfig)
	}{
		{"port too large", func(c *HTTPConfig) { c.Port = 70000 }},
		{"negative read timeout", func(c *HTTPConfig) { c.ReadTimeout = -time.Second }},
		{"tiny read buffer", func(c *HTTPConfig) { c.ReadBufferSize = 8 }},
		{"negative max connections", func(c *HTTPConfig) { c.MaxConnections = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var cfg HTTPConfig
			cfg.applyDefaults()
			tt.mutate(&cfg)
			assert.Error(t, cfg.validate())
		})
	}
}

func TestNewPanicsOnInvalidConfig(t *testing.T) {
	assert.Panics(t, func() { New(HTTPConfig{Port: -1}, nil) })
}

func TestProtocolAndPort(t *testing.T) {
	a := New(HTTPConfig{Port: 9000}, nil)
	assert.Equal(t, "HTTP", a.Protocol())
	assert.Equal(t, 9000, a.Port())
	assert.Nil(t, a.Addr())
}
