package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/staticd/internal/logger"
	protocol "github.com/marmos91/staticd/internal/protocol/http"
	"github.com/marmos91/staticd/internal/ratelimiter"
	"github.com/marmos91/staticd/internal/workerpool"
	"github.com/marmos91/staticd/pkg/adapter"
	"github.com/marmos91/staticd/pkg/metrics"
	"golang.org/x/net/netutil"
)

// HTTPAdapter serves static files over HTTP/1.1, one request per connection.
//
// Architecture:
// A single goroutine runs the accept loop (the dispatcher). Each accepted
// connection gets its read deadline, is wrapped with the shared
// ServerContext into a connTask, and is submitted to a fixed-size worker
// pool. Workers parse, resolve and stream; the dispatcher never blocks on
// them because the pool queue is unbounded.
//
// Features:
//   - Fixed worker count (thread_limit), unbounded FIFO of pending connections
//   - Read deadline on the request head (10s by default)
//   - Optional cap on open connections (netutil.LimitListener)
//   - Optional accept rate limit (token bucket)
//   - Optional SO_REUSEPORT
//   - Graceful shutdown: stop accepting, drain the queue, force-close on timeout
//
// Shutdown flow:
//  1. Context cancelled or Stop() called
//  2. Listener closed (no new connections)
//  3. Pool closed: queued connections are still served
//  4. Wait for workers up to ShutdownTimeout
//  5. Force-close remaining connections if the timeout expires
//
// Thread safety:
// All methods are safe for concurrent use. The shutdown sequence runs once.
type HTTPAdapter struct {
	config HTTPConfig

	sctx *adapter.ServerContext

	metrics metrics.HTTPMetrics

	limiter *ratelimiter.RateLimiter

	// mu guards listener and pool, which Serve publishes and shutdown reads.
	mu       sync.Mutex
	listener net.Listener
	pool     *workerpool.Pool[*connTask]

	shutdownOnce sync.Once
	shutdown     chan struct{}

	// requestCtx is handed to every request. It is only cancelled when
	// shutdown gives up waiting, so drained requests still complete.
	requestCtx     context.Context
	cancelRequests context.CancelFunc

	connCount atomic.Int32

	// activeConnections maps task ID to net.Conn for forced closure.
	activeConnections sync.Map
}

// HTTPConfig holds the HTTP adapter configuration.
//
// All timeout values are durations, e.g. "10s", "1m".
type HTTPConfig struct {
	// Enabled controls whether the HTTP adapter is active.
	Enabled bool `mapstructure:"enabled"`

	// Address is the interface to bind, e.g. "127.0.0.1" or "0.0.0.0".
	Address string `mapstructure:"address"`

	// Port is the TCP port to listen on. 0 lets the OS choose (see Port()).
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// ServerName is the value of the Server header, taken from
	// server.server_name. Default: "staticd".
	ServerName string `mapstructure:"-" json:"-"`

	// Workers is the pool size, taken from server.thread_limit.
	Workers int `mapstructure:"-" json:"-"`

	// ReadTimeout bounds reading the request head. Default: 10s.
	ReadTimeout time.Duration `mapstructure:"read_timeout" validate:"min=0"`

	// WriteTimeout bounds the whole response write. 0 means no limit.
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"min=0"`

	// ShutdownTimeout is how long Serve waits for queued and in-flight
	// requests after cancellation, taken from server.shutdown_timeout.
	// Default: 30s.
	ShutdownTimeout time.Duration `mapstructure:"-" json:"-"`

	// ReadBufferSize bounds the request head; a request line longer than
	// this is rejected with 400. Default: 4096.
	ReadBufferSize int `mapstructure:"read_buffer_size" validate:"min=0"`

	// ChunkSize is the body streaming unit. Default: 1 MiB.
	ChunkSize int `mapstructure:"chunk_size" validate:"min=0"`

	// MaxConnections caps open connections, queued ones included.
	// Further clients wait in the kernel backlog. 0 means unlimited.
	MaxConnections int `mapstructure:"max_connections" validate:"min=0"`

	// ReusePort sets SO_REUSEPORT so several processes can share the port.
	ReusePort bool `mapstructure:"reuse_port"`

	// MetricsLogInterval logs pool statistics periodically. 0 disables.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" validate:"min=0"`

	// RateLimit throttles accepted connections.
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// RateLimitConfig is a token bucket over accepted connections.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained accept rate. 0 disables limiting.
	RequestsPerSecond uint `mapstructure:"requests_per_second"`

	// Burst is the bucket size. 0 defaults to RequestsPerSecond.
	Burst uint `mapstructure:"burst"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *HTTPConfig) applyDefaults() {
	if c.ServerName == "" {
		c.ServerName = protocol.DefaultServerName
	}
	if c.Workers <= 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
	if c.ReadBufferSize == 0 {
		c.ReadBufferSize = protocol.DefaultReadBufferSize
	}
	if c.ChunkSize == 0 {
		c.ChunkSize = protocol.DefaultChunkSize
	}
}

// validate checks configuration after defaults have been applied.
func (c *HTTPConfig) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("invalid ReadTimeout %v: must be >= 0", c.ReadTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("invalid WriteTimeout %v: must be >= 0", c.WriteTimeout)
	}
	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be >= 0", c.ShutdownTimeout)
	}
	if c.ReadBufferSize < 16 {
		return fmt.Errorf("invalid ReadBufferSize %d: must be >= 16", c.ReadBufferSize)
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("invalid ChunkSize %d: must be > 0", c.ChunkSize)
	}
	if c.MaxConnections < 0 {
		return fmt.Errorf("invalid MaxConnections %d: must be >= 0", c.MaxConnections)
	}
	return nil
}

// connTask is one accepted connection waiting for, or owned by, a worker.
type connTask struct {
	id       string
	conn     net.Conn
	sctx     *adapter.ServerContext
	accepted time.Time
}

// New creates an HTTP adapter.
//
// The configuration is defaulted and validated; invalid values panic since
// they have already passed config.Validate in normal startup.
//
// Parameters:
//   - config: Adapter configuration
//   - httpMetrics: Optional metrics sink; nil means no-op
func New(config HTTPConfig, httpMetrics metrics.HTTPMetrics) *HTTPAdapter {
	config.applyDefaults()

	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid HTTP config: %v", err))
	}

	if httpMetrics == nil {
		httpMetrics = metrics.NewNoopHTTPMetrics()
	}

	limiter := ratelimiter.New(config.RateLimit.RequestsPerSecond, config.RateLimit.Burst)
	if limiter.Enabled() {
		logger.Debug("HTTP accept rate limit: %.0f/s (burst %d)", limiter.Limit(), limiter.Burst())
	}

	requestCtx, cancelRequests := context.WithCancel(context.Background())

	return &HTTPAdapter{
		config:         config,
		metrics:        httpMetrics,
		limiter:        limiter,
		shutdown:       make(chan struct{}),
		requestCtx:     requestCtx,
		cancelRequests: cancelRequests,
	}
}

// SetServerContext injects the document root and content store.
func (s *HTTPAdapter) SetServerContext(sctx *adapter.ServerContext) {
	s.sctx = sctx
	logger.Debug("HTTP document root: %q", sctx.DocumentRoot())
}

// Serve binds the listener, starts the worker pool and runs the accept loop
// until ctx is cancelled or Stop is called.
//
// Returns:
//   - nil after a graceful shutdown
//   - an error if the listener cannot be created, the server context is
//     missing, or the shutdown timeout forced connections closed
func (s *HTTPAdapter) Serve(ctx context.Context) error {
	if s.sctx == nil {
		return errors.New("HTTP adapter: server context not set")
	}

	listener, err := s.listen(ctx)
	if err != nil {
		return err
	}

	pool := workerpool.New(s.config.Workers, s.handleTask)

	s.mu.Lock()
	s.listener = listener
	s.pool = pool
	s.mu.Unlock()

	// Stop may have run before the listener was published.
	select {
	case <-s.shutdown:
		_ = listener.Close()
		return s.gracefulShutdown()
	default:
	}

	logger.Info("HTTP server listening on %s (workers: %d)", listener.Addr(), s.config.Workers)
	logger.Debug("HTTP config: read_timeout=%v write_timeout=%v read_buffer=%d chunk=%d max_connections=%d",
		s.config.ReadTimeout, s.config.WriteTimeout, s.config.ReadBufferSize, s.config.ChunkSize, s.config.MaxConnections)

	go func() {
		select {
		case <-ctx.Done():
			logger.Info("HTTP shutdown signal received: %v", ctx.Err())
			s.initiateShutdown()
		case <-s.shutdown:
		}
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(ctx)
	}

	var backoff time.Duration
	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return s.gracefulShutdown()
		}

		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return s.gracefulShutdown()
			default:
			}

			if errors.Is(err, net.ErrClosed) {
				return fmt.Errorf("HTTP listener closed unexpectedly: %w", err)
			}

			// Transient failure (e.g. EMFILE): back off so the loop does not spin.
			backoff = nextBackoff(backoff)
			logger.Debug("Error accepting HTTP connection: %v (retrying in %v)", err, backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.dispatch(conn, pool)
	}
}

func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		return time.Second
	}
	return d
}

// listen creates the TCP listener, applying SO_REUSEPORT and the connection
// cap when configured.
func (s *HTTPAdapter) listen(ctx context.Context) (net.Listener, error) {
	addr := net.JoinHostPort(s.config.Address, strconv.Itoa(s.config.Port))

	lc := net.ListenConfig{}
	if s.config.ReusePort {
		lc.Control = reusePortControl
	}

	listener, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP listener on %s: %w", addr, err)
	}

	if s.config.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, s.config.MaxConnections)
		logger.Debug("HTTP connection limit: %d", s.config.MaxConnections)
	} else {
		logger.Debug("HTTP connection limit: unlimited")
	}

	return listener, nil
}

// dispatch turns an accepted connection into a task and queues it.
//
// The read timeout is not armed here: a task may wait in the queue for any
// length of time, and the clock starts when a worker reads.
func (s *HTTPAdapter) dispatch(conn net.Conn, pool *workerpool.Pool[*connTask]) {
	task := &connTask{
		id:       uuid.NewString(),
		conn:     conn,
		sctx:     s.sctx,
		accepted: time.Now(),
	}

	s.activeConnections.Store(task.id, conn)
	current := s.connCount.Add(1)
	s.metrics.RecordConnectionAccepted()
	s.metrics.SetActiveConnections(current)

	logger.Debug("HTTP connection %s accepted from %s (active: %d)", task.id, conn.RemoteAddr(), current)

	if err := pool.Submit(task); err != nil {
		logger.Debug("HTTP connection %s dropped: %v", task.id, err)
		_ = conn.Close()
		s.release(task)
		return
	}

	s.metrics.SetQueueDepth(pool.Stats().Queued)
}

// handleTask is the worker-loop body: it serves one connection to completion.
func (s *HTTPAdapter) handleTask(task *connTask) {
	defer s.release(task)

	if pool := s.getPool(); pool != nil {
		stats := pool.Stats()
		s.metrics.SetQueueDepth(stats.Queued)
		s.metrics.SetBusyWorkers(stats.Busy)
	}

	newHTTPConnection(s, task).Serve(s.requestCtx)
}

// release forgets a finished connection.
func (s *HTTPAdapter) release(task *connTask) {
	s.activeConnections.Delete(task.id)
	current := s.connCount.Add(-1)

	s.metrics.RecordConnectionClosed()
	s.metrics.SetActiveConnections(current)

	logger.Debug("HTTP connection %s closed (active: %d)", task.id, current)
}

func (s *HTTPAdapter) getPool() *workerpool.Pool[*connTask] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pool
}

// initiateShutdown closes the shutdown channel and the listener. Safe to
// call multiple times.
func (s *HTTPAdapter) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("HTTP shutdown initiated")

		close(s.shutdown)

		s.mu.Lock()
		listener := s.listener
		s.mu.Unlock()

		if listener != nil {
			if err := listener.Close(); err != nil {
				logger.Debug("Error closing HTTP listener: %v", err)
			}
		}
	})
}

// gracefulShutdown drains the pool within ShutdownTimeout.
func (s *HTTPAdapter) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	return s.drain(ctx)
}

// drain closes the pool and waits for queued and running tasks. When ctx
// expires first, in-flight requests are cancelled and their connections
// force-closed.
func (s *HTTPAdapter) drain(ctx context.Context) error {
	pool := s.getPool()
	if pool == nil {
		return nil
	}

	pool.Close()

	stats := pool.Stats()
	logger.Info("HTTP graceful shutdown: waiting for %d active and %d queued connection(s)",
		stats.Busy, stats.Queued)

	if err := pool.Wait(ctx); err != nil {
		remaining := s.connCount.Load()
		logger.Warn("HTTP shutdown timeout exceeded: %d connection(s) still active - forcing closure", remaining)

		s.forceCloseConnections()
		return fmt.Errorf("HTTP shutdown timeout: %d connections force-closed: %w", remaining, err)
	}

	logger.Info("HTTP graceful shutdown complete: all connections closed")
	return nil
}

// forceCloseConnections cancels request contexts and closes every tracked
// connection, unblocking workers stuck on slow clients.
func (s *HTTPAdapter) forceCloseConnections() {
	s.cancelRequests()

	closedCount := 0
	s.activeConnections.Range(func(key, value any) bool {
		conn := value.(net.Conn)
		if err := conn.Close(); err != nil {
			logger.Debug("Error force-closing connection %s: %v", key, err)
		} else {
			closedCount++
			s.metrics.RecordConnectionForceClosed()
		}
		return true
	})

	if closedCount > 0 {
		logger.Info("Force-closed %d connection(s)", closedCount)
	}
}

// Stop initiates graceful shutdown and waits until the pool has drained or
// ctx is done. It is safe to call concurrently with Serve and more than once.
func (s *HTTPAdapter) Stop(ctx context.Context) error {
	s.initiateShutdown()
	return s.drain(ctx)
}

// logMetrics periodically logs pool statistics.
func (s *HTTPAdapter) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.shutdown:
			return
		case <-ticker.C:
			pool := s.getPool()
			if pool == nil {
				continue
			}
			stats := pool.Stats()
			s.metrics.SetQueueDepth(stats.Queued)
			s.metrics.SetBusyWorkers(stats.Busy)
			logger.Info("HTTP metrics: active_connections=%d queued=%d busy=%d/%d completed=%d panics=%d",
				s.connCount.Load(), stats.Queued, stats.Busy, stats.Workers, stats.Completed, stats.Panics)
		}
	}
}

// GetActiveConnections returns the number of accepted, not yet closed connections.
func (s *HTTPAdapter) GetActiveConnections() int32 {
	return s.connCount.Load()
}

// Addr returns the listener address, or nil before Serve has bound it.
func (s *HTTPAdapter) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Port returns the bound port once listening, otherwise the configured one.
func (s *HTTPAdapter) Port() int {
	if addr, ok := s.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return s.config.Port
}

// Protocol returns "HTTP".
func (s *HTTPAdapter) Protocol() string {
	return "HTTP"
}
