package adapter

import (
	"context"
)

// Adapter is a network front-end managed by server.Server.
//
// Every adapter serves the same document root from the same content store,
// both carried by the ServerContext injected before Serve.
//
// Lifecycle:
//  1. Creation: Adapter is created with its own configuration
//  2. Context injection: SetServerContext() provides the document root and store
//  3. Startup: Serve() listens and blocks until shutdown
//  4. Shutdown: Stop() drains in-flight work within the context deadline
//
// Thread safety:
// SetServerContext() is called once before Serve(); Stop() may be called
// concurrently with Serve().
type Adapter interface {
	// Serve starts the listener and blocks until the context is cancelled
	// or an unrecoverable error occurs.
	//
	// When the context is cancelled, Serve must stop accepting connections,
	// let queued requests finish (within the shutdown timeout) and release
	// its resources.
	//
	// If Serve returns before context cancellation, server.Server treats it
	// as fatal and stops all other adapters.
	//
	// Returns:
	//   - nil on graceful shutdown
	//   - error if startup fails or shutdown is not graceful
	Serve(ctx context.Context) error

	// SetServerContext injects the shared, immutable request context.
	SetServerContext(sctx *ServerContext)

	// Stop initiates graceful shutdown. It must be idempotent and safe to call
	// concurrently with Serve(). When ctx expires, remaining connections are
	// closed forcibly.
	Stop(ctx context.Context) error

	// Protocol returns the protocol name for logging and metrics, e.g. "HTTP".
	Protocol() string

	// Port returns the TCP port the adapter is bound to, or 0 before it has
	// started listening.
	Port() int
}
