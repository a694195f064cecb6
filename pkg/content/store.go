// Package content defines the storage abstraction static files are served from.
//
// A Store is addressed by resolved lookup paths: the document root followed
// by the decoded request path (for example "/var/www/css/site.css"). How a
// name maps onto the backend is implementation-specific:
//   - Filesystem: the name is opened as a local path, unchanged
//   - Memory, Badger: the name is used as the key
//   - S3: the name, minus its leading "/", is appended to a key prefix
//
// The HTTP adapter only reads from a store. Writable stores exist so content
// can be loaded into non-filesystem backends (see cmd/staticd-import).
package content

import (
	"context"
	"io"
	"time"
)

// Object is an open entry whose body is streamed to the client.
//
// The caller owns Body and must close it.
type Object struct {
	// Body yields exactly Size bytes.
	Body io.ReadCloser

	// Size is the entry length in bytes, reported as Content-Length.
	Size int64
}

// Info is the metadata returned by Stat.
type Info struct {
	Size    int64
	ModTime time.Time
}

// Store provides read access to static content.
//
// Thread Safety:
// Implementations must be safe for concurrent use by multiple goroutines.
// Every worker in the pool shares a single Store.
type Store interface {
	// Open returns the body and size of the entry called name.
	//
	// Returns:
	//   - ErrNotFound if no entry exists
	//   - ErrIsDirectory if name refers to a directory (filesystem only)
	//   - the context error if ctx is already done
	Open(ctx context.Context, name string) (*Object, error)

	// Stat returns the size of the entry without reading it.
	//
	// Error semantics match Open.
	Stat(ctx context.Context, name string) (*Info, error)

	// Close releases backend resources. The store must not be used afterwards.
	Close() error
}

// WritableStore is a Store that can also be populated.
type WritableStore interface {
	Store

	// Put creates or replaces the entry called name.
	Put(ctx context.Context, name string, data []byte) error

	// Delete removes the entry called name. Deleting a missing entry
	// returns ErrNotFound.
	Delete(ctx context.Context, name string) error
}
