// Package fs serves content straight from the local filesystem.
//
// Names are passed to the operating system unchanged, so a name produced by
// concatenating the document root and the request path is the file that
// gets opened. The store never writes.
package fs

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/marmos91/staticd/pkg/content"
)

// FSContentStore implements content.Store on top of os.Open.
//
// Thread Safety:
// The store holds no mutable state and is safe for concurrent use.
type FSContentStore struct{}

// Config is the filesystem store configuration. It has no options today;
// the file paths come from the document root.
type Config struct{}

// NewFSContentStore creates a filesystem content store.
//
// Parameters:
//   - ctx: Checked for cancellation before construction
//
// Returns:
//   - *FSContentStore: Ready-to-use store
//   - error: Only the context error
func NewFSContentStore(ctx context.Context, _ Config) (*FSContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &FSContentStore{}, nil
}

// Open opens name for reading and reports its size.
//
// The size comes from the open handle rather than a separate stat of the
// path, so it always describes the file being streamed.
//
// Returns:
//   - content.ErrNotFound if the file does not exist
//   - content.ErrIsDirectory if name is a directory
//   - a wrapped OS error for anything else (permissions, invalid names)
func (s *FSContentStore) Open(ctx context.Context, name string) (*content.Object, error) {
	// ========================================================================
	// Step 1: Check context before filesystem operation
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 2: Open the file
	// ========================================================================

	file, err := os.Open(name)
	if err != nil {
		return nil, translateError(name, err)
	}

	// ========================================================================
	// Step 3: Stat the handle and reject anything but a regular file
	// ========================================================================

	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return nil, fmt.Errorf("failed to stat content %s: %w", name, err)
	}

	if info.IsDir() {
		_ = file.Close()
		return nil, fmt.Errorf("content %s: %w", name, content.ErrIsDirectory)
	}

	return &content.Object{Body: file, Size: info.Size()}, nil
}

// Stat reports the size and modification time of name without opening it.
func (s *FSContentStore) Stat(ctx context.Context, name string) (*content.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(name)
	if err != nil {
		return nil, translateError(name, err)
	}

	if info.IsDir() {
		return nil, fmt.Errorf("content %s: %w", name, content.ErrIsDirectory)
	}

	return &content.Info{Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Close is a no-op; the store keeps no descriptors between calls.
func (s *FSContentStore) Close() error {
	return nil
}

func translateError(name string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("content %s: %w", name, content.ErrNotFound)
	}
	return fmt.Errorf("failed to open content %s: %w", name, err)
}
