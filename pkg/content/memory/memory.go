package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/marmos91/staticd/pkg/content"
)

// MemoryContentStore implements content.WritableStore with an in-process map.
//
// It is meant for tests and for small sites embedded in the binary. Data is
// lost on exit.
//
// Thread Safety:
// All operations are protected by a sync.RWMutex. Data is copied on Put so
// callers may reuse their buffers. Open hands out a reader over the stored
// slice, which is never mutated in place: Put replaces it.
type MemoryContentStore struct {
	mu      sync.RWMutex
	entries map[string]entry
	closed  bool
}

type entry struct {
	data    []byte
	modTime time.Time
}

// Config is the memory store configuration. It has no options.
type Config struct{}

// NewMemoryContentStore creates an empty in-memory store.
func NewMemoryContentStore(ctx context.Context, _ Config) (*MemoryContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return &MemoryContentStore{
		entries: make(map[string]entry),
	}, nil
}

func (s *MemoryContentStore) lookup(ctx context.Context, name string) (entry, error) {
	if err := ctx.Err(); err != nil {
		return entry{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return entry{}, content.ErrStoreClosed
	}

	e, ok := s.entries[name]
	if !ok {
		return entry{}, fmt.Errorf("content %s: %w", name, content.ErrNotFound)
	}
	return e, nil
}

// Open returns a reader over the stored bytes.
func (s *MemoryContentStore) Open(ctx context.Context, name string) (*content.Object, error) {
	e, err := s.lookup(ctx, name)
	if err != nil {
		return nil, err
	}

	return &content.Object{
		Body: io.NopCloser(bytes.NewReader(e.data)),
		Size: int64(len(e.data)),
	}, nil
}

// Stat returns the stored size and the time of the last Put.
func (s *MemoryContentStore) Stat(ctx context.Context, name string) (*content.Info, error) {
	e, err := s.lookup(ctx, name)
	if err != nil {
		return nil, err
	}
	return &content.Info{Size: int64(len(e.data)), ModTime: e.modTime}, nil
}

// Put stores a copy of data under name.
func (s *MemoryContentStore) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return content.ErrStoreClosed
	}

	s.entries[name] = entry{data: buf, modTime: time.Now()}
	return nil
}

// Delete removes name.
func (s *MemoryContentStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return content.ErrStoreClosed
	}

	if _, ok := s.entries[name]; !ok {
		return fmt.Errorf("content %s: %w", name, content.ErrNotFound)
	}
	delete(s.entries, name)
	return nil
}

// Len returns the number of stored entries.
func (s *MemoryContentStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Close drops all entries. Later operations return content.ErrStoreClosed.
func (s *MemoryContentStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.entries = nil
	return nil
}
