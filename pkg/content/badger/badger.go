// Package badger stores static content in an embedded BadgerDB database.
//
// An entry is one metadata record plus zero or more body chunks:
//
//	"content:" + name        -> mtime | size | generation | chunk size (4 x uint64, big-endian)
//	"chunk:" + gen + index   -> at most chunk size bytes of the body
//
// Bodies are split because Badger caps a single value (1 MiB by default, and
// hard in in-memory mode) and a single transaction. Every Put writes its
// chunks under a fresh generation taken from a Badger sequence, then swaps
// the metadata record, then drops the previous generation's chunks. A
// reader therefore always sees a complete body or a read error, never a mix
// of two versions.
//
// This keeps a site in one directory that can be copied between hosts, and
// lets Stat answer from the metadata record without touching any chunk.
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/staticd/pkg/content"
)

const (
	metaPrefix  = "content:"
	chunkPrefix = "chunk:"
	sequenceKey = "sequence:generation"

	metaSize = 32

	// DefaultChunkSize keeps every value well under Badger's 1 MiB limit.
	DefaultChunkSize = 512 << 10

	// sequenceBandwidth is how many generations are leased per disk write.
	sequenceBandwidth = 128

	maxCommitRetries = 8
)

// Config configures the Badger content store.
type Config struct {
	// Path is the directory holding the database files. Ignored when InMemory is set.
	Path string `mapstructure:"path"`

	// InMemory keeps the database entirely in RAM (tests, ephemeral sites).
	InMemory bool `mapstructure:"in_memory"`

	// SyncWrites makes every Put durable before returning.
	SyncWrites bool `mapstructure:"sync_writes"`

	// ChunkSize is the body split size for new entries. Zero means
	// DefaultChunkSize. Existing entries keep the size they were written with.
	ChunkSize int `mapstructure:"chunk_size"`
}

// BadgerContentStore implements content.WritableStore on BadgerDB.
//
// Thread Safety:
// BadgerDB transactions and sequences are safe for concurrent use; the store
// adds no locks. Concurrent Puts of the same name are serialized by Badger's
// conflict detection on the metadata record.
type BadgerContentStore struct {
	db        *badger.DB
	seq       *badger.Sequence
	chunkSize int
}

// meta is the decoded metadata record of one entry.
type meta struct {
	modTime    time.Time
	size       int64
	generation uint64
	chunkSize  int64
}

func (m meta) chunks() uint64 {
	if m.size == 0 {
		return 0
	}
	return uint64((m.size + m.chunkSize - 1) / m.chunkSize)
}

func (m meta) encode() []byte {
	buf := make([]byte, metaSize)
	binary.BigEndian.PutUint64(buf[0:8], uint64(m.modTime.UnixNano()))
	binary.BigEndian.PutUint64(buf[8:16], uint64(m.size))
	binary.BigEndian.PutUint64(buf[16:24], m.generation)
	binary.BigEndian.PutUint64(buf[24:32], uint64(m.chunkSize))
	return buf
}

func decodeMeta(val []byte) (meta, error) {
	if len(val) != metaSize {
		return meta{}, fmt.Errorf("corrupt metadata record (%d bytes)", len(val))
	}
	m := meta{
		modTime:    time.Unix(0, int64(binary.BigEndian.Uint64(val[0:8]))),
		size:       int64(binary.BigEndian.Uint64(val[8:16])),
		generation: binary.BigEndian.Uint64(val[16:24]),
		chunkSize:  int64(binary.BigEndian.Uint64(val[24:32])),
	}
	if m.size < 0 || (m.size > 0 && m.chunkSize <= 0) {
		return meta{}, fmt.Errorf("corrupt metadata record (size %d, chunk size %d)", m.size, m.chunkSize)
	}
	return m, nil
}

// NewBadgerContentStore opens (or creates) the database described by cfg.
//
// Parameters:
//   - ctx: Checked for cancellation before opening the database
//   - cfg: Database location and durability options
//
// Returns:
//   - *BadgerContentStore: Open store, to be closed by the caller
//   - error: If the path is missing or the database cannot be opened
func NewBadgerContentStore(ctx context.Context, cfg Config) (*BadgerContentStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chunkSize := cfg.ChunkSize
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}
	if chunkSize < 0 || chunkSize > DefaultChunkSize*2-1024 {
		return nil, fmt.Errorf("badger content store: chunk_size must be between 1 and %d bytes, got %d",
			DefaultChunkSize*2-1024, chunkSize)
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("badger content store: path is required")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.
		WithLoggingLevel(badger.WARNING).
		WithCompression(options.None).
		WithSyncWrites(cfg.SyncWrites)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.Path, err)
	}

	seq, err := db.GetSequence([]byte(sequenceKey), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open generation sequence: %w", err)
	}

	return &BadgerContentStore{db: db, seq: seq, chunkSize: chunkSize}, nil
}

func metaKey(name string) []byte {
	return []byte(metaPrefix + name)
}

func chunkKey(generation, index uint64) []byte {
	key := make([]byte, len(chunkPrefix)+16)
	copy(key, chunkPrefix)
	binary.BigEndian.PutUint64(key[len(chunkPrefix):], generation)
	binary.BigEndian.PutUint64(key[len(chunkPrefix)+8:], index)
	return key
}

func (s *BadgerContentStore) readMeta(txn *badger.Txn, name string) (meta, error) {
	item, err := txn.Get(metaKey(name))
	if err != nil {
		return meta{}, err
	}
	var m meta
	err = item.Value(func(val []byte) error {
		var decodeErr error
		m, decodeErr = decodeMeta(val)
		return decodeErr
	})
	return m, err
}

// Open returns a reader that streams the body chunk by chunk.
//
// Only one chunk is held in memory at a time. If the entry is replaced or
// deleted while the body is being read, the reader fails with
// content.ErrNotFound rather than returning bytes of the newer version.
func (s *BadgerContentStore) Open(ctx context.Context, name string) (*content.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var m meta
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		m, err = s.readMeta(txn, name)
		return err
	})
	if err != nil {
		return nil, translateError(name, err)
	}

	return &content.Object{
		Body: &chunkReader{store: s, name: name, meta: m},
		Size: m.size,
	}, nil
}

// chunkReader fetches one chunk per transaction, in index order.
type chunkReader struct {
	store *BadgerContentStore
	name  string
	meta  meta

	next   uint64
	buf    []byte
	closed bool
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, fmt.Errorf("content %s: read after close", r.name)
	}

	for len(r.buf) == 0 {
		if r.next >= r.meta.chunks() {
			return 0, io.EOF
		}
		if err := r.fetch(); err != nil {
			return 0, err
		}
	}

	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

func (r *chunkReader) fetch() error {
	err := r.store.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chunkKey(r.meta.generation, r.next))
		if err != nil {
			return err
		}
		r.buf, err = item.ValueCopy(r.buf[:0])
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("content %s changed while reading: %w", r.name, content.ErrNotFound)
		}
		return translateError(r.name, err)
	}

	expected := r.meta.chunkSize
	if r.next == r.meta.chunks()-1 {
		expected = r.meta.size - int64(r.next)*r.meta.chunkSize
	}
	if int64(len(r.buf)) != expected {
		return fmt.Errorf("content %s: chunk %d has %d bytes, expected %d", r.name, r.next, len(r.buf), expected)
	}

	r.next++
	return nil
}

func (r *chunkReader) Close() error {
	r.closed = true
	r.buf = nil
	return nil
}

// Stat reports the entry size and modification time from its metadata record.
func (s *BadgerContentStore) Stat(ctx context.Context, name string) (*content.Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var m meta
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		m, err = s.readMeta(txn, name)
		return err
	})
	if err != nil {
		return nil, translateError(name, err)
	}

	return &content.Info{Size: m.size, ModTime: m.modTime}, nil
}

// Put stores data under name, stamped with the current time.
//
// Chunks go through a WriteBatch, so bodies larger than one Badger
// transaction are accepted.
func (s *BadgerContentStore) Put(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	generation, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("failed to allocate generation for %s: %w", name, err)
	}

	m := meta{
		modTime:    time.Now(),
		size:       int64(len(data)),
		generation: generation,
		chunkSize:  int64(s.chunkSize),
	}

	// ===== Step 1: Write the new generation's chunks =====
	if err := s.writeChunks(m, data); err != nil {
		s.dropChunks(m)
		return fmt.Errorf("failed to write content %s: %w", name, err)
	}

	// ===== Step 2: Swap the metadata record =====
	var previous *meta
	err = s.commit(func(txn *badger.Txn) error {
		previous = nil
		old, err := s.readMeta(txn, name)
		switch {
		case err == nil:
			previous = &old
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		return txn.Set(metaKey(name), m.encode())
	})
	if err != nil {
		s.dropChunks(m)
		return fmt.Errorf("failed to write content %s: %w", name, translateError(name, err))
	}

	// ===== Step 3: Drop the replaced body =====
	if previous != nil {
		s.dropChunks(*previous)
	}
	return nil
}

func (s *BadgerContentStore) writeChunks(m meta, data []byte) error {
	if m.chunks() == 0 {
		return nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for i := uint64(0); i < m.chunks(); i++ {
		start := int64(i) * m.chunkSize
		end := min(start+m.chunkSize, m.size)
		if err := wb.Set(chunkKey(m.generation, i), data[start:end]); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// dropChunks deletes the chunks of one generation. Failures only leave
// unreachable chunks behind, so they are not returned.
func (s *BadgerContentStore) dropChunks(m meta) {
	if m.chunks() == 0 {
		return
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()

	for i := uint64(0); i < m.chunks(); i++ {
		if err := wb.Delete(chunkKey(m.generation, i)); err != nil {
			return
		}
	}
	_ = wb.Flush()
}

// commit runs fn in an update transaction, retrying on write conflicts.
func (s *BadgerContentStore) commit(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < maxCommitRetries; i++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// Delete removes name. Missing entries return content.ErrNotFound.
func (s *BadgerContentStore) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var removed meta
	err := s.commit(func(txn *badger.Txn) error {
		m, err := s.readMeta(txn, name)
		if err != nil {
			return err
		}
		removed = m
		return txn.Delete(metaKey(name))
	})
	if err != nil {
		return translateError(name, err)
	}

	s.dropChunks(removed)
	return nil
}

// Close releases the generation lease, then flushes and closes the database.
func (s *BadgerContentStore) Close() error {
	seqErr := s.seq.Release()
	if err := s.db.Close(); err != nil {
		return err
	}
	if seqErr != nil && !errors.Is(seqErr, badger.ErrDBClosed) {
		return fmt.Errorf("failed to release generation sequence: %w", seqErr)
	}
	return nil
}

func translateError(name string, err error) error {
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return fmt.Errorf("content %s: %w", name, content.ErrNotFound)
	case errors.Is(err, badger.ErrDBClosed):
		return fmt.Errorf("content %s: %w", name, content.ErrStoreClosed)
	default:
		return fmt.Errorf("badger content %s: %w", name, err)
	}
}
