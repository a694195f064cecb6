package http

import "sync"

// Two size classes cover the server's buffers: request heads (read buffer)
// and body chunks. Other sizes are allocated directly and never pooled.
var (
	headPool = sync.Pool{
		New: func() any {
			buf := make([]byte, DefaultReadBufferSize)
			return &buf
		},
	}
	chunkPool = sync.Pool{
		New: func() any {
			buf := make([]byte, DefaultChunkSize)
			return &buf
		},
	}
)

// GetBuffer returns a buffer of exactly size bytes, pooled when size is
// DefaultReadBufferSize or DefaultChunkSize.
//
// Usage:
//
//	buf := GetBuffer(size)
//	defer PutBuffer(buf)
func GetBuffer(size int) []byte {
	switch size {
	case DefaultReadBufferSize:
		return *headPool.Get().(*[]byte)
	case DefaultChunkSize:
		return *chunkPool.Get().(*[]byte)
	default:
		return make([]byte, size)
	}
}

// PutBuffer returns a buffer obtained from GetBuffer. Buffers of other
// capacities are left to the garbage collector.
func PutBuffer(buf []byte) {
	buf = buf[:cap(buf)]

	switch cap(buf) {
	case DefaultReadBufferSize:
		headPool.Put(&buf)
	case DefaultChunkSize:
		chunkPool.Put(&buf)
	}
}
