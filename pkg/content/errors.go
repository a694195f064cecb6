package content

import "errors"

// Backends translate their own "missing" errors into these sentinels and
// wrap them with the entry name:
//
//	return nil, fmt.Errorf("content %s: %w", name, content.ErrNotFound)
//
// The HTTP layer does not distinguish between causes: any Open or Stat
// failure becomes 403 or 404 depending on the auto-index flag.
var (
	// ErrNotFound indicates the requested entry does not exist.
	ErrNotFound = errors.New("content not found")

	// ErrIsDirectory indicates the name refers to a directory rather than
	// a regular file.
	ErrIsDirectory = errors.New("content is a directory")

	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("content store closed")
)
