package adapter

import (
	"strings"

	"github.com/marmos91/staticd/pkg/content"
)

// ServerContext is the process-lifetime configuration every request task
// reads: where the document root is and which store holds it.
//
// It is built once at startup and never mutated, so workers share one
// pointer and read it without synchronization.
type ServerContext struct {
	documentRoot string
	store        content.Store
}

// NewServerContext creates the shared context. Trailing slashes are removed
// from documentRoot so request paths, which start with "/", concatenate
// cleanly; a root of "/" therefore becomes "".
func NewServerContext(documentRoot string, store content.Store) *ServerContext {
	return &ServerContext{
		documentRoot: strings.TrimRight(documentRoot, "/"),
		store:        store,
	}
}

// DocumentRoot returns the normalised document root.
func (c *ServerContext) DocumentRoot() string {
	return c.documentRoot
}

// Store returns the content store requests are served from.
func (c *ServerContext) Store() content.Store {
	return c.store
}
