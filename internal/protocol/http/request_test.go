package http

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		method    Method
		path      string
		autoIndex bool
	}{
		{
			name:      "directory gets index",
			raw:       "GET /foo/bar/ HTTP/1.1\r\n",
			method:    MethodGet,
			path:      "/foo/bar/index.html",
			autoIndex: true,
		},
		{
			name:   "query string stripped",
			raw:    "HEAD /foo/bar/kek.html?asdsa HTTP/1.1\r\n",
			method: MethodHead,
			path:   "/foo/bar/kek.html",
		},
		{
			name:   "percent-encoded name",
			raw:    "HEAD /foo/bar/%70%61%67%65%2e%68%74%6d%6c HTTP/1.1\r\n",
			method: MethodHead,
			path:   "/foo/bar/page.html",
		},
		{
			name:   "spaces and odd query",
			raw:    "GET /foo/bar/space%20in%20name.html?l&=1 HTTP/1.1\r\n",
			method: MethodGet,
			path:   "/foo/bar/space in name.html",
		},
		{
			name:   "double dot inside a name",
			raw:    "GET /foo/bar/index..html HTTP/1.1\r\n",
			method: MethodGet,
			path:   "/foo/bar/index..html",
		},
		{
			name:      "root",
			raw:       "GET / HTTP/1.0\r\n",
			method:    MethodGet,
			path:      "/index.html",
			autoIndex: true,
		},
		{
			name:   "headers after request line are ignored",
			raw:    "GET /a.css HTTP/1.1\r\nHost: example.com\r\nX-Evil: /..\r\n\r\n",
			method: MethodGet,
			path:   "/a.css",
		},
		{
			name:   "extra tokens are ignored",
			raw:    "GET /a.js HTTP/1.1 trailing\r\n",
			method: MethodGet,
			path:   "/a.js",
		},
		{
			name:   "plus is not a space",
			raw:    "GET /a+b.html HTTP/1.1\r\n",
			method: MethodGet,
			path:   "/a+b.html",
		},
		{
			name:      "encoded trailing slash",
			raw:       "GET /docs%2F HTTP/1.1\r\n",
			method:    MethodGet,
			path:      "/docs/index.html",
			autoIndex: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.method, req.Method)
			assert.Equal(t, tt.path, req.Path)
			assert.Equal(t, tt.autoIndex, req.AutoIndex)
		})
	}
}

func TestParseRequestKeepsRawTokens(t *testing.T) {
	req, err := ParseRequest([]byte("GET /x%20y?z HTTP/1.0\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "/x%20y?z", req.Target)
	assert.Equal(t, "HTTP/1.0", req.Version)
}

func TestParseRequestErrors(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"traversal", "HEAD /foo/bar/../../ HTTP/1.1\r\n", ErrPathTraversal},
		{"traversal at start", "GET /../etc/passwd HTTP/1.1\r\n", ErrPathTraversal},
		{"traversal hidden by query is still rejected", "GET /a/..?x HTTP/1.1\r\n", ErrPathTraversal},
		{"encoded traversal", "GET /foo/%2e%2e/%2e%2e/etc/passwd HTTP/1.1\r\n", ErrPathTraversal},
		{"encoded slash traversal", "GET /foo%2f..%2fbar HTTP/1.1\r\n", ErrPathTraversal},
		{"no terminator", "GET / HTTP/1.1", ErrMissingTerminator},
		{"bare LF", "GET / HTTP/1.1\n", ErrMissingTerminator},
		{"empty", "", ErrMissingTerminator},
		{"empty line", "\r\nGET / HTTP/1.1\r\n", ErrEmptyRequestLine},
		{"two tokens", "GET /\r\n", ErrTooFewTokens},
		{"one token", "GET\r\n", ErrTooFewTokens},
		{"post", "POST / HTTP/1.1\r\n", ErrUnsupportedMethod},
		{"lowercase get", "get / HTTP/1.1\r\n", ErrUnsupportedMethod},
		{"options", "OPTIONS * HTTP/1.1\r\n", ErrUnsupportedMethod},
		{"bad escape", "GET /%zz HTTP/1.1\r\n", ErrInvalidEncoding},
		{"truncated escape", "GET /a%2 HTTP/1.1\r\n", ErrInvalidEncoding},
		{"relative target", "GET index.html HTTP/1.1\r\n", ErrRelativeTarget},
		{"absolute form", "GET http://host/ HTTP/1.1\r\n", ErrRelativeTarget},
		{"double space", "GET  /a HTTP/1.1\r\n", ErrRelativeTarget},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(tt.raw))
			require.Error(t, err)
			assert.Nil(t, req)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ErrBadRequest)
		})
	}
}

// Any target containing a literal "/.." must fail, wherever it appears.
func TestTraversalAlwaysRejected(t *testing.T) {
	for _, target := range []string{
		"/..", "/a/..", "/a/../b", "/a/..b", "/..%2f", "/a/b/c/../../../../",
	} {
		_, err := ParseRequest([]byte("GET " + target + " HTTP/1.1\r\n"))
		assert.ErrorIs(t, err, ErrPathTraversal, target)
	}
}

// A decoded path ending in "/" always yields auto-index with index.html appended.
func TestTrailingSlashAlwaysAutoIndexes(t *testing.T) {
	for _, target := range []string{"/", "/a/", "/a/b/", "/%61/", "/a%2F", "/with%20space/?q=1"} {
		path, autoIndex, err := parseTarget(target)
		require.NoError(t, err, target)
		assert.True(t, autoIndex, target)
		assert.Equal(t, "index.html", path[len(path)-len(IndexFile):], target)
	}
}

func TestResolvePath(t *testing.T) {
	tests := []struct {
		root, path, want string
	}{
		{"/var/www", "/index.html", "/var/www/index.html"},
		{"/var/www/", "/index.html", "/var/www/index.html"},
		{"/", "/index.html", "/index.html"},
		{"", "/a/b.css", "/a/b.css"},
		{"/srv/site", "/space in name.html", "/srv/site/space in name.html"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolvePath(tt.root, tt.path), "%s + %s", tt.root, tt.path)
	}
}
