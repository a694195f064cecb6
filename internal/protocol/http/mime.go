package http

import (
	"path"
	"strings"
)

// DefaultContentType is sent for extensions missing from the table.
const DefaultContentType = "application/octet-stream"

var contentTypes = map[string]string{
	"html": "text/html",
	"css":  "text/css",
	"js":   "application/javascript",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"swf":  "application/x-shockwave-flash",
}

// ContentType maps the extension of name's last element to a MIME type.
// Matching ignores case; names without a known extension get
// DefaultContentType.
func ContentType(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(name), "."))
	if ct, ok := contentTypes[ext]; ok {
		return ct
	}
	return DefaultContentType
}
