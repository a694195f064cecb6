package http

import (
	"fmt"
	"net/url"
	"strings"
)

const traversal = "/.."

// parseTarget turns a raw request target into a lookup path.
//
// Steps, in order:
//  1. Drop everything from the first '?'.
//  2. Reject a literal "/.." in the still-encoded path.
//  3. Percent-decode ('+' stays a plus sign).
//  4. Reject "/.." again in the decoded path, so "%2e%2e" cannot smuggle
//     a parent segment past step 2.
//  5. Require a leading '/'.
//  6. If the path ends in '/', append IndexFile and report autoIndex.
//
// After step 5 every ".." segment would be preceded by '/', so rejecting
// the substring "/.." keeps root+path inside root. Names that merely
// contain two dots ("index..html") are allowed.
func parseTarget(target string) (path string, autoIndex bool, err error) {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		target = target[:i]
	}

	if strings.Contains(target, traversal) {
		return "", false, fmt.Errorf("%w: %q", ErrPathTraversal, target)
	}

	decoded, err := url.PathUnescape(target)
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", ErrInvalidEncoding, err)
	}

	if strings.Contains(decoded, traversal) {
		return "", false, fmt.Errorf("%w: %q decodes to %q", ErrPathTraversal, target, decoded)
	}

	if !strings.HasPrefix(decoded, "/") {
		return "", false, fmt.Errorf("%w: %q", ErrRelativeTarget, decoded)
	}

	if strings.HasSuffix(decoded, "/") {
		return decoded + IndexFile, true, nil
	}

	return decoded, false, nil
}

// ResolvePath joins the document root and a request path by plain
// concatenation. Trailing slashes on root are dropped, so a root of "/"
// or "/var/www/" does not produce "//".
func ResolvePath(root, path string) string {
	return strings.TrimRight(root, "/") + path
}
