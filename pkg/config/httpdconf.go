package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Errors returned by ParseHTTPDConf. The messages are part of the command
// line contract and must not change.
var (
	ErrDocumentRootMissing = errors.New("Can't find document_root")
	ErrDocumentRootFormat  = errors.New("Invalid document root format")
	ErrThreadLimitMissing  = errors.New("Can't find thread_limit")
	ErrThreadLimitFormat   = errors.New("Invalid thread limit format")
)

// httpdConfKeys maps the optional httpd.conf keys to their viper keys.
var httpdConfKeys = map[string]string{
	"listen_address": "adapters.http.address",
	"listen_port":    "adapters.http.port",
	"log_level":      "logging.level",
	"server_name":    "server.server_name",
}

// ParseHTTPDConf reads the httpd.conf key/value format and returns a nested
// map suitable for viper.MergeConfigMap.
//
// Format:
//
//	# comment
//	document_root /var/www
//	thread_limit 8
//
// Each setting is one line of exactly two tokens separated by a single space.
// Leading and trailing whitespace is ignored, as are blank lines and lines
// starting with '#'. The first line for a key wins. Unknown keys are ignored.
//
// document_root and thread_limit are required; thread_limit must be an
// integer in 1..65535.
func ParseHTTPDConf(r io.Reader) (map[string]any, error) {
	lines := make(map[string][]string)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		tokens := strings.Split(line, " ")
		if _, seen := lines[tokens[0]]; !seen {
			lines[tokens[0]] = tokens
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	root, ok := lines["document_root"]
	if !ok {
		return nil, ErrDocumentRootMissing
	}
	if len(root) != 2 {
		return nil, ErrDocumentRootFormat
	}

	limit, ok := lines["thread_limit"]
	if !ok {
		return nil, ErrThreadLimitMissing
	}
	if len(limit) != 2 {
		return nil, ErrThreadLimitFormat
	}
	threads, err := strconv.ParseUint(limit[1], 10, 16)
	if err != nil || threads == 0 {
		return nil, ErrThreadLimitFormat
	}

	values := map[string]any{}
	setNested(values, "server.document_root", root[1])
	setNested(values, "server.thread_limit", int(threads))

	for key, viperKey := range httpdConfKeys {
		tokens, ok := lines[key]
		if !ok {
			continue
		}
		if len(tokens) != 2 {
			return nil, fmt.Errorf("invalid %s format", key)
		}

		var value any = tokens[1]
		if key == "listen_port" {
			port, err := strconv.ParseUint(tokens[1], 10, 16)
			if err != nil {
				return nil, fmt.Errorf("invalid %s format", key)
			}
			value = int(port)
		}
		setNested(values, viperKey, value)
	}

	return values, nil
}

// setNested stores value under a dotted key, creating intermediate maps.
func setNested(m map[string]any, key string, value any) {
	parts := strings.Split(key, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := m[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[part] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
}
