package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultYAMLFile is where InitConfig writes when no path is given.
const DefaultYAMLFile = "staticd.yaml"

const configHeader = `# staticd Configuration File
#
# Precedence: CLI flags > STATICD_* environment variables > this file > defaults.
# Environment keys use underscores, e.g. STATICD_SERVER_THREAD_LIMIT=8.`

// InitConfig writes a commented default configuration to path.
//
// Parameters:
//   - path: Destination file; empty means DefaultYAMLFile
//   - force: Overwrite an existing file
//
// Returns:
//   - string: The path written
//   - error: If the file exists and force is false, or writing fails
func InitConfig(path string, force bool) (string, error) {
	if path == "" {
		path = DefaultYAMLFile
	}

	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("config file already exists at %s (use --force to overwrite)", path)
	}

	data, err := GenerateDefaultYAML()
	if err != nil {
		return "", err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write config file: %w", err)
	}

	return path, nil
}

// GenerateDefaultYAML renders GetDefaultConfig as YAML, one commented
// section per top-level key.
func GenerateDefaultYAML() ([]byte, error) {
	cfg := GetDefaultConfig()
	httpCfg := cfg.Adapters.HTTP

	sections := []struct {
		key     string
		comment string
		value   any
	}{
		{
			key:     "logging",
			comment: "# Log output. level: DEBUG | INFO | WARN | ERROR, format: text | json, output: stdout | stderr | <file>",
			value: map[string]any{
				"level":  cfg.Logging.Level,
				"format": cfg.Logging.Format,
				"output": cfg.Logging.Output,
			},
		},
		{
			key:     "server",
			comment: "# document_root is prepended to every request path. thread_limit is the worker count (1-65535).",
			value: map[string]any{
				"document_root":    cfg.Server.DocumentRoot,
				"thread_limit":     cfg.Server.ThreadLimit,
				"server_name":      cfg.Server.ServerName,
				"shutdown_timeout": cfg.Server.ShutdownTimeout.String(),
			},
		},
		{
			key:     "metrics",
			comment: "# Prometheus endpoint at http://<host>:<port>/metrics",
			value: map[string]any{
				"enabled": cfg.Metrics.Enabled,
				"port":    cfg.Metrics.Port,
			},
		},
		{
			key:     "content",
			comment: "# Where files are read from. type: filesystem | memory | badger | s3",
			value: map[string]any{
				"type":       cfg.Content.Type,
				"filesystem": cfg.Content.Filesystem,
				"memory":     cfg.Content.Memory,
				"badger": map[string]any{
					"path":      cfg.Content.Badger["path"],
					"in_memory": false,
				},
				"s3": map[string]any{
					"bucket":            "",
					"region":            cfg.Content.S3["region"],
					"endpoint":          "",
					"key_prefix":        "",
					"access_key_id":     "",
					"secret_access_key": "",
					"force_path_style":  false,
				},
			},
		},
		{
			key:     "adapters",
			comment: "# Protocol front-ends",
			value: map[string]any{
				"http": map[string]any{
					"enabled":              httpCfg.Enabled,
					"address":              httpCfg.Address,
					"port":                 httpCfg.Port,
					"read_timeout":         httpCfg.ReadTimeout.String(),
					"write_timeout":        httpCfg.WriteTimeout.String(),
					"read_buffer_size":     httpCfg.ReadBufferSize,
					"chunk_size":           httpCfg.ChunkSize,
					"max_connections":      httpCfg.MaxConnections,
					"reuse_port":           httpCfg.ReusePort,
					"metrics_log_interval": httpCfg.MetricsLogInterval.String(),
					"rate_limit": map[string]any{
						"requests_per_second": httpCfg.RateLimit.RequestsPerSecond,
						"burst":               httpCfg.RateLimit.Burst,
					},
				},
			},
		},
	}

	root := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, section := range sections {
		var value yaml.Node
		if err := value.Encode(section.value); err != nil {
			return nil, fmt.Errorf("failed to encode %s section: %w", section.key, err)
		}
		key := &yaml.Node{
			Kind:        yaml.ScalarNode,
			Tag:         "!!str",
			Value:       section.key,
			HeadComment: section.comment,
		}
		root.Content = append(root.Content, key, &value)
	}

	doc := &yaml.Node{
		Kind:        yaml.DocumentNode,
		HeadComment: configHeader,
		Content:     []*yaml.Node{root},
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}

	return buf.Bytes(), nil
}
