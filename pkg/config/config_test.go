package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad_HTTPDConf(t *testing.T) {
	path := writeFile(t, "httpd.conf", "document_root /var/www\nthread_limit 8\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/www", cfg.Server.DocumentRoot)
	assert.Equal(t, 8, cfg.Server.ThreadLimit)

	// Everything else is defaulted
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, "stdout", cfg.Logging.Output)
	assert.Equal(t, "staticd", cfg.Server.ServerName)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "filesystem", cfg.Content.Type)
	assert.True(t, cfg.Adapters.HTTP.Enabled)
	assert.Equal(t, "127.0.0.1", cfg.Adapters.HTTP.Address)
	assert.Equal(t, 9000, cfg.Adapters.HTTP.Port)
	assert.Equal(t, 10*time.Second, cfg.Adapters.HTTP.ReadTimeout)
	assert.Equal(t, 4096, cfg.Adapters.HTTP.ReadBufferSize)
	assert.Equal(t, 1<<20, cfg.Adapters.HTTP.ChunkSize)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoad_HTTPDConfOptionalKeys(t *testing.T) {
	path := writeFile(t, "site.conf", `# staticd
document_root /srv/site
thread_limit 2

listen_address 0.0.0.0
listen_port 8080
log_level debug
server_name edge-1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Adapters.HTTP.Address)
	assert.Equal(t, 8080, cfg.Adapters.HTTP.Port)
	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "edge-1", cfg.Server.ServerName)
}

func TestLoad_HTTPDConfErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    error
	}{
		{"no document root", "thread_limit 4\n", ErrDocumentRootMissing},
		{"document root with extra token", "document_root /var/www extra\nthread_limit 4\n", ErrDocumentRootFormat},
		{"no thread limit", "document_root /var/www\n", ErrThreadLimitMissing},
		{"thread limit not a number", "document_root /var/www\nthread_limit many\n", ErrThreadLimitFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "httpd.conf", tt.content))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.want.Error(), err.Error())
		})
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "staticd.yaml", `
logging:
  level: warn
  format: json
server:
  document_root: /data/www
  thread_limit: 16
  shutdown_timeout: 5s
content:
  type: memory
adapters:
  http:
    port: 0
    read_timeout: 2s
    max_connections: 100
    rate_limit:
      requests_per_second: 50
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "WARN", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/data/www", cfg.Server.DocumentRoot)
	assert.Equal(t, 16, cfg.Server.ThreadLimit)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "memory", cfg.Content.Type)
	assert.Equal(t, 0, cfg.Adapters.HTTP.Port)
	assert.Equal(t, 2*time.Second, cfg.Adapters.HTTP.ReadTimeout)
	assert.Equal(t, 100, cfg.Adapters.HTTP.MaxConnections)
	assert.Equal(t, uint(50), cfg.Adapters.HTTP.RateLimit.RequestsPerSecond)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeFile(t, "invalid.yaml", `
logging:
  level: INFO
  invalid yaml here [[[
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "httpd.conf"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestLoad_NoFileRequiresDocumentRoot(t *testing.T) {
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DocumentRoot")
}

func TestLoad_EnvironmentOnly(t *testing.T) {
	t.Setenv("STATICD_SERVER_DOCUMENT_ROOT", "/env/www")
	t.Setenv("STATICD_SERVER_THREAD_LIMIT", "3")
	t.Setenv("STATICD_ADAPTERS_HTTP_PORT", "9100")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/env/www", cfg.Server.DocumentRoot)
	assert.Equal(t, 3, cfg.Server.ThreadLimit)
	assert.Equal(t, 9100, cfg.Adapters.HTTP.Port)
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	path := writeFile(t, "httpd.conf", "document_root /var/www\nthread_limit 8\n")
	t.Setenv("STATICD_SERVER_THREAD_LIMIT", "12")
	t.Setenv("STATICD_LOGGING_LEVEL", "error")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 12, cfg.Server.ThreadLimit)
	assert.Equal(t, "ERROR", cfg.Logging.Level)
	assert.Equal(t, "/var/www", cfg.Server.DocumentRoot)
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeFile(t, "staticd.yaml", `
server:
  document_root: /var/www
  thread_limit: 70000
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration validation failed")
	assert.Contains(t, err.Error(), "ThreadLimit")
}
