package config

import (
	"fmt"

	"github.com/marmos91/staticd/pkg/adapter"
	"github.com/marmos91/staticd/pkg/adapter/http"
	"github.com/marmos91/staticd/pkg/metrics"
)

// CreateAdapters creates all enabled protocol adapters from the configuration.
//
// Server-wide settings (thread_limit, server_name, shutdown_timeout) are
// copied into each adapter's configuration here.
//
// Parameters:
//   - cfg: The complete staticd configuration
//   - httpMetrics: Optional HTTP metrics collector (nil = no metrics)
//
// Returns:
//   - []adapter.Adapter: List of enabled adapters ready to be added to the server
//   - error: Any error during adapter creation
func CreateAdapters(cfg *Config, httpMetrics metrics.HTTPMetrics) ([]adapter.Adapter, error) {
	var adapters []adapter.Adapter

	if cfg.Adapters.HTTP.Enabled {
		httpCfg := cfg.Adapters.HTTP
		httpCfg.Workers = cfg.Server.ThreadLimit
		httpCfg.ServerName = cfg.Server.ServerName
		httpCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout

		adapters = append(adapters, http.New(httpCfg, httpMetrics))
	}

	if len(adapters) == 0 {
		return nil, fmt.Errorf("no adapters enabled in configuration")
	}

	return adapters, nil
}
