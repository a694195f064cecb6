// Package metrics defines the observability hooks of staticd and the
// Prometheus registry and HTTP endpoint that back them.
//
// All metrics are optional - if the registry is not initialized, components
// use no-op implementations. Prometheus-backed implementations live in
// pkg/metrics/prometheus.
//
// Usage:
//
//	metrics.InitRegistry()
//	httpMetrics := prometheus.NewHTTPMetrics()
//	adapter := http.New(config, httpMetrics)
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// registry is written once by InitRegistry and read by every collector.
	registry     *prometheus.Registry
	registryOnce sync.Once
)

// InitRegistry creates the global registry, registering the Go runtime and
// process collectors alongside staticd's own metrics.
//
// Call it before creating any collector. Later calls are ignored.
//
// Thread safety:
// sync.Once orders the registry write before every subsequent read.
func InitRegistry() {
	registryOnce.Do(func() {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		registry = reg
	})
}

// GetRegistry returns the global registry, or nil while metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return GetRegistry() != nil
}
