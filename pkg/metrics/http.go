package metrics

import "time"

// HTTPMetrics provides observability for the HTTP adapter.
//
// This interface is optional - if not provided to the HTTP adapter, a
// no-op implementation is used with zero overhead.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	m := prometheus.NewHTTPMetrics()
//	adapter := http.New(config, m)
//
//	// Without metrics (no-op)
//	adapter := http.New(config, nil)
type HTTPMetrics interface {
	// RecordRequest records a completed request.
	//
	// Parameters:
	//   - method: "GET", "HEAD", or "-" for requests that failed to parse
	//   - status: HTTP status code sent
	//   - duration: Time from first byte read to last byte written
	RecordRequest(method string, status int, duration time.Duration)

	// RecordBytesSent records bytes written to a client, head included.
	RecordBytesSent(bytes int64)

	// SetActiveConnections updates the number of connections accepted but
	// not yet closed (queued or being served).
	SetActiveConnections(count int32)

	// RecordConnectionAccepted increments the total accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the total closed connections counter.
	RecordConnectionClosed()

	// RecordConnectionForceClosed counts connections closed by shutdown timeout.
	RecordConnectionForceClosed()

	// SetQueueDepth reports tasks waiting for a worker.
	SetQueueDepth(depth int)

	// SetBusyWorkers reports workers currently running a task.
	SetBusyWorkers(count int)
}

// NewNoopHTTPMetrics returns an HTTPMetrics that records nothing.
func NewNoopHTTPMetrics() HTTPMetrics {
	return noopHTTPMetrics{}
}

type noopHTTPMetrics struct{}

func (noopHTTPMetrics) RecordRequest(method string, status int, duration time.Duration) {}
func (noopHTTPMetrics) RecordBytesSent(bytes int64)                                     {}
func (noopHTTPMetrics) SetActiveConnections(count int32)                                {}
func (noopHTTPMetrics) RecordConnectionAccepted()                                       {}
func (noopHTTPMetrics) RecordConnectionClosed()                                         {}
func (noopHTTPMetrics) RecordConnectionForceClosed()                                    {}
func (noopHTTPMetrics) SetQueueDepth(depth int)                                         {}
func (noopHTTPMetrics) SetBusyWorkers(count int)                                        {}
