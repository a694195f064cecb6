package s3

import (
	"io"
	"time"
)

// S3Metrics provides observability for S3 operations.
//
// This is optional - if not provided, metrics collection is skipped.
type S3Metrics interface {
	// ObserveOperation records an S3 call with its duration and outcome.
	// operation is the S3 API name: "GetObject", "HeadObject", "PutObject" or "DeleteObject".
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records bytes moved by an operation.
	RecordBytes(operation string, bytes int64)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(operation string, duration time.Duration, err error) {}
func (noopMetrics) RecordBytes(operation string, bytes int64)                            {}

// countingReadCloser reports the bytes actually streamed when the body is closed.
// Clients that disconnect mid-transfer are accounted for what they received.
type countingReadCloser struct {
	io.ReadCloser
	metrics   S3Metrics
	operation string
	n         int64
}

func (c *countingReadCloser) Read(p []byte) (int, error) {
	n, err := c.ReadCloser.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReadCloser) Close() error {
	err := c.ReadCloser.Close()
	if c.n > 0 {
		c.metrics.RecordBytes(c.operation, c.n)
	}
	return err
}
