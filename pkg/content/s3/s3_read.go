package s3

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/marmos91/staticd/pkg/content"
)

// Open starts a GetObject download and returns the streaming body.
//
// The body is read lazily by the response streamer; closing it releases the
// underlying HTTP connection to S3.
//
// Returns:
//   - content.ErrNotFound if the key does not exist
//   - a wrapped SDK error otherwise
func (s *S3ContentStore) Open(ctx context.Context, name string) (obj *content.Object, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("GetObject", time.Since(start), err)
	}()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	key := s.objectKey(name)

	result, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.translateError(name, "get", err)
	}

	return &content.Object{
		Body: &countingReadCloser{
			ReadCloser: result.Body,
			metrics:    s.metrics,
			operation:  "GetObject",
		},
		Size: aws.ToInt64(result.ContentLength),
	}, nil
}

// Stat issues a HeadObject request; the object body is never fetched.
func (s *S3ContentStore) Stat(ctx context.Context, name string) (info *content.Info, err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("HeadObject", time.Since(start), err)
	}()

	if err = ctx.Err(); err != nil {
		return nil, err
	}

	result, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(name)),
	})
	if err != nil {
		return nil, s.translateError(name, "head", err)
	}

	return &content.Info{
		Size:    aws.ToInt64(result.ContentLength),
		ModTime: aws.ToTime(result.LastModified),
	}, nil
}

// translateError maps S3 "missing key" responses onto content.ErrNotFound.
//
// GetObject reports NoSuchKey, HeadObject has no body and reports NotFound;
// some S3-compatible servers only give a bare 404, so the status code is
// checked as a fallback.
func (s *S3ContentStore) translateError(name, op string, err error) error {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return fmt.Errorf("content %s: %w", name, content.ErrNotFound)
	}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return fmt.Errorf("content %s: %w", name, content.ErrNotFound)
	}

	return fmt.Errorf("failed to %s object %s: %w", op, s.objectKey(name), err)
}
