package s3

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gabriel-vasile/mimetype"
	"github.com/marmos91/staticd/pkg/content"
)

// Put uploads data as a single PutObject request.
//
// The object's Content-Type is sniffed from the data so the bucket is also
// browsable directly; staticd itself ignores it and uses its extension table.
func (s *S3ContentStore) Put(ctx context.Context, name string, data []byte) (err error) {
	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("PutObject", time.Since(start), err)
		if err == nil {
			s.metrics.RecordBytes("PutObject", int64(len(data)))
		}
	}()

	if err = ctx.Err(); err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(name)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(mimetype.Detect(data).String()),
	}

	if _, err = s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("failed to put object %s: %w", s.objectKey(name), err)
	}
	return nil
}

// Delete removes the object. S3 deletes are idempotent, so the object is
// checked first to report content.ErrNotFound consistently with other stores.
func (s *S3ContentStore) Delete(ctx context.Context, name string) (err error) {
	if _, err = s.Stat(ctx, name); err != nil {
		return err
	}

	start := time.Now()
	defer func() {
		s.metrics.ObserveOperation("DeleteObject", time.Since(start), err)
	}()

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(name)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", s.objectKey(name), err)
	}
	return nil
}

var _ content.WritableStore = (*S3ContentStore)(nil)
