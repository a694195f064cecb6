// Package s3 serves static content from an S3 (or S3-compatible) bucket.
//
// A lookup name such as "/site/css/main.css" maps to the object key
// KeyPrefix + "site/css/main.css". The leading slash is dropped so keys look
// like ordinary object paths in the bucket.
package s3

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3ContentStore implements content.WritableStore backed by S3.
//
// Thread Safety:
// The AWS client is safe for concurrent use; the store holds no other state.
type S3ContentStore struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	metrics   S3Metrics
}

// S3ContentStoreConfig configures an S3ContentStore around an existing client.
type S3ContentStoreConfig struct {
	// Client is the S3 client to use (required).
	Client *s3.Client

	// Bucket holds the site (required).
	Bucket string

	// KeyPrefix is prepended to every key, e.g. "sites/www/".
	KeyPrefix string

	// Metrics is optional; nil disables collection.
	Metrics S3Metrics

	// SkipBucketCheck skips the HeadBucket call at construction.
	SkipBucketCheck bool
}

// ClientConfig describes how to reach the bucket. It is decoded from the
// content.s3 configuration section.
type ClientConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	KeyPrefix       string `mapstructure:"key_prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`
}

// NewClient builds an S3 client from cfg.
//
// Credentials come from the default AWS chain (environment, shared config,
// instance role) unless AccessKeyID is set, in which case a static provider
// is used. Endpoint targets S3-compatible services such as MinIO or
// Localstack, which usually also need ForcePathStyle.
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	opts := []func(*awsConfig.LoadOptions) error{}

	if cfg.Region != "" {
		opts = append(opts, awsConfig.WithRegion(cfg.Region))
	}

	if cfg.AccessKeyID != "" {
		opts = append(opts, awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}), nil
}

// NewS3ContentStore creates a store over an existing client.
//
// Unless SkipBucketCheck is set, the bucket is checked with HeadBucket so
// misconfiguration surfaces at startup rather than on the first request.
func NewS3ContentStore(ctx context.Context, cfg S3ContentStoreConfig) (*S3ContentStore, error) {
	// ========================================================================
	// Step 1: Validate configuration
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}

	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	// ========================================================================
	// Step 2: Verify bucket access
	// ========================================================================

	if !cfg.SkipBucketCheck {
		_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
			Bucket: aws.String(cfg.Bucket),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
		}
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	return &S3ContentStore{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: cfg.KeyPrefix,
		metrics:   metrics,
	}, nil
}

// objectKey maps a lookup name to its key in the bucket.
func (s *S3ContentStore) objectKey(name string) string {
	return s.keyPrefix + strings.TrimPrefix(name, "/")
}

// Close is a no-op; the AWS client holds no resources that need releasing.
func (s *S3ContentStore) Close() error {
	return nil
}
