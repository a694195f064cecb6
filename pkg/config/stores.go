package config

import (
	"context"
	"fmt"

	"github.com/marmos91/staticd/internal/logger"
	"github.com/marmos91/staticd/pkg/content"
	contentbadger "github.com/marmos91/staticd/pkg/content/badger"
	contentfs "github.com/marmos91/staticd/pkg/content/fs"
	contentmemory "github.com/marmos91/staticd/pkg/content/memory"
	"github.com/marmos91/staticd/pkg/content/s3"
	"github.com/mitchellh/mapstructure"
)

// CreateContentStore creates the content store selected by cfg.Type.
//
// Only the type-specific map matching cfg.Type is decoded. s3Metrics is
// optional and only used by the S3 backend.
func CreateContentStore(ctx context.Context, cfg *ContentConfig, s3Metrics s3.S3Metrics) (content.Store, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemContentStore(ctx, cfg.Filesystem)
	case "memory":
		return createMemoryContentStore(ctx, cfg.Memory)
	case "badger":
		return createBadgerContentStore(ctx, cfg.Badger)
	case "s3":
		return createS3ContentStore(ctx, cfg.S3, s3Metrics)
	default:
		return nil, fmt.Errorf("unknown content store type: %q", cfg.Type)
	}
}

// CreateWritableContentStore is CreateContentStore for callers that upload
// content. The filesystem backend is read-only and is rejected.
func CreateWritableContentStore(ctx context.Context, cfg *ContentConfig, s3Metrics s3.S3Metrics) (content.WritableStore, error) {
	store, err := CreateContentStore(ctx, cfg, s3Metrics)
	if err != nil {
		return nil, err
	}

	writable, ok := store.(content.WritableStore)
	if !ok {
		_ = store.Close()
		return nil, fmt.Errorf("content store type %q is read-only", cfg.Type)
	}
	return writable, nil
}

// decodeOptions decodes a type-specific map, rejecting unknown keys.
func decodeOptions(options map[string]any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(options)
}

// createFilesystemContentStore serves straight from the local filesystem.
// Names are document_root-prefixed paths, so it takes no options.
func createFilesystemContentStore(ctx context.Context, options map[string]any) (content.Store, error) {
	var fsCfg contentfs.Config
	if err := decodeOptions(options, &fsCfg); err != nil {
		return nil, fmt.Errorf("invalid filesystem config: %w", err)
	}

	store, err := contentfs.NewFSContentStore(ctx, fsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize filesystem store: %w", err)
	}

	logger.Debug("Content store: filesystem")
	return store, nil
}

// createMemoryContentStore creates an empty in-memory store.
func createMemoryContentStore(ctx context.Context, options map[string]any) (content.Store, error) {
	var memCfg contentmemory.Config
	if err := decodeOptions(options, &memCfg); err != nil {
		return nil, fmt.Errorf("invalid memory config: %w", err)
	}

	store, err := contentmemory.NewMemoryContentStore(ctx, memCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create memory content store: %w", err)
	}

	logger.Debug("Content store: memory")
	return store, nil
}

// createBadgerContentStore opens a BadgerDB-backed store.
func createBadgerContentStore(ctx context.Context, options map[string]any) (content.Store, error) {
	var badgerCfg contentbadger.Config
	if err := decodeOptions(options, &badgerCfg); err != nil {
		return nil, fmt.Errorf("invalid badger config: %w", err)
	}

	store, err := contentbadger.NewBadgerContentStore(ctx, badgerCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	if badgerCfg.InMemory {
		logger.Debug("Content store: badger (in-memory)")
	} else {
		logger.Debug("Content store: badger at %s", badgerCfg.Path)
	}
	return store, nil
}

// createS3ContentStore creates an S3-backed content store.
func createS3ContentStore(ctx context.Context, options map[string]any, s3Metrics s3.S3Metrics) (content.Store, error) {
	var clientCfg s3.ClientConfig
	if err := decodeOptions(options, &clientCfg); err != nil {
		return nil, fmt.Errorf("invalid S3 config: %w", err)
	}

	if clientCfg.Bucket == "" {
		return nil, fmt.Errorf("S3 bucket is required")
	}
	if clientCfg.Region == "" {
		return nil, fmt.Errorf("S3 region is required")
	}

	client, err := s3.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	store, err := s3.NewS3ContentStore(ctx, s3.S3ContentStoreConfig{
		Client:    client,
		Bucket:    clientCfg.Bucket,
		KeyPrefix: clientCfg.KeyPrefix,
		Metrics:   s3Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize S3 store: %w", err)
	}

	logger.Debug("Content store: s3://%s/%s", clientCfg.Bucket, clientCfg.KeyPrefix)
	return store, nil
}
