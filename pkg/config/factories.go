package config

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/pkg/store/block"
	blockFs "github.com/marmos91/dittovault/pkg/store/block/fs"
	blockMemory "github.com/marmos91/dittovault/pkg/store/block/memory"
	blockS3 "github.com/marmos91/dittovault/pkg/store/block/s3"
	"github.com/marmos91/dittovault/pkg/store/metadata"
	"github.com/marmos91/dittovault/pkg/store/metadata/badger"
	metaMemory "github.com/marmos91/dittovault/pkg/store/metadata/memory"
	"github.com/mitchellh/mapstructure"
)

// S3Options are the options accepted under blocks.s3.
type S3Options struct {
	Region          string        `mapstructure:"region"`
	Bucket          string        `mapstructure:"bucket"`
	KeyPrefix       string        `mapstructure:"key_prefix"`
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	MaxConcurrency  int           `mapstructure:"max_concurrency"`
	Integrity       *bool         `mapstructure:"integrity"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	FetchWindow     int           `mapstructure:"fetch_window"`
}

// decodeOptions decodes an option map into out, accepting durations as
// strings ("30s").
func decodeOptions(options map[string]any, out any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return fmt.Errorf("failed to create decoder: %w", err)
	}
	return decoder.Decode(options)
}

// CreateBlockStore creates a block store based on configuration.
//
// Supported types:
//   - "filesystem": pkg/store/block/fs (one directory per vault)
//   - "memory": pkg/store/block/memory (ephemeral)
//   - "s3": pkg/store/block/s3 (S3 or a compatible service)
//
// s3Metrics may be nil.
func CreateBlockStore(ctx context.Context, cfg *BlocksConfig, s3Metrics blockS3.S3Metrics) (block.Store, error) {
	switch cfg.Type {
	case "filesystem":
		return createFilesystemBlockStore(ctx, cfg.Filesystem)
	case "memory":
		store, err := blockMemory.NewMemoryBlockStore(ctx)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "s3":
		return createS3BlockStore(ctx, cfg.S3, s3Metrics)
	default:
		return nil, fmt.Errorf("unknown block store type: %q (supported: filesystem, memory, s3)", cfg.Type)
	}
}

func createFilesystemBlockStore(ctx context.Context, options map[string]any) (block.Store, error) {
	var storeCfg blockFs.Config
	if err := decodeOptions(options, &storeCfg); err != nil {
		return nil, fmt.Errorf("failed to decode filesystem block store config: %w", err)
	}
	if storeCfg.Path == "" {
		return nil, fmt.Errorf("filesystem block store: path is required")
	}

	store, err := blockFs.NewFSBlockStore(ctx, storeCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create filesystem block store: %w", err)
	}
	logger.Info("Filesystem block store initialized: path=%s", storeCfg.Path)
	return store, nil
}

func createS3BlockStore(ctx context.Context, options map[string]any, s3Metrics blockS3.S3Metrics) (block.Store, error) {
	var opts S3Options
	if err := decodeOptions(options, &opts); err != nil {
		return nil, fmt.Errorf("failed to decode S3 block store config: %w", err)
	}
	if opts.Bucket == "" {
		return nil, fmt.Errorf("S3 block store: bucket is required")
	}
	if opts.Region == "" {
		return nil, fmt.Errorf("S3 block store: region is required")
	}

	client, err := newS3Client(ctx, opts)
	if err != nil {
		return nil, err
	}

	integrity := opts.Integrity == nil || *opts.Integrity
	store, err := blockS3.NewS3BlockStore(ctx, blockS3.S3BlockStoreConfig{
		Client:         client,
		Bucket:         opts.Bucket,
		KeyPrefix:      opts.KeyPrefix,
		MaxConcurrency: opts.MaxConcurrency,
		Integrity:      integrity,
		RequestTimeout: opts.RequestTimeout,
		FetchWindow:    opts.FetchWindow,
		Metrics:        s3Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 block store: %w", err)
	}

	logger.Info("S3 block store initialized: bucket=%s, region=%s, prefix=%s",
		opts.Bucket, opts.Region, opts.KeyPrefix)
	return store, nil
}

// newS3Client builds an S3 client from the options. Batch semantics rely
// on failures surfacing, so retries default to a single attempt.
func newS3Client(ctx context.Context, opts S3Options) (*s3.Client, error) {
	var configOptions []func(*awsConfig.LoadOptions) error

	configOptions = append(configOptions, awsConfig.WithRegion(opts.Region))

	// Static credentials, otherwise the default credential chain
	if opts.AccessKeyID != "" && opts.SecretAccessKey != "" {
		credProvider := credentials.NewStaticCredentialsProvider(opts.AccessKeyID, opts.SecretAccessKey, "")
		configOptions = append(configOptions, awsConfig.WithCredentialsProvider(credProvider))
	}

	// One attempt means no retries.
	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	configOptions = append(configOptions, awsConfig.WithRetryer(func() aws.Retryer {
		return retry.NewStandard(func(o *retry.StandardOptions) {
			o.MaxAttempts = maxAttempts
		})
	}))

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, configOptions...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// MinIO and Localstack need path-style addressing
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// CreateMetadataIndex creates a metadata index based on configuration.
//
// Supported types:
//   - "memory": pkg/store/metadata/memory (ephemeral)
//   - "badger": pkg/store/metadata/badger (persistent)
func CreateMetadataIndex(ctx context.Context, cfg *MetadataConfig) (metadata.Index, error) {
	switch cfg.Type {
	case "memory":
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return metaMemory.NewMemoryIndex(), nil
	case "badger":
		return createBadgerIndex(ctx, cfg.Badger)
	default:
		return nil, fmt.Errorf("unknown metadata store type: %q (supported: memory, badger)", cfg.Type)
	}
}

func createBadgerIndex(ctx context.Context, options map[string]any) (metadata.Index, error) {
	var indexCfg badger.BadgerIndexConfig
	if err := decodeOptions(options, &indexCfg); err != nil {
		return nil, fmt.Errorf("failed to decode badger metadata store options: %w", err)
	}
	if indexCfg.DBPath == "" && !indexCfg.InMemory {
		return nil, fmt.Errorf("badger metadata store: db_path is required")
	}

	index, err := badger.NewBadgerIndex(ctx, indexCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create badger metadata store: %w", err)
	}
	logger.Info("Badger metadata index initialized: path=%s", indexCfg.DBPath)
	return index, nil
}
