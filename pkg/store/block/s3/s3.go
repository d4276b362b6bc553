package s3

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/pkg/store/block"
)

const (
	// vaultMarker is the object whose presence records that a vault exists.
	// Object storage has no real directories, so an empty vault would
	// otherwise be invisible.
	vaultMarker = ".vault"

	blocksDir = "blocks/"

	// maxListKeys is the S3 page size limit for ListObjectsV2.
	maxListKeys = 1000

	defaultFetchWindow = 16
)

// S3BlockStore implements block.Store on one S3 bucket.
//
// Key Design:
//
//	<prefix><vault>/.vault            existence marker
//	<prefix><vault>/blocks/<sid>      block bytes
//
// Every multi-block operation goes through the Coordinator, so bulk
// stores, fetches and existence checks run concurrently with positional
// results.
//
// Thread Safety:
// Safe for concurrent use. Blocks are write-once under unique storage ids,
// so concurrent writers never race on a key.
type S3BlockStore struct {
	client      ObjectAPI
	bucket      string
	keyPrefix   string
	fetchWindow int
	coordinator *Coordinator
	metrics     S3Metrics
}

var _ block.Store = (*S3BlockStore)(nil)

// S3BlockStoreConfig contains configuration for the S3 block store.
type S3BlockStoreConfig struct {
	// Client is the configured S3 client
	Client ObjectAPI

	// Bucket is the S3 bucket name. It must already exist.
	Bucket string

	// KeyPrefix is an optional prefix for all object keys
	// Example: "dittovault/" results in keys like "dittovault/v1/blocks/<sid>"
	KeyPrefix string

	// MaxConcurrency bounds in-flight requests of one batch (0 = transport bound)
	MaxConcurrency int

	// Integrity adds Content-MD5 and Content-Length to every upload
	Integrity bool

	// RequestTimeout bounds each individual request (0 = none)
	RequestTimeout time.Duration

	// FetchWindow is how many blocks OpenBlocks downloads concurrently
	FetchWindow int

	// Metrics is optional
	Metrics S3Metrics
}

// NewS3BlockStore creates a new S3-based block store.
//
// This verifies bucket access. The bucket must already exist - this
// function does not create it.
func NewS3BlockStore(ctx context.Context, cfg S3BlockStoreConfig) (*S3BlockStore, error) {
	// ========================================================================
	// Step 1: Check context before S3 operations
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// ========================================================================
	// Step 2: Validate configuration
	// ========================================================================

	if cfg.Client == nil {
		return nil, fmt.Errorf("S3 client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	if cfg.KeyPrefix != "" && !strings.HasSuffix(cfg.KeyPrefix, "/") {
		cfg.KeyPrefix += "/"
	}
	if cfg.FetchWindow <= 0 {
		cfg.FetchWindow = defaultFetchWindow
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}

	// ========================================================================
	// Step 3: Verify bucket access
	// ========================================================================

	_, err := cfg.Client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(cfg.Bucket),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to access bucket %q: %w", cfg.Bucket, err)
	}

	return &S3BlockStore{
		client:      cfg.Client,
		bucket:      cfg.Bucket,
		keyPrefix:   cfg.KeyPrefix,
		fetchWindow: cfg.FetchWindow,
		metrics:     cfg.Metrics,
		coordinator: NewCoordinator(CoordinatorConfig{
			Client:         cfg.Client,
			Bucket:         cfg.Bucket,
			Metrics:        cfg.Metrics,
			MaxConcurrency: cfg.MaxConcurrency,
			Integrity:      cfg.Integrity,
			RequestTimeout: cfg.RequestTimeout,
		}),
	}, nil
}

func (s *S3BlockStore) vaultPrefix(vaultID string) string {
	return s.keyPrefix + vaultID + "/"
}

func (s *S3BlockStore) markerKey(vaultID string) string {
	return s.vaultPrefix(vaultID) + vaultMarker
}

func (s *S3BlockStore) blocksPrefix(vaultID string) string {
	return s.vaultPrefix(vaultID) + blocksDir
}

func (s *S3BlockStore) blockKey(vaultID string, sid block.StorageID) string {
	return s.blocksPrefix(vaultID) + string(sid)
}

func checkIDs(vaultID string, sid block.StorageID) error {
	if err := block.ValidateVaultID(vaultID); err != nil {
		return err
	}
	return sid.Validate()
}

// ============================================================================
// Vaults
// ============================================================================

func (s *S3BlockStore) CreateVault(ctx context.Context, vaultID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := block.ValidateVaultID(vaultID); err != nil {
		return err
	}

	// Rewriting the marker of an existing vault is harmless.
	out := s.coordinator.PutAll(ctx, []PutRequest{{Key: s.markerKey(vaultID), Data: []byte{}}})
	if err := out.Results[0].Err; err != nil {
		return fmt.Errorf("create vault %s: %w", vaultID, err)
	}
	return nil
}

func (s *S3BlockStore) DeleteVault(ctx context.Context, vaultID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	exists, err := s.VaultExists(ctx, vaultID)
	if err != nil || !exists {
		return err == nil, err
	}

	sids, err := s.ListVaultBlocks(ctx, vaultID, "", 1)
	if err != nil {
		return false, err
	}
	if len(sids) > 0 {
		return false, nil
	}

	if err := s.coordinator.DeleteAll(ctx, []string{s.markerKey(vaultID)})[0]; err != nil {
		return false, fmt.Errorf("delete vault %s: %w", vaultID, err)
	}
	return true, nil
}

func (s *S3BlockStore) VaultExists(ctx context.Context, vaultID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := block.ValidateVaultID(vaultID); err != nil {
		return false, err
	}

	res := s.coordinator.HeadAll(ctx, []string{s.markerKey(vaultID)})[0]
	return res.Exists, res.Err
}

func (s *S3BlockStore) requireVault(ctx context.Context, vaultID string) error {
	exists, err := s.VaultExists(ctx, vaultID)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("vault %s: %w", vaultID, block.ErrVaultNotFound)
	}
	return nil
}

// VaultStatistics lists every block of the vault. This costs one
// ListObjectsV2 request per thousand blocks.
func (s *S3BlockStore) VaultStatistics(ctx context.Context, vaultID string) (*block.VaultStats, error) {
	if err := s.requireVault(ctx, vaultID); err != nil {
		return nil, err
	}

	stats := &block.VaultStats{}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.blocksPrefix(vaultID)),
	})

	for paginator.HasMorePages() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		start := time.Now()
		page, err := paginator.NextPage(ctx)
		s.metrics.ObserveOperation("ListObjectsV2", time.Since(start), err)
		if err != nil {
			return nil, communicationError("list", s.blocksPrefix(vaultID), err)
		}

		for _, obj := range page.Contents {
			stats.BlockCount++
			stats.TotalSize += aws.ToInt64(obj.Size)
		}
	}

	return stats, nil
}

// ============================================================================
// Blocks
// ============================================================================

func (s *S3BlockStore) StoreBlock(ctx context.Context, vaultID, blockID string, data []byte) (*block.StoreResult, error) {
	res, err := s.StoreBlocks(ctx, vaultID, []string{blockID}, [][]byte{data})
	if err != nil {
		return nil, err
	}
	if err := res.Errors[0]; err != nil {
		return nil, err
	}
	return &block.StoreResult{Status: res.Status, StorageID: res.StorageIDs[0]}, nil
}

// StoreBlocks uploads all blocks concurrently. The returned storage ids are
// assigned to every block, including failed ones, so callers can re-check
// BlockExists after a failed batch.
func (s *S3BlockStore) StoreBlocks(ctx context.Context, vaultID string, blockIDs []string, blocks [][]byte) (*block.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := block.ValidateBulk(blockIDs, blocks); err != nil {
		return nil, err
	}
	if err := s.requireVault(ctx, vaultID); err != nil {
		return nil, err
	}

	sids := make([]block.StorageID, len(blockIDs))
	reqs := make([]PutRequest, len(blockIDs))
	for i, id := range blockIDs {
		sids[i] = block.NewStorageID(id)
		reqs[i] = PutRequest{Key: s.blockKey(vaultID, sids[i]), Data: blocks[i]}
	}

	out := s.coordinator.PutAll(ctx, reqs)

	res := &block.BatchResult{
		Status:     out.Status,
		StorageIDs: sids,
		Errors:     make([]error, len(reqs)),
	}
	for i, r := range out.Results {
		res.Errors[i] = r.Err
	}

	logger.Debug("s3 stored %d blocks in vault %s: %s", len(reqs), vaultID, out.Status)
	return res, nil
}

func (s *S3BlockStore) BlockExists(ctx context.Context, vaultID string, sid block.StorageID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := checkIDs(vaultID, sid); err != nil {
		return false, err
	}

	res := s.coordinator.HeadAll(ctx, []string{s.blockKey(vaultID, sid)})[0]
	return res.Exists, res.Err
}

// BlocksExist checks many storage ids in one concurrent batch. The result is
// positionally aligned with sids.
func (s *S3BlockStore) BlocksExist(ctx context.Context, vaultID string, sids []block.StorageID) ([]bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	keys := make([]string, len(sids))
	for i, sid := range sids {
		if err := checkIDs(vaultID, sid); err != nil {
			return nil, err
		}
		keys[i] = s.blockKey(vaultID, sid)
	}

	exists := make([]bool, len(sids))
	for i, r := range s.coordinator.HeadAll(ctx, keys) {
		if r.Err != nil {
			return nil, r.Err
		}
		exists[i] = r.Exists
	}
	return exists, nil
}

func (s *S3BlockStore) DeleteBlock(ctx context.Context, vaultID string, sid block.StorageID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkIDs(vaultID, sid); err != nil {
		return err
	}

	return s.coordinator.DeleteAll(ctx, []string{s.blockKey(vaultID, sid)})[0]
}

func (s *S3BlockStore) GetBlock(ctx context.Context, vaultID string, sid block.StorageID) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkIDs(vaultID, sid); err != nil {
		return nil, err
	}

	res := s.coordinator.GetAll(ctx, []string{s.blockKey(vaultID, sid)})[0]
	if res.Err != nil {
		return nil, res.Err
	}
	return res.Body, nil
}

func (s *S3BlockStore) GetBlockLength(ctx context.Context, vaultID string, sid block.StorageID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := checkIDs(vaultID, sid); err != nil {
		return 0, err
	}

	res := s.coordinator.HeadAll(ctx, []string{s.blockKey(vaultID, sid)})[0]
	if res.Err != nil {
		return 0, res.Err
	}
	return res.ContentLength, nil
}

func (s *S3BlockStore) ListVaultBlocks(ctx context.Context, vaultID string, marker block.StorageID, limit int) ([]block.StorageID, error) {
	if err := s.requireVault(ctx, vaultID); err != nil {
		return nil, err
	}

	prefix := s.blocksPrefix(vaultID)
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	}
	if marker != "" {
		input.StartAfter = aws.String(prefix + string(marker))
	}

	sids := []block.StorageID{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageSize := maxListKeys
		if limit > 0 && limit-len(sids) < pageSize {
			pageSize = limit - len(sids)
		}
		input.MaxKeys = aws.Int32(int32(pageSize))

		start := time.Now()
		page, err := s.client.ListObjectsV2(ctx, input)
		s.metrics.ObserveOperation("ListObjectsV2", time.Since(start), err)
		if err != nil {
			return nil, communicationError("list", prefix, err)
		}

		for _, obj := range page.Contents {
			sids = append(sids, block.StorageID(strings.TrimPrefix(aws.ToString(obj.Key), prefix)))
		}

		if limit > 0 && len(sids) >= limit {
			return sids[:limit], nil
		}
		if !aws.ToBool(page.IsTruncated) || page.NextContinuationToken == nil {
			return sids, nil
		}
		input.ContinuationToken = page.NextContinuationToken
	}
}

// OpenBlocks downloads blocks in windows of FetchWindow concurrent GETs.
func (s *S3BlockStore) OpenBlocks(ctx context.Context, vaultID string, sids []block.StorageID) *block.BlockIterator {
	for _, sid := range sids {
		if err := checkIDs(vaultID, sid); err != nil {
			return block.ErrIterator(err)
		}
	}

	return block.NewBlockIterator(ctx, sids, s.fetchWindow, func(ctx context.Context, window []block.StorageID) ([]io.ReadCloser, error) {
		keys := make([]string, len(window))
		for i, sid := range window {
			keys[i] = s.blockKey(vaultID, sid)
		}

		results := s.coordinator.GetAll(ctx, keys)

		streams := make([]io.ReadCloser, len(results))
		var firstErr error
		for i, r := range results {
			if r.Err != nil && firstErr == nil {
				firstErr = r.Err
			}
			streams[i] = r.Body
		}
		if firstErr != nil {
			for _, body := range streams {
				if body != nil {
					_ = body.Close()
				}
			}
			return nil, firstErr
		}
		return streams, nil
	})
}

func (s *S3BlockStore) Close() error {
	return nil
}
