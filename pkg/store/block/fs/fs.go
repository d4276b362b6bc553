// Package fs implements filesystem-based block storage.
//
// Layout under the configured root:
//
//	<root>/<vault>/                 vault container
//	<root>/<vault>/<sid[0:2]>/<sid> block bytes, sharded by storage id prefix
//	<root>/<vault>/.tmp/            in-flight writes, renamed into place
//
// Shard directories sort in the same order as the storage ids they hold,
// so walking shards in name order lists blocks in ascending storage id.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/pkg/store/block"
	"github.com/spf13/afero"
)

const (
	shardLen = 2
	tmpDir   = ".tmp"
)

// FSBlockStore implements block.Store on an afero filesystem.
//
// Thread Safety:
// Blocks are written to a temporary file and renamed into place, so a
// reader never observes a partially written block. Storage ids are unique
// per write, so concurrent writers never target the same path.
type FSBlockStore struct {
	fs afero.Fs
}

var _ block.Store = (*FSBlockStore)(nil)

// Config configures the filesystem store.
type Config struct {
	// Path is the root directory. Required unless Fs is set.
	Path string `mapstructure:"path"`

	// Fs overrides the filesystem. When set, Path is interpreted inside it.
	// Tests use afero.NewMemMapFs().
	Fs afero.Fs `mapstructure:"-"`
}

// NewFSBlockStore creates the store, creating the root directory if needed.
//
// Construction is idempotent: pointing at an existing root keeps its
// contents.
func NewFSBlockStore(ctx context.Context, cfg Config) (*FSBlockStore, error) {
	// ========================================================================
	// Step 1: Check context before filesystem operation
	// ========================================================================

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base := cfg.Fs
	if base == nil {
		if cfg.Path == "" {
			return nil, fmt.Errorf("filesystem block store: path is required")
		}
		base = afero.NewOsFs()
	}

	// ========================================================================
	// Step 2: Create the root directory if it doesn't exist
	// ========================================================================

	root := cfg.Path
	if root == "" {
		root = "/"
	}
	if err := base.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create root directory: %w", err)
	}

	logger.Debug("filesystem block store rooted at %s", root)

	return &FSBlockStore{fs: afero.NewBasePathFs(base, root)}, nil
}

func vaultDir(vaultID string) string {
	return path.Join("/", vaultID)
}

func blockPath(vaultID string, sid block.StorageID) string {
	s := string(sid)
	return path.Join("/", vaultID, s[:shardLen], s)
}

func checkIDs(vaultID string, sid block.StorageID) error {
	if err := block.ValidateVaultID(vaultID); err != nil {
		return err
	}
	if err := sid.Validate(); err != nil {
		return err
	}
	if len(sid) < shardLen {
		return fmt.Errorf("storage id %q: %w", sid, block.ErrInvalidArgument)
	}
	return nil
}

// ============================================================================
// Vaults
// ============================================================================

func (s *FSBlockStore) CreateVault(ctx context.Context, vaultID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := block.ValidateVaultID(vaultID); err != nil {
		return err
	}

	if err := s.fs.MkdirAll(path.Join(vaultDir(vaultID), tmpDir), 0755); err != nil {
		return fmt.Errorf("failed to create vault %s: %w", vaultID, err)
	}
	return nil
}

func (s *FSBlockStore) DeleteVault(ctx context.Context, vaultID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := block.ValidateVaultID(vaultID); err != nil {
		return false, err
	}

	exists, err := s.VaultExists(ctx, vaultID)
	if err != nil || !exists {
		return err == nil, err
	}

	blocks, err := s.ListVaultBlocks(ctx, vaultID, "", 1)
	if err != nil {
		return false, err
	}
	if len(blocks) > 0 {
		return false, nil
	}

	if err := s.fs.RemoveAll(vaultDir(vaultID)); err != nil {
		return false, fmt.Errorf("failed to remove vault %s: %w", vaultID, err)
	}
	return true, nil
}

func (s *FSBlockStore) VaultExists(ctx context.Context, vaultID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := block.ValidateVaultID(vaultID); err != nil {
		return false, err
	}

	ok, err := afero.DirExists(s.fs, vaultDir(vaultID))
	if err != nil {
		return false, fmt.Errorf("failed to stat vault %s: %w", vaultID, err)
	}
	return ok, nil
}

func (s *FSBlockStore) VaultStatistics(ctx context.Context, vaultID string) (*block.VaultStats, error) {
	stats := &block.VaultStats{}
	err := s.walk(ctx, vaultID, "", func(_ block.StorageID, info os.FileInfo) bool {
		stats.BlockCount++
		stats.TotalSize += info.Size()
		return true
	})
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// ============================================================================
// Blocks
// ============================================================================

func (s *FSBlockStore) StoreBlock(ctx context.Context, vaultID, blockID string, data []byte) (*block.StoreResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := block.VerifyBlockID(blockID, data); err != nil {
		return nil, err
	}

	sid := block.NewStorageID(blockID)
	if err := s.write(vaultID, sid, data); err != nil {
		return nil, err
	}
	return &block.StoreResult{Status: block.StatusCreated, StorageID: sid}, nil
}

func (s *FSBlockStore) StoreBlocks(ctx context.Context, vaultID string, blockIDs []string, blocks [][]byte) (*block.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := block.ValidateBulk(blockIDs, blocks); err != nil {
		return nil, err
	}

	res := &block.BatchResult{
		Status:     block.StatusCreated,
		StorageIDs: make([]block.StorageID, len(blockIDs)),
		Errors:     make([]error, len(blockIDs)),
	}
	for i, id := range blockIDs {
		res.StorageIDs[i] = block.NewStorageID(id)
		if err := ctx.Err(); err != nil {
			res.Errors[i] = err
			res.Status = block.StatusServerError
			continue
		}
		if err := s.write(vaultID, res.StorageIDs[i], blocks[i]); err != nil {
			res.Errors[i] = err
			res.Status = block.StatusServerError
		}
	}
	return res, nil
}

// write stores data under sid via temp file and rename.
func (s *FSBlockStore) write(vaultID string, sid block.StorageID, data []byte) error {
	if err := block.ValidateVaultID(vaultID); err != nil {
		return err
	}

	dir := vaultDir(vaultID)
	if ok, err := afero.DirExists(s.fs, dir); err != nil {
		return fmt.Errorf("failed to stat vault %s: %w", vaultID, err)
	} else if !ok {
		return fmt.Errorf("vault %s: %w", vaultID, block.ErrVaultNotFound)
	}

	final := blockPath(vaultID, sid)

	if err := s.fs.MkdirAll(path.Dir(final), 0755); err != nil {
		return fmt.Errorf("failed to create shard directory: %w", err)
	}
	if err := s.fs.MkdirAll(path.Join(dir, tmpDir), 0755); err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}

	tmp, err := afero.TempFile(s.fs, path.Join(dir, tmpDir), string(sid)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("failed to write block %s: %w", sid, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("failed to sync block %s: %w", sid, err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("failed to close block %s: %w", sid, err)
	}

	if err := s.fs.Rename(tmpName, final); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("failed to commit block %s: %w", sid, err)
	}
	return nil
}

func (s *FSBlockStore) BlockExists(ctx context.Context, vaultID string, sid block.StorageID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if err := checkIDs(vaultID, sid); err != nil {
		return false, err
	}

	ok, err := afero.Exists(s.fs, blockPath(vaultID, sid))
	if err != nil {
		return false, fmt.Errorf("failed to stat block %s: %w", sid, err)
	}
	return ok, nil
}

func (s *FSBlockStore) DeleteBlock(ctx context.Context, vaultID string, sid block.StorageID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkIDs(vaultID, sid); err != nil {
		return err
	}

	err := s.fs.Remove(blockPath(vaultID, sid))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete block %s: %w", sid, err)
	}
	return nil
}

func (s *FSBlockStore) GetBlock(ctx context.Context, vaultID string, sid block.StorageID) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := checkIDs(vaultID, sid); err != nil {
		return nil, err
	}

	f, err := s.fs.Open(blockPath(vaultID, sid))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("block %s in vault %s: %w", sid, vaultID, block.ErrBlockNotFound)
		}
		return nil, fmt.Errorf("failed to open block %s: %w", sid, err)
	}
	return f, nil
}

func (s *FSBlockStore) GetBlockLength(ctx context.Context, vaultID string, sid block.StorageID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := checkIDs(vaultID, sid); err != nil {
		return 0, err
	}

	info, err := s.fs.Stat(blockPath(vaultID, sid))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to stat block %s: %w", sid, err)
	}
	return info.Size(), nil
}

func (s *FSBlockStore) ListVaultBlocks(ctx context.Context, vaultID string, marker block.StorageID, limit int) ([]block.StorageID, error) {
	sids := []block.StorageID{}
	err := s.walk(ctx, vaultID, marker, func(sid block.StorageID, _ os.FileInfo) bool {
		sids = append(sids, sid)
		return limit <= 0 || len(sids) < limit
	})
	if err != nil {
		return nil, err
	}
	return sids, nil
}

// walk visits blocks of a vault in ascending storage id order, strictly
// after marker, until fn returns false.
func (s *FSBlockStore) walk(ctx context.Context, vaultID string, marker block.StorageID, fn func(block.StorageID, os.FileInfo) bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := block.ValidateVaultID(vaultID); err != nil {
		return err
	}

	shards, err := afero.ReadDir(s.fs, vaultDir(vaultID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("vault %s: %w", vaultID, block.ErrVaultNotFound)
		}
		return fmt.Errorf("failed to read vault %s: %w", vaultID, err)
	}

	markerShard := ""
	if len(marker) >= shardLen {
		markerShard = string(marker[:shardLen])
	}

	for _, shard := range shards {
		if !shard.IsDir() || len(shard.Name()) != shardLen || shard.Name() < markerShard {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		entries, err := afero.ReadDir(s.fs, path.Join(vaultDir(vaultID), shard.Name()))
		if err != nil {
			return fmt.Errorf("failed to read shard %s: %w", shard.Name(), err)
		}
		for _, entry := range entries {
			sid := block.StorageID(entry.Name())
			if entry.IsDir() || sid <= marker {
				continue
			}
			if !fn(sid, entry) {
				return nil
			}
		}
	}
	return nil
}

func (s *FSBlockStore) OpenBlocks(ctx context.Context, vaultID string, sids []block.StorageID) *block.BlockIterator {
	return block.NewBlockIterator(ctx, sids, 1, func(ctx context.Context, window []block.StorageID) ([]io.ReadCloser, error) {
		r, err := s.GetBlock(ctx, vaultID, window[0])
		if err != nil {
			return nil, err
		}
		return []io.ReadCloser{r}, nil
	})
}

func (s *FSBlockStore) Close() error {
	return nil
}
