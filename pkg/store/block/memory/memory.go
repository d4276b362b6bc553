// Package memory implements block.Store entirely in memory.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/marmos91/dittovault/pkg/store/block"
)

// MemoryBlockStore implements block.Store using in-memory maps.
//
// It's designed for:
//   - Testing and development
//   - Ephemeral deployments where durability is not required
//
// Thread Safety:
// All operations are protected by a sync.RWMutex. Block bytes are copied on
// write so callers may reuse their buffers.
type MemoryBlockStore struct {
	// vaults maps vault id to its blocks keyed by storage id
	vaults map[string]map[block.StorageID][]byte

	mu sync.RWMutex
}

var _ block.Store = (*MemoryBlockStore)(nil)

// NewMemoryBlockStore creates an empty store.
func NewMemoryBlockStore(ctx context.Context) (*MemoryBlockStore, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &MemoryBlockStore{
		vaults: make(map[string]map[block.StorageID][]byte),
	}, nil
}

// ============================================================================
// Vaults
// ============================================================================

func (s *MemoryBlockStore) CreateVault(ctx context.Context, vaultID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := block.ValidateVaultID(vaultID); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.vaults[vaultID]; !ok {
		s.vaults[vaultID] = make(map[block.StorageID][]byte)
	}
	return nil
}

func (s *MemoryBlockStore) DeleteVault(ctx context.Context, vaultID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	blocks, ok := s.vaults[vaultID]
	if !ok {
		return true, nil
	}
	if len(blocks) > 0 {
		return false, nil
	}
	delete(s.vaults, vaultID)
	return true, nil
}

func (s *MemoryBlockStore) VaultExists(ctx context.Context, vaultID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.vaults[vaultID]
	return ok, nil
}

func (s *MemoryBlockStore) VaultStatistics(ctx context.Context, vaultID string) (*block.VaultStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	blocks, ok := s.vaults[vaultID]
	if !ok {
		return nil, fmt.Errorf("vault %s: %w", vaultID, block.ErrVaultNotFound)
	}

	stats := &block.VaultStats{BlockCount: int64(len(blocks))}
	for _, data := range blocks {
		stats.TotalSize += int64(len(data))
	}
	return stats, nil
}

// ============================================================================
// Blocks
// ============================================================================

func (s *MemoryBlockStore) StoreBlock(ctx context.Context, vaultID, blockID string, data []byte) (*block.StoreResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := block.VerifyBlockID(blockID, data); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sid := block.NewStorageID(blockID)
	if err := s.putLocked(vaultID, sid, data); err != nil {
		return nil, err
	}
	return &block.StoreResult{Status: block.StatusCreated, StorageID: sid}, nil
}

func (s *MemoryBlockStore) StoreBlocks(ctx context.Context, vaultID string, blockIDs []string, blocks [][]byte) (*block.BatchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := block.ValidateBulk(blockIDs, blocks); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res := &block.BatchResult{
		Status:     block.StatusCreated,
		StorageIDs: make([]block.StorageID, len(blockIDs)),
		Errors:     make([]error, len(blockIDs)),
	}
	for i, id := range blockIDs {
		res.StorageIDs[i] = block.NewStorageID(id)
		if err := s.putLocked(vaultID, res.StorageIDs[i], blocks[i]); err != nil {
			res.Errors[i] = err
			res.Status = block.StatusServerError
		}
	}
	return res, nil
}

// putLocked stores a copy of data under sid. Caller must hold s.mu.
func (s *MemoryBlockStore) putLocked(vaultID string, sid block.StorageID, data []byte) error {
	blocks, ok := s.vaults[vaultID]
	if !ok {
		return fmt.Errorf("vault %s: %w", vaultID, block.ErrVaultNotFound)
	}
	blocks[sid] = bytes.Clone(data)
	return nil
}

func (s *MemoryBlockStore) BlockExists(ctx context.Context, vaultID string, sid block.StorageID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.vaults[vaultID][sid]
	return ok, nil
}

func (s *MemoryBlockStore) DeleteBlock(ctx context.Context, vaultID string, sid block.StorageID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if blocks, ok := s.vaults[vaultID]; ok {
		delete(blocks, sid)
	}
	return nil
}

func (s *MemoryBlockStore) GetBlock(ctx context.Context, vaultID string, sid block.StorageID) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.vaults[vaultID][sid]
	if !ok {
		return nil, fmt.Errorf("block %s in vault %s: %w", sid, vaultID, block.ErrBlockNotFound)
	}
	// Stored slices are never mutated, so the reader can share them.
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *MemoryBlockStore) GetBlockLength(ctx context.Context, vaultID string, sid block.StorageID) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.vaults[vaultID][sid])), nil
}

func (s *MemoryBlockStore) ListVaultBlocks(ctx context.Context, vaultID string, marker block.StorageID, limit int) ([]block.StorageID, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	blocks, ok := s.vaults[vaultID]
	if !ok {
		return nil, fmt.Errorf("vault %s: %w", vaultID, block.ErrVaultNotFound)
	}

	sids := make([]block.StorageID, 0, len(blocks))
	for sid := range blocks {
		if sid > marker {
			sids = append(sids, sid)
		}
	}
	sort.Slice(sids, func(i, j int) bool { return sids[i] < sids[j] })

	if limit > 0 && len(sids) > limit {
		sids = sids[:limit]
	}
	return sids, nil
}

func (s *MemoryBlockStore) OpenBlocks(ctx context.Context, vaultID string, sids []block.StorageID) *block.BlockIterator {
	return block.NewBlockIterator(ctx, sids, 1, func(ctx context.Context, window []block.StorageID) ([]io.ReadCloser, error) {
		r, err := s.GetBlock(ctx, vaultID, window[0])
		if err != nil {
			return nil, err
		}
		return []io.ReadCloser{r}, nil
	})
}

func (s *MemoryBlockStore) Close() error {
	return nil
}
