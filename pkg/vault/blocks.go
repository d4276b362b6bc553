package vault

import (
	"context"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/pkg/pagination"
	"github.com/marmos91/dittovault/pkg/store/block"
	"github.com/marmos91/dittovault/pkg/store/metadata"
)

// BulkResult is the outcome of StoreBlocks, positionally aligned with the
// request.
type BulkResult struct {
	// Status is StatusCreated only when every block is stored.
	Status block.Status

	// Records[i] is the registered record of block i, or nil when block i
	// was not stored.
	Records []*metadata.BlockRecord
}

// Missing returns the block ids that were not stored.
func (r *BulkResult) Missing(blockIDs []string) []string {
	missing := []string{}
	for i, rec := range r.Records {
		if rec == nil {
			missing = append(missing, blockIDs[i])
		}
	}
	return missing
}

func (s *Service) blockKey(vaultID, blockID string) string {
	return vaultID + "/" + blockID
}

// requireVault returns ErrVaultNotFound unless the vault is registered.
func (s *Service) requireVault(ctx context.Context, vaultID string) error {
	ok, err := s.index.VaultExists(ctx, vaultID)
	if err != nil {
		return translate(err)
	}
	if !ok {
		return fmt.Errorf("vault %s: %w", vaultID, ErrVaultNotFound)
	}
	return nil
}

// present returns the registered record of blockID when its bytes exist.
func (s *Service) present(ctx context.Context, vaultID, blockID string) (*metadata.BlockRecord, error) {
	rec, err := s.index.LookupBlock(ctx, vaultID, blockID)
	if metadata.IsCode(err, metadata.ErrBlockNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err)
	}

	ok, err := s.blocks.BlockExists(ctx, vaultID, rec.StorageID)
	if err != nil || !ok {
		return nil, err
	}
	return rec, nil
}

// StoreBlock stores one block, deduplicated by block id: when the vault
// already holds the block, the existing record is returned and nothing is
// written.
//
// blockID must be the lowercase hex SHA-1 of data (ErrInvalidBlockID).
func (s *Service) StoreBlock(ctx context.Context, vaultID, blockID string, data []byte) (_ *metadata.BlockRecord, err error) {
	defer s.observe("store_block", time.Now(), &err)

	unlockVault := s.vaultLocks.RLock(vaultID)
	defer unlockVault()

	if err := block.VerifyBlockID(blockID, data); err != nil {
		return nil, err
	}
	if err := s.requireVault(ctx, vaultID); err != nil {
		return nil, err
	}

	unlock := s.blockLocks.Lock(s.blockKey(vaultID, blockID))
	defer unlock()

	rec, err := s.present(ctx, vaultID, blockID)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		s.metrics.RecordDedup(true)
		return rec, nil
	}
	s.metrics.RecordDedup(false)

	res, err := s.blocks.StoreBlock(ctx, vaultID, blockID, data)
	if err != nil {
		return nil, fmt.Errorf("store block %s: %w", blockID, err)
	}

	rec = &metadata.BlockRecord{BlockID: blockID, StorageID: res.StorageID, Size: int64(len(data))}
	if err := s.index.RegisterBlock(ctx, vaultID, *rec); err != nil {
		// Unregistered bytes are unreachable; drop them.
		_ = s.blocks.DeleteBlock(context.WithoutCancel(ctx), vaultID, res.StorageID)
		return nil, translate(err)
	}
	return rec, nil
}

// StoreBlocks stores several blocks in one backend batch.
//
// Blocks already present are not written again. A failed batch is not
// rolled back: after a failure every written block is re-checked with
// BlockExists and only confirmed blocks are registered. The absent ones
// are reported through BulkResult and resurface in AssignBlocks and
// Finalize.
func (s *Service) StoreBlocks(ctx context.Context, vaultID string, blockIDs []string, blocks [][]byte) (_ *BulkResult, err error) {
	defer s.observe("store_blocks", time.Now(), &err)

	unlockVault := s.vaultLocks.RLock(vaultID)
	defer unlockVault()

	if err := block.ValidateBulk(blockIDs, blocks); err != nil {
		return nil, err
	}
	if err := s.requireVault(ctx, vaultID); err != nil {
		return nil, err
	}

	// Lock every distinct block in sorted order so that overlapping batches
	// cannot deadlock.
	distinct := slices.Clone(blockIDs)
	slices.Sort(distinct)
	distinct = slices.Compact(distinct)
	for _, id := range distinct {
		unlock := s.blockLocks.Lock(s.blockKey(vaultID, id))
		defer unlock()
	}

	result := &BulkResult{Status: block.StatusCreated, Records: make([]*metadata.BlockRecord, len(blockIDs))}

	known := make(map[string]*metadata.BlockRecord, len(distinct))
	var writeIDs []string
	var writeData [][]byte
	var writeIdx []int // position in the request of writeIDs[i]
	for i, id := range blockIDs {
		if _, seen := known[id]; seen {
			continue
		}
		rec, err := s.present(ctx, vaultID, id)
		if err != nil {
			return nil, err
		}
		known[id] = rec
		s.metrics.RecordDedup(rec != nil)
		if rec == nil {
			writeIDs = append(writeIDs, id)
			writeData = append(writeData, blocks[i])
			writeIdx = append(writeIdx, i)
		}
	}

	if len(writeIDs) > 0 {
		batch, err := s.blocks.StoreBlocks(ctx, vaultID, writeIDs, writeData)
		if err != nil {
			return nil, fmt.Errorf("store %d blocks: %w", len(writeIDs), err)
		}

		confirmed := make([]bool, len(writeIDs))
		if batch.Status == block.StatusCreated {
			for i := range confirmed {
				confirmed[i] = true
			}
		} else {
			logger.Warn("Batch of %d blocks in vault %s failed (%d errors), verifying", len(writeIDs), vaultID, len(batch.Failed()))
			confirmed, err = s.confirmBatch(ctx, vaultID, batch.StorageIDs)
			if err != nil {
				return nil, fmt.Errorf("verify failed batch: %w", err)
			}
		}

		for i, id := range writeIDs {
			if !confirmed[i] {
				continue
			}
			rec := &metadata.BlockRecord{BlockID: id, StorageID: batch.StorageIDs[i], Size: int64(len(blocks[writeIdx[i]]))}
			if err := s.index.RegisterBlock(ctx, vaultID, *rec); err != nil {
				return nil, translate(err)
			}
			known[id] = rec
		}
	}

	for i, id := range blockIDs {
		result.Records[i] = known[id]
		if known[id] == nil {
			result.Status = block.StatusServerError
		}
	}
	return result, nil
}

// confirmBatch checks which locators of a failed batch hold bytes. A store
// that reports no locator for an entry leaves it unconfirmed.
func (s *Service) confirmBatch(ctx context.Context, vaultID string, sids []block.StorageID) ([]bool, error) {
	confirmed := make([]bool, len(sids))
	var check []block.StorageID
	var at []int
	for i, sid := range sids {
		if sid != "" {
			check = append(check, sid)
			at = append(at, i)
		}
	}
	if len(check) == 0 {
		return confirmed, nil
	}

	exists, err := s.existAll(ctx, vaultID, check)
	if err != nil {
		return nil, err
	}
	for j, ok := range exists {
		confirmed[at[j]] = ok
	}
	return confirmed, nil
}

// BlockExists reports whether the vault holds bytes for blockID.
func (s *Service) BlockExists(ctx context.Context, vaultID, blockID string) (ok bool, err error) {
	defer s.observe("block_exists", time.Now(), &err)

	if err := s.requireVault(ctx, vaultID); err != nil {
		return false, err
	}
	rec, err := s.present(ctx, vaultID, blockID)
	return rec != nil, err
}

// GetBlock opens the block for reading and returns its length. The caller
// closes the stream.
func (s *Service) GetBlock(ctx context.Context, vaultID, blockID string) (_ io.ReadCloser, _ int64, err error) {
	defer s.observe("get_block", time.Now(), &err)

	rec, err := s.index.LookupBlock(ctx, vaultID, blockID)
	if err != nil {
		return nil, 0, translate(err)
	}
	r, err := s.blocks.GetBlock(ctx, vaultID, rec.StorageID)
	if err != nil {
		return nil, 0, fmt.Errorf("block %s: %w", blockID, err)
	}
	return r, rec.Size, nil
}

// DeleteBlock removes the block bytes and their registration. Deleting a
// missing block succeeds.
//
// Files referencing the block are left untouched; an open file that
// references it reports it missing on finalize.
func (s *Service) DeleteBlock(ctx context.Context, vaultID, blockID string) (err error) {
	defer s.observe("delete_block", time.Now(), &err)

	unlock := s.blockLocks.Lock(s.blockKey(vaultID, blockID))
	defer unlock()

	rec, err := s.index.LookupBlock(ctx, vaultID, blockID)
	if metadata.IsCode(err, metadata.ErrBlockNotFound) {
		return nil
	}
	if err != nil {
		return translate(err)
	}

	if err := s.blocks.DeleteBlock(ctx, vaultID, rec.StorageID); err != nil {
		return fmt.Errorf("delete block %s: %w", blockID, err)
	}
	return translate(s.index.UnregisterBlock(ctx, vaultID, blockID))
}

// ListVaultBlocks returns one page of the vault's block ids in ascending
// order.
func (s *Service) ListVaultBlocks(ctx context.Context, vaultID string, req pagination.Request) (_ *pagination.Page[string], err error) {
	defer s.observe("list_vault_blocks", time.Now(), &err)

	recs, err := s.index.ListBlocks(ctx, vaultID, req.Marker, req.FetchLimit())
	if err != nil {
		return nil, translate(err)
	}

	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.BlockID
	}
	return pagination.Paginate(ids, req, func(id string) string { return id }), nil
}
