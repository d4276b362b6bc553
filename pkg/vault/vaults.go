package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/pkg/store/block"
	"github.com/marmos91/dittovault/pkg/store/metadata"
)

// Statistics describes a vault.
type Statistics struct {
	// Storage aggregates the bytes physically present in the block store.
	Storage block.VaultStats `json:"storage"`

	// Files is the number of files, open or finalized.
	Files int64 `json:"file-count"`

	// Blocks is the number of blocks registered in the index.
	Blocks int64 `json:"block-count"`
}

// CreateVault creates the vault in both stores. Creating an existing vault
// succeeds.
func (s *Service) CreateVault(ctx context.Context, vaultID string) (err error) {
	defer s.observe("create_vault", time.Now(), &err)

	unlock := s.vaultLocks.Lock(vaultID)
	defer unlock()

	if err := block.ValidateVaultID(vaultID); err != nil {
		return err
	}
	if err := s.blocks.CreateVault(ctx, vaultID); err != nil {
		return fmt.Errorf("create vault %s: %w", vaultID, err)
	}
	if err := s.index.CreateVault(ctx, vaultID); err != nil {
		return translate(err)
	}

	logger.Debug("Created vault %s", vaultID)
	return nil
}

// VaultExists reports whether the vault is registered.
func (s *Service) VaultExists(ctx context.Context, vaultID string) (ok bool, err error) {
	defer s.observe("vault_exists", time.Now(), &err)

	ok, err = s.index.VaultExists(ctx, vaultID)
	return ok, translate(err)
}

// DeleteVault removes an empty vault. It fails with ErrVaultNotEmpty, and
// changes nothing, while the vault holds files or blocks. Deleting a
// missing vault succeeds.
func (s *Service) DeleteVault(ctx context.Context, vaultID string) (err error) {
	defer s.observe("delete_vault", time.Now(), &err)

	unlock := s.vaultLocks.Lock(vaultID)
	defer unlock()

	counts, err := s.index.VaultCounts(ctx, vaultID)
	switch {
	case metadata.IsCode(err, metadata.ErrVaultNotFound):
		// Clean up a container left behind by a partial create.
		if _, err := s.blocks.DeleteVault(ctx, vaultID); err != nil {
			return fmt.Errorf("delete vault %s: %w", vaultID, err)
		}
		return nil
	case err != nil:
		return translate(err)
	}
	if counts.Files > 0 || counts.Blocks > 0 {
		return fmt.Errorf("vault %s holds %d files and %d blocks: %w", vaultID, counts.Files, counts.Blocks, ErrVaultNotEmpty)
	}

	// The block store may still hold bytes that were never registered, for
	// example the survivors of a failed batch.
	removed, err := s.blocks.DeleteVault(ctx, vaultID)
	if err != nil {
		return fmt.Errorf("delete vault %s: %w", vaultID, err)
	}
	if !removed {
		return fmt.Errorf("vault %s holds unregistered blocks: %w", vaultID, ErrVaultNotEmpty)
	}

	if err := s.index.DeleteVault(ctx, vaultID); err != nil {
		return translate(err)
	}

	logger.Debug("Deleted vault %s", vaultID)
	return nil
}

// VaultStatistics returns block store totals and index counts.
func (s *Service) VaultStatistics(ctx context.Context, vaultID string) (_ *Statistics, err error) {
	defer s.observe("vault_statistics", time.Now(), &err)

	counts, err := s.index.VaultCounts(ctx, vaultID)
	if err != nil {
		return nil, translate(err)
	}
	stats, err := s.blocks.VaultStatistics(ctx, vaultID)
	if err != nil {
		return nil, fmt.Errorf("vault %s statistics: %w", vaultID, err)
	}

	return &Statistics{Storage: *stats, Files: counts.Files, Blocks: counts.Blocks}, nil
}
