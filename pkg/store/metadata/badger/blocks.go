package badger

import (
	"context"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/dittovault/pkg/store/metadata"
)

func (s *BadgerIndex) RegisterBlock(ctx context.Context, vaultID string, rec metadata.BlockRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	return s.update(func(txn *badger.Txn) error {
		if err := requireVault(txn, vaultID); err != nil {
			return err
		}
		return set(txn, keyBlock(vaultID, rec.BlockID), rec)
	})
}

func (s *BadgerIndex) LookupBlock(ctx context.Context, vaultID, blockID string) (*metadata.BlockRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec *metadata.BlockRecord
	err := s.view(func(txn *badger.Txn) error {
		if err := requireVault(txn, vaultID); err != nil {
			return err
		}
		r, found, err := get[metadata.BlockRecord](txn, keyBlock(vaultID, blockID))
		if err != nil {
			return err
		}
		if !found {
			return &metadata.StoreError{Code: metadata.ErrBlockNotFound, Message: "block not found: " + blockID, VaultID: vaultID}
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *BadgerIndex) UnregisterBlock(ctx context.Context, vaultID, blockID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.update(func(txn *badger.Txn) error {
		return txn.Delete(keyBlock(vaultID, blockID))
	})
}

func (s *BadgerIndex) ListBlocks(ctx context.Context, vaultID, marker string, limit int) ([]metadata.BlockRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	recs := []metadata.BlockRecord{}
	err := s.view(func(txn *badger.Txn) error {
		if err := requireVault(txn, vaultID); err != nil {
			return err
		}

		var seek, skip []byte
		if marker != "" {
			seek = keyBlock(vaultID, marker)
			skip = seek
		}
		return scan(ctx, txn, prefixBlocks(vaultID), seek, skip, func(rec *metadata.BlockRecord) bool {
			recs = append(recs, *rec)
			return limit <= 0 || len(recs) < limit
		})
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}
