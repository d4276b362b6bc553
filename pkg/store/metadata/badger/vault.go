package badger

import (
	"context"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/marmos91/dittovault/pkg/store/metadata"
)

func (s *BadgerIndex) CreateVault(ctx context.Context, vaultID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := metadata.ValidateVaultID(vaultID); err != nil {
		return err
	}

	return s.update(func(txn *badger.Txn) error {
		_, err := txn.Get(keyVault(vaultID))
		if err == nil {
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		return set(txn, keyVault(vaultID), vaultRecord{CreatedAt: time.Now().UTC()})
	})
}

func (s *BadgerIndex) VaultExists(ctx context.Context, vaultID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	exists := false
	err := s.view(func(txn *badger.Txn) error {
		_, err := txn.Get(keyVault(vaultID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		exists = err == nil
		return err
	})
	return exists, err
}

func (s *BadgerIndex) DeleteVault(ctx context.Context, vaultID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.update(func(txn *badger.Txn) error {
		_, err := txn.Get(keyVault(vaultID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		if hasPrefix(txn, prefixBlocks(vaultID)) || hasPrefix(txn, prefixFiles(vaultID)) {
			return metadata.NewError(metadata.ErrVaultNotEmpty, vaultID, "")
		}
		return txn.Delete(keyVault(vaultID))
	})
}

func (s *BadgerIndex) VaultCounts(ctx context.Context, vaultID string) (*metadata.VaultCounts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	counts := &metadata.VaultCounts{}
	err := s.view(func(txn *badger.Txn) error {
		if err := requireVault(txn, vaultID); err != nil {
			return err
		}
		counts.Blocks = countPrefix(txn, prefixBlocks(vaultID))
		counts.Files = countPrefix(txn, prefixFiles(vaultID))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}
