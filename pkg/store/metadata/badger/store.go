// Package badger implements metadata.Index on BadgerDB.
package badger

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/pkg/store/metadata"
)

// conflictRetries bounds transaction retries on badger.ErrConflict.
const conflictRetries = 5

// BadgerIndex implements metadata.Index using BadgerDB for persistence.
//
// Key Features:
//   - Persistent storage with crash recovery (WAL-based)
//   - Serializable transactions: AddAssignments reads the file record
//     in the same transaction it writes, so a concurrent MarkFinalized
//     conflicts instead of racing
//   - Ordered prefix scans for every listing (see keys.go)
//
// Thread Safety:
// BadgerDB handles concurrency internally (MVCC); the index holds no locks
// of its own.
type BadgerIndex struct {
	db *badger.DB
}

var _ metadata.Index = (*BadgerIndex)(nil)

// BadgerIndexConfig contains configuration for the BadgerDB index.
type BadgerIndexConfig struct {
	// DBPath is the directory where BadgerDB stores its files
	DBPath string `mapstructure:"db_path"`

	// InMemory keeps everything in RAM (DBPath is ignored). Used in tests.
	InMemory bool `mapstructure:"in_memory"`

	// BlockCacheSizeMB is BadgerDB's block cache size in MB (default: 64)
	BlockCacheSizeMB int64 `mapstructure:"block_cache_size_mb"`

	// IndexCacheSizeMB is BadgerDB's index cache size in MB (default: 32)
	IndexCacheSizeMB int64 `mapstructure:"index_cache_size_mb"`
}

// NewBadgerIndex opens (or creates) the database.
func NewBadgerIndex(ctx context.Context, config BadgerIndexConfig) (*BadgerIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if config.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if config.DBPath == "" {
			return nil, fmt.Errorf("badger index: db_path is required")
		}
		opts = badger.DefaultOptions(config.DBPath)
	}

	opts = opts.WithLogger(logger.Logrus())
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None) // records are small JSON

	blockCacheMB := config.BlockCacheSizeMB
	if blockCacheMB == 0 {
		blockCacheMB = 64
	}
	indexCacheMB := config.IndexCacheSizeMB
	if indexCacheMB == 0 {
		indexCacheMB = 32
	}
	opts = opts.WithBlockCacheSize(blockCacheMB << 20)
	opts = opts.WithIndexCacheSize(indexCacheMB << 20)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", config.DBPath, err)
	}

	return &BadgerIndex{db: db}, nil
}

// Close closes the database.
func (s *BadgerIndex) Close() error {
	return s.db.Close()
}

// update runs fn in a read-write transaction, retrying on conflicts.
func (s *BadgerIndex) update(fn func(txn *badger.Txn) error) error {
	var err error
	for i := 0; i < conflictRetries; i++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return toStoreError(err)
		}
	}
	return toStoreError(err)
}

func (s *BadgerIndex) view(fn func(txn *badger.Txn) error) error {
	return toStoreError(s.db.View(fn))
}

// toStoreError passes StoreErrors and context errors through and wraps
// anything else as ErrIOError.
func toStoreError(err error) error {
	if err == nil {
		return nil
	}
	var se *metadata.StoreError
	if errors.As(err, &se) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return metadata.IOError("badger", err)
}

// requireVault returns ErrVaultNotFound unless the vault is registered.
func requireVault(txn *badger.Txn, vaultID string) error {
	_, err := txn.Get(keyVault(vaultID))
	if err == badger.ErrKeyNotFound {
		return metadata.NewError(metadata.ErrVaultNotFound, vaultID, "")
	}
	return err
}

// requireFile loads a file record, reporting vault or file not found.
func requireFile(txn *badger.Txn, vaultID, fileID string) (*metadata.File, error) {
	if err := requireVault(txn, vaultID); err != nil {
		return nil, err
	}
	f, found, err := get[metadata.File](txn, keyFile(vaultID, fileID))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, metadata.NewError(metadata.ErrFileNotFound, vaultID, fileID)
	}
	return f, nil
}

// hasPrefix reports whether any key starts with prefix.
func hasPrefix(txn *badger.Txn, prefix []byte) bool {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	it.Rewind()
	return it.Valid()
}

// countPrefix counts keys starting with prefix.
func countPrefix(txn *badger.Txn, prefix []byte) int64 {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = false
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var n int64
	for it.Rewind(); it.Valid(); it.Next() {
		n++
	}
	return n
}

// scan visits values under prefix starting at seek, skipping skip (an
// exclusive marker key), until fn returns false.
func scan[T any](ctx context.Context, txn *badger.Txn, prefix, seek, skip []byte, fn func(*T) bool) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	if seek == nil {
		seek = prefix
	}
	for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := it.Item()
		if skip != nil && string(item.Key()) == string(skip) {
			continue
		}
		v, err := decodeItem[T](item)
		if err != nil {
			return err
		}
		if !fn(v) {
			return nil
		}
	}
	return nil
}
