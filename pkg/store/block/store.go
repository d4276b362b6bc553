// Package block defines the byte-level storage contract for vault blocks.
//
// A Store knows about vaults and blocks only. It has no notion of files,
// offsets or assignments; those live in the metadata index and are combined
// with block bytes by the vault service.
//
// Blocks are write-once. A block is created by StoreBlock, may be read any
// number of times and may be deleted; it is never modified in place.
package block

import (
	"context"
	"io"
)

// StorageID is the physical locator a Store assigns to a stored block.
//
// It is distinct from the content-hash block id: callers address blocks by
// block id, while a Store chooses its own layout (sharded path, object key)
// and hands back a StorageID for it.
type StorageID string

// Status is the outcome code of a store operation.
//
// The values follow the HTTP convention used by object storage services so
// that they can be surfaced to clients unchanged.
type Status int

const (
	// StatusCreated means every block in the operation was persisted.
	StatusCreated Status = 201

	// StatusServerError means at least one block in the operation failed.
	// Callers must re-check BlockExists before relying on any block of a
	// failed batch.
	StatusServerError Status = 500
)

// String returns the numeric form of the status.
func (s Status) String() string {
	switch s {
	case StatusCreated:
		return "201 Created"
	case StatusServerError:
		return "500 Internal Server Error"
	default:
		return "unknown"
	}
}

// StoreResult is the outcome of storing a single block.
type StoreResult struct {
	Status    Status
	StorageID StorageID
}

// BatchResult is the outcome of a bulk store.
//
// StorageIDs and Errors are positionally aligned with the request: entry i
// describes block i regardless of the order in which transfers completed.
// Errors[i] is nil when block i was stored. StorageIDs[i] is the locator
// block i was written to, or was attempted at, so a failed batch can be
// settled with BlockExists.
type BatchResult struct {
	Status     Status
	StorageIDs []StorageID
	Errors     []error
}

// Failed returns the indexes of the blocks that were not stored.
func (r *BatchResult) Failed() []int {
	var idx []int
	for i, err := range r.Errors {
		if err != nil {
			idx = append(idx, i)
		}
	}
	return idx
}

// VaultStats aggregates the blocks physically present in a vault.
type VaultStats struct {
	// TotalSize is the sum of all block lengths in bytes.
	TotalSize int64 `json:"total-size"`

	// BlockCount is the number of stored blocks.
	BlockCount int64 `json:"block-count"`
}

// Store is the capability interface implemented by every block backend.
//
// Implementations must be safe for concurrent use. All methods check the
// context before doing any work.
type Store interface {
	// ========================================================================
	// Vaults
	// ========================================================================

	// CreateVault creates the vault container. Creating an existing vault
	// succeeds without changes.
	CreateVault(ctx context.Context, vaultID string) error

	// DeleteVault removes an empty vault.
	//
	// Returns:
	//   - false, nil when the vault still holds blocks (nothing is removed)
	//   - true, nil when the vault was removed or did not exist
	DeleteVault(ctx context.Context, vaultID string) (bool, error)

	// VaultExists reports whether the vault container exists.
	VaultExists(ctx context.Context, vaultID string) (bool, error)

	// VaultStatistics returns size and count of the stored blocks, or
	// ErrVaultNotFound.
	VaultStatistics(ctx context.Context, vaultID string) (*VaultStats, error)

	// ========================================================================
	// Blocks
	// ========================================================================

	// StoreBlock persists data under a fresh StorageID.
	//
	// blockID must be the lowercase hex SHA-1 of data, otherwise
	// ErrInvalidBlockID is returned and nothing is written.
	StoreBlock(ctx context.Context, vaultID, blockID string, data []byte) (*StoreResult, error)

	// StoreBlocks persists several blocks in one logical operation.
	//
	// Every block id is validated before any byte is written. Transport
	// failures of individual blocks do not produce an error return; they are
	// reported through BatchResult.Status and BatchResult.Errors.
	StoreBlocks(ctx context.Context, vaultID string, blockIDs []string, blocks [][]byte) (*BatchResult, error)

	// BlockExists reports whether bytes are stored for sid.
	BlockExists(ctx context.Context, vaultID string, sid StorageID) (bool, error)

	// DeleteBlock removes the block. Deleting a missing block is a no-op.
	DeleteBlock(ctx context.Context, vaultID string, sid StorageID) error

	// GetBlock returns a stream positioned at offset 0, or ErrBlockNotFound.
	// The caller must close the stream.
	GetBlock(ctx context.Context, vaultID string, sid StorageID) (io.ReadCloser, error)

	// GetBlockLength returns the stored length in bytes, or 0 when absent.
	GetBlockLength(ctx context.Context, vaultID string, sid StorageID) (int64, error)

	// ListVaultBlocks returns up to limit storage ids in ascending order,
	// strictly after marker. A limit <= 0 returns everything.
	//
	// Returns ErrVaultNotFound when the vault does not exist; an existing
	// empty vault yields an empty slice.
	ListVaultBlocks(ctx context.Context, vaultID string, marker StorageID, limit int) ([]StorageID, error)

	// OpenBlocks returns a lazy iterator over the streams of sids, in the
	// exact order given.
	OpenBlocks(ctx context.Context, vaultID string, sids []StorageID) *BlockIterator

	// Close releases resources held by the store.
	Close() error
}
