// Package metadata defines the durable registry of vaults, blocks, files and
// block-to-file assignments.
//
// The index is independent of where block bytes live. It never talks to a
// block store; the vault service combines the two.
package metadata

import "context"

// ============================================================================
// Index Interface
// ============================================================================

// Index is the metadata registry backing the vault service.
//
// Design Principles:
//   - Consistent error handling: business failures return *StoreError
//   - Context-aware: every operation checks ctx before doing work
//   - Idempotent where the target state is already reached (CreateVault,
//     DeleteVault on a missing vault, UnregisterBlock, MarkFinalized)
//
// Mutations are performed only by the vault service.
//
// Thread Safety:
// Implementations must be safe for concurrent use. Per-file serialization of
// assignment against finalize is the caller's job; implementations still
// reject AddAssignments on a finalized file atomically.
type Index interface {
	// ========================================================================
	// Vaults
	// ========================================================================

	// CreateVault registers a vault. Registering an existing vault is a no-op.
	CreateVault(ctx context.Context, vaultID string) error

	// VaultExists reports whether the vault is registered.
	VaultExists(ctx context.Context, vaultID string) (bool, error)

	// DeleteVault unregisters an empty vault.
	//
	// Returns ErrVaultNotEmpty if any file or block record remains. Deleting
	// an unknown vault succeeds.
	DeleteVault(ctx context.Context, vaultID string) error

	// VaultCounts returns the number of files and block records.
	VaultCounts(ctx context.Context, vaultID string) (*VaultCounts, error)

	// ========================================================================
	// Blocks
	// ========================================================================

	// RegisterBlock records where a block's bytes live. Registering a block
	// id again replaces the previous record.
	RegisterBlock(ctx context.Context, vaultID string, rec BlockRecord) error

	// LookupBlock returns the record for blockID or ErrBlockNotFound.
	LookupBlock(ctx context.Context, vaultID, blockID string) (*BlockRecord, error)

	// UnregisterBlock removes the record. Missing records are ignored.
	UnregisterBlock(ctx context.Context, vaultID, blockID string) error

	// ListBlocks returns up to limit records ordered by block id, strictly
	// after marker. limit <= 0 returns everything.
	ListBlocks(ctx context.Context, vaultID, marker string, limit int) ([]BlockRecord, error)

	// ========================================================================
	// Files
	// ========================================================================

	// CreateFile creates an open file with a fresh random id.
	CreateFile(ctx context.Context, vaultID string) (*File, error)

	// GetFile returns the file or ErrFileNotFound.
	GetFile(ctx context.Context, vaultID, fileID string) (*File, error)

	// DeleteFile removes the file and its assignments. Block records are
	// untouched.
	DeleteFile(ctx context.Context, vaultID, fileID string) error

	// ListFiles returns up to limit files ordered by id, strictly after
	// marker, that pass filter.
	ListFiles(ctx context.Context, vaultID, marker string, limit int, filter FileFilter) ([]File, error)

	// ========================================================================
	// Assignments
	// ========================================================================

	// AddAssignments merges assignments into the file.
	//
	// Returns ErrFileAlreadyFinalized, without writing anything, if the file
	// is finalized.
	AddAssignments(ctx context.Context, vaultID, fileID string, assignments []Assignment) error

	// ListAssignments returns up to limit assignments ordered by (offset,
	// block id), strictly after cursor. A nil cursor starts at the
	// beginning; limit <= 0 returns everything.
	ListAssignments(ctx context.Context, vaultID, fileID string, after *AssignmentCursor, limit int) ([]Assignment, error)

	// MarkFinalized flips the file to finalized. Finalizing twice is a no-op.
	MarkFinalized(ctx context.Context, vaultID, fileID string) error

	// Close releases resources held by the index.
	Close() error
}
