package metadata

import (
	"fmt"
	"strings"
	"time"

	"github.com/marmos91/dittovault/pkg/store/block"
)

// File is a composition of block references. It starts open and becomes
// immutable once finalized.
type File struct {
	VaultID     string     `json:"vault_id"`
	ID          string     `json:"id"`
	Finalized   bool       `json:"finalized"`
	CreatedAt   time.Time  `json:"created_at"`
	FinalizedAt *time.Time `json:"finalized_at,omitempty"`
}

// BlockRecord maps a content-hash block id to the locator the block store
// assigned to its bytes.
type BlockRecord struct {
	BlockID   string          `json:"block_id"`
	StorageID block.StorageID `json:"storage_id"`
	Size      int64           `json:"size"`
	CreatedAt time.Time       `json:"created_at"`
}

// Assignment places a block at a byte offset within a file.
//
// Assignments are keyed by (block id, offset): assigning the same block at
// the same offset twice keeps one entry with the latest size.
type Assignment struct {
	BlockID string `json:"id"`
	Offset  int64  `json:"offset"`
	Size    int64  `json:"size"`
}

// Less orders assignments by offset, ties broken by block id.
func (a Assignment) Less(b Assignment) bool {
	if a.Offset != b.Offset {
		return a.Offset < b.Offset
	}
	return a.BlockID < b.BlockID
}

// After reports whether a sorts strictly after cursor c.
func (a Assignment) After(c *AssignmentCursor) bool {
	if c == nil {
		return true
	}
	if a.Offset != c.Offset {
		return a.Offset > c.Offset
	}
	return c.BlockID != "" && a.BlockID > c.BlockID
}

// AssignmentCursor is an exclusive lower bound in (offset, block id) order.
//
// A cursor with an empty BlockID excludes every assignment at Offset, so
// listing resumes at the next offset.
type AssignmentCursor struct {
	Offset  int64
	BlockID string
}

// FileFilter selects which files ListFiles returns.
type FileFilter struct {
	// IncludeOpen also lists files that are not finalized yet.
	IncludeOpen bool
}

// Match reports whether f passes the filter.
func (ff FileFilter) Match(f *File) bool {
	return ff.IncludeOpen || f.Finalized
}

// VaultCounts holds the number of records in a vault.
type VaultCounts struct {
	Files  int64 `json:"file-count"`
	Blocks int64 `json:"block-count"`
}

// ValidateVaultID rejects ids that are empty or contain a path separator.
func ValidateVaultID(vaultID string) error {
	if vaultID == "" || strings.ContainsAny(vaultID, "/\\") {
		return &StoreError{Code: ErrInvalidArgument, Message: fmt.Sprintf("invalid vault id %q", vaultID)}
	}
	return nil
}

// ValidateAssignments rejects negative offsets and sizes and malformed ids.
func ValidateAssignments(vaultID, fileID string, assignments []Assignment) error {
	for _, a := range assignments {
		if !block.ValidBlockID(a.BlockID) {
			return &StoreError{Code: ErrInvalidArgument, Message: fmt.Sprintf("invalid block id %q", a.BlockID), VaultID: vaultID, FileID: fileID}
		}
		if a.Offset < 0 || a.Size < 0 {
			return &StoreError{Code: ErrInvalidArgument, Message: fmt.Sprintf("invalid offset %d or size %d for block %s", a.Offset, a.Size, a.BlockID), VaultID: vaultID, FileID: fileID}
		}
	}
	return nil
}
