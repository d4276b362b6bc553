package block

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// blockIDLen is the length of a hex encoded SHA-1 digest.
const blockIDLen = sha1.Size * 2

// ComputeBlockID returns the block id for data.
func ComputeBlockID(data []byte) string {
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:])
}

// ValidBlockID reports whether id is syntactically a block id (40 lowercase
// hex characters).
func ValidBlockID(id string) bool {
	if len(id) != blockIDLen {
		return false
	}
	for _, c := range id {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}

// VerifyBlockID checks that id is the digest of data.
func VerifyBlockID(id string, data []byte) error {
	if !ValidBlockID(id) {
		return fmt.Errorf("block id %q: %w", id, ErrInvalidBlockID)
	}
	if got := ComputeBlockID(data); got != id {
		return fmt.Errorf("block id %s does not match content digest %s: %w", id, got, ErrInvalidBlockID)
	}
	return nil
}

// NewStorageID generates a fresh storage id for blockID.
//
// Format: "<blockID>_<uuid>". Two uploads of the same content get distinct
// storage ids, so a concurrent delete of one copy never removes the other.
func NewStorageID(blockID string) StorageID {
	return StorageID(blockID + "_" + uuid.NewString())
}

// BlockID extracts the block id from a storage id produced by NewStorageID.
func (s StorageID) BlockID() string {
	id, _, _ := strings.Cut(string(s), "_")
	return id
}

// Validate rejects storage ids that could escape a vault container.
func (s StorageID) Validate() error {
	if s == "" || strings.ContainsAny(string(s), "/\\") || s == "." || s == ".." {
		return fmt.Errorf("storage id %q: %w", s, ErrInvalidArgument)
	}
	return nil
}

// ValidateVaultID rejects vault ids that are empty or contain path
// separators.
func ValidateVaultID(vaultID string) error {
	if vaultID == "" || strings.ContainsAny(vaultID, "/\\") || vaultID == "." || vaultID == ".." {
		return fmt.Errorf("vault id %q: %w", vaultID, ErrInvalidArgument)
	}
	return nil
}

// ValidateBulk checks a bulk store request before any byte is written.
func ValidateBulk(blockIDs []string, blocks [][]byte) error {
	if len(blockIDs) != len(blocks) {
		return fmt.Errorf("%d block ids for %d blocks: %w", len(blockIDs), len(blocks), ErrInvalidArgument)
	}
	for i, id := range blockIDs {
		if err := VerifyBlockID(id, blocks[i]); err != nil {
			return err
		}
	}
	return nil
}
