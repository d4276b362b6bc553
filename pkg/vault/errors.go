package vault

import (
	"errors"
	"fmt"
	"strings"

	"github.com/marmos91/dittovault/pkg/store/block"
	"github.com/marmos91/dittovault/pkg/store/metadata"
)

// ============================================================================
// Domain Errors
// ============================================================================

// The service is the only place where store errors become domain errors.
// Every error it returns matches one of these sentinels with errors.Is, or
// is an unexpected infrastructure failure.
var (
	// HTTP: 404 Not Found
	ErrVaultNotFound = block.ErrVaultNotFound

	// HTTP: 404 Not Found
	ErrFileNotFound = errors.New("file not found")

	// ErrBlockNotFound is returned by block lookups. Blocks that are
	// assigned but not uploaded are reported through the advisory list of
	// AssignBlocks, never through this error.
	//
	// HTTP: 404 Not Found
	ErrBlockNotFound = block.ErrBlockNotFound

	// HTTP: 409 Conflict
	ErrVaultNotEmpty = errors.New("vault not empty")

	// HTTP: 400 Bad Request
	ErrInvalidBlockID = block.ErrInvalidBlockID

	// HTTP: 400 Bad Request
	ErrInvalidArgument = block.ErrInvalidArgument

	// ErrFileAlreadyFinalized is returned for any mutation of a finalized
	// file. Finalizing it again is not a mutation and succeeds.
	//
	// HTTP: 400 Bad Request
	ErrFileAlreadyFinalized = errors.New("file already finalized")

	// ErrFileNotFinalized is returned when reading the content of a file
	// that is still open.
	//
	// HTTP: 409 Conflict
	ErrFileNotFinalized = errors.New("file not finalized")

	// ErrMissingBlocks matches every *MissingBlocksError.
	//
	// HTTP: 413 Request Entity Too Large
	ErrMissingBlocks = errors.New("missing blocks")

	// HTTP: 502 Bad Gateway
	ErrBackendCommunication = block.ErrBackendCommunication
)

// MissingBlocksError rejects a finalize. The file stays open and finalize
// can be retried once the blocks are uploaded.
type MissingBlocksError struct {
	VaultID string
	FileID  string

	// BlockIDs lists the missing block ids in ascending order.
	BlockIDs []string
}

func (e *MissingBlocksError) Error() string {
	return fmt.Sprintf("file %s in vault %s: %d missing blocks: %s",
		e.FileID, e.VaultID, len(e.BlockIDs), strings.Join(e.BlockIDs, ", "))
}

// Is makes errors.Is(err, ErrMissingBlocks) match.
func (e *MissingBlocksError) Is(target error) bool {
	return target == ErrMissingBlocks
}

// translate maps index errors onto the domain taxonomy. Other errors pass
// through unchanged.
func translate(err error) error {
	if err == nil {
		return nil
	}

	var se *metadata.StoreError
	if !errors.As(err, &se) {
		return err
	}

	var sentinel error
	switch se.Code {
	case metadata.ErrVaultNotFound:
		sentinel = ErrVaultNotFound
	case metadata.ErrFileNotFound:
		sentinel = ErrFileNotFound
	case metadata.ErrBlockNotFound:
		sentinel = ErrBlockNotFound
	case metadata.ErrVaultNotEmpty:
		sentinel = ErrVaultNotEmpty
	case metadata.ErrFileAlreadyFinalized:
		sentinel = ErrFileAlreadyFinalized
	case metadata.ErrInvalidArgument:
		sentinel = ErrInvalidArgument
	default:
		return fmt.Errorf("metadata index: %w", err)
	}

	where := "vault " + se.VaultID
	if se.FileID != "" {
		where += " file " + se.FileID
	}
	if se.Message != se.Code.String() {
		return fmt.Errorf("%s: %s: %w", where, se.Message, sentinel)
	}
	return fmt.Errorf("%s: %w", where, sentinel)
}
