package block

import "errors"

// ============================================================================
// Standard Block Store Errors
// ============================================================================

// These errors are shared by every Store implementation. Callers should test
// for them with errors.Is; implementations wrap them with context:
//
//	return fmt.Errorf("block %s in vault %s: %w", sid, vaultID, block.ErrBlockNotFound)

var (
	// ErrVaultNotFound indicates the vault container does not exist.
	//
	// Returned by VaultStatistics and ListVaultBlocks so that callers can
	// tell a missing vault apart from an empty one.
	//
	// HTTP: 404 Not Found
	ErrVaultNotFound = errors.New("vault not found")

	// ErrBlockNotFound indicates no bytes exist for the storage id.
	//
	// GetBlock returns this instead of an empty or partial stream.
	//
	// HTTP: 404 Not Found
	ErrBlockNotFound = errors.New("block not found")

	// ErrInvalidBlockID indicates the block id is not the SHA-1 digest of
	// the supplied bytes. Nothing is persisted when this is returned.
	//
	// HTTP: 400 Bad Request
	ErrInvalidBlockID = errors.New("invalid block id")

	// ErrInvalidArgument indicates malformed input (empty ids, mismatched
	// bulk slices, path traversal attempts).
	//
	// HTTP: 400 Bad Request
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrBackendCommunication wraps a transport level failure talking to a
	// remote backend. The store never retries; retry is a caller decision.
	//
	// HTTP: 502 Bad Gateway
	ErrBackendCommunication = errors.New("backend communication failure")
)
