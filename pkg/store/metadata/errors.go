package metadata

import (
	"errors"
	"fmt"
)

// StoreError represents a domain error from index operations.
//
// These are business logic errors (vault not found, file finalized, etc.)
// as opposed to infrastructure errors (disk failure, corrupt record), which
// carry ErrIOError.
//
// The vault service translates StoreError codes into its own error taxonomy;
// the HTTP layer never inspects them directly.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// VaultID and FileID identify the object involved, when applicable
	VaultID string
	FileID  string
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	switch {
	case e.FileID != "":
		return fmt.Sprintf("%s: vault %s file %s", e.Message, e.VaultID, e.FileID)
	case e.VaultID != "":
		return fmt.Sprintf("%s: vault %s", e.Message, e.VaultID)
	default:
		return e.Message
	}
}

// ErrorCode represents the category of a StoreError.
type ErrorCode int

const (
	// ErrVaultNotFound indicates the vault is not registered
	ErrVaultNotFound ErrorCode = iota

	// ErrFileNotFound indicates the file does not exist in the vault
	ErrFileNotFound

	// ErrBlockNotFound indicates no block record exists for the block id
	ErrBlockNotFound

	// ErrVaultNotEmpty indicates the vault still holds blocks or files
	ErrVaultNotEmpty

	// ErrFileAlreadyFinalized indicates a mutation of a finalized file
	ErrFileAlreadyFinalized

	// ErrInvalidArgument indicates malformed input
	// Examples: empty vault id, negative offset, negative size
	ErrInvalidArgument

	// ErrIOError indicates the underlying storage failed
	ErrIOError
)

func (c ErrorCode) String() string {
	switch c {
	case ErrVaultNotFound:
		return "vault not found"
	case ErrFileNotFound:
		return "file not found"
	case ErrBlockNotFound:
		return "block not found"
	case ErrVaultNotEmpty:
		return "vault not empty"
	case ErrFileAlreadyFinalized:
		return "file already finalized"
	case ErrInvalidArgument:
		return "invalid argument"
	case ErrIOError:
		return "i/o error"
	default:
		return "unknown error"
	}
}

// NewError builds a StoreError whose message is the code description.
func NewError(code ErrorCode, vaultID, fileID string) *StoreError {
	return &StoreError{Code: code, Message: code.String(), VaultID: vaultID, FileID: fileID}
}

// IOError wraps an infrastructure failure.
func IOError(op string, err error) *StoreError {
	return &StoreError{Code: ErrIOError, Message: fmt.Sprintf("%s: %v", op, err)}
}

// IsCode reports whether err is a StoreError with the given code.
func IsCode(err error, code ErrorCode) bool {
	var se *StoreError
	return errors.As(err, &se) && se.Code == code
}
