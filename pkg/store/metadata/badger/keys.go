package badger

import "fmt"

// Database Key Namespace Design
// ==============================
//
// BadgerDB is a key-value store, so prefixed keys organize the data types
// into namespaces. Vault ids never contain "/", so "/" terminates each
// component and a prefix scan of one vault never spills into another
// (prefix "b:v1/" does not match "b:v10/...").
//
// Data Type     Prefix  Key Format                               Value
// =======================================================================
// Vault         "v:"    v:<vault>                                vaultRecord (JSON)
// Block         "b:"    b:<vault>/<blockID>                      BlockRecord (JSON)
// File          "f:"    f:<vault>/<fileID>                       File (JSON)
// Assignment    "a:"    a:<vault>/<fileID>/<offset:020d>/<block> Assignment (JSON)
//
// Assignment offsets are zero padded to 20 digits so that byte order equals
// numeric order, giving a (offset, block id) ordered scan for free. Offsets
// are validated non-negative before they reach this layer.

const (
	prefixVault      = "v:"
	prefixBlock      = "b:"
	prefixFile       = "f:"
	prefixAssignment = "a:"
)

func keyVault(vaultID string) []byte {
	return []byte(prefixVault + vaultID)
}

func prefixBlocks(vaultID string) []byte {
	return []byte(prefixBlock + vaultID + "/")
}

func keyBlock(vaultID, blockID string) []byte {
	return append(prefixBlocks(vaultID), blockID...)
}

func prefixFiles(vaultID string) []byte {
	return []byte(prefixFile + vaultID + "/")
}

func keyFile(vaultID, fileID string) []byte {
	return append(prefixFiles(vaultID), fileID...)
}

func prefixAssignments(vaultID, fileID string) []byte {
	return []byte(prefixAssignment + vaultID + "/" + fileID + "/")
}

func keyAssignmentOffset(vaultID, fileID string, offset int64) []byte {
	return append(prefixAssignments(vaultID, fileID), fmt.Sprintf("%020d", offset)...)
}

func keyAssignment(vaultID, fileID string, offset int64, blockID string) []byte {
	key := keyAssignmentOffset(vaultID, fileID, offset)
	key = append(key, '/')
	return append(key, blockID...)
}

// seekAfterOffset returns the smallest key greater than every assignment at
// offset. '0' sorts right after '/', so "<offset>0" is past "<offset>/...".
func seekAfterOffset(vaultID, fileID string, offset int64) []byte {
	return append(keyAssignmentOffset(vaultID, fileID, offset), '0')
}
