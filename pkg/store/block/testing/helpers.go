package testing

import (
	"crypto/sha1"
	"fmt"
	"io"
	"testing"

	"github.com/marmos91/dittovault/pkg/store/block"
	"github.com/stretchr/testify/require"
)

// MakeBlock returns deterministic content of size bytes and its block id.
// The content repeats the SHA-1 digest of seed, so different seeds give
// different blocks.
func MakeBlock(seed string, size int) (string, []byte) {
	pattern := sha1.Sum([]byte(seed))
	data := make([]byte, size)
	for i := range data {
		data[i] = pattern[i%len(pattern)]
	}
	return block.ComputeBlockID(data), data
}

// MakeBlocks returns n distinct blocks.
func MakeBlocks(n, size int) ([]string, [][]byte) {
	ids := make([]string, n)
	blocks := make([][]byte, n)
	for i := 0; i < n; i++ {
		ids[i], blocks[i] = MakeBlock(fmt.Sprintf("block-%03d", i), size)
	}
	return ids, blocks
}

func mustCreateVault(t *testing.T, store block.Store, vaultID string) {
	t.Helper()
	require.NoError(t, store.CreateVault(testContext(), vaultID))
}

func mustStoreBlock(t *testing.T, store block.Store, vaultID string, data []byte) block.StorageID {
	t.Helper()
	res, err := store.StoreBlock(testContext(), vaultID, block.ComputeBlockID(data), data)
	require.NoError(t, err)
	require.Equal(t, block.StatusCreated, res.Status)
	require.NotEmpty(t, res.StorageID)
	return res.StorageID
}

func mustReadBlock(t *testing.T, store block.Store, vaultID string, sid block.StorageID) []byte {
	t.Helper()
	r, err := store.GetBlock(testContext(), vaultID, sid)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return data
}
