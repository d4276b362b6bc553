package testing

import (
	"io"
	"testing"

	"github.com/marmos91/dittovault/pkg/store/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBulkTests covers StoreBlocks.
func (suite *StoreTestSuite) RunBulkTests(t *testing.T) {
	t.Run("StoreBlocks_Positional", suite.testStoreBlocksPositional)
	t.Run("StoreBlocks_InvalidID", suite.testStoreBlocksInvalidID)
	t.Run("StoreBlocks_LengthMismatch", suite.testStoreBlocksLengthMismatch)
}

func (suite *StoreTestSuite) testStoreBlocksPositional(t *testing.T) {
	store := suite.NewStore(t)
	mustCreateVault(t, store, "v1")

	ids, blocks := MakeBlocks(8, 256)
	res, err := store.StoreBlocks(testContext(), "v1", ids, blocks)
	require.NoError(t, err)
	require.Equal(t, block.StatusCreated, res.Status)
	require.Len(t, res.StorageIDs, len(ids))
	assert.Empty(t, res.Failed())

	for i, sid := range res.StorageIDs {
		assert.Equal(t, ids[i], sid.BlockID())
		assert.Equal(t, blocks[i], mustReadBlock(t, store, "v1", sid))
	}
}

func (suite *StoreTestSuite) testStoreBlocksInvalidID(t *testing.T) {
	store := suite.NewStore(t)
	mustCreateVault(t, store, "v1")

	ids, blocks := MakeBlocks(3, 16)
	ids[2] = ids[0]

	_, err := store.StoreBlocks(testContext(), "v1", ids, blocks)
	assert.ErrorIs(t, err, block.ErrInvalidBlockID)

	stats, err := store.VaultStatistics(testContext(), "v1")
	require.NoError(t, err)
	assert.Zero(t, stats.BlockCount, "a rejected batch writes nothing")
}

func (suite *StoreTestSuite) testStoreBlocksLengthMismatch(t *testing.T) {
	store := suite.NewStore(t)
	mustCreateVault(t, store, "v1")

	ids, blocks := MakeBlocks(3, 16)
	_, err := store.StoreBlocks(testContext(), "v1", ids[:2], blocks)
	assert.ErrorIs(t, err, block.ErrInvalidArgument)
}

func readAllClose(t *testing.T, r io.ReadCloser) []byte {
	t.Helper()
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return data
}
