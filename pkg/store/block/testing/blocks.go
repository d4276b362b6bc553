package testing

import (
	"testing"

	"github.com/marmos91/dittovault/pkg/store/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBlockTests covers single block operations.
func (suite *StoreTestSuite) RunBlockTests(t *testing.T) {
	t.Run("StoreBlock_RoundTrip", suite.testStoreBlockRoundTrip)
	t.Run("StoreBlock_InvalidID", suite.testStoreBlockInvalidID)
	t.Run("StoreBlock_Duplicate", suite.testStoreBlockDuplicate)
	t.Run("GetBlock_NotFound", suite.testGetBlockNotFound)
	t.Run("DeleteBlock_Idempotent", suite.testDeleteBlockIdempotent)
	t.Run("GetBlockLength_Missing", suite.testGetBlockLengthMissing)
	t.Run("OpenBlocks_Order", suite.testOpenBlocksOrder)
}

func (suite *StoreTestSuite) testStoreBlockRoundTrip(t *testing.T) {
	store := suite.NewStore(t)
	mustCreateVault(t, store, "v1")

	id, data := MakeBlock("round-trip", 1000)
	sid := mustStoreBlock(t, store, "v1", data)
	assert.Equal(t, id, sid.BlockID())

	assert.Equal(t, data, mustReadBlock(t, store, "v1", sid))

	length, err := store.GetBlockLength(testContext(), "v1", sid)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), length)

	exists, err := store.BlockExists(testContext(), "v1", sid)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.DeleteBlock(testContext(), "v1", sid))

	exists, err = store.BlockExists(testContext(), "v1", sid)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = store.GetBlock(testContext(), "v1", sid)
	assert.ErrorIs(t, err, block.ErrBlockNotFound)
}

func (suite *StoreTestSuite) testStoreBlockInvalidID(t *testing.T) {
	store := suite.NewStore(t)
	mustCreateVault(t, store, "v1")

	_, data := MakeBlock("bad", 10)
	otherID, _ := MakeBlock("other", 10)

	_, err := store.StoreBlock(testContext(), "v1", otherID, data)
	assert.ErrorIs(t, err, block.ErrInvalidBlockID)

	stats, err := store.VaultStatistics(testContext(), "v1")
	require.NoError(t, err)
	assert.Zero(t, stats.BlockCount, "nothing is persisted on invalid id")
}

func (suite *StoreTestSuite) testStoreBlockDuplicate(t *testing.T) {
	store := suite.NewStore(t)
	mustCreateVault(t, store, "v1")

	_, data := MakeBlock("dup", 10)
	sid1 := mustStoreBlock(t, store, "v1", data)
	sid2 := mustStoreBlock(t, store, "v1", data)
	assert.NotEqual(t, sid1, sid2)

	require.NoError(t, store.DeleteBlock(testContext(), "v1", sid1))
	assert.Equal(t, data, mustReadBlock(t, store, "v1", sid2))
}

func (suite *StoreTestSuite) testGetBlockNotFound(t *testing.T) {
	store := suite.NewStore(t)
	mustCreateVault(t, store, "v1")

	id, _ := MakeBlock("missing", 10)
	_, err := store.GetBlock(testContext(), "v1", block.NewStorageID(id))
	assert.ErrorIs(t, err, block.ErrBlockNotFound)
}

func (suite *StoreTestSuite) testDeleteBlockIdempotent(t *testing.T) {
	store := suite.NewStore(t)
	mustCreateVault(t, store, "v1")

	id, _ := MakeBlock("gone", 10)
	sid := block.NewStorageID(id)
	require.NoError(t, store.DeleteBlock(testContext(), "v1", sid))
	require.NoError(t, store.DeleteBlock(testContext(), "v1", sid))
}

func (suite *StoreTestSuite) testGetBlockLengthMissing(t *testing.T) {
	store := suite.NewStore(t)
	mustCreateVault(t, store, "v1")

	id, _ := MakeBlock("none", 10)
	length, err := store.GetBlockLength(testContext(), "v1", block.NewStorageID(id))
	require.NoError(t, err)
	assert.Zero(t, length)
}

func (suite *StoreTestSuite) testOpenBlocksOrder(t *testing.T) {
	store := suite.NewStore(t)
	mustCreateVault(t, store, "v1")

	_, blocks := MakeBlocks(6, 50)
	sids := make([]block.StorageID, len(blocks))
	for i, data := range blocks {
		sids[i] = mustStoreBlock(t, store, "v1", data)
	}

	// Request in reverse order and with a repeat.
	req := []block.StorageID{sids[5], sids[2], sids[0], sids[2]}
	want := [][]byte{blocks[5], blocks[2], blocks[0], blocks[2]}

	it := store.OpenBlocks(testContext(), "v1", req)
	defer func() { _ = it.Close() }()

	i := 0
	for it.Next() {
		sid, r := it.Block()
		assert.Equal(t, req[i], sid)
		data := readAllClose(t, r)
		assert.Equal(t, want[i], data, "stream %d", i)
		i++
	}
	require.NoError(t, it.Err())
	assert.Equal(t, len(req), i)
}
