package testing

import (
	"testing"

	"github.com/marmos91/dittovault/pkg/store/block"
	"github.com/marmos91/dittovault/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunBlockTests covers the block registry.
func (suite *IndexTestSuite) RunBlockTests(t *testing.T) {
	t.Run("RegisterLookup", suite.testRegisterLookup)
	t.Run("RegisterBlock_MissingVault", suite.testRegisterMissingVault)
	t.Run("Unregister_Idempotent", suite.testUnregisterIdempotent)
	t.Run("ListBlocks_Marker", suite.testListBlocksMarker)
}

func (suite *IndexTestSuite) testRegisterLookup(t *testing.T) {
	idx := suite.newIndexWithVault(t, "v1")

	_, err := idx.LookupBlock(testContext(), "v1", BlockID(7))
	AssertCode(t, metadata.ErrBlockNotFound, err)

	sid := block.StorageID(BlockID(7) + "_a")
	require.NoError(t, idx.RegisterBlock(testContext(), "v1", metadata.BlockRecord{BlockID: BlockID(7), StorageID: sid, Size: 42}))

	rec, err := idx.LookupBlock(testContext(), "v1", BlockID(7))
	require.NoError(t, err)
	assert.Equal(t, sid, rec.StorageID)
	assert.Equal(t, int64(42), rec.Size)
	assert.False(t, rec.CreatedAt.IsZero())

	// Re-registering replaces the locator.
	sid2 := block.StorageID(BlockID(7) + "_b")
	require.NoError(t, idx.RegisterBlock(testContext(), "v1", metadata.BlockRecord{BlockID: BlockID(7), StorageID: sid2, Size: 42}))
	rec, err = idx.LookupBlock(testContext(), "v1", BlockID(7))
	require.NoError(t, err)
	assert.Equal(t, sid2, rec.StorageID)
}

func (suite *IndexTestSuite) testRegisterMissingVault(t *testing.T) {
	idx := suite.NewIndex(t)
	defer func() { _ = idx.Close() }()

	err := idx.RegisterBlock(testContext(), "nope", metadata.BlockRecord{BlockID: BlockID(1)})
	AssertCode(t, metadata.ErrVaultNotFound, err)

	_, err = idx.ListBlocks(testContext(), "nope", "", 10)
	AssertCode(t, metadata.ErrVaultNotFound, err)
}

func (suite *IndexTestSuite) testUnregisterIdempotent(t *testing.T) {
	idx := suite.newIndexWithVault(t, "v1")

	require.NoError(t, idx.UnregisterBlock(testContext(), "v1", BlockID(1)))
	require.NoError(t, idx.UnregisterBlock(testContext(), "nope", BlockID(1)))
}

func (suite *IndexTestSuite) testListBlocksMarker(t *testing.T) {
	idx := suite.newIndexWithVault(t, "v1")
	require.NoError(t, idx.CreateVault(testContext(), "v10"))

	// Insert out of order; listing sorts by id.
	for _, i := range []int{5, 1, 4, 2, 3} {
		require.NoError(t, idx.RegisterBlock(testContext(), "v1", metadata.BlockRecord{BlockID: BlockID(i), Size: int64(i)}))
	}
	require.NoError(t, idx.RegisterBlock(testContext(), "v10", metadata.BlockRecord{BlockID: BlockID(9)}))

	all, err := idx.ListBlocks(testContext(), "v1", "", 0)
	require.NoError(t, err)
	require.Len(t, all, 5, "prefix scan must not leak into v10")
	for i, rec := range all {
		assert.Equal(t, BlockID(i+1), rec.BlockID)
	}

	page, err := idx.ListBlocks(testContext(), "v1", BlockID(2), 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, BlockID(3), page[0].BlockID)
	assert.Equal(t, BlockID(4), page[1].BlockID)

	empty, err := idx.ListBlocks(testContext(), "v1", BlockID(5), 2)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
