package testing

import (
	"testing"

	"github.com/marmos91/dittovault/pkg/store/block"
	"github.com/marmos91/dittovault/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunVaultTests covers vault bookkeeping.
func (suite *IndexTestSuite) RunVaultTests(t *testing.T) {
	t.Run("CreateVault_Idempotent", suite.testCreateVaultIdempotent)
	t.Run("CreateVault_InvalidID", suite.testCreateVaultInvalid)
	t.Run("DeleteVault_NotEmpty", suite.testDeleteVaultNotEmpty)
	t.Run("DeleteVault_Missing", suite.testDeleteVaultMissing)
	t.Run("VaultCounts", suite.testVaultCounts)
}

func (suite *IndexTestSuite) testCreateVaultIdempotent(t *testing.T) {
	idx := suite.newIndexWithVault(t, "v1")
	require.NoError(t, idx.CreateVault(testContext(), "v1"))

	exists, err := idx.VaultExists(testContext(), "v1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = idx.VaultExists(testContext(), "v2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func (suite *IndexTestSuite) testCreateVaultInvalid(t *testing.T) {
	idx := suite.NewIndex(t)
	defer func() { _ = idx.Close() }()

	AssertCode(t, metadata.ErrInvalidArgument, idx.CreateVault(testContext(), ""))
	AssertCode(t, metadata.ErrInvalidArgument, idx.CreateVault(testContext(), "a/b"))
}

func (suite *IndexTestSuite) testDeleteVaultNotEmpty(t *testing.T) {
	idx := suite.newIndexWithVault(t, "v1")

	require.NoError(t, idx.RegisterBlock(testContext(), "v1", metadata.BlockRecord{
		BlockID: BlockID(1), StorageID: block.StorageID(BlockID(1) + "_x"), Size: 10,
	}))
	AssertCode(t, metadata.ErrVaultNotEmpty, idx.DeleteVault(testContext(), "v1"))

	require.NoError(t, idx.UnregisterBlock(testContext(), "v1", BlockID(1)))
	f, err := idx.CreateFile(testContext(), "v1")
	require.NoError(t, err)
	AssertCode(t, metadata.ErrVaultNotEmpty, idx.DeleteVault(testContext(), "v1"))

	exists, err := idx.VaultExists(testContext(), "v1")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, idx.DeleteFile(testContext(), "v1", f.ID))
	require.NoError(t, idx.DeleteVault(testContext(), "v1"))

	exists, err = idx.VaultExists(testContext(), "v1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func (suite *IndexTestSuite) testDeleteVaultMissing(t *testing.T) {
	idx := suite.NewIndex(t)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.DeleteVault(testContext(), "nope"))
}

func (suite *IndexTestSuite) testVaultCounts(t *testing.T) {
	idx := suite.newIndexWithVault(t, "v1")

	for i := 1; i <= 3; i++ {
		require.NoError(t, idx.RegisterBlock(testContext(), "v1", metadata.BlockRecord{BlockID: BlockID(i), Size: 1}))
	}
	_, err := idx.CreateFile(testContext(), "v1")
	require.NoError(t, err)

	counts, err := idx.VaultCounts(testContext(), "v1")
	require.NoError(t, err)
	assert.Equal(t, metadata.VaultCounts{Files: 1, Blocks: 3}, *counts)

	_, err = idx.VaultCounts(testContext(), "nope")
	AssertCode(t, metadata.ErrVaultNotFound, err)
}
