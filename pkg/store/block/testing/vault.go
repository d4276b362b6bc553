package testing

import (
	"testing"

	"github.com/marmos91/dittovault/pkg/store/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunVaultTests covers vault lifecycle and statistics.
func (suite *StoreTestSuite) RunVaultTests(t *testing.T) {
	t.Run("CreateVault_Idempotent", suite.testCreateVaultIdempotent)
	t.Run("DeleteVault_NonEmpty", suite.testDeleteVaultNonEmpty)
	t.Run("DeleteVault_Missing", suite.testDeleteVaultMissing)
	t.Run("VaultStatistics", suite.testVaultStatistics)
	t.Run("VaultStatistics_Missing", suite.testVaultStatisticsMissing)
}

func (suite *StoreTestSuite) testCreateVaultIdempotent(t *testing.T) {
	store := suite.NewStore(t)

	require.NoError(t, store.CreateVault(testContext(), "v1"))
	require.NoError(t, store.CreateVault(testContext(), "v1"))

	exists, err := store.VaultExists(testContext(), "v1")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.VaultExists(testContext(), "v2")
	require.NoError(t, err)
	assert.False(t, exists)
}

func (suite *StoreTestSuite) testDeleteVaultNonEmpty(t *testing.T) {
	store := suite.NewStore(t)
	mustCreateVault(t, store, "v1")

	_, data := MakeBlock("x", 64)
	sid := mustStoreBlock(t, store, "v1", data)

	deleted, err := store.DeleteVault(testContext(), "v1")
	require.NoError(t, err)
	assert.False(t, deleted)

	exists, err := store.VaultExists(testContext(), "v1")
	require.NoError(t, err)
	assert.True(t, exists, "non-empty vault must survive delete")

	require.NoError(t, store.DeleteBlock(testContext(), "v1", sid))

	deleted, err = store.DeleteVault(testContext(), "v1")
	require.NoError(t, err)
	assert.True(t, deleted)

	exists, err = store.VaultExists(testContext(), "v1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func (suite *StoreTestSuite) testDeleteVaultMissing(t *testing.T) {
	store := suite.NewStore(t)

	deleted, err := store.DeleteVault(testContext(), "nope")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func (suite *StoreTestSuite) testVaultStatistics(t *testing.T) {
	store := suite.NewStore(t)
	mustCreateVault(t, store, "v1")

	stats, err := store.VaultStatistics(testContext(), "v1")
	require.NoError(t, err)
	assert.Equal(t, block.VaultStats{}, *stats)

	_, a := MakeBlock("a", 100)
	_, b := MakeBlock("b", 28)
	mustStoreBlock(t, store, "v1", a)
	mustStoreBlock(t, store, "v1", b)

	stats, err = store.VaultStatistics(testContext(), "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(128), stats.TotalSize)
	assert.Equal(t, int64(2), stats.BlockCount)
}

func (suite *StoreTestSuite) testVaultStatisticsMissing(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.VaultStatistics(testContext(), "nope")
	assert.ErrorIs(t, err, block.ErrVaultNotFound)
}
