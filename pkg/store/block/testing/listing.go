package testing

import (
	"sort"
	"testing"

	"github.com/marmos91/dittovault/pkg/store/block"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunListingTests covers ListVaultBlocks ordering and markers.
func (suite *StoreTestSuite) RunListingTests(t *testing.T) {
	t.Run("ListVaultBlocks_Missing", suite.testListMissingVault)
	t.Run("ListVaultBlocks_Empty", suite.testListEmptyVault)
	t.Run("ListVaultBlocks_Pages", suite.testListPages)
}

func (suite *StoreTestSuite) testListMissingVault(t *testing.T) {
	store := suite.NewStore(t)

	_, err := store.ListVaultBlocks(testContext(), "nope", "", 10)
	assert.ErrorIs(t, err, block.ErrVaultNotFound)
}

func (suite *StoreTestSuite) testListEmptyVault(t *testing.T) {
	store := suite.NewStore(t)
	mustCreateVault(t, store, "v1")

	sids, err := store.ListVaultBlocks(testContext(), "v1", "", 10)
	require.NoError(t, err)
	assert.Empty(t, sids)
}

func (suite *StoreTestSuite) testListPages(t *testing.T) {
	store := suite.NewStore(t)
	mustCreateVault(t, store, "v1")

	ids, blocks := MakeBlocks(20, 8)
	res, err := store.StoreBlocks(testContext(), "v1", ids, blocks)
	require.NoError(t, err)
	require.Equal(t, block.StatusCreated, res.Status)

	want := append([]block.StorageID(nil), res.StorageIDs...)
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })

	all, err := store.ListVaultBlocks(testContext(), "v1", "", 0)
	require.NoError(t, err)
	assert.Equal(t, want, all)

	var got []block.StorageID
	var marker block.StorageID
	pages := 0
	for {
		page, err := store.ListVaultBlocks(testContext(), "v1", marker, 6)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		pages++
		got = append(got, page...)
		marker = page[len(page)-1]
	}

	assert.Equal(t, want, got)
	assert.Equal(t, 4, pages)
}
