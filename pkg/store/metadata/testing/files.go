package testing

import (
	"sort"
	"testing"

	"github.com/marmos91/dittovault/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunFileTests covers file records.
func (suite *IndexTestSuite) RunFileTests(t *testing.T) {
	t.Run("CreateFile_UniqueIDs", suite.testCreateFileUnique)
	t.Run("CreateFile_MissingVault", suite.testCreateFileMissingVault)
	t.Run("GetFile_NotFound", suite.testGetFileNotFound)
	t.Run("DeleteFile", suite.testDeleteFile)
	t.Run("ListFiles_Filter", suite.testListFilesFilter)
}

func (suite *IndexTestSuite) testCreateFileUnique(t *testing.T) {
	idx := suite.newIndexWithVault(t, "v1")

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		f, err := idx.CreateFile(testContext(), "v1")
		require.NoError(t, err)
		assert.False(t, seen[f.ID], "duplicate file id %s", f.ID)
		assert.False(t, f.Finalized)
		assert.Equal(t, "v1", f.VaultID)
		seen[f.ID] = true
	}
}

func (suite *IndexTestSuite) testCreateFileMissingVault(t *testing.T) {
	idx := suite.NewIndex(t)
	defer func() { _ = idx.Close() }()

	_, err := idx.CreateFile(testContext(), "nope")
	AssertCode(t, metadata.ErrVaultNotFound, err)
}

func (suite *IndexTestSuite) testGetFileNotFound(t *testing.T) {
	idx := suite.newIndexWithVault(t, "v1")

	_, err := idx.GetFile(testContext(), "v1", "missing")
	AssertCode(t, metadata.ErrFileNotFound, err)

	_, err = idx.GetFile(testContext(), "nope", "missing")
	AssertCode(t, metadata.ErrVaultNotFound, err)
}

func (suite *IndexTestSuite) testDeleteFile(t *testing.T) {
	idx := suite.newIndexWithVault(t, "v1")

	f, err := idx.CreateFile(testContext(), "v1")
	require.NoError(t, err)
	require.NoError(t, idx.AddAssignments(testContext(), "v1", f.ID, []metadata.Assignment{
		{BlockID: BlockID(1), Offset: 0, Size: 10},
	}))

	require.NoError(t, idx.DeleteFile(testContext(), "v1", f.ID))

	_, err = idx.GetFile(testContext(), "v1", f.ID)
	AssertCode(t, metadata.ErrFileNotFound, err)
	_, err = idx.ListAssignments(testContext(), "v1", f.ID, nil, 0)
	AssertCode(t, metadata.ErrFileNotFound, err)

	AssertCode(t, metadata.ErrFileNotFound, idx.DeleteFile(testContext(), "v1", f.ID))
}

func (suite *IndexTestSuite) testListFilesFilter(t *testing.T) {
	idx := suite.newIndexWithVault(t, "v1")

	var finalized []string
	for i := 0; i < 6; i++ {
		f, err := idx.CreateFile(testContext(), "v1")
		require.NoError(t, err)
		if i%2 == 0 {
			require.NoError(t, idx.MarkFinalized(testContext(), "v1", f.ID))
			finalized = append(finalized, f.ID)
		}
	}
	sort.Strings(finalized)

	files, err := idx.ListFiles(testContext(), "v1", "", 0, metadata.FileFilter{})
	require.NoError(t, err)
	require.Len(t, files, 3)
	for i, f := range files {
		assert.Equal(t, finalized[i], f.ID)
		assert.True(t, f.Finalized)
	}

	all, err := idx.ListFiles(testContext(), "v1", "", 0, metadata.FileFilter{IncludeOpen: true})
	require.NoError(t, err)
	assert.Len(t, all, 6)

	page, err := idx.ListFiles(testContext(), "v1", finalized[0], 1, metadata.FileFilter{})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, finalized[1], page[0].ID)
}
