package testing

import (
	"sync"
	"testing"

	"github.com/marmos91/dittovault/pkg/store/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunAssignmentTests covers assignment storage and the finalized flag.
func (suite *IndexTestSuite) RunAssignmentTests(t *testing.T) {
	t.Run("Merge", suite.testAssignmentsMerge)
	t.Run("Order", suite.testAssignmentsOrder)
	t.Run("Cursor", suite.testAssignmentsCursor)
	t.Run("RejectAfterFinalize", suite.testRejectAfterFinalize)
	t.Run("MarkFinalized_Idempotent", suite.testMarkFinalizedIdempotent)
	t.Run("Invalid", suite.testAssignmentsInvalid)
	t.Run("ConcurrentAssignFinalize", suite.testConcurrentAssignFinalize)
}

func (suite *IndexTestSuite) newFile(t *testing.T, idx metadata.Index) string {
	t.Helper()
	f, err := idx.CreateFile(testContext(), "v1")
	require.NoError(t, err)
	return f.ID
}

func (suite *IndexTestSuite) testAssignmentsMerge(t *testing.T) {
	idx := suite.newIndexWithVault(t, "v1")
	fid := suite.newFile(t, idx)

	require.NoError(t, idx.AddAssignments(testContext(), "v1", fid, []metadata.Assignment{
		{BlockID: BlockID(1), Offset: 0, Size: 100},
	}))
	require.NoError(t, idx.AddAssignments(testContext(), "v1", fid, []metadata.Assignment{
		{BlockID: BlockID(2), Offset: 100, Size: 100},
		{BlockID: BlockID(1), Offset: 0, Size: 100}, // same key, merged
	}))

	got, err := idx.ListAssignments(testContext(), "v1", fid, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, []metadata.Assignment{
		{BlockID: BlockID(1), Offset: 0, Size: 100},
		{BlockID: BlockID(2), Offset: 100, Size: 100},
	}, got)
}

func (suite *IndexTestSuite) testAssignmentsOrder(t *testing.T) {
	idx := suite.newIndexWithVault(t, "v1")
	fid := suite.newFile(t, idx)

	require.NoError(t, idx.AddAssignments(testContext(), "v1", fid, []metadata.Assignment{
		{BlockID: BlockID(3), Offset: 1000, Size: 1},
		{BlockID: BlockID(2), Offset: 9, Size: 1},
		{BlockID: BlockID(1), Offset: 9, Size: 1},
		{BlockID: BlockID(4), Offset: 10, Size: 1},
	}))

	got, err := idx.ListAssignments(testContext(), "v1", fid, nil, 0)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, BlockID(1), got[0].BlockID, "ties broken by block id")
	assert.Equal(t, BlockID(2), got[1].BlockID)
	assert.Equal(t, int64(10), got[2].Offset, "numeric, not lexical, offset order")
	assert.Equal(t, int64(1000), got[3].Offset)
}

func (suite *IndexTestSuite) testAssignmentsCursor(t *testing.T) {
	idx := suite.newIndexWithVault(t, "v1")
	fid := suite.newFile(t, idx)

	require.NoError(t, idx.AddAssignments(testContext(), "v1", fid, []metadata.Assignment{
		{BlockID: BlockID(1), Offset: 0, Size: 5},
		{BlockID: BlockID(2), Offset: 5, Size: 5},
		{BlockID: BlockID(3), Offset: 5, Size: 5},
		{BlockID: BlockID(4), Offset: 10, Size: 5},
	}))

	got, err := idx.ListAssignments(testContext(), "v1", fid, &metadata.AssignmentCursor{Offset: 5, BlockID: BlockID(2)}, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, BlockID(3), got[0].BlockID)
	assert.Equal(t, BlockID(4), got[1].BlockID)

	got, err = idx.ListAssignments(testContext(), "v1", fid, &metadata.AssignmentCursor{Offset: 5}, 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, BlockID(4), got[0].BlockID)

	got, err = idx.ListAssignments(testContext(), "v1", fid, nil, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func (suite *IndexTestSuite) testRejectAfterFinalize(t *testing.T) {
	idx := suite.newIndexWithVault(t, "v1")
	fid := suite.newFile(t, idx)

	require.NoError(t, idx.MarkFinalized(testContext(), "v1", fid))

	err := idx.AddAssignments(testContext(), "v1", fid, []metadata.Assignment{{BlockID: BlockID(1), Size: 1}})
	AssertCode(t, metadata.ErrFileAlreadyFinalized, err)

	got, err := idx.ListAssignments(testContext(), "v1", fid, nil, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func (suite *IndexTestSuite) testMarkFinalizedIdempotent(t *testing.T) {
	idx := suite.newIndexWithVault(t, "v1")
	fid := suite.newFile(t, idx)

	require.NoError(t, idx.MarkFinalized(testContext(), "v1", fid))
	f, err := idx.GetFile(testContext(), "v1", fid)
	require.NoError(t, err)
	require.True(t, f.Finalized)
	require.NotNil(t, f.FinalizedAt)
	first := *f.FinalizedAt

	require.NoError(t, idx.MarkFinalized(testContext(), "v1", fid))
	f, err = idx.GetFile(testContext(), "v1", fid)
	require.NoError(t, err)
	assert.True(t, first.Equal(*f.FinalizedAt))

	AssertCode(t, metadata.ErrFileNotFound, idx.MarkFinalized(testContext(), "v1", "missing"))
}

func (suite *IndexTestSuite) testAssignmentsInvalid(t *testing.T) {
	idx := suite.newIndexWithVault(t, "v1")
	fid := suite.newFile(t, idx)

	AssertCode(t, metadata.ErrInvalidArgument, idx.AddAssignments(testContext(), "v1", fid,
		[]metadata.Assignment{{BlockID: "nothex", Size: 1}}))
	AssertCode(t, metadata.ErrInvalidArgument, idx.AddAssignments(testContext(), "v1", fid,
		[]metadata.Assignment{{BlockID: BlockID(1), Offset: -1, Size: 1}}))
	AssertCode(t, metadata.ErrFileNotFound, idx.AddAssignments(testContext(), "v1", "missing",
		[]metadata.Assignment{{BlockID: BlockID(1), Size: 1}}))
}

// testConcurrentAssignFinalize checks that every assignment either lands
// before the file is finalized or is rejected.
func (suite *IndexTestSuite) testConcurrentAssignFinalize(t *testing.T) {
	idx := suite.newIndexWithVault(t, "v1")
	fid := suite.newFile(t, idx)

	const writers = 20
	accepted := make([]bool, writers)

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := idx.AddAssignments(testContext(), "v1", fid, []metadata.Assignment{{BlockID: BlockID(i + 1), Offset: int64(i), Size: 1}})
			accepted[i] = err == nil
			if err != nil {
				assert.True(t, metadata.IsCode(err, metadata.ErrFileAlreadyFinalized), "unexpected error %v", err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, idx.MarkFinalized(testContext(), "v1", fid))
	}()
	wg.Wait()

	got, err := idx.ListAssignments(testContext(), "v1", fid, nil, 0)
	require.NoError(t, err)

	stored := map[string]bool{}
	for _, a := range got {
		stored[a.BlockID] = true
	}
	for i, ok := range accepted {
		assert.Equal(t, ok, stored[BlockID(i+1)], "writer %d", i)
	}
}
