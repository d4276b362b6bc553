package testing

import (
	"context"
	"testing"

	"github.com/marmos91/dittovault/pkg/store/metadata"
	"github.com/stretchr/testify/require"
)

// IndexTestSuite exercises the metadata.Index contract against any
// implementation.
//
// Usage:
//
//	suite := &metadatatesting.IndexTestSuite{
//	    NewIndex: func(t *testing.T) metadata.Index { return memory.NewMemoryIndex() },
//	}
//	suite.Run(t)
type IndexTestSuite struct {
	// NewIndex returns a fresh, empty index for each test.
	NewIndex func(t *testing.T) metadata.Index
}

// Run executes all tests in the suite.
func (suite *IndexTestSuite) Run(t *testing.T) {
	t.Run("Vaults", suite.RunVaultTests)
	t.Run("Blocks", suite.RunBlockTests)
	t.Run("Files", suite.RunFileTests)
	t.Run("Assignments", suite.RunAssignmentTests)
}

func testContext() context.Context {
	return context.Background()
}

func (suite *IndexTestSuite) newIndexWithVault(t *testing.T, vaultID string) metadata.Index {
	t.Helper()
	idx := suite.NewIndex(t)
	t.Cleanup(func() { _ = idx.Close() })
	require.NoError(t, idx.CreateVault(testContext(), vaultID))
	return idx
}

// AssertCode fails the test unless err is a StoreError with code.
func AssertCode(t *testing.T, code metadata.ErrorCode, err error) {
	t.Helper()
	require.Error(t, err)
	require.True(t, metadata.IsCode(err, code), "expected %s, got %v", code, err)
}

// BlockID returns a syntactically valid block id derived from n.
func BlockID(n int) string {
	const hex = "0123456789abcdef"
	id := []byte("0000000000000000000000000000000000000000")
	for i := len(id) - 1; n > 0 && i >= 0; i-- {
		id[i] = hex[n%16]
		n /= 16
	}
	return string(id)
}
