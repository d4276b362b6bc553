package badger

import (
	"context"
	"testing"

	"github.com/marmos91/dittovault/pkg/store/metadata"
	metadatatesting "github.com/marmos91/dittovault/pkg/store/metadata/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerIndex(t *testing.T) {
	suite := &metadatatesting.IndexTestSuite{
		NewIndex: func(t *testing.T) metadata.Index {
			idx, err := NewBadgerIndex(context.Background(), BadgerIndexConfig{InMemory: true})
			require.NoError(t, err)
			return idx
		},
	}
	suite.Run(t)
}

func TestBadgerIndexPersists(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	idx, err := NewBadgerIndex(ctx, BadgerIndexConfig{DBPath: dir})
	require.NoError(t, err)
	require.NoError(t, idx.CreateVault(ctx, "v1"))
	f, err := idx.CreateFile(ctx, "v1")
	require.NoError(t, err)
	require.NoError(t, idx.AddAssignments(ctx, "v1", f.ID, []metadata.Assignment{
		{BlockID: metadatatesting.BlockID(1), Offset: 0, Size: 10},
	}))
	require.NoError(t, idx.MarkFinalized(ctx, "v1", f.ID))
	require.NoError(t, idx.Close())

	reopened, err := NewBadgerIndex(ctx, BadgerIndexConfig{DBPath: dir})
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.GetFile(ctx, "v1", f.ID)
	require.NoError(t, err)
	assert.True(t, got.Finalized)

	as, err := reopened.ListAssignments(ctx, "v1", f.ID, nil, 0)
	require.NoError(t, err)
	assert.Len(t, as, 1)
}

func TestNewBadgerIndexRequiresPath(t *testing.T) {
	_, err := NewBadgerIndex(context.Background(), BadgerIndexConfig{})
	assert.Error(t, err)
}

func TestDeleteFileManyAssignments(t *testing.T) {
	ctx := context.Background()
	idx, err := NewBadgerIndex(ctx, BadgerIndexConfig{InMemory: true})
	require.NoError(t, err)
	defer func() { _ = idx.Close() }()

	require.NoError(t, idx.CreateVault(ctx, "v1"))
	f, err := idx.CreateFile(ctx, "v1")
	require.NoError(t, err)

	as := make([]metadata.Assignment, 2500)
	for i := range as {
		as[i] = metadata.Assignment{BlockID: metadatatesting.BlockID(i + 1), Offset: int64(i), Size: 1}
	}
	for i := 0; i < len(as); i += 500 {
		require.NoError(t, idx.AddAssignments(ctx, "v1", f.ID, as[i:i+500]))
	}

	require.NoError(t, idx.DeleteFile(ctx, "v1", f.ID))
	require.NoError(t, idx.DeleteVault(ctx, "v1"))
}
