package vault

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/dittovault/pkg/store/block"
	blockfs "github.com/marmos91/dittovault/pkg/store/block/fs"
	"github.com/marmos91/dittovault/pkg/store/block/memory"
	blocktesting "github.com/marmos91/dittovault/pkg/store/block/testing"
	"github.com/marmos91/dittovault/pkg/store/metadata"
	metamemory "github.com/marmos91/dittovault/pkg/store/metadata/memory"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// renameFailFs fails the n-th Rename, which is how the disk store commits a
// block.
type renameFailFs struct {
	afero.Fs
	n     int32
	calls int32
}

func (f *renameFailFs) Rename(oldname, newname string) error {
	if atomic.AddInt32(&f.calls, 1) == f.n {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: errors.New("disk full")}
	}
	return f.Fs.Rename(oldname, newname)
}

func TestStoreBlocksDiskFailureStaysRecoverable(t *testing.T) {
	ctx := context.Background()
	store, err := blockfs.NewFSBlockStore(ctx, blockfs.Config{
		Path: "/blocks",
		Fs:   &renameFailFs{Fs: afero.NewMemMapFs(), n: 2},
	})
	require.NoError(t, err)
	svc := New(store, metamemory.NewMemoryIndex(), Config{}, nil)
	defer func() { _ = svc.Close() }()
	require.NoError(t, svc.CreateVault(ctx, "v1"))

	ids, data := blocktesting.MakeBlocks(2, 64)
	res, err := svc.StoreBlocks(ctx, "v1", ids, data)
	require.NoError(t, err, "a failed batch is reported, not returned")
	assert.Equal(t, block.StatusServerError, res.Status)
	require.NotNil(t, res.Records[0])
	assert.Nil(t, res.Records[1])
	assert.Equal(t, []string{ids[1]}, res.Missing(ids))

	ok, err := svc.BlockExists(ctx, "v1", ids[0])
	require.NoError(t, err)
	assert.True(t, ok, "the written block is registered")

	res, err = svc.StoreBlocks(ctx, "v1", ids, data)
	require.NoError(t, err)
	assert.Equal(t, block.StatusCreated, res.Status)

	for _, id := range ids {
		require.NoError(t, svc.DeleteBlock(ctx, "v1", id))
	}
	require.NoError(t, svc.DeleteVault(ctx, "v1"), "an emptied vault can be deleted")
}

// blankStore reports failed bulk entries without a storage id.
type blankStore struct {
	block.Store
	fail map[string]bool
}

func (b *blankStore) StoreBlocks(ctx context.Context, vaultID string, blockIDs []string, blocks [][]byte) (*block.BatchResult, error) {
	res := &block.BatchResult{
		Status:     block.StatusCreated,
		StorageIDs: make([]block.StorageID, len(blockIDs)),
		Errors:     make([]error, len(blockIDs)),
	}
	for i, id := range blockIDs {
		if b.fail[id] {
			res.Errors[i] = block.ErrBackendCommunication
			res.Status = block.StatusServerError
			continue
		}
		r, err := b.Store.StoreBlock(ctx, vaultID, id, blocks[i])
		if err != nil {
			return nil, err
		}
		res.StorageIDs[i] = r.StorageID
	}
	return res, nil
}

func TestStoreBlocksWithoutStorageID(t *testing.T) {
	ctx := context.Background()
	mem, err := memory.NewMemoryBlockStore(ctx)
	require.NoError(t, err)

	ids, data := blocktesting.MakeBlocks(3, 32)
	svc := New(&blankStore{Store: mem, fail: map[string]bool{ids[0]: true}}, metamemory.NewMemoryIndex(), Config{}, nil)
	defer func() { _ = svc.Close() }()
	require.NoError(t, svc.CreateVault(ctx, "v1"))

	res, err := svc.StoreBlocks(ctx, "v1", ids, data)
	require.NoError(t, err)
	assert.Equal(t, block.StatusServerError, res.Status)
	assert.Equal(t, []string{ids[0]}, res.Missing(ids))
	assert.NotNil(t, res.Records[1])
	assert.NotNil(t, res.Records[2])
}

// pausingIndex runs onCounts after VaultCounts answers, between the
// emptiness check of a vault delete and the removal.
type pausingIndex struct {
	metadata.Index
	onCounts func()
}

func (p *pausingIndex) VaultCounts(ctx context.Context, vaultID string) (*metadata.VaultCounts, error) {
	counts, err := p.Index.VaultCounts(ctx, vaultID)
	if p.onCounts != nil {
		p.onCounts()
	}
	return counts, err
}

func TestDeleteVaultExcludesConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	mem, err := memory.NewMemoryBlockStore(ctx)
	require.NoError(t, err)
	index := &pausingIndex{Index: metamemory.NewMemoryIndex()}
	svc := New(mem, index, Config{}, nil)
	defer func() { _ = svc.Close() }()
	require.NoError(t, svc.CreateVault(ctx, "v1"))

	var wg sync.WaitGroup
	var fileErr, blockErr error
	var once sync.Once
	index.onCounts = func() {
		once.Do(func() {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, fileErr = svc.CreateFile(ctx, "v1")
			}()
			go func() {
				defer wg.Done()
				id, data := blocktesting.MakeBlock("late", 16)
				_, blockErr = svc.StoreBlock(ctx, "v1", id, data)
			}()
			// Give the writers a chance to run inside the delete.
			time.Sleep(20 * time.Millisecond)
		})
	}

	require.NoError(t, svc.DeleteVault(ctx, "v1"))
	wg.Wait()

	assert.ErrorIs(t, fileErr, ErrVaultNotFound)
	assert.ErrorIs(t, blockErr, ErrVaultNotFound)

	inIndex, err := svc.VaultExists(ctx, "v1")
	require.NoError(t, err)
	inStore, err := mem.VaultExists(ctx, "v1")
	require.NoError(t, err)
	assert.False(t, inIndex)
	assert.False(t, inStore)
}
