package vault

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittovault/pkg/pagination"
	"github.com/marmos91/dittovault/pkg/store/block"
	"github.com/marmos91/dittovault/pkg/store/block/memory"
	blocktesting "github.com/marmos91/dittovault/pkg/store/block/testing"
	"github.com/marmos91/dittovault/pkg/store/metadata"
	metamemory "github.com/marmos91/dittovault/pkg/store/metadata/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMetrics struct {
	mu        sync.Mutex
	ops       map[string]int
	dedupHits int
	finalizes []int
}

func (m *recordingMetrics) ObserveOperation(op string, _ time.Duration, _ error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ops == nil {
		m.ops = map[string]int{}
	}
	m.ops[op]++
}

func (m *recordingMetrics) RecordDedup(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hit {
		m.dedupHits++
	}
}

func (m *recordingMetrics) RecordFinalize(missing int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalizes = append(m.finalizes, missing)
}

// flakyStore fails bulk writes of the listed block ids, the way a remote
// backend reports a partially failed batch.
type flakyStore struct {
	block.Store
	fail map[string]bool
}

func (f *flakyStore) StoreBlocks(ctx context.Context, vaultID string, blockIDs []string, blocks [][]byte) (*block.BatchResult, error) {
	res := &block.BatchResult{
		Status:     block.StatusCreated,
		StorageIDs: make([]block.StorageID, len(blockIDs)),
		Errors:     make([]error, len(blockIDs)),
	}
	for i, id := range blockIDs {
		if f.fail[id] {
			res.StorageIDs[i] = block.NewStorageID(id)
			res.Errors[i] = block.ErrBackendCommunication
			res.Status = block.StatusServerError
			continue
		}
		r, err := f.Store.StoreBlock(ctx, vaultID, id, blocks[i])
		if err != nil {
			return nil, err
		}
		res.StorageIDs[i] = r.StorageID
	}
	return res, nil
}

func newTestService(t *testing.T, cfg Config) (*Service, block.Store, *recordingMetrics) {
	t.Helper()
	store, err := memory.NewMemoryBlockStore(context.Background())
	require.NoError(t, err)
	metrics := &recordingMetrics{}
	svc := New(store, metamemory.NewMemoryIndex(), cfg, metrics)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, store, metrics
}

func readAll(t *testing.T, r io.ReadCloser) []byte {
	t.Helper()
	defer func() { _ = r.Close() }()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	return data
}

func TestFileLifecycle(t *testing.T) {
	ctx := context.Background()
	svc, _, metrics := newTestService(t, Config{})

	require.NoError(t, svc.CreateVault(ctx, "v1"))
	b1, d1 := blocktesting.MakeBlock("b1", 100)
	b2, d2 := blocktesting.MakeBlock("b2", 100)
	_, err := svc.StoreBlock(ctx, "v1", b1, d1)
	require.NoError(t, err)
	_, err = svc.StoreBlock(ctx, "v1", b2, d2)
	require.NoError(t, err)

	f1, err := svc.CreateFile(ctx, "v1")
	require.NoError(t, err)

	missing, err := svc.AssignBlocks(ctx, "v1", f1.ID, []metadata.Assignment{
		{BlockID: b1, Offset: 0, Size: 100},
		{BlockID: b2, Offset: 100, Size: 100},
	})
	require.NoError(t, err)
	assert.NotNil(t, missing)
	assert.Empty(t, missing)

	require.NoError(t, svc.Finalize(ctx, "v1", f1.ID))
	require.NoError(t, svc.Finalize(ctx, "v1", f1.ID), "finalize is idempotent")

	_, err = svc.AssignBlocks(ctx, "v1", f1.ID, []metadata.Assignment{{BlockID: b1, Offset: 200, Size: 100}})
	assert.ErrorIs(t, err, ErrFileAlreadyFinalized)

	n, err := svc.FileLength(ctx, "v1", f1.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(200), n)

	r, err := svc.OpenFile(ctx, "v1", f1.ID)
	require.NoError(t, err)
	assert.Equal(t, append(append([]byte{}, d1...), d2...), readAll(t, r))

	assert.Equal(t, []int{0}, metrics.finalizes, "second finalize short-circuits")
	assert.Equal(t, 2, metrics.ops["finalize"])
}

func TestFinalizeMissingBlocks(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, Config{})
	require.NoError(t, svc.CreateVault(ctx, "v1"))

	ids, data := blocktesting.MakeBlocks(4, 64)
	_, err := svc.StoreBlock(ctx, "v1", ids[0], data[0])
	require.NoError(t, err)

	f, err := svc.CreateFile(ctx, "v1")
	require.NoError(t, err)

	as := make([]metadata.Assignment, 4)
	for i, id := range ids {
		as[i] = metadata.Assignment{BlockID: id, Offset: int64(i * 64), Size: 64}
	}
	// Duplicate a missing block; it is reported once.
	as = append(as, metadata.Assignment{BlockID: ids[3], Offset: 256, Size: 64})

	missing, err := svc.AssignBlocks(ctx, "v1", f.ID, as)
	require.NoError(t, err)
	assert.Equal(t, []string{ids[1], ids[2], ids[3]}, missing)

	err = svc.Finalize(ctx, "v1", f.ID)
	require.ErrorIs(t, err, ErrMissingBlocks)
	var mbe *MissingBlocksError
	require.True(t, errors.As(err, &mbe))
	assert.ElementsMatch(t, []string{ids[1], ids[2], ids[3]}, mbe.BlockIDs)
	assert.IsIncreasing(t, mbe.BlockIDs)

	got, err := svc.GetFile(ctx, "v1", f.ID)
	require.NoError(t, err)
	assert.False(t, got.Finalized, "rejected finalize leaves the file open")

	_, err = svc.OpenFile(ctx, "v1", f.ID)
	assert.ErrorIs(t, err, ErrFileNotFinalized)

	for i := 1; i < 4; i++ {
		_, err := svc.StoreBlock(ctx, "v1", ids[i], data[i])
		require.NoError(t, err)
	}
	require.NoError(t, svc.Finalize(ctx, "v1", f.ID))

	_, err = svc.AssignBlocks(ctx, "v1", f.ID, as[:1])
	assert.ErrorIs(t, err, ErrFileAlreadyFinalized)
}

func TestFinalizeDetectsDeletedBlock(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, Config{})
	require.NoError(t, svc.CreateVault(ctx, "v1"))

	id, data := blocktesting.MakeBlock("x", 32)
	_, err := svc.StoreBlock(ctx, "v1", id, data)
	require.NoError(t, err)

	f, err := svc.CreateFile(ctx, "v1")
	require.NoError(t, err)
	missing, err := svc.AssignBlocks(ctx, "v1", f.ID, []metadata.Assignment{{BlockID: id, Size: 32}})
	require.NoError(t, err)
	assert.Empty(t, missing)

	require.NoError(t, svc.DeleteBlock(ctx, "v1", id))
	require.NoError(t, svc.DeleteBlock(ctx, "v1", id), "delete is idempotent")

	err = svc.Finalize(ctx, "v1", f.ID)
	assert.ErrorIs(t, err, ErrMissingBlocks)
}

func TestFinalizeSpansScanBatches(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, Config{ScanBatchSize: 3})
	require.NoError(t, svc.CreateVault(ctx, "v1"))

	ids, data := blocktesting.MakeBlocks(10, 16)
	f, err := svc.CreateFile(ctx, "v1")
	require.NoError(t, err)

	as := make([]metadata.Assignment, len(ids))
	for i, id := range ids {
		as[i] = metadata.Assignment{BlockID: id, Offset: int64(i * 16), Size: 16}
	}
	_, err = svc.AssignBlocks(ctx, "v1", f.ID, as)
	require.NoError(t, err)

	// Only the last block is missing; it sits in the final batch.
	res, err := svc.StoreBlocks(ctx, "v1", ids[:9], data[:9])
	require.NoError(t, err)
	require.Equal(t, block.StatusCreated, res.Status)

	var mbe *MissingBlocksError
	require.ErrorAs(t, svc.Finalize(ctx, "v1", f.ID), &mbe)
	assert.Equal(t, []string{ids[9]}, mbe.BlockIDs)

	n, err := svc.FileLength(ctx, "v1", f.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(160), n)
}

func TestAssignErrors(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, Config{})

	_, err := svc.AssignBlocks(ctx, "nope", "f", nil)
	assert.ErrorIs(t, err, ErrVaultNotFound)

	require.NoError(t, svc.CreateVault(ctx, "v1"))
	_, err = svc.AssignBlocks(ctx, "v1", "missing", nil)
	assert.ErrorIs(t, err, ErrFileNotFound)

	err = svc.Finalize(ctx, "v1", "missing")
	assert.ErrorIs(t, err, ErrFileNotFound)

	f, err := svc.CreateFile(ctx, "v1")
	require.NoError(t, err)
	_, err = svc.AssignBlocks(ctx, "v1", f.ID, []metadata.Assignment{{BlockID: "zz", Size: 1}})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestStoreBlockDedup(t *testing.T) {
	ctx := context.Background()
	svc, store, metrics := newTestService(t, Config{})
	require.NoError(t, svc.CreateVault(ctx, "v1"))

	id, data := blocktesting.MakeBlock("dup", 128)
	first, err := svc.StoreBlock(ctx, "v1", id, data)
	require.NoError(t, err)
	second, err := svc.StoreBlock(ctx, "v1", id, data)
	require.NoError(t, err)

	assert.Equal(t, first.StorageID, second.StorageID)
	assert.Equal(t, 1, metrics.dedupHits)

	sids, err := store.ListVaultBlocks(ctx, "v1", "", 0)
	require.NoError(t, err)
	assert.Len(t, sids, 1, "identical content is stored once")

	r, n, err := svc.GetBlock(ctx, "v1", id)
	require.NoError(t, err)
	assert.Equal(t, int64(128), n)
	assert.Equal(t, data, readAll(t, r))

	_, err = svc.StoreBlock(ctx, "v1", block.ComputeBlockID([]byte("other")), data)
	assert.ErrorIs(t, err, ErrInvalidBlockID)

	_, err = svc.StoreBlock(ctx, "nope", id, data)
	assert.ErrorIs(t, err, ErrVaultNotFound)
}

func TestStoreBlocksPartialFailure(t *testing.T) {
	ctx := context.Background()
	mem, err := memory.NewMemoryBlockStore(ctx)
	require.NoError(t, err)

	ids, data := blocktesting.MakeBlocks(3, 50)
	store := &flakyStore{Store: mem, fail: map[string]bool{ids[1]: true}}
	svc := New(store, metamemory.NewMemoryIndex(), Config{}, nil)
	defer func() { _ = svc.Close() }()
	require.NoError(t, svc.CreateVault(ctx, "v1"))

	res, err := svc.StoreBlocks(ctx, "v1", ids, data)
	require.NoError(t, err)
	assert.Equal(t, block.StatusServerError, res.Status)
	assert.NotNil(t, res.Records[0])
	assert.Nil(t, res.Records[1])
	assert.NotNil(t, res.Records[2])
	assert.Equal(t, []string{ids[1]}, res.Missing(ids))

	for i, want := range []bool{true, false, true} {
		ok, err := svc.BlockExists(ctx, "v1", ids[i])
		require.NoError(t, err)
		assert.Equal(t, want, ok, "block %d", i)
	}

	// Retrying the batch writes only the missing block.
	delete(store.fail, ids[1])
	res, err = svc.StoreBlocks(ctx, "v1", ids, data)
	require.NoError(t, err)
	assert.Equal(t, block.StatusCreated, res.Status)

	sids, err := mem.ListVaultBlocks(ctx, "v1", "", 0)
	require.NoError(t, err)
	assert.Len(t, sids, 3)
}

func TestStoreBlocksDuplicatesInBatch(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newTestService(t, Config{})
	require.NoError(t, svc.CreateVault(ctx, "v1"))

	id, data := blocktesting.MakeBlock("same", 10)
	res, err := svc.StoreBlocks(ctx, "v1", []string{id, id}, [][]byte{data, data})
	require.NoError(t, err)
	assert.Equal(t, block.StatusCreated, res.Status)
	assert.Equal(t, res.Records[0], res.Records[1])

	sids, err := store.ListVaultBlocks(ctx, "v1", "", 0)
	require.NoError(t, err)
	assert.Len(t, sids, 1)
}

func TestDeleteVault(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, Config{})

	require.NoError(t, svc.CreateVault(ctx, "v1"))
	require.NoError(t, svc.CreateVault(ctx, "v1"))

	id, data := blocktesting.MakeBlock("b", 10)
	_, err := svc.StoreBlock(ctx, "v1", id, data)
	require.NoError(t, err)
	f, err := svc.CreateFile(ctx, "v1")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteVault(ctx, "v1"), ErrVaultNotEmpty)
	ok, err := svc.VaultExists(ctx, "v1")
	require.NoError(t, err)
	assert.True(t, ok)

	stats, err := svc.VaultStatistics(ctx, "v1")
	require.NoError(t, err)
	assert.Equal(t, int64(10), stats.Storage.TotalSize)
	assert.Equal(t, int64(1), stats.Storage.BlockCount)
	assert.Equal(t, int64(1), stats.Files)
	assert.Equal(t, int64(1), stats.Blocks)

	require.NoError(t, svc.DeleteBlock(ctx, "v1", id))
	assert.ErrorIs(t, svc.DeleteVault(ctx, "v1"), ErrVaultNotEmpty)
	require.NoError(t, svc.DeleteFile(ctx, "v1", f.ID))
	require.NoError(t, svc.DeleteVault(ctx, "v1"))

	ok, err = svc.VaultExists(ctx, "v1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, svc.DeleteVault(ctx, "v1"), "deleting a missing vault succeeds")

	_, err = svc.VaultStatistics(ctx, "v1")
	assert.ErrorIs(t, err, ErrVaultNotFound)
}

func TestListVaultBlocksPagination(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, Config{})
	require.NoError(t, svc.CreateVault(ctx, "v1"))

	ids, data := blocktesting.MakeBlocks(20, 8)
	res, err := svc.StoreBlocks(ctx, "v1", ids, data)
	require.NoError(t, err)
	require.Equal(t, block.StatusCreated, res.Status)

	req := pagination.Request{Limit: 4}
	seen := map[string]bool{}
	pages := 0
	for {
		page, err := svc.ListVaultBlocks(ctx, "v1", req)
		require.NoError(t, err)
		pages++
		for _, id := range page.Items {
			assert.False(t, seen[id])
			seen[id] = true
		}
		if !page.HasMore {
			break
		}
		assert.Len(t, page.Items, 4)
		req.Marker = page.NextMarker
	}
	assert.Equal(t, 5, pages)
	assert.Len(t, seen, 20)

	_, err = svc.ListVaultBlocks(ctx, "nope", pagination.Request{Limit: 4})
	assert.ErrorIs(t, err, ErrVaultNotFound)

	require.NoError(t, svc.CreateVault(ctx, "empty"))
	page, err := svc.ListVaultBlocks(ctx, "empty", pagination.Request{Limit: 4})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.False(t, page.HasMore)
}

func TestListFileBlocksPagination(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, Config{})
	require.NoError(t, svc.CreateVault(ctx, "v1"))

	ids, _ := blocktesting.MakeBlocks(6, 8)
	f, err := svc.CreateFile(ctx, "v1")
	require.NoError(t, err)

	// Two blocks share each offset.
	var as []metadata.Assignment
	for i, id := range ids {
		as = append(as, metadata.Assignment{BlockID: id, Offset: int64(i / 2 * 8), Size: 8})
	}
	_, err = svc.AssignBlocks(ctx, "v1", f.ID, as)
	require.NoError(t, err)

	req := pagination.Request{Limit: 1}
	var got []FileBlock
	for {
		page, err := svc.ListFileBlocks(ctx, "v1", f.ID, req)
		require.NoError(t, err)
		got = append(got, page.Items...)
		if !page.HasMore {
			break
		}
		req.Marker = page.NextMarker
	}
	require.Len(t, got, 6, "ties at one offset are neither skipped nor repeated")
	for i := 1; i < len(got); i++ {
		prev, cur := got[i-1], got[i]
		assert.True(t, prev.Offset < cur.Offset || prev.Offset == cur.Offset && prev.BlockID < cur.BlockID)
	}

	page, err := svc.ListFileBlocks(ctx, "v1", f.ID, pagination.Request{Limit: 10, Marker: "0"})
	require.NoError(t, err)
	assert.Len(t, page.Items, 4, "bare offset marker skips every block at that offset")

	_, err = svc.ListFileBlocks(ctx, "v1", f.ID, pagination.Request{Limit: 10, Marker: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFileBlockJSON(t *testing.T) {
	data, err := FileBlock{BlockID: "abc", Offset: 100}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `["abc", 100]`, string(data))
}

func TestListFilesPolicy(t *testing.T) {
	ctx := context.Background()
	for _, includeOpen := range []bool{false, true} {
		svc, _, _ := newTestService(t, Config{ListUnfinalizedFiles: includeOpen})
		require.NoError(t, svc.CreateVault(ctx, "v1"))

		open, err := svc.CreateFile(ctx, "v1")
		require.NoError(t, err)
		done, err := svc.CreateFile(ctx, "v1")
		require.NoError(t, err)
		require.NoError(t, svc.Finalize(ctx, "v1", done.ID))

		page, err := svc.ListFiles(ctx, "v1", pagination.Request{Limit: 10})
		require.NoError(t, err)
		if includeOpen {
			assert.ElementsMatch(t, []string{open.ID, done.ID}, page.Items)
		} else {
			assert.Equal(t, []string{done.ID}, page.Items)
		}
	}
}

// TestConcurrentAssignAndFinalize checks that no assignment is lost or
// applied after finalize commits.
func TestConcurrentAssignAndFinalize(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(t, Config{})
	require.NoError(t, svc.CreateVault(ctx, "v1"))

	ids, data := blocktesting.MakeBlocks(16, 8)
	res, err := svc.StoreBlocks(ctx, "v1", ids, data)
	require.NoError(t, err)
	require.Equal(t, block.StatusCreated, res.Status)

	f, err := svc.CreateFile(ctx, "v1")
	require.NoError(t, err)

	accepted := make([]bool, len(ids))
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.AssignBlocks(ctx, "v1", f.ID, []metadata.Assignment{{BlockID: id, Offset: int64(i * 8), Size: 8}})
			if err == nil {
				accepted[i] = true
				return
			}
			assert.ErrorIs(t, err, ErrFileAlreadyFinalized)
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, svc.Finalize(ctx, "v1", f.ID))
	}()
	wg.Wait()

	page, err := svc.ListFileBlocks(ctx, "v1", f.ID, pagination.Request{Limit: 100})
	require.NoError(t, err)
	listed := map[string]bool{}
	for _, fb := range page.Items {
		listed[fb.BlockID] = true
	}
	for i, id := range ids {
		assert.Equal(t, accepted[i], listed[id], "block %d", i)
	}
}
