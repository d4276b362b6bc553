// Package memory implements metadata.Index in memory.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/dittovault/pkg/store/metadata"
)

type assignKey struct {
	blockID string
	offset  int64
}

type fileData struct {
	file        metadata.File
	assignments map[assignKey]metadata.Assignment
}

type vaultData struct {
	blocks map[string]metadata.BlockRecord
	files  map[string]*fileData
}

// MemoryIndex implements metadata.Index with in-memory maps.
//
// Characteristics:
//   - Volatile: data is lost on restart
//   - Thread-safe: protected by a single RWMutex
//
// Suitable for tests and ephemeral deployments. Use the badger index for
// anything that must survive a restart.
type MemoryIndex struct {
	mu     sync.RWMutex
	vaults map[string]*vaultData
}

var _ metadata.Index = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{vaults: make(map[string]*vaultData)}
}

// vaultLocked returns the vault or ErrVaultNotFound. Caller holds mu.
func (m *MemoryIndex) vaultLocked(vaultID string) (*vaultData, error) {
	v, ok := m.vaults[vaultID]
	if !ok {
		return nil, metadata.NewError(metadata.ErrVaultNotFound, vaultID, "")
	}
	return v, nil
}

// fileLocked returns the file or a not-found error. Caller holds mu.
func (m *MemoryIndex) fileLocked(vaultID, fileID string) (*fileData, error) {
	v, err := m.vaultLocked(vaultID)
	if err != nil {
		return nil, err
	}
	f, ok := v.files[fileID]
	if !ok {
		return nil, metadata.NewError(metadata.ErrFileNotFound, vaultID, fileID)
	}
	return f, nil
}

// ============================================================================
// Vaults
// ============================================================================

func (m *MemoryIndex) CreateVault(ctx context.Context, vaultID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := metadata.ValidateVaultID(vaultID); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.vaults[vaultID]; !ok {
		m.vaults[vaultID] = &vaultData{
			blocks: make(map[string]metadata.BlockRecord),
			files:  make(map[string]*fileData),
		}
	}
	return nil
}

func (m *MemoryIndex) VaultExists(ctx context.Context, vaultID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.vaults[vaultID]
	return ok, nil
}

func (m *MemoryIndex) DeleteVault(ctx context.Context, vaultID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.vaults[vaultID]
	if !ok {
		return nil
	}
	if len(v.blocks) > 0 || len(v.files) > 0 {
		return metadata.NewError(metadata.ErrVaultNotEmpty, vaultID, "")
	}
	delete(m.vaults, vaultID)
	return nil
}

func (m *MemoryIndex) VaultCounts(ctx context.Context, vaultID string) (*metadata.VaultCounts, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	v, err := m.vaultLocked(vaultID)
	if err != nil {
		return nil, err
	}
	return &metadata.VaultCounts{Files: int64(len(v.files)), Blocks: int64(len(v.blocks))}, nil
}

// ============================================================================
// Blocks
// ============================================================================

func (m *MemoryIndex) RegisterBlock(ctx context.Context, vaultID string, rec metadata.BlockRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	v, err := m.vaultLocked(vaultID)
	if err != nil {
		return err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	v.blocks[rec.BlockID] = rec
	return nil
}

func (m *MemoryIndex) LookupBlock(ctx context.Context, vaultID, blockID string) (*metadata.BlockRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	v, err := m.vaultLocked(vaultID)
	if err != nil {
		return nil, err
	}
	rec, ok := v.blocks[blockID]
	if !ok {
		return nil, &metadata.StoreError{Code: metadata.ErrBlockNotFound, Message: "block not found: " + blockID, VaultID: vaultID}
	}
	return &rec, nil
}

func (m *MemoryIndex) UnregisterBlock(ctx context.Context, vaultID, blockID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if v, ok := m.vaults[vaultID]; ok {
		delete(v.blocks, blockID)
	}
	return nil
}

func (m *MemoryIndex) ListBlocks(ctx context.Context, vaultID, marker string, limit int) ([]metadata.BlockRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	v, err := m.vaultLocked(vaultID)
	if err != nil {
		return nil, err
	}

	recs := make([]metadata.BlockRecord, 0, len(v.blocks))
	for id, rec := range v.blocks {
		if id > marker {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].BlockID < recs[j].BlockID })
	return truncate(recs, limit), nil
}

// ============================================================================
// Files
// ============================================================================

func (m *MemoryIndex) CreateFile(ctx context.Context, vaultID string) (*metadata.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	v, err := m.vaultLocked(vaultID)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	for v.files[id] != nil {
		id = uuid.NewString()
	}

	f := &fileData{
		file: metadata.File{
			VaultID:   vaultID,
			ID:        id,
			CreatedAt: time.Now().UTC(),
		},
		assignments: make(map[assignKey]metadata.Assignment),
	}
	v.files[id] = f

	file := f.file
	return &file, nil
}

func (m *MemoryIndex) GetFile(ctx context.Context, vaultID, fileID string) (*metadata.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	f, err := m.fileLocked(vaultID, fileID)
	if err != nil {
		return nil, err
	}
	file := f.file
	return &file, nil
}

func (m *MemoryIndex) DeleteFile(ctx context.Context, vaultID, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.fileLocked(vaultID, fileID); err != nil {
		return err
	}
	delete(m.vaults[vaultID].files, fileID)
	return nil
}

func (m *MemoryIndex) ListFiles(ctx context.Context, vaultID, marker string, limit int, filter metadata.FileFilter) ([]metadata.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	v, err := m.vaultLocked(vaultID)
	if err != nil {
		return nil, err
	}

	files := make([]metadata.File, 0, len(v.files))
	for id, f := range v.files {
		if id > marker && filter.Match(&f.file) {
			files = append(files, f.file)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].ID < files[j].ID })
	return truncate(files, limit), nil
}

// ============================================================================
// Assignments
// ============================================================================

func (m *MemoryIndex) AddAssignments(ctx context.Context, vaultID, fileID string, assignments []metadata.Assignment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := metadata.ValidateAssignments(vaultID, fileID, assignments); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := m.fileLocked(vaultID, fileID)
	if err != nil {
		return err
	}
	if f.file.Finalized {
		return metadata.NewError(metadata.ErrFileAlreadyFinalized, vaultID, fileID)
	}

	for _, a := range assignments {
		f.assignments[assignKey{blockID: a.BlockID, offset: a.Offset}] = a
	}
	return nil
}

func (m *MemoryIndex) ListAssignments(ctx context.Context, vaultID, fileID string, after *metadata.AssignmentCursor, limit int) ([]metadata.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	f, err := m.fileLocked(vaultID, fileID)
	if err != nil {
		return nil, err
	}

	out := make([]metadata.Assignment, 0, len(f.assignments))
	for _, a := range f.assignments {
		if a.After(after) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return truncate(out, limit), nil
}

func (m *MemoryIndex) MarkFinalized(ctx context.Context, vaultID, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	f, err := m.fileLocked(vaultID, fileID)
	if err != nil {
		return err
	}
	if !f.file.Finalized {
		now := time.Now().UTC()
		f.file.Finalized = true
		f.file.FinalizedAt = &now
	}
	return nil
}

func (m *MemoryIndex) Close() error {
	return nil
}

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
