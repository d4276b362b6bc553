package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/pkg/pagination"
	"github.com/marmos91/dittovault/pkg/store/block"
	"github.com/marmos91/dittovault/pkg/store/metadata"
)

// FileBlock is one entry of a file block listing.
type FileBlock struct {
	BlockID string
	Offset  int64
}

// MarshalJSON encodes the entry as a [block_id, offset] pair.
func (fb FileBlock) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{fb.BlockID, fb.Offset})
}

// CreateFile creates an open file with a fresh id.
func (s *Service) CreateFile(ctx context.Context, vaultID string) (_ *metadata.File, err error) {
	defer s.observe("create_file", time.Now(), &err)

	unlockVault := s.vaultLocks.RLock(vaultID)
	defer unlockVault()

	f, err := s.index.CreateFile(ctx, vaultID)
	if err != nil {
		return nil, translate(err)
	}
	logger.Debug("Created file %s in vault %s", f.ID, vaultID)
	return f, nil
}

// GetFile returns the file record.
func (s *Service) GetFile(ctx context.Context, vaultID, fileID string) (_ *metadata.File, err error) {
	defer s.observe("get_file", time.Now(), &err)

	f, err := s.index.GetFile(ctx, vaultID, fileID)
	return f, translate(err)
}

// DeleteFile removes the file and its assignments. Referenced blocks are
// not deleted.
func (s *Service) DeleteFile(ctx context.Context, vaultID, fileID string) (err error) {
	defer s.observe("delete_file", time.Now(), &err)

	unlock := s.fileLocks.Lock(fileKey(vaultID, fileID))
	defer unlock()

	return translate(s.index.DeleteFile(ctx, vaultID, fileID))
}

// ListFiles returns one page of file ids in ascending order. Open files are
// listed only when Config.ListUnfinalizedFiles is set.
func (s *Service) ListFiles(ctx context.Context, vaultID string, req pagination.Request) (_ *pagination.Page[string], err error) {
	defer s.observe("list_files", time.Now(), &err)

	filter := metadata.FileFilter{IncludeOpen: s.config.ListUnfinalizedFiles}
	files, err := s.index.ListFiles(ctx, vaultID, req.Marker, req.FetchLimit(), filter)
	if err != nil {
		return nil, translate(err)
	}

	ids := make([]string, len(files))
	for i, f := range files {
		ids[i] = f.ID
	}
	return pagination.Paginate(ids, req, func(id string) string { return id }), nil
}

// AssignBlocks merges assignments into an open file.
//
// Assignments are accepted whether or not the blocks are uploaded yet. The
// returned slice lists, in request order and without duplicates, the
// referenced block ids that have no bytes in the vault. It is empty, not
// nil, when every block is present.
func (s *Service) AssignBlocks(ctx context.Context, vaultID, fileID string, assignments []metadata.Assignment) (_ []string, err error) {
	defer s.observe("assign_blocks", time.Now(), &err)

	unlockVault := s.vaultLocks.RLock(vaultID)
	defer unlockVault()

	unlock := s.fileLocks.Lock(fileKey(vaultID, fileID))
	defer unlock()

	f, err := s.index.GetFile(ctx, vaultID, fileID)
	if err != nil {
		return nil, translate(err)
	}
	if f.Finalized {
		return nil, fmt.Errorf("file %s: %w", fileID, ErrFileAlreadyFinalized)
	}

	if err := s.index.AddAssignments(ctx, vaultID, fileID, assignments); err != nil {
		return nil, translate(err)
	}

	seen := make(map[string]bool, len(assignments))
	ids := make([]string, 0, len(assignments))
	for _, a := range assignments {
		if !seen[a.BlockID] {
			seen[a.BlockID] = true
			ids = append(ids, a.BlockID)
		}
	}
	return s.missingBlocks(ctx, vaultID, ids)
}

// Finalize moves an open file to FINALIZED once every referenced block has
// bytes in the vault. Otherwise it returns a *MissingBlocksError and the
// file stays open. Finalizing a finalized file succeeds.
func (s *Service) Finalize(ctx context.Context, vaultID, fileID string) (err error) {
	defer s.observe("finalize", time.Now(), &err)

	unlock := s.fileLocks.Lock(fileKey(vaultID, fileID))
	defer unlock()

	f, err := s.index.GetFile(ctx, vaultID, fileID)
	if err != nil {
		return translate(err)
	}
	if f.Finalized {
		return nil
	}

	seen := make(map[string]bool)
	var ids []string
	err = s.scanAssignments(ctx, vaultID, fileID, func(a metadata.Assignment) {
		if !seen[a.BlockID] {
			seen[a.BlockID] = true
			ids = append(ids, a.BlockID)
		}
	})
	if err != nil {
		return err
	}

	missing, err := s.missingBlocks(ctx, vaultID, ids)
	if err != nil {
		return err
	}
	s.metrics.RecordFinalize(len(missing))
	if len(missing) > 0 {
		slices.Sort(missing)
		return &MissingBlocksError{VaultID: vaultID, FileID: fileID, BlockIDs: missing}
	}

	if err := s.index.MarkFinalized(ctx, vaultID, fileID); err != nil {
		return translate(err)
	}
	logger.Info("Finalized file %s in vault %s (%d blocks)", fileID, vaultID, len(ids))
	return nil
}

// ListFileBlocks returns one page of the file's (block id, offset) pairs
// ordered by offset, ties broken by block id.
//
// The marker is a pagination.FileCursor; a bare offset resumes after every
// block at that offset.
func (s *Service) ListFileBlocks(ctx context.Context, vaultID, fileID string, req pagination.Request) (_ *pagination.Page[FileBlock], err error) {
	defer s.observe("list_file_blocks", time.Now(), &err)

	cursor, err := pagination.ParseFileCursor(req.Marker)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, ErrInvalidArgument)
	}
	var after *metadata.AssignmentCursor
	if cursor != nil {
		after = &metadata.AssignmentCursor{Offset: cursor.Offset, BlockID: cursor.BlockID}
	}

	as, err := s.index.ListAssignments(ctx, vaultID, fileID, after, req.FetchLimit())
	if err != nil {
		return nil, translate(err)
	}

	items := make([]FileBlock, len(as))
	for i, a := range as {
		items[i] = FileBlock{BlockID: a.BlockID, Offset: a.Offset}
	}
	return pagination.Paginate(items, req, func(fb FileBlock) string {
		return pagination.FileCursor{Offset: fb.Offset, BlockID: fb.BlockID}.String()
	}), nil
}

// FileLength returns the largest offset+size over the file's assignments.
func (s *Service) FileLength(ctx context.Context, vaultID, fileID string) (n int64, err error) {
	defer s.observe("file_length", time.Now(), &err)

	err = s.scanAssignments(ctx, vaultID, fileID, func(a metadata.Assignment) {
		n = max(n, a.Offset+a.Size)
	})
	return n, err
}

// OpenFile streams the content of a finalized file: its blocks
// concatenated in offset order. An open file returns ErrFileNotFinalized.
func (s *Service) OpenFile(ctx context.Context, vaultID, fileID string) (_ io.ReadCloser, err error) {
	defer s.observe("open_file", time.Now(), &err)

	f, err := s.index.GetFile(ctx, vaultID, fileID)
	if err != nil {
		return nil, translate(err)
	}
	if !f.Finalized {
		return nil, fmt.Errorf("file %s: %w", fileID, ErrFileNotFinalized)
	}

	var ids []string
	err = s.scanAssignments(ctx, vaultID, fileID, func(a metadata.Assignment) {
		ids = append(ids, a.BlockID)
	})
	if err != nil {
		return nil, err
	}

	sids := make([]block.StorageID, len(ids))
	resolved := make(map[string]block.StorageID)
	for i, id := range ids {
		sid, ok := resolved[id]
		if !ok {
			rec, err := s.index.LookupBlock(ctx, vaultID, id)
			if err != nil {
				return nil, translate(err)
			}
			sid = rec.StorageID
			resolved[id] = sid
		}
		sids[i] = sid
	}

	return block.Concat(s.blocks.OpenBlocks(ctx, vaultID, sids)), nil
}

// scanAssignments visits every assignment of the file in order, reading
// ScanBatchSize at a time.
func (s *Service) scanAssignments(ctx context.Context, vaultID, fileID string, fn func(metadata.Assignment)) error {
	var after *metadata.AssignmentCursor
	for {
		as, err := s.index.ListAssignments(ctx, vaultID, fileID, after, s.config.ScanBatchSize)
		if err != nil {
			return translate(err)
		}
		for _, a := range as {
			fn(a)
		}
		if len(as) < s.config.ScanBatchSize {
			return nil
		}
		last := as[len(as)-1]
		after = &metadata.AssignmentCursor{Offset: last.Offset, BlockID: last.BlockID}
	}
}
