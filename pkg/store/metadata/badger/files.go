package badger

import (
	"context"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/marmos91/dittovault/pkg/store/metadata"
)

// deleteBatchSize bounds the keys deleted per transaction so that large
// files stay under badger's transaction size limit.
const deleteBatchSize = 1000

func (s *BadgerIndex) CreateFile(ctx context.Context, vaultID string) (*metadata.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var file *metadata.File
	err := s.update(func(txn *badger.Txn) error {
		if err := requireVault(txn, vaultID); err != nil {
			return err
		}

		for {
			id := uuid.NewString()
			_, err := txn.Get(keyFile(vaultID, id))
			if err == nil {
				continue
			}
			if err != badger.ErrKeyNotFound {
				return err
			}

			file = &metadata.File{VaultID: vaultID, ID: id, CreatedAt: time.Now().UTC()}
			return set(txn, keyFile(vaultID, id), file)
		}
	})
	if err != nil {
		return nil, err
	}
	return file, nil
}

func (s *BadgerIndex) GetFile(ctx context.Context, vaultID, fileID string) (*metadata.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var file *metadata.File
	err := s.view(func(txn *badger.Txn) error {
		f, err := requireFile(txn, vaultID, fileID)
		file = f
		return err
	})
	if err != nil {
		return nil, err
	}
	return file, nil
}

// DeleteFile removes the assignments in batches, then the file record. A
// crash midway leaves the file with fewer assignments, never orphaned
// assignments without a file.
func (s *BadgerIndex) DeleteFile(ctx context.Context, vaultID, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.view(func(txn *badger.Txn) error {
		_, err := requireFile(txn, vaultID, fileID)
		return err
	})
	if err != nil {
		return err
	}

	prefix := prefixAssignments(vaultID, fileID)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var keys [][]byte
		err := s.view(func(txn *badger.Txn) error {
			opts := badger.DefaultIteratorOptions
			opts.PrefetchValues = false
			opts.Prefix = prefix
			it := txn.NewIterator(opts)
			defer it.Close()

			for it.Rewind(); it.Valid() && len(keys) < deleteBatchSize; it.Next() {
				keys = append(keys, it.Item().KeyCopy(nil))
			}
			return nil
		})
		if err != nil {
			return err
		}
		if len(keys) == 0 {
			break
		}

		err = s.update(func(txn *badger.Txn) error {
			for _, k := range keys {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}

	return s.update(func(txn *badger.Txn) error {
		return txn.Delete(keyFile(vaultID, fileID))
	})
}

func (s *BadgerIndex) ListFiles(ctx context.Context, vaultID, marker string, limit int, filter metadata.FileFilter) ([]metadata.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	files := []metadata.File{}
	err := s.view(func(txn *badger.Txn) error {
		if err := requireVault(txn, vaultID); err != nil {
			return err
		}

		var seek, skip []byte
		if marker != "" {
			seek = keyFile(vaultID, marker)
			skip = seek
		}
		return scan(ctx, txn, prefixFiles(vaultID), seek, skip, func(f *metadata.File) bool {
			if filter.Match(f) {
				files = append(files, *f)
			}
			return limit <= 0 || len(files) < limit
		})
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func (s *BadgerIndex) AddAssignments(ctx context.Context, vaultID, fileID string, assignments []metadata.Assignment) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := metadata.ValidateAssignments(vaultID, fileID, assignments); err != nil {
		return err
	}

	return s.update(func(txn *badger.Txn) error {
		f, err := requireFile(txn, vaultID, fileID)
		if err != nil {
			return err
		}
		if f.Finalized {
			return metadata.NewError(metadata.ErrFileAlreadyFinalized, vaultID, fileID)
		}

		for _, a := range assignments {
			if err := set(txn, keyAssignment(vaultID, fileID, a.Offset, a.BlockID), a); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BadgerIndex) ListAssignments(ctx context.Context, vaultID, fileID string, after *metadata.AssignmentCursor, limit int) ([]metadata.Assignment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := []metadata.Assignment{}
	err := s.view(func(txn *badger.Txn) error {
		if _, err := requireFile(txn, vaultID, fileID); err != nil {
			return err
		}

		var seek, skip []byte
		switch {
		case after == nil:
		case after.BlockID == "":
			seek = seekAfterOffset(vaultID, fileID, after.Offset)
		default:
			seek = keyAssignment(vaultID, fileID, after.Offset, after.BlockID)
			skip = seek
		}
		return scan(ctx, txn, prefixAssignments(vaultID, fileID), seek, skip, func(a *metadata.Assignment) bool {
			out = append(out, *a)
			return limit <= 0 || len(out) < limit
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerIndex) MarkFinalized(ctx context.Context, vaultID, fileID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.update(func(txn *badger.Txn) error {
		f, err := requireFile(txn, vaultID, fileID)
		if err != nil {
			return err
		}
		if f.Finalized {
			return nil
		}

		now := time.Now().UTC()
		f.Finalized = true
		f.FinalizedAt = &now
		return set(txn, keyFile(vaultID, fileID), f)
	})
}
