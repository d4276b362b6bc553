// Package vault implements the block vault service.
//
// The Service is the only component that combines block bytes (block.Store)
// with their bookkeeping (metadata.Index) in one logical operation. It owns
// the file state machine:
//
//	OPEN --Finalize (all referenced blocks present)--> FINALIZED
//
// AssignBlocks is accepted only while a file is OPEN; FINALIZED is terminal.
// Assign, finalize and delete of one file are serialized by a per-file lock,
// so an assignment either lands before finalize reads the assignment set or
// is rejected after it commits. Creating and deleting a vault exclude every
// operation that adds files, blocks or assignments to it, so a delete never
// sees a vault fill up between its emptiness check and its removal.
package vault

import (
	"context"
	"time"

	"github.com/marmos91/dittovault/internal/keylock"
	"github.com/marmos91/dittovault/pkg/store/block"
	"github.com/marmos91/dittovault/pkg/store/metadata"
)

// Config holds the service policy knobs.
type Config struct {
	// ListUnfinalizedFiles makes ListFiles include open files.
	ListUnfinalizedFiles bool `mapstructure:"list_unfinalized_files" yaml:"list_unfinalized_files"`

	// ScanBatchSize is the number of assignments read per index call when
	// a whole file is scanned (finalize, length, streaming). Default 1000.
	ScanBatchSize int `mapstructure:"scan_batch_size" yaml:"scan_batch_size" validate:"omitempty,min=1"`
}

// Metrics receives service level observations. Implementations must be
// safe for concurrent use.
type Metrics interface {
	// ObserveOperation records one service call.
	ObserveOperation(op string, d time.Duration, err error)

	// RecordDedup records whether a stored block was already present.
	RecordDedup(hit bool)

	// RecordFinalize records a finalize attempt and how many blocks it
	// found missing.
	RecordFinalize(missing int)
}

type noopMetrics struct{}

func (noopMetrics) ObserveOperation(string, time.Duration, error) {}
func (noopMetrics) RecordDedup(bool)                              {}
func (noopMetrics) RecordFinalize(int)                            {}

// batchExister is implemented by stores that check many blocks in one
// concurrent round trip.
type batchExister interface {
	BlocksExist(ctx context.Context, vaultID string, sids []block.StorageID) ([]bool, error)
}

// Service coordinates a block store and a metadata index.
//
// Thread Safety: safe for concurrent use.
type Service struct {
	blocks  block.Store
	index   metadata.Index
	config  Config
	metrics Metrics

	vaultLocks keylock.Map // vault: exclusive for create/delete, shared for writes into it
	fileLocks  keylock.Map // vault/file
	blockLocks keylock.Map // vault/block id
}

// New creates a Service. A nil metrics disables instrumentation.
func New(blocks block.Store, index metadata.Index, config Config, metrics Metrics) *Service {
	if config.ScanBatchSize <= 0 {
		config.ScanBatchSize = 1000
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Service{
		blocks:  blocks,
		index:   index,
		config:  config,
		metrics: metrics,
	}
}

// Close closes both stores.
func (s *Service) Close() error {
	blockErr := s.blocks.Close()
	indexErr := s.index.Close()
	if blockErr != nil {
		return blockErr
	}
	return indexErr
}

// observe is deferred by every exported operation:
//
//	defer s.observe("finalize", time.Now(), &err)
func (s *Service) observe(op string, start time.Time, err *error) {
	s.metrics.ObserveOperation(op, time.Since(start), *err)
}

func fileKey(vaultID, fileID string) string {
	return vaultID + "/" + fileID
}

// missingBlocks returns the ids, in input order, that have no bytes in the
// block store. ids must be distinct.
func (s *Service) missingBlocks(ctx context.Context, vaultID string, ids []string) ([]string, error) {
	missing := []string{}

	var present []string
	var sids []block.StorageID
	for _, id := range ids {
		rec, err := s.index.LookupBlock(ctx, vaultID, id)
		if metadata.IsCode(err, metadata.ErrBlockNotFound) {
			missing = append(missing, id)
			continue
		}
		if err != nil {
			return nil, translate(err)
		}
		present = append(present, id)
		sids = append(sids, rec.StorageID)
	}
	if len(sids) == 0 {
		return missing, nil
	}

	exists, err := s.existAll(ctx, vaultID, sids)
	if err != nil {
		return nil, err
	}

	// Merge back into input order.
	gone := make(map[string]bool)
	for i, ok := range exists {
		if !ok {
			gone[present[i]] = true
		}
	}
	if len(gone) == 0 {
		return missing, nil
	}
	ordered := []string{}
	notIndexed := make(map[string]bool, len(missing))
	for _, id := range missing {
		notIndexed[id] = true
	}
	for _, id := range ids {
		if notIndexed[id] || gone[id] {
			ordered = append(ordered, id)
		}
	}
	return ordered, nil
}

func (s *Service) existAll(ctx context.Context, vaultID string, sids []block.StorageID) ([]bool, error) {
	if be, ok := s.blocks.(batchExister); ok {
		return be.BlocksExist(ctx, vaultID, sids)
	}

	exists := make([]bool, len(sids))
	for i, sid := range sids {
		ok, err := s.blocks.BlockExists(ctx, vaultID, sid)
		if err != nil {
			return nil, err
		}
		exists[i] = ok
	}
	return exists, nil
}
