package config

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	blockFs "github.com/marmos91/dittovault/pkg/store/block/fs"
	blockMemory "github.com/marmos91/dittovault/pkg/store/block/memory"
	"github.com/marmos91/dittovault/pkg/store/metadata/badger"
	metaMemory "github.com/marmos91/dittovault/pkg/store/metadata/memory"
)

func TestCreateBlockStore_Filesystem(t *testing.T) {
	ctx := context.Background()
	cfg := &BlocksConfig{
		Type:       "filesystem",
		Filesystem: map[string]any{"path": filepath.Join(t.TempDir(), "blocks")},
	}

	store, err := CreateBlockStore(ctx, cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create filesystem block store: %v", err)
	}
	defer func() { _ = store.Close() }()

	if _, ok := store.(*blockFs.FSBlockStore); !ok {
		t.Errorf("Expected *fs.FSBlockStore, got %T", store)
	}
}

func TestCreateBlockStore_FilesystemMissingPath(t *testing.T) {
	cfg := &BlocksConfig{Type: "filesystem", Filesystem: map[string]any{}}

	_, err := CreateBlockStore(context.Background(), cfg, nil)
	if err == nil {
		t.Fatal("Expected error for missing path")
	}
	if !strings.Contains(err.Error(), "path is required") {
		t.Errorf("Expected 'path is required' error, got: %v", err)
	}
}

func TestCreateBlockStore_Memory(t *testing.T) {
	store, err := CreateBlockStore(context.Background(), &BlocksConfig{Type: "memory"}, nil)
	if err != nil {
		t.Fatalf("Failed to create memory block store: %v", err)
	}
	defer func() { _ = store.Close() }()

	if _, ok := store.(*blockMemory.MemoryBlockStore); !ok {
		t.Errorf("Expected *memory.MemoryBlockStore, got %T", store)
	}
}

func TestCreateBlockStore_S3MissingBucket(t *testing.T) {
	cfg := &BlocksConfig{Type: "s3", S3: map[string]any{"region": "us-east-1"}}

	_, err := CreateBlockStore(context.Background(), cfg, nil)
	if err == nil || !strings.Contains(err.Error(), "bucket is required") {
		t.Errorf("Expected 'bucket is required' error, got: %v", err)
	}
}

func TestCreateBlockStore_UnknownType(t *testing.T) {
	_, err := CreateBlockStore(context.Background(), &BlocksConfig{Type: "tape"}, nil)
	if err == nil || !strings.Contains(err.Error(), "unknown block store type") {
		t.Errorf("Expected unknown type error, got: %v", err)
	}
}

func TestDecodeOptions_S3(t *testing.T) {
	var opts S3Options
	err := decodeOptions(map[string]any{
		"region":          "eu-west-1",
		"bucket":          "vaults",
		"endpoint":        "http://localhost:4566",
		"max_attempts":    "3",
		"integrity":       false,
		"request_timeout": "15s",
	}, &opts)
	if err != nil {
		t.Fatalf("Failed to decode options: %v", err)
	}

	if opts.Region != "eu-west-1" || opts.Bucket != "vaults" {
		t.Errorf("Unexpected region/bucket: %q/%q", opts.Region, opts.Bucket)
	}
	if opts.MaxAttempts != 3 {
		t.Errorf("Expected max_attempts 3 from a string, got %d", opts.MaxAttempts)
	}
	if opts.Integrity == nil || *opts.Integrity {
		t.Errorf("Expected integrity explicitly false, got %v", opts.Integrity)
	}
	if opts.RequestTimeout != 15*time.Second {
		t.Errorf("Expected request_timeout 15s, got %v", opts.RequestTimeout)
	}
}

func TestCreateMetadataIndex_Memory(t *testing.T) {
	index, err := CreateMetadataIndex(context.Background(), &MetadataConfig{Type: "memory"})
	if err != nil {
		t.Fatalf("Failed to create memory index: %v", err)
	}
	defer func() { _ = index.Close() }()

	if _, ok := index.(*metaMemory.MemoryIndex); !ok {
		t.Errorf("Expected *memory.MemoryIndex, got %T", index)
	}
}

func TestCreateMetadataIndex_Badger(t *testing.T) {
	cfg := &MetadataConfig{
		Type:   "badger",
		Badger: map[string]any{"db_path": filepath.Join(t.TempDir(), "index")},
	}

	index, err := CreateMetadataIndex(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create badger index: %v", err)
	}
	defer func() { _ = index.Close() }()

	if _, ok := index.(*badger.BadgerIndex); !ok {
		t.Errorf("Expected *badger.BadgerIndex, got %T", index)
	}
}

func TestCreateMetadataIndex_BadgerMissingPath(t *testing.T) {
	cfg := &MetadataConfig{Type: "badger", Badger: map[string]any{}}

	_, err := CreateMetadataIndex(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "db_path is required") {
		t.Errorf("Expected 'db_path is required' error, got: %v", err)
	}
}

func TestCreateMetadataIndex_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := CreateMetadataIndex(ctx, &MetadataConfig{Type: "memory"}); err == nil {
		t.Error("Expected error with cancelled context")
	}
}

func TestInitializeMetrics_Disabled(t *testing.T) {
	cfg := GetDefaultConfig()
	result := InitializeMetrics(cfg)

	if result.Server != nil || result.S3 != nil || result.Vault != nil {
		t.Errorf("Expected no metrics components when disabled, got %+v", result)
	}
}
