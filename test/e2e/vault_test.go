package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/marmos91/dittovault/pkg/store/block"
)

func TestFileSurvivesRestart(t *testing.T) {
	stack := NewStack(t)
	base := stack.URL("photos")

	Expect(t, Do(t, http.MethodPut, base, "", nil), http.StatusCreated)

	chunks := [][]byte{
		bytes.Repeat([]byte("a"), 4096),
		bytes.Repeat([]byte("b"), 1000),
		[]byte("tail"),
	}
	for _, c := range chunks {
		Expect(t, Do(t, http.MethodPut, base+"/blocks/"+block.ComputeBlockID(c), "application/octet-stream", c), http.StatusCreated)
	}

	resp := Do(t, http.MethodPost, base+"/files", "", nil)
	Expect(t, resp, http.StatusCreated)
	fileURL := stack.server.URL + resp.Header.Get("Location")

	resp = Do(t, http.MethodPost, fileURL, blockListType, BlockList(t, chunks...))
	Expect(t, resp, http.StatusOK)
	var missing []string
	if err := json.Unmarshal(resp.Body, &missing); err != nil || len(missing) != 0 {
		t.Fatalf("Expected no missing blocks, got %s", resp.Body)
	}
	Expect(t, Do(t, http.MethodPost, fileURL, "", nil), http.StatusOK)

	stack.Restart()

	resp = Do(t, http.MethodGet, fileURL, "", nil)
	Expect(t, resp, http.StatusOK)
	if want := bytes.Join(chunks, nil); !bytes.Equal(resp.Body, want) {
		t.Fatalf("Expected %d bytes after restart, got %d", len(want), len(resp.Body))
	}

	resp = Do(t, http.MethodGet, base, "", nil)
	Expect(t, resp, http.StatusOK)
	var stats struct {
		Files  int64 `json:"file-count"`
		Blocks int64 `json:"block-count"`
	}
	if err := json.Unmarshal(resp.Body, &stats); err != nil {
		t.Fatalf("Failed to decode statistics: %v", err)
	}
	if stats.Files != 1 || stats.Blocks != 3 {
		t.Errorf("Expected 1 file and 3 blocks, got %+v", stats)
	}
}

func TestListingPagesAcrossRestart(t *testing.T) {
	stack := NewStack(t)
	base := stack.URL("v1")
	Expect(t, Do(t, http.MethodPut, base, "", nil), http.StatusCreated)

	want := make(map[string]bool)
	for i := 0; i < 5; i++ {
		data := []byte(fmt.Sprintf("block-%d", i))
		id := block.ComputeBlockID(data)
		want[id] = true
		Expect(t, Do(t, http.MethodPut, base+"/blocks/"+id, "application/octet-stream", data), http.StatusCreated)
	}

	stack.Restart()

	got := make(map[string]bool)
	next := base + "/blocks"
	pages := 0
	for next != "" {
		resp := Do(t, http.MethodGet, next, "", nil)
		Expect(t, resp, http.StatusOK)
		var ids []string
		if err := json.Unmarshal(resp.Body, &ids); err != nil {
			t.Fatalf("Failed to decode page: %v", err)
		}
		for _, id := range ids {
			got[id] = true
		}
		next = resp.Header.Get("x-next-batch")
		pages++
		if pages > 5 {
			t.Fatal("listing did not terminate")
		}
	}

	if len(got) != len(want) {
		t.Fatalf("Expected %d blocks, got %d", len(want), len(got))
	}
	for id := range want {
		if !got[id] {
			t.Errorf("Block %s missing from listing", id)
		}
	}
}

func TestDeleteVaultAfterRestart(t *testing.T) {
	stack := NewStack(t)
	base := stack.URL("scratch")
	Expect(t, Do(t, http.MethodPut, base, "", nil), http.StatusCreated)

	data := []byte("only block")
	id := block.ComputeBlockID(data)
	Expect(t, Do(t, http.MethodPut, base+"/blocks/"+id, "application/octet-stream", data), http.StatusCreated)

	stack.Restart()

	Expect(t, Do(t, http.MethodDelete, base, "", nil), http.StatusConflict)
	Expect(t, Do(t, http.MethodDelete, base+"/blocks/"+id, "", nil), http.StatusNoContent)
	Expect(t, Do(t, http.MethodDelete, base, "", nil), http.StatusNoContent)

	stack.Restart()

	Expect(t, Do(t, http.MethodHead, base, "", nil), http.StatusNotFound)
}
