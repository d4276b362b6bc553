package e2e

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/marmos91/dittovault/pkg/store/block"
)

const blockListType = "application/x-deuce-block-list"

// Response is a fully read HTTP response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Do sends a request and reads the whole body.
func Do(t *testing.T, method, url, contentType string, body []byte) Response {
	t.Helper()
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to build %s %s: %v", method, url, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read %s %s: %v", method, url, err)
	}
	return Response{Status: resp.StatusCode, Header: resp.Header, Body: data}
}

// Expect fails the test unless resp has the wanted status.
func Expect(t *testing.T, resp Response, want int) {
	t.Helper()
	if resp.Status != want {
		t.Fatalf("Expected status %d, got %d: %s", want, resp.Status, resp.Body)
	}
}

// BlockList lays chunks out back to back and encodes the assignments as a
// file block list body.
func BlockList(t *testing.T, chunks ...[]byte) []byte {
	t.Helper()
	entries := make([]map[string]any, len(chunks))
	var offset int64
	for i, c := range chunks {
		entries[i] = map[string]any{"id": block.ComputeBlockID(c), "offset": offset, "size": len(c)}
		offset += int64(len(c))
	}
	data, err := json.Marshal(map[string]any{"blocks": entries})
	if err != nil {
		t.Fatalf("Failed to encode block list: %v", err)
	}
	return data
}
