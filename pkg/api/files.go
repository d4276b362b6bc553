package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"

	"github.com/julienschmidt/httprouter"
	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/pkg/store/metadata"
	"github.com/marmos91/dittovault/pkg/vault"
)

// assignRequest is the body of an assignment POST.
type assignRequest struct {
	Blocks []metadata.Assignment `json:"blocks"`
}

func (h *handler) createFile(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	f, err := h.svc.CreateFile(r.Context(), ps.ByName("vault"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Location", path.Join(r.URL.Path, f.ID))
	w.Header().Set(headerFileID, f.ID)
	w.WriteHeader(http.StatusCreated)
}

func (h *handler) listFiles(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	req, err := h.pageRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := h.svc.ListFiles(r.Context(), ps.ByName("vault"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, page)
}

func (h *handler) getFile(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rc, err := h.svc.OpenFile(r.Context(), ps.ByName("vault"), ps.ByName("file"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentTypeOctets)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		// Headers are gone; the client sees a truncated body.
		logger.Warn("Streaming file %s: %v", ps.ByName("file"), err)
	}
}

// assignOrFinalize assigns the block list in the body, or finalizes the
// file when the body carries no block list.
func (h *handler) assignOrFinalize(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	vaultID, fileID := ps.ByName("vault"), ps.ByName("file")

	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.MaxBulkSize))
	if err != nil {
		writeError(w, err)
		return
	}

	var body assignRequest
	if len(bytes.TrimSpace(raw)) > 0 {
		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if mediaType != contentTypeBlockList {
			writeError(w, fmt.Errorf("content type %q, want %s: %w", mediaType, contentTypeBlockList, vault.ErrInvalidArgument))
			return
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			writeError(w, fmt.Errorf("decode block list: %v: %w", err, vault.ErrInvalidArgument))
			return
		}
	}

	if body.Blocks == nil {
		if err := h.svc.Finalize(r.Context(), vaultID, fileID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	missing, err := h.svc.AssignBlocks(r.Context(), vaultID, fileID, body.Blocks)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, missing)
}

func (h *handler) deleteFile(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.svc.DeleteFile(r.Context(), ps.ByName("vault"), ps.ByName("file")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) listFileBlocks(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	req, err := h.pageRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := h.svc.ListFileBlocks(r.Context(), ps.ByName("vault"), ps.ByName("file"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, page)
}
