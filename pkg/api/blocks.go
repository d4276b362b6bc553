package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"
	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/pkg/store/block"
	"github.com/marmos91/dittovault/pkg/vault"
)

// bulkRequest is the body of a bulk upload. Data is base64 in JSON.
type bulkRequest struct {
	Blocks []struct {
		ID   string `json:"id"`
		Data []byte `json:"data"`
	} `json:"blocks"`
}

// bulkResponse reports which blocks were stored.
type bulkResponse struct {
	Stored  []string `json:"stored"`
	Missing []string `json:"missing"`
}

func (h *handler) listBlocks(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	req, err := h.pageRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}
	page, err := h.svc.ListVaultBlocks(r.Context(), ps.ByName("vault"), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writePage(w, r, page)
}

func (h *handler) storeBlock(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.config.MaxBlockSize))
	if err != nil {
		writeError(w, err)
		return
	}

	rec, err := h.svc.StoreBlock(r.Context(), ps.ByName("vault"), ps.ByName("block"), data)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set(headerBlockID, rec.BlockID)
	w.WriteHeader(http.StatusCreated)
}

func (h *handler) storeBlocks(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var body bulkRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.config.MaxBulkSize)).Decode(&body); err != nil {
		writeError(w, fmt.Errorf("decode bulk upload: %v: %w", err, vault.ErrInvalidArgument))
		return
	}

	ids := make([]string, len(body.Blocks))
	blocks := make([][]byte, len(body.Blocks))
	for i, b := range body.Blocks {
		ids[i] = b.ID
		blocks[i] = b.Data
	}

	res, err := h.svc.StoreBlocks(r.Context(), ps.ByName("vault"), ids, blocks)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := bulkResponse{Stored: []string{}, Missing: res.Missing(ids)}
	for _, rec := range res.Records {
		if rec != nil {
			resp.Stored = append(resp.Stored, rec.BlockID)
		}
	}
	if res.Status != block.StatusCreated {
		logger.Warn("Bulk upload to vault %s stored %d of %d blocks", ps.ByName("vault"), len(resp.Stored), len(ids))
	}
	writeJSON(w, int(res.Status), resp)
}

func (h *handler) getBlock(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	rc, size, err := h.svc.GetBlock(r.Context(), ps.ByName("vault"), ps.ByName("block"))
	if err != nil {
		writeError(w, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", contentTypeOctets)
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		logger.Warn("Streaming block %s: %v", ps.ByName("block"), err)
	}
}

func (h *handler) headBlock(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ok, err := h.svc.BlockExists(r.Context(), ps.ByName("vault"), ps.ByName("block"))
	switch {
	case err != nil:
		w.WriteHeader(statusFor(err))
	case !ok:
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *handler) deleteBlock(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.svc.DeleteBlock(r.Context(), ps.ByName("vault"), ps.ByName("block")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
