package api

import (
	"net/http"
	"net/url"

	"github.com/julienschmidt/httprouter"
	"github.com/marmos91/dittovault/pkg/pagination"
)

func (h *handler) createVault(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.svc.CreateVault(r.Context(), ps.ByName("vault")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (h *handler) headVault(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	ok, err := h.svc.VaultExists(r.Context(), ps.ByName("vault"))
	switch {
	case err != nil:
		w.WriteHeader(statusFor(err))
	case !ok:
		w.WriteHeader(http.StatusNotFound)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *handler) vaultStatistics(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	stats, err := h.svc.VaultStatistics(r.Context(), ps.ByName("vault"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) deleteVault(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	if err := h.svc.DeleteVault(r.Context(), ps.ByName("vault")); err != nil {
		writeError(w, err)
		return
	}
	if h.limits != nil {
		h.limits.Forget(ps.ByName("vault"))
	}
	w.WriteHeader(http.StatusNoContent)
}

// pageRequest reads the limit and marker query parameters.
func (h *handler) pageRequest(r *http.Request) (pagination.Request, error) {
	q := r.URL.Query()
	return pagination.ParseRequest(q.Get("limit"), q.Get("marker"), h.config.DefaultPageSize, h.config.MaxPageSize)
}

// writePage writes the page items and, when more remain, the continuation
// URL in the x-next-batch header.
func writePage[T any](w http.ResponseWriter, r *http.Request, page *pagination.Page[T]) {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	base := &url.URL{Scheme: scheme, Host: r.Host, Path: r.URL.Path, RawQuery: r.URL.RawQuery}
	if next := page.NextURL(base); next != "" {
		w.Header().Set(headerNextBatch, next)
	}
	writeJSON(w, http.StatusOK, page.Items)
}
