package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/pkg/pagination"
	"github.com/marmos91/dittovault/pkg/vault"
)

// errorBody is the JSON body of every error response.
type errorBody struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Missing     []string `json:"missing,omitempty"`
}

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, vault.ErrMissingBlocks), errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, vault.ErrVaultNotFound),
		errors.Is(err, vault.ErrFileNotFound),
		errors.Is(err, vault.ErrBlockNotFound):
		return http.StatusNotFound
	case errors.Is(err, vault.ErrVaultNotEmpty),
		errors.Is(err, vault.ErrFileNotFinalized):
		return http.StatusConflict
	case errors.Is(err, vault.ErrInvalidBlockID),
		errors.Is(err, vault.ErrInvalidArgument),
		errors.Is(err, vault.ErrFileAlreadyFinalized),
		errors.Is(err, pagination.ErrInvalidLimit):
		return http.StatusBadRequest
	case errors.Is(err, vault.ErrBackendCommunication):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= 500 {
		logger.Error("Request failed: %v", err)
	}

	body := errorBody{Title: http.StatusText(status), Description: err.Error()}
	var mbe *vault.MissingBlocksError
	if errors.As(err, &mbe) {
		body.Missing = mbe.BlockIDs
	}
	writeJSON(w, status, body)
}

func writeErrorStatus(w http.ResponseWriter, status int, title, description string) {
	writeJSON(w, status, errorBody{Title: title, Description: description})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("Writing response body: %v", err)
	}
}
