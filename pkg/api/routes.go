package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/marmos91/dittovault/internal/logger"
	"github.com/marmos91/dittovault/internal/ratelimiter"
	"github.com/marmos91/dittovault/pkg/vault"
)

const (
	headerTransactionID = "transaction-id"
	headerNextBatch     = "x-next-batch"
	headerAuthToken     = "X-Auth-Token"
	headerBlockID       = "x-block-id"
	headerFileID        = "x-file-id"

	contentTypeJSON      = "application/json; charset=UTF-8"
	contentTypeBlockList = "application/x-deuce-block-list"
	contentTypeOctets    = "application/octet-stream"
)

type handler struct {
	svc    *vault.Service
	config Config

	// nil when rate limiting is off
	limits *ratelimiter.Keyed
}

// NewHandler returns the routed API handler.
func NewHandler(svc *vault.Service, config Config) http.Handler {
	config.ApplyDefaults()
	h := &handler{svc: svc, config: config}
	if rl := config.RateLimit; rl.RequestsPerSecond > 0 {
		h.limits = ratelimiter.NewKeyed(rl.RequestsPerSecond, rl.Burst)
	}
	return h.routes()
}

func (h *handler) routes() http.Handler {
	var routes = []struct {
		method  string
		route   string
		handler httprouter.Handle
	}{
		{"PUT", "/v1.0/:vault", h.createVault},
		{"HEAD", "/v1.0/:vault", h.headVault},
		{"GET", "/v1.0/:vault", h.vaultStatistics},
		{"DELETE", "/v1.0/:vault", h.deleteVault},

		{"GET", "/v1.0/:vault/blocks", h.listBlocks},
		{"POST", "/v1.0/:vault/blocks", h.storeBlocks},
		{"PUT", "/v1.0/:vault/blocks/:block", h.storeBlock},
		{"GET", "/v1.0/:vault/blocks/:block", h.getBlock},
		{"HEAD", "/v1.0/:vault/blocks/:block", h.headBlock},
		{"DELETE", "/v1.0/:vault/blocks/:block", h.deleteBlock},

		{"POST", "/v1.0/:vault/files", h.createFile},
		{"GET", "/v1.0/:vault/files", h.listFiles},
		{"GET", "/v1.0/:vault/files/:file", h.getFile},
		{"POST", "/v1.0/:vault/files/:file", h.assignOrFinalize},
		{"DELETE", "/v1.0/:vault/files/:file", h.deleteFile},
		{"GET", "/v1.0/:vault/files/:file/blocks", h.listFileBlocks},
	}

	r := httprouter.New()
	for _, route := range routes {
		r.Handle(route.method, route.route, logWrapper(h.throttle(route.handler)))
	}
	r.NotFound = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set(headerTransactionID, uuid.NewString())
		writeErrorStatus(w, http.StatusNotFound, "not found", req.URL.Path)
	})
	return r
}

// statusRecorder captures the status code for the access log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// logWrapper tags the response with a transaction id and logs the request.
func logWrapper(handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		txID := uuid.NewString()
		w.Header().Set(headerTransactionID, txID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		handler(rec, r, ps)

		logger.With(map[string]any{
			"transaction_id": txID,
			"status":         rec.status,
			"duration":       time.Since(start).String(),
			"auth":           r.Header.Get(headerAuthToken) != "",
		}).Debugf("%s %s", r.Method, r.URL)
	}
}

// throttle rejects requests once the addressed vault's bucket is empty.
func (h *handler) throttle(handler httprouter.Handle) httprouter.Handle {
	if h.limits == nil {
		return handler
	}
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		if !h.limits.Allow(ps.ByName("vault")) {
			w.Header().Set("Retry-After", "1")
			writeErrorStatus(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests),
				"request rate exceeded for vault "+ps.ByName("vault"))
			return
		}
		handler(w, r, ps)
	}
}
