package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/hazyhaar/ncov-pipeline/pkg/kit"
	"github.com/hazyhaar/ncov-pipeline/pkg/ledger"
	"github.com/hazyhaar/ncov-pipeline/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter returns an http.Handler with all read-only summary routes. When m
// is non-nil its registry is served on /metrics.
func NewRouter(q ledger.Querier, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	h := &handler{
		ep: NewEndpoints(q, func(name string) kit.Middleware { return kit.Logging(logger, name) }),
		q:  q,
	}

	mux.HandleFunc("GET /v1/entities", h.handleEntities)
	mux.HandleFunc("GET /v1/summary/{entity...}", h.handleSummary)
	mux.HandleFunc("GET /v1/threshold/{entity...}", h.handleThreshold)
	mux.HandleFunc("GET /v1/ledger", h.handleLedger)
	mux.HandleFunc("GET /v1/health", h.handleHealth)
	if m != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
	}

	return requestID(cors(mux))
}

type handler struct {
	ep *Endpoints
	q  ledger.Querier
}

// --- entities ---

func (h *handler) handleEntities(w http.ResponseWriter, r *http.Request) {
	resp, err := h.ep.Entities(r.Context(), nil)
	if err != nil {
		writeEndpointError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- summary ---

func (h *handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	entity := r.PathValue("entity")
	if entity == "" {
		writeError(w, http.StatusBadRequest, "missing entity")
		return
	}
	resp, err := h.ep.Summary(r.Context(), &summaryReq{Entity: entity})
	if err != nil {
		writeEndpointError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- threshold ---

func (h *handler) handleThreshold(w http.ResponseWriter, r *http.Request) {
	entity := r.PathValue("entity")
	if entity == "" {
		writeError(w, http.StatusBadRequest, "missing entity")
		return
	}
	req := &thresholdReq{Entity: entity, Metric: r.URL.Query().Get("metric"), Threshold: 100}
	if v := r.URL.Query().Get("threshold"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "threshold must be a non-negative integer")
			return
		}
		req.Threshold = n
	}
	resp, err := h.ep.Threshold(r.Context(), req)
	if err != nil {
		writeEndpointError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- ledger ---

func (h *handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	resp, err := h.ep.Ledger(r.Context(), &ledgerReq{Source: r.URL.Query().Get("source")})
	if err != nil {
		writeEndpointError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- health ---

type healthResponse struct {
	Status   string `json:"status"`
	Entities int    `json:"entities"`
}

func (h *handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	var n int
	if err := h.q.QueryRowContext(r.Context(), `SELECT COUNT(DISTINCT entity) FROM daily_summary`).Scan(&n); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "no summary"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Entities: n})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeEndpointError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case errors.Is(err, errInvalid):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

// requestID tags each request context with an ID, reusing X-Request-ID when
// the client sent one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := kit.WithRequestID(kit.WithTransport(r.Context(), "http"), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// cors is a simple CORS middleware for browser-based clients.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
