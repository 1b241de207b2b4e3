package coordinator

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/keymq/keymq/internal/metrics"
	"github.com/keymq/keymq/internal/model"
	"github.com/keymq/keymq/internal/ring"
)

// Handlers serves the coordinator HTTP surface.
type Handlers struct {
	service *Service
	logger  *zap.Logger
	metrics *metrics.CoordinatorMetrics
}

// NewHandlers creates handlers over the router service.
func NewHandlers(service *Service, m *metrics.CoordinatorMetrics, logger *zap.Logger) *Handlers {
	return &Handlers{service: service, logger: logger, metrics: m}
}

// HandleProduce handles POST /produce.
func (h *Handlers) HandleProduce(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req ProduceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body", "", "produce", "bad_request")
		return
	}
	if req.Key == "" || len(req.Payload) == 0 {
		h.writeError(w, http.StatusBadRequest, "key and payload are required", req.Key, "produce", "bad_request")
		return
	}

	resp, err := h.service.Produce(r.Context(), req.Key, req.Payload)
	if err != nil {
		var unreachable *PrimaryUnreachableError
		switch {
		case errors.Is(err, ring.ErrEmptyRing):
			h.writeError(w, http.StatusInternalServerError, err.Error(), req.Key, "produce", "empty_ring")
		case errors.As(err, &unreachable):
			h.writeError(w, http.StatusServiceUnavailable, err.Error(), req.Key, "produce", "primary_unreachable")
		default:
			h.writeError(w, http.StatusInternalServerError, err.Error(), req.Key, "produce", "internal")
		}
		return
	}

	h.observe("produce", start)
	h.writeJSON(w, http.StatusCreated, resp)
}

// HandleConsume handles GET /consume/{key}.
func (h *Handlers) HandleConsume(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	key := mux.Vars(r)["key"]

	resp, err := h.service.Consume(r.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, ring.ErrEmptyRing):
			h.writeError(w, http.StatusInternalServerError, err.Error(), key, "consume", "empty_ring")
		case errors.Is(err, ErrNotFound):
			h.writeError(w, http.StatusNotFound, "key not found on any node", key, "consume", "not_found")
		default:
			h.writeError(w, http.StatusInternalServerError, err.Error(), key, "consume", "internal")
		}
		return
	}

	h.observe("consume", start)
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleRing handles GET /ring.
func (h *Handlers) HandleRing(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.RingInfo())
}

// HandleRoute handles GET /route/{key}.
func (h *Handlers) HandleRoute(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	resp, err := h.service.RouteInfo(key)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error(), key, "route", "empty_ring")
		return
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// HandleNodeHealth handles GET /health/nodes.
func (h *Handlers) HandleNodeHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.NodeHealth())
}

// HandleFailoverStatus handles GET /failover/status.
func (h *Handlers) HandleFailoverStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.FailoverStatus())
}

// HandleHealth handles GET /health: the coordinator's own liveness.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Service:   "coordinator",
		Timestamp: time.Now().UTC(),
	})
}

func (h *Handlers) observe(operation string, start time.Time) {
	if h.metrics == nil {
		return
	}
	h.metrics.RequestsTotal.WithLabelValues(operation).Inc()
	h.metrics.RequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (h *Handlers) writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, statusCode int, message, key, operation, errorType string) {
	if h.metrics != nil {
		h.metrics.RequestErrors.WithLabelValues(operation, errorType).Inc()
	}
	h.writeJSON(w, statusCode, model.ErrorResponse{Error: message, Key: key})
}
