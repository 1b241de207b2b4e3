package broker

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/keymq/keymq/internal/model"
)

// Handlers serves the broker HTTP surface.
type Handlers struct {
	store  *Store
	logger *zap.Logger
}

// NewHandlers creates broker handlers over store.
func NewHandlers(store *Store, logger *zap.Logger) *Handlers {
	return &Handlers{store: store, logger: logger}
}

// HandleStore handles POST /store: the primary-path write.
func (h *Handlers) HandleStore(w http.ResponseWriter, r *http.Request) {
	var req model.StoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}
	// An absent payload and an explicit JSON null both count as missing.
	if req.Key == "" || len(req.Payload) == 0 || string(req.Payload) == "null" {
		h.writeError(w, http.StatusBadRequest, "key and payload are required", req.Key)
		return
	}

	results := h.store.StorePrimary(r.Context(), req.Key, req.Payload, req.ReplicateTo)

	replicatedTo := make([]string, 0, len(results))
	for _, res := range results {
		if res.Status == model.ReplicationSuccess {
			replicatedTo = append(replicatedTo, res.Node)
		}
	}

	h.writeJSON(w, http.StatusCreated, model.StoreResponse{
		Success:            true,
		Node:               h.store.Node(),
		Role:               model.RolePrimary,
		Key:                req.Key,
		ReplicatedTo:       replicatedTo,
		ReplicationResults: results,
	})
}

// HandleReplicate handles POST /replicate: the replica-path write.
func (h *Handlers) HandleReplicate(w http.ResponseWriter, r *http.Request) {
	var req model.ReplicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body", "")
		return
	}
	if req.Key == "" || len(req.Payload) == 0 {
		h.writeError(w, http.StatusBadRequest, "key and payload are required", req.Key)
		return
	}

	h.store.StoreReplica(req.Key, req.Payload, req.PrimaryNode)

	h.writeJSON(w, http.StatusCreated, model.ReplicateResponse{
		Success: true,
		Node:    h.store.Node(),
		Role:    model.RoleReplica,
		Key:     req.Key,
	})
}

// HandleFetch handles GET /fetch/{key}.
func (h *Handlers) HandleFetch(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]

	entry, ok := h.store.Fetch(key)
	if !ok {
		h.writeError(w, http.StatusNotFound, "key not found", key)
		return
	}

	h.writeJSON(w, http.StatusOK, model.FetchResponse{
		Success:   true,
		Node:      h.store.Node(),
		Key:       key,
		Payload:   entry.Payload,
		Timestamp: entry.Timestamp,
		Role:      entry.Role,
		ReplicaOf: entry.ReplicaOf,
	})
}

// HandleHealth handles GET /health: the liveness probe.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, model.BrokerHealthResponse{
		Status:       "healthy",
		Node:         h.store.Node(),
		MessageCount: h.store.Count(),
		Timestamp:    time.Now().UTC(),
	})
}

// HandleMessages handles GET /messages: a full dump for inspection.
func (h *Handlers) HandleMessages(w http.ResponseWriter, r *http.Request) {
	messages := h.store.Snapshot()
	h.writeJSON(w, http.StatusOK, model.MessagesResponse{
		Node:         h.store.Node(),
		MessageCount: len(messages),
		Messages:     messages,
	})
}

// HandleLog handles GET /log: the classified audit log.
func (h *Handlers) HandleLog(w http.ResponseWriter, r *http.Request) {
	audit := h.store.Audit()
	h.writeJSON(w, http.StatusOK, model.AuditLogResponse{
		Node:            h.store.Node(),
		Summary:         audit.Summary(),
		StoredAsPrimary: audit.ByKind(model.AuditStoredAsPrimary),
		StoredAsReplica: audit.ByKind(model.AuditStoredAsReplica),
	})
}

// HandlePromote handles POST /promote.
func (h *Handlers) HandlePromote(w http.ResponseWriter, r *http.Request) {
	message := h.store.Promote()
	h.writeJSON(w, http.StatusOK, model.PromoteResponse{
		Success: true,
		Node:    h.store.Node(),
		Message: message,
	})
}

func (h *Handlers) writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (h *Handlers) writeError(w http.ResponseWriter, statusCode int, message, key string) {
	h.writeJSON(w, statusCode, model.ErrorResponse{Error: message, Key: key})
}
