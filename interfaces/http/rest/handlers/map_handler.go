package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	appsync "github.com/janaghoniem/Distributed-Mind-Mapping-Tool/application/sync"
)

// MapHandler serves map lifecycle and read-side endpoints: creation,
// snapshots for joining sessions, catch-up replay, history and the
// conflict audit view.
type MapHandler struct {
	service  *appsync.SyncService
	validate *validator.Validate
	logger   *zap.Logger
}

// NewMapHandler creates a map handler.
func NewMapHandler(service *appsync.SyncService, logger *zap.Logger) *MapHandler {
	return &MapHandler{service: service, validate: validator.New(), logger: logger}
}

// CreateMapRequest is the body of POST /maps.
type CreateMapRequest struct {
	ID   string `json:"id,omitempty" validate:"omitempty,max=128"`
	Name string `json:"name" validate:"required,min=1,max=200"`
}

// CreateMap handles POST /maps.
func (h *MapHandler) CreateMap(w http.ResponseWriter, r *http.Request) {
	var req CreateMapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation error: "+err.Error())
		return
	}

	m, err := h.service.CreateMap(r.Context(), req.ID, req.Name)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusCreated, m)
}

// GetMap handles GET /maps/{mapID}.
func (h *MapHandler) GetMap(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.GetMap(r.Context(), chi.URLParam(r, "mapID"))
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// GetSnapshot handles GET /maps/{mapID}/snapshot.
func (h *MapHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context(), chi.URLParam(r, "mapID"))
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// GetOperations handles GET /maps/{mapID}/operations?since=N, the
// incremental catch-up feed.
func (h *MapHandler) GetOperations(w http.ResponseWriter, r *http.Request) {
	since, err := queryInt64(r, "since", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid since parameter")
		return
	}

	recs, err := h.service.OperationsSince(r.Context(), chi.URLParam(r, "mapID"), since)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"operations": recs})
}

// GetHistory handles GET /maps/{mapID}/history?limit=N&before=N.
func (h *MapHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt64(r, "limit", 50)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid limit parameter")
		return
	}
	before, err := queryInt64(r, "before", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid before parameter")
		return
	}

	recs, err := h.service.History(r.Context(), chi.URLParam(r, "mapID"), int(limit), before)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"operations": recs})
}

// GetConflicts handles GET /maps/{mapID}/conflicts.
func (h *MapHandler) GetConflicts(w http.ResponseWriter, r *http.Request) {
	recs, err := h.service.Conflicts(r.Context(), chi.URLParam(r, "mapID"))
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"conflicts": recs})
}

// GetOperation handles GET /operations/{operationID}.
func (h *MapHandler) GetOperation(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Operation(r.Context(), chi.URLParam(r, "operationID"))
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

func queryInt64(r *http.Request, key string, def int64) (int64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
