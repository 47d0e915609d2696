package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/application/ports"
	appsync "github.com/janaghoniem/Distributed-Mind-Mapping-Tool/application/sync"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/clock"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/domain/mindmap"
	"github.com/janaghoniem/Distributed-Mind-Mapping-Tool/pkg/auth"
)

// OperationHandler serves the HTTP write path: operation submission for
// clients without a WebSocket session, and the admin rollback endpoint.
// Accepted mutations are fanned out to the map's live sessions exactly
// as WebSocket-submitted ones are.
type OperationHandler struct {
	engine      *appsync.MergeEngine
	rollback    *appsync.RollbackEngine
	broadcaster ports.Broadcaster
	validate    *validator.Validate
	logger      *zap.Logger
}

// NewOperationHandler creates an operation handler.
func NewOperationHandler(engine *appsync.MergeEngine, rollback *appsync.RollbackEngine, broadcaster ports.Broadcaster, logger *zap.Logger) *OperationHandler {
	return &OperationHandler{
		engine:      engine,
		rollback:    rollback,
		broadcaster: broadcaster,
		validate:    validator.New(),
		logger:      logger,
	}
}

// SubmitOperationRequest is the body of POST /operations. The client ID
// comes from the authenticated session, not the body.
type SubmitOperationRequest struct {
	OperationID string               `json:"operationId,omitempty"`
	MapID       string               `json:"mapId" validate:"required"`
	Type        string               `json:"type" validate:"required"`
	Clock       clock.Clock          `json:"clock" validate:"required"`
	Node        *mindmap.NodePayload `json:"node,omitempty"`
	Edge        *mindmap.EdgePayload `json:"edge,omitempty"`
}

// SubmitOperation handles POST /operations.
func (h *OperationHandler) SubmitOperation(w http.ResponseWriter, r *http.Request) {
	var req SubmitOperationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondError(w, http.StatusBadRequest, "validation error: "+err.Error())
		return
	}
	session, err := auth.SessionFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	op := &mindmap.Operation{
		ID:       req.OperationID,
		Type:     mindmap.OperationType(req.Type),
		MapID:    req.MapID,
		ClientID: session.ClientID,
		Clock:    req.Clock,
		Node:     req.Node,
		Edge:     req.Edge,
	}

	res, err := h.engine.Merge(r.Context(), op)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	if !res.Accepted {
		// Typed rejections are part of the protocol, not errors.
		respondJSON(w, http.StatusConflict, res)
		return
	}

	h.broadcaster.BroadcastOperation(op.MapID, op.ClientID, ports.OutboundEvent{
		Type:        ports.EventOperationApplied,
		MapID:       op.MapID,
		Seq:         res.Seq,
		OperationID: op.ID,
		OpType:      op.Type,
		ClientID:    op.ClientID,
		MergedClock: res.MergedClock,
		Node:        res.Node,
		Edge:        res.Edge,
	})
	respondJSON(w, http.StatusOK, res)
}

// RollbackOperation handles POST /operations/{operationID}/rollback.
func (h *OperationHandler) RollbackOperation(w http.ResponseWriter, r *http.Request) {
	session, err := auth.SessionFromContext(r.Context())
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	operationID := chi.URLParam(r, "operationID")

	res, err := h.rollback.Rollback(r.Context(), operationID)
	if err != nil {
		respondAppError(w, h.logger, err)
		return
	}
	if !res.Success {
		status := http.StatusConflict
		if res.Reason == mindmap.ReasonNotFound {
			status = http.StatusNotFound
		}
		respondJSON(w, status, res)
		return
	}

	h.broadcaster.BroadcastOperation(res.Record.MapID, session.ClientID, ports.OutboundEvent{
		Type:        ports.EventOperationRolledBack,
		MapID:       res.Record.MapID,
		Seq:         res.Record.Seq,
		OperationID: res.Record.ID,
		OpType:      res.Record.Type,
		ClientID:    session.ClientID,
	})
	respondJSON(w, http.StatusOK, res)
}
