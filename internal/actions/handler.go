package actions

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bizpilot/bizpilot/internal/api"
	"github.com/bizpilot/bizpilot/internal/identity"
	"github.com/go-chi/chi/v5"
)

// Handler exposes the confirmation endpoint for pending actions.
type Handler struct {
	executor *Executor
}

// NewHandler creates an action handler.
func NewHandler(executor *Executor) *Handler {
	return &Handler{executor: executor}
}

// RegisterRoutes registers action routes (requires identity middleware).
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/actions", func(r chi.Router) {
		r.MethodNotAllowed(api.MethodNotAllowed)
		r.Get("/pending", h.HandlePending)
		r.Post("/{actionID}/confirm", h.HandleConfirm)
	})
}

type confirmRequest struct {
	Approved bool `json:"approved"`
}

// HandleConfirm handles POST /actions/{actionID}/confirm.
func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	actionID := chi.URLParam(r, "actionID")
	if actionID == "" {
		api.ValidationError(w, map[string]string{"actionID": "action id is required"})
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.executor.ConfirmAction(r.Context(), actionID, userID, req.Approved)
	if err != nil {
		if errors.Is(err, ErrPendingNotFound) {
			api.Error(w, http.StatusNotFound, "pending action not found")
			return
		}
		slog.Error("action confirmation failed",
			"action_id", actionID,
			"user_id", userID,
			"error", err,
		)
		api.Error(w, http.StatusInternalServerError, "action execution failed")
		return
	}

	slog.Info("action confirmation resolved",
		"action_id", actionID,
		"user_id", userID,
		"approved", req.Approved,
		"success", result.Success,
	)
	api.JSON(w, http.StatusOK, result)
}

// HandlePending handles GET /actions/pending, listing the caller's
// unconfirmed actions.
func (h *Handler) HandlePending(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	pending := h.executor.PendingActions(userID)
	out := make([]map[string]any, 0, len(pending))
	for id, action := range pending {
		out = append(out, map[string]any{
			"actionId":    id,
			"type":        action.Type,
			"description": action.Description,
		})
	}
	api.JSON(w, http.StatusOK, map[string]any{"pending": out})
}
