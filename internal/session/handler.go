package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/bizpilot/bizpilot/internal/actions"
	"github.com/bizpilot/bizpilot/internal/api"
	"github.com/bizpilot/bizpilot/internal/config"
	"github.com/bizpilot/bizpilot/internal/domain"
	"github.com/bizpilot/bizpilot/internal/engine"
	"github.com/bizpilot/bizpilot/internal/identity"
	"github.com/bizpilot/bizpilot/internal/memory"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20 // 1MB

// escalationNotice replaces the engine's text whenever a turn ends in
// needs_human, regardless of what the engine produced.
const escalationNotice = "This request needs review by a human operator. " +
	"Your conversation has been flagged and someone will follow up shortly."

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message   string         `json:"message"`
	SessionID string         `json:"sessionId"`
	AgentID   string         `json:"agentId,omitempty"`
	Streaming bool           `json:"streaming,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// StateSummary is the caller-facing digest of the updated session state.
type StateSummary struct {
	CurrentStep  string `json:"currentStep"`
	MessageCount int    `json:"messageCount"`
	NeedsHuman   bool   `json:"needsHuman"`
}

// ChatResponse is the body of a non-streaming chat turn.
type ChatResponse struct {
	Success        bool                 `json:"success"`
	Response       string               `json:"response"`
	SessionID      string               `json:"sessionId"`
	UpdatedState   StateSummary         `json:"updatedState"`
	NeedsHuman     bool                 `json:"needsHuman"`
	AgentName      string               `json:"agentName,omitempty"`
	ExecutionSteps []string             `json:"executionSteps"`
	Action         *domain.ActionResult `json:"action,omitempty"`
}

// Handler handles chat turns over HTTP, both JSON and SSE.
type Handler struct {
	svc         *Service
	processor   engine.Processor
	contexts    *memory.ContextStore
	executor    *actions.Executor
	rateLimiter *RateLimiter
	cfg         *config.Config
}

// NewHandler creates a new chat handler.
func NewHandler(svc *Service, processor engine.Processor, contexts *memory.ContextStore, executor *actions.Executor, cfg *config.Config) *Handler {
	rateLimitRequests := 20
	rateLimitWindow := defaultRateWindow
	if cfg != nil {
		rateLimitRequests = cfg.RateLimit.RequestsPerWindow
		rateLimitWindow = cfg.RateLimit.WindowDuration
	}

	return &Handler{
		svc:         svc,
		processor:   processor,
		contexts:    contexts,
		executor:    executor,
		rateLimiter: NewRateLimiter(rateLimitRequests, rateLimitWindow),
		cfg:         cfg,
	}
}

// RegisterRoutes registers chat routes (requires identity middleware).
// Unsupported methods on /chat answer 405.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/chat", func(r chi.Router) {
		r.MethodNotAllowed(api.MethodNotAllowed)
		r.Post("/", h.HandleChat)
	})
}

// HandleChat handles POST /chat requests.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	accountID := identity.AccountIDFromContext(r.Context())
	if userID == "" {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	// Rate-limit by userID only so clients cannot bypass throttling by
	// rotating session IDs.
	if !h.rateLimiter.Allow(userID) {
		api.Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	maxBodySize := int64(defaultMaxRequestBodySize)
	if h.cfg != nil {
		maxBodySize = h.cfg.SSE.MaxRequestBodySize
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fields := map[string]string{}
	if req.Message == "" {
		fields["message"] = "message is required"
	}
	if req.SessionID == "" {
		fields["sessionId"] = "sessionId is required"
	}
	if len(fields) > 0 {
		api.ValidationError(w, fields)
		return
	}

	reqID := chiMiddleware.GetReqID(r.Context())
	slog.Info("chat turn",
		"user_id", userID,
		"session_id", req.SessionID,
		"streaming", req.Streaming,
		"message_length", len(req.Message),
		"request_id", reqID,
	)

	state, err := h.svc.Load(r.Context(), userID, req.SessionID, req.AgentID)
	if err != nil {
		slog.Error("session load failed",
			"user_id", userID,
			"session_id", req.SessionID,
			"error", err,
		)
		api.Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}

	// The context store degrades to defaults rather than failing the turn.
	cc, err := h.contexts.Get(r.Context(), userID, accountID)
	if err != nil {
		slog.Warn("context load failed, using defaults",
			"user_id", userID,
			"account_id", accountID,
			"error", err,
		)
		cc = domain.NewConversationContext(userID, accountID)
	}

	actionResult := h.runDetectedAction(r, req.Message, userID, accountID)

	turn := engine.Turn{
		UserID:       userID,
		SessionID:    req.SessionID,
		Message:      req.Message,
		SystemPrompt: memory.ContextualPrompt(cc),
		State:        ToEngineState(state),
	}

	if req.Streaming {
		h.streamTurn(w, r, turn)
		return
	}

	var steps []string
	var finalState *engine.State
	for event, err := range h.processor.Run(r.Context(), turn) {
		if err != nil {
			slog.Error("engine execution failed",
				"user_id", userID,
				"session_id", req.SessionID,
				"error", err,
			)
			api.Error(w, http.StatusInternalServerError, "agent execution failed")
			return
		}
		if event.Step != "" {
			steps = append(steps, event.Step)
		}
		if event.Final != nil {
			finalState = event.Final
			break
		}
	}
	if finalState == nil {
		slog.Error("engine stream ended without terminal state",
			"user_id", userID,
			"session_id", req.SessionID,
		)
		api.Error(w, http.StatusInternalServerError, "agent execution failed")
		return
	}

	FromEngineState(state, *finalState)

	response := state.FinalResponse
	if state.NeedsHuman {
		response = escalationNotice
	}

	h.svc.SaveBestEffort(r.Context(), state)

	if err := h.contexts.AddInteraction(r.Context(), userID, accountID, req.Message, response); err != nil {
		slog.Warn("failed to record interaction",
			"user_id", userID,
			"account_id", accountID,
			"error", err,
		)
	}

	api.JSON(w, http.StatusOK, ChatResponse{
		Success:   true,
		Response:  response,
		SessionID: req.SessionID,
		UpdatedState: StateSummary{
			CurrentStep:  string(state.CurrentStep),
			MessageCount: len(state.Messages),
			NeedsHuman:   state.NeedsHuman,
		},
		NeedsHuman:     state.NeedsHuman,
		AgentName:      state.AgentName(),
		ExecutionSteps: steps,
		Action:         actionResult,
	})
}

// runDetectedAction checks the message for a risky business action and runs
// it through the executor. Crashes are redacted into failed results so the
// turn itself still completes.
func (h *Handler) runDetectedAction(r *http.Request, message, userID, accountID string) *domain.ActionResult {
	action, detected := actions.DetectIntent(message)
	if !detected {
		return nil
	}

	result, err := h.executor.ExecuteAction(r.Context(), action, userID, accountID, false)
	if err != nil {
		slog.Error("detected action failed",
			"action_type", action.Type,
			"user_id", userID,
			"error", err,
		)
		return &domain.ActionResult{
			Success: false,
			Message: fmt.Sprintf("The %s action could not be completed.", action.Type),
		}
	}
	return result
}

// streamTurn streams engine step events as SSE frames. Streamed turns are
// not persisted and record no interaction. Client disconnect cancels the
// engine stream via the request context.
func (h *Handler) streamTurn(w http.ResponseWriter, r *http.Request, turn engine.Turn) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		api.Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	retryDelayMs := int64(5000)
	if h.cfg != nil {
		retryDelayMs = h.cfg.SSE.RetryDelay.Milliseconds()
	}
	if _, err := io.WriteString(w, fmt.Sprintf("retry: %d\n\n", retryDelayMs)); err != nil {
		slog.Warn("failed to write SSE retry header", "error", err, "user_id", turn.UserID)
		return
	}
	flusher.Flush()

	completed := false
	for event, err := range h.processor.Run(r.Context(), turn) {
		if r.Context().Err() != nil {
			slog.Info("chat stream disconnected",
				"user_id", turn.UserID,
				"session_id", turn.SessionID,
			)
			return
		}
		if err != nil {
			slog.Error("engine stream failed",
				"user_id", turn.UserID,
				"session_id", turn.SessionID,
				"error", err,
			)
			h.writeFrame(w, flusher, map[string]any{
				"type":  "error",
				"error": "agent execution failed",
			})
			return
		}

		if event.Final != nil {
			completed = true
			h.writeFrame(w, flusher, map[string]any{"type": "complete"})
			return
		}

		h.writeFrame(w, flusher, map[string]any{
			"type":          "step",
			"currentStep":   event.Step,
			"needsHuman":    event.NeedsHuman,
			"finalResponse": event.Response,
			"errorMessage":  event.ErrorMessage,
		})
	}

	if !completed {
		h.writeFrame(w, flusher, map[string]any{"type": "complete"})
	}
}

func (h *Handler) writeFrame(w http.ResponseWriter, flusher http.Flusher, frame map[string]any) {
	data, err := json.Marshal(frame)
	if err != nil {
		slog.Warn("failed to marshal SSE frame", "error", err)
		return
	}
	if err := writeSSE(w, "message", string(data)); err != nil {
		slog.Warn("failed to write SSE frame", "error", err)
		return
	}
	flusher.Flush()
}

func writeSSE(w io.Writer, event, data string) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
