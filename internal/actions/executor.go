// Package actions validates, confirms, executes and rolls back
// business-affecting actions.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/bizpilot/bizpilot/internal/domain"
	"github.com/bizpilot/bizpilot/internal/memory"
	"github.com/bizpilot/bizpilot/internal/store"
	"github.com/google/uuid"
)

// ErrPendingNotFound is returned when a confirmation references an unknown
// or expired pending action.
var ErrPendingNotFound = errors.New("pending action not found")

// ActionHandler is one entry in the open handler registry. CaptureRollback
// snapshots pre-state before Execute runs; Rollback restores it when Execute
// fails and the action declared a rollback plan.
type ActionHandler struct {
	CaptureRollback func(ctx context.Context, userID, accountID string, action *domain.BusinessAction) (map[string]any, error)
	Execute         func(ctx context.Context, userID, accountID string, action *domain.BusinessAction) (map[string]any, error)
	Rollback        func(ctx context.Context, userID, accountID string, rollbackData map[string]any) error
}

type pendingAction struct {
	action    *domain.BusinessAction
	userID    string
	accountID string
	createdAt time.Time
}

// Executor runs business actions behind safeguard validation, a two-phase
// confirmation gate and rollback. The pending registry is process-local and
// mutex-guarded; entries expire after the configured TTL.
type Executor struct {
	mu       sync.Mutex
	pending  map[string]*pendingAction
	handlers map[domain.ActionType]ActionHandler

	contexts *memory.ContextStore
	repo     store.Repository
	ttl      time.Duration
	now      func() time.Time
	done     chan struct{}
}

// NewExecutor creates an executor with the default handlers registered and
// starts the pending-action sweeper.
func NewExecutor(repo store.Repository, contexts *memory.ContextStore, pendingTTL time.Duration) *Executor {
	if pendingTTL <= 0 {
		pendingTTL = 15 * time.Minute
	}
	e := &Executor{
		pending:  make(map[string]*pendingAction),
		handlers: make(map[domain.ActionType]ActionHandler),
		contexts: contexts,
		repo:     repo,
		ttl:      pendingTTL,
		now:      time.Now,
		done:     make(chan struct{}),
	}
	registerDefaultHandlers(e)
	go e.sweepLoop()
	return e
}

// Register adds or replaces the handler for an action type. This is the
// primary extension point for new action kinds.
func (e *Executor) Register(t domain.ActionType, h ActionHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[t] = h
}

// Close stops the pending-action sweeper.
func (e *Executor) Close() {
	close(e.done)
}

// ExecuteAction validates, gates, executes and records one action attempt.
// Safeguard violations come back as failed results, not errors; errors mean
// the handler itself crashed (after any rollback attempt).
func (e *Executor) ExecuteAction(ctx context.Context, action *domain.BusinessAction, userID, accountID string, skipConfirmation bool) (*domain.ActionResult, error) {
	if result := e.validateSafeguards(action); result != nil {
		e.recordExecution(ctx, action, userID, accountID, result)
		return result, nil
	}

	if action.ConfirmationRequired && !skipConfirmation {
		actionID := uuid.NewString()
		e.mu.Lock()
		e.pending[actionID] = &pendingAction{
			action:    action,
			userID:    userID,
			accountID: accountID,
			createdAt: e.now(),
		}
		e.mu.Unlock()

		slog.Info("action pending confirmation",
			"action_id", actionID,
			"action_type", action.Type,
			"user_id", userID,
		)
		return &domain.ActionResult{
			Success: true,
			Message: fmt.Sprintf("Confirmation required: %s", action.Description),
			Data: map[string]any{
				"actionId":             actionID,
				"requiresConfirmation": true,
				"description":          action.Description,
			},
		}, nil
	}

	handler, ok := e.lookupHandler(action.Type)
	if !ok {
		return nil, fmt.Errorf("no handler registered for action type %q", action.Type)
	}

	var rollbackData map[string]any
	if handler.CaptureRollback != nil {
		var err error
		rollbackData, err = handler.CaptureRollback(ctx, userID, accountID, action)
		if err != nil {
			return nil, fmt.Errorf("capture rollback state for %s: %w", action.Type, err)
		}
	}

	data, err := handler.Execute(ctx, userID, accountID, action)
	if err != nil {
		execErr := fmt.Errorf("execute %s: %w", action.Type, err)
		if plan := action.Safeguards.RollbackPlan; plan != nil && plan.CanRollback && handler.Rollback != nil {
			if rbErr := handler.Rollback(ctx, userID, accountID, rollbackData); rbErr != nil {
				execErr = fmt.Errorf("execute %s: %w (rollback also failed: %v)", action.Type, err, rbErr)
			} else {
				slog.Warn("action rolled back after failure",
					"action_type", action.Type,
					"user_id", userID,
					"error", err,
				)
			}
		}
		e.recordExecution(ctx, action, userID, accountID, &domain.ActionResult{
			Success: false,
			Message: err.Error(),
		})
		return nil, execErr
	}

	result := &domain.ActionResult{
		Success:      true,
		Message:      action.Description,
		Data:         data,
		RollbackData: rollbackData,
	}
	if reason := e.afterHoursAdvisory(); reason != "" {
		if result.Data == nil {
			result.Data = map[string]any{}
		}
		result.Data["advisory"] = reason
	}

	if len(action.Safeguards.MonitoringRules) > 0 {
		result.MonitoringID = e.registerMonitoring(ctx, action, userID, accountID)
	}

	e.recordExecution(ctx, action, userID, accountID, result)

	return result, nil
}

// ConfirmAction resolves a pending action on behalf of userID. Only the user
// who proposed the action can resolve it; anyone else gets the same not-found
// error as an unknown id. Rejection removes the entry without any side
// effect; approval executes it exactly once.
func (e *Executor) ConfirmAction(ctx context.Context, actionID, userID string, approved bool) (*domain.ActionResult, error) {
	e.mu.Lock()
	p, ok := e.pending[actionID]
	if ok && p.userID != userID {
		p = nil
		ok = false
	}
	if ok {
		delete(e.pending, actionID)
	}
	e.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPendingNotFound, actionID)
	}

	if !approved {
		slog.Info("action rejected",
			"action_id", actionID,
			"action_type", p.action.Type,
			"user_id", p.userID,
		)
		return &domain.ActionResult{
			Success: true,
			Message: fmt.Sprintf("Action cancelled: %s", p.action.Description),
			Data:    map[string]any{"cancelled": true},
		}, nil
	}

	return e.ExecuteAction(ctx, p.action, p.userID, p.accountID, true)
}

// PendingActions lists unexpired pending actions for a user.
func (e *Executor) PendingActions(userID string) map[string]*domain.BusinessAction {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]*domain.BusinessAction)
	for id, p := range e.pending {
		if p.userID == userID {
			out[id] = p.action
		}
	}
	return out
}

// validateSafeguards checks amount bounds. A non-nil result is a refusal.
// The after-hours condition is advisory only and never blocks execution.
func (e *Executor) validateSafeguards(action *domain.BusinessAction) *domain.ActionResult {
	amount, hasAmount := action.Amount()
	if !hasAmount {
		return nil
	}

	if max := action.Safeguards.MaxAmount; max != nil && amount > *max {
		return &domain.ActionResult{
			Success: false,
			Message: fmt.Sprintf("amount %s exceeds maximum allowed amount of %s",
				formatAmount(amount), formatAmount(*max)),
		}
	}
	if min := action.Safeguards.MinAmount; min != nil && amount < *min {
		return &domain.ActionResult{
			Success: false,
			Message: fmt.Sprintf("amount %s falls below minimum allowed amount of %s",
				formatAmount(amount), formatAmount(*min)),
		}
	}
	return nil
}

// afterHoursAdvisory flags executions outside local business hours. Kept
// advisory pending product input on whether it should gate anything.
func (e *Executor) afterHoursAdvisory() string {
	hour := e.now().Hour()
	if hour < 9 || hour > 17 {
		return "executed outside business hours (9:00-17:00 local)"
	}
	return ""
}

func (e *Executor) lookupHandler(t domain.ActionType) (ActionHandler, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.handlers[t]
	return h, ok
}

// registerMonitoring durably registers the action's monitoring rules.
// Evaluation is an external collaborator; the contract here is only that
// rules are stored. A failed write logs and yields no monitoring ID.
func (e *Executor) registerMonitoring(ctx context.Context, action *domain.BusinessAction, userID, accountID string) string {
	monitoringID := uuid.NewString()
	reg := &domain.MonitorRegistration{
		MonitorID:  monitoringID,
		UserID:     userID,
		AccountID:  accountID,
		ActionType: action.Type,
		Rules:      action.Safeguards.MonitoringRules,
		TimeWindow: action.Safeguards.TimeWindow,
		CreatedAt:  e.now(),
	}
	if err := e.repo.InsertMonitor(ctx, reg); err != nil {
		slog.Warn("monitoring registration failed",
			"action_type", action.Type,
			"user_id", userID,
			"error", err,
		)
		return ""
	}
	return monitoringID
}

func (e *Executor) recordExecution(ctx context.Context, action *domain.BusinessAction, userID, accountID string, result *domain.ActionResult) {
	record := domain.ActionRecord{
		ID:          uuid.NewString(),
		Type:        action.Type,
		Description: action.Description,
		Success:     result.Success,
		Message:     result.Message,
		ExecutedAt:  e.now(),
	}
	if err := e.contexts.AddBusinessAction(ctx, userID, accountID, record); err != nil {
		slog.Warn("failed to record executed action",
			"action_type", action.Type,
			"user_id", userID,
			"error", err,
		)
	}
}

// sweepLoop expires pending actions that were never confirmed or rejected.
func (e *Executor) sweepLoop() {
	ticker := time.NewTicker(e.ttl / 4)
	defer ticker.Stop()
	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.sweepExpired()
		}
	}
}

func (e *Executor) sweepExpired() {
	cutoff := e.now().Add(-e.ttl)
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, p := range e.pending {
		if p.createdAt.Before(cutoff) {
			delete(e.pending, id)
			slog.Info("pending action expired",
				"action_id", id,
				"action_type", p.action.Type,
				"user_id", p.userID,
			)
		}
	}
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
