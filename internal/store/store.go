// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/bizpilot/bizpilot/internal/domain"
)

// Repository defines the interface for persisting sessions, contexts and
// monitoring registrations.
type Repository interface {
	// GetSessionState retrieves the durable session record for (userID, sessionID).
	// Returns (nil, nil) when no record exists.
	GetSessionState(ctx context.Context, userID, sessionID string) (*domain.SessionState, error)

	// UpsertSessionState creates or updates the session record keyed by
	// (userID, sessionID). Last writer wins; there is no optimistic locking.
	UpsertSessionState(ctx context.Context, state *domain.SessionState) error

	// GetContext retrieves the conversation context for (userID, accountID).
	// Returns (nil, nil) when no record exists.
	GetContext(ctx context.Context, userID, accountID string) (*domain.ConversationContext, error)

	// UpsertContext creates or updates the conversation context keyed by
	// (userID, accountID).
	UpsertContext(ctx context.Context, cc *domain.ConversationContext) error

	// GetAgent retrieves an agent definition. Returns (nil, nil) when unknown.
	GetAgent(ctx context.Context, agentID string) (*domain.Agent, error)

	// UpsertAgent creates or updates an agent definition.
	UpsertAgent(ctx context.Context, agent *domain.Agent) error

	// InsertMonitor durably registers monitoring rules for an executed action.
	InsertMonitor(ctx context.Context, reg *domain.MonitorRegistration) error

	// ListMonitors returns all monitoring registrations for (userID, accountID).
	ListMonitors(ctx context.Context, userID, accountID string) ([]*domain.MonitorRegistration, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
