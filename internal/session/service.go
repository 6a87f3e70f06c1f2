// Package session implements the state machine that carries a conversational
// turn from durable load through engine execution to durable save.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bizpilot/bizpilot/internal/domain"
	"github.com/bizpilot/bizpilot/internal/engine"
	"github.com/bizpilot/bizpilot/internal/store"
)

// Service owns loading, saving and converting session state.
type Service struct {
	repo store.Repository
}

// NewService creates a session service.
func NewService(repo store.Repository) *Service {
	return &Service{repo: repo}
}

// Load returns the existing durable record for (userID, sessionID), merging
// in a freshly resolved agent binding without discarding stored
// conversational fields. A missing record yields a fresh one at StepStart.
func (s *Service) Load(ctx context.Context, userID, sessionID, agentID string) (*domain.SessionState, error) {
	state, err := s.repo.GetSessionState(ctx, userID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s/%s: %w", userID, sessionID, err)
	}
	if state == nil {
		state = domain.NewSessionState(userID, sessionID)
	}

	if agentID != "" {
		agent, err := s.repo.GetAgent(ctx, agentID)
		if err != nil {
			return nil, fmt.Errorf("resolve agent %s: %w", agentID, err)
		}
		// Agent binding is optional; an unknown id leaves the stored spec alone.
		if agent != nil {
			state.AgentSpec = agent.Spec
			if state.Metadata == nil {
				state.Metadata = map[string]any{}
			}
			state.Metadata["agentName"] = agent.Name
			state.Metadata["agentId"] = agent.AgentID
		}
	}

	return state, nil
}

// Save upserts the session record keyed by (userID, sessionID). Last writer
// wins: two concurrent turns on the same session silently overwrite one
// another, which is acceptable for a single-user chat session.
func (s *Service) Save(ctx context.Context, state *domain.SessionState) error {
	state.UpdatedAt = time.Now()
	if err := s.repo.UpsertSessionState(ctx, state); err != nil {
		return fmt.Errorf("save session %s/%s: %w", state.UserID, state.SessionID, err)
	}
	return nil
}

// SaveBestEffort persists the state, logging instead of failing so the
// caller can still respond to the user.
func (s *Service) SaveBestEffort(ctx context.Context, state *domain.SessionState) {
	if err := s.Save(ctx, state); err != nil {
		slog.Warn("session save failed, responding anyway",
			"user_id", state.UserID,
			"session_id", state.SessionID,
			"error", err,
		)
	}
}

// ToEngineState converts the durable record into the engine's native shape.
// The mapping is total: every conversational field in the record appears.
func ToEngineState(state *domain.SessionState) engine.State {
	return engine.State{
		Messages:      state.Messages,
		Plan:          state.Plan,
		MCPResults:    state.MCPResults,
		NeedsHuman:    state.NeedsHuman,
		CurrentStep:   string(state.CurrentStep),
		ErrorMessage:  state.ErrorMessage,
		FinalResponse: state.FinalResponse,
		AgentSpec:     state.AgentSpec,
		Metadata:      state.Metadata,
	}
}

// FromEngineState folds the engine's final state back into the durable
// record, preserving identity and creation fields.
func FromEngineState(state *domain.SessionState, es engine.State) {
	state.Messages = es.Messages
	state.Plan = es.Plan
	state.MCPResults = es.MCPResults
	state.NeedsHuman = es.NeedsHuman
	state.CurrentStep = domain.Step(es.CurrentStep)
	state.ErrorMessage = es.ErrorMessage
	state.FinalResponse = es.FinalResponse
	state.AgentSpec = es.AgentSpec
	state.Metadata = es.Metadata
	if state.Messages == nil {
		state.Messages = []string{}
	}
	if state.MCPResults == nil {
		state.MCPResults = map[string]any{}
	}
	if state.Metadata == nil {
		state.Metadata = map[string]any{}
	}
}
