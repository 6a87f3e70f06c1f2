// Package domain contains core domain types for the BizPilot orchestration engine.
package domain

import (
	"time"
)

// Step is a state-machine label for the current position of a conversational turn.
type Step string

const (
	StepStart      Step = "start"
	StepPlanning   Step = "planning"
	StepExecuting  Step = "executing"
	StepNeedsHuman Step = "needs_human"
	StepResponding Step = "responding"
	StepComplete   Step = "complete"
	StepError      Step = "error"
)

// Valid reports whether the step is one of the known state-machine labels.
func (s Step) Valid() bool {
	switch s {
	case StepStart, StepPlanning, StepExecuting, StepNeedsHuman, StepResponding, StepComplete, StepError:
		return true
	}
	return false
}

// String returns the string representation of the step.
func (s Step) String() string {
	return string(s)
}

// SessionState is the durable record of one conversation, keyed by (user, session).
// The reasoning engine drives the actual transitions; this record only carries
// them across requests.
type SessionState struct {
	UserID        string         `json:"user_id"`
	SessionID     string         `json:"session_id"`
	Messages      []string       `json:"messages"`
	Plan          map[string]any `json:"plan,omitempty"`
	MCPResults    map[string]any `json:"mcp_results,omitempty"`
	NeedsHuman    bool           `json:"needs_human"`
	CurrentStep   Step           `json:"current_step"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	FinalResponse string         `json:"final_response,omitempty"`
	AgentSpec     string         `json:"agent_spec,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// NewSessionState returns a fresh record for the first turn of a session.
func NewSessionState(userID, sessionID string) *SessionState {
	now := time.Now()
	return &SessionState{
		UserID:      userID,
		SessionID:   sessionID,
		Messages:    []string{},
		MCPResults:  map[string]any{},
		CurrentStep: StepStart,
		Metadata:    map[string]any{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// AgentName returns the bound agent name from session metadata, if any.
func (s *SessionState) AgentName() string {
	if s.Metadata == nil {
		return ""
	}
	if name, ok := s.Metadata["agentName"].(string); ok {
		return name
	}
	return ""
}

// Agent is a named agent definition whose spec DSL conditions the reasoning engine.
type Agent struct {
	AgentID   string    `json:"agent_id"`
	Name      string    `json:"name"`
	Spec      string    `json:"spec"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
