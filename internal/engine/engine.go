// Package engine defines the interface to the external reasoning engine and
// its gRPC client. The engine turns a user message plus prior state into a
// plan, tool results and a response; this package never reinterprets its
// internals, it only transports and converts them.
package engine

import (
	"context"
	"iter"
)

// State is the engine-native execution state for one conversation. It must
// round-trip losslessly through the durable session record.
type State struct {
	Messages      []string       `json:"messages"`
	Plan          map[string]any `json:"plan,omitempty"`
	MCPResults    map[string]any `json:"mcp_results,omitempty"`
	NeedsHuman    bool           `json:"needs_human"`
	CurrentStep   string         `json:"current_step"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	FinalResponse string         `json:"final_response,omitempty"`
	AgentSpec     string         `json:"agent_spec,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// Turn is one inbound chat turn handed to the engine.
type Turn struct {
	UserID       string `json:"user_id"`
	SessionID    string `json:"session_id"`
	Message      string `json:"message"`
	SystemPrompt string `json:"system_prompt,omitempty"`
	State        State  `json:"state"`
}

// Event is one step yielded while the engine executes a turn. The terminal
// event carries the full final state; intermediate events carry nil Final.
type Event struct {
	Step         string `json:"step"`
	NeedsHuman   bool   `json:"needs_human"`
	Response     string `json:"response,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	Final        *State `json:"final,omitempty"`
}

// Processor defines the interface for reasoning-engine execution.
// This interface is implemented by the gRPC client.
type Processor interface {
	// Run executes one turn, yielding step events and ending with a terminal
	// event whose Final state is non-nil. Stopping iteration cancels the turn.
	Run(ctx context.Context, turn Turn) iter.Seq2[*Event, error]

	// Close releases resources.
	Close()
}

// Ensure GrpcClient implements Processor.
var _ Processor = (*GrpcClient)(nil)
