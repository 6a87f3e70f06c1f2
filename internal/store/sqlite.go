package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/bizpilot/bizpilot/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		messages_json TEXT NOT NULL,
		plan_json TEXT,
		mcp_results_json TEXT NOT NULL,
		needs_human INTEGER NOT NULL DEFAULT 0,
		current_step TEXT NOT NULL,
		error_message TEXT,
		final_response TEXT,
		agent_spec TEXT,
		metadata_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);

	CREATE TABLE IF NOT EXISTS contexts (
		user_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		context_json TEXT NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, account_id)
	);

	CREATE TABLE IF NOT EXISTS monitors (
		monitor_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		account_id TEXT NOT NULL,
		action_type TEXT NOT NULL,
		rules_json TEXT NOT NULL,
		time_window INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_monitors_owner ON monitors(user_id, account_id);

	CREATE TABLE IF NOT EXISTS agents (
		agent_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		spec TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetSessionState retrieves the durable session record for (userID, sessionID).
func (s *SQLiteStore) GetSessionState(ctx context.Context, userID, sessionID string) (*domain.SessionState, error) {
	query := `
		SELECT user_id, session_id, messages_json, plan_json, mcp_results_json,
		       needs_human, current_step, error_message, final_response,
		       agent_spec, metadata_json, created_at, updated_at
		FROM sessions WHERE user_id = ? AND session_id = ?`

	row := s.db.QueryRowContext(ctx, query, userID, sessionID)

	var state domain.SessionState
	var messagesJSON, mcpResultsJSON, metadataJSON, currentStep string
	var planJSON, errorMessage, finalResponse, agentSpec sql.NullString
	var needsHuman int
	var createdAt, updatedAt int64

	err := row.Scan(
		&state.UserID, &state.SessionID, &messagesJSON, &planJSON, &mcpResultsJSON,
		&needsHuman, &currentStep, &errorMessage, &finalResponse,
		&agentSpec, &metadataJSON, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	if err := json.Unmarshal([]byte(messagesJSON), &state.Messages); err != nil {
		return nil, fmt.Errorf("unmarshal session messages: %w", err)
	}
	if planJSON.Valid && planJSON.String != "" {
		if err := json.Unmarshal([]byte(planJSON.String), &state.Plan); err != nil {
			return nil, fmt.Errorf("unmarshal session plan: %w", err)
		}
	}
	if err := json.Unmarshal([]byte(mcpResultsJSON), &state.MCPResults); err != nil {
		return nil, fmt.Errorf("unmarshal session mcp results: %w", err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &state.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal session metadata: %w", err)
	}

	state.NeedsHuman = needsHuman != 0
	state.CurrentStep = domain.Step(currentStep)
	state.ErrorMessage = errorMessage.String
	state.FinalResponse = finalResponse.String
	state.AgentSpec = agentSpec.String
	state.CreatedAt = time.Unix(createdAt, 0)
	state.UpdatedAt = time.Unix(updatedAt, 0)

	return &state, nil
}

// UpsertSessionState creates or updates the session record. Conflict target is
// exactly the (user_id, session_id) composite key; last writer wins.
func (s *SQLiteStore) UpsertSessionState(ctx context.Context, state *domain.SessionState) error {
	messagesJSON, err := json.Marshal(state.Messages)
	if err != nil {
		return fmt.Errorf("marshal session messages: %w", err)
	}
	mcpResultsJSON, err := json.Marshal(state.MCPResults)
	if err != nil {
		return fmt.Errorf("marshal session mcp results: %w", err)
	}
	metadataJSON, err := json.Marshal(state.Metadata)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}

	var planJSON interface{}
	if state.Plan != nil {
		b, err := json.Marshal(state.Plan)
		if err != nil {
			return fmt.Errorf("marshal session plan: %w", err)
		}
		planJSON = string(b)
	}

	query := `
		INSERT INTO sessions (
			user_id, session_id, messages_json, plan_json, mcp_results_json,
			needs_human, current_step, error_message, final_response,
			agent_spec, metadata_json, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, session_id) DO UPDATE SET
			messages_json = excluded.messages_json,
			plan_json = excluded.plan_json,
			mcp_results_json = excluded.mcp_results_json,
			needs_human = excluded.needs_human,
			current_step = excluded.current_step,
			error_message = excluded.error_message,
			final_response = excluded.final_response,
			agent_spec = COALESCE(excluded.agent_spec, sessions.agent_spec),
			metadata_json = excluded.metadata_json,
			updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		state.UserID, state.SessionID, string(messagesJSON), planJSON, string(mcpResultsJSON),
		boolToInt(state.NeedsHuman), string(state.CurrentStep),
		nullableString(state.ErrorMessage), nullableString(state.FinalResponse),
		nullableString(state.AgentSpec), string(metadataJSON),
		state.CreatedAt.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

// GetContext retrieves the conversation context for (userID, accountID).
func (s *SQLiteStore) GetContext(ctx context.Context, userID, accountID string) (*domain.ConversationContext, error) {
	query := `SELECT context_json FROM contexts WHERE user_id = ? AND account_id = ?`

	var contextJSON string
	err := s.db.QueryRowContext(ctx, query, userID, accountID).Scan(&contextJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan context row: %w", err)
	}

	var cc domain.ConversationContext
	if err := json.Unmarshal([]byte(contextJSON), &cc); err != nil {
		return nil, fmt.Errorf("unmarshal context: %w", err)
	}
	return &cc, nil
}

// UpsertContext creates or updates the conversation context.
func (s *SQLiteStore) UpsertContext(ctx context.Context, cc *domain.ConversationContext) error {
	contextJSON, err := json.Marshal(cc)
	if err != nil {
		return fmt.Errorf("marshal context: %w", err)
	}

	query := `
		INSERT INTO contexts (user_id, account_id, context_json, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(user_id, account_id) DO UPDATE SET
			context_json = excluded.context_json,
			updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		cc.UserID, cc.AccountID, string(contextJSON), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert context: %w", err)
	}
	return nil
}

// GetAgent retrieves an agent definition by ID.
func (s *SQLiteStore) GetAgent(ctx context.Context, agentID string) (*domain.Agent, error) {
	query := `SELECT agent_id, name, spec, created_at, updated_at FROM agents WHERE agent_id = ?`

	var agent domain.Agent
	var createdAt, updatedAt int64
	err := s.db.QueryRowContext(ctx, query, agentID).Scan(
		&agent.AgentID, &agent.Name, &agent.Spec, &createdAt, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan agent row: %w", err)
	}

	agent.CreatedAt = time.Unix(createdAt, 0)
	agent.UpdatedAt = time.Unix(updatedAt, 0)
	return &agent, nil
}

// UpsertAgent creates or updates an agent definition.
func (s *SQLiteStore) UpsertAgent(ctx context.Context, agent *domain.Agent) error {
	query := `
		INSERT INTO agents (agent_id, name, spec, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(agent_id) DO UPDATE SET
			name = excluded.name,
			spec = excluded.spec,
			updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		agent.AgentID, agent.Name, agent.Spec,
		agent.CreatedAt.Unix(), time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("upsert agent: %w", err)
	}
	return nil
}

// InsertMonitor durably registers monitoring rules for an executed action.
func (s *SQLiteStore) InsertMonitor(ctx context.Context, reg *domain.MonitorRegistration) error {
	rulesJSON, err := json.Marshal(reg.Rules)
	if err != nil {
		return fmt.Errorf("marshal monitoring rules: %w", err)
	}

	query := `
		INSERT INTO monitors (monitor_id, user_id, account_id, action_type, rules_json, time_window, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err = s.db.ExecContext(ctx, query,
		reg.MonitorID, reg.UserID, reg.AccountID, string(reg.ActionType),
		string(rulesJSON), reg.TimeWindow, reg.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("insert monitor: %w", err)
	}
	return nil
}

// ListMonitors returns all monitoring registrations for (userID, accountID).
func (s *SQLiteStore) ListMonitors(ctx context.Context, userID, accountID string) ([]*domain.MonitorRegistration, error) {
	query := `
		SELECT monitor_id, user_id, account_id, action_type, rules_json, time_window, created_at
		FROM monitors WHERE user_id = ? AND account_id = ? ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, userID, accountID)
	if err != nil {
		return nil, fmt.Errorf("query monitors: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close monitor rows", "error", closeErr)
		}
	}()

	var regs []*domain.MonitorRegistration
	for rows.Next() {
		var reg domain.MonitorRegistration
		var actionType, rulesJSON string
		var createdAt int64

		if err := rows.Scan(
			&reg.MonitorID, &reg.UserID, &reg.AccountID,
			&actionType, &rulesJSON, &reg.TimeWindow, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan monitor row: %w", err)
		}

		if err := json.Unmarshal([]byte(rulesJSON), &reg.Rules); err != nil {
			return nil, fmt.Errorf("unmarshal monitoring rules: %w", err)
		}
		reg.ActionType = domain.ActionType(actionType)
		reg.CreatedAt = time.Unix(createdAt, 0)
		regs = append(regs, &reg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate monitors: %w", err)
	}

	return regs, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
