package store

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/bizpilot/bizpilot/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestSessionStateRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	state := domain.NewSessionState("user-1", "sess-1")
	state.Messages = []string{"hello", "hi there"}
	state.Plan = map[string]any{"step": "analyze"}
	state.MCPResults = map[string]any{"lookup": "ok"}
	state.NeedsHuman = true
	state.CurrentStep = domain.StepNeedsHuman
	state.ErrorMessage = "boom"
	state.FinalResponse = "done"
	state.AgentSpec = "agent growth v1"
	state.Metadata = map[string]any{"agentName": "Growth"}

	if err := repo.UpsertSessionState(ctx, state); err != nil {
		t.Fatalf("UpsertSessionState failed: %v", err)
	}

	got, err := repo.GetSessionState(ctx, "user-1", "sess-1")
	if err != nil {
		t.Fatalf("GetSessionState failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected session state, got nil")
	}

	if !reflect.DeepEqual(got.Messages, state.Messages) {
		t.Errorf("Messages = %v, want %v", got.Messages, state.Messages)
	}
	if got.Plan["step"] != "analyze" {
		t.Errorf("Plan = %v, want step=analyze", got.Plan)
	}
	if got.MCPResults["lookup"] != "ok" {
		t.Errorf("MCPResults = %v, want lookup=ok", got.MCPResults)
	}
	if !got.NeedsHuman {
		t.Error("NeedsHuman = false, want true")
	}
	if got.CurrentStep != domain.StepNeedsHuman {
		t.Errorf("CurrentStep = %q, want %q", got.CurrentStep, domain.StepNeedsHuman)
	}
	if got.ErrorMessage != "boom" || got.FinalResponse != "done" {
		t.Errorf("ErrorMessage/FinalResponse = %q/%q", got.ErrorMessage, got.FinalResponse)
	}
	if got.AgentSpec != state.AgentSpec {
		t.Errorf("AgentSpec = %q, want %q", got.AgentSpec, state.AgentSpec)
	}
	if got.Metadata["agentName"] != "Growth" {
		t.Errorf("Metadata = %v, want agentName=Growth", got.Metadata)
	}
}

func TestGetSessionStateIsIdempotent(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	state := domain.NewSessionState("user-1", "sess-1")
	state.Messages = []string{"one"}
	if err := repo.UpsertSessionState(ctx, state); err != nil {
		t.Fatalf("UpsertSessionState failed: %v", err)
	}

	first, err := repo.GetSessionState(ctx, "user-1", "sess-1")
	if err != nil {
		t.Fatalf("first GetSessionState failed: %v", err)
	}
	second, err := repo.GetSessionState(ctx, "user-1", "sess-1")
	if err != nil {
		t.Fatalf("second GetSessionState failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("two loads without a save differ:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestGetSessionStateMissingReturnsNil(t *testing.T) {
	repo := newTestStore(t)

	got, err := repo.GetSessionState(context.Background(), "nobody", "nothing")
	if err != nil {
		t.Fatalf("GetSessionState failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for missing session, got %+v", got)
	}
}

func TestUpsertSessionStateLastWriterWins(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	state := domain.NewSessionState("user-1", "sess-1")
	state.FinalResponse = "first"
	if err := repo.UpsertSessionState(ctx, state); err != nil {
		t.Fatalf("first upsert failed: %v", err)
	}

	state.FinalResponse = "second"
	state.CurrentStep = domain.StepComplete
	if err := repo.UpsertSessionState(ctx, state); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}

	got, err := repo.GetSessionState(ctx, "user-1", "sess-1")
	if err != nil {
		t.Fatalf("GetSessionState failed: %v", err)
	}
	if got.FinalResponse != "second" {
		t.Errorf("FinalResponse = %q, want %q", got.FinalResponse, "second")
	}
	if got.CurrentStep != domain.StepComplete {
		t.Errorf("CurrentStep = %q, want %q", got.CurrentStep, domain.StepComplete)
	}
}

func TestContextRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	cc := domain.NewConversationContext("user-1", "acct-1")
	cc.Business.Marketing.AdBudget = 750
	cc.Goals = append(cc.Goals, domain.UserGoal{
		ID: "g1", Type: "revenue", Target: 10000, Status: domain.GoalActive,
	})

	if err := repo.UpsertContext(ctx, cc); err != nil {
		t.Fatalf("UpsertContext failed: %v", err)
	}

	got, err := repo.GetContext(ctx, "user-1", "acct-1")
	if err != nil {
		t.Fatalf("GetContext failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected context, got nil")
	}
	if got.Business.Marketing.AdBudget != 750 {
		t.Errorf("AdBudget = %v, want 750", got.Business.Marketing.AdBudget)
	}
	if len(got.Goals) != 1 || got.Goals[0].ID != "g1" {
		t.Errorf("Goals = %+v, want one goal g1", got.Goals)
	}

	missing, err := repo.GetContext(ctx, "user-1", "other")
	if err != nil {
		t.Fatalf("GetContext for missing failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing context, got %+v", missing)
	}
}

func TestAgentRoundTrip(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	agent := &domain.Agent{
		AgentID:   "growth-1",
		Name:      "Growth Copilot",
		Spec:      "agent growth { tone: direct }",
		CreatedAt: time.Now(),
	}
	if err := repo.UpsertAgent(ctx, agent); err != nil {
		t.Fatalf("UpsertAgent failed: %v", err)
	}

	got, err := repo.GetAgent(ctx, "growth-1")
	if err != nil {
		t.Fatalf("GetAgent failed: %v", err)
	}
	if got == nil || got.Name != "Growth Copilot" || got.Spec != agent.Spec {
		t.Errorf("GetAgent = %+v, want name and spec round-tripped", got)
	}

	unknown, err := repo.GetAgent(ctx, "missing")
	if err != nil {
		t.Fatalf("GetAgent for missing failed: %v", err)
	}
	if unknown != nil {
		t.Errorf("expected nil for unknown agent, got %+v", unknown)
	}
}

func TestMonitorInsertAndList(t *testing.T) {
	repo := newTestStore(t)
	ctx := context.Background()

	reg := &domain.MonitorRegistration{
		MonitorID:  "mon-1",
		UserID:     "user-1",
		AccountID:  "acct-1",
		ActionType: domain.ActionIncreaseAdBudget,
		Rules: []domain.MonitoringRule{
			{Metric: "roas", Threshold: 3.0, Condition: domain.ConditionBelow, Action: domain.OutcomeAlert},
		},
		TimeWindow: 60,
		CreatedAt:  time.Now(),
	}
	if err := repo.InsertMonitor(ctx, reg); err != nil {
		t.Fatalf("InsertMonitor failed: %v", err)
	}

	regs, err := repo.ListMonitors(ctx, "user-1", "acct-1")
	if err != nil {
		t.Fatalf("ListMonitors failed: %v", err)
	}
	if len(regs) != 1 {
		t.Fatalf("ListMonitors returned %d registrations, want 1", len(regs))
	}
	got := regs[0]
	if got.MonitorID != "mon-1" || got.ActionType != domain.ActionIncreaseAdBudget {
		t.Errorf("monitor = %+v", got)
	}
	if len(got.Rules) != 1 || got.Rules[0].Metric != "roas" || got.Rules[0].Condition != domain.ConditionBelow {
		t.Errorf("rules = %+v, want roas below alert", got.Rules)
	}
	if got.TimeWindow != 60 {
		t.Errorf("TimeWindow = %d, want 60", got.TimeWindow)
	}
}
