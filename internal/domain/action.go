package domain

import (
	"time"
)

// ActionType identifies a kind of business-affecting action.
type ActionType string

const (
	ActionIncreaseAdBudget ActionType = "increase_ad_budget"
	ActionCreateInvoice    ActionType = "create_invoice"
	ActionUpdateProject    ActionType = "update_project"
	ActionSendEmail        ActionType = "send_email"
	ActionSetGoal          ActionType = "set_goal"
)

// MonitoringCondition compares a metric against a threshold.
type MonitoringCondition string

const (
	ConditionAbove  MonitoringCondition = "above"
	ConditionBelow  MonitoringCondition = "below"
	ConditionEquals MonitoringCondition = "equals"
)

// MonitoringOutcome is what a breached rule should trigger.
type MonitoringOutcome string

const (
	OutcomeAlert    MonitoringOutcome = "alert"
	OutcomePause    MonitoringOutcome = "pause"
	OutcomeRollback MonitoringOutcome = "rollback"
)

// MonitoringRule is a post-execution condition evaluated by an external process.
// This core only registers rules durably; it never evaluates them.
type MonitoringRule struct {
	Metric    string              `json:"metric"`
	Threshold float64             `json:"threshold"`
	Condition MonitoringCondition `json:"condition"`
	Action    MonitoringOutcome   `json:"action"`
}

// RollbackPlan declares whether and how an action can be undone.
type RollbackPlan struct {
	CanRollback    bool   `json:"can_rollback"`
	RollbackAction string `json:"rollback_action"`
	RollbackWindow int    `json:"rollback_window_minutes"`
}

// ActionSafeguards bounds and gates an action before execution.
type ActionSafeguards struct {
	MaxAmount         *float64         `json:"max_amount,omitempty"`
	MinAmount         *float64         `json:"min_amount,omitempty"`
	RequiredApprovals []string         `json:"required_approvals,omitempty"`
	RollbackPlan      *RollbackPlan    `json:"rollback_plan,omitempty"`
	MonitoringRules   []MonitoringRule `json:"monitoring_rules,omitempty"`
	// TimeWindow is the auto-revert horizon in minutes. It is persisted with the
	// monitoring registration for the external evaluator; execution itself does
	// not schedule reverts.
	TimeWindow int `json:"time_window_minutes,omitempty"`
}

// BusinessAction is a side-effecting operation built by a template factory.
// It is never persisted directly; only its result and history entry are.
type BusinessAction struct {
	Type                 ActionType       `json:"type"`
	Params               map[string]any   `json:"params"`
	Safeguards           ActionSafeguards `json:"safeguards"`
	ConfirmationRequired bool             `json:"confirmation_required"`
	Description          string           `json:"description"`
}

// Amount extracts the numeric "amount" parameter, if present.
func (a *BusinessAction) Amount() (float64, bool) {
	v, ok := a.Params["amount"]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}

// ActionResult is the outcome of one execution attempt.
type ActionResult struct {
	Success      bool           `json:"success"`
	Message      string         `json:"message"`
	Data         map[string]any `json:"data,omitempty"`
	RollbackData map[string]any `json:"rollback_data,omitempty"`
	MonitoringID string         `json:"monitoring_id,omitempty"`
}

// ActionRecord is the bounded history entry kept on the conversation context.
type ActionRecord struct {
	ID          string     `json:"id"`
	Type        ActionType `json:"type"`
	Description string     `json:"description"`
	Success     bool       `json:"success"`
	Message     string     `json:"message"`
	ExecutedAt  time.Time  `json:"executed_at"`
}

// MonitorRegistration is the durable record of registered monitoring rules.
type MonitorRegistration struct {
	MonitorID  string           `json:"monitor_id"`
	UserID     string           `json:"user_id"`
	AccountID  string           `json:"account_id"`
	ActionType ActionType       `json:"action_type"`
	Rules      []MonitoringRule `json:"rules"`
	TimeWindow int              `json:"time_window_minutes,omitempty"`
	CreatedAt  time.Time        `json:"created_at"`
}
