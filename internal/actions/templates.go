package actions

import (
	"fmt"

	"github.com/bizpilot/bizpilot/internal/domain"
)

// Action templates are pure factories encoding default safeguards per kind.

func floatPtr(v float64) *float64 { return &v }

// IncreaseAdBudget builds an ad-budget increase. Amounts above 200 need
// human confirmation; amounts outside [50, 1000] are refused outright.
func IncreaseAdBudget(amount float64, campaign string) *domain.BusinessAction {
	params := map[string]any{"amount": amount}
	if campaign != "" {
		params["campaign"] = campaign
	}
	return &domain.BusinessAction{
		Type:                 domain.ActionIncreaseAdBudget,
		Params:               params,
		ConfirmationRequired: amount > 200,
		Description:          fmt.Sprintf("Increase ad budget by $%.2f", amount),
		Safeguards: domain.ActionSafeguards{
			MaxAmount: floatPtr(1000),
			MinAmount: floatPtr(50),
			RollbackPlan: &domain.RollbackPlan{
				CanRollback:    true,
				RollbackAction: "restore_previous_budget",
				RollbackWindow: 30,
			},
			MonitoringRules: []domain.MonitoringRule{
				{Metric: "roas", Threshold: 3.0, Condition: domain.ConditionBelow, Action: domain.OutcomeAlert},
			},
		},
	}
}

// CreateInvoice builds an invoice-creation action. Invoices always need
// confirmation; they are voidable, not deletable, so rollback is declared.
func CreateInvoice(client string, amount float64, description string) *domain.BusinessAction {
	return &domain.BusinessAction{
		Type: domain.ActionCreateInvoice,
		Params: map[string]any{
			"client":      client,
			"amount":      amount,
			"description": description,
		},
		ConfirmationRequired: true,
		Description:          fmt.Sprintf("Create invoice for %s: $%.2f", client, amount),
		Safeguards: domain.ActionSafeguards{
			MinAmount: floatPtr(1),
			RollbackPlan: &domain.RollbackPlan{
				CanRollback:    true,
				RollbackAction: "void_invoice",
				RollbackWindow: 60,
			},
		},
	}
}

// UpdateProject builds a project-status update.
func UpdateProject(projectID string, fields map[string]any) *domain.BusinessAction {
	params := map[string]any{"projectId": projectID}
	for k, v := range fields {
		params[k] = v
	}
	return &domain.BusinessAction{
		Type:                 domain.ActionUpdateProject,
		Params:               params,
		ConfirmationRequired: false,
		Description:          fmt.Sprintf("Update project %s", projectID),
	}
}

// SendEmail builds an outbound email action. No confirmation, no rollback:
// a sent email cannot be unsent.
func SendEmail(to, subject, body string) *domain.BusinessAction {
	return &domain.BusinessAction{
		Type: domain.ActionSendEmail,
		Params: map[string]any{
			"to":      to,
			"subject": subject,
			"body":    body,
		},
		ConfirmationRequired: false,
		Description:          fmt.Sprintf("Send email to %s: %s", to, subject),
	}
}

// SetGoal builds a goal-registration action.
func SetGoal(goalType string, target float64, timeframe string) *domain.BusinessAction {
	return &domain.BusinessAction{
		Type: domain.ActionSetGoal,
		Params: map[string]any{
			"goalType":  goalType,
			"target":    target,
			"timeframe": timeframe,
		},
		ConfirmationRequired: false,
		Description:          fmt.Sprintf("Set %s goal: %.2f (%s)", goalType, target, timeframe),
	}
}
