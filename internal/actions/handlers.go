package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/bizpilot/bizpilot/internal/domain"
	"github.com/bizpilot/bizpilot/internal/memory"
	"github.com/google/uuid"
)

// registerDefaultHandlers wires the built-in action kinds. New kinds are
// added by registering a template factory plus a handler here or from
// calling code via Executor.Register.
func registerDefaultHandlers(e *Executor) {
	e.handlers[domain.ActionIncreaseAdBudget] = adBudgetHandler(e.contexts)
	e.handlers[domain.ActionCreateInvoice] = invoiceHandler()
	e.handlers[domain.ActionUpdateProject] = projectHandler(e.contexts)
	e.handlers[domain.ActionSendEmail] = emailHandler()
	e.handlers[domain.ActionSetGoal] = goalHandler(e.contexts)
}

func adBudgetHandler(contexts *memory.ContextStore) ActionHandler {
	return ActionHandler{
		CaptureRollback: func(ctx context.Context, userID, accountID string, _ *domain.BusinessAction) (map[string]any, error) {
			cc, err := contexts.Get(ctx, userID, accountID)
			if err != nil {
				return nil, err
			}
			return map[string]any{"previousBudget": cc.Business.Marketing.AdBudget}, nil
		},
		Execute: func(ctx context.Context, userID, accountID string, action *domain.BusinessAction) (map[string]any, error) {
			amount, ok := action.Amount()
			if !ok {
				return nil, fmt.Errorf("increase_ad_budget: missing amount parameter")
			}

			var newBudget float64
			err := contexts.UpdateBusinessState(ctx, userID, accountID, func(bs *domain.BusinessSnapshot) {
				newBudget = bs.Marketing.AdBudget + amount
				bs.Marketing.AdBudget = newBudget
				bs.Marketing.Trend = "up"
				bs.Marketing.LastUpdated = time.Now()
			})
			if err != nil {
				return nil, err
			}

			data := map[string]any{
				"previousBudget": newBudget - amount,
				"newBudget":      newBudget,
				"expectedImpact": fmt.Sprintf("estimated reach increase of %.0f%% at current ROAS", amount/10),
			}
			if campaign, ok := action.Params["campaign"].(string); ok && campaign != "" {
				data["campaign"] = campaign
			}
			return data, nil
		},
		Rollback: func(ctx context.Context, userID, accountID string, rollbackData map[string]any) error {
			previous, ok := rollbackData["previousBudget"].(float64)
			if !ok {
				return fmt.Errorf("increase_ad_budget rollback: missing previousBudget")
			}
			return contexts.UpdateBusinessState(ctx, userID, accountID, func(bs *domain.BusinessSnapshot) {
				bs.Marketing.AdBudget = previous
				bs.Marketing.LastUpdated = time.Now()
			})
		},
	}
}

func invoiceHandler() ActionHandler {
	return ActionHandler{
		Execute: func(_ context.Context, _, _ string, action *domain.BusinessAction) (map[string]any, error) {
			amount, ok := action.Amount()
			if !ok {
				return nil, fmt.Errorf("create_invoice: missing amount parameter")
			}
			client, _ := action.Params["client"].(string)
			return map[string]any{
				"invoiceId": uuid.NewString(),
				"client":    client,
				"amount":    amount,
				"status":    "draft",
				"dueDate":   time.Now().AddDate(0, 0, 30).Format("2006-01-02"),
			}, nil
		},
		Rollback: func(_ context.Context, _, _ string, _ map[string]any) error {
			// Draft invoices are voided, never deleted. Void is idempotent so
			// there is nothing to restore here.
			return nil
		},
	}
}

func projectHandler(contexts *memory.ContextStore) ActionHandler {
	return ActionHandler{
		CaptureRollback: func(ctx context.Context, userID, accountID string, _ *domain.BusinessAction) (map[string]any, error) {
			cc, err := contexts.Get(ctx, userID, accountID)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"previousActive":    cc.Business.Projects.Active,
				"previousCompleted": cc.Business.Projects.Completed,
			}, nil
		},
		Execute: func(ctx context.Context, userID, accountID string, action *domain.BusinessAction) (map[string]any, error) {
			projectID, _ := action.Params["projectId"].(string)
			if projectID == "" {
				return nil, fmt.Errorf("update_project: missing projectId parameter")
			}
			status, _ := action.Params["status"].(string)

			err := contexts.UpdateBusinessState(ctx, userID, accountID, func(bs *domain.BusinessSnapshot) {
				if status == "completed" && bs.Projects.Active > 0 {
					bs.Projects.Active--
					bs.Projects.Completed++
				}
				bs.Projects.LastUpdated = time.Now()
			})
			if err != nil {
				return nil, err
			}

			return map[string]any{
				"projectId": projectID,
				"status":    status,
			}, nil
		},
		Rollback: func(ctx context.Context, userID, accountID string, rollbackData map[string]any) error {
			return contexts.UpdateBusinessState(ctx, userID, accountID, func(bs *domain.BusinessSnapshot) {
				if v, ok := rollbackData["previousActive"].(int); ok {
					bs.Projects.Active = v
				}
				if v, ok := rollbackData["previousCompleted"].(int); ok {
					bs.Projects.Completed = v
				}
			})
		},
	}
}

func emailHandler() ActionHandler {
	return ActionHandler{
		Execute: func(_ context.Context, _, _ string, action *domain.BusinessAction) (map[string]any, error) {
			to, _ := action.Params["to"].(string)
			if to == "" {
				return nil, fmt.Errorf("send_email: missing recipient")
			}
			subject, _ := action.Params["subject"].(string)
			return map[string]any{
				"messageId": uuid.NewString(),
				"to":        to,
				"subject":   subject,
				"queued":    true,
			}, nil
		},
	}
}

func goalHandler(contexts *memory.ContextStore) ActionHandler {
	return ActionHandler{
		Execute: func(ctx context.Context, userID, accountID string, action *domain.BusinessAction) (map[string]any, error) {
			goalType, _ := action.Params["goalType"].(string)
			if goalType == "" {
				return nil, fmt.Errorf("set_goal: missing goalType parameter")
			}
			target, _ := action.Params["target"].(float64)
			timeframe, _ := action.Params["timeframe"].(string)

			goalID, err := contexts.AddGoal(ctx, userID, accountID, domain.UserGoal{
				Type:      goalType,
				Target:    target,
				Timeframe: timeframe,
				Status:    domain.GoalActive,
			})
			if err != nil {
				return nil, err
			}

			return map[string]any{
				"goalId":    goalID,
				"goalType":  goalType,
				"target":    target,
				"timeframe": timeframe,
			}, nil
		},
	}
}
