package memory

import (
	"fmt"
	"strings"

	"github.com/bizpilot/bizpilot/internal/domain"
)

const (
	promptMaxInteractions = 3
	promptMaxActions      = 5
)

// ContextualPrompt renders the current context into the system prompt passed
// to the reasoning engine. Pure function: identical input (same ordering)
// yields byte-identical output.
func ContextualPrompt(cc *domain.ConversationContext) string {
	var b strings.Builder

	b.WriteString("You are a business operations copilot for this account.\n")
	fmt.Fprintf(&b, "Communication style: %s. Risk tolerance: %s.\n",
		cc.Preferences.CommunicationStyle, cc.Preferences.RiskTolerance)

	b.WriteString("\n<business_snapshot>\n")
	fmt.Fprintf(&b, "Monthly revenue: $%.2f (%s)\n", cc.Business.Revenue.Monthly, cc.Business.Revenue.Trend)
	fmt.Fprintf(&b, "Projects: %d active, %d completed (%s)\n",
		cc.Business.Projects.Active, cc.Business.Projects.Completed, cc.Business.Projects.Trend)
	fmt.Fprintf(&b, "Ad budget: $%.2f at %.2fx ROAS (%s)\n",
		cc.Business.Marketing.AdBudget, cc.Business.Marketing.ROAS, cc.Business.Marketing.Trend)
	b.WriteString("</business_snapshot>\n")

	activeGoals := make([]domain.UserGoal, 0, len(cc.Goals))
	for _, g := range cc.Goals {
		if g.Status == domain.GoalActive {
			activeGoals = append(activeGoals, g)
		}
	}
	if len(activeGoals) > 0 {
		b.WriteString("\n<active_goals>\n")
		for _, g := range activeGoals {
			fmt.Fprintf(&b, "- %s: %.2f of %.2f (%s)\n", g.Type, g.Progress, g.Target, g.Timeframe)
		}
		b.WriteString("</active_goals>\n")
	}

	if len(cc.RecentInteractions) > 0 {
		b.WriteString("\n<recent_interactions>\n")
		for _, in := range head(cc.RecentInteractions, promptMaxInteractions) {
			fmt.Fprintf(&b, "UserMessage(%s) [%s]\n", in.Message, in.Sentiment)
		}
		b.WriteString("</recent_interactions>\n")
	}

	if len(cc.PreviousActions) > 0 {
		b.WriteString("\n<recent_actions>\n")
		for _, a := range head(cc.PreviousActions, promptMaxActions) {
			mark := "✗"
			if a.Success {
				mark = "✓"
			}
			fmt.Fprintf(&b, "%s %s: %s\n", mark, a.Type, a.Description)
		}
		b.WriteString("</recent_actions>\n")
	}

	return b.String()
}

func head[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[:n]
}
