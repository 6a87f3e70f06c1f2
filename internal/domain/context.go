package domain

import (
	"time"
)

// Bounds for the rolling history kept on a conversation context.
const (
	MaxRecentInteractions = 10
	MaxPreviousActions    = 20
)

// Interaction is one user message / assistant response pair with an
// approximate sentiment label.
type Interaction struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Response  string    `json:"response"`
	Sentiment string    `json:"sentiment"`
	Timestamp time.Time `json:"timestamp"`
}

// GoalStatus is the lifecycle state of a user goal.
type GoalStatus string

const (
	GoalActive   GoalStatus = "active"
	GoalAchieved GoalStatus = "achieved"
	GoalPaused   GoalStatus = "paused"
)

// UserGoal is a business target the user wants the agent to track.
type UserGoal struct {
	ID        string     `json:"id"`
	Type      string     `json:"type"`
	Target    float64    `json:"target"`
	Timeframe string     `json:"timeframe"`
	Progress  float64    `json:"progress"`
	Status    GoalStatus `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
}

// TrackedMetric is a named business metric the user asked to watch.
type TrackedMetric struct {
	Name      string    `json:"name"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit,omitempty"`
	Trend     string    `json:"trend,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserPreferences condition tone and risk appetite of agent behavior.
type UserPreferences struct {
	CommunicationStyle string `json:"communication_style"`
	RiskTolerance      string `json:"risk_tolerance"`
	Notifications      bool   `json:"notifications"`
}

// RevenueSnapshot is the latest known revenue picture.
type RevenueSnapshot struct {
	Monthly     float64   `json:"monthly"`
	Trend       string    `json:"trend"`
	LastUpdated time.Time `json:"last_updated"`
}

// ProjectsSnapshot is the latest known project counts.
type ProjectsSnapshot struct {
	Active      int       `json:"active"`
	Completed   int       `json:"completed"`
	Trend       string    `json:"trend"`
	LastUpdated time.Time `json:"last_updated"`
}

// MarketingSnapshot is the latest known marketing spend picture.
type MarketingSnapshot struct {
	AdBudget    float64   `json:"ad_budget"`
	ROAS        float64   `json:"roas"`
	Trend       string    `json:"trend"`
	LastUpdated time.Time `json:"last_updated"`
}

// BusinessSnapshot grounds the reasoning engine in current business numbers.
type BusinessSnapshot struct {
	Revenue   RevenueSnapshot   `json:"revenue"`
	Projects  ProjectsSnapshot  `json:"projects"`
	Marketing MarketingSnapshot `json:"marketing"`
}

// ConversationContext is the long-lived memory for one (user, account) pair.
// Newest entries come first in the bounded lists.
type ConversationContext struct {
	UserID             string              `json:"user_id"`
	AccountID          string              `json:"account_id"`
	RecentInteractions []Interaction       `json:"recent_interactions"`
	Goals              []UserGoal          `json:"goals"`
	Metrics            []TrackedMetric     `json:"metrics"`
	PreviousActions    []ActionRecord      `json:"previous_actions"`
	Preferences        UserPreferences     `json:"preferences"`
	Business           BusinessSnapshot    `json:"business"`
	LastUpdated        time.Time           `json:"last_updated"`
}

// NewConversationContext returns a context with sane defaults for first access.
func NewConversationContext(userID, accountID string) *ConversationContext {
	now := time.Now()
	return &ConversationContext{
		UserID:             userID,
		AccountID:          accountID,
		RecentInteractions: []Interaction{},
		Goals:              []UserGoal{},
		Metrics:            []TrackedMetric{},
		PreviousActions:    []ActionRecord{},
		Preferences: UserPreferences{
			CommunicationStyle: "concise",
			RiskTolerance:      "moderate",
			Notifications:      true,
		},
		Business: BusinessSnapshot{
			Revenue:   RevenueSnapshot{Trend: "flat", LastUpdated: now},
			Projects:  ProjectsSnapshot{Trend: "flat", LastUpdated: now},
			Marketing: MarketingSnapshot{Trend: "flat", LastUpdated: now},
		},
		LastUpdated: now,
	}
}

// Clone returns a deep copy so cached contexts can be handed out safely.
func (c *ConversationContext) Clone() *ConversationContext {
	out := *c
	out.RecentInteractions = append([]Interaction(nil), c.RecentInteractions...)
	out.Goals = append([]UserGoal(nil), c.Goals...)
	out.Metrics = append([]TrackedMetric(nil), c.Metrics...)
	out.PreviousActions = append([]ActionRecord(nil), c.PreviousActions...)
	return &out
}
