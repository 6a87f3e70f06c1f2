// Package memory maintains the bounded, queryable memory of prior
// interactions, goals and business metrics that conditions agent behavior.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/bizpilot/bizpilot/internal/domain"
	"github.com/bizpilot/bizpilot/internal/store"
	"github.com/google/uuid"
)

// ContextStore caches conversation contexts in process and writes through
// to the durable store. It is an injected collaborator, never a
// process-global singleton.
type ContextStore struct {
	mu    sync.Mutex
	cache map[string]*domain.ConversationContext
	repo  store.Repository
}

// New creates a ContextStore backed by the given repository.
func New(repo store.Repository) *ContextStore {
	return &ContextStore{
		cache: make(map[string]*domain.ConversationContext),
		repo:  repo,
	}
}

func cacheKey(userID, accountID string) string {
	return userID + "-" + accountID
}

// Get returns the context for (userID, accountID), loading from the durable
// store on cache miss and constructing a default context when none exists.
func (s *ContextStore) Get(ctx context.Context, userID, accountID string) (*domain.ConversationContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cc, err := s.getLocked(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	return cc.Clone(), nil
}

// getLocked resolves the cached context, falling back to the durable store
// and finally a fresh default. Caller must hold s.mu.
func (s *ContextStore) getLocked(ctx context.Context, userID, accountID string) (*domain.ConversationContext, error) {
	key := cacheKey(userID, accountID)
	if cc, ok := s.cache[key]; ok {
		return cc, nil
	}

	cc, err := s.repo.GetContext(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}
	if cc == nil {
		cc = domain.NewConversationContext(userID, accountID)
	}
	s.cache[key] = cc
	return cc, nil
}

// Update applies a mutation to the current context, stamps LastUpdated and
// writes through to cache and durable store. The durable write is
// best-effort: failures are logged, not surfaced.
func (s *ContextStore) Update(ctx context.Context, userID, accountID string, apply func(*domain.ConversationContext)) (*domain.ConversationContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cc, err := s.getLocked(ctx, userID, accountID)
	if err != nil {
		return nil, err
	}

	apply(cc)
	cc.LastUpdated = time.Now()

	if err := s.repo.UpsertContext(ctx, cc); err != nil {
		slog.Warn("context write-through failed",
			"user_id", userID,
			"account_id", accountID,
			"error", err,
		)
	}

	return cc.Clone(), nil
}

// AddInteraction records a user message / assistant response pair, keeping
// only the most recent entries (newest first).
func (s *ContextStore) AddInteraction(ctx context.Context, userID, accountID, message, response string) error {
	interaction := domain.Interaction{
		ID:        uuid.NewString(),
		Message:   message,
		Response:  response,
		Sentiment: AnalyzeSentiment(message),
		Timestamp: time.Now(),
	}

	_, err := s.Update(ctx, userID, accountID, func(cc *domain.ConversationContext) {
		cc.RecentInteractions = append([]domain.Interaction{interaction}, cc.RecentInteractions...)
		if len(cc.RecentInteractions) > domain.MaxRecentInteractions {
			cc.RecentInteractions = cc.RecentInteractions[:domain.MaxRecentInteractions]
		}
	})
	return err
}

// AddGoal registers a new active goal and returns its generated ID.
func (s *ContextStore) AddGoal(ctx context.Context, userID, accountID string, goal domain.UserGoal) (string, error) {
	if goal.ID == "" {
		goal.ID = uuid.NewString()
	}
	if goal.Status == "" {
		goal.Status = domain.GoalActive
	}
	goal.CreatedAt = time.Now()

	_, err := s.Update(ctx, userID, accountID, func(cc *domain.ConversationContext) {
		cc.Goals = append(cc.Goals, goal)
	})
	return goal.ID, err
}

// UpdateGoalProgress sets progress on a goal, flipping it to achieved when
// the target is reached.
func (s *ContextStore) UpdateGoalProgress(ctx context.Context, userID, accountID, goalID string, progress float64) error {
	_, err := s.Update(ctx, userID, accountID, func(cc *domain.ConversationContext) {
		for i := range cc.Goals {
			if cc.Goals[i].ID != goalID {
				continue
			}
			cc.Goals[i].Progress = progress
			if cc.Goals[i].Target > 0 && progress >= cc.Goals[i].Target {
				cc.Goals[i].Status = domain.GoalAchieved
			}
			return
		}
	})
	return err
}

// AddBusinessAction appends an executed-action record, keeping only the most
// recent entries (newest first).
func (s *ContextStore) AddBusinessAction(ctx context.Context, userID, accountID string, record domain.ActionRecord) error {
	_, err := s.Update(ctx, userID, accountID, func(cc *domain.ConversationContext) {
		cc.PreviousActions = append([]domain.ActionRecord{record}, cc.PreviousActions...)
		if len(cc.PreviousActions) > domain.MaxPreviousActions {
			cc.PreviousActions = cc.PreviousActions[:domain.MaxPreviousActions]
		}
	})
	return err
}

// UpdateBusinessState merges a partial snapshot update onto the current
// business snapshot.
func (s *ContextStore) UpdateBusinessState(ctx context.Context, userID, accountID string, apply func(*domain.BusinessSnapshot)) error {
	_, err := s.Update(ctx, userID, accountID, func(cc *domain.ConversationContext) {
		apply(&cc.Business)
	})
	return err
}
