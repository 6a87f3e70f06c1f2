package actions

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bizpilot/bizpilot/internal/domain"
	"github.com/bizpilot/bizpilot/internal/identity"
	"github.com/go-chi/chi/v5"
)

func newTestRouter(t *testing.T, e *Executor) chi.Router {
	t.Helper()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := identity.WithIdentity(req.Context(), "user-1", "acct-1")
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	NewHandler(e).RegisterRoutes(r)
	return r
}

func TestHandleConfirmApprovesPendingAction(t *testing.T) {
	e, _, contexts := newTestExecutor(t)
	router := newTestRouter(t, e)

	proposal, err := e.ExecuteAction(context.Background(), IncreaseAdBudget(500, ""), "user-1", "acct-1", false)
	if err != nil {
		t.Fatalf("ExecuteAction failed: %v", err)
	}
	actionID := proposal.Data["actionId"].(string)

	req := httptest.NewRequest(http.MethodPost, "/actions/"+actionID+"/confirm",
		strings.NewReader(`{"approved":true}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var result domain.ActionResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !result.Success {
		t.Errorf("result = %+v", result)
	}
	if result.Data["newBudget"] != 500.0 {
		t.Errorf("newBudget = %v, want 500", result.Data["newBudget"])
	}

	cc, _ := contexts.Get(context.Background(), "user-1", "acct-1")
	if cc.Business.Marketing.AdBudget != 500 {
		t.Errorf("AdBudget = %v after approval, want 500", cc.Business.Marketing.AdBudget)
	}
}

func TestHandleConfirmRejection(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	router := newTestRouter(t, e)

	proposal, err := e.ExecuteAction(context.Background(), IncreaseAdBudget(500, ""), "user-1", "acct-1", false)
	if err != nil {
		t.Fatalf("ExecuteAction failed: %v", err)
	}
	actionID := proposal.Data["actionId"].(string)

	req := httptest.NewRequest(http.MethodPost, "/actions/"+actionID+"/confirm",
		strings.NewReader(`{"approved":false}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var result domain.ActionResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.Data["cancelled"] != true {
		t.Errorf("result = %+v, want cancelled=true", result)
	}
}

func TestHandleConfirmUnknownAction(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	router := newTestRouter(t, e)

	req := httptest.NewRequest(http.MethodPost, "/actions/no-such-id/confirm",
		strings.NewReader(`{"approved":true}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestHandleConfirmRejectsForeignAction(t *testing.T) {
	e, _, contexts := newTestExecutor(t)
	router := newTestRouter(t, e)

	// Pending action belongs to another user; the routed caller is user-1.
	proposal, err := e.ExecuteAction(context.Background(), IncreaseAdBudget(500, ""), "victim", "acct-9", false)
	if err != nil {
		t.Fatalf("ExecuteAction failed: %v", err)
	}
	actionID := proposal.Data["actionId"].(string)

	req := httptest.NewRequest(http.MethodPost, "/actions/"+actionID+"/confirm",
		strings.NewReader(`{"approved":true}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 for another user's action", rec.Code)
	}
	cc, _ := contexts.Get(context.Background(), "victim", "acct-9")
	if cc.Business.Marketing.AdBudget != 0 {
		t.Errorf("AdBudget = %v, foreign confirm must not execute", cc.Business.Marketing.AdBudget)
	}
	if pending := e.PendingActions("victim"); len(pending) != 1 {
		t.Errorf("victim's pending entry consumed by foreign confirm: %d entries", len(pending))
	}
}

func TestHandleConfirmRequiresIdentity(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	r := chi.NewRouter()
	NewHandler(e).RegisterRoutes(r)

	req := httptest.NewRequest(http.MethodPost, "/actions/some-id/confirm",
		strings.NewReader(`{"approved":true}`))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHandlePendingListsOwnActionsOnly(t *testing.T) {
	e, _, _ := newTestExecutor(t)
	router := newTestRouter(t, e)
	ctx := context.Background()

	if _, err := e.ExecuteAction(ctx, IncreaseAdBudget(500, ""), "user-1", "acct-1", false); err != nil {
		t.Fatalf("ExecuteAction failed: %v", err)
	}
	if _, err := e.ExecuteAction(ctx, IncreaseAdBudget(700, ""), "other-user", "acct-9", false); err != nil {
		t.Fatalf("ExecuteAction failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/actions/pending", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp struct {
		Pending []map[string]any `json:"pending"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Pending) != 1 {
		t.Fatalf("pending = %d entries, want only the caller's", len(resp.Pending))
	}
	if resp.Pending[0]["type"] != string(domain.ActionIncreaseAdBudget) {
		t.Errorf("pending entry = %v", resp.Pending[0])
	}
}
