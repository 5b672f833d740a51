package performancehandler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"pms/internal/domain/auth"
	"pms/internal/domain/performance"
	"pms/internal/platform/lock"
	"pms/internal/transport/http/middleware"
)

const testSecret = "handler-secret"

type memStore struct {
	mu     sync.Mutex
	docs   map[string]performance.PersonalPerformance
	annual map[string]performance.AnnualTarget
}

func newMemStore() *memStore {
	return &memStore{
		docs: map[string]performance.PersonalPerformance{},
		annual: map[string]performance.AnnualTarget{"fy2026": {
			ID: "fy2026", Name: "FY 2026", Year: 2026,
			RatingScales: []performance.RatingScale{
				{Score: 1, Name: "Poor", Min: 0, Max: 2.49, Color: "red"},
				{Score: 3, Name: "Good", Min: 2.5, Max: 3.49, Color: "yellow"},
				{Score: 5, Name: "Outstanding", Min: 3.5, Max: 5, Color: "blue"},
			},
		}},
	}
}

func (m *memStore) GetPersonalPerformance(_ context.Context, userID, annualTargetID string) (performance.PersonalPerformance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[userID+"|"+annualTargetID]
	if !ok {
		return performance.PersonalPerformance{}, performance.ErrNotFound
	}
	return doc, nil
}

func (m *memStore) ReplacePersonalPerformance(_ context.Context, doc performance.PersonalPerformance) (performance.PersonalPerformance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[doc.UserID+"|"+doc.AnnualTargetID] = doc
	return doc, nil
}

func (m *memStore) GetAnnualTarget(_ context.Context, id string) (performance.AnnualTarget, error) {
	target, ok := m.annual[id]
	if !ok {
		return performance.AnnualTarget{}, performance.ErrAnnualTargetNotFound
	}
	return target, nil
}

func (m *memStore) ListAnnualTargets(context.Context) ([]performance.AnnualTarget, error) {
	out := make([]performance.AnnualTarget, 0, len(m.annual))
	for _, target := range m.annual {
		out = append(out, target)
	}
	return out, nil
}

func (m *memStore) UpsertAnnualTarget(_ context.Context, target performance.AnnualTarget) error {
	m.annual[target.ID] = target
	return nil
}

type envelope struct {
	Success  bool                     `json:"success"`
	Data     performance.DocumentView `json:"data"`
	Warnings []string                 `json:"warnings"`
	Error    *struct {
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

type testAPI struct {
	t      *testing.T
	router http.Handler
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	svc := performance.NewService(newMemStore(), nil, lock.NewMemoryGuard(time.Minute))
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Auth(testSecret))
	r.Route("/api/v1", func(r chi.Router) {
		NewHandler(svc, auth.StaticPermissions{}).RegisterRoutes(r)
	})
	return &testAPI{t: t, router: r}
}

func (a *testAPI) do(method, path, userID, role string, body any) (int, envelope) {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			a.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, "/api/v1/performance/fy2026/employees/emp-1"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := auth.GenerateToken(testSecret, auth.Claims{UserID: userID, RoleName: role}, time.Hour)
		if err != nil {
			a.t.Fatalf("token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)

	var env envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		a.t.Fatalf("%s %s: decode response: %v", method, path, err)
	}
	return rec.Code, env
}

func quarter(t *testing.T, view performance.DocumentView, q performance.Quarter) performance.QuarterView {
	t.Helper()
	for _, qv := range view.Quarters {
		if qv.Quarter == q {
			return qv
		}
	}
	t.Fatalf("quarter %s missing from view", q)
	return performance.QuarterView{}
}

func TestAgreementJourney(t *testing.T) {
	api := newTestAPI(t)

	code, env := api.do(http.MethodGet, "", "emp-1", auth.RoleEmployee, nil)
	if code != http.StatusOK || env.Data.Exists {
		t.Fatalf("expected zero-state document, got %d exists=%v", code, env.Data.Exists)
	}

	code, _ = api.do(http.MethodPut, "/quarters/Q2/supervisor", "emp-1", auth.RoleEmployee, map[string]string{"supervisorId": "sup-1"})
	if code != http.StatusOK {
		t.Fatalf("expected supervisor change to pass, got %d", code)
	}

	code, env = api.do(http.MethodPost, "/quarters/Q2/objectives", "emp-1", auth.RoleEmployee, map[string]any{
		"perspectiveId": "customer",
		"name":          "Grow revenue",
		"initiative":    "Sales",
		"kpis":          []map[string]any{{"indicator": "Revenue", "weight": 60}},
	})
	if code != http.StatusOK {
		t.Fatalf("expected objective create to pass, got %d", code)
	}
	if got := quarter(t, env.Data, performance.Q2).TotalWeight; got != 60 {
		t.Fatalf("expected total weight 60, got %d", got)
	}

	code, env = api.do(http.MethodPost, "/quarters/Q2/agreement/submit", "emp-1", auth.RoleEmployee, nil)
	if code != http.StatusUnprocessableEntity || env.Error == nil || env.Error.Code != "validation_error" {
		t.Fatalf("expected submit at 60 to fail validation, got %d", code)
	}
	if quarter(t, env.Data, performance.Q2).Agreement.Status != performance.StatusDraft {
		t.Fatal("expected last known-good state in failure response")
	}

	objectiveID := env.Data.Document.QuarterlyTargets[1].Objectives[0].ID
	code, _ = api.do(http.MethodPost, "/quarters/Q2/objectives/"+objectiveID+"/kpis", "emp-1", auth.RoleEmployee, map[string]any{"indicator": "Churn", "weight": 40})
	if code != http.StatusOK {
		t.Fatalf("expected kpi create to pass, got %d", code)
	}

	code, env = api.do(http.MethodPost, "/quarters/Q2/agreement/submit", "emp-1", auth.RoleEmployee, nil)
	if code != http.StatusOK || quarter(t, env.Data, performance.Q2).Agreement.Status != performance.StatusSubmitted {
		t.Fatalf("expected submit to pass, got %d", code)
	}

	code, _ = api.do(http.MethodPost, "/quarters/Q2/agreement/approve", "emp-1", auth.RoleEmployee, nil)
	if code != http.StatusForbidden {
		t.Fatalf("expected employee approve to be forbidden, got %d", code)
	}

	code, env = api.do(http.MethodPost, "/quarters/Q2/agreement/approve", "sup-1", auth.RoleSupervisor, nil)
	if code != http.StatusOK || quarter(t, env.Data, performance.Q2).Agreement.Status != performance.StatusApproved {
		t.Fatalf("expected approve to pass, got %d", code)
	}

	code, env = api.do(http.MethodPost, "/quarters/Q2/agreement/submit", "emp-1", auth.RoleEmployee, nil)
	if code != http.StatusConflict || env.Error.Code != "invalid_transition" {
		t.Fatalf("expected resubmit of approved agreement to conflict, got %d", code)
	}

	code, env = api.do(http.MethodPost, "/quarters/Q2/agreement/committee/accept", "com-1", auth.RoleCommittee, nil)
	if code != http.StatusOK || quarter(t, env.Data, performance.Q2).Agreement.ReviewStatus != performance.ReviewStatusReviewed {
		t.Fatalf("expected committee accept to pass, got %d", code)
	}

	code, env = api.do(http.MethodPost, "/quarters/Q2/agreement/committee/unaccept", "com-1", auth.RoleCommittee, nil)
	if code != http.StatusOK || quarter(t, env.Data, performance.Q2).Agreement.ReviewStatus != performance.ReviewStatusNotReviewed {
		t.Fatalf("expected committee unaccept to pass, got %d", code)
	}
}

func TestSendBackRequiresReason(t *testing.T) {
	api := newTestAPI(t)

	code, env := api.do(http.MethodPost, "/quarters/Q2/agreement/send-back", "sup-1", auth.RoleSupervisor, map[string]string{"reason": ""})
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", code)
	}
	fields, _ := env.Error.Details["fields"].([]any)
	if len(fields) != 1 {
		t.Fatalf("expected one field issue, got %v", env.Error.Details)
	}

	code, _ = api.do(http.MethodPost, "/quarters/Q2/agreement/send-back", "sup-1", auth.RoleSupervisor, map[string]string{"reason": "x", "flow": "sideways"})
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("expected unknown flow to be rejected, got %d", code)
	}
}

func TestRouteParameterValidation(t *testing.T) {
	api := newTestAPI(t)

	code, _ := api.do(http.MethodPost, "/quarters/Q9/agreement/submit", "emp-1", auth.RoleEmployee, nil)
	if code != http.StatusNotFound {
		t.Fatalf("expected unknown quarter to 404, got %d", code)
	}
	code, _ = api.do(http.MethodPost, "/quarters/Q1/review/submit", "emp-1", auth.RoleEmployee, nil)
	if code != http.StatusNotFound {
		t.Fatalf("expected unknown phase to 404, got %d", code)
	}
	code, _ = api.do(http.MethodGet, "", "", "", nil)
	if code != http.StatusUnauthorized {
		t.Fatalf("expected anonymous read to 401, got %d", code)
	}
	code, _ = api.do(http.MethodGet, "", "emp-2", auth.RoleEmployee, nil)
	if code != http.StatusForbidden {
		t.Fatalf("expected stranger read to 403, got %d", code)
	}
}

func TestQ1LockedUntilComplete(t *testing.T) {
	api := newTestAPI(t)

	code, env := api.do(http.MethodPost, "/quarters/Q1/objectives", "emp-1", auth.RoleEmployee, map[string]any{
		"perspectiveId": "people",
		"name":          "Hire",
		"kpis":          []map[string]any{{"indicator": "Hires", "weight": 100}},
	})
	if code != http.StatusOK {
		t.Fatalf("expected Q1 agreement edit to pass, got %d", code)
	}
	target := env.Data.Document.QuarterlyTargets[0]
	if target.IsEditable == nil || !*target.IsEditable {
		t.Fatal("expected Q1 to become editable at 100")
	}

	code, env = api.do(http.MethodPut, "/quarters/Q1/kpis/"+target.Objectives[0].KPIs[0].ID+"/achievement", "emp-1", auth.RoleEmployee, map[string]any{"ratingScore": 7})
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("expected out-of-scale rating to be rejected, got %d", code)
	}
}

func TestAchievementWithoutRatingStaysUnrated(t *testing.T) {
	api := newTestAPI(t)

	code, env := api.do(http.MethodPost, "/quarters/Q2/objectives", "emp-1", auth.RoleEmployee, map[string]any{
		"perspectiveId": "customer",
		"name":          "Retention",
		"kpis":          []map[string]any{{"indicator": "Churn", "weight": 100}},
	})
	if code != http.StatusOK {
		t.Fatalf("expected objective create to pass, got %d", code)
	}
	kpiID := env.Data.Document.QuarterlyTargets[1].Objectives[0].KPIs[0].ID

	code, env = api.do(http.MethodPut, "/quarters/Q2/kpis/"+kpiID+"/achievement", "emp-1", auth.RoleEmployee, map[string]any{"actualAchieved": "2.1%"})
	if code != http.StatusOK {
		t.Fatalf("expected achievement without rating to pass on a 1-based scale, got %d", code)
	}
	kpi := env.Data.Document.QuarterlyTargets[1].Objectives[0].KPIs[0]
	if kpi.RatingScore != performance.Unrated || kpi.ActualAchieved != "2.1%" {
		t.Fatalf("expected unrated kpi with actual recorded, got score=%d actual=%q", kpi.RatingScore, kpi.ActualAchieved)
	}

	code, _ = api.do(http.MethodPut, "/quarters/Q2/kpis/"+kpiID+"/achievement", "emp-1", auth.RoleEmployee, map[string]any{"ratingScore": 0})
	if code != http.StatusUnprocessableEntity {
		t.Fatalf("expected explicit 0 outside the scale to be rejected, got %d", code)
	}
}
