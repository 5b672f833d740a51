package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pms/internal/app/server"
	"pms/internal/domain/auth"
	"pms/internal/platform/config"
	"pms/internal/platform/testhelpers"
)

type envelope struct {
	Success  bool            `json:"success"`
	Data     json.RawMessage `json:"data"`
	Warnings []string        `json:"warnings"`
	Error    any             `json:"error"`
}

const seedYAML = `annual_targets:
  - id: %s
    name: Journey
    year: 2026
    rating_scales:
      - {score: 1, name: Low, min: 0, max: 2.49, color: red}
      - {score: 3, name: Mid, min: 2.5, max: 3.99, color: yellow}
      - {score: 5, name: High, min: 4, max: 5, color: green}
`

func newApp(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	testDB := testhelpers.GetTestDB(t)

	annualID := fmt.Sprintf("journey-%d", time.Now().UnixNano())
	seedFile := filepath.Join(t.TempDir(), "annual_targets.yaml")
	if err := os.WriteFile(seedFile, []byte(fmt.Sprintf(seedYAML, annualID)), 0o600); err != nil {
		t.Fatalf("write seed: %v", err)
	}

	cfg := config.Config{
		Addr:               ":0",
		Environment:        "test",
		DatabaseURL:        testDB.ConnStr,
		JWTSecret:          "test-secret",
		BusyTTL:            30 * time.Second,
		EmailFrom:          "no-reply@test.local",
		RunMigrations:      true,
		MigrationsDir:      testhelpers.MigrationsDir(),
		RunSeed:            true,
		SeedFile:           seedFile,
		MaxBodyBytes:       1048576,
		RateLimitPerMinute: 1000,
		MetricsEnabled:     true,
	}

	app, err := server.New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to start app: %v", err)
	}
	ts := httptest.NewServer(app.Router)
	t.Cleanup(func() {
		ts.Close()
		app.Close()
	})
	return ts, annualID
}

func call(t *testing.T, ts *httptest.Server, method, path, userID, role string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, err := auth.GenerateToken("test-secret", auth.Claims{UserID: userID, RoleName: role}, time.Hour)
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("%s %s: decode: %v", method, path, err)
	}
	return resp.StatusCode, env
}

func TestAssessmentJourneyPersistsAuditsAndNotifies(t *testing.T) {
	ts, annualID := newApp(t)
	employee := fmt.Sprintf("emp-%d", time.Now().UnixNano())
	base := "/api/v1/performance/" + annualID + "/employees/" + employee

	steps := []struct {
		method, path, user, role string
		body                     any
	}{
		{http.MethodPut, base + "/quarters/Q3/supervisor", employee, auth.RoleEmployee, map[string]string{"supervisorId": "sup-journey"}},
		{http.MethodPost, base + "/quarters/Q3/objectives", employee, auth.RoleEmployee, map[string]any{
			"perspectiveId": "finance", "name": "Margin", "initiative": "Pricing",
			"kpis": []map[string]any{{"indicator": "Gross margin", "weight": 100}},
		}},
		{http.MethodPost, base + "/quarters/Q3/agreement/submit", employee, auth.RoleEmployee, nil},
		{http.MethodPost, base + "/quarters/Q3/agreement/approve", "sup-journey", auth.RoleSupervisor, nil},
	}
	for _, step := range steps {
		code, env := call(t, ts, step.method, step.path, step.user, step.role, step.body)
		if code != http.StatusOK {
			t.Fatalf("%s %s: expected 200, got %d (%v)", step.method, step.path, code, env.Error)
		}
	}

	code, env := call(t, ts, http.MethodGet, base, employee, auth.RoleEmployee, nil)
	if code != http.StatusOK {
		t.Fatalf("expected read to pass, got %d", code)
	}
	var view struct {
		Exists   bool `json:"exists"`
		Quarters []struct {
			Quarter   string `json:"quarter"`
			Agreement struct {
				Status string `json:"status"`
			} `json:"agreement"`
		} `json:"quarters"`
	}
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if !view.Exists || view.Quarters[2].Agreement.Status != "Approved" {
		t.Fatalf("expected persisted approved Q3 agreement, got %+v", view)
	}

	code, env = call(t, ts, http.MethodGet, "/api/v1/audit/?entityId="+annualID+"/"+employee+"/Q3", "admin-1", auth.RoleAdmin, nil)
	if code != http.StatusOK {
		t.Fatalf("expected audit list, got %d", code)
	}
	var events []map[string]any
	if err := json.Unmarshal(env.Data, &events); err != nil {
		t.Fatalf("decode audit: %v", err)
	}
	if len(events) != len(steps) {
		t.Fatalf("expected %d audit events, got %d", len(steps), len(events))
	}

	code, env = call(t, ts, http.MethodGet, "/api/v1/notifications/", "sup-journey", auth.RoleSupervisor, nil)
	if code != http.StatusOK {
		t.Fatalf("expected notifications list, got %d", code)
	}
	var items []map[string]any
	if err := json.Unmarshal(env.Data, &items); err != nil {
		t.Fatalf("decode notifications: %v", err)
	}
	if len(items) == 0 {
		t.Fatal("expected supervisor to receive the submit notification")
	}
}

func TestHealthAndMetrics(t *testing.T) {
	ts, _ := newApp(t)

	resp, err := ts.Client().Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatalf("readyz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected ready, got %d", resp.StatusCode)
	}

	code, env := call(t, ts, http.MethodGet, "/metrics", "", "", nil)
	if code != http.StatusOK {
		t.Fatalf("expected metrics, got %d", code)
	}
	var snap map[string]any
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if _, ok := snap["transitions"]; !ok {
		t.Fatal("expected transition counters in metrics snapshot")
	}
}
