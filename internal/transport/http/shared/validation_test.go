package shared

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type kpiPayload struct {
	Indicator string `json:"indicator" validate:"required"`
	Weight    int    `json:"weight" validate:"min=1,max=100"`
}

type objectivePayload struct {
	Name string       `json:"name" validate:"required,max=5"`
	KPIs []kpiPayload `json:"kpis" validate:"dive"`
}

func TestStructUsesJSONFieldNames(t *testing.T) {
	v := NewValidator()
	v.Struct(objectivePayload{Name: "too long", KPIs: []kpiPayload{{Weight: 0}}})

	issues := v.Issues()
	want := map[string]string{
		"kpis[0].indicator": "is required",
		"kpis[0].weight":    "must be at least 1",
		"name":              "must be at most 5 characters",
	}
	if len(issues) != len(want) {
		t.Fatalf("expected %d issues, got %+v", len(want), issues)
	}
	for _, issue := range issues {
		if want[issue.Field] != issue.Reason {
			t.Fatalf("unexpected issue %+v", issue)
		}
	}
}

func TestStructValidPayload(t *testing.T) {
	v := NewValidator()
	v.Struct(objectivePayload{Name: "ok", KPIs: []kpiPayload{{Indicator: "NPS", Weight: 40}}})
	if v.HasIssues() {
		t.Fatalf("expected no issues, got %+v", v.Issues())
	}
}

func TestRejectWritesUnprocessableEntity(t *testing.T) {
	v := NewValidator()
	v.Required("reason", " ", "is required")
	v.Enum("phase", "review", []string{"agreement", "assessment"}, "must be agreement or assessment")

	rec := httptest.NewRecorder()
	if !v.Reject(rec, "req-1") {
		t.Fatal("expected reject")
	}
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rec.Code)
	}
	var env struct {
		Error struct {
			Code    string `json:"code"`
			Details struct {
				Fields []ValidationIssue `json:"fields"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Code != "validation_error" || len(env.Error.Details.Fields) != 2 {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if env.Error.Details.Fields[0].Field != "phase" {
		t.Fatalf("issues should be sorted by field, got %+v", env.Error.Details.Fields)
	}
}

func TestParsePagination(t *testing.T) {
	v := NewValidator()
	page := ParsePagination(httptest.NewRequest(http.MethodGet, "/?limit=900&offset=20", nil), 20, 100, v)
	if page.Limit != 100 || page.Offset != 20 || v.HasIssues() {
		t.Fatalf("unexpected page %+v issues %v", page, v.Issues())
	}

	v = NewValidator()
	page = ParsePagination(httptest.NewRequest(http.MethodGet, "/", nil), 20, 100, v)
	if page.Limit != 20 || page.Offset != 0 || v.HasIssues() {
		t.Fatalf("unexpected default page %+v", page)
	}

	v = NewValidator()
	ParsePagination(httptest.NewRequest(http.MethodGet, "/?limit=-1&offset=abc", nil), 20, 100, v)
	issues := v.Issues()
	if len(issues) != 2 || issues[0].Field != "limit" || issues[1].Field != "offset" {
		t.Fatalf("expected limit and offset issues, got %+v", issues)
	}

	rec := httptest.NewRecorder()
	Pagination{Limit: 50, Offset: 100}.WriteHeaders(rec, 130)
	if rec.Header().Get("X-Total-Count") != "130" || rec.Header().Get("X-Limit") != "50" || rec.Header().Get("X-Offset") != "100" {
		t.Fatalf("unexpected headers %v", rec.Header())
	}
}
