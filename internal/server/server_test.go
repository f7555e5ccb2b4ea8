package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"sntplan/internal/config"
	"sntplan/internal/db"
	"sntplan/internal/domain"
	"sntplan/internal/engine"
	"sntplan/internal/migrate"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default("snt-test")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, cfg)
	e.Workspace = workspace
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

var asTester = map[string]string{"X-Actor-Id": "tester"}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createTestProject(t *testing.T, srv *testServer, id string) domain.Project {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"id":      id,
		"name":    "Test Campaign",
		"country": "Nigeria",
		"year":    2026,
	}, asTester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project status %d: %s", res.StatusCode, string(data))
	}
	var p domain.Project
	if err := json.Unmarshal(data, &p); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}
	return p
}

func TestWorkflowLifecycle(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	p := createTestProject(t, srv, "snt-ng")

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+p.ID+"/workflow", nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get workflow: %d %s", res.StatusCode, string(data))
	}
	var wf struct {
		Steps           []map[string]any `json:"steps"`
		OverallProgress float64          `json:"overall_progress"`
		CurrentStep     *string          `json:"current_step"`
	}
	if err := json.Unmarshal(data, &wf); err != nil {
		t.Fatalf("unmarshal workflow: %v", err)
	}
	if len(wf.Steps) != 10 {
		t.Fatalf("expected 10 steps, got %d", len(wf.Steps))
	}
	if wf.OverallProgress != 0 {
		t.Fatalf("expected zero progress, got %v", wf.OverallProgress)
	}
	if wf.CurrentStep == nil {
		t.Fatal("expected a current step")
	}
	if *wf.CurrentStep != "planning_preparedness" {
		t.Fatalf("expected current step planning_preparedness, got %s", *wf.CurrentStep)
	}

	// Planning cannot complete before its required fields are filled in.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/workflow/planning_preparedness/complete", nil, asTester)
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for premature complete, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal error envelope: %v", err)
	}
	if envelope.Error.Code != "validation_failed" {
		t.Fatalf("expected validation_failed, got %s", envelope.Error.Code)
	}

	res, data = doJSON(t, client, http.MethodPatch, srv.URL+"/v1/projects/"+p.ID+"/workflow/planning_preparedness", map[string]any{
		"data": map[string]any{
			"scope_of_work":    "national stratification",
			"operational_unit": "district",
		},
	}, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update planning: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/workflow/planning_preparedness/complete", nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete planning: %d %s", res.StatusCode, string(data))
	}
	var step struct {
		Status     string  `json:"status"`
		Completion float64 `json:"completion_percentage"`
	}
	if err := json.Unmarshal(data, &step); err != nil {
		t.Fatalf("unmarshal step: %v", err)
	}
	if step.Status != "completed" || step.Completion != 100 {
		t.Fatalf("expected completed/100, got %s/%v", step.Status, step.Completion)
	}

	// Data assembly needs at least one data source.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/workflow/data_assembly/validate", nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("validate data_assembly: %d %s", res.StatusCode, string(data))
	}
	var validation struct {
		IsValid bool     `json:"is_valid"`
		Errors  []string `json:"errors"`
	}
	if err := json.Unmarshal(data, &validation); err != nil {
		t.Fatalf("unmarshal validation: %v", err)
	}
	if validation.IsValid {
		t.Fatalf("expected data_assembly to be invalid without sources")
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/data-sources", map[string]any{
		"name":        "Routine cases 2025",
		"source_type": "epidemiological",
		"file_format": "csv",
	}, asTester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register data source: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/data-sources", map[string]any{
		"name":        "District populations",
		"source_type": "demographic",
		"file_format": "csv",
	}, asTester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register demographic source: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/workflow/data_assembly/validate", nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("revalidate data_assembly: %d %s", res.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, &validation); err != nil {
		t.Fatalf("unmarshal revalidation: %v", err)
	}
	if !validation.IsValid {
		t.Fatalf("expected data_assembly valid, errors %v", validation.Errors)
	}
}

func TestScenarioCostAndForecast(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	p := createTestProject(t, srv, "snt-sc")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/scenarios", map[string]any{
		"name":          "Ideal mix",
		"scenario_type": "ideal",
		"interventions": map[string][]string{
			"Kano":   {"itn", "smc", "cm"},
			"Kaduna": {"itn", "cm"},
		},
	}, asTester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create scenario: %d %s", res.StatusCode, string(data))
	}
	var scenario struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &scenario); err != nil {
		t.Fatalf("unmarshal scenario: %v", err)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/scenarios/"+scenario.ID+"/cost", map[string]any{
		"populations": []map[string]any{
			{"admin_unit_name": "Kano", "population": 500000},
			{"admin_unit_name": "Kaduna", "population": 300000},
		},
		"years": 3,
	}, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("cost scenario: %d %s", res.StatusCode, string(data))
	}
	var cost struct {
		TotalCost float64 `json:"total_cost"`
	}
	if err := json.Unmarshal(data, &cost); err != nil {
		t.Fatalf("unmarshal cost summary: %v", err)
	}
	if cost.TotalCost <= 0 {
		t.Fatalf("expected positive total cost, got %v", cost.TotalCost)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/scenarios/"+scenario.ID+"/forecasts", map[string]any{
		"projection_years": 3,
	}, asTester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("run forecast: %d %s", res.StatusCode, string(data))
	}
	var forecast struct {
		Status         string         `json:"status"`
		ProjectedCases map[string]any `json:"projected_cases"`
	}
	if err := json.Unmarshal(data, &forecast); err != nil {
		t.Fatalf("unmarshal forecast: %v", err)
	}
	if forecast.Status != "completed" {
		t.Fatalf("expected completed forecast, got %s", forecast.Status)
	}
	if len(forecast.ProjectedCases) == 0 {
		t.Fatalf("expected projected cases")
	}
}

func TestAuthAndErrorEnvelopes(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()
	p := createTestProject(t, srv, "snt-err")

	// No credentials at all.
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d %s", res.StatusCode, string(data))
	}

	// Non-member actor cannot read the project.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+p.ID, nil, map[string]string{"X-Actor-Id": "stranger"})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d %s", res.StatusCode, string(data))
	}

	// Unknown sub-resource under a readable project is a 404.
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/projects/"+p.ID+"/data-sources/nope", nil, asTester)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "not_found" {
		t.Fatalf("expected not_found, got %q", envelope.Error.Code)
	}

	// Viewers cannot mutate.
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/members", map[string]any{
		"actor_id": "watcher",
		"role":     "viewer",
	}, asTester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add member: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/projects/"+p.ID+"/scenarios", map[string]any{
		"name":          "Denied",
		"scenario_type": "custom",
	}, map[string]string{"X-Actor-Id": "watcher"})
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403 for viewer write, got %d %s", res.StatusCode, string(data))
	}
}

func TestTailoringEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tailoring/trees", nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list trees: %d %s", res.StatusCode, string(data))
	}
	var trees []struct {
		InterventionCode string `json:"intervention_code"`
	}
	if err := json.Unmarshal(data, &trees); err != nil {
		t.Fatalf("unmarshal trees: %v", err)
	}
	if len(trees) == 0 {
		t.Fatalf("expected at least one decision tree")
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tailoring/trees/unknown-code", nil, asTester)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown tree, got %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tailoring/recommendations", map[string]any{
		"intervention_code": "smc",
		"risk_level":        "high",
		"context":           map[string]any{"seasonality": "seasonal"},
	}, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("recommend: %d %s", res.StatusCode, string(data))
	}
	var rec struct {
		InterventionCode string `json:"intervention_code"`
		IsEligible       bool   `json:"is_eligible"`
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("unmarshal recommendation: %v", err)
	}
	if rec.InterventionCode != "smc" || !rec.IsEligible {
		t.Fatalf("expected eligible smc recommendation, got %s", string(data))
	}
}
