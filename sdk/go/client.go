package sntplansdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal SNT planning HTTP API client.
type Client struct {
	BaseURL     string
	ProjectID   string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, projectID string) *Client {
	return &Client{
		BaseURL:   baseURL,
		ProjectID: projectID,
		Timeout:   10 * time.Second,
	}
}

// Project represents the API project model (partial).
type Project struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Country    string `json:"country"`
	AdminLevel int    `json:"admin_level"`
	Year       int    `json:"year"`
	Status     string `json:"status"`
	IsArchived bool   `json:"is_archived"`
}

// WorkflowStep is one rung of the tailoring ladder.
type WorkflowStep struct {
	Step         string  `json:"step"`
	Label        string  `json:"label"`
	Status       string  `json:"status"`
	Completion   float64 `json:"completion_percentage"`
	IsAccessible bool    `json:"is_accessible"`
}

// Workflow is the full ladder with overall progress.
type Workflow struct {
	ProjectID       string         `json:"project_id"`
	Steps           []WorkflowStep `json:"steps"`
	OverallProgress float64        `json:"overall_progress"`
	CurrentStep     *string        `json:"current_step,omitempty"`
}

// DataSource represents a registered dataset.
type DataSource struct {
	ID           string   `json:"id"`
	ProjectID    string   `json:"project_id"`
	Name         string   `json:"name"`
	SourceType   string   `json:"source_type"`
	QualityScore *float64 `json:"quality_score,omitempty"`
}

// Scenario represents an intervention mix.
type Scenario struct {
	ID            string              `json:"id"`
	ProjectID     string              `json:"project_id"`
	Name          string              `json:"name"`
	ScenarioType  string              `json:"scenario_type"`
	IsSelected    bool                `json:"is_selected"`
	Interventions map[string][]string `json:"interventions"`
	TotalCost     *float64            `json:"total_cost,omitempty"`
}

// CostSummary is the result of costing a scenario.
type CostSummary struct {
	ScenarioID         string             `json:"scenario_id"`
	TotalCost          float64            `json:"total_cost"`
	CostByIntervention map[string]float64 `json:"cost_by_intervention"`
	CostByUnit         map[string]float64 `json:"cost_by_unit"`
	TotalPopulation    int64              `json:"total_population"`
}

// Forecast represents a projected impact run.
type Forecast struct {
	ID             string           `json:"id"`
	ScenarioID     string           `json:"scenario_id"`
	Status         string           `json:"status"`
	ModelType      string           `json:"model_type"`
	ProjectedCases map[string]int64 `json:"projected_cases,omitempty"`
	CasesAverted   *int64           `json:"cases_averted,omitempty"`
	DeathsAverted  *int64           `json:"deaths_averted,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	Payload    map[string]any `json:"payload"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// GetProject fetches the client's project.
func (c *Client) GetProject(ctx context.Context) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("v1/projects/%s", url.PathEscape(c.ProjectID)), nil, &resp)
	return resp, err
}

// GetWorkflow returns all workflow steps with progress.
func (c *Client) GetWorkflow(ctx context.Context) (Workflow, error) {
	var resp Workflow
	err := c.do(ctx, http.MethodGet, c.projectPath("workflow"), nil, &resp)
	return resp, err
}

// CompleteStep marks a workflow step completed.
func (c *Client) CompleteStep(ctx context.Context, step string) (WorkflowStep, error) {
	var resp WorkflowStep
	endpoint := c.projectPath(fmt.Sprintf("workflow/%s/complete", url.PathEscape(step)))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// RegisterDataSource registers a dataset.
func (c *Client) RegisterDataSource(ctx context.Context, name, sourceType string) (DataSource, error) {
	body := map[string]any{
		"name":        name,
		"source_type": sourceType,
	}
	var resp DataSource
	err := c.do(ctx, http.MethodPost, c.projectPath("data-sources"), body, &resp)
	return resp, err
}

// CreateScenario creates an intervention scenario.
func (c *Client) CreateScenario(ctx context.Context, name, scenarioType string, interventions map[string][]string) (Scenario, error) {
	body := map[string]any{
		"name":          name,
		"scenario_type": scenarioType,
		"interventions": interventions,
	}
	var resp Scenario
	err := c.do(ctx, http.MethodPost, c.projectPath("scenarios"), body, &resp)
	return resp, err
}

// CostScenario prices a scenario against unit populations.
func (c *Client) CostScenario(ctx context.Context, scenarioID string, populations []map[string]any, years int) (CostSummary, error) {
	body := map[string]any{
		"populations": populations,
		"years":       years,
	}
	var resp CostSummary
	endpoint := c.projectPath(fmt.Sprintf("scenarios/%s/cost", url.PathEscape(scenarioID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// RunForecast runs a forecast for a scenario.
func (c *Client) RunForecast(ctx context.Context, scenarioID string, years int) (Forecast, error) {
	body := map[string]any{
		"projection_years": years,
	}
	var resp Forecast
	endpoint := c.projectPath(fmt.Sprintf("scenarios/%s/forecasts", url.PathEscape(scenarioID)))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	endpoint := c.projectPath("events")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	if cursor != "" {
		sep := "?"
		if strings.Contains(endpoint, "?") {
			sep = "&"
		}
		endpoint = fmt.Sprintf("%s%scursor=%s", endpoint, sep, url.QueryEscape(cursor))
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) projectPath(p string) string {
	project := url.PathEscape(c.ProjectID)
	return fmt.Sprintf("v1/projects/%s/%s", project, strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
