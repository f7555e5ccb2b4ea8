package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"sntplan/internal/domain"
	"sntplan/internal/events"
	"sntplan/internal/repo"
)

// Report types.
const (
	ReportFullSNT          = "full_snt"
	ReportExecutiveSummary = "executive_summary"
	ReportStratification   = "stratification"
	ReportBudget           = "budget"
)

var reportTypeLabels = map[string]string{
	ReportFullSNT:          "Full SNT Report",
	ReportExecutiveSummary: "Executive Summary",
	ReportStratification:   "Stratification Report",
	ReportBudget:           "Budget Report",
}

// ReportGenerateOptions are parameters for generating a report file.
type ReportGenerateOptions struct {
	ProjectID  string
	Title      string
	ReportType string
	Format     string
	Parameters map[string]any
	ActorID    string
}

// GenerateReport gathers the project's planning data, renders it as JSON
// or CSV under the workspace reports directory, and records the artifact.
func (e Engine) GenerateReport(ctx context.Context, opts ReportGenerateOptions) (domain.Report, error) {
	if _, ok := reportTypeLabels[opts.ReportType]; !ok {
		return domain.Report{}, fmt.Errorf("unknown report type %s", opts.ReportType)
	}
	if opts.Format == "" {
		opts.Format = "json"
	}
	if opts.Format != "json" && opts.Format != "csv" {
		return domain.Report{}, fmt.Errorf("unsupported report format %s", opts.Format)
	}
	p, err := e.Repo.GetProject(ctx, opts.ProjectID)
	if err != nil {
		return domain.Report{}, err
	}
	title := opts.Title
	if title == "" {
		title = fmt.Sprintf("%s - %s", p.Name, reportTypeLabels[opts.ReportType])
	}

	data, err := e.gatherReportData(ctx, p, opts.ReportType)
	if err != nil {
		return domain.Report{}, err
	}

	var content []byte
	ext := ".json"
	if opts.Format == "csv" {
		content = renderReportCSV(data, title)
		ext = ".csv"
	} else {
		content, err = renderReportJSON(data, title)
		if err != nil {
			return domain.Report{}, err
		}
	}

	dir := filepath.Join(e.Workspace, ".sntplan", "reports", p.ID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.Report{}, err
	}
	filename := fmt.Sprintf("%s_%s%s", opts.ReportType, e.now().UTC().Format("20060102_150405"), ext)
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return domain.Report{}, err
	}

	paramsJSON, err := marshalJSON(opts.Parameters)
	if err != nil {
		return domain.Report{}, err
	}
	size := int64(len(content))
	rec := domain.Report{
		ID:             uuid.NewString(),
		ProjectID:      p.ID,
		Title:          title,
		ReportType:     opts.ReportType,
		Format:         opts.Format,
		FilePath:       &path,
		FileSizeBytes:  &size,
		ParametersJSON: paramsJSON,
		GeneratedBy:    opts.ActorID,
		CreatedAt:      e.nowRFC(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rec, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertReportTx(ctx, tx, rec); err != nil {
		return rec, err
	}
	if err := e.Events.Append(ctx, tx, "report.generated", p.ID, "report", rec.ID, opts.ActorID, events.EventPayload{
		"report_type": rec.ReportType,
		"format":      rec.Format,
	}); err != nil {
		return rec, err
	}
	if err := tx.Commit(); err != nil {
		return rec, err
	}
	return rec, nil
}

type reportData struct {
	GeneratedAt    string           `json:"generated_at"`
	ReportType     string           `json:"report_type"`
	Project        map[string]any   `json:"project"`
	Workflow       []map[string]any `json:"workflow"`
	Stratification map[string]any   `json:"stratification,omitempty"`
	Scenarios      []map[string]any `json:"scenarios,omitempty"`
	DataQuality    map[string]any   `json:"data_quality,omitempty"`
	Forecasts      []map[string]any `json:"forecasts,omitempty"`
}

func (e Engine) gatherReportData(ctx context.Context, p domain.Project, reportType string) (reportData, error) {
	data := reportData{
		GeneratedAt: e.nowRFC(),
		ReportType:  reportType,
		Project: map[string]any{
			"name":        p.Name,
			"country":     p.Country,
			"year":        p.Year,
			"description": p.Description,
		},
	}
	states, err := e.Repo.ListWorkflowStates(ctx, p.ID)
	if err != nil {
		return data, err
	}
	for _, s := range states {
		data.Workflow = append(data.Workflow, map[string]any{
			"step":                  s.Step,
			"status":                s.Status,
			"completion_percentage": s.Completion,
		})
	}

	wantStrat := reportType == ReportFullSNT || reportType == ReportStratification || reportType == ReportExecutiveSummary
	wantScenarios := reportType == ReportFullSNT || reportType == ReportBudget || reportType == ReportExecutiveSummary
	wantSummary := reportType == ReportFullSNT || reportType == ReportExecutiveSummary

	if wantStrat {
		strat, err := e.gatherStratification(ctx, p.ID)
		if err != nil {
			return data, err
		}
		data.Stratification = strat
	}
	if wantScenarios {
		scenarios, err := e.gatherScenarios(ctx, p.ID)
		if err != nil {
			return data, err
		}
		data.Scenarios = scenarios
	}
	if wantSummary {
		sources, err := e.Repo.ListDataSources(ctx, p.ID)
		if err != nil {
			return data, err
		}
		srcList := []map[string]any{}
		for _, ds := range sources {
			srcList = append(srcList, map[string]any{
				"name":          ds.Name,
				"type":          ds.SourceType,
				"quality_score": ds.QualityScore,
			})
		}
		data.DataQuality = map[string]any{
			"total_sources": len(sources),
			"sources":       srcList,
		}
		forecasts, err := e.gatherForecasts(ctx, p.ID)
		if err != nil {
			return data, err
		}
		data.Forecasts = forecasts
	}
	return data, nil
}

func (e Engine) gatherStratification(ctx context.Context, projectID string) (map[string]any, error) {
	configs, err := e.Repo.ListStratConfigs(ctx, projectID)
	if err != nil {
		return nil, err
	}
	configList := []map[string]any{}
	for _, c := range configs {
		results, err := e.Repo.ListStratResults(ctx, c.ID)
		if err != nil {
			return nil, err
		}
		dist := map[string]int{}
		for _, r := range results {
			dist[r.RiskLevel]++
		}
		configList = append(configList, map[string]any{
			"metric":            c.Metric,
			"total_units":       len(results),
			"risk_distribution": dist,
		})
	}
	return map[string]any{"configs": configList}, nil
}

func (e Engine) gatherScenarios(ctx context.Context, projectID string) ([]map[string]any, error) {
	scenarios, err := e.Repo.ListScenarios(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := []map[string]any{}
	for _, s := range scenarios {
		assignment, err := scenarioAssignment(s)
		if err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"name":                     s.Name,
			"type":                     s.ScenarioType,
			"is_selected":              s.IsSelected,
			"interventions":            assignment,
			"total_cost":               derefFloat(s.TotalCost),
			"population_covered":       s.PopulationCovered,
			"estimated_cases_averted":  s.EstCasesAverted,
			"estimated_deaths_averted": s.EstDeathsAverted,
		})
	}
	return out, nil
}

func (e Engine) gatherForecasts(ctx context.Context, projectID string) ([]map[string]any, error) {
	scenarios, err := e.Repo.ListScenarios(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := []map[string]any{}
	for _, s := range scenarios {
		f, err := e.Repo.LatestCompletedForecast(ctx, s.ID)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, map[string]any{
			"scenario_name":          s.Name,
			"cases_averted":          f.CasesAverted,
			"deaths_averted":         f.DeathsAverted,
			"dalys_averted":          f.DALYsAverted,
			"cost_per_case_averted":  f.CostPerCaseAverted,
			"cost_per_daly_averted":  f.CostPerDALYAverted,
		})
	}
	return out, nil
}

func renderReportJSON(data reportData, title string) ([]byte, error) {
	wrapper := struct {
		Title string `json:"title"`
		reportData
	}{Title: title, reportData: data}
	return json.MarshalIndent(wrapper, "", "  ")
}

func renderReportCSV(data reportData, title string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)

	b.WriteString("Step,Status,Completion %\n")
	for _, step := range data.Workflow {
		fmt.Fprintf(&b, "%v,%v,%v\n", step["step"], step["status"], step["completion_percentage"])
	}

	if len(data.Scenarios) > 0 {
		b.WriteString("\nScenario,Type,Total Cost,Cases Averted,Deaths Averted\n")
		for _, s := range data.Scenarios {
			fmt.Fprintf(&b, "%v,%v,%v,%s,%s\n",
				s["name"], s["type"], s["total_cost"],
				csvCell(s["estimated_cases_averted"]), csvCell(s["estimated_deaths_averted"]))
		}
	}

	if len(data.Forecasts) > 0 {
		b.WriteString("\nScenario,Cases Averted,Deaths Averted,DALYs Averted,Cost/Case,Cost/DALY\n")
		for _, f := range data.Forecasts {
			fmt.Fprintf(&b, "%v,%s,%s,%s,%s,%s\n",
				f["scenario_name"], csvCell(f["cases_averted"]), csvCell(f["deaths_averted"]),
				csvCell(f["dalys_averted"]), csvCell(f["cost_per_case_averted"]), csvCell(f["cost_per_daly_averted"]))
		}
	}
	return []byte(b.String())
}

// csvCell renders optional numbers, leaving missing values empty.
func csvCell(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case *int64:
		if t == nil {
			return ""
		}
		return fmt.Sprintf("%d", *t)
	case *float64:
		if t == nil {
			return ""
		}
		return fmt.Sprintf("%g", *t)
	}
	return fmt.Sprintf("%v", v)
}
