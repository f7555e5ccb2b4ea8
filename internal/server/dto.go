package server

import (
	"encoding/json"

	"sntplan/internal/costing"
	"sntplan/internal/domain"
	"sntplan/internal/forecast"
	"sntplan/internal/quality"
	"sntplan/internal/stratify"
)

// Request payloads

type CreateProjectRequest struct {
	ID          *string `json:"id,omitempty"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Country     string  `json:"country"`
	AdminLevel  *int    `json:"admin_level,omitempty" minimum:"0" maximum:"4"`
	Year        *int    `json:"year,omitempty"`
}

type UpdateProjectRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Status      *string `json:"status,omitempty" enum:"active,completed"`
}

type AddMemberRequest struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role" enum:"owner,manager,analyst,viewer"`
}

type UpdateStepRequest struct {
	Notes      *string        `json:"notes,omitempty"`
	Completion *float64       `json:"completion_percentage,omitempty" minimum:"0" maximum:"100"`
	Data       map[string]any `json:"data,omitempty"`
}

type CreateDataSourceRequest struct {
	Name           string                `json:"name"`
	Description    *string               `json:"description,omitempty"`
	SourceType     string                `json:"source_type" enum:"epidemiological,intervention,demographic,geospatial,entomological,commodities"`
	FileFormat     *string               `json:"file_format,omitempty"`
	YearStart      *int                  `json:"year_start,omitempty"`
	YearEnd        *int                  `json:"year_end,omitempty"`
	Disaggregation *quality.Expectations `json:"disaggregation,omitempty"`
	CSVContent     *string               `json:"csv_content,omitempty"`
}

type QualityCheckRequest struct {
	CSVContent string `json:"csv_content"`
}

type CreateStratConfigRequest struct {
	Name       string              `json:"name"`
	Metric     string              `json:"metric" enum:"pfpr,incidence,eir"`
	Thresholds stratify.Thresholds `json:"thresholds,omitempty"`
}

type UpdateStratConfigRequest struct {
	Name       *string             `json:"name,omitempty"`
	Thresholds stratify.Thresholds `json:"thresholds,omitempty"`
	IsActive   *bool               `json:"is_active,omitempty"`
}

type CalculateStratRequest struct {
	Units []stratify.UnitInput `json:"units"`
}

type CreateScenarioRequest struct {
	Name          string              `json:"name"`
	Description   *string             `json:"description,omitempty"`
	ScenarioType  string              `json:"scenario_type" enum:"ideal,prioritized,budget_constrained,custom"`
	Interventions map[string][]string `json:"interventions,omitempty"`
}

type UpdateScenarioRequest struct {
	Name          *string             `json:"name,omitempty"`
	Description   *string             `json:"description,omitempty"`
	Interventions map[string][]string `json:"interventions,omitempty"`
	IsSelected    *bool               `json:"is_selected,omitempty"`
}

type CostScenarioRequest struct {
	Populations []costing.PopulationUnit `json:"populations"`
	UnitCosts   costing.UnitCosts        `json:"unit_costs,omitempty"`
	Years       int                      `json:"years,omitempty" minimum:"0"`
}

type OptimizeScenarioRequest struct {
	Budget      float64                  `json:"budget" exclusiveMinimum:"0"`
	Populations []costing.PopulationUnit `json:"populations"`
}

type RunForecastRequest struct {
	ModelType string             `json:"model_type,omitempty"`
	Years     int                `json:"projection_years,omitempty" minimum:"0"`
	Baseline  *forecast.Baseline `json:"baseline,omitempty"`
}

type RecommendRequest struct {
	InterventionCode string         `json:"intervention_code"`
	RiskLevel        string         `json:"risk_level" enum:"very_low,low,moderate,high"`
	Context          map[string]any `json:"context,omitempty"`
}

type CreatePlanRequest struct {
	AdminUnitName    string         `json:"admin_unit_name"`
	AdminUnitCode    *string        `json:"admin_unit_code,omitempty"`
	InterventionCode string         `json:"intervention_code"`
	Decisions        map[string]any `json:"tailoring_decisions,omitempty"`
	CoverageTarget   *float64       `json:"coverage_target,omitempty" minimum:"0" maximum:"100"`
	DeliveryStrategy *string        `json:"delivery_strategy,omitempty"`
	TargetPopulation *int64         `json:"target_population,omitempty"`
	Notes            *string        `json:"notes,omitempty"`
}

type GenerateReportRequest struct {
	Title      *string        `json:"title,omitempty"`
	ReportType string         `json:"report_type" enum:"full_snt,executive_summary,stratification,budget"`
	Format     string         `json:"format,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Response payloads

type StratConfigResponse struct {
	ID         string              `json:"id"`
	ProjectID  string              `json:"project_id"`
	Name       string              `json:"name"`
	Metric     string              `json:"metric" enum:"pfpr,incidence,eir"`
	IsActive   bool                `json:"is_active"`
	Thresholds stratify.Thresholds `json:"thresholds"`
	CreatedBy  string              `json:"created_by"`
	CreatedAt  string              `json:"created_at" format:"date-time"`
	UpdatedAt  string              `json:"updated_at" format:"date-time"`
}

type StratResultResponse struct {
	ID                    string         `json:"id"`
	ConfigID              string         `json:"config_id"`
	AdminUnitName         string         `json:"admin_unit_name"`
	AdminUnitCode         *string        `json:"admin_unit_code,omitempty"`
	MetricValue           float64        `json:"metric_value"`
	RiskLevel             string         `json:"risk_level" enum:"very_low,low,moderate,high"`
	EligibleInterventions []string       `json:"eligible_interventions"`
	Population            *int64         `json:"population,omitempty"`
	CasesAnnual           *int64         `json:"cases_annual,omitempty"`
	DeathsAnnual          *int64         `json:"deaths_annual,omitempty"`
	CreatedAt             string         `json:"created_at" format:"date-time"`
}

type ScenarioResponse struct {
	ID                string              `json:"id"`
	ProjectID         string              `json:"project_id"`
	Name              string              `json:"name"`
	Description       *string             `json:"description,omitempty"`
	ScenarioType      string              `json:"scenario_type" enum:"ideal,prioritized,budget_constrained,custom"`
	IsSelected        bool                `json:"is_selected"`
	Interventions     map[string][]string `json:"interventions"`
	TotalCost         *float64            `json:"total_cost,omitempty"`
	PopulationCovered *int64              `json:"population_covered,omitempty"`
	EstCasesAverted   *int64              `json:"estimated_cases_averted,omitempty"`
	EstDeathsAverted  *int64              `json:"estimated_deaths_averted,omitempty"`
	CreatedBy         string              `json:"created_by"`
	CreatedAt         string              `json:"created_at" format:"date-time"`
	UpdatedAt         string              `json:"updated_at" format:"date-time"`
}

type ForecastResponse struct {
	ID                  string             `json:"id"`
	ScenarioID          string             `json:"scenario_id"`
	Status              string             `json:"status" enum:"pending,running,completed,failed"`
	ModelType           string             `json:"model_type"`
	ProjectedCases      map[string]int64   `json:"projected_cases,omitempty"`
	ProjectedDeaths     map[string]int64   `json:"projected_deaths,omitempty"`
	ProjectedPrevalence map[string]float64 `json:"projected_prevalence,omitempty"`
	CasesAverted        *int64             `json:"cases_averted,omitempty"`
	DeathsAverted       *int64             `json:"deaths_averted,omitempty"`
	DALYsAverted        *float64           `json:"dalys_averted,omitempty"`
	CostPerCaseAverted  *float64           `json:"cost_per_case_averted,omitempty"`
	CostPerDeathAverted *float64           `json:"cost_per_death_averted,omitempty"`
	CostPerDALYAverted  *float64           `json:"cost_per_daly_averted,omitempty"`
	Uncertainty         map[string]any     `json:"uncertainty_bounds,omitempty"`
	CreatedAt           string             `json:"created_at" format:"date-time"`
}

type PlanResponse struct {
	ID               string         `json:"id"`
	ProjectID        string         `json:"project_id"`
	AdminUnitName    string         `json:"admin_unit_name"`
	AdminUnitCode    *string        `json:"admin_unit_code,omitempty"`
	InterventionCode string         `json:"intervention_code"`
	IsEligible       bool           `json:"is_eligible"`
	Decisions        map[string]any `json:"tailoring_decisions,omitempty"`
	CoverageTarget   *float64       `json:"coverage_target,omitempty"`
	DeliveryStrategy *string        `json:"delivery_strategy,omitempty"`
	TargetPopulation *int64         `json:"target_population,omitempty"`
	Notes            *string        `json:"notes,omitempty"`
	CreatedBy        string         `json:"created_by"`
	CreatedAt        string         `json:"created_at" format:"date-time"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	ProjectID  string         `json:"project_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type MeResponse struct {
	ActorID string `json:"actor_id"`
	Role    string `json:"role,omitempty"`
	Source  string `json:"source"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// Conversion helpers

func stratConfigResponse(c domain.StratificationConfig) StratConfigResponse {
	var thresholds stratify.Thresholds
	_ = json.Unmarshal([]byte(c.ThresholdsJSON), &thresholds)
	return StratConfigResponse{
		ID:         c.ID,
		ProjectID:  c.ProjectID,
		Name:       c.Name,
		Metric:     c.Metric,
		IsActive:   c.IsActive,
		Thresholds: thresholds,
		CreatedBy:  c.CreatedBy,
		CreatedAt:  c.CreatedAt,
		UpdatedAt:  c.UpdatedAt,
	}
}

func stratResultResponse(r domain.StratificationResult) StratResultResponse {
	var wrapper struct {
		Interventions []string `json:"interventions"`
	}
	if r.InterventionsJSON != nil {
		_ = json.Unmarshal([]byte(*r.InterventionsJSON), &wrapper)
	}
	return StratResultResponse{
		ID:                    r.ID,
		ConfigID:              r.ConfigID,
		AdminUnitName:         r.AdminUnitName,
		AdminUnitCode:         r.AdminUnitCode,
		MetricValue:           r.MetricValue,
		RiskLevel:             r.RiskLevel,
		EligibleInterventions: nonNilSlice(wrapper.Interventions),
		Population:            r.Population,
		CasesAnnual:           r.CasesAnnual,
		DeathsAnnual:          r.DeathsAnnual,
		CreatedAt:             r.CreatedAt,
	}
}

func scenarioResponse(s domain.Scenario) ScenarioResponse {
	interventions := map[string][]string{}
	_ = json.Unmarshal([]byte(s.InterventionsJSON), &interventions)
	return ScenarioResponse{
		ID:                s.ID,
		ProjectID:         s.ProjectID,
		Name:              s.Name,
		Description:       s.Description,
		ScenarioType:      s.ScenarioType,
		IsSelected:        s.IsSelected,
		Interventions:     interventions,
		TotalCost:         s.TotalCost,
		PopulationCovered: s.PopulationCovered,
		EstCasesAverted:   s.EstCasesAverted,
		EstDeathsAverted:  s.EstDeathsAverted,
		CreatedBy:         s.CreatedBy,
		CreatedAt:         s.CreatedAt,
		UpdatedAt:         s.UpdatedAt,
	}
}

func forecastResponse(f domain.Forecast) ForecastResponse {
	res := ForecastResponse{
		ID:                  f.ID,
		ScenarioID:          f.ScenarioID,
		Status:              f.Status,
		ModelType:           f.ModelType,
		CasesAverted:        f.CasesAverted,
		DeathsAverted:       f.DeathsAverted,
		DALYsAverted:        f.DALYsAverted,
		CostPerCaseAverted:  f.CostPerCaseAverted,
		CostPerDeathAverted: f.CostPerDeathAverted,
		CostPerDALYAverted:  f.CostPerDALYAverted,
		Uncertainty:         decodeJSONMap(f.UncertaintyJSON),
		CreatedAt:           f.CreatedAt,
	}
	if f.ProjCasesJSON != nil {
		_ = json.Unmarshal([]byte(*f.ProjCasesJSON), &res.ProjectedCases)
	}
	if f.ProjDeathsJSON != nil {
		_ = json.Unmarshal([]byte(*f.ProjDeathsJSON), &res.ProjectedDeaths)
	}
	if f.ProjPrevalenceJSON != nil {
		_ = json.Unmarshal([]byte(*f.ProjPrevalenceJSON), &res.ProjectedPrevalence)
	}
	return res
}

func planResponse(p domain.InterventionPlan) PlanResponse {
	return PlanResponse{
		ID:               p.ID,
		ProjectID:        p.ProjectID,
		AdminUnitName:    p.AdminUnitName,
		AdminUnitCode:    p.AdminUnitCode,
		InterventionCode: p.InterventionCode,
		IsEligible:       p.IsEligible,
		Decisions:        decodeJSONMap(p.DecisionsJSON),
		CoverageTarget:   p.CoverageTarget,
		DeliveryStrategy: p.DeliveryStrategy,
		TargetPopulation: p.TargetPopulation,
		Notes:            p.Notes,
		CreatedBy:        p.CreatedBy,
		CreatedAt:        p.CreatedAt,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		ProjectID:  e.ProjectID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(strPtr(e.Payload)),
	}
}

// JSON helpers

func decodeJSONMap(raw *string) map[string]any {
	if raw == nil || *raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(*raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func strPtr(in string) *string {
	return &in
}
