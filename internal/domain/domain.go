package domain

type Project struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Country     string  `json:"country"`
	AdminLevel  int     `json:"admin_level"`
	Year        int     `json:"year"`
	Status      string  `json:"status" enum:"active,completed"`
	IsArchived  bool    `json:"is_archived"`
	CreatedBy   string  `json:"created_by"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type Member struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	ActorID   string `json:"actor_id"`
	Role      string `json:"role" enum:"owner,manager,analyst,viewer"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type WorkflowState struct {
	ID          string  `json:"id"`
	ProjectID   string  `json:"project_id"`
	Step        string  `json:"step"`
	Status      string  `json:"status" enum:"not_started,in_progress,completed,blocked,skipped"`
	Completion  float64 `json:"completion_percentage"`
	Notes       *string `json:"notes,omitempty"`
	DataJSON    *string `json:"data_json,omitempty"`
	ErrorsJSON  *string `json:"validation_errors_json,omitempty"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
	CompletedBy *string `json:"completed_by,omitempty"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
}

type DataSource struct {
	ID                 string   `json:"id"`
	ProjectID          string   `json:"project_id"`
	Name               string   `json:"name"`
	Description        *string  `json:"description,omitempty"`
	SourceType         string   `json:"source_type" enum:"epidemiological,intervention,demographic,geospatial,entomological,commodities"`
	FileFormat         *string  `json:"file_format,omitempty"`
	FileSizeBytes      *int64   `json:"file_size_bytes,omitempty"`
	RecordCount        *int64   `json:"record_count,omitempty"`
	YearStart          *int     `json:"year_start,omitempty"`
	YearEnd            *int     `json:"year_end,omitempty"`
	QualityScore       *float64 `json:"quality_score,omitempty"`
	DisaggregationJSON *string  `json:"disaggregation_json,omitempty"`
	UploadedBy         string   `json:"uploaded_by"`
	CreatedAt          string   `json:"created_at" format:"date-time"`
}

type QualityCheck struct {
	ID           string  `json:"id"`
	DataSourceID string  `json:"data_source_id"`
	CheckType    string  `json:"check_type"`
	Status       string  `json:"status" enum:"passed,warning,failed,skipped"`
	Score        float64 `json:"score"`
	IssuesFound  int     `json:"issues_found"`
	Message      *string `json:"message,omitempty"`
	DetailsJSON  *string `json:"details_json,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
}

type StratificationConfig struct {
	ID             string `json:"id"`
	ProjectID      string `json:"project_id"`
	Name           string `json:"name"`
	Metric         string `json:"metric" enum:"pfpr,incidence,eir"`
	IsActive       bool   `json:"is_active"`
	ThresholdsJSON string `json:"thresholds_json"`
	CreatedBy      string `json:"created_by"`
	CreatedAt      string `json:"created_at" format:"date-time"`
	UpdatedAt      string `json:"updated_at" format:"date-time"`
}

type StratificationResult struct {
	ID                string  `json:"id"`
	ConfigID          string  `json:"config_id"`
	AdminUnitName     string  `json:"admin_unit_name"`
	AdminUnitCode     *string `json:"admin_unit_code,omitempty"`
	MetricValue       float64 `json:"metric_value"`
	RiskLevel         string  `json:"risk_level" enum:"very_low,low,moderate,high"`
	InterventionsJSON *string `json:"eligible_interventions_json,omitempty"`
	Population        *int64  `json:"population,omitempty"`
	CasesAnnual       *int64  `json:"cases_annual,omitempty"`
	DeathsAnnual      *int64  `json:"deaths_annual,omitempty"`
	GeometryJSON      *string `json:"geometry_json,omitempty"`
	CreatedAt         string  `json:"created_at" format:"date-time"`
}

type InterventionPlan struct {
	ID               string   `json:"id"`
	ProjectID        string   `json:"project_id"`
	AdminUnitName    string   `json:"admin_unit_name"`
	AdminUnitCode    *string  `json:"admin_unit_code,omitempty"`
	InterventionCode string   `json:"intervention_code"`
	IsEligible       bool     `json:"is_eligible"`
	DecisionsJSON    *string  `json:"tailoring_decisions_json,omitempty"`
	CoverageTarget   *float64 `json:"coverage_target,omitempty"`
	DeliveryStrategy *string  `json:"delivery_strategy,omitempty"`
	TargetPopulation *int64   `json:"target_population,omitempty"`
	Notes            *string  `json:"notes,omitempty"`
	CreatedBy        string   `json:"created_by"`
	CreatedAt        string   `json:"created_at" format:"date-time"`
}

// Scenario.InterventionsJSON maps unit keys to intervention code lists.
type Scenario struct {
	ID                string   `json:"id"`
	ProjectID         string   `json:"project_id"`
	Name              string   `json:"name"`
	Description       *string  `json:"description,omitempty"`
	ScenarioType      string   `json:"scenario_type" enum:"ideal,prioritized,budget_constrained,custom"`
	IsSelected        bool     `json:"is_selected"`
	InterventionsJSON string   `json:"interventions_json"`
	TotalCost         *float64 `json:"total_cost,omitempty"`
	PopulationCovered *int64   `json:"population_covered,omitempty"`
	EstCasesAverted   *int64   `json:"estimated_cases_averted,omitempty"`
	EstDeathsAverted  *int64   `json:"estimated_deaths_averted,omitempty"`
	CreatedBy         string   `json:"created_by"`
	CreatedAt         string   `json:"created_at" format:"date-time"`
	UpdatedAt         string   `json:"updated_at" format:"date-time"`
}

type CostItem struct {
	ID               string  `json:"id"`
	ScenarioID       string  `json:"scenario_id"`
	AdminUnitName    string  `json:"admin_unit_name"`
	AdminUnitCode    *string `json:"admin_unit_code,omitempty"`
	InterventionCode string  `json:"intervention_code"`
	TotalCost        float64 `json:"total_cost"`
	Years            int     `json:"years"`
	DetailsJSON      *string `json:"cost_details_json,omitempty"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
}

type Forecast struct {
	ID                  string   `json:"id"`
	ScenarioID          string   `json:"scenario_id"`
	Status              string   `json:"status" enum:"pending,running,completed,failed"`
	ModelType           string   `json:"model_type"`
	ProjCasesJSON       *string  `json:"projected_cases_json,omitempty"`
	ProjDeathsJSON      *string  `json:"projected_deaths_json,omitempty"`
	ProjPrevalenceJSON  *string  `json:"projected_prevalence_json,omitempty"`
	CasesAverted        *int64   `json:"cases_averted,omitempty"`
	DeathsAverted       *int64   `json:"deaths_averted,omitempty"`
	DALYsAverted        *float64 `json:"dalys_averted,omitempty"`
	CostPerCaseAverted  *float64 `json:"cost_per_case_averted,omitempty"`
	CostPerDeathAverted *float64 `json:"cost_per_death_averted,omitempty"`
	CostPerDALYAverted  *float64 `json:"cost_per_daly_averted,omitempty"`
	UncertaintyJSON     *string  `json:"uncertainty_bounds_json,omitempty"`
	ParametersJSON      *string  `json:"parameters_json,omitempty"`
	CreatedAt           string   `json:"created_at" format:"date-time"`
}

type Report struct {
	ID             string  `json:"id"`
	ProjectID      string  `json:"project_id"`
	Title          string  `json:"title"`
	ReportType     string  `json:"report_type"`
	Format         string  `json:"format" enum:"json,csv"`
	FilePath       *string `json:"file_path,omitempty"`
	FileSizeBytes  *int64  `json:"file_size_bytes,omitempty"`
	ParametersJSON *string `json:"parameters_json,omitempty"`
	GeneratedBy    string  `json:"generated_by"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	ProjectID  string `json:"project_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Project membership roles, strongest first.
const (
	RoleOwner   = "owner"
	RoleManager = "manager"
	RoleAnalyst = "analyst"
	RoleViewer  = "viewer"
)
