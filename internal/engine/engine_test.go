package engine_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"sntplan/internal/config"
	"sntplan/internal/costing"
	"sntplan/internal/db"
	"sntplan/internal/domain"
	"sntplan/internal/engine"
	"sntplan/internal/migrate"
	"sntplan/internal/stratify"
	"sntplan/internal/workflow"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default("proj-1")
	eng := engine.New(conn, cfg)
	eng.Workspace = dir
	eng.Now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func createProject(t *testing.T, env testEnv, id string) domain.Project {
	t.Helper()
	p, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{
		ID:      id,
		Name:    "Nigeria 2026 Campaign",
		Country: "Nigeria",
		ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func intPtr(v int64) *int64 { return &v }

func countEvents(t *testing.T, env testEnv, evtType string) int {
	t.Helper()
	var n int
	if err := env.Engine.DB.QueryRowContext(env.Ctx,
		`SELECT count(*) FROM events WHERE type = ?`, evtType).Scan(&n); err != nil {
		t.Fatalf("count events: %v", err)
	}
	return n
}

func TestCreateProjectSeedsWorkflowAndOwner(t *testing.T) {
	env := newTestEnv(t)
	p := createProject(t, env, "proj-1")

	if p.Status != "active" || p.AdminLevel != 1 {
		t.Fatalf("unexpected defaults: status=%s admin_level=%d", p.Status, p.AdminLevel)
	}
	if p.Year != 2026 {
		t.Fatalf("expected year from clock, got %d", p.Year)
	}

	wf, err := env.Engine.GetWorkflow(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("get workflow: %v", err)
	}
	if len(wf.Steps) != len(workflow.Steps) {
		t.Fatalf("expected %d steps, got %d", len(workflow.Steps), len(wf.Steps))
	}
	if wf.OverallProgress != 0 {
		t.Fatalf("expected zero progress, got %v", wf.OverallProgress)
	}
	if wf.CurrentStep == nil || *wf.CurrentStep != workflow.StepPlanningPreparedness {
		t.Fatalf("expected planning_preparedness current, got %v", wf.CurrentStep)
	}

	members, err := env.Engine.Repo.ListMembers(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("list members: %v", err)
	}
	if len(members) != 1 || members[0].ActorID != "tester" || members[0].Role != domain.RoleOwner {
		t.Fatalf("expected tester as owner, got %+v", members)
	}
	if n := countEvents(t, env, "project.created"); n != 1 {
		t.Fatalf("expected one project.created event, got %d", n)
	}
}

func TestCreateProjectValidation(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Country: "Nigeria"}); err == nil {
		t.Fatal("expected error for missing name")
	}
	if _, err := env.Engine.CreateProject(env.Ctx, engine.ProjectCreateOptions{Name: "No country"}); err == nil {
		t.Fatal("expected error for missing country")
	}
}

func TestUpdateProjectAndArchive(t *testing.T) {
	env := newTestEnv(t)
	p := createProject(t, env, "proj-1")

	bad := "paused"
	if _, err := env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: p.ID, Status: &bad, ActorID: "tester"}); err == nil {
		t.Fatal("expected invalid status to be rejected")
	}
	done := "completed"
	p, err := env.Engine.UpdateProject(env.Ctx, engine.ProjectUpdateOptions{ID: p.ID, Status: &done, ActorID: "tester"})
	if err != nil || p.Status != "completed" {
		t.Fatalf("update status: %v (%s)", err, p.Status)
	}

	p, err = env.Engine.ArchiveProject(env.Ctx, p.ID, "tester")
	if err != nil || !p.IsArchived {
		t.Fatalf("archive: %v", err)
	}
	// archiving twice is a no-op
	if _, err := env.Engine.ArchiveProject(env.Ctx, p.ID, "tester"); err != nil {
		t.Fatalf("re-archive: %v", err)
	}
	if n := countEvents(t, env, "project.archived"); n != 1 {
		t.Fatalf("expected one project.archived event, got %d", n)
	}
	p, err = env.Engine.RestoreProject(env.Ctx, p.ID, "tester")
	if err != nil || p.IsArchived {
		t.Fatalf("restore: %v", err)
	}
}

func TestAddMemberRejectsUnknownRole(t *testing.T) {
	env := newTestEnv(t)
	p := createProject(t, env, "proj-1")
	if _, err := env.Engine.AddMember(env.Ctx, p.ID, "eve", "superuser", "tester"); err == nil {
		t.Fatal("expected invalid role to be rejected")
	}
	m, err := env.Engine.AddMember(env.Ctx, p.ID, "ada", domain.RoleAnalyst, "tester")
	if err != nil || m.Role != domain.RoleAnalyst {
		t.Fatalf("add analyst: %v", err)
	}
}

// completePlanning documents the planning step and completes it.
func completePlanning(t *testing.T, env testEnv, projectID string) {
	t.Helper()
	_, err := env.Engine.UpdateStep(env.Ctx, projectID, workflow.StepPlanningPreparedness, engine.StepUpdateOptions{
		Data: map[string]any{
			"scope_of_work":    "National SNT 2026",
			"operational_unit": "district",
		},
		ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("update planning: %v", err)
	}
	if _, err := env.Engine.CompleteStep(env.Ctx, projectID, workflow.StepPlanningPreparedness, "tester"); err != nil {
		t.Fatalf("complete planning: %v", err)
	}
}

// registerSources uploads the two source types the default config requires.
func registerSources(t *testing.T, env testEnv, projectID string) {
	t.Helper()
	for _, src := range []struct{ name, kind string }{
		{"Routine cases 2025", "epidemiological"},
		{"District populations", "demographic"},
	} {
		if _, err := env.Engine.RegisterDataSource(env.Ctx, engine.DataSourceCreateOptions{
			ProjectID:  projectID,
			Name:       src.name,
			SourceType: src.kind,
			FileFormat: "csv",
			ActorID:    "tester",
		}); err != nil {
			t.Fatalf("register %s: %v", src.name, err)
		}
	}
}

func TestWorkflowCompletionGates(t *testing.T) {
	env := newTestEnv(t)
	p := createProject(t, env, "proj-1")

	// validity is the only completion gate: a step whose validator emits
	// warnings but no errors completes even with prerequisites untouched
	sv, err := env.Engine.CompleteStep(env.Ctx, p.ID, workflow.StepInterventionTailoring, "tester")
	if err != nil {
		t.Fatalf("complete tailoring on fresh project: %v", err)
	}
	if sv.Status != workflow.StatusCompleted || sv.IsAccessible {
		t.Fatalf("expected completed but inaccessible step, got %+v", sv)
	}

	// planning cannot complete without scope and operational unit
	_, err = env.Engine.CompleteStep(env.Ctx, p.ID, workflow.StepPlanningPreparedness, "tester")
	if err == nil || !strings.Contains(err.Error(), "cannot be completed") {
		t.Fatalf("expected validation error, got %v", err)
	}

	completePlanning(t, env, p.ID)

	v, err := env.Engine.ValidateStep(env.Ctx, p.ID, workflow.StepDataAssembly)
	if err != nil {
		t.Fatalf("validate data assembly: %v", err)
	}
	if v.IsValid || len(v.Errors) == 0 || v.Errors[0] != "No data sources uploaded" {
		t.Fatalf("expected missing-sources error, got %+v", v)
	}

	registerSources(t, env, p.ID)
	sv, err = env.Engine.CompleteStep(env.Ctx, p.ID, workflow.StepDataAssembly, "tester")
	if err != nil {
		t.Fatalf("complete data assembly: %v", err)
	}
	if sv.Status != workflow.StatusCompleted || sv.Completion != 100 || sv.CompletedAt == nil {
		t.Fatalf("unexpected step view: %+v", sv)
	}

	wf, err := env.Engine.GetWorkflow(env.Ctx, p.ID)
	if err != nil {
		t.Fatalf("get workflow: %v", err)
	}
	if wf.OverallProgress != 30 {
		t.Fatalf("expected 30%% progress, got %v", wf.OverallProgress)
	}
	if wf.CurrentStep == nil || *wf.CurrentStep != workflow.StepSituationAnalysis {
		t.Fatalf("expected situation_analysis current, got %v", wf.CurrentStep)
	}
}

func TestUpdateStepMovesNotStartedToInProgress(t *testing.T) {
	env := newTestEnv(t)
	p := createProject(t, env, "proj-1")

	sv, err := env.Engine.UpdateStep(env.Ctx, p.ID, workflow.StepPlanningPreparedness, engine.StepUpdateOptions{ActorID: "tester"})
	if err != nil {
		t.Fatalf("touch step: %v", err)
	}
	if sv.Status != workflow.StatusInProgress {
		t.Fatalf("expected in_progress, got %s", sv.Status)
	}

	out := 120.0
	if _, err := env.Engine.UpdateStep(env.Ctx, p.ID, workflow.StepPlanningPreparedness, engine.StepUpdateOptions{Completion: &out, ActorID: "tester"}); err == nil {
		t.Fatal("expected completion out of range to be rejected")
	}
	if _, err := env.Engine.UpdateStep(env.Ctx, p.ID, "shipping", engine.StepUpdateOptions{ActorID: "tester"}); err == nil {
		t.Fatal("expected unknown step to be rejected")
	}
}

func TestReopenStepCascadesToDependents(t *testing.T) {
	env := newTestEnv(t)
	p := createProject(t, env, "proj-1")
	completePlanning(t, env, p.ID)
	registerSources(t, env, p.ID)
	if _, err := env.Engine.CompleteStep(env.Ctx, p.ID, workflow.StepDataAssembly, "tester"); err != nil {
		t.Fatalf("complete data assembly: %v", err)
	}

	sv, err := env.Engine.ReopenStep(env.Ctx, p.ID, workflow.StepPlanningPreparedness, "tester")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if sv.Status != workflow.StatusInProgress || sv.CompletedAt != nil {
		t.Fatalf("expected reopened step in_progress, got %+v", sv)
	}
	// reopening again is a no-op
	sv, err = env.Engine.ReopenStep(env.Ctx, p.ID, workflow.StepPlanningPreparedness, "tester")
	if err != nil || sv.Status != workflow.StatusInProgress {
		t.Fatalf("expected reopen idempotent: %v %+v", err, sv)
	}
	da, err := env.Engine.GetStep(env.Ctx, p.ID, workflow.StepDataAssembly)
	if err != nil {
		t.Fatalf("get data assembly: %v", err)
	}
	if da.Status != workflow.StatusInProgress {
		t.Fatalf("expected dependent reopened, got %s", da.Status)
	}
	// the cascade is one hop: situation_analysis was never completed
	sa, err := env.Engine.GetStep(env.Ctx, p.ID, workflow.StepSituationAnalysis)
	if err != nil {
		t.Fatalf("get situation analysis: %v", err)
	}
	if sa.Status != workflow.StatusNotStarted {
		t.Fatalf("expected situation analysis untouched, got %s", sa.Status)
	}
}

func TestRunQualityChecksStampsScore(t *testing.T) {
	env := newTestEnv(t)
	p := createProject(t, env, "proj-1")
	ds, err := env.Engine.RegisterDataSource(env.Ctx, engine.DataSourceCreateOptions{
		ProjectID:  p.ID,
		Name:       "Routine cases 2025",
		SourceType: "epidemiological",
		FileFormat: "csv",
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatalf("register source: %v", err)
	}

	csv := []byte("admin_unit,year,cases,population\n" +
		"Kano,2025,1200,500000\n" +
		"Kaduna,2025,800,300000\n" +
		"Zamfara,2025,950,280000\n")
	report, err := env.Engine.RunQualityChecks(env.Ctx, ds.ID, csv, "tester")
	if err != nil {
		t.Fatalf("run quality checks: %v", err)
	}
	if len(report.Checks) == 0 {
		t.Fatal("expected quality checks to run")
	}
	if report.OverallScore == nil {
		t.Fatal("expected overall score")
	}

	stored, err := env.Engine.Repo.GetDataSource(env.Ctx, ds.ID)
	if err != nil {
		t.Fatalf("get source: %v", err)
	}
	if stored.QualityScore == nil {
		t.Fatal("expected quality score stamped on source")
	}
	again, err := env.Engine.GetQualityReport(env.Ctx, ds.ID)
	if err != nil {
		t.Fatalf("get quality report: %v", err)
	}
	if len(again.Checks) != len(report.Checks) {
		t.Fatalf("expected %d stored checks, got %d", len(report.Checks), len(again.Checks))
	}
}

func TestStratificationCalculateAndSummary(t *testing.T) {
	env := newTestEnv(t)
	p := createProject(t, env, "proj-1")

	cfg, err := env.Engine.CreateStratConfig(env.Ctx, engine.StratConfigCreateOptions{
		ProjectID: p.ID,
		Name:      "PfPR baseline",
		Metric:    stratify.MetricPfPR,
		ActorID:   "tester",
	})
	if err != nil {
		t.Fatalf("create strat config: %v", err)
	}

	units := []stratify.UnitInput{
		{AdminUnitName: "Kano", MetricValue: 42, Population: intPtr(500000), CasesAnnual: intPtr(1200)},
		{AdminUnitName: "Kaduna", MetricValue: 18, Population: intPtr(300000), CasesAnnual: intPtr(800)},
		{AdminUnitName: "Abuja", MetricValue: 0.4, Population: intPtr(250000), CasesAnnual: intPtr(40)},
	}
	results, err := env.Engine.CalculateStratification(env.Ctx, cfg.ID, units, "tester")
	if err != nil {
		t.Fatalf("calculate: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	byUnit := map[string]string{}
	for _, r := range results {
		byUnit[r.AdminUnitName] = r.RiskLevel
	}
	if byUnit["Kano"] != stratify.RiskHigh || byUnit["Kaduna"] != stratify.RiskModerate || byUnit["Abuja"] != stratify.RiskVeryLow {
		t.Fatalf("unexpected risk levels: %v", byUnit)
	}

	summary, err := env.Engine.StratificationSummary(env.Ctx, cfg.ID)
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.TotalUnits != 3 || summary.TotalPopulation != 1050000 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.RiskDistribution[stratify.RiskHigh] != 1 {
		t.Fatalf("expected one high unit, got %v", summary.RiskDistribution)
	}
}

func TestScenarioCostingAndOptimization(t *testing.T) {
	env := newTestEnv(t)
	p := createProject(t, env, "proj-1")

	s, err := env.Engine.CreateScenario(env.Ctx, engine.ScenarioCreateOptions{
		ProjectID:    p.ID,
		Name:         "Ideal mix",
		ScenarioType: "ideal",
		Interventions: map[string][]string{
			"Kano":   {"itn", "smc", "cm"},
			"Kaduna": {"itn", "cm"},
		},
		ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create scenario: %v", err)
	}

	if _, err := env.Engine.CreateScenario(env.Ctx, engine.ScenarioCreateOptions{
		ProjectID: p.ID, Name: "Bad", ScenarioType: "wishful", ActorID: "tester",
	}); err == nil {
		t.Fatal("expected invalid scenario type to be rejected")
	}

	populations := []costing.PopulationUnit{
		{AdminUnitName: "Kano", Population: 500000},
		{AdminUnitName: "Kaduna", Population: 300000},
	}
	summary, err := env.Engine.CalculateScenarioCost(env.Ctx, s.ID, populations, nil, 3, "tester")
	if err != nil {
		t.Fatalf("cost: %v", err)
	}
	if summary.TotalCost <= 0 || summary.TotalPopulation != 800000 {
		t.Fatalf("unexpected cost summary: %+v", summary)
	}
	if summary.CostByUnit["Kano"] <= summary.CostByUnit["Kaduna"] {
		t.Fatalf("expected the larger high-risk unit to cost more: %v", summary.CostByUnit)
	}

	stored, err := env.Engine.Repo.GetScenario(env.Ctx, s.ID)
	if err != nil {
		t.Fatalf("get scenario: %v", err)
	}
	if stored.TotalCost == nil || *stored.TotalCost != summary.TotalCost {
		t.Fatalf("expected total cost stamped on scenario, got %v", stored.TotalCost)
	}

	if _, err := env.Engine.OptimizeScenario(env.Ctx, s.ID, 0, populations, "tester"); err == nil {
		t.Fatal("expected zero budget to be rejected")
	}
	budget := summary.TotalCost / 2
	optimized, err := env.Engine.OptimizeScenario(env.Ctx, s.ID, budget, populations, "tester")
	if err != nil {
		t.Fatalf("optimize: %v", err)
	}
	if optimized.TotalCost == nil || *optimized.TotalCost > budget {
		t.Fatalf("expected optimized cost within budget %v, got %v", budget, optimized.TotalCost)
	}
	if *optimized.TotalCost >= summary.TotalCost {
		t.Fatal("expected optimization to trim the assignment")
	}
}

func TestRunForecastSimpleModel(t *testing.T) {
	env := newTestEnv(t)
	p := createProject(t, env, "proj-1")
	s, err := env.Engine.CreateScenario(env.Ctx, engine.ScenarioCreateOptions{
		ProjectID:    p.ID,
		Name:         "Ideal mix",
		ScenarioType: "ideal",
		Interventions: map[string][]string{
			"Kano": {"itn", "smc"},
		},
		ActorID: "tester",
	})
	if err != nil {
		t.Fatalf("create scenario: %v", err)
	}

	f, err := env.Engine.RunForecast(env.Ctx, engine.ForecastRunOptions{
		ScenarioID: s.ID,
		Years:      3,
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatalf("run forecast: %v", err)
	}
	if f.Status != "completed" || f.ModelType != "simple" {
		t.Fatalf("unexpected forecast: status=%s model=%s", f.Status, f.ModelType)
	}
	if f.ProjCasesJSON == nil || f.CasesAverted == nil || *f.CasesAverted <= 0 {
		t.Fatalf("expected projections and averted cases, got %+v", f)
	}

	stored, err := env.Engine.Repo.GetScenario(env.Ctx, s.ID)
	if err != nil {
		t.Fatalf("get scenario: %v", err)
	}
	if stored.EstCasesAverted == nil || *stored.EstCasesAverted != *f.CasesAverted {
		t.Fatalf("expected averted cases stamped on scenario, got %v", stored.EstCasesAverted)
	}

	// non-simple models are queued for offline runs
	pending, err := env.Engine.RunForecast(env.Ctx, engine.ForecastRunOptions{
		ScenarioID: s.ID,
		ModelType:  "transmission",
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatalf("run pending forecast: %v", err)
	}
	if pending.Status != "pending" {
		t.Fatalf("expected pending status, got %s", pending.Status)
	}
}

func TestRecommendAndPlans(t *testing.T) {
	env := newTestEnv(t)
	p := createProject(t, env, "proj-1")

	rec, err := env.Engine.Recommend("smc", "high", map[string]any{"seasonality": "seasonal"})
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if rec.InterventionCode != "smc" || !rec.Eligible {
		t.Fatalf("unexpected recommendation: %+v", rec)
	}
	// SMC is not recommended for very low transmission
	rec, err = env.Engine.Recommend("smc", "very_low", nil)
	if err != nil {
		t.Fatalf("recommend ineligible: %v", err)
	}
	if rec.Eligible || len(rec.Ineligibility) == 0 {
		t.Fatalf("expected ineligible recommendation, got %+v", rec)
	}
	if _, err := env.Engine.Recommend("bednets_v2", "high", nil); err == nil {
		t.Fatal("expected unknown tree to error")
	}

	plan, err := env.Engine.CreatePlan(env.Ctx, engine.PlanCreateOptions{
		ProjectID:        p.ID,
		AdminUnitName:    "Kano",
		InterventionCode: "smc",
		DeliveryStrategy: "door_to_door",
		ActorID:          "tester",
	})
	if err != nil {
		t.Fatalf("create plan: %v", err)
	}
	if _, err := env.Engine.CreatePlan(env.Ctx, engine.PlanCreateOptions{
		ProjectID:        p.ID,
		AdminUnitName:    "Kano",
		InterventionCode: "teleportation",
		ActorID:          "tester",
	}); err == nil {
		t.Fatal("expected unknown intervention code to be rejected")
	}
	if err := env.Engine.DeletePlan(env.Ctx, plan.ID, "tester"); err != nil {
		t.Fatalf("delete plan: %v", err)
	}
}

func TestGenerateReportWritesArtifact(t *testing.T) {
	env := newTestEnv(t)
	p := createProject(t, env, "proj-1")

	r, err := env.Engine.GenerateReport(env.Ctx, engine.ReportGenerateOptions{
		ProjectID:  p.ID,
		Title:      "Annual plan",
		ReportType: "full_snt",
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatalf("generate report: %v", err)
	}
	if r.Format != "json" {
		t.Fatalf("expected json default format, got %s", r.Format)
	}
	if r.FilePath == nil || r.FileSizeBytes == nil || *r.FileSizeBytes == 0 {
		t.Fatalf("expected report artifact on disk, got %+v", r)
	}
	if _, err := env.Engine.GenerateReport(env.Ctx, engine.ReportGenerateOptions{
		ProjectID:  p.ID,
		ReportType: "quarterly",
		ActorID:    "tester",
	}); err == nil {
		t.Fatal("expected unknown report type to be rejected")
	}
}
