package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sntplan/internal/domain"
	"sntplan/internal/events"
	"sntplan/internal/workflow"
)

// StepView is one workflow step as seen by a client, with accessibility
// derived from the prerequisite graph.
type StepView struct {
	Step               workflow.Step           `json:"step"`
	Label              string                  `json:"label"`
	Status             string                  `json:"status"`
	Completion         float64                 `json:"completion_percentage"`
	IsAccessible       bool                    `json:"is_accessible"`
	BlockingPrereqs    []string                `json:"blocking_prerequisites"`
	NonBlockingPrereqs []string                `json:"non_blocking_prerequisites"`
	Prerequisites      []workflow.PrereqStatus `json:"prerequisites"`
	Notes              *string                 `json:"notes,omitempty"`
	CompletedAt        *string                 `json:"completed_at,omitempty"`
	Data               map[string]any          `json:"data,omitempty"`
	Validation         *StepValidation         `json:"validation,omitempty"`
}

// WorkflowView is the full workflow ladder for a project.
type WorkflowView struct {
	ProjectID       string         `json:"project_id"`
	Steps           []StepView     `json:"steps"`
	OverallProgress float64        `json:"overall_progress"`
	CurrentStep     *workflow.Step `json:"current_step,omitempty"`
}

// StepValidation is the outcome of running a step's validator.
type StepValidation struct {
	Step     workflow.Step `json:"step"`
	IsValid  bool          `json:"is_valid"`
	Errors   []string      `json:"errors"`
	Warnings []string      `json:"warnings"`
}

// GetWorkflow returns all steps with accessibility, overall progress and
// the first accessible incomplete step.
func (e Engine) GetWorkflow(ctx context.Context, projectID string) (WorkflowView, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return WorkflowView{}, err
	}
	states, err := e.Repo.ListWorkflowStates(ctx, projectID)
	if err != nil {
		return WorkflowView{}, err
	}
	stateMap := map[workflow.Step]domain.WorkflowState{}
	for _, s := range states {
		stateMap[workflow.Step(s.Step)] = s
	}

	view := WorkflowView{ProjectID: projectID}
	completed := 0
	for _, step := range workflow.Steps {
		state, ok := stateMap[step]
		if !ok {
			continue
		}
		sv := stepView(step, state, stateMap)
		if state.Status == workflow.StatusCompleted {
			completed++
		} else if view.CurrentStep == nil && sv.IsAccessible {
			s := step
			view.CurrentStep = &s
		}
		view.Steps = append(view.Steps, sv)
	}
	view.OverallProgress = float64(completed) / float64(len(workflow.Steps)) * 100
	return view, nil
}

// GetStep returns a single step with accessibility info.
func (e Engine) GetStep(ctx context.Context, projectID string, step workflow.Step) (StepView, error) {
	if !workflow.Valid(step) {
		return StepView{}, fmt.Errorf("unknown workflow step %s", step)
	}
	states, err := e.Repo.ListWorkflowStates(ctx, projectID)
	if err != nil {
		return StepView{}, err
	}
	stateMap := map[workflow.Step]domain.WorkflowState{}
	for _, s := range states {
		stateMap[workflow.Step(s.Step)] = s
	}
	state, ok := stateMap[step]
	if !ok {
		return StepView{}, fmt.Errorf("workflow state for step %s not found", step)
	}
	return stepView(step, state, stateMap), nil
}

func stepView(step workflow.Step, state domain.WorkflowState, stateMap map[workflow.Step]domain.WorkflowState) StepView {
	var blocking, nonBlocking []string
	var prereqs []workflow.PrereqStatus
	for _, p := range workflow.Prerequisites[step] {
		done := stateMap[p.Step].Status == workflow.StatusCompleted
		prereqs = append(prereqs, workflow.PrereqStatus{
			Step:      p.Step,
			Label:     workflow.Labels[p.Step],
			Kind:      p.Kind,
			Completed: done,
		})
		if !done {
			if p.Kind == workflow.PrereqBlocking {
				blocking = append(blocking, workflow.Labels[p.Step])
			} else {
				nonBlocking = append(nonBlocking, workflow.Labels[p.Step])
			}
		}
	}
	sv := StepView{
		Step:               step,
		Label:              workflow.Labels[step],
		Status:             state.Status,
		Completion:         state.Completion,
		IsAccessible:       len(blocking) == 0,
		BlockingPrereqs:    blocking,
		NonBlockingPrereqs: nonBlocking,
		Prerequisites:      prereqs,
		Notes:              state.Notes,
		CompletedAt:        state.CompletedAt,
	}
	if state.DataJSON != nil {
		_ = json.Unmarshal([]byte(*state.DataJSON), &sv.Data)
	}
	if state.ErrorsJSON != nil {
		var v StepValidation
		if err := json.Unmarshal([]byte(*state.ErrorsJSON), &v); err == nil {
			v.Step = step
			sv.Validation = &v
		}
	}
	return sv
}

// StepUpdateOptions carries progress updates for a step.
type StepUpdateOptions struct {
	Notes      *string
	Completion *float64
	Data       map[string]any
	ActorID    string
}

// UpdateStep records progress on a step; touching a not_started step moves
// it to in_progress.
func (e Engine) UpdateStep(ctx context.Context, projectID string, step workflow.Step, opts StepUpdateOptions) (StepView, error) {
	if !workflow.Valid(step) {
		return StepView{}, fmt.Errorf("unknown workflow step %s", step)
	}
	state, err := e.Repo.GetWorkflowState(ctx, projectID, string(step))
	if err != nil {
		return StepView{}, err
	}
	if state.Status == workflow.StatusNotStarted {
		state.Status = workflow.StatusInProgress
	}
	if opts.Notes != nil {
		state.Notes = optionalString(*opts.Notes)
	}
	if opts.Completion != nil {
		if *opts.Completion < 0 || *opts.Completion > 100 {
			return StepView{}, fmt.Errorf("completion_percentage must be between 0 and 100")
		}
		state.Completion = *opts.Completion
	}
	if opts.Data != nil {
		dataJSON, err := marshalJSON(opts.Data)
		if err != nil {
			return StepView{}, err
		}
		state.DataJSON = dataJSON
	}
	state.UpdatedAt = e.nowRFC()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return StepView{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateWorkflowStateTx(ctx, tx, state); err != nil {
		return StepView{}, err
	}
	if err := e.Events.Append(ctx, tx, "workflow.step.updated", projectID, "workflow_step", string(step), opts.ActorID, events.EventPayload{
		"status":                state.Status,
		"completion_percentage": state.Completion,
	}); err != nil {
		return StepView{}, err
	}
	if err := tx.Commit(); err != nil {
		return StepView{}, err
	}
	return e.GetStep(ctx, projectID, step)
}

// ValidateStep runs the step's validator and persists its outcome on the
// workflow state.
func (e Engine) ValidateStep(ctx context.Context, projectID string, step workflow.Step) (StepValidation, error) {
	if !workflow.Valid(step) {
		return StepValidation{}, fmt.Errorf("unknown workflow step %s", step)
	}
	state, err := e.Repo.GetWorkflowState(ctx, projectID, string(step))
	if err != nil {
		return StepValidation{}, err
	}
	validate, ok := stepValidators[step]
	if !ok {
		validate = stateValidator(validateGeneric)
	}
	errs, warns, err := validate(ctx, e, projectID, state)
	if err != nil {
		return StepValidation{}, err
	}

	v := StepValidation{
		Step:     step,
		IsValid:  len(errs) == 0,
		Errors:   nonNilStrings(errs),
		Warnings: nonNilStrings(warns),
	}
	errsJSON, err := marshalJSON(v)
	if err != nil {
		return v, err
	}
	state.ErrorsJSON = errsJSON
	state.UpdatedAt = e.nowRFC()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return v, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateWorkflowStateTx(ctx, tx, state); err != nil {
		return v, err
	}
	if err := tx.Commit(); err != nil {
		return v, err
	}
	return v, nil
}

// CompleteStep marks a step completed once its validator passes. Validity
// is the only gate: incomplete prerequisites lower accessibility in the
// step view but do not block completion.
func (e Engine) CompleteStep(ctx context.Context, projectID string, step workflow.Step, actorID string) (StepView, error) {
	sv, err := e.GetStep(ctx, projectID, step)
	if err != nil {
		return StepView{}, err
	}
	v, err := e.ValidateStep(ctx, projectID, step)
	if err != nil {
		return sv, err
	}
	if !v.IsValid {
		return sv, fmt.Errorf("Step cannot be completed: %s", strings.Join(v.Errors, ", "))
	}
	state, err := e.Repo.GetWorkflowState(ctx, projectID, string(step))
	if err != nil {
		return sv, err
	}
	now := e.nowRFC()
	state.Status = workflow.StatusCompleted
	state.Completion = 100
	state.CompletedAt = &now
	state.CompletedBy = optionalString(actorID)
	state.UpdatedAt = now

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return sv, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateWorkflowStateTx(ctx, tx, state); err != nil {
		return sv, err
	}
	if err := e.Events.Append(ctx, tx, "workflow.step.completed", projectID, "workflow_step", string(step), actorID, events.EventPayload{
		"warnings": v.Warnings,
	}); err != nil {
		return sv, err
	}
	if err := tx.Commit(); err != nil {
		return sv, err
	}
	return e.GetStep(ctx, projectID, step)
}

// ReopenStep puts a completed step back in progress and reopens any
// directly dependent step that had completed on top of it.
func (e Engine) ReopenStep(ctx context.Context, projectID string, step workflow.Step, actorID string) (StepView, error) {
	if !workflow.Valid(step) {
		return StepView{}, fmt.Errorf("unknown workflow step %s", step)
	}
	state, err := e.Repo.GetWorkflowState(ctx, projectID, string(step))
	if err != nil {
		return StepView{}, err
	}
	now := e.nowRFC()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return StepView{}, err
	}
	defer tx.Rollback()

	state.Status = workflow.StatusInProgress
	state.CompletedAt = nil
	state.CompletedBy = nil
	state.UpdatedAt = now
	if err := e.Repo.UpdateWorkflowStateTx(ctx, tx, state); err != nil {
		return StepView{}, err
	}
	reopened := []string{}
	for _, dep := range workflow.BlockingDependents(step) {
		ds, err := e.Repo.GetWorkflowStateTx(ctx, tx, projectID, string(dep))
		if err != nil {
			return StepView{}, err
		}
		if ds.Status != workflow.StatusCompleted {
			continue
		}
		ds.Status = workflow.StatusInProgress
		ds.CompletedAt = nil
		ds.CompletedBy = nil
		ds.UpdatedAt = now
		if err := e.Repo.UpdateWorkflowStateTx(ctx, tx, ds); err != nil {
			return StepView{}, err
		}
		reopened = append(reopened, string(dep))
	}
	if err := e.Events.Append(ctx, tx, "workflow.step.reopened", projectID, "workflow_step", string(step), actorID, events.EventPayload{
		"cascaded": reopened,
	}); err != nil {
		return StepView{}, err
	}
	if err := tx.Commit(); err != nil {
		return StepView{}, err
	}
	return e.GetStep(ctx, projectID, step)
}

// --- step validators ---

// stepValidator produces the errors and warnings for one workflow step.
type stepValidator func(ctx context.Context, e Engine, projectID string, state domain.WorkflowState) ([]string, []string, error)

// stepValidators holds the step-specific validators; steps without an
// entry fall back to the generic completion-percentage check.
var stepValidators = map[workflow.Step]stepValidator{
	workflow.StepPlanningPreparedness: stateValidator(validatePlanning),
	workflow.StepDataAssembly: func(ctx context.Context, e Engine, projectID string, _ domain.WorkflowState) ([]string, []string, error) {
		return e.validateDataAssembly(ctx, projectID)
	},
	workflow.StepSituationAnalysis: stateValidator(validateSituationAnalysis),
	workflow.StepStratification: func(ctx context.Context, e Engine, projectID string, _ domain.WorkflowState) ([]string, []string, error) {
		return e.validateStratification(ctx, projectID)
	},
}

// stateValidator adapts a validator that only inspects the stored step state.
func stateValidator(f func(domain.WorkflowState) ([]string, []string)) stepValidator {
	return func(_ context.Context, _ Engine, _ string, state domain.WorkflowState) ([]string, []string, error) {
		errs, warns := f(state)
		return errs, warns, nil
	}
}

func validatePlanning(state domain.WorkflowState) ([]string, []string) {
	var errs, warns []string
	data := stateData(state)
	if !truthy(data["scope_of_work"]) {
		errs = append(errs, "Scope of work not documented")
	}
	if !truthy(data["operational_unit"]) {
		errs = append(errs, "Operational unit (district/region) not defined")
	}
	if !truthy(data["timeline"]) {
		warns = append(warns, "Timeline not yet created")
	}
	return errs, warns
}

func (e Engine) validateDataAssembly(ctx context.Context, projectID string) ([]string, []string, error) {
	var errs, warns []string
	sources, err := e.Repo.ListDataSources(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	if len(sources) == 0 {
		return []string{"No data sources uploaded"}, nil, nil
	}
	present := map[string]bool{}
	for _, ds := range sources {
		present[ds.SourceType] = true
	}
	var missing []string
	for _, required := range e.Config.RequiredSourceTypes() {
		if !present[required] {
			missing = append(missing, required)
		}
	}
	if len(missing) > 0 {
		errs = append(errs, fmt.Sprintf("Missing required data types: %s", strings.Join(missing, ", ")))
	}
	for _, ds := range sources {
		if ds.QualityScore != nil && *ds.QualityScore < 0.5 {
			warns = append(warns, fmt.Sprintf("Low quality score for '%s': %.0f%%", ds.Name, *ds.QualityScore*100))
		}
	}
	return errs, warns, nil
}

func validateSituationAnalysis(state domain.WorkflowState) ([]string, []string) {
	var errs []string
	data := stateData(state)
	if !truthy(data["analysis_completed"]) {
		errs = append(errs, "Situation analysis not marked as completed")
	}
	return errs, nil
}

func (e Engine) validateStratification(ctx context.Context, projectID string) ([]string, []string, error) {
	configs, err := e.Repo.ListStratConfigs(ctx, projectID)
	if err != nil {
		return nil, nil, err
	}
	var active []domain.StratificationConfig
	for _, c := range configs {
		if c.IsActive {
			active = append(active, c)
		}
	}
	if len(active) == 0 {
		return []string{"No active stratification configuration"}, nil, nil
	}
	var errs []string
	for _, c := range active {
		n, err := e.Repo.CountStratResults(ctx, c.ID)
		if err != nil {
			return nil, nil, err
		}
		if n == 0 {
			errs = append(errs, fmt.Sprintf("No stratification results for config '%s'", c.Name))
		}
	}
	return errs, nil, nil
}

func validateGeneric(state domain.WorkflowState) ([]string, []string) {
	var warns []string
	if state.Completion < 100 {
		warns = append(warns, fmt.Sprintf("Step is %.0f%% complete", state.Completion))
	}
	return nil, warns
}

func stateData(state domain.WorkflowState) map[string]any {
	data := map[string]any{}
	if state.DataJSON != nil {
		_ = json.Unmarshal([]byte(*state.DataJSON), &data)
	}
	return data
}

// truthy mirrors loose boolean coercion on step data values.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case float64:
		return t != 0
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}

func nonNilStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
