// Package workflow defines the ten-step subnational tailoring workflow:
// the step order, display labels, and the prerequisite graph that gates
// step completion.
package workflow

// Step identifies one step of the planning workflow.
type Step string

const (
	StepPlanningPreparedness  Step = "planning_preparedness"
	StepDataAssembly          Step = "data_assembly"
	StepSituationAnalysis     Step = "situation_analysis"
	StepStratification        Step = "stratification"
	StepInterventionTailoring Step = "intervention_tailoring"
	StepImpactForecasting     Step = "impact_forecasting"
	StepScenarioSelection     Step = "scenario_selection"
	StepResourceOptimization  Step = "resource_optimization"
	StepServiceDelivery       Step = "service_delivery"
	StepMonitoringEvaluation  Step = "monitoring_evaluation"
)

// Steps lists every workflow step in canonical order.
var Steps = []Step{
	StepPlanningPreparedness,
	StepDataAssembly,
	StepSituationAnalysis,
	StepStratification,
	StepInterventionTailoring,
	StepImpactForecasting,
	StepScenarioSelection,
	StepResourceOptimization,
	StepServiceDelivery,
	StepMonitoringEvaluation,
}

// Labels maps each step to its display name.
var Labels = map[Step]string{
	StepPlanningPreparedness:  "Planning & Preparedness",
	StepDataAssembly:          "Data Assembly & Management",
	StepSituationAnalysis:     "Epidemiological Situation Analysis",
	StepStratification:        "Risk Stratification",
	StepInterventionTailoring: "Intervention Mix Tailoring",
	StepImpactForecasting:     "Impact Forecasting",
	StepScenarioSelection:     "Scenario Selection",
	StepResourceOptimization:  "Resource Optimization",
	StepServiceDelivery:       "Service Delivery Planning",
	StepMonitoringEvaluation:  "Monitoring & Evaluation",
}

// Step statuses. Blocked is part of the vocabulary but is never persisted;
// accessibility is derived from prerequisite completion instead.
const (
	StatusNotStarted = "not_started"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusBlocked    = "blocked"
	StatusSkipped    = "skipped"
)

// Prerequisite kinds.
const (
	PrereqBlocking    = "blocking"
	PrereqNonBlocking = "non_blocking"
)

// Prerequisite links a step to one step that should come before it.
type Prerequisite struct {
	Step Step
	Kind string
}

// Prerequisites is the dependency graph. Every step blocks on its
// predecessor, except monitoring_evaluation which only soft-depends on
// service_delivery so that M&E planning can start early.
var Prerequisites = map[Step][]Prerequisite{
	StepPlanningPreparedness:  {},
	StepDataAssembly:          {{StepPlanningPreparedness, PrereqBlocking}},
	StepSituationAnalysis:     {{StepDataAssembly, PrereqBlocking}},
	StepStratification:        {{StepSituationAnalysis, PrereqBlocking}},
	StepInterventionTailoring: {{StepStratification, PrereqBlocking}},
	StepImpactForecasting:     {{StepInterventionTailoring, PrereqBlocking}},
	StepScenarioSelection:     {{StepImpactForecasting, PrereqBlocking}},
	StepResourceOptimization:  {{StepScenarioSelection, PrereqBlocking}},
	StepServiceDelivery:       {{StepResourceOptimization, PrereqBlocking}},
	StepMonitoringEvaluation:  {{StepServiceDelivery, PrereqNonBlocking}},
}

// Valid reports whether s names a known workflow step.
func Valid(s Step) bool {
	_, ok := Labels[s]
	return ok
}

// BlockingPrereqs returns the blocking prerequisites of a step.
func BlockingPrereqs(s Step) []Step {
	var out []Step
	for _, p := range Prerequisites[s] {
		if p.Kind == PrereqBlocking {
			out = append(out, p.Step)
		}
	}
	return out
}

// BlockingDependents returns the steps that directly block on s.
func BlockingDependents(s Step) []Step {
	var out []Step
	for _, step := range Steps {
		for _, p := range Prerequisites[step] {
			if p.Step == s && p.Kind == PrereqBlocking {
				out = append(out, step)
			}
		}
	}
	return out
}

// PrereqStatus describes one prerequisite of a step as seen by a client.
type PrereqStatus struct {
	Step      Step   `json:"step"`
	Label     string `json:"label"`
	Kind      string `json:"kind"`
	Completed bool   `json:"completed"`
}

// Accessible reports whether a step may be worked on given the set of
// completed steps. Non-blocking prerequisites never gate access.
func Accessible(s Step, completed map[Step]bool) bool {
	for _, p := range Prerequisites[s] {
		if p.Kind == PrereqBlocking && !completed[p.Step] {
			return false
		}
	}
	return true
}
