package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"sntplan/internal/costing"
	"sntplan/internal/domain"
	"sntplan/internal/events"
)

// ScenarioCreateOptions are parameters for creating an intervention
// scenario. Interventions maps unit keys to intervention code lists.
type ScenarioCreateOptions struct {
	ProjectID     string
	Name          string
	Description   string
	ScenarioType  string
	Interventions map[string][]string
	ActorID       string
}

func (e Engine) CreateScenario(ctx context.Context, opts ScenarioCreateOptions) (domain.Scenario, error) {
	if opts.Name == "" {
		return domain.Scenario{}, errors.New("name is required")
	}
	if !costing.ValidScenarioType(opts.ScenarioType) {
		return domain.Scenario{}, fmt.Errorf("invalid scenario type %s", opts.ScenarioType)
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.Scenario{}, err
	}
	if opts.Interventions == nil {
		opts.Interventions = map[string][]string{}
	}
	for _, codes := range opts.Interventions {
		for _, code := range codes {
			if _, ok := costing.Labels[code]; !ok {
				return domain.Scenario{}, fmt.Errorf("unknown intervention code %s", code)
			}
		}
	}
	ij, err := json.Marshal(opts.Interventions)
	if err != nil {
		return domain.Scenario{}, err
	}
	now := e.nowRFC()
	s := domain.Scenario{
		ID:                uuid.NewString(),
		ProjectID:         opts.ProjectID,
		Name:              opts.Name,
		Description:       optionalString(opts.Description),
		ScenarioType:      opts.ScenarioType,
		InterventionsJSON: string(ij),
		CreatedBy:         opts.ActorID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return s, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertScenarioTx(ctx, tx, s); err != nil {
		return s, err
	}
	if err := e.Events.Append(ctx, tx, "scenario.created", s.ProjectID, "scenario", s.ID, opts.ActorID, events.EventPayload{
		"name": s.Name,
		"type": s.ScenarioType,
	}); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	return s, nil
}

// ScenarioUpdateOptions encapsulates allowed scenario updates.
type ScenarioUpdateOptions struct {
	ID            string
	Name          *string
	Description   *string
	Interventions map[string][]string
	IsSelected    *bool
	ActorID       string
}

func (e Engine) UpdateScenario(ctx context.Context, opts ScenarioUpdateOptions) (domain.Scenario, error) {
	s, err := e.Repo.GetScenario(ctx, opts.ID)
	if err != nil {
		return s, err
	}
	if opts.Name != nil {
		s.Name = *opts.Name
	}
	if opts.Description != nil {
		s.Description = optionalString(*opts.Description)
	}
	if opts.Interventions != nil {
		ij, err := json.Marshal(opts.Interventions)
		if err != nil {
			return s, err
		}
		s.InterventionsJSON = string(ij)
	}
	if opts.IsSelected != nil {
		s.IsSelected = *opts.IsSelected
	}
	s.UpdatedAt = e.nowRFC()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return s, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateScenarioTx(ctx, tx, s); err != nil {
		return s, err
	}
	if err := e.Events.Append(ctx, tx, "scenario.updated", s.ProjectID, "scenario", s.ID, opts.ActorID, events.EventPayload{
		"is_selected": s.IsSelected,
	}); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	return s, nil
}

func (e Engine) DeleteScenario(ctx context.Context, id, actorID string) error {
	s, err := e.Repo.GetScenario(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteScenarioTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "scenario.deleted", s.ProjectID, "scenario", s.ID, actorID, events.EventPayload{"name": s.Name}); err != nil {
		return err
	}
	return tx.Commit()
}

// CostSummary is the outcome of costing one scenario.
type CostSummary struct {
	ScenarioID         string             `json:"scenario_id"`
	ScenarioName       string             `json:"scenario_name"`
	TotalCost          float64            `json:"total_cost"`
	CostByIntervention map[string]float64 `json:"cost_by_intervention"`
	CostByUnit         map[string]float64 `json:"cost_by_unit"`
	CostPerCapita      *float64           `json:"cost_per_capita,omitempty"`
	TotalPopulation    int64              `json:"total_population"`
}

// CalculateScenarioCost prices every unit-intervention pair in the
// scenario, replacing previous cost items and updating the scenario
// totals. Zero years falls back to the configured costing horizon.
func (e Engine) CalculateScenarioCost(ctx context.Context, scenarioID string, populations []costing.PopulationUnit, overrides costing.UnitCosts, years int, actorID string) (CostSummary, error) {
	s, err := e.Repo.GetScenario(ctx, scenarioID)
	if err != nil {
		return CostSummary{}, err
	}
	assignment, err := scenarioAssignment(s)
	if err != nil {
		return CostSummary{}, err
	}
	costs := overrides
	if costs == nil {
		costs = costing.DefaultUnitCosts()
	}
	if years <= 0 {
		years = e.Config.CostingYears()
	}
	popMap := costing.PopulationMap(populations)

	now := e.nowRFC()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return CostSummary{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteCostItemsTx(ctx, tx, s.ID); err != nil {
		return CostSummary{}, err
	}

	summary := CostSummary{
		ScenarioID:         s.ID,
		ScenarioName:       s.Name,
		CostByIntervention: map[string]float64{},
		CostByUnit:         map[string]float64{},
	}
	for _, unitKey := range sortedKeys(assignment) {
		unit, known := popMap[unitKey]
		unitName := unitKey
		if known && unit.AdminUnitName != "" {
			unitName = unit.AdminUnitName
		}
		summary.TotalPopulation += unit.Population

		unitTotal := 0.0
		for _, code := range assignment[unitKey] {
			cost := costing.InterventionCost(code, unit.Population, costs, years)
			detailsJSON, err := marshalJSON(map[string]any{
				"population": unit.Population,
				"unit_costs": costs[code],
			})
			if err != nil {
				return summary, err
			}
			ci := domain.CostItem{
				ID:               uuid.NewString(),
				ScenarioID:       s.ID,
				AdminUnitName:    unitName,
				AdminUnitCode:    optionalString(unitKey),
				InterventionCode: code,
				TotalCost:        cost,
				Years:            years,
				DetailsJSON:      detailsJSON,
				CreatedAt:        now,
			}
			if err := e.Repo.InsertCostItemTx(ctx, tx, ci); err != nil {
				return summary, err
			}
			summary.TotalCost += cost
			unitTotal += cost
			summary.CostByIntervention[code] += cost
		}
		summary.CostByUnit[unitKey] = unitTotal
	}
	if summary.TotalPopulation > 0 {
		perCapita := summary.TotalCost / float64(summary.TotalPopulation)
		summary.CostPerCapita = &perCapita
	}

	s.TotalCost = &summary.TotalCost
	s.PopulationCovered = &summary.TotalPopulation
	s.UpdatedAt = now
	if err := e.Repo.UpdateScenarioTx(ctx, tx, s); err != nil {
		return summary, err
	}
	if err := e.Events.Append(ctx, tx, "scenario.costed", s.ProjectID, "scenario", s.ID, actorID, events.EventPayload{
		"total_cost": summary.TotalCost,
		"years":      years,
	}); err != nil {
		return summary, err
	}
	if err := tx.Commit(); err != nil {
		return summary, err
	}
	return summary, nil
}

// OptimizeScenario trims the scenario's assignment to the most
// cost-effective unit-intervention pairs that fit the budget.
func (e Engine) OptimizeScenario(ctx context.Context, scenarioID string, budget float64, populations []costing.PopulationUnit, actorID string) (domain.Scenario, error) {
	s, err := e.Repo.GetScenario(ctx, scenarioID)
	if err != nil {
		return s, err
	}
	if budget <= 0 {
		return s, errors.New("budget must be positive")
	}
	assignment, err := scenarioAssignment(s)
	if err != nil {
		return s, err
	}
	popMap := costing.PopulationMap(populations)
	optimized, totalCost := costing.Optimize(assignment, popMap, costing.DefaultUnitCosts(), e.Config.CostingYears(), budget)

	ij, err := json.Marshal(optimized)
	if err != nil {
		return s, err
	}
	s.InterventionsJSON = string(ij)
	s.TotalCost = &totalCost
	s.UpdatedAt = e.nowRFC()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return s, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateScenarioTx(ctx, tx, s); err != nil {
		return s, err
	}
	if err := e.Events.Append(ctx, tx, "scenario.optimized", s.ProjectID, "scenario", s.ID, actorID, events.EventPayload{
		"budget":     budget,
		"total_cost": totalCost,
	}); err != nil {
		return s, err
	}
	if err := tx.Commit(); err != nil {
		return s, err
	}
	return s, nil
}

// ScenarioComparison lines scenarios up on cost and impact.
type ScenarioComparison struct {
	Scenarios []domain.Scenario         `json:"scenarios"`
	Metrics   map[string]map[string]any `json:"comparison_metrics"`
}

func (e Engine) CompareScenarios(ctx context.Context, projectID string) (ScenarioComparison, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return ScenarioComparison{}, err
	}
	scenarios, err := e.Repo.ListScenarios(ctx, projectID)
	if err != nil {
		return ScenarioComparison{}, err
	}
	cmp := ScenarioComparison{Scenarios: scenarios, Metrics: map[string]map[string]any{}}
	for _, s := range scenarios {
		m := map[string]any{
			"name":               s.Name,
			"total_cost":         derefFloat(s.TotalCost),
			"population_covered": derefInt64(s.PopulationCovered),
			"cases_averted":      derefInt64(s.EstCasesAverted),
			"deaths_averted":     derefInt64(s.EstDeathsAverted),
		}
		var perCase *float64
		if s.TotalCost != nil && *s.TotalCost != 0 && s.EstCasesAverted != nil && *s.EstCasesAverted != 0 {
			v := *s.TotalCost / float64(*s.EstCasesAverted)
			perCase = &v
		}
		m["cost_per_case_averted"] = perCase
		cmp.Metrics[s.ID] = m
	}
	return cmp, nil
}

func scenarioAssignment(s domain.Scenario) (map[string][]string, error) {
	assignment := map[string][]string{}
	if s.InterventionsJSON != "" {
		if err := json.Unmarshal([]byte(s.InterventionsJSON), &assignment); err != nil {
			return nil, fmt.Errorf("scenario interventions: %w", err)
		}
	}
	return assignment, nil
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func derefFloat(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
