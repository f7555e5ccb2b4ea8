package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"sntplan/internal/costing"
	"sntplan/internal/domain"
	"sntplan/internal/events"
	"sntplan/internal/tailoring"
)

// PlanCreateOptions are parameters for saving a tailoring plan for one
// operational unit.
type PlanCreateOptions struct {
	ProjectID        string
	AdminUnitName    string
	AdminUnitCode    string
	InterventionCode string
	Decisions        map[string]any
	CoverageTarget   *float64
	DeliveryStrategy string
	TargetPopulation *int64
	Notes            string
	ActorID          string
}

func (e Engine) CreatePlan(ctx context.Context, opts PlanCreateOptions) (domain.InterventionPlan, error) {
	if opts.AdminUnitName == "" {
		return domain.InterventionPlan{}, errors.New("admin_unit_name is required")
	}
	if _, ok := costing.Labels[opts.InterventionCode]; !ok {
		return domain.InterventionPlan{}, fmt.Errorf("unknown intervention code %s", opts.InterventionCode)
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.InterventionPlan{}, err
	}
	if opts.CoverageTarget != nil && (*opts.CoverageTarget < 0 || *opts.CoverageTarget > 100) {
		return domain.InterventionPlan{}, errors.New("coverage_target must be between 0 and 100")
	}
	decisionsJSON, err := marshalJSON(opts.Decisions)
	if err != nil {
		return domain.InterventionPlan{}, err
	}
	p := domain.InterventionPlan{
		ID:               uuid.NewString(),
		ProjectID:        opts.ProjectID,
		AdminUnitName:    opts.AdminUnitName,
		AdminUnitCode:    optionalString(opts.AdminUnitCode),
		InterventionCode: opts.InterventionCode,
		IsEligible:       true,
		DecisionsJSON:    decisionsJSON,
		CoverageTarget:   opts.CoverageTarget,
		DeliveryStrategy: optionalString(opts.DeliveryStrategy),
		TargetPopulation: opts.TargetPopulation,
		Notes:            optionalString(opts.Notes),
		CreatedBy:        opts.ActorID,
		CreatedAt:        e.nowRFC(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertPlanTx(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.Events.Append(ctx, tx, "plan.created", p.ProjectID, "intervention_plan", p.ID, opts.ActorID, events.EventPayload{
		"admin_unit":   p.AdminUnitName,
		"intervention": p.InterventionCode,
	}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

func (e Engine) DeletePlan(ctx context.Context, id, actorID string) error {
	p, err := e.Repo.GetPlan(ctx, id)
	if err != nil {
		return err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeletePlanTx(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, "plan.deleted", p.ProjectID, "intervention_plan", p.ID, actorID, events.EventPayload{
		"admin_unit":   p.AdminUnitName,
		"intervention": p.InterventionCode,
	}); err != nil {
		return err
	}
	return tx.Commit()
}

// Recommend tailors an intervention's decision tree to a unit's risk level
// and context.
func (e Engine) Recommend(code, riskLevel string, context map[string]any) (tailoring.Recommendation, error) {
	return tailoring.Recommend(code, riskLevel, context)
}
