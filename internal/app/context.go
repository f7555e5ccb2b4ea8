package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sntplan/internal/config"
	"sntplan/internal/domain"
	"sntplan/internal/repo"
	"sntplan/internal/workflow"
)

// ResolveProjectAndConfig picks the active project and ensures a project + config exist in DB,
// seeding defaults if missing. It prefers overrides, then single-project DB.
// If the project does not exist, it is created on the fly.
func ResolveProjectAndConfig(ctx context.Context, workspace, projectOverride, actorID string, r repo.Repo) (string, *config.Config, error) {
	projectID := projectOverride
	if projectID == "" {
		if p, err := r.SingleProject(ctx); err == nil {
			projectID = p.ID
		} else {
			return "", nil, fmt.Errorf("project not specified; use --project")
		}
	}
	seedCfg := config.Default(projectID)

	if _, err := r.GetProject(ctx, projectID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		if err := createProject(ctx, r, projectID, seedCfg, actorID); err != nil {
			return "", nil, err
		}
	}
	cfg, err := r.GetProjectConfig(ctx, projectID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			if err := r.UpsertProjectConfig(ctx, projectID, seedCfg); err != nil {
				return "", nil, fmt.Errorf("seed project config: %w", err)
			}
			cfg = seedCfg
		} else {
			return "", nil, err
		}
	}
	cfg.Project.ID = projectID
	return projectID, cfg, nil
}

// createProject inserts a minimal project footprint: the project row, its
// seed config, the full workflow ladder, and the creating actor as owner.
func createProject(ctx context.Context, r repo.Repo, projectID string, seedCfg *config.Config, actorID string) error {
	if seedCfg == nil {
		seedCfg = config.Default(projectID)
	}
	if actorID == "" {
		actorID = "local-user"
	}
	now := time.Now().UTC().Format(time.RFC3339)
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	p := domain.Project{
		ID:         projectID,
		Name:       projectID,
		Country:    seedCfg.Project.Country,
		AdminLevel: seedCfg.Project.AdminLevel,
		Year:       seedCfg.Project.Year,
		Status:     "active",
		CreatedBy:  actorID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if p.AdminLevel == 0 {
		p.AdminLevel = 1
	}
	if err := r.InsertProjectTx(ctx, tx, p); err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	if err := r.UpsertProjectConfigTx(ctx, tx, projectID, seedCfg); err != nil {
		return fmt.Errorf("insert project config: %w", err)
	}
	for _, step := range workflow.Steps {
		s := domain.WorkflowState{
			ID:        uuid.NewString(),
			ProjectID: projectID,
			Step:      string(step),
			Status:    workflow.StatusNotStarted,
			UpdatedAt: now,
		}
		if err := r.InsertWorkflowStateTx(ctx, tx, s); err != nil {
			return fmt.Errorf("insert workflow state %s: %w", step, err)
		}
	}
	m := domain.Member{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		ActorID:   actorID,
		Role:      domain.RoleOwner,
		CreatedAt: now,
	}
	if err := r.InsertMemberTx(ctx, tx, m); err != nil {
		return fmt.Errorf("insert owner member: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	return nil
}
