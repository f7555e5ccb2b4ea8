package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sntplan/internal/config"
	"sntplan/internal/domain"
	"sntplan/internal/events"
	"sntplan/internal/repo"
	"sntplan/internal/workflow"
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	// Workspace is where generated report files land.
	Workspace string
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC() string {
	return e.now().UTC().Format(time.RFC3339)
}

// ProjectCreateOptions are parameters for creating a project.
type ProjectCreateOptions struct {
	ID          string
	Name        string
	Description string
	Country     string
	AdminLevel  int
	Year        int
	ActorID     string
}

// CreateProject inserts the project, seeds its config, the full workflow
// ladder, and registers the creating actor as owner, all in one transaction.
func (e Engine) CreateProject(ctx context.Context, opts ProjectCreateOptions) (domain.Project, error) {
	if opts.Name == "" {
		return domain.Project{}, errors.New("name is required")
	}
	if opts.Country == "" {
		return domain.Project{}, errors.New("country is required")
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	if opts.AdminLevel == 0 {
		opts.AdminLevel = 1
	}
	if opts.Year == 0 {
		opts.Year = e.now().UTC().Year()
	}
	if opts.ActorID == "" {
		opts.ActorID = "local-user"
	}
	now := e.nowRFC()
	p := domain.Project{
		ID:          id,
		Name:        opts.Name,
		Description: optionalString(opts.Description),
		Country:     opts.Country,
		AdminLevel:  opts.AdminLevel,
		Year:        opts.Year,
		Status:      "active",
		CreatedBy:   opts.ActorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProjectTx(ctx, tx, p); err != nil {
		return domain.Project{}, fmt.Errorf("insert project: %w", err)
	}
	seedCfg := config.Default(p.ID)
	seedCfg.Project.Name = p.Name
	seedCfg.Project.Country = p.Country
	seedCfg.Project.AdminLevel = p.AdminLevel
	seedCfg.Project.Year = p.Year
	if err := e.Repo.UpsertProjectConfigTx(ctx, tx, p.ID, seedCfg); err != nil {
		return domain.Project{}, fmt.Errorf("insert project config: %w", err)
	}
	for _, step := range workflow.Steps {
		s := domain.WorkflowState{
			ID:        uuid.NewString(),
			ProjectID: p.ID,
			Step:      string(step),
			Status:    workflow.StatusNotStarted,
			UpdatedAt: now,
		}
		if err := e.Repo.InsertWorkflowStateTx(ctx, tx, s); err != nil {
			return domain.Project{}, fmt.Errorf("insert workflow state %s: %w", step, err)
		}
	}
	m := domain.Member{
		ID:        uuid.NewString(),
		ProjectID: p.ID,
		ActorID:   opts.ActorID,
		Role:      domain.RoleOwner,
		CreatedAt: now,
	}
	if err := e.Repo.InsertMemberTx(ctx, tx, m); err != nil {
		return domain.Project{}, fmt.Errorf("insert owner member: %w", err)
	}
	if err := e.Events.Append(ctx, tx, "project.created", p.ID, "project", p.ID, opts.ActorID, events.EventPayload{
		"name":    p.Name,
		"country": p.Country,
		"year":    p.Year,
	}); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ProjectUpdateOptions encapsulates allowed project updates.
type ProjectUpdateOptions struct {
	ID          string
	Name        *string
	Description *string
	Status      *string
	ActorID     string
}

func (e Engine) UpdateProject(ctx context.Context, opts ProjectUpdateOptions) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, opts.ID)
	if err != nil {
		return p, err
	}
	if opts.Name != nil {
		if *opts.Name == "" {
			return p, errors.New("name cannot be empty")
		}
		p.Name = *opts.Name
	}
	if opts.Description != nil {
		p.Description = optionalString(*opts.Description)
	}
	if opts.Status != nil {
		if *opts.Status != "active" && *opts.Status != "completed" {
			return p, fmt.Errorf("invalid project status %s", *opts.Status)
		}
		p.Status = *opts.Status
	}
	p.UpdatedAt = e.nowRFC()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateProjectTx(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.Events.Append(ctx, tx, "project.updated", p.ID, "project", p.ID, opts.ActorID, events.EventPayload{"status": p.Status}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

// ArchiveProject soft-deletes a project; data stays queryable for members.
func (e Engine) ArchiveProject(ctx context.Context, projectID, actorID string) (domain.Project, error) {
	return e.setArchived(ctx, projectID, actorID, true, "project.archived")
}

// RestoreProject reverses an archive.
func (e Engine) RestoreProject(ctx context.Context, projectID, actorID string) (domain.Project, error) {
	return e.setArchived(ctx, projectID, actorID, false, "project.restored")
}

func (e Engine) setArchived(ctx context.Context, projectID, actorID string, archived bool, evtType string) (domain.Project, error) {
	p, err := e.Repo.GetProject(ctx, projectID)
	if err != nil {
		return p, err
	}
	if p.IsArchived == archived {
		return p, nil
	}
	p.IsArchived = archived
	p.UpdatedAt = e.nowRFC()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateProjectTx(ctx, tx, p); err != nil {
		return p, err
	}
	if err := e.Events.Append(ctx, tx, evtType, p.ID, "project", p.ID, actorID, events.EventPayload{}); err != nil {
		return p, err
	}
	if err := tx.Commit(); err != nil {
		return p, err
	}
	return p, nil
}

// AddMember grants an actor a role on a project.
func (e Engine) AddMember(ctx context.Context, projectID, actorID, role, grantedBy string) (domain.Member, error) {
	switch role {
	case domain.RoleOwner, domain.RoleManager, domain.RoleAnalyst, domain.RoleViewer:
	default:
		return domain.Member{}, fmt.Errorf("invalid role %s", role)
	}
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return domain.Member{}, err
	}
	m := domain.Member{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		ActorID:   actorID,
		Role:      role,
		CreatedAt: e.nowRFC(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return m, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertMemberTx(ctx, tx, m); err != nil {
		return m, err
	}
	if err := e.Events.Append(ctx, tx, "member.added", projectID, "member", m.ID, grantedBy, events.EventPayload{
		"actor_id": actorID,
		"role":     role,
	}); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

// --- helpers ---

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func marshalJSON(v any) (*string, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func unmarshalInto(in string, v any) error {
	return json.Unmarshal([]byte(in), v)
}
