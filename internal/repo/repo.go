package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sntplan/internal/config"
	"sntplan/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const projectCols = `id,name,description,country,admin_level,year,status,is_archived,created_by,created_at,updated_at`

func scanProject(scan func(dest ...any) error) (domain.Project, error) {
	var p domain.Project
	var desc sql.NullString
	err := scan(&p.ID, &p.Name, &desc, &p.Country, &p.AdminLevel, &p.Year, &p.Status, &p.IsArchived, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.Description = nullStringPtr(desc)
	return p, nil
}

func (r Repo) InsertProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(`+projectCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Name, nullableStringPtr(p.Description), p.Country, p.AdminLevel, p.Year, p.Status, p.IsArchived, p.CreatedBy, p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+projectCols+` FROM projects WHERE id=?`, id)
	return scanProject(row.Scan)
}

// SingleProject resolves the project when exactly one non-archived project
// exists in the workspace.
func (r Repo) SingleProject(ctx context.Context) (domain.Project, error) {
	projects, err := r.ListProjects(ctx, false)
	if err != nil {
		return domain.Project{}, err
	}
	if len(projects) == 0 {
		return domain.Project{}, ErrNotFound
	}
	if len(projects) > 1 {
		return domain.Project{}, fmt.Errorf("multiple projects exist; specify --project")
	}
	return projects[0], nil
}

func (r Repo) ListProjects(ctx context.Context, includeArchived bool) ([]domain.Project, error) {
	query := `SELECT ` + projectCols + ` FROM projects`
	if !includeArchived {
		query += ` WHERE is_archived=0`
	}
	query += ` ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		p, err := scanProject(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) UpdateProjectTx(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET name=?, description=?, status=?, is_archived=?, updated_at=? WHERE id=?`,
		p.Name, nullableStringPtr(p.Description), p.Status, p.IsArchived, p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertMemberTx(ctx context.Context, tx *sql.Tx, m domain.Member) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO project_members(id,project_id,actor_id,role,created_at) VALUES (?,?,?,?,?)`,
		m.ID, m.ProjectID, m.ActorID, m.Role, m.CreatedAt)
	return err
}

func (r Repo) ListMembers(ctx context.Context, projectID string) ([]domain.Member, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,project_id,actor_id,role,created_at FROM project_members WHERE project_id=? ORDER BY created_at ASC, id ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Member
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.ActorID, &m.Role, &m.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) MemberRole(ctx context.Context, projectID, actorID string) (string, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT role FROM project_members WHERE project_id=? AND actor_id=?`, projectID, actorID)
	var role string
	err := row.Scan(&role)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return role, err
}

func (r Repo) UpsertProjectConfig(ctx context.Context, projectID string, cfg *config.Config) error {
	return upsertProjectConfig(ctx, r.DB, nil, projectID, cfg)
}

func (r Repo) UpsertProjectConfigTx(ctx context.Context, tx *sql.Tx, projectID string, cfg *config.Config) error {
	return upsertProjectConfig(ctx, nil, tx, projectID, cfg)
}

func upsertProjectConfig(ctx context.Context, db *sql.DB, tx *sql.Tx, projectID string, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	cfg.Project.ID = projectID
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	exec := func(query string, args ...any) (sql.Result, error) {
		if tx != nil {
			return tx.ExecContext(ctx, query, args...)
		}
		return db.ExecContext(ctx, query, args...)
	}
	_, err = exec(`INSERT INTO project_configs(project_id,config_json,created_at,updated_at) VALUES (?,?,?,?)
ON CONFLICT(project_id) DO UPDATE SET config_json=excluded.config_json, updated_at=excluded.updated_at`, projectID, string(payload), now, now)
	return err
}

func (r Repo) GetProjectConfig(ctx context.Context, projectID string) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT config_json FROM project_configs WHERE project_id=?`, projectID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	if cfg.Project.ID == "" {
		cfg.Project.ID = projectID
	}
	return &cfg, cfg.Validate()
}

const workflowCols = `id,project_id,step,status,completion_percentage,notes,data_json,validation_errors_json,completed_at,completed_by,updated_at`

func scanWorkflowState(scan func(dest ...any) error) (domain.WorkflowState, error) {
	var s domain.WorkflowState
	var notes, dataJSON, errorsJSON, completedAt, completedBy sql.NullString
	err := scan(&s.ID, &s.ProjectID, &s.Step, &s.Status, &s.Completion, &notes, &dataJSON, &errorsJSON, &completedAt, &completedBy, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.Notes = nullStringPtr(notes)
	s.DataJSON = nullStringPtr(dataJSON)
	s.ErrorsJSON = nullStringPtr(errorsJSON)
	s.CompletedAt = nullStringPtr(completedAt)
	s.CompletedBy = nullStringPtr(completedBy)
	return s, nil
}

func (r Repo) InsertWorkflowStateTx(ctx context.Context, tx *sql.Tx, s domain.WorkflowState) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO workflow_states(`+workflowCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.ProjectID, s.Step, s.Status, s.Completion, nullableStringPtr(s.Notes), nullableStringPtr(s.DataJSON),
		nullableStringPtr(s.ErrorsJSON), nullableStringPtr(s.CompletedAt), nullableStringPtr(s.CompletedBy), s.UpdatedAt)
	return err
}

func (r Repo) UpdateWorkflowStateTx(ctx context.Context, tx *sql.Tx, s domain.WorkflowState) error {
	res, err := tx.ExecContext(ctx, `UPDATE workflow_states SET status=?, completion_percentage=?, notes=?, data_json=?, validation_errors_json=?, completed_at=?, completed_by=?, updated_at=? WHERE id=?`,
		s.Status, s.Completion, nullableStringPtr(s.Notes), nullableStringPtr(s.DataJSON), nullableStringPtr(s.ErrorsJSON),
		nullableStringPtr(s.CompletedAt), nullableStringPtr(s.CompletedBy), s.UpdatedAt, s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetWorkflowState(ctx context.Context, projectID, step string) (domain.WorkflowState, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+workflowCols+` FROM workflow_states WHERE project_id=? AND step=?`, projectID, step)
	return scanWorkflowState(row.Scan)
}

func (r Repo) GetWorkflowStateTx(ctx context.Context, tx *sql.Tx, projectID, step string) (domain.WorkflowState, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+workflowCols+` FROM workflow_states WHERE project_id=? AND step=?`, projectID, step)
	return scanWorkflowState(row.Scan)
}

func (r Repo) ListWorkflowStates(ctx context.Context, projectID string) ([]domain.WorkflowState, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+workflowCols+` FROM workflow_states WHERE project_id=?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWorkflowStates(rows)
}

func (r Repo) ListWorkflowStatesTx(ctx context.Context, tx *sql.Tx, projectID string) ([]domain.WorkflowState, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+workflowCols+` FROM workflow_states WHERE project_id=?`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectWorkflowStates(rows)
}

func collectWorkflowStates(rows *sql.Rows) ([]domain.WorkflowState, error) {
	var res []domain.WorkflowState
	for rows.Next() {
		s, err := scanWorkflowState(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

const eventCols = `id,ts,type,COALESCE(project_id,''),entity_kind,COALESCE(entity_id,''),actor_id,payload_json`

func (r Repo) LatestEvents(ctx context.Context, limit int, projectID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	return r.LatestEventsFrom(ctx, limit, 0, projectID, evtType, entityKind, entityID)
}

func (r Repo) LatestEventsFrom(ctx context.Context, limit int, cursor int64, projectID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	query := `SELECT ` + eventCols + ` FROM events`
	var conds []string
	var args []any
	if cursor > 0 {
		conds = append(conds, `id < ?`)
		args = append(args, cursor)
	}
	if projectID != "" {
		conds = append(conds, `project_id=?`)
		args = append(args, projectID)
	}
	if evtType != "" {
		conds = append(conds, `type=?`)
		args = append(args, evtType)
	}
	if entityKind != "" {
		conds = append(conds, `entity_kind=?`)
		args = append(args, entityKind)
	}
	if entityID != "" {
		conds = append(conds, `entity_id=?`)
		args = append(args, entityID)
	}
	for i, c := range conds {
		if i == 0 {
			query += ` WHERE ` + c
		} else {
			query += ` AND ` + c
		}
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

// EventsAfter returns events with id greater than cursor in ascending
// order, used by the webhook dispatcher.
func (r Repo) EventsAfter(ctx context.Context, limit int, cursor int64, projectID string) ([]domain.Event, error) {
	query := `SELECT ` + eventCols + ` FROM events WHERE id > ?`
	args := []any{cursor}
	if projectID != "" {
		query += ` AND project_id=?`
		args = append(args, projectID)
	}
	query += ` ORDER BY id ASC LIMIT ?`
	args = append(args, limit)
	return r.queryEvents(ctx, query, args...)
}

func (r Repo) LatestEventID(ctx context.Context, projectID string) (int64, error) {
	query := `SELECT COALESCE(MAX(id),0) FROM events`
	var args []any
	if projectID != "" {
		query += ` WHERE project_id=?`
		args = append(args, projectID)
	}
	var id int64
	err := r.DB.QueryRowContext(ctx, query, args...).Scan(&id)
	return id, err
}

func (r Repo) queryEvents(ctx context.Context, query string, args ...any) ([]domain.Event, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.ProjectID, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func nullableInt64Ptr(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableIntPtr(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableFloatPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullStringPtr(v sql.NullString) *string {
	if !v.Valid || v.String == "" {
		return nil
	}
	s := v.String
	return &s
}

func nullInt64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullIntPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func nullFloatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
