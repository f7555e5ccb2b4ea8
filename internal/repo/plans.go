package repo

import (
	"context"
	"database/sql"

	"sntplan/internal/domain"
)

const planCols = `id,project_id,admin_unit_name,admin_unit_code,intervention_code,is_eligible,tailoring_decisions_json,coverage_target,delivery_strategy,target_population,notes,created_by,created_at`

func scanPlan(scan func(dest ...any) error) (domain.InterventionPlan, error) {
	var p domain.InterventionPlan
	var code, decisions, strategy, notes sql.NullString
	var coverage sql.NullFloat64
	var target sql.NullInt64
	err := scan(&p.ID, &p.ProjectID, &p.AdminUnitName, &code, &p.InterventionCode, &p.IsEligible,
		&decisions, &coverage, &strategy, &target, &notes, &p.CreatedBy, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	p.AdminUnitCode = nullStringPtr(code)
	p.DecisionsJSON = nullStringPtr(decisions)
	p.CoverageTarget = nullFloatPtr(coverage)
	p.DeliveryStrategy = nullStringPtr(strategy)
	p.TargetPopulation = nullInt64Ptr(target)
	p.Notes = nullStringPtr(notes)
	return p, nil
}

func (r Repo) InsertPlanTx(ctx context.Context, tx *sql.Tx, p domain.InterventionPlan) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO intervention_plans(`+planCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.ProjectID, p.AdminUnitName, nullableStringPtr(p.AdminUnitCode), p.InterventionCode, p.IsEligible,
		nullableStringPtr(p.DecisionsJSON), nullableFloatPtr(p.CoverageTarget), nullableStringPtr(p.DeliveryStrategy),
		nullableInt64Ptr(p.TargetPopulation), nullableStringPtr(p.Notes), p.CreatedBy, p.CreatedAt)
	return err
}

func (r Repo) GetPlan(ctx context.Context, id string) (domain.InterventionPlan, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+planCols+` FROM intervention_plans WHERE id=?`, id)
	return scanPlan(row.Scan)
}

func (r Repo) ListPlans(ctx context.Context, projectID string) ([]domain.InterventionPlan, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+planCols+` FROM intervention_plans WHERE project_id=? ORDER BY admin_unit_name ASC, intervention_code ASC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.InterventionPlan
	for rows.Next() {
		p, err := scanPlan(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) DeletePlanTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM intervention_plans WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const reportCols = `id,project_id,title,report_type,format,file_path,file_size_bytes,parameters_json,generated_by,created_at`

func scanReport(scan func(dest ...any) error) (domain.Report, error) {
	var rp domain.Report
	var path, parameters sql.NullString
	var size sql.NullInt64
	err := scan(&rp.ID, &rp.ProjectID, &rp.Title, &rp.ReportType, &rp.Format, &path, &size, &parameters, &rp.GeneratedBy, &rp.CreatedAt)
	if err == sql.ErrNoRows {
		return rp, ErrNotFound
	}
	if err != nil {
		return rp, err
	}
	rp.FilePath = nullStringPtr(path)
	rp.FileSizeBytes = nullInt64Ptr(size)
	rp.ParametersJSON = nullStringPtr(parameters)
	return rp, nil
}

func (r Repo) InsertReportTx(ctx context.Context, tx *sql.Tx, rp domain.Report) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO report_records(`+reportCols+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		rp.ID, rp.ProjectID, rp.Title, rp.ReportType, rp.Format, nullableStringPtr(rp.FilePath),
		nullableInt64Ptr(rp.FileSizeBytes), nullableStringPtr(rp.ParametersJSON), rp.GeneratedBy, rp.CreatedAt)
	return err
}

func (r Repo) GetReport(ctx context.Context, id string) (domain.Report, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+reportCols+` FROM report_records WHERE id=?`, id)
	return scanReport(row.Scan)
}

func (r Repo) ListReports(ctx context.Context, projectID string) ([]domain.Report, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+reportCols+` FROM report_records WHERE project_id=? ORDER BY created_at DESC, id DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Report
	for rows.Next() {
		rp, err := scanReport(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, rp)
	}
	return res, rows.Err()
}
