package repo

import (
	"context"
	"database/sql"

	"sntplan/internal/domain"
)

const stratConfigCols = `id,project_id,name,metric,is_active,thresholds_json,created_by,created_at,updated_at`

func scanStratConfig(scan func(dest ...any) error) (domain.StratificationConfig, error) {
	var c domain.StratificationConfig
	err := scan(&c.ID, &c.ProjectID, &c.Name, &c.Metric, &c.IsActive, &c.ThresholdsJSON, &c.CreatedBy, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	return c, err
}

func (r Repo) InsertStratConfigTx(ctx context.Context, tx *sql.Tx, c domain.StratificationConfig) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO stratification_configs(`+stratConfigCols+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ProjectID, c.Name, c.Metric, c.IsActive, c.ThresholdsJSON, c.CreatedBy, c.CreatedAt, c.UpdatedAt)
	return err
}

func (r Repo) UpdateStratConfigTx(ctx context.Context, tx *sql.Tx, c domain.StratificationConfig) error {
	res, err := tx.ExecContext(ctx, `UPDATE stratification_configs SET name=?, is_active=?, thresholds_json=?, updated_at=? WHERE id=?`,
		c.Name, c.IsActive, c.ThresholdsJSON, c.UpdatedAt, c.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetStratConfig(ctx context.Context, id string) (domain.StratificationConfig, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+stratConfigCols+` FROM stratification_configs WHERE id=?`, id)
	return scanStratConfig(row.Scan)
}

func (r Repo) GetStratConfigTx(ctx context.Context, tx *sql.Tx, id string) (domain.StratificationConfig, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+stratConfigCols+` FROM stratification_configs WHERE id=?`, id)
	return scanStratConfig(row.Scan)
}

func (r Repo) ListStratConfigs(ctx context.Context, projectID string) ([]domain.StratificationConfig, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+stratConfigCols+` FROM stratification_configs WHERE project_id=? ORDER BY created_at DESC, id DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StratificationConfig
	for rows.Next() {
		c, err := scanStratConfig(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

// ActiveStratConfig returns the most recently created active configuration
// for a project.
func (r Repo) ActiveStratConfig(ctx context.Context, projectID string) (domain.StratificationConfig, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+stratConfigCols+` FROM stratification_configs WHERE project_id=? AND is_active=1 ORDER BY created_at DESC, id DESC LIMIT 1`, projectID)
	return scanStratConfig(row.Scan)
}

const stratResultCols = `id,config_id,admin_unit_name,admin_unit_code,metric_value,risk_level,eligible_interventions_json,population,cases_annual,deaths_annual,geometry_json,created_at`

func scanStratResult(scan func(dest ...any) error) (domain.StratificationResult, error) {
	var sr domain.StratificationResult
	var code, interventions, geometry sql.NullString
	var population, cases, deaths sql.NullInt64
	err := scan(&sr.ID, &sr.ConfigID, &sr.AdminUnitName, &code, &sr.MetricValue, &sr.RiskLevel, &interventions, &population, &cases, &deaths, &geometry, &sr.CreatedAt)
	if err == sql.ErrNoRows {
		return sr, ErrNotFound
	}
	if err != nil {
		return sr, err
	}
	sr.AdminUnitCode = nullStringPtr(code)
	sr.InterventionsJSON = nullStringPtr(interventions)
	sr.Population = nullInt64Ptr(population)
	sr.CasesAnnual = nullInt64Ptr(cases)
	sr.DeathsAnnual = nullInt64Ptr(deaths)
	sr.GeometryJSON = nullStringPtr(geometry)
	return sr, nil
}

func (r Repo) InsertStratResultTx(ctx context.Context, tx *sql.Tx, sr domain.StratificationResult) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO stratification_results(`+stratResultCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		sr.ID, sr.ConfigID, sr.AdminUnitName, nullableStringPtr(sr.AdminUnitCode), sr.MetricValue, sr.RiskLevel,
		nullableStringPtr(sr.InterventionsJSON), nullableInt64Ptr(sr.Population), nullableInt64Ptr(sr.CasesAnnual),
		nullableInt64Ptr(sr.DeathsAnnual), nullableStringPtr(sr.GeometryJSON), sr.CreatedAt)
	return err
}

func (r Repo) DeleteStratResultsTx(ctx context.Context, tx *sql.Tx, configID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM stratification_results WHERE config_id=?`, configID)
	return err
}

func (r Repo) ListStratResults(ctx context.Context, configID string) ([]domain.StratificationResult, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+stratResultCols+` FROM stratification_results WHERE config_id=? ORDER BY admin_unit_name ASC, id ASC`, configID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.StratificationResult
	for rows.Next() {
		sr, err := scanStratResult(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, sr)
	}
	return res, rows.Err()
}

func (r Repo) CountStratResults(ctx context.Context, configID string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM stratification_results WHERE config_id=?`, configID).Scan(&n)
	return n, err
}
