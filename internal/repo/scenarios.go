package repo

import (
	"context"
	"database/sql"

	"sntplan/internal/domain"
)

const scenarioCols = `id,project_id,name,description,scenario_type,is_selected,interventions_json,total_cost,population_covered,estimated_cases_averted,estimated_deaths_averted,created_by,created_at,updated_at`

func scanScenario(scan func(dest ...any) error) (domain.Scenario, error) {
	var s domain.Scenario
	var desc sql.NullString
	var totalCost sql.NullFloat64
	var popCovered, casesAverted, deathsAverted sql.NullInt64
	err := scan(&s.ID, &s.ProjectID, &s.Name, &desc, &s.ScenarioType, &s.IsSelected, &s.InterventionsJSON,
		&totalCost, &popCovered, &casesAverted, &deathsAverted, &s.CreatedBy, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	if err != nil {
		return s, err
	}
	s.Description = nullStringPtr(desc)
	s.TotalCost = nullFloatPtr(totalCost)
	s.PopulationCovered = nullInt64Ptr(popCovered)
	s.EstCasesAverted = nullInt64Ptr(casesAverted)
	s.EstDeathsAverted = nullInt64Ptr(deathsAverted)
	return s, nil
}

func (r Repo) InsertScenarioTx(ctx context.Context, tx *sql.Tx, s domain.Scenario) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO intervention_scenarios(`+scenarioCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		s.ID, s.ProjectID, s.Name, nullableStringPtr(s.Description), s.ScenarioType, s.IsSelected, s.InterventionsJSON,
		nullableFloatPtr(s.TotalCost), nullableInt64Ptr(s.PopulationCovered), nullableInt64Ptr(s.EstCasesAverted),
		nullableInt64Ptr(s.EstDeathsAverted), s.CreatedBy, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) UpdateScenarioTx(ctx context.Context, tx *sql.Tx, s domain.Scenario) error {
	res, err := tx.ExecContext(ctx, `UPDATE intervention_scenarios SET name=?, description=?, is_selected=?, interventions_json=?, total_cost=?, population_covered=?, estimated_cases_averted=?, estimated_deaths_averted=?, updated_at=? WHERE id=?`,
		s.Name, nullableStringPtr(s.Description), s.IsSelected, s.InterventionsJSON, nullableFloatPtr(s.TotalCost),
		nullableInt64Ptr(s.PopulationCovered), nullableInt64Ptr(s.EstCasesAverted), nullableInt64Ptr(s.EstDeathsAverted),
		s.UpdatedAt, s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetScenario(ctx context.Context, id string) (domain.Scenario, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+scenarioCols+` FROM intervention_scenarios WHERE id=?`, id)
	return scanScenario(row.Scan)
}

func (r Repo) GetScenarioTx(ctx context.Context, tx *sql.Tx, id string) (domain.Scenario, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+scenarioCols+` FROM intervention_scenarios WHERE id=?`, id)
	return scanScenario(row.Scan)
}

func (r Repo) ListScenarios(ctx context.Context, projectID string) ([]domain.Scenario, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+scenarioCols+` FROM intervention_scenarios WHERE project_id=? ORDER BY created_at DESC, id DESC`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Scenario
	for rows.Next() {
		s, err := scanScenario(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

func (r Repo) DeleteScenarioTx(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM intervention_scenarios WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

const costItemCols = `id,scenario_id,admin_unit_name,admin_unit_code,intervention_code,total_cost,years,cost_details_json,created_at`

func (r Repo) InsertCostItemTx(ctx context.Context, tx *sql.Tx, ci domain.CostItem) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO scenario_cost_items(`+costItemCols+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		ci.ID, ci.ScenarioID, ci.AdminUnitName, nullableStringPtr(ci.AdminUnitCode), ci.InterventionCode,
		ci.TotalCost, ci.Years, nullableStringPtr(ci.DetailsJSON), ci.CreatedAt)
	return err
}

func (r Repo) DeleteCostItemsTx(ctx context.Context, tx *sql.Tx, scenarioID string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM scenario_cost_items WHERE scenario_id=?`, scenarioID)
	return err
}

func (r Repo) ListCostItems(ctx context.Context, scenarioID string) ([]domain.CostItem, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+costItemCols+` FROM scenario_cost_items WHERE scenario_id=? ORDER BY admin_unit_name ASC, intervention_code ASC`, scenarioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CostItem
	for rows.Next() {
		var ci domain.CostItem
		var code, details sql.NullString
		if err := rows.Scan(&ci.ID, &ci.ScenarioID, &ci.AdminUnitName, &code, &ci.InterventionCode, &ci.TotalCost, &ci.Years, &details, &ci.CreatedAt); err != nil {
			return nil, err
		}
		ci.AdminUnitCode = nullStringPtr(code)
		ci.DetailsJSON = nullStringPtr(details)
		res = append(res, ci)
	}
	return res, rows.Err()
}

const forecastCols = `id,scenario_id,status,model_type,projected_cases_json,projected_deaths_json,projected_prevalence_json,cases_averted,deaths_averted,dalys_averted,cost_per_case_averted,cost_per_death_averted,cost_per_daly_averted,uncertainty_bounds_json,parameters_json,created_at`

func scanForecast(scan func(dest ...any) error) (domain.Forecast, error) {
	var f domain.Forecast
	var cases, deaths, prevalence, uncertainty, parameters sql.NullString
	var casesAverted, deathsAverted sql.NullInt64
	var dalys, perCase, perDeath, perDALY sql.NullFloat64
	err := scan(&f.ID, &f.ScenarioID, &f.Status, &f.ModelType, &cases, &deaths, &prevalence,
		&casesAverted, &deathsAverted, &dalys, &perCase, &perDeath, &perDALY, &uncertainty, &parameters, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	if err != nil {
		return f, err
	}
	f.ProjCasesJSON = nullStringPtr(cases)
	f.ProjDeathsJSON = nullStringPtr(deaths)
	f.ProjPrevalenceJSON = nullStringPtr(prevalence)
	f.CasesAverted = nullInt64Ptr(casesAverted)
	f.DeathsAverted = nullInt64Ptr(deathsAverted)
	f.DALYsAverted = nullFloatPtr(dalys)
	f.CostPerCaseAverted = nullFloatPtr(perCase)
	f.CostPerDeathAverted = nullFloatPtr(perDeath)
	f.CostPerDALYAverted = nullFloatPtr(perDALY)
	f.UncertaintyJSON = nullStringPtr(uncertainty)
	f.ParametersJSON = nullStringPtr(parameters)
	return f, nil
}

func (r Repo) InsertForecastTx(ctx context.Context, tx *sql.Tx, f domain.Forecast) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO forecast_results(`+forecastCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		f.ID, f.ScenarioID, f.Status, f.ModelType, nullableStringPtr(f.ProjCasesJSON), nullableStringPtr(f.ProjDeathsJSON),
		nullableStringPtr(f.ProjPrevalenceJSON), nullableInt64Ptr(f.CasesAverted), nullableInt64Ptr(f.DeathsAverted),
		nullableFloatPtr(f.DALYsAverted), nullableFloatPtr(f.CostPerCaseAverted), nullableFloatPtr(f.CostPerDeathAverted),
		nullableFloatPtr(f.CostPerDALYAverted), nullableStringPtr(f.UncertaintyJSON), nullableStringPtr(f.ParametersJSON), f.CreatedAt)
	return err
}

func (r Repo) GetForecast(ctx context.Context, id string) (domain.Forecast, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+forecastCols+` FROM forecast_results WHERE id=?`, id)
	return scanForecast(row.Scan)
}

func (r Repo) ListForecasts(ctx context.Context, scenarioID string) ([]domain.Forecast, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+forecastCols+` FROM forecast_results WHERE scenario_id=? ORDER BY created_at DESC, id DESC`, scenarioID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Forecast
	for rows.Next() {
		f, err := scanForecast(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}

// LatestCompletedForecast returns the newest completed forecast for a
// scenario, or ErrNotFound.
func (r Repo) LatestCompletedForecast(ctx context.Context, scenarioID string) (domain.Forecast, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+forecastCols+` FROM forecast_results WHERE scenario_id=? AND status='completed' ORDER BY created_at DESC, id DESC LIMIT 1`, scenarioID)
	return scanForecast(row.Scan)
}
