package engine

import (
	"context"
	"errors"
	"sort"

	"github.com/google/uuid"

	"sntplan/internal/domain"
	"sntplan/internal/events"
	"sntplan/internal/forecast"
	"sntplan/internal/repo"
)

// ForecastRunOptions are parameters for running an impact forecast.
// A nil Baseline uses the built-in placeholder burden; zero Years falls
// back to the configured projection horizon.
type ForecastRunOptions struct {
	ScenarioID string
	ModelType  string
	Years      int
	Baseline   *forecast.Baseline
	ActorID    string
}

// RunForecast projects the scenario's impact, stores the forecast record
// and stamps the averted totals back onto the scenario. Model types other
// than simple produce a pending record for offline runs.
func (e Engine) RunForecast(ctx context.Context, opts ForecastRunOptions) (domain.Forecast, error) {
	s, err := e.Repo.GetScenario(ctx, opts.ScenarioID)
	if err != nil {
		return domain.Forecast{}, err
	}
	if opts.ModelType == "" {
		opts.ModelType = forecast.ModelSimple
	}
	if opts.Years <= 0 {
		opts.Years = e.Config.ForecastYears()
	}
	baseline := forecast.DefaultBaseline()
	if opts.Baseline != nil {
		baseline = *opts.Baseline
	}

	var result forecast.Result
	if opts.ModelType == forecast.ModelSimple {
		assignment, err := scenarioAssignment(s)
		if err != nil {
			return domain.Forecast{}, err
		}
		result = forecast.Simple(assignment, baseline, opts.Years)
	} else {
		result = forecast.Pending()
	}

	f := domain.Forecast{
		ID:         uuid.NewString(),
		ScenarioID: s.ID,
		Status:     result.Status,
		ModelType:  opts.ModelType,
		CreatedAt:  e.nowRFC(),
	}
	paramsJSON, err := marshalJSON(map[string]any{
		"baseline":         baseline,
		"model_type":       opts.ModelType,
		"projection_years": opts.Years,
	})
	if err != nil {
		return f, err
	}
	f.ParametersJSON = paramsJSON

	if result.Status == forecast.StatusCompleted {
		if f.ProjCasesJSON, err = marshalJSON(result.ProjectedCases); err != nil {
			return f, err
		}
		if f.ProjDeathsJSON, err = marshalJSON(result.ProjectedDeaths); err != nil {
			return f, err
		}
		if f.ProjPrevalenceJSON, err = marshalJSON(result.ProjectedPrevalence); err != nil {
			return f, err
		}
		if f.UncertaintyJSON, err = marshalJSON(result.Uncertainty); err != nil {
			return f, err
		}
		cases, deaths, dalys := result.CasesAverted, result.DeathsAverted, result.DALYsAverted
		f.CasesAverted = &cases
		f.DeathsAverted = &deaths
		f.DALYsAverted = &dalys

		if s.TotalCost != nil && *s.TotalCost != 0 && cases != 0 {
			if cases > 0 {
				v := *s.TotalCost / float64(cases)
				f.CostPerCaseAverted = &v
			}
			if deaths > 0 {
				v := *s.TotalCost / float64(deaths)
				f.CostPerDeathAverted = &v
			}
			if dalys > 0 {
				v := *s.TotalCost / dalys
				f.CostPerDALYAverted = &v
			}
		}
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return f, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertForecastTx(ctx, tx, f); err != nil {
		return f, err
	}
	s.EstCasesAverted = f.CasesAverted
	s.EstDeathsAverted = f.DeathsAverted
	s.UpdatedAt = e.nowRFC()
	if err := e.Repo.UpdateScenarioTx(ctx, tx, s); err != nil {
		return f, err
	}
	if err := e.Events.Append(ctx, tx, "forecast.run", s.ProjectID, "forecast", f.ID, opts.ActorID, events.EventPayload{
		"scenario_id": s.ID,
		"model_type":  f.ModelType,
		"status":      f.Status,
	}); err != nil {
		return f, err
	}
	if err := tx.Commit(); err != nil {
		return f, err
	}
	return f, nil
}

// ForecastSummary condenses one scenario's latest completed forecast.
type ForecastSummary struct {
	ScenarioID              string              `json:"scenario_id"`
	ScenarioName            string              `json:"scenario_name"`
	BaselineCases           int64               `json:"baseline_cases"`
	BaselineDeaths          int64               `json:"baseline_deaths"`
	ProjectedCasesFinalYear *int64              `json:"projected_cases_final_year,omitempty"`
	ProjectedDeathsFinal    *int64              `json:"projected_deaths_final_year,omitempty"`
	TotalCasesAverted       *int64              `json:"total_cases_averted,omitempty"`
	TotalDeathsAverted      *int64              `json:"total_deaths_averted,omitempty"`
	CostEffectiveness       map[string]*float64 `json:"cost_effectiveness"`
}

// ForecastComparison lines up the latest completed forecast of every
// scenario in a project.
type ForecastComparison struct {
	Scenarios               []ForecastSummary `json:"scenarios"`
	BestByCasesAverted      *string           `json:"best_by_cases_averted,omitempty"`
	BestByCostEffectiveness *string           `json:"best_by_cost_effectiveness,omitempty"`
}

func (e Engine) CompareForecasts(ctx context.Context, projectID string) (ForecastComparison, error) {
	if _, err := e.Repo.GetProject(ctx, projectID); err != nil {
		return ForecastComparison{}, err
	}
	scenarios, err := e.Repo.ListScenarios(ctx, projectID)
	if err != nil {
		return ForecastComparison{}, err
	}
	cmp := ForecastComparison{Scenarios: []ForecastSummary{}}
	var bestCases int64
	bestCE := 0.0
	for _, s := range scenarios {
		var f *domain.Forecast
		if latest, err := e.Repo.LatestCompletedForecast(ctx, s.ID); err == nil {
			f = &latest
		} else if !errors.Is(err, repo.ErrNotFound) {
			return cmp, err
		}

		summary := ForecastSummary{
			ScenarioID:        s.ID,
			ScenarioName:      s.Name,
			CostEffectiveness: map[string]*float64{"cost_per_case_averted": nil, "cost_per_death_averted": nil},
		}
		if f != nil {
			summary.TotalCasesAverted = f.CasesAverted
			summary.TotalDeathsAverted = f.DeathsAverted
			summary.CostEffectiveness["cost_per_case_averted"] = f.CostPerCaseAverted
			summary.CostEffectiveness["cost_per_death_averted"] = f.CostPerDeathAverted
			if f.ParametersJSON != nil {
				var params struct {
					Baseline forecast.Baseline `json:"baseline"`
				}
				if err := unmarshalInto(*f.ParametersJSON, &params); err == nil {
					summary.BaselineCases = params.Baseline.Cases
					summary.BaselineDeaths = params.Baseline.Deaths
				}
			}
			summary.ProjectedCasesFinalYear = finalYearValue(f.ProjCasesJSON)
			summary.ProjectedDeathsFinal = finalYearValue(f.ProjDeathsJSON)

			if f.CasesAverted != nil && *f.CasesAverted > bestCases {
				bestCases = *f.CasesAverted
				id := s.ID
				cmp.BestByCasesAverted = &id
			}
			if f.CostPerCaseAverted != nil && *f.CostPerCaseAverted != 0 {
				if cmp.BestByCostEffectiveness == nil || *f.CostPerCaseAverted < bestCE {
					bestCE = *f.CostPerCaseAverted
					id := s.ID
					cmp.BestByCostEffectiveness = &id
				}
			}
		}
		cmp.Scenarios = append(cmp.Scenarios, summary)
	}
	return cmp, nil
}

// finalYearValue picks the value for the lexically last year of a
// projected {"year": value} series.
func finalYearValue(seriesJSON *string) *int64 {
	if seriesJSON == nil {
		return nil
	}
	series := map[string]int64{}
	if err := unmarshalInto(*seriesJSON, &series); err != nil || len(series) == 0 {
		return nil
	}
	years := make([]string, 0, len(series))
	for y := range series {
		years = append(years, y)
	}
	sort.Strings(years)
	v := series[years[len(years)-1]]
	return &v
}
