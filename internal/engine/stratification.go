package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"sntplan/internal/domain"
	"sntplan/internal/events"
	"sntplan/internal/stratify"
)

// StratConfigCreateOptions are parameters for creating a stratification
// configuration. Empty thresholds fall back to the project config, then to
// the built-in defaults for the metric.
type StratConfigCreateOptions struct {
	ProjectID  string
	Name       string
	Metric     string
	Thresholds stratify.Thresholds
	ActorID    string
}

func (e Engine) CreateStratConfig(ctx context.Context, opts StratConfigCreateOptions) (domain.StratificationConfig, error) {
	if opts.Name == "" {
		return domain.StratificationConfig{}, errors.New("name is required")
	}
	if !stratify.ValidMetric(opts.Metric) {
		return domain.StratificationConfig{}, fmt.Errorf("invalid metric %s", opts.Metric)
	}
	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.StratificationConfig{}, err
	}
	thresholds := opts.Thresholds
	if len(thresholds) == 0 {
		thresholds = e.Config.Thresholds(opts.Metric)
	}
	if len(thresholds) == 0 {
		thresholds = stratify.DefaultThresholds(opts.Metric)
	}
	if len(thresholds) == 0 {
		return domain.StratificationConfig{}, fmt.Errorf("no thresholds given and no defaults for metric %s", opts.Metric)
	}
	for level, band := range thresholds {
		if !stratify.ValidRiskLevel(level) {
			return domain.StratificationConfig{}, fmt.Errorf("unknown risk level %s", level)
		}
		if band.Min >= band.Max {
			return domain.StratificationConfig{}, fmt.Errorf("threshold %s: min_value must be below max_value", level)
		}
	}
	tj, err := json.Marshal(thresholds)
	if err != nil {
		return domain.StratificationConfig{}, err
	}
	now := e.nowRFC()
	c := domain.StratificationConfig{
		ID:             uuid.NewString(),
		ProjectID:      opts.ProjectID,
		Name:           opts.Name,
		Metric:         opts.Metric,
		IsActive:       true,
		ThresholdsJSON: string(tj),
		CreatedBy:      opts.ActorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertStratConfigTx(ctx, tx, c); err != nil {
		return c, err
	}
	if err := e.Events.Append(ctx, tx, "stratification.config.created", c.ProjectID, "stratification_config", c.ID, opts.ActorID, events.EventPayload{
		"name":   c.Name,
		"metric": c.Metric,
	}); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	return c, nil
}

// StratConfigUpdateOptions encapsulates allowed config updates.
type StratConfigUpdateOptions struct {
	ID         string
	Name       *string
	Thresholds stratify.Thresholds
	IsActive   *bool
	ActorID    string
}

func (e Engine) UpdateStratConfig(ctx context.Context, opts StratConfigUpdateOptions) (domain.StratificationConfig, error) {
	c, err := e.Repo.GetStratConfig(ctx, opts.ID)
	if err != nil {
		return c, err
	}
	if opts.Name != nil {
		c.Name = *opts.Name
	}
	if opts.Thresholds != nil {
		for level, band := range opts.Thresholds {
			if !stratify.ValidRiskLevel(level) {
				return c, fmt.Errorf("unknown risk level %s", level)
			}
			if band.Min >= band.Max {
				return c, fmt.Errorf("threshold %s: min_value must be below max_value", level)
			}
		}
		tj, err := json.Marshal(opts.Thresholds)
		if err != nil {
			return c, err
		}
		c.ThresholdsJSON = string(tj)
	}
	if opts.IsActive != nil {
		c.IsActive = *opts.IsActive
	}
	c.UpdatedAt = e.nowRFC()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return c, err
	}
	defer tx.Rollback()
	if err := e.Repo.UpdateStratConfigTx(ctx, tx, c); err != nil {
		return c, err
	}
	if err := e.Events.Append(ctx, tx, "stratification.config.updated", c.ProjectID, "stratification_config", c.ID, opts.ActorID, events.EventPayload{
		"is_active": c.IsActive,
	}); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	return c, nil
}

// CalculateStratification classifies the submitted units under a config's
// thresholds, replacing any previous results wholesale.
func (e Engine) CalculateStratification(ctx context.Context, configID string, units []stratify.UnitInput, actorID string) ([]domain.StratificationResult, error) {
	c, err := e.Repo.GetStratConfig(ctx, configID)
	if err != nil {
		return nil, err
	}
	var thresholds stratify.Thresholds
	if err := json.Unmarshal([]byte(c.ThresholdsJSON), &thresholds); err != nil {
		return nil, fmt.Errorf("config thresholds: %w", err)
	}
	now := e.nowRFC()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteStratResultsTx(ctx, tx, c.ID); err != nil {
		return nil, err
	}
	results := make([]domain.StratificationResult, 0, len(units))
	for _, u := range units {
		if u.AdminUnitName == "" {
			return nil, errors.New("admin_unit_name is required")
		}
		level := stratify.AssignRiskLevel(u.MetricValue, thresholds)
		eligible := stratify.EligibleInterventions(level, c.Metric, map[string]any{
			"admin_unit_name": u.AdminUnitName,
			"population":      u.Population,
		})
		ij, err := marshalJSON(map[string]any{"interventions": eligible})
		if err != nil {
			return nil, err
		}
		sr := domain.StratificationResult{
			ID:                uuid.NewString(),
			ConfigID:          c.ID,
			AdminUnitName:     u.AdminUnitName,
			AdminUnitCode:     u.AdminUnitCode,
			MetricValue:       u.MetricValue,
			RiskLevel:         level,
			InterventionsJSON: ij,
			Population:        u.Population,
			CasesAnnual:       u.CasesAnnual,
			DeathsAnnual:      u.DeathsAnnual,
			GeometryJSON:      u.GeometryJSON,
			CreatedAt:         now,
		}
		if err := e.Repo.InsertStratResultTx(ctx, tx, sr); err != nil {
			return nil, err
		}
		results = append(results, sr)
	}
	if err := e.Events.Append(ctx, tx, "stratification.calculated", c.ProjectID, "stratification_config", c.ID, actorID, events.EventPayload{
		"units": len(results),
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return results, nil
}

// StratSummary aggregates stratification results for one config.
type StratSummary struct {
	ConfigID         string         `json:"config_id"`
	ConfigName       string         `json:"config_name"`
	Metric           string         `json:"metric"`
	TotalUnits       int            `json:"total_units"`
	RiskDistribution map[string]int `json:"risk_distribution"`
	TotalPopulation  int64          `json:"total_population"`
	TotalCases       int64          `json:"total_cases"`
}

func (e Engine) StratificationSummary(ctx context.Context, configID string) (StratSummary, error) {
	c, err := e.Repo.GetStratConfig(ctx, configID)
	if err != nil {
		return StratSummary{}, err
	}
	results, err := e.Repo.ListStratResults(ctx, configID)
	if err != nil {
		return StratSummary{}, err
	}
	s := StratSummary{
		ConfigID:         c.ID,
		ConfigName:       c.Name,
		Metric:           c.Metric,
		TotalUnits:       len(results),
		RiskDistribution: map[string]int{},
	}
	for _, r := range results {
		s.RiskDistribution[r.RiskLevel]++
		if r.Population != nil {
			s.TotalPopulation += *r.Population
		}
		if r.CasesAnnual != nil {
			s.TotalCases += *r.CasesAnnual
		}
	}
	return s, nil
}

// GeoJSONFeature is one unit of a stratification map layer.
type GeoJSONFeature struct {
	Type       string          `json:"type"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// GeoJSONFeatureCollection is the map layer for a config's results.
type GeoJSONFeatureCollection struct {
	Type     string           `json:"type"`
	Features []GeoJSONFeature `json:"features"`
}

// StratificationGeoJSON renders results as a GeoJSON FeatureCollection for
// map visualization. Units without geometry get a null geometry feature.
func (e Engine) StratificationGeoJSON(ctx context.Context, configID string) (GeoJSONFeatureCollection, error) {
	if _, err := e.Repo.GetStratConfig(ctx, configID); err != nil {
		return GeoJSONFeatureCollection{}, err
	}
	results, err := e.Repo.ListStratResults(ctx, configID)
	if err != nil {
		return GeoJSONFeatureCollection{}, err
	}
	fc := GeoJSONFeatureCollection{Type: "FeatureCollection", Features: []GeoJSONFeature{}}
	for _, r := range results {
		geometry := json.RawMessage("null")
		if r.GeometryJSON != nil && json.Valid([]byte(*r.GeometryJSON)) {
			geometry = json.RawMessage(*r.GeometryJSON)
		}
		var interventions []string
		if r.InterventionsJSON != nil {
			var wrapper struct {
				Interventions []string `json:"interventions"`
			}
			if err := json.Unmarshal([]byte(*r.InterventionsJSON), &wrapper); err == nil {
				interventions = wrapper.Interventions
			}
		}
		fc.Features = append(fc.Features, GeoJSONFeature{
			Type:     "Feature",
			Geometry: geometry,
			Properties: map[string]any{
				"unit_id":                r.ID,
				"unit_name":              r.AdminUnitName,
				"unit_code":              r.AdminUnitCode,
				"risk_level":             r.RiskLevel,
				"metric_value":           r.MetricValue,
				"population":             r.Population,
				"cases_annual":           r.CasesAnnual,
				"deaths_annual":          r.DeathsAnnual,
				"eligible_interventions": interventions,
			},
		})
	}
	return fc, nil
}
