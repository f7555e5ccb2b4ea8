// Package stratify assigns malaria risk levels to operational units and
// derives the interventions each unit qualifies for under WHO guidance.
package stratify

// Risk levels, ordered from lowest to highest transmission.
const (
	RiskVeryLow  = "very_low"
	RiskLow      = "low"
	RiskModerate = "moderate"
	RiskHigh     = "high"
)

// riskOrder is the evaluation order for threshold matching.
var riskOrder = []string{RiskVeryLow, RiskLow, RiskModerate, RiskHigh}

// ValidRiskLevel reports whether level names a known risk stratum.
func ValidRiskLevel(level string) bool {
	switch level {
	case RiskVeryLow, RiskLow, RiskModerate, RiskHigh:
		return true
	}
	return false
}

// Stratification metrics.
const (
	MetricPfPR      = "pfpr"
	MetricIncidence = "incidence"
	MetricEIR       = "eir"
)

// ValidMetric reports whether m names a supported metric.
func ValidMetric(m string) bool {
	switch m {
	case MetricPfPR, MetricIncidence, MetricEIR:
		return true
	}
	return false
}

// DefaultThresholds returns the built-in WHO-aligned bands for a metric.
func DefaultThresholds(metric string) Thresholds {
	switch metric {
	case MetricPfPR:
		return Thresholds{
			RiskVeryLow:  {Min: 0, Max: 1},
			RiskLow:      {Min: 1, Max: 10},
			RiskModerate: {Min: 10, Max: 35},
			RiskHigh:     {Min: 35, Max: 100},
		}
	case MetricIncidence:
		return Thresholds{
			RiskVeryLow:  {Min: 0, Max: 100},
			RiskLow:      {Min: 100, Max: 250},
			RiskModerate: {Min: 250, Max: 450},
			RiskHigh:     {Min: 450, Max: 10000},
		}
	}
	return nil
}

// Band is a half-open value range [Min, Max).
type Band struct {
	Min float64 `json:"min_value" yaml:"min_value"`
	Max float64 `json:"max_value" yaml:"max_value"`
}

// Thresholds maps risk levels to metric value bands.
type Thresholds map[string]Band

// AssignRiskLevel matches value against the bands in ascending risk order
// and returns the first level whose band contains it. Values matching no
// band classify as high.
func AssignRiskLevel(value float64, thresholds Thresholds) string {
	for _, level := range riskOrder {
		if band, ok := thresholds[level]; ok {
			if band.Min <= value && value < band.Max {
				return level
			}
		}
	}
	return RiskHigh
}

// EligibleInterventions lists the intervention codes a unit at the given
// risk level qualifies for. Case management is universal; the remaining
// rules follow WHO stratification guidance. The metric and unit attributes
// are accepted for future rule refinement and do not affect the current
// table.
func EligibleInterventions(riskLevel, metric string, unit map[string]any) []string {
	eligible := []string{"CM"}
	switch riskLevel {
	case RiskLow:
		eligible = append(eligible, "ITN", "IPTp")
	case RiskModerate, RiskHigh:
		eligible = append(eligible, "ITN", "IRS", "IPTp", "SMC", "VACCINE")
	}
	return eligible
}

// UnitInput is one operational unit submitted for stratification.
type UnitInput struct {
	AdminUnitName string   `json:"admin_unit_name"`
	AdminUnitCode *string  `json:"admin_unit_code,omitempty"`
	MetricValue   float64  `json:"metric_value"`
	Population    *int64   `json:"population,omitempty"`
	CasesAnnual   *int64   `json:"cases_annual,omitempty"`
	DeathsAnnual  *int64   `json:"deaths_annual,omitempty"`
	GeometryJSON  *string  `json:"geometry,omitempty"`
}
