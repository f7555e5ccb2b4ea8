// Package forecast projects the epidemiological impact of an intervention
// scenario with a simplified transmission model.
package forecast

import (
	"math"
	"sort"
	"strconv"
)

// Forecast statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ModelSimple is the built-in projection model. Other model types
// (openmalaria, emod) produce pending records for offline runs.
const ModelSimple = "simple"

// BaseYear anchors all projections.
const BaseYear = 2025

// Effectiveness is the proportional reduction an intervention achieves at
// full coverage.
type Effectiveness struct {
	Cases  float64
	Deaths float64
}

// InterventionEffectiveness maps intervention codes to their assumed
// effectiveness against cases and deaths.
var InterventionEffectiveness = map[string]Effectiveness{
	"itn":     {Cases: 0.50, Deaths: 0.55},
	"irs":     {Cases: 0.45, Deaths: 0.50},
	"smc":     {Cases: 0.75, Deaths: 0.75}, // among target group
	"iptp":    {Cases: 0.10, Deaths: 0.15},
	"vaccine": {Cases: 0.40, Deaths: 0.45},
	"cm":      {Cases: 0.20, Deaths: 0.60},
	"pmc":     {Cases: 0.30, Deaths: 0.35},
	"lsm":     {Cases: 0.10, Deaths: 0.08},
}

// Baseline is the pre-intervention burden a projection starts from.
type Baseline struct {
	Cases      int64   `json:"baseline_cases"`
	Deaths     int64   `json:"baseline_deaths"`
	Prevalence float64 `json:"baseline_prevalence"`
	Population int64   `json:"population"`
}

// DefaultBaseline fills in placeholder values for projects that have not
// supplied baseline data yet.
func DefaultBaseline() Baseline {
	return Baseline{Cases: 100000, Deaths: 500, Prevalence: 15.0, Population: 1000000}
}

// Bounds is a lower/upper uncertainty interval.
type Bounds struct {
	Lower int64 `json:"lower"`
	Upper int64 `json:"upper"`
}

// Result is the output of one projection run.
type Result struct {
	Status              string             `json:"status"`
	ProjectedCases      map[string]int64   `json:"projected_cases,omitempty"`
	ProjectedDeaths     map[string]int64   `json:"projected_deaths,omitempty"`
	ProjectedPrevalence map[string]float64 `json:"projected_prevalence,omitempty"`
	CasesAverted        int64              `json:"cases_averted"`
	DeathsAverted       int64              `json:"deaths_averted"`
	DALYsAverted        float64            `json:"dalys_averted"`
	Uncertainty         map[string]Bounds  `json:"uncertainty,omitempty"`
}

// CombinedReduction composes the effectiveness of a set of interventions
// with diminishing returns: in sorted code order, each intervention acts
// only on the burden the previous ones left. The result is capped at 0.95.
func CombinedReduction(codes []string) (cases, deaths float64) {
	sorted := append([]string(nil), codes...)
	sort.Strings(sorted)
	for _, code := range sorted {
		eff := InterventionEffectiveness[code]
		cases += (1 - cases) * eff.Cases
		deaths += (1 - deaths) * eff.Deaths
	}
	return math.Min(cases, 0.95), math.Min(deaths, 0.95)
}

// Simple runs the built-in projection. The intervention set is the union
// over all units of the scenario assignment; coverage ramps 50%, 75%,
// then 100% from year three on.
func Simple(assignment map[string][]string, baseline Baseline, years int) Result {
	seen := make(map[string]bool)
	var codes []string
	for _, interventions := range assignment {
		for _, code := range interventions {
			if !seen[code] {
				seen[code] = true
				codes = append(codes, code)
			}
		}
	}

	caseReduction, deathReduction := CombinedReduction(codes)

	res := Result{
		Status:              StatusCompleted,
		ProjectedCases:      make(map[string]int64),
		ProjectedDeaths:     make(map[string]int64),
		ProjectedPrevalence: make(map[string]float64),
	}

	for y := 0; y < years; y++ {
		year := yearKey(BaseYear + y)
		scaleUp := math.Min(1.0, 0.5+float64(y)*0.25)
		effCases := caseReduction * scaleUp
		effDeaths := deathReduction * scaleUp

		yearCases := int64(float64(baseline.Cases) * (1 - effCases))
		yearDeaths := int64(float64(baseline.Deaths) * (1 - effDeaths))
		yearPrevalence := round2(baseline.Prevalence * (1 - effCases*0.8))

		res.ProjectedCases[year] = yearCases
		res.ProjectedDeaths[year] = yearDeaths
		res.ProjectedPrevalence[year] = yearPrevalence

		res.CasesAverted += baseline.Cases - yearCases
		res.DeathsAverted += baseline.Deaths - yearDeaths
	}

	// DALY estimate: ~0.02 DALYs per case plus 30 per death.
	res.DALYsAverted = round1(float64(res.CasesAverted)*0.02 + float64(res.DeathsAverted)*30)

	res.Uncertainty = map[string]Bounds{
		"cases_averted": {
			Lower: int64(float64(res.CasesAverted) * 0.8),
			Upper: int64(float64(res.CasesAverted) * 1.2),
		},
		"deaths_averted": {
			Lower: int64(float64(res.DeathsAverted) * 0.8),
			Upper: int64(float64(res.DeathsAverted) * 1.2),
		},
	}
	return res
}

// Pending is the stub result recorded for external model types.
func Pending() Result {
	return Result{Status: StatusPending}
}

func yearKey(year int) string { return strconv.Itoa(year) }

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
