// Package costing prices intervention packages per operational unit and
// optimizes scenario assignments under a budget constraint.
package costing

import "sort"

// Intervention codes.
const (
	CodeCM      = "cm"
	CodeITN     = "itn"
	CodeIRS     = "irs"
	CodeSMC     = "smc"
	CodePMC     = "pmc"
	CodeIPTp    = "iptp"
	CodeVaccine = "vaccine"
	CodeLSM     = "lsm"
)

// Labels maps intervention codes to display names.
var Labels = map[string]string{
	CodeCM:      "Case Management",
	CodeITN:     "Insecticide-Treated Nets",
	CodeIRS:     "Indoor Residual Spraying",
	CodeSMC:     "Seasonal Malaria Chemoprevention",
	CodePMC:     "Perennial Malaria Chemoprevention",
	CodeIPTp:    "Intermittent Preventive Treatment in Pregnancy",
	CodeVaccine: "Malaria Vaccine",
	CodeLSM:     "Larval Source Management",
}

// UnitCosts holds per-intervention cost parameters in USD.
type UnitCosts map[string]map[string]float64

// DefaultUnitCosts returns the built-in unit cost table. Callers may
// override individual entries per country before costing.
func DefaultUnitCosts() UnitCosts {
	return UnitCosts{
		CodeITN: {
			"procurement":       2.50, // per net
			"distribution":      1.50, // per net
			"bcc_annual":        0.10, // per capita per year
			"nets_per_capita":   0.5,  // 1 net per 2 people
			"replacement_years": 3,    // LLIN lifespan
		},
		CodeIRS: {
			"insecticide_per_structure": 5.00,
			"operations_per_structure":  3.50,
			"mobilization_per_capita":   0.20,
			"persons_per_structure":     5,
		},
		CodeSMC: {
			"drugs_per_child_per_cycle":    0.50,
			"delivery_per_child_per_cycle": 0.80,
			"default_cycles":               4,
			"under5_proportion":            0.18,
		},
		CodeIPTp: {
			"drugs_per_pregnant_woman": 0.30,
			"delivery_per_visit":       0.50,
			"pregnant_proportion":      0.04,
			"visits_per_pregnancy":     4,
		},
		CodeVaccine: {
			"vaccine_per_dose":  2.00,
			"delivery_per_dose": 1.50,
			"doses_per_child":   4,
			"target_proportion": 0.03, // children in eligible age range
		},
		CodeCM: {
			"rdt_per_test":      0.50,
			"act_per_treatment": 1.20,
			"test_rate":         0.15, // tests per capita per year
			"positivity_rate":   0.30,
		},
		CodePMC: {
			"drugs_per_infant_per_dose": 0.40,
			"delivery_per_dose":         0.50,
			"doses":                     3,
			"infant_proportion":         0.03,
		},
		CodeLSM: {
			"cost_per_hectare_per_year": 150.00,
			"hectares_per_1000_pop":     0.5,
		},
	}
}

func (c UnitCosts) param(code, key string, fallback float64) float64 {
	if ic, ok := c[code]; ok {
		if v, ok := ic[key]; ok {
			return v
		}
	}
	return fallback
}

// InterventionCost prices one intervention for one operational unit over
// the given number of years. Unknown codes cost nothing.
func InterventionCost(code string, population int64, costs UnitCosts, years int) float64 {
	pop := float64(population)
	y := float64(years)

	switch code {
	case CodeITN:
		nets := pop * costs.param(code, "nets_per_capita", 0.5)
		cycles := y / costs.param(code, "replacement_years", 3)
		return nets*costs.param(code, "procurement", 2.5)*cycles +
			nets*costs.param(code, "distribution", 1.5)*cycles +
			pop*costs.param(code, "bcc_annual", 0.1)*y

	case CodeIRS:
		structures := pop / costs.param(code, "persons_per_structure", 5)
		return structures*costs.param(code, "insecticide_per_structure", 5)*y +
			structures*costs.param(code, "operations_per_structure", 3.5)*y +
			pop*costs.param(code, "mobilization_per_capita", 0.2)*y

	case CodeSMC:
		target := pop * costs.param(code, "under5_proportion", 0.18)
		cycles := costs.param(code, "default_cycles", 4)
		return target*costs.param(code, "drugs_per_child_per_cycle", 0.5)*cycles*y +
			target*costs.param(code, "delivery_per_child_per_cycle", 0.8)*cycles*y

	case CodeIPTp:
		target := pop * costs.param(code, "pregnant_proportion", 0.04)
		visits := costs.param(code, "visits_per_pregnancy", 4)
		return target*costs.param(code, "drugs_per_pregnant_woman", 0.3)*visits*y +
			target*costs.param(code, "delivery_per_visit", 0.5)*visits*y

	case CodeVaccine:
		target := pop * costs.param(code, "target_proportion", 0.03)
		doses := costs.param(code, "doses_per_child", 4)
		return target*costs.param(code, "vaccine_per_dose", 2)*doses*y +
			target*costs.param(code, "delivery_per_dose", 1.5)*doses*y

	case CodeCM:
		tests := pop * costs.param(code, "test_rate", 0.15)
		treatments := tests * costs.param(code, "positivity_rate", 0.3)
		return tests*costs.param(code, "rdt_per_test", 0.5)*y +
			treatments*costs.param(code, "act_per_treatment", 1.2)*y

	case CodePMC:
		target := pop * costs.param(code, "infant_proportion", 0.03)
		doses := costs.param(code, "doses", 3)
		return target*costs.param(code, "drugs_per_infant_per_dose", 0.4)*doses*y +
			target*costs.param(code, "delivery_per_dose", 0.5)*doses*y

	case CodeLSM:
		hectares := pop / 1000 * costs.param(code, "hectares_per_1000_pop", 0.5)
		return hectares * costs.param(code, "cost_per_hectare_per_year", 150) * y
	}
	return 0
}

// EstimateEffect gives a rough cases-averted figure used only to rank
// options during budget optimization.
func EstimateEffect(code string, population int64) float64 {
	rates := map[string]float64{
		CodeITN:     0.05,
		CodeIRS:     0.04,
		CodeSMC:     0.06,
		CodeCM:      0.03,
		CodeIPTp:    0.01,
		CodeVaccine: 0.02,
		CodePMC:     0.015,
		CodeLSM:     0.005,
	}
	rate, ok := rates[code]
	if !ok {
		rate = 0.01
	}
	return float64(population) * rate
}

// PopulationUnit carries the population of one operational unit for
// costing and optimization. Units are keyed by code when present,
// otherwise by name.
type PopulationUnit struct {
	AdminUnitName string `json:"admin_unit_name"`
	AdminUnitCode string `json:"admin_unit_code,omitempty"`
	Population    int64  `json:"population"`
}

// Key returns the lookup key a scenario assignment uses for this unit.
func (u PopulationUnit) Key() string {
	if u.AdminUnitCode != "" {
		return u.AdminUnitCode
	}
	return u.AdminUnitName
}

// PopulationMap indexes population units by key.
func PopulationMap(units []PopulationUnit) map[string]PopulationUnit {
	m := make(map[string]PopulationUnit, len(units))
	for _, u := range units {
		m[u.Key()] = u
	}
	return m
}

// Option is one unit-intervention pair considered by the optimizer.
type Option struct {
	UnitKey      string
	Intervention string
	Cost         float64
	Effect       float64
}

// Optimize greedily selects unit-intervention pairs by ascending
// incremental cost-effectiveness ratio until the budget is exhausted.
// Pairs with zero effect rank last. It returns the selected assignment
// and its total cost.
func Optimize(assignment map[string][]string, pops map[string]PopulationUnit, costs UnitCosts, years int, budget float64) (map[string][]string, float64) {
	unitKeys := make([]string, 0, len(assignment))
	for unitKey := range assignment {
		unitKeys = append(unitKeys, unitKey)
	}
	sort.Strings(unitKeys)

	var options []Option
	for _, unitKey := range unitKeys {
		var population int64
		if u, ok := pops[unitKey]; ok {
			population = u.Population
		}
		for _, code := range assignment[unitKey] {
			options = append(options, Option{
				UnitKey:      unitKey,
				Intervention: code,
				Cost:         InterventionCost(code, population, costs, years),
				Effect:       EstimateEffect(code, population),
			})
		}
	}

	// Ascending ICER; zero-effect options sort to the end.
	sort.SliceStable(options, func(i, j int) bool {
		a, b := options[i], options[j]
		if a.Effect <= 0 {
			return false
		}
		if b.Effect <= 0 {
			return true
		}
		return a.Cost/a.Effect < b.Cost/b.Effect
	})

	optimized := make(map[string][]string)
	running := 0.0
	for _, opt := range options {
		if running+opt.Cost <= budget {
			optimized[opt.UnitKey] = append(optimized[opt.UnitKey], opt.Intervention)
			running += opt.Cost
		}
	}
	return optimized, running
}

// Scenario types.
const (
	ScenarioIdeal             = "ideal"
	ScenarioPrioritized       = "prioritized"
	ScenarioBudgetConstrained = "budget_constrained"
	ScenarioCustom            = "custom"
)

// ValidScenarioType reports whether t names a supported scenario type.
func ValidScenarioType(t string) bool {
	switch t {
	case ScenarioIdeal, ScenarioPrioritized, ScenarioBudgetConstrained, ScenarioCustom:
		return true
	}
	return false
}
