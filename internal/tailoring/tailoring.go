// Package tailoring encodes WHO intervention tailoring decision trees and
// produces per-unit recommendations from risk level and local context.
package tailoring

import (
	"fmt"
	"strconv"
	"strings"

	"sntplan/internal/costing"
	"sntplan/internal/stratify"
)

// Option is one selectable answer to a tailoring question. Conditions
// gate the option on context values, e.g. {"pyrethroid_resistance_pct":
// ">40"}.
type Option struct {
	Value      string         `json:"value"`
	Label      string         `json:"label"`
	Conditions map[string]any `json:"conditions,omitempty"`
}

// Question is one decision point in a tree.
type Question struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Type     string   `json:"question_type"`
	Options  []Option `json:"options,omitempty"`
	Default  any      `json:"default,omitempty"`
	MinValue *float64 `json:"min_value,omitempty"`
	MaxValue *float64 `json:"max_value,omitempty"`
	HelpText string   `json:"help_text,omitempty"`
}

// Criterion is one eligibility rule.
type Criterion struct {
	Criterion string   `json:"criterion"`
	Values    []string `json:"values,omitempty"`
	Value     string   `json:"value,omitempty"`
}

// Tree is the full decision tree for one intervention.
type Tree struct {
	InterventionCode string      `json:"intervention_code"`
	InterventionName string      `json:"intervention_name"`
	Eligibility      []Criterion `json:"eligibility_criteria"`
	Questions        []Question  `json:"tailoring_questions"`
}

// Recommendation is the tailored output for one unit.
type Recommendation struct {
	InterventionCode string         `json:"intervention_code"`
	InterventionName string         `json:"intervention_name"`
	Eligible         bool           `json:"is_eligible"`
	Ineligibility    []string       `json:"ineligibility_reasons,omitempty"`
	Questions        []Question     `json:"tailoring_questions,omitempty"`
	Defaults         map[string]any `json:"default_recommendations,omitempty"`
	Context          map[string]any `json:"context_summary,omitempty"`
}

func fptr(v float64) *float64 { return &v }

var trees = map[string]Tree{
	costing.CodeITN: {
		Eligibility: []Criterion{
			{Criterion: "risk_level", Values: []string{"low", "moderate", "high"}},
		},
		Questions: []Question{
			{
				ID: "itn_type", Question: "What type of ITN is most appropriate?", Type: "select",
				Options: []Option{
					{Value: "standard_llin", Label: "Standard LLIN"},
					{Value: "pbo_llin", Label: "PBO LLIN", Conditions: map[string]any{"pyrethroid_resistance_pct": ">40"}},
					{Value: "dual_ai_llin", Label: "Dual Active-Ingredient LLIN", Conditions: map[string]any{"pyrethroid_resistance_pct": ">60"}},
				},
				HelpText: "Select based on local insecticide resistance data",
			},
			{
				ID: "distribution_strategy", Question: "What distribution strategy?", Type: "select",
				Options: []Option{
					{Value: "mass_campaign", Label: "Mass campaign (3-year cycle)"},
					{Value: "continuous", Label: "Continuous distribution (ANC/EPI)"},
					{Value: "hybrid", Label: "Hybrid (campaign + continuous top-up)"},
				},
			},
			{
				ID: "coverage_target", Question: "Target coverage (%)?", Type: "numeric",
				Default: 80, MinValue: fptr(50), MaxValue: fptr(100),
				HelpText: "WHO recommends universal coverage (1 net per 2 people)",
			},
		},
	},
	costing.CodeIRS: {
		Eligibility: []Criterion{
			{Criterion: "risk_level", Values: []string{"moderate", "high"}},
		},
		Questions: []Question{
			{
				ID: "insecticide_class", Question: "Insecticide class?", Type: "select",
				Options: []Option{
					{Value: "pyrethroid", Label: "Pyrethroid"},
					{Value: "organophosphate", Label: "Organophosphate (Pirimiphos-methyl)"},
					{Value: "carbamate", Label: "Carbamate (Bendiocarb)"},
					{Value: "neonicotinoid", Label: "Neonicotinoid (Clothianidin)"},
				},
				HelpText: "Based on local vector susceptibility testing",
			},
			{
				ID: "spray_rounds", Question: "Spray rounds per year?", Type: "numeric",
				Default: 1, MinValue: fptr(1), MaxValue: fptr(2),
				HelpText: "Depends on insecticide residual duration and transmission season length",
			},
			{
				ID: "geographic_targeting", Question: "Geographic targeting approach?", Type: "select",
				Options: []Option{
					{Value: "universal", Label: "Universal (all structures)"},
					{Value: "targeted_high_risk", Label: "High-risk areas only"},
					{Value: "focal", Label: "Focal (outbreak/hotspot response)"},
				},
			},
		},
	},
	costing.CodeSMC: {
		Eligibility: []Criterion{
			{Criterion: "risk_level", Values: []string{"moderate", "high"}},
			{Criterion: "seasonality", Value: "seasonal"},
		},
		Questions: []Question{
			{
				ID: "target_age", Question: "Target age group?", Type: "select",
				Options: []Option{
					{Value: "3_59_months", Label: "3-59 months (standard)"},
					{Value: "3_10_years", Label: "3-10 years (extended)"},
				},
				HelpText: "Extended age group if high burden in 5-10 year olds",
			},
			{
				ID: "num_cycles", Question: "Number of monthly cycles?", Type: "numeric",
				Default: 4, MinValue: fptr(3), MaxValue: fptr(5),
				HelpText: "Based on length of high transmission season",
			},
			{
				ID: "delivery_strategy", Question: "Delivery approach?", Type: "select",
				Options: []Option{
					{Value: "door_to_door", Label: "Door-to-door"},
					{Value: "fixed_point", Label: "Fixed distribution points"},
					{Value: "school_based", Label: "School-based (if extended age)"},
				},
			},
		},
	},
	costing.CodeIPTp: {
		Eligibility: []Criterion{
			{Criterion: "risk_level", Values: []string{"low", "moderate", "high"}},
		},
		Questions: []Question{
			{
				ID: "num_doses", Question: "Minimum IPTp-SP doses?", Type: "numeric",
				Default: 3, MinValue: fptr(3), MaxValue: fptr(8),
				HelpText: "WHO recommends at least 3 doses at each ANC visit",
			},
			{
				ID: "delivery_platform", Question: "Delivery platform?", Type: "select",
				Options: []Option{
					{Value: "anc_facility", Label: "ANC at health facility"},
					{Value: "community", Label: "Community-based delivery"},
				},
			},
		},
	},
	costing.CodeVaccine: {
		Eligibility: []Criterion{
			{Criterion: "risk_level", Values: []string{"moderate", "high"}},
		},
		Questions: []Question{
			{
				ID: "vaccine_product", Question: "Vaccine product?", Type: "select",
				Options: []Option{
					{Value: "rtss", Label: "RTS,S/AS01"},
					{Value: "r21", Label: "R21/Matrix-M"},
				},
			},
			{
				ID: "delivery_platform", Question: "Delivery platform?", Type: "select",
				Options: []Option{
					{Value: "epi_routine", Label: "Routine EPI (integrated)"},
					{Value: "campaign", Label: "Catch-up campaign + routine"},
				},
			},
			{
				ID: "age_first_dose", Question: "Age at first dose (months)?", Type: "numeric",
				Default: 5, MinValue: fptr(5), MaxValue: fptr(17),
			},
		},
	},
	costing.CodeCM: {
		Eligibility: []Criterion{
			{Criterion: "risk_level", Values: []string{"very_low", "low", "moderate", "high"}},
		},
		Questions: []Question{
			{
				ID: "diagnostic_approach", Question: "Diagnostic approach?", Type: "select",
				Options: []Option{
					{Value: "microscopy", Label: "Microscopy"},
					{Value: "rdt", Label: "Rapid Diagnostic Test (RDT)"},
					{Value: "both", Label: "Both (microscopy + RDT)"},
				},
			},
			{
				ID: "treatment_protocol", Question: "First-line treatment?", Type: "select",
				Options: []Option{
					{Value: "al", Label: "Artemether-Lumefantrine (AL)"},
					{Value: "asaq", Label: "Artesunate-Amodiaquine (ASAQ)"},
					{Value: "dha_ppq", Label: "DHA-Piperaquine"},
				},
			},
			{
				ID: "community_case_mgmt", Question: "Include community case management (iCCM)?", Type: "boolean",
				Default:  true,
				HelpText: "Community health workers diagnose and treat uncomplicated malaria",
			},
		},
	},
	costing.CodePMC: {
		Eligibility: []Criterion{
			{Criterion: "risk_level", Values: []string{"moderate", "high"}},
			{Criterion: "seasonality", Value: "perennial"},
		},
		Questions: []Question{
			{
				ID: "num_doses", Question: "Number of PMC doses?", Type: "numeric",
				Default: 3, MinValue: fptr(3), MaxValue: fptr(6),
			},
			{
				ID: "drug_regimen", Question: "Drug regimen?", Type: "select",
				Options: []Option{
					{Value: "sp", Label: "Sulfadoxine-Pyrimethamine (SP)"},
					{Value: "dha_ppq", Label: "DHA-Piperaquine"},
				},
			},
		},
	},
	costing.CodeLSM: {
		Eligibility: []Criterion{
			{Criterion: "setting", Values: []string{"urban", "peri_urban"}},
		},
		Questions: []Question{
			{
				ID: "lsm_type", Question: "LSM approach?", Type: "select",
				Options: []Option{
					{Value: "environmental", Label: "Environmental management"},
					{Value: "biological", Label: "Biological control (Bti/Bs)"},
					{Value: "combined", Label: "Combined approach"},
				},
			},
			{
				ID: "targeting", Question: "Targeting approach?", Type: "select",
				Options: []Option{
					{Value: "all_sites", Label: "All identified breeding sites"},
					{Value: "productive_sites", Label: "Most productive sites only"},
				},
			},
		},
	},
}

// codeOrder keeps tree listings stable.
var codeOrder = []string{
	costing.CodeCM, costing.CodeITN, costing.CodeIRS, costing.CodeSMC,
	costing.CodePMC, costing.CodeIPTp, costing.CodeVaccine, costing.CodeLSM,
}

// GetTree returns the decision tree for an intervention code.
func GetTree(code string) (Tree, error) {
	tree, ok := trees[code]
	if !ok {
		return Tree{}, fmt.Errorf("no decision tree for %s", code)
	}
	tree.InterventionCode = code
	tree.InterventionName = costing.Labels[code]
	return tree, nil
}

// AllTrees returns every decision tree in canonical code order.
func AllTrees() []Tree {
	out := make([]Tree, 0, len(codeOrder))
	for _, code := range codeOrder {
		tree, _ := GetTree(code)
		out = append(out, tree)
	}
	return out
}

// Recommend evaluates eligibility and, when eligible, returns the
// context-filtered questions plus default answers for one unit.
func Recommend(code, riskLevel string, context map[string]any) (Recommendation, error) {
	tree, err := GetTree(code)
	if err != nil {
		return Recommendation{}, err
	}
	if context == nil {
		context = map[string]any{}
	}

	reasons := checkEligibility(tree.Eligibility, riskLevel, context)
	if len(reasons) > 0 {
		return Recommendation{
			InterventionCode: code,
			InterventionName: tree.InterventionName,
			Eligible:         false,
			Ineligibility:    reasons,
		}, nil
	}

	return Recommendation{
		InterventionCode: code,
		InterventionName: tree.InterventionName,
		Eligible:         true,
		Questions:        filterQuestions(tree.Questions, context),
		Defaults:         defaults(code, riskLevel, context),
		Context:          context,
	}, nil
}

func checkEligibility(criteria []Criterion, riskLevel string, context map[string]any) []string {
	var reasons []string
	for _, c := range criteria {
		switch c.Criterion {
		case "risk_level":
			if !contains(c.Values, riskLevel) {
				reasons = append(reasons, fmt.Sprintf("Risk level '%s' not eligible (requires: %s)",
					riskLevel, strings.Join(c.Values, ", ")))
			}
		case "seasonality":
			actual, _ := context["seasonality"].(string)
			if actual != "" && actual != c.Value {
				reasons = append(reasons, fmt.Sprintf("Requires %s transmission (found: %s)", c.Value, actual))
			}
		case "setting":
			actual, _ := context["setting"].(string)
			if actual != "" && !contains(c.Values, actual) {
				reasons = append(reasons, fmt.Sprintf("Setting '%s' not eligible (requires: %s)",
					actual, strings.Join(c.Values, ", ")))
			}
		}
	}
	return reasons
}

// filterQuestions drops options whose conditions the context rules out.
// When every option of a question is ruled out the original list stands.
func filterQuestions(questions []Question, context map[string]any) []Question {
	filtered := make([]Question, 0, len(questions))
	for _, q := range questions {
		if len(q.Options) == 0 {
			filtered = append(filtered, q)
			continue
		}
		var available []Option
		for _, opt := range q.Options {
			if len(opt.Conditions) == 0 || optionAllowed(opt.Conditions, context) {
				available = append(available, opt)
			}
		}
		if available != nil {
			q.Options = available
		}
		filtered = append(filtered, q)
	}
	return filtered
}

func optionAllowed(conditions map[string]any, context map[string]any) bool {
	for key, required := range conditions {
		actual, ok := context[key]
		if !ok || actual == nil {
			continue
		}
		if s, isStr := required.(string); isStr && (strings.HasPrefix(s, ">") || strings.HasPrefix(s, "<")) {
			threshold, err := strconv.ParseFloat(s[1:], 64)
			if err != nil {
				continue
			}
			value, ok := toFloat(actual)
			if !ok {
				continue
			}
			if strings.HasPrefix(s, ">") && value <= threshold {
				return false
			}
			if strings.HasPrefix(s, "<") && value >= threshold {
				return false
			}
			continue
		}
		if actual != required {
			return false
		}
	}
	return true
}

func defaults(code, riskLevel string, context map[string]any) map[string]any {
	d := map[string]any{}
	switch code {
	case costing.CodeITN:
		resistance, _ := toFloat(context["pyrethroid_resistance_pct"])
		switch {
		case resistance > 60:
			d["itn_type"] = "dual_ai_llin"
		case resistance > 40:
			d["itn_type"] = "pbo_llin"
		default:
			d["itn_type"] = "standard_llin"
		}
		d["distribution_strategy"] = "hybrid"
		d["coverage_target"] = 80
	case costing.CodeIRS:
		d["spray_rounds"] = 1
		if riskLevel == stratify.RiskHigh {
			d["geographic_targeting"] = "universal"
		} else {
			d["geographic_targeting"] = "targeted_high_risk"
		}
	case costing.CodeSMC:
		d["target_age"] = "3_59_months"
		d["num_cycles"] = 4
		d["delivery_strategy"] = "door_to_door"
	case costing.CodeVaccine:
		d["vaccine_product"] = "r21"
		d["delivery_platform"] = "epi_routine"
		d["age_first_dose"] = 5
	case costing.CodeCM:
		d["diagnostic_approach"] = "rdt"
		d["community_case_mgmt"] = true
	}
	return d
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
