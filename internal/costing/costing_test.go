package costing

import (
	"math"
	"testing"
)

func TestInterventionCostITN(t *testing.T) {
	costs := DefaultUnitCosts()
	// 100k people, 3 years: 50k nets, one replacement cycle, plus BCC
	got := InterventionCost(CodeITN, 100000, costs, 3)
	want := 50000*2.5 + 50000*1.5 + 100000*0.1*3
	if math.Abs(got-want) > 0.01 {
		t.Fatalf("itn cost = %v, want %v", got, want)
	}
}

func TestInterventionCostITNFractionalCycles(t *testing.T) {
	costs := DefaultUnitCosts()
	// 1M people over 5 years: 500k nets replaced every 3 years, 5/3 cycles
	got := InterventionCost(CodeITN, 1000000, costs, 5)
	nets := 500000.0
	cycles := 5.0 / 3.0
	want := nets*2.5*cycles + nets*1.5*cycles + 1000000*0.1*5
	if math.Abs(got-want) > 1e-6 {
		t.Fatalf("itn cost = %v, want %v", got, want)
	}
}

func TestInterventionCostSMC(t *testing.T) {
	costs := DefaultUnitCosts()
	got := InterventionCost(CodeSMC, 100000, costs, 1)
	target := 100000 * 0.18
	want := target*0.5*4 + target*0.8*4
	if math.Abs(got-want) > 0.01 {
		t.Fatalf("smc cost = %v, want %v", got, want)
	}
}

func TestInterventionCostUnknownCodeIsFree(t *testing.T) {
	if got := InterventionCost("teleportation", 100000, DefaultUnitCosts(), 3); got != 0 {
		t.Fatalf("expected zero cost for unknown code, got %v", got)
	}
}

func TestInterventionCostOverrides(t *testing.T) {
	costs := DefaultUnitCosts()
	costs[CodeSMC]["default_cycles"] = 5
	base := InterventionCost(CodeSMC, 100000, DefaultUnitCosts(), 1)
	bumped := InterventionCost(CodeSMC, 100000, costs, 1)
	if bumped <= base {
		t.Fatalf("expected extra cycle to raise cost: %v vs %v", bumped, base)
	}
}

func TestPopulationMapKeysByCodeThenName(t *testing.T) {
	units := []PopulationUnit{
		{AdminUnitName: "Kano", AdminUnitCode: "NG-KN", Population: 500000},
		{AdminUnitName: "Kaduna", Population: 300000},
	}
	m := PopulationMap(units)
	if m["NG-KN"].Population != 500000 {
		t.Fatalf("expected code key, got %v", m)
	}
	if m["Kaduna"].Population != 300000 {
		t.Fatalf("expected name fallback key, got %v", m)
	}
	if _, ok := m["Kano"]; ok {
		t.Fatal("name should not be a key when a code is present")
	}
}

func TestOptimizeRespectsBudget(t *testing.T) {
	assignment := map[string][]string{
		"Kano":   {CodeITN, CodeSMC, CodeCM},
		"Kaduna": {CodeITN, CodeCM},
	}
	pops := map[string]PopulationUnit{
		"Kano":   {AdminUnitName: "Kano", Population: 500000},
		"Kaduna": {AdminUnitName: "Kaduna", Population: 300000},
	}
	costs := DefaultUnitCosts()
	years := 3

	full := 0.0
	for unit, codes := range assignment {
		for _, code := range codes {
			full += InterventionCost(code, pops[unit].Population, costs, years)
		}
	}

	budget := full / 2
	selected, total := Optimize(assignment, pops, costs, years, budget)
	if total > budget {
		t.Fatalf("total %v exceeds budget %v", total, budget)
	}
	if total <= 0 || len(selected) == 0 {
		t.Fatalf("expected a non-empty selection, got %v (%v)", selected, total)
	}
	picked := 0
	for _, codes := range selected {
		picked += len(codes)
	}
	if picked >= 5 {
		t.Fatalf("expected the half budget to trim pairs, got %d", picked)
	}
}

func TestOptimizeUnlimitedBudgetKeepsEverything(t *testing.T) {
	assignment := map[string][]string{"Kano": {CodeITN, CodeCM}}
	pops := map[string]PopulationUnit{"Kano": {AdminUnitName: "Kano", Population: 500000}}
	selected, total := Optimize(assignment, pops, DefaultUnitCosts(), 3, math.MaxFloat64)
	if len(selected["Kano"]) != 2 {
		t.Fatalf("expected both interventions kept, got %v", selected)
	}
	if total <= 0 {
		t.Fatalf("expected positive total, got %v", total)
	}
}

func TestOptimizePrefersCostEffectivePairs(t *testing.T) {
	assignment := map[string][]string{"Kano": {CodeSMC, CodeCM}}
	pops := map[string]PopulationUnit{"Kano": {AdminUnitName: "Kano", Population: 500000}}
	costs := DefaultUnitCosts()
	// budget covers case management but not chemoprevention
	cmCost := InterventionCost(CodeCM, 500000, costs, 1)

	selected, _ := Optimize(assignment, pops, costs, 1, cmCost)
	codes := selected["Kano"]
	if len(codes) != 1 || codes[0] != CodeCM {
		t.Fatalf("expected cm selected first, got %v", codes)
	}
}

func TestValidScenarioType(t *testing.T) {
	for _, typ := range []string{ScenarioIdeal, ScenarioPrioritized, ScenarioBudgetConstrained, ScenarioCustom} {
		if !ValidScenarioType(typ) {
			t.Errorf("expected %s valid", typ)
		}
	}
	if ValidScenarioType("wishful") {
		t.Error("expected wishful invalid")
	}
}
