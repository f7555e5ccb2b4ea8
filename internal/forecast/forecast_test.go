package forecast

import (
	"math"
	"testing"
)

func TestCombinedReductionDiminishingReturns(t *testing.T) {
	cases, deaths := CombinedReduction([]string{"itn", "smc"})
	// itn acts first (sorted order), smc on the remainder
	wantCases := 0.50 + (1-0.50)*0.75
	wantDeaths := 0.55 + (1-0.55)*0.75
	if math.Abs(cases-wantCases) > 1e-9 || math.Abs(deaths-wantDeaths) > 1e-9 {
		t.Fatalf("got %v/%v, want %v/%v", cases, deaths, wantCases, wantDeaths)
	}
}

func TestCombinedReductionITNPlusIRS(t *testing.T) {
	cases, _ := CombinedReduction([]string{"itn", "irs"})
	// 0.50 + 0.50*0.45: each acts on the burden the other leaves
	if math.Abs(cases-0.725) > 1e-9 {
		t.Fatalf("expected 0.725, got %v", cases)
	}
}

func TestCombinedReductionOrderIndependent(t *testing.T) {
	a, _ := CombinedReduction([]string{"cm", "itn", "smc"})
	b, _ := CombinedReduction([]string{"smc", "cm", "itn"})
	if a != b {
		t.Fatalf("expected order independence, got %v vs %v", a, b)
	}
}

func TestCombinedReductionCap(t *testing.T) {
	all := []string{"itn", "irs", "smc", "iptp", "vaccine", "cm", "pmc", "lsm"}
	cases, deaths := CombinedReduction(all)
	if cases != 0.95 || deaths != 0.95 {
		t.Fatalf("expected 0.95 cap, got %v/%v", cases, deaths)
	}
}

func TestCombinedReductionEmpty(t *testing.T) {
	cases, deaths := CombinedReduction(nil)
	if cases != 0 || deaths != 0 {
		t.Fatalf("expected zero reduction, got %v/%v", cases, deaths)
	}
}

func TestSimpleProjection(t *testing.T) {
	assignment := map[string][]string{
		"Kano":   {"itn", "cm"},
		"Kaduna": {"itn"}, // union: itn, cm
	}
	baseline := Baseline{Cases: 100000, Deaths: 500, Prevalence: 20, Population: 1000000}
	res := Simple(assignment, baseline, 3)

	if res.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", res.Status)
	}
	if len(res.ProjectedCases) != 3 {
		t.Fatalf("expected 3 projected years, got %d", len(res.ProjectedCases))
	}
	first, last := res.ProjectedCases["2025"], res.ProjectedCases["2027"]
	if first == 0 || last == 0 {
		t.Fatalf("missing year keys: %v", res.ProjectedCases)
	}
	// coverage ramps up, so later years avert more
	if last >= first {
		t.Fatalf("expected cases to keep falling: %v", res.ProjectedCases)
	}
	if res.CasesAverted <= 0 || res.DeathsAverted <= 0 || res.DALYsAverted <= 0 {
		t.Fatalf("expected positive impact, got %+v", res)
	}

	bounds, ok := res.Uncertainty["cases_averted"]
	if !ok {
		t.Fatal("expected cases_averted bounds")
	}
	if bounds.Lower > res.CasesAverted || bounds.Upper < res.CasesAverted {
		t.Fatalf("point estimate outside bounds: %+v vs %d", bounds, res.CasesAverted)
	}
}

func TestSimpleNoInterventionsNoImpact(t *testing.T) {
	res := Simple(map[string][]string{}, DefaultBaseline(), 2)
	if res.CasesAverted != 0 || res.DeathsAverted != 0 {
		t.Fatalf("expected no impact without interventions, got %+v", res)
	}
}

func TestPending(t *testing.T) {
	res := Pending()
	if res.Status != StatusPending || res.ProjectedCases != nil {
		t.Fatalf("unexpected pending result: %+v", res)
	}
}
