package tailoring

import (
	"testing"
)

func TestGetTree(t *testing.T) {
	tree, err := GetTree("itn")
	if err != nil {
		t.Fatalf("get itn tree: %v", err)
	}
	if tree.InterventionCode != "itn" || tree.InterventionName == "" {
		t.Fatalf("unexpected tree: %+v", tree)
	}
	if len(tree.Questions) == 0 {
		t.Fatal("expected tailoring questions")
	}
	if _, err := GetTree("bednets_v2"); err == nil {
		t.Fatal("expected error for unknown code")
	}
}

func TestAllTreesCoversEveryIntervention(t *testing.T) {
	all := AllTrees()
	if len(all) != 8 {
		t.Fatalf("expected 8 trees, got %d", len(all))
	}
	seen := map[string]bool{}
	for _, tree := range all {
		if tree.InterventionCode == "" || seen[tree.InterventionCode] {
			t.Fatalf("bad or duplicate code in %+v", tree)
		}
		seen[tree.InterventionCode] = true
	}
}

func TestRecommendEligibility(t *testing.T) {
	rec, err := Recommend("smc", "high", map[string]any{"seasonality": "seasonal"})
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if !rec.Eligible {
		t.Fatalf("expected eligible, got %v", rec.Ineligibility)
	}
	if rec.Defaults["num_cycles"] != 4 {
		t.Fatalf("unexpected defaults: %v", rec.Defaults)
	}

	rec, err = Recommend("smc", "high", map[string]any{"seasonality": "perennial"})
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if rec.Eligible || len(rec.Ineligibility) == 0 {
		t.Fatalf("expected perennial setting ineligible, got %+v", rec)
	}

	rec, err = Recommend("irs", "very_low", nil)
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	if rec.Eligible {
		t.Fatal("expected irs ineligible at very low risk")
	}
}

func TestRecommendDefaultsFollowResistance(t *testing.T) {
	for _, tc := range []struct {
		resistance float64
		want       string
	}{
		{10, "standard_llin"},
		{50, "pbo_llin"},
		{70, "dual_ai_llin"},
	} {
		rec, err := Recommend("itn", "high", map[string]any{"pyrethroid_resistance_pct": tc.resistance})
		if err != nil {
			t.Fatalf("recommend: %v", err)
		}
		if rec.Defaults["itn_type"] != tc.want {
			t.Errorf("resistance %v: got %v, want %s", tc.resistance, rec.Defaults["itn_type"], tc.want)
		}
	}
}

func TestRecommendFiltersConditionalOptions(t *testing.T) {
	rec, err := Recommend("itn", "high", map[string]any{"pyrethroid_resistance_pct": 10.0})
	if err != nil {
		t.Fatalf("recommend: %v", err)
	}
	for _, q := range rec.Questions {
		if q.ID != "itn_type" {
			continue
		}
		for _, opt := range q.Options {
			if opt.Value == "pbo_llin" || opt.Value == "dual_ai_llin" {
				t.Fatalf("expected resistance-gated options dropped, got %v", q.Options)
			}
		}
		return
	}
	t.Fatal("itn_type question not found")
}
