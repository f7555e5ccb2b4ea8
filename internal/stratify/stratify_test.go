package stratify

import (
	"reflect"
	"testing"
)

func TestAssignRiskLevelBands(t *testing.T) {
	thresholds := DefaultThresholds(MetricPfPR)
	for _, tc := range []struct {
		value float64
		want  string
	}{
		{0, RiskVeryLow},
		{0.9, RiskVeryLow},
		{1, RiskLow}, // bands are half-open
		{9.99, RiskLow},
		{10, RiskModerate},
		{35, RiskHigh},
		{99, RiskHigh},
	} {
		if got := AssignRiskLevel(tc.value, thresholds); got != tc.want {
			t.Errorf("AssignRiskLevel(%v) = %s, want %s", tc.value, got, tc.want)
		}
	}
}

func TestAssignRiskLevelUnmatchedDefaultsToHigh(t *testing.T) {
	thresholds := Thresholds{
		RiskVeryLow: {Min: 0, Max: 1},
		RiskLow:     {Min: 1, Max: 10},
	}
	if got := AssignRiskLevel(50, thresholds); got != RiskHigh {
		t.Fatalf("expected high for uncovered value, got %s", got)
	}
}

func TestEligibleInterventions(t *testing.T) {
	if got := EligibleInterventions(RiskVeryLow, MetricPfPR, nil); !reflect.DeepEqual(got, []string{"CM"}) {
		t.Fatalf("very_low: %v", got)
	}
	if got := EligibleInterventions(RiskLow, MetricPfPR, nil); !reflect.DeepEqual(got, []string{"CM", "ITN", "IPTp"}) {
		t.Fatalf("low: %v", got)
	}
	want := []string{"CM", "ITN", "IRS", "IPTp", "SMC", "VACCINE"}
	if got := EligibleInterventions(RiskHigh, MetricPfPR, nil); !reflect.DeepEqual(got, want) {
		t.Fatalf("high: %v", got)
	}
	if got := EligibleInterventions(RiskModerate, MetricPfPR, nil); !reflect.DeepEqual(got, want) {
		t.Fatalf("moderate: %v", got)
	}
}

func TestEligibleInterventionsIgnoresMetricAndUnit(t *testing.T) {
	base := EligibleInterventions(RiskHigh, MetricPfPR, nil)
	withUnit := EligibleInterventions(RiskHigh, MetricEIR, map[string]any{"population": int64(1)})
	if !reflect.DeepEqual(base, withUnit) {
		t.Fatalf("metric and unit data must not change eligibility: %v vs %v", base, withUnit)
	}
}

func TestValidators(t *testing.T) {
	for _, level := range []string{RiskVeryLow, RiskLow, RiskModerate, RiskHigh} {
		if !ValidRiskLevel(level) {
			t.Errorf("expected %s valid", level)
		}
	}
	if ValidRiskLevel("extreme") {
		t.Error("expected extreme invalid")
	}
	for _, m := range []string{MetricPfPR, MetricIncidence, MetricEIR} {
		if !ValidMetric(m) {
			t.Errorf("expected %s valid", m)
		}
	}
	if ValidMetric("rainfall") {
		t.Error("expected rainfall invalid")
	}
}

func TestDefaultThresholdsPerMetric(t *testing.T) {
	if DefaultThresholds(MetricEIR) != nil {
		t.Fatal("expected no built-in bands for eir")
	}
	inc := DefaultThresholds(MetricIncidence)
	if got := AssignRiskLevel(300, inc); got != RiskModerate {
		t.Fatalf("expected moderate for incidence 300, got %s", got)
	}
}
