package quality

import (
	"strings"
	"testing"
)

func mustTable(t *testing.T, csv string) Table {
	t.Helper()
	table, err := FromCSV(strings.NewReader(csv))
	if err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	return table
}

func TestFromCSVPadsShortRecords(t *testing.T) {
	table := mustTable(t, "district,cases,deaths\nKano,1200\nKaduna,800,4\n")
	if len(table.Columns) != 3 || len(table.Rows) != 2 {
		t.Fatalf("unexpected shape: %v / %d rows", table.Columns, len(table.Rows))
	}
	if !table.Missing(0, 2) {
		t.Fatal("expected padded cell to be missing")
	}
	if v, ok := table.Float(1, 2); !ok || v != 4 {
		t.Fatalf("expected deaths 4, got %v %v", v, ok)
	}
}

func TestFromCSVEmptyDocument(t *testing.T) {
	if _, err := FromCSV(strings.NewReader("")); err == nil {
		t.Fatal("expected error for empty document")
	}
}

func TestMissingMarkers(t *testing.T) {
	table := mustTable(t, "cases\n10\nNA\nNaN\n\n")
	for _, row := range []int{1, 2, 3} {
		if !table.Missing(row, 0) {
			t.Fatalf("expected row %d missing", row)
		}
	}
	if table.Missing(0, 0) {
		t.Fatal("expected row 0 present")
	}
}

func TestCheckCompleteness(t *testing.T) {
	clean := mustTable(t, "district,cases\nKano,1200\nKaduna,800\n")
	c := CheckCompletenessOf(clean)
	if c.Score != 1 || c.Issues != 0 {
		t.Fatalf("expected perfect score, got %+v", c)
	}

	// one of four cells missing: 25% overall, 50% of the cases column
	gappy := mustTable(t, "district,cases\nKano,1200\nKaduna,\n")
	c = CheckCompletenessOf(gappy)
	if c.Score != 0.75 {
		t.Fatalf("expected score 0.75, got %v", c.Score)
	}
	if c.Issues != 1 {
		t.Fatalf("expected the cases column flagged, got %d issues", c.Issues)
	}
}

func TestCheckConsistencyRules(t *testing.T) {
	table := mustTable(t, "district,cases,deaths,coverage_pct\nKano,100,150,80\nKaduna,200,3,120\n")
	c := CheckConsistencyOf(table)
	// deaths>cases and coverage out of range
	if c.Issues != 2 {
		t.Fatalf("expected 2 issues, got %d (%v)", c.Issues, c.Details)
	}
	if c.Score != 0.7 {
		t.Fatalf("expected score 0.7, got %v", c.Score)
	}
	if _, ok := c.Details["deaths_gt_cases"]; !ok {
		t.Fatalf("expected deaths_gt_cases detail, got %v", c.Details)
	}
}

func TestCheckConsistencyNegativeCounts(t *testing.T) {
	table := mustTable(t, "district,population\nKano,-5\n")
	c := CheckConsistencyOf(table)
	if c.Issues != 1 {
		t.Fatalf("expected negative population flagged, got %+v", c)
	}
}

func TestCheckDuplicates(t *testing.T) {
	table := mustTable(t, "district,cases\nKano,100\nKano,100\nKaduna,200\nKaduna,200\n")
	c := CheckDuplicatesOf(table)
	if c.Issues != 1 {
		t.Fatalf("expected duplicates flagged, got %+v", c)
	}
	// 2 of 4 rows are duplicates: 50% fills the whole penalty band
	if c.Score != 0 {
		t.Fatalf("expected zero score at 50%% duplication, got %v", c.Score)
	}
}

func TestCheckDisaggregationExpectations(t *testing.T) {
	table := mustTable(t, "district,cases,sex\nKano,100,Male\nKaduna,200,Female\n")
	c := CheckDisaggregationOf(table, Expectations{Age: true, Sex: true, Geography: true})
	// sex and geography present, age expected but absent
	if c.Issues != 1 {
		t.Fatalf("expected one issue, got %d (%v)", c.Issues, c.Details)
	}
	if c.Details["has_sex"] != true || c.Details["has_geography"] != true {
		t.Fatalf("unexpected details: %v", c.Details)
	}

	bad := mustTable(t, "district,sex\nKano,Martian\n")
	c = CheckDisaggregationOf(bad, Expectations{})
	if c.Issues != 1 {
		t.Fatalf("expected invalid sex value flagged, got %+v", c)
	}
}

func TestStatusBands(t *testing.T) {
	for _, tc := range []struct {
		score float64
		want  string
	}{
		{0.2, StatusFailed},
		{0.5, StatusWarning},
		{0.79, StatusWarning},
		{0.8, StatusPassed},
		{1.0, StatusPassed},
	} {
		if got := StatusFor(tc.score); got != tc.want {
			t.Errorf("StatusFor(%v) = %s, want %s", tc.score, got, tc.want)
		}
	}
}

func TestRunAllAveragesScores(t *testing.T) {
	table := mustTable(t, "district,cases,deaths\nKano,1200,6\nKaduna,800,4\nZamfara,950,5\n")
	report := RunAll(table, Expectations{})
	if len(report.Checks) != 5 {
		t.Fatalf("expected 5 checks, got %d", len(report.Checks))
	}
	if report.OverallScore != 1 {
		t.Fatalf("expected perfect score for clean data, got %v", report.OverallScore)
	}
	for _, c := range report.Checks {
		if c.Status != StatusPassed {
			t.Fatalf("expected all checks passed, got %+v", c)
		}
	}
	if len(report.Recommendations) != 0 {
		t.Fatalf("expected no recommendations, got %v", report.Recommendations)
	}
}
