// Package quality runs automated data quality checks over tabular
// datasets, following WHO data assessment guidance.
package quality

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Check types.
const (
	CheckCompleteness   = "completeness"
	CheckConsistency    = "consistency"
	CheckOutliers       = "outliers"
	CheckDisaggregation = "disaggregation"
	CheckDuplicates     = "duplicates"
)

// Check statuses.
const (
	StatusPassed  = "passed"
	StatusWarning = "warning"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// Expectations declares which disaggregations a dataset is supposed to
// carry.
type Expectations struct {
	Age       bool `json:"age"`
	Sex       bool `json:"sex"`
	Geography bool `json:"geography"`
}

// Check is the outcome of one quality check.
type Check struct {
	Type    string         `json:"check_type"`
	Status  string         `json:"status"`
	Score   float64        `json:"score"`
	Issues  int            `json:"issues_found"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Report aggregates all checks for one dataset.
type Report struct {
	OverallScore    float64  `json:"overall_score"`
	Checks          []Check  `json:"checks"`
	Recommendations []string `json:"recommendations"`
}

// StatusFor bands a score: below 0.5 failed, below 0.8 warning, else
// passed.
func StatusFor(score float64) string {
	switch {
	case score < 0.5:
		return StatusFailed
	case score < 0.8:
		return StatusWarning
	default:
		return StatusPassed
	}
}

// RunAll executes every check against the table and builds the report.
// The overall score is the unweighted mean of the check scores.
func RunAll(t Table, expected Expectations) Report {
	checks := []Check{
		CheckCompletenessOf(t),
		CheckConsistencyOf(t),
		CheckOutliersOf(t),
		CheckDisaggregationOf(t, expected),
		CheckDuplicatesOf(t),
	}

	var sum float64
	for i := range checks {
		checks[i].Status = StatusFor(checks[i].Score)
		sum += checks[i].Score
	}

	return Report{
		OverallScore:    sum / float64(len(checks)),
		Checks:          checks,
		Recommendations: Recommendations(checks),
	}
}

// Recommendations derives follow-up actions from check outcomes.
func Recommendations(checks []Check) []string {
	var recs []string
	for _, c := range checks {
		if c.Score < 0.7 {
			recs = append(recs, fmt.Sprintf("Improve %s: score is %.0f%%", c.Type, c.Score*100))
		}
		if c.Issues > 0 {
			recs = append(recs, fmt.Sprintf("Review %d issues in %s check", c.Issues, c.Type))
		}
	}
	return recs
}

// CheckCompletenessOf scores the share of populated cells and flags
// columns missing more than 10% of their values.
func CheckCompletenessOf(t Table) Check {
	totalCells := len(t.Rows) * len(t.Columns)
	missingCells := 0
	columnMissing := map[string]any{}
	issues := 0

	for col, name := range t.Columns {
		colMissing := 0
		for row := range t.Rows {
			if t.Missing(row, col) {
				colMissing++
			}
		}
		missingCells += colMissing
		if colMissing > 0 && len(t.Rows) > 0 {
			colPct := float64(colMissing) / float64(len(t.Rows)) * 100
			columnMissing[name] = map[string]any{
				"missing_count": colMissing,
				"missing_pct":   round1(colPct),
			}
			if colPct > 10 {
				issues++
			}
		}
	}

	missingPct := 0.0
	if totalCells > 0 {
		missingPct = float64(missingCells) / float64(totalCells) * 100
	}

	return Check{
		Type:    CheckCompleteness,
		Score:   round3(math.Max(0, 1-missingPct/100)),
		Issues:  issues,
		Message: fmt.Sprintf("%.1f%% of data cells are missing", missingPct),
		Details: map[string]any{
			"overall_missing_pct": round1(missingPct),
			"columns":             columnMissing,
		},
	}
}

// CheckConsistencyOf applies logical cross-field rules: deaths cannot
// exceed cases, case subtotals cannot exceed totals, coverage must stay
// within 0-100, and count columns cannot go negative. Each violated rule
// costs 0.15.
func CheckConsistencyOf(t Table) Check {
	issues := 0
	details := map[string]any{}

	casesCol := t.ColumnIndex("cases")
	deathsCol := t.ColumnIndex("deaths")
	if casesCol >= 0 && deathsCol >= 0 {
		count := 0
		for row := range t.Rows {
			deaths, ok1 := t.Float(row, deathsCol)
			cases, ok2 := t.Float(row, casesCol)
			if ok1 && ok2 && deaths > cases {
				count++
			}
		}
		if count > 0 {
			issues++
			details["deaths_gt_cases"] = count
		}
	}

	totalCol := t.ColumnIndex("total_cases")
	confirmedCol := t.ColumnIndex("confirmed_cases")
	presumedCol := t.ColumnIndex("presumed_cases")
	if totalCol >= 0 && confirmedCol >= 0 && presumedCol >= 0 {
		count := 0
		for row := range t.Rows {
			total, ok1 := t.Float(row, totalCol)
			confirmed, ok2 := t.Float(row, confirmedCol)
			presumed, ok3 := t.Float(row, presumedCol)
			if ok1 && ok2 && ok3 && total < confirmed+presumed {
				count++
			}
		}
		if count > 0 {
			issues++
			details["total_lt_sum"] = count
		}
	}

	for col, name := range t.Columns {
		if !strings.Contains(strings.ToLower(name), "coverage") || !t.Numeric(col) {
			continue
		}
		count := 0
		for row := range t.Rows {
			if v, ok := t.Float(row, col); ok && (v < 0 || v > 100) {
				count++
			}
		}
		if count > 0 {
			issues++
			details["invalid_"+name] = count
		}
	}

	countKeywords := []string{"cases", "deaths", "population", "tests"}
	for col, name := range t.Columns {
		lower := strings.ToLower(name)
		matched := false
		for _, kw := range countKeywords {
			if strings.Contains(lower, kw) {
				matched = true
				break
			}
		}
		if !matched || !t.Numeric(col) {
			continue
		}
		count := 0
		for row := range t.Rows {
			if v, ok := t.Float(row, col); ok && v < 0 {
				count++
			}
		}
		if count > 0 {
			issues++
			details["negative_"+name] = count
		}
	}

	message := "No consistency issues found"
	if issues > 0 {
		message = fmt.Sprintf("%d consistency issues found", issues)
	}

	return Check{
		Type:    CheckConsistency,
		Score:   round3(math.Max(0, 1-float64(issues)*0.15)),
		Issues:  issues,
		Message: message,
		Details: details,
	}
}

// outlierExclude lists identifier-like columns the IQR scan skips.
var outlierExclude = map[string]bool{
	"id": true, "year": true, "month": true, "day": true, "date": true, "code": true,
}

// CheckOutliersOf flags numeric columns where more than 5% of rows fall
// outside three interquartile ranges from the quartiles.
func CheckOutliersOf(t Table) Check {
	issues := 0
	details := map[string]any{}

	for col, name := range t.Columns {
		if outlierExclude[strings.ToLower(name)] || !t.Numeric(col) {
			continue
		}
		values := t.FloatColumn(col)
		if len(values) == 0 {
			continue
		}
		q1 := quantile(values, 0.25)
		q3 := quantile(values, 0.75)
		iqr := q3 - q1
		if iqr == 0 {
			continue
		}

		outliers := 0
		for _, v := range values {
			if v < q1-3*iqr || v > q3+3*iqr {
				outliers++
			}
		}
		if outliers == 0 {
			continue
		}
		outlierPct := float64(outliers) / float64(len(t.Rows)) * 100
		if outlierPct > 5 {
			issues++
		}
		details[name] = map[string]any{
			"outlier_count": outliers,
			"outlier_pct":   round1(outlierPct),
			"q1":            round2(q1),
			"q3":            round2(q3),
			"iqr":           round2(iqr),
		}
	}

	message := "No significant outliers detected"
	if issues > 0 {
		message = fmt.Sprintf("%d columns with significant outliers", issues)
	}

	return Check{
		Type:    CheckOutliers,
		Score:   round3(math.Max(0, 1-float64(issues)*0.1)),
		Issues:  issues,
		Message: message,
		Details: details,
	}
}

// validSexValues is the accepted vocabulary for sex columns.
var validSexValues = map[string]bool{
	"Male": true, "Female": true, "M": true, "F": true, "male": true, "female": true,
}

// CheckDisaggregationOf verifies the dataset carries the age, sex, and
// geography breakdowns it is expected to, and that sex values use the
// standard vocabulary.
func CheckDisaggregationOf(t Table, expected Expectations) Check {
	issues := 0
	details := map[string]any{"has_age": false, "has_sex": false, "has_geography": false}

	hasAge := false
	for _, name := range t.Columns {
		if strings.Contains(strings.ToLower(name), "age") {
			hasAge = true
			break
		}
	}
	if hasAge {
		details["has_age"] = true
	} else if expected.Age {
		issues++
	}

	var sexCols []int
	for col, name := range t.Columns {
		switch strings.ToLower(name) {
		case "sex", "gender":
			sexCols = append(sexCols, col)
		}
	}
	if len(sexCols) > 0 {
		details["has_sex"] = true
		for _, col := range sexCols {
			invalid := 0
			for row := range t.Rows {
				if t.Missing(row, col) {
					continue
				}
				if !validSexValues[t.Cell(row, col)] {
					invalid++
				}
			}
			if invalid > 0 {
				issues++
				details["invalid_sex_values"] = invalid
			}
		}
	} else if expected.Sex {
		issues++
	}

	hasGeo := false
	for _, name := range t.Columns {
		switch strings.ToLower(name) {
		case "district", "region", "province", "admin1", "admin2":
			hasGeo = true
		}
	}
	if hasGeo {
		details["has_geography"] = true
	} else if expected.Geography {
		issues++
	}

	message := "Disaggregation checks passed"
	if issues > 0 {
		message = fmt.Sprintf("%d disaggregation issues found", issues)
	}

	return Check{
		Type:    CheckDisaggregation,
		Score:   round3(math.Max(0, 1-float64(issues)*0.2)),
		Issues:  issues,
		Message: message,
		Details: details,
	}
}

// CheckDuplicatesOf counts exact duplicate rows beyond their first
// occurrence. A dataset that is half duplicates scores zero.
func CheckDuplicatesOf(t Table) Check {
	seen := make(map[string]bool, len(t.Rows))
	dupCount := 0
	for _, row := range t.Rows {
		key := strings.Join(row, "\x1f")
		if seen[key] {
			dupCount++
		} else {
			seen[key] = true
		}
	}

	dupPct := 0.0
	if len(t.Rows) > 0 {
		dupPct = float64(dupCount) / float64(len(t.Rows)) * 100
	}

	issues := 0
	if dupCount > 0 {
		issues = 1
	}

	return Check{
		Type:    CheckDuplicates,
		Score:   round3(math.Max(0, 1-dupPct/50)),
		Issues:  issues,
		Message: fmt.Sprintf("%d duplicate rows found (%.1f%%)", dupCount, dupPct),
		Details: map[string]any{
			"duplicate_count": dupCount,
			"duplicate_pct":   round1(dupPct),
		},
	}
}

// quantile interpolates linearly between order statistics.
func quantile(values []float64, q float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + (sorted[hi]-sorted[lo])*frac
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }
func round2(v float64) float64 { return math.Round(v*100) / 100 }
func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
