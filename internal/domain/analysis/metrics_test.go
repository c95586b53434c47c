package analysis

import "testing"

func TestFallbackMeasures(t *testing.T) {
	issues := []IssueFacts{
		{Severity: SeverityCritical, Type: IssueTypeBug},
		{Severity: SeverityCritical, Type: IssueTypeVulnerability},
		{Severity: SeverityMinor, Type: IssueTypeCodeSmell},
	}
	m := FallbackMeasures(issues)

	if m["total_issues"] != 3 {
		t.Fatalf("FallbackMeasures() total_issues = %v, want 3", m["total_issues"])
	}
	if m["critical_issues"] != 2 {
		t.Fatalf("FallbackMeasures() critical_issues = %v, want 2", m["critical_issues"])
	}
	if m["minor_issues"] != 1 {
		t.Fatalf("FallbackMeasures() minor_issues = %v, want 1", m["minor_issues"])
	}
	if m["blocker_issues"] != 0 {
		t.Fatalf("FallbackMeasures() blocker_issues = %v, want 0", m["blocker_issues"])
	}
	if m["vulnerability_issues"] != 1 {
		t.Fatalf("FallbackMeasures() vulnerability_issues = %v, want 1", m["vulnerability_issues"])
	}
}

func TestMergeMeasures(t *testing.T) {
	dst := map[string]float64{"total_issues": 2, "coverage": 80}
	MergeMeasures(dst, map[string]float64{"total_issues": 3, "lines_of_code": 1200})

	if dst["total_issues"] != 5 {
		t.Fatalf("MergeMeasures() total_issues = %v, want 5", dst["total_issues"])
	}
	if dst["coverage"] != 80 {
		t.Fatalf("MergeMeasures() coverage = %v, want 80", dst["coverage"])
	}
	if dst["lines_of_code"] != 1200 {
		t.Fatalf("MergeMeasures() lines_of_code = %v, want 1200", dst["lines_of_code"])
	}
}

func TestNormalizeAliases(t *testing.T) {
	m := map[string]float64{
		"total_issues":  7,
		"issues_major":  2,
		"issues_total":  99, // present on both sides, must not be overwritten
		"lines_of_code": 500,
	}
	NormalizeAliases(m)

	if m["issues_total"] != 99 {
		t.Fatalf("NormalizeAliases() overwrote issues_total = %v, want 99", m["issues_total"])
	}
	if m["major_issues"] != 2 {
		t.Fatalf("NormalizeAliases() major_issues = %v, want 2", m["major_issues"])
	}
	if m["issues_critical"] != 0 {
		t.Fatalf("NormalizeAliases() invented issues_critical = %v", m["issues_critical"])
	}
	if m["lines_of_code"] != 500 {
		t.Fatalf("NormalizeAliases() lines_of_code = %v, want 500", m["lines_of_code"])
	}
}

func TestScopeBreakdown(t *testing.T) {
	issues := []IssueFacts{
		{Severity: SeverityCritical, Type: IssueTypeBug, IsNew: true},
		{Severity: SeverityMajor, Type: IssueTypeCodeSmell, IsNew: false},
		{Severity: SeverityMajor, Type: IssueTypeCodeSmell, IsNew: true},
	}
	stored := map[string]float64{"coverage": 81.5, "new_coverage": 64, "lines_of_code": 2000}

	all, newScope := ScopeBreakdown(issues, stored)

	if all["total_issues"] != 3 {
		t.Fatalf("ScopeBreakdown() all total = %v, want 3", all["total_issues"])
	}
	if newScope["total_issues"] != 2 {
		t.Fatalf("ScopeBreakdown() new total = %v, want 2", newScope["total_issues"])
	}
	if newScope["issues_critical"] != 1 {
		t.Fatalf("ScopeBreakdown() new issues_critical = %v, want 1", newScope["issues_critical"])
	}
	if all["code_smell_issues"] != 2 {
		t.Fatalf("ScopeBreakdown() all code_smell_issues = %v, want 2", all["code_smell_issues"])
	}
	if all["coverage"] != 81.5 {
		t.Fatalf("ScopeBreakdown() all coverage = %v, want 81.5", all["coverage"])
	}
	if _, ok := all["new_coverage"]; ok {
		t.Fatalf("ScopeBreakdown() leaked new_coverage into ALL scope")
	}
	if newScope["new_coverage"] != 64 {
		t.Fatalf("ScopeBreakdown() new_coverage = %v, want 64", newScope["new_coverage"])
	}
	if all["lines_of_code"] != 2000 {
		t.Fatalf("ScopeBreakdown() all lines_of_code = %v, want 2000", all["lines_of_code"])
	}
}

func TestScopeBreakdownStoredMetricsMerged(t *testing.T) {
	issues := []IssueFacts{
		{Severity: SeverityCritical, Type: IssueTypeBug, IsNew: true},
	}
	stored := map[string]float64{
		"debt_ratio":   10,
		"total_issues": 99,
		"new_coverage": 50,
	}

	all, newScope := ScopeBreakdown(issues, stored)

	if all["debt_ratio"] != 10 {
		t.Fatalf("ScopeBreakdown() all debt_ratio = %v, want 10", all["debt_ratio"])
	}
	if all["total_issues"] != 1 {
		t.Fatalf("ScopeBreakdown() stored total_issues clobbered issue count: %v, want 1", all["total_issues"])
	}
	if _, ok := all["new_coverage"]; ok {
		t.Fatalf("ScopeBreakdown() leaked new_coverage into ALL scope")
	}
	if newScope["new_coverage"] != 50 {
		t.Fatalf("ScopeBreakdown() new_coverage = %v, want 50", newScope["new_coverage"])
	}
}

func TestScopeBreakdownNoIssues(t *testing.T) {
	all, newScope := ScopeBreakdown(nil, nil)
	if all["total_issues"] != 0 || newScope["total_issues"] != 0 {
		t.Fatalf("ScopeBreakdown() totals = %v/%v, want 0/0", all["total_issues"], newScope["total_issues"])
	}
	if all["issues_total"] != 0 {
		t.Fatalf("ScopeBreakdown() alias issues_total missing")
	}
}
