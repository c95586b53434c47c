package analysis

import "strings"

// Canonical metric keys and their legacy aliases. Analyzers ship either
// spelling; normalization populates both so gate conditions can reference
// whichever a project was configured with.
var metricAliases = map[string]string{
	"total_issues":         "issues_total",
	"blocker_issues":       "issues_blocker",
	"critical_issues":      "issues_critical",
	"major_issues":         "issues_major",
	"minor_issues":         "issues_minor",
	"info_issues":          "issues_info",
	"bug_issues":           "issues_bug",
	"vulnerability_issues": "issues_vulnerability",
	"code_smell_issues":    "issues_code_smell",
}

var severityMetricKey = map[Severity]string{
	SeverityBlocker:  "blocker_issues",
	SeverityCritical: "critical_issues",
	SeverityMajor:    "major_issues",
	SeverityMinor:    "minor_issues",
	SeverityInfo:     "info_issues",
}

var typeMetricKey = map[IssueType]string{
	IssueTypeBug:           "bug_issues",
	IssueTypeVulnerability: "vulnerability_issues",
	IssueTypeCodeSmell:     "code_smell_issues",
}

// IssueFacts is the slice of an issue the metric computations need.
type IssueFacts struct {
	Severity Severity
	Type     IssueType
	IsNew    bool
}

// MergeMeasures sums src into dst per key.
func MergeMeasures(dst map[string]float64, src map[string]float64) {
	for key, value := range src {
		dst[key] += value
	}
}

// FallbackMeasures derives analyzer measures from its issue list, used
// when the analyzer supplied no measures.json of its own.
func FallbackMeasures(issues []IssueFacts) map[string]float64 {
	m := map[string]float64{"total_issues": float64(len(issues))}
	for _, key := range severityMetricKey {
		m[key] = 0
	}
	m["vulnerability_issues"] = 0

	for _, issue := range issues {
		if key, ok := severityMetricKey[issue.Severity]; ok {
			m[key]++
		}
		if issue.Type == IssueTypeVulnerability {
			m["vulnerability_issues"]++
		}
	}
	return m
}

// NormalizeAliases fills the missing spelling of every aliased metric.
// Present values win; only absent counterparts are populated.
func NormalizeAliases(m map[string]float64) {
	for canonical, legacy := range metricAliases {
		cv, hasCanonical := m[canonical]
		lv, hasLegacy := m[legacy]
		switch {
		case hasCanonical && !hasLegacy:
			m[legacy] = cv
		case hasLegacy && !hasCanonical:
			m[canonical] = lv
		}
	}
}

// ScopeBreakdown computes the ALL and NEW metric snapshots directly from
// persisted issues, then merges the stored metric rows on top so gate
// conditions can reference coverage, lines_of_code, debt_ratio and other
// analyzer-supplied values. Keys prefixed "new_" land in the NEW scope,
// everything else in ALL. Issue-derived counts win on key collision.
func ScopeBreakdown(issues []IssueFacts, stored map[string]float64) (all map[string]float64, newScope map[string]float64) {
	all = scopeCounts(issues, false)
	newScope = scopeCounts(issues, true)

	for key, value := range stored {
		target := all
		if strings.HasPrefix(key, "new_") {
			target = newScope
		}
		if _, fromIssues := target[key]; !fromIssues {
			target[key] = value
		}
	}

	NormalizeAliases(all)
	NormalizeAliases(newScope)
	return all, newScope
}

func scopeCounts(issues []IssueFacts, newOnly bool) map[string]float64 {
	m := map[string]float64{"total_issues": 0}
	for _, key := range severityMetricKey {
		m[key] = 0
	}
	for _, key := range typeMetricKey {
		m[key] = 0
	}

	for _, issue := range issues {
		if newOnly && !issue.IsNew {
			continue
		}
		m["total_issues"]++
		if key, ok := severityMetricKey[issue.Severity]; ok {
			m[key]++
		}
		if key, ok := typeMetricKey[issue.Type]; ok {
			m[key]++
		}
	}
	return m
}
