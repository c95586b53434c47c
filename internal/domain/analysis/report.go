package analysis

import (
	"encoding/json"
	"fmt"
)

// Report is the analyzer output contract read from report.json.
type Report struct {
	Analyzer AnalyzerInfo  `json:"analyzer"`
	Issues   []ReportIssue `json:"issues"`
	Rules    []ReportRule  `json:"rules,omitempty"`
}

type AnalyzerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type ReportIssue struct {
	RuleKey         string `json:"ruleKey"`
	Severity        string `json:"severity"`
	Type            string `json:"type"`
	FilePath        string `json:"filePath"`
	Line            *int   `json:"line,omitempty"`
	Message         string `json:"message"`
	Fingerprint     string `json:"fingerprint"`
	RuleName        string `json:"ruleName,omitempty"`
	RuleDescription string `json:"ruleDescription,omitempty"`
}

type ReportRule struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	Type        string `json:"type"`
}

// Measures is the analyzer output contract read from measures.json.
type Measures struct {
	Metrics map[string]float64 `json:"metrics"`
}

func EmptyReport() Report {
	return Report{Issues: []ReportIssue{}}
}

func EmptyMeasures() Measures {
	return Measures{Metrics: map[string]float64{}}
}

// DecodeReport parses and validates report.json bytes. Callers substitute
// EmptyReport on any error: a missing or corrupt report is a degenerate
// zero-finding result, not a failed run.
func DecodeReport(data []byte) (Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}

	for i, issue := range r.Issues {
		if issue.RuleKey == "" {
			return Report{}, fmt.Errorf("issue %d: ruleKey is required", i)
		}
		if issue.FilePath == "" {
			return Report{}, fmt.Errorf("issue %d: filePath is required", i)
		}
		if issue.Message == "" {
			return Report{}, fmt.Errorf("issue %d: message is required", i)
		}
		if _, ok := ParseSeverity(issue.Severity); !ok {
			return Report{}, fmt.Errorf("issue %d: unknown severity %q", i, issue.Severity)
		}
		if _, ok := ParseIssueType(issue.Type); !ok {
			return Report{}, fmt.Errorf("issue %d: unknown type %q", i, issue.Type)
		}
		if issue.Line != nil && *issue.Line < 1 {
			return Report{}, fmt.Errorf("issue %d: line must be >= 1", i)
		}
	}

	if r.Issues == nil {
		r.Issues = []ReportIssue{}
	}
	return r, nil
}

// DecodeMeasures parses and validates measures.json bytes. Callers
// substitute EmptyMeasures on any error.
func DecodeMeasures(data []byte) (Measures, error) {
	var m Measures
	if err := json.Unmarshal(data, &m); err != nil {
		return Measures{}, fmt.Errorf("decode measures: %w", err)
	}
	if m.Metrics == nil {
		m.Metrics = map[string]float64{}
	}
	return m, nil
}
