package analysis

import "strings"

// Severity orders findings from informational to release-blocking.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityMinor    Severity = "MINOR"
	SeverityMajor    Severity = "MAJOR"
	SeverityCritical Severity = "CRITICAL"
	SeverityBlocker  Severity = "BLOCKER"
)

func ParseSeverity(raw string) (Severity, bool) {
	s := Severity(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case SeverityInfo, SeverityMinor, SeverityMajor, SeverityCritical, SeverityBlocker:
		return s, true
	}
	return "", false
}

type IssueType string

const (
	IssueTypeBug           IssueType = "BUG"
	IssueTypeVulnerability IssueType = "VULNERABILITY"
	IssueTypeCodeSmell     IssueType = "CODE_SMELL"
)

func ParseIssueType(raw string) (IssueType, bool) {
	t := IssueType(strings.ToUpper(strings.TrimSpace(raw)))
	switch t {
	case IssueTypeBug, IssueTypeVulnerability, IssueTypeCodeSmell:
		return t, true
	}
	return "", false
}

// Status lifecycle: PENDING -> RUNNING -> SUCCESS | FAILED.
// Terminal states never regress.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusRunning Status = "RUNNING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

type IssueStatus string

const IssueStatusOpen IssueStatus = "OPEN"

type ArtifactKind string

const (
	ArtifactReport    ArtifactKind = "REPORT"
	ArtifactMeasures  ArtifactKind = "MEASURES"
	ArtifactLog       ArtifactKind = "LOG"
	ArtifactSourceZip ArtifactKind = "SOURCE_ZIP"
)

type GateOperator string

const (
	OperatorGT GateOperator = "GT"
	OperatorLT GateOperator = "LT"
	OperatorEQ GateOperator = "EQ"
)

type GateScope string

const (
	ScopeAll GateScope = "ALL"
	ScopeNew GateScope = "NEW"
)

type GateStatus string

const (
	GateStatusPass    GateStatus = "PASS"
	GateStatusFail    GateStatus = "FAIL"
	GateStatusUnknown GateStatus = "UNKNOWN"
)

type Rating string

const (
	RatingA Rating = "A"
	RatingB Rating = "B"
	RatingC Rating = "C"
	RatingD Rating = "D"
	RatingE Rating = "E"
)

// LeakPeriodType selects the legacy fallback baseline strategy for a
// project when the enqueueing side did not stamp an explicit baseline id.
type LeakPeriodType string

const (
	LeakPeriodLastAnalysis LeakPeriodType = "LAST_ANALYSIS"
	LeakPeriodDate         LeakPeriodType = "DATE"
	LeakPeriodBaseBranch   LeakPeriodType = "BASE_BRANCH"
)

// ExecutionErrorType classifies a failed analyzer run.
type ExecutionErrorType string

const (
	ExecErrTimeout  ExecutionErrorType = "timeout"
	ExecErrOOM      ExecutionErrorType = "oom"
	ExecErrDocker   ExecutionErrorType = "docker"
	ExecErrExitCode ExecutionErrorType = "exit_code"
	ExecErrUnknown  ExecutionErrorType = "unknown"
)
