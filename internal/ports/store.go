package ports

import (
	"context"
	"errors"
	"time"

	"qubeless/internal/domain/analysis"
)

var (
	ErrProjectNotFound  = errors.New("project not found")
	ErrAnalysisNotFound = errors.New("analysis not found")
)

type Project struct {
	ProjectID       string
	Key             string
	Name            string
	LeakPeriodType  analysis.LeakPeriodType
	LeakPeriodValue string
}

type Branch struct {
	BranchID  string
	ProjectID string
	Name      string
}

type PullRequest struct {
	PullRequestID  string
	ProjectID      string
	Number         int
	TargetBranchID string
}

type Analysis struct {
	AnalysisID            string
	ProjectID             string
	BranchID              *string
	PullRequestID         *string
	CommitSHA             string
	Status                analysis.Status
	BaselineAnalysisID    *string
	StartedAt             *time.Time
	FinishedAt            *time.Time
	DebtRatio             float64
	RemediationCost       float64
	MaintainabilityRating string
	CreatedAt             time.Time
}

type AnalysisCreate struct {
	AnalysisID         string
	ProjectID          string
	BranchID           *string
	PullRequestID      *string
	CommitSHA          string
	BaselineAnalysisID *string
}

type AnalysisSuccess struct {
	AnalysisID      string
	FinishedAt      time.Time
	DebtRatio       float64
	RemediationCost float64
	Rating          analysis.Rating
}

type Issue struct {
	IssueID            string
	AnalysisID         string
	AnalyzerKey        string
	RuleKey            string
	Severity           analysis.Severity
	Type               analysis.IssueType
	FilePath           string
	Line               *int
	Message            string
	Fingerprint        string
	IsNew              bool
	BaselineAnalysisID *string
	Status             analysis.IssueStatus
}

type IssueCreate struct {
	AnalysisID         string
	AnalyzerKey        string
	RuleKey            string
	Severity           analysis.Severity
	Type               analysis.IssueType
	FilePath           string
	Line               *int
	Message            string
	Fingerprint        string
	IsNew              bool
	BaselineAnalysisID *string
}

type ArtifactUpsert struct {
	AnalysisID  string
	AnalyzerKey string
	Kind        analysis.ArtifactKind
	Bucket      string
	ObjectKey   string
	ContentType string
}

type MetricCreate struct {
	AnalysisID string
	ProjectID  string
	BranchID   *string
	MetricKey  string
	Value      float64
}

type QualityGate struct {
	GateID     string
	ProjectID  string
	Name       string
	Conditions []analysis.GateCondition
}

type RuleUpsert struct {
	AnalyzerKey string
	RuleKey     string
	Name        string
	Description string
	Severity    string
	Type        string
}

// BaselineQuery selects the most recent prior SUCCESS analysis. Exactly
// one of BranchID/PullRequestID is set; CreatedAtOrBefore narrows the
// DATE leak-period strategy.
type BaselineQuery struct {
	ProjectID         string
	BranchID          *string
	PullRequestID     *string
	ExcludeAnalysisID string
	CreatedAtOrBefore *time.Time
}

// Store is the typed relational boundary of the execution core.
type Store interface {
	GetProjectByKey(ctx context.Context, key string) (Project, error)
	GetBranch(ctx context.Context, projectID, name string) (Branch, bool, error)
	EnsureBranch(ctx context.Context, projectID, name string) (Branch, error)
	GetPullRequest(ctx context.Context, pullRequestID string) (PullRequest, bool, error)

	CreateAnalysis(ctx context.Context, create AnalysisCreate) (Analysis, error)
	GetAnalysis(ctx context.Context, analysisID string) (Analysis, error)
	// MarkAnalysisRunning transitions PENDING -> RUNNING; it is a no-op
	// when the analysis already left PENDING.
	MarkAnalysisRunning(ctx context.Context, analysisID string, startedAt time.Time) error
	// FinalizeAnalysisSuccess transitions to SUCCESS and records the debt
	// figures; terminal states never regress.
	FinalizeAnalysisSuccess(ctx context.Context, success AnalysisSuccess) error
	// MarkAnalysisFailed transitions to FAILED; terminal states never regress.
	MarkAnalysisFailed(ctx context.Context, analysisID string, finishedAt time.Time) error
	FindLatestSuccess(ctx context.Context, query BaselineQuery) (Analysis, bool, error)

	// BulkInsertIssues skips rows whose (analysis_id, fingerprint) already
	// exists, making retried jobs idempotent at the issue level.
	BulkInsertIssues(ctx context.Context, issues []IssueCreate) error
	ListIssues(ctx context.Context, analysisID string) ([]Issue, error)
	ListIssueFingerprints(ctx context.Context, analysisID string) ([]string, error)

	UpsertArtifact(ctx context.Context, artifact ArtifactUpsert) error

	InsertMetrics(ctx context.Context, metrics []MetricCreate) error
	ListMetricValues(ctx context.Context, analysisID string) (map[string]float64, error)

	GetQualityGate(ctx context.Context, projectID string) (QualityGate, bool, error)

	ListDisabledRuleKeys(ctx context.Context, projectID string) ([]string, error)
	// UpsertRules registers analyzer-reported catalog entries; duplicate
	// keys are tolerated and never fail the pipeline.
	UpsertRules(ctx context.Context, rules []RuleUpsert) error
}
