package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"qubeless/internal/domain/analysis"
	"qubeless/internal/errs"
	"qubeless/internal/infrastructure/persistence/sqlite/model"
	"qubeless/internal/ports"
)

type AnalysisRepository struct {
	db *gorm.DB
}

func NewAnalysisRepository(db *gorm.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

func (r *AnalysisRepository) dbFromContext(ctx context.Context) (*gorm.DB, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}

	tx := ports.TxFromContext(ctx)
	if tx == nil {
		return r.db.WithContext(ctx), nil
	}

	gormTx, ok := tx.(*gorm.DB)
	if !ok || gormTx == nil {
		return nil, fmt.Errorf("invalid tx in context: %T", tx)
	}
	return gormTx.WithContext(ctx), nil
}

func (r *AnalysisRepository) GetProjectByKey(ctx context.Context, key string) (ports.Project, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Project{}, err
	}

	var row model.Project
	if err := db.Where("key = ?", key).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Project{}, fmt.Errorf("project %q: %w", key, ports.ErrProjectNotFound)
		}
		return ports.Project{}, errs.Wrap(err, "query project")
	}

	return ports.Project{
		ProjectID:       row.ProjectID,
		Key:             row.Key,
		Name:            row.Name,
		LeakPeriodType:  analysis.LeakPeriodType(row.LeakPeriodType),
		LeakPeriodValue: row.LeakPeriodValue,
	}, nil
}

func (r *AnalysisRepository) GetBranch(ctx context.Context, projectID, name string) (ports.Branch, bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Branch{}, false, err
	}

	var row model.Branch
	if err := db.Where("project_id = ? AND name = ?", projectID, name).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Branch{}, false, nil
		}
		return ports.Branch{}, false, errs.Wrap(err, "query branch")
	}

	return ports.Branch{BranchID: row.BranchID, ProjectID: row.ProjectID, Name: row.Name}, true, nil
}

func (r *AnalysisRepository) EnsureBranch(ctx context.Context, projectID, name string) (ports.Branch, error) {
	branch, found, err := r.GetBranch(ctx, projectID, name)
	if err != nil {
		return ports.Branch{}, err
	}
	if found {
		return branch, nil
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Branch{}, err
	}

	row := model.Branch{BranchID: uuid.NewString(), ProjectID: projectID, Name: name}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return ports.Branch{}, errs.Wrap(err, "create branch")
	}

	// Re-read in case a concurrent insert won the conflict.
	branch, _, err = r.GetBranch(ctx, projectID, name)
	if err != nil {
		return ports.Branch{}, err
	}
	return branch, nil
}

func (r *AnalysisRepository) GetPullRequest(ctx context.Context, pullRequestID string) (ports.PullRequest, bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.PullRequest{}, false, err
	}

	var row model.PullRequest
	if err := db.Where("pull_request_id = ?", pullRequestID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.PullRequest{}, false, nil
		}
		return ports.PullRequest{}, false, errs.Wrap(err, "query pull request")
	}

	return ports.PullRequest{
		PullRequestID:  row.PullRequestID,
		ProjectID:      row.ProjectID,
		Number:         row.Number,
		TargetBranchID: row.TargetBranchID,
	}, true, nil
}

func (r *AnalysisRepository) CreateAnalysis(ctx context.Context, create ports.AnalysisCreate) (ports.Analysis, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Analysis{}, err
	}

	if (create.BranchID == nil) == (create.PullRequestID == nil) {
		return ports.Analysis{}, errors.New("exactly one of branch id and pull request id is required")
	}

	analysisID := create.AnalysisID
	if analysisID == "" {
		analysisID = uuid.NewString()
	}

	row := model.Analysis{
		AnalysisID:         analysisID,
		ProjectID:          create.ProjectID,
		BranchID:           create.BranchID,
		PullRequestID:      create.PullRequestID,
		CommitSHA:          create.CommitSHA,
		Status:             string(analysis.StatusPending),
		BaselineAnalysisID: create.BaselineAnalysisID,
		CreatedAt:          time.Now().UTC(),
	}
	if err := db.Create(&row).Error; err != nil {
		return ports.Analysis{}, errs.Wrap(err, "create analysis")
	}
	return mapAnalysis(row), nil
}

func (r *AnalysisRepository) GetAnalysis(ctx context.Context, analysisID string) (ports.Analysis, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Analysis{}, err
	}

	var row model.Analysis
	if err := db.Where("analysis_id = ?", analysisID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Analysis{}, fmt.Errorf("analysis %q: %w", analysisID, ports.ErrAnalysisNotFound)
		}
		return ports.Analysis{}, errs.Wrap(err, "query analysis")
	}
	return mapAnalysis(row), nil
}

func (r *AnalysisRepository) MarkAnalysisRunning(ctx context.Context, analysisID string, startedAt time.Time) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	err = db.Model(&model.Analysis{}).
		Where("analysis_id = ? AND status = ?", analysisID, string(analysis.StatusPending)).
		Updates(map[string]any{
			"status":     string(analysis.StatusRunning),
			"started_at": startedAt,
		}).Error
	if err != nil {
		return errs.Wrap(err, "mark analysis running")
	}
	return nil
}

func (r *AnalysisRepository) FinalizeAnalysisSuccess(ctx context.Context, success ports.AnalysisSuccess) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	err = db.Model(&model.Analysis{}).
		Where("analysis_id = ? AND status NOT IN ?", success.AnalysisID, terminalStatuses()).
		Updates(map[string]any{
			"status":                 string(analysis.StatusSuccess),
			"finished_at":            success.FinishedAt,
			"debt_ratio":             success.DebtRatio,
			"remediation_cost":       success.RemediationCost,
			"maintainability_rating": string(success.Rating),
		}).Error
	if err != nil {
		return errs.Wrap(err, "finalize analysis success")
	}
	return nil
}

func (r *AnalysisRepository) MarkAnalysisFailed(ctx context.Context, analysisID string, finishedAt time.Time) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	err = db.Model(&model.Analysis{}).
		Where("analysis_id = ? AND status NOT IN ?", analysisID, terminalStatuses()).
		Updates(map[string]any{
			"status":      string(analysis.StatusFailed),
			"finished_at": finishedAt,
		}).Error
	if err != nil {
		return errs.Wrap(err, "mark analysis failed")
	}
	return nil
}

func (r *AnalysisRepository) FindLatestSuccess(ctx context.Context, query ports.BaselineQuery) (ports.Analysis, bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.Analysis{}, false, err
	}

	q := db.Model(&model.Analysis{}).
		Where("project_id = ? AND status = ?", query.ProjectID, string(analysis.StatusSuccess))
	if query.ExcludeAnalysisID != "" {
		q = q.Where("analysis_id <> ?", query.ExcludeAnalysisID)
	}
	switch {
	case query.BranchID != nil:
		q = q.Where("branch_id = ?", *query.BranchID)
	case query.PullRequestID != nil:
		q = q.Where("pull_request_id = ?", *query.PullRequestID)
	default:
		return ports.Analysis{}, false, errors.New("baseline query needs a branch or pull request id")
	}
	if query.CreatedAtOrBefore != nil {
		q = q.Where("created_at <= ?", *query.CreatedAtOrBefore)
	}

	var row model.Analysis
	err = q.Order("finished_at desc").Order("created_at desc").First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Analysis{}, false, nil
		}
		return ports.Analysis{}, false, errs.Wrap(err, "query baseline analysis")
	}
	return mapAnalysis(row), true, nil
}

func (r *AnalysisRepository) BulkInsertIssues(ctx context.Context, issues []ports.IssueCreate) error {
	if len(issues) == 0 {
		return nil
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	rows := make([]model.Issue, 0, len(issues))
	for _, issue := range issues {
		rows = append(rows, model.Issue{
			IssueID:            uuid.NewString(),
			AnalysisID:         issue.AnalysisID,
			AnalyzerKey:        issue.AnalyzerKey,
			RuleKey:            issue.RuleKey,
			Severity:           string(issue.Severity),
			Type:               string(issue.Type),
			FilePath:           issue.FilePath,
			Line:               issue.Line,
			Message:            issue.Message,
			Fingerprint:        issue.Fingerprint,
			IsNew:              issue.IsNew,
			BaselineAnalysisID: issue.BaselineAnalysisID,
			Status:             string(analysis.IssueStatusOpen),
		})
	}

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		return errs.Wrap(err, "bulk insert issues")
	}
	return nil
}

func (r *AnalysisRepository) ListIssues(ctx context.Context, analysisID string) ([]ports.Issue, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.Issue
	if err := db.Where("analysis_id = ?", analysisID).Order("issue_id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query issues")
	}

	items := make([]ports.Issue, 0, len(rows))
	for _, row := range rows {
		items = append(items, ports.Issue{
			IssueID:            row.IssueID,
			AnalysisID:         row.AnalysisID,
			AnalyzerKey:        row.AnalyzerKey,
			RuleKey:            row.RuleKey,
			Severity:           analysis.Severity(row.Severity),
			Type:               analysis.IssueType(row.Type),
			FilePath:           row.FilePath,
			Line:               row.Line,
			Message:            row.Message,
			Fingerprint:        row.Fingerprint,
			IsNew:              row.IsNew,
			BaselineAnalysisID: row.BaselineAnalysisID,
			Status:             analysis.IssueStatus(row.Status),
		})
	}
	return items, nil
}

func (r *AnalysisRepository) ListIssueFingerprints(ctx context.Context, analysisID string) ([]string, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var fingerprints []string
	err = db.Model(&model.Issue{}).
		Where("analysis_id = ?", analysisID).
		Pluck("fingerprint", &fingerprints).Error
	if err != nil {
		return nil, errs.Wrap(err, "query issue fingerprints")
	}
	return fingerprints, nil
}

func (r *AnalysisRepository) UpsertArtifact(ctx context.Context, artifact ports.ArtifactUpsert) error {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	row := model.AnalysisArtifact{
		ArtifactID:  uuid.NewString(),
		AnalysisID:  artifact.AnalysisID,
		AnalyzerKey: artifact.AnalyzerKey,
		Kind:        string(artifact.Kind),
		Bucket:      artifact.Bucket,
		ObjectKey:   artifact.ObjectKey,
		ContentType: artifact.ContentType,
	}

	err = db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "analysis_id"}, {Name: "analyzer_key"}, {Name: "kind"}},
		DoUpdates: clause.AssignmentColumns([]string{"bucket", "object_key", "content_type"}),
	}).Create(&row).Error
	if err != nil {
		return errs.Wrap(err, "upsert artifact")
	}
	return nil
}

func (r *AnalysisRepository) InsertMetrics(ctx context.Context, metrics []ports.MetricCreate) error {
	if len(metrics) == 0 {
		return nil
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	rows := make([]model.AnalysisMetric, 0, len(metrics))
	for _, metric := range metrics {
		rows = append(rows, model.AnalysisMetric{
			MetricID:   uuid.NewString(),
			AnalysisID: metric.AnalysisID,
			ProjectID:  metric.ProjectID,
			BranchID:   metric.BranchID,
			MetricKey:  metric.MetricKey,
			Value:      metric.Value,
		})
	}

	if err := db.Create(&rows).Error; err != nil {
		return errs.Wrap(err, "insert metrics")
	}
	return nil
}

func (r *AnalysisRepository) ListMetricValues(ctx context.Context, analysisID string) (map[string]float64, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var rows []model.AnalysisMetric
	if err := db.Where("analysis_id = ?", analysisID).Order("metric_id asc").Find(&rows).Error; err != nil {
		return nil, errs.Wrap(err, "query metrics")
	}

	values := make(map[string]float64, len(rows))
	for _, row := range rows {
		values[row.MetricKey] = row.Value
	}
	return values, nil
}

func (r *AnalysisRepository) GetQualityGate(ctx context.Context, projectID string) (ports.QualityGate, bool, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return ports.QualityGate{}, false, err
	}

	var gateRow model.QualityGate
	if err := db.Where("project_id = ?", projectID).First(&gateRow).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.QualityGate{}, false, nil
		}
		return ports.QualityGate{}, false, errs.Wrap(err, "query quality gate")
	}

	var conditionRows []model.QualityGateCondition
	if err := db.Where("gate_id = ?", gateRow.GateID).Order("condition_id asc").Find(&conditionRows).Error; err != nil {
		return ports.QualityGate{}, false, errs.Wrap(err, "query gate conditions")
	}

	gate := ports.QualityGate{
		GateID:     gateRow.GateID,
		ProjectID:  gateRow.ProjectID,
		Name:       gateRow.Name,
		Conditions: make([]analysis.GateCondition, 0, len(conditionRows)),
	}
	for _, row := range conditionRows {
		scope := analysis.GateScope(row.Scope)
		if scope != analysis.ScopeNew {
			scope = analysis.ScopeAll
		}
		gate.Conditions = append(gate.Conditions, analysis.GateCondition{
			MetricKey: row.MetricKey,
			Operator:  analysis.GateOperator(row.Operator),
			Threshold: row.Threshold,
			Scope:     scope,
		})
	}
	return gate, true, nil
}

func (r *AnalysisRepository) ListDisabledRuleKeys(ctx context.Context, projectID string) ([]string, error) {
	db, err := r.dbFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var keys []string
	err = db.Model(&model.RuleProfileRule{}).
		Where("project_id = ? AND enabled = ?", projectID, false).
		Pluck("rule_key", &keys).Error
	if err != nil {
		return nil, errs.Wrap(err, "query disabled rule keys")
	}
	return keys, nil
}

func (r *AnalysisRepository) UpsertRules(ctx context.Context, rules []ports.RuleUpsert) error {
	if len(rules) == 0 {
		return nil
	}

	db, err := r.dbFromContext(ctx)
	if err != nil {
		return err
	}

	rows := make([]model.Rule, 0, len(rules))
	for _, rule := range rules {
		rows = append(rows, model.Rule{
			RuleID:      uuid.NewString(),
			AnalyzerKey: rule.AnalyzerKey,
			RuleKey:     rule.RuleKey,
			Name:        rule.Name,
			Description: rule.Description,
			Severity:    rule.Severity,
			Type:        rule.Type,
		})
	}

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
		return errs.Wrap(err, "upsert rules")
	}
	return nil
}

func terminalStatuses() []string {
	return []string{string(analysis.StatusSuccess), string(analysis.StatusFailed)}
}

func mapAnalysis(row model.Analysis) ports.Analysis {
	return ports.Analysis{
		AnalysisID:            row.AnalysisID,
		ProjectID:             row.ProjectID,
		BranchID:              row.BranchID,
		PullRequestID:         row.PullRequestID,
		CommitSHA:             row.CommitSHA,
		Status:                analysis.Status(row.Status),
		BaselineAnalysisID:    row.BaselineAnalysisID,
		StartedAt:             row.StartedAt,
		FinishedAt:            row.FinishedAt,
		DebtRatio:             row.DebtRatio,
		RemediationCost:       row.RemediationCost,
		MaintainabilityRating: row.MaintainabilityRating,
		CreatedAt:             row.CreatedAt,
	}
}
