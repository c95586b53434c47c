package pipeline

import (
	"context"
	"log/slog"

	"qubeless/internal/bootstrap/logging"
	"qubeless/internal/domain/analysis"
	"qubeless/internal/errs"
	"qubeless/internal/ports"
)

// persistAnalyzerIssues runs one analyzer's report through the rule
// filter and the baseline differ, then bulk-inserts the survivors.
// Returns the facts of the persisted issues for metric aggregation.
func (s *Service) persistAnalyzerIssues(
	ctx context.Context,
	current ports.Analysis,
	project ports.Project,
	analyzerKey string,
	report analysis.Report,
	baseline analysis.BaselineResolution,
	disabledRules map[string]struct{},
) ([]analysis.IssueFacts, error) {
	s.registerRules(ctx, analyzerKey, report)

	creates := make([]ports.IssueCreate, 0, len(report.Issues))
	facts := make([]analysis.IssueFacts, 0, len(report.Issues))

	for _, issue := range report.Issues {
		// Disabled rules are dropped entirely: never persisted, never
		// counted in any metric.
		if _, disabled := disabledRules[issue.RuleKey]; disabled {
			continue
		}

		severity, _ := analysis.ParseSeverity(issue.Severity)
		issueType, _ := analysis.ParseIssueType(issue.Type)

		fingerprint := issue.Fingerprint
		if fingerprint == "" {
			fingerprint = analysis.Fingerprint(project.Key, issue.RuleKey, issue.FilePath, issue.Message, issue.Line)
		}

		isNew := baseline.IsNew(fingerprint)

		creates = append(creates, ports.IssueCreate{
			AnalysisID:         current.AnalysisID,
			AnalyzerKey:        analyzerKey,
			RuleKey:            issue.RuleKey,
			Severity:           severity,
			Type:               issueType,
			FilePath:           issue.FilePath,
			Line:               issue.Line,
			Message:            issue.Message,
			Fingerprint:        fingerprint,
			IsNew:              isNew,
			BaselineAnalysisID: current.BaselineAnalysisID,
		})
		facts = append(facts, analysis.IssueFacts{Severity: severity, Type: issueType, IsNew: isNew})
	}

	err := s.uow.WithTx(ctx, func(txCtx context.Context) error {
		return s.store.BulkInsertIssues(txCtx, creates)
	})
	if err != nil {
		return nil, errs.Wrap(err, "persist issues")
	}
	return facts, nil
}

// registerRules upserts analyzer-reported catalog entries so filtering
// and listing can reference them. Registration never fails the pipeline.
func (s *Service) registerRules(ctx context.Context, analyzerKey string, report analysis.Report) {
	seen := make(map[string]struct{}, len(report.Rules))
	upserts := make([]ports.RuleUpsert, 0, len(report.Rules))

	for _, rule := range report.Rules {
		if rule.Key == "" {
			continue
		}
		if _, dup := seen[rule.Key]; dup {
			continue
		}
		seen[rule.Key] = struct{}{}
		upserts = append(upserts, ports.RuleUpsert{
			AnalyzerKey: analyzerKey,
			RuleKey:     rule.Key,
			Name:        rule.Name,
			Description: rule.Description,
			Severity:    rule.Severity,
			Type:        rule.Type,
		})
	}

	// Issues may carry inline rule metadata for rules absent from the
	// catalog block.
	for _, issue := range report.Issues {
		if issue.RuleName == "" {
			continue
		}
		if _, dup := seen[issue.RuleKey]; dup {
			continue
		}
		seen[issue.RuleKey] = struct{}{}
		upserts = append(upserts, ports.RuleUpsert{
			AnalyzerKey: analyzerKey,
			RuleKey:     issue.RuleKey,
			Name:        issue.RuleName,
			Description: issue.RuleDescription,
			Severity:    issue.Severity,
			Type:        issue.Type,
		})
	}

	if err := s.store.UpsertRules(ctx, upserts); err != nil {
		logging.Warn(ctx, "rule registration failed",
			slog.String("analyzer", analyzerKey),
			slog.Any("err", errs.Loggable(err)),
		)
	}
}
