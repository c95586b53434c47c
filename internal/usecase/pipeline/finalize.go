package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"

	"qubeless/internal/bootstrap/logging"
	"qubeless/internal/domain/analysis"
	"qubeless/internal/errs"
	"qubeless/internal/ports"
)

// finalizeSuccess persists the aggregated metrics, evaluates the quality
// gate, computes technical debt and transitions the analysis to SUCCESS.
// The ordering is load-bearing: metrics before gate, gate before debt;
// the debt ratio only becomes gate-evaluable in the next analysis.
func (s *Service) finalizeSuccess(
	ctx context.Context,
	current ports.Analysis,
	project ports.Project,
	payload ports.JobPayload,
	aggregate map[string]float64,
) error {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "pipeline.finalize"))

	analysis.NormalizeAliases(aggregate)
	if err := s.store.InsertMetrics(ctx, s.metricRows(current, aggregate)); err != nil {
		return errs.Wrap(err, "persist aggregated metrics")
	}

	gateResult, err := s.EvaluateGateForAnalysis(ctx, current.AnalysisID)
	if err != nil {
		return errs.Wrap(err, "evaluate quality gate")
	}

	debt, err := s.computeDebt(ctx, current)
	if err != nil {
		return errs.Wrap(err, "compute technical debt")
	}

	debtRow := ports.MetricCreate{
		AnalysisID: current.AnalysisID,
		ProjectID:  current.ProjectID,
		BranchID:   current.BranchID,
		MetricKey:  analysis.MetricDebtRatio,
		Value:      debt.DebtRatio,
	}
	if err := s.store.InsertMetrics(ctx, []ports.MetricCreate{debtRow}); err != nil {
		return errs.Wrap(err, "persist debt ratio metric")
	}

	err = s.store.FinalizeAnalysisSuccess(ctx, ports.AnalysisSuccess{
		AnalysisID:      current.AnalysisID,
		FinishedAt:      s.now(),
		DebtRatio:       debt.DebtRatio,
		RemediationCost: debt.RemediationCost,
		Rating:          debt.Rating,
	})
	if err != nil {
		return errs.Wrap(err, "finalize analysis")
	}

	logging.Info(logCtx, "analysis succeeded",
		slog.String("gate_status", string(gateResult.Status)),
		slog.Float64("debt_ratio", debt.DebtRatio),
		slog.String("rating", string(debt.Rating)),
	)

	switch gateResult.Status {
	case analysis.GateStatusFail:
		s.publishStatus(logCtx, payload, ports.StatusStateFailure, "quality gate failed")
	case analysis.GateStatusPass:
		s.publishStatus(logCtx, payload, ports.StatusStateSuccess, "quality gate passed")
	default:
		s.publishStatus(logCtx, payload, ports.StatusStateSuccess, "analysis completed, no quality gate configured")
	}
	return nil
}

// FinalizeFailure marks the analysis FAILED after the last allowed
// attempt and publishes the error status.
func (s *Service) FinalizeFailure(ctx context.Context, job ports.Job, cause error) error {
	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "pipeline.finalize"),
		slog.String("analysis_id", job.AnalysisID),
	)

	if err := s.store.MarkAnalysisFailed(ctx, job.AnalysisID, s.now()); err != nil {
		return errs.Wrap(err, "mark analysis failed")
	}

	logging.Error(logCtx, "analysis failed terminally", slog.Any("err", errs.Loggable(cause)))
	s.publishStatus(logCtx, job.Payload, ports.StatusStateError, "analysis failed")
	return nil
}

// EvaluateGateForAnalysis re-runs the quality gate from stored state.
// It is read-only and deterministic given the issue set and metric rows,
// so external callers can invoke it on demand.
func (s *Service) EvaluateGateForAnalysis(ctx context.Context, analysisID string) (analysis.GateResult, error) {
	current, err := s.store.GetAnalysis(ctx, analysisID)
	if err != nil {
		return analysis.GateResult{}, errs.Wrap(err, "load analysis")
	}

	gate, found, err := s.store.GetQualityGate(ctx, current.ProjectID)
	if err != nil {
		return analysis.GateResult{}, errs.Wrap(err, "load quality gate")
	}
	if !found {
		return analysis.GateResult{Status: analysis.GateStatusUnknown}, nil
	}

	issues, err := s.store.ListIssues(ctx, analysisID)
	if err != nil {
		return analysis.GateResult{}, errs.Wrap(err, "load issues")
	}
	facts := make([]analysis.IssueFacts, 0, len(issues))
	for _, issue := range issues {
		facts = append(facts, analysis.IssueFacts{
			Severity: issue.Severity,
			Type:     issue.Type,
			IsNew:    issue.IsNew,
		})
	}

	stored, err := s.store.ListMetricValues(ctx, analysisID)
	if err != nil {
		return analysis.GateResult{}, errs.Wrap(err, "load stored metrics")
	}

	allMetrics, newMetrics := analysis.ScopeBreakdown(facts, stored)
	return analysis.EvaluateGate(gate.Conditions, allMetrics, newMetrics), nil
}

func (s *Service) computeDebt(ctx context.Context, current ports.Analysis) (analysis.DebtResult, error) {
	issues, err := s.store.ListIssues(ctx, current.AnalysisID)
	if err != nil {
		return analysis.DebtResult{}, errs.Wrap(err, "load issues")
	}

	severities := make([]analysis.Severity, 0, len(issues))
	for _, issue := range issues {
		if issue.Status != analysis.IssueStatusOpen {
			continue
		}
		severities = append(severities, issue.Severity)
	}

	stored, err := s.store.ListMetricValues(ctx, current.AnalysisID)
	if err != nil {
		return analysis.DebtResult{}, errs.Wrap(err, "load stored metrics")
	}
	linesOfCode := stored[analysis.MetricLinesOfCode]

	return analysis.ComputeDebt(severities, linesOfCode), nil
}

func (s *Service) metricRows(current ports.Analysis, values map[string]float64) []ports.MetricCreate {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([]ports.MetricCreate, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, ports.MetricCreate{
			AnalysisID: current.AnalysisID,
			ProjectID:  current.ProjectID,
			BranchID:   current.BranchID,
			MetricKey:  key,
			Value:      values[key],
		})
	}
	return rows
}

func (s *Service) writeJSONArtifact(ctx context.Context, analysisID, analyzerKey string, kind analysis.ArtifactKind, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errs.Wrapf(err, "marshal %s artifact", kind)
	}
	return s.writeArtifact(ctx, analysisID, analyzerKey, kind, data)
}
