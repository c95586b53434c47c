package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"qubeless/internal/bootstrap/logging"
	"qubeless/internal/domain/analysis"
	"qubeless/internal/errs"
	"qubeless/internal/ports"
)

// resolveBaseline selects the prior successful analysis whose issue
// fingerprints define "pre-existing". The explicit baseline id stamped
// at creation time is the primary path; the per-project leak-period
// strategies are the legacy fallback.
func (s *Service) resolveBaseline(ctx context.Context, current ports.Analysis, project ports.Project) (analysis.BaselineResolution, error) {
	if current.BaselineAnalysisID != nil && *current.BaselineAnalysisID != "" {
		return s.baselineFromAnalysisID(ctx, *current.BaselineAnalysisID)
	}

	baselineID, found, err := s.fallbackBaselineID(ctx, current, project)
	if err != nil {
		return analysis.NoBaseline(), err
	}
	if !found {
		return analysis.NoBaseline(), nil
	}
	return s.baselineFromAnalysisID(ctx, baselineID)
}

func (s *Service) baselineFromAnalysisID(ctx context.Context, baselineID string) (analysis.BaselineResolution, error) {
	fingerprints, err := s.store.ListIssueFingerprints(ctx, baselineID)
	if err != nil {
		return analysis.NoBaseline(), errs.Wrap(err, "load baseline fingerprints")
	}
	return analysis.ResolvedBaseline(baselineID, fingerprints), nil
}

func (s *Service) fallbackBaselineID(ctx context.Context, current ports.Analysis, project ports.Project) (string, bool, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "pipeline.baseline"))

	// Pull-request analyses diff against the target branch, not their
	// own (nonexistent) branch.
	branchID := current.BranchID
	if current.PullRequestID != nil {
		pr, found, err := s.store.GetPullRequest(ctx, *current.PullRequestID)
		if err != nil {
			return "", false, errs.Wrap(err, "load pull request")
		}
		if !found {
			return "", false, nil
		}
		branchID = &pr.TargetBranchID
	}

	query := ports.BaselineQuery{
		ProjectID:         current.ProjectID,
		BranchID:          branchID,
		ExcludeAnalysisID: current.AnalysisID,
	}

	switch project.LeakPeriodType {
	case analysis.LeakPeriodDate:
		cutoff, err := time.Parse(time.RFC3339, project.LeakPeriodValue)
		if err != nil {
			// Date-only form without a time component.
			cutoff, err = time.Parse("2006-01-02", project.LeakPeriodValue)
		}
		if err != nil {
			logging.Warn(logCtx, "unparseable leak period date, no baseline",
				slog.String("value", project.LeakPeriodValue))
			return "", false, nil
		}
		query.CreatedAtOrBefore = &cutoff

	case analysis.LeakPeriodBaseBranch:
		base, found, err := s.store.GetBranch(ctx, current.ProjectID, project.LeakPeriodValue)
		if err != nil {
			return "", false, errs.Wrap(err, "load base branch")
		}
		if !found {
			return "", false, nil
		}
		query.BranchID = &base.BranchID

	case analysis.LeakPeriodLastAnalysis, "":
		// Default strategy: most recent prior success on the same scope.

	default:
		return "", false, errors.New("unknown leak period type " + string(project.LeakPeriodType))
	}

	if query.BranchID == nil {
		return "", false, nil
	}

	baseline, found, err := s.store.FindLatestSuccess(ctx, query)
	if err != nil {
		return "", false, errs.Wrap(err, "query fallback baseline")
	}
	if !found {
		return "", false, nil
	}
	return baseline.AnalysisID, true, nil
}
