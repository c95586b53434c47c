package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"qubeless/internal/bootstrap/logging"
	"qubeless/internal/errs"
	"qubeless/internal/ports"
)

type EnqueueResult struct {
	AnalysisID         string
	JobID              string
	BaselineAnalysisID string
}

// EnqueueAnalysis creates the PENDING analysis row, stamps its baseline
// once, and puts the job on the durable queue. This is the operator/debug
// entry point; the production enqueuer is the external API.
func (s *Service) EnqueueAnalysis(ctx context.Context, payload ports.JobPayload) (EnqueueResult, error) {
	if ctx == nil {
		return EnqueueResult{}, errors.New("context is required")
	}
	if s.store == nil {
		return EnqueueResult{}, errStoreRequired
	}
	if s.queue == nil {
		return EnqueueResult{}, errQueueRequired
	}
	if payload.ProjectKey == "" {
		return EnqueueResult{}, errors.New("project key is required")
	}
	if payload.CommitSHA == "" {
		return EnqueueResult{}, errors.New("commit sha is required")
	}
	if (payload.BranchName == "") == (payload.PullRequestID == "") {
		return EnqueueResult{}, errors.New("exactly one of branchName and pullRequestId is required")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "pipeline.enqueue"))

	project, err := s.store.GetProjectByKey(ctx, payload.ProjectKey)
	if err != nil {
		return EnqueueResult{}, errs.Wrap(err, "load project")
	}

	create := ports.AnalysisCreate{
		AnalysisID: payload.AnalysisID,
		ProjectID:  project.ProjectID,
		CommitSHA:  payload.CommitSHA,
	}
	if create.AnalysisID == "" {
		create.AnalysisID = uuid.NewString()
	}

	// The baseline id is stamped exactly once, here, at creation time.
	baselineQuery := ports.BaselineQuery{ProjectID: project.ProjectID}
	if payload.PullRequestID != "" {
		pr, found, err := s.store.GetPullRequest(ctx, payload.PullRequestID)
		if err != nil {
			return EnqueueResult{}, errs.Wrap(err, "load pull request")
		}
		if !found {
			return EnqueueResult{}, fmt.Errorf("pull request %q not found", payload.PullRequestID)
		}
		create.PullRequestID = &pr.PullRequestID
		baselineQuery.BranchID = &pr.TargetBranchID
	} else {
		branch, err := s.store.EnsureBranch(ctx, project.ProjectID, payload.BranchName)
		if err != nil {
			return EnqueueResult{}, errs.Wrap(err, "ensure branch")
		}
		create.BranchID = &branch.BranchID
		baselineQuery.BranchID = &branch.BranchID
	}

	baseline, found, err := s.store.FindLatestSuccess(ctx, baselineQuery)
	if err != nil {
		return EnqueueResult{}, errs.Wrap(err, "resolve creation-time baseline")
	}
	if found {
		create.BaselineAnalysisID = &baseline.AnalysisID
	}

	created, err := s.store.CreateAnalysis(ctx, create)
	if err != nil {
		return EnqueueResult{}, errs.Wrap(err, "create analysis")
	}

	payload.AnalysisID = created.AnalysisID
	jobID, err := s.queue.Enqueue(ctx, payload)
	if err != nil {
		return EnqueueResult{}, errs.Wrap(err, "enqueue job")
	}

	result := EnqueueResult{AnalysisID: created.AnalysisID, JobID: jobID}
	if created.BaselineAnalysisID != nil {
		result.BaselineAnalysisID = *created.BaselineAnalysisID
	}

	logging.Info(logCtx, "analysis enqueued",
		slog.String("analysis_id", result.AnalysisID),
		slog.String("job_id", result.JobID),
		slog.String("baseline_analysis_id", result.BaselineAnalysisID),
	)
	return result, nil
}
