package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"qubeless/internal/bootstrap/logging"
	"qubeless/internal/domain/analysis"
	"qubeless/internal/errs"
	"qubeless/internal/ports"
)

// ProcessJob runs one attempt of one analysis job end to end: baseline
// resolution, the sequential analyzer loop, metric aggregation, gate
// evaluation and debt calculation. Any analyzer failure aborts the whole
// job; no partial gate evaluation happens on partial analyzer output.
func (s *Service) ProcessJob(ctx context.Context, job ports.Job) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if s.store == nil {
		return errStoreRequired
	}
	if s.executor == nil {
		return errExecutorRequired
	}

	logCtx := logging.WithAttrs(ctx,
		slog.String("component", "pipeline.orchestrator"),
		slog.String("analysis_id", job.AnalysisID),
		slog.Int("attempt", job.Attempts),
	)

	current, err := s.store.GetAnalysis(ctx, job.AnalysisID)
	if err != nil {
		return errs.Wrap(err, "load analysis")
	}
	if current.Status.Terminal() {
		logging.Warn(logCtx, "analysis already terminal, skipping job",
			slog.String("status", string(current.Status)))
		return nil
	}

	project, err := s.store.GetProjectByKey(ctx, job.Payload.ProjectKey)
	if err != nil {
		return errs.Wrap(err, "load project")
	}

	if job.Attempts == 1 {
		if err := s.store.MarkAnalysisRunning(ctx, current.AnalysisID, s.now()); err != nil {
			return errs.Wrap(err, "transition analysis to running")
		}
		s.publishStatus(logCtx, job.Payload, ports.StatusStatePending, "analysis in progress")
	}

	baseline, err := s.resolveBaseline(ctx, current, project)
	if err != nil {
		return errs.Wrap(err, "resolve baseline")
	}
	logging.Info(logCtx, "baseline resolved",
		slog.Bool("resolved", baseline.Resolved),
		slog.String("baseline_analysis_id", baseline.AnalysisID),
		slog.Int("baseline_fingerprints", len(baseline.Fingerprints)),
	)

	workspaceDir, cleanup, err := s.prepareWorkspace(ctx, job)
	if err != nil {
		return errs.Wrap(err, "prepare workspace")
	}
	defer cleanup()

	if job.Payload.SourceObjectKey != "" {
		err := s.store.UpsertArtifact(ctx, ports.ArtifactUpsert{
			AnalysisID:  current.AnalysisID,
			AnalyzerKey: "workspace",
			Kind:        analysis.ArtifactSourceZip,
			Bucket:      s.storage.Bucket(),
			ObjectKey:   job.Payload.SourceObjectKey,
			ContentType: artifactContentType[analysis.ArtifactSourceZip],
		})
		if err != nil {
			return errs.Wrap(err, "record source artifact")
		}
	}

	disabledKeys, err := s.store.ListDisabledRuleKeys(ctx, project.ProjectID)
	if err != nil {
		return errs.Wrap(err, "load disabled rules")
	}
	disabledRules := make(map[string]struct{}, len(disabledKeys))
	for _, key := range disabledKeys {
		disabledRules[key] = struct{}{}
	}

	// Analyzers run strictly sequentially; the first failure is fatal to
	// the attempt.
	aggregate := map[string]float64{}
	for _, analyzer := range job.Payload.Analyzers {
		facts, measures, err := s.runAnalyzer(logCtx, job, current, project, analyzer, workspaceDir, baseline, disabledRules)
		if err != nil {
			return err
		}

		if len(measures) > 0 {
			analysis.MergeMeasures(aggregate, measures)
		} else {
			analysis.MergeMeasures(aggregate, analysis.FallbackMeasures(facts))
		}
	}

	// A zero-analyzer job is a trivial success but still leaves its
	// degenerate artifacts behind.
	if len(job.Payload.Analyzers) == 0 && s.storage != nil {
		if err := s.writeJSONArtifact(logCtx, current.AnalysisID, "aggregate", analysis.ArtifactReport, analysis.EmptyReport()); err != nil {
			return err
		}
		if err := s.writeJSONArtifact(logCtx, current.AnalysisID, "aggregate", analysis.ArtifactMeasures, analysis.EmptyMeasures()); err != nil {
			return err
		}
	}

	return s.finalizeSuccess(logCtx, current, project, job.Payload, aggregate)
}

func (s *Service) runAnalyzer(
	ctx context.Context,
	job ports.Job,
	current ports.Analysis,
	project ports.Project,
	analyzer ports.AnalyzerSpec,
	workspaceDir string,
	baseline analysis.BaselineResolution,
	disabledRules map[string]struct{},
) ([]analysis.IssueFacts, map[string]float64, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("analyzer", analyzer.Key))

	runDir := filepath.Join(s.defaults.WorkDir, job.JobID, analyzer.Key)
	outputDir := filepath.Join(runDir, "out")
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, nil, errs.Wrap(err, "create analyzer output directory")
	}
	logPath := filepath.Join(runDir, "analyzer.log")

	result, err := s.executor.Run(ctx, ports.ExecutionSpec{
		Image:        analyzer.DockerImage,
		WorkspaceDir: workspaceDir,
		OutputDir:    outputDir,
		Env: map[string]string{
			"ANALYSIS_ID":     current.AnalysisID,
			"PROJECT_KEY":     project.Key,
			"COMMIT_SHA":      current.CommitSHA,
			"ANALYZER_KEY":    analyzer.Key,
			"ANALYZER_CONFIG": analyzer.ConfigJSON,
		},
		Timeout:          s.defaults.Timeout,
		MemoryLimitBytes: s.defaults.MemoryLimitBytes,
		CPULimit:         s.defaults.CPULimit,
		LogPath:          logPath,
	})

	// The log artifact is written regardless of outcome; its loss is
	// never the reason a run fails.
	s.uploadLog(logCtx, current.AnalysisID, analyzer.Key, logPath)

	if err != nil {
		return nil, nil, &ExecutionError{
			AnalyzerKey: analyzer.Key,
			Type:        analysis.ExecErrUnknown,
			Message:     err.Error(),
		}
	}
	if !result.Success {
		return nil, nil, &ExecutionError{
			AnalyzerKey: analyzer.Key,
			Type:        result.ErrorType,
			Message:     result.Message,
		}
	}

	report := s.loadReport(logCtx, outputDir)
	measures := s.loadMeasures(logCtx, outputDir)

	facts, err := s.persistAnalyzerIssues(ctx, current, project, analyzer.Key, report, baseline, disabledRules)
	if err != nil {
		return nil, nil, err
	}

	// The defaulted values are persisted too: a missing report becomes a
	// stored empty report.
	if err := s.writeJSONArtifact(ctx, current.AnalysisID, analyzer.Key, analysis.ArtifactReport, report); err != nil {
		return nil, nil, err
	}
	if err := s.writeJSONArtifact(ctx, current.AnalysisID, analyzer.Key, analysis.ArtifactMeasures, measures); err != nil {
		return nil, nil, err
	}

	logging.Info(logCtx, "analyzer completed",
		slog.Int("issues", len(facts)),
		slog.Int("measures", len(measures.Metrics)),
	)
	return facts, measures.Metrics, nil
}

// loadReport reads and validates report.json; absence or corruption
// collapses to the empty report rather than an error.
func (s *Service) loadReport(ctx context.Context, outputDir string) analysis.Report {
	data, err := os.ReadFile(filepath.Join(outputDir, "report.json"))
	if err != nil {
		logging.Warn(ctx, "report.json missing, substituting empty report")
		return analysis.EmptyReport()
	}

	report, err := analysis.DecodeReport(data)
	if err != nil {
		logging.Warn(ctx, "report.json invalid, substituting empty report",
			slog.Any("err", errs.Loggable(err)))
		return analysis.EmptyReport()
	}
	return report
}

func (s *Service) loadMeasures(ctx context.Context, outputDir string) analysis.Measures {
	data, err := os.ReadFile(filepath.Join(outputDir, "measures.json"))
	if err != nil {
		return analysis.EmptyMeasures()
	}

	measures, err := analysis.DecodeMeasures(data)
	if err != nil {
		logging.Warn(ctx, "measures.json invalid, substituting empty measures",
			slog.Any("err", errs.Loggable(err)))
		return analysis.EmptyMeasures()
	}
	return measures
}

func (s *Service) uploadLog(ctx context.Context, analysisID, analyzerKey, logPath string) {
	data, err := os.ReadFile(logPath)
	if err != nil {
		return
	}
	if err := s.writeArtifact(ctx, analysisID, analyzerKey, analysis.ArtifactLog, data); err != nil {
		logging.Warn(ctx, "log artifact upload failed", slog.Any("err", errs.Loggable(err)))
	}
}

func (s *Service) publishStatus(ctx context.Context, payload ports.JobPayload, state ports.StatusState, description string) {
	if s.notifier == nil {
		return
	}
	err := s.notifier.PublishStatus(ctx, ports.StatusNotification{
		ProjectKey:  payload.ProjectKey,
		CommitSHA:   payload.CommitSHA,
		State:       state,
		Description: description,
	})
	if err != nil {
		logging.Warn(ctx, "status publication failed",
			slog.String("state", string(state)),
			slog.Any("err", errs.Loggable(err)),
		)
	}
}
