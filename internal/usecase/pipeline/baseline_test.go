package pipeline

import (
	"context"
	"testing"
	"time"

	"qubeless/internal/domain/analysis"
	"qubeless/internal/ports"
)

func seedSuccessWithIssue(t *testing.T, env *testEnv, project ports.Project, fingerprint string) ports.Analysis {
	t.Helper()
	ctx := context.Background()

	_, run := env.seedBranchAnalysis(t, project, nil)
	if err := env.repo.BulkInsertIssues(ctx, []ports.IssueCreate{{
		AnalysisID:  run.AnalysisID,
		AnalyzerKey: "govet",
		RuleKey:     "go:S100",
		Severity:    analysis.SeverityMajor,
		Type:        analysis.IssueTypeBug,
		FilePath:    "main.go",
		Message:     "bug",
		Fingerprint: fingerprint,
		IsNew:       true,
	}}); err != nil {
		t.Fatalf("seed issue: %v", err)
	}
	if err := env.repo.FinalizeAnalysisSuccess(ctx, ports.AnalysisSuccess{
		AnalysisID: run.AnalysisID, FinishedAt: time.Now().UTC(), Rating: analysis.RatingA,
	}); err != nil {
		t.Fatalf("finalize seed analysis: %v", err)
	}
	return run
}

func TestResolveBaselineExplicitID(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "demo")
	prior := seedSuccessWithIssue(t, env, project, "fp-1")

	_, current := env.seedBranchAnalysis(t, project, &prior.AnalysisID)

	baseline, err := env.svc.resolveBaseline(ctx, current, project)
	if err != nil {
		t.Fatalf("resolveBaseline() error = %v", err)
	}
	if !baseline.Resolved {
		t.Fatalf("resolveBaseline() resolved = false, want true")
	}
	if baseline.AnalysisID != prior.AnalysisID {
		t.Fatalf("resolveBaseline() = %s, want %s", baseline.AnalysisID, prior.AnalysisID)
	}
	if baseline.IsNew("fp-1") {
		t.Fatalf("IsNew(fp-1) = true, want false")
	}
}

func TestResolveBaselineLastAnalysisFallback(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "demo")
	prior := seedSuccessWithIssue(t, env, project, "fp-1")

	// No explicit baseline stamped.
	_, current := env.seedBranchAnalysis(t, project, nil)

	baseline, err := env.svc.resolveBaseline(ctx, current, project)
	if err != nil {
		t.Fatalf("resolveBaseline() error = %v", err)
	}
	if !baseline.Resolved || baseline.AnalysisID != prior.AnalysisID {
		t.Fatalf("resolveBaseline() = %+v, want fallback to %s", baseline, prior.AnalysisID)
	}
}

func TestResolveBaselineFirstAnalysis(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "demo")
	_, current := env.seedBranchAnalysis(t, project, nil)

	baseline, err := env.svc.resolveBaseline(ctx, current, project)
	if err != nil {
		t.Fatalf("resolveBaseline() error = %v", err)
	}
	if baseline.Resolved {
		t.Fatalf("resolveBaseline() resolved = true for first analysis")
	}
}

func TestResolveBaselineUnparseableDate(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "demo")
	seedSuccessWithIssue(t, env, project, "fp-1")
	_, current := env.seedBranchAnalysis(t, project, nil)

	project.LeakPeriodType = analysis.LeakPeriodDate
	project.LeakPeriodValue = "not-a-date"

	baseline, err := env.svc.resolveBaseline(ctx, current, project)
	if err != nil {
		t.Fatalf("resolveBaseline() error = %v", err)
	}
	if baseline.Resolved {
		t.Fatalf("resolveBaseline() resolved = true for unparseable date, want no baseline")
	}
}

func TestResolveBaselineDateCutoff(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "demo")
	seedSuccessWithIssue(t, env, project, "fp-1")
	_, current := env.seedBranchAnalysis(t, project, nil)

	project.LeakPeriodType = analysis.LeakPeriodDate
	project.LeakPeriodValue = "2000-01-01"

	// The only prior success was created after the cutoff.
	baseline, err := env.svc.resolveBaseline(ctx, current, project)
	if err != nil {
		t.Fatalf("resolveBaseline() error = %v", err)
	}
	if baseline.Resolved {
		t.Fatalf("resolveBaseline() resolved = true past the date cutoff")
	}
}

func TestResolveBaselineMissingBaseBranch(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "demo")
	_, current := env.seedBranchAnalysis(t, project, nil)

	project.LeakPeriodType = analysis.LeakPeriodBaseBranch
	project.LeakPeriodValue = "develop"

	baseline, err := env.svc.resolveBaseline(ctx, current, project)
	if err != nil {
		t.Fatalf("resolveBaseline() error = %v", err)
	}
	if baseline.Resolved {
		t.Fatalf("resolveBaseline() resolved = true for missing base branch")
	}
}
