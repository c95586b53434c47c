package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"qubeless/internal/domain/analysis"
	"qubeless/internal/infrastructure/persistence/sqlite/model"
	"qubeless/internal/infrastructure/persistence/sqlite/queue"
	"qubeless/internal/infrastructure/persistence/sqlite/repository"
	"qubeless/internal/infrastructure/persistence/sqlite/uow"
	"qubeless/internal/ports"
)

type fakeExecutor struct {
	calls []ports.ExecutionSpec
	run   func(spec ports.ExecutionSpec) (ports.ExecutionResult, error)
}

func (f *fakeExecutor) Run(_ context.Context, spec ports.ExecutionSpec) (ports.ExecutionResult, error) {
	f.calls = append(f.calls, spec)
	if f.run != nil {
		return f.run(spec)
	}
	return ports.ExecutionResult{Success: true, ExitCode: 0}, nil
}

type fakeStorage struct {
	objects map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: map[string][]byte{}}
}

func (f *fakeStorage) Bucket() string { return "artifacts" }

func (f *fakeStorage) GetObject(_ context.Context, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, errors.New("object not found: " + key)
	}
	return data, nil
}

func (f *fakeStorage) PutObject(_ context.Context, key string, data []byte, _ string) (ports.ObjectRef, error) {
	f.objects[key] = data
	return ports.ObjectRef{Bucket: "artifacts", Key: key}, nil
}

type fakeNotifier struct {
	notifications []ports.StatusNotification
}

func (f *fakeNotifier) PublishStatus(_ context.Context, n ports.StatusNotification) error {
	f.notifications = append(f.notifications, n)
	return nil
}

type testEnv struct {
	svc      *Service
	repo     *repository.AnalysisRepository
	queue    *queue.JobQueue
	executor *fakeExecutor
	storage  *fakeStorage
	notifier *fakeNotifier
	db       *gorm.DB
	workDir  string
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "pipeline.sqlite")
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("get sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})
	if err := db.AutoMigrate(
		&model.Project{}, &model.Branch{}, &model.PullRequest{}, &model.Analysis{},
		&model.Issue{}, &model.AnalysisArtifact{}, &model.AnalysisMetric{},
		&model.QualityGate{}, &model.QualityGateCondition{},
		&model.Rule{}, &model.RuleProfileRule{}, &model.AnalysisJob{},
	); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}

	env := &testEnv{
		repo:     repository.NewAnalysisRepository(db),
		queue:    queue.NewJobQueue(db, 3, time.Millisecond),
		executor: &fakeExecutor{},
		storage:  newFakeStorage(),
		notifier: &fakeNotifier{},
		db:       db,
		workDir:  t.TempDir(),
	}
	env.svc = NewService(
		env.repo,
		uow.NewUnitOfWork(db),
		env.queue,
		env.executor,
		env.storage,
		env.notifier,
		ExecutorDefaults{Timeout: time.Minute, WorkDir: env.workDir},
	)
	return env
}

func (e *testEnv) seedProject(t *testing.T, key string) ports.Project {
	t.Helper()

	row := model.Project{
		ProjectID:      uuid.NewString(),
		Key:            key,
		Name:           key,
		LeakPeriodType: string(analysis.LeakPeriodLastAnalysis),
	}
	if err := e.db.Create(&row).Error; err != nil {
		t.Fatalf("create project: %v", err)
	}
	project, err := e.repo.GetProjectByKey(context.Background(), key)
	if err != nil {
		t.Fatalf("GetProjectByKey() error = %v", err)
	}
	return project
}

func (e *testEnv) seedBranchAnalysis(t *testing.T, project ports.Project, baselineID *string) (ports.Branch, ports.Analysis) {
	t.Helper()

	branch, err := e.repo.EnsureBranch(context.Background(), project.ProjectID, "main")
	if err != nil {
		t.Fatalf("EnsureBranch() error = %v", err)
	}
	created, err := e.repo.CreateAnalysis(context.Background(), ports.AnalysisCreate{
		ProjectID:          project.ProjectID,
		BranchID:           &branch.BranchID,
		CommitSHA:          "abc123",
		BaselineAnalysisID: baselineID,
	})
	if err != nil {
		t.Fatalf("CreateAnalysis() error = %v", err)
	}
	return branch, created
}

func (e *testEnv) job(created ports.Analysis, project ports.Project, analyzers ...ports.AnalyzerSpec) ports.Job {
	return ports.Job{
		JobID:      uuid.NewString(),
		AnalysisID: created.AnalysisID,
		Payload: ports.JobPayload{
			AnalysisID:    created.AnalysisID,
			ProjectKey:    project.Key,
			BranchName:    "main",
			CommitSHA:     created.CommitSHA,
			Analyzers:     analyzers,
			WorkspacePath: e.workDir,
		},
		Attempts:    1,
		MaxAttempts: 3,
	}
}

func writeOutputFile(t *testing.T, outputDir, name string, value any) {
	t.Helper()

	data, err := json.Marshal(value)
	if err != nil {
		t.Fatalf("marshal %s: %v", name, err)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		t.Fatalf("create output dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(outputDir, name), data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func reportWith(issues ...analysis.ReportIssue) analysis.Report {
	return analysis.Report{
		Analyzer: analysis.AnalyzerInfo{Name: "govet", Version: "1.0"},
		Issues:   issues,
	}
}

func TestProcessJobSuccess(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "demo")
	_, created := env.seedBranchAnalysis(t, project, nil)

	line := 10
	env.executor.run = func(spec ports.ExecutionSpec) (ports.ExecutionResult, error) {
		writeOutputFile(t, spec.OutputDir, "report.json", reportWith(
			analysis.ReportIssue{RuleKey: "go:S100", Severity: "CRITICAL", Type: "BUG", FilePath: "main.go", Line: &line, Message: "nil deref"},
			analysis.ReportIssue{RuleKey: "go:S200", Severity: "MINOR", Type: "CODE_SMELL", FilePath: "util.go", Message: "long func"},
		))
		writeOutputFile(t, spec.OutputDir, "measures.json", analysis.Measures{
			Metrics: map[string]float64{"lines_of_code": 2000, "coverage": 81.5},
		})
		return ports.ExecutionResult{Success: true, ExitCode: 1}, nil
	}

	job := env.job(created, project, ports.AnalyzerSpec{Key: "govet", DockerImage: "analyzers/govet:1"})
	if err := env.svc.ProcessJob(ctx, job); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}

	final, err := env.repo.GetAnalysis(ctx, created.AnalysisID)
	if err != nil {
		t.Fatalf("GetAnalysis() error = %v", err)
	}
	if final.Status != analysis.StatusSuccess {
		t.Fatalf("analysis status = %v, want %v", final.Status, analysis.StatusSuccess)
	}

	issues, err := env.repo.ListIssues(ctx, created.AnalysisID)
	if err != nil {
		t.Fatalf("ListIssues() error = %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("ListIssues() len = %d, want 2", len(issues))
	}
	for _, issue := range issues {
		if !issue.IsNew {
			t.Fatalf("issue %s is_new = false without a baseline", issue.RuleKey)
		}
		if issue.Fingerprint == "" {
			t.Fatalf("issue %s has no fingerprint", issue.RuleKey)
		}
	}

	metrics, err := env.repo.ListMetricValues(ctx, created.AnalysisID)
	if err != nil {
		t.Fatalf("ListMetricValues() error = %v", err)
	}
	if metrics["lines_of_code"] != 2000 {
		t.Fatalf("lines_of_code = %v, want 2000", metrics["lines_of_code"])
	}
	if metrics["coverage"] != 81.5 {
		t.Fatalf("coverage = %v, want 81.5", metrics["coverage"])
	}
	if _, ok := metrics[analysis.MetricDebtRatio]; !ok {
		t.Fatalf("debt_ratio metric missing")
	}

	// 1 CRITICAL + 1 MINOR over 2000 lines: (60+10)/(2000*0.576)*100.
	if final.RemediationCost != 70 {
		t.Fatalf("remediation cost = %v, want 70", final.RemediationCost)
	}
	if final.DebtRatio != 6.08 {
		t.Fatalf("debt ratio = %v, want 6.08", final.DebtRatio)
	}
	if final.MaintainabilityRating != "B" {
		t.Fatalf("rating = %q, want B", final.MaintainabilityRating)
	}

	var artifacts []model.AnalysisArtifact
	if err := env.db.Where("analysis_id = ?", created.AnalysisID).Find(&artifacts).Error; err != nil {
		t.Fatalf("query artifacts: %v", err)
	}
	kinds := map[string]bool{}
	for _, a := range artifacts {
		kinds[a.Kind] = true
	}
	if !kinds[string(analysis.ArtifactReport)] || !kinds[string(analysis.ArtifactMeasures)] {
		t.Fatalf("artifact kinds = %v, want REPORT and MEASURES", kinds)
	}

	states := make([]ports.StatusState, 0, len(env.notifier.notifications))
	for _, n := range env.notifier.notifications {
		states = append(states, n.State)
	}
	if len(states) != 2 || states[0] != ports.StatusStatePending || states[1] != ports.StatusStateSuccess {
		t.Fatalf("notification states = %v, want [pending success]", states)
	}
}

func TestProcessJobBaselineDiff(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "demo")
	_, baselineRun := env.seedBranchAnalysis(t, project, nil)

	knownFP := analysis.Fingerprint(project.Key, "go:S100", "main.go", "nil deref", nil)
	if err := env.repo.BulkInsertIssues(ctx, []ports.IssueCreate{{
		AnalysisID:  baselineRun.AnalysisID,
		AnalyzerKey: "govet",
		RuleKey:     "go:S100",
		Severity:    analysis.SeverityCritical,
		Type:        analysis.IssueTypeBug,
		FilePath:    "main.go",
		Message:     "nil deref",
		Fingerprint: knownFP,
		IsNew:       true,
	}}); err != nil {
		t.Fatalf("seed baseline issue: %v", err)
	}
	if err := env.repo.FinalizeAnalysisSuccess(ctx, ports.AnalysisSuccess{
		AnalysisID: baselineRun.AnalysisID, FinishedAt: time.Now().UTC(), Rating: analysis.RatingA,
	}); err != nil {
		t.Fatalf("finalize baseline: %v", err)
	}

	_, created := env.seedBranchAnalysis(t, project, &baselineRun.AnalysisID)

	env.executor.run = func(spec ports.ExecutionSpec) (ports.ExecutionResult, error) {
		writeOutputFile(t, spec.OutputDir, "report.json", reportWith(
			analysis.ReportIssue{RuleKey: "go:S100", Severity: "CRITICAL", Type: "BUG", FilePath: "main.go", Message: "nil deref"},
			analysis.ReportIssue{RuleKey: "go:S300", Severity: "MAJOR", Type: "BUG", FilePath: "new.go", Message: "fresh bug"},
		))
		return ports.ExecutionResult{Success: true}, nil
	}

	job := env.job(created, project, ports.AnalyzerSpec{Key: "govet", DockerImage: "analyzers/govet:1"})
	if err := env.svc.ProcessJob(ctx, job); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}

	issues, err := env.repo.ListIssues(ctx, created.AnalysisID)
	if err != nil {
		t.Fatalf("ListIssues() error = %v", err)
	}
	if len(issues) != 2 {
		t.Fatalf("ListIssues() len = %d, want 2", len(issues))
	}
	byRule := map[string]ports.Issue{}
	for _, issue := range issues {
		byRule[issue.RuleKey] = issue
	}
	if byRule["go:S100"].IsNew {
		t.Fatalf("baseline-matched issue marked new")
	}
	if !byRule["go:S300"].IsNew {
		t.Fatalf("fresh issue not marked new")
	}
	if byRule["go:S100"].BaselineAnalysisID == nil || *byRule["go:S100"].BaselineAnalysisID != baselineRun.AnalysisID {
		t.Fatalf("issue baseline_analysis_id not stamped")
	}
}

func TestProcessJobGateFailure(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "demo")
	_, created := env.seedBranchAnalysis(t, project, nil)

	gateID := uuid.NewString()
	if err := env.db.Create(&model.QualityGate{GateID: gateID, ProjectID: project.ProjectID, Name: "default"}).Error; err != nil {
		t.Fatalf("create gate: %v", err)
	}
	if err := env.db.Create(&model.QualityGateCondition{
		ConditionID: uuid.NewString(), GateID: gateID,
		MetricKey: "issues_critical", Operator: "GT", Threshold: 0, Scope: "NEW",
	}).Error; err != nil {
		t.Fatalf("create condition: %v", err)
	}

	env.executor.run = func(spec ports.ExecutionSpec) (ports.ExecutionResult, error) {
		writeOutputFile(t, spec.OutputDir, "report.json", reportWith(
			analysis.ReportIssue{RuleKey: "go:S100", Severity: "CRITICAL", Type: "BUG", FilePath: "main.go", Message: "nil deref"},
		))
		return ports.ExecutionResult{Success: true}, nil
	}

	job := env.job(created, project, ports.AnalyzerSpec{Key: "govet", DockerImage: "analyzers/govet:1"})
	if err := env.svc.ProcessJob(ctx, job); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}

	// A failing gate is a verdict, not an execution failure.
	final, err := env.repo.GetAnalysis(ctx, created.AnalysisID)
	if err != nil {
		t.Fatalf("GetAnalysis() error = %v", err)
	}
	if final.Status != analysis.StatusSuccess {
		t.Fatalf("analysis status = %v, want %v", final.Status, analysis.StatusSuccess)
	}

	last := env.notifier.notifications[len(env.notifier.notifications)-1]
	if last.State != ports.StatusStateFailure {
		t.Fatalf("final notification state = %v, want failure", last.State)
	}

	result, err := env.svc.EvaluateGateForAnalysis(ctx, created.AnalysisID)
	if err != nil {
		t.Fatalf("EvaluateGateForAnalysis() error = %v", err)
	}
	if result.Status != analysis.GateStatusFail {
		t.Fatalf("gate status = %v, want %v", result.Status, analysis.GateStatusFail)
	}
}

func TestProcessJobRemovesRunDirectories(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "demo")
	_, created := env.seedBranchAnalysis(t, project, nil)

	env.executor.run = func(spec ports.ExecutionSpec) (ports.ExecutionResult, error) {
		writeOutputFile(t, spec.OutputDir, "report.json", reportWith())
		return ports.ExecutionResult{Success: true}, nil
	}

	job := env.job(created, project, ports.AnalyzerSpec{Key: "govet", DockerImage: "analyzers/govet:1"})
	if err := env.svc.ProcessJob(ctx, job); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}

	// The payload used an in-place workspace; the per-job run tree is
	// still swept.
	if _, err := os.Stat(filepath.Join(env.workDir, job.JobID)); !os.IsNotExist(err) {
		t.Fatalf("run directory for job %s still exists", job.JobID)
	}
}

func TestEvaluateGateReadsStoredMetrics(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "demo")
	_, created := env.seedBranchAnalysis(t, project, nil)

	gateID := uuid.NewString()
	if err := env.db.Create(&model.QualityGate{GateID: gateID, ProjectID: project.ProjectID, Name: "default"}).Error; err != nil {
		t.Fatalf("create gate: %v", err)
	}
	if err := env.db.Create(&model.QualityGateCondition{
		ConditionID: uuid.NewString(), GateID: gateID,
		MetricKey: "debt_ratio", Operator: "GT", Threshold: 5, Scope: "ALL",
	}).Error; err != nil {
		t.Fatalf("create condition: %v", err)
	}
	if err := env.db.Create(&model.AnalysisMetric{
		MetricID: uuid.NewString(), AnalysisID: created.AnalysisID,
		ProjectID: project.ProjectID, MetricKey: "debt_ratio", Value: 10,
	}).Error; err != nil {
		t.Fatalf("create metric: %v", err)
	}

	result, err := env.svc.EvaluateGateForAnalysis(ctx, created.AnalysisID)
	if err != nil {
		t.Fatalf("EvaluateGateForAnalysis() error = %v", err)
	}
	if result.Status != analysis.GateStatusFail {
		t.Fatalf("gate status = %v, want %v", result.Status, analysis.GateStatusFail)
	}
	if got := result.Conditions[0].Actual; got != 10 {
		t.Fatalf("condition actual = %v, want 10", got)
	}
	if result.Conditions[0].Passed {
		t.Fatalf("condition passed = true, want false")
	}
}

func TestProcessJobAnalyzerFailureAbortsAttempt(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "demo")
	_, created := env.seedBranchAnalysis(t, project, nil)

	env.executor.run = func(spec ports.ExecutionSpec) (ports.ExecutionResult, error) {
		if spec.Image == "analyzers/broken:1" {
			return ports.ExecutionResult{
				Success: false, ExitCode: 137,
				ErrorType: analysis.ExecErrOOM, Message: "killed",
			}, nil
		}
		return ports.ExecutionResult{Success: true}, nil
	}

	job := env.job(created, project,
		ports.AnalyzerSpec{Key: "broken", DockerImage: "analyzers/broken:1"},
		ports.AnalyzerSpec{Key: "govet", DockerImage: "analyzers/govet:1"},
	)
	err := env.svc.ProcessJob(ctx, job)
	if err == nil {
		t.Fatalf("ProcessJob() error = nil, want execution error")
	}
	var execErr *ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("ProcessJob() error = %T, want *ExecutionError", err)
	}
	if execErr.Type != analysis.ExecErrOOM {
		t.Fatalf("execution error type = %v, want oom", execErr.Type)
	}

	// Fail-fast: the second analyzer never ran.
	if len(env.executor.calls) != 1 {
		t.Fatalf("executor calls = %d, want 1", len(env.executor.calls))
	}

	// A retryable attempt leaves the analysis RUNNING.
	current, err := env.repo.GetAnalysis(ctx, created.AnalysisID)
	if err != nil {
		t.Fatalf("GetAnalysis() error = %v", err)
	}
	if current.Status != analysis.StatusRunning {
		t.Fatalf("analysis status = %v, want %v", current.Status, analysis.StatusRunning)
	}
}

func TestProcessJobSkipsTerminalAnalysis(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "demo")
	_, created := env.seedBranchAnalysis(t, project, nil)

	if err := env.repo.FinalizeAnalysisSuccess(ctx, ports.AnalysisSuccess{
		AnalysisID: created.AnalysisID, FinishedAt: time.Now().UTC(), Rating: analysis.RatingA,
	}); err != nil {
		t.Fatalf("FinalizeAnalysisSuccess() error = %v", err)
	}

	job := env.job(created, project, ports.AnalyzerSpec{Key: "govet", DockerImage: "analyzers/govet:1"})
	if err := env.svc.ProcessJob(ctx, job); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}
	if len(env.executor.calls) != 0 {
		t.Fatalf("executor calls = %d, want 0 for terminal analysis", len(env.executor.calls))
	}
}

func TestProcessJobNoAnalyzers(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "demo")
	_, created := env.seedBranchAnalysis(t, project, nil)

	job := env.job(created, project)
	if err := env.svc.ProcessJob(ctx, job); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}

	final, err := env.repo.GetAnalysis(ctx, created.AnalysisID)
	if err != nil {
		t.Fatalf("GetAnalysis() error = %v", err)
	}
	if final.Status != analysis.StatusSuccess {
		t.Fatalf("analysis status = %v, want %v", final.Status, analysis.StatusSuccess)
	}
	if final.RemediationCost != 0 {
		t.Fatalf("remediation cost = %v, want 0", final.RemediationCost)
	}

	// Even a trivial success leaves its degenerate artifacts behind.
	var artifacts []model.AnalysisArtifact
	if err := env.db.Where("analysis_id = ?", created.AnalysisID).Find(&artifacts).Error; err != nil {
		t.Fatalf("query artifacts: %v", err)
	}
	kinds := map[string]bool{}
	for _, a := range artifacts {
		kinds[a.Kind] = true
	}
	if !kinds[string(analysis.ArtifactReport)] || !kinds[string(analysis.ArtifactMeasures)] {
		t.Fatalf("artifact kinds = %v, want REPORT and MEASURES", kinds)
	}
	if len(env.storage.objects) == 0 {
		t.Fatalf("no artifact objects uploaded")
	}
}

func TestProcessJobMissingReportIsEmptyResult(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "demo")
	_, created := env.seedBranchAnalysis(t, project, nil)

	// Executor succeeds without writing any output files.
	job := env.job(created, project, ports.AnalyzerSpec{Key: "govet", DockerImage: "analyzers/govet:1"})
	if err := env.svc.ProcessJob(ctx, job); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}

	issues, err := env.repo.ListIssues(ctx, created.AnalysisID)
	if err != nil {
		t.Fatalf("ListIssues() error = %v", err)
	}
	if len(issues) != 0 {
		t.Fatalf("ListIssues() len = %d, want 0", len(issues))
	}

	final, err := env.repo.GetAnalysis(ctx, created.AnalysisID)
	if err != nil {
		t.Fatalf("GetAnalysis() error = %v", err)
	}
	if final.Status != analysis.StatusSuccess {
		t.Fatalf("analysis status = %v, want %v", final.Status, analysis.StatusSuccess)
	}
}

func TestProcessJobDropsDisabledRules(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "demo")
	_, created := env.seedBranchAnalysis(t, project, nil)

	// Map-based create: a struct create would replace the zero-value
	// Enabled=false with the column's default (enabled).
	if err := env.db.Model(&model.RuleProfileRule{}).Create(map[string]any{
		"profile_rule_id": uuid.NewString(),
		"project_id":      project.ProjectID,
		"rule_key":        "go:S100",
		"enabled":         false,
	}).Error; err != nil {
		t.Fatalf("create profile rule: %v", err)
	}

	env.executor.run = func(spec ports.ExecutionSpec) (ports.ExecutionResult, error) {
		writeOutputFile(t, spec.OutputDir, "report.json", reportWith(
			analysis.ReportIssue{RuleKey: "go:S100", Severity: "CRITICAL", Type: "BUG", FilePath: "main.go", Message: "disabled"},
			analysis.ReportIssue{RuleKey: "go:S200", Severity: "MINOR", Type: "CODE_SMELL", FilePath: "util.go", Message: "kept"},
		))
		return ports.ExecutionResult{Success: true}, nil
	}

	job := env.job(created, project, ports.AnalyzerSpec{Key: "govet", DockerImage: "analyzers/govet:1"})
	if err := env.svc.ProcessJob(ctx, job); err != nil {
		t.Fatalf("ProcessJob() error = %v", err)
	}

	issues, err := env.repo.ListIssues(ctx, created.AnalysisID)
	if err != nil {
		t.Fatalf("ListIssues() error = %v", err)
	}
	if len(issues) != 1 {
		t.Fatalf("ListIssues() len = %d, want 1", len(issues))
	}
	if issues[0].RuleKey != "go:S200" {
		t.Fatalf("surviving rule = %s, want go:S200", issues[0].RuleKey)
	}

	metrics, err := env.repo.ListMetricValues(ctx, created.AnalysisID)
	if err != nil {
		t.Fatalf("ListMetricValues() error = %v", err)
	}
	// The disabled rule never counts anywhere.
	if metrics["total_issues"] != 1 {
		t.Fatalf("total_issues = %v, want 1", metrics["total_issues"])
	}
}

func TestHandleJobRetryThenTerminalFailure(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()
	project := env.seedProject(t, "demo")
	_, created := env.seedBranchAnalysis(t, project, nil)

	env.executor.run = func(ports.ExecutionSpec) (ports.ExecutionResult, error) {
		return ports.ExecutionResult{
			Success: false, ErrorType: analysis.ExecErrDocker, Message: "daemon unavailable",
		}, nil
	}

	payload := ports.JobPayload{
		AnalysisID:    created.AnalysisID,
		ProjectKey:    project.Key,
		BranchName:    "main",
		CommitSHA:     created.CommitSHA,
		Analyzers:     []ports.AnalyzerSpec{{Key: "govet", DockerImage: "analyzers/govet:1"}},
		WorkspacePath: env.workDir,
	}
	if _, err := env.queue.Enqueue(ctx, payload); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	for attempt := 1; attempt <= 3; attempt++ {
		job, ok, err := env.queue.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue() attempt %d error = %v", attempt, err)
		}
		if !ok {
			// Backoff of 1ms may not have elapsed yet.
			time.Sleep(5 * time.Millisecond)
			job, ok, err = env.queue.Dequeue(ctx)
			if err != nil || !ok {
				t.Fatalf("Dequeue() attempt %d = %v, %v", attempt, ok, err)
			}
		}
		if job.Attempts != attempt {
			t.Fatalf("job attempts = %d, want %d", job.Attempts, attempt)
		}

		env.svc.handleJob(ctx, job)

		current, err := env.repo.GetAnalysis(ctx, created.AnalysisID)
		if err != nil {
			t.Fatalf("GetAnalysis() error = %v", err)
		}
		if attempt < 3 {
			if current.Status != analysis.StatusRunning {
				t.Fatalf("status after attempt %d = %v, want RUNNING", attempt, current.Status)
			}
		} else {
			if current.Status != analysis.StatusFailed {
				t.Fatalf("status after final attempt = %v, want FAILED", current.Status)
			}
		}
	}

	// Queue entry is terminal; nothing left to claim.
	if _, ok, err := env.queue.Dequeue(ctx); err != nil || ok {
		t.Fatalf("Dequeue() after exhaustion = %v, %v", ok, err)
	}

	last := env.notifier.notifications[len(env.notifier.notifications)-1]
	if last.State != ports.StatusStateError {
		t.Fatalf("final notification state = %v, want error", last.State)
	}
}
