package ports

import (
	"context"
	"time"

	"qubeless/internal/domain/analysis"
)

// ExecutionSpec describes one sandboxed analyzer run.
type ExecutionSpec struct {
	Image        string
	WorkspaceDir string // mounted read-only at the fixed in-container source path
	OutputDir    string // mounted read-write at the fixed in-container output path
	Env          map[string]string
	Timeout      time.Duration
	// Zero means unlimited.
	MemoryLimitBytes int64
	CPULimit         float64
	LogPath          string // container stdout+stderr stream target
}

// ExecutionResult reports the typed outcome of one run. ErrorType is
// empty iff Success.
type ExecutionResult struct {
	Success   bool
	ExitCode  int64
	ErrorType analysis.ExecutionErrorType
	Message   string
}

type Executor interface {
	Run(ctx context.Context, spec ExecutionSpec) (ExecutionResult, error)
}
