package pipeline

import (
	"errors"
	"fmt"
	"time"

	"qubeless/internal/domain/analysis"
	"qubeless/internal/ports"
)

// ExecutorDefaults are applied to every analyzer run unless the job
// payload narrows them.
type ExecutorDefaults struct {
	Timeout          time.Duration
	MemoryLimitBytes int64
	CPULimit         float64
	WorkDir          string
}

// Service drives the asynchronous analysis execution pipeline: baseline
// resolution, sandboxed analyzer runs, issue diffing, metric
// aggregation, gate evaluation and debt calculation.
type Service struct {
	store    ports.Store
	uow      ports.UnitOfWork
	queue    ports.Queue
	executor ports.Executor
	storage  ports.ObjectStorage
	notifier ports.Notifier
	defaults ExecutorDefaults
	now      func() time.Time
}

func NewService(
	store ports.Store,
	uow ports.UnitOfWork,
	queue ports.Queue,
	executor ports.Executor,
	storage ports.ObjectStorage,
	notifier ports.Notifier,
	defaults ExecutorDefaults,
) *Service {
	return &Service{
		store:    store,
		uow:      uow,
		queue:    queue,
		executor: executor,
		storage:  storage,
		notifier: notifier,
		defaults: defaults,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

var (
	errStoreRequired    = errors.New("store is required")
	errQueueRequired    = errors.New("queue is required")
	errExecutorRequired = errors.New("executor is required")
)

// ExecutionError carries the failure taxonomy of the analyzer run that
// aborted a job.
type ExecutionError struct {
	AnalyzerKey string
	Type        analysis.ExecutionErrorType
	Message     string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("analyzer %q failed (%s): %s", e.AnalyzerKey, e.Type, e.Message)
}
