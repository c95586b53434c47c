package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"qubeless/internal/bootstrap/logging"
	"qubeless/internal/errs"
	"qubeless/internal/ports"
)

type RunnerConfig struct {
	Workers      int
	PollInterval time.Duration
	StaleAfter   time.Duration
}

// RunWorkers starts the fixed-size worker pool and blocks until ctx is
// cancelled. Pool size bounds how many analyses run concurrently;
// workers are independent and never block each other.
func (s *Service) RunWorkers(ctx context.Context, cfg RunnerConfig) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if s.queue == nil {
		return errQueueRequired
	}
	if cfg.Workers < 1 {
		return errors.New("at least one worker is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "pipeline.runner"))

	if cfg.StaleAfter > 0 {
		cutoff := s.now().Add(-cfg.StaleAfter)
		if requeued, err := s.queue.RequeueStale(ctx, cutoff); err != nil {
			logging.Warn(logCtx, "stale job recovery failed", slog.Any("err", errs.Loggable(err)))
		} else if requeued > 0 {
			logging.Info(logCtx, "stale jobs requeued", slog.Int("count", requeued))
		}
	}

	logging.Info(logCtx, "worker pool starting", slog.Int("workers", cfg.Workers))

	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			s.workerLoop(logging.WithAttrs(logCtx, slog.Int("worker", worker)), cfg.PollInterval)
		}(i)
	}
	wg.Wait()

	logging.Info(logCtx, "worker pool stopped")
	return nil
}

func (s *Service) workerLoop(ctx context.Context, pollInterval time.Duration) {
	for {
		if ctx.Err() != nil {
			return
		}

		job, ok, err := s.queue.Dequeue(ctx)
		if err != nil {
			logging.Error(ctx, "dequeue failed", slog.Any("err", errs.Loggable(err)))
			s.sleep(ctx, pollInterval)
			continue
		}
		if !ok {
			s.sleep(ctx, pollInterval)
			continue
		}

		s.handleJob(ctx, job)
	}
}

// handleJob applies the retry state machine around one processing
// attempt. All failures retry alike until attempts run out; the error
// kind does not influence eligibility.
func (s *Service) handleJob(ctx context.Context, job ports.Job) {
	jobCtx := logging.WithAttrs(ctx,
		slog.String("job_id", job.JobID),
		slog.String("analysis_id", job.AnalysisID),
		slog.Int("attempt", job.Attempts),
		slog.Int("max_attempts", job.MaxAttempts),
	)

	err := s.ProcessJob(jobCtx, job)
	if err == nil {
		if err := s.queue.Complete(jobCtx, job.JobID); err != nil {
			logging.Error(jobCtx, "complete job failed", slog.Any("err", errs.Loggable(err)))
		}
		return
	}

	if job.Attempts < job.MaxAttempts {
		// The analysis stays RUNNING between attempts; only the queue
		// entry moves back to queued.
		nextAttemptAt, retryErr := s.queue.Retry(jobCtx, job.JobID, err.Error())
		if retryErr != nil {
			logging.Error(jobCtx, "requeue for retry failed", slog.Any("err", errs.Loggable(retryErr)))
			return
		}
		logging.Warn(jobCtx, "job attempt failed, retry scheduled",
			slog.Time("next_attempt_at", nextAttemptAt),
			slog.Any("err", errs.Loggable(err)),
		)
		return
	}

	if failErr := s.queue.Fail(jobCtx, job.JobID, err.Error()); failErr != nil {
		logging.Error(jobCtx, "mark job failed errored", slog.Any("err", errs.Loggable(failErr)))
	}
	if finalizeErr := s.FinalizeFailure(jobCtx, job, err); finalizeErr != nil {
		logging.Error(jobCtx, "finalize failed analysis errored", slog.Any("err", errs.Loggable(finalizeErr)))
	}
}

func (s *Service) sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
