package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"qubeless/internal/errs"
	"qubeless/internal/infrastructure/persistence/sqlite/model"
	"qubeless/internal/ports"
)

const (
	stateQueued    = "queued"
	stateRunning   = "running"
	stateSucceeded = "succeeded"
	stateFailed    = "failed"
)

var ErrJobNotFound = errors.New("analysis job not found")

// JobQueue is the durable gorm-backed queue feeding the worker pool.
// Claimed jobs move queued -> running; a retried attempt goes back to
// queued with next_attempt_at pushed out by exponential backoff.
type JobQueue struct {
	db          *gorm.DB
	maxAttempts int
	baseDelay   time.Duration
	now         func() time.Time
}

func NewJobQueue(db *gorm.DB, maxAttempts int, baseDelay time.Duration) *JobQueue {
	return &JobQueue{
		db:          db,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (q *JobQueue) Enqueue(ctx context.Context, payload ports.JobPayload) (string, error) {
	if ctx == nil {
		return "", errors.New("context is required")
	}
	if payload.AnalysisID == "" {
		return "", errors.New("payload analysis id is required")
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", errs.Wrap(err, "marshal job payload")
	}

	now := q.now()
	row := model.AnalysisJob{
		JobID:         uuid.NewString(),
		AnalysisID:    payload.AnalysisID,
		PayloadJSON:   string(data),
		State:         stateQueued,
		Attempts:      0,
		MaxAttempts:   q.maxAttempts,
		NextAttemptAt: now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := q.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", errs.Wrap(err, "enqueue analysis job")
	}
	return row.JobID, nil
}

func (q *JobQueue) Dequeue(ctx context.Context) (ports.Job, bool, error) {
	if ctx == nil {
		return ports.Job{}, false, errors.New("context is required")
	}

	now := q.now()
	var claimed model.AnalysisJob
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row model.AnalysisJob
		err := tx.Where("state = ? AND next_attempt_at <= ?", stateQueued, now).
			Order("next_attempt_at asc").Order("created_at asc").
			First(&row).Error
		if err != nil {
			return err
		}

		row.State = stateRunning
		row.Attempts++
		row.UpdatedAt = now
		res := tx.Model(&model.AnalysisJob{}).
			Where("job_id = ? AND state = ?", row.JobID, stateQueued).
			Updates(map[string]any{
				"state":      stateRunning,
				"attempts":   row.Attempts,
				"updated_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		// Another worker won the row between select and update.
		if res.RowsAffected != 1 {
			return gorm.ErrRecordNotFound
		}

		claimed = row
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ports.Job{}, false, nil
		}
		return ports.Job{}, false, errs.Wrap(err, "claim analysis job")
	}

	var payload ports.JobPayload
	if err := json.Unmarshal([]byte(claimed.PayloadJSON), &payload); err != nil {
		return ports.Job{}, false, errs.Wrapf(err, "unmarshal payload of job %q", claimed.JobID)
	}

	return ports.Job{
		JobID:       claimed.JobID,
		AnalysisID:  claimed.AnalysisID,
		Payload:     payload,
		Attempts:    claimed.Attempts,
		MaxAttempts: claimed.MaxAttempts,
	}, true, nil
}

func (q *JobQueue) Complete(ctx context.Context, jobID string) error {
	return q.transition(ctx, jobID, stateSucceeded, "")
}

func (q *JobQueue) Retry(ctx context.Context, jobID string, lastError string) (time.Time, error) {
	if ctx == nil {
		return time.Time{}, errors.New("context is required")
	}

	var row model.AnalysisJob
	if err := q.db.WithContext(ctx).Where("job_id = ?", jobID).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return time.Time{}, fmt.Errorf("job %q: %w", jobID, ErrJobNotFound)
		}
		return time.Time{}, errs.Wrap(err, "query job for retry")
	}

	now := q.now()
	nextAttemptAt := now.Add(BackoffDelay(q.baseDelay, row.Attempts))
	err := q.db.WithContext(ctx).Model(&model.AnalysisJob{}).
		Where("job_id = ?", jobID).
		Updates(map[string]any{
			"state":           stateQueued,
			"next_attempt_at": nextAttemptAt,
			"last_error":      lastError,
			"updated_at":      now,
		}).Error
	if err != nil {
		return time.Time{}, errs.Wrap(err, "requeue analysis job")
	}
	return nextAttemptAt, nil
}

func (q *JobQueue) Fail(ctx context.Context, jobID string, lastError string) error {
	return q.transition(ctx, jobID, stateFailed, lastError)
}

func (q *JobQueue) RequeueStale(ctx context.Context, cutoff time.Time) (int, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}

	now := q.now()
	result := q.db.WithContext(ctx).Model(&model.AnalysisJob{}).
		Where("state = ? AND updated_at < ?", stateRunning, cutoff).
		Updates(map[string]any{
			"state":           stateQueued,
			"next_attempt_at": now,
			"updated_at":      now,
		})
	if result.Error != nil {
		return 0, errs.Wrap(result.Error, "requeue stale jobs")
	}
	return int(result.RowsAffected), nil
}

func (q *JobQueue) transition(ctx context.Context, jobID, state, lastError string) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	result := q.db.WithContext(ctx).Model(&model.AnalysisJob{}).
		Where("job_id = ?", jobID).
		Updates(map[string]any{
			"state":      state,
			"last_error": lastError,
			"updated_at": q.now(),
		})
	if result.Error != nil {
		return errs.Wrapf(result.Error, "transition job %q to %s", jobID, state)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("job %q: %w", jobID, ErrJobNotFound)
	}
	return nil
}

// BackoffDelay computes base * 2^(attemptsMade-1).
func BackoffDelay(base time.Duration, attemptsMade int) time.Duration {
	if attemptsMade < 1 {
		attemptsMade = 1
	}
	return time.Duration(float64(base) * math.Pow(2, float64(attemptsMade-1)))
}
