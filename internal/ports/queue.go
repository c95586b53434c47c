package ports

import (
	"context"
	"time"
)

// JobPayload is the queue wire contract produced by the enqueueing side.
type JobPayload struct {
	AnalysisID      string          `json:"analysisId"`
	ProjectKey      string          `json:"projectKey"`
	BranchName      string          `json:"branchName,omitempty"`
	CommitSHA       string          `json:"commitSha"`
	Analyzers       []AnalyzerSpec  `json:"analyzers"`
	SourceObjectKey string          `json:"sourceObjectKey,omitempty"`
	WorkspacePath   string          `json:"workspacePath,omitempty"`
	PullRequestID   string          `json:"pullRequestId,omitempty"`
	PullRequest     *PullRequestRef `json:"pullRequest,omitempty"`
}

type AnalyzerSpec struct {
	Key         string `json:"key"`
	DockerImage string `json:"dockerImage"`
	ConfigJSON  string `json:"configJson,omitempty"`
}

type PullRequestRef struct {
	Number       int    `json:"number"`
	TargetBranch string `json:"targetBranch"`
}

// Job is one claimed queue entry. Attempts counts the claim that
// returned it (first processing sees Attempts == 1).
type Job struct {
	JobID       string
	AnalysisID  string
	Payload     JobPayload
	Attempts    int
	MaxAttempts int
}

// Queue is the durable job boundary feeding the worker pool.
type Queue interface {
	Enqueue(ctx context.Context, payload JobPayload) (jobID string, err error)
	// Dequeue claims the oldest due queued job, incrementing its attempt
	// counter. ok is false when nothing is due.
	Dequeue(ctx context.Context) (job Job, ok bool, err error)
	Complete(ctx context.Context, jobID string) error
	// Retry re-queues a failed attempt with exponential backoff and
	// returns when the next attempt becomes due.
	Retry(ctx context.Context, jobID string, lastError string) (nextAttemptAt time.Time, err error)
	Fail(ctx context.Context, jobID string, lastError string) error
	// RequeueStale recovers jobs stuck running past the cutoff, typically
	// after a worker crash.
	RequeueStale(ctx context.Context, cutoff time.Time) (int, error)
}
