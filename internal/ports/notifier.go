package ports

import "context"

type StatusState string

const (
	StatusStatePending StatusState = "pending"
	StatusStateSuccess StatusState = "success"
	StatusStateFailure StatusState = "failure"
	StatusStateError   StatusState = "error"
)

type StatusNotification struct {
	ProjectKey  string
	CommitSHA   string
	State       StatusState
	Description string
	TargetURL   string
}

// Notifier publishes analysis status to the source-control host. The
// pipeline treats publish failures as non-fatal.
type Notifier interface {
	PublishStatus(ctx context.Context, notification StatusNotification) error
}
