package notify

import (
	"context"

	"qubeless/internal/ports"
)

// NoopNotifier is used when SCM notification is disabled.
type NoopNotifier struct{}

func NewNoopNotifier() *NoopNotifier {
	return &NoopNotifier{}
}

func (NoopNotifier) PublishStatus(context.Context, ports.StatusNotification) error {
	return nil
}
