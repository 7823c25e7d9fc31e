package preference

import (
	"context"

	"github.com/opencampus/delivery-engine/internal/domain"
)

// Gate is the user-preference collaborator consulted before a delivery is
// enqueued. Both checks must pass for the enqueue to proceed.
type Gate interface {
	IsEnabled(ctx context.Context, userID string, notificationType domain.NotificationType) (bool, error)
	IsWithinPreferredWindow(ctx context.Context, userID string, notificationType domain.NotificationType) (bool, error)
}

// AllowAll is the gate used when no preference store is wired; every
// delivery passes.
type AllowAll struct{}

func (AllowAll) IsEnabled(ctx context.Context, userID string, notificationType domain.NotificationType) (bool, error) {
	return true, nil
}

func (AllowAll) IsWithinPreferredWindow(ctx context.Context, userID string, notificationType domain.NotificationType) (bool, error) {
	return true, nil
}
