package provider

import (
	"context"

	"github.com/opencampus/delivery-engine/internal/domain"
)

// EmailSender is the outbound email delivery port.
type EmailSender interface {
	Send(ctx context.Context, address, subject, body string) error
}

// PushSender is the outbound push delivery port. A successful send returns
// the provider message id; an empty id is treated as a failure by callers.
type PushSender interface {
	Send(ctx context.Context, deviceRef, title, message string, data map[string]string) (string, error)
}

// InAppSink receives in-app deliveries synchronously.
type InAppSink interface {
	Deliver(ctx context.Context, record domain.DeliveryRecord) error
}
