package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opencampus/delivery-engine/internal/domain"
	"github.com/opencampus/delivery-engine/internal/repository"
)

var _ InAppSink = (*StoreInAppSink)(nil)

// StoreInAppSink writes in-app deliveries through to the inbox table backed
// by the same durable store as the delivery records.
type StoreInAppSink struct {
	messages repository.InAppRepository
	now      func() time.Time
}

func NewStoreInAppSink(messages repository.InAppRepository) (*StoreInAppSink, error) {
	if messages == nil {
		return nil, fmt.Errorf("in-app repository is required")
	}
	return &StoreInAppSink{
		messages: messages,
		now:      time.Now,
	}, nil
}

func (s *StoreInAppSink) Deliver(ctx context.Context, record domain.DeliveryRecord) error {
	msg := &domain.InAppMessage{
		ID:          uuid.NewString(),
		DeliveryID:  record.ID,
		RecipientID: record.RecipientID,
		Title:       record.Subject,
		Body:        record.Body,
		CreatedAt:   s.now().UTC(),
	}

	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return &TransportError{
			Message:   "in-app inbox write failed",
			Transient: true,
			Cause:     err,
		}
	}
	return nil
}
