package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opencampus/delivery-engine/internal/domain"
	"github.com/opencampus/delivery-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultInboxLimit = 50
	maxInboxLimit     = 200
)

// InAppService reads and acknowledges the inbox rows the in-app sink wrote
// at dispatch time.
type InAppService struct {
	messages repository.InAppRepository
	logger   *zap.Logger
	now      func() time.Time
}

func NewInAppService(messages repository.InAppRepository, logger *zap.Logger) (*InAppService, error) {
	if messages == nil {
		return nil, fmt.Errorf("in-app repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &InAppService{
		messages: messages,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Inbox lists a recipient's in-app messages, newest first.
func (s *InAppService) Inbox(ctx context.Context, recipientID string, limit int) ([]domain.InAppMessage, error) {
	trimmedID := strings.TrimSpace(recipientID)
	if trimmedID == "" {
		return nil, fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}

	if limit < 1 {
		limit = defaultInboxLimit
	}
	if limit > maxInboxLimit {
		return nil, fmt.Errorf("%w: limit must be at most %d", domain.ErrValidation, maxInboxLimit)
	}

	return s.messages.ListForRecipient(ctx, trimmedID, limit)
}

// MarkRead stamps the read marker on one of the recipient's messages.
// Acknowledging an already-read message succeeds without changing it.
func (s *InAppService) MarkRead(ctx context.Context, recipientID, messageID string) error {
	trimmedRecipient := strings.TrimSpace(recipientID)
	if trimmedRecipient == "" {
		return fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}
	trimmedMessage := strings.TrimSpace(messageID)
	if trimmedMessage == "" {
		return fmt.Errorf("%w: message id is required", domain.ErrValidation)
	}

	return s.messages.MarkRead(ctx, trimmedRecipient, trimmedMessage, s.now().UTC())
}
