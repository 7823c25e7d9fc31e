package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opencampus/delivery-engine/internal/domain"
	"github.com/opencampus/delivery-engine/internal/repository"
	"go.uber.org/zap"
)

// StatusService applies asynchronous transport callbacks and operator
// actions to delivery records.
type StatusService struct {
	records repository.DeliveryRepository
	logger  *zap.Logger
	now     func() time.Time
}

func NewStatusService(records repository.DeliveryRepository, logger *zap.Logger) (*StatusService, error) {
	if records == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &StatusService{
		records: records,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// UpdateStatus applies a provider callback keyed by external id. An unknown
// external id is logged and ignored: the provider cannot act on an error,
// and a late callback for a purged record is expected traffic.
func (s *StatusService) UpdateStatus(ctx context.Context, externalID string, status string, reason *string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	trimmedID := strings.TrimSpace(externalID)
	if trimmedID == "" {
		return fmt.Errorf("%w: external id is required", domain.ErrValidation)
	}

	state, err := domain.ParseStateFromString(status)
	if err != nil {
		return err
	}
	if state != domain.StateDelivered && state != domain.StateFailed {
		return fmt.Errorf("%w: callback status must be DELIVERED or FAILED, got %s", domain.ErrValidation, state)
	}

	record, err := s.records.GetByExternalID(ctx, trimmedID)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Info("status callback for unknown external id, ignoring",
			zap.String("externalId", trimmedID),
		)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up delivery by external id: %w", err)
	}

	// Terminal records are immutable: a late or out-of-order callback
	// must not reopen them.
	if record.IsTerminal() {
		s.logger.Info("status callback for terminal delivery, ignoring",
			zap.String("deliveryId", record.ID),
			zap.String("currentState", record.State.String()),
			zap.String("callbackStatus", state.String()),
		)
		return nil
	}

	now := s.now().UTC()
	switch state {
	case domain.StateDelivered:
		if err := s.records.MarkDelivered(ctx, record.ID, now); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				s.logger.Info("delivery became terminal before callback applied, ignoring",
					zap.String("deliveryId", record.ID),
				)
				return nil
			}
			return fmt.Errorf("failed to mark delivery as delivered: %w", err)
		}
	case domain.StateFailed:
		failureReason := "provider reported failure"
		if reason != nil && strings.TrimSpace(*reason) != "" {
			failureReason = strings.TrimSpace(*reason)
		}
		if err := s.records.MarkFailed(ctx, record.ID, failureReason, now); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				s.logger.Info("delivery became terminal before callback applied, ignoring",
					zap.String("deliveryId", record.ID),
				)
				return nil
			}
			return fmt.Errorf("failed to mark delivery as failed: %w", err)
		}
	}

	return nil
}

// Retry is the operator action that resets a terminally failed record: the
// retry budget starts over and the record re-enters the pending pool.
func (s *StatusService) Retry(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: delivery id is required", domain.ErrValidation)
	}

	err := s.records.ResetForRetry(ctx, strings.TrimSpace(id))
	if errors.Is(err, domain.ErrConflict) {
		// Distinguish a missing record from a non-FAILED one for the caller.
		if _, getErr := s.records.GetByID(ctx, strings.TrimSpace(id)); errors.Is(getErr, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("%w: only failed deliveries can be retried", domain.ErrConflict)
	}
	return err
}

// Cancel forecloses a SCHEDULED or PENDING record. Records already
// PROCESSING or terminal are rejected.
func (s *StatusService) Cancel(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: delivery id is required", domain.ErrValidation)
	}

	err := s.records.Cancel(ctx, strings.TrimSpace(id))
	if errors.Is(err, domain.ErrConflict) {
		if _, getErr := s.records.GetByID(ctx, strings.TrimSpace(id)); errors.Is(getErr, domain.ErrNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("%w: delivery is already processing or terminal", domain.ErrConflict)
	}
	return err
}

func (s *StatusService) GetByID(ctx context.Context, id string) (*domain.DeliveryRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: delivery id is required", domain.ErrValidation)
	}
	return s.records.GetByID(ctx, strings.TrimSpace(id))
}

// History lists a recipient's delivery records, newest first.
func (s *StatusService) History(ctx context.Context, recipientID string, params repository.ListParams) ([]domain.DeliveryRecord, int64, error) {
	if strings.TrimSpace(recipientID) == "" {
		return nil, 0, fmt.Errorf("%w: recipient id is required", domain.ErrValidation)
	}
	params.RecipientID = strings.TrimSpace(recipientID)
	return s.records.List(ctx, params)
}
