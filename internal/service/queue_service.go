package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opencampus/delivery-engine/internal/content"
	"github.com/opencampus/delivery-engine/internal/domain"
	"github.com/opencampus/delivery-engine/internal/preference"
	"github.com/opencampus/delivery-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultMaxRetries = 3
	maxBulkSize       = 1000
)

// ErrSkipped reports an enqueue declined by the preference gate. No record
// is created; the caller sees the skip, not a failure.
var ErrSkipped = errors.New("delivery skipped by preference gate")

// QueueService persists fully-resolved notifications as delivery records.
// It performs no deduplication: submitting the same logical notification
// twice creates two records.
type QueueService struct {
	records  repository.DeliveryRepository
	gate     preference.Gate
	renderer content.Renderer
	logger   *zap.Logger

	defaultMaxRetries int
	now               func() time.Time
}

type EnqueueInput struct {
	RecipientID string
	Address     string
	Type        domain.NotificationType
	Channel     domain.Channel
	Subject     string
	Body        string
	ScheduledAt *time.Time
	Timezone    string
	MaxRetries  int
	Metadata    map[string]string
}

// BulkRecipient is one target of a bulk enqueue.
type BulkRecipient struct {
	RecipientID string
	Address     string
}

// BulkResult reports a bulk enqueue by count; one bad recipient never
// blocks the rest.
type BulkResult struct {
	Created []domain.DeliveryRecord
	Failed  int
	Skipped int
}

// EventInput asks the renderer for channel-specific content before
// enqueueing, one record per requested channel.
type EventInput struct {
	RecipientID string
	Addresses   map[domain.Channel]string
	Type        domain.NotificationType
	Locale      string
	Data        map[string]string
	Channels    []domain.Channel
	ScheduledAt *time.Time
	Timezone    string
}

func NewQueueService(
	records repository.DeliveryRepository,
	gate preference.Gate,
	renderer content.Renderer,
	maxRetries int,
	logger *zap.Logger,
) (*QueueService, error) {
	if records == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if gate == nil {
		gate = preference.AllowAll{}
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &QueueService{
		records:           records,
		gate:              gate,
		renderer:          renderer,
		logger:            logger,
		defaultMaxRetries: maxRetries,
		now:               time.Now,
	}, nil
}

func (s *QueueService) Enqueue(ctx context.Context, input EnqueueInput) (*domain.DeliveryRecord, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	allowed, err := s.gateAllows(ctx, input.RecipientID, input.Type)
	if err != nil {
		return nil, err
	}
	if !allowed {
		s.logger.Info("enqueue skipped by preference gate",
			zap.String("recipientId", input.RecipientID),
			zap.String("type", input.Type.String()),
		)
		return nil, ErrSkipped
	}

	record, err := s.buildRecord(input)
	if err != nil {
		return nil, err
	}

	if err := s.records.Create(ctx, record); err != nil {
		return nil, err
	}

	return record, nil
}

func (s *QueueService) EnqueueBulk(
	ctx context.Context,
	recipients []BulkRecipient,
	subject, body string,
	notificationType domain.NotificationType,
	channel domain.Channel,
) (*BulkResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	if len(recipients) == 0 {
		return nil, fmt.Errorf("%w: at least one recipient is required", domain.ErrValidation)
	}
	if len(recipients) > maxBulkSize {
		return nil, fmt.Errorf("%w: bulk size exceeds %d", domain.ErrValidation, maxBulkSize)
	}

	result := &BulkResult{
		Created: make([]domain.DeliveryRecord, 0, len(recipients)),
	}

	for _, recipient := range recipients {
		record, err := s.Enqueue(ctx, EnqueueInput{
			RecipientID: recipient.RecipientID,
			Address:     recipient.Address,
			Type:        notificationType,
			Channel:     channel,
			Subject:     subject,
			Body:        body,
		})
		if errors.Is(err, ErrSkipped) {
			result.Skipped++
			continue
		}
		if err != nil {
			result.Failed++
			s.logger.Warn("bulk enqueue: recipient failed",
				zap.String("recipientId", recipient.RecipientID),
				zap.Error(err),
			)
			continue
		}
		result.Created = append(result.Created, *record)
	}

	return result, nil
}

// EnqueueEvent resolves an event into channel content through the renderer
// and enqueues one delivery per requested channel.
func (s *QueueService) EnqueueEvent(ctx context.Context, input EventInput) (*BulkResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if s.renderer == nil {
		return nil, fmt.Errorf("content renderer is not configured")
	}
	if len(input.Channels) == 0 {
		return nil, fmt.Errorf("%w: at least one channel is required", domain.ErrValidation)
	}

	rendered, err := s.renderer.Render(ctx, input.Type, input.Locale, input.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to render content: %w", err)
	}

	result := &BulkResult{}
	for _, channel := range input.Channels {
		channelContent, ok := rendered[channel]
		if !ok {
			result.Failed++
			s.logger.Warn("event enqueue: renderer produced no content for channel",
				zap.String("type", input.Type.String()),
				zap.String("channel", channel.String()),
			)
			continue
		}

		metadata := map[string]string{}
		if input.Locale != "" {
			metadata["locale"] = input.Locale
		}

		record, err := s.Enqueue(ctx, EnqueueInput{
			RecipientID: input.RecipientID,
			Address:     input.Addresses[channel],
			Type:        input.Type,
			Channel:     channel,
			Subject:     channelContent.Subject,
			Body:        channelContent.Body,
			ScheduledAt: input.ScheduledAt,
			Timezone:    input.Timezone,
			Metadata:    metadata,
		})
		if errors.Is(err, ErrSkipped) {
			result.Skipped++
			continue
		}
		if err != nil {
			result.Failed++
			s.logger.Warn("event enqueue: channel failed",
				zap.String("recipientId", input.RecipientID),
				zap.String("channel", channel.String()),
				zap.Error(err),
			)
			continue
		}
		result.Created = append(result.Created, *record)
	}

	return result, nil
}

func (s *QueueService) gateAllows(ctx context.Context, recipientID string, notificationType domain.NotificationType) (bool, error) {
	enabled, err := s.gate.IsEnabled(ctx, recipientID, notificationType)
	if err != nil {
		return false, fmt.Errorf("preference gate check failed: %w", err)
	}
	if !enabled {
		return false, nil
	}

	withinWindow, err := s.gate.IsWithinPreferredWindow(ctx, recipientID, notificationType)
	if err != nil {
		return false, fmt.Errorf("preference window check failed: %w", err)
	}
	return withinWindow, nil
}

func (s *QueueService) buildRecord(input EnqueueInput) (*domain.DeliveryRecord, error) {
	now := s.now().UTC()

	maxRetries := input.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.defaultMaxRetries
	}

	record := &domain.DeliveryRecord{
		ID:          uuid.NewString(),
		RecipientID: strings.TrimSpace(input.RecipientID),
		Address:     strings.TrimSpace(input.Address),
		Type:        input.Type,
		Channel:     input.Channel,
		Subject:     strings.TrimSpace(input.Subject),
		Body:        input.Body,
		State:       domain.StatePending,
		MaxRetries:  maxRetries,
		Metadata:    input.Metadata,
	}

	scheduledAt := s.resolveScheduledAt(input.ScheduledAt, input.Timezone)
	if scheduledAt != nil && scheduledAt.After(now) {
		record.State = domain.StateScheduled
		record.ScheduledAt = scheduledAt
		if input.Timezone != "" {
			if record.Metadata == nil {
				record.Metadata = map[string]string{}
			}
			record.Metadata["timezone"] = input.Timezone
		}
	}

	if err := record.Validate(); err != nil {
		return nil, err
	}

	return record, nil
}

// resolveScheduledAt reinterprets the scheduled instant as wall-clock time
// in the supplied zone. An invalid zone identifier is a caller error that
// falls back to the raw instant: enqueue must not fail over a bad zone name.
func (s *QueueService) resolveScheduledAt(scheduledAt *time.Time, timezone string) *time.Time {
	if scheduledAt == nil {
		return nil
	}

	trimmed := strings.TrimSpace(timezone)
	if trimmed == "" {
		utc := scheduledAt.UTC()
		return &utc
	}

	loc, err := time.LoadLocation(trimmed)
	if err != nil {
		s.logger.Warn("invalid timezone on enqueue, using raw instant",
			zap.String("timezone", timezone),
			zap.Error(err),
		)
		utc := scheduledAt.UTC()
		return &utc
	}

	t := *scheduledAt
	adjusted := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc).UTC()
	return &adjusted
}
