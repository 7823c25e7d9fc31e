package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/opencampus/delivery-engine/internal/domain"
	"github.com/opencampus/delivery-engine/internal/observability"
	"github.com/opencampus/delivery-engine/internal/provider"
	"github.com/opencampus/delivery-engine/internal/ratelimit"
	"github.com/opencampus/delivery-engine/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultBaseRetryDelay = time.Minute
	maxRetryDelay         = 6 * time.Hour
)

// Dispatcher sends one pending delivery record through its channel
// transport and maps the outcome to a state transition.
type Dispatcher struct {
	records repository.DeliveryRepository
	email   provider.EmailSender
	push    provider.PushSender
	inApp   provider.InAppSink
	limiter ratelimit.RateLimiter
	logger  *zap.Logger
	metrics *observability.Metrics

	baseRetryDelay time.Duration
	now            func() time.Time
}

func NewDispatcher(
	records repository.DeliveryRepository,
	email provider.EmailSender,
	push provider.PushSender,
	inApp provider.InAppSink,
	limiter ratelimit.RateLimiter,
	baseRetryDelay time.Duration,
	logger *zap.Logger,
) (*Dispatcher, error) {
	if records == nil {
		return nil, fmt.Errorf("delivery repository is required")
	}
	if baseRetryDelay <= 0 {
		baseRetryDelay = defaultBaseRetryDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Dispatcher{
		records:        records,
		email:          email,
		push:           push,
		inApp:          inApp,
		limiter:        limiter,
		logger:         logger,
		baseRetryDelay: baseRetryDelay,
		now:            time.Now,
	}, nil
}

func (d *Dispatcher) SetMetrics(metrics *observability.Metrics) {
	if d == nil {
		return
	}
	d.metrics = metrics
}

// Dispatch claims a PENDING record, stamps PROCESSING plus sent_at, and
// invokes the channel transport. A record that is no longer PENDING is
// skipped silently: another job instance got there first.
func (d *Dispatcher) Dispatch(ctx context.Context, id string) error {
	ctx = observability.WithDeliveryID(ctx, id)
	logger := observability.WithContextLogger(d.logger, ctx)

	record, err := d.records.LockForProcessing(ctx, id, d.now().UTC())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logger.Warn("delivery not found during lock, skipping")
			return nil
		}
		return fmt.Errorf("failed to lock delivery for processing: %w", err)
	}
	if record == nil {
		return nil
	}

	channelName := strings.ToLower(record.Channel.String())
	if d.metrics != nil {
		d.metrics.IncDispatchInFlight(channelName)
		defer d.metrics.DecDispatchInFlight(channelName)
	}

	if d.limiter != nil {
		if err := d.limiter.Wait(ctx, channelName); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}
	}

	sendStart := d.now()
	externalID, sendErr := d.send(ctx, record)
	if d.metrics != nil {
		d.metrics.ObserveSendDuration(channelName, d.now().Sub(sendStart))
	}

	if sendErr == nil {
		if err := d.records.MarkSent(ctx, record.ID, externalID); err != nil {
			return fmt.Errorf("failed to mark delivery as sent: %w", err)
		}
		if d.metrics != nil {
			d.metrics.IncDeliverySent(channelName)
		}
		return nil
	}

	return d.handleFailure(ctx, record, channelName, sendErr)
}

func (d *Dispatcher) send(ctx context.Context, record *domain.DeliveryRecord) (*string, error) {
	switch record.Channel {
	case domain.ChannelEmail:
		if d.email == nil {
			return nil, &provider.TransportError{Message: "email transport is not configured"}
		}
		return nil, d.email.Send(ctx, record.Address, record.Subject, record.Body)

	case domain.ChannelPush:
		if d.push == nil {
			return nil, &provider.TransportError{Message: "push transport is not configured"}
		}
		messageID, err := d.push.Send(ctx, record.Address, record.Subject, record.Body, record.Metadata)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(messageID) == "" {
			return nil, &provider.TransportError{
				Message:   "push gateway returned no message id",
				Transient: true,
			}
		}
		return &messageID, nil

	case domain.ChannelInApp:
		if d.inApp == nil {
			return nil, &provider.TransportError{Message: "in-app sink is not configured"}
		}
		return nil, d.inApp.Deliver(ctx, *record)

	default:
		// Channel values are controlled by enqueue callers; an unknown one
		// here means a corrupted record, not a retryable condition.
		return nil, &provider.TransportError{Message: fmt.Sprintf("unknown channel %q", record.Channel)}
	}
}

func (d *Dispatcher) handleFailure(ctx context.Context, record *domain.DeliveryRecord, channelName string, sendErr error) error {
	failedAt := d.now().UTC()
	reason := sendErr.Error()

	observability.WithContextLogger(d.logger, ctx).Warn("delivery send failed",
		zap.String("channel", channelName),
		zap.Int("retryCount", record.RetryCount),
		zap.Error(sendErr),
	)

	if record.RetryCount < record.MaxRetries {
		nextRetryAt := failedAt.Add(d.retryDelay(record.RetryCount))
		if err := d.records.MarkFailedWithRetry(ctx, record.ID, reason, failedAt, nextRetryAt); err != nil {
			return fmt.Errorf("failed to mark delivery for retry: %w", err)
		}
		if d.metrics != nil {
			d.metrics.IncRetryScheduled(channelName)
		}
		return nil
	}

	if err := d.records.MarkFailed(ctx, record.ID, reason, failedAt); err != nil {
		return fmt.Errorf("failed to mark delivery as failed: %w", err)
	}
	if d.metrics != nil {
		failureReason := "permanent_error"
		if provider.IsTransient(sendErr) {
			failureReason = "retry_exhausted"
		}
		d.metrics.IncDeliveryFailed(channelName, failureReason)
	}

	return nil
}

// retryDelay is baseDelay doubled per prior retry, capped so an exhausted
// budget never pushes a retry days out.
func (d *Dispatcher) retryDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}

	delay := d.baseRetryDelay
	for i := 0; i < retryCount; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}
