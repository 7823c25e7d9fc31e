package service

import (
	"context"
	"time"

	"github.com/opencampus/delivery-engine/internal/content"
	"github.com/opencampus/delivery-engine/internal/domain"
	"github.com/opencampus/delivery-engine/internal/repository"
)

type fakeDeliveryRepo struct {
	createFn              func(ctx context.Context, r *domain.DeliveryRecord) error
	createBatchFn         func(ctx context.Context, records []*domain.DeliveryRecord) error
	getByIDFn             func(ctx context.Context, id string) (*domain.DeliveryRecord, error)
	getByExternalIDFn     func(ctx context.Context, externalID string) (*domain.DeliveryRecord, error)
	listFn                func(ctx context.Context, params repository.ListParams) ([]domain.DeliveryRecord, int64, error)
	getPendingFn          func(ctx context.Context, limit int) ([]domain.DeliveryRecord, error)
	getDueScheduledFn     func(ctx context.Context, lookback time.Duration, limit int) ([]domain.DeliveryRecord, error)
	getDueRetriesFn       func(ctx context.Context, limit int) ([]domain.DeliveryRecord, error)
	lockForProcessingFn   func(ctx context.Context, id string, sentAt time.Time) (*domain.DeliveryRecord, error)
	promotePendingFn      func(ctx context.Context, id string) (bool, error)
	requeueForRetryFn     func(ctx context.Context, id string) (bool, error)
	markSentFn            func(ctx context.Context, id string, externalID *string) error
	markFailedFn          func(ctx context.Context, id string, reason string, failedAt time.Time) error
	markFailedWithRetryFn func(ctx context.Context, id string, reason string, failedAt, nextRetryAt time.Time) error
	markDeliveredFn       func(ctx context.Context, id string, deliveredAt time.Time) error
	cancelFn              func(ctx context.Context, id string) error
	resetForRetryFn       func(ctx context.Context, id string) error
	expireStaleFn         func(ctx context.Context, untouchedSince time.Time, reason string, limit int) (int64, error)
	purgeTerminalFn       func(ctx context.Context, olderThan time.Time) (int64, error)
	countByStateFn        func(ctx context.Context, from, to time.Time) ([]repository.StateCount, error)
	countByTypeFn         func(ctx context.Context, from, to time.Time) ([]repository.GroupCount, error)
	countByChannelFn      func(ctx context.Context, from, to time.Time) ([]repository.GroupCount, error)
	avgDeliveryLatencyFn  func(ctx context.Context, from, to time.Time) (time.Duration, error)
	countPendingBacklogFn func(ctx context.Context) (int64, error)
}

func (f *fakeDeliveryRepo) Create(ctx context.Context, r *domain.DeliveryRecord) error {
	if f.createFn != nil {
		return f.createFn(ctx, r)
	}
	return nil
}

func (f *fakeDeliveryRepo) CreateBatch(ctx context.Context, records []*domain.DeliveryRecord) error {
	if f.createBatchFn != nil {
		return f.createBatchFn(ctx, records)
	}
	return nil
}

func (f *fakeDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.DeliveryRecord, error) {
	if f.getByIDFn != nil {
		return f.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeDeliveryRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.DeliveryRecord, error) {
	if f.getByExternalIDFn != nil {
		return f.getByExternalIDFn(ctx, externalID)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeDeliveryRepo) List(ctx context.Context, params repository.ListParams) ([]domain.DeliveryRecord, int64, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, 0, nil
}

func (f *fakeDeliveryRepo) GetPending(ctx context.Context, limit int) ([]domain.DeliveryRecord, error) {
	if f.getPendingFn != nil {
		return f.getPendingFn(ctx, limit)
	}
	return nil, nil
}

func (f *fakeDeliveryRepo) GetDueScheduled(ctx context.Context, lookback time.Duration, limit int) ([]domain.DeliveryRecord, error) {
	if f.getDueScheduledFn != nil {
		return f.getDueScheduledFn(ctx, lookback, limit)
	}
	return nil, nil
}

func (f *fakeDeliveryRepo) GetDueRetries(ctx context.Context, limit int) ([]domain.DeliveryRecord, error) {
	if f.getDueRetriesFn != nil {
		return f.getDueRetriesFn(ctx, limit)
	}
	return nil, nil
}

func (f *fakeDeliveryRepo) LockForProcessing(ctx context.Context, id string, sentAt time.Time) (*domain.DeliveryRecord, error) {
	if f.lockForProcessingFn != nil {
		return f.lockForProcessingFn(ctx, id, sentAt)
	}
	return nil, domain.ErrNotFound
}

func (f *fakeDeliveryRepo) PromotePending(ctx context.Context, id string) (bool, error) {
	if f.promotePendingFn != nil {
		return f.promotePendingFn(ctx, id)
	}
	return false, nil
}

func (f *fakeDeliveryRepo) RequeueForRetry(ctx context.Context, id string) (bool, error) {
	if f.requeueForRetryFn != nil {
		return f.requeueForRetryFn(ctx, id)
	}
	return false, nil
}

func (f *fakeDeliveryRepo) MarkSent(ctx context.Context, id string, externalID *string) error {
	if f.markSentFn != nil {
		return f.markSentFn(ctx, id, externalID)
	}
	return nil
}

func (f *fakeDeliveryRepo) MarkFailed(ctx context.Context, id string, reason string, failedAt time.Time) error {
	if f.markFailedFn != nil {
		return f.markFailedFn(ctx, id, reason, failedAt)
	}
	return nil
}

func (f *fakeDeliveryRepo) MarkFailedWithRetry(ctx context.Context, id string, reason string, failedAt, nextRetryAt time.Time) error {
	if f.markFailedWithRetryFn != nil {
		return f.markFailedWithRetryFn(ctx, id, reason, failedAt, nextRetryAt)
	}
	return nil
}

func (f *fakeDeliveryRepo) MarkDelivered(ctx context.Context, id string, deliveredAt time.Time) error {
	if f.markDeliveredFn != nil {
		return f.markDeliveredFn(ctx, id, deliveredAt)
	}
	return nil
}

func (f *fakeDeliveryRepo) Cancel(ctx context.Context, id string) error {
	if f.cancelFn != nil {
		return f.cancelFn(ctx, id)
	}
	return nil
}

func (f *fakeDeliveryRepo) ResetForRetry(ctx context.Context, id string) error {
	if f.resetForRetryFn != nil {
		return f.resetForRetryFn(ctx, id)
	}
	return nil
}

func (f *fakeDeliveryRepo) ExpireStale(ctx context.Context, untouchedSince time.Time, reason string, limit int) (int64, error) {
	if f.expireStaleFn != nil {
		return f.expireStaleFn(ctx, untouchedSince, reason, limit)
	}
	return 0, nil
}

func (f *fakeDeliveryRepo) PurgeTerminal(ctx context.Context, olderThan time.Time) (int64, error) {
	if f.purgeTerminalFn != nil {
		return f.purgeTerminalFn(ctx, olderThan)
	}
	return 0, nil
}

func (f *fakeDeliveryRepo) CountByState(ctx context.Context, from, to time.Time) ([]repository.StateCount, error) {
	if f.countByStateFn != nil {
		return f.countByStateFn(ctx, from, to)
	}
	return nil, nil
}

func (f *fakeDeliveryRepo) CountByType(ctx context.Context, from, to time.Time) ([]repository.GroupCount, error) {
	if f.countByTypeFn != nil {
		return f.countByTypeFn(ctx, from, to)
	}
	return nil, nil
}

func (f *fakeDeliveryRepo) CountByChannel(ctx context.Context, from, to time.Time) ([]repository.GroupCount, error) {
	if f.countByChannelFn != nil {
		return f.countByChannelFn(ctx, from, to)
	}
	return nil, nil
}

func (f *fakeDeliveryRepo) AverageDeliveryLatency(ctx context.Context, from, to time.Time) (time.Duration, error) {
	if f.avgDeliveryLatencyFn != nil {
		return f.avgDeliveryLatencyFn(ctx, from, to)
	}
	return 0, nil
}

func (f *fakeDeliveryRepo) CountPendingBacklog(ctx context.Context) (int64, error) {
	if f.countPendingBacklogFn != nil {
		return f.countPendingBacklogFn(ctx)
	}
	return 0, nil
}

type fakeEmailSender struct {
	sendFn func(ctx context.Context, address, subject, body string) error
}

func (f *fakeEmailSender) Send(ctx context.Context, address, subject, body string) error {
	if f.sendFn != nil {
		return f.sendFn(ctx, address, subject, body)
	}
	return nil
}

type fakePushSender struct {
	sendFn func(ctx context.Context, deviceRef, title, message string, data map[string]string) (string, error)
}

func (f *fakePushSender) Send(ctx context.Context, deviceRef, title, message string, data map[string]string) (string, error) {
	if f.sendFn != nil {
		return f.sendFn(ctx, deviceRef, title, message, data)
	}
	return "msg-1", nil
}

type fakeInAppSink struct {
	deliverFn func(ctx context.Context, record domain.DeliveryRecord) error
}

func (f *fakeInAppSink) Deliver(ctx context.Context, record domain.DeliveryRecord) error {
	if f.deliverFn != nil {
		return f.deliverFn(ctx, record)
	}
	return nil
}

type fakeRateLimiter struct {
	allowFn func(ctx context.Context, channel string) (bool, error)
	waitFn  func(ctx context.Context, channel string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, channel string) (bool, error) {
	if f.allowFn != nil {
		return f.allowFn(ctx, channel)
	}
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, channel string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, channel)
	}
	return nil
}

type fakeGate struct {
	isEnabledFn func(ctx context.Context, userID string, notificationType domain.NotificationType) (bool, error)
	inWindowFn  func(ctx context.Context, userID string, notificationType domain.NotificationType) (bool, error)
}

func (f *fakeGate) IsEnabled(ctx context.Context, userID string, notificationType domain.NotificationType) (bool, error) {
	if f.isEnabledFn != nil {
		return f.isEnabledFn(ctx, userID, notificationType)
	}
	return true, nil
}

func (f *fakeGate) IsWithinPreferredWindow(ctx context.Context, userID string, notificationType domain.NotificationType) (bool, error) {
	if f.inWindowFn != nil {
		return f.inWindowFn(ctx, userID, notificationType)
	}
	return true, nil
}

type fakeRenderer struct {
	renderFn func(ctx context.Context, notificationType domain.NotificationType, locale string, data map[string]string) (map[domain.Channel]content.Rendered, error)
}

func (f *fakeRenderer) Render(ctx context.Context, notificationType domain.NotificationType, locale string, data map[string]string) (map[domain.Channel]content.Rendered, error) {
	if f.renderFn != nil {
		return f.renderFn(ctx, notificationType, locale, data)
	}
	return nil, nil
}
