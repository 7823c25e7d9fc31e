package repository

import (
	"context"
	"errors"
	"time"

	"github.com/opencampus/delivery-engine/internal/domain"
	"gorm.io/gorm"
)

// ListParams filters and pages delivery history queries.
type ListParams struct {
	RecipientID string
	State       *domain.State
	Channel     *domain.Channel
	Type        *domain.NotificationType
	From        *time.Time
	To          *time.Time
	Page        int
	PageSize    int
}

// StateCount is one row of a per-state aggregate.
type StateCount struct {
	State domain.State `gorm:"column:state"`
	Count int64        `gorm:"column:count"`
}

// GroupCount is one row of a per-type or per-channel aggregate.
type GroupCount struct {
	Key   string `gorm:"column:key"`
	Count int64  `gorm:"column:count"`
}

// terminalStates are the states eligible for age-based purge.
var terminalStates = []domain.State{
	domain.StateDelivered,
	domain.StateFailed,
	domain.StateExpired,
	domain.StateCancelled,
}

// terminalAlwaysStates are immutable regardless of retry budget; guarded
// updates refuse to leave them.
var terminalAlwaysStates = []domain.State{
	domain.StateDelivered,
	domain.StateExpired,
	domain.StateCancelled,
}

type DeliveryRepository interface {
	Create(ctx context.Context, r *domain.DeliveryRecord) error
	CreateBatch(ctx context.Context, records []*domain.DeliveryRecord) error
	GetByID(ctx context.Context, id string) (*domain.DeliveryRecord, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.DeliveryRecord, error)
	List(ctx context.Context, params ListParams) ([]domain.DeliveryRecord, int64, error)

	GetPending(ctx context.Context, limit int) ([]domain.DeliveryRecord, error)
	GetDueScheduled(ctx context.Context, lookback time.Duration, limit int) ([]domain.DeliveryRecord, error)
	GetDueRetries(ctx context.Context, limit int) ([]domain.DeliveryRecord, error)

	LockForProcessing(ctx context.Context, id string, sentAt time.Time) (*domain.DeliveryRecord, error)
	PromotePending(ctx context.Context, id string) (bool, error)
	RequeueForRetry(ctx context.Context, id string) (bool, error)
	MarkSent(ctx context.Context, id string, externalID *string) error
	MarkFailed(ctx context.Context, id string, reason string, failedAt time.Time) error
	MarkFailedWithRetry(ctx context.Context, id string, reason string, failedAt, nextRetryAt time.Time) error
	MarkDelivered(ctx context.Context, id string, deliveredAt time.Time) error
	Cancel(ctx context.Context, id string) error
	ResetForRetry(ctx context.Context, id string) error

	ExpireStale(ctx context.Context, untouchedSince time.Time, reason string, limit int) (int64, error)
	PurgeTerminal(ctx context.Context, olderThan time.Time) (int64, error)

	CountByState(ctx context.Context, from, to time.Time) ([]StateCount, error)
	CountByType(ctx context.Context, from, to time.Time) ([]GroupCount, error)
	CountByChannel(ctx context.Context, from, to time.Time) ([]GroupCount, error)
	AverageDeliveryLatency(ctx context.Context, from, to time.Time) (time.Duration, error)
	CountPendingBacklog(ctx context.Context) (int64, error)
}

type GormDeliveryRepo struct {
	db *gorm.DB
}

func NewGormDeliveryRepo(db *gorm.DB) *GormDeliveryRepo {
	return &GormDeliveryRepo{db: db}
}

func (r *GormDeliveryRepo) Create(ctx context.Context, record *domain.DeliveryRecord) error {
	model := recordModelFromDomain(record)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if record != nil {
		*record = *recordModelToDomain(model)
	}
	return nil
}

func (r *GormDeliveryRepo) CreateBatch(ctx context.Context, records []*domain.DeliveryRecord) error {
	models := make([]DeliveryRecordModel, 0, len(records))
	modelIndexes := make([]int, 0, len(records))
	for i, record := range records {
		model := recordModelFromDomain(record)
		if model != nil {
			models = append(models, *model)
			modelIndexes = append(modelIndexes, i)
		}
	}

	if len(models) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).CreateInBatches(&models, 100).Error; err != nil {
		return err
	}

	for i := range models {
		idx := modelIndexes[i]
		if idx < len(records) && records[idx] != nil {
			*records[idx] = *recordModelToDomain(&models[i])
		}
	}

	return nil
}

func (r *GormDeliveryRepo) GetByID(ctx context.Context, id string) (*domain.DeliveryRecord, error) {
	var model DeliveryRecordModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return recordModelToDomain(&model), nil
}

func (r *GormDeliveryRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.DeliveryRecord, error) {
	var model DeliveryRecordModel
	err := r.db.WithContext(ctx).
		Where("external_id = ?", externalID).
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return recordModelToDomain(&model), nil
}

func (r *GormDeliveryRepo) List(ctx context.Context, params ListParams) ([]domain.DeliveryRecord, int64, error) {
	query := r.db.WithContext(ctx).Model(&DeliveryRecordModel{})

	if params.RecipientID != "" {
		query = query.Where("recipient_id = ?", params.RecipientID)
	}
	if params.State != nil {
		query = query.Where("state = ?", *params.State)
	}
	if params.Channel != nil {
		query = query.Where("channel = ?", *params.Channel)
	}
	if params.Type != nil {
		query = query.Where("type = ?", *params.Type)
	}
	if params.From != nil {
		query = query.Where("created_at >= ?", *params.From)
	}
	if params.To != nil {
		query = query.Where("created_at <= ?", *params.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page := max(params.Page, 1)
	pageSize := params.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	pageSize = min(pageSize, 100)

	var models []DeliveryRecordModel
	err := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&models).Error
	if err != nil {
		return nil, 0, err
	}

	records := make([]domain.DeliveryRecord, 0, len(models))
	for i := range models {
		records = append(records, *recordModelToDomain(&models[i]))
	}

	return records, total, nil
}

func (r *GormDeliveryRepo) GetPending(ctx context.Context, limit int) ([]domain.DeliveryRecord, error) {
	var models []DeliveryRecordModel
	err := r.db.WithContext(ctx).
		Where("state = ?", domain.StatePending).
		Order("created_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainSlice(models), nil
}

func (r *GormDeliveryRepo) GetDueScheduled(ctx context.Context, lookback time.Duration, limit int) ([]domain.DeliveryRecord, error) {
	now := time.Now().UTC()
	var models []DeliveryRecordModel
	err := r.db.WithContext(ctx).
		Where("state = ? AND scheduled_at > ? AND scheduled_at <= ?",
			domain.StateScheduled, now.Add(-lookback), now).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainSlice(models), nil
}

func (r *GormDeliveryRepo) GetDueRetries(ctx context.Context, limit int) ([]domain.DeliveryRecord, error) {
	var models []DeliveryRecordModel
	err := r.db.WithContext(ctx).
		Where("state = ? AND next_retry_at <= ? AND retry_count < max_retries",
			domain.StateFailed, time.Now().UTC()).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return toDomainSlice(models), nil
}

// LockForProcessing claims one PENDING record for dispatch. The claim is a
// single state-guarded UPDATE, so a concurrent expire, cancel, or competing
// claim can never be overwritten: whoever flips the row first wins. A nil
// record with nil error means the record moved on and the caller should skip.
func (r *GormDeliveryRepo) LockForProcessing(ctx context.Context, id string, sentAt time.Time) (*domain.DeliveryRecord, error) {
	result := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Where("id = ? AND state = ?", id, domain.StatePending).
		Updates(map[string]any{
			"state":   domain.StateProcessing,
			"sent_at": sentAt,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, nil
	}

	return r.GetByID(ctx, id)
}

func (r *GormDeliveryRepo) PromotePending(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Where("id = ? AND state = ?", id, domain.StateScheduled).
		Update("state", domain.StatePending)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormDeliveryRepo) RequeueForRetry(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Where("id = ? AND state = ? AND retry_count < max_retries", id, domain.StateFailed).
		Updates(map[string]any{
			"state":         domain.StatePending,
			"next_retry_at": nil,
			"retry_count":   gorm.Expr("retry_count + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkSent moves a claimed record to SENT. The PROCESSING guard keeps a
// stale dispatcher from resurrecting a record another path already settled.
func (r *GormDeliveryRepo) MarkSent(ctx context.Context, id string, externalID *string) error {
	updates := map[string]any{
		"state": domain.StateSent,
	}
	if externalID != nil {
		updates["external_id"] = *externalID
	}

	result := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Where("id = ? AND state = ?", id, domain.StateProcessing).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.conflictOrNotFound(ctx, id)
	}
	return nil
}

// MarkFailed refuses to touch DELIVERED, EXPIRED, or CANCELLED rows: a late
// provider callback must not flip a settled record.
func (r *GormDeliveryRepo) MarkFailed(ctx context.Context, id string, reason string, failedAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Where("id = ? AND state NOT IN ?", id, terminalAlwaysStates).
		Updates(map[string]any{
			"state":               domain.StateFailed,
			"failed_at":           failedAt,
			"last_failure_reason": reason,
			"next_retry_at":       nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.conflictOrNotFound(ctx, id)
	}
	return nil
}

func (r *GormDeliveryRepo) MarkFailedWithRetry(ctx context.Context, id string, reason string, failedAt, nextRetryAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Where("id = ? AND state = ?", id, domain.StateProcessing).
		Updates(map[string]any{
			"state":               domain.StateFailed,
			"failed_at":           failedAt,
			"last_failure_reason": reason,
			"next_retry_at":       nextRetryAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.conflictOrNotFound(ctx, id)
	}
	return nil
}

func (r *GormDeliveryRepo) MarkDelivered(ctx context.Context, id string, deliveredAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Where("id = ? AND state NOT IN ?", id, terminalAlwaysStates).
		Updates(map[string]any{
			"state":        domain.StateDelivered,
			"delivered_at": deliveredAt,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return r.conflictOrNotFound(ctx, id)
	}
	return nil
}

// conflictOrNotFound disambiguates a zero-row guarded UPDATE: the record is
// either gone or in a state the operation refuses to overwrite.
func (r *GormDeliveryRepo) conflictOrNotFound(ctx context.Context, id string) error {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Where("id = ?", id).
		Count(&count).Error
	if err != nil {
		return err
	}
	if count == 0 {
		return domain.ErrNotFound
	}
	return domain.ErrConflict
}

func (r *GormDeliveryRepo) Cancel(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Where("id = ? AND state IN ?", id, []domain.State{domain.StateScheduled, domain.StatePending}).
		Update("state", domain.StateCancelled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

// ResetForRetry is the operator escape hatch for a terminally failed record:
// the retry budget starts over and the record re-enters the pending pool.
func (r *GormDeliveryRepo) ResetForRetry(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Where("id = ? AND state = ?", id, domain.StateFailed).
		Updates(map[string]any{
			"state":         domain.StatePending,
			"retry_count":   0,
			"next_retry_at": nil,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrConflict
	}
	return nil
}

func (r *GormDeliveryRepo) ExpireStale(ctx context.Context, untouchedSince time.Time, reason string, limit int) (int64, error) {
	// Subquery keeps the UPDATE bounded to one batch per cycle.
	sub := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Select("id").
		Where("state = ? AND updated_at < ?", domain.StatePending, untouchedSince).
		Limit(limit)

	result := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Where("id IN (?)", sub).
		Updates(map[string]any{
			"state":               domain.StateExpired,
			"last_failure_reason": reason,
		})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormDeliveryRepo) PurgeTerminal(ctx context.Context, olderThan time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("state IN ? AND created_at < ?", terminalStates, olderThan).
		Delete(&DeliveryRecordModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *GormDeliveryRepo) CountByState(ctx context.Context, from, to time.Time) ([]StateCount, error) {
	var counts []StateCount
	err := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Select("state, COUNT(*) as count").
		Where("created_at >= ? AND created_at <= ?", from, to).
		Group("state").
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *GormDeliveryRepo) CountByType(ctx context.Context, from, to time.Time) ([]GroupCount, error) {
	return r.countGrouped(ctx, "type", from, to)
}

func (r *GormDeliveryRepo) CountByChannel(ctx context.Context, from, to time.Time) ([]GroupCount, error) {
	return r.countGrouped(ctx, "channel", from, to)
}

func (r *GormDeliveryRepo) countGrouped(ctx context.Context, column string, from, to time.Time) ([]GroupCount, error) {
	var counts []GroupCount
	err := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Select(column+" as key, COUNT(*) as count").
		Where("created_at >= ? AND created_at <= ?", from, to).
		Group(column).
		Scan(&counts).Error
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *GormDeliveryRepo) AverageDeliveryLatency(ctx context.Context, from, to time.Time) (time.Duration, error) {
	var seconds *float64
	err := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Select("AVG(EXTRACT(EPOCH FROM (delivered_at - sent_at)))").
		Where("state = ? AND delivered_at IS NOT NULL AND sent_at IS NOT NULL", domain.StateDelivered).
		Where("created_at >= ? AND created_at <= ?", from, to).
		Scan(&seconds).Error
	if err != nil {
		return 0, err
	}
	if seconds == nil {
		return 0, nil
	}
	return time.Duration(*seconds * float64(time.Second)), nil
}

func (r *GormDeliveryRepo) CountPendingBacklog(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&DeliveryRecordModel{}).
		Where("state = ?", domain.StatePending).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}

func toDomainSlice(models []DeliveryRecordModel) []domain.DeliveryRecord {
	records := make([]domain.DeliveryRecord, 0, len(models))
	for i := range models {
		records = append(records, *recordModelToDomain(&models[i]))
	}
	return records
}
