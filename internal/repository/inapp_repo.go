package repository

import (
	"context"
	"errors"
	"time"

	"github.com/opencampus/delivery-engine/internal/domain"
	"gorm.io/gorm"
)

type InAppRepository interface {
	CreateMessage(ctx context.Context, msg *domain.InAppMessage) error
	ListForRecipient(ctx context.Context, recipientID string, limit int) ([]domain.InAppMessage, error)
	MarkRead(ctx context.Context, recipientID, id string, readAt time.Time) error
}

type GormInAppRepo struct {
	db *gorm.DB
}

func NewGormInAppRepo(db *gorm.DB) *GormInAppRepo {
	return &GormInAppRepo{db: db}
}

func (r *GormInAppRepo) CreateMessage(ctx context.Context, msg *domain.InAppMessage) error {
	model := inAppModelFromDomain(msg)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if msg != nil {
		*msg = *inAppModelToDomain(model)
	}
	return nil
}

func (r *GormInAppRepo) ListForRecipient(ctx context.Context, recipientID string, limit int) ([]domain.InAppMessage, error) {
	if limit < 1 {
		limit = 50
	}

	var models []InAppMessageModel
	err := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	messages := make([]domain.InAppMessage, 0, len(models))
	for i := range models {
		messages = append(messages, *inAppModelToDomain(&models[i]))
	}
	return messages, nil
}

// MarkRead is scoped to the recipient so one user cannot acknowledge
// another user's inbox. Re-reading an already-read message is a no-op.
func (r *GormInAppRepo) MarkRead(ctx context.Context, recipientID, id string, readAt time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&InAppMessageModel{}).
		Where("id = ? AND recipient_id = ? AND read_at IS NULL", id, recipientID).
		Update("read_at", readAt)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var model InAppMessageModel
		err := r.db.WithContext(ctx).
			First(&model, "id = ? AND recipient_id = ?", id, recipientID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		// Already read; idempotent.
	}
	return nil
}
