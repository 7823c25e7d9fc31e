package repository

import (
	"time"

	"github.com/opencampus/delivery-engine/internal/domain"
)

// DeliveryRecordModel is the persistence model for the delivery_records table.
type DeliveryRecordModel struct {
	ID                string                  `gorm:"type:uuid;primaryKey"`
	ExternalID        *string                 `gorm:"type:varchar(255)"`
	RecipientID       string                  `gorm:"type:varchar(64);not null"`
	Address           string                  `gorm:"type:varchar(512)"`
	Type              domain.NotificationType `gorm:"type:varchar(32);not null"`
	Channel           domain.Channel          `gorm:"type:varchar(10);not null"`
	Subject           string                  `gorm:"type:varchar(512)"`
	Body              string                  `gorm:"type:text;not null"`
	State             domain.State            `gorm:"type:varchar(20);not null"`
	RetryCount        int                     `gorm:"not null;default:0"`
	MaxRetries        int                     `gorm:"not null;default:3"`
	NextRetryAt       *time.Time
	LastFailureReason *string           `gorm:"type:text"`
	ScheduledAt       *time.Time
	SentAt            *time.Time
	DeliveredAt       *time.Time
	FailedAt          *time.Time
	Metadata          map[string]string `gorm:"serializer:json;type:jsonb"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (DeliveryRecordModel) TableName() string {
	return "delivery_records"
}

// InAppMessageModel is the persistence model for in_app_messages.
type InAppMessageModel struct {
	ID          string `gorm:"type:uuid;primaryKey"`
	DeliveryID  string `gorm:"type:uuid;not null"`
	RecipientID string `gorm:"type:varchar(64);not null"`
	Title       string `gorm:"type:varchar(512)"`
	Body        string `gorm:"type:text;not null"`
	ReadAt      *time.Time
	CreatedAt   time.Time
}

func (InAppMessageModel) TableName() string {
	return "in_app_messages"
}

func recordModelFromDomain(r *domain.DeliveryRecord) *DeliveryRecordModel {
	if r == nil {
		return nil
	}

	return &DeliveryRecordModel{
		ID:                r.ID,
		ExternalID:        r.ExternalID,
		RecipientID:       r.RecipientID,
		Address:           r.Address,
		Type:              r.Type,
		Channel:           r.Channel,
		Subject:           r.Subject,
		Body:              r.Body,
		State:             r.State,
		RetryCount:        r.RetryCount,
		MaxRetries:        r.MaxRetries,
		NextRetryAt:       r.NextRetryAt,
		LastFailureReason: r.LastFailureReason,
		ScheduledAt:       r.ScheduledAt,
		SentAt:            r.SentAt,
		DeliveredAt:       r.DeliveredAt,
		FailedAt:          r.FailedAt,
		Metadata:          r.Metadata,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func recordModelToDomain(m *DeliveryRecordModel) *domain.DeliveryRecord {
	if m == nil {
		return nil
	}

	return &domain.DeliveryRecord{
		ID:                m.ID,
		ExternalID:        m.ExternalID,
		RecipientID:       m.RecipientID,
		Address:           m.Address,
		Type:              m.Type,
		Channel:           m.Channel,
		Subject:           m.Subject,
		Body:              m.Body,
		State:             m.State,
		RetryCount:        m.RetryCount,
		MaxRetries:        m.MaxRetries,
		NextRetryAt:       m.NextRetryAt,
		LastFailureReason: m.LastFailureReason,
		ScheduledAt:       m.ScheduledAt,
		SentAt:            m.SentAt,
		DeliveredAt:       m.DeliveredAt,
		FailedAt:          m.FailedAt,
		Metadata:          m.Metadata,
		CreatedAt:         m.CreatedAt,
		UpdatedAt:         m.UpdatedAt,
	}
}

func inAppModelFromDomain(msg *domain.InAppMessage) *InAppMessageModel {
	if msg == nil {
		return nil
	}

	return &InAppMessageModel{
		ID:          msg.ID,
		DeliveryID:  msg.DeliveryID,
		RecipientID: msg.RecipientID,
		Title:       msg.Title,
		Body:        msg.Body,
		ReadAt:      msg.ReadAt,
		CreatedAt:   msg.CreatedAt,
	}
}

func inAppModelToDomain(m *InAppMessageModel) *domain.InAppMessage {
	if m == nil {
		return nil
	}

	return &domain.InAppMessage{
		ID:          m.ID,
		DeliveryID:  m.DeliveryID,
		RecipientID: m.RecipientID,
		Title:       m.Title,
		Body:        m.Body,
		ReadAt:      m.ReadAt,
		CreatedAt:   m.CreatedAt,
	}
}
