package domain

import (
	"fmt"
	"strings"
	"time"
)

// State represents the lifecycle state of a delivery record.
type State string

const (
	StateScheduled  State = "SCHEDULED"
	StatePending    State = "PENDING"
	StateProcessing State = "PROCESSING"
	StateSent       State = "SENT"
	StateDelivered  State = "DELIVERED"
	StateFailed     State = "FAILED"
	StateExpired    State = "EXPIRED"
	StateCancelled  State = "CANCELLED"
)

func (s State) String() string { return string(s) }

func (s State) IsValid() bool {
	switch s {
	case StateScheduled, StatePending, StateProcessing, StateSent,
		StateDelivered, StateFailed, StateExpired, StateCancelled:
		return true
	}
	return false
}

func ParseStateFromString(s string) (State, error) {
	st := State(strings.ToUpper(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid state %q", ErrValidation, s)
	}
	return st, nil
}

// Channel represents the delivery channel.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelPush  Channel = "PUSH"
	ChannelInApp Channel = "IN_APP"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelPush, ChannelInApp:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// NotificationType classifies the domain event a delivery originated from.
type NotificationType string

const (
	TypeScheduleReminder   NotificationType = "SCHEDULE_REMINDER"
	TypeQuizReminder       NotificationType = "QUIZ_REMINDER"
	TypeContentUpdate      NotificationType = "CONTENT_UPDATE"
	TypeCourseAnnouncement NotificationType = "COURSE_ANNOUNCEMENT"
	TypeSystem             NotificationType = "SYSTEM"
)

func (t NotificationType) String() string { return string(t) }

func (t NotificationType) IsValid() bool {
	switch t {
	case TypeScheduleReminder, TypeQuizReminder, TypeContentUpdate,
		TypeCourseAnnouncement, TypeSystem:
		return true
	}
	return false
}

func ParseNotificationTypeFromString(s string) (NotificationType, error) {
	nt := NotificationType(strings.ToUpper(strings.TrimSpace(s)))
	if !nt.IsValid() {
		return "", fmt.Errorf("%w: invalid notification type %q", ErrValidation, s)
	}
	return nt, nil
}

// Content limits per channel (in characters).
const (
	MaxSubjectLength   = 512
	MaxPushBodyLength  = 1024
	MaxEmailBodyLength = 100000
)

// DeliveryRecord is the core domain entity: one row per
// (recipient, channel, logical notification) delivery attempt chain.
type DeliveryRecord struct {
	ID                string
	ExternalID        *string
	RecipientID       string
	Address           string
	Type              NotificationType
	Channel           Channel
	Subject           string
	Body              string
	State             State
	RetryCount        int
	MaxRetries        int
	NextRetryAt       *time.Time
	LastFailureReason *string
	ScheduledAt       *time.Time
	SentAt            *time.Time
	DeliveredAt       *time.Time
	FailedAt          *time.Time
	Metadata          map[string]string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsTerminal reports whether the record will not be mutated automatically
// again. FAILED is terminal only once retries are exhausted.
func (r *DeliveryRecord) IsTerminal() bool {
	switch r.State {
	case StateDelivered, StateExpired, StateCancelled:
		return true
	case StateFailed:
		return r.RetryCount >= r.MaxRetries
	}
	return false
}

// Retryable reports whether a failed record still has retry budget.
func (r *DeliveryRecord) Retryable() bool {
	return r.State == StateFailed && r.RetryCount < r.MaxRetries
}

func (r *DeliveryRecord) Validate() error {
	if r.RecipientID == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if r.Body == "" {
		return fmt.Errorf("%w: body is required", ErrValidation)
	}
	if !r.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, r.Channel)
	}
	if !r.Type.IsValid() {
		return fmt.Errorf("%w: invalid notification type %q", ErrValidation, r.Type)
	}

	// EMAIL and PUSH need a resolved destination; IN_APP is keyed by
	// recipient id alone.
	if r.Address == "" && r.Channel != ChannelInApp {
		return fmt.Errorf("%w: address is required for channel %s", ErrValidation, r.Channel)
	}

	if subjectLen := len([]rune(r.Subject)); subjectLen > MaxSubjectLength {
		return fmt.Errorf("%w: subject exceeds %d characters (got %d)", ErrValidation, MaxSubjectLength, subjectLen)
	}

	bodyLen := len([]rune(r.Body))
	switch r.Channel {
	case ChannelPush:
		if bodyLen > MaxPushBodyLength {
			return fmt.Errorf("%w: push body exceeds %d characters (got %d)", ErrValidation, MaxPushBodyLength, bodyLen)
		}
	case ChannelEmail:
		if bodyLen > MaxEmailBodyLength {
			return fmt.Errorf("%w: email body exceeds %d characters (got %d)", ErrValidation, MaxEmailBodyLength, bodyLen)
		}
	}

	return nil
}
