package domain

import "time"

// InAppMessage is the write-through inbox row produced when an IN_APP
// delivery is dispatched. Reading and acknowledging it is a client concern.
type InAppMessage struct {
	ID          string
	DeliveryID  string
	RecipientID string
	Title       string
	Body        string
	ReadAt      *time.Time
	CreatedAt   time.Time
}
