package handler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/opencampus/delivery-engine/internal/domain"
)

type InAppService interface {
	Inbox(ctx context.Context, recipientID string, limit int) ([]domain.InAppMessage, error)
	MarkRead(ctx context.Context, recipientID, messageID string) error
}

type InboxHandler struct {
	inbox InAppService
}

func NewInboxHandler(inbox InAppService) (*InboxHandler, error) {
	if inbox == nil {
		return nil, fmt.Errorf("in-app service is required")
	}
	return &InboxHandler{inbox: inbox}, nil
}

func RegisterInboxRoutes(router fiber.Router, inbox InAppService) error {
	h, err := NewInboxHandler(inbox)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/recipients/:recipientId/inbox", h.GetInbox)
	v1.Post("/recipients/:recipientId/inbox/:id/read", h.MarkRead)

	return nil
}

type inboxMessageResponse struct {
	ID         string     `json:"id"`
	DeliveryID string     `json:"deliveryId"`
	Title      string     `json:"title"`
	Body       string     `json:"body"`
	ReadAt     *time.Time `json:"readAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

type inboxResponse struct {
	Data []inboxMessageResponse `json:"data"`
}

func (h *InboxHandler) GetInbox(c *fiber.Ctx) error {
	recipientID := strings.TrimSpace(c.Params("recipientId"))
	limit := c.QueryInt("limit", 0)

	messages, err := h.inbox.Inbox(c.Context(), recipientID, limit)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]inboxMessageResponse, 0, len(messages))
	for i := range messages {
		responses = append(responses, toInboxMessageResponse(&messages[i]))
	}

	return c.Status(fiber.StatusOK).JSON(inboxResponse{Data: responses})
}

func (h *InboxHandler) MarkRead(c *fiber.Ctx) error {
	recipientID := strings.TrimSpace(c.Params("recipientId"))
	messageID := strings.TrimSpace(c.Params("id"))

	if err := h.inbox.MarkRead(c.Context(), recipientID, messageID); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"messageId": messageID,
		"read":      true,
	})
}

func toInboxMessageResponse(m *domain.InAppMessage) inboxMessageResponse {
	return inboxMessageResponse{
		ID:         m.ID,
		DeliveryID: m.DeliveryID,
		Title:      m.Title,
		Body:       m.Body,
		ReadAt:     m.ReadAt,
		CreatedAt:  m.CreatedAt,
	}
}
