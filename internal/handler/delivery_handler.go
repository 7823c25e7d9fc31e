package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/opencampus/delivery-engine/internal/domain"
	"github.com/opencampus/delivery-engine/internal/repository"
	"github.com/opencampus/delivery-engine/internal/service"
)

const (
	defaultPage     = 1
	defaultPageSize = 50
	maxPageSize     = 100
)

type QueueService interface {
	Enqueue(ctx context.Context, input service.EnqueueInput) (*domain.DeliveryRecord, error)
	EnqueueBulk(ctx context.Context, recipients []service.BulkRecipient, subject, body string, notificationType domain.NotificationType, channel domain.Channel) (*service.BulkResult, error)
	EnqueueEvent(ctx context.Context, input service.EventInput) (*service.BulkResult, error)
}

type StatusService interface {
	UpdateStatus(ctx context.Context, externalID string, status string, reason *string) error
	Retry(ctx context.Context, id string) error
	Cancel(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.DeliveryRecord, error)
	History(ctx context.Context, recipientID string, params repository.ListParams) ([]domain.DeliveryRecord, int64, error)
}

type DeliveryHandler struct {
	queue  QueueService
	status StatusService
}

func NewDeliveryHandler(queue QueueService, status StatusService) (*DeliveryHandler, error) {
	if queue == nil {
		return nil, fmt.Errorf("queue service is required")
	}
	if status == nil {
		return nil, fmt.Errorf("status service is required")
	}
	return &DeliveryHandler{queue: queue, status: status}, nil
}

func RegisterDeliveryRoutes(router fiber.Router, queue QueueService, status StatusService) error {
	h, err := NewDeliveryHandler(queue, status)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/deliveries", h.Enqueue)
	v1.Post("/deliveries/bulk", h.EnqueueBulk)
	v1.Post("/events", h.EnqueueEvent)
	v1.Get("/deliveries/:id", h.GetDelivery)
	v1.Post("/deliveries/:id/retry", h.RetryDelivery)
	v1.Post("/deliveries/:id/cancel", h.CancelDelivery)
	v1.Get("/recipients/:recipientId/deliveries", h.GetHistory)
	v1.Post("/callbacks/delivery-status", h.StatusCallback)

	return nil
}

type enqueueRequest struct {
	RecipientID string            `json:"recipientId"`
	Address     string            `json:"address"`
	Type        string            `json:"type"`
	Channel     string            `json:"channel"`
	Subject     string            `json:"subject"`
	Body        string            `json:"body"`
	ScheduledAt *time.Time        `json:"scheduledAt,omitempty"`
	Timezone    string            `json:"timezone,omitempty"`
	MaxRetries  *int              `json:"maxRetries,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type bulkEnqueueRequest struct {
	Recipients []bulkRecipientItem `json:"recipients"`
	Type       string              `json:"type"`
	Channel    string              `json:"channel"`
	Subject    string              `json:"subject"`
	Body       string              `json:"body"`
}

type bulkRecipientItem struct {
	RecipientID string `json:"recipientId"`
	Address     string `json:"address"`
}

type eventRequest struct {
	RecipientID string            `json:"recipientId"`
	Type        string            `json:"type"`
	Locale      string            `json:"locale,omitempty"`
	Data        map[string]string `json:"data,omitempty"`
	Channels    []string          `json:"channels"`
	Addresses   map[string]string `json:"addresses,omitempty"`
	ScheduledAt *time.Time        `json:"scheduledAt,omitempty"`
	Timezone    string            `json:"timezone,omitempty"`
}

type statusCallbackRequest struct {
	ExternalID string  `json:"externalId"`
	Status     string  `json:"status"`
	Reason     *string `json:"reason,omitempty"`
}

type deliveryResponse struct {
	ID                string            `json:"id"`
	ExternalID        *string           `json:"externalId,omitempty"`
	RecipientID       string            `json:"recipientId"`
	Address           string            `json:"address,omitempty"`
	Type              string            `json:"type"`
	Channel           string            `json:"channel"`
	Subject           string            `json:"subject,omitempty"`
	Body              string            `json:"body"`
	State             string            `json:"state"`
	RetryCount        int               `json:"retryCount"`
	MaxRetries        int               `json:"maxRetries"`
	NextRetryAt       *time.Time        `json:"nextRetryAt,omitempty"`
	LastFailureReason *string           `json:"lastFailureReason,omitempty"`
	ScheduledAt       *time.Time        `json:"scheduledAt,omitempty"`
	SentAt            *time.Time        `json:"sentAt,omitempty"`
	DeliveredAt       *time.Time        `json:"deliveredAt,omitempty"`
	FailedAt          *time.Time        `json:"failedAt,omitempty"`
	Metadata          map[string]string `json:"metadata,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

type bulkEnqueueResponse struct {
	CreatedCount int                `json:"createdCount"`
	FailedCount  int                `json:"failedCount"`
	SkippedCount int                `json:"skippedCount"`
	Deliveries   []deliveryResponse `json:"deliveries"`
}

type historyResponse struct {
	Data []deliveryResponse `json:"data"`
	Meta historyMeta        `json:"meta"`
}

type historyMeta struct {
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

func (h *DeliveryHandler) Enqueue(c *fiber.Ctx) error {
	var req enqueueRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	input, err := requestToEnqueueInput(req)
	if err != nil {
		return toHTTPError(err)
	}

	record, err := h.queue.Enqueue(c.Context(), input)
	if err != nil {
		if errors.Is(err, service.ErrSkipped) {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{
				"skipped": true,
				"reason":  "preference gate declined",
			})
		}
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toDeliveryResponse(record))
}

func (h *DeliveryHandler) EnqueueBulk(c *fiber.Ctx) error {
	var req bulkEnqueueRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	notificationType, err := domain.ParseNotificationTypeFromString(req.Type)
	if err != nil {
		return toHTTPError(err)
	}
	channel, err := domain.ParseChannelFromString(req.Channel)
	if err != nil {
		return toHTTPError(err)
	}

	recipients := make([]service.BulkRecipient, 0, len(req.Recipients))
	for _, item := range req.Recipients {
		recipients = append(recipients, service.BulkRecipient{
			RecipientID: strings.TrimSpace(item.RecipientID),
			Address:     strings.TrimSpace(item.Address),
		})
	}

	result, err := h.queue.EnqueueBulk(c.Context(), recipients, req.Subject, req.Body, notificationType, channel)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(bulkEnqueueResponse{
		CreatedCount: len(result.Created),
		FailedCount:  result.Failed,
		SkippedCount: result.Skipped,
		Deliveries:   toDeliveryResponses(result.Created),
	})
}

func (h *DeliveryHandler) EnqueueEvent(c *fiber.Ctx) error {
	var req eventRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	input, err := requestToEventInput(req)
	if err != nil {
		return toHTTPError(err)
	}

	result, err := h.queue.EnqueueEvent(c.Context(), input)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(bulkEnqueueResponse{
		CreatedCount: len(result.Created),
		FailedCount:  result.Failed,
		SkippedCount: result.Skipped,
		Deliveries:   toDeliveryResponses(result.Created),
	})
}

func (h *DeliveryHandler) GetDelivery(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	record, err := h.status.GetByID(c.Context(), id)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toDeliveryResponse(record))
}

func (h *DeliveryHandler) RetryDelivery(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.status.Retry(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"deliveryId": id,
		"state":      domain.StatePending.String(),
	})
}

func (h *DeliveryHandler) CancelDelivery(c *fiber.Ctx) error {
	id := strings.TrimSpace(c.Params("id"))
	if err := h.status.Cancel(c.Context(), id); err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"deliveryId": id,
		"state":      domain.StateCancelled.String(),
	})
}

func (h *DeliveryHandler) GetHistory(c *fiber.Ctx) error {
	recipientID := strings.TrimSpace(c.Params("recipientId"))

	params, err := parseHistoryParams(c)
	if err != nil {
		return toHTTPError(err)
	}

	records, total, err := h.status.History(c.Context(), recipientID, params)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(historyResponse{
		Data: toDeliveryResponses(records),
		Meta: historyMeta{
			Page:     params.Page,
			PageSize: params.PageSize,
			Total:    total,
		},
	})
}

func (h *DeliveryHandler) StatusCallback(c *fiber.Ctx) error {
	var req statusCallbackRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	if err := h.status.UpdateStatus(c.Context(), req.ExternalID, req.Status, req.Reason); err != nil {
		return toHTTPError(err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func parseHistoryParams(c *fiber.Ctx) (repository.ListParams, error) {
	params := repository.ListParams{
		Page:     c.QueryInt("page", defaultPage),
		PageSize: c.QueryInt("pageSize", defaultPageSize),
	}

	if params.Page < 1 {
		return repository.ListParams{}, fmt.Errorf("%w: page must be >= 1", domain.ErrValidation)
	}
	if params.PageSize < 1 || params.PageSize > maxPageSize {
		return repository.ListParams{}, fmt.Errorf("%w: pageSize must be between 1 and %d", domain.ErrValidation, maxPageSize)
	}

	if rawState := strings.TrimSpace(c.Query("state")); rawState != "" {
		state, err := domain.ParseStateFromString(rawState)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.State = &state
	}

	if rawChannel := strings.TrimSpace(c.Query("channel")); rawChannel != "" {
		channel, err := domain.ParseChannelFromString(rawChannel)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Channel = &channel
	}

	if rawType := strings.TrimSpace(c.Query("type")); rawType != "" {
		notificationType, err := domain.ParseNotificationTypeFromString(rawType)
		if err != nil {
			return repository.ListParams{}, err
		}
		params.Type = &notificationType
	}

	from, err := parseRFC3339Query(c.Query("from"), "from")
	if err != nil {
		return repository.ListParams{}, err
	}
	to, err := parseRFC3339Query(c.Query("to"), "to")
	if err != nil {
		return repository.ListParams{}, err
	}
	params.From = from
	params.To = to

	return params, nil
}

func parseRFC3339Query(value string, field string) (*time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}

	t, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be RFC3339", domain.ErrValidation, field)
	}
	return &t, nil
}

func requestToEnqueueInput(req enqueueRequest) (service.EnqueueInput, error) {
	notificationType, err := domain.ParseNotificationTypeFromString(req.Type)
	if err != nil {
		return service.EnqueueInput{}, err
	}

	channel, err := domain.ParseChannelFromString(req.Channel)
	if err != nil {
		return service.EnqueueInput{}, err
	}

	input := service.EnqueueInput{
		RecipientID: strings.TrimSpace(req.RecipientID),
		Address:     strings.TrimSpace(req.Address),
		Type:        notificationType,
		Channel:     channel,
		Subject:     req.Subject,
		Body:        req.Body,
		ScheduledAt: req.ScheduledAt,
		Timezone:    strings.TrimSpace(req.Timezone),
		Metadata:    req.Metadata,
	}
	if req.MaxRetries != nil {
		input.MaxRetries = *req.MaxRetries
	}

	return input, nil
}

func requestToEventInput(req eventRequest) (service.EventInput, error) {
	notificationType, err := domain.ParseNotificationTypeFromString(req.Type)
	if err != nil {
		return service.EventInput{}, err
	}

	channels := make([]domain.Channel, 0, len(req.Channels))
	for _, raw := range req.Channels {
		channel, err := domain.ParseChannelFromString(raw)
		if err != nil {
			return service.EventInput{}, err
		}
		channels = append(channels, channel)
	}

	addresses := make(map[domain.Channel]string, len(req.Addresses))
	for raw, address := range req.Addresses {
		channel, err := domain.ParseChannelFromString(raw)
		if err != nil {
			return service.EventInput{}, err
		}
		addresses[channel] = strings.TrimSpace(address)
	}

	return service.EventInput{
		RecipientID: strings.TrimSpace(req.RecipientID),
		Addresses:   addresses,
		Type:        notificationType,
		Locale:      strings.TrimSpace(req.Locale),
		Data:        req.Data,
		Channels:    channels,
		ScheduledAt: req.ScheduledAt,
		Timezone:    strings.TrimSpace(req.Timezone),
	}, nil
}

func toDeliveryResponse(r *domain.DeliveryRecord) deliveryResponse {
	if r == nil {
		return deliveryResponse{}
	}

	return deliveryResponse{
		ID:                r.ID,
		ExternalID:        r.ExternalID,
		RecipientID:       r.RecipientID,
		Address:           r.Address,
		Type:              r.Type.String(),
		Channel:           r.Channel.String(),
		Subject:           r.Subject,
		Body:              r.Body,
		State:             r.State.String(),
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

func toDeliveryResponses(records []domain.DeliveryRecord) []deliveryResponse {
	responses := make([]deliveryResponse, 0, len(records))
	for i := range records {
		responses = append(responses, toDeliveryResponse(&records[i]))
	}
	return responses
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
