package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const defaultPushTimeout = 10 * time.Second

type pushRequest struct {
	DeviceRef string            `json:"deviceRef"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Data      map[string]string `json:"data,omitempty"`
}

type pushResponse struct {
	MessageID string `json:"messageId"`
}

// PushGatewaySender delivers push notifications through an HTTP push gateway.
type PushGatewaySender struct {
	client   *resty.Client
	endpoint string
}

func NewPushGatewaySender(endpoint string) (*PushGatewaySender, error) {
	client := resty.New()
	client.SetTimeout(defaultPushTimeout)
	client.SetRetryCount(0)

	return NewPushGatewaySenderWithClient(endpoint, client)
}

func NewPushGatewaySenderWithClient(endpoint string, client *resty.Client) (*PushGatewaySender, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("push gateway endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid push gateway endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultPushTimeout)
	}
	client.SetRetryCount(0)

	return &PushGatewaySender{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (s *PushGatewaySender) Send(ctx context.Context, deviceRef, title, message string, data map[string]string) (string, error) {
	if s == nil || s.client == nil {
		return "", fmt.Errorf("push sender is not initialized")
	}
	if strings.TrimSpace(deviceRef) == "" {
		return "", &TransportError{Message: "device reference is required"}
	}

	reqBody := pushRequest{
		DeviceRef: deviceRef,
		Title:     title,
		Message:   message,
		Data:      data,
	}

	var result pushResponse
	response, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		SetResult(&result).
		Post(s.endpoint)
	if err != nil {
		return "", &TransportError{
			Message:   "push gateway request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return "", &TransportError{
			Message:   "push gateway returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return "", &TransportError{
			StatusCode: statusCode,
			Message:    gatewayErrorMessage(statusCode, strings.TrimSpace(response.String())),
			Transient:  isTransientHTTPStatus(statusCode),
		}
	}

	messageID := strings.TrimSpace(result.MessageID)
	if messageID == "" {
		messageID = headerMessageID(response)
	}
	return messageID, nil
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func gatewayErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("push gateway returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}

func headerMessageID(response *resty.Response) string {
	if response == nil {
		return ""
	}

	for _, key := range []string{"X-Message-ID", "X-Message-Id", "X-Request-ID", "X-Request-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}

	return ""
}
