package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestPushGatewaySenderSendSuccess(t *testing.T) {
	t.Parallel()

	var gotBody pushRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}

		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"messageId":"gw-msg-42"}`))
	}))
	defer server.Close()

	sender, err := NewPushGatewaySender(server.URL)
	if err != nil {
		t.Fatalf("NewPushGatewaySender() error = %v", err)
	}

	messageID, err := sender.Send(context.Background(), "device-token-1", "Quiz open", "Quiz 3 is now open.", map[string]string{"courseId": "c-9"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if messageID != "gw-msg-42" {
		t.Fatalf("messageID = %q, want gw-msg-42", messageID)
	}
	if gotBody.DeviceRef != "device-token-1" {
		t.Fatalf("deviceRef = %q, want device-token-1", gotBody.DeviceRef)
	}
	if gotBody.Title != "Quiz open" {
		t.Fatalf("title = %q", gotBody.Title)
	}
	if gotBody.Data["courseId"] != "c-9" {
		t.Fatalf("data = %v", gotBody.Data)
	}
}

func TestPushGatewaySenderMessageIDFromHeader(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Message-ID", "hdr-msg-7")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	sender, err := NewPushGatewaySender(server.URL)
	if err != nil {
		t.Fatalf("NewPushGatewaySender() error = %v", err)
	}

	messageID, err := sender.Send(context.Background(), "device-token-1", "t", "m", nil)
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if messageID != "hdr-msg-7" {
		t.Fatalf("messageID = %q, want hdr-msg-7", messageID)
	}
}

func TestPushGatewaySenderStatusClassification(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		statusCode    int
		wantTransient bool
	}{
		{name: "too many requests is transient", statusCode: http.StatusTooManyRequests, wantTransient: true},
		{name: "bad request is permanent", statusCode: http.StatusBadRequest, wantTransient: false},
		{name: "unauthorized is permanent", statusCode: http.StatusUnauthorized, wantTransient: false},
		{name: "internal server error is transient", statusCode: http.StatusInternalServerError, wantTransient: true},
		{name: "bad gateway is transient", statusCode: http.StatusBadGateway, wantTransient: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.statusCode)
			}))
			defer server.Close()

			sender, err := NewPushGatewaySender(server.URL)
			if err != nil {
				t.Fatalf("NewPushGatewaySender() error = %v", err)
			}

			_, err = sender.Send(context.Background(), "device-token-1", "t", "m", nil)
			if err == nil {
				t.Fatalf("Send() error = nil, want transport error for status %d", tc.statusCode)
			}

			var transportErr *TransportError
			if !errors.As(err, &transportErr) {
				t.Fatalf("error type = %T, want *TransportError", err)
			}
			if transportErr.StatusCode != tc.statusCode {
				t.Fatalf("status = %d, want %d", transportErr.StatusCode, tc.statusCode)
			}
			if transportErr.Transient != tc.wantTransient {
				t.Fatalf("transient = %v, want %v", transportErr.Transient, tc.wantTransient)
			}
		})
	}
}

func TestPushGatewaySenderRequiresDeviceRef(t *testing.T) {
	t.Parallel()

	sender, err := NewPushGatewaySender("http://localhost:9")
	if err != nil {
		t.Fatalf("NewPushGatewaySender() error = %v", err)
	}

	_, err = sender.Send(context.Background(), "  ", "t", "m", nil)
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("error = %v, want *TransportError", err)
	}
	if transportErr.Transient {
		t.Fatal("missing device ref must be permanent")
	}
}

func TestNewPushGatewaySenderValidatesEndpoint(t *testing.T) {
	t.Parallel()

	if _, err := NewPushGatewaySender(""); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
	if _, err := NewPushGatewaySender("not a url"); err == nil {
		t.Fatal("expected error for malformed endpoint")
	}
}
