package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/example/rent-payments-poc/internal/events"
)

func TestCompose(t *testing.T) {
	var tests = []struct {
		name   string
		evt    events.PaymentResolved
		title  string
		body   string
		urgent bool
	}{
		{
			name:  "succeeded",
			evt:   events.PaymentResolved{State: "SUCCEEDED", Amount: "1500", GatewayReceiptID: "ABC123"},
			title: "Payment Successful",
			body:  "Payment of KES 1500 received. M-Pesa receipt ABC123.",
		},
		{
			name:   "failed",
			evt:    events.PaymentResolved{State: "FAILED", Amount: "1500", FailureReason: "Request cancelled by user"},
			title:  "Payment Failed",
			body:   "Payment of KES 1500 failed: Request cancelled by user",
			urgent: true,
		},
		{
			name:   "failed without reason",
			evt:    events.PaymentResolved{State: "FAILED", Amount: "200"},
			title:  "Payment Failed",
			body:   "Payment of KES 200 failed: unknown reason",
			urgent: true,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			msg := Compose(tt.evt)
			assert.Equal(t, tt.title, msg.Title)
			assert.Equal(t, tt.body, msg.Body)
			assert.Equal(t, tt.urgent, msg.Urgent)
		})
	}
}

func TestWebhookNotifier(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second)
	err := n.Notify(context.Background(), Message{TenantReference: "RENT_42", Title: "Payment Successful", Body: "ok"})
	require.NoError(t, err)
	assert.Equal(t, "RENT_42", got.TenantReference)
	assert.Equal(t, "ok", got.Body)
}

func TestWebhookNotifier_RelayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL, time.Second).Notify(context.Background(), Message{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

type failingNotifier struct{ calls int }

func (f *failingNotifier) Notify(context.Context, Message) error {
	f.calls++
	return errors.New("relay down")
}

func TestService_SwallowsDeliveryErrors(t *testing.T) {
	n := &failingNotifier{}
	s := NewService(n, zap.NewNop())

	err := s.Handle(context.Background(), events.PaymentResolved{CorrelationID: "ws_CO_1", State: "SUCCEEDED"})
	assert.NoError(t, err)
	assert.Equal(t, 1, n.calls)
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, LogNotifier{Logger: zap.NewNop()}.Notify(context.Background(), Message{Title: "x"}))
}
