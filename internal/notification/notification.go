// internal/notification/notification.go
package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/example/rent-payments-poc/internal/events"
)

const currency = "KES"

// Message is what the tenant sees in the app's notification list.
type Message struct {
	CorrelationID   string `json:"correlationId"`
	TenantReference string `json:"tenantReference"`
	PhoneNumber     string `json:"phoneNumber"`
	Title           string `json:"title"`
	Body            string `json:"message"`
	Urgent          bool   `json:"is_urgent"`
}

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// Compose turns a resolved payment into a tenant-facing message.
func Compose(evt events.PaymentResolved) Message {
	msg := Message{
		CorrelationID:   evt.CorrelationID,
		TenantReference: evt.TenantReference,
		PhoneNumber:     evt.PhoneNumber,
	}
	if evt.State == "SUCCEEDED" {
		msg.Title = "Payment Successful"
		msg.Body = fmt.Sprintf("Payment of %s %s received. M-Pesa receipt %s.", currency, evt.Amount, evt.GatewayReceiptID)
		return msg
	}
	reason := evt.FailureReason
	if reason == "" {
		reason = "unknown reason"
	}
	msg.Title = "Payment Failed"
	msg.Body = fmt.Sprintf("Payment of %s %s failed: %s", currency, evt.Amount, reason)
	msg.Urgent = true
	return msg
}

// Service consumes resolved events. Delivery failures are logged and
// swallowed so one bad webhook does not stall the consumer.
type Service struct {
	notifier Notifier
	logger   *zap.Logger
}

func NewService(n Notifier, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{notifier: n, logger: logger}
}

func (s *Service) Handle(ctx context.Context, evt events.PaymentResolved) error {
	msg := Compose(evt)
	if err := s.notifier.Notify(ctx, msg); err != nil {
		s.logger.Error("notify tenant",
			zap.Error(err),
			zap.String("event_id", evt.EventID),
			zap.String("correlation_id", evt.CorrelationID))
		return nil
	}
	s.logger.Info("tenant notified",
		zap.String("correlation_id", evt.CorrelationID),
		zap.String("tenant_reference", evt.TenantReference),
		zap.String("state", evt.State))
	return nil
}

// WebhookNotifier relays messages to an HTTP push relay.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	return &WebhookNotifier{url: url, client: &http.Client{Timeout: timeout}}
}

func (w *WebhookNotifier) Notify(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notification relay returned %d: %s", resp.StatusCode, body)
	}
	return nil
}

type LogNotifier struct {
	Logger *zap.Logger
}

func (l LogNotifier) Notify(_ context.Context, msg Message) error {
	l.Logger.Info("notification",
		zap.String("tenant_reference", msg.TenantReference),
		zap.String("title", msg.Title),
		zap.String("message", msg.Body),
		zap.Bool("urgent", msg.Urgent))
	return nil
}
