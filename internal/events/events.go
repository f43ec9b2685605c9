// internal/events/events.go
package events

import (
	"context"
	"time"
)

// PaymentResolved is emitted once per pending payment, after its terminal
// state is committed.
type PaymentResolved struct {
	EventID          string    `json:"eventId"`
	CorrelationID    string    `json:"correlationId"`
	TenantReference  string    `json:"tenantReference"`
	PhoneNumber      string    `json:"phoneNumber"`
	Amount           string    `json:"amount"`
	State            string    `json:"state"`
	GatewayReceiptID string    `json:"gatewayReceiptId,omitempty"`
	FailureReason    string    `json:"failureReason,omitempty"`
	ResolvedAt       time.Time `json:"resolvedAt"`
}

func (e PaymentResolved) Key() []byte { return []byte(e.CorrelationID) }

type Publisher interface {
	Publish(ctx context.Context, evt PaymentResolved) error
}

// Handler consumes a delivered event. An error asks for redelivery; the
// consumer retries a bounded number of times and then skips the message.
type Handler func(ctx context.Context, evt PaymentResolved) error
