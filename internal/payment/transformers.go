package payment

import (
	"github.com/google/uuid"

	"github.com/example/rent-payments-poc/internal/events"
)

func toResolvedEvent(p *PendingPayment) events.PaymentResolved {
	evt := events.PaymentResolved{
		EventID:          uuid.NewString(),
		CorrelationID:    p.CorrelationID,
		TenantReference:  p.TenantReference,
		PhoneNumber:      p.PhoneNumber,
		Amount:           p.Amount.String(),
		State:            string(p.State),
		GatewayReceiptID: p.GatewayReceiptID,
		FailureReason:    p.FailureReason,
	}
	if p.ResolvedAt != nil {
		evt.ResolvedAt = *p.ResolvedAt
	}
	return evt
}

func ToStatusView(p *PendingPayment) *StatusView {
	return &StatusView{
		CorrelationID:    p.CorrelationID,
		State:            p.State,
		TenantReference:  p.TenantReference,
		Amount:           p.Amount,
		GatewayReceiptID: p.GatewayReceiptID,
		FailureReason:    p.FailureReason,
		CreatedAt:        p.CreatedAt,
		ResolvedAt:       p.ResolvedAt,
	}
}
