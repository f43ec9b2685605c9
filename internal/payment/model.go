// internal/payment/model.go
package payment

import (
	"time"

	"github.com/shopspring/decimal"

	apperr "github.com/example/rent-payments-poc/pkg/errors"
)

type State string

const (
	StatePending   State = "PENDING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
)

func (s State) Terminal() bool { return s == StateSucceeded || s == StateFailed }

// PendingCursor is a position in the (CreatedAt, CorrelationID) order of
// pending records. The zero cursor is the start.
type PendingCursor struct {
	CreatedAt     time.Time
	CorrelationID string
}

func (c PendingCursor) IsZero() bool { return c.CreatedAt.IsZero() && c.CorrelationID == "" }

// Precedes reports whether p sorts after c.
func (c PendingCursor) Precedes(p *PendingPayment) bool {
	if c.IsZero() {
		return true
	}
	if !p.CreatedAt.Equal(c.CreatedAt) {
		return p.CreatedAt.After(c.CreatedAt)
	}
	return p.CorrelationID > c.CorrelationID
}

// PendingPayment is one push payment awaiting (or holding) its outcome.
// Amount and PhoneNumber are what was requested; the callback's own values
// are kept alongside in PaidAmount and PayerPhone.
type PendingPayment struct {
	CorrelationID     string
	MerchantRequestID string
	TenantReference   string
	PhoneNumber       string
	Amount            decimal.Decimal
	State             State
	CreatedAt         time.Time
	ResolvedAt        *time.Time

	GatewayReceiptID string
	FailureReason    string
	ResultCode       *int
	PaidAmount       decimal.NullDecimal
	PayerPhone       string
	TransactionAt    *time.Time
}

// Resolution is the terminal transition applied to a pending record.
type Resolution struct {
	State         State
	ResultCode    int
	ResolvedAt    time.Time
	FailureReason string
	Receipt       *Receipt
}

// Apply returns a resolved copy of p. p itself is never modified.
func (p *PendingPayment) Apply(res Resolution) (*PendingPayment, error) {
	if p.State.Terminal() {
		return nil, apperr.New(apperr.CodeAlreadyResolved, "payment "+p.CorrelationID+" is already "+string(p.State))
	}
	if err := res.Validate(); err != nil {
		return nil, err
	}

	next := *p
	next.State = res.State
	resolvedAt := res.ResolvedAt
	next.ResolvedAt = &resolvedAt
	code := res.ResultCode
	next.ResultCode = &code

	switch res.State {
	case StateSucceeded:
		next.GatewayReceiptID = res.Receipt.ReceiptID
		next.PaidAmount = decimal.NewNullDecimal(res.Receipt.Amount)
		next.PayerPhone = res.Receipt.PayerPhone
		at := res.Receipt.TransactionAt
		next.TransactionAt = &at
	case StateFailed:
		next.FailureReason = res.FailureReason
	}
	return &next, nil
}

// Validate rejects resolutions that would break the terminal-state rules.
func (r Resolution) Validate() error {
	switch r.State {
	case StateSucceeded:
		if r.Receipt == nil || r.Receipt.ReceiptID == "" {
			return apperr.New(apperr.CodeInternal, "succeeded resolution without receipt")
		}
	case StateFailed:
	default:
		return apperr.New(apperr.CodeInternal, "resolution to non-terminal state "+string(r.State))
	}
	if r.ResolvedAt.IsZero() {
		return apperr.New(apperr.CodeInternal, "resolution without timestamp")
	}
	return nil
}

func (p *PendingPayment) Cursor() PendingCursor {
	return PendingCursor{CreatedAt: p.CreatedAt, CorrelationID: p.CorrelationID}
}

// StatusView is the read model returned to callers polling for an outcome.
type StatusView struct {
	CorrelationID    string          `json:"correlationId"`
	State            State           `json:"state"`
	TenantReference  string          `json:"tenantReference"`
	Amount           decimal.Decimal `json:"amount"`
	GatewayReceiptID string          `json:"gatewayReceiptId,omitempty"`
	FailureReason    string          `json:"failureReason,omitempty"`
	CreatedAt        time.Time       `json:"createdAt"`
	ResolvedAt       *time.Time      `json:"resolvedAt,omitempty"`
}
