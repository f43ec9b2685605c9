package payment

import (
	"context"
	"time"

	"github.com/example/rent-payments-poc/internal/events"
	"github.com/example/rent-payments-poc/internal/gateway/mpesa"
)

// Reader is the read side of the ledger.
type Reader interface {
	Get(ctx context.Context, correlationID string) (*PendingPayment, error)
}

// Ledger stores pending payments keyed by correlation id.
//
// Resolve is a compare-and-swap on state: it succeeds for exactly one
// caller per record and returns ErrAlreadyResolved to the rest. An unknown
// id yields ErrNotFound. Create on an existing id yields ErrConflict.
// ListPending pages through pending records in (CreatedAt, CorrelationID)
// order, starting after the given cursor.
type Ledger interface {
	Reader
	Create(ctx context.Context, p *PendingPayment) error
	Resolve(ctx context.Context, correlationID string, res Resolution) (*PendingPayment, error)
	ListPending(ctx context.Context, createdBefore time.Time, after PendingCursor, limit int) ([]*PendingPayment, error)
}

type Gateway interface {
	PushPayment(ctx context.Context, req mpesa.PushRequest) (*mpesa.PushAck, error)
}

// Emitter hands resolved events off without blocking.
type Emitter interface {
	Emit(evt events.PaymentResolved) bool
}
