// internal/ledger/memory.go
package ledger

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/example/rent-payments-poc/internal/payment"
	apperr "github.com/example/rent-payments-poc/pkg/errors"
)

type entry struct {
	current atomic.Pointer[payment.PendingPayment]
}

// Memory keeps every record behind its own atomic pointer. Stored values
// are never mutated; a resolution swaps in a new value, so reads need no
// lock and only one resolver per record can win.
type Memory struct {
	records sync.Map // correlation id -> *entry
}

func NewMemory() *Memory { return &Memory{} }

func (l *Memory) Create(_ context.Context, p *payment.PendingPayment) error {
	if p.CorrelationID == "" {
		return apperr.New(apperr.CodeValidation, "correlation id is required")
	}
	e := &entry{}
	e.current.Store(clone(p))
	if _, loaded := l.records.LoadOrStore(p.CorrelationID, e); loaded {
		return apperr.New(apperr.CodeConflict, "payment "+p.CorrelationID+" already exists")
	}
	return nil
}

func (l *Memory) Get(_ context.Context, correlationID string) (*payment.PendingPayment, error) {
	e, err := l.entry(correlationID)
	if err != nil {
		return nil, err
	}
	return clone(e.current.Load()), nil
}

func (l *Memory) Resolve(_ context.Context, correlationID string, res payment.Resolution) (*payment.PendingPayment, error) {
	e, err := l.entry(correlationID)
	if err != nil {
		return nil, err
	}
	for {
		cur := e.current.Load()
		next, err := cur.Apply(res)
		if err != nil {
			return nil, err
		}
		if e.current.CompareAndSwap(cur, next) {
			return clone(next), nil
		}
	}
}

// ListPending returns the oldest pending records created before createdBefore
// that sort after the cursor.
func (l *Memory) ListPending(_ context.Context, createdBefore time.Time, after payment.PendingCursor, limit int) ([]*payment.PendingPayment, error) {
	var out []*payment.PendingPayment
	l.records.Range(func(_, v any) bool {
		p := v.(*entry).current.Load()
		if p.State == payment.StatePending && p.CreatedAt.Before(createdBefore) && after.Precedes(p) {
			out = append(out, clone(p))
		}
		return true
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].CorrelationID < out[j].CorrelationID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *Memory) entry(correlationID string) (*entry, error) {
	v, ok := l.records.Load(correlationID)
	if !ok {
		return nil, apperr.New(apperr.CodeNotFound, "payment "+correlationID+" not found")
	}
	return v.(*entry), nil
}

func clone(p *payment.PendingPayment) *payment.PendingPayment {
	cp := *p
	if p.ResolvedAt != nil {
		t := *p.ResolvedAt
		cp.ResolvedAt = &t
	}
	if p.TransactionAt != nil {
		t := *p.TransactionAt
		cp.TransactionAt = &t
	}
	if p.ResultCode != nil {
		c := *p.ResultCode
		cp.ResultCode = &c
	}
	return &cp
}
