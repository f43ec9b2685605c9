package ledger

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/rent-payments-poc/internal/payment"
	apperr "github.com/example/rent-payments-poc/pkg/errors"
)

func newPending(id string, createdAt time.Time) *payment.PendingPayment {
	return &payment.PendingPayment{
		CorrelationID:     id,
		MerchantRequestID: "m-" + id,
		TenantReference:   "RENT_42",
		PhoneNumber:       "254712345678",
		Amount:            decimal.NewFromInt(1500),
		State:             payment.StatePending,
		CreatedAt:         createdAt.UTC().Truncate(time.Microsecond),
	}
}

func succeeded(receipt string) payment.Resolution {
	return payment.Resolution{
		State:      payment.StateSucceeded,
		ResultCode: 0,
		ResolvedAt: time.Now().UTC().Truncate(time.Microsecond),
		Receipt: &payment.Receipt{
			Amount:        decimal.NewFromInt(1500),
			ReceiptID:     receipt,
			PayerPhone:    "254712345678",
			TransactionAt: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		},
	}
}

func failed(reason string) payment.Resolution {
	return payment.Resolution{
		State:         payment.StateFailed,
		ResultCode:    1032,
		ResolvedAt:    time.Now().UTC().Truncate(time.Microsecond),
		FailureReason: reason,
	}
}

// runLedgerContract checks the behaviour every Ledger implementation shares.
// prefix keeps ids unique when the backing store outlives one run.
func runLedgerContract(t *testing.T, l payment.Ledger, prefix string) {
	ctx := context.Background()
	id := func(s string) string { return prefix + s }

	t.Run("create and get", func(t *testing.T) {
		p := newPending(id("create"), time.Now())
		require.NoError(t, l.Create(ctx, p))

		got, err := l.Get(ctx, p.CorrelationID)
		require.NoError(t, err)
		assert.Equal(t, payment.StatePending, got.State)
		assert.True(t, got.Amount.Equal(p.Amount))
		assert.Equal(t, "RENT_42", got.TenantReference)
		assert.Nil(t, got.ResolvedAt)
		assert.Empty(t, got.GatewayReceiptID)
	})

	t.Run("duplicate create conflicts", func(t *testing.T) {
		p := newPending(id("dup"), time.Now())
		require.NoError(t, l.Create(ctx, p))
		err := l.Create(ctx, p)
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := l.Get(ctx, id("missing"))
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		_, err = l.Resolve(ctx, id("missing"), failed("x"))
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("resolve succeeded once", func(t *testing.T) {
		p := newPending(id("ok"), time.Now())
		require.NoError(t, l.Create(ctx, p))

		got, err := l.Resolve(ctx, p.CorrelationID, succeeded("ABC123"))
		require.NoError(t, err)
		assert.Equal(t, payment.StateSucceeded, got.State)
		assert.Equal(t, "ABC123", got.GatewayReceiptID)
		assert.Empty(t, got.FailureReason)
		require.NotNil(t, got.ResolvedAt)
		require.NotNil(t, got.ResultCode)
		assert.Equal(t, 0, *got.ResultCode)
		assert.True(t, got.PaidAmount.Valid)

		_, err = l.Resolve(ctx, p.CorrelationID, failed("late"))
		assert.ErrorIs(t, err, apperr.ErrAlreadyResolved)

		again, err := l.Get(ctx, p.CorrelationID)
		require.NoError(t, err)
		assert.Equal(t, payment.StateSucceeded, again.State)
		assert.Equal(t, "ABC123", again.GatewayReceiptID)
		assert.True(t, again.Amount.Equal(decimal.NewFromInt(1500)))
		assert.Equal(t, "254712345678", again.PhoneNumber)
	})

	t.Run("resolve failed", func(t *testing.T) {
		p := newPending(id("fail"), time.Now())
		require.NoError(t, l.Create(ctx, p))

		got, err := l.Resolve(ctx, p.CorrelationID, failed("Request cancelled by user"))
		require.NoError(t, err)
		assert.Equal(t, payment.StateFailed, got.State)
		assert.Equal(t, "Request cancelled by user", got.FailureReason)
		assert.Empty(t, got.GatewayReceiptID)
		assert.False(t, got.PaidAmount.Valid)
	})

	t.Run("concurrent resolvers have one winner", func(t *testing.T) {
		p := newPending(id("race"), time.Now())
		require.NoError(t, l.Create(ctx, p))

		var wins, losses atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res := succeeded(fmt.Sprintf("R%02d", i))
				if i%2 == 1 {
					res = failed(fmt.Sprintf("reason %d", i))
				}
				_, err := l.Resolve(ctx, p.CorrelationID, res)
				switch {
				case err == nil:
					wins.Add(1)
				case apperr.Is(err, apperr.ErrAlreadyResolved):
					losses.Add(1)
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
		assert.Equal(t, int32(15), losses.Load())
	})

	t.Run("list pending oldest first", func(t *testing.T) {
		base := time.Now().Add(-time.Hour)
		for i := 0; i < 3; i++ {
			require.NoError(t, l.Create(ctx, newPending(id(fmt.Sprintf("stale-%d", i)), base.Add(time.Duration(i)*time.Minute))))
		}
		resolved := newPending(id("stale-resolved"), base)
		require.NoError(t, l.Create(ctx, resolved))
		_, err := l.Resolve(ctx, resolved.CorrelationID, failed("x"))
		require.NoError(t, err)

		got, err := l.ListPending(ctx, base.Add(90*time.Second), payment.PendingCursor{}, 10)
		require.NoError(t, err)
		var ids []string
		for _, p := range got {
			ids = append(ids, p.CorrelationID)
		}
		assert.Equal(t, []string{id("stale-0"), id("stale-1")}, ids)

		got, err = l.ListPending(ctx, base.Add(time.Hour), payment.PendingCursor{}, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, id("stale-0"), got[0].CorrelationID)

		got, err = l.ListPending(ctx, base.Add(time.Hour), got[0].Cursor(), 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, id("stale-1"), got[0].CorrelationID)
	})

	t.Run("list pending pages past equal timestamps", func(t *testing.T) {
		at := time.Now().Add(-2 * time.Hour).Truncate(time.Microsecond)
		for _, suffix := range []string{"tie-b", "tie-a", "tie-c"} {
			require.NoError(t, l.Create(ctx, newPending(id(suffix), at)))
		}
		cursor := payment.PendingCursor{CreatedAt: at.Add(-time.Nanosecond)}
		var ids []string
		for i := 0; i < 3; i++ {
			got, err := l.ListPending(ctx, at.Add(time.Second), cursor, 1)
			require.NoError(t, err)
			require.Len(t, got, 1)
			ids = append(ids, got[0].CorrelationID)
			cursor = got[0].Cursor()
		}
		assert.Equal(t, []string{id("tie-a"), id("tie-b"), id("tie-c")}, ids)
	})
}
