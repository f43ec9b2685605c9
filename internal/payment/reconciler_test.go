package payment_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/example/rent-payments-poc/internal/events"
	"github.com/example/rent-payments-poc/internal/gateway/mpesa"
	"github.com/example/rent-payments-poc/internal/ledger"
	"github.com/example/rent-payments-poc/internal/payment"
	apperr "github.com/example/rent-payments-poc/pkg/errors"
)

type stubGateway struct {
	mock.Mock
}

func (s *stubGateway) PushPayment(ctx context.Context, req mpesa.PushRequest) (*mpesa.PushAck, error) {
	args := s.Called(ctx, req)
	ack, _ := args.Get(0).(*mpesa.PushAck)
	return ack, args.Error(1)
}

type recorder struct {
	mu  sync.Mutex
	got []events.PaymentResolved
}

func (r *recorder) Emit(evt events.PaymentResolved) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, evt)
	return true
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}

type harness struct {
	ledger     *ledger.Memory
	emitted    *recorder
	initiator  *payment.Initiator
	reconciler *payment.Reconciler
	status     *payment.StatusService
}

func newHarness(t *testing.T, ackIDs ...string) *harness {
	t.Helper()
	gw := &stubGateway{}
	for _, id := range ackIDs {
		gw.On("PushPayment", mock.Anything, mock.Anything).Return(&mpesa.PushAck{
			MerchantRequestID: "m-" + id,
			CheckoutRequestID: id,
			ResponseCode:      "0",
		}, nil).Once()
	}
	l := ledger.NewMemory()
	rec := &recorder{}
	return &harness{
		ledger:     l,
		emitted:    rec,
		initiator:  payment.NewInitiator(gw, l, payment.InitiatorConfig{}, nil),
		reconciler: payment.NewReconciler(l, rec, nil),
		status:     payment.NewStatusService(l),
	}
}

func (h *harness) initiate(t *testing.T, amount int64) string {
	t.Helper()
	res, err := h.initiator.Initiate(context.Background(), payment.InitiateRequest{
		Phone:           "0712345678",
		Amount:          decimal.NewFromInt(amount),
		TenantReference: "RENT_42",
	})
	require.NoError(t, err)
	return res.CorrelationID
}

func successCallback(id, receipt string, amount string) payment.Callback {
	return payment.Callback{
		CorrelationID: id,
		ResultCode:    0,
		ResultDesc:    "The service request is processed successfully.",
		Items: []payment.MetadataItem{
			{Name: "Amount", Value: json.RawMessage(amount)},
			{Name: "MpesaReceiptNumber", Value: json.RawMessage(`"` + receipt + `"`)},
			{Name: "TransactionDate", Value: json.RawMessage(`20240101120000`)},
			{Name: "PhoneNumber", Value: json.RawMessage(`254712345678`)},
		},
	}
}

func failureCallback(id string) payment.Callback {
	return payment.Callback{CorrelationID: id, ResultCode: 1032, ResultDesc: "Request cancelled by user"}
}

func TestEndToEnd_InitiateCallbackStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "ws_CO_1")

	id := h.initiate(t, 1500)
	view, err := h.status.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, payment.StatePending, view.State)
	assert.Nil(t, view.ResolvedAt)

	out, err := h.reconciler.Reconcile(ctx, successCallback(id, "ABC123", "1500"))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeSucceeded, out)

	view, err = h.status.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, payment.StateSucceeded, view.State)
	assert.Equal(t, "ABC123", view.GatewayReceiptID)
	assert.Equal(t, "RENT_42", view.TenantReference)
	assert.True(t, view.Amount.Equal(decimal.NewFromInt(1500)))
	assert.NotNil(t, view.ResolvedAt)

	require.Equal(t, 1, h.emitted.count())
	evt := h.emitted.got[0]
	assert.Equal(t, id, evt.CorrelationID)
	assert.Equal(t, "SUCCEEDED", evt.State)
	assert.Equal(t, "ABC123", evt.GatewayReceiptID)
	assert.NotEmpty(t, evt.EventID)
}

func TestReconcile_DuplicateDeliveryIsNoop(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "ws_CO_1")
	id := h.initiate(t, 1500)

	out, err := h.reconciler.Reconcile(ctx, successCallback(id, "ABC123", "1500"))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeSucceeded, out)
	first, err := h.ledger.Get(ctx, id)
	require.NoError(t, err)

	out, err = h.reconciler.Reconcile(ctx, successCallback(id, "ABC123", "1500"))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeDuplicate, out)

	second, err := h.ledger.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, h.emitted.count())
}

func TestReconcile_FailureThenLateSuccessKeepsFailure(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "ws_CO_1")
	id := h.initiate(t, 1500)

	out, err := h.reconciler.Reconcile(ctx, failureCallback(id))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeFailed, out)

	out, err = h.reconciler.Reconcile(ctx, successCallback(id, "ABC123", "1500"))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeDuplicate, out)

	view, err := h.status.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, payment.StateFailed, view.State)
	assert.Equal(t, "Request cancelled by user", view.FailureReason)
	assert.Empty(t, view.GatewayReceiptID)
}

func TestReconcile_UnknownCorrelation(t *testing.T) {
	h := newHarness(t)

	_, err := h.reconciler.Reconcile(context.Background(), successCallback("ws_CO_nope", "ABC123", "1500"))
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrUnknownCorrelation)
	assert.Equal(t, 0, h.emitted.count())
}

func TestReconcile_MalformedSuccessLeavesPending(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "ws_CO_1")
	id := h.initiate(t, 1500)

	cb := successCallback(id, "ABC123", "1500")
	cb.Items = cb.Items[:1] // amount only
	_, err := h.reconciler.Reconcile(ctx, cb)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperr.ErrMalformedCallback)

	view, err := h.status.Status(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, payment.StatePending, view.State)

	// A well-formed redelivery still resolves it.
	out, err := h.reconciler.Reconcile(ctx, successCallback(id, "ABC123", "1500"))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeSucceeded, out)
}

func TestReconcile_MissingCorrelationID(t *testing.T) {
	h := newHarness(t)
	_, err := h.reconciler.Reconcile(context.Background(), payment.Callback{ResultCode: 0})
	assert.ErrorIs(t, err, apperr.ErrMalformedCallback)
}

func TestReconcile_AmountMismatchStillSucceeds(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "ws_CO_1")
	id := h.initiate(t, 1500)

	out, err := h.reconciler.Reconcile(ctx, successCallback(id, "ABC123", "1400"))
	require.NoError(t, err)
	assert.Equal(t, payment.OutcomeSucceeded, out)

	p, err := h.ledger.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, p.Amount.Equal(decimal.NewFromInt(1500)))
	assert.True(t, p.PaidAmount.Decimal.Equal(decimal.NewFromInt(1400)))
	assert.Equal(t, "254712345678", p.PhoneNumber)
}

func TestReconcile_ConcurrentDuplicates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, "ws_CO_1")
	id := h.initiate(t, 1500)

	var applied, duplicates atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cb := successCallback(id, "ABC123", "1500")
			if i%2 == 1 {
				cb = failureCallback(id)
			}
			out, err := h.reconciler.Reconcile(ctx, cb)
			if !assert.NoError(t, err) {
				return
			}
			if out == payment.OutcomeDuplicate {
				duplicates.Add(1)
			} else {
				applied.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), applied.Load())
	assert.Equal(t, int32(31), duplicates.Load())
	assert.Equal(t, 1, h.emitted.count())

	p, err := h.ledger.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, p.State.Terminal())
}

func TestStatus_NotFoundAndBlankID(t *testing.T) {
	h := newHarness(t)

	_, err := h.status.Status(context.Background(), "ws_CO_nope")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = h.status.Status(context.Background(), "  ")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}

type brokenLedger struct {
	payment.Ledger
}

func (brokenLedger) Get(context.Context, string) (*payment.PendingPayment, error) {
	return nil, errors.New("database unavailable")
}

func TestReconcile_LedgerErrorIsNotAnOutcome(t *testing.T) {
	r := payment.NewReconciler(brokenLedger{}, nil, nil)
	out, err := r.Reconcile(context.Background(), failureCallback("ws_CO_1"))
	require.Error(t, err)
	assert.Empty(t, out)
	assert.False(t, apperr.Is(err, apperr.ErrUnknownCorrelation))
}
