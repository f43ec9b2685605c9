// internal/payment/reconciler.go
package payment

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	apperr "github.com/example/rent-payments-poc/pkg/errors"
	m "github.com/example/rent-payments-poc/pkg/metrics"
)

type Outcome string

const (
	OutcomeSucceeded Outcome = "succeeded"
	OutcomeFailed    Outcome = "failed"
	OutcomeDuplicate Outcome = "duplicate"
)

// Reconciler applies gateway callbacks to the ledger. Each pending record
// transitions at most once no matter how often or how concurrently its
// callback is delivered.
type Reconciler struct {
	ledger  Ledger
	emitter Emitter
	logger  *zap.Logger
	now     func() time.Time
}

func NewReconciler(ledger Ledger, emitter Emitter, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{ledger: ledger, emitter: emitter, logger: logger, now: time.Now}
}

func (r *Reconciler) Reconcile(ctx context.Context, cb Callback) (Outcome, error) {
	out, err := r.reconcile(ctx, cb)
	r.observe(cb, out, err)
	return out, err
}

func (r *Reconciler) reconcile(ctx context.Context, cb Callback) (Outcome, error) {
	if cb.CorrelationID == "" {
		return "", apperr.New(apperr.CodeMalformedCallback, "callback has no CheckoutRequestID")
	}

	current, err := r.ledger.Get(ctx, cb.CorrelationID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return "", apperr.Wrap(apperr.CodeUnknownCorrelation, "no pending payment for "+cb.CorrelationID, err)
		}
		return "", err
	}
	if current.State.Terminal() {
		return OutcomeDuplicate, nil
	}

	res := Resolution{ResultCode: cb.ResultCode, ResolvedAt: r.now().UTC()}
	if cb.ResultCode == 0 {
		receipt, err := ParseReceipt(cb.Items)
		if err != nil {
			return "", err
		}
		if !receipt.Amount.Equal(current.Amount) {
			r.logger.Warn("paid amount differs from requested amount",
				zap.String("correlation_id", cb.CorrelationID),
				zap.String("requested", current.Amount.String()),
				zap.String("paid", receipt.Amount.String()))
		}
		res.State = StateSucceeded
		res.Receipt = &receipt
	} else {
		res.State = StateFailed
		res.FailureReason = cb.ResultDesc
	}

	resolved, err := r.ledger.Resolve(ctx, cb.CorrelationID, res)
	if err != nil {
		if errors.Is(err, apperr.ErrAlreadyResolved) {
			return OutcomeDuplicate, nil
		}
		return "", err
	}

	if r.emitter != nil {
		r.emitter.Emit(toResolvedEvent(resolved))
	}
	if resolved.State == StateSucceeded {
		return OutcomeSucceeded, nil
	}
	return OutcomeFailed, nil
}

func (r *Reconciler) observe(cb Callback, out Outcome, err error) {
	fields := []zap.Field{
		zap.String("correlation_id", cb.CorrelationID),
		zap.Int("result_code", cb.ResultCode),
	}
	switch {
	case err == nil:
		m.IncCallback(string(out))
		r.logger.Info("callback reconciled", append(fields, zap.String("outcome", string(out)))...)
	case errors.Is(err, apperr.ErrUnknownCorrelation):
		m.IncCallback("unknown_correlation")
		r.logger.Warn("callback for unknown payment", append(fields, zap.Error(err))...)
	case errors.Is(err, apperr.ErrMalformedCallback):
		m.IncCallback("malformed")
		r.logger.Warn("malformed callback", append(fields, zap.Error(err))...)
	default:
		m.IncCallback("error")
		r.logger.Error("reconcile callback", append(fields, zap.Error(err))...)
	}
}
