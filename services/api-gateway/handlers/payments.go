// services/api-gateway/handlers/payments.go
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/example/rent-payments-poc/internal/payment"
	apperr "github.com/example/rent-payments-poc/pkg/errors"
)

const maxBodyBytes = 1 << 20

type Initiator interface {
	Initiate(ctx context.Context, req payment.InitiateRequest) (*payment.InitiateResult, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, cb payment.Callback) (payment.Outcome, error)
}

type StatusReader interface {
	Status(ctx context.Context, correlationID string) (*payment.StatusView, error)
}

type Deps struct {
	Initiator  Initiator
	Reconciler Reconciler
	Status     StatusReader
	Logger     *zap.Logger
	Timeout    time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Timeout <= 0 {
		d.Timeout = 15 * time.Second
	}
	return d
}

// Routes mounts the payment endpoints on r.
func Routes(r *mux.Router, d Deps) {
	r.HandleFunc("/payments/initiate", InitiateHandler(d)).Methods(http.MethodPost)
	r.HandleFunc("/payments/callback", CallbackHandler(d)).Methods(http.MethodPost)
	r.HandleFunc("/payments/status/{correlationId}", StatusHandler(d)).Methods(http.MethodGet)
}

func InitiateHandler(d Deps) http.HandlerFunc {
	d = d.withDefaults()
	return func(w http.ResponseWriter, r *http.Request) {
		var in InitiateIn
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err := dec.Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorOut{Error: "invalid JSON body"})
			return
		}

		ref := strings.TrimSpace(in.TenantReference)
		if ref == "" && strings.TrimSpace(string(in.TenantID)) != "" {
			ref = "RENT_" + strings.TrimSpace(string(in.TenantID))
		}

		ctx, cancel := context.WithTimeout(r.Context(), d.Timeout)
		defer cancel()

		res, err := d.Initiator.Initiate(ctx, payment.InitiateRequest{
			Phone:           in.Phone,
			Amount:          in.Amount,
			TenantReference: ref,
		})
		switch {
		case err == nil:
			writeJSON(w, http.StatusAccepted, InitiateOut{CorrelationID: res.CorrelationID, GatewayAck: res.Ack})
		case errors.Is(err, apperr.ErrValidation):
			writeJSON(w, http.StatusBadRequest, ErrorOut{Error: apperr.MessageOf(err)})
		case payment.IsGatewayFailure(err):
			writeJSON(w, http.StatusBadGateway, ErrorOut{Error: "payment gateway unavailable"})
		default:
			writeJSON(w, http.StatusInternalServerError, ErrorOut{Error: "failed to initiate payment"})
		}
	}
}

// CallbackHandler always answers 200; the body tells the gateway whether
// the callback was taken.
func CallbackHandler(d Deps) http.HandlerFunc {
	d = d.withDefaults()
	return func(w http.ResponseWriter, r *http.Request) {
		var in CallbackIn
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&in); err != nil {
			d.Logger.Warn("undecodable callback", zap.Error(err))
			writeJSON(w, http.StatusOK, CallbackAck{ResultCode: 1, ResultDesc: "Invalid callback payload"})
			return
		}

		// The gateway hanging up must not abort a transition halfway.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), d.Timeout)
		defer cancel()

		out, err := d.Reconciler.Reconcile(ctx, in.toCallback())
		switch {
		case err == nil && out == payment.OutcomeDuplicate:
			writeJSON(w, http.StatusOK, CallbackAck{ResultCode: 0, ResultDesc: "Already processed"})
		case err == nil:
			writeJSON(w, http.StatusOK, CallbackAck{ResultCode: 0, ResultDesc: "Success"})
		case errors.Is(err, apperr.ErrUnknownCorrelation):
			writeJSON(w, http.StatusOK, CallbackAck{ResultCode: 1, ResultDesc: "Unknown CheckoutRequestID"})
		case errors.Is(err, apperr.ErrMalformedCallback):
			writeJSON(w, http.StatusOK, CallbackAck{ResultCode: 1, ResultDesc: "Malformed callback"})
		default:
			writeJSON(w, http.StatusOK, CallbackAck{ResultCode: 1, ResultDesc: "Failed to process callback"})
		}
	}
}

func StatusHandler(d Deps) http.HandlerFunc {
	d = d.withDefaults()
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["correlationId"]

		ctx, cancel := context.WithTimeout(r.Context(), d.Timeout)
		defer cancel()

		view, err := d.Status.Status(ctx, id)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, view)
		case errors.Is(err, apperr.ErrNotFound):
			writeJSON(w, http.StatusNotFound, ErrorOut{Error: "payment not found"})
		case errors.Is(err, apperr.ErrValidation):
			writeJSON(w, http.StatusBadRequest, ErrorOut{Error: apperr.MessageOf(err)})
		default:
			d.Logger.Error("status lookup", zap.Error(err), zap.String("correlation_id", id))
			writeJSON(w, http.StatusInternalServerError, ErrorOut{Error: "failed to load payment status"})
		}
	}
}
