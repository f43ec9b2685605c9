// internal/payment/initiator.go
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/example/rent-payments-poc/internal/gateway/mpesa"
	apperr "github.com/example/rent-payments-poc/pkg/errors"
	m "github.com/example/rent-payments-poc/pkg/metrics"
)

type InitiateRequest struct {
	Phone           string          `validate:"required,max=20"`
	Amount          decimal.Decimal `validate:"-"`
	TenantReference string          `validate:"required,max=64"`
}

type InitiateResult struct {
	CorrelationID string
	Ack           mpesa.PushAck
	Payment       *PendingPayment
}

type InitiatorConfig struct {
	CountryPrefix   string
	TransactionDesc string
	// PersistTimeout bounds the ledger write after the gateway accepted.
	PersistTimeout time.Duration
}

// Initiator starts push payments and records them as pending.
type Initiator struct {
	gateway  Gateway
	ledger   Ledger
	cfg      InitiatorConfig
	validate *validator.Validate
	logger   *zap.Logger
	now      func() time.Time
}

func NewInitiator(gw Gateway, ledger Ledger, cfg InitiatorConfig, logger *zap.Logger) *Initiator {
	if cfg.CountryPrefix == "" {
		cfg.CountryPrefix = "254"
	}
	if cfg.TransactionDesc == "" {
		cfg.TransactionDesc = "Rent Payment"
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Initiator{
		gateway:  gw,
		ledger:   ledger,
		cfg:      cfg,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
		now:      time.Now,
	}
}

// Initiate validates req, pushes it to the gateway and persists the
// pending record under the gateway's correlation id. Nothing is persisted
// unless the gateway accepted the push.
func (i *Initiator) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	req.Phone = strings.TrimSpace(req.Phone)
	req.TenantReference = strings.TrimSpace(req.TenantReference)

	if err := i.checkRequest(req); err != nil {
		m.IncInitiation("invalid")
		return nil, err
	}
	phone, err := NormalizePhone(req.Phone, i.cfg.CountryPrefix)
	if err != nil {
		m.IncInitiation("invalid")
		return nil, err
	}

	ack, err := i.gateway.PushPayment(ctx, mpesa.PushRequest{
		Phone:       phone,
		Amount:      req.Amount,
		Reference:   req.TenantReference,
		Description: i.cfg.TransactionDesc,
	})
	if err != nil {
		m.IncInitiation("gateway_error")
		i.logger.Warn("push payment failed",
			zap.Error(err),
			zap.String("tenant_reference", req.TenantReference))
		return nil, apperr.Wrap(apperr.CodePaymentInitiation, "gateway did not accept the payment", err)
	}

	p := &PendingPayment{
		CorrelationID:     ack.CheckoutRequestID,
		MerchantRequestID: ack.MerchantRequestID,
		TenantReference:   req.TenantReference,
		PhoneNumber:       phone,
		Amount:            req.Amount,
		State:             StatePending,
		CreatedAt:         i.now().UTC(),
	}
	// The payer already has the prompt, so the record must land even if
	// the caller has gone away.
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), i.cfg.PersistTimeout)
	defer cancel()
	if err := i.ledger.Create(persistCtx, p); err != nil {
		m.IncInitiation("persist_error")
		// The gateway will still call back for this id.
		i.logger.Error("pending payment not persisted after gateway ack",
			zap.Error(err),
			zap.String("correlation_id", ack.CheckoutRequestID),
			zap.String("merchant_request_id", ack.MerchantRequestID),
			zap.String("tenant_reference", req.TenantReference))
		return nil, apperr.Wrap(apperr.CodePaymentInitiation, "could not record pending payment", err)
	}

	m.IncInitiation("accepted")
	i.logger.Info("payment initiated",
		zap.String("correlation_id", p.CorrelationID),
		zap.String("tenant_reference", p.TenantReference),
		zap.String("amount", p.Amount.String()))
	return &InitiateResult{CorrelationID: p.CorrelationID, Ack: *ack, Payment: p}, nil
}

func (i *Initiator) checkRequest(req InitiateRequest) error {
	if err := i.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return apperr.New(apperr.CodeValidation, formatValidationErrors(verrs))
		}
		return apperr.Wrap(apperr.CodeValidation, "invalid request", err)
	}
	switch {
	case !req.Amount.IsPositive():
		return apperr.New(apperr.CodeValidation, "amount must be greater than 0")
	case !req.Amount.IsInteger():
		return apperr.New(apperr.CodeValidation, "amount must be a whole number")
	}
	return nil
}

func formatValidationErrors(verrs validator.ValidationErrors) string {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %s", field, fe.Tag()))
		}
	}
	return strings.Join(msgs, "; ")
}

// IsGatewayFailure reports whether an Initiate error came from the gateway
// rather than from local persistence.
func IsGatewayFailure(err error) bool {
	return errors.Is(err, apperr.ErrGatewayAuth) || errors.Is(err, apperr.ErrGatewayRequest)
}
