// rent-payments-poc/pkg/errors/errors.go
package errors

import (
	stderrors "errors"
	"fmt"
)

// Error codes shared by the initiation, callback and status paths.
const (
	CodeValidation         = "VALIDATION"
	CodeGatewayAuth        = "GATEWAY_AUTH"
	CodeGatewayRequest     = "GATEWAY_REQUEST"
	CodePaymentInitiation  = "PAYMENT_INITIATION"
	CodeUnknownCorrelation = "UNKNOWN_CORRELATION"
	CodeMalformedCallback  = "MALFORMED_CALLBACK"
	CodeNotFound           = "NOT_FOUND"
	CodeAlreadyResolved    = "ALREADY_RESOLVED"
	CodeConflict           = "CONFLICT"
	CodeInternal           = "INTERNAL"
)

// Sentinels for errors.Is. Any E with the same Code matches.
var (
	ErrValidation         = E{Code: CodeValidation}
	ErrGatewayAuth        = E{Code: CodeGatewayAuth}
	ErrGatewayRequest     = E{Code: CodeGatewayRequest}
	ErrPaymentInitiation  = E{Code: CodePaymentInitiation}
	ErrUnknownCorrelation = E{Code: CodeUnknownCorrelation}
	ErrMalformedCallback  = E{Code: CodeMalformedCallback}
	ErrNotFound           = E{Code: CodeNotFound}
	ErrAlreadyResolved    = E{Code: CodeAlreadyResolved}
	ErrConflict           = E{Code: CodeConflict}
	ErrInternal           = E{Code: CodeInternal}
)

type E struct {
	Code    string
	Message string
	Err     error
}

func (e E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e E) Unwrap() error { return e.Err }

func (e E) Is(target error) bool {
	t, ok := target.(E)
	return ok && t.Code == e.Code
}

func New(code, msg string) error {
	return E{Code: code, Message: msg}
}

func Wrap(code, msg string, err error) error {
	return E{Code: code, Message: msg, Err: err}
}

// CodeOf returns the code of the outermost E in err's chain, or CodeInternal.
func CodeOf(err error) string {
	var e E
	if stderrors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

func Is(err error, target error) bool { return stderrors.Is(err, target) }

// MessageOf returns the message of the outermost E, safe to show to callers.
func MessageOf(err error) string {
	var e E
	if stderrors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return "internal error"
}
