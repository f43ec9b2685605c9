// services/api-gateway/handlers/types.go
package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/example/rent-payments-poc/internal/gateway/mpesa"
	"github.com/example/rent-payments-poc/internal/payment"
)

type InitiateIn struct {
	Phone           string          `json:"phone"`
	Amount          decimal.Decimal `json:"amount"`
	TenantReference string          `json:"tenantReference"`
	TenantID        flexString      `json:"tenantId"` // tenant app sends this; reference becomes RENT_<id>
}

type InitiateOut struct {
	CorrelationID string        `json:"correlationId"`
	GatewayAck    mpesa.PushAck `json:"gatewayAck"`
}

type ErrorOut struct {
	Error string `json:"error"`
}

// CallbackIn is the gateway's native callback envelope.
type CallbackIn struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  *struct {
				Item []payment.MetadataItem `json:"Item"`
			} `json:"CallbackMetadata,omitempty"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

func (in CallbackIn) toCallback() payment.Callback {
	cb := in.Body.StkCallback
	out := payment.Callback{
		MerchantRequestID: cb.MerchantRequestID,
		CorrelationID:     cb.CheckoutRequestID,
		ResultCode:        cb.ResultCode,
		ResultDesc:        cb.ResultDesc,
	}
	if cb.CallbackMetadata != nil {
		out.Items = cb.CallbackMetadata.Item
	}
	return out
}

// CallbackAck is what the gateway expects back. ResultCode 0 means accepted.
type CallbackAck struct {
	ResultCode int    `json:"ResultCode"`
	ResultDesc string `json:"ResultDesc"`
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*f = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("tenantId: %w", err)
		}
		*f = flexString(n.String())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
