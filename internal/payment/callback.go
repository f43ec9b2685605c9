package payment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/rent-payments-poc/internal/gateway/mpesa"
	apperr "github.com/example/rent-payments-poc/pkg/errors"
)

// Metadata item names the gateway sends on a successful payment.
const (
	itemAmount          = "Amount"
	itemReceiptNumber   = "MpesaReceiptNumber"
	itemPhoneNumber     = "PhoneNumber"
	itemTransactionDate = "TransactionDate"
)

// Callback is the gateway's asynchronous outcome report. It arrives
// unauthenticated and may be delivered more than once.
type Callback struct {
	MerchantRequestID string
	CorrelationID     string
	ResultCode        int
	ResultDesc        string
	Items             []MetadataItem
}

// MetadataItem keeps Value as raw JSON; the gateway mixes numbers and strings.
type MetadataItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value,omitempty"`
}

// Receipt is the typed form of a successful callback's metadata.
type Receipt struct {
	Amount        decimal.Decimal
	ReceiptID     string
	PayerPhone    string
	TransactionAt time.Time
}

// ParseReceipt extracts the receipt fields, failing on any that are missing
// or of the wrong shape.
func ParseReceipt(items []MetadataItem) (Receipt, error) {
	byName := make(map[string]json.RawMessage, len(items))
	for _, it := range items {
		byName[it.Name] = it.Value
	}

	var (
		r   Receipt
		err error
	)
	raw, err := requireItem(byName, itemAmount)
	if err != nil {
		return Receipt{}, err
	}
	if r.Amount, err = decimal.NewFromString(raw); err != nil || !r.Amount.IsPositive() {
		return Receipt{}, malformed("%s %q is not a positive amount", itemAmount, raw)
	}

	if r.ReceiptID, err = requireItem(byName, itemReceiptNumber); err != nil {
		return Receipt{}, err
	}
	if r.PayerPhone, err = requireItem(byName, itemPhoneNumber); err != nil {
		return Receipt{}, err
	}

	raw, err = requireItem(byName, itemTransactionDate)
	if err != nil {
		return Receipt{}, err
	}
	if r.TransactionAt, err = mpesa.ParseTimestamp(raw); err != nil {
		return Receipt{}, malformed("%s %q is not YYYYMMDDHHmmss", itemTransactionDate, raw)
	}
	return r, nil
}

func requireItem(byName map[string]json.RawMessage, name string) (string, error) {
	raw, ok := byName[name]
	if !ok {
		return "", malformed("missing %s", name)
	}
	s, err := scalarText(raw)
	if err != nil {
		return "", malformed("%s: %v", name, err)
	}
	if s == "" {
		return "", malformed("empty %s", name)
	}
	return s, nil
}

// scalarText returns a JSON string's contents or a JSON number's literal
// text. Numbers are never routed through float64.
func scalarText(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", fmt.Errorf("no value")
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var n json.Number
		if err := json.Unmarshal(raw, &n); err != nil {
			return "", err
		}
		return n.String(), nil
	default:
		return "", fmt.Errorf("unexpected value %s", raw)
	}
}

func malformed(format string, args ...any) error {
	return apperr.New(apperr.CodeMalformedCallback, fmt.Sprintf(format, args...))
}
