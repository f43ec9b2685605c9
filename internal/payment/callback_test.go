package payment

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/example/rent-payments-poc/pkg/errors"
)

func items(pairs ...string) []MetadataItem {
	var out []MetadataItem
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, MetadataItem{Name: pairs[i], Value: json.RawMessage(pairs[i+1])})
	}
	return out
}

func validItems() []MetadataItem {
	return items(
		"Amount", `1500`,
		"MpesaReceiptNumber", `"ABC123"`,
		"Balance", ``,
		"TransactionDate", `20240101120000`,
		"PhoneNumber", `254712345678`,
	)
}

func TestParseReceipt(t *testing.T) {
	r, err := ParseReceipt(validItems())
	require.NoError(t, err)
	assert.True(t, r.Amount.Equal(decimal.NewFromInt(1500)))
	assert.Equal(t, "ABC123", r.ReceiptID)
	assert.Equal(t, "254712345678", r.PayerPhone)
	assert.True(t, r.TransactionAt.Equal(time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)))
}

func TestParseReceipt_StringsAndDecimals(t *testing.T) {
	r, err := ParseReceipt(items(
		"Amount", `"1.00"`,
		"MpesaReceiptNumber", `"NLJ7RT61SV"`,
		"TransactionDate", `"20191219102115"`,
		"PhoneNumber", `"254708374149"`,
	))
	require.NoError(t, err)
	assert.Equal(t, "1", r.Amount.String())
	assert.Equal(t, "254708374149", r.PayerPhone)
}

func TestParseReceipt_Malformed(t *testing.T) {
	var tests = []struct {
		name  string
		items []MetadataItem
	}{
		{name: "no items"},
		{name: "missing receipt", items: items("Amount", `1500`, "TransactionDate", `20240101120000`, "PhoneNumber", `254712345678`)},
		{name: "missing amount", items: items("MpesaReceiptNumber", `"ABC123"`, "TransactionDate", `20240101120000`, "PhoneNumber", `254712345678`)},
		{name: "amount not numeric", items: items("Amount", `"lots"`, "MpesaReceiptNumber", `"ABC123"`, "TransactionDate", `20240101120000`, "PhoneNumber", `254712345678`)},
		{name: "amount zero", items: items("Amount", `0`, "MpesaReceiptNumber", `"ABC123"`, "TransactionDate", `20240101120000`, "PhoneNumber", `254712345678`)},
		{name: "amount is object", items: items("Amount", `{"v":1}`, "MpesaReceiptNumber", `"ABC123"`, "TransactionDate", `20240101120000`, "PhoneNumber", `254712345678`)},
		{name: "empty receipt", items: items("Amount", `1500`, "MpesaReceiptNumber", `""`, "TransactionDate", `20240101120000`, "PhoneNumber", `254712345678`)},
		{name: "bad date", items: items("Amount", `1500`, "MpesaReceiptNumber", `"ABC123"`, "TransactionDate", `"yesterday"`, "PhoneNumber", `254712345678`)},
		{name: "null phone", items: items("Amount", `1500`, "MpesaReceiptNumber", `"ABC123"`, "TransactionDate", `20240101120000`, "PhoneNumber", `null`)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseReceipt(tt.items)
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrMalformedCallback)
		})
	}
}
