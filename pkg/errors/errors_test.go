package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestE_IsMatchesByCode(t *testing.T) {
	cause := stderrors.New("dial tcp: i/o timeout")
	err := Wrap(CodeGatewayRequest, "stk push failed", cause)

	require.ErrorIs(t, err, ErrGatewayRequest)
	require.ErrorIs(t, err, cause)
	require.NotErrorIs(t, err, ErrGatewayAuth)

	outer := Wrap(CodePaymentInitiation, "initiate", err)
	require.ErrorIs(t, outer, ErrPaymentInitiation)
	require.ErrorIs(t, outer, ErrGatewayRequest)
	require.Equal(t, CodePaymentInitiation, CodeOf(outer))
}

func TestCodeOf(t *testing.T) {
	var tests = []struct {
		name     string
		err      error
		expected string
	}{
		{name: "plain error", err: stderrors.New("boom"), expected: CodeInternal},
		{name: "coded", err: New(CodeNotFound, "missing"), expected: CodeNotFound},
		{name: "fmt wrapped", err: fmt.Errorf("ledger: %w", New(CodeConflict, "dup")), expected: CodeConflict},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.expected, CodeOf(tt.err))
		})
	}
}

func TestE_Error(t *testing.T) {
	require.Equal(t, "NOT_FOUND: payment ws_CO_1", New(CodeNotFound, "payment ws_CO_1").Error())
	require.Equal(t, "INTERNAL: save (disk full)", Wrap(CodeInternal, "save", stderrors.New("disk full")).Error())
}

func TestMessageOf(t *testing.T) {
	require.Equal(t, "amount must be greater than 0", MessageOf(New(CodeValidation, "amount must be greater than 0")))
	require.Equal(t, "internal error", MessageOf(stderrors.New("pq: connection refused")))
}
