package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperr "github.com/example/rent-payments-poc/pkg/errors"
)

func TestNormalizePhone(t *testing.T) {
	var tests = []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "0712345678", want: "254712345678"},
		{in: "254712345678", want: "254712345678"},
		{in: "+254712345678", want: "254712345678"},
		{in: "712345678", want: "254712345678"},
		{in: "0712 345 678", want: "254712345678"},
		{in: "0712-345-678", want: "254712345678"},
		{in: " +254 (712) 345678 ", want: "254712345678"},
		{in: "0112345678", want: "254112345678"},
		{in: "", wantErr: true},
		{in: "07123", wantErr: true},
		{in: "07123456789", wantErr: true},
		{in: "07123abc78", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := NormalizePhone(tt.in, "254")
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, apperr.ErrValidation)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalizePhone_OtherPrefix(t *testing.T) {
	got, err := NormalizePhone("0712345678", "255")
	require.NoError(t, err)
	assert.Equal(t, "255712345678", got)

	got, err = NormalizePhone("+256 712 345 678", "256")
	require.NoError(t, err)
	assert.Equal(t, "256712345678", got)

	_, err = NormalizePhone("2557123456789", "255")
	assert.ErrorIs(t, err, apperr.ErrValidation)
}
