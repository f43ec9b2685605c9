package payment

import (
	"strings"

	apperr "github.com/example/rent-payments-poc/pkg/errors"
)

// Subscriber numbers are nine digits after the country prefix.
const subscriberDigits = 9

// NormalizePhone converts local and international spellings of a mobile
// number into the gateway's canonical form, e.g. 0712345678 -> 254712345678.
func NormalizePhone(raw, prefix string) (string, error) {
	s := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(raw))
	s = strings.TrimPrefix(s, "+")

	switch {
	case s == "":
		return "", apperr.New(apperr.CodeValidation, "phone is required")
	case strings.HasPrefix(s, prefix):
	case strings.HasPrefix(s, "0"):
		s = prefix + s[1:]
	default:
		s = prefix + s
	}

	if len(s) != len(prefix)+subscriberDigits || strings.IndexFunc(s, notDigit) >= 0 {
		return "", apperr.New(apperr.CodeValidation, "phone "+raw+" is not a valid mobile number")
	}
	return s, nil
}

func notDigit(r rune) bool { return r < '0' || r > '9' }
