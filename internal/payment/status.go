package payment

import (
	"context"
	"strings"

	apperr "github.com/example/rent-payments-poc/pkg/errors"
)

// StatusService answers "what happened to this payment". It only reads.
type StatusService struct {
	reader Reader
}

func NewStatusService(reader Reader) *StatusService {
	return &StatusService{reader: reader}
}

func (s *StatusService) Status(ctx context.Context, correlationID string) (*StatusView, error) {
	correlationID = strings.TrimSpace(correlationID)
	if correlationID == "" {
		return nil, apperr.New(apperr.CodeValidation, "correlation id is required")
	}
	p, err := s.reader.Get(ctx, correlationID)
	if err != nil {
		return nil, err
	}
	return ToStatusView(p), nil
}
