package payment

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/example/rent-payments-poc/internal/gateway/mpesa"
)

type mockGateway struct{ mock.Mock }

func (m *mockGateway) PushPayment(ctx context.Context, req mpesa.PushRequest) (*mpesa.PushAck, error) {
	args := m.Called(ctx, req)
	ack, _ := args.Get(0).(*mpesa.PushAck)
	return ack, args.Error(1)
}

type mockLedger struct{ mock.Mock }

func (m *mockLedger) Create(ctx context.Context, p *PendingPayment) error {
	return m.Called(ctx, p).Error(0)
}

func (m *mockLedger) Get(ctx context.Context, id string) (*PendingPayment, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*PendingPayment)
	return p, args.Error(1)
}

func (m *mockLedger) Resolve(ctx context.Context, id string, res Resolution) (*PendingPayment, error) {
	args := m.Called(ctx, id, res)
	p, _ := args.Get(0).(*PendingPayment)
	return p, args.Error(1)
}

func (m *mockLedger) ListPending(ctx context.Context, before time.Time, after PendingCursor, limit int) ([]*PendingPayment, error) {
	args := m.Called(ctx, before, after, limit)
	ps, _ := args.Get(0).([]*PendingPayment)
	return ps, args.Error(1)
}
