// internal/ledger/postgres.go
package ledger

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/example/rent-payments-poc/internal/payment"
	apperr "github.com/example/rent-payments-poc/pkg/errors"
)

//go:embed schema.sql
var schemaSQL string

const selectColumns = `correlation_id, merchant_request_id, tenant_reference, phone_number,
	amount::text, state, created_at, resolved_at, gateway_receipt_id, failure_reason,
	result_code, paid_amount::text, payer_phone, transaction_at`

// Postgres relies on the row's state column for exactly-once resolution:
// the UPDATE only matches while state is still PENDING.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the table and indexes if they are missing.
func (l *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := l.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure ledger schema: %w", err)
	}
	return nil
}

func (l *Postgres) Create(ctx context.Context, p *payment.PendingPayment) error {
	tag, err := l.pool.Exec(ctx, `
		INSERT INTO pending_payments
			(correlation_id, merchant_request_id, tenant_reference, phone_number, amount, state, created_at)
		VALUES ($1, $2, $3, $4, $5::numeric, $6, $7)
		ON CONFLICT (correlation_id) DO NOTHING`,
		p.CorrelationID, p.MerchantRequestID, p.TenantReference, p.PhoneNumber,
		p.Amount.String(), string(payment.StatePending), p.CreatedAt)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "insert pending payment", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.New(apperr.CodeConflict, "payment "+p.CorrelationID+" already exists")
	}
	return nil
}

func (l *Postgres) Get(ctx context.Context, correlationID string) (*payment.PendingPayment, error) {
	row := l.pool.QueryRow(ctx, `SELECT `+selectColumns+` FROM pending_payments WHERE correlation_id = $1`, correlationID)
	p, err := scanPayment(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.New(apperr.CodeNotFound, "payment "+correlationID+" not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "select pending payment", err)
	}
	return p, nil
}

func (l *Postgres) Resolve(ctx context.Context, correlationID string, res payment.Resolution) (*payment.PendingPayment, error) {
	if err := res.Validate(); err != nil {
		return nil, err
	}

	var (
		receiptID, payerPhone, paidAmount *string
		transactionAt                     *time.Time
		failureReason                     *string
	)
	switch res.State {
	case payment.StateSucceeded:
		receiptID = &res.Receipt.ReceiptID
		payerPhone = &res.Receipt.PayerPhone
		amt := res.Receipt.Amount.String()
		paidAmount = &amt
		transactionAt = &res.Receipt.TransactionAt
	case payment.StateFailed:
		failureReason = &res.FailureReason
	}

	row := l.pool.QueryRow(ctx, `
		UPDATE pending_payments SET
			state = $2,
			resolved_at = $3,
			result_code = $4,
			gateway_receipt_id = $5,
			failure_reason = $6,
			paid_amount = $7::numeric,
			payer_phone = $8,
			transaction_at = $9
		WHERE correlation_id = $1 AND state = 'PENDING'
		RETURNING `+selectColumns,
		correlationID, string(res.State), res.ResolvedAt, int32(res.ResultCode),
		receiptID, failureReason, paidAmount, payerPhone, transactionAt)

	p, err := scanPayment(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.Wrap(apperr.CodeInternal, "resolve pending payment", err)
	}

	// Nothing matched: either the id is unknown or another resolver won.
	var exists bool
	if err := l.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pending_payments WHERE correlation_id = $1)`, correlationID,
	).Scan(&exists); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "check pending payment", err)
	}
	if !exists {
		return nil, apperr.New(apperr.CodeNotFound, "payment "+correlationID+" not found")
	}
	return nil, apperr.New(apperr.CodeAlreadyResolved, "payment "+correlationID+" is already resolved")
}

func (l *Postgres) ListPending(ctx context.Context, createdBefore time.Time, after payment.PendingCursor, limit int) ([]*payment.PendingPayment, error) {
	if limit <= 0 {
		limit = 100
	}
	var afterAt *time.Time
	if !after.IsZero() {
		afterAt = &after.CreatedAt
	}
	rows, err := l.pool.Query(ctx, `
		SELECT `+selectColumns+`
		FROM pending_payments
		WHERE state = 'PENDING' AND created_at < $1
		  AND ($2::timestamptz IS NULL OR (created_at, correlation_id) > ($2, $3))
		ORDER BY created_at, correlation_id
		LIMIT $4`, createdBefore, afterAt, after.CorrelationID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "list pending payments", err)
	}
	defer rows.Close()

	var out []*payment.PendingPayment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "scan pending payment", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "iterate pending payments", err)
	}
	return out, nil
}

func scanPayment(row pgx.Row) (*payment.PendingPayment, error) {
	var (
		p             payment.PendingPayment
		amount, state string
		receiptID     *string
		failure       *string
		resultCode    *int32
		paidAmount    *string
		payerPhone    *string
	)
	err := row.Scan(
		&p.CorrelationID, &p.MerchantRequestID, &p.TenantReference, &p.PhoneNumber,
		&amount, &state, &p.CreatedAt, &p.ResolvedAt, &receiptID, &failure,
		&resultCode, &paidAmount, &payerPhone, &p.TransactionAt,
	)
	if err != nil {
		return nil, err
	}

	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("amount %q: %w", amount, err)
	}
	p.State = payment.State(state)
	if receiptID != nil {
		p.GatewayReceiptID = *receiptID
	}
	if failure != nil {
		p.FailureReason = *failure
	}
	if resultCode != nil {
		c := int(*resultCode)
		p.ResultCode = &c
	}
	if paidAmount != nil {
		d, err := decimal.NewFromString(*paidAmount)
		if err != nil {
			return nil, fmt.Errorf("paid_amount %q: %w", *paidAmount, err)
		}
		p.PaidAmount = decimal.NewNullDecimal(d)
	}
	if payerPhone != nil {
		p.PayerPhone = *payerPhone
	}
	return &p, nil
}
