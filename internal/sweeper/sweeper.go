// internal/sweeper/sweeper.go
package sweeper

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/rent-payments-poc/internal/gateway/mpesa"
	"github.com/example/rent-payments-poc/internal/payment"
	m "github.com/example/rent-payments-poc/pkg/metrics"
)

type Lister interface {
	ListPending(ctx context.Context, createdBefore time.Time, after payment.PendingCursor, limit int) ([]*payment.PendingPayment, error)
}

type Querier interface {
	QueryPushPayment(ctx context.Context, checkoutRequestID string) (*mpesa.QueryResult, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, cb payment.Callback) (payment.Outcome, error)
}

type Config struct {
	Interval time.Duration
	MinAge   time.Duration
	Batch    int
}

// Report counts what one sweep did with the records it looked at.
type Report struct {
	Checked    int
	Failed     int
	Duplicate  int
	Manual     int
	Processing int
	Errors     int
}

// Sweeper chases pending payments whose callback never arrived. Definitive
// failures go through the reconciler, so a callback racing the sweep still
// resolves the record exactly once.
//
// Each sweep takes the next Batch records after the previous one and wraps
// to the oldest after a short page, so records that stay pending cannot
// hide newer ones.
type Sweeper struct {
	ledger     Lister
	gateway    Querier
	reconciler Reconciler
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time

	mu     sync.Mutex
	cursor payment.PendingCursor
}

func New(ledger Lister, gw Querier, rec Reconciler, cfg Config, logger *zap.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.MinAge <= 0 {
		cfg.MinAge = 5 * time.Minute
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 50
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{ledger: ledger, gateway: gw, reconciler: rec, cfg: cfg, logger: logger, now: time.Now}
}

// Run sweeps every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("min_age", s.cfg.MinAge))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("sweep failed", zap.Error(err))
			}
		}
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) (Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var rep Report
	stale, err := s.ledger.ListPending(ctx, s.now().Add(-s.cfg.MinAge), s.cursor, s.cfg.Batch)
	if err != nil {
		return rep, err
	}
	if len(stale) < s.cfg.Batch {
		s.cursor = payment.PendingCursor{}
	} else {
		s.cursor = stale[len(stale)-1].Cursor()
	}

	for _, p := range stale {
		if ctx.Err() != nil {
			break
		}
		rep.Checked++
		log := s.logger.With(
			zap.String("correlation_id", p.CorrelationID),
			zap.String("tenant_reference", p.TenantReference),
			zap.Duration("age", s.now().Sub(p.CreatedAt)))

		q, err := s.gateway.QueryPushPayment(ctx, p.CorrelationID)
		if err != nil {
			rep.Errors++
			m.IncSweep("query_error")
			log.Warn("stale payment query failed", zap.Error(err))
			continue
		}
		if q.Processing {
			rep.Processing++
			m.IncSweep("processing")
			log.Info("stale payment still processing at gateway")
			continue
		}

		code := q.Code()
		switch {
		case code == 0:
			rep.Manual++
			m.IncSweep("manual")
			log.Warn("gateway reports stale payment as paid; callback missing, reconcile manually",
				zap.String("result_desc", q.ResultDesc))
		case code < 0:
			rep.Errors++
			m.IncSweep("query_error")
			log.Warn("stale payment query has no result code", zap.String("response", q.ResponseDescription))
		default:
			out, err := s.reconciler.Reconcile(ctx, payment.Callback{
				MerchantRequestID: q.MerchantRequestID,
				CorrelationID:     p.CorrelationID,
				ResultCode:        code,
				ResultDesc:        q.ResultDesc,
			})
			switch {
			case err != nil:
				rep.Errors++
				m.IncSweep("reconcile_error")
				log.Error("resolve stale payment", zap.Error(err))
			case out == payment.OutcomeDuplicate:
				rep.Duplicate++
				m.IncSweep("already_resolved")
			default:
				rep.Failed++
				m.IncSweep("failed")
				log.Info("stale payment resolved as failed", zap.Int("result_code", code))
			}
		}
	}

	if rep.Checked > 0 {
		s.logger.Info("sweep finished",
			zap.Int("checked", rep.Checked),
			zap.Int("failed", rep.Failed),
			zap.Int("manual", rep.Manual),
			zap.Int("processing", rep.Processing),
			zap.Int("errors", rep.Errors))
	}
	return rep, nil
}
