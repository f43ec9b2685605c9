// Package app holds the wiring shared by the binaries.
package app

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/rent-payments-poc/internal/events"
	"github.com/example/rent-payments-poc/internal/gateway/mpesa"
	"github.com/example/rent-payments-poc/internal/ledger"
	"github.com/example/rent-payments-poc/internal/payment"
	"github.com/example/rent-payments-poc/pkg/config"
	"github.com/example/rent-payments-poc/pkg/db"
)

// MustLogger builds the logger from cfg or exits.
func MustLogger(cfg *config.Config) *zap.Logger {
	logger, err := config.NewLogger(config.LoggerConfig{Level: cfg.LogLevel, Env: cfg.Env})
	if err != nil {
		panic("init logger: " + err.Error())
	}
	return logger
}

// OpenLedger returns the configured ledger and a func that releases it.
func OpenLedger(ctx context.Context, cfg *config.Config, logger *zap.Logger) (payment.Ledger, func(), error) {
	var (
		l        payment.Ledger
		closers  []func()
		closeAll = func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		}
	)

	switch strings.ToLower(cfg.Ledger.Driver) {
	case "postgres":
		pool, err := db.NewPostgresDB(ctx, cfg.Ledger.URL)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, pool.Close)
		pg := ledger.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, nil, err
		}
		l = pg
		logger.Info("ledger: postgres")
	default:
		l = ledger.NewMemory()
		logger.Info("ledger: memory")
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := client.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logger.Warn("redis unavailable, status cache disabled", zap.Error(err), zap.String("addr", cfg.Redis.Addr))
			_ = client.Close()
		} else {
			closers = append(closers, func() { _ = client.Close() })
			l = ledger.NewCached(l, ledger.NewRedisCache(client, cfg.Redis.TTL), logger)
			logger.Info("status cache: redis", zap.String("addr", cfg.Redis.Addr))
		}
	}
	return l, closeAll, nil
}

func NewGatewayClient(cfg *config.Config, logger *zap.Logger) *mpesa.Client {
	httpClient := &http.Client{
		Timeout: cfg.Gateway.Timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        cfg.Outbound.MaxIdleConns,
			MaxIdleConnsPerHost: cfg.Outbound.MaxIdleConns,
			IdleConnTimeout:     90 * time.Second,
		},
	}
	return mpesa.New(mpesa.Config{
		BaseURL:           cfg.Gateway.BaseURL,
		ConsumerKey:       cfg.Gateway.ConsumerKey,
		ConsumerSecret:    cfg.Gateway.ConsumerSecret,
		BusinessShortCode: cfg.Gateway.BusinessShortCode,
		Passkey:           cfg.Gateway.Passkey,
		CallbackURL:       cfg.Gateway.CallbackURL,
		Timeout:           cfg.Gateway.Timeout,
		BreakerFailures:   cfg.Gateway.BreakerFailures,
		BreakerOpenFor:    cfg.Gateway.BreakerOpenFor,
	}, httpClient, logger)
}

// NewPublisher returns a Kafka publisher when brokers are configured and a
// log publisher otherwise.
func NewPublisher(cfg *config.Config, logger *zap.Logger) (events.Publisher, func() error) {
	if len(cfg.Kafka.Brokers) == 0 {
		logger.Info("events: no KAFKA_BROKERS, logging only")
		return events.LogPublisher{Logger: logger}, func() error { return nil }
	}
	bus := events.NewBus(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic, cfg.Kafka.GroupID, logger)
	return bus, bus.Close
}
