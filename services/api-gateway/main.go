// services/api-gateway/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/example/rent-payments-poc/internal/app"
	"github.com/example/rent-payments-poc/internal/events"
	"github.com/example/rent-payments-poc/internal/payment"
	"github.com/example/rent-payments-poc/pkg/config"
	m "github.com/example/rent-payments-poc/pkg/metrics"
	"github.com/example/rent-payments-poc/services/api-gateway/handlers"
)

const serviceName = "api-gateway"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := app.MustLogger(cfg).Named(serviceName)
	defer logger.Sync()

	if err := cfg.Gateway.ValidateGateway(); err != nil {
		logger.Fatal("gateway config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, closeLedger, err := app.OpenLedger(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open ledger", zap.Error(err))
	}
	defer closeLedger()

	pub, closePub := app.NewPublisher(cfg, logger)
	defer func() { _ = closePub() }()
	dispatcher := events.NewDispatcher(pub, cfg.Kafka.BufferSize, logger)

	gw := app.NewGatewayClient(cfg, logger)

	r := mux.NewRouter()
	r.Use(m.Middleware(serviceName))

	// metrics & health
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":      true,
			"service": serviceName,
			"ts":      time.Now().UTC(),
		})
	}).Methods(http.MethodGet)

	// API
	handlers.Routes(r, handlers.Deps{
		Initiator: payment.NewInitiator(gw, l, payment.InitiatorConfig{
			CountryPrefix:   cfg.Gateway.CountryPrefix,
			TransactionDesc: cfg.Gateway.TransactionDesc,
		}, logger),
		Reconciler: payment.NewReconciler(l, dispatcher, logger),
		Status:     payment.NewStatusService(l),
		Logger:     logger,
		Timeout:    cfg.HTTP.RequestTimeout,
	})

	c := cors.AllowAll()
	if len(cfg.HTTP.AllowedOrigins) > 0 {
		c = cors.New(cors.Options{
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		})
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           c.Handler(r),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.HTTP.RequestTimeout + 5*time.Second,
	}
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTP.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http serve", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", zap.Error(err))
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		logger.Error("event dispatcher did not drain", zap.Error(err))
	}
	logger.Info("bye")
}
