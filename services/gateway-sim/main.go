// services/gateway-sim/main.go
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
	"go.uber.org/zap"

	"github.com/example/rent-payments-poc/internal/app"
	"github.com/example/rent-payments-poc/pkg/config"
	m "github.com/example/rent-payments-poc/pkg/metrics"
)

const serviceName = "gateway-sim"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := app.MustLogger(cfg).Named(serviceName)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sim := newSimulator(simConfig{
		FailRate:      cfg.Sandbox.FailRate,
		CallbackDelay: cfg.Sandbox.CallbackDelay,
		CancelRate:    0.15,
		Latency:       true,
	}, logger)

	r := mux.NewRouter()
	r.Use(m.Middleware(serviceName))

	// health
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "service": serviceName})
	}).Methods(http.MethodGet)

	// gateway endpoints
	sim.routes(r)

	// expose metrics
	r.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: cfg.Sandbox.Addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Sandbox.Addr), zap.Float64("fail_rate", cfg.Sandbox.FailRate))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http serve", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	sim.wait()
}
