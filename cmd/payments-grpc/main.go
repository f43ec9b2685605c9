// cmd/payments-grpc/main.go
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gp "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/example/rent-payments-poc/internal/app"
	"github.com/example/rent-payments-poc/internal/grpcserver"
	"github.com/example/rent-payments-poc/internal/payment"
	"github.com/example/rent-payments-poc/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	logger := app.MustLogger(cfg).Named("payments-grpc")
	defer logger.Sync()

	// Payments are written by api-gateway; a private ledger would answer NotFound for all of them.
	if err := cfg.Ledger.RequireShared(); err != nil {
		logger.Fatal("ledger not shared with api-gateway", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, closeLedger, err := app.OpenLedger(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open ledger", zap.Error(err))
	}
	defer closeLedger()

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(gp.UnaryServerInterceptor),
		grpc.StreamInterceptor(gp.StreamServerInterceptor),
	)
	grpcserver.RegisterPaymentStatusServer(grpcServer, &grpcserver.PaymentsServer{
		Status: payment.NewStatusService(l),
	})
	gp.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		logger.Fatal("listen", zap.String("addr", cfg.GRPC.Addr), zap.Error(err))
	}
	go func() {
		logger.Info("serving gRPC", zap.String("addr", cfg.GRPC.Addr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Fatal("grpc serve", zap.Error(err))
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.GRPC.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("serving metrics", zap.String("addr", cfg.GRPC.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("metrics serve", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	grpcServer.GracefulStop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Info("bye")
}
