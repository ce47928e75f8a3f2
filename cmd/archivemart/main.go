// Package main запускает HTTP-сервер сервиса archivemart.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/archivemart/internal/config"
	"github.com/mmeshcher/archivemart/internal/gateway"
	"github.com/mmeshcher/archivemart/internal/handler"
	"github.com/mmeshcher/archivemart/internal/middleware"
	"github.com/mmeshcher/archivemart/internal/notify"
	"github.com/mmeshcher/archivemart/internal/repository"
	"github.com/mmeshcher/archivemart/internal/repository/memory"
	"github.com/mmeshcher/archivemart/internal/service"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.DevMode)
	defer logger.Sync()

	sugar := logger.Sugar()

	settings, err := cfg.LoyaltySettings()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var repo service.Repository
	if cfg.DatabaseURI != "" {
		repo, err = repository.NewPostgresRepository(cfg.DatabaseURI)
		if err != nil {
			sugar.Fatalw("database initialization error", "error", err.Error())
		}
	} else {
		sugar.Warn("DATABASE_URI is empty, using in-memory storage")
		repo = memory.New()
	}

	opts := []service.Option{
		service.WithLogger(logger),
		service.WithCurrency(cfg.Currency),
		service.WithPaymentTimeout(cfg.PaymentTimeout, cfg.SweepInterval),
		service.WithDevMode(cfg.DevMode),
	}

	if cfg.PaymentGatewayAddress != "" {
		opts = append(opts, service.WithGateway(gateway.NewClient(cfg.PaymentGatewayAddress, cfg.PaymentGatewayKey, logger)))
	} else {
		sugar.Warnw("payment gateway is not configured", "devMode", cfg.DevMode)
	}

	if cfg.RedisAddr != "" {
		pub, err := notify.NewRedisPublisher(ctx, cfg.RedisAddr, cfg.RedisChannel)
		if err != nil {
			sugar.Fatalw("redis initialization error", "error", err.Error())
		}
		defer pub.Close()
		opts = append(opts, service.WithPublisher(pub))
	} else {
		opts = append(opts, service.WithPublisher(notify.NewLogPublisher(logger)))
	}

	if cfg.WebhookSecret == "" {
		sugar.Warn("WEBHOOK_SECRET is empty, payment webhooks will be rejected")
	}

	svc := service.NewService(repo, settings, opts...)
	defer svc.Close()

	authMiddleware := middleware.NewAuthMiddleware(cfg.AuthSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, handler.Config{
		AdminToken:    cfg.AdminToken,
		WebhookSecret: cfg.WebhookSecret,
	})

	r := h.SetupRouter()

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Отмена зависших заказов и опрос шлюза
	g.Go(func() error {
		svc.StartPaymentSweep(ctx)
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting archivemart server", "addr", cfg.RunAddress, "devMode", cfg.DevMode)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func newLogger(dev bool) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if dev {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
