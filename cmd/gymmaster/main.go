// Package main запускает HTTP-сервер сервиса учёта абонементов спортзала.
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

	"github.com/mmeshcher/gymmaster/internal/config"
	"github.com/mmeshcher/gymmaster/internal/handler"
	"github.com/mmeshcher/gymmaster/internal/metrics"
	"github.com/mmeshcher/gymmaster/internal/repository"
	"github.com/mmeshcher/gymmaster/internal/scheduler"
	"github.com/mmeshcher/gymmaster/internal/service"
	"github.com/mmeshcher/gymmaster/internal/webhook"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	m := metrics.New()

	svc := service.NewService(repo, m, logger)
	defer svc.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := svc.EnsureTarget(ctx, cfg.DefaultRevenueTarget); err != nil {
		sugar.Fatalw("revenue target initialization error", "error", err.Error())
	}

	var notifier scheduler.Notifier
	if cfg.AlertWebhookURL != "" {
		notifier = webhook.NewClient(cfg.AlertWebhookURL)
	}

	sched := scheduler.New(svc, notifier, logger)
	if err := sched.Register(cfg.ReconcileSchedule, cfg.NotifySchedule); err != nil {
		sugar.Fatalw("scheduler configuration error", "error", err.Error())
	}

	h := handler.NewHandler(svc, logger, m.Handler())

	r := h.SetupRouter()

	server := &http.Server{
		Addr:    cfg.RunAddress,
		Handler: r,
	}

	g, ctx := errgroup.WithContext(ctx)

	// Сверка статусов и рассылка оповещений по расписанию
	g.Go(func() error {
		if err := sched.Reconcile(ctx); err != nil {
			sugar.Warnw("initial status reconciliation failed", "error", err)
		}
		sched.Start(ctx)

		<-ctx.Done()
		<-sched.Stop().Done()
		sugar.Info("scheduler stopped")
		return nil
	})

	// Запуск HTTP-сервера
	g.Go(func() error {
		sugar.Infow("starting gymmaster server", "addr", cfg.RunAddress)
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
