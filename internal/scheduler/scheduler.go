// Package scheduler запускает фоновые задачи по расписанию cron:
// сверку сохранённых статусов и рассылку сводки оповещений.
package scheduler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mmeshcher/gymmaster/internal/model"
	"github.com/mmeshcher/gymmaster/internal/notification"
	"github.com/mmeshcher/gymmaster/internal/webhook"
)

const jobTimeout = 30 * time.Second

// Service описывает операции сервиса, выполняемые по расписанию.
type Service interface {
	ReconcileStatuses(ctx context.Context, now time.Time) (int, error)
	Notifications(ctx context.Context, now time.Time) ([]model.Notification, error)
}

// Notifier доставляет сводку оповещений.
type Notifier interface {
	Send(ctx context.Context, p webhook.Payload) (int, time.Duration, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron     *cron.Cron
	svc      Service
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
	ctx      context.Context
}

// New создаёт планировщик. notifier может быть nil, тогда рассылка не регистрируется.
func New(svc Service, notifier Notifier, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		cron:     cron.New(),
		svc:      svc,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
		ctx:      context.Background(),
	}
}

// Register добавляет задачи с указанными расписаниями.
func (s *Scheduler) Register(reconcileSpec, notifySpec string) error {
	if _, err := s.cron.AddFunc(reconcileSpec, s.runReconcile); err != nil {
		return fmt.Errorf("schedule reconciliation %q: %w", reconcileSpec, err)
	}

	if s.notifier == nil {
		s.logger.Info("alert webhook not configured, notification digest disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(notifySpec, s.runNotify); err != nil {
		return fmt.Errorf("schedule notifications %q: %w", notifySpec, err)
	}
	return nil
}

// Start запускает планировщик; задачи выполняются в контексте ctx.
func (s *Scheduler) Start(ctx context.Context) {
	s.ctx = ctx
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop останавливает планировщик и возвращает контекст, завершающийся после окончания запущенных задач.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) runReconcile() {
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()

	if err := s.Reconcile(ctx); err != nil {
		s.logger.Error("status reconciliation failed", zap.Error(err))
	}
}

func (s *Scheduler) runNotify() {
	ctx, cancel := context.WithTimeout(s.ctx, jobTimeout)
	defer cancel()

	if err := s.Notify(ctx); err != nil {
		s.logger.Error("notification digest failed", zap.Error(err))
	}
}

// Reconcile перезаписывает устаревшие сохранённые статусы участников.
func (s *Scheduler) Reconcile(ctx context.Context) error {
	n, err := s.svc.ReconcileStatuses(ctx, s.now())
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("member statuses reconciled", zap.Int("corrected", n))
	}
	return nil
}

// Notify отправляет текущие оповещения в webhook.
// При ответе 429 повторяет отправку один раз после паузы Retry-After.
func (s *Scheduler) Notify(ctx context.Context) error {
	if s.notifier == nil {
		return nil
	}

	now := s.now()
	ns, err := s.svc.Notifications(ctx, now)
	if err != nil {
		return err
	}
	if len(ns) == 0 {
		return nil
	}

	payload := webhook.Payload{
		GeneratedAt: now,
		Messages:    notification.Messages(ns),
	}

	status, retryAfter, err := s.notifier.Send(ctx, payload)
	if err != nil {
		return err
	}

	if status == http.StatusTooManyRequests {
		s.logger.Warn("alert webhook rate limited", zap.Duration("retryAfter", retryAfter))

		timer := time.NewTimer(retryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		status, _, err = s.notifier.Send(ctx, payload)
		if err != nil {
			return err
		}
		if status == http.StatusTooManyRequests {
			return fmt.Errorf("alert webhook still rate limited")
		}
	}

	s.logger.Info("notification digest sent", zap.Int("messages", len(payload.Messages)))
	return nil
}
