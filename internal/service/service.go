// Package service реализует бизнес-логику учёта абонементов и финансовой аналитики.
package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/gymmaster/internal/analytics"
	"github.com/mmeshcher/gymmaster/internal/billing"
	"github.com/mmeshcher/gymmaster/internal/metrics"
	"github.com/mmeshcher/gymmaster/internal/model"
	"github.com/mmeshcher/gymmaster/internal/notification"
	"github.com/mmeshcher/gymmaster/internal/repository"
	"github.com/mmeshcher/gymmaster/internal/validation"
)

const (
	// TargetConfigKey содержит ключ цели по месячной выручке в конфигурации.
	TargetConfigKey = "monthly_revenue_target"
	// DefaultTarget используется как цель по выручке, если она ещё не задана.
	DefaultTarget = 500000.0
)

// ErrInvalidTarget возвращается при попытке задать неположительную цель по выручке.
var ErrInvalidTarget = errors.New("revenue target must be positive")

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error
	CreateMember(ctx context.Context, m model.Member) (model.Member, error)
	UpdateMember(ctx context.Context, m model.Member) (model.Member, error)
	GetMember(ctx context.Context, id int64) (model.Member, error)
	ListMembers(ctx context.Context) ([]model.Member, error)
	DeleteMember(ctx context.Context, id int64) error
	ListPayments(ctx context.Context, memberID *int64) ([]model.Payment, error)
	RecordPayment(ctx context.Context, memberID int64, apply repository.ApplyFunc) (model.Payment, error)
	UpdateStatuses(ctx context.Context, statuses map[int64]model.Status) error
	GetConfig(ctx context.Context, key string) (string, bool, error)
	SetConfig(ctx context.Context, key, value string) error
	EnsureConfig(ctx context.Context, key, value string) error
}

// Service содержит бизнес-логику сервиса.
type Service struct {
	repo    Repository
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewService создаёт новый сервис с указанным репозиторием. metrics может быть nil.
func NewService(repo Repository, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:    repo,
		metrics: m,
		logger:  logger,
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// MemberInput содержит редактируемые поля участника.
// DueDate учитывается только при создании: далее дату оплаты переносят лишь платежи.
type MemberInput struct {
	Name      string
	Phone     string
	Email     string
	BirthDate *time.Time
	DueDate   time.Time
	Plan      string
	PlanPrice float64
	Notes     string
}

func (in MemberInput) normalize() (MemberInput, model.Plan, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.TrimSpace(in.Email)

	if err := validation.MemberFields(in.Name, in.Phone, in.Email, in.PlanPrice); err != nil {
		return in, "", err
	}

	plan, err := billing.ParsePlan(in.Plan)
	if err != nil {
		return in, "", err
	}

	if in.BirthDate != nil {
		d := billing.Date(*in.BirthDate)
		in.BirthDate = &d
	}

	return in, plan, nil
}

// CreateMember регистрирует нового участника с начальной датой оплаты.
func (s *Service) CreateMember(ctx context.Context, in MemberInput, now time.Time) (model.Member, error) {
	in, plan, err := in.normalize()
	if err != nil {
		return model.Member{}, err
	}
	if in.DueDate.IsZero() {
		return model.Member{}, &validation.FieldError{Field: "due_date", Reason: "is required"}
	}

	m := model.Member{
		Name:       in.Name,
		Phone:      in.Phone,
		Email:      in.Email,
		BirthDate:  in.BirthDate,
		EnrolledAt: billing.Date(now),
		DueDate:    billing.Date(in.DueDate),
		Plan:       plan,
		PlanPrice:  in.PlanPrice,
		Notes:      in.Notes,
	}
	m.Status = billing.Classify(m.DueDate, now)

	created, err := s.repo.CreateMember(ctx, m)
	if err != nil {
		return model.Member{}, err
	}

	s.logger.Info("member created", zap.Int64("memberID", created.ID), zap.String("plan", string(plan)))
	return billing.WithStatus(created, now), nil
}

// UpdateMember обновляет профиль участника, не затрагивая дату оплаты.
func (s *Service) UpdateMember(ctx context.Context, id int64, in MemberInput, now time.Time) (model.Member, error) {
	in, plan, err := in.normalize()
	if err != nil {
		return model.Member{}, err
	}

	m, err := s.repo.GetMember(ctx, id)
	if err != nil {
		return model.Member{}, err
	}

	m.Name = in.Name
	m.Phone = in.Phone
	m.Email = in.Email
	m.BirthDate = in.BirthDate
	m.Plan = plan
	m.PlanPrice = in.PlanPrice
	m.Notes = in.Notes
	m.Status = billing.Classify(m.DueDate, now)

	updated, err := s.repo.UpdateMember(ctx, m)
	if err != nil {
		return model.Member{}, err
	}

	return billing.WithStatus(updated, now), nil
}

// GetMember возвращает участника со статусом, вычисленным на момент now.
func (s *Service) GetMember(ctx context.Context, id int64, now time.Time) (model.Member, error) {
	m, err := s.repo.GetMember(ctx, id)
	if err != nil {
		return model.Member{}, err
	}
	return billing.WithStatus(m, now), nil
}

// ListMembers возвращает всех участников со статусами на момент now.
func (s *Service) ListMembers(ctx context.Context, now time.Time) ([]model.Member, error) {
	members, err := s.repo.ListMembers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range members {
		members[i] = billing.WithStatus(members[i], now)
	}
	return members, nil
}

// DeleteMember удаляет участника вместе с его платежами.
func (s *Service) DeleteMember(ctx context.Context, id int64) error {
	if err := s.repo.DeleteMember(ctx, id); err != nil {
		return err
	}
	s.logger.Info("member deleted", zap.Int64("memberID", id))
	return nil
}

// RecordPayment фиксирует платёж и переносит дату оплаты участника в одной транзакции хранилища.
func (s *Service) RecordPayment(ctx context.Context, memberID int64, in billing.PaymentInput, now time.Time) (model.Payment, error) {
	if !billing.ValidPaymentAmount(in.Amount) {
		return model.Payment{}, fmt.Errorf("%w: %v", billing.ErrInvalidAmount, in.Amount)
	}
	if !in.PaidAt.IsZero() {
		in.PaidAt = billing.Date(in.PaidAt)
	}

	var dueDate time.Time
	p, err := s.repo.RecordPayment(ctx, memberID, func(m model.Member) (model.Payment, time.Time, error) {
		p, due, err := billing.ApplyPayment(m, in, billing.Date(now))
		dueDate = due
		return p, due, err
	})
	if err != nil {
		return model.Payment{}, err
	}

	s.metrics.ObservePayment(p)
	s.logger.Info("payment recorded",
		zap.Int64("memberID", memberID),
		zap.Int64("paymentID", p.ID),
		zap.Float64("amount", p.Amount),
		zap.Time("dueDate", dueDate),
	)

	return p, nil
}

// ListPayments возвращает платежи участника или все платежи, если memberID не задан.
func (s *Service) ListPayments(ctx context.Context, memberID *int64) ([]model.Payment, error) {
	if memberID != nil {
		if _, err := s.repo.GetMember(ctx, *memberID); err != nil {
			return nil, err
		}
	}
	return s.repo.ListPayments(ctx, memberID)
}

// GetTarget возвращает цель по месячной выручке.
func (s *Service) GetTarget(ctx context.Context) (float64, error) {
	v, ok, err := s.repo.GetConfig(ctx, TargetConfigKey)
	if err != nil {
		return 0, err
	}
	if !ok {
		return DefaultTarget, nil
	}

	target, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parse revenue target %q: %w", v, err)
	}
	return target, nil
}

func validTarget(amount float64) bool {
	return amount > 0 && !math.IsInf(amount, 0) && !math.IsNaN(amount)
}

// SetTarget задаёт цель по месячной выручке.
func (s *Service) SetTarget(ctx context.Context, amount float64) error {
	if !validTarget(amount) {
		return fmt.Errorf("%w: %v", ErrInvalidTarget, amount)
	}
	if err := s.repo.SetConfig(ctx, TargetConfigKey, strconv.FormatFloat(amount, 'f', -1, 64)); err != nil {
		return err
	}
	s.logger.Info("revenue target updated", zap.Float64("target", amount))
	return nil
}

// EnsureTarget записывает цель по умолчанию, если она ещё не задана.
func (s *Service) EnsureTarget(ctx context.Context, amount float64) error {
	if !validTarget(amount) {
		return fmt.Errorf("%w: %v", ErrInvalidTarget, amount)
	}
	return s.repo.EnsureConfig(ctx, TargetConfigKey, strconv.FormatFloat(amount, 'f', -1, 64))
}

func (s *Service) snapshot(ctx context.Context) ([]model.Member, []model.Payment, float64, error) {
	members, err := s.repo.ListMembers(ctx)
	if err != nil {
		return nil, nil, 0, err
	}
	payments, err := s.repo.ListPayments(ctx, nil)
	if err != nil {
		return nil, nil, 0, err
	}
	target, err := s.GetTarget(ctx)
	if err != nil {
		return nil, nil, 0, err
	}
	return members, payments, target, nil
}

// Stats рассчитывает финансовые показатели на момент now.
func (s *Service) Stats(ctx context.Context, now time.Time) (model.Stats, error) {
	members, payments, target, err := s.snapshot(ctx)
	if err != nil {
		return model.Stats{}, err
	}

	stats := analytics.ComputeStats(members, payments, target, now)
	s.metrics.ObserveStats(stats)

	return stats, nil
}

// RevenueSeries возвращает помесячную выручку за последние windowMonths месяцев.
func (s *Service) RevenueSeries(ctx context.Context, now time.Time, windowMonths int) ([]model.MonthlyRevenuePoint, error) {
	payments, err := s.repo.ListPayments(ctx, nil)
	if err != nil {
		return nil, err
	}
	return analytics.RevenueSeries(payments, now, windowMonths), nil
}

// Notifications формирует оповещения о сроках оплаты и цели по выручке на момент now.
func (s *Service) Notifications(ctx context.Context, now time.Time) ([]model.Notification, error) {
	members, payments, target, err := s.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	stats := analytics.ComputeStats(members, payments, target, now)
	return notification.Build(members, stats, now), nil
}

// ReconcileStatuses перезаписывает сохранённые статусы, разошедшиеся с вычисленными на момент now.
// Возвращает количество исправленных записей.
func (s *Service) ReconcileStatuses(ctx context.Context, now time.Time) (int, error) {
	members, err := s.repo.ListMembers(ctx)
	if err != nil {
		return 0, err
	}

	changed := make(map[int64]model.Status)
	for _, m := range members {
		if st := billing.Classify(m.DueDate, now); st != m.Status {
			changed[m.ID] = st
		}
	}

	if err := s.repo.UpdateStatuses(ctx, changed); err != nil {
		return 0, err
	}

	s.metrics.ObserveStatusCorrections(len(changed))
	return len(changed), nil
}
