// Package handler содержит HTTP-обработчики API сервиса учёта абонементов.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/gymmaster/internal/billing"
	"github.com/mmeshcher/gymmaster/internal/model"
	"github.com/mmeshcher/gymmaster/internal/repository"
	"github.com/mmeshcher/gymmaster/internal/service"
	"github.com/mmeshcher/gymmaster/internal/validation"
)

const dateLayout = "2006-01-02"

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	CreateMember(ctx context.Context, in service.MemberInput, now time.Time) (model.Member, error)
	UpdateMember(ctx context.Context, id int64, in service.MemberInput, now time.Time) (model.Member, error)
	GetMember(ctx context.Context, id int64, now time.Time) (model.Member, error)
	ListMembers(ctx context.Context, now time.Time) ([]model.Member, error)
	DeleteMember(ctx context.Context, id int64) error
	RecordPayment(ctx context.Context, memberID int64, in billing.PaymentInput, now time.Time) (model.Payment, error)
	ListPayments(ctx context.Context, memberID *int64) ([]model.Payment, error)
	Stats(ctx context.Context, now time.Time) (model.Stats, error)
	RevenueSeries(ctx context.Context, now time.Time, windowMonths int) ([]model.MonthlyRevenuePoint, error)
	Notifications(ctx context.Context, now time.Time) ([]model.Notification, error)
	GetTarget(ctx context.Context) (float64, error)
	SetTarget(ctx context.Context, amount float64) error
}

// Handler реализует HTTP-обработчики API.
type Handler struct {
	service Service
	logger  *zap.Logger
	metrics http.Handler
	now     func() time.Time
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов. metrics может быть nil.
func NewHandler(s Service, logger *zap.Logger, metrics http.Handler) *Handler {
	return &Handler{
		service: s,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError отображает доменные ошибки на коды ответа; неизвестные ошибки логируются.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrMemberNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.Is(err, validation.ErrInvalidInput),
		errors.Is(err, billing.ErrInvalidPlan),
		errors.Is(err, billing.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidTarget):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	default:
		h.logger.Error(op+" error", zap.Error(err), zap.String("path", r.URL.Path))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// referenceTime возвращает момент расчёта: параметр at=YYYY-MM-DD или текущее время.
func (h *Handler) referenceTime(r *http.Request) (time.Time, error) {
	at := r.URL.Query().Get("at")
	if at == "" {
		return h.now(), nil
	}
	return time.Parse(dateLayout, at)
}

func memberIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func parseOptionalDate(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func formatDate(t time.Time) string {
	return t.Format(dateLayout)
}

type memberRequest struct {
	Name      string  `json:"name"`
	Phone     string  `json:"phone"`
	Email     string  `json:"email"`
	BirthDate *string `json:"birth_date"`
	DueDate   *string `json:"due_date"`
	Plan      string  `json:"plan"`
	PlanPrice float64 `json:"plan_price"`
	Notes     string  `json:"notes"`
}

func (req memberRequest) input() (service.MemberInput, error) {
	birth, err := parseOptionalDate(req.BirthDate)
	if err != nil {
		return service.MemberInput{}, &validation.FieldError{Field: "birth_date", Reason: "expected YYYY-MM-DD"}
	}
	due, err := parseOptionalDate(req.DueDate)
	if err != nil {
		return service.MemberInput{}, &validation.FieldError{Field: "due_date", Reason: "expected YYYY-MM-DD"}
	}

	in := service.MemberInput{
		Name:      req.Name,
		Phone:     req.Phone,
		Email:     req.Email,
		BirthDate: birth,
		Plan:      req.Plan,
		PlanPrice: req.PlanPrice,
		Notes:     req.Notes,
	}
	if due != nil {
		in.DueDate = *due
	}
	return in, nil
}

type memberResponse struct {
	ID           int64   `json:"id"`
	Name         string  `json:"name"`
	Phone        string  `json:"phone,omitempty"`
	Email        string  `json:"email,omitempty"`
	BirthDate    *string `json:"birth_date,omitempty"`
	EnrolledAt   string  `json:"enrolled_at"`
	DueDate      string  `json:"due_date"`
	DaysUntilDue int     `json:"days_until_due"`
	Plan         string  `json:"plan"`
	PlanPrice    float64 `json:"plan_price"`
	Notes        string  `json:"notes,omitempty"`
	Status       string  `json:"status"`
}

func toMemberResponse(m model.Member, now time.Time) memberResponse {
	resp := memberResponse{
		ID:           m.ID,
		Name:         m.Name,
		Phone:        m.Phone,
		Email:        m.Email,
		EnrolledAt:   formatDate(m.EnrolledAt),
		DueDate:      formatDate(m.DueDate),
		DaysUntilDue: billing.DaysUntil(m.DueDate, now),
		Plan:         string(m.Plan),
		PlanPrice:    m.PlanPrice,
		Notes:        m.Notes,
		Status:       string(m.Status),
	}
	if m.BirthDate != nil {
		b := formatDate(*m.BirthDate)
		resp.BirthDate = &b
	}
	return resp
}

// ListMembers возвращает всех участников со статусами на момент запроса.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	now, err := h.referenceTime(r)
	if err != nil {
		badRequest(w, "at: expected YYYY-MM-DD")
		return
	}

	members, err := h.service.ListMembers(r.Context(), now)
	if err != nil {
		h.writeError(w, r, "list members", err)
		return
	}

	resp := make([]memberResponse, 0, len(members))
	for _, m := range members {
		resp = append(resp, toMemberResponse(m, now))
	}
	writeJSON(w, http.StatusOK, resp)
}

// CreateMember регистрирует нового участника.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	in, err := req.input()
	if err != nil {
		h.writeError(w, r, "create member", err)
		return
	}

	now := h.now()
	m, err := h.service.CreateMember(r.Context(), in, now)
	if err != nil {
		h.writeError(w, r, "create member", err)
		return
	}

	writeJSON(w, http.StatusCreated, toMemberResponse(m, now))
}

// GetMember возвращает участника по идентификатору.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	id, ok := memberIDParam(r)
	if !ok {
		badRequest(w, "invalid member id")
		return
	}
	now, err := h.referenceTime(r)
	if err != nil {
		badRequest(w, "at: expected YYYY-MM-DD")
		return
	}

	m, err := h.service.GetMember(r.Context(), id, now)
	if err != nil {
		h.writeError(w, r, "get member", err)
		return
	}

	writeJSON(w, http.StatusOK, toMemberResponse(m, now))
}

// UpdateMember обновляет профиль участника.
func (h *Handler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	id, ok := memberIDParam(r)
	if !ok {
		badRequest(w, "invalid member id")
		return
	}

	var req memberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	in, err := req.input()
	if err != nil {
		h.writeError(w, r, "update member", err)
		return
	}

	now := h.now()
	m, err := h.service.UpdateMember(r.Context(), id, in, now)
	if err != nil {
		h.writeError(w, r, "update member", err)
		return
	}

	writeJSON(w, http.StatusOK, toMemberResponse(m, now))
}

// DeleteMember удаляет участника вместе с его платежами.
func (h *Handler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	id, ok := memberIDParam(r)
	if !ok {
		badRequest(w, "invalid member id")
		return
	}

	if err := h.service.DeleteMember(r.Context(), id); err != nil {
		h.writeError(w, r, "delete member", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type paymentRequest struct {
	PaidAt          *string `json:"paid_at"`
	Amount          float64 `json:"amount"`
	ReferencePeriod string  `json:"reference_period"`
	Method          string  `json:"method"`
	Notes           string  `json:"notes"`
	Plan            string  `json:"plan,omitempty"`
}

type paymentResponse struct {
	ID              int64   `json:"id"`
	MemberID        int64   `json:"member_id"`
	PaidAt          string  `json:"paid_at"`
	Amount          float64 `json:"amount"`
	ReferencePeriod string  `json:"reference_period,omitempty"`
	Method          string  `json:"method,omitempty"`
	Notes           string  `json:"notes,omitempty"`
}

func toPaymentResponse(p model.Payment) paymentResponse {
	return paymentResponse{
		ID:              p.ID,
		MemberID:        p.MemberID,
		PaidAt:          formatDate(p.PaidAt),
		Amount:          p.Amount,
		ReferencePeriod: p.ReferencePeriod,
		Method:          p.Method,
		Notes:           p.Notes,
	}
}

// RecordPayment фиксирует платёж участника и переносит дату оплаты.
func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := memberIDParam(r)
	if !ok {
		badRequest(w, "invalid member id")
		return
	}

	var req paymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	paidAt, err := parseOptionalDate(req.PaidAt)
	if err != nil {
		badRequest(w, "paid_at: expected YYYY-MM-DD")
		return
	}

	in := billing.PaymentInput{
		Amount:          req.Amount,
		ReferencePeriod: req.ReferencePeriod,
		Method:          req.Method,
		Notes:           req.Notes,
	}
	if paidAt != nil {
		in.PaidAt = *paidAt
	}
	if req.Plan != "" {
		plan, err := billing.ParsePlan(req.Plan)
		if err != nil {
			h.writeError(w, r, "record payment", err)
			return
		}
		in.PlanOverride = &plan
	}

	p, err := h.service.RecordPayment(r.Context(), id, in, h.now())
	if err != nil {
		h.writeError(w, r, "record payment", err)
		return
	}

	writeJSON(w, http.StatusCreated, toPaymentResponse(p))
}

func (h *Handler) writePayments(w http.ResponseWriter, r *http.Request, memberID *int64) {
	payments, err := h.service.ListPayments(r.Context(), memberID)
	if err != nil {
		h.writeError(w, r, "list payments", err)
		return
	}

	if len(payments) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		resp = append(resp, toPaymentResponse(p))
	}
	writeJSON(w, http.StatusOK, resp)
}

// ListMemberPayments возвращает историю платежей участника.
func (h *Handler) ListMemberPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := memberIDParam(r)
	if !ok {
		badRequest(w, "invalid member id")
		return
	}
	h.writePayments(w, r, &id)
}

// ListPayments возвращает все платежи.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	h.writePayments(w, r, nil)
}

// GetStats возвращает сводные финансовые показатели.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	now, err := h.referenceTime(r)
	if err != nil {
		badRequest(w, "at: expected YYYY-MM-DD")
		return
	}

	stats, err := h.service.Stats(r.Context(), now)
	if err != nil {
		h.writeError(w, r, "get stats", err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// GetRevenue возвращает помесячную выручку; окно задаётся параметром months.
func (h *Handler) GetRevenue(w http.ResponseWriter, r *http.Request) {
	now, err := h.referenceTime(r)
	if err != nil {
		badRequest(w, "at: expected YYYY-MM-DD")
		return
	}

	months := 0
	if v := r.URL.Query().Get("months"); v != "" {
		months, err = strconv.Atoi(v)
		if err != nil || months <= 0 {
			badRequest(w, "months: expected positive integer")
			return
		}
	}

	series, err := h.service.RevenueSeries(r.Context(), now, months)
	if err != nil {
		h.writeError(w, r, "get revenue", err)
		return
	}

	writeJSON(w, http.StatusOK, series)
}

// GetNotifications возвращает оповещения о сроках оплаты и цели по выручке.
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	now, err := h.referenceTime(r)
	if err != nil {
		badRequest(w, "at: expected YYYY-MM-DD")
		return
	}

	ns, err := h.service.Notifications(r.Context(), now)
	if err != nil {
		h.writeError(w, r, "get notifications", err)
		return
	}

	writeJSON(w, http.StatusOK, ns)
}

type targetBody struct {
	Amount float64 `json:"amount"`
}

// GetTarget возвращает цель по месячной выручке.
func (h *Handler) GetTarget(w http.ResponseWriter, r *http.Request) {
	target, err := h.service.GetTarget(r.Context())
	if err != nil {
		h.writeError(w, r, "get target", err)
		return
	}
	writeJSON(w, http.StatusOK, targetBody{Amount: target})
}

// SetTarget задаёт цель по месячной выручке.
func (h *Handler) SetTarget(w http.ResponseWriter, r *http.Request) {
	var req targetBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SetTarget(r.Context(), req.Amount); err != nil {
		h.writeError(w, r, "set target", err)
		return
	}

	writeJSON(w, http.StatusOK, req)
}
