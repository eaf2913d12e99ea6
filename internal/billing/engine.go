package billing

import (
	"errors"
	"fmt"
	"time"

	"github.com/mmeshcher/gymmaster/internal/model"
)

// DaysPerBillingMonth задаёт длину расчётного месяца продления в днях.
// Календарные месяцы не используются: годовой план продлевается на 360 дней.
const DaysPerBillingMonth = 30

// ErrInvalidAmount возвращается для суммы меньше одной копейки или вне диапазона хранилища.
var ErrInvalidAmount = errors.New("payment amount must be at least 0.01 and within range")

// PaymentInput содержит параметры регистрируемого платежа.
type PaymentInput struct {
	PaidAt          time.Time
	Amount          float64
	ReferencePeriod string
	Method          string
	Notes           string
	// PlanOverride задаёт план для расчёта продления вместо плана участника.
	PlanOverride *model.Plan
}

// NextDueDate вычисляет новую дату оплаты: от большей из дат today и currentDue.
func NextDueDate(currentDue, today time.Time, plan model.Plan) (time.Time, error) {
	months, err := RenewalPeriod(plan)
	if err != nil {
		return time.Time{}, err
	}

	base := Date(today)
	if due := Date(currentDue); due.After(base) {
		base = due
	}

	return base.AddDate(0, 0, DaysPerBillingMonth*months), nil
}

// ApplyPayment формирует платёж и новую дату оплаты участника.
// Участник не изменяется: запись результата выполняет хранилище в одной транзакции.
func ApplyPayment(m model.Member, in PaymentInput, now time.Time) (model.Payment, time.Time, error) {
	if !ValidPaymentAmount(in.Amount) {
		return model.Payment{}, time.Time{}, fmt.Errorf("%w: %v", ErrInvalidAmount, in.Amount)
	}

	plan := m.Plan
	if in.PlanOverride != nil {
		plan = *in.PlanOverride
	}

	due, err := NextDueDate(m.DueDate, now, plan)
	if err != nil {
		return model.Payment{}, time.Time{}, err
	}

	paidAt := in.PaidAt
	if paidAt.IsZero() {
		paidAt = now
	}

	return model.Payment{
		MemberID:        m.ID,
		PaidAt:          paidAt,
		Amount:          in.Amount,
		ReferencePeriod: in.ReferencePeriod,
		Method:          in.Method,
		Notes:           in.Notes,
	}, due, nil
}
