// Package billing содержит ядро расчёта статусов и сроков оплаты абонементов.
package billing

import (
	"time"

	"github.com/mmeshcher/gymmaster/internal/model"
)

// WarningWindowDays задаёт количество дней до даты оплаты, в течение которых участник в статусе warning.
const WarningWindowDays = 7

const secondsPerDay = 24 * 60 * 60

// Date отбрасывает время суток и возвращает календарную дату в UTC.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysUntil возвращает число полных дней от now до dueDate; отрицательное значение означает просрочку.
func DaysUntil(dueDate, now time.Time) int {
	return int((Date(dueDate).Unix() - Date(now).Unix()) / secondsPerDay)
}

// Classify вычисляет статус участника по дате оплаты относительно now.
func Classify(dueDate, now time.Time) model.Status {
	days := DaysUntil(dueDate, now)
	switch {
	case days < 0:
		return model.StatusOverdue
	case days <= WarningWindowDays:
		return model.StatusWarning
	default:
		return model.StatusActive
	}
}

// WithStatus возвращает копию участника с пересчитанным статусом.
func WithStatus(m model.Member, now time.Time) model.Member {
	m.Status = Classify(m.DueDate, now)
	return m
}
