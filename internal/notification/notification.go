// Package notification формирует оповещения о сроках оплаты и выполнении цели по выручке.
package notification

import (
	"fmt"
	"sort"
	"time"

	"github.com/mmeshcher/gymmaster/internal/billing"
	"github.com/mmeshcher/gymmaster/internal/model"
)

const (
	// GoalProgressThreshold задаёт долю цели в процентах, начиная с которой выводится прогресс.
	GoalProgressThreshold = 80.0
	// GoalReachedThreshold задаёт долю цели в процентах, при которой цель считается выполненной.
	GoalReachedThreshold = 100.0
)

// Build возвращает оповещения по участникам в статусах warning и overdue,
// упорядоченные по дате оплаты, и не более одного оповещения о цели в конце.
func Build(members []model.Member, stats model.Stats, now time.Time) []model.Notification {
	due := make([]model.Member, 0, len(members))
	for _, m := range members {
		if st := billing.Classify(m.DueDate, now); st == model.StatusWarning || st == model.StatusOverdue {
			due = append(due, m)
		}
	}

	sort.SliceStable(due, func(i, j int) bool {
		di, dj := billing.Date(due[i].DueDate), billing.Date(due[j].DueDate)
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		if due[i].Name != due[j].Name {
			return due[i].Name < due[j].Name
		}
		return due[i].ID < due[j].ID
	})

	res := make([]model.Notification, 0, len(due)+1)
	for _, m := range due {
		res = append(res, memberNotification(m, now))
	}

	if n, ok := goalNotification(stats); ok {
		res = append(res, n)
	}

	return res
}

func memberNotification(m model.Member, now time.Time) model.Notification {
	days := billing.DaysUntil(m.DueDate, now)
	dueDate := billing.Date(m.DueDate)

	n := model.Notification{
		MemberID:   m.ID,
		MemberName: m.Name,
		DueDate:    &dueDate,
		DaysUntil:  days,
	}

	switch {
	case days < 0:
		n.Kind = model.NotificationOverdue
		n.Message = fmt.Sprintf("❌ %s - overdue by %d %s", m.Name, -days, plural(-days))
	case days == 0:
		n.Kind = model.NotificationDueToday
		n.Message = fmt.Sprintf("⚠️ %s - due today!", m.Name)
	default:
		n.Kind = model.NotificationDueSoon
		n.Message = fmt.Sprintf("🔔 %s - due in %d %s", m.Name, days, plural(days))
	}

	return n
}

func goalNotification(stats model.Stats) (model.Notification, bool) {
	if stats.Revenue.Current <= 0 {
		return model.Notification{}, false
	}

	pct := stats.GoalAttainment
	switch {
	case pct >= GoalReachedThreshold:
		return model.Notification{
			Kind:    model.NotificationGoalReached,
			Message: fmt.Sprintf("🎯 Monthly goal reached! (%.1f%%)", pct),
		}, true
	case pct >= GoalProgressThreshold:
		return model.Notification{
			Kind:    model.NotificationGoalProgress,
			Message: fmt.Sprintf("📈 Monthly goal: %.1f%%", pct),
		}, true
	default:
		return model.Notification{}, false
	}
}

func plural(n int) string {
	if n == 1 {
		return "day"
	}
	return "days"
}

// Messages возвращает тексты оповещений в исходном порядке.
func Messages(ns []model.Notification) []string {
	res := make([]string, 0, len(ns))
	for _, n := range ns {
		res = append(res, n.Message)
	}
	return res
}
