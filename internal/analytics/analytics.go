// Package analytics агрегирует историю платежей и участников в финансовые показатели.
package analytics

import (
	"sort"
	"time"

	"github.com/mmeshcher/gymmaster/internal/billing"
	"github.com/mmeshcher/gymmaster/internal/model"
)

// DefaultWindowMonths задаёт окно ряда выручки по умолчанию.
const DefaultWindowMonths = 12

const monthLayout = "2006-01"

func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MonthRevenue суммирует платежи, дата которых попадает в месяц, начинающийся с month.
func MonthRevenue(payments []model.Payment, month time.Time) float64 {
	start := monthStart(month)
	var total float64
	for _, p := range payments {
		if monthStart(p.PaidAt).Equal(start) {
			total += p.Amount
		}
	}
	return total
}

// GrowthPercent возвращает прирост current к previous в процентах; 0 при previous == 0.
func GrowthPercent(current, previous float64) float64 {
	if previous <= 0 {
		return 0
	}
	return (current - previous) / previous * 100
}

// Growth сравнивает выручку месяца now с предыдущим календарным месяцем.
func Growth(payments []model.Payment, now time.Time) model.GrowthMetric {
	current := monthStart(now)
	previous := current.AddDate(0, -1, 0)

	cur := MonthRevenue(payments, current)
	prev := MonthRevenue(payments, previous)

	return model.GrowthMetric{
		Current:       cur,
		Previous:      prev,
		PercentChange: GrowthPercent(cur, prev),
	}
}

// RevenueSeries группирует платежи за последние windowMonths месяцев по календарным месяцам.
// Месяцы без платежей в ряд не попадают.
func RevenueSeries(payments []model.Payment, now time.Time, windowMonths int) []model.MonthlyRevenuePoint {
	if windowMonths <= 0 {
		windowMonths = DefaultWindowMonths
	}
	from := billing.Date(now).AddDate(0, -windowMonths, 0)

	byMonth := make(map[time.Time]*model.MonthlyRevenuePoint)
	for _, p := range payments {
		if billing.Date(p.PaidAt).Before(from) {
			continue
		}
		key := monthStart(p.PaidAt)
		point, ok := byMonth[key]
		if !ok {
			point = &model.MonthlyRevenuePoint{Month: key, Label: key.Format(monthLayout)}
			byMonth[key] = point
		}
		point.Total += p.Amount
		point.Count++
	}

	series := make([]model.MonthlyRevenuePoint, 0, len(byMonth))
	for _, point := range byMonth {
		series = append(series, *point)
	}
	sort.Slice(series, func(i, j int) bool {
		return series[i].Month.Before(series[j].Month)
	})

	return series
}

// Population считает участников по статусам на момент now и средний чек.
func Population(members []model.Member, now time.Time) model.PopulationStats {
	var (
		stats model.PopulationStats
		sum   float64
	)

	for _, m := range members {
		switch billing.Classify(m.DueDate, now) {
		case model.StatusActive:
			stats.Active++
		case model.StatusWarning:
			stats.Warning++
		case model.StatusOverdue:
			stats.Overdue++
		}
		sum += m.PlanPrice
	}

	stats.Total = len(members)
	if stats.Total > 0 {
		stats.AvgPlanPrice = sum / float64(stats.Total)
	}

	return stats
}

// GoalAttainment возвращает выручку месяца в процентах от цели; 0 при неположительной цели.
func GoalAttainment(current, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return current / target * 100
}

func share(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

// ComputeStats рассчитывает сводные показатели на момент now.
func ComputeStats(members []model.Member, payments []model.Payment, target float64, now time.Time) model.Stats {
	growth := Growth(payments, now)
	pop := Population(members, now)

	return model.Stats{
		Revenue:                 growth,
		Population:              pop,
		RetentionRate:           share(pop.Active, pop.Total),
		ChurnRate:               share(pop.Overdue, pop.Total),
		EstimatedMonthlyRevenue: float64(pop.Active) * pop.AvgPlanPrice,
		Target:                  target,
		GoalAttainment:          GoalAttainment(growth.Current, target),
	}
}
