// Package model содержит доменные сущности сервиса учёта абонементов спортзала.
package model

import "time"

// Plan описывает тарифный план абонемента.
type Plan string

const (
	PlanMonthly    Plan = "Monthly"
	PlanQuarterly  Plan = "Quarterly"
	PlanSemiannual Plan = "Semiannual"
	PlanAnnual     Plan = "Annual"
)

// Status описывает производный статус участника относительно даты оплаты.
type Status string

const (
	StatusActive  Status = "active"
	StatusWarning Status = "warning"
	StatusOverdue Status = "overdue"
)

// Member представляет участника спортзала с оплачиваемым абонементом.
//
// Status никогда не читается из хранилища как источник истины:
// он пересчитывается из DueDate при каждом чтении.
type Member struct {
	ID         int64
	Name       string
	Phone      string
	Email      string
	BirthDate  *time.Time
	EnrolledAt time.Time
	DueDate    time.Time
	Plan       Plan
	PlanPrice  float64
	Notes      string
	Status     Status
}

// Payment описывает зафиксированный платёж участника.
type Payment struct {
	ID              int64
	MemberID        int64
	PaidAt          time.Time
	Amount          float64
	ReferencePeriod string
	Method          string
	Notes           string
}

// MonthlyRevenuePoint содержит выручку и количество платежей за календарный месяц.
type MonthlyRevenuePoint struct {
	Month time.Time `json:"-"`
	Label string    `json:"month"`
	Total float64   `json:"total"`
	Count int       `json:"count"`
}

// PopulationStats содержит распределение участников по статусам.
type PopulationStats struct {
	Total        int     `json:"total"`
	Active       int     `json:"active"`
	Warning      int     `json:"warning"`
	Overdue      int     `json:"overdue"`
	AvgPlanPrice float64 `json:"avg_plan_price"`
}

// GrowthMetric сравнивает выручку текущего и предыдущего месяцев.
type GrowthMetric struct {
	Current       float64 `json:"current_month_total"`
	Previous      float64 `json:"previous_month_total"`
	PercentChange float64 `json:"percent_change"`
}

// Stats объединяет финансовые показатели на момент расчёта.
type Stats struct {
	Revenue                 GrowthMetric    `json:"revenue"`
	Population              PopulationStats `json:"population"`
	RetentionRate           float64         `json:"retention_rate"`
	ChurnRate               float64         `json:"churn_rate"`
	EstimatedMonthlyRevenue float64         `json:"estimated_monthly_revenue"`
	Target                  float64         `json:"target"`
	GoalAttainment          float64         `json:"goal_attainment"`
}

// NotificationKind описывает тип оповещения.
type NotificationKind string

const (
	NotificationOverdue      NotificationKind = "overdue"
	NotificationDueToday     NotificationKind = "due_today"
	NotificationDueSoon      NotificationKind = "due_soon"
	NotificationGoalReached  NotificationKind = "goal_reached"
	NotificationGoalProgress NotificationKind = "goal_progress"
)

// Notification описывает одно оповещение для оператора.
type Notification struct {
	Kind       NotificationKind `json:"kind"`
	MemberID   int64            `json:"member_id,omitempty"`
	MemberName string           `json:"member_name,omitempty"`
	DueDate    *time.Time       `json:"due_date,omitempty"`
	DaysUntil  int              `json:"days_until"`
	Message    string           `json:"message"`
}
