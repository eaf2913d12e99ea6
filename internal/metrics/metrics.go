// Package metrics публикует показатели сервиса в формате Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mmeshcher/gymmaster/internal/model"
)

// Metrics содержит зарегистрированные метрики сервиса. Методы допускают nil-получатель.
type Metrics struct {
	registry *prometheus.Registry

	paymentsRecorded  prometheus.Counter
	paymentsAmount    prometheus.Counter
	members           *prometheus.GaugeVec
	revenueMonth      prometheus.Gauge
	goalAttainment    prometheus.Gauge
	statusCorrections prometheus.Counter
}

// New создаёт метрики в собственном реестре.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		paymentsRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gymmaster_payments_recorded_total",
			Help: "Total number of recorded payments",
		}),
		paymentsAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gymmaster_payments_amount_total",
			Help: "Sum of recorded payment amounts",
		}),
		members: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gymmaster_members",
			Help: "Number of members by billing status",
		}, []string{"status"}),
		revenueMonth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gymmaster_revenue_current_month",
			Help: "Revenue of the current calendar month",
		}),
		goalAttainment: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gymmaster_goal_attainment_percent",
			Help: "Current month revenue as a percentage of the monthly target",
		}),
		statusCorrections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gymmaster_status_corrections_total",
			Help: "Stored member statuses rewritten by reconciliation",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.paymentsRecorded,
		m.paymentsAmount,
		m.members,
		m.revenueMonth,
		m.goalAttainment,
		m.statusCorrections,
	)

	return m
}

// Handler возвращает HTTP-обработчик для выдачи метрик.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObservePayment учитывает зафиксированный платёж.
func (m *Metrics) ObservePayment(p model.Payment) {
	if m == nil {
		return
	}
	m.paymentsRecorded.Inc()
	m.paymentsAmount.Add(p.Amount)
}

// ObserveStats обновляет показатели из рассчитанной сводки.
func (m *Metrics) ObserveStats(s model.Stats) {
	if m == nil {
		return
	}
	m.members.WithLabelValues(string(model.StatusActive)).Set(float64(s.Population.Active))
	m.members.WithLabelValues(string(model.StatusWarning)).Set(float64(s.Population.Warning))
	m.members.WithLabelValues(string(model.StatusOverdue)).Set(float64(s.Population.Overdue))
	m.revenueMonth.Set(s.Revenue.Current)
	m.goalAttainment.Set(s.GoalAttainment)
}

// ObserveStatusCorrections учитывает исправленные при сверке статусы.
func (m *Metrics) ObserveStatusCorrections(n int) {
	if m == nil {
		return
	}
	m.statusCorrections.Add(float64(n))
}
