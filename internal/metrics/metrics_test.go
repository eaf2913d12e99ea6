package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/gymmaster/internal/model"
)

func TestObservePayment(t *testing.T) {
	m := New()

	m.ObservePayment(model.Payment{Amount: 10000})
	m.ObservePayment(model.Payment{Amount: 5000})

	assert.Equal(t, 2.0, testutil.ToFloat64(m.paymentsRecorded))
	assert.Equal(t, 15000.0, testutil.ToFloat64(m.paymentsAmount))
}

func TestObserveStats(t *testing.T) {
	m := New()

	m.ObserveStats(model.Stats{
		Revenue:        model.GrowthMetric{Current: 400000},
		Population:     model.PopulationStats{Total: 6, Active: 3, Warning: 2, Overdue: 1},
		GoalAttainment: 80,
	})

	assert.Equal(t, 3.0, testutil.ToFloat64(m.members.WithLabelValues("active")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.members.WithLabelValues("warning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.members.WithLabelValues("overdue")))
	assert.Equal(t, 400000.0, testutil.ToFloat64(m.revenueMonth))
	assert.Equal(t, 80.0, testutil.ToFloat64(m.goalAttainment))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.ObservePayment(model.Payment{Amount: 1})
		m.ObserveStats(model.Stats{})
		m.ObserveStatusCorrections(3)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveStatusCorrections(2)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "gymmaster_status_corrections_total 2"))
}
