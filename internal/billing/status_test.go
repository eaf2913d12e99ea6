package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"github.com/mmeshcher/gymmaster/internal/model"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func drawDate(t *rapid.T, label string) time.Time {
	offset := rapid.IntRange(-20000, 20000).Draw(t, label)
	return day(2000, time.January, 1).AddDate(0, 0, offset)
}

func TestClassify(t *testing.T) {
	now := day(2024, time.May, 15)

	tests := []struct {
		name string
		due  time.Time
		want model.Status
	}{
		{name: "due today", due: now, want: model.StatusWarning},
		{name: "yesterday", due: now.AddDate(0, 0, -1), want: model.StatusOverdue},
		{name: "long overdue", due: now.AddDate(-1, 0, 0), want: model.StatusOverdue},
		{name: "tomorrow", due: now.AddDate(0, 0, 1), want: model.StatusWarning},
		{name: "edge of warning window", due: now.AddDate(0, 0, 7), want: model.StatusWarning},
		{name: "just past warning window", due: now.AddDate(0, 0, 8), want: model.StatusActive},
		{name: "time of day ignored", due: now.Add(23 * time.Hour), want: model.StatusWarning},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.due, now.Add(18*time.Hour)))
		})
	}
}

func TestClassify_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		d := drawDate(t, "date")

		assert.Equal(t, model.StatusWarning, Classify(d, d))
		assert.Equal(t, model.StatusOverdue, Classify(d.AddDate(0, 0, -1), d))
		assert.Equal(t, model.StatusWarning, Classify(d.AddDate(0, 0, 7), d))
		assert.Equal(t, model.StatusActive, Classify(d.AddDate(0, 0, 8), d))
	})
}

func TestClassify_Deterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		due := drawDate(t, "due")
		now := drawDate(t, "now")

		assert.Equal(t, Classify(due, now), Classify(due, now))
	})
}

func TestClassify_IgnoresLocation(t *testing.T) {
	loc := time.FixedZone("WAT", 3600)
	due := time.Date(2024, time.May, 15, 23, 30, 0, 0, loc)
	now := time.Date(2024, time.May, 16, 0, 15, 0, 0, loc)

	assert.Equal(t, model.StatusOverdue, Classify(due, now))
	assert.Equal(t, -1, DaysUntil(due, now))
}

func TestDaysUntil_FarDates(t *testing.T) {
	tests := []struct {
		name string
		due  time.Time
		now  time.Time
		want int
	}{
		{name: "four centuries ahead", due: day(2400, time.January, 1), now: day(2000, time.January, 1), want: 146097},
		{name: "four centuries overdue", due: day(1600, time.January, 1), now: day(2000, time.January, 1), want: -146097},
		{name: "year one", due: day(1, time.January, 1), now: day(1, time.January, 31), want: -30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DaysUntil(tt.due, tt.now))
		})
	}
}

func TestWithStatus_RecomputesStoredValue(t *testing.T) {
	now := day(2024, time.May, 15)
	m := model.Member{DueDate: now.AddDate(0, 0, -3), Status: model.StatusActive}

	got := WithStatus(m, now)

	assert.Equal(t, model.StatusOverdue, got.Status)
	assert.Equal(t, model.StatusActive, m.Status)
}
