//go:build integration

package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mmeshcher/gymmaster/internal/billing"
	"github.com/mmeshcher/gymmaster/internal/model"
)

func setupRepository(t *testing.T) *PostgresRepository {
	t.Helper()

	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("gymmaster_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "failed to start PostgreSQL container")

	t.Cleanup(func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	repo, err := NewPostgresRepository(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	return repo
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newMember(name string, due time.Time) model.Member {
	return model.Member{
		Name:       name,
		Phone:      "923000000",
		EnrolledAt: day(2024, time.January, 1),
		DueDate:    due,
		Plan:       model.PlanMonthly,
		PlanPrice:  10000,
		Status:     model.StatusActive,
	}
}

func TestPostgresRepository_Integration(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	t.Run("configured target seeds a fresh store", func(t *testing.T) {
		_, ok, err := repo.GetConfig(ctx, "monthly_revenue_target")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, repo.EnsureConfig(ctx, "monthly_revenue_target", "300000"))
		v, ok, err := repo.GetConfig(ctx, "monthly_revenue_target")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "300000", v)

		require.NoError(t, repo.EnsureConfig(ctx, "monthly_revenue_target", "1"))
		v, _, err = repo.GetConfig(ctx, "monthly_revenue_target")
		require.NoError(t, err)
		assert.Equal(t, "300000", v)

		require.NoError(t, repo.SetConfig(ctx, "monthly_revenue_target", "750000"))
		v, _, err = repo.GetConfig(ctx, "monthly_revenue_target")
		require.NoError(t, err)
		assert.Equal(t, "750000", v)

		_, ok, err = repo.GetConfig(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("record payment advances due date atomically", func(t *testing.T) {
		m, err := repo.CreateMember(ctx, newMember("Ana", day(2024, time.January, 10)))
		require.NoError(t, err)
		require.NotZero(t, m.ID)

		now := day(2024, time.January, 5)
		p, err := repo.RecordPayment(ctx, m.ID, func(locked model.Member) (model.Payment, time.Time, error) {
			return billing.ApplyPayment(locked, billing.PaymentInput{Amount: 10000.5, ReferencePeriod: "2024-01"}, now)
		})
		require.NoError(t, err)
		assert.NotZero(t, p.ID)

		got, err := repo.GetMember(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, day(2024, time.February, 9), got.DueDate)

		payments, err := repo.ListPayments(ctx, &m.ID)
		require.NoError(t, err)
		require.Len(t, payments, 1)
		assert.Equal(t, 10000.5, payments[0].Amount)
		assert.Equal(t, "2024-01", payments[0].ReferencePeriod)
	})

	t.Run("failed apply leaves nothing behind", func(t *testing.T) {
		m, err := repo.CreateMember(ctx, newMember("Bruno", day(2024, time.January, 10)))
		require.NoError(t, err)

		_, err = repo.RecordPayment(ctx, m.ID, func(locked model.Member) (model.Payment, time.Time, error) {
			return billing.ApplyPayment(locked, billing.PaymentInput{Amount: 0}, day(2024, time.January, 5))
		})
		assert.ErrorIs(t, err, billing.ErrInvalidAmount)

		got, err := repo.GetMember(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, day(2024, time.January, 10), got.DueDate)

		payments, err := repo.ListPayments(ctx, &m.ID)
		require.NoError(t, err)
		assert.Empty(t, payments)
	})

	t.Run("unknown member", func(t *testing.T) {
		_, err := repo.RecordPayment(ctx, 999999, func(model.Member) (model.Payment, time.Time, error) {
			return model.Payment{}, time.Time{}, errors.New("must not be called")
		})
		assert.ErrorIs(t, err, ErrMemberNotFound)

		_, err = repo.GetMember(ctx, 999999)
		assert.ErrorIs(t, err, ErrMemberNotFound)

		assert.ErrorIs(t, repo.DeleteMember(ctx, 999999), ErrMemberNotFound)
	})

	t.Run("update keeps due date and enrollment", func(t *testing.T) {
		m, err := repo.CreateMember(ctx, newMember("Carla", day(2024, time.March, 1)))
		require.NoError(t, err)

		m.Name = "Carla Souza"
		m.Plan = model.PlanAnnual
		m.DueDate = day(2030, time.January, 1)
		m.EnrolledAt = day(2030, time.January, 1)

		updated, err := repo.UpdateMember(ctx, m)
		require.NoError(t, err)
		assert.Equal(t, "Carla Souza", updated.Name)
		assert.Equal(t, model.PlanAnnual, updated.Plan)
		assert.Equal(t, day(2024, time.March, 1), updated.DueDate)
		assert.Equal(t, day(2024, time.January, 1), updated.EnrolledAt)
	})

	t.Run("delete cascades payments", func(t *testing.T) {
		m, err := repo.CreateMember(ctx, newMember("Diogo", day(2024, time.January, 10)))
		require.NoError(t, err)

		_, err = repo.RecordPayment(ctx, m.ID, func(locked model.Member) (model.Payment, time.Time, error) {
			return billing.ApplyPayment(locked, billing.PaymentInput{Amount: 100}, day(2024, time.January, 5))
		})
		require.NoError(t, err)

		require.NoError(t, repo.DeleteMember(ctx, m.ID))

		payments, err := repo.ListPayments(ctx, &m.ID)
		require.NoError(t, err)
		assert.Empty(t, payments)
	})

	t.Run("update statuses", func(t *testing.T) {
		m, err := repo.CreateMember(ctx, newMember("Eva", day(2024, time.January, 10)))
		require.NoError(t, err)

		require.NoError(t, repo.UpdateStatuses(ctx, map[int64]model.Status{m.ID: model.StatusOverdue}))

		got, err := repo.GetMember(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusOverdue, got.Status)
	})
}
