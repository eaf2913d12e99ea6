package scheduler

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/gymmaster/internal/model"
	"github.com/mmeshcher/gymmaster/internal/webhook"
)

type stubService struct {
	reconciled    int
	reconcileErr  error
	reconcileNow  time.Time
	notifications []model.Notification
	notifyErr     error
}

func (s *stubService) ReconcileStatuses(ctx context.Context, now time.Time) (int, error) {
	s.reconcileNow = now
	return s.reconciled, s.reconcileErr
}

func (s *stubService) Notifications(ctx context.Context, now time.Time) ([]model.Notification, error) {
	return s.notifications, s.notifyErr
}

type sendResult struct {
	status     int
	retryAfter time.Duration
	err        error
}

type stubNotifier struct {
	results []sendResult
	sent    []webhook.Payload
}

func (n *stubNotifier) Send(ctx context.Context, p webhook.Payload) (int, time.Duration, error) {
	n.sent = append(n.sent, p)
	r := n.results[len(n.sent)-1]
	return r.status, r.retryAfter, r.err
}

var fixedNow = time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)

func newTestScheduler(svc Service, notifier Notifier) *Scheduler {
	s := New(svc, notifier, nil)
	s.now = func() time.Time { return fixedNow }
	return s
}

func dueToday() []model.Notification {
	return []model.Notification{
		{Kind: model.NotificationDueToday, MemberID: 1, MemberName: "Ana", Message: "⚠️ Ana - due today!"},
	}
}

func TestRegister(t *testing.T) {
	t.Run("both jobs", func(t *testing.T) {
		s := newTestScheduler(&stubService{}, &stubNotifier{})
		require.NoError(t, s.Register("0 * * * *", "0 8 * * *"))
		assert.Len(t, s.cron.Entries(), 2)
	})

	t.Run("without notifier", func(t *testing.T) {
		s := newTestScheduler(&stubService{}, nil)
		require.NoError(t, s.Register("@every 1h", "not a schedule"))
		assert.Len(t, s.cron.Entries(), 1)
	})

	t.Run("invalid schedule", func(t *testing.T) {
		s := newTestScheduler(&stubService{}, &stubNotifier{})
		assert.Error(t, s.Register("every hour", "0 8 * * *"))
	})
}

func TestReconcile(t *testing.T) {
	svc := &stubService{reconciled: 3}
	s := newTestScheduler(svc, nil)

	require.NoError(t, s.Reconcile(context.Background()))
	assert.True(t, svc.reconcileNow.Equal(fixedNow))

	svc.reconcileErr = errors.New("db down")
	assert.Error(t, s.Reconcile(context.Background()))
}

func TestNotify(t *testing.T) {
	tests := []struct {
		name      string
		svc       *stubService
		results   []sendResult
		wantSent  int
		wantError bool
	}{
		{
			name:     "nothing to send",
			svc:      &stubService{},
			wantSent: 0,
		},
		{
			name:     "delivered",
			svc:      &stubService{notifications: dueToday()},
			results:  []sendResult{{status: http.StatusOK}},
			wantSent: 1,
		},
		{
			name: "retried after rate limit",
			svc:  &stubService{notifications: dueToday()},
			results: []sendResult{
				{status: http.StatusTooManyRequests, retryAfter: time.Millisecond},
				{status: http.StatusOK},
			},
			wantSent: 2,
		},
		{
			name: "still rate limited",
			svc:  &stubService{notifications: dueToday()},
			results: []sendResult{
				{status: http.StatusTooManyRequests},
				{status: http.StatusTooManyRequests},
			},
			wantSent:  2,
			wantError: true,
		},
		{
			name:      "delivery error",
			svc:       &stubService{notifications: dueToday()},
			results:   []sendResult{{status: http.StatusBadGateway, err: errors.New("unexpected status: 502")}},
			wantSent:  1,
			wantError: true,
		},
		{
			name:      "service error",
			svc:       &stubService{notifyErr: errors.New("db down")},
			wantSent:  0,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			notifier := &stubNotifier{results: tt.results}
			s := newTestScheduler(tt.svc, notifier)

			err := s.Notify(context.Background())
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			require.Len(t, notifier.sent, tt.wantSent)

			if tt.wantSent > 0 {
				assert.Equal(t, []string{"⚠️ Ana - due today!"}, notifier.sent[0].Messages)
				assert.True(t, notifier.sent[0].GeneratedAt.Equal(fixedNow))
			}
		})
	}
}

func TestNotify_CancelledWhileWaiting(t *testing.T) {
	notifier := &stubNotifier{results: []sendResult{{status: http.StatusTooManyRequests, retryAfter: time.Hour}}}
	s := newTestScheduler(&stubService{notifications: dueToday()}, notifier)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Notify(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, notifier.sent, 1)
}

func TestNotify_WithoutNotifier(t *testing.T) {
	s := newTestScheduler(&stubService{notifications: dueToday()}, nil)
	assert.NoError(t, s.Notify(context.Background()))
}

func TestStartStop(t *testing.T) {
	s := newTestScheduler(&stubService{}, nil)
	require.NoError(t, s.Register("@every 1h", ""))

	s.Start(context.Background())
	ctx := s.Stop()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
