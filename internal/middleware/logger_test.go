package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogger(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "implicit ok", status: 0, body: "hello"},
		{name: "created", status: http.StatusCreated, body: `{"id":1}`},
		{name: "not found", status: http.StatusNotFound, body: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.InfoLevel)
			logger := zap.New(core)

			h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.status != 0 {
					w.WriteHeader(tt.status)
				}
				_, _ = w.Write([]byte(tt.body))
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/stats?at=2024-05-01", nil)
			h.ServeHTTP(httptest.NewRecorder(), req)

			entries := logs.FilterMessage("request").All()
			require.Len(t, entries, 1)

			fields := entries[0].ContextMap()
			wantStatus := tt.status
			if wantStatus == 0 {
				wantStatus = http.StatusOK
			}
			assert.Equal(t, "GET", fields["method"])
			assert.Equal(t, "/api/stats?at=2024-05-01", fields["uri"])
			assert.EqualValues(t, wantStatus, fields["status"])
			assert.EqualValues(t, len(tt.body), fields["size"])
		})
	}
}
