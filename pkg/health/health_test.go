package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ok(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("down") }

func TestCheck(t *testing.T) {
	tests := []struct {
		name     string
		register func(r *CheckerRegistry)
		want     Status
	}{
		{
			name:     "no checks",
			register: func(*CheckerRegistry) {},
			want:     StatusHealthy,
		},
		{
			name: "all healthy",
			register: func(r *CheckerRegistry) {
				r.Register(NewCheckFunc("store", ok))
				r.RegisterOptional(NewCheckFunc("kafka", ok))
			},
			want: StatusHealthy,
		},
		{
			name: "optional failure degrades",
			register: func(r *CheckerRegistry) {
				r.Register(NewCheckFunc("store", ok))
				r.RegisterOptional(NewCheckFunc("kafka", failing))
			},
			want: StatusDegraded,
		},
		{
			name: "critical failure",
			register: func(r *CheckerRegistry) {
				r.Register(NewCheckFunc("store", failing))
				r.RegisterOptional(NewCheckFunc("kafka", failing))
			},
			want: StatusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewCheckerRegistry("routing-service")
			tt.register(r)
			h := r.Check(context.Background())
			assert.Equal(t, tt.want, h.Status)
			assert.Equal(t, "routing-service", h.Service)
		})
	}
}

func TestCheckRecordsMessages(t *testing.T) {
	r := NewCheckerRegistry("svc")
	r.Register(NewCheckFunc("store", failing))

	h := r.Check(context.Background())
	require.Contains(t, h.Checks, "store")
	assert.Equal(t, StatusUnhealthy, h.Checks["store"].Status)
	assert.Equal(t, "down", h.Checks["store"].Message)
}

func TestHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	serve := func(r *CheckerRegistry) *httptest.ResponseRecorder {
		router := gin.New()
		router.GET("/health", r.Handler())
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		return w
	}

	healthy := NewCheckerRegistry("svc")
	healthy.RegisterOptional(NewCheckFunc("kafka", failing))
	w := serve(healthy)
	assert.Equal(t, http.StatusOK, w.Code)
	var body Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, StatusDegraded, body.Status)

	broken := NewCheckerRegistry("svc")
	broken.Register(NewCheckFunc("store", failing))
	assert.Equal(t, http.StatusServiceUnavailable, serve(broken).Code)
}

func TestKafkaCheckerWithoutBrokers(t *testing.T) {
	err := NewKafkaChecker(nil).Check(context.Background())
	assert.Error(t, err)
}
