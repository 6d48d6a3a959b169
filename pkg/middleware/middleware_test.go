package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"switchyard/internal/logger"
	"switchyard/pkg/logging"
)

func newRouter(log logger.Logger) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestIDMiddleware(), LoggerMiddleware(log), RecoveryMiddleware(log))
	r.GET("/ok", func(c *gin.Context) {
		c.String(http.StatusOK, logging.GetTraceID(c.Request.Context()))
	})
	r.GET("/boom", func(c *gin.Context) { panic("boom") })
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestRequestID(t *testing.T) {
	r := newRouter(logger.NopLogger())

	req := httptest.NewRequest(http.MethodGet, "/ok", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	id := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/ok", nil)
	req.Header.Set(RequestIDHeader, "req-42")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-42", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "req-42", w.Body.String())
}

func TestLoggerAndRecovery(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	r := newRouter(logger.FromZap(zap.New(core)))

	for _, path := range []string{"/ok?x=1", "/boom", "/health"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	requests := logs.FilterMessage("HTTP Request").All()
	require.Len(t, requests, 3)
	assert.Equal(t, zapcore.InfoLevel, requests[0].Level)
	assert.Equal(t, "/ok?x=1", requests[0].ContextMap()["path"])
	assert.Equal(t, zapcore.ErrorLevel, requests[1].Level)
	assert.Equal(t, int64(http.StatusInternalServerError), requests[1].ContextMap()["status"])
	assert.Equal(t, zapcore.DebugLevel, requests[2].Level)

	panics := logs.FilterMessage("Panic recovered").All()
	require.Len(t, panics, 1)
	assert.Contains(t, panics[0].ContextMap()["stack"], "runtime/debug.Stack")
}

func TestRecoveryRendersInternalError(t *testing.T) {
	r := newRouter(logger.NopLogger())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal server error","error_code":"INTERNAL_ERROR"}`, w.Body.String())
}
