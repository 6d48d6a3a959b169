// Package middleware holds the gin middleware shared by the HTTP services.
package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"switchyard/internal/logger"
	apperrors "switchyard/pkg/errors"
	"switchyard/pkg/logging"
)

const RequestIDHeader = "X-Request-ID"

// LoggerMiddleware logs one line per request. Health checks and metrics scrapes
// are logged at debug level.
func LoggerMiddleware(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}

		status := c.Writer.Status()
		fields := []interface{}{
			"status", status,
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
			"method", c.Request.Method,
			"path", path,
		}
		if errorMessage := c.Errors.ByType(gin.ErrorTypePrivate).String(); errorMessage != "" {
			fields = append(fields, "error", errorMessage)
		}

		ctx := c.Request.Context()
		switch {
		case status >= http.StatusInternalServerError:
			log.ErrorwCtx(ctx, "HTTP Request", fields...)
		case c.FullPath() == "/health" || c.FullPath() == "/metrics":
			log.DebugwCtx(ctx, "HTTP Request", fields...)
		default:
			log.InfowCtx(ctx, "HTTP Request", fields...)
		}
	}
}

func RecoveryMiddleware(log logger.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		err := apperrors.RecoverPanic(recovered)

		fields := []interface{}{
			"error", err,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
		}
		var panicErr *apperrors.PanicError
		if errors.As(err, &panicErr) {
			fields = append(fields, "stack", string(panicErr.Stack))
		}
		log.ErrorwCtx(c.Request.Context(), "Panic recovered", fields...)

		c.AbortWithStatusJSON(http.StatusInternalServerError, apperrors.ToErrorResponse(err))
	})
}

// RequestIDMiddleware echoes or assigns X-Request-ID and carries it as the
// trace id of request logs.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)

		ctx := c.Request.Context()
		if logging.GetTraceID(ctx) == "" {
			c.Request = c.Request.WithContext(logging.WithTraceID(ctx, requestID))
		}
		c.Next()
	}
}
