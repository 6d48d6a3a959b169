package permissions

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "switchyard/pkg/errors"
	"switchyard/pkg/logging"
)

const actorContextKey = "actor_id"

// RequirePermissions guards a route with the permissions h declares for
// action. An undeclared action is denied.
func RequirePermissions(gate *Gate, h Declarer, action, actorHeader string) gin.HandlerFunc {
	required, declared := h.HasRequiredPermissions()[action]

	return func(c *gin.Context) {
		actorID := c.GetHeader(actorHeader)
		if actorID == "" {
			abort(c, apperrors.ErrUnauthorized.WithDetail("message", "missing actor"))
			return
		}

		ctx := logging.WithActorID(c.Request.Context(), actorID)
		c.Request = c.Request.WithContext(ctx)
		c.Set(actorContextKey, actorID)

		if !declared || !gate.Authorize(ctx, actorID, required) {
			abort(c, apperrors.ErrForbidden.WithDetail("message", "You do not have permission to perform this action"))
			return
		}

		c.Next()
	}
}

// ActorID returns the actor authenticated by RequirePermissions.
func ActorID(c *gin.Context) string {
	return c.GetString(actorContextKey)
}

func abort(c *gin.Context, err *apperrors.Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusForbidden
	}
	c.AbortWithStatusJSON(status, apperrors.ToErrorResponse(err))
}
