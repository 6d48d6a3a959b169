package permissions

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"switchyard/internal/logger"
	"switchyard/pkg/logging"
	"switchyard/pkg/metrics"
	"switchyard/pkg/tracing"
)

type Gate struct {
	authority Authority
	timeout   time.Duration
	logger    logger.Logger
}

// NewGate bounds every Authorize call by timeout when it is positive.
func NewGate(authority Authority, timeout time.Duration, log logger.Logger) *Gate {
	return &Gate{
		authority: authority,
		timeout:   timeout,
		logger:    log,
	}
}

// Authorize reports whether actorID holds every permission in required.
// A missing actor, an authority error or a timeout denies.
func (g *Gate) Authorize(ctx context.Context, actorID string, required []Permission) bool {
	ctx, span := tracing.StartSpan(ctx, "permission-gate", "permissions.authorize",
		attribute.Int("permissions.required", len(required)),
	)
	defer span.End()

	decide := func(allowed bool, reason string) bool {
		result := "deny"
		if allowed {
			result = "allow"
		}
		span.SetAttributes(
			attribute.String("permissions.result", result),
			attribute.String("permissions.reason", reason),
		)
		metrics.IncPermissionDecision(result, reason)
		return allowed
	}

	if actorID == "" {
		return decide(false, "no_actor")
	}
	ctx = logging.WithActorID(ctx, actorID)
	ctx = WithGrantsMemo(ctx)

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	for _, p := range required {
		granted, err := g.authority.HasPermission(ctx, actorID, p.String())
		if err != nil {
			g.logger.WarnwCtx(ctx, "Permission check failed, denying",
				"permission", p.String(),
				"error", err,
			)
			if ctx.Err() != nil {
				return decide(false, "timeout")
			}
			return decide(false, "authority_error")
		}
		if !granted {
			g.logger.DebugwCtx(ctx, "Actor lacks permission",
				"permission", p.String(),
			)
			return decide(false, "missing_permission")
		}
	}

	return decide(true, "granted")
}
