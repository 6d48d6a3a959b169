package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		RegisterRoutingMetrics()
		RegisterRoutingMetrics()
		RegisterPermissionMetrics()
		RegisterPermissionMetrics()
		RegisterBrokerMetrics()
		RegisterCircuitBreakerMetrics()
		RegisterManagementMetrics()
		RegisterManagementMetrics()
	})
}

func TestHelpersUpdateCollectors(t *testing.T) {
	before := testutil.ToFloat64(RoutingDecisionsTotal.WithLabelValues("default"))
	ObserveRouting(3*time.Millisecond, "default")
	assert.Equal(t, before+1, testutil.ToFloat64(RoutingDecisionsTotal.WithLabelValues("default")))

	before = testutil.ToFloat64(PermissionDecisionsTotal.WithLabelValues("deny", "authority_error"))
	IncPermissionDecision("deny", "authority_error")
	assert.Equal(t, before+1, testutil.ToFloat64(PermissionDecisionsTotal.WithLabelValues("deny", "authority_error")))

	SetRoutingCachedIntegrations(4)
	assert.Equal(t, 4.0, testutil.ToFloat64(RoutingCachedIntegrations))
}
