package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	RoutingDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routing_decisions_total",
			Help: "Total number of alerts routed (count)",
		},
		[]string{"result"},
	)

	RoutingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "routing_duration_ms",
			Help:    "Time to select a channel filter for an alert in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"result"},
	)

	FilterEvaluationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routing_filter_evaluations_total",
			Help: "Total number of channel filter evaluations (count)",
		},
		[]string{"term_type", "result"},
	)

	MatcherErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routing_matcher_errors_total",
			Help: "Total number of recoverable matcher errors (count)",
		},
		[]string{"term_type", "kind"},
	)

	TemplateRenderDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "template_render_duration_ms",
			Help:    "Template render duration in milliseconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500},
		},
	)

	RoutingCachedIntegrations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "routing_cached_integrations",
			Help: "Number of integrations with a compiled filter snapshot (count)",
		},
	)

	PermissionDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permission_decisions_total",
			Help: "Total number of permission gate decisions (count)",
		},
		[]string{"result", "reason"},
	)

	AuthorityRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authority_requests_total",
			Help: "Total number of permission lookups sent to the authority (count)",
		},
		[]string{"authority", "status"},
	)

	AuthorityRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "authority_request_duration_ms",
			Help:    "Duration of authority permission lookups in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		},
		[]string{"authority"},
	)

	PermissionCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permission_cache_total",
			Help: "Permission cache lookups by outcome (count)",
		},
		[]string{"backend", "result"},
	)

	StoreMutationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filterstore_mutations_total",
			Help: "Total number of channel filter store mutations (count)",
		},
		[]string{"operation", "status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)

	KafkaMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_read_total",
			Help: "Total number of messages read from Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kafka_messages_written_total",
			Help: "Total number of messages written to Kafka (count)",
		},
		[]string{"service", "topic"},
	)

	KafkaMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_message_size_bytes",
			Help:    "Size of Kafka messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"service", "topic", "direction"},
	)

	KafkaConsumerLag = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "kafka_consumer_lag",
			Help: "Kafka consumer lag (difference between latest offset and committed offset) (count)",
		},
		[]string{"service", "topic", "partition"},
	)

	KafkaWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kafka_write_duration_ms",
			Help:    "Duration of writing messages to Kafka in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"service", "topic"},
	)
)

var (
	routingOnce        sync.Once
	permissionOnce     sync.Once
	brokerOnce         sync.Once
	circuitBreakerOnce sync.Once
	managementOnce     sync.Once
)

func RegisterRoutingMetrics() {
	routingOnce.Do(func() {
		prometheus.MustRegister(RoutingDecisionsTotal)
		prometheus.MustRegister(RoutingDuration)
		prometheus.MustRegister(FilterEvaluationsTotal)
		prometheus.MustRegister(MatcherErrorsTotal)
		prometheus.MustRegister(TemplateRenderDuration)
		prometheus.MustRegister(RoutingCachedIntegrations)
	})
}

func RegisterPermissionMetrics() {
	permissionOnce.Do(func() {
		prometheus.MustRegister(PermissionDecisionsTotal)
		prometheus.MustRegister(AuthorityRequestsTotal)
		prometheus.MustRegister(AuthorityRequestDuration)
		prometheus.MustRegister(PermissionCacheTotal)
	})
}

func RegisterBrokerMetrics() {
	brokerOnce.Do(func() {
		prometheus.MustRegister(RetryAttemptsTotal)
		prometheus.MustRegister(DLQMessagesTotal)
		prometheus.MustRegister(KafkaMessagesReadTotal)
		prometheus.MustRegister(KafkaMessagesWrittenTotal)
		prometheus.MustRegister(KafkaMessageSizeBytes)
		prometheus.MustRegister(KafkaConsumerLag)
		prometheus.MustRegister(KafkaWriteDuration)
	})
}

func RegisterCircuitBreakerMetrics() {
	circuitBreakerOnce.Do(func() {
		prometheus.MustRegister(CircuitBreakerState)
		prometheus.MustRegister(CircuitBreakerRequests)
		prometheus.MustRegister(CircuitBreakerFailures)
	})
}

func RegisterManagementMetrics() {
	managementOnce.Do(func() {
		prometheus.MustRegister(RateLimitRequestsTotal)
		prometheus.MustRegister(StoreMutationsTotal)
	})
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func ObserveRouting(duration time.Duration, result string) {
	RoutingDecisionsTotal.WithLabelValues(result).Inc()
	RoutingDuration.WithLabelValues(result).Observe(millis(duration))
}

func IncFilterEvaluation(termType, result string) {
	FilterEvaluationsTotal.WithLabelValues(termType, result).Inc()
}

func IncMatcherError(termType, kind string) {
	MatcherErrorsTotal.WithLabelValues(termType, kind).Inc()
}

func ObserveTemplateRender(duration time.Duration) {
	TemplateRenderDuration.Observe(millis(duration))
}

func SetRoutingCachedIntegrations(count int) {
	RoutingCachedIntegrations.Set(float64(count))
}

func IncPermissionDecision(result, reason string) {
	PermissionDecisionsTotal.WithLabelValues(result, reason).Inc()
}

func ObserveAuthorityRequest(authority, status string, duration time.Duration) {
	AuthorityRequestsTotal.WithLabelValues(authority, status).Inc()
	AuthorityRequestDuration.WithLabelValues(authority).Observe(millis(duration))
}

func IncPermissionCache(backend, result string) {
	PermissionCacheTotal.WithLabelValues(backend, result).Inc()
}

func IncStoreMutation(operation, status string) {
	StoreMutationsTotal.WithLabelValues(operation, status).Inc()
}

func IncKafkaMessagesRead(service, topic string) {
	KafkaMessagesReadTotal.WithLabelValues(service, topic).Inc()
}

func IncKafkaMessagesWritten(service, topic string) {
	KafkaMessagesWrittenTotal.WithLabelValues(service, topic).Inc()
}

func ObserveKafkaMessageSize(service, topic, direction string, sizeBytes int) {
	KafkaMessageSizeBytes.WithLabelValues(service, topic, direction).Observe(float64(sizeBytes))
}

func SetKafkaConsumerLag(service, topic string, partition int, lag int64) {
	KafkaConsumerLag.WithLabelValues(service, topic, fmt.Sprintf("%d", partition)).Set(float64(lag))
}

func ObserveKafkaWriteDuration(service, topic string, duration time.Duration) {
	KafkaWriteDuration.WithLabelValues(service, topic).Observe(millis(duration))
}
