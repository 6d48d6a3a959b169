package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "logging:\n  level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.ReadTimeout())
	assert.Equal(t, StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, BrokerNone, cfg.Broker.Type)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 60, cfg.Routing.Reload.IntervalSeconds)
	assert.Equal(t, "X-Actor-ID", cfg.Permissions.ActorHeader)
	assert.Equal(t, AuthorityStatic, cfg.Permissions.Authority.Type)
	assert.Equal(t, 2*time.Second, cfg.Permissions.Authority.Timeout)
	assert.Equal(t, 30*time.Second, cfg.Permissions.Cache.TTL)
}

func TestLoadReadsSections(t *testing.T) {
	body := `
server:
  port: 9090
storage:
  driver: Postgres
database:
  postgres:
    host: db
    port: 5432
    user: switchyard
    dbname: switchyard
    sslmode: disable
broker:
  type: kafka
  kafka:
    brokers: ["kafka:9092"]
    group_id: routing
routing:
  reload:
    jitter_max_milliseconds: 250
  template:
    step_budget: 5000
    render_timeout: 250ms
    max_output_bytes: 4096
permissions:
  authority:
    type: http
    url: https://grafana.local
    token: secret
circuit_breaker:
  enabled: true
  failure_ratio: 0.5
`
	cfg, err := Load(writeConfig(t, body))
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, StoragePostgres, cfg.Storage.Driver)
	assert.Equal(t, []string{"kafka:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, "alerts", cfg.Broker.Kafka.InputTopic)
	assert.Equal(t, 250, cfg.Routing.Reload.JitterMaxMilliseconds)
	assert.Equal(t, uint64(5000), cfg.Routing.Template.StepBudget)
	assert.Equal(t, 250*time.Millisecond, cfg.Routing.Template.RenderTimeout)
	assert.Equal(t, 4096, cfg.Routing.Template.MaxOutputBytes)
	assert.Equal(t, "https://grafana.local", cfg.Permissions.Authority.URL)
	assert.True(t, cfg.CircuitBreaker.Enabled)
}

func TestValidateStatic(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Server:  ServerConfig{Port: 8080, ReadTimeoutSeconds: 5, WriteTimeoutSeconds: 5},
			Storage: StorageConfig{Driver: StorageMemory},
			Broker:  BrokerConfig{Type: BrokerNone},
			Permissions: PermissionsConfig{
				ActorHeader: "X-Actor-ID",
				Authority:   AuthorityConfig{Type: AuthorityStatic},
				Cache:       CacheConfig{Backend: CacheBackendMemory},
			},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, field: "server.port"},
		{name: "unknown storage", mutate: func(c *Config) { c.Storage.Driver = "sqlite" }, field: "storage.driver"},
		{name: "postgres storage without host", mutate: func(c *Config) { c.Storage.Driver = StoragePostgres }, field: "database.postgres.host"},
		{name: "mongodb storage without uri", mutate: func(c *Config) { c.Storage.Driver = StorageMongoDB }, field: "database.mongodb.uri"},
		{name: "unknown broker", mutate: func(c *Config) { c.Broker.Type = "rabbitmq" }, field: "broker.type"},
		{name: "kafka without brokers", mutate: func(c *Config) { c.Broker.Type = BrokerKafka }, field: "broker.kafka.brokers"},
		{name: "negative jitter", mutate: func(c *Config) { c.Routing.Reload.JitterMaxMilliseconds = -1 }, field: "routing.reload.jitter_max_milliseconds"},
		{name: "http authority without url", mutate: func(c *Config) { c.Permissions.Authority.Type = AuthorityHTTP }, field: "permissions.authority.url"},
		{name: "http authority without timeout", mutate: func(c *Config) {
			c.Permissions.Authority = AuthorityConfig{Type: AuthorityHTTP, URL: "http://grafana"}
		}, field: "permissions.authority.timeout"},
		{name: "redis cache without redis", mutate: func(c *Config) { c.Permissions.Cache.Backend = CacheBackendRedis }, field: "database.redis.host"},
		{name: "missing actor header", mutate: func(c *Config) { c.Permissions.ActorHeader = "" }, field: "permissions.actor_header"},
		{name: "unknown log level", mutate: func(c *Config) { c.Logging.Level = "verbose" }, field: "logging.level"},
		{name: "rate limit without rps", mutate: func(c *Config) { c.Management.RateLimit.Enabled = true }, field: "management.rate_limit.rps"},
		{name: "tracing without endpoint", mutate: func(c *Config) { c.Tracing.Enabled = true }, field: "tracing.otlp.endpoint"},
		{name: "kafka loops output into input", mutate: func(c *Config) {
			c.Broker = BrokerConfig{Type: BrokerKafka, Kafka: KafkaConfig{
				Brokers: []string{"kafka:9092"}, GroupID: "routing", InputTopic: "alerts", OutputTopic: "alerts",
			}}
		}, field: "broker.kafka.output_topic"},
	}

	require.NoError(t, ValidateStatic(valid()))

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := ValidateStatic(cfg)
			require.Error(t, err)

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestValidateStaticReportsEveryProblem(t *testing.T) {
	cfg := &Config{
		Storage:     StorageConfig{Driver: StorageMemory},
		Broker:      BrokerConfig{Type: BrokerNone},
		Permissions: PermissionsConfig{Authority: AuthorityConfig{Type: AuthorityStatic}},
	}

	err := ValidateStatic(cfg)
	require.Error(t, err)

	msg := err.Error()
	for _, field := range []string{"server.port", "server.read_timeout_seconds", "server.write_timeout_seconds", "permissions.actor_header"} {
		assert.Contains(t, msg, "'"+field+"'")
	}
}

func TestLoadOverlaysEnvironment(t *testing.T) {
	t.Setenv("BROKER_TYPE", "Kafka")
	t.Setenv("BROKER_KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("BROKER_KAFKA_GROUP_ID", "routing")
	t.Setenv("DATABASE_REDIS_HOST", "redis")
	t.Setenv("DATABASE_REDIS_PORT", "6379")
	t.Setenv("PERMISSIONS_CACHE_BACKEND", "redis")

	cfg, err := Load(writeConfig(t, "logging:\n  format: console\n"))
	require.NoError(t, err)

	assert.Equal(t, BrokerKafka, cfg.Broker.Type)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Broker.Kafka.Brokers)
	assert.Equal(t, "routing", cfg.Broker.Kafka.GroupID)
	assert.Equal(t, "redis", cfg.Database.Redis.Host)
	assert.Equal(t, CacheBackendRedis, cfg.Permissions.Cache.Backend)
	assert.Equal(t, "switchyard", cfg.Database.MongoDB.Database)
}
