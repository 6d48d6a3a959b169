package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

var defaults = map[string]interface{}{
	"server.port":                  8080,
	"server.read_timeout_seconds":  15,
	"server.write_timeout_seconds": 15,

	"storage.driver":                   StorageMemory,
	"broker.type":                      BrokerNone,
	"broker.kafka.input_topic":         "alerts",
	"broker.kafka.output_topic":        "routed_alerts",
	"broker.kafka.config_update_topic": "config_updates",
	"broker.kafka.retry.multiplier":    2.0,
	"database.mongodb.database":        "switchyard",

	"logging.level":  "info",
	"logging.format": "json",

	"routing.reload.interval_seconds":        60,
	"routing.reload.jitter_max_milliseconds": 0,

	"permissions.actor_header":                     "X-Actor-ID",
	"permissions.authority.type":                   AuthorityStatic,
	"permissions.authority.timeout":                "2s",
	"permissions.authority.retry.max_attempts":     2,
	"permissions.authority.retry.initial_interval": "50ms",
	"permissions.authority.retry.max_interval":     "500ms",
	"permissions.authority.retry.multiplier":       2.0,
	"permissions.cache.backend":                    CacheBackendMemory,
	"permissions.cache.ttl":                        "30s",

	"management.rate_limit.rps":   10.0,
	"management.rate_limit.burst": 20,

	"tracing.sampler.type": "parentbased_always_on",
}

// envKeys have no default but can still be set from the environment, as
// the upper-cased key with dots replaced by underscores.
var envKeys = []string{
	"broker.kafka.brokers",
	"broker.kafka.group_id",
	"broker.kafka.dlq_topic",
	"database.run_migrations",
	"database.postgres.host",
	"database.postgres.port",
	"database.postgres.user",
	"database.postgres.password",
	"database.postgres.dbname",
	"database.postgres.sslmode",
	"database.redis.host",
	"database.redis.port",
	"database.redis.password",
	"database.redis.db",
	"database.mongodb.uri",
	"permissions.authority.url",
	"permissions.authority.token",
	"permissions.static_grants",
	"management.rate_limit.enabled",
	"circuit_breaker.enabled",
	"tracing.enabled",
	"tracing.service_name",
	"tracing.otlp.endpoint",
	"tracing.otlp.insecure",
}

// Load reads configFile, overlays the environment and validates the
// result.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(configFile)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	normalize(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// normalize lower-cases enum fields and trims broker lists, which arrive
// comma separated from the environment.
func normalize(cfg *Config) {
	cfg.Storage.Driver = strings.ToLower(cfg.Storage.Driver)
	cfg.Broker.Type = strings.ToLower(cfg.Broker.Type)
	cfg.Permissions.Authority.Type = strings.ToLower(cfg.Permissions.Authority.Type)
	cfg.Permissions.Cache.Backend = strings.ToLower(cfg.Permissions.Cache.Backend)

	brokers := cfg.Broker.Kafka.Brokers[:0]
	for _, b := range cfg.Broker.Kafka.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	cfg.Broker.Kafka.Brokers = brokers
}
