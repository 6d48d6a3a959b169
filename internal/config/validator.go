package config

import (
	"errors"
	"fmt"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// problems collects every field error so a bad config is reported in one
// pass.
type problems []error

func (p *problems) add(field, format string, args ...interface{}) {
	*p = append(*p, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (p *problems) check(ok bool, field, format string, args ...interface{}) {
	if !ok {
		p.add(field, format, args...)
	}
}

func (p *problems) port(field string, port int) {
	p.check(port >= 1 && port <= 65535, field, "port must be between 1 and 65535, got %d", port)
}

func (p *problems) oneOf(field, value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	p.add(field, "unknown value %q (supported: %s)", value, strings.Join(allowed, ", "))
	return false
}

// ValidateStatic checks the config without touching the network.
func ValidateStatic(cfg *Config) error {
	var p problems

	p.port("server.port", cfg.Server.Port)
	p.check(cfg.Server.ReadTimeoutSeconds > 0, "server.read_timeout_seconds", "read timeout must be positive")
	p.check(cfg.Server.WriteTimeoutSeconds > 0, "server.write_timeout_seconds", "write timeout must be positive")

	validateLogging(&p, cfg.Logging)
	validateStorage(&p, cfg)
	validateBroker(&p, cfg.Broker)
	validateRouting(&p, cfg.Routing)
	validatePermissions(&p, cfg)
	validateRateLimit(&p, cfg.Management.RateLimit)
	validateTracing(&p, cfg.Tracing)

	return errors.Join(p...)
}

func validateLogging(p *problems, cfg LoggingConfig) {
	if cfg.Level != "" {
		p.oneOf("logging.level", strings.ToLower(cfg.Level), "debug", "info", "warn", "error")
	}
	if cfg.Format != "" {
		p.oneOf("logging.format", strings.ToLower(cfg.Format), "json", "console")
	}
}

func validateStorage(p *problems, cfg *Config) {
	db := cfg.Database

	switch cfg.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		p.check(db.Postgres.Host != "", "database.postgres.host", "PostgreSQL is required by storage driver postgres")
	case StorageMongoDB:
		p.check(db.MongoDB.URI != "", "database.mongodb.uri", "MongoDB is required by storage driver mongodb")
	default:
		p.oneOf("storage.driver", cfg.Storage.Driver, StorageMemory, StoragePostgres, StorageMongoDB)
	}

	if pg := db.Postgres; pg.Host != "" {
		p.port("database.postgres.port", pg.Port)
		p.check(pg.User != "", "database.postgres.user", "PostgreSQL user is required")
		p.check(pg.DBName != "", "database.postgres.dbname", "PostgreSQL database name is required")
		if pg.SSLMode != "" {
			p.oneOf("database.postgres.sslmode", strings.ToLower(pg.SSLMode),
				"disable", "allow", "prefer", "require", "verify-ca", "verify-full")
		}
	}

	if rd := db.Redis; rd.Host != "" {
		p.port("database.redis.port", rd.Port)
		p.check(rd.DB >= 0, "database.redis.db", "Redis database index must be non-negative")
	}

	if mg := db.MongoDB; mg.URI != "" {
		p.check(strings.HasPrefix(mg.URI, "mongodb://") || strings.HasPrefix(mg.URI, "mongodb+srv://"),
			"database.mongodb.uri", "MongoDB URI must start with mongodb:// or mongodb+srv://")
		p.check(mg.Database != "", "database.mongodb.database", "MongoDB database name is required")
	}
}

func validateBroker(p *problems, cfg BrokerConfig) {
	if cfg.Type == "" {
		p.add("broker.type", "broker type is required")
		return
	}
	if !p.oneOf("broker.type", cfg.Type, BrokerKafka, BrokerNone) || cfg.Type == BrokerNone {
		return
	}

	k := cfg.Kafka
	p.check(len(k.Brokers) > 0, "broker.kafka.brokers", "at least one Kafka broker is required")
	for i, b := range k.Brokers {
		p.check(b != "", fmt.Sprintf("broker.kafka.brokers[%d]", i), "broker address cannot be empty")
	}
	p.check(k.GroupID != "", "broker.kafka.group_id", "Kafka consumer group ID is required")
	p.check(k.InputTopic == "" || k.InputTopic != k.OutputTopic,
		"broker.kafka.output_topic", "output topic must differ from input topic %q", k.InputTopic)
	validateRetry(p, "broker.kafka.retry", k.Retry)
}

func validateRetry(p *problems, prefix string, r RetryConfig) {
	p.check(r.MaxAttempts >= 0, prefix+".max_attempts", "max_attempts must be non-negative")
	p.check(r.InitialInterval >= 0, prefix+".initial_interval", "initial_interval must be non-negative")
	p.check(r.MaxInterval >= 0, prefix+".max_interval", "max_interval must be non-negative")
	p.check(r.MaxInterval == 0 || r.MaxInterval >= r.InitialInterval,
		prefix+".max_interval", "max_interval must be greater than or equal to initial_interval")
	p.check(r.Multiplier >= 0, prefix+".multiplier", "multiplier must be non-negative")
}

func validateRouting(p *problems, cfg RoutingConfig) {
	p.check(cfg.Reload.IntervalSeconds >= 0, "routing.reload.interval_seconds", "reload interval must be non-negative")
	p.check(cfg.Reload.JitterMaxMilliseconds >= 0, "routing.reload.jitter_max_milliseconds", "jitter must be non-negative")
	p.check(cfg.Template.RenderTimeout >= 0, "routing.template.render_timeout", "render timeout must be non-negative")
	p.check(cfg.Template.MaxOutputBytes >= 0, "routing.template.max_output_bytes", "max output bytes must be non-negative")
}

func validatePermissions(p *problems, cfg *Config) {
	perms := cfg.Permissions

	p.check(perms.ActorHeader != "", "permissions.actor_header", "actor header is required")

	if p.oneOf("permissions.authority.type", perms.Authority.Type, AuthorityHTTP, AuthorityStatic) &&
		perms.Authority.Type == AuthorityHTTP {
		url := perms.Authority.URL
		p.check(strings.HasPrefix(url, "http://") || strings.HasPrefix(url, "https://"),
			"permissions.authority.url", "authority URL must start with http:// or https://")
		p.check(perms.Authority.Timeout > 0, "permissions.authority.timeout", "authority timeout must be positive")
		validateRetry(p, "permissions.authority.retry", perms.Authority.Retry)
	}

	backend := perms.Cache.Backend
	if backend == "" {
		backend = CacheBackendNone
	}
	if p.oneOf("permissions.cache.backend", backend, CacheBackendMemory, CacheBackendRedis, CacheBackendNone) &&
		backend == CacheBackendRedis {
		p.check(cfg.Database.Redis.Host != "", "database.redis.host", "Redis is required by permission cache backend redis")
	}
	p.check(perms.Cache.TTL >= 0, "permissions.cache.ttl", "cache TTL must be non-negative")
}

func validateRateLimit(p *problems, cfg RateLimitConfig) {
	if !cfg.Enabled {
		return
	}
	p.check(cfg.RPS > 0, "management.rate_limit.rps", "rps must be positive when rate limiting is enabled")
	p.check(cfg.Burst >= 0, "management.rate_limit.burst", "burst must be non-negative")
	p.check(cfg.CleanupInterval >= 0, "management.rate_limit.cleanup_interval", "cleanup interval must be non-negative")
	p.check(cfg.MaxAge >= 0, "management.rate_limit.max_age", "max age must be non-negative")
}

func validateTracing(p *problems, cfg TracingConfig) {
	if !cfg.Enabled {
		return
	}
	p.check(cfg.OTLP.Endpoint != "", "tracing.otlp.endpoint", "OTLP endpoint is required when tracing is enabled")
	p.check(cfg.Sampler.Param >= 0 && cfg.Sampler.Param <= 1, "tracing.sampler.param", "sampler ratio must be within [0, 1]")
}
