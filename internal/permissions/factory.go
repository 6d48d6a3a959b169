package permissions

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"switchyard/internal/config"
	"switchyard/internal/logger"
)

// NewAuthority builds the configured authority and wraps it in the
// configured decision cache. redisClient is only used by the redis cache.
func NewAuthority(cfg config.PermissionsConfig, cbCfg config.CircuitBreakerConfig, redisClient *redis.Client, log logger.Logger) (Authority, error) {
	var authority Authority
	switch cfg.Authority.Type {
	case config.AuthorityHTTP:
		authority = NewHTTPAuthority(cfg.Authority, cbCfg)
	case config.AuthorityStatic:
		if cfg.StaticGrants == "" {
			authority = NewStaticAuthority(nil)
			break
		}
		static, err := LoadStaticAuthority(cfg.StaticGrants)
		if err != nil {
			return nil, err
		}
		authority = static
	default:
		return nil, fmt.Errorf("unknown authority type: %s", cfg.Authority.Type)
	}

	switch cfg.Cache.Backend {
	case config.CacheBackendNone, "":
		return authority, nil
	case config.CacheBackendMemory:
		return NewCachedAuthority(authority, NewMemoryCache(), cfg.Cache.Backend, cfg.Cache.TTL, log), nil
	case config.CacheBackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("redis cache backend requires a redis client")
		}
		return NewCachedAuthority(authority, NewRedisCache(redisClient), cfg.Cache.Backend, cfg.Cache.TTL, log), nil
	default:
		return nil, fmt.Errorf("unknown permission cache backend: %s", cfg.Cache.Backend)
	}
}
