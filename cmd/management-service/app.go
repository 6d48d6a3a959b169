package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"switchyard/internal/channelfilter"
	"switchyard/internal/config"
	"switchyard/internal/constants"
	"switchyard/internal/logger"
	"switchyard/internal/permissions"
	"switchyard/internal/routing"
	"switchyard/pkg/bootstrap"
	"switchyard/pkg/health"
	"switchyard/pkg/metrics"
	"switchyard/pkg/middleware"
	"switchyard/pkg/ratelimit"
	"switchyard/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	storage        *bootstrap.Storage
	redis          *redis.Client
	server         *http.Server
	router         *gin.Engine
	tracerProvider *tracing.TracerProvider
	cancel         context.CancelFunc
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceManagement)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	metrics.RegisterManagementMetrics()
	metrics.RegisterPermissionMetrics()
	metrics.RegisterRoutingMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceManagement)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	storage, err := a.dbConnector.OpenStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	a.storage = storage

	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	a.redis = rdb

	if err := a.InitProducer(); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}

	if err := a.initRouter(ctx); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.Config.Server.ReadTimeout(),
		WriteTimeout: a.Config.Server.WriteTimeout(),
	}
	return nil
}

func (a *App) auditRepository() channelfilter.AuditRepository {
	switch {
	case a.storage.Postgres != nil:
		return channelfilter.NewPostgresAuditRepository(a.storage.Postgres)
	case a.storage.MongoDB != nil:
		return channelfilter.NewMongoAuditRepository(a.storage.MongoDB)
	}
	return channelfilter.NewMemoryAuditRepository()
}

func (a *App) initRouter(ctx context.Context) error {
	engine, err := bootstrap.NewTemplateEngine(a.Config.Routing.Template)
	if err != nil {
		return fmt.Errorf("failed to create template engine: %w", err)
	}

	authority, err := permissions.NewAuthority(a.Config.Permissions, a.Config.CircuitBreaker, a.redis, a.Logger)
	if err != nil {
		return fmt.Errorf("failed to create permission authority: %w", err)
	}
	gate := permissions.NewGate(authority, a.Config.Permissions.Authority.Timeout, a.Logger)

	opts := []channelfilter.ServiceOption{
		channelfilter.WithAudit(a.auditRepository()),
		channelfilter.WithRouter(routing.NewService(a.storage.Store, engine, a.Config.Routing, a.Logger)),
	}
	if a.Producer != nil && a.Config.Broker.Kafka.ConfigUpdateTopic != "" {
		opts = append(opts, channelfilter.WithConfigEvents(
			channelfilter.NewConfigEventProducer(a.Producer, a.Config.Broker.Kafka.ConfigUpdateTopic),
		))
		a.Logger.InfowCtx(ctx, "Config event producer initialized", "topic", a.Config.Broker.Kafka.ConfigUpdateTopic)
	}

	svc := channelfilter.NewService(a.storage.Store, channelfilter.NewValidator(engine), a.Logger, opts...)
	handler := channelfilter.NewHandler(svc, a.Logger)
	if err := permissions.ValidateDeclarations(handler, channelfilter.Actions...); err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(constants.ServiceManagement))
	}
	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.Logger))

	registry := health.NewCheckerRegistry(constants.ServiceManagement)
	registry.Register(health.NewCheckFunc("storage", a.storage.Ping))
	if a.redis != nil {
		registry.RegisterOptional(health.NewRedisChecker(a.redis))
	}
	if a.Producer != nil {
		registry.RegisterOptional(health.NewKafkaChecker(a.Config.Broker.Kafka.Brokers))
	}
	router.GET("/health", registry.Handler())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("")
	if rl := a.Config.Management.RateLimit; rl.Enabled {
		limiterCtx, cancel := context.WithCancel(context.Background())
		a.cancel = cancel
		rlCfg := ratelimit.FromConfig(rl, a.Config.Permissions.ActorHeader)
		api.Use(ratelimit.RateLimitMiddleware(limiterCtx, rlCfg))
		a.Logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rlCfg.RPS, "burst", rlCfg.Burst)
	}
	handler.RegisterRoutes(api, gate, a.Config.Permissions.ActorHeader)

	a.router = router
	return nil
}

func (a *App) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		a.Logger.InfowCtx(ctx, "Server listening", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return a.Shutdown(context.Background())
	case err := <-errChan:
		a.Shutdown(context.Background())
		return err
	}
}

func (a *App) Shutdown(ctx context.Context) error {
	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("server shutdown error: %w", err))
			}
		}
		if a.cancel != nil {
			a.cancel()
		}
		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}
		if a.redis != nil {
			if err := a.redis.Close(); err != nil {
				errs = append(errs, fmt.Errorf("redis close error: %w", err))
			}
		}
		if a.storage != nil {
			errs = append(errs, a.storage.Close(ctx)...)
		}
		return errs
	}
	return a.Base.Shutdown(ctx, additionalShutdown)
}
