package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"switchyard/internal/broker"
	"switchyard/internal/config"
	"switchyard/internal/config_handler"
	"switchyard/internal/constants"
	"switchyard/internal/logger"
	"switchyard/internal/routing"
	"switchyard/pkg/bootstrap"
	"switchyard/pkg/health"
	"switchyard/pkg/metrics"
	"switchyard/pkg/middleware"
	"switchyard/pkg/tracing"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	storage        *bootstrap.Storage
	router         *routing.Service
	configConsumer broker.Consumer
	tracerProvider *tracing.TracerProvider
	server         *http.Server
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName(constants.ServiceRouting)
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	metrics.RegisterRoutingMetrics()
	metrics.RegisterBrokerMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	tp, err := tracing.Init(a.Config.Tracing, constants.ServiceRouting)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	if err := a.initRouting(ctx); err != nil {
		return err
	}

	if err := a.router.Reload(ctx, true); err != nil {
		a.Logger.WarnwCtx(ctx, "Failed to load initial channel filters", "error", err)
	}

	if err := a.InitBroker(constants.ServiceRouting); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}
	if err := a.initConfigConsumer(); err != nil {
		return fmt.Errorf("failed to initialize config consumer: %w", err)
	}

	a.initHTTPServer()
	return nil
}

func (a *App) initRouting(ctx context.Context) error {
	storage, err := a.dbConnector.OpenStorage(ctx)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	a.storage = storage

	engine, err := bootstrap.NewTemplateEngine(a.Config.Routing.Template)
	if err != nil {
		return fmt.Errorf("failed to create template engine: %w", err)
	}

	a.router = routing.NewService(storage.Store, engine, a.Config.Routing, a.Logger)
	return nil
}

// initConfigConsumer subscribes to config updates under a group of its
// own, so that every instance sees every event.
func (a *App) initConfigConsumer() error {
	kafkaCfg := a.Config.Broker.Kafka
	if a.Config.Broker.Type != config.BrokerKafka || kafkaCfg.ConfigUpdateTopic == "" {
		return nil
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "local"
	}
	kafkaCfg.GroupID = fmt.Sprintf("%s-config-%s", kafkaCfg.GroupID, hostname)
	kafkaCfg.DLQTopic = ""

	consumer, err := broker.NewConsumer(config.BrokerConfig{Type: config.BrokerKafka, Kafka: kafkaCfg}, a.Logger)
	if err != nil {
		return err
	}
	consumer.SetServiceName(constants.ServiceRouting)
	a.configConsumer = consumer
	return nil
}

func (a *App) initHTTPServer() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(a.Logger))

	registry := health.NewCheckerRegistry(constants.ServiceRouting)
	registry.Register(health.NewCheckFunc("storage", a.storage.Ping))
	if a.Config.Broker.Type == config.BrokerKafka {
		registry.RegisterOptional(health.NewKafkaChecker(a.Config.Broker.Kafka.Brokers))
	}

	router.GET("/health", registry.Handler())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.Config.Server.ReadTimeout(),
		WriteTimeout: a.Config.Server.WriteTimeout(),
	}
}

func (a *App) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return a.router.StartReloader(gCtx)
	})

	if a.configConsumer != nil {
		handler := config_handler.NewHandler(a.router, a.Logger)
		topic := a.Config.Broker.Kafka.ConfigUpdateTopic
		g.Go(func() error {
			a.Logger.InfowCtx(gCtx, "Starting config update event consumer", "topic", topic)
			return a.configConsumer.Consume(gCtx, topic, handler.HandleMessage)
		})
	}

	if a.Consumer != nil && a.Producer != nil {
		inputTopic := a.Config.Broker.Kafka.InputTopic
		if inputTopic == "" {
			inputTopic = constants.DefaultInputTopic
		}
		outputTopic := a.Config.Broker.Kafka.OutputTopic
		if outputTopic == "" {
			outputTopic = constants.DefaultOutputTopic
		}
		forwarder := routing.NewForwarder(a.router, a.Producer, outputTopic, a.Logger)
		g.Go(func() error {
			a.Logger.InfowCtx(gCtx, "Starting alert consumer", "input_topic", inputTopic, "output_topic", outputTopic)
			return a.Consumer.Consume(gCtx, inputTopic, forwarder.HandleMessage)
		})
	} else {
		a.Logger.WarnwCtx(ctx, "Broker disabled, alerts are not consumed")
	}

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	additionalShutdown := func(ctx context.Context) []error {
		var errs []error
		if a.configConsumer != nil {
			if err := a.configConsumer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("config consumer close error: %w", err))
			}
		}
		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}
		if a.storage != nil {
			errs = append(errs, a.storage.Close(ctx)...)
		}
		return errs
	}
	return a.Base.Shutdown(ctx, additionalShutdown)
}
