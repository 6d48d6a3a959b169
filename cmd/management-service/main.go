package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"switchyard/internal/config"
	"switchyard/internal/constants"
	"switchyard/internal/logger"
	"switchyard/pkg/bootstrap"
	"switchyard/pkg/logging"
	"switchyard/pkg/migrations"
)

var (
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "management-service",
		Short: "Management Service for alert channel filters",
		Long:  "Management Service provides the REST API for integrations and their channel filters",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, logger.Logger, error) {
	earlyLog := logging.NewEarlyLog()

	if configFile == "" {
		configFile = os.Getenv("CONFIG_FILE")
		if configFile == "" {
			earlyLog.Error("Config file is required. Use --config flag or CONFIG_FILE environment variable")
			return nil, nil, fmt.Errorf("config file is required")
		}
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		earlyLog.Error("Failed to load config: %v", err)
		return nil, nil, err
	}

	log, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		earlyLog.Error("Failed to init logger: %v", err)
		return nil, nil, err
	}
	return cfg, log, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the management service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			ctx = logging.WithServiceName(ctx, constants.ServiceManagement)

			log.InfowCtx(ctx, "Starting Management Service")

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				app.Shutdown(context.Background())
				return err
			}

			if err := app.Run(ctx); err != nil {
				log.ErrorwCtx(ctx, "Application error", "error", err)
				return err
			}
			return nil
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the schema of the configured storage driver",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx := cmd.Context()
			dc := bootstrap.NewDatabaseConnector(cfg, log)

			switch cfg.Storage.Driver {
			case config.StoragePostgres:
				db, err := dc.InitPostgreSQL(ctx)
				if err != nil {
					return err
				}
				defer db.Close()
				if err := migrations.MigratePostgres(db); err != nil {
					return fmt.Errorf("failed to run migrations: %w", err)
				}
				version, dirty, err := migrations.PostgresVersion(db)
				if err != nil {
					return err
				}
				log.Infow("PostgreSQL schema up to date", "version", version, "dirty", dirty)

			case config.StorageMongoDB:
				client, err := dc.InitMongoDB(ctx)
				if err != nil {
					return err
				}
				defer client.Disconnect(ctx)
				if err := migrations.EnsureMongoCollections(ctx, client.Database(cfg.Database.MongoDB.Database)); err != nil {
					return fmt.Errorf("failed to create indexes: %w", err)
				}
				log.Infow("MongoDB indexes up to date")

			default:
				log.Infow("Storage driver has no schema", "driver", cfg.Storage.Driver)
			}
			return nil
		},
	}
}
