package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"switchyard/internal/config"
	"switchyard/internal/constants"
	"switchyard/internal/logger"
	"switchyard/pkg/logging"
	"switchyard/pkg/models"
)

var (
	configFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "routing-service",
		Short: "Routing Service for alert channel filters",
		Long:  "Routing Service selects the channel filter of every incoming alert",
		RunE:  serveCmd().RunE,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file (required)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(routeCmd())

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
		Short: "Start the routing service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			ctx = logging.WithServiceName(ctx, constants.ServiceRouting)

			log.InfowCtx(ctx, "Starting Routing Service")

			app := NewApp(cfg, log)
			if err := app.Initialize(ctx); err != nil {
				log.ErrorwCtx(ctx, "Failed to initialize application", "error", err)
				return err
			}

			log.InfowCtx(ctx, "Service running")
			runErr := app.Run(ctx)
			if err := app.Shutdown(context.Background()); err != nil {
				log.ErrorwCtx(ctx, "Shutdown error", "error", err)
			}
			if runErr != nil && runErr != context.Canceled {
				log.ErrorwCtx(ctx, "Service stopped with error", "error", runErr)
				return runErr
			}
			log.InfowCtx(ctx, "Service shutdown complete")
			return nil
		},
	}
}

func routeCmd() *cobra.Command {
	var (
		alertFile     string
		integrationID string
	)

	cmd := &cobra.Command{
		Use:   "route",
		Short: "Evaluate one alert against the stored channel filters and print the decision",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			var in io.Reader = os.Stdin
			if alertFile != "" && alertFile != "-" {
				f, err := os.Open(alertFile)
				if err != nil {
					return fmt.Errorf("failed to open alert file: %w", err)
				}
				defer f.Close()
				in = f
			}

			var alert models.AlertEnvelope
			dec := json.NewDecoder(in)
			dec.UseNumber()
			if err := dec.Decode(&alert); err != nil {
				return fmt.Errorf("failed to decode alert: %w", err)
			}
			if integrationID != "" {
				alert.IntegrationID = integrationID
			}

			ctx := logging.WithServiceName(cmd.Context(), constants.ServiceRouting)
			app := NewApp(cfg, log)
			if err := app.initRouting(ctx); err != nil {
				return err
			}
			defer app.Shutdown(context.Background())

			result, err := app.router.Explain(ctx, &alert)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	cmd.Flags().StringVar(&alertFile, "alert", "-", "Path to an alert envelope JSON file, - for stdin")
	cmd.Flags().StringVar(&integrationID, "integration", "", "Override the alert's integration id")
	return cmd
}
