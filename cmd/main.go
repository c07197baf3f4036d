package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/mobile-money-service/internal/app"
	"github.com/akylbek/payment-system/mobile-money-service/internal/config"
	"github.com/akylbek/payment-system/mobile-money-service/internal/repository"
	"github.com/akylbek/payment-system/mobile-money-service/internal/telemetry"
)

var configPath string

func main() {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "mobile-money-service",
		Short: "Mobile money payment initiation and verification",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".", "directory holding an optional .env file")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(verifyCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background verification job",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer telemetry.Shutdown(context.Background())

			if cfg.StoreDriver != config.StorePostgres {
				return fmt.Errorf("migrate requires STORE_DRIVER=%s", config.StorePostgres)
			}

			db, err := app.OpenDatabase(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer db.Close()

			return repository.RunMigrations(db)
		},
	}
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Run a single verification pass over pending payments and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := setup()
			if err != nil {
				return err
			}
			defer telemetry.Shutdown(context.Background())

			a, err := app.New(cfg, telemetry.Logger)
			if err != nil {
				return err
			}
			defer a.Close()

			result := a.Job.RunPass(cmd.Context())
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
}

func setup() (config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}

	if err := telemetry.InitTelemetry(cfg.ServiceName, cfg.JaegerEndpoint); err != nil {
		return cfg, fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	return cfg, nil
}

func runServe(parent context.Context) error {
	cfg, err := setup()
	if err != nil {
		return err
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Mobile Money Service",
		zap.String("store", cfg.StoreDriver),
		zap.String("gateway", cfg.GatewayProvider),
	)

	a, err := app.New(cfg, telemetry.Logger)
	if err != nil {
		telemetry.Logger.Error("Failed to build application", zap.Error(err))
		return err
	}
	defer a.Close()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return a.Run(ctx)
}
