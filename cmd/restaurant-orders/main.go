package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"restaurant-orders/internal/app/migrate"
	"restaurant-orders/internal/app/order"
	"restaurant-orders/internal/app/settlement"
	"restaurant-orders/internal/app/standalone"
	"restaurant-orders/internal/common/logger"
	"restaurant-orders/internal/config"
)

func main() {
	var (
		configPath string
		prefetch   int
		cfg        *config.Config
	)

	rootCmd := &cobra.Command{
		Use:           "restaurant-orders",
		Short:         "Multi-tenant restaurant order intake, settlement and live updates",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger.Init(c.App.Env)
			cfg = c
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")

	settle := serviceCmd("settlement-worker", "Consume the intake queue and settle orders", func(ctx context.Context) error {
		return settlement.Run(ctx, cfg, prefetch)
	})
	settle.Flags().IntVar(&prefetch, "prefetch", 0, "RabbitMQ prefetch (defaults to settlement.concurrency)")

	rootCmd.AddCommand(
		serviceCmd("order-service", "Serve the order HTTP API and live subscriptions", func(ctx context.Context) error {
			return order.Run(ctx, cfg)
		}),
		settle,
		serviceCmd("migrate", "Apply the database schema", func(ctx context.Context) error {
			return migrate.Run(ctx, cfg)
		}),
		serviceCmd("standalone", "Run every role in one process with in-memory infrastructure", func(ctx context.Context) error {
			return standalone.Run(ctx, cfg)
		}),
	)

	if err := rootCmd.Execute(); err != nil {
		logger.L().Error("fatal", zap.Error(err))
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serviceCmd(use, short string, run func(ctx context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			return run(ctx)
		},
	}
}
