package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"SmartTrader/internal/di"
	"SmartTrader/pkg/config"
	"SmartTrader/pkg/server"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "smarttrader",
		Short: "Autonomous market-decision engine with a simulated account",
		Long: `SmartTrader polls OHLCV candles from Wallex with CoinGecko and CoinCap
as fallbacks, scores them with a weighted multi-indicator model and trades
a simulated account. Decisions are journaled, published and reported.

Without a subcommand it runs the live loop.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLoop(cmd.Context(), opts)
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "config/config.yaml", "config file path")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the decision loop until interrupted",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runLoop(cmd.Context(), opts)
			},
		},
		&cobra.Command{
			Use:   "once",
			Short: "Run a single decision cycle and print the analysis report",
			RunE: func(cmd *cobra.Command, _ []string) error {
				app, err := buildApp(opts)
				if err != nil {
					return err
				}
				res, err := app.RunOnce(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), res.Report)
				return nil
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Create or upgrade the journal schema",
			RunE: func(cmd *cobra.Command, _ []string) error {
				app, err := buildApp(opts)
				if err != nil {
					return err
				}
				return app.Migrate(cmd.Context())
			},
		},
	)
	return root
}

func buildApp(opts *rootOptions) (*server.App, error) {
	cfg, err := config.LoadWithEnv(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	app, err := di.InitializeApp(cfg)
	if err != nil {
		return nil, fmt.Errorf("app initialization failed: %w", err)
	}
	return app, nil
}

func runLoop(ctx context.Context, opts *rootOptions) error {
	app, err := buildApp(opts)
	if err != nil {
		return err
	}
	return app.Run(ctx)
}
