// Command classhub runs the ClassHub course portal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dalemusser/classhub/internal/app/bootstrap"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var version = "dev" // set by the linker

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		// Cobra has already printed the error.
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Each call returns a fresh tree so
// tests can run commands in isolation.
func newRootCmd() *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:           "classhub",
		Short:         "ClassHub course portal",
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./classhub.yaml)")

	root.AddCommand(
		newServeCmd(&cfgFile),
		newEnsureIndexesCmd(&cfgFile),
		newVersionCmd(),
	)
	return root
}

func newServeCmd(cfgFile *string) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Run the HTTP server.

With --memory the portal runs on an in-process store and needs no MongoDB;
everything is lost on exit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(v, *cfgFile)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info("starting classhub",
				zap.String("version", version),
				zap.String("env", cfg.Env),
				zap.Bool("memory", cfg.Memory))
			return bootstrap.Run(ctx, cfg, logger)
		},
	}
	cobra.CheckErr(bootstrap.BindFlags(cmd, v))
	return cmd
}

func newEnsureIndexesCmd(cfgFile *string) *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:   "ensure-indexes",
		Short: "Create MongoDB collection validators and indexes, then exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(v, *cfgFile)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if err := bootstrap.EnsureIndexes(ctx, cfg, logger); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "indexes ensured")
			return nil
		},
	}
	cobra.CheckErr(bootstrap.BindFlags(cmd, v))
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "classhub %s\n", version)
		},
	}
}

// setup loads and validates configuration and builds the logger.
func setup(v *viper.Viper, cfgFile string) (bootstrap.AppConfig, *zap.Logger, error) {
	cfg, err := bootstrap.LoadConfig(v, cfgFile, zap.NewNop())
	if err != nil {
		return cfg, nil, err
	}
	logger, err := bootstrap.NewLogger(cfg.Env, cfg.LogLevel)
	if err != nil {
		return cfg, nil, err
	}
	if err := bootstrap.ValidateConfig(cfg, logger); err != nil {
		return cfg, nil, err
	}
	return cfg, logger, nil
}
