// Package cmd defines the CLI commands of the attraction-crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/attraction-crawler/internal/app"
	"github.com/JakeFAU/attraction-crawler/internal/config"
	"github.com/JakeFAU/attraction-crawler/internal/logging"
	"github.com/JakeFAU/attraction-crawler/internal/runs"
)

// envKeyType is the key for the command environment in the context.
type envKeyType string

const envKey envKeyType = "env"

// env is what the root command prepares for its subcommands.
type env struct {
	cfg    config.Config
	logger *zap.Logger
}

// Services is the part of app.App the commands use. Tests swap the
// factories below for fakes.
type Services interface {
	Crawl(ctx context.Context) (app.Result, error)
	Checkpoints() app.CheckpointStore
	Records() app.RecordStore
	Runs() runs.Repository
	Close()
}

var (
	newApp = func(ctx context.Context, cfg config.Config, opts app.Options, logger *zap.Logger) (Services, error) {
		return app.New(ctx, cfg, opts, logger)
	}
	openStores = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Services, error) {
		return app.OpenStores(ctx, cfg, app.Options{}, logger)
	}
)

// newRootCmd creates the root command and its subcommands.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "attraction-crawler",
		Short: "Resumable crawler for attraction and tour catalogs.",
		Long: `attraction-crawler walks paginated attraction or tour listings city by
city and category by category, extracts one record per item and checkpoints
every committed item so an interrupted crawl resumes where it stopped.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, logging.WithLevel(cfg.Logging.Level))
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), envKey, &env{cfg: cfg, logger: logger}))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if e, ok := cmd.Context().Value(envKey).(*env); ok && e != nil {
				_ = e.logger.Sync() //nolint:errcheck // best-effort flush
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML); defaults to ./config.yaml, then the user config dir")
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newStatusCmd())
	return cmd
}

func resolveEnv(ctx context.Context) (*env, error) {
	e, ok := ctx.Value(envKey).(*env)
	if !ok || e == nil {
		return nil, errors.New("command environment not initialized")
	}
	return e, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "command failed: %v\n", err)
		stop()
		os.Exit(1)
	}
}
