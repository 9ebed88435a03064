// Package cmd defines and implements the CLI commands for the chapterd
// executable.
package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mangafold/chapterd/internal/config"
	"github.com/mangafold/chapterd/internal/logging"
	"github.com/mangafold/chapterd/internal/metrics"
)

var cfgFile string

// app bundles the services every command needs.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func newApp() (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, metrics: metrics.New()}, nil
}

func (a *app) close() {
	_ = a.logger.Sync()
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chapterd",
		Short: "Scrapes dynamically rendered chapter pages into PDF artifacts.",
		Long: `chapterd harvests chapter listings and chapter pages from a content
site, assembles each chapter's images into a single PDF, and caches the
result on disk so repeated invocations only do new work. The supervise
command relaunches short-lived workers until nothing new remains.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	cmd.AddCommand(newFetchCmd(), newSuperviseCmd())

	return cmd
}

// Execute is the main entry point. The process exits non-zero on malformed
// targets and unexpected worker death; interrupted runs resume later from
// the artifact cache.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
