package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mangafold/chapterd/internal/supervisor"
	"github.com/mangafold/chapterd/internal/target"
)

func newSuperviseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "supervise <url>",
		Short: "Relaunches fetch workers until no new artifacts are created",
		Long: `Runs the fetch command in a fresh child process, over and over, until a
worker reports "Total: 0". The scrape environment kills long sessions, so
each generation picks up where the previous one was cut off, using the
on-disk artifacts as the only record of progress.`,
		Args: cobra.ExactArgs(1),
		RunE: runSupervise,
	}
}

func runSupervise(cmd *cobra.Command, args []string) error {
	tgt, err := target.Classify(args[0])
	if err != nil {
		return err
	}

	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	argv := a.cfg.Supervisor.WorkerArgv
	if len(argv) == 0 {
		argv = []string{os.Args[0], "fetch"}
		if cfgFile != "" {
			argv = append(argv, "--config", cfgFile)
		}
	}
	a.logger.Info("supervising", zap.Strings("worker_argv", argv), zap.String("target", tgt.Raw))

	return supervisor.New(argv, a.logger).Run(cmd.Context(), tgt.Raw)
}
