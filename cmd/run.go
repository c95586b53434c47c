package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"qubeless/internal/bootstrap"
	"qubeless/internal/bootstrap/logging"
	"qubeless/internal/errs"
	"qubeless/internal/usecase/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the analysis worker pool",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *pipeline.Service) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = logging.WithAttrs(ctx, slog.String("command", cmd.CommandPath()))

		cfg := pipeline.RunnerConfig{
			Workers:      app.Config.Queue.Workers,
			PollInterval: app.Config.Queue.PollInterval,
			StaleAfter:   app.Config.Queue.StaleAfter,
		}
		if workers, _ := cmd.Flags().GetInt("workers"); workers > 0 {
			cfg.Workers = workers
		}
		if err := svc.RunWorkers(ctx, cfg); err != nil {
			return errs.Wrap(err, "run worker pool")
		}

		if _, err := fmt.Fprintln(cmd.OutOrStdout(), "worker pool stopped"); err != nil {
			return errs.Wrap(err, "write run output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Int("workers", 0, "Override worker count from config")
}
