package cmd

import (
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"qubeless/internal/bootstrap"
	"qubeless/internal/bootstrap/logging"
	"qubeless/internal/errs"
	"qubeless/internal/httpapi"
	"qubeless/internal/usecase/pipeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP gate and health endpoints",
	RunE: withApp(func(cmd *cobra.Command, app *bootstrap.App, svc *pipeline.Service) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		ctx = logging.WithAttrs(ctx, slog.String("command", cmd.CommandPath()))

		server := httpapi.NewServer(svc, app.Config.HTTP.Addr)
		if err := server.Listen(ctx); err != nil {
			return errs.Wrap(err, "serve http api")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
