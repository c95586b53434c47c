package cmd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"qubeless/internal/bootstrap"
	"qubeless/internal/bootstrap/logging"
	"qubeless/internal/errs"
	"qubeless/internal/ports"
	"qubeless/internal/usecase/pipeline"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Create an analysis and queue its job from a payload file",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		payloadFile, _ := cmd.Flags().GetString("payload")
		raw, err := os.ReadFile(payloadFile)
		if err != nil {
			return errs.Wrap(err, "read payload file")
		}

		var payload ports.JobPayload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return errs.Wrap(err, "decode payload file")
		}

		result, err := svc.EnqueueAnalysis(ctx, payload)
		if err != nil {
			return errs.Wrap(err, "enqueue analysis")
		}

		logging.Info(ctx, "analysis enqueued",
			slog.String("analysis_id", result.AnalysisID),
			slog.String("job_id", result.JobID),
			slog.String("baseline_analysis_id", result.BaselineAnalysisID),
		)
		if _, err := fmt.Fprintf(cmd.OutOrStdout(), "analysis=%s job=%s baseline=%s\n",
			result.AnalysisID, result.JobID, result.BaselineAnalysisID); err != nil {
			return errs.Wrap(err, "write enqueue output")
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(enqueueCmd)
	enqueueCmd.Flags().String("payload", "", "Path to a JSON job payload")
	_ = enqueueCmd.MarkFlagRequired("payload")
}
