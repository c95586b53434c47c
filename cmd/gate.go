package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"qubeless/internal/bootstrap"
	"qubeless/internal/bootstrap/logging"
	"qubeless/internal/errs"
	"qubeless/internal/usecase/pipeline"
)

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Re-evaluate the quality gate for a finished analysis",
	RunE: withApp(func(cmd *cobra.Command, _ *bootstrap.App, svc *pipeline.Service) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		analysisID, _ := cmd.Flags().GetString("analysis-id")
		result, err := svc.EvaluateGateForAnalysis(ctx, analysisID)
		if err != nil {
			return errs.Wrap(err, "evaluate quality gate")
		}

		out := cmd.OutOrStdout()
		if _, err := fmt.Fprintf(out, "gate status: %s\n", result.Status); err != nil {
			return errs.Wrap(err, "write gate output")
		}
		for _, cond := range result.Conditions {
			verdict := "OK"
			if !cond.Passed {
				verdict = "FAILED"
			}
			if _, err := fmt.Fprintf(out, "  %-7s %s %s %s %v (actual %v)\n",
				verdict, cond.Condition.Scope, cond.Condition.MetricKey,
				cond.Condition.Operator, cond.Condition.Threshold, cond.Actual); err != nil {
				return errs.Wrap(err, "write gate output")
			}
		}
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(gateCmd)
	gateCmd.Flags().String("analysis-id", "", "Analysis identifier")
	_ = gateCmd.MarkFlagRequired("analysis-id")
}
