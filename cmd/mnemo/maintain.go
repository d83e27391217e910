package main

import (
	"context"

	"github.com/sandevgo/mnemo/pkg/log"
	"github.com/spf13/cobra"
)

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Run decay, dedup, escalation and consolidation once",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd.Context(), func(ctx context.Context, a *app) error {
			report, err := a.svc.RunMaintenance(ctx)
			log.FromCtx(ctx).Info().
				Int("decayed", report.Decayed).
				Int("merged", report.Merged).
				Int("escalated", report.Escalated).
				Int("consolidated", report.Consolidated).
				Int("active", report.Active).
				Dur("took", report.Duration).
				Msg("maintenance finished")
			return err
		})
	},
}

func init() {
	rootCmd.AddCommand(maintainCmd)
}
