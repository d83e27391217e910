package main

import (
	"context"

	"github.com/sandevgo/mnemo/pkg/log"
	"github.com/spf13/cobra"
)

var vacuum bool

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Checkpoint the WAL and optimize the search index",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd.Context(), func(ctx context.Context, a *app) error {
			if err := a.store.Checkpoint(ctx, vacuum); err != nil {
				return err
			}
			log.FromCtx(ctx).Info().Bool("vacuum", vacuum).Msg("database compacted")
			return nil
		})
	},
}

func init() {
	compactCmd.Flags().BoolVar(&vacuum, "vacuum", false, "also rebuild the database file")
	rootCmd.AddCommand(compactCmd)
}
