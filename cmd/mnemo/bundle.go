package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sandevgo/mnemo/internal/service/memory"
	"github.com/sandevgo/mnemo/pkg/log"
	"github.com/spf13/cobra"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write all active memories as a JSON bundle",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd.Context(), func(ctx context.Context, a *app) error {
			b, err := a.svc.ExportAll(ctx)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if exportOut != "" && exportOut != "-" {
				f, err := os.Create(exportOut)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", exportOut, err)
				}
				defer f.Close()
				w = f
			}
			if err := memory.WriteBundle(w, b); err != nil {
				return fmt.Errorf("failed to write bundle: %w", err)
			}
			log.FromCtx(ctx).Info().Int("memories", b.MemoryCount).Msg("export finished")
			return nil
		})
	},
}

var importCmd = &cobra.Command{
	Use:   "import <bundle.json|->",
	Short: "Import memories from a JSON bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runWithApp(cmd.Context(), func(ctx context.Context, a *app) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("failed to open %s: %w", args[0], err)
				}
				defer f.Close()
				r = f
			}

			b, err := memory.ReadBundle(r)
			if err != nil {
				return err
			}
			report, err := a.svc.ImportBundle(ctx, b)
			if err != nil {
				return err
			}

			logger := log.FromCtx(ctx)
			logger.Info().Int("imported", report.Imported).Int("skipped", report.Skipped).Msg("import finished")
			if len(report.Errors) > 0 {
				logger.Warn().Msgf("%d memories failed:\n%s", len(report.Errors), strings.Join(report.Errors, "\n"))
			}
			return nil
		})
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "output", "o", "", "write to file instead of stdout")
	rootCmd.AddCommand(exportCmd, importCmd)
}
