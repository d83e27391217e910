package main

import (
	"fmt"

	"github.com/sandevgo/mnemo/internal/config"
	"github.com/sandevgo/mnemo/pkg/env"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration in .env format",
	Long:  `Secrets are masked. Redirect the output into <runtime>/.env to pin the current values.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, flushLog := setupLogger(cmd.Context())
		defer flushLog()

		if err := initEnv(ctx, config.GetRuntimePath()); err != nil {
			return err
		}
		cfg, err := config.ParseAppConfig()
		if err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		out, err := env.MarshalEnv(cfg)
		if err != nil {
			return err
		}
		_, err = fmt.Fprint(cmd.OutOrStdout(), out)
		return err
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
