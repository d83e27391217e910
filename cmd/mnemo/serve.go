package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sandevgo/mnemo/internal/transport/mcp"
	"github.com/sandevgo/mnemo/pkg/log"
	"github.com/sandevgo/mnemo/pkg/srv"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve memory tools over MCP stdio",
	Long: `Starts the MCP server on stdin/stdout together with the embedding worker,
the event extractor, scheduled maintenance and the optional metrics endpoint.
The server exits when the client closes stdin or on interrupt.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// logger setup
		var flushLog func()
		ctx, flushLog = setupLogger(ctx)
		defer flushLog()

		logger := log.FromCtx(ctx)
		logger.Info().Msg("starting mnemo")

		a, err := newApp(ctx)
		if err != nil {
			return err
		}

		services := NewServices(a)
		srv.StartServices(ctx, services)

		server := mcp.NewServer(a.svc, os.Stdin, os.Stdout)
		serveErr := server.Start(ctx)
		if serveErr != nil {
			logger.Error().Err(serveErr).Msg("mcp server stopped")
		}
		// stdin closed: treat like a shutdown signal
		stop()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to flush session")
		}

		srv.ShutdownServices(ctx, services, shutdownTimeout)
		logger.Info().Msg("mnemo has been shut down gracefully")
		return serveErr
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
