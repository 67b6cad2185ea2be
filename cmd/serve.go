package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wadl-labs/candidate-sourcer/internal/api"
)

// newServeCmd creates the 'serve' subcommand: the read-only HTTP surface
// over persisted runs.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the read-only run API",
		Long: `Starts the HTTP server exposing finished runs, their ranked candidates,
health probes and Prometheus metrics. Runs are started from the CLI; this
surface never mutates anything.`,

		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			port := appInstance.cfg.Server.Port
			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", port),
				Handler:           api.NewServer(appInstance.store, appInstance.logger).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				appInstance.logger.Info("api server listening", zap.Int("port", port))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return fmt.Errorf("api server: %w", err)
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown api server: %w", err)
			}
			appInstance.logger.Info("api server stopped")
			return nil
		},
	}
}
