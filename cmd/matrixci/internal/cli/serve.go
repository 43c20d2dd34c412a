package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/matrixci/internal/observability"
	"github.com/example/matrixci/internal/service"
	"github.com/example/matrixci/internal/storage/sqlite"
	"github.com/example/matrixci/internal/web"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve run status over HTTP",
	Long: `Serve recorded runs as a read-only JSON API.

ENDPOINTS:
  GET /api/runs                           list runs
  GET /api/runs/{id}                      run with stages and jobs
  GET /api/runs/{id}/jobs/{job}/log       per-command output of a job
  GET /metrics                            execution metrics
  GET /healthz                            liveness probe

The MATRIXCI_ADDR and MATRIXCI_DB environment variables override the
corresponding flags.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "listen address")
}

func runServe(cmd *cobra.Command, args []string) error {
	// Environment overrides for containerized deployments.
	if addr := os.Getenv("MATRIXCI_ADDR"); addr != "" {
		serveAddr = addr
	}
	if path := os.Getenv("MATRIXCI_DB"); path != "" {
		dbPath = path
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer store.Close()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	orch := service.NewOrchestrator(store)
	srv := web.NewServer(serveAddr, orch, observability.NewMetrics(), logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
