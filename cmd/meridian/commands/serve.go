package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/meridian/internal/api"
	"github.com/wonny/meridian/internal/api/handlers"
	"github.com/wonny/meridian/pkg/config"
	"github.com/wonny/meridian/pkg/database"
	"github.com/wonny/meridian/pkg/logger"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the read-only API server",
	Long: `Starts the HTTP API over a read-only store handle. The server can
run alongside the pipeline: it never takes the write lock and only
observes committed tables.

Endpoints:
  GET /health
  GET /api/marts/daily
  GET /api/marts/daily/yoy
  GET /api/runs/latest
  GET /api/runs
  GET /api/quality/findings

Example:
  go run ./cmd/meridian serve
  go run ./cmd/meridian serve --port 8080`,
	RunE: runServe,
}

var servePort string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&servePort, "port", "", "API server port (defaults to PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if servePort != "" {
		cfg.Port = servePort
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	log := logger.New(cfg)

	log.WithFields(map[string]interface{}{
		"port":  cfg.Port,
		"store": cfg.Database.Path,
	}).Info("Initializing API server")

	db, err := database.NewReader(cfg)
	if err != nil {
		return fmt.Errorf("open store read-only: %w", err)
	}
	defer db.Close()

	martHandler := handlers.NewMartHandler(db, log)
	runHandler := handlers.NewRunHandler(db, log)

	router := api.NewRouter(martHandler, runHandler, log)
	server := api.New(cfg, log, router)

	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	PrintSuccess(fmt.Sprintf("Server running on http://localhost:%s", cfg.Port))
	fmt.Println("\nPress Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("Server stopped")
	return nil
}
