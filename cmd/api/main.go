package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"shopify-catalog-scraper/internal/config"
	"shopify-catalog-scraper/internal/store"
	"shopify-catalog-scraper/internal/types"
	"shopify-catalog-scraper/orchestrator"
	"shopify-catalog-scraper/utils"
)

// shutdownTimeout bounds how long running jobs get to write their import files
const shutdownTimeout = 2 * time.Minute

func main() {
	if err := run(); err != nil {
		log.Fatalf("API server stopped: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger := config.NewLogger(os.Getenv("LOG_LEVEL"), false)

	st, err := store.Open(cfg.DatabasePath, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to open status store: %w", err)
	}
	defer st.Close()

	orch := orchestrator.New(orchestrator.NewRegistry(cfg, logger), st, cfg, logger, utils.NewBrowserFactory(cfg, logger))
	jobs := orchestrator.NewJobs(context.Background(), logger)
	server := NewServer(orch, jobs, logger)

	if cfg.ReprocessSchedule != "" {
		scheduler, err := server.ScheduleReprocess(cfg.ReprocessSchedule)
		if err != nil {
			return fmt.Errorf("failed to schedule reprocessing: %w", err)
		}
		defer func() { <-scheduler.Stop().Done() }()
		logger.Infof("Errored products are reprocessed on schedule %q", cfg.ReprocessSchedule)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, server, jobs, cfg.APIPort, logger); err != nil {
		return err
	}
	logger.Info("Graceful shutdown successful")
	return nil
}

// serve runs the HTTP server until ctx is cancelled, then stops the running
// jobs so they write what they extracted, and shuts the server down.
func serve(ctx context.Context, server *Server, jobs *orchestrator.Jobs, port string, logger types.Logger) error {
	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Infof("Starting API server on port %s", port)
		logger.Info("Available endpoints:")
		logger.Info("  GET  /suppliers                        - Registered suppliers")
		logger.Info("  GET  /suppliers/{supplier}/categories  - Root categories")
		logger.Info("  GET  /suppliers/{supplier}/subcategories?name=|url= - Subcategories of a category")
		logger.Info("  GET  /suppliers/{supplier}/status      - Stored crawl status and recent runs")
		logger.Info("  POST /suppliers/{supplier}/scrape      - Start a crawl job")
		logger.Info("  POST /suppliers/{supplier}/reprocess   - Start a reprocess job")
		logger.Info("  GET  /jobs, /jobs/{id}, /jobs/{id}/output, POST /jobs/{id}/cancel")
		logger.Info("  GET  /health                           - Health check")

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("failed to serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Graceful shutdown start")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := jobs.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("Failed to stop jobs: %v", err)
		}
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
