package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/sirupsen/logrus"

	"shopify-catalog-scraper/internal/config"
	"shopify-catalog-scraper/internal/store"
	"shopify-catalog-scraper/internal/types"
	"shopify-catalog-scraper/orchestrator"
	"shopify-catalog-scraper/utils"
)

// app is what every command works with
type app struct {
	config *types.Config
	logger *logrus.Logger
	store  *store.Store
	orch   *orchestrator.Orchestrator
}

func newApp() (*app, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}
	logger := config.NewLogger(os.Getenv("LOG_LEVEL"), verbose)

	st, err := store.Open(cfg.DatabasePath, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open status store: %w", err)
	}

	registry := orchestrator.NewRegistry(cfg, logger)
	return &app{
		config: cfg,
		logger: logger,
		store:  st,
		orch:   orchestrator.New(registry, st, cfg, logger, utils.NewBrowserFactory(cfg, logger)),
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warnf("Failed to close status store: %v", err)
	}
}

// callbacks reports progress at debug level; log lines already reach the
// logger through the orchestrator.
func (a *app) callbacks(stopping func() bool) types.Callbacks {
	return types.Callbacks{
		Progress: func(message string, current, total int) {
			a.logger.Debugf("[%d/%d] %s", current, total, message)
		},
		Cancel: stopping,
	}
}

// interrupts returns the context of a long operation and its cancel check.
// The first interrupt asks the crawl to stop after the current product so
// the import file still gets written, a second one aborts.
func (a *app) interrupts() (context.Context, func() bool, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	var stopping atomic.Bool

	sigs := make(chan os.Signal, 2)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigs:
				if stopping.Swap(true) {
					a.logger.Warn("Aborting")
					cancel()
					return
				}
				a.logger.Warn("Stopping after the current product, interrupt again to abort")
			}
		}
	}()

	return ctx, stopping.Load, func() {
		signal.Stop(sigs)
		cancel()
	}
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
