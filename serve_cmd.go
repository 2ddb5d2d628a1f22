package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/readaloud/readaloud/tts"
	"github.com/readaloud/readaloud/tts/cache"
	"github.com/readaloud/readaloud/tts/engines"
	"github.com/readaloud/readaloud/tts/engines/command"
	"github.com/readaloud/readaloud/tts/engines/mock"
	"github.com/readaloud/readaloud/tts/scheduler"
	"github.com/readaloud/readaloud/tts/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the synthesis server",
	Long:  "\nRun the synthesis server: segments incoming text, schedules generation and streams audio back sentence by sentence.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := tts.LoadConfig()
		if err != nil {
			return err
		}

		engine, err := newEngine(cfg)
		if err != nil {
			return err
		}
		defer func() { _ = engine.Shutdown() }()

		store, err := cache.New(cache.Config{
			Dir:      cfg.ResolveCacheDir(),
			MaxUnits: cfg.CacheMaxUnits,
			MaxBytes: cfg.CacheMaxBytes,
		})
		if err != nil {
			return fmt.Errorf("failed to open cache: %w", err)
		}
		defer func() { _ = store.Close() }()

		sched := scheduler.New(engine, store, scheduler.Config{
			Workers:    cfg.Workers,
			JobTimeout: cfg.JobTimeout,
		})
		defer func() { _ = sched.Close() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := server.New(cfg, engine, store, sched)
		if err := srv.ListenAndServe(ctx); err != nil {
			return err
		}
		log.Info("server stopped")
		return nil
	},
}

// newEngine builds the configured synthesis engine.
func newEngine(cfg tts.Config) (engines.Engine, error) {
	switch cfg.Engine {
	case "mock":
		return mock.New(cfg.Mock), nil
	case "command":
		return command.New(cfg.Command)
	default:
		return nil, fmt.Errorf("unknown engine %q (use mock or command)", cfg.Engine)
	}
}
