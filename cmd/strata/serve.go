package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"strata/internal/client"
	"strata/internal/handler"
	"strata/internal/hub"
	"strata/internal/loader"
	"strata/internal/service"
	"strata/internal/watcher"
	"strata/internal/worker"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server
const shutdownTimeout = 10 * time.Second

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and background workers",
	Long: `Run the HTTP server with the reconciler and the lock cleaner.

When schema.file is configured it is applied at startup, and re-applied
on every change when schema.watch is set.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides server.addr)")
}

func serve(ctx context.Context) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	log := a.logger
	if serveAddr != "" {
		a.cfg.Server.Addr = serveAddr
	}
	log.Info().Msg(a.cfg.Summary())

	session, err := a.session(ctx)
	if err != nil {
		return err
	}

	// Schema file
	if file := a.cfg.Schema.File; file != "" {
		l := loader.New(a.engine, log)
		if _, err := l.ApplySchemaFile(ctx, session, file); err != nil {
			return err
		}
		if a.cfg.Schema.Watch {
			w := watcher.New(file, func(ctx context.Context) error {
				_, err := l.ApplySchemaFile(ctx, session, file)
				return err
			}, log)
			go func() {
				if err := w.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
					log.Error().Err(err).Msg("schema watcher stopped")
				}
			}()
		}
	}

	// Background workers
	registry := worker.NewRegistry(log)
	reconciler := service.NewReconciler(a.engine, a.cfg.Reconciler.Interval.Duration(), log)
	if err := registry.Register(reconciler, worker.Config{Enabled: a.cfg.Reconciler.IsEnabled()}); err != nil {
		return err
	}
	cleaner := service.NewLockCleaner(a.engine, a.cfg.Locks.CleanupInterval.Duration(), log)
	if err := registry.Register(cleaner, worker.Config{Enabled: true}); err != nil {
		return err
	}
	if err := registry.Start(ctx); err != nil {
		return err
	}

	// Event stream
	events := hub.New(log)
	go events.Run(ctx, a.engine.EventBus())

	// HTTP
	h := handler.New(client.New(a.engine, client.Logging(log)), a.engine, log)
	h.SetWorkers(registry)
	h.SetEventStream(events)

	server := &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      h.Router(),
		ReadTimeout:  a.cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: a.cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("server listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var listenErr error
	select {
	case <-ctx.Done():
	case listenErr = <-serverErr:
		if listenErr != nil {
			log.Error().Err(listenErr).Msg("server error")
		}
	}

	log.Info().Msg("shutting down server")
	if err := registry.Stop(); err != nil {
		log.Warn().Err(err).Msg("worker registry shutdown error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown error")
	}

	log.Info().Msg("server stopped")
	return listenErr
}
