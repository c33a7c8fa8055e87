package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/spf13/cobra"

	"production-tracker-backend/internal/api"
	"production-tracker-backend/internal/db"
	"production-tracker-backend/internal/notification"
	_ "production-tracker-backend/internal/project"
	"production-tracker-backend/internal/session"
	"production-tracker-backend/internal/store"
	"production-tracker-backend/internal/sweeper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync()

	gormDB, err := db.Init(&cfg.Database, log)
	if err != nil {
		return err
	}
	log.Info("database initialized", "driver", cfg.Database.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		webpushOptions *webpush.Options
		trackerOpts    []session.Option
	)
	if cfg.Push.Enabled() {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, gormDB, webpushOptions, log)
		pool.Start(ctx)
		trackerOpts = append(trackerOpts, session.WithNotifier(pool))
		log.Info("push alerts enabled", "workers", cfg.WorkerPool.Size)
	} else {
		log.Warn("VAPID keys are not configured; session timeout alerts are disabled")
	}

	tracker := session.NewTracker(gormDB, log, trackerOpts...)
	if cfg.Sweeper.Enabled {
		go sweeper.NewService(cfg.Sweeper.Interval, tracker, log).Run(ctx)
	}
	handler := api.NewHandler(store.NewGormStore(gormDB), tracker, cfg.Server, webpushOptions, log)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewRouter(handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
	case <-ctx.Done():
		log.Info("shutdown signal received, stopping services")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP server shutdown: %w", err)
	}
	log.Info("server gracefully stopped")
	return nil
}
