package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"BarPull/pkg/logger"
)

// HTTPServer is the API surface the app starts and stops.
type HTTPServer interface {
	Start() error
	Stop(ctx context.Context) error
}

// Worker is a background job runner.
type Worker interface {
	Start() error
	Stop(ctx context.Context) error
}

// Trigger fires periodic work.
type Trigger interface {
	Start()
	Stop()
}

// App encapsulates the entire application lifecycle.
type App struct {
	logger          *logger.Logger
	http            HTTPServer
	worker          Worker
	trigger         Trigger
	shutdownTimeout time.Duration
}

// New creates an App. worker and trigger may be nil.
func New(log *logger.Logger, http HTTPServer, worker Worker, trigger Trigger, shutdownTimeout time.Duration) *App {
	if log == nil {
		log = logger.Nop()
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 15 * time.Second
	}
	return &App{
		logger:          log,
		http:            http,
		worker:          worker,
		trigger:         trigger,
		shutdownTimeout: shutdownTimeout,
	}
}

// Run starts the application and blocks until ctx ends or the process is
// interrupted.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.start(); err != nil {
		a.shutdown()
		return err
	}

	<-ctx.Done()
	a.logger.Info("shutdown signal received")
	a.shutdown()
	return nil
}

func (a *App) start() error {
	if a.worker != nil {
		if err := a.worker.Start(); err != nil {
			return fmt.Errorf("start workers: %w", err)
		}
	}
	if a.http != nil {
		if err := a.http.Start(); err != nil {
			return fmt.Errorf("start http: %w", err)
		}
	}
	if a.trigger != nil {
		a.trigger.Start()
	}
	a.logger.Info("application started")
	return nil
}

// shutdown stops producers of work before consumers: cron first, then the
// workers, then HTTP.
func (a *App) shutdown() {
	a.logger.Info("shutting down...")

	if a.trigger != nil {
		a.trigger.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
	defer cancel()

	if a.worker != nil {
		if err := a.worker.Stop(ctx); err != nil {
			a.logger.Warn("worker stop error", logger.Error(err))
		}
	}
	if a.http != nil {
		if err := a.http.Stop(ctx); err != nil {
			a.logger.Error("http shutdown error", logger.Error(err))
		}
	}

	a.logger.Info("shutdown complete")
}
