package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/newslett/ttsd/internal/bus"
	"github.com/newslett/ttsd/internal/config"
	"github.com/newslett/ttsd/internal/journal"
	"github.com/newslett/ttsd/internal/natsserver"
	"github.com/newslett/ttsd/internal/pipeline"
)

type Runtime struct {
	cfg    config.Config
	logger *slog.Logger

	httpServer    *http.Server
	metricsServer *http.Server
	tracerClose   func(context.Context) error
	wg            sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	store, err := journal.Open(ctx, r.cfg.Journal, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer store.Close()

	// A failed pipeline init is not fatal: the service stays up and
	// reports model_loaded=false while every generate call gets a 503.
	holder := pipeline.NewHolder(r.cfg.Pipeline, r.logger)

	var pub publisher
	if r.cfg.Bus.Enabled {
		embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
		if err != nil {
			r.logger.Warn("embedded NATS server unavailable", slog.String("error", err.Error()))
		} else {
			defer embedded.Shutdown()
		}

		client, err := bus.Connect(ctx, r.cfg.Bus, r.logger)
		if err != nil {
			r.logger.Warn("bus unavailable, continuing without it", slog.String("error", err.Error()))
		} else {
			defer client.Close()
			pub = client

			announcer := bus.NewAnnouncer(ctx, r.cfg, client, holder.Ready, r.logger)
			defer announcer.Close()
		}
	}

	api := NewAPI(r.cfg, holder, store, pub, r.logger)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           api.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
			cancel()
		}
	}()

	if metricsHandler != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricsHandler)
		r.metricsServer = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	r.logger.Info("runtime started",
		slog.String("addr", addr),
		slog.Bool("model_loaded", holder.Ready()))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if r.metricsServer != nil {
		if err := r.metricsServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("metrics shutdown error", slog.String("error", err.Error()))
		}
	}
	r.wg.Wait()

	if r.tracerClose != nil {
		if err := r.tracerClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slog.String("error", err.Error()))
		}
	}

	return nil
}
