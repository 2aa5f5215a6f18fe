package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-accent/internal/accent"
	"github.com/loqalabs/loqa-accent/internal/analyzer"
	"github.com/loqalabs/loqa-accent/internal/bus"
	"github.com/loqalabs/loqa-accent/internal/config"
	"github.com/loqalabs/loqa-accent/internal/eventstore"
	"github.com/loqalabs/loqa-accent/internal/natsserver"
	"github.com/loqalabs/loqa-accent/internal/peers"
)

const pruneInterval = time.Hour

type Runtime struct {
	cfg            config.Config
	logger         *slog.Logger
	httpServer     *http.Server
	telemetryClose func(context.Context) error
	store          *eventstore.Store
	natsServer     *natsserver.EmbeddedServer
	bus            *bus.Client
	analyzer       *analyzer.Service
	peers          *peers.Registry
	api            *api
	ready          atomic.Bool
	wg             sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings up every component and blocks until ctx is cancelled.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(ctx, r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetryClose = shutdownTelemetry

	if err := r.startComponents(ctx); err != nil {
		return errors.Join(err, r.shutdown())
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r.routes(metricsHandler),
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slogError(err))
			cancel()
		}
	}()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.pruneLoop(ctx)
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	<-ctx.Done()
	r.logger.Info("runtime stopping")
	r.ready.Store(false)
	return r.shutdown()
}

func (r *Runtime) startComponents(ctx context.Context) error {
	store, err := eventstore.Open(ctx, r.cfg.EventStore, r.logger.With(slog.String("component", "eventstore")))
	if err != nil {
		return fmt.Errorf("open analysis store: %w", err)
	}
	r.store = store

	pipe, err := BuildPipeline(r.cfg, store, r.logger)
	if err != nil {
		return err
	}
	r.api = &api{runner: pipe, store: store, logger: r.logger.With(slog.String("component", "api"))}

	if !r.cfg.Bus.Enabled {
		return nil
	}
	srv, err := natsserver.Start(r.cfg.Bus, r.logger.With(slog.String("component", "nats")))
	if err != nil {
		return err
	}
	r.natsServer = srv

	busCfg := r.cfg.Bus
	if srv != nil {
		busCfg.Servers = []string{srv.ClientURL()}
	}
	client, err := bus.Connect(ctx, r.cfg.RuntimeName, busCfg, r.logger.With(slog.String("component", "bus")))
	if err != nil {
		return err
	}
	r.bus = client

	r.analyzer = analyzer.NewService(ctx, r.cfg.Analyzer, client, pipe, r.logger)
	if err := r.analyzer.Start(); err != nil {
		return fmt.Errorf("start analyzer: %w", err)
	}
	if !r.cfg.Analyzer.Enabled {
		return nil
	}

	profile := peers.Profile{
		Queue:          r.cfg.Analyzer.Queue,
		MaxConcurrency: r.cfg.Analyzer.MaxConcurrency,
		STTMode:        r.cfg.STT.Mode,
	}
	for _, c := range accent.Categories {
		profile.Categories = append(profile.Categories, c.String())
	}
	registry, err := peers.NewRegistry(ctx, r.cfg.Analyzer, profile, client, r.logger)
	if err != nil {
		return fmt.Errorf("start peer registry: %w", err)
	}
	r.peers = registry
	r.api.peers = registry
	return nil
}

func (r *Runtime) routes(metrics http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)
	if metrics != nil {
		mux.Handle("/metrics", metrics)
	}
	if r.api != nil {
		r.api.register(mux)
	}
	return mux
}

func (r *Runtime) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.store.Prune(ctx); err != nil {
				r.logger.Warn("analysis store prune failed", slogError(err))
			}
		}
	}
}

// shutdown stops components in reverse start order. Safe to call after a
// partial start.
func (r *Runtime) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if r.httpServer != nil {
		if err := r.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	r.wg.Wait()

	if r.peers != nil {
		r.peers.Close()
	}
	if r.analyzer != nil {
		r.analyzer.Close()
	}
	r.bus.Close()
	r.natsServer.Shutdown()
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close analysis store: %w", err))
		}
	}
	if r.telemetryClose != nil {
		if err := r.telemetryClose(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		r.logger.Error("runtime shutdown error", slogError(err))
	}
	return err
}

func (r *Runtime) healthy() bool {
	if r.cfg.Bus.Enabled && !r.bus.Healthy() {
		return false
	}
	if r.peers != nil && !r.peers.Healthy() {
		return false
	}
	return r.analyzer == nil || r.analyzer.Healthy()
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
