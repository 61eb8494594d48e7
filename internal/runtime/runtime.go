// Package runtime assembles the service: telemetry, bus, job store, the
// synthesis pipeline, and the HTTP surface, with ordered shutdown.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hakivo/briefcast/internal/bus"
	"github.com/hakivo/briefcast/internal/config"
	"github.com/hakivo/briefcast/internal/jobstore"
	"github.com/hakivo/briefcast/internal/natsserver"
	"github.com/hakivo/briefcast/internal/observe"
	"github.com/hakivo/briefcast/internal/orchestrator"
	"github.com/hakivo/briefcast/internal/protocol"
	"github.com/hakivo/briefcast/internal/storage"
	"github.com/hakivo/briefcast/internal/synth"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"
)

type Runtime struct {
	cfg         config.Config
	logger      *slog.Logger
	httpServer  *http.Server
	metricsSrv  *http.Server
	busClient   *bus.Client
	tracerClose func(context.Context) error
	ready       atomic.Bool
	wg          sync.WaitGroup
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings the service up and blocks until ctx is canceled, then tears
// everything down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.tracerClose = shutdownTelemetry

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	embedded, err := natsserver.Start(r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to start embedded NATS: %w", err)
	}
	defer embedded.Shutdown()

	r.busClient, err = bus.Connect(ctx, r.cfg.Bus, r.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS: %w", err)
	}
	defer r.busClient.Close()

	store, err := jobstore.Open(ctx, r.cfg.Store, r.logger)
	if err != nil {
		return fmt.Errorf("failed to open job store: %w", err)
	}
	defer store.Close()

	objects, err := storage.NewNatsObjectStore(r.busClient.JetStream(), r.cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to create object store: %w", err)
	}

	client := synth.NewClient(r.newProvider(), r.cfg.Synthesis, metrics, r.logger)
	orch := orchestrator.New(store, client, objects, r.busClient,
		r.cfg.Synthesis, r.cfg.Storage.KeyPrefix, metrics, r.logger)

	sub, err := r.busClient.Subscribe(protocol.SubjectTrigger, func(_ *nats.Msg) {
		r.runPass(ctx, orch)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to trigger subject: %w", err)
	}
	defer sub.Unsubscribe()

	if r.cfg.Poller.Enabled {
		r.wg.Add(1)
		go r.pollLoop(ctx, orch)
	}

	if err := r.startHTTP(metricsHandler); err != nil {
		return err
	}

	r.ready.Store(true)
	r.logger.Info("runtime started",
		slog.String("addr", r.httpServer.Addr),
		slog.String("synthesis_mode", r.cfg.Synthesis.Mode))

	<-ctx.Done()
	r.ready.Store(false)
	r.logger.Info("runtime stopping")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
		r.logger.Error("http shutdown error", slog.String("error", err.Error()))
	}
	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(shutdownCtx); err != nil {
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

// newProvider selects the speech backend from configuration.
func (r *Runtime) newProvider() synth.Provider {
	if r.cfg.Synthesis.Mode == "http" {
		return synth.NewHTTPProvider(r.cfg.Synthesis)
	}
	return synth.NewMockProvider(
		r.cfg.Synthesis.SampleRate,
		r.cfg.Synthesis.Channels,
		r.cfg.Synthesis.BitDepth,
	)
}

// pollLoop periodically drains eligible jobs. Each pass handles a single job;
// the loop keeps passing while jobs complete and stops on empty queue or a
// failed job.
func (r *Runtime) pollLoop(ctx context.Context, orch *orchestrator.Orchestrator) {
	defer r.wg.Done()
	ticker := time.NewTicker(r.cfg.Poller.Interval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.runPass(ctx, orch)
		}
	}
}

func (r *Runtime) runPass(ctx context.Context, orch *orchestrator.Orchestrator) {
	for {
		outcome, err := orch.ProcessNext(ctx)
		if err != nil {
			r.logger.Error("pipeline pass failed", slog.String("error", err.Error()))
			return
		}
		if outcome != orchestrator.OutcomeCompleted {
			// A failed job ends the pass too; remaining jobs wait for the
			// next tick or trigger.
			return
		}
	}
}

func (r *Runtime) startHTTP(metricsHandler http.Handler) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", r.handleHealth)
	mux.HandleFunc("/readyz", r.handleReady)

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			r.logger.Error("http server failed", slog.String("error", err.Error()))
		}
	}()

	if metricsHandler != nil {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metricsHandler)
		r.metricsSrv = &http.Server{
			Addr:              r.cfg.Telemetry.PrometheusBind,
			Handler:           metricsMux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := r.metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.logger.Error("metrics server failed", slog.String("error", err.Error()))
			}
		}()
	}

	return nil
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.busClient.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}
