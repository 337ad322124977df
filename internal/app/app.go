package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"plant-monitor/internal/api"
	"plant-monitor/internal/config"
	"plant-monitor/internal/db"
	"plant-monitor/internal/fleet"
	"plant-monitor/internal/metrics"
	"plant-monitor/internal/monitor"
	"plant-monitor/internal/realtime"
	"plant-monitor/internal/service"
	"plant-monitor/internal/status"
	"plant-monitor/internal/telemetry"
)

const shutdownTimeout = 30 * time.Second

var errNoRefresh = errors.New("no telemetry snapshot applied yet")

// Run wires the working set to every configured telemetry source and serves the
// dashboard until SIGINT or SIGTERM.
func Run(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := metrics.New()
	f := fleet.New(logger)
	f.OnChange(m.ObserveFleet(f))
	normalizer := telemetry.NewNormalizer(status.NewClassifier(cfg.Thresholds), logger, m)

	hub := realtime.NewHub(logger)
	rtSvc := service.NewRealtimeService(f, hub, logger)
	rtSvc.Start()

	var workers sync.WaitGroup
	start := func(name string, run func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			run(ctx)
			logger.Debugw("worker exited", "worker", name)
		}()
	}

	// --- Status events ---
	var publisher *service.StatusPublisher
	if cfg.KafkaStatusTopic != "" && len(cfg.KafkaBrokers) > 0 {
		tlsCfg, err := cfg.CreateKafkaTLSConfig()
		if err != nil {
			return fmt.Errorf("kafka TLS: %w", err)
		}
		publisher = service.NewStatusPublisher(service.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaStatusTopic, tlsCfg), logger)
		f.OnChange(publisher.Listener())
		publisher.Start(ctx)
		defer publisher.Shutdown()
	}

	// --- Status journal ---
	var checks []monitor.Check
	if cfg.JournalEnabled() {
		dbMgr, err := db.NewDBManager(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("create DBManager: %w", err)
		}
		defer dbMgr.Shutdown()
		if err := db.EnsureSchema(ctx, dbMgr); err != nil {
			return fmt.Errorf("ensure journal schema: %w", err)
		}
		dbMgr.StartAutoReconnect(ctx)

		journal := db.NewJournal(dbMgr, logger)
		f.OnChange(journal.Listener())
		journal.Start(ctx)
		journal.Stats.StartSummary(ctx, 30*time.Minute, logger)
		defer journal.Wait()

		checks = append(checks, monitor.Check{Name: "database", Probe: dbMgr.Ping})
	}

	// --- Telemetry sources ---
	sources := 0
	if cfg.TelemetryURL != "" {
		retry := telemetry.DefaultRetryPolicy(cfg.FetchRetries, cfg.RetryBackoff)
		poller := &telemetry.Poller{
			Source:   "http",
			Fetcher:  telemetry.NewHTTPSource(cfg.TelemetryURL, cfg.FetchTimeout, retry, normalizer, logger),
			Fleet:    f,
			Interval: cfg.PollInterval,
			Metrics:  m,
			Logger:   logger,
		}
		start("http-poller", poller.Run)
		sources++
	}
	if cfg.KafkaEnabled() {
		tlsCfg, err := cfg.CreateKafkaTLSConfig()
		if err != nil {
			return fmt.Errorf("kafka TLS: %w", err)
		}
		reader := telemetry.NewKafkaReader(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, tlsCfg)
		defer reader.Close()
		start("kafka", telemetry.NewKafkaSource(reader, f, normalizer, m, logger).Run)
		sources++
	}
	if cfg.MQTTBroker != "" {
		start("mqtt", telemetry.NewMQTTSource(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic, f, normalizer, m, logger).Run)
		sources++
	}
	if cfg.TelemetryWSURL != "" {
		start("stream", telemetry.NewStreamSource(cfg.TelemetryWSURL, f, normalizer, m, logger).Run)
		sources++
	}
	if sources == 0 {
		logger.Warn("no telemetry source configured, dashboard will stay empty")
	}

	checks = append(checks, monitor.Check{Name: "telemetry", Probe: func(context.Context) error {
		if sources > 0 && f.View().LastRefresh.IsZero() {
			return errNoRefresh
		}
		return nil
	}})

	// --- HTTP ---
	srv := api.NewServer(f, m, logger)
	srv.WebSocket = realtime.ServeWS(hub, rtSvc.Snapshot)
	srv.Checks = checks

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Infow("HTTP server listening", "addr", cfg.HTTPAddr, "sources", sources)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// --- Graceful shutdown ---
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Infow("signal received, shutting down", "signal", sig)
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	cancel()

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warnw("HTTP server shutdown incomplete", "error", err)
	}

	done := make(chan struct{})
	go func() {
		workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("telemetry sources stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn("timeout waiting for telemetry sources to stop")
	}

	logger.Info("plant monitor shutdown completed")
	return runErr
}
