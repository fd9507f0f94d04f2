package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"iptv-bridge/internal/handlers"
	"iptv-bridge/internal/hwaccel"
	"iptv-bridge/internal/logging"
	"iptv-bridge/internal/metrics"
	"iptv-bridge/internal/middleware"
	"iptv-bridge/internal/probe"
	"iptv-bridge/internal/session"
	"iptv-bridge/internal/settings"
	"iptv-bridge/internal/startup"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	// Verify the encoding binaries
	startup.LogEncoderInit(config.FFmpegPath, config.FFprobePath)

	// Initialize the settings store
	storeStart := time.Now()
	store, err := settings.New(context.Background(), config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize settings store: %v", err)
	}
	defer store.Close()
	startup.LogDatabaseInit(time.Since(storeStart))

	// Detect hardware encoders up front so the first session does not pay
	// for detection.
	detector := hwaccel.NewDetector(config.FFmpegPath)
	detector.GetCapabilities()

	// Session registry with recovery of sessions left by a previous process
	registry := session.NewRegistry(config.TranscodeDir, config.MaxSessions)
	recoveryStart := time.Now()
	recovered, err := registry.Recover()
	if err != nil {
		startup.LogFatal("Session recovery failed: %v", err)
	}
	startup.LogRecoveryResult(recovered, time.Since(recoveryStart))

	// Reap idle sessions periodically
	reaper := session.NewReaper(registry, config.ReapInterval, config.SessionIdleTimeout)
	reaper.Start()

	// Initialize handlers
	prober := probe.New(config.FFprobePath)
	h := handlers.New(registry, prober, detector, store, config)

	// Setup router
	router := mux.NewRouter()
	h.RegisterRoutes(router)
	startup.LogHTTPRoutes(router)

	// Apply logging middleware
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogSegmentRequests = config.LogSegmentRequests
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Logger(loggingConfig)(router)

	// Apply metrics middleware and start the metrics server
	var metricsSrv *http.Server
	var collector *metrics.CacheCollector
	if config.MetricsEnabled {
		handler = middleware.Metrics(middleware.DefaultMetricsConfig())(handler)
		metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)

		collector = metrics.NewCacheCollector(config.TranscodeDir, time.Minute)
		collector.Start()

		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.Handler())
		metricsSrv = &http.Server{
			Addr:         ":" + config.MetricsPort,
			Handler:      metricsMux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != http.ErrServerClosed {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	// Create server. WriteTimeout stays 0: playlist waits and long segment
	// downloads must not be cut off mid-response.
	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Start graceful shutdown handler
	go handleShutdown(srv, metricsSrv, reaper, registry, collector)

	// Start server
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsPort:     config.MetricsPort,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}
}

func handleShutdown(srv, metricsSrv *http.Server, reaper *session.Reaper, registry *session.Registry, collector *metrics.CacheCollector) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Stopping reaper")
	reaper.Stop()
	startup.LogShutdownStepComplete("Reaper stopped")

	startup.LogShutdownStep("Stopping sessions")
	registry.Shutdown()
	startup.LogShutdownStepComplete("Sessions stopped")

	if collector != nil {
		startup.LogShutdownStep("Stopping cache collector")
		collector.Stop()
		startup.LogShutdownStepComplete("Cache collector stopped")
	}

	if metricsSrv != nil {
		startup.LogShutdownStep("Shutting down metrics server")
		if err := metricsSrv.Shutdown(ctx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		} else {
			startup.LogShutdownStepComplete("Metrics server stopped")
		}
	}

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownComplete()
}
