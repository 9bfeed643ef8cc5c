package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"capture-orchestrator/internal/allowlist"
	"capture-orchestrator/internal/capture"
	"capture-orchestrator/internal/capture/sim"
	"capture-orchestrator/internal/control"
	"capture-orchestrator/internal/platform/config"
	"capture-orchestrator/internal/platform/logger"
	"capture-orchestrator/internal/platform/metrics"
	"capture-orchestrator/internal/recovery"
	"capture-orchestrator/internal/segment"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("METRICS_PORT", "9090")
	segmentDir := config.GetEnv("SEGMENT_DIR", "segments")
	rotateInterval := config.GetEnvDuration("SEGMENT_ROTATE_INTERVAL", segment.DefaultRotateInterval)
	recoveryDelay := config.GetEnvDuration("RECOVERY_TIMEOUT", 5*time.Second)
	recoveryAttempts := config.GetEnvInt("RECOVERY_MAX_ATTEMPTS", 3)
	allowlistFile := config.GetEnv("ALLOWLIST_FILE", "")
	simDisplays := config.GetEnvInt("SIM_DISPLAYS", 2)
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")

	log := logger.New(logLevel, logFormat)
	met := metrics.New()

	var allow capture.Allowlist
	if allowlistFile != "" {
		provider, err := allowlist.NewFileProvider(allowlistFile, log)
		if err != nil {
			log.Error("allowlist load failed", "path", allowlistFile, "error", err)
			os.Exit(1)
		}
		defer provider.Close()
		allow = provider
	}

	notifier := segment.NewChannelNotifier(16)
	segments := segment.NewManager(segment.Config{
		Dir:            segmentDir,
		RotateInterval: rotateInterval,
	}, notifier, log, met)

	// Native capture backends plug in here; until then the simulator keeps
	// the daemon runnable end to end.
	source := sim.NewSource(simDisplays)

	policy := recovery.NewBackoffManager(recovery.Config{
		MaxAttempts: recoveryAttempts,
		RetryDelay:  recoveryDelay,
	})
	orc := capture.New(source, segments, log, capture.Options{
		Allowlist: allow,
		Policy:    policy,
		Metrics:   met,
	})
	orc.OnDegradation(func(failed []capture.DisplayID) {
		for _, id := range failed {
			log.Warn("display permanently unavailable", "display", string(id))
		}
	})

	if err := segments.Start(); err != nil {
		log.Error("segment manager start failed", "error", err)
		os.Exit(1)
	}
	if err := orc.Start(context.Background()); err != nil {
		log.Error("recording start failed", "error", err)
		os.Exit(1)
	}

	// Downstream indexing boundary: consume finalized segments.
	go func() {
		for seg := range notifier.Segments() {
			log.Info("segment available for indexing",
				slog.String("segment", seg.ID),
				slog.String("path", seg.Path),
				slog.Int64("size", seg.Size))
		}
	}()

	h := control.NewHandler(orc, segments, log)
	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() {
			met.SetActiveSessions(len(orc.ActiveDisplays()))
		}).ServeHTTP(w, req)
	})
	r.Get("/status", h.Status)
	r.Get("/displays", h.Displays)
	r.Post("/pause", h.Pause)
	r.Post("/resume", h.Resume)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("control server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("capture daemon started",
		"port", port,
		"segment_dir", segmentDir,
		"rotate_interval", rotateInterval.String(),
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := orc.Stop(ctx); err != nil {
		log.Error("recording stop error", "error", err)
	}
	orc.Close()
	if err := segments.Stop(); err != nil {
		log.Error("segment manager stop error", "error", err)
	}
	segments.CleanupPartials()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("control server shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("capture daemon stopped")
}
