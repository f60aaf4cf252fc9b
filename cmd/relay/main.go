package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pttrelay/internal/core/services"
	httphandlers "pttrelay/internal/handlers/http"
	"pttrelay/internal/infrastructure/middleware"
	"pttrelay/internal/infrastructure/monitoring"
	repositories "pttrelay/internal/infrastructure/repositories"
	signalserver "pttrelay/internal/infrastructure/signal"
	"pttrelay/pkg/blobstore"
	"pttrelay/pkg/config"
	"pttrelay/pkg/logger"
	"pttrelay/pkg/tracing"
	"pttrelay/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// loadConfig reads the first config file found. A present but invalid file
// is an error, no file at all means defaults plus environment overrides.
func loadConfig() (*config.Config, error) {
	configPaths := []string{
		os.Getenv("PTTRELAY_CONFIG"),
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/pttrelay/config.yaml",
		"config.yaml",
	}

	for _, path := range configPaths {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		return config.Load(path)
	}
	return config.Load("")
}

func main() {
	startTime := time.Now()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "pttrelay: %v\n", err)
		os.Exit(1)
	}

	zapLogger := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Repositories
	repoFactory, err := repositories.NewRepositoryFactory(ctx, cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	channelRepo, err := repoFactory.CreateChannelRepository(ctx)
	if err != nil {
		log.Fatalw("failed to create channel repository", "error", err)
	}
	audioIndex := repoFactory.CreateAudioIndex()

	storage, err := blobstore.NewFileStorage(cfg.Media.Dir)
	if err != nil {
		log.Fatalw("failed to open media storage", "dir", cfg.Media.Dir, "error", err)
	}
	if err := storage.Lock(); err != nil {
		log.Fatalw("media directory is in use", "dir", cfg.Media.Dir, "error", err)
	}
	defer storage.Close()

	// Services
	var metrics *monitoring.PrometheusCollector
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector(nil)
	}
	relayMetrics := relayMetricsOrNop(metrics)

	scheduler := services.NewTimerScheduler()
	defer scheduler.Stop()

	timings := services.RelayTimings{
		JoinRosterDelay:        cfg.Relay.JoinRosterDelay,
		PTTReleaseResendDelay:  cfg.Relay.PTTReleaseResendDelay,
		AudioAfterReleaseDelay: cfg.Relay.AudioAfterReleaseDelay,
	}

	registry := services.NewConnectionRegistry(utils.Now, relayMetrics, log.Named("registry"))
	broadcaster := services.NewBroadcaster(registry, channelRepo, scheduler, timings, utils.Now, relayMetrics, log.Named("broadcaster"))
	roster := services.NewRosterService(registry, channelRepo, broadcaster, scheduler, timings, relayMetrics, log.Named("roster"))

	media := services.NewMediaService(storage, audioIndex, services.MediaConfig{
		MaxUploadBytes:    cfg.Media.MaxUploadBytes,
		TTL:               cfg.Media.TTL,
		SweepInterval:     cfg.Media.SweepInterval,
		PublicBaseURL:     cfg.Media.PublicBaseURL,
		AllowedExtensions: cfg.Media.AllowedExtensions,
		DefaultExtension:  cfg.Media.DefaultExtension,
	}, utils.Now, relayMetrics, log.Named("media"))

	liveness := services.NewLivenessMonitor(registry, roster, cfg.Liveness.Threshold, cfg.Liveness.CheckInterval, utils.Now, log.Named("liveness"))

	go media.Run(ctx)
	go liveness.Run(ctx)

	wsServer := signalserver.NewWebSocketServer(registry, roster, broadcaster, media, signalserver.OptionsFromConfig(cfg), log.Named("signal"))

	// Health
	health := monitoring.NewHealthChecker()
	health.AddStorageCheck(storage, cfg.Monitoring.HealthCheckInterval, cfg.Monitoring.HealthCheckTimeout)
	if client := repoFactory.RedisClient(); client != nil {
		health.AddRedisCheck(client, cfg.Monitoring.HealthCheckInterval, cfg.Monitoring.HealthCheckTimeout)
	}
	health.StartBackgroundChecks(ctx)

	// HTTP
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(
		middleware.RecoveryMiddleware(log),
		middleware.TracingMiddleware(),
		middleware.RequestLoggerMiddleware(logger.NewContextLogger(zapLogger)),
		middleware.NewHTTPRateLimitMiddleware(cfg),
		middleware.ErrorHandlerMiddleware(log),
	)

	router.GET(cfg.Signal.Path, gin.WrapF(wsServer.HandleWebSocket))
	httphandlers.NewMediaHandler(media, cfg.Media.MaxUploadBytes, cfg.Media.FormField, log.Named("http")).SetupRoutes(router)
	httphandlers.NewStatusHandler(registry, roster, media, utils.Now).SetupRoutes(router)

	router.GET("/health", health.LivenessHandler)
	router.GET("/ready", health.ReadinessHandler)

	if metrics != nil {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// WriteTimeout stays zero: websocket connections and audio downloads
	// outlive any fixed write deadline.
	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting PTT relay",
			"address", cfg.Server.Address,
			"websocket_path", cfg.Signal.Path,
			"media_dir", cfg.Media.Dir,
			"media_ttl", cfg.Media.TTL,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Errorw("server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("received shutdown signal", "signal", sig)
	}

	log.Info("shutting down PTT relay...")
	stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("error force closing server", "error", closeErr)
		}
	}

	if err := wsServer.Shutdown(shutdownCtx); err != nil {
		log.Warnw("websocket connections did not close in time", "error", err)
	}

	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Warnw("failed to flush traces", "error", err)
	}

	log.Infow("PTT relay stopped", "uptime", time.Since(startTime).Round(time.Second))
}
