package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"video-clipper/internal/database"
	"video-clipper/internal/filesystem"
	"video-clipper/internal/handlers"
	"video-clipper/internal/janitor"
	"video-clipper/internal/logging"
	"video-clipper/internal/memory"
	"video-clipper/internal/metrics"
	"video-clipper/internal/middleware"
	"video-clipper/internal/notify"
	"video-clipper/internal/pipeline"
	"video-clipper/internal/startup"
	"video-clipper/internal/storage"
	"video-clipper/internal/transcoder"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	startTime := time.Now()

	// Set GOMEMLIMIT before anything allocates; streamed clips are
	// buffered in process memory
	memory.ConfigureFromEnv()

	// Load configuration
	config, err := startup.LoadConfig()
	if err != nil {
		startup.LogFatal("Configuration error: %v", err)
	}

	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"work":     config.WorkDir,
		"database": config.DatabaseDir,
	}))

	// Initialize job ledger
	dbStart := time.Now()
	db, err := database.New(context.Background(), config.DatabasePath)
	if err != nil {
		startup.LogFatal("Failed to initialize job ledger: %v", err)
	}
	defer db.Close()
	startup.LogDatabaseInit(time.Since(dbStart))

	// Resolve the transcode engine executables once at startup
	ffmpegPath, err := transcoder.ResolvePath(config.FFmpegPath, "ffmpeg")
	if err != nil {
		startup.LogFatal("Failed to locate ffmpeg: %v", err)
	}
	ffprobePath, err := transcoder.ResolvePath(config.FFprobePath, "ffprobe")
	if err != nil {
		startup.LogFatal("Failed to locate ffprobe: %v", err)
	}
	engine := transcoder.New(ffmpegPath, ffprobePath)
	startup.LogEngineInit(ffmpegPath, ffprobePath)

	// Initialize object storage
	store, err := storage.New(storage.Config{
		Endpoint:      config.StorageEndpoint,
		AccessKey:     config.StorageAccessKey,
		SecretKey:     config.StorageSecretKey,
		Bucket:        config.StorageBucket,
		UseSSL:        config.StorageUseSSL,
		PublicBaseURL: config.StoragePublicURL,
	})
	if err != nil {
		startup.LogFatal("Failed to initialize object storage: %v", err)
	}

	bucketCtx, bucketCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := store.EnsureBucket(bucketCtx); err != nil {
		bucketCancel()
		startup.LogFatal("Failed to ensure storage bucket: %v", err)
	}
	bucketCancel()
	startup.LogStorageInit(config.StorageEndpoint, config.StorageBucket)

	// Completion notifier (disabled when no callback URL is set)
	notifier := notify.New(notify.Config{
		CallbackURL: config.CallbackURL,
		Token:       config.CallbackToken,
	})

	// Clip pipeline
	coordinator := pipeline.New(pipeline.Config{
		Engine:        engine,
		Store:         store,
		Notifier:      notifier,
		Ledger:        db,
		Mode:          config.PipelineMode,
		WorkDir:       config.WorkDir,
		JobTimeout:    config.JobTimeout,
		MaxConcurrent: config.MaxConcurrentJobs,
	})

	// Work directory janitor: clears staging files orphaned by crashes.
	// Orphans must outlive the job timeout before they are swept.
	sweeper := janitor.New(config.WorkDir, janitor.DefaultSweepInterval, 2*config.JobTimeout)
	sweeper.Start()

	// Pre-populate metric label combinations
	metrics.InitializeMetrics()

	// Initialize handlers
	h := handlers.New(coordinator, db)

	// Setup router
	router := setupRouter(h, config.MetricsEnabled)

	// Log routes dynamically
	startup.LogHTTPRoutes(router, config.LogHealthChecks)

	// Apply metrics middleware
	meteredHandler := middleware.Metrics(middleware.DefaultMetricsConfig())(router)

	// Apply logging middleware
	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogHealthChecks = config.LogHealthChecks
	handler := middleware.Logger(loggingConfig)(meteredHandler)

	// Create server. Write timeout is unset because a clip job holds
	// the response open for its full processing time.
	srv := &http.Server{
		Addr:         ":" + config.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	// Start graceful shutdown handler
	go handleShutdown(srv, engine, sweeper)

	// Start server
	startup.LogServerStarted(startup.ServerConfig{
		Port:            config.Port,
		MetricsEnabled:  config.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		startup.LogFatal("Server error: %v", err)
	}
}

func setupRouter(h *handlers.Handlers, metricsEnabled bool) *mux.Router {
	r := mux.NewRouter()

	// Health check and version routes
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")
	r.HandleFunc("/healthz", h.HealthCheck).Methods("GET")
	r.HandleFunc("/livez", h.LivenessCheck).Methods("GET", "HEAD")
	r.HandleFunc("/readyz", h.ReadinessCheck).Methods("GET")
	r.HandleFunc("/version", h.GetVersion).Methods("GET")

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Clip production
	r.HandleFunc("/clip", h.CreateClip).Methods("POST")

	// Job ledger
	r.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	r.HandleFunc("/jobs/{id}", h.GetJob).Methods("GET")

	// Service descriptor
	r.HandleFunc("/", h.Index).Methods("GET")

	return r
}

func handleShutdown(srv *http.Server, engine *transcoder.Engine, sweeper *janitor.Janitor) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan

	startup.LogShutdownInitiated(sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(ctx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}

	startup.LogShutdownStep("Stopping transcode processes")
	engine.Cleanup()
	startup.LogShutdownStepComplete("Transcode engine cleanup complete")

	startup.LogShutdownStep("Stopping work directory janitor")
	sweeper.Stop()
	startup.LogShutdownStepComplete("Janitor stopped")

	startup.LogShutdownComplete()
}
