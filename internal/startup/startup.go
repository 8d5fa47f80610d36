package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"time"

	"video-clipper/internal/logging"
	"video-clipper/internal/pipeline"
	"video-clipper/internal/workers"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// Config holds all application configuration
type Config struct {
	Port         string
	PipelineMode pipeline.Mode
	FFmpegPath   string
	FFprobePath  string
	WorkDir      string
	DatabaseDir  string

	StorageEndpoint  string
	StorageAccessKey string
	StorageSecretKey string
	StorageBucket    string
	StorageUseSSL    bool
	StoragePublicURL string

	CallbackURL   string
	CallbackToken string

	JobTimeout        time.Duration
	MaxConcurrentJobs int

	LogHealthChecks bool
	MetricsEnabled  bool

	// Derived paths
	DatabasePath string
}

// LoadConfig loads and validates configuration from environment variables
func LoadConfig() (*Config, error) {
	// .env is optional; real deployments set the environment directly
	if err := godotenv.Load(); err == nil {
		logging.Debug("Loaded environment from .env")
	}

	printBanner()
	logSystemInfo()

	logging.Info("------------------------------------------------------------")
	logging.Info("CONFIGURATION")
	logging.Info("------------------------------------------------------------")

	port := getEnv("PORT", "5000")
	modeStr := getEnv("PIPELINE_MODE", "stream")
	ffmpegPath := getEnv("FFMPEG_PATH", "")
	ffprobePath := getEnv("FFPROBE_PATH", "")
	workDir := getEnv("WORK_DIR", filepath.Join(os.TempDir(), "clipper"))
	databaseDir := getEnv("DATABASE_DIR", "")
	storageEndpoint := getEnv("STORAGE_ENDPOINT", "")
	storageAccessKey := getEnv("STORAGE_ACCESS_KEY", "")
	storageSecretKey := getEnv("STORAGE_SECRET_KEY", "")
	storageBucket := getEnv("STORAGE_BUCKET", "clips")
	storageUseSSL := getEnvBool("STORAGE_USE_SSL", true)
	storagePublicURL := getEnv("STORAGE_PUBLIC_URL", "")
	callbackURL := getEnv("CALLBACK_URL", "")
	callbackToken := getEnv("CALLBACK_TOKEN", "")
	jobTimeoutStr := getEnv("JOB_TIMEOUT", "10m")
	maxJobs := getEnvInt("MAX_CONCURRENT_JOBS", 0)
	logHealthChecks := getEnvBool("LOG_HEALTH_CHECKS", true)
	metricsEnabled := getEnvBool("METRICS_ENABLED", true)

	logging.Info("  PORT:                %s", port)
	logging.Info("  PIPELINE_MODE:       %s", modeStr)
	logging.Info("  FFMPEG_PATH:         %s", orDefault(ffmpegPath, "(from PATH)"))
	logging.Info("  FFPROBE_PATH:        %s", orDefault(ffprobePath, "(from PATH)"))
	logging.Info("  WORK_DIR:            %s", workDir)
	logging.Info("  DATABASE_DIR:        %s", orDefault(databaseDir, "(WORK_DIR/db)"))
	logging.Info("  STORAGE_ENDPOINT:    %s", storageEndpoint)
	logging.Info("  STORAGE_BUCKET:      %s", storageBucket)
	logging.Info("  STORAGE_USE_SSL:     %v", storageUseSSL)
	logging.Info("  STORAGE_PUBLIC_URL:  %s", orDefault(storagePublicURL, "(derived)"))
	logging.Info("  CALLBACK_URL:        %s", orDefault(callbackURL, "(notifications disabled)"))
	logging.Info("  JOB_TIMEOUT:         %s", jobTimeoutStr)
	logging.Info("  MAX_CONCURRENT_JOBS: %s", orDefault(strconv.Itoa(maxJobs), "0"))
	logging.Info("  LOG_HEALTH_CHECKS:   %v", logHealthChecks)
	logging.Info("  METRICS_ENABLED:     %v", metricsEnabled)
	logging.Info("  LOG_LEVEL:           %s", logging.GetLevel())

	mode, err := pipeline.ParseMode(modeStr)
	if err != nil {
		return nil, fmt.Errorf("invalid PIPELINE_MODE: %w", err)
	}

	jobTimeout, err := time.ParseDuration(jobTimeoutStr)
	if err != nil {
		logging.Warn("  Invalid JOB_TIMEOUT, using default: 10m")
		jobTimeout = 10 * time.Minute
	}

	if maxJobs <= 0 {
		maxJobs = workers.ForTranscode(0)
	}

	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("DIRECTORY SETUP")
	logging.Info("------------------------------------------------------------")

	workDir, err = filepath.Abs(workDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve work directory path: %w", err)
	}
	logging.Info("  Work directory (absolute): %s", workDir)

	if err := ensureDirectory(workDir, "work"); err != nil {
		return nil, fmt.Errorf("work directory error: %w", err)
	}

	logging.Debug("  Testing work directory write access...")
	if err := testWriteAccess(workDir); err != nil {
		return nil, fmt.Errorf("work directory is not writable: %w", err)
	}
	logging.Info("  [OK] Work directory is writable")

	// The work directory root is swept by the janitor; the ledger
	// defaults to a subdirectory so its files are never candidates.
	if databaseDir == "" {
		databaseDir = filepath.Join(workDir, "db")
	}
	databaseDir, err = filepath.Abs(databaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database directory path: %w", err)
	}
	logging.Info("  Database directory (absolute): %s", databaseDir)

	if err := ensureDirectory(databaseDir, "database"); err != nil {
		return nil, fmt.Errorf("database directory error: %w", err)
	}
	if err := testWriteAccess(databaseDir); err != nil {
		return nil, fmt.Errorf("database directory is not writable: %w", err)
	}
	logging.Info("  [OK] Database directory is writable")

	if storageEndpoint == "" {
		return nil, fmt.Errorf("STORAGE_ENDPOINT must be set")
	}

	config := &Config{
		Port:              port,
		PipelineMode:      mode,
		FFmpegPath:        ffmpegPath,
		FFprobePath:       ffprobePath,
		WorkDir:           workDir,
		DatabaseDir:       databaseDir,
		StorageEndpoint:   storageEndpoint,
		StorageAccessKey:  storageAccessKey,
		StorageSecretKey:  storageSecretKey,
		StorageBucket:     storageBucket,
		StorageUseSSL:     storageUseSSL,
		StoragePublicURL:  storagePublicURL,
		CallbackURL:       callbackURL,
		CallbackToken:     callbackToken,
		JobTimeout:        jobTimeout,
		MaxConcurrentJobs: maxJobs,
		LogHealthChecks:   logHealthChecks,
		MetricsEnabled:    metricsEnabled,
		DatabasePath:      filepath.Join(databaseDir, "clipper.db"),
	}

	logging.Info("")
	logging.Info("  Feature availability:")
	logging.Info("    Job ledger:    ENABLED (required)")
	logging.Info("    Notifications: %s", enabledString(callbackURL != ""))
	logging.Info("    Metrics:       %s", enabledString(config.MetricsEnabled))
	logging.Info("    Concurrency:   %d simultaneous jobs", maxJobs)

	return config, nil
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

func orDefault(value, placeholder string) string {
	if value == "" || value == "0" {
		return placeholder
	}
	return value
}

// LogDatabaseInit logs job ledger initialization
func LogDatabaseInit(duration time.Duration) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("JOB LEDGER INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Job ledger initialized in %v", duration)
}

// LogEngineInit logs transcode engine initialization
func LogEngineInit(ffmpegPath, ffprobePath string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("TRANSCODE ENGINE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] ffmpeg:  %s", ffmpegPath)
	logging.Info("  [OK] ffprobe: %s", ffprobePath)
}

// LogStorageInit logs object storage initialization
func LogStorageInit(endpoint, bucket string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("OBJECT STORAGE INITIALIZATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  [OK] Endpoint: %s", endpoint)
	logging.Info("  [OK] Bucket %q is available", bucket)
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			// Route might not have methods specified (e.g., the metrics handler)
			methods = []string{"*"}
		}

		name := route.GetName()

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   name,
			})
		}

		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes dynamically
func LogHTTPRoutes(router *mux.Router, logHealthChecks bool) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("HTTP SERVER SETUP")
	logging.Info("------------------------------------------------------------")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))
		logging.Debug("")

		sort.Slice(routes, func(i, j int) bool {
			if routes[i].Path != routes[j].Path {
				return routes[i].Path < routes[j].Path
			}
			return routes[i].Method < routes[j].Method
		})

		for _, route := range routes {
			methodPadded := fmt.Sprintf("%-6s", route.Method)
			logging.Debug("    %s %s", methodPadded, route.Path)
		}
		logging.Debug("")
	}

	logging.Info("  HTTP logging enabled")
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SERVER STARTED")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Clip API:      http://0.0.0.0:%s/clip", config.Port)
	logging.Info("    Jobs:          http://0.0.0.0:%s/jobs", config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://0.0.0.0:%s/metrics", config.Port)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info("------------------------------------------------------------")
	logging.Info("")
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	logging.Info("")
	logging.Info("------------------------------------------------------------")
	logging.Info("SHUTDOWN INITIATED (received %s)", signal)
	logging.Info("------------------------------------------------------------")
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

// Helper functions

func printBanner() {
	banner := `
------------------------------------------------------------
 _    ___     __              ________ _
| |  / (_)___/ /__  ____     / ____/ (_)___  ____  ___  _____
| | / / / __  / _ \/ __ \   / /   / / / __ \/ __ \/ _ \/ ___/
| |/ / / /_/ /  __/ /_/ /  / /___/ / / /_/ / /_/ /  __/ /
|___/_/\__,_/\___/\____/   \____/_/_/ .___/ .___/\___/_/
                                   /_/   /_/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
	logging.Info("")
}

func logSystemInfo() {
	logging.Info("------------------------------------------------------------")
	logging.Info("SYSTEM INFORMATION")
	logging.Info("------------------------------------------------------------")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if logging.IsDebugEnabled() {
		logging.Debug("  Goroutines:      %d", runtime.NumGoroutine())

		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}

		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}

	logging.Info("")
}

func ensureDirectory(path, name string) error {
	logging.Debug("  Checking %s directory: %s", name, path)

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("    Directory does not exist, creating...")
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
		logging.Debug("    [OK] Created directory: %s", path)
		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path exists but is not a directory")
	}

	logging.Debug("    [OK] Directory exists")
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
		// Don't return error since write access was confirmed
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		logging.Warn("Invalid integer value for %s: %q, using default: %d", key, value, defaultValue)
		return defaultValue
	}
	return parsed
}
