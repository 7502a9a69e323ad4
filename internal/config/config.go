package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the session server.
type Config struct {
	// HTTP API settings
	BindAddr         string
	BindCandidates   []string
	BindAutoFallback bool

	// Logging
	LogLevel string
	LogFile  string

	// Browser launch settings
	CDPAddress  string
	Headless    bool
	StartURL    string
	ProfileRoot string
	WindowSize  string

	// Active-tab detection cadence
	DetectFastInterval   time.Duration
	DetectNormalInterval time.Duration
	DetectIdleInterval   time.Duration

	// Anti-flicker and override windows
	ActivityLockTTL      time.Duration
	ManualOverrideWindow time.Duration
	SnapshotTTL          time.Duration

	// Control-channel recovery
	RecoveryMaxAttempts int
	RecoveryBackoff     time.Duration

	// Operation timeouts
	EvalTimeout      time.Duration
	ReconcileTimeout time.Duration

	// Screencast defaults
	StreamFormat  string
	StreamQuality int
	StreamMaxW    int
	StreamMaxH    int

	// Failure notification webhook, empty disables it
	NotifyEndpoint string

	// Screenshot storage
	ScreenshotDir string

	// Session journal (lifecycle events plus optional wire capture),
	// empty dir disables the journal entirely
	JournalDir           string
	JournalBufferSize    int
	JournalMaxSizeMB     int
	CaptureWire          bool
	CaptureMaxFrameBytes int
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		BindAddr:             getEnvOrDefault("SESSION_BIND_ADDR", "127.0.0.1:8190"),
		BindCandidates:       getEnvListOrDefault("SESSION_BIND_CANDIDATES", []string{"127.0.0.1:8191", "127.0.0.1:8192"}),
		BindAutoFallback:     getEnvBoolOrDefault("SESSION_BIND_AUTO_FALLBACK", true),
		LogLevel:             strings.ToLower(getEnvOrDefault("SESSION_LOG_LEVEL", "info")),
		LogFile:              getEnvOrDefault("SESSION_LOG_FILE", "logs/session_server.log"),
		CDPAddress:           getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		Headless:             getEnvBoolOrDefault("SESSION_HEADLESS", true),
		StartURL:             getEnvOrDefault("SESSION_START_URL", "about:blank"),
		ProfileRoot:          getEnvOrDefault("SESSION_PROFILE_ROOT", "./profiles"),
		WindowSize:           getEnvOrDefault("SESSION_WINDOW_SIZE", "1280,720"),
		DetectFastInterval:   getEnvDurationOrDefault("DETECT_FAST_INTERVAL_MS", 300*time.Millisecond),
		DetectNormalInterval: getEnvDurationOrDefault("DETECT_NORMAL_INTERVAL_MS", 800*time.Millisecond),
		DetectIdleInterval:   getEnvDurationOrDefault("DETECT_IDLE_INTERVAL_MS", 2000*time.Millisecond),
		ActivityLockTTL:      getEnvDurationOrDefault("ACTIVITY_LOCK_TTL_MS", 5000*time.Millisecond),
		ManualOverrideWindow: getEnvDurationOrDefault("MANUAL_OVERRIDE_WINDOW_MS", 3000*time.Millisecond),
		SnapshotTTL:          getEnvDurationOrDefault("SNAPSHOT_TTL_MS", 1000*time.Millisecond),
		RecoveryMaxAttempts:  getEnvIntOrDefault("RECOVERY_MAX_ATTEMPTS", 3),
		RecoveryBackoff:      getEnvDurationOrDefault("RECOVERY_BACKOFF_MS", 500*time.Millisecond),
		EvalTimeout:          getEnvDurationOrDefault("EVAL_TIMEOUT_MS", 5000*time.Millisecond),
		ReconcileTimeout:     getEnvDurationOrDefault("RECONCILE_TIMEOUT_MS", 2000*time.Millisecond),
		StreamFormat:         getEnvOrDefault("STREAM_FORMAT", "jpeg"),
		StreamQuality:        getEnvIntOrDefault("STREAM_QUALITY", 70),
		StreamMaxW:           getEnvIntOrDefault("STREAM_MAX_WIDTH", 1280),
		StreamMaxH:           getEnvIntOrDefault("STREAM_MAX_HEIGHT", 720),
		NotifyEndpoint:       getEnvOrDefault("SESSION_NOTIFY_ENDPOINT", ""),
		ScreenshotDir:        getEnvOrDefault("SESSION_SCREENSHOT_DIR", "./data/screenshots"),
		JournalDir:           getEnvOrDefault("SESSION_JOURNAL_DIR", "./data/journal"),
		JournalBufferSize:    getEnvIntOrDefault("SESSION_JOURNAL_BUFFER", 256),
		JournalMaxSizeMB:     getEnvIntOrDefault("SESSION_JOURNAL_MAX_SIZE_MB", 50),
		CaptureWire:          getEnvBoolOrDefault("CAPTURE_WIRE", false),
		CaptureMaxFrameBytes: getEnvIntOrDefault("CAPTURE_MAX_FRAME_BYTES", 4096),
	}

	if cfg.RecoveryMaxAttempts < 1 {
		cfg.RecoveryMaxAttempts = 1
	}
	if cfg.EvalTimeout < time.Second {
		cfg.EvalTimeout = time.Second
	}
	if cfg.StreamQuality < 1 || cfg.StreamQuality > 100 {
		cfg.StreamQuality = 70
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvListOrDefault(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		var out []string
		for _, item := range strings.Split(val, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultVal
}

func getEnvDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if ms, err := strconv.Atoi(val); err == nil && ms > 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultVal
}
