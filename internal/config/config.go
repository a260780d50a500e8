// Package config reads process configuration from the environment. A .env
// file in the working directory is loaded first when present; variables
// already set in the environment win over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/DoyleJ11/uki-sync/internal/engine"
	"github.com/joho/godotenv"
)

type Server struct {
	Port              string
	Layout            engine.Layout
	HeartbeatInterval time.Duration
	TickInterval      time.Duration
	DatabaseURL       string
	LogLevel          string
	LogFormat         string
}

type Remote struct {
	// ServerAddress overrides the stored preference when set.
	ServerAddress   string
	WatchdogTimeout time.Duration
	RetryAfter      time.Duration
	FrameInterval   time.Duration
	PrefsPath       string
	LogLevel        string
	LogFormat       string
}

// LoadDotEnv loads path (".env" when empty). A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func LoadServer() (*Server, error) {
	layout, err := engine.ParseLayout(getEnv("UKI_LAYOUT", "dual"))
	if err != nil {
		return nil, fmt.Errorf("UKI_LAYOUT: %w", err)
	}
	cfg := &Server{
		Port:        getEnv("UKI_PORT", "7777"),
		Layout:      layout,
		DatabaseURL: getEnv("DATABASE_URL", ""),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "console"),
	}
	if cfg.HeartbeatInterval, err = getDuration("UKI_HEARTBEAT_INTERVAL", 2*time.Second); err != nil {
		return nil, err
	}
	if cfg.TickInterval, err = getDuration("UKI_TICK_INTERVAL", 100*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.TickInterval > cfg.HeartbeatInterval {
		return nil, fmt.Errorf("UKI_TICK_INTERVAL (%v) must not exceed UKI_HEARTBEAT_INTERVAL (%v)", cfg.TickInterval, cfg.HeartbeatInterval)
	}
	return cfg, nil
}

func LoadRemote() (*Remote, error) {
	cfg := &Remote{
		ServerAddress: getEnv("UKI_SERVER_ADDRESS", ""),
		PrefsPath:     getEnv("UKI_PREFS_PATH", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		LogFormat:     getEnv("LOG_FORMAT", "console"),
	}
	var err error
	if cfg.WatchdogTimeout, err = getDuration("UKI_WATCHDOG_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.RetryAfter, err = getDuration("UKI_RETRY_AFTER", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.FrameInterval, err = getDuration("UKI_FRAME_INTERVAL", 50*time.Millisecond); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, d)
	}
	return d, nil
}
