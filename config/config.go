package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config represents the entire application configuration.
type Config struct {
	GitHub      GitHubConfig
	Watch       WatchConfig
	Log         LogConfig
	WebAPI      WebAPIConfig
	TargetsFile string
}

// GitHubConfig holds API credentials and endpoint settings.
type GitHubConfig struct {
	Token          string
	AppID          int64
	PrivateKey     string
	PrivateKeyPath string
	BaseURL        string
}

// WatchConfig holds watch-mode settings.
type WatchConfig struct {
	IntervalMinutes int
	StateFile       string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// SlogLevel converts the Level string to slog.Level.
func (lc *LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(lc.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WebAPIConfig holds status API server settings.
type WebAPIConfig struct {
	Enabled bool
	Host    string
	Port    int
}

// Load reads configuration from GHADIST_* environment variables.
func Load() (*Config, error) {
	appID, err := envInt64("GHADIST_APP_ID", 0)
	if err != nil {
		return nil, fmt.Errorf("invalid GHADIST_APP_ID: %w", err)
	}

	intervalMinutes, err := envInt("GHADIST_WATCH_INTERVAL_MINUTES", 5)
	if err != nil {
		return nil, fmt.Errorf("invalid GHADIST_WATCH_INTERVAL_MINUTES: %w", err)
	}

	logLevel := envStr("GHADIST_LOG_LEVEL", "info")
	logFormat := envStr("GHADIST_LOG_FORMAT", "json")

	webapiEnabled, err := envBool("GHADIST_WEBAPI_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("invalid GHADIST_WEBAPI_ENABLED: %w", err)
	}

	webapiHost := envStr("GHADIST_WEBAPI_HOST", "0.0.0.0")

	webapiPort, err := envInt("GHADIST_WEBAPI_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid GHADIST_WEBAPI_PORT: %w", err)
	}

	config := &Config{
		GitHub: GitHubConfig{
			Token:          os.Getenv("GHADIST_TOKEN"),
			AppID:          appID,
			PrivateKey:     os.Getenv("GHADIST_APP_PRIVATE_KEY"),
			PrivateKeyPath: os.Getenv("GHADIST_APP_PRIVATE_KEY_PATH"),
			BaseURL:        os.Getenv("GHADIST_BASE_URL"),
		},
		Watch: WatchConfig{
			IntervalMinutes: intervalMinutes,
			StateFile:       envStr("GHADIST_STATE_FILE", ".ghadist-state.json"),
		},
		Log: LogConfig{
			Level:  logLevel,
			Format: logFormat,
		},
		WebAPI: WebAPIConfig{
			Enabled: webapiEnabled,
			Host:    webapiHost,
			Port:    webapiPort,
		},
		TargetsFile: envStr("GHADIST_TARGETS_FILE", "targets.yaml"),
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// HasAppAuth reports whether GitHub App credentials are configured.
func (c *Config) HasAppAuth() bool {
	return c.GitHub.AppID > 0 &&
		(c.GitHub.PrivateKey != "" || c.GitHub.PrivateKeyPath != "")
}

// GetPrivateKey returns the App private key bytes.
// Priority: GHADIST_APP_PRIVATE_KEY env > GHADIST_APP_PRIVATE_KEY_PATH file.
func (c *Config) GetPrivateKey() ([]byte, error) {
	if c.GitHub.PrivateKey != "" {
		return []byte(c.GitHub.PrivateKey), nil
	}
	if c.GitHub.PrivateKeyPath != "" {
		data, err := os.ReadFile(c.GitHub.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read private key file: %w", err)
		}
		return data, nil
	}
	return nil, errors.New("private key not configured (set GHADIST_APP_PRIVATE_KEY or GHADIST_APP_PRIVATE_KEY_PATH)")
}

func (c *Config) validate() error {
	if c.GitHub.Token == "" && !c.HasAppAuth() {
		return errors.New("credentials required: set GHADIST_TOKEN, or GHADIST_APP_ID with a private key")
	}
	if c.Watch.IntervalMinutes <= 0 {
		return errors.New("GHADIST_WATCH_INTERVAL_MINUTES must be positive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
		// OK
	default:
		return fmt.Errorf("invalid GHADIST_LOG_LEVEL (%q): must be one of debug, info, warn, error", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
		// OK
	default:
		return fmt.Errorf("invalid GHADIST_LOG_FORMAT (%q): must be one of json, text", c.Log.Format)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("expected integer for %s: %w", key, err)
	}
	return n, nil
}

func envInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("expected integer for %s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("expected boolean for %s: %w", key, err)
	}
	return b, nil
}
