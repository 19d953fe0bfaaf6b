// Package config loads application configuration from environment variables.
package config

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"
)

// envPrefix is prepended to every variable Load reads.
const envPrefix = "DSBPANEL_"

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	// SecretKey is the 32-byte AES-256 key for stored credentials; nil disables
	// credential persistence.
	SecretKey []byte
	LogLevel  slog.Level

	DSBBaseURL    string
	DSBTimeout    time.Duration
	// DiscoveryTimeout bounds one full login or refresh pass.
	DiscoveryTimeout time.Duration
	DSBAppVersion string
	DSBOSVersion  string
	DSBDevice     string
	DSBUserAgent  string
	DSBUsername   string
	DSBPassword   string

	CacheTTL        time.Duration
	RefreshInterval time.Duration
	RedisURL        string
	Location        *time.Location

	FirstPeriodStart time.Duration // offset from midnight
	PeriodLength     time.Duration
	PeriodGap        time.Duration
}

// HasBootstrapCredentials returns true when both DSBUsername and DSBPassword
// are non-empty. The composition root logs in with them when nothing is stored.
func (c *Config) HasBootstrapCredentials() bool {
	return c.DSBUsername != "" && c.DSBPassword != ""
}

// Load reads configuration from environment variables and returns a validated Config.
// Every variable is optional; malformed values fail fast.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:    lookup("LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:        lookup("DB_PATH", "dsbpanel.db"),
		DSBBaseURL:    strings.TrimRight(lookup("DSB_BASE_URL", "https://app.dsbcontrol.de"), "/"),
		DSBAppVersion: lookup("DSB_APP_VERSION", "2.5.9"),
		DSBOSVersion:  lookup("DSB_OS_VERSION", "28 8.0"),
		DSBDevice:     lookup("DSB_DEVICE", "SM-G930F"),
		DSBUserAgent:  lookup("DSB_USER_AGENT", ""),
		DSBUsername:   os.Getenv(envPrefix + "DSB_USERNAME"),
		DSBPassword:   os.Getenv(envPrefix + "DSB_PASSWORD"),
		RedisURL:      os.Getenv(envPrefix + "REDIS_URL"),
	}

	var err error

	if cfg.SecretKey, err = parseSecretKey(os.Getenv(envPrefix + "SECRET_KEY")); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = parseLogLevel(lookup("LOG_LEVEL", "info")); err != nil {
		return nil, err
	}

	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
		min  time.Duration
	}{
		{"DSB_TIMEOUT", 15 * time.Second, &cfg.DSBTimeout, time.Second},
		{"DISCOVERY_TIMEOUT", 2 * time.Minute, &cfg.DiscoveryTimeout, time.Second},
		{"CACHE_TTL", 30 * time.Minute, &cfg.CacheTTL, time.Second},
		{"REFRESH_INTERVAL", 30 * time.Minute, &cfg.RefreshInterval, 0},
		{"PERIOD_LENGTH", 45 * time.Minute, &cfg.PeriodLength, time.Minute},
		{"PERIOD_GAP", 5 * time.Minute, &cfg.PeriodGap, 0},
	}
	for _, d := range durations {
		if *d.dest, err = parseDuration(d.key, d.def, d.min); err != nil {
			return nil, err
		}
	}
	if cfg.DiscoveryTimeout < cfg.DSBTimeout {
		return nil, fmt.Errorf("%sDISCOVERY_TIMEOUT must not be shorter than %sDSB_TIMEOUT, got %s", envPrefix, envPrefix, cfg.DiscoveryTimeout)
	}
	if cfg.RefreshInterval > 0 && cfg.RefreshInterval < time.Minute {
		return nil, fmt.Errorf("%sREFRESH_INTERVAL must be 0 or at least 1m, got %s", envPrefix, cfg.RefreshInterval)
	}

	tz := lookup("TIMEZONE", "Europe/Berlin")
	if cfg.Location, err = time.LoadLocation(tz); err != nil {
		return nil, fmt.Errorf("%sTIMEZONE has invalid location %q: %w", envPrefix, tz, err)
	}

	start := lookup("FIRST_PERIOD_START", "08:00")
	if cfg.FirstPeriodStart, err = parseClock(start); err != nil {
		return nil, fmt.Errorf("%sFIRST_PERIOD_START has invalid time %q: %w", envPrefix, start, err)
	}

	return cfg, nil
}

// lookup returns the prefixed variable, or def when it is unset.
func lookup(key, def string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		return v
	}
	return def
}

func parseDuration(key string, def, minimum time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return def, nil
	}

	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s has invalid duration %q: %w", envPrefix, key, v, err)
	}
	if parsed < minimum {
		return 0, fmt.Errorf("%s%s must be at least %s, got %s", envPrefix, key, minimum, parsed)
	}
	return parsed, nil
}

// parseSecretKey decodes a 64-character hex string into an AES-256 key.
// An empty value disables credential storage.
func parseSecretKey(v string) ([]byte, error) {
	if v == "" {
		return nil, nil
	}

	key, err := hex.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("%sSECRET_KEY must be hex encoded: %w", envPrefix, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%sSECRET_KEY must be 64 hex characters (32 bytes), got %d bytes", envPrefix, len(key))
	}
	return key, nil
}

func parseLogLevel(v string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return 0, fmt.Errorf("%sLOG_LEVEL has invalid level %q: %w", envPrefix, v, err)
	}
	return level, nil
}

// parseClock converts "HH:MM" into an offset from midnight.
func parseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
