package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

var validate = validator.New()

type AppConfig struct {
	// Server is the base URL of the ESO SkyCalc web services.
	Server      string        `validate:"required,url"`
	HTTPTimeout time.Duration `validate:"gt=0"`

	// ParamsFile overrides the embedded parameter catalog when set.
	ParamsFile string

	// CacheDB enables the persistent SQLite response cache when set; the
	// in-memory cache is used otherwise.
	CacheDB         string
	CacheMaxEntries int           `validate:"gte=0"` // 0 = unlimited
	CacheMaxAge     time.Duration `validate:"gte=0"` // 0 = unlimited

	// AlmanacRefreshInterval controls how often tracked sessions are refreshed.
	AlmanacRefreshInterval time.Duration `validate:"gte=1m"`

	LogLevel string `validate:"oneof=debug info warn error"`
	Port     string `validate:"required,numeric"`
}

// Load reads configuration from environment with sensible defaults. A .env
// file in the working directory is honoured when present.
func Load() (*AppConfig, error) {
	_ = godotenv.Load()
	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (*AppConfig, error) {
	cfg := &AppConfig{}

	cfg.Server = getenvDefault("SKYCALC_SERVER", "https://etimecalret-002.eso.org")

	var err error
	if cfg.HTTPTimeout, err = getenvDuration("SKYCALC_HTTP_TIMEOUT", "60s"); err != nil {
		return nil, err
	}

	cfg.ParamsFile = os.Getenv("SKYCALC_PARAMS_FILE")
	cfg.CacheDB = os.Getenv("SKYCALC_CACHE_DB")

	cfg.CacheMaxEntries = getenvInt("CACHE_MAX_ENTRIES", 256)
	if cfg.CacheMaxAge, err = getenvDuration("CACHE_MAX_AGE", "24h"); err != nil {
		return nil, err
	}

	// Almanac values drift slowly; 15 minutes keeps airmass within a few percent.
	if cfg.AlmanacRefreshInterval, err = getenvDuration("ALMANAC_REFRESH_INTERVAL", "15m"); err != nil {
		return nil, err
	}

	cfg.LogLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.Port = getenvDefault("PORT", "8080")

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(getenvDefault(key, def))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
