package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigPath is the file read by Load when no path is given.
var ConfigPath = envOr("CATALOG_CONFIG", "config.yaml")

const (
	defaultOMDbTimeoutSeconds    = 10
	defaultMetadataRatePerMinute = 30
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port        string `yaml:"port"`
	LogLevel    string `yaml:"logLevel"`
	DatabaseURL string `yaml:"databaseURL"`

	OMDbAPIKey         string `yaml:"omdbAPIKey"`
	OMDbBaseURL        string `yaml:"omdbBaseURL"`
	OMDbTimeoutSeconds int    `yaml:"omdbTimeoutSeconds"`

	RedisAddr                  string `yaml:"redisAddr"`
	RedisPassword              string `yaml:"redisPassword"`
	MetadataRateLimitPerMinute int    `yaml:"metadataRateLimitPerMinute"`

	TrendingTitles     []string `yaml:"trendingTitles"`
	CORSAllowedOrigins []string `yaml:"corsAllowedOrigins"`
	TrustedProxies     []string `yaml:"trustedProxies"`
}

// OMDbTimeout returns the per-request timeout for metadata lookups.
func (c FileConfig) OMDbTimeout() time.Duration {
	return time.Duration(c.OMDbTimeoutSeconds) * time.Second
}

// Load reads config from path (defaults to ConfigPath). A .env file next to
// it is loaded first; variables already set in the environment win.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := godotenv.Load(filepath.Join(filepath.Dir(path), ".env")); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	applyEnv(&cfg)
	if cfg.OMDbTimeoutSeconds <= 0 {
		cfg.OMDbTimeoutSeconds = defaultOMDbTimeoutSeconds
	}
	if cfg.MetadataRateLimitPerMinute <= 0 {
		cfg.MetadataRateLimitPerMinute = defaultMetadataRatePerMinute
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("OMDB_API_KEY"); v != "" {
		cfg.OMDbAPIKey = v
	}
	if v := os.Getenv("OMDB_BASE_URL"); v != "" {
		cfg.OMDbBaseURL = v
	}
	if v := os.Getenv("OMDB_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.OMDbTimeoutSeconds = n
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("CATALOG_TRENDING_TITLES"); v != "" {
		cfg.TrendingTitles = splitCSV(v)
	}
	if v := os.Getenv("CATALOG_CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitCSV(v)
	}
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
