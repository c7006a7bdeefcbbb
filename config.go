package worldarchive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	DownloadsMemory = "memory"
	DownloadsFile   = "file"
	DownloadsS3     = "s3"
)

// Config is read once at startup and never mutated afterwards. The *Cfg
// fields hold the raw env values; the matching Duration fields are what the
// server uses.
type Config struct {
	Port      int
	Listen    string
	WorldsDir string

	CacheDurationCfg int
	CacheTTL         time.Duration
	CacheMaxSize     int

	RateLimitWindowCfg   int
	RateLimitWindow      time.Duration
	RateLimitMaxRequests int
	RateLimitSweepCfg    int
	RateLimitSweep       time.Duration
	TrustProxy           bool
	CorsOrigin           string

	LogLevel    string
	LogFormat   string
	ListingSort string

	ThumbnailsDir     string
	CacheDir          string
	ThumbnailWidth    int
	HttpCacheDays     int
	CleanupTimeoutCfg int
	CleanupTimeout    time.Duration

	DownloadsBackend string
	DownloadsFile    string

	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3Bucket    string
	S3Host      string
	S3UseSSL    bool
	S3CountsKey string
}

// LoadConfig builds a Config from getenv (usually os.Getenv) and validates it.
func LoadConfig(getenv func(string) string) (*Config, error) {
	e := env{getenv: getenv}

	cfg := &Config{
		Port:      e.int("PORT", 3000),
		WorldsDir: e.string("WORLDS_DIR", "/app/worlds"),

		CacheDurationCfg: e.int("CACHE_DURATION", 300),
		CacheMaxSize:     e.int("CACHE_MAX_SIZE", 100),

		RateLimitWindowCfg:   e.int("RATE_LIMIT_WINDOW", 3600),
		RateLimitMaxRequests: e.int("RATE_LIMIT_MAX_REQUESTS", 100),
		RateLimitSweepCfg:    e.int("RATE_LIMIT_SWEEP", 300),
		TrustProxy:           e.bool("TRUST_PROXY", false),
		CorsOrigin:           e.string("CORS_ORIGIN", "http://localhost:3000"),

		LogLevel:    strings.ToLower(e.string("LOG_LEVEL", "info")),
		LogFormat:   strings.ToLower(e.string("LOG_FORMAT", "text")),
		ListingSort: strings.ToLower(e.string("LISTING_SORT", "name")),

		CacheDir:          e.string("CACHE_DIR", filepath.Join(os.TempDir(), "world-archive-cache")),
		ThumbnailWidth:    e.int("THUMBNAIL_WIDTH", 320),
		HttpCacheDays:     e.int("HTTP_CACHE_DAYS", 1),
		CleanupTimeoutCfg: e.int("CLEANUP_TIMEOUT", 60),

		DownloadsBackend: strings.ToLower(e.string("DOWNLOADS_BACKEND", DownloadsMemory)),
		DownloadsFile:    e.string("DOWNLOADS_FILE", "downloads.json"),

		S3AccessKey: e.string("S3_ACCESS_KEY", ""),
		S3SecretKey: e.string("S3_SECRET_KEY", ""),
		S3Region:    e.string("S3_REGION", "us-east-1"),
		S3Bucket:    e.string("S3_BUCKET", ""),
		S3Host:      e.string("S3_HOST", ""),
		S3UseSSL:    e.bool("S3_USE_SSL", true),
		S3CountsKey: e.string("S3_COUNTS_KEY", "world-archive/downloads.json"),
	}
	cfg.ThumbnailsDir = e.string("THUMBNAILS_DIR", filepath.Join(cfg.WorldsDir, "thumbnails"))

	cfg.Listen = fmt.Sprintf(":%d", cfg.Port)
	cfg.CacheTTL = time.Duration(cfg.CacheDurationCfg) * time.Second
	cfg.RateLimitWindow = time.Duration(cfg.RateLimitWindowCfg) * time.Second
	cfg.RateLimitSweep = time.Duration(cfg.RateLimitSweepCfg) * time.Second
	cfg.CleanupTimeout = time.Duration(cfg.CleanupTimeoutCfg) * time.Minute

	if err := errors.Join(append(e.errs, cfg.Validate())...); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every field and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Port < 1 || c.Port > 65535 {
		add("PORT must be between 1 and 65535, got %d", c.Port)
	}
	if st, err := os.Stat(c.WorldsDir); err != nil {
		add("WORLDS_DIR %s: %w", c.WorldsDir, err)
	} else if !st.IsDir() {
		add("WORLDS_DIR %s is not a directory", c.WorldsDir)
	}
	if c.CacheTTL <= 0 {
		add("CACHE_DURATION must be positive")
	}
	if c.CacheMaxSize <= 0 {
		add("CACHE_MAX_SIZE must be positive")
	}
	if c.RateLimitWindow <= 0 {
		add("RATE_LIMIT_WINDOW must be positive")
	}
	if c.RateLimitMaxRequests <= 0 {
		add("RATE_LIMIT_MAX_REQUESTS must be positive")
	}
	if c.RateLimitSweep < 0 {
		add("RATE_LIMIT_SWEEP must not be negative")
	}
	if c.ThumbnailWidth <= 0 {
		add("THUMBNAIL_WIDTH must be positive")
	}
	if c.HttpCacheDays < 0 {
		add("HTTP_CACHE_DAYS must not be negative")
	}
	if c.CleanupTimeout <= 0 {
		add("CLEANUP_TIMEOUT must be positive")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		add("LOG_LEVEL %q is not one of debug, info, warn, error", c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		add("LOG_FORMAT %q is not one of text, json", c.LogFormat)
	}
	switch c.ListingSort {
	case "name", "modified":
	default:
		add("LISTING_SORT %q is not one of name, modified", c.ListingSort)
	}

	switch c.DownloadsBackend {
	case DownloadsMemory:
	case DownloadsFile:
		if c.DownloadsFile == "" {
			add("DOWNLOADS_FILE is required for the file backend")
		}
	case DownloadsS3:
		for env, v := range map[string]string{
			"S3_ACCESS_KEY": c.S3AccessKey,
			"S3_SECRET_KEY": c.S3SecretKey,
			"S3_BUCKET":     c.S3Bucket,
			"S3_COUNTS_KEY": c.S3CountsKey,
		} {
			if v == "" {
				add("%s is required for the s3 backend", env)
			}
		}
	default:
		add("DOWNLOADS_BACKEND %q is not one of memory, file, s3", c.DownloadsBackend)
	}

	return errors.Join(errs...)
}

type env struct {
	getenv func(string) string
	errs   []error
}

func (e *env) string(key, def string) string {
	if v := strings.TrimSpace(e.getenv(key)); v != "" {
		return v
	}
	return def
}

func (e *env) int(key string, def int) int {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (e *env) bool(key string, def bool) bool {
	v := strings.TrimSpace(e.getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.errs = append(e.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}
