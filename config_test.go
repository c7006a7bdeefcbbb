package worldarchive

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestLoadConfigDefaults(t *testing.T) {
	worlds := t.TempDir()
	cfg, err := LoadConfig(envMap(map[string]string{"WORLDS_DIR": worlds}))
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, ":3000", cfg.Listen)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 100, cfg.CacheMaxSize)
	assert.Equal(t, time.Hour, cfg.RateLimitWindow)
	assert.Equal(t, 100, cfg.RateLimitMaxRequests)
	assert.Equal(t, 5*time.Minute, cfg.RateLimitSweep)
	assert.Equal(t, time.Hour, cfg.CleanupTimeout)
	assert.False(t, cfg.TrustProxy)
	assert.Equal(t, "http://localhost:3000", cfg.CorsOrigin)
	assert.Equal(t, filepath.Join(worlds, "thumbnails"), cfg.ThumbnailsDir)
	assert.Equal(t, DownloadsMemory, cfg.DownloadsBackend)
	assert.Equal(t, "name", cfg.ListingSort)
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := LoadConfig(envMap(map[string]string{
		"PORT":                    "8080",
		"WORLDS_DIR":              t.TempDir(),
		"CACHE_DURATION":          "60",
		"RATE_LIMIT_WINDOW":       "120",
		"RATE_LIMIT_MAX_REQUESTS": "5",
		"TRUST_PROXY":             "true",
		"LOG_FORMAT":              "JSON",
		"LISTING_SORT":            "modified",
		"DOWNLOADS_BACKEND":       "file",
	}))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
	assert.Equal(t, 2*time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, 5, cfg.RateLimitMaxRequests)
	assert.True(t, cfg.TrustProxy)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "modified", cfg.ListingSort)
	assert.Equal(t, DownloadsFile, cfg.DownloadsBackend)
}

func TestLoadConfigRejects(t *testing.T) {
	worlds := t.TempDir()
	file := filepath.Join(worlds, "file.zip")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	cases := map[string]map[string]string{
		"port too high":        {"PORT": "70000"},
		"port zero":            {"PORT": "0"},
		"port not a number":    {"PORT": "abc"},
		"missing worlds dir":   {"WORLDS_DIR": filepath.Join(worlds, "nope")},
		"worlds dir is a file": {"WORLDS_DIR": file},
		"zero cache ttl":       {"CACHE_DURATION": "0"},
		"bad bool":             {"TRUST_PROXY": "maybe"},
		"bad log level":        {"LOG_LEVEL": "loud"},
		"bad backend":          {"DOWNLOADS_BACKEND": "redis"},
		"s3 without bucket":    {"DOWNLOADS_BACKEND": "s3", "S3_ACCESS_KEY": "k", "S3_SECRET_KEY": "s"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			if _, ok := vars["WORLDS_DIR"]; !ok {
				vars["WORLDS_DIR"] = worlds
			}
			_, err := LoadConfig(envMap(vars))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigReportsEveryProblem(t *testing.T) {
	_, err := LoadConfig(envMap(map[string]string{
		"WORLDS_DIR": t.TempDir(),
		"PORT":       "70000",
		"LOG_FORMAT": "xml",
	}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PORT")
	assert.Contains(t, err.Error(), "LOG_FORMAT")
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&Config{LogLevel: "warn", LogFormat: "json"}, &buf)
	log.Info("hidden")
	log.Warn("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], `"msg":"shown"`)
}
