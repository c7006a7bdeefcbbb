// Package worldarchive serves a directory of game world archives over HTTP:
// listings with parsed metadata, statistics, downloads, a bulk zip and
// thumbnails, behind a per-client rate limit.
package worldarchive

import (
	"context"
	"fmt"
	"github.com/brandquad/world-archive-lib/internal/archive"
	"github.com/brandquad/world-archive-lib/internal/downloads"
	"github.com/brandquad/world-archive-lib/internal/ratelimit"
	"github.com/brandquad/world-archive-lib/internal/ttlcache"
	"github.com/rs/cors"
	"golang.org/x/sync/singleflight"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"sync"
	"time"
)

const snapshotKey = "worlds"

type worldScanner interface {
	ScanAll(ctx context.Context) (*archive.Snapshot, error)
	ScanOne(ctx context.Context, name string) (*archive.WorldRecord, error)
}

// Server owns every per-instance resource: the listing cache, the rate
// limiter, the download counts and the thumbnail cache.
type Server struct {
	cfg     *Config
	log     *slog.Logger
	files   *archive.FileServer
	images  *archive.FileServer
	scanner worldScanner
	counts  *downloads.Store
	cache   *ttlcache.Cache[string, *archive.Snapshot]
	flight  singleflight.Group
	limiter *ratelimit.Limiter
	thumbs  *thumbnailCache
	resizer Resizer
	now     func() time.Time

	closeOnce sync.Once
}

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// WithDownloadStore replaces the store DOWNLOADS_BACKEND would open.
func WithDownloadStore(store *downloads.Store) Option {
	return func(s *Server) { s.counts = store }
}

// WithResizer replaces the libvips thumbnail renderer.
func WithResizer(r Resizer) Option {
	return func(s *Server) { s.resizer = r }
}

func NewServer(ctx context.Context, cfg *Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		log:     slog.Default(),
		resizer: vipsResizer{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.counts == nil {
		store, err := openDownloadStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		s.counts = store
	}

	s.files = archive.NewFileServer(cfg.WorldsDir)
	s.images = archive.NewImageServer(cfg.ThumbnailsDir)
	s.scanner = archive.NewScanner(s.files, s.counts,
		archive.WithSortMode(archive.SortMode(cfg.ListingSort)),
		archive.WithLogger(s.log),
	)
	s.cache = ttlcache.New[string, *archive.Snapshot](ttlcache.Config{
		DefaultTTL:      cfg.CacheTTL,
		MaxSize:         cfg.CacheMaxSize,
		CleanupInterval: cfg.CacheTTL,
	})
	s.limiter = ratelimit.New(ratelimit.Config{
		Limit:         cfg.RateLimitMaxRequests,
		Window:        cfg.RateLimitWindow,
		SweepInterval: cfg.RateLimitSweep,
	})
	s.thumbs = newThumbnailCache(
		filepath.Join(cfg.CacheDir, "thumbnails"),
		cfg.ThumbnailWidth,
		cfg.CleanupTimeout,
		s.resizer,
		s.log,
	)

	s.log.Info("world archive server configured",
		slog.String("worlds_dir", cfg.WorldsDir),
		slog.String("downloads_backend", cfg.DownloadsBackend),
		slog.Duration("cache_ttl", cfg.CacheTTL),
		slog.Int("rate_limit", cfg.RateLimitMaxRequests),
		slog.Duration("rate_window", cfg.RateLimitWindow),
	)
	return s, nil
}

func openDownloadStore(ctx context.Context, cfg *Config) (*downloads.Store, error) {
	switch cfg.DownloadsBackend {
	case DownloadsFile:
		return downloads.Open(ctx, downloads.JSONFile{Path: cfg.DownloadsFile})
	case DownloadsS3:
		client, err := newS3Client(cfg)
		if err != nil {
			return nil, err
		}
		return downloads.Open(ctx, downloads.S3Object{
			Client: client,
			Bucket: cfg.S3Bucket,
			Key:    cfg.S3CountsKey,
		})
	}
	return downloads.NewMemoryStore(), nil
}

// Handler returns the full middleware chain around the API routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/worlds", s.handleWorlds)
	mux.HandleFunc("GET /api/worlds/{filename}", s.handleWorld)
	mux.HandleFunc("GET /api/download/all", s.handleDownloadAll)
	mux.HandleFunc("GET /api/download/{filename}", s.handleDownload)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.HandleFunc("GET /api/thumbnails/{filename}", s.handleThumbnail)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("/api/", s.handleUnknown)

	c := cors.New(cors.Options{
		AllowOriginFunc: s.allowOrigin,
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodHead,
			http.MethodOptions,
		},
		AllowedHeaders: []string{"Content-Type", "X-Requested-With", requestIDHeader},
		ExposedHeaders: []string{
			"Content-Disposition",
			"Retry-After",
			"X-Estimated-Size",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
			requestIDHeader,
		},
		MaxAge: 86400,
	})

	var h http.Handler = c.Handler(mux)
	h = s.rateLimit(h)
	h = securityHeaders(h)
	h = s.recoverer(h)
	h = s.accessLog(h)
	return withRequestID(h)
}

// allowOrigin accepts the configured origin and any localhost origin.
func (s *Server) allowOrigin(origin string) bool {
	if origin == s.cfg.CorsOrigin {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// HTTPServer wraps Handler in an *http.Server listening on cfg.Listen.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Close stops the background sweeps. Safe to call more than once.
func (s *Server) Close() error {
	s.closeOnce.Do(func() {
		_ = s.cache.Close()
		s.limiter.Close()
		s.thumbs.Close()
	})
	return nil
}

// snapshot returns the cached listing, scanning on a miss. Concurrent misses
// share one scan; refresh forces a new one.
func (s *Server) snapshot(ctx context.Context, refresh bool) (*archive.Snapshot, error) {
	if !refresh {
		if snap, ok := s.cache.Get(snapshotKey); ok {
			return snap, nil
		}
	}

	v, err, _ := s.flight.Do(snapshotKey, func() (any, error) {
		if !refresh {
			if snap, ok := s.cache.Get(snapshotKey); ok {
				return snap, nil
			}
		}
		snap, err := s.scanner.ScanAll(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(snapshotKey, snap); err != nil {
			s.log.Warn("failed to cache world listing", slog.Any("error", err))
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*archive.Snapshot), nil
}
