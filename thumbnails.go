package worldarchive

import (
	"errors"
	"fmt"
	"github.com/brandquad/world-archive-lib/internal/archive"
	"github.com/davidbyttow/govips/v2/vips"
	"log/slog"
	"net/http"
	"time"
)

// Resizer renders a JPEG no wider than width from the image at src.
type Resizer interface {
	Thumbnail(src string, width int) ([]byte, error)
}

type vipsResizer struct{}

func (vipsResizer) Thumbnail(src string, width int) ([]byte, error) {
	img, err := vips.NewImageFromFile(src)
	if err != nil {
		return nil, fmt.Errorf("failed to load image: %w", err)
	}
	defer img.Close()

	if img.Width() > width {
		height := img.Height() * width / img.Width()
		if height < 1 {
			height = 1
		}
		if err := img.Thumbnail(width, height, vips.InterestingNone); err != nil {
			return nil, fmt.Errorf("failed to resize image: %w", err)
		}
	}

	buf, _, err := img.ExportJpeg(vips.NewJpegExportParams())
	if err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf, nil
}

// StartImaging starts libvips and routes its log output into log. Call
// StopImaging on shutdown.
func StartImaging(log *slog.Logger) {
	vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
		attrs := []any{slog.String("domain", domain)}
		switch level {
		case vips.LogLevelError, vips.LogLevelCritical:
			log.Error(msg, attrs...)
		case vips.LogLevelWarning:
			log.Warn(msg, attrs...)
		case vips.LogLevelDebug:
			log.Debug(msg, attrs...)
		default:
			log.Info(msg, attrs...)
		}
	}, vips.LogLevelWarning)
	vips.Startup(nil)
}

func StopImaging() {
	vips.Shutdown()
}

// handleThumbnail serves a preview from the thumbnails directory. When the
// image cannot be rendered the original is sent instead.
func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	f, err := s.images.Open(name)
	if errors.Is(err, archive.ErrDirectoryAccess) {
		// No thumbnails directory means no thumbnails.
		err = fmt.Errorf("thumbnail %s: %w", name, archive.ErrNotFound)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer f.Body.Close()

	maxAge := time.Duration(s.cfg.HttpCacheDays) * 24 * time.Hour
	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(maxAge.Seconds())))
	w.Header().Set("Expires", s.now().Add(maxAge).UTC().Format(http.TimeFormat))

	src, err := s.images.Resolve(name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	path, err := s.thumbs.get(src, f.ModTime)
	if err != nil {
		s.requestLogger(r).Warn("serving original image", slog.String("file", name), slog.Any("error", err))
		w.Header().Set("Content-Type", f.ContentType)
		http.ServeContent(w, r, f.Name, f.ModTime, f.Body)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	http.ServeFile(w, r, path)
}
