package worldarchive

import (
	"context"
	"errors"
	"fmt"
	"github.com/brandquad/world-archive-lib/internal/archive"
	"github.com/brandquad/world-archive-lib/internal/filename"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

type worldsPayload struct {
	Worlds       []archive.WorldRecord `json:"worlds"`
	Statistics   archive.Statistics    `json:"statistics"`
	GeneratedAt  time.Time             `json:"generated_at"`
	CacheExpires time.Time             `json:"cache_expires"`
}

type worldPayload struct {
	World *archive.WorldRecord `json:"world"`
}

type statsPayload struct {
	Statistics archive.Statistics `json:"statistics"`
}

func (s *Server) handleWorlds(w http.ResponseWriter, r *http.Request) {
	refresh := r.URL.Query().Get("refresh") == "true"
	snap, err := s.snapshot(r.Context(), refresh)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", int(s.cfg.CacheTTL.Seconds())))
	if r.Method == http.MethodHead {
		writeJSON(w, r, http.StatusOK, envelope{})
		return
	}

	expires, ok := s.cache.ExpiresAt(snapshotKey)
	if !ok {
		expires = snap.GeneratedAt.Add(s.cfg.CacheTTL)
	}
	writeData(w, r, worldsPayload{
		Worlds:       parseListQuery(r.URL.Query()).apply(snap.Worlds),
		Statistics:   snap.Statistics,
		GeneratedAt:  snap.GeneratedAt,
		CacheExpires: expires,
	})
}

func (s *Server) handleWorld(w http.ResponseWriter, r *http.Request) {
	rec, err := s.scanner.ScanOne(r.Context(), r.PathValue("filename"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, r, worldPayload{World: rec})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.snapshot(r.Context(), false)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, r, statsPayload{Statistics: snap.Statistics})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeData(w, r, map[string]string{"status": "ok"})
}

func (s *Server) handleUnknown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusNotFound, envelope{Error: "not_found", Message: "Unknown endpoint"})
}

// handleDownload streams one archive. Only a full GET counts as a download;
// HEAD and ranged requests do not.
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	f, err := s.files.Open(name)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	defer f.Body.Close()

	h := w.Header()
	h.Set("Content-Type", f.ContentType)
	h.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename.Sanitize(name)))
	setNoCache(h)

	if r.Method == http.MethodHead {
		h.Set("Content-Length", strconv.FormatInt(f.Size, 10))
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Header.Get("Range") == "" {
		if _, err := s.counts.Increment(r.Context(), name); err != nil {
			s.requestLogger(r).Warn("failed to record download", slog.String("file", name), slog.Any("error", err))
		}
	}

	// A zero modtime keeps conditional requests from turning a download into a 304.
	http.ServeContent(w, r, f.Name, time.Time{}, f.Body)
	s.requestLogger(r).Debug("served archive", slog.String("file", name), slog.Int64("size", f.Size))
}

// handleDownloadAll streams every archive as one zip. The listing is scanned
// fresh so that files added since the last cached listing are included.
// Downloads are counted only once the whole archive has been written.
func (s *Server) handleDownloadAll(w http.ResponseWriter, r *http.Request) {
	snap, err := s.scanner.ScanAll(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(snap.Worlds) == 0 {
		writeJSON(w, r, http.StatusNotFound, envelope{Error: "not_found", Message: "No worlds available for download"})
		return
	}

	h := w.Header()
	h.Set("Content-Type", "application/zip")
	h.Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, bulkArchiveName(s.now())))
	setNoCache(h)

	if r.Method == http.MethodHead {
		h.Set("X-Estimated-Size", strconv.FormatInt(snap.Statistics.TotalSize, 10))
		w.WriteHeader(http.StatusOK)
		return
	}

	names := make([]string, 0, len(snap.Worlds))
	for _, world := range snap.Worlds {
		names = append(names, world.Filename)
	}

	log := s.requestLogger(r)
	w.WriteHeader(http.StatusOK)
	added, err := writeZip(r.Context(), w, s.files, names, log)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Error("bulk download aborted", slog.Int("added", len(added)), slog.Any("error", err))
		}
		return
	}

	if err := s.counts.IncrementAll(context.WithoutCancel(r.Context()), added); err != nil {
		log.Warn("failed to record bulk download", slog.Any("error", err))
	}
	log.Info("served bulk archive", slog.Int("files", len(added)), slog.Int("requested", len(names)))
}

func setNoCache(h http.Header) {
	h.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	h.Set("Pragma", "no-cache")
	h.Set("Expires", "0")
}
