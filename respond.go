package worldarchive

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/brandquad/world-archive-lib/internal/archive"
)

type envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Message   string `json:"message,omitempty"`
	ResetTime int64  `json:"reset_time,omitempty"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(body)
}

func writeData(w http.ResponseWriter, r *http.Request, data any) {
	writeJSON(w, r, http.StatusOK, envelope{Success: true, Data: data})
}

// writeError maps err onto a status and a stable error code. Internal detail
// only reaches the log.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := classifyError(err)
	log := s.requestLogger(r)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", slog.String("code", code), slog.Any("error", err))
	} else {
		log.Debug("request rejected", slog.String("code", code), slog.Any("error", err))
	}
	writeJSON(w, r, status, envelope{Error: code, Message: msg})
}

func classifyError(err error) (status int, code, message string) {
	switch {
	case errors.Is(err, archive.ErrInvalidFilename):
		return http.StatusBadRequest, "invalid_filename", "Invalid filename"
	case errors.Is(err, archive.ErrAccessDenied):
		return http.StatusForbidden, "access_denied", "Access denied"
	case errors.Is(err, archive.ErrNotFound):
		return http.StatusNotFound, "not_found", "File not found"
	case errors.Is(err, archive.ErrDirectoryAccess):
		return http.StatusInternalServerError, "directory_unavailable", "Worlds directory is unavailable"
	}
	return http.StatusInternalServerError, "internal_error", "Internal server error"
}
