package worldarchive

import (
	"archive/zip"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"github.com/brandquad/world-archive-lib/internal/archive"
	"io"
	"log/slog"
	"time"
)

func getMD5Hash(text string) string {
	hasher := md5.Sum([]byte(text))
	return hex.EncodeToString(hasher[:])
}

func bulkArchiveName(now time.Time) string {
	return fmt.Sprintf("minecraft-worlds-%s.zip", now.UTC().Format("2006-01-02T15-04-05"))
}

// archiveOpener opens one archive for reading.
type archiveOpener interface {
	Open(name string) (*archive.File, error)
}

// sourceReader remembers the last read error so a failing source can be told
// apart from a failing destination.
type sourceReader struct {
	r   io.Reader
	err error
}

func (s *sourceReader) Read(p []byte) (int, error) {
	n, err := s.r.Read(p)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}

var errSourceRead = errors.New("read source")

// copyEntry copies src into dst. A failed read is wrapped in errSourceRead;
// any other error came from dst.
func copyEntry(dst io.Writer, src io.Reader) error {
	sr := &sourceReader{r: src}
	if _, err := io.Copy(dst, sr); err != nil {
		if sr.err != nil {
			return fmt.Errorf("%w: %w", errSourceRead, sr.err)
		}
		return err
	}
	return nil
}

// writeZip streams names from files into a zip written to w and returns the
// names that made it in. A file that cannot be opened or read is logged and
// skipped; a failed write to w ends the archive. Bytes of an entry already
// streamed before a read failure stay in the zip as a truncated entry and
// that entry is not reported as added.
func writeZip(ctx context.Context, w io.Writer, files archiveOpener, names []string, log *slog.Logger) ([]string, error) {
	zw := zip.NewWriter(w)
	added := make([]string, 0, len(names))

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return added, err
		}

		f, err := files.Open(name)
		if err != nil {
			log.Warn("skipping world in bulk archive", slog.String("file", name), slog.Any("error", err))
			continue
		}

		// Archives are already compressed.
		hdr := &zip.FileHeader{
			Name:     name,
			Method:   zip.Store,
			Modified: f.ModTime,
		}

		wr, err := zw.CreateHeader(hdr)
		if err != nil {
			f.Body.Close()
			return added, fmt.Errorf("failed to add %s: %w", name, err)
		}
		err = copyEntry(wr, f.Body)
		f.Body.Close()
		if errors.Is(err, errSourceRead) {
			log.Warn("truncated world in bulk archive", slog.String("file", name), slog.Any("error", err))
			continue
		}
		if err != nil {
			return added, fmt.Errorf("failed to copy %s: %w", name, err)
		}
		added = append(added, name)
	}

	if err := zw.Close(); err != nil {
		return added, fmt.Errorf("failed to finish archive: %w", err)
	}
	return added, nil
}
