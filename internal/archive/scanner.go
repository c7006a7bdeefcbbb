// Package archive reads the world archive directory: it builds listings and
// statistics and opens individual archives without ever leaving the root.
package archive

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/brandquad/world-archive-lib/internal/filename"
)

// SortMode orders a scan result.
type SortMode string

const (
	SortByName     SortMode = "name"
	SortByModified SortMode = "modified"
)

// Counts supplies download counts for a scan.
type Counts interface {
	Snapshot(ctx context.Context) (map[string]int64, error)
}

// Scanner lists the archive root.
type Scanner struct {
	files  *FileServer
	counts Counts
	sort   SortMode
	log    *slog.Logger
	now    func() time.Time
}

type ScannerOption func(*Scanner)

func WithSortMode(m SortMode) ScannerOption {
	return func(s *Scanner) {
		if m != "" {
			s.sort = m
		}
	}
}

func WithLogger(l *slog.Logger) ScannerOption {
	return func(s *Scanner) { s.log = l }
}

func NewScanner(files *FileServer, counts Counts, opts ...ScannerOption) *Scanner {
	s := &Scanner{
		files:  files,
		counts: counts,
		sort:   SortByName,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScanAll reads every conforming archive in the root. Only a failure to read
// the root itself fails the scan; a bad entry is skipped.
func (s *Scanner) ScanAll(ctx context.Context) (*Snapshot, error) {
	root := s.files.Root()
	entries, err := os.ReadDir(root)
	if err != nil {
		s.log.Error("failed to read worlds directory", slog.String("dir", root), slog.Any("error", err))
		return nil, fmt.Errorf("read %s: %w", root, ErrDirectoryAccess)
	}

	counts := s.downloadCounts(ctx)

	snap := &Snapshot{
		Worlds: make([]WorldRecord, 0, len(entries)),
		Statistics: Statistics{
			Categories: make(map[string]int),
		},
		GeneratedAt: s.now().UTC(),
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		link := e.Type()&fs.ModeSymlink != 0
		if !e.Type().IsRegular() && !link {
			continue
		}
		name := e.Name()
		if !filename.Validate(name) {
			s.log.Debug("skipping non-conforming entry", slog.String("file", name))
			continue
		}

		info, ok := s.entryInfo(e, link)
		if !ok {
			continue
		}

		m := filename.Parse(name)
		if m.Form != filename.FormFull {
			s.log.Debug("world name does not follow category__group__world convention",
				slog.String("file", name), slog.String("form", m.Form.String()))
		}
		rec := newRecord(name, m, info.Size, info.ModTime, counts[name])

		snap.Worlds = append(snap.Worlds, rec)
		snap.Statistics.TotalWorlds++
		snap.Statistics.TotalSize += rec.Size
		snap.Statistics.TotalDownloads += rec.Downloads
		snap.Statistics.Categories[rec.Category]++
	}

	SortWorlds(snap.Worlds, s.sort)
	return snap, nil
}

// entryInfo stats a directory entry. Symlinks are followed through the file
// server, so only links to regular files inside the root are listed, the same
// ones a download would serve.
func (s *Scanner) entryInfo(e fs.DirEntry, link bool) (Info, bool) {
	name := e.Name()
	if link {
		info, err := s.files.Stat(name)
		if err != nil {
			s.log.Debug("skipping symlinked entry", slog.String("file", name), slog.Any("error", err))
			return Info{}, false
		}
		return info, info.Exists
	}

	fi, err := e.Info()
	if err != nil {
		s.log.Warn("failed to stat world file", slog.String("file", name), slog.Any("error", err))
		return Info{}, false
	}
	if !fi.Mode().IsRegular() {
		return Info{}, false
	}
	return Info{Size: fi.Size(), ModTime: fi.ModTime(), Exists: true}, true
}

// ScanOne builds the record of a single archive.
func (s *Scanner) ScanOne(ctx context.Context, name string) (*WorldRecord, error) {
	info, err := s.files.Stat(name)
	if err != nil {
		return nil, err
	}
	if !info.Exists {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}

	var downloads int64
	if counts := s.downloadCounts(ctx); counts != nil {
		downloads = counts[name]
	}
	rec := newRecord(name, filename.Parse(name), info.Size, info.ModTime, downloads)
	return &rec, nil
}

func (s *Scanner) downloadCounts(ctx context.Context) map[string]int64 {
	if s.counts == nil {
		return nil
	}
	counts, err := s.counts.Snapshot(ctx)
	if err != nil {
		// Counts are optional for a listing.
		s.log.Warn("failed to load download counts", slog.Any("error", err))
		return nil
	}
	return counts
}

// SortWorlds orders worlds in place. Ties fall back to the filename so the
// order is total.
func SortWorlds(worlds []WorldRecord, mode SortMode) {
	sort.SliceStable(worlds, func(i, j int) bool {
		a, b := worlds[i], worlds[j]
		if mode == SortByModified && !a.Modified.Equal(b.Modified) {
			return a.Modified.After(b.Modified)
		}
		if mode != SortByModified {
			an, bn := strings.ToLower(a.DisplayName), strings.ToLower(b.DisplayName)
			if an != bn {
				return an < bn
			}
		}
		return a.Filename < b.Filename
	})
}
