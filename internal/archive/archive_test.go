package archive

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticCounts map[string]int64

func (c staticCounts) Snapshot(context.Context) (map[string]int64, error) {
	return c, nil
}

type failingCounts struct{}

func (failingCounts) Snapshot(context.Context) (map[string]int64, error) {
	return nil, errors.New("backend down")
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenStreamsValidFile(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "atm__g__w__1.0.zip", "zipdata")

	fs := NewFileServer(root)
	f, err := fs.Open("atm__g__w__1.0.zip")
	require.NoError(t, err)
	defer f.Body.Close()

	assert.Equal(t, int64(7), f.Size)
	assert.Equal(t, "application/zip", f.ContentType)
	body, err := io.ReadAll(f.Body)
	require.NoError(t, err)
	assert.Equal(t, "zipdata", string(body))
}

func TestOpenRejectsInvalidNames(t *testing.T) {
	fs := NewFileServer(t.TempDir())
	for _, name := range []string{"../secret.zip", "/etc/passwd.zip", "a/b.zip", "notes.txt"} {
		_, err := fs.Open(name)
		assert.ErrorIs(t, err, ErrInvalidFilename, name)
	}
}

func TestOpenMissingFile(t *testing.T) {
	fs := NewFileServer(t.TempDir())
	_, err := fs.Open("missing.zip")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenDirectoryIsNotFound(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "dir.zip"), 0o755))

	_, err := NewFileServer(root).Open("dir.zip")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSymlinkEscapingRootIsDenied(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	outside := t.TempDir()
	target := writeFile(t, outside, "secret.zip", "secret")

	root := t.TempDir()
	require.NoError(t, os.Symlink(target, filepath.Join(root, "innocent.zip")))

	fs := NewFileServer(root)
	_, err := fs.Open("innocent.zip")
	assert.ErrorIs(t, err, ErrAccessDenied)

	_, err = fs.Stat("innocent.zip")
	assert.ErrorIs(t, err, ErrAccessDenied)
}

func TestSymlinkedRootStillServes(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	realDir := t.TempDir()
	writeFile(t, realDir, "w.zip", "x")

	link := filepath.Join(t.TempDir(), "worlds")
	require.NoError(t, os.Symlink(realDir, link))

	p, err := NewFileServer(link).Resolve("w.zip")
	require.NoError(t, err)

	realRoot, err := filepath.EvalSymlinks(realDir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(realRoot, "w.zip"), p)
}

func TestResolvedPathsStayInsideRoot(t *testing.T) {
	root := t.TempDir()
	names := []string{
		"a.zip", "-.zip", "_.7z", "...zip", ".zip", "x.tar.xz", "a.b.c.rar",
		"--help.zip", "CON.zip", ".hidden.zip",
	}
	realRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)

	fs := NewFileServer(root)
	for _, name := range names {
		p, err := fs.Resolve(name)
		if errors.Is(err, ErrInvalidFilename) {
			continue
		}
		if errors.Is(err, ErrNotFound) {
			writeFile(t, root, name, "x")
			p, err = fs.Resolve(name)
		}
		require.NoError(t, err, name)
		assert.True(t, within(realRoot, p), "%s resolved to %s", name, p)
	}
}

func TestStat(t *testing.T) {
	root := t.TempDir()
	p := writeFile(t, root, "w.7z", "12345")
	mod := time.Date(2023, 5, 1, 10, 0, 0, 0, time.UTC)
	require.NoError(t, os.Chtimes(p, mod, mod))

	fs := NewFileServer(root)
	info, err := fs.Stat("w.7z")
	require.NoError(t, err)
	assert.True(t, info.Exists)
	assert.Equal(t, int64(5), info.Size)
	assert.True(t, mod.Equal(info.ModTime))

	info, err = fs.Stat("gone.7z")
	require.NoError(t, err)
	assert.False(t, info.Exists)

	_, err = fs.Stat("../x.zip")
	assert.ErrorIs(t, err, ErrInvalidFilename)
}

func TestScanSkipsInvalidEntries(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "atm__all_the_mods_9__my_world__1.0.43.tar.xz", "12345")
	writeFile(t, root, "..evil.zip", "666")
	writeFile(t, root, "readme.txt", "hello")
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub.zip"), 0o755))

	counts := staticCounts{"..evil.zip": 100}
	counts["atm__all_the_mods_9__my_world__1.0.43.tar.xz"] = 4
	s := NewScanner(NewFileServer(root), counts, WithLogger(quietLogger()))

	snap, err := s.ScanAll(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Worlds, 1)

	w := snap.Worlds[0]
	assert.Equal(t, "My World", w.DisplayName)
	assert.Equal(t, "All The Mods", w.Category)
	assert.Equal(t, "atm", w.CategoryToken)
	assert.Equal(t, "all_the_mods_9", w.Group)
	require.NotNil(t, w.Version)
	assert.Equal(t, "1.0.43", *w.Version)
	assert.Equal(t, int64(4), w.Downloads)
	assert.Equal(t, "/api/download/atm__all_the_mods_9__my_world__1.0.43.tar.xz", w.DownloadURL)

	assert.Equal(t, Statistics{
		TotalWorlds:    1,
		TotalSize:      5,
		TotalDownloads: 4,
		Categories:     map[string]int{"All The Mods": 1},
	}, snap.Statistics)
}

func TestScanSortsByDisplayName(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "create__g__zeta.zip", "1")
	writeFile(t, root, "atm__g__alpha.zip", "22")
	writeFile(t, root, "legacy_middle.zip", "333")

	snap, err := NewScanner(NewFileServer(root), nil, WithLogger(quietLogger())).ScanAll(context.Background())
	require.NoError(t, err)

	var names []string
	for _, w := range snap.Worlds {
		names = append(names, w.DisplayName)
	}
	assert.Equal(t, []string{"Alpha", "Legacy Middle", "Zeta"}, names)
	assert.Equal(t, map[string]int{"All The Mods": 1, "Create": 1, "Unknown": 1}, snap.Statistics.Categories)
	assert.Equal(t, int64(6), snap.Statistics.TotalSize)
}

func TestScanFollowsSymlinksInsideRoot(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "store"), 0o755))
	target := writeFile(t, filepath.Join(root, "store"), "real.zip", "12345")
	require.NoError(t, os.Symlink(target, filepath.Join(root, "linked.zip")))

	secret := writeFile(t, t.TempDir(), "secret.zip", "secret")
	require.NoError(t, os.Symlink(secret, filepath.Join(root, "escape.zip")))
	require.NoError(t, os.Symlink(filepath.Join(root, "nowhere.zip"), filepath.Join(root, "dangling.zip")))

	snap, err := NewScanner(NewFileServer(root), nil, WithLogger(quietLogger())).ScanAll(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Worlds, 1)
	assert.Equal(t, "linked.zip", snap.Worlds[0].Filename)
	assert.Equal(t, int64(5), snap.Worlds[0].Size)
	assert.Equal(t, int64(5), snap.Statistics.TotalSize)
}

func TestScanSortsByModified(t *testing.T) {
	root := t.TempDir()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"old.zip", "mid.zip", "new.zip"} {
		p := writeFile(t, root, name, "x")
		ts := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, os.Chtimes(p, ts, ts))
	}

	s := NewScanner(NewFileServer(root), nil, WithSortMode(SortByModified), WithLogger(quietLogger()))
	snap, err := s.ScanAll(context.Background())
	require.NoError(t, err)

	require.Len(t, snap.Worlds, 3)
	assert.Equal(t, "new.zip", snap.Worlds[0].Filename)
	assert.Equal(t, "old.zip", snap.Worlds[2].Filename)
}

func TestScanMissingRootFails(t *testing.T) {
	s := NewScanner(NewFileServer(filepath.Join(t.TempDir(), "nope")), nil, WithLogger(quietLogger()))
	_, err := s.ScanAll(context.Background())
	assert.ErrorIs(t, err, ErrDirectoryAccess)
}

func TestScanToleratesCountFailure(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "w.zip", "x")

	snap, err := NewScanner(NewFileServer(root), failingCounts{}, WithLogger(quietLogger())).ScanAll(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Worlds, 1)
	assert.Zero(t, snap.Worlds[0].Downloads)
}

func TestScanHonoursCancellation(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "w.zip", "x")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewScanner(NewFileServer(root), nil, WithLogger(quietLogger())).ScanAll(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScanOne(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "tekkit__classic__base.rar", "abc")

	s := NewScanner(NewFileServer(root), staticCounts{"tekkit__classic__base.rar": 2}, WithLogger(quietLogger()))

	rec, err := s.ScanOne(context.Background(), "tekkit__classic__base.rar")
	require.NoError(t, err)
	assert.Equal(t, "Base", rec.DisplayName)
	assert.Equal(t, "Tekkit", rec.Category)
	assert.Nil(t, rec.Version)
	assert.Equal(t, int64(2), rec.Downloads)

	_, err = s.ScanOne(context.Background(), "missing.rar")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.ScanOne(context.Background(), "../x.rar")
	assert.ErrorIs(t, err, ErrInvalidFilename)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "0 B", FormatBytes(0))
	assert.Equal(t, "1023 B", FormatBytes(1023))
	assert.Equal(t, "1.50 KB", FormatBytes(1536))
	assert.Equal(t, "2.00 GB", FormatBytes(2<<30))
}

func TestImageServerUsesImageAllowList(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "cover.webp", "img")
	writeFile(t, root, "w.zip", "zip")

	imgs := NewImageServer(root)
	f, err := imgs.Open("cover.webp")
	require.NoError(t, err)
	defer f.Body.Close()
	assert.Equal(t, "image/webp", f.ContentType)

	_, err = imgs.Open("w.zip")
	assert.ErrorIs(t, err, ErrInvalidFilename)
}
