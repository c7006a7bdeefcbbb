package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/brandquad/world-archive-lib/internal/filename"
)

// FileServer opens files strictly inside one root directory. Which names it
// accepts depends on the constructor.
type FileServer struct {
	root        string
	valid       func(string) bool
	contentType func(string) string
}

// File is an open archive. The caller owns Body and must close it.
type File struct {
	Name        string
	Body        io.ReadSeekCloser
	Size        int64
	ModTime     time.Time
	ContentType string
}

// Info describes an archive without opening it.
type Info struct {
	Size    int64
	ModTime time.Time
	Exists  bool
}

// NewFileServer serves world archives.
func NewFileServer(root string) *FileServer {
	return &FileServer{root: root, valid: filename.Validate, contentType: filename.ContentType}
}

// NewImageServer serves thumbnail source images.
func NewImageServer(root string) *FileServer {
	return &FileServer{root: root, valid: filename.ValidateImage, contentType: filename.ImageContentType}
}

func (s *FileServer) Root() string { return s.root }

// Resolve returns the canonical absolute path of name. Symlinks are resolved
// on both the root and the file, and the result must stay below the root
// even when name already passed validation.
func (s *FileServer) Resolve(name string) (string, error) {
	if !s.valid(name) {
		return "", ErrInvalidFilename
	}
	return resolveWithin(s.root, name)
}

// Open resolves name and opens it for streaming.
func (s *FileServer) Open(name string) (*File, error) {
	p, err := s.Resolve(name)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(p)
	if err != nil {
		return nil, classify(name, err)
	}

	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, classify(name, err)
	}
	if !st.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%s is not a regular file: %w", name, ErrNotFound)
	}

	return &File{
		Name:        name,
		Body:        f,
		Size:        st.Size(),
		ModTime:     st.ModTime(),
		ContentType: s.contentType(name),
	}, nil
}

// Stat reports size and modification time. A missing file is not an error:
// Exists is false instead.
func (s *FileServer) Stat(name string) (Info, error) {
	p, err := s.Resolve(name)
	if errors.Is(err, ErrNotFound) {
		return Info{}, nil
	}
	if err != nil {
		return Info{}, err
	}

	st, err := os.Stat(p)
	if err != nil {
		err = classify(name, err)
		if errors.Is(err, ErrNotFound) {
			return Info{}, nil
		}
		return Info{}, err
	}
	if !st.Mode().IsRegular() {
		return Info{}, nil
	}
	return Info{Size: st.Size(), ModTime: st.ModTime(), Exists: true}, nil
}

func resolveWithin(root, name string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", ErrDirectoryAccess)
	}
	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", fmt.Errorf("resolve root %s: %w", absRoot, ErrDirectoryAccess)
	}

	realPath, err := filepath.EvalSymlinks(filepath.Join(realRoot, name))
	if err != nil {
		return "", classify(name, err)
	}

	if !within(realRoot, realPath) {
		return "", fmt.Errorf("%s resolves outside the archive root: %w", name, ErrAccessDenied)
	}
	return realPath, nil
}

func within(root, p string) bool {
	rel, err := filepath.Rel(root, p)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || filepath.IsAbs(rel) {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}

func classify(name string, err error) error {
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%s: %w", name, ErrNotFound)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%s: %w", name, ErrAccessDenied)
	}
	return fmt.Errorf("%s: %w", name, err)
}
