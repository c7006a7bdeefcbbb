package archive

import "errors"

var (
	// ErrInvalidFilename means the name failed the allow-list check.
	ErrInvalidFilename = errors.New("invalid filename")
	// ErrAccessDenied means the path escaped the archive root or the OS
	// refused access.
	ErrAccessDenied = errors.New("access denied")
	// ErrNotFound means a validated name has no regular file behind it.
	ErrNotFound = errors.New("file not found")
	// ErrDirectoryAccess means the archive root itself could not be read.
	ErrDirectoryAccess = errors.New("archive directory unavailable")
)
