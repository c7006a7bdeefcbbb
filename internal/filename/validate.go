// Package filename is the single gate every file-touching operation goes
// through: it validates untrusted archive names and decodes the naming
// convention used by the world export tooling.
package filename

import "strings"

// MaxLength is the longest name accepted, matching common filesystem limits.
const MaxLength = 255

// Extensions are the archive suffixes a world file may carry. Order matters:
// compound suffixes come first so ".tar.xz" is never reported as ".xz".
var Extensions = []string{".tar.xz", ".zip", ".rar", ".7z"}

// ImageExtensions are the suffixes accepted for thumbnails.
var ImageExtensions = []string{".png", ".jpg", ".jpeg", ".webp", ".gif"}

// Validate reports whether name is a safe world archive filename.
func Validate(name string) bool {
	return validate(name, Extensions)
}

// ValidateImage reports whether name is a safe thumbnail filename.
func ValidateImage(name string) bool {
	return validate(name, ImageExtensions)
}

func validate(name string, allowed []string) bool {
	if name == "" || len(name) > MaxLength {
		return false
	}
	// traversal
	if strings.Contains(name, "..") {
		return false
	}
	// absolute paths
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return false
	}
	if strings.ContainsAny(name, `/\`) {
		return false
	}
	if matchExtension(name, allowed) == "" {
		return false
	}
	for i := 0; i < len(name); i++ {
		if !isSafeByte(name[i]) {
			return false
		}
	}
	return true
}

// Extension returns the recognized archive suffix of name in lower case, or
// "" when there is none.
func Extension(name string) string {
	return matchExtension(name, Extensions)
}

func matchExtension(name string, allowed []string) string {
	lower := strings.ToLower(name)
	for _, ext := range allowed {
		if strings.HasSuffix(lower, ext) {
			return ext
		}
	}
	return ""
}

// ContentType maps the archive suffix of name to a MIME type.
func ContentType(name string) string {
	switch Extension(name) {
	case ".tar.xz":
		return "application/x-xz"
	case ".zip":
		return "application/zip"
	case ".rar":
		return "application/vnd.rar"
	case ".7z":
		return "application/x-7z-compressed"
	}
	return "application/octet-stream"
}

// ImageContentType maps a thumbnail suffix to its MIME type.
func ImageContentType(name string) string {
	switch matchExtension(name, ImageExtensions) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".gif":
		return "image/gif"
	}
	return "image/png"
}

// Sanitize replaces every byte outside [A-Za-z0-9._-] with an underscore so
// the result is safe inside a quoted Content-Disposition value.
func Sanitize(name string) string {
	b := []byte(name)
	for i := range b {
		if !isSafeByte(b[i]) {
			b[i] = '_'
		}
	}
	return string(b)
}

func isSafeByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.', c == '_', c == '-':
		return true
	}
	return false
}
