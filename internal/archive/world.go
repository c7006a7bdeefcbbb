package archive

import (
	"fmt"
	"net/url"
	"time"

	"github.com/brandquad/world-archive-lib/internal/filename"
)

// WorldRecord is the listing view of one archive. Filename is the only field
// stable across scans.
type WorldRecord struct {
	Filename          string    `json:"filename"`
	DisplayName       string    `json:"displayName"`
	Size              int64     `json:"size"`
	FormattedSize     string    `json:"formatted_size"`
	Modified          time.Time `json:"modified"`
	FormattedModified string    `json:"formatted_modified"`
	Downloads         int64     `json:"downloads"`
	Category          string    `json:"category"`
	CategoryToken     string    `json:"category_token"`
	Group             string    `json:"group"`
	Version           *string   `json:"version"`
	Description       string    `json:"description"`
	Tags              []string  `json:"tags"`
	DownloadURL       string    `json:"download_url"`
}

// Statistics aggregates one scan.
type Statistics struct {
	TotalWorlds    int            `json:"total_worlds"`
	TotalSize      int64          `json:"total_size"`
	TotalDownloads int64          `json:"total_downloads"`
	Categories     map[string]int `json:"categories"`
}

// Snapshot is the result of a full scan.
type Snapshot struct {
	Worlds      []WorldRecord `json:"worlds"`
	Statistics  Statistics    `json:"statistics"`
	GeneratedAt time.Time     `json:"generated_at"`
}

// DownloadPath is the URL path serving name.
func DownloadPath(name string) string {
	return "/api/download/" + url.PathEscape(name)
}

func newRecord(name string, m filename.Metadata, size int64, modified time.Time, downloads int64) WorldRecord {
	rec := WorldRecord{
		Filename:          name,
		DisplayName:       m.DisplayName,
		Size:              size,
		FormattedSize:     FormatBytes(size),
		Modified:          modified.UTC(),
		FormattedModified: modified.UTC().Format("Jan 2, 2006, 3:04 PM"),
		Downloads:         downloads,
		Category:          m.Category,
		CategoryToken:     m.CategoryToken,
		Group:             m.Group,
		Description:       m.Description,
		Tags:              m.Tags,
		DownloadURL:       DownloadPath(name),
	}
	if m.Version != "" {
		v := m.Version
		rec.Version = &v
	}
	return rec
}

// FormatBytes renders n in binary units with two decimals: 1536 is "1.50 KB".
func FormatBytes(n int64) string {
	units := []string{"B", "KB", "MB", "GB", "TB"}
	size := float64(n)
	i := 0
	for size >= 1024 && i < len(units)-1 {
		size /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d B", n)
	}
	return fmt.Sprintf("%.2f %s", size, units[i])
}
