package worldarchive

import (
	"cmp"
	"github.com/brandquad/world-archive-lib/internal/archive"
	"net/url"
	"slices"
	"strings"
)

// listQuery narrows and reorders a cached listing. It always works on a copy
// so the cached snapshot is never mutated.
type listQuery struct {
	search   string
	category string
	sort     string
	desc     bool
}

func parseListQuery(v url.Values) listQuery {
	q := listQuery{
		search:   strings.ToLower(strings.TrimSpace(v.Get("q"))),
		category: strings.ToLower(strings.TrimSpace(v.Get("category"))),
	}

	switch s := strings.ToLower(v.Get("sort")); s {
	case "name", "size", "date", "downloads":
		q.sort = s
	}
	switch strings.ToLower(v.Get("order")) {
	case "asc":
		q.desc = false
	case "desc":
		q.desc = true
	default:
		q.desc = q.sort != "" && q.sort != "name"
	}
	return q
}

func (q listQuery) apply(worlds []archive.WorldRecord) []archive.WorldRecord {
	out := make([]archive.WorldRecord, 0, len(worlds))
	for _, w := range worlds {
		if q.matches(w) {
			out = append(out, w)
		}
	}
	if q.sort == "" {
		return out
	}

	slices.SortStableFunc(out, func(a, b archive.WorldRecord) int {
		var c int
		switch q.sort {
		case "name":
			c = cmp.Compare(strings.ToLower(a.DisplayName), strings.ToLower(b.DisplayName))
		case "size":
			c = cmp.Compare(a.Size, b.Size)
		case "date":
			c = a.Modified.Compare(b.Modified)
		case "downloads":
			c = cmp.Compare(a.Downloads, b.Downloads)
		}
		if q.desc {
			c = -c
		}
		if c == 0 {
			c = cmp.Compare(a.Filename, b.Filename)
		}
		return c
	})
	return out
}

func (q listQuery) matches(w archive.WorldRecord) bool {
	if q.category != "" && strings.ToLower(w.Category) != q.category && strings.ToLower(w.CategoryToken) != q.category {
		return false
	}
	if q.search == "" {
		return true
	}
	for _, field := range []string{w.Filename, w.DisplayName, w.Description, w.Group} {
		if strings.Contains(strings.ToLower(field), q.search) {
			return true
		}
	}
	return slices.Contains(w.Tags, q.search)
}
