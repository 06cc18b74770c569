// Package mime maps file suffixes to content types for response
// headers. The table is fixed and initialized once at first use.
package mime

import (
	"strings"
	"sync"
)

// DefaultType is returned for unknown or missing suffixes.
const DefaultType = "text/html"

var (
	once  sync.Once
	table map[string]string
)

func initTable() {
	table = map[string]string{
		".html": "text/html",
		".htm":  "text/html",
		".avi":  "video/x-msvideo",
		".bmp":  "image/bmp",
		".c":    "text/plain",
		".doc":  "application/msword",
		".gif":  "image/gif",
		".gz":   "application/x-gzip",
		".ico":  "application/x-ico",
		".jpg":  "image/jpeg",
		".png":  "image/png",
		".txt":  "text/plain",
		".mp3":  "audio/mp3",
	}
}

// Lookup returns the content type for a suffix such as ".txt".
// Unknown suffixes resolve to DefaultType.
func Lookup(suffix string) string {
	once.Do(initTable)
	if t, ok := table[suffix]; ok {
		return t
	}
	return DefaultType
}

// TypeByName resolves a file name to a content type using everything
// from the first dot as the suffix. Names without a dot resolve to
// DefaultType.
func TypeByName(name string) string {
	dot := strings.IndexByte(name, '.')
	if dot < 0 {
		return DefaultType
	}
	return Lookup(name[dot:])
}
