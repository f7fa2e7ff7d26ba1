// Package bookmark defines the bookmark record consumed by the search core
// and read-only sources that load bookmarks from disk.
package bookmark

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedSource is returned by Open for unknown file extensions.
var ErrUnsupportedSource = errors.New("unsupported bookmark source")

// Bookmark is a saved link. The search core only ever reads it.
type Bookmark struct {
	ID          uint64   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	URL         string   `json:"url"`
}

// Source lists bookmarks from an external store.
type Source interface {
	List(ctx context.Context) ([]Bookmark, error)
	// Path returns the file backing the source, used for change watching.
	Path() string
}

// Open returns a read-only source for path, selected by file extension.
func Open(path string) (Source, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return NewJSONSource(path), nil
	case ".csv":
		return NewCSVSource(path), nil
	case ".db", ".sqlite", ".sqlite3":
		return NewSQLiteSource(path), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSource, path)
	}
}

// ByID indexes bookmarks by id. Later duplicates win.
func ByID(bookmarks []Bookmark) map[uint64]Bookmark {
	m := make(map[uint64]Bookmark, len(bookmarks))
	for _, b := range bookmarks {
		m[b.ID] = b
	}
	return m
}

// splitTags parses a comma separated tag list, dropping empty entries.
func splitTags(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	tags := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			tags = append(tags, p)
		}
	}
	return tags
}
