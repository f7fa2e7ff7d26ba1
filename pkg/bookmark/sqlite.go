package bookmark

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
)

// SQLiteSource reads bookmarks from a `bookmarks` table
// (id INTEGER, title TEXT, description TEXT, tags TEXT, url TEXT).
// The database is opened read-only; tags are comma separated. The driver
// is cgo go-sqlite3 by default and modernc.org/sqlite with -tags purego.
type SQLiteSource struct {
	path string
}

// NewSQLiteSource creates a source backed by a SQLite database file.
func NewSQLiteSource(path string) *SQLiteSource {
	return &SQLiteSource{path: path}
}

func (s *SQLiteSource) Path() string { return s.path }

func (s *SQLiteSource) List(ctx context.Context) ([]Bookmark, error) {
	if _, err := os.Stat(s.path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}

	db, err := sql.Open(driverName, "file:"+s.path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open bookmark db: %w", err)
	}
	defer func() { _ = db.Close() }()

	rows, err := db.QueryContext(ctx, `
		SELECT id, COALESCE(title, ''), COALESCE(description, ''),
		       COALESCE(tags, ''), COALESCE(url, '')
		FROM bookmarks
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query bookmarks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var bookmarks []Bookmark
	for rows.Next() {
		var (
			b    Bookmark
			id   int64
			tags string
		)
		if err := rows.Scan(&id, &b.Title, &b.Description, &tags, &b.URL); err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		if id < 0 {
			return nil, fmt.Errorf("bookmark db %s: negative id %d", s.path, id)
		}
		b.ID = uint64(id)
		b.Tags = splitTags(tags)
		bookmarks = append(bookmarks, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bookmarks, nil
}
