package bookmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// JSONSource reads a JSON array of bookmarks.
type JSONSource struct {
	path string
}

// NewJSONSource creates a source backed by a JSON file.
func NewJSONSource(path string) *JSONSource {
	return &JSONSource{path: path}
}

func (s *JSONSource) Path() string { return s.path }

// List decodes the whole file. A missing file yields no bookmarks.
func (s *JSONSource) List(ctx context.Context) ([]Bookmark, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read bookmarks: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var bookmarks []Bookmark
	if err := json.Unmarshal(data, &bookmarks); err != nil {
		return nil, fmt.Errorf("decode bookmarks %s: %w", s.path, err)
	}
	return bookmarks, nil
}

// CSVSource reads bookmarks from a CSV file with the header
// id,title,description,tags,url. Columns may appear in any order.
type CSVSource struct {
	path string
}

// NewCSVSource creates a source backed by a CSV file.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

func (s *CSVSource) Path() string { return s.path }

func (s *CSVSource) List(ctx context.Context) ([]Bookmark, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open bookmarks: %w", err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	idCol, ok := cols["id"]
	if !ok {
		return nil, fmt.Errorf("csv %s: missing id column", s.path)
	}

	field := func(rec []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	var bookmarks []Bookmark
	for line := 2; ; line++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if idCol >= len(rec) {
			return nil, fmt.Errorf("csv %s line %d: missing id", s.path, line)
		}
		id, err := strconv.ParseUint(strings.TrimSpace(rec[idCol]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("csv %s line %d: invalid id: %w", s.path, line, err)
		}
		bookmarks = append(bookmarks, Bookmark{
			ID:          id,
			Title:       field(rec, "title"),
			Description: field(rec, "description"),
			Tags:        splitTags(field(rec, "tags")),
			URL:         field(rec, "url"),
		})
	}
	return bookmarks, nil
}
