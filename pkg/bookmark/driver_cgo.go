//go:build !purego

package bookmark

// Default build: cgo SQLite.
//
//	CGO_ENABLED=1 go build ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const driverName = "sqlite3"
