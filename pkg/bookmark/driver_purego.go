//go:build purego

package bookmark

// Pure Go SQLite for builds without a C toolchain.
//
//	CGO_ENABLED=0 go build -tags purego ./...

import (
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"
