//go:build sqlite_cgo

package graph

// CGO build: uses the C SQLite implementation, faster for large scan
// graphs.
//
// Build command:
//   CGO_ENABLED=1 go build -tags "sqlite_cgo" ./...

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite3"

	// BuildMode describes the current build configuration
	BuildMode = "cgo"
)
