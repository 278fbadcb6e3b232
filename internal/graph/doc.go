// Package graph persists scan relationships as a node/edge graph in
// SQLite. Nodes are filesystem paths with JSON metadata; edges are typed,
// weighted relationships between paths (directory containment, tag links).
//
// Two build modes are supported via build tags:
//   - default / purego: modernc.org/sqlite, no C compiler needed
//   - sqlite_cgo: github.com/mattn/go-sqlite3
package graph
