//go:build !sqlite_fts5

package db

// The claims_fts virtual table (migration 001) needs go-sqlite3 compiled
// with its FTS5 module. A stock build only fails at runtime, on the very
// first migration, with "no such module: fts5" — surface the missing build
// tag at compile time instead.
//
// Build and test with:
//
//	go build -tags sqlite_fts5 ./...
//	go test  -tags sqlite_fts5 ./...
var _ = mustBuildWithTagSQLiteFTS5
