// Package storage keeps the append-only log of accepted alerts.
//
// Backends:
//   - sqlite: modernc.org/sqlite database file (default)
//   - file: JSON Lines file, one row per line
//   - mysql: gorm over a MySQL DSN
//
// Driver "none" disables logging; Open then returns a nil Store.
package storage
