// Package storage provides archive backends for audit evidence.
//
// # Storage Backends
//
//   - SQLite: embedded database for durable, single-node archives
//   - Memory: in-memory storage for tests and short-lived runs
//
// Both backends are append-only. Storing an entry whose (audit id, sequence)
// pair already exists fails with evidence.ErrDuplicateEvidence.
//
// # SQLite Backend
//
// The SQLite backend provides:
//
//   - A choice of driver: modernc.org/sqlite ("sqlite", pure Go, default) or
//     github.com/mattn/go-sqlite3 ("sqlite3", cgo)
//   - WAL mode for concurrent reads/writes
//   - Triggers rejecting UPDATE and DELETE on archived evidence
//   - Indexed filter columns next to the canonical JSON payload
//   - Busy timeout for handling locks
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage(&storage.SQLiteConfig{
//	    Path:        "data/evidence.db",
//	    Driver:      storage.DriverModernc,
//	    WALMode:     true,
//	    BusyTimeout: 5 * time.Second,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
//
//	records, err := store.Query(ctx, &evidence.Query{
//	    AuditID:   auditID,
//	    Compliant: &falseVal,
//	    SortBy:    "sequence",
//	})
package storage
