// Package database provides the download ledger.
package database

import (
	"fmt"
	"strings"

	"github.com/bryan-buckman/turfcollector/internal/model"
)

// Store defines the interface for ledger operations.
// Both SQLite and PostgreSQL implementations satisfy this interface.
type Store interface {
	Close() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// RecordDownload adds a stored batch. Recording the same path twice is a no-op.
	RecordDownload(f model.StoredFile) error
	// PendingFallbacks returns fallback files not yet moved to their intended name.
	PendingFallbacks() ([]model.StoredFile, error)
	// MarkReconciled records that the fallback at path now lives at its intended name.
	MarkReconciled(path string) error
	// RecentDownloads returns the latest stored batches, newest first.
	RecentDownloads(limit int) ([]model.StoredFile, error)
}

// Drivers accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open opens the ledger for the given driver. dsn is a file path for
// SQLite and a connection string for PostgreSQL.
func Open(driver, dsn string) (Store, error) {
	switch strings.ToLower(driver) {
	case DriverSQLite, "sqlite3", "":
		return New(dsn)
	case DriverPostgres, "postgresql":
		return NewPostgres(dsn)
	default:
		return nil, fmt.Errorf("unknown ledger driver %q", driver)
	}
}
