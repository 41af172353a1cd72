package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/bryan-buckman/turfcollector/internal/model"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
}

var _ Store = (*DB)(nil)

// New opens or creates an SQLite ledger at the given path.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Enable WAL mode for better concurrency.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// DatabaseType returns the database backend name.
func (db *DB) DatabaseType() string {
	return "SQLite"
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS downloads (
		path TEXT PRIMARY KEY,
		feed_id TEXT NOT NULL,
		latest DATETIME NOT NULL,
		size INTEGER NOT NULL,
		fallback INTEGER NOT NULL DEFAULT 0,
		intended_path TEXT NOT NULL DEFAULT '',
		stored_at DATETIME NOT NULL,
		reconciled_at DATETIME
	);
	CREATE INDEX IF NOT EXISTS downloads_stored_at ON downloads (stored_at);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// RecordDownload inserts a stored batch unless its path is already known.
func (db *DB) RecordDownload(f model.StoredFile) error {
	fallback := 0
	if f.Fallback {
		fallback = 1
	}
	_, err := db.conn.Exec(`
		INSERT INTO downloads (path, feed_id, latest, size, fallback, intended_path, stored_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO NOTHING`,
		f.Path, f.FeedID, f.Latest.UTC(), f.Size, fallback, f.IntendedPath, f.StoredAt.UTC())
	return err
}

// PendingFallbacks returns unreconciled fallback files, oldest first.
func (db *DB) PendingFallbacks() ([]model.StoredFile, error) {
	rows, err := db.conn.Query(`
		SELECT path, feed_id, latest, size, fallback, intended_path, stored_at
		FROM downloads WHERE fallback = 1 AND reconciled_at IS NULL
		ORDER BY stored_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFiles(rows)
}

// MarkReconciled stamps the fallback at path as moved.
func (db *DB) MarkReconciled(path string) error {
	_, err := db.conn.Exec("UPDATE downloads SET reconciled_at = ? WHERE path = ?", time.Now().UTC(), path)
	return err
}

// RecentDownloads returns up to limit stored batches, newest first.
func (db *DB) RecentDownloads(limit int) ([]model.StoredFile, error) {
	rows, err := db.conn.Query(`
		SELECT path, feed_id, latest, size, fallback, intended_path, stored_at
		FROM downloads ORDER BY stored_at DESC, path DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanFiles(rows)
}

func scanFiles(rows *sql.Rows) ([]model.StoredFile, error) {
	var files []model.StoredFile
	for rows.Next() {
		var f model.StoredFile
		var latest, storedAt sql.NullTime
		if err := rows.Scan(&f.Path, &f.FeedID, &latest, &f.Size, &f.Fallback, &f.IntendedPath, &storedAt); err != nil {
			return nil, err
		}
		if latest.Valid {
			f.Latest = latest.Time.UTC()
		}
		if storedAt.Valid {
			f.StoredAt = storedAt.Time.UTC()
		}
		files = append(files, f)
	}
	return files, rows.Err()
}
