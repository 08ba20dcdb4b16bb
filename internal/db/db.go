package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// ErrPathTraversal is returned by ResolveSourcePath when a stored or
// requested filename would escape the archive root.
var ErrPathTraversal = errors.New("path traversal attempt detected")

// DB is the summary index over the email archive. Full message content is
// never stored; rows hold listing metadata and detail views re-parse the
// source files on demand.
type DB struct {
	*sql.DB
	archiveRoot string
}

// Open opens the SQLite index at dbPath and initializes the schema.
// archiveRoot is the folder the indexed filenames are relative to.
func Open(dbPath, archiveRoot string) (*DB, error) {
	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// The _time_format=sqlite parameter tells the driver to parse RFC3339 timestamps
	dsn := dbPath + "?_time_format=sqlite"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single connection
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)

	db := &DB{DB: sqlDB, archiveRoot: archiveRoot}

	if err := db.initSchema(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// initSchema creates all tables, indexes, and triggers
func (db *DB) initSchema() error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}

// ArchiveRoot returns the folder the indexed filenames are relative to.
func (db *DB) ArchiveRoot() string {
	return db.archiveRoot
}

// ResolveSourcePath turns an indexed relative filename into an absolute
// path under the archive root. Absolute inputs and anything resolving
// outside the root are rejected with ErrPathTraversal.
func (db *DB) ResolveSourcePath(filename string) (string, error) {
	if db.archiveRoot == "" {
		return "", errors.New("archive root not configured")
	}

	cleaned := filepath.Clean(filepath.FromSlash(filename))
	if filepath.IsAbs(cleaned) {
		return "", ErrPathTraversal
	}

	resolved := filepath.Join(db.archiveRoot, cleaned)
	rel, err := filepath.Rel(db.archiveRoot, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(os.PathSeparator)) {
		return "", ErrPathTraversal
	}
	return resolved, nil
}

// GetSetting retrieves a setting value by key
func (db *DB) GetSetting(key string) (string, error) {
	var value string
	err := db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get setting: %w", err)
	}
	return value, nil
}

// SetSetting sets or updates a setting
func (db *DB) SetSetting(key, value string) error {
	_, err := db.Exec(`
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = ?, updated_at = CURRENT_TIMESTAMP
	`, key, value, value)
	if err != nil {
		return fmt.Errorf("failed to set setting: %w", err)
	}
	return nil
}
