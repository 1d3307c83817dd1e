package sqlite

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection with thread-safe access.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// New creates and initializes a new SQLite database connection.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// migrate creates the necessary tables if they don't exist.
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS scans (
		id TEXT PRIMARY KEY,
		profile TEXT NOT NULL,
		required_bin TEXT DEFAULT '',
		required_last4 TEXT DEFAULT '',
		started_at DATETIME NOT NULL,
		completed_at DATETIME NOT NULL,
		final_state TEXT NOT NULL,
		frame_count INTEGER DEFAULT 0,
		ocr_frame_count INTEGER DEFAULT 0,
		card_frame_count INTEGER DEFAULT 0,
		verification_status TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS frames (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		sequence INTEGER NOT NULL,
		captured_at DATETIME,
		bin TEXT DEFAULT '',
		last4 TEXT DEFAULT '',
		expiry TEXT DEFAULT '',
		centered_card_state TEXT NOT NULL,
		ocr_success INTEGER DEFAULT 0,
		flash_forced_on INTEGER DEFAULT 0,
		confidence REAL DEFAULT 0,
		number_boxes TEXT DEFAULT '',
		square_path TEXT DEFAULT '',
		full_path TEXT DEFAULT '',
		FOREIGN KEY (scan_id) REFERENCES scans(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_scans_started_at ON scans(started_at);
	CREATE INDEX IF NOT EXISTS idx_scans_final_state ON scans(final_state);
	CREATE INDEX IF NOT EXISTS idx_frames_scan_id ON frames(scan_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection for use by repositories.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Lock acquires a write lock.
func (db *DB) Lock() {
	db.mu.Lock()
}

// Unlock releases the write lock.
func (db *DB) Unlock() {
	db.mu.Unlock()
}

// RLock acquires a read lock.
func (db *DB) RLock() {
	db.mu.RLock()
}

// RUnlock releases the read lock.
func (db *DB) RUnlock() {
	db.mu.RUnlock()
}
