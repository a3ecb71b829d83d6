package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"atrx/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// openDB opens a SQLite database with the settings both adapters rely on:
// WAL for cross-process readers, FULL synchronous so a write is on disk
// before it is acknowledged, immediate transactions so a read-then-write
// transaction takes the write lock up front and waits on the busy timeout
// instead of failing on upgrade, and a single connection since the Go
// driver benefits from serializing access.
func openDB(ctx context.Context, dbPath string, logger ports.Logger) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=FULL&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	logger.Info(ctx, "SQLite database connection established", map[string]interface{}{"path": dbPath})
	return db, nil
}

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}
