package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/vertextoedge/photo-triage/internal/adapter/sqlite/migrations"
	"github.com/vertextoedge/photo-triage/internal/domain"
	"github.com/vertextoedge/photo-triage/internal/domain/vo"
	"github.com/vertextoedge/photo-triage/internal/port"
)

// Store implements port.Store interface using SQLite
type Store struct {
	db *sql.DB
}

// Ensure Store implements port.Store
var _ port.Store = (*Store)(nil)

// Open opens a connection to the SQLite database and migrates the schema
func Open(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}

	// Open database with WAL mode and busy timeout
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers, so move transactions never
	// hit SQLITE_BUSY against each other
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -16000", // 16MB cache
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma %s: %w", pragma, err)
		}
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Ping checks database connectivity
func (s *Store) Ping() error {
	return s.db.Ping()
}

// CheckSchema reports whether the schema is at the latest migration
func (s *Store) CheckSchema() error {
	return migrations.CheckStatus(s.db)
}

// GetIndexStats returns photo counts per bucket
func (s *Store) GetIndexStats(ctx context.Context) (*domain.IndexStats, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT location, COUNT(*) FROM photos GROUP BY location")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexIO, err)
	}
	defer rows.Close()

	counts := make(map[vo.Location]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrIndexIO, err)
		}
		loc, err := vo.ParseLocation(name)
		if err != nil {
			// rows written by hand with an unknown location are ignored
			continue
		}
		counts[loc] += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrIndexIO, err)
	}

	return domain.NewIndexStats(counts), nil
}
