package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/vertextoedge/photo-triage/internal/domain"
	"github.com/vertextoedge/photo-triage/internal/domain/vo"
)

// indexErr wraps a database failure as domain.ErrIndexIO
func indexErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrIndexIO, op, err)
}

// Query returns every indexed path in a bucket
func (s *Store) Query(ctx context.Context, loc vo.Location) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT path FROM photos WHERE location = ? ORDER BY path", loc.String())
	if err != nil {
		return nil, indexErr("query", err)
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, indexErr("query", err)
		}
		paths = append(paths, p)
	}
	if err := rows.Err(); err != nil {
		return nil, indexErr("query", err)
	}
	return paths, nil
}

// Count returns the number of photos in a bucket
func (s *Store) Count(ctx context.Context, loc vo.Location) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM photos WHERE location = ?", loc.String()).Scan(&n)
	if err != nil {
		return 0, indexErr("count", err)
	}
	return n, nil
}

// PathAt returns the path at offset within a bucket, ordered by path.
// Returns "" when offset is out of range
func (s *Store) PathAt(ctx context.Context, loc vo.Location, offset int) (string, error) {
	if offset < 0 {
		return "", nil
	}
	var p string
	err := s.db.QueryRowContext(ctx,
		"SELECT path FROM photos WHERE location = ? ORDER BY path LIMIT 1 OFFSET ?",
		loc.String(), offset).Scan(&p)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", indexErr("path at", err)
	}
	return p, nil
}

// All returns every indexed photo
func (s *Store) All(ctx context.Context) ([]*domain.Photo, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, path, location, indexed_at FROM photos ORDER BY location, path")
	if err != nil {
		return nil, indexErr("all", err)
	}
	defer rows.Close()
	return scanPhotos(rows)
}

// ListFolder returns photos in folder across all buckets. With recursive set,
// photos in subfolders are included; the root folder "" then lists everything.
// limit <= 0 means no limit
func (s *Store) ListFolder(ctx context.Context, folder string, recursive bool, limit int) ([]*domain.Photo, error) {
	folder = strings.Trim(folder, "/")

	var (
		query strings.Builder
		args  []any
	)
	query.WriteString("SELECT id, path, location, indexed_at FROM photos")

	switch {
	case recursive && folder == "":
	case recursive:
		query.WriteString(` WHERE folder = ? OR folder LIKE ? ESCAPE '\'`)
		args = append(args, folder, escapeLike(folder)+"/%")
	default:
		query.WriteString(" WHERE folder = ?")
		args = append(args, folder)
	}

	query.WriteString(" ORDER BY path, location")
	if limit > 0 {
		query.WriteString(" LIMIT ?")
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, indexErr("list folder", err)
	}
	defer rows.Close()
	return scanPhotos(rows)
}

// Exists reports whether (path, loc) is indexed
func (s *Store) Exists(ctx context.Context, path string, loc vo.Location) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM photos WHERE path = ? AND location = ?", path, loc.String()).Scan(&n)
	if err != nil {
		return false, indexErr("exists", err)
	}
	return n > 0, nil
}

// InsertBatch inserts photos in one transaction, ignoring duplicates
func (s *Store) InsertBatch(ctx context.Context, photos []*domain.Photo) error {
	if len(photos) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return indexErr("insert batch", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		"INSERT OR IGNORE INTO photos (path, location, folder, indexed_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return indexErr("insert batch", err)
	}
	defer stmt.Close()

	now := time.Now().Unix()
	for _, p := range photos {
		indexedAt := now
		if !p.IndexedAt.IsZero() {
			indexedAt = p.IndexedAt.Unix()
		}
		if _, err := stmt.ExecContext(ctx, p.Path, p.Location.String(), p.Folder(), indexedAt); err != nil {
			return indexErr("insert batch", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return indexErr("insert batch", err)
	}
	return nil
}

// DeleteBatch deletes photos in one transaction
func (s *Store) DeleteBatch(ctx context.Context, photos []*domain.Photo) error {
	if len(photos) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return indexErr("delete batch", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM photos WHERE path = ? AND location = ?")
	if err != nil {
		return indexErr("delete batch", err)
	}
	defer stmt.Close()

	for _, p := range photos {
		if _, err := stmt.ExecContext(ctx, p.Path, p.Location.String()); err != nil {
			return indexErr("delete batch", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return indexErr("delete batch", err)
	}
	return nil
}

// Delete removes a single (path, loc) record
func (s *Store) Delete(ctx context.Context, path string, loc vo.Location) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM photos WHERE path = ? AND location = ?", path, loc.String())
	if err != nil {
		return indexErr("delete", err)
	}
	return nil
}

// Move relocates a record from one bucket to another in one transaction
func (s *Store) Move(ctx context.Context, path string, from, to vo.Location) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return indexErr("move", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM photos WHERE path = ? AND location = ?", path, from.String()); err != nil {
		return indexErr("move", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO photos (path, location, folder, indexed_at) VALUES (?, ?, ?, ?)",
		path, to.String(), vo.FolderOf(path), time.Now().Unix()); err != nil {
		return indexErr("move", err)
	}

	if err := tx.Commit(); err != nil {
		return indexErr("move", err)
	}
	return nil
}

func scanPhotos(rows *sql.Rows) ([]*domain.Photo, error) {
	var photos []*domain.Photo
	for rows.Next() {
		var (
			p         domain.Photo
			locName   string
			indexedAt int64
		)
		if err := rows.Scan(&p.ID, &p.Path, &locName, &indexedAt); err != nil {
			return nil, indexErr("scan", err)
		}
		loc, err := vo.ParseLocation(locName)
		if err != nil {
			continue
		}
		p.Location = loc
		p.IndexedAt = time.Unix(indexedAt, 0)
		photos = append(photos, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, indexErr("scan", err)
	}
	return photos, nil
}

// escapeLike escapes LIKE wildcards so folder names match literally
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
