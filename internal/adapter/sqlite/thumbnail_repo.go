package sqlite

import (
	"context"
	"time"

	"github.com/vertextoedge/photo-triage/internal/domain/repository"
)

// RecordThumbnail stores or refreshes a thumbnail entry
func (s *Store) RecordThumbnail(ctx context.Context, key, sourcePath string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO thumbnails (key, source_path, created_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET source_path = excluded.source_path, created_at = excluded.created_at
	`, key, sourcePath, time.Now().Unix())
	if err != nil {
		return indexErr("record thumbnail", err)
	}
	return nil
}

// OrphanedThumbnails returns entries whose source path no longer matches any
// indexed photo. Source paths are library-root-relative, so sorted photos are
// compared with their bucket prefix
func (s *Store) OrphanedThumbnails(ctx context.Context, limit int) ([]*repository.ThumbnailEntry, error) {
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.key, t.source_path, t.created_at
		FROM thumbnails t
		WHERE NOT EXISTS (
			SELECT 1 FROM photos p
			WHERE (CASE p.location WHEN 'base' THEN p.path ELSE p.location || '/' || p.path END) = t.source_path
		)
		ORDER BY t.created_at
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, indexErr("orphaned thumbnails", err)
	}
	defer rows.Close()

	var entries []*repository.ThumbnailEntry
	for rows.Next() {
		var (
			e         repository.ThumbnailEntry
			createdAt int64
		)
		if err := rows.Scan(&e.Key, &e.SourcePath, &createdAt); err != nil {
			return nil, indexErr("orphaned thumbnails", err)
		}
		e.CreatedAt = time.Unix(createdAt, 0)
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, indexErr("orphaned thumbnails", err)
	}
	return entries, nil
}

// DeleteThumbnail removes an entry
func (s *Store) DeleteThumbnail(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM thumbnails WHERE key = ?", key); err != nil {
		return indexErr("delete thumbnail", err)
	}
	return nil
}

// CountThumbnails returns the number of recorded thumbnails
func (s *Store) CountThumbnails(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM thumbnails").Scan(&n); err != nil {
		return 0, indexErr("count thumbnails", err)
	}
	return n, nil
}
