package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Repository provides the record-store operations for tracked files.
type Repository struct {
	db *DB
}

// NewRepository creates a new Repository.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// AddFile inserts a tracking record for a stored file. Filenames are
// assumed unique among live rows; no constraint enforces it.
func (r *Repository) AddFile(ctx context.Context, terminationTime int64, filename string) error {
	return r.db.exec(func(conn *sql.DB) error {
		_, err := conn.ExecContext(ctx,
			"INSERT INTO files VALUES (?, ?)", terminationTime, filename)
		if err != nil {
			return fmt.Errorf("failed to insert tracked file: %w", err)
		}
		return nil
	})
}

// ListExpired returns every tracked file whose termination time lies
// before now (epoch milliseconds).
func (r *Repository) ListExpired(ctx context.Context, now int64) ([]TrackedFile, error) {
	var files []TrackedFile

	err := r.db.exec(func(conn *sql.DB) error {
		rows, err := conn.QueryContext(ctx,
			"SELECT termination_time, filename FROM files WHERE termination_time < ?", now)
		if err != nil {
			return fmt.Errorf("failed to query expired files: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var f TrackedFile
			if err := rows.Scan(&f.TerminationTime, &f.Filename); err != nil {
				return fmt.Errorf("failed to scan expired file: %w", err)
			}
			files = append(files, f)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// DeleteExpired removes every row whose termination time lies before now.
// Callers pass the same now they gave ListExpired; an insert racing the
// pair can only add a row either call misses, which the next sweep picks
// up.
func (r *Repository) DeleteExpired(ctx context.Context, now int64) error {
	return r.db.exec(func(conn *sql.DB) error {
		_, err := conn.ExecContext(ctx,
			"DELETE FROM files WHERE termination_time < ?", now)
		if err != nil {
			return fmt.Errorf("failed to delete expired files: %w", err)
		}
		return nil
	})
}
