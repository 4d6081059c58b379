package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/jward/pydefect/internal/detect"
)

// FileByPath returns the cached file record for path, or nil when the path
// has never been cached.
func (s *Store) FileByPath(path string) (*File, error) {
	f := &File{}
	var analyzedAt sql.NullTime
	err := s.db.QueryRow(
		"SELECT id, path, hash, analyzed_at FROM files WHERE path = ?", path,
	).Scan(&f.ID, &f.Path, &f.Hash, &analyzedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	if analyzedAt.Valid {
		f.AnalyzedAt = analyzedAt.Time
	}
	return f, nil
}

// SaveResult replaces the cached result for f.Path within a single
// transaction: the file row is upserted, its old defects are deleted and the
// new ones inserted in order. f.ID is set on success.
func (s *Store) SaveResult(f *File, defects []detect.Defect) error {
	if f.AnalyzedAt.IsZero() {
		f.AnalyzedAt = time.Now().Truncate(time.Second)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("save result: begin: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRow(
		`INSERT INTO files (path, hash, analyzed_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = excluded.hash, analyzed_at = excluded.analyzed_at
		 RETURNING id`,
		f.Path, f.Hash, f.AnalyzedAt,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("save result: upsert file %s: %w", f.Path, err)
	}

	if _, err := tx.Exec("DELETE FROM defects WHERE file_id = ?", id); err != nil {
		return fmt.Errorf("save result: clear defects: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO defects (file_id, ordinal, kind, line, col, message) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("save result: prepare: %w", err)
	}
	defer stmt.Close()

	for i, d := range defects {
		if _, err := stmt.Exec(id, i, string(d.Kind), d.Line, d.Column, d.Message); err != nil {
			return fmt.Errorf("save result: defect %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save result: commit: %w", err)
	}
	f.ID = id
	return nil
}

// DefectsByFile returns a file's cached defects in their original order.
func (s *Store) DefectsByFile(fileID int64) ([]detect.Defect, error) {
	rows, err := s.db.Query(
		"SELECT kind, line, col, message FROM defects WHERE file_id = ? ORDER BY ordinal", fileID,
	)
	if err != nil {
		return nil, fmt.Errorf("defects by file: %w", err)
	}
	defer rows.Close()

	var out []detect.Defect
	for rows.Next() {
		var d detect.Defect
		var kind string
		if err := rows.Scan(&kind, &d.Line, &d.Column, &d.Message); err != nil {
			return nil, fmt.Errorf("scan defect: %w", err)
		}
		d.Kind = detect.Kind(kind)
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteFile removes a file's cached result. Deleting an unknown path is not
// an error.
func (s *Store) DeleteFile(path string) error {
	if _, err := s.db.Exec("DELETE FROM files WHERE path = ?", path); err != nil {
		return fmt.Errorf("delete file %s: %w", path, err)
	}
	return nil
}
