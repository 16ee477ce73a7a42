package duckdb

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"
)

// FileFingerprint holds stat-based identity for a file.
type FileFingerprint struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// StatFile creates a FileFingerprint from an on-disk file.
func StatFile(path string) (FileFingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileFingerprint{}, err
	}
	return FileFingerprint{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// Source describes an input file loaded into the store.
type Source struct {
	FileFingerprint
	Kind string
	Rows int64
}

// RecordSource records that fp was loaded as kind with the given row count,
// replacing any previous record.
func (s *Store) RecordSource(fp FileFingerprint, kind string, rows int) error {
	if _, err := s.db.Exec("DELETE FROM sources WHERE path=? AND kind=?", fp.Path, kind); err != nil {
		return fmt.Errorf("clear source: %w", err)
	}
	_, err := s.db.Exec("INSERT INTO sources VALUES (?, ?, ?, ?, ?)",
		fp.Path, kind, fp.Size, fp.ModTime.UnixNano(), int64(rows))
	if err != nil {
		return fmt.Errorf("record source: %w", err)
	}
	return nil
}

// Loaded reports whether fp was already loaded as kind and has not changed
// since.
func (s *Store) Loaded(fp FileFingerprint, kind string) (bool, error) {
	var size, modTime int64
	err := s.db.QueryRow("SELECT size, mod_time_ns FROM sources WHERE path=? AND kind=?", fp.Path, kind).
		Scan(&size, &modTime)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query source: %w", err)
	}
	return size == fp.Size && modTime == fp.ModTime.UnixNano(), nil
}

// Sources lists loaded sources ordered by kind and path.
func (s *Store) Sources() ([]Source, error) {
	rows, err := s.db.Query("SELECT path, kind, size, mod_time_ns, row_count FROM sources ORDER BY kind, path")
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		var src Source
		var modTime int64
		if err := rows.Scan(&src.Path, &src.Kind, &src.Size, &modTime, &src.Rows); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		src.ModTime = time.Unix(0, modTime)
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return out, nil
}
