package store

import (
	"database/sql"
	"errors"
	"time"
)

// Video is an uploaded source video.
type Video struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Path       string    `json:"-"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// VideoRepository provides catalog operations for uploaded videos.
type VideoRepository struct {
	db *sql.DB
}

// Videos returns the video repository for this store.
func (s *Store) Videos() *VideoRepository {
	return &VideoRepository{db: s.db}
}

// Upsert records an upload. Uploading a name again replaces the file, so the
// existing row is refreshed rather than duplicated.
func (r *VideoRepository) Upsert(v *Video) error {
	v.UploadedAt = time.Now().UTC()

	err := r.db.QueryRow(
		`INSERT INTO videos (name, path, size_bytes, uploaded_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			path = excluded.path,
			size_bytes = excluded.size_bytes,
			uploaded_at = excluded.uploaded_at
		 RETURNING id`,
		v.Name, v.Path, v.SizeBytes, v.UploadedAt,
	).Scan(&v.ID)
	return err
}

// GetByName retrieves a video by its file name.
func (r *VideoRepository) GetByName(name string) (*Video, error) {
	v := &Video{}
	err := r.db.QueryRow(
		`SELECT id, name, path, size_bytes, uploaded_at FROM videos WHERE name = ?`,
		name,
	).Scan(&v.ID, &v.Name, &v.Path, &v.SizeBytes, &v.UploadedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return v, nil
}

// List retrieves all videos, most recent upload first.
func (r *VideoRepository) List() ([]*Video, error) {
	rows, err := r.db.Query(
		`SELECT id, name, path, size_bytes, uploaded_at FROM videos ORDER BY uploaded_at DESC, id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	videos := []*Video{}
	for rows.Next() {
		v := &Video{}
		if err := rows.Scan(&v.ID, &v.Name, &v.Path, &v.SizeBytes, &v.UploadedAt); err != nil {
			return nil, err
		}
		videos = append(videos, v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return videos, nil
}

// Delete removes a video row by name.
func (r *VideoRepository) Delete(name string) error {
	result, err := r.db.Exec(`DELETE FROM videos WHERE name = ?`, name)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}
