package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Videos table - uploaded source videos, one row per file name
		`CREATE TABLE IF NOT EXISTS videos (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			path TEXT NOT NULL,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			uploaded_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Runs table - one row per analysis run
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			video_name TEXT NOT NULL REFERENCES videos(name) ON DELETE CASCADE,
			status TEXT NOT NULL CHECK(status IN ('running', 'completed', 'failed')),
			total_frames INTEGER NOT NULL DEFAULT 0,
			processed_frames INTEGER NOT NULL DEFAULT 0,
			output_dir TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			started_at DATETIME NOT NULL,
			finished_at DATETIME
		)`,

		`CREATE INDEX IF NOT EXISTS idx_runs_video_name ON runs(video_name)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
