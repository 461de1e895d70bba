package store

import (
	"database/sql"
	"errors"
	"time"
)

// RunStatus is the lifecycle state of an analysis run.
type RunStatus string

const (
	// RunRunning marks a run whose frame loop has not finished.
	RunRunning RunStatus = "running"
	// RunCompleted marks a run whose artifacts were written.
	RunCompleted RunStatus = "completed"
	// RunFailed marks a run that stopped on an error.
	RunFailed RunStatus = "failed"
)

// Run is the catalog record of one analysis run.
type Run struct {
	ID              string     `json:"id"`
	VideoName       string     `json:"video"`
	Status          RunStatus  `json:"status"`
	TotalFrames     int        `json:"total_frames"`
	ProcessedFrames int        `json:"processed_frames"`
	OutputDir       string     `json:"-"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at,omitempty"`
}

// RunRepository provides catalog operations for runs.
type RunRepository struct {
	db *sql.DB
}

// Runs returns the run repository for this store.
func (s *Store) Runs() *RunRepository {
	return &RunRepository{db: s.db}
}

const runColumns = `id, video_name, status, total_frames, processed_frames, output_dir, error, started_at, finished_at`

// Create inserts a new run.
func (r *RunRepository) Create(run *Run) error {
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	if run.Status == "" {
		run.Status = RunRunning
	}

	_, err := r.db.Exec(
		`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.VideoName, string(run.Status), run.TotalFrames, run.ProcessedFrames,
		run.OutputDir, run.Error, run.StartedAt, run.FinishedAt,
	)
	return err
}

// UpdateProgress stores the number of frames processed so far.
func (r *RunRepository) UpdateProgress(id string, processed int) error {
	return r.exec(`UPDATE runs SET processed_frames = ? WHERE id = ?`, processed, id)
}

// Finish stores the final status of a run.
func (r *RunRepository) Finish(id string, status RunStatus, processed int, errMsg string) error {
	return r.exec(
		`UPDATE runs SET status = ?, processed_frames = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), processed, errMsg, time.Now().UTC(), id,
	)
}

// FailRunning marks runs left in the running state as failed. Runs cannot
// survive a restart, so this is called on startup.
func (r *RunRepository) FailRunning(reason string) (int64, error) {
	result, err := r.db.Exec(
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE status = ?`,
		string(RunFailed), reason, time.Now().UTC(), string(RunRunning),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// GetByID retrieves a run by its ID.
func (r *RunRepository) GetByID(id string) (*Run, error) {
	run, err := scanRun(r.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

// List retrieves runs, most recent first. A limit of 0 returns all runs.
func (r *RunRepository) List(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// LatestCompleted returns the most recent completed run of a video.
func (r *RunRepository) LatestCompleted(videoName string) (*Run, error) {
	run, err := scanRun(r.db.QueryRow(
		`SELECT `+runColumns+` FROM runs WHERE video_name = ? AND status = ?
		 ORDER BY started_at DESC LIMIT 1`,
		videoName, string(RunCompleted),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return run, nil
}

func (r *RunRepository) exec(query string, args ...any) error {
	result, err := r.db.Exec(query, args...)
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

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	run := &Run{}
	var status string
	var finished sql.NullTime

	err := row.Scan(&run.ID, &run.VideoName, &status, &run.TotalFrames, &run.ProcessedFrames,
		&run.OutputDir, &run.Error, &run.StartedAt, &finished)
	if err != nil {
		return nil, err
	}

	run.Status = RunStatus(status)
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	return run, nil
}
