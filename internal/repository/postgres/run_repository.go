package postgres

import (
	"context"
	"time"
)

// ProcessingRun records one batch invocation of the transform engine.
type ProcessingRun struct {
	ID             int64      `db:"id"`
	TotalFiles     int        `db:"total_files"`
	ProcessedFiles int        `db:"processed_files"`
	FailedFiles    int        `db:"failed_files"`
	StartedAt      time.Time  `db:"started_at"`
	CompletedAt    *time.Time `db:"completed_at"`
}

// FileJob records the outcome for one file within a processing run.
type FileJob struct {
	ID             int64      `db:"id"`
	RunID          int64      `db:"run_id"`
	SourceKey      string     `db:"source_key"`
	DestinationKey string     `db:"destination_key"`
	RecordCount    int        `db:"record_count"`
	Status         string     `db:"status"`
	ErrorMessage   string     `db:"error_message"`
	ProcessedAt    *time.Time `db:"processed_at"`
}

// SweepRun records one execution of the lifecycle sweep.
type SweepRun struct {
	ID         int64     `db:"id"`
	Scanned    int       `db:"scanned"`
	Archived   int       `db:"archived"`
	Failed     int       `db:"failed"`
	BytesMoved int64     `db:"bytes_moved"`
	Cutoff     time.Time `db:"cutoff"`
	StartedAt  time.Time `db:"started_at"`
	DurationMS int64     `db:"duration_ms"`
}

const (
	FileJobCompleted = "completed"
	FileJobFailed    = "failed"
)

// RunRepository persists run history for operator inspection. The pipeline
// works without it; both components stay stateless across invocations.
type RunRepository struct {
	db *DB
}

func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db}
}

// EnsureSchema creates the run-history tables if they are missing.
func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS processing_runs (
			id BIGSERIAL PRIMARY KEY,
			total_files INT NOT NULL,
			processed_files INT NOT NULL DEFAULT 0,
			failed_files INT NOT NULL DEFAULT 0,
			started_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS file_jobs (
			id BIGSERIAL PRIMARY KEY,
			run_id BIGINT NOT NULL REFERENCES processing_runs(id),
			source_key TEXT NOT NULL,
			destination_key TEXT NOT NULL DEFAULT '',
			record_count INT NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			error_message TEXT NOT NULL DEFAULT '',
			processed_at TIMESTAMPTZ
		);
		CREATE TABLE IF NOT EXISTS sweep_runs (
			id BIGSERIAL PRIMARY KEY,
			scanned INT NOT NULL,
			archived INT NOT NULL,
			failed INT NOT NULL,
			bytes_moved BIGINT NOT NULL,
			cutoff TIMESTAMPTZ NOT NULL,
			started_at TIMESTAMPTZ NOT NULL,
			duration_ms BIGINT NOT NULL
		);
	`
	_, err := r.db.ExecContext(ctx, schema)
	return err
}

// CreateProcessingRun inserts a new run record and fills in its ID.
func (r *RunRepository) CreateProcessingRun(ctx context.Context, run *ProcessingRun) error {
	query := `
		INSERT INTO processing_runs (total_files, processed_files, failed_files, started_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`
	return r.db.QueryRowContext(
		ctx, query,
		run.TotalFiles, run.ProcessedFiles, run.FailedFiles, run.StartedAt,
	).Scan(&run.ID)
}

// CompleteProcessingRun finalizes a run's counters.
func (r *RunRepository) CompleteProcessingRun(ctx context.Context, run *ProcessingRun) error {
	query := `
		UPDATE processing_runs
		SET processed_files = $1, failed_files = $2, completed_at = $3
		WHERE id = $4
	`
	_, err := r.db.ExecContext(
		ctx, query,
		run.ProcessedFiles, run.FailedFiles, run.CompletedAt, run.ID,
	)
	return err
}

// CreateFileJob inserts the outcome for one file.
func (r *RunRepository) CreateFileJob(ctx context.Context, job *FileJob) error {
	query := `
		INSERT INTO file_jobs (run_id, source_key, destination_key, record_count, status, error_message, processed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	return r.db.QueryRowContext(
		ctx, query,
		job.RunID, job.SourceKey, job.DestinationKey, job.RecordCount,
		job.Status, job.ErrorMessage, job.ProcessedAt,
	).Scan(&job.ID)
}

// GetFileJobsByRunID retrieves all file jobs for a processing run.
func (r *RunRepository) GetFileJobsByRunID(ctx context.Context, runID int64) ([]*FileJob, error) {
	query := `
		SELECT id, run_id, source_key, destination_key, record_count, status, error_message, processed_at
		FROM file_jobs
		WHERE run_id = $1
		ORDER BY id
	`
	var jobs []*FileJob
	if err := r.db.SelectContext(ctx, &jobs, query, runID); err != nil {
		return nil, err
	}
	return jobs, nil
}

// CreateSweepRun inserts a sweep report and fills in its ID.
func (r *RunRepository) CreateSweepRun(ctx context.Context, run *SweepRun) error {
	query := `
		INSERT INTO sweep_runs (scanned, archived, failed, bytes_moved, cutoff, started_at, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`
	return r.db.QueryRowContext(
		ctx, query,
		run.Scanned, run.Archived, run.Failed, run.BytesMoved,
		run.Cutoff, run.StartedAt, run.DurationMS,
	).Scan(&run.ID)
}

// LatestSweepRun returns the most recent sweep run, or nil if none exist.
func (r *RunRepository) LatestSweepRun(ctx context.Context) (*SweepRun, error) {
	query := `
		SELECT id, scanned, archived, failed, bytes_moved, cutoff, started_at, duration_ms
		FROM sweep_runs
		ORDER BY started_at DESC
		LIMIT 1
	`
	var runs []*SweepRun
	if err := r.db.SelectContext(ctx, &runs, query); err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return runs[0], nil
}
