package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/mangax/internal/models"
	"github.com/desertthunder/mangax/internal/shared"
)

// RunRepository persists [models.BatchRun] entries.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

const runColumns = `
	id, sequence, mode, total, processed, matched, conflicts, pending,
	cancelled, error_message, started_at, finished_at, created_at, updated_at
`

// Create inserts a new run with generated ID and sequence
func (r *RunRepository) Create(run *models.BatchRun) error {
	sequence, err := NextSequence(r.db, "batch_runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	run.ID = shared.GenerateID()
	run.Sequence = sequence

	query := `INSERT INTO batch_runs (` + runColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.Exec(query,
		run.ID,
		run.Sequence,
		run.Mode,
		run.Total,
		run.Processed,
		run.Matched,
		run.Conflicts,
		run.Pending,
		run.Cancelled,
		nullString(run.ErrorMessage),
		run.StartedAt,
		run.FinishedAt,
		run.CreatedAt,
		run.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert batch run: %w", err)
	}
	return nil
}

// Get retrieves a run by ID
func (r *RunRepository) Get(id string) (*models.BatchRun, error) {
	query := `SELECT ` + runColumns + ` FROM batch_runs WHERE id = ?`
	run, err := scanRun(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: batch run %s", shared.ErrNotFound, id)
	}
	return run, err
}

// Latest retrieves the run with the highest sequence.
func (r *RunRepository) Latest() (*models.BatchRun, error) {
	query := `SELECT ` + runColumns + ` FROM batch_runs ORDER BY sequence DESC LIMIT 1`
	run, err := scanRun(r.db.QueryRow(query))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: no batch runs recorded", shared.ErrNotFound)
	}
	return run, err
}

// Update writes the counters and completion state of run.
func (r *RunRepository) Update(run *models.BatchRun) error {
	now := time.Now()
	run.UpdatedAt = now

	query := `
		UPDATE batch_runs
		SET processed = ?, matched = ?, conflicts = ?, pending = ?,
			cancelled = ?, error_message = ?, finished_at = ?, updated_at = ?
		WHERE id = ?
	`

	result, err := r.db.Exec(query,
		run.Processed,
		run.Matched,
		run.Conflicts,
		run.Pending,
		run.Cancelled,
		nullString(run.ErrorMessage),
		run.FinishedAt,
		now,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update batch run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: batch run %s", shared.ErrNotFound, run.ID)
	}
	return nil
}

// List retrieves up to limit runs, newest first. A non-positive limit returns all runs.
func (r *RunRepository) List(limit int) ([]*models.BatchRun, error) {
	query := `SELECT ` + runColumns + ` FROM batch_runs ORDER BY sequence DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query batch runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.BatchRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRun scans a single row from either [sql.Row] or [sql.Rows] into a [models.BatchRun]
func scanRun(row scanner) (*models.BatchRun, error) {
	var (
		run          models.BatchRun
		mode         string
		errorMessage sql.NullString
		finishedAt   sql.NullTime
	)

	err := row.Scan(
		&run.ID, &run.Sequence, &mode, &run.Total, &run.Processed, &run.Matched,
		&run.Conflicts, &run.Pending, &run.Cancelled, &errorMessage, &run.StartedAt,
		&finishedAt, &run.CreatedAt, &run.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan batch run: %w", err)
	}

	run.Mode = models.BatchMode(mode)
	if errorMessage.Valid {
		run.ErrorMessage = errorMessage.String
	}
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return &run, nil
}
