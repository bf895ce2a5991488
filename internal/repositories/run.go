package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/llahellec/de-spotify/internal/models"
	"github.com/llahellec/de-spotify/internal/shared"
)

// ErrRunNotFound is returned when no live run has the requested ID.
var ErrRunNotFound = errors.New("run not found")

const runColumns = `
	id, sequence, stage, checkpoint, processed, succeeded, failed, remaining,
	stop_reason, started_at, finished_at, created_at, updated_at`

// RunRepository implements models.Repository[*models.Run] for the run ledger.
type RunRepository struct {
	db *sql.DB
}

var _ models.Repository[*models.Run] = (*RunRepository)(nil)

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run with a generated ID and sequence
func (r *RunRepository) Create(run *models.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	sequence, err := NextSequence(r.db, "runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()
	run.SetID(id)
	run.SetSequence(sequence)

	_, err = r.db.Exec(`INSERT INTO runs (`+runColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		sequence,
		string(run.Stage()),
		run.Checkpoint(),
		run.Processed(),
		run.Succeeded(),
		run.Failed(),
		run.Remaining(),
		nullString(string(run.StopReason())),
		run.StartedAt(),
		run.FinishedAt(),
		run.CreatedAt(),
		run.UpdatedAt(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// Get retrieves a run by ID, excluding soft-deleted runs
func (r *RunRepository) Get(id string) (*models.Run, error) {
	row := r.db.QueryRow(`SELECT `+runColumns+` FROM runs WHERE id = ? AND deleted_at IS NULL`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// Update writes the counters, stop reason and finish time of an existing run
func (r *RunRepository) Update(run *models.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("%w: %w", shared.ErrInvalidInput, err)
	}

	now := time.Now()
	run.SetUpdatedAt(now)

	result, err := r.db.Exec(`
		UPDATE runs
		SET processed = ?, succeeded = ?, failed = ?, remaining = ?,
			stop_reason = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL`,
		run.Processed(),
		run.Succeeded(),
		run.Failed(),
		run.Remaining(),
		nullString(string(run.StopReason())),
		run.FinishedAt(),
		now,
		run.ID(),
	)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return expectOne(result, run.ID())
}

// Delete soft-deletes a run by ID
func (r *RunRepository) Delete(id string) error {
	result, err := r.db.Exec(`UPDATE runs SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return expectOne(result, id)
}

// List retrieves runs newest first.
//
// Supported criteria: "stage" (string or [models.Stage]), "checkpoint" (string) and "limit" (int).
func (r *RunRepository) List(criteria map[string]any) ([]*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE deleted_at IS NULL`
	args := []any{}

	switch stage := criteria["stage"].(type) {
	case models.Stage:
		if stage != "" {
			query += " AND stage = ?"
			args = append(args, string(stage))
		}
	case string:
		if stage != "" {
			query += " AND stage = ?"
			args = append(args, stage)
		}
	}

	if checkpoint, ok := criteria["checkpoint"].(string); ok && checkpoint != "" {
		query += " AND checkpoint = ?"
		args = append(args, checkpoint)
	}

	query += " ORDER BY sequence DESC"

	if limit, ok := criteria["limit"].(int); ok && limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.Run
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

// Start creates a run for stage on checkpoint, started now.
func (r *RunRepository) Start(stage models.Stage, checkpoint string) (*models.Run, error) {
	run := models.NewRun(0, stage, checkpoint)
	if err := r.Create(run); err != nil {
		return nil, err
	}
	return run, nil
}

// scanner is satisfied by both [sql.Row] and [sql.Rows].
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (*models.Run, error) {
	var (
		id         string
		sequence   int
		stage      string
		checkpoint string
		processed  int
		succeeded  int
		failed     int
		remaining  int
		stopReason sql.NullString
		startedAt  time.Time
		finishedAt sql.NullTime
		createdAt  time.Time
		updatedAt  time.Time
	)

	err := s.Scan(
		&id, &sequence, &stage, &checkpoint, &processed, &succeeded, &failed, &remaining,
		&stopReason, &startedAt, &finishedAt, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}

	run := models.NewRun(sequence, models.Stage(stage), checkpoint)
	run.SetID(id)
	run.SetCounts(processed, succeeded, failed, remaining)
	run.SetStartedAt(startedAt)
	run.SetCreatedAt(createdAt)
	run.SetUpdatedAt(updatedAt)
	if stopReason.Valid {
		run.SetStopReason(models.StopReason(stopReason.String))
	}
	if finishedAt.Valid {
		run.SetFinishedAt(&finishedAt.Time)
	}
	return run, nil
}

func expectOne(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w or already deleted: %s", ErrRunNotFound, id)
	}
	return nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
