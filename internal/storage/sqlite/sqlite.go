package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/slok/btorch/internal/log"
	"github.com/slok/btorch/internal/model"
	"github.com/slok/btorch/internal/storage"
	"github.com/slok/btorch/internal/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.SQLite"})
	return nil
}

// Repository is a SQLite implementation of storage.Repository.
type Repository struct {
	db     *sql.DB
	logger log.Logger
}

var _ storage.Repository = &Repository{}

// NewRepository creates a new SQLite repository.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	dir := filepath.Dir(cfg.DBPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", cfg.DBPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run migrations: %w", err)
	}

	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)

	return &Repository{db: db, logger: cfg.Logger}, nil
}

// Close closes the database connection.
func (r *Repository) Close() error { return r.db.Close() }

const selectColumns = `
	SELECT
		id, task_id, mode, phase,
		progress, status_text, error_message,
		result_json,
		submitted_at, finished_at
	FROM jobs
`

// CreateJob stores a new job record.
func (r *Repository) CreateJob(ctx context.Context, j model.JobRecord) error {
	if err := j.Validate(); err != nil {
		return fmt.Errorf("invalid job record: %w", err)
	}

	result, err := marshalResult(j.Result)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO jobs (
			id, task_id, mode, phase,
			progress, status_text, error_message,
			result_json,
			submitted_at, finished_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(
		ctx,
		query,
		j.ID,
		j.TaskID,
		j.Mode,
		j.Phase,
		j.Progress,
		j.StatusText,
		j.ErrorMessage,
		result,
		j.SubmittedAt.UnixMilli(),
		unixMilliOrNil(j.FinishedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: jobs.") {
			return fmt.Errorf("job already exists: %w", model.ErrAlreadyExists)
		}
		return fmt.Errorf("could not insert job: %w", err)
	}

	r.logger.Debugf("Created job in repository: %s", j.ID)
	return nil
}

// GetJob retrieves a job record by ID.
func (r *Repository) GetJob(ctx context.Context, id string) (*model.JobRecord, error) {
	job, err := r.scanOne(ctx, selectColumns+`WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job %s: %w", id, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query job: %w", err)
	}

	return job, nil
}

// GetJobByTaskID retrieves a job record by its backend task ID.
func (r *Repository) GetJobByTaskID(ctx context.Context, taskID string) (*model.JobRecord, error) {
	job, err := r.scanOne(ctx, selectColumns+`WHERE task_id = ?`, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("job with task id %s: %w", taskID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("could not query job: %w", err)
	}

	return job, nil
}

// ListJobs returns the job records, newest first.
func (r *Repository) ListJobs(ctx context.Context, opts storage.ListOptions) ([]model.JobRecord, error) {
	query := selectColumns
	args := []any{}
	if opts.Mode != "" {
		query += `WHERE mode = ? `
		args = append(args, opts.Mode)
	}
	query += `ORDER BY submitted_at DESC, id DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.JobRecord
	for rows.Next() {
		job, err := r.scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		jobs = append(jobs, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return jobs, nil
}

// UpdateJob updates an existing job record.
func (r *Repository) UpdateJob(ctx context.Context, j model.JobRecord) error {
	if err := j.Validate(); err != nil {
		return fmt.Errorf("invalid job record: %w", err)
	}

	result, err := marshalResult(j.Result)
	if err != nil {
		return err
	}

	query := `
		UPDATE jobs
		SET
			task_id = ?,
			mode = ?,
			phase = ?,
			progress = ?,
			status_text = ?,
			error_message = ?,
			result_json = ?,
			submitted_at = ?,
			finished_at = ?
		WHERE id = ?
	`

	res, err := r.db.ExecContext(
		ctx,
		query,
		j.TaskID,
		j.Mode,
		j.Phase,
		j.Progress,
		j.StatusText,
		j.ErrorMessage,
		result,
		j.SubmittedAt.UnixMilli(),
		unixMilliOrNil(j.FinishedAt),
		j.ID,
	)
	if err != nil {
		return fmt.Errorf("could not update job: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("job %s: %w", j.ID, model.ErrNotFound)
	}

	r.logger.Debugf("Updated job in repository: %s", j.ID)
	return nil
}

// DeleteJob deletes a job record.
func (r *Repository) DeleteJob(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("could not delete job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("job %s: %w", id, model.ErrNotFound)
	}

	r.logger.Debugf("Deleted job from repository: %s", id)
	return nil
}

func (r *Repository) scanOne(ctx context.Context, query string, arg any) (*model.JobRecord, error) {
	row := r.db.QueryRowContext(ctx, query, arg)
	job, err := r.scanRow(row)
	if err != nil {
		return nil, err
	}
	return &job, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (r *Repository) scanRow(s scanner) (model.JobRecord, error) {
	var job model.JobRecord
	var mode, phase string
	var result sql.NullString
	var submittedAt int64
	var finishedAt sql.NullInt64

	err := s.Scan(
		&job.ID,
		&job.TaskID,
		&mode,
		&phase,
		&job.Progress,
		&job.StatusText,
		&job.ErrorMessage,
		&result,
		&submittedAt,
		&finishedAt,
	)
	if err != nil {
		return model.JobRecord{}, err
	}

	job.Mode = model.JobMode(mode)
	job.Phase = model.Phase(phase)
	job.SubmittedAt = timeFromUnixMilli(submittedAt)
	if finishedAt.Valid {
		t := timeFromUnixMilli(finishedAt.Int64)
		job.FinishedAt = &t
	}

	if result.Valid && result.String != "" {
		var res model.CanonicalResult
		if err := json.Unmarshal([]byte(result.String), &res); err != nil {
			return model.JobRecord{}, fmt.Errorf("could not unmarshal result of job %s: %w", job.ID, err)
		}
		job.Result = &res
	}

	return job, nil
}

func marshalResult(res *model.CanonicalResult) (*string, error) {
	if res == nil {
		return nil, nil
	}
	b, err := json.Marshal(res)
	if err != nil {
		return nil, fmt.Errorf("could not marshal result: %w", err)
	}
	s := string(b)
	return &s, nil
}

func unixMilliOrNil(t *time.Time) *int64 {
	if t == nil {
		return nil
	}
	u := t.UnixMilli()
	return &u
}

func timeFromUnixMilli(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
