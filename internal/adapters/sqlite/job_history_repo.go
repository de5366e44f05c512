// Package sqlite contains SQLite implementations of repository interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/example/patchbot/internal/ports/secondary"
)

// JobHistoryRepository implements secondary.JobHistoryRepository with SQLite.
type JobHistoryRepository struct {
	db *sql.DB
}

// NewJobHistoryRepository creates a new SQLite job history repository.
func NewJobHistoryRepository(db *sql.DB) *JobHistoryRepository {
	return &JobHistoryRepository{db: db}
}

// Record persists one terminal job outcome.
func (r *JobHistoryRepository) Record(ctx context.Context, rec *secondary.JobHistoryRecord) error {
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO job_history (id, thread_key, description, status, branch_name, pr_url, preview_url, error_message, files_changed, retries, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ThreadKey, rec.Description, rec.Status, rec.BranchName, rec.PRURL, rec.PreviewURL, rec.ErrorMessage, rec.FilesChanged, rec.Retries, createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record job: %w", err)
	}
	return nil
}

// ListRecent returns the most recent outcomes, newest first.
func (r *JobHistoryRepository) ListRecent(ctx context.Context, limit int) ([]*secondary.JobHistoryRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, thread_key, description, status, branch_name, pr_url, preview_url, error_message, files_changed, retries, created_at
		 FROM job_history ORDER BY created_at DESC, id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list job history: %w", err)
	}
	defer rows.Close()

	var records []*secondary.JobHistoryRecord
	for rows.Next() {
		rec := &secondary.JobHistoryRecord{}
		err := rows.Scan(&rec.ID, &rec.ThreadKey, &rec.Description, &rec.Status, &rec.BranchName, &rec.PRURL, &rec.PreviewURL, &rec.ErrorMessage, &rec.FilesChanged, &rec.Retries, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job history row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read job history rows: %w", err)
	}

	return records, nil
}

// Ensure JobHistoryRepository implements the interface
var _ secondary.JobHistoryRepository = (*JobHistoryRepository)(nil)
