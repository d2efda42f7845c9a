package repository

import (
	"context"
	"errors"
	"time"

	"casecounsel-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SummaryJobRepository handles database operations for summarization jobs
type SummaryJobRepository struct {
	db *pgxpool.Pool
}

// NewSummaryJobRepository creates a new summary job repository
func NewSummaryJobRepository(db *pgxpool.Pool) *SummaryJobRepository {
	return &SummaryJobRepository{db: db}
}

// Create creates a new pending summary job
func (r *SummaryJobRepository) Create(ctx context.Context, job *models.SummaryJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.SummaryJobPending
	}
	query := `
		INSERT INTO summary_jobs (id, case_id, requester_uid, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	return r.db.QueryRow(ctx, query, job.ID, job.CaseID, job.RequesterUID, job.Status).
		Scan(&job.CreatedAt, &job.UpdatedAt)
}

// GetLatestByCase retrieves the most recent summary job for a case
func (r *SummaryJobRepository) GetLatestByCase(ctx context.Context, caseID string) (*models.SummaryJob, error) {
	job := &models.SummaryJob{}
	query := `
		SELECT id, case_id, requester_uid, status, input_chars, summary_chars,
			error_message, created_at, updated_at, completed_at
		FROM summary_jobs
		WHERE case_id = $1
		ORDER BY created_at DESC
		LIMIT 1`

	err := r.db.QueryRow(ctx, query, caseID).Scan(
		&job.ID,
		&job.CaseID,
		&job.RequesterUID,
		&job.Status,
		&job.InputChars,
		&job.SummaryChars,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSummaryJobNotFound
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Start marks a job as in progress
func (r *SummaryJobRepository) Start(ctx context.Context, id string, inputChars int) error {
	query := `
		UPDATE summary_jobs SET
			status = $2,
			input_chars = $3,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, models.SummaryJobInProgress, inputChars)
	return err
}

// Finish marks a job as completed or skipped
func (r *SummaryJobRepository) Finish(ctx context.Context, id string, status models.SummaryJobStatus, summaryChars int) error {
	now := time.Now()
	query := `
		UPDATE summary_jobs SET
			status = $2,
			summary_chars = $3,
			completed_at = $4,
			updated_at = $4
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, status, summaryChars, now)
	return err
}

// Fail marks a job as failed
func (r *SummaryJobRepository) Fail(ctx context.Context, id string, errorMessage string) error {
	query := `
		UPDATE summary_jobs SET
			status = $2,
			error_message = $3,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, models.SummaryJobFailed, errorMessage)
	return err
}
