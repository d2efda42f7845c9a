package repository

import (
	"context"
	"errors"

	"casecounsel-backend/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FileRepository handles database operations for uploaded case files
type FileRepository struct {
	db *pgxpool.Pool
}

// NewFileRepository creates a new file repository
func NewFileRepository(db *pgxpool.Pool) *FileRepository {
	return &FileRepository{db: db}
}

// Create creates a new file record
func (r *FileRepository) Create(ctx context.Context, file *models.File) error {
	query := `
		INSERT INTO case_files (
			id, user_id, case_id, filename, mime_type, size, sha256, storage_path
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	return r.db.QueryRow(
		ctx, query,
		file.ID,
		file.UserID,
		file.CaseID,
		file.Filename,
		file.MimeType,
		file.Size,
		file.SHA256,
		file.StoragePath,
	).Scan(&file.CreatedAt)
}

// GetByID retrieves a file by ID
func (r *FileRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	file := &models.File{}
	query := `
		SELECT id, user_id, case_id, filename, mime_type, size, sha256, storage_path, created_at
		FROM case_files
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&file.ID,
		&file.UserID,
		&file.CaseID,
		&file.Filename,
		&file.MimeType,
		&file.Size,
		&file.SHA256,
		&file.StoragePath,
		&file.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}

	return file, nil
}

// Delete deletes a file record
func (r *FileRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM case_files WHERE id = $1`, id)
	return err
}
