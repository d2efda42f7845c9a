package repository

import (
	"context"
	"errors"
	"fmt"

	"casecounsel-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CaseRepository handles database operations for case workspaces
type CaseRepository struct {
	db *pgxpool.Pool
}

// NewCaseRepository creates a new case repository
func NewCaseRepository(db *pgxpool.Pool) *CaseRepository {
	return &CaseRepository{db: db}
}

const caseColumns = `
	id, creator_uid, title, client, status, legal_side, description, jurisdiction,
	documents, research_history, messages,
	global_context_summary, last_summarized_at,
	created_at, updated_at`

// rowScanner is satisfied by pgx.Row and pgx.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (*models.Case, error) {
	c := &models.Case{}
	var jurisdiction models.Jurisdiction
	var jurisdictionRaw []byte
	err := row.Scan(
		&c.ID,
		&c.CreatorUID,
		&c.Title,
		&c.Client,
		&c.Status,
		&c.LegalSide,
		&c.Description,
		&jurisdictionRaw,
		&c.Documents,
		&c.ResearchHistory,
		&c.Messages,
		&c.GlobalContextSummary,
		&c.LastSummarizedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCaseNotFound
		}
		return nil, err
	}
	if err := jurisdiction.Scan(jurisdictionRaw); err != nil {
		return nil, fmt.Errorf("failed to decode jurisdiction: %w", err)
	}
	if !jurisdiction.IsZero() {
		c.Jurisdiction = &jurisdiction
	}
	return c, nil
}

// CreateCase creates a new case
func (r *CaseRepository) CreateCase(ctx context.Context, c *models.Case) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	query := `
		INSERT INTO cases (
			id, creator_uid, title, client, status, legal_side, description,
			jurisdiction, documents, research_history, messages
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`

	return r.db.QueryRow(
		ctx, query,
		c.ID,
		c.CreatorUID,
		c.Title,
		c.Client,
		c.Status,
		c.LegalSide,
		c.Description,
		jurisdictionValue(c.Jurisdiction),
		c.Documents,
		c.ResearchHistory,
		c.Messages,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
}

// GetCase retrieves a case by ID
func (r *CaseRepository) GetCase(ctx context.Context, caseID string) (*models.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = $1`
	return scanCase(r.db.QueryRow(ctx, query, caseID))
}

// ListCases retrieves all cases created by a user
func (r *CaseRepository) ListCases(ctx context.Context, creatorUID string) ([]*models.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE creator_uid = $1 ORDER BY created_at DESC`

	rows, err := r.db.Query(ctx, query, creatorUID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cases := make([]*models.Case, 0)
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, c)
	}
	return cases, rows.Err()
}

// Transactionally runs fn inside a database transaction.
// Reads through the transaction take a row lock (SELECT ... FOR UPDATE),
// so concurrent read-modify-write cycles on one case serialize.
func (r *CaseRepository) Transactionally(ctx context.Context, fn func(tx CaseTx) error) error {
	return pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		return fn(&pgCaseTx{tx: tx})
	})
}

type pgCaseTx struct {
	tx pgx.Tx
}

func (t *pgCaseTx) Get(ctx context.Context, caseID string) (*models.Case, error) {
	query := `SELECT ` + caseColumns + ` FROM cases WHERE id = $1 FOR UPDATE`
	return scanCase(t.tx.QueryRow(ctx, query, caseID))
}

func (t *pgCaseTx) Update(ctx context.Context, c *models.Case) error {
	query := `
		UPDATE cases SET
			title = $2,
			client = $3,
			status = $4,
			legal_side = $5,
			description = $6,
			jurisdiction = $7,
			documents = $8,
			research_history = $9,
			messages = $10,
			global_context_summary = $11,
			last_summarized_at = $12,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := t.tx.QueryRow(
		ctx, query,
		c.ID,
		c.Title,
		c.Client,
		c.Status,
		c.LegalSide,
		c.Description,
		jurisdictionValue(c.Jurisdiction),
		c.Documents,
		c.ResearchHistory,
		c.Messages,
		c.GlobalContextSummary,
		c.LastSummarizedAt,
	).Scan(&c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrCaseNotFound
	}
	return err
}

func jurisdictionValue(j *models.Jurisdiction) models.Jurisdiction {
	if j == nil {
		return models.Jurisdiction{}
	}
	return *j
}
