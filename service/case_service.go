package service

import (
	"context"
	"errors"
	"strings"

	"casecounsel-backend/models"
	"casecounsel-backend/repository"

	"github.com/google/uuid"
)

// CaseService handles business logic for case workspaces
type CaseService struct {
	store repository.CaseStore
	common
}

// NewCaseService creates a new case service
func NewCaseService(store repository.CaseStore, opts ...Option) *CaseService {
	return &CaseService{store: store, common: newCommon(opts)}
}

// CreateCaseRequest represents a request to create a case
type CreateCaseRequest struct {
	CreatorUID   string
	Title        string
	Client       string
	Status       models.CaseStatus
	LegalSide    models.LegalSide
	Description  string
	Jurisdiction *models.Jurisdiction
}

// CreateCase creates a new case with default values
func (s *CaseService) CreateCase(ctx context.Context, req CreateCaseRequest) (*models.Case, error) {
	if s.store == nil {
		return nil, errors.New("case store not set")
	}
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, stageError("cases", KindInvalid, errors.New("title is required"))
	}

	c := &models.Case{
		CreatorUID:      req.CreatorUID,
		Title:           title,
		Client:          strings.TrimSpace(req.Client),
		Status:          req.Status,
		LegalSide:       models.ParseLegalSide(string(req.LegalSide)),
		Description:     req.Description,
		Documents:       models.CaseDocuments{},
		ResearchHistory: models.ResearchHistory{},
		Messages:        models.ChatMessages{},
	}
	if !req.Jurisdiction.IsZero() {
		j := *req.Jurisdiction
		c.Jurisdiction = &j
	}
	if c.Status == "" {
		c.Status = models.CaseStatusOpen
	}

	if err := s.store.CreateCase(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// GetCase retrieves a case the requester owns
func (s *CaseService) GetCase(ctx context.Context, caseID, requesterID string) (*models.Case, error) {
	if s.store == nil {
		return nil, errors.New("case store not set")
	}
	c, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, caseAccessError("cases", err)
	}
	if !c.OwnedBy(requesterID) {
		return nil, caseAccessError("cases", ErrForbidden)
	}
	return c, nil
}

// ListCases lists the requester's cases
func (s *CaseService) ListCases(ctx context.Context, requesterID string) ([]*models.Case, error) {
	if s.store == nil {
		return nil, errors.New("case store not set")
	}
	return s.store.ListCases(ctx, requesterID)
}

// UpdateCaseRequest represents a partial update; nil fields are unchanged
type UpdateCaseRequest struct {
	CaseID       string
	RequesterID  string
	Title        *string
	Client       *string
	Status       *models.CaseStatus
	LegalSide    *models.LegalSide
	Description  *string
	Jurisdiction *models.Jurisdiction
}

// UpdateCase applies req in one transaction
func (s *CaseService) UpdateCase(ctx context.Context, req UpdateCaseRequest) (*models.Case, error) {
	if s.store == nil {
		return nil, errors.New("case store not set")
	}
	if req.Title != nil && strings.TrimSpace(*req.Title) == "" {
		return nil, stageError("cases", KindInvalid, errors.New("title cannot be empty"))
	}

	var updated *models.Case
	err := s.store.Transactionally(ctx, func(tx repository.CaseTx) error {
		c, err := tx.Get(ctx, req.CaseID)
		if err != nil {
			return err
		}
		if !c.OwnedBy(req.RequesterID) {
			return ErrForbidden
		}
		if req.Title != nil {
			c.Title = strings.TrimSpace(*req.Title)
		}
		if req.Client != nil {
			c.Client = strings.TrimSpace(*req.Client)
		}
		if req.Status != nil {
			c.Status = *req.Status
		}
		if req.LegalSide != nil {
			c.LegalSide = models.ParseLegalSide(string(*req.LegalSide))
		}
		if req.Description != nil {
			c.Description = *req.Description
		}
		if req.Jurisdiction != nil {
			if req.Jurisdiction.IsZero() {
				c.Jurisdiction = nil
			} else {
				j := *req.Jurisdiction
				c.Jurisdiction = &j
			}
		}
		if err := tx.Update(ctx, c); err != nil {
			return err
		}
		updated = c
		return nil
	})
	if err != nil {
		return nil, caseAccessError("cases", err)
	}
	return updated, nil
}

// AddDocument appends an extracted document to the case
func (s *CaseService) AddDocument(ctx context.Context, caseID, requesterID string, doc models.CaseDocument) (*models.CaseDocument, error) {
	if s.store == nil {
		return nil, errors.New("case store not set")
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = s.now()
	}

	err := s.store.Transactionally(ctx, func(tx repository.CaseTx) error {
		c, err := tx.Get(ctx, caseID)
		if err != nil {
			return err
		}
		if !c.OwnedBy(requesterID) {
			return ErrForbidden
		}
		c.Documents = append(c.Documents, doc)
		return tx.Update(ctx, c)
	})
	if err != nil {
		return nil, caseAccessError("cases", err)
	}
	s.logger.Infof("Document %s added to case %s", doc.ID, caseID)
	return &doc, nil
}
