package handlers

import (
	"context"
	"errors"
	"net/http"

	"casecounsel-backend/models"
	"casecounsel-backend/repository"
	"casecounsel-backend/service"

	"github.com/gin-gonic/gin"
)

// SummaryJobReader returns the latest summarization run for a case
type SummaryJobReader interface {
	GetLatestByCase(ctx context.Context, caseID string) (*models.SummaryJob, error)
}

// CaseHandler handles HTTP requests for case workspaces
type CaseHandler struct {
	caseService *service.CaseService
	aggregator  *service.ContextAggregator
	scheduler   service.SummaryScheduler
	jobs        SummaryJobReader
}

// NewCaseHandler creates a new case handler. jobs may be nil.
func NewCaseHandler(caseService *service.CaseService, aggregator *service.ContextAggregator, scheduler service.SummaryScheduler, jobs SummaryJobReader) *CaseHandler {
	return &CaseHandler{
		caseService: caseService,
		aggregator:  aggregator,
		scheduler:   scheduler,
		jobs:        jobs,
	}
}

// CreateCaseRequest represents the request body for creating a case
type CreateCaseRequest struct {
	Title        string               `json:"title" binding:"required"`
	Client       string               `json:"client"`
	Status       string               `json:"status"`
	LegalSide    string               `json:"legal_side"`
	Description  string               `json:"description"`
	Jurisdiction *models.Jurisdiction `json:"jurisdiction"`
}

// CreateCase handles POST /api/cases
func (h *CaseHandler) CreateCase(c *gin.Context) {
	var req CreateCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	created, err := h.caseService.CreateCase(c.Request.Context(), service.CreateCaseRequest{
		CreatorUID:   CurrentUser(c),
		Title:        req.Title,
		Client:       req.Client,
		Status:       models.CaseStatus(req.Status),
		LegalSide:    models.LegalSide(req.LegalSide),
		Description:  req.Description,
		Jurisdiction: req.Jurisdiction,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, created)
}

// ListCases handles GET /api/cases
func (h *CaseHandler) ListCases(c *gin.Context) {
	cases, err := h.caseService.ListCases(c.Request.Context(), CurrentUser(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, cases)
}

// GetCase handles GET /api/cases/:id
func (h *CaseHandler) GetCase(c *gin.Context) {
	found, err := h.caseService.GetCase(c.Request.Context(), c.Param("id"), CurrentUser(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, found)
}

// UpdateCaseRequest represents the request body for updating a case
type UpdateCaseRequest struct {
	Title        *string              `json:"title"`
	Client       *string              `json:"client"`
	Status       *string              `json:"status"`
	LegalSide    *string              `json:"legal_side"`
	Description  *string              `json:"description"`
	Jurisdiction *models.Jurisdiction `json:"jurisdiction"`
}

// UpdateCase handles PUT /api/cases/:id
func (h *CaseHandler) UpdateCase(c *gin.Context) {
	var req UpdateCaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	serviceReq := service.UpdateCaseRequest{
		CaseID:       c.Param("id"),
		RequesterID:  CurrentUser(c),
		Title:        req.Title,
		Client:       req.Client,
		Description:  req.Description,
		Jurisdiction: req.Jurisdiction,
	}
	if req.Status != nil {
		status := models.CaseStatus(*req.Status)
		serviceReq.Status = &status
	}
	if req.LegalSide != nil {
		side := models.LegalSide(*req.LegalSide)
		serviceReq.LegalSide = &side
	}

	updated, err := h.caseService.UpdateCase(c.Request.Context(), serviceReq)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, updated)
}

// GetContext handles GET /api/cases/:id/context
func (h *CaseHandler) GetContext(c *gin.Context) {
	uid := CurrentUser(c)
	found, err := h.caseService.GetCase(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{
		"context":    h.aggregator.Assemble(found, uid),
		"raw_chars":  service.RawContentSize(found),
		"summarized": found.HasSummary(),
	})
}

// Summarize handles POST /api/cases/:id/summarize
func (h *CaseHandler) Summarize(c *gin.Context) {
	uid := CurrentUser(c)
	found, err := h.caseService.GetCase(c.Request.Context(), c.Param("id"), uid)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	queued := h.scheduler.Schedule(found.ID, uid)
	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"data": gin.H{
			"case_id": found.ID,
			"queued":  queued,
		},
	})
}

// GetSummary handles GET /api/cases/:id/summary
func (h *CaseHandler) GetSummary(c *gin.Context) {
	found, err := h.caseService.GetCase(c.Request.Context(), c.Param("id"), CurrentUser(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}

	data := gin.H{
		"summary":            found.GlobalContextSummary,
		"last_summarized_at": found.LastSummarizedAt,
	}
	if h.jobs != nil {
		job, err := h.jobs.GetLatestByCase(c.Request.Context(), found.ID)
		switch {
		case err == nil:
			data["latest_job"] = job
		case errors.Is(err, repository.ErrSummaryJobNotFound):
			// never summarized
		default:
			respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", err.Error())
			return
		}
	}
	respondOK(c, http.StatusOK, data)
}
