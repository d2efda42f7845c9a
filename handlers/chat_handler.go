package handlers

import (
	"errors"
	"io"
	"net/http"

	"casecounsel-backend/models"
	"casecounsel-backend/service"

	"github.com/gin-gonic/gin"
)

// ChatHandler exposes the reasoning pipeline over HTTP
type ChatHandler struct {
	orchestrator *service.Orchestrator
}

// NewChatHandler creates a new chat handler
func NewChatHandler(orchestrator *service.Orchestrator) *ChatHandler {
	return &ChatHandler{orchestrator: orchestrator}
}

// ChatMessage is one prior turn supplied by the client
type ChatMessage struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content"`
}

// ChatRequest represents the request body for a chat turn
type ChatRequest struct {
	Prompt    string        `json:"prompt" binding:"required"`
	CaseID    string        `json:"case_id"`
	SessionID string        `json:"session_id"`
	LegalSide string        `json:"legal_side"`
	History   []ChatMessage `json:"history"`
}

// Chat handles POST /api/chat
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	history := make([]service.Message, 0, len(req.History))
	for _, m := range req.History {
		if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
			continue
		}
		history = append(history, service.Message{Role: m.Role, Content: m.Content})
	}

	result, err := h.orchestrator.Run(c.Request.Context(), service.ReasoningRequest{
		Prompt:      req.Prompt,
		CaseID:      req.CaseID,
		SessionID:   req.SessionID,
		RequesterID: CurrentUser(c),
		LegalSide:   models.LegalSide(req.LegalSide),
		History:     history,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// ResearchRequest represents the request body for a research query
type ResearchRequest struct {
	Query        string               `json:"query" binding:"required"`
	CaseID       string               `json:"case_id"`
	Jurisdiction *models.Jurisdiction `json:"jurisdiction"`
}

// Research handles POST /api/research
func (h *ChatHandler) Research(c *gin.Context) {
	var req ResearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.orchestrator.Research(c.Request.Context(), service.ResearchRequest{
		Query:        req.Query,
		CaseID:       req.CaseID,
		RequesterID:  CurrentUser(c),
		Jurisdiction: req.Jurisdiction,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// RedraftRequest represents the request body for a redraft
type RedraftRequest struct {
	Text        string `json:"text" binding:"required"`
	Instruction string `json:"instruction" binding:"required"`
	LegalSide   string `json:"legal_side"`
}

// Redraft handles POST /api/cases/:id/redraft
func (h *ChatHandler) Redraft(c *gin.Context) {
	var req RedraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.orchestrator.Redraft(c.Request.Context(), service.RedraftRequest{
		CaseID:      c.Param("id"),
		RequesterID: CurrentUser(c),
		Text:        req.Text,
		Instruction: req.Instruction,
		LegalSide:   models.LegalSide(req.LegalSide),
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}

// AnalyzeRequest represents the optional body of an analysis request
type AnalyzeRequest struct {
	LegalSide string `json:"legal_side"`
	Focus     string `json:"focus"`
}

// Analyze handles POST /api/cases/:id/analyze
func (h *ChatHandler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	// the body is optional
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.orchestrator.Analyze(c.Request.Context(), service.AnalyzeRequest{
		CaseID:      c.Param("id"),
		RequesterID: CurrentUser(c),
		LegalSide:   models.LegalSide(req.LegalSide),
		Focus:       req.Focus,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	respondOK(c, http.StatusOK, result)
}
