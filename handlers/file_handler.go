package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"casecounsel-backend/extract"
	"casecounsel-backend/models"
	"casecounsel-backend/repository"
	"casecounsel-backend/service"
	"casecounsel-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultMaxFileSize = 10 * 1024 * 1024 // 10MB

// documentTypes are accepted in addition to any text/* type
var documentTypes = []string{
	"application/pdf",
	"application/msword",
	"application/x-ole-storage", // .doc sniffed without a declared type
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/json",
}

// FileHandler handles document uploads and downloads
type FileHandler struct {
	files            repository.FileStore
	caseService      *service.CaseService
	storage          storage.Storage
	extractor        extract.Extractor
	logger           *zap.SugaredLogger
	maxFileSize      int64
	allowedMimeTypes map[string]bool
}

// NewFileHandler creates a new file handler
func NewFileHandler(files repository.FileStore, caseService *service.CaseService, store storage.Storage, extractor extract.Extractor, logger *zap.SugaredLogger) *FileHandler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	allowed := make(map[string]bool, len(documentTypes))
	for _, t := range documentTypes {
		allowed[t] = true
	}
	return &FileHandler{
		files:            files,
		caseService:      caseService,
		storage:          store,
		extractor:        extractor,
		logger:           logger,
		maxFileSize:      defaultMaxFileSize,
		allowedMimeTypes: allowed,
	}
}

func (h *FileHandler) allowed(mimeType string) bool {
	return h.allowedMimeTypes[mimeType] || strings.HasPrefix(mimeType, "text/")
}

// UploadDocument handles POST /api/cases/:id/documents
func (h *FileHandler) UploadDocument(c *gin.Context) {
	ctx := c.Request.Context()
	uid := CurrentUser(c)

	owned, err := h.caseService.GetCase(ctx, c.Param("id"), uid)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, http.StatusBadRequest, "MISSING_FILE", "File is required")
		return
	}
	if fileHeader.Size > h.maxFileSize {
		respondError(c, http.StatusBadRequest, "FILE_TOO_LARGE",
			fmt.Sprintf("File size exceeds maximum of %d bytes", h.maxFileSize))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, http.StatusInternalServerError, "FILE_OPEN_ERROR", err.Error())
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.maxFileSize+1))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "FILE_READ_ERROR", err.Error())
		return
	}
	if int64(len(data)) > h.maxFileSize {
		respondError(c, http.StatusBadRequest, "FILE_TOO_LARGE",
			fmt.Sprintf("File size exceeds maximum of %d bytes", h.maxFileSize))
		return
	}

	declared := fileHeader.Header.Get("Content-Type")
	mimeType, _, _ := strings.Cut(extract.DetectMIME(data), ";")
	if !h.allowed(mimeType) {
		respondError(c, http.StatusBadRequest, "INVALID_FILE_TYPE",
			"File type not allowed. Allowed types: PDF, TXT, DOC, DOCX, HTML, CSV, JSON, Markdown")
		return
	}

	fileID := uuid.NewString()
	storagePath, err := h.storage.Upload(ctx, storage.Object{
		CaseID:      owned.ID,
		FileID:      fileID,
		Filename:    fileHeader.Filename,
		ContentType: mimeType,
	}, bytes.NewReader(data))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "UPLOAD_FAILED", fmt.Sprintf("Failed to upload file: %v", err))
		return
	}

	extracted, err := h.extractor.Extract(ctx, data, declared)
	if err != nil {
		h.cleanup(c, storagePath, "")
		respondError(c, http.StatusInternalServerError, "EXTRACTION_FAILED", err.Error())
		return
	}

	sum, _ := extracted.Metadata["sha256"].(string)
	fileRecord := &models.File{
		ID:          fileID,
		UserID:      uid,
		CaseID:      owned.ID,
		Filename:    fileHeader.Filename,
		MimeType:    mimeType,
		Size:        int64(len(data)),
		SHA256:      sum,
		StoragePath: storagePath,
	}
	if err := h.files.Create(ctx, fileRecord); err != nil {
		h.cleanup(c, storagePath, "")
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", fmt.Sprintf("Failed to save file record: %v", err))
		return
	}

	doc, err := h.caseService.AddDocument(ctx, owned.ID, uid, models.CaseDocument{
		FileID:           fileID,
		Name:             fileHeader.Filename,
		Type:             mimeType,
		ExtractedText:    extracted.Text,
		ForensicMetadata: extracted.Metadata,
	})
	if err != nil {
		h.cleanup(c, storagePath, fileID)
		respondServiceError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, gin.H{
		"document":   doc,
		"file_id":    fileRecord.ID,
		"size":       fileRecord.Size,
		"created_at": fileRecord.CreatedAt,
	})
}

// cleanup removes what an upload left behind when a later step failed
func (h *FileHandler) cleanup(c *gin.Context, storagePath, fileID string) {
	ctx := c.Request.Context()
	if fileID != "" {
		if err := h.files.Delete(ctx, fileID); err != nil {
			h.logger.Warnf("Warning: Failed to delete file record %s: %v", fileID, err)
		}
	}
	if err := h.storage.Delete(ctx, storagePath); err != nil {
		h.logger.Warnf("Warning: Failed to delete stored object %s: %v", storagePath, err)
	}
}

// GetFile handles GET /api/files/:id
func (h *FileHandler) GetFile(c *gin.Context) {
	id := c.Param("id")
	if err := uuid.Validate(id); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "Invalid file ID format")
		return
	}

	file, err := h.files.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			respondError(c, http.StatusNotFound, "NOT_FOUND", "File not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "DATABASE_ERROR", err.Error())
		return
	}
	if file.UserID != CurrentUser(c) {
		respondError(c, http.StatusForbidden, "FORBIDDEN", "You do not have access to this file")
		return
	}

	reader, err := h.storage.Download(c.Request.Context(), file.StoragePath)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			respondError(c, http.StatusNotFound, "NOT_FOUND", "File content not found")
			return
		}
		respondError(c, http.StatusInternalServerError, "DOWNLOAD_FAILED", fmt.Sprintf("Failed to download file: %v", err))
		return
	}
	defer reader.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Filename))
	c.DataFromReader(http.StatusOK, file.Size, file.MimeType, reader, nil)
}
