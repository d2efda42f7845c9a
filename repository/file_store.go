package repository

import (
	"context"
	"sync"
	"time"

	"casecounsel-backend/models"

	"github.com/google/uuid"
)

// FileStore persists metadata for uploaded case documents
type FileStore interface {
	Create(ctx context.Context, file *models.File) error
	GetByID(ctx context.Context, id string) (*models.File, error)
	Delete(ctx context.Context, id string) error
}

// MemoryFileStore implements FileStore in process memory
type MemoryFileStore struct {
	mu    sync.RWMutex
	files map[string]models.File
}

// NewMemoryFileStore creates an empty in-memory file store
func NewMemoryFileStore() *MemoryFileStore {
	return &MemoryFileStore{files: make(map[string]models.File)}
}

// Create stores a file record, assigning an ID when empty
func (s *MemoryFileStore) Create(ctx context.Context, file *models.File) error {
	if file.ID == "" {
		file.ID = uuid.NewString()
	}
	file.CreatedAt = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[file.ID] = *file
	return nil
}

// GetByID returns a copy of the stored record
func (s *MemoryFileStore) GetByID(ctx context.Context, id string) (*models.File, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	file, ok := s.files[id]
	if !ok {
		return nil, ErrFileNotFound
	}
	return &file, nil
}

// Delete removes a file record
func (s *MemoryFileStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, id)
	return nil
}
