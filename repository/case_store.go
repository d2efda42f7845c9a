package repository

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"casecounsel-backend/models"

	"github.com/google/uuid"
)

var (
	ErrCaseNotFound = errors.New("case not found")
	ErrFileNotFound = errors.New("file not found")
	ErrUserNotFound = errors.New("user not found")

	ErrSummaryJobNotFound = errors.New("summary job not found")
)

// CaseTx is the read-your-writes view of the case store inside a transaction
type CaseTx interface {
	// Get reads a case, locking it for the rest of the transaction
	Get(ctx context.Context, caseID string) (*models.Case, error)

	// Update writes the mutable fields of a case
	Update(ctx context.Context, c *models.Case) error
}

// CaseStore is the document store for case workspaces
type CaseStore interface {
	GetCase(ctx context.Context, caseID string) (*models.Case, error)
	CreateCase(ctx context.Context, c *models.Case) error
	ListCases(ctx context.Context, creatorUID string) ([]*models.Case, error)

	// Transactionally runs fn in one transaction. Writes made through tx
	// are committed only when fn returns nil.
	Transactionally(ctx context.Context, fn func(tx CaseTx) error) error
}

// MemoryCaseStore implements CaseStore in process memory.
// Transactions are serialized, which gives the same no-lost-update
// guarantee as the row lock taken by CaseRepository.
type MemoryCaseStore struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	cases map[string]*models.Case
	now   func() time.Time
}

// NewMemoryCaseStore creates an empty in-memory case store
func NewMemoryCaseStore() *MemoryCaseStore {
	return &MemoryCaseStore{
		cases: make(map[string]*models.Case),
		now:   time.Now,
	}
}

// GetCase returns a copy of the stored case
func (s *MemoryCaseStore) GetCase(ctx context.Context, caseID string) (*models.Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.cases[caseID]
	if !ok {
		return nil, ErrCaseNotFound
	}
	return c.Clone(), nil
}

// CreateCase stores a new case, assigning an ID when empty
func (s *MemoryCaseStore) CreateCase(ctx context.Context, c *models.Case) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := s.now()
	c.CreatedAt = now
	c.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases[c.ID] = c.Clone()
	return nil
}

// ListCases returns the creator's cases, newest first
func (s *MemoryCaseStore) ListCases(ctx context.Context, creatorUID string) ([]*models.Case, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	cases := make([]*models.Case, 0)
	for _, c := range s.cases {
		if c.CreatorUID == creatorUID {
			cases = append(cases, c.Clone())
		}
	}
	sort.Slice(cases, func(i, j int) bool {
		return cases[i].CreatedAt.After(cases[j].CreatedAt)
	})
	return cases, nil
}

// Transactionally runs fn with staged writes applied on success
func (s *MemoryCaseStore) Transactionally(ctx context.Context, fn func(tx CaseTx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryCaseTx{store: s, staged: make(map[string]*models.Case)}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, c := range tx.staged {
		s.cases[id] = c
	}
	return nil
}

type memoryCaseTx struct {
	store  *MemoryCaseStore
	staged map[string]*models.Case
}

func (tx *memoryCaseTx) Get(ctx context.Context, caseID string) (*models.Case, error) {
	if c, ok := tx.staged[caseID]; ok {
		return c.Clone(), nil
	}
	return tx.store.GetCase(ctx, caseID)
}

func (tx *memoryCaseTx) Update(ctx context.Context, c *models.Case) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx.store.mu.RLock()
	_, exists := tx.store.cases[c.ID]
	tx.store.mu.RUnlock()
	if !exists {
		if _, staged := tx.staged[c.ID]; !staged {
			return ErrCaseNotFound
		}
	}
	updated := c.Clone()
	updated.UpdatedAt = tx.store.now()
	tx.staged[c.ID] = updated
	return nil
}
