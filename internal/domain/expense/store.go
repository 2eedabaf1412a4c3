// Package expense holds the in-memory expense collection of one trip
// together with its pure filtering, sorting and counting helpers.
package expense

import (
	"context"
	"fmt"
	"sync"

	"github.com/garyjia/trip-expense/internal/domain/entity"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PhotoReleaser frees a receipt photo once its expense is gone
type PhotoReleaser interface {
	Release(ctx context.Context, handle string) error
}

// Viewer decides which expenses a caller may see
type Viewer struct {
	Name string
	// Privileged viewers (leaders and auditors) see every expense
	Privileged bool
}

// Patch carries the fields of a partial update; nil means unchanged
type Patch struct {
	Category     *entity.Category `json:"category,omitempty"`
	Date         *string          `json:"date,omitempty"`
	Description  *string          `json:"description,omitempty"`
	Currency     *string          `json:"currency,omitempty"`
	Amount       *float64         `json:"amount,omitempty"`
	ExchangeRate *float64         `json:"exchangeRate,omitempty"`
	Photo        *string          `json:"-"`
	BelongTo     *string          `json:"belongTo,omitempty"`
}

// Apply merges the provided fields into exp and recomputes amountNTD
func (p Patch) Apply(exp *entity.Expense) {
	if p.Category != nil {
		exp.Category = *p.Category
	}
	if p.Date != nil {
		exp.Date = *p.Date
	}
	if p.Description != nil {
		exp.Description = *p.Description
	}
	if p.Currency != nil {
		exp.Currency = *p.Currency
	}
	if p.Amount != nil {
		exp.Amount = *p.Amount
	}
	if p.ExchangeRate != nil {
		exp.ExchangeRate = *p.ExchangeRate
	}
	if p.Photo != nil {
		exp.Photo = *p.Photo
	}
	if p.BelongTo != nil {
		exp.BelongTo = *p.BelongTo
	}
	exp.RecomputeNTD()
}

// Store is a concurrency-safe expense collection keyed by local id
type Store struct {
	mu     sync.RWMutex
	items  map[string]*entity.Expense
	order  []string
	newID  func() string
	photos PhotoReleaser
	logger *zap.Logger
}

// NewStore creates an empty store. photos may be nil.
func NewStore(photos PhotoReleaser, logger *zap.Logger) *Store {
	return &Store{
		items:  make(map[string]*entity.Expense),
		newID:  uuid.NewString,
		photos: photos,
		logger: logger,
	}
}

// Add validates and inserts a copy of exp, assigning a fresh id when absent
func (s *Store) Add(exp entity.Expense) (*entity.Expense, error) {
	if err := exp.Validate(); err != nil {
		return nil, err
	}
	if exp.ExpenseStatus == "" {
		exp.ExpenseStatus = entity.ReviewPending
	}
	exp.RecomputeNTD()

	s.mu.Lock()
	defer s.mu.Unlock()

	if exp.ID == "" {
		exp.ID = s.newID()
	}
	if _, exists := s.items[exp.ID]; exists {
		return nil, fmt.Errorf("%w: duplicate expense id %s", entity.ErrValidation, exp.ID)
	}

	s.items[exp.ID] = &exp
	s.order = append(s.order, exp.ID)
	return exp.Clone(), nil
}

// Update merges the provided fields into the expense and recomputes amountNTD
func (s *Store) Update(id string, patch Patch) (*entity.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.items[id]
	if !ok {
		return nil, fmt.Errorf("%w: expense %s", entity.ErrNotFound, id)
	}

	next := current.Clone()
	patch.Apply(next)
	if err := next.Validate(); err != nil {
		return nil, err
	}

	s.items[id] = next
	return next.Clone(), nil
}

// Remove deletes the expense and releases its photo.
// A failed release is logged and does not fail the removal.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	exp, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: expense %s", entity.ErrNotFound, id)
	}
	delete(s.items, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	if exp.Photo != "" && s.photos != nil {
		if err := s.photos.Release(ctx, exp.Photo); err != nil {
			s.logger.Warn("Failed to release expense photo",
				zap.String("expense_id", id),
				zap.Error(err))
		}
	}
	return nil
}

// Get returns a copy of the expense with the given id
func (s *Store) Get(id string) (*entity.Expense, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	exp, ok := s.items[id]
	if !ok {
		return nil, false
	}
	return exp.Clone(), true
}

// All returns copies of every expense in insertion order
func (s *Store) All() []*entity.Expense {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entity.Expense, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.items[id].Clone())
	}
	return out
}

// Visible returns the expenses the viewer may see
func (s *Store) Visible(viewer Viewer) []*entity.Expense {
	all := s.All()
	if viewer.Privileged {
		return all
	}

	out := make([]*entity.Expense, 0, len(all))
	for _, exp := range all {
		if exp.VisibleTo(viewer.Name) {
			out = append(out, exp)
		}
	}
	return out
}

// Replace swaps the whole collection, as done after a download
func (s *Store) Replace(expenses []*entity.Expense) {
	items := make(map[string]*entity.Expense, len(expenses))
	order := make([]string, 0, len(expenses))
	for _, exp := range expenses {
		c := exp.Clone()
		if c.ID == "" {
			c.ID = c.ExpenseID
		}
		if c.ID == "" {
			c.ID = s.newID()
		}
		if _, dup := items[c.ID]; dup {
			continue
		}
		items[c.ID] = c
		order = append(order, c.ID)
	}

	s.mu.Lock()
	s.items = items
	s.order = order
	s.mu.Unlock()
}

// Len returns the number of stored expenses
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
