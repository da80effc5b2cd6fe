// Package history keeps the calculations performed during a session.
//
// The store is in-memory only; it lives as long as the process.
package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Calculation is one successful dispatch.
type Calculation struct {
	ID        uuid.UUID
	Operation string
	A         decimal.Decimal
	B         decimal.NullDecimal
	Result    decimal.Decimal
	Isolated  bool
	Duration  time.Duration
	At        time.Time
}

func (c Calculation) String() string {
	if c.B.Valid {
		return fmt.Sprintf("%s %s %s = %s", c.A, c.Operation, c.B.Decimal, c.Result)
	}
	return fmt.Sprintf("%s %s = %s", c.A, c.Operation, c.Result)
}

// Store is a bounded, concurrency-safe list of calculations.
type Store struct {
	mu    sync.RWMutex
	items []Calculation
	limit int
}

// New creates a Store keeping at most limit calculations; limit <= 0 keeps
// everything.
func New(limit int) *Store {
	return &Store{limit: limit}
}

// Add appends c, filling in ID and At when they are zero, and returns the
// stored value. The oldest entry is dropped once the limit is reached.
func (s *Store) Add(c Calculation) Calculation {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.At.IsZero() {
		c.At = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, c)
	if s.limit > 0 && len(s.items) > s.limit {
		s.items = append([]Calculation(nil), s.items[len(s.items)-s.limit:]...)
	}
	return c
}

// All returns a copy of the stored calculations, oldest first.
func (s *Store) All() []Calculation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Calculation(nil), s.items...)
}

// Last returns the most recent calculation.
func (s *Store) Last() (Calculation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.items) == 0 {
		return Calculation{}, false
	}
	return s.items[len(s.items)-1], true
}

// Len reports the number of stored calculations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Clear drops every stored calculation.
func (s *Store) Clear() {
	s.mu.Lock()
	s.items = nil
	s.mu.Unlock()
}
