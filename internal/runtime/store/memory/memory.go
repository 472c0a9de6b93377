// Package memory provides an in-process resource store for local runs and tests.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/drblury/resourceflow/internal/runtime/resource"
)

// Store keeps resources in a map. Names are unique, mirroring the unique
// index of the Postgres store.
type Store struct {
	mu     sync.RWMutex
	rows   map[int64]resource.Entity
	nextID int64
}

// New returns an empty Store.
func New() *Store {
	return &Store{rows: make(map[int64]resource.Entity)}
}

func (s *Store) FindByID(_ context.Context, id int64) (resource.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.rows[id]
	if !ok {
		return resource.Entity{}, resource.ErrNotFound
	}
	return e, nil
}

func (s *Store) List(_ context.Context, filter resource.Filter, page resource.PageRequest) ([]resource.Entity, int64, error) {
	s.mu.RLock()
	matched := make([]resource.Entity, 0, len(s.rows))
	for _, e := range s.rows {
		if matches(e, filter) {
			matched = append(matched, e)
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(matched, comparator(page.Sort))

	total := int64(len(matched))
	start := min(max(page.Offset(), 0), len(matched))
	end := min(start+page.Size, len(matched))
	return matched[start:end], total, nil
}

func (s *Store) ExistsByName(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nameTaken(name, 0), nil
}

func (s *Store) Insert(_ context.Context, e resource.Entity) (resource.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nameTaken(e.Name, 0) {
		return resource.Entity{}, resource.ErrDuplicateName
	}
	s.nextID++
	e.ID = s.nextID
	s.rows[e.ID] = e
	return e, nil
}

func (s *Store) Update(_ context.Context, e resource.Entity) (resource.Entity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.rows[e.ID]
	if !ok {
		return resource.Entity{}, resource.ErrNotFound
	}
	if s.nameTaken(e.Name, e.ID) {
		return resource.Entity{}, resource.ErrDuplicateName
	}
	e.CreatedAt = current.CreatedAt
	s.rows[e.ID] = e
	return e, nil
}

func (s *Store) Delete(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rows[id]; !ok {
		return resource.ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

// InTx runs fn against the store itself. Individual writes are atomic; the
// block as a whole is not isolated from concurrent callers.
func (s *Store) InTx(_ context.Context, fn func(tx resource.Store) error) error {
	return fn(s)
}

func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) nameTaken(name string, except int64) bool {
	for id, e := range s.rows {
		if id != except && e.Name == name {
			return true
		}
	}
	return false
}

func matches(e resource.Entity, filter resource.Filter) bool {
	if filter.Status != "" && e.Status != filter.Status {
		return false
	}
	if filter.Term != "" && !strings.Contains(e.Name, filter.Term) && !strings.Contains(e.Description, filter.Term) {
		return false
	}
	return true
}

func comparator(sort resource.Sort) func(a, b resource.Entity) int {
	return func(a, b resource.Entity) int {
		var c int
		switch sort.Field {
		case "name":
			c = strings.Compare(a.Name, b.Name)
		case "description":
			c = strings.Compare(a.Description, b.Description)
		case "status":
			c = strings.Compare(a.Status, b.Status)
		case "createdAt":
			c = a.CreatedAt.Compare(b.CreatedAt)
		case "updatedAt":
			c = a.UpdatedAt.Compare(b.UpdatedAt)
		}
		if c == 0 {
			c = cmp.Compare(a.ID, b.ID)
		}
		if sort.Descending {
			return -c
		}
		return c
	}
}
