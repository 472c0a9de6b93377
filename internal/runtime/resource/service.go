package resource

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	errspkg "github.com/drblury/resourceflow/internal/runtime/errors"
	loggingpkg "github.com/drblury/resourceflow/internal/runtime/logging"
)

// Option customises a Service.
type Option func(*Service)

// WithCache sets the cache consulted by FindByID.
func WithCache(c Cache) Option {
	return func(s *Service) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithNotifier sets the collaborator told about successful writes.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithLogger sets the service logger.
func WithLogger(l loggingpkg.ServiceLogger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// Service validates and orchestrates resource operations against a Store.
type Service struct {
	store    Store
	cache    Cache
	notifier Notifier
	log      loggingpkg.ServiceLogger
	now      func() time.Time

	// cacheMu orders cache fills against invalidations. generation is
	// bumped on every invalidation; a fill whose store read started under
	// an older generation is dropped.
	cacheMu    sync.Mutex
	generation uint64
}

// NewService returns a Service backed by store.
func NewService(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errspkg.ErrStoreRequired
	}
	s := &Service{
		store: store,
		cache: nopCache{},
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// FindByID returns the resource with id, serving repeated reads from the cache.
func (s *Service) FindByID(ctx context.Context, id int64) (Entity, error) {
	if e, ok := s.cache.Get(id); ok {
		return e, nil
	}
	gen := s.currentGeneration()
	e, err := s.store.FindByID(ctx, id)
	if err != nil {
		return Entity{}, s.translate(err, id, "")
	}
	s.fill(gen, id, e)
	return e, nil
}

func (s *Service) currentGeneration() uint64 {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	return s.generation
}

func (s *Service) fill(gen uint64, id int64, e Entity) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if gen == s.generation {
		s.cache.Put(id, e)
	}
}

func (s *Service) invalidate(id int64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.generation++
	s.cache.Invalidate(id)
}

// FindAll lists every resource.
func (s *Service) FindAll(ctx context.Context, page PageRequest) (Page[Entity], error) {
	return s.list(ctx, Filter{}, page)
}

// FindByStatus lists resources whose status matches exactly.
func (s *Service) FindByStatus(ctx context.Context, status string, page PageRequest) (Page[Entity], error) {
	return s.list(ctx, Filter{Status: status}, page)
}

// Search lists resources whose name or description contains term.
func (s *Service) Search(ctx context.Context, term string, page PageRequest) (Page[Entity], error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return Page[Entity]{}, errspkg.BadRequest("Search term cannot be empty")
	}
	return s.list(ctx, Filter{Term: term}, page)
}

func (s *Service) list(ctx context.Context, filter Filter, page PageRequest) (Page[Entity], error) {
	req, err := page.Normalize()
	if err != nil {
		return Page[Entity]{}, err
	}
	items, total, err := s.store.List(ctx, filter, req)
	if err != nil {
		return Page[Entity]{}, fmt.Errorf("list resources: %w", err)
	}
	return NewPage(items, req, total), nil
}

// Create persists a new resource. The name must be present and unused.
func (s *Service) Create(ctx context.Context, in Input) (Entity, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Entity{}, errspkg.BadRequest("Name is required")
	}

	now := s.now()
	candidate := Entity{
		Name:        name,
		Description: in.Description,
		Status:      statusOr(in.Status, StatusActive),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var created Entity
	err := s.store.InTx(ctx, func(tx Store) error {
		exists, err := tx.ExistsByName(ctx, name)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateName
		}
		created, err = tx.Insert(ctx, candidate)
		return err
	})
	if err != nil {
		return Entity{}, s.translate(err, 0, name)
	}

	s.logger(ctx).Info("Resource created", loggingpkg.LogFields{"resource_id": created.ID, "name": created.Name})
	s.notify(ctx, EventCreated, created)
	return created, nil
}

// Update overwrites name, description and status of an existing resource.
// A blank status keeps the current one.
func (s *Service) Update(ctx context.Context, id int64, in Input) (Entity, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Entity{}, errspkg.BadRequest("Name is required")
	}

	var updated Entity
	err := s.store.InTx(ctx, func(tx Store) error {
		current, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if current.Name != name {
			exists, err := tx.ExistsByName(ctx, name)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateName
			}
		}
		current.Name = name
		current.Description = in.Description
		current.Status = statusOr(in.Status, current.Status)
		current.UpdatedAt = s.now()
		updated, err = tx.Update(ctx, current)
		return err
	})
	if err != nil {
		return Entity{}, s.translate(err, id, name)
	}

	s.invalidate(id)
	s.logger(ctx).Info("Resource updated", loggingpkg.LogFields{"resource_id": id})
	s.notify(ctx, EventUpdated, updated)
	return updated, nil
}

// Delete removes an existing resource.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var deleted Entity
	err := s.store.InTx(ctx, func(tx Store) error {
		current, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		deleted = current
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return s.translate(err, id, "")
	}

	s.invalidate(id)
	s.logger(ctx).Info("Resource deleted", loggingpkg.LogFields{"resource_id": id})
	s.notify(ctx, EventDeleted, deleted)
	return nil
}

// Ping reports whether the store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) translate(err error, id int64, name string) error {
	var typed *errspkg.Error
	switch {
	case errors.As(err, &typed):
		return err
	case errors.Is(err, ErrNotFound):
		return errspkg.NotFound("Resource with id %d not found", id)
	case errors.Is(err, ErrDuplicateName):
		return errspkg.Conflict("Resource with name '%s' already exists", name)
	default:
		return fmt.Errorf("resource store: %w", err)
	}
}

func (s *Service) notify(ctx context.Context, eventType string, e Entity) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, eventType, e)
	}
}

func (s *Service) logger(ctx context.Context) loggingpkg.ServiceLogger {
	if s.log == nil {
		return nopLogger{}
	}
	return loggingpkg.FromContext(ctx, s.log)
}

func statusOr(status, fallback string) string {
	if status = strings.TrimSpace(status); status != "" {
		return status
	}
	return fallback
}

type nopLogger struct{}

func (n nopLogger) With(loggingpkg.LogFields) loggingpkg.ServiceLogger { return n }
func (nopLogger) Debug(string, loggingpkg.LogFields)                   {}
func (nopLogger) Info(string, loggingpkg.LogFields)                    {}
func (nopLogger) Error(string, error, loggingpkg.LogFields)            {}
func (nopLogger) Trace(string, loggingpkg.LogFields)                   {}
