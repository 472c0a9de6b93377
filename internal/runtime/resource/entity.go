// Package resource holds the resource domain: the entity, paging and the
// service enforcing existence and uniqueness rules over a Store.
package resource

import (
	"context"
	"errors"
	"time"
)

// StatusActive is assigned to resources created without a status.
const StatusActive = "ACTIVE"

// Entity is the resource managed by the service.
type Entity struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Input carries the writable fields of a resource for create and update.
type Input struct {
	Name        string
	Description string
	Status      string
}

// Filter narrows a listing. Zero values mean no filtering.
type Filter struct {
	Status string
	Term   string
}

var (
	// ErrNotFound is returned by stores when no row matches.
	ErrNotFound = errors.New("resource: not found")
	// ErrDuplicateName is returned by stores when a unique name constraint rejects a write.
	ErrDuplicateName = errors.New("resource: duplicate name")
)

// Store persists resources. Implementations must be safe for concurrent use.
type Store interface {
	FindByID(ctx context.Context, id int64) (Entity, error)
	List(ctx context.Context, filter Filter, page PageRequest) ([]Entity, int64, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	Insert(ctx context.Context, e Entity) (Entity, error)
	Update(ctx context.Context, e Entity) (Entity, error)
	Delete(ctx context.Context, id int64) error
	// InTx runs fn against a store bound to a single transaction.
	InTx(ctx context.Context, fn func(tx Store) error) error
	Ping(ctx context.Context) error
}

// Cache holds entities keyed by id. Implementations must be safe for concurrent use.
type Cache interface {
	Get(id int64) (Entity, bool)
	Put(id int64, e Entity)
	Invalidate(id int64)
}

// Notifier is told about successful writes.
type Notifier interface {
	Notify(ctx context.Context, eventType string, e Entity)
}

// Event types passed to Notifier.
const (
	EventCreated = "resource.created"
	EventUpdated = "resource.updated"
	EventDeleted = "resource.deleted"
)

type nopCache struct{}

func (nopCache) Get(int64) (Entity, bool) { return Entity{}, false }
func (nopCache) Put(int64, Entity)        {}
func (nopCache) Invalidate(int64)         {}
