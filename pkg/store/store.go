package store

import (
	"context"
	"errors"

	"github.com/goran-ethernal/ChainReducer/pkg/model"
)

var (
	// ErrNotFound is returned when no entity is stored under the requested id.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when the stored version of an entity does not
	// match the version the write was based on.
	ErrConflict = errors.New("entity version conflict")
)

// Record is the stored form of an entity: its JSON document plus the columns
// needed to query it without decoding.
type Record struct {
	Family    model.Family
	ID        string
	Version   int64
	Deleted   bool
	UpdatedAt uint64
	Document  []byte
}

// EntityStore defines the interface for persisting entity documents.
// Writes are guarded by an optimistic version check only.
type EntityStore interface {
	// Get returns the record stored under id, or ErrNotFound.
	Get(ctx context.Context, family model.Family, id string) (*Record, error)

	// GetByIDs returns the records stored under ids, in no particular order.
	// Soft-deleted records are skipped unless includeDeleted is set.
	GetByIDs(ctx context.Context, family model.Family, ids []string, includeDeleted bool) ([]*Record, error)

	// List returns up to limit records with an id greater than afterID, ordered by id.
	List(ctx context.Context, family model.Family, afterID string, limit int, includeDeleted bool) ([]*Record, error)

	// Save persists rec. rec.Version is the version the write is based on:
	// zero inserts a new record, anything else must match the stored version.
	// It returns the version now stored, or ErrConflict.
	Save(ctx context.Context, rec Record) (int64, error)
}

// EventJournal defines the interface for the append-only log of reduced events.
// It is the source the full reduce path replays from.
type EventJournal interface {
	// Append records events of the given family. Events of one call keep their order.
	Append(ctx context.Context, family model.Family, events []model.Event) error

	// Load returns all events recorded for the entity, in the order they were appended.
	Load(ctx context.Context, family model.Family, id string) ([]model.Event, error)

	// EntityIDs returns the ids of the family that have journaled events.
	EntityIDs(ctx context.Context, family model.Family) ([]string, error)
}
