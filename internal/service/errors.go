package service

import "github.com/goran-ethernal/ChainReducer/pkg/store"

var (
	// ErrConflict is returned when the stored version moved since the entity was read.
	ErrConflict = store.ErrConflict

	// ErrNotFound is returned when no entity is stored under the requested id.
	ErrNotFound = store.ErrNotFound
)
