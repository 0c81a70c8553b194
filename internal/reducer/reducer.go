// Package reducer folds events into entities. Field reducers each own one
// concern of an entity and are composed into fixed chains per event status;
// the Router picks the chain and keeps the event history of the entity.
package reducer

import (
	"context"

	"github.com/goran-ethernal/ChainReducer/pkg/model"
)

// Reducer applies one event to an entity and returns the new entity.
type Reducer[T any] func(ctx context.Context, entity T, event model.Event) (T, error)

// Chain runs reducers in order, feeding each the output of the previous one.
func Chain[T any](reducers ...Reducer[T]) Reducer[T] {
	return func(ctx context.Context, entity T, event model.Event) (T, error) {
		var err error
		for _, reduce := range reducers {
			entity, err = reduce(ctx, entity, event)
			if err != nil {
				return entity, err
			}
		}
		return entity, nil
	}
}

// Chains holds the reducer chain of every status for one entity family.
type Chains[T any] struct {
	Family model.Family

	// Kinds are the payload kinds the family accepts.
	Kinds []model.Kind
	// PendingKinds are the kinds that may carry a provisional effect.
	PendingKinds []model.Kind

	Forward  Reducer[T]
	Pending  Reducer[T]
	Reversed Reducer[T]
	Inactive Reducer[T]
}

// direction is the sign an event's effect is applied with.
type direction int

const (
	apply  direction = 1
	revert direction = -1
)

func (d direction) adjust(current, delta model.Amount) model.Amount {
	if d == revert {
		return current.Sub(delta)
	}
	return current.Add(delta)
}

func (d direction) opposite() direction {
	return -d
}
