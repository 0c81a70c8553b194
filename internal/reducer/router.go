package reducer

import (
	"context"
	"fmt"
	"slices"

	"github.com/goran-ethernal/ChainReducer/internal/compaction"
	"github.com/goran-ethernal/ChainReducer/internal/logger"
	"github.com/goran-ethernal/ChainReducer/pkg/model"
)

// Router dispatches events to the chain of their status and maintains the
// confirmed history and the pending set of the entity.
type Router[T model.Entity[T]] struct {
	chains    Chains[T]
	compactor compaction.Compactor
	log       *logger.Logger
}

// NewRouter creates a new Router over chains.
func NewRouter[T model.Entity[T]](chains Chains[T], compactor compaction.Compactor, log *logger.Logger) *Router[T] {
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Router[T]{
		chains:    chains,
		compactor: compactor,
		log:       log,
	}
}

// Family returns the entity family the router reduces.
func (r *Router[T]) Family() model.Family {
	return r.chains.Family
}

// Fold reduces events into entity in order.
func (r *Router[T]) Fold(ctx context.Context, entity T, events []model.Event) (T, error) {
	var err error
	for _, event := range events {
		entity, err = r.Reduce(ctx, entity, event)
		if err != nil {
			return entity, err
		}
	}
	return entity, nil
}

// Reduce applies a single event to entity.
func (r *Router[T]) Reduce(ctx context.Context, entity T, event model.Event) (T, error) {
	if err := r.validate(event); err != nil {
		return entity, err
	}

	switch event.Status {
	case model.StatusConfirmed:
		return r.confirm(ctx, entity, event)
	case model.StatusPending:
		return r.pend(ctx, entity, event)
	case model.StatusReverted:
		return r.revert(ctx, entity, event)
	case model.StatusInactive, model.StatusDropped:
		return r.drop(ctx, entity, event)
	default:
		return entity, NewUnprocessableEventError(r.chains.Family, event, "unknown status")
	}
}

func (r *Router[T]) validate(event model.Event) error {
	if event.Payload == nil {
		return NewUnprocessableEventError(r.chains.Family, event, "missing payload")
	}

	kind := event.Payload.Kind()
	if !slices.Contains(r.chains.Kinds, kind) {
		return NewUnprocessableEventError(r.chains.Family, event, fmt.Sprintf("kind %s is not supported", kind))
	}

	switch event.Status {
	case model.StatusReverted:
		if _, ok := model.Inverse(event.Payload); !ok {
			return NewUnprocessableEventError(r.chains.Family, event, fmt.Sprintf("kind %s cannot be reverted", kind))
		}
	case model.StatusPending, model.StatusInactive, model.StatusDropped:
		if !slices.Contains(r.chains.PendingKinds, kind) {
			return NewUnprocessableEventError(r.chains.Family, event, fmt.Sprintf("kind %s cannot be pending", kind))
		}
	}

	return nil
}

func (r *Router[T]) confirm(ctx context.Context, entity T, event model.Event) (T, error) {
	history := entity.Meta().RevertableEvents

	if compaction.Locate(history, event.Key) >= 0 {
		r.log.Debugf("skipping duplicate event %s", event)
		return entity, nil
	}

	if last, ok := entity.Meta().LastEvent(); ok && event.Key.Compare(last.Key) < 0 {
		if idx := compaction.SpanOf(history, event); idx >= 0 {
			return r.absorb(ctx, entity, idx, event)
		}
		r.log.Debugf("skipping stale event %s, history ends at %s", event, last.Key)
		return entity, nil
	}

	entity, err := r.removePending(ctx, entity, event)
	if err != nil {
		return entity, err
	}

	meta := entity.Meta()
	meta.RevertableEvents = append(slices.Clone(meta.RevertableEvents), event)
	entity, err = r.chains.Forward(ctx, entity.WithMeta(meta), event)
	if err != nil {
		return entity, err
	}

	meta = entity.Meta()
	meta.RevertableEvents = r.compactor.Apply(meta.RevertableEvents, event.BlockNumber)

	return entity.WithMeta(meta), nil
}

// absorb merges a confirmed event into the compacted entry at idx: the old
// representative is undone and the grown one applied.
func (r *Router[T]) absorb(ctx context.Context, entity T, idx int, event model.Event) (T, error) {
	meta := entity.Meta()
	rep := meta.RevertableEvents[idx]

	merged, err := compaction.Absorb(rep, event)
	if err != nil {
		return entity, err
	}

	entity, err = r.removePending(ctx, entity, event)
	if err != nil {
		return entity, err
	}

	meta = entity.Meta()
	meta.RevertableEvents = slices.Clone(meta.RevertableEvents)
	meta.RevertableEvents[idx] = merged

	return r.replace(ctx, entity.WithMeta(meta), rep, &merged)
}

func (r *Router[T]) revert(ctx context.Context, entity T, event model.Event) (T, error) {
	meta := entity.Meta()

	idx := compaction.Locate(meta.RevertableEvents, event.Key)
	if idx < 0 {
		r.log.Debugf("nothing to revert for %s", event)
		return entity, nil
	}

	entry := meta.RevertableEvents[idx]
	if entry.Payload.Kind() != event.Payload.Kind() {
		return entity, NewUnprocessableEventError(r.chains.Family, event,
			fmt.Sprintf("history entry at %s is %s", event.Key, entry.Payload.Kind()))
	}

	if !entry.IsCompact() {
		meta.RevertableEvents = remove(meta.RevertableEvents, idx)
		return r.chains.Reversed(ctx, entity.WithMeta(meta), entry)
	}

	rest, keep, err := compaction.Split(entry, event)
	if err != nil {
		return entity, NewUnprocessableEventError(r.chains.Family, event, err.Error())
	}

	if !keep {
		meta.RevertableEvents = remove(meta.RevertableEvents, idx)
		return r.replace(ctx, entity.WithMeta(meta), entry, nil)
	}

	meta.RevertableEvents = slices.Clone(meta.RevertableEvents)
	meta.RevertableEvents[idx] = rest

	return r.replace(ctx, entity.WithMeta(meta), entry, &rest)
}

// replace undoes old and applies next, if any. History must already hold
// the final state.
func (r *Router[T]) replace(ctx context.Context, entity T, old model.Event, next *model.Event) (T, error) {
	entity, err := r.chains.Reversed(ctx, entity, old)
	if err != nil || next == nil {
		return entity, err
	}

	return r.chains.Forward(ctx, entity, *next)
}

func (r *Router[T]) pend(ctx context.Context, entity T, event model.Event) (T, error) {
	meta := entity.Meta()

	if indexOrigin(meta.PendingEvents, event) >= 0 {
		r.log.Debugf("event %s is already pending", event)
		return entity, nil
	}

	meta.PendingEvents = append(slices.Clone(meta.PendingEvents), event)

	return r.chains.Pending(ctx, entity.WithMeta(meta), event)
}

func (r *Router[T]) drop(ctx context.Context, entity T, event model.Event) (T, error) {
	if indexOrigin(entity.Meta().PendingEvents, event) < 0 {
		r.log.Debugf("no pending event to drop for %s", event)
		return entity, nil
	}

	return r.removePending(ctx, entity, event)
}

// removePending undoes the provisional effect of the pending counterpart of
// event, if there is one.
func (r *Router[T]) removePending(ctx context.Context, entity T, event model.Event) (T, error) {
	meta := entity.Meta()

	idx := indexOrigin(meta.PendingEvents, event)
	if idx < 0 {
		return entity, nil
	}

	pending := meta.PendingEvents[idx]
	meta.PendingEvents = remove(meta.PendingEvents, idx)

	return r.chains.Inactive(ctx, entity.WithMeta(meta), pending)
}

func indexOrigin(events []model.Event, event model.Event) int {
	return slices.IndexFunc(events, event.SameOrigin)
}

func remove(events []model.Event, idx int) []model.Event {
	if len(events) == 1 {
		return nil
	}
	return slices.Delete(slices.Clone(events), idx, idx+1)
}
