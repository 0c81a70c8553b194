// Package service persists entities under optimistic concurrency and owns the
// single retry-with-reread loop of the reduce pipeline.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/goran-ethernal/ChainReducer/internal/common"
	"github.com/goran-ethernal/ChainReducer/internal/logger"
	"github.com/goran-ethernal/ChainReducer/internal/notifier"
	"github.com/goran-ethernal/ChainReducer/internal/reducer"
	"github.com/goran-ethernal/ChainReducer/pkg/config"
	"github.com/goran-ethernal/ChainReducer/pkg/model"
	"github.com/goran-ethernal/ChainReducer/pkg/store"
)

// TemplateFunc returns the empty entity an unseen id starts from.
type TemplateFunc[T any] func(id string) (T, error)

// FoldFunc computes the next state of an entity from its current state.
// It may run several times for one update and must not have side effects.
type FoldFunc[T any] func(ctx context.Context, current T) (T, error)

// Result describes the outcome of UpdateWithRetry.
type Result[T any] struct {
	// Entity is the stored state after the update.
	Entity T
	// Changed is false when the fold reproduced the stored state and nothing was written.
	Changed bool
	// Attempts is the number of folds run.
	Attempts int
}

// EntityService reads and writes the entities of one family.
type EntityService[T model.Entity[T]] struct {
	family   model.Family
	store    store.EntityStore
	template TemplateFunc[T]
	notifier notifier.Notifier
	retry    config.RetryConfig
	log      *logger.Logger
}

// New creates an EntityService for the family of T.
func New[T model.Entity[T]](
	st store.EntityStore,
	template TemplateFunc[T],
	n notifier.Notifier,
	retry *config.RetryConfig,
	log *logger.Logger,
) *EntityService[T] {
	var zero T

	if n == nil {
		n = notifier.Nop{}
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	retryCfg := config.RetryConfig{}
	if retry != nil {
		retryCfg = *retry
	}
	retryCfg.ApplyDefaults()

	return &EntityService[T]{
		family:   zero.Family(),
		store:    st,
		template: template,
		notifier: n,
		retry:    retryCfg,
		log:      log.WithComponent(common.ComponentEntityService),
	}
}

// Family returns the family of the entities served.
func (s *EntityService[T]) Family() model.Family {
	return s.family
}

// Template returns the empty entity for id.
func (s *EntityService[T]) Template(id string) (T, error) {
	return s.template(id)
}

// Get returns the stored entity, or an error wrapping ErrNotFound.
func (s *EntityService[T]) Get(ctx context.Context, id string) (T, error) {
	var zero T

	rec, err := s.store.Get(ctx, s.family, id)
	if err != nil {
		return zero, err
	}

	return s.decode(rec)
}

// GetOrTemplate returns the stored entity, or the template when id is unseen.
// found reports which of the two was returned.
func (s *EntityService[T]) GetOrTemplate(ctx context.Context, id string) (entity T, found bool, err error) {
	entity, err = s.Get(ctx, id)
	switch {
	case err == nil:
		return entity, true, nil
	case errors.Is(err, ErrNotFound):
		entity, err = s.template(id)
		if err != nil {
			return entity, false, fmt.Errorf("failed to build template of %s %s: %w", s.family, id, err)
		}
		return entity, false, nil
	default:
		return entity, false, err
	}
}

// GetByIDs returns the stored entities among ids. Soft-deleted entities are
// skipped unless includeDeleted is set.
func (s *EntityService[T]) GetByIDs(ctx context.Context, ids []string, includeDeleted bool) ([]T, error) {
	records, err := s.store.GetByIDs(ctx, s.family, ids, includeDeleted)
	if err != nil {
		return nil, err
	}

	entities := make([]T, 0, len(records))
	for _, rec := range records {
		entity, err := s.decode(rec)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}

	return entities, nil
}

// List returns a page of stored entities ordered by id.
func (s *EntityService[T]) List(ctx context.Context, afterID string, limit int, includeDeleted bool) ([]T, error) {
	records, err := s.store.List(ctx, s.family, afterID, limit, includeDeleted)
	if err != nil {
		return nil, err
	}

	entities := make([]T, 0, len(records))
	for _, rec := range records {
		entity, err := s.decode(rec)
		if err != nil {
			return nil, err
		}
		entities = append(entities, entity)
	}

	return entities, nil
}

// Update persists entity if the stored version still equals the version it
// carries, and notifies once the write is durable. It returns the entity with
// its new version, or an error wrapping ErrConflict.
func (s *EntityService[T]) Update(ctx context.Context, entity T) (T, error) {
	meta := entity.Meta()
	expected := meta.Version

	meta.Version = expected + 1
	next := entity.WithMeta(meta)

	doc, err := json.Marshal(next)
	if err != nil {
		return entity, fmt.Errorf("failed to encode %s %s: %w", s.family, meta.ID, err)
	}

	if _, err := s.store.Save(ctx, store.Record{
		Family:    s.family,
		ID:        meta.ID,
		Version:   expected,
		Deleted:   meta.Deleted,
		UpdatedAt: meta.LastUpdatedAt,
		Document:  doc,
	}); err != nil {
		return entity, err
	}

	snapshot := notifier.Snapshot{
		Family:   s.family,
		ID:       meta.ID,
		Version:  meta.Version,
		Deleted:  meta.Deleted,
		Document: doc,
	}
	if err := s.notifier.Notify(ctx, s.family, snapshot); err != nil {
		// the write is durable, a failed notification does not undo it
		s.log.Warnf("failed to notify change of %s %s v%d: %v", s.family, meta.ID, meta.Version, err)
	}

	return next, nil
}

// UpdateWithRetry reads the entity (or its template), folds it and persists
// the result. Version conflicts and transient failures re-read and re-fold
// from scratch with exponential backoff, up to the configured attempts.
// Unprocessable events and other errors are returned without retrying.
func (s *EntityService[T]) UpdateWithRetry(ctx context.Context, id string, fold FoldFunc[T]) (Result[T], error) {
	var result Result[T]

	operation := func() error {
		result.Attempts++

		current, _, err := s.GetOrTemplate(ctx, id)
		if err != nil {
			return classify(err)
		}

		next, err := fold(ctx, current)
		if err != nil {
			return classify(err)
		}

		unchanged, err := s.same(current, next)
		if err != nil {
			return backoff.Permanent(err)
		}
		if unchanged {
			result.Entity = current
			result.Changed = false
			return nil
		}

		saved, err := s.Update(ctx, next)
		if err != nil {
			return classify(err)
		}

		result.Entity = saved
		result.Changed = true
		return nil
	}

	onRetry := func(err error, wait time.Duration) {
		if errors.Is(err, ErrConflict) {
			ConflictRetriedInc(string(s.family))
		}
		s.log.Debugf("retrying update of %s %s in %s: %v", s.family, id, wait, err)
	}

	err := backoff.RetryNotify(operation, s.newBackOff(ctx), onRetry)

	UpdateAttemptsLog(string(s.family), result.Attempts)

	switch {
	case err != nil:
		UpdateOutcomeInc(string(s.family), "error")
		return result, fmt.Errorf("failed to update %s %s after %d attempts: %w", s.family, id, result.Attempts, err)
	case result.Changed:
		UpdateOutcomeInc(string(s.family), "updated")
	default:
		UpdateOutcomeInc(string(s.family), "unchanged")
		s.log.Debugf("%s %s unchanged, skipping write", s.family, id)
	}

	return result, nil
}

func (s *EntityService[T]) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.retry.InitialBackoff.Duration
	exp.MaxInterval = s.retry.MaxBackoff.Duration
	exp.Multiplier = s.retry.BackoffMultiplier
	exp.MaxElapsedTime = 0
	exp.Reset()

	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(s.retry.MaxAttempts-1)), ctx)
}

// same reports whether a and b are equal apart from their version.
func (s *EntityService[T]) same(a, b T) (bool, error) {
	ea, err := encodeUnversioned(a)
	if err != nil {
		return false, fmt.Errorf("failed to encode %s %s: %w", s.family, a.Meta().ID, err)
	}
	eb, err := encodeUnversioned(b)
	if err != nil {
		return false, fmt.Errorf("failed to encode %s %s: %w", s.family, b.Meta().ID, err)
	}
	return bytes.Equal(ea, eb), nil
}

func (s *EntityService[T]) decode(rec *store.Record) (T, error) {
	var entity T
	if err := json.Unmarshal(rec.Document, &entity); err != nil {
		return entity, fmt.Errorf("failed to decode %s %s: %w", s.family, rec.ID, err)
	}

	// the column is authoritative
	meta := entity.Meta()
	meta.Version = rec.Version

	return entity.WithMeta(meta), nil
}

func encodeUnversioned[T model.Entity[T]](entity T) ([]byte, error) {
	meta := entity.Meta()
	meta.Version = 0
	return json.Marshal(entity.WithMeta(meta))
}

// classify marks errors that re-reading cannot fix as permanent.
func classify(err error) error {
	if reducer.IsUnprocessable(err) {
		return backoff.Permanent(err)
	}
	if errors.Is(err, ErrConflict) || common.IsTransient(err) {
		return err
	}
	return backoff.Permanent(err)
}
