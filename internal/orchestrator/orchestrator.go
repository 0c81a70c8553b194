// Package orchestrator turns batches of raw log records into persisted
// entity states: convert, group by entity, journal, fold, persist, notify.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/goran-ethernal/ChainReducer/internal/autoreduce"
	"github.com/goran-ethernal/ChainReducer/internal/common"
	"github.com/goran-ethernal/ChainReducer/internal/logger"
	"github.com/goran-ethernal/ChainReducer/internal/reducer"
	"github.com/goran-ethernal/ChainReducer/internal/service"
	"github.com/goran-ethernal/ChainReducer/pkg/listener"
	"github.com/goran-ethernal/ChainReducer/pkg/model"
	"github.com/goran-ethernal/ChainReducer/pkg/store"
	"golang.org/x/sync/errgroup"
)

// ErrNeedsReduce is returned by ReduceID when the reduced entity still depends
// on data that is not available yet.
var ErrNeedsReduce = errors.New("entity still needs to be reduced")

// Marker flags entities for the auto-reduce sweep.
type Marker interface {
	Mark(ctx context.Context, family model.Family, id, reason string) error
}

// IDReducer recomputes single entities of one family.
type IDReducer interface {
	Family() model.Family
	ReduceID(ctx context.Context, id string) error
}

// ReduceFunc routes auto-reduce requests to the reducer of their family.
func ReduceFunc(reducers ...IDReducer) autoreduce.ReduceFunc {
	byFamily := make(map[model.Family]IDReducer, len(reducers))
	for _, r := range reducers {
		byFamily[r.Family()] = r
	}

	return func(ctx context.Context, family model.Family, id string) error {
		r, ok := byFamily[family]
		if !ok {
			return fmt.Errorf("no reducer for family %s", family)
		}
		return r.ReduceID(ctx, id)
	}
}

// BatchStats summarizes one handled batch.
type BatchStats struct {
	BatchID string
	Records int
	Dropped int
	Events  int
	Groups  int
	Updated int
	Failed  int
	Marked  int
}

// Orchestrator reduces the records of one entity family.
type Orchestrator[T model.Entity[T]] struct {
	family  model.Family
	router  *reducer.Router[T]
	service *service.EntityService[T]
	journal store.EventJournal
	marker  Marker
	workers int
	log     *logger.Logger
}

var _ listener.Listener = (*Orchestrator[model.Item])(nil)

// New creates an Orchestrator. workers bounds the entity groups reduced in parallel.
func New[T model.Entity[T]](
	router *reducer.Router[T],
	svc *service.EntityService[T],
	journal store.EventJournal,
	marker Marker,
	workers int,
	log *logger.Logger,
) *Orchestrator[T] {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if workers < 1 {
		workers = 1
	}

	return &Orchestrator[T]{
		family:  svc.Family(),
		router:  router,
		service: svc,
		journal: journal,
		marker:  marker,
		workers: workers,
		log:     log.WithComponent(common.ComponentOrchestrator),
	}
}

// Family returns the entity family the orchestrator reduces.
func (o *Orchestrator[T]) Family() model.Family {
	return o.family
}

// HandleBatch implements listener.Listener.
func (o *Orchestrator[T]) HandleBatch(ctx context.Context, records []listener.LogRecord) error {
	_, err := o.Process(ctx, records)
	return err
}

// Process reduces a batch of records. A failing entity group is logged and
// marked for auto-reduce without affecting the other groups; only failures
// that concern the whole batch are returned.
func (o *Orchestrator[T]) Process(ctx context.Context, records []listener.LogRecord) (BatchStats, error) {
	start := time.Now()
	stats := BatchStats{BatchID: uuid.NewString(), Records: len(records)}
	defer func() { BatchDurationLog(string(o.family), time.Since(start)) }()

	events := o.convert(stats.BatchID, records, &stats)
	if len(events) == 0 {
		return stats, nil
	}
	stats.Events = len(events)

	ids, groups := groupByEntity(events)
	stats.Groups = len(ids)

	if err := o.journal.Append(ctx, o.family, events); err != nil {
		return stats, fmt.Errorf("failed to journal batch %s: %w", stats.BatchID, err)
	}

	var updated, failed, marked atomic.Int64

	var g errgroup.Group
	g.SetLimit(o.workers)

	for _, id := range ids {
		g.Go(func() error {
			res, err := o.reduceGroup(ctx, id, groups[id])
			if err != nil {
				failed.Add(1)
				if o.mark(ctx, id, autoreduce.ReasonReduceFailed) {
					marked.Add(1)
				}
				return nil
			}

			if res.Changed {
				updated.Add(1)
			}
			if reason, ok := needsReduce(res.Entity); ok && o.mark(ctx, id, reason) {
				marked.Add(1)
			}
			return nil
		})
	}

	// groups never fail the batch
	_ = g.Wait()

	stats.Updated = int(updated.Load())
	stats.Failed = int(failed.Load())
	stats.Marked = int(marked.Load())

	o.log.Infof("batch %s: %d records, %d dropped, %d events, %d entities, %d updated, %d failed, %d marked",
		stats.BatchID, stats.Records, stats.Dropped, stats.Events, stats.Groups, stats.Updated, stats.Failed, stats.Marked)

	return stats, ctx.Err()
}

// ReduceID recomputes one entity from its journal, starting from the
// template. It is the full reduce path of the auto-reduce sweep and is a
// no-op for an entity that is already consistent. Journaled events that
// cannot be processed are skipped.
//
// The journal is read inside the fold, after the stored version: a batch
// saved in between fails the write with a conflict and the retry replays it.
func (o *Orchestrator[T]) ReduceID(ctx context.Context, id string) error {
	var journaled int

	fold := func(ctx context.Context, current T) (T, error) {
		events, err := o.journal.Load(ctx, o.family, id)
		if err != nil {
			return current, err
		}
		journaled = len(events)
		if journaled == 0 {
			return current, nil
		}

		entity, err := o.service.Template(id)
		if err != nil {
			return current, err
		}

		entity, err = o.replay(ctx, entity, events)
		if err != nil {
			return current, err
		}

		// written over the stored version
		meta := entity.Meta()
		meta.Version = current.Meta().Version
		return entity.WithMeta(meta), nil
	}

	res, err := o.service.UpdateWithRetry(ctx, id, fold)
	if err != nil {
		return err
	}

	if journaled == 0 {
		o.log.Debugf("nothing journaled for %s %s", o.family, id)
		return nil
	}

	if reason, ok := needsReduce(res.Entity); ok {
		return fmt.Errorf("%s %s (%s): %w", o.family, id, reason, ErrNeedsReduce)
	}

	o.log.Debugf("reduced %s %s from %d journaled events, changed: %t", o.family, id, journaled, res.Changed)

	return nil
}

func (o *Orchestrator[T]) convert(batchID string, records []listener.LogRecord, stats *BatchStats) []model.Event {
	var events []model.Event

	for _, rec := range records {
		converted, err := Convert(o.family, rec)
		switch {
		case errors.Is(err, ErrIrrelevant):
			continue
		case err != nil:
			stats.Dropped++
			RecordDroppedInc(string(o.family))
			o.log.Warnf("batch %s: dropping record %s/%d: %v", batchID, rec.TxHash.Hex(), rec.Index, err)
			continue
		}

		events = append(events, converted...)
	}

	return events
}

func (o *Orchestrator[T]) reduceGroup(ctx context.Context, id string, events []model.Event) (service.Result[T], error) {
	start := time.Now()

	res, err := o.service.UpdateWithRetry(ctx, id, func(ctx context.Context, current T) (T, error) {
		return o.router.Fold(ctx, current, events)
	})
	ReduceDurationLog(string(o.family), time.Since(start))

	if err != nil {
		GroupFailedInc(string(o.family))
		if reducer.IsUnprocessable(err) {
			o.log.Errorf("failed to reduce %s %s: %v", o.family, id, err)
		} else {
			o.log.Warnf("failed to reduce %s %s: %v", o.family, id, err)
		}
		return res, err
	}

	for _, e := range events {
		EventsReducedInc(string(o.family), string(e.Status))
	}

	return res, nil
}

// replay folds events one by one, skipping the ones that cannot be processed.
func (o *Orchestrator[T]) replay(ctx context.Context, entity T, events []model.Event) (T, error) {
	for _, e := range events {
		next, err := o.router.Reduce(ctx, entity, e)
		switch {
		case err == nil:
			entity = next
		case reducer.IsUnprocessable(err):
			o.log.Errorf("skipping journaled event: %v", err)
		default:
			return entity, err
		}
	}

	return entity, nil
}

// mark flags id for auto-reduce and reports whether it succeeded. Marking
// outlives the cancellation of the batch.
func (o *Orchestrator[T]) mark(ctx context.Context, id, reason string) bool {
	if o.marker == nil {
		return false
	}

	if err := o.marker.Mark(context.WithoutCancel(ctx), o.family, id, reason); err != nil {
		o.log.Errorf("failed to mark %s %s for auto-reduce (%s): %v", o.family, id, reason, err)
		return false
	}

	return true
}

// groupByEntity groups events by entity id. Ids are returned in order of
// first appearance and each group keeps the relative order of its events.
func groupByEntity(events []model.Event) ([]string, map[string][]model.Event) {
	var ids []string
	groups := make(map[string][]model.Event)

	for _, e := range events {
		if _, ok := groups[e.EntityID]; !ok {
			ids = append(ids, e.EntityID)
		}
		groups[e.EntityID] = append(groups[e.EntityID], e)
	}

	return ids, groups
}

// needsReduce reports whether entity depends on data that was not available
// when it was reduced.
func needsReduce(entity any) (string, bool) {
	switch e := entity.(type) {
	case model.Item:
		if e.CreatorsUnresolved {
			return autoreduce.ReasonCreatorsUnresolved, true
		}
	case model.Token:
		if e.Created && e.StandardUnresolved {
			return autoreduce.ReasonStandardUnresolved, true
		}
	}

	return "", false
}
