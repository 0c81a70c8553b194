package autoreduce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goran-ethernal/ChainReducer/internal/common"
	"github.com/goran-ethernal/ChainReducer/internal/logger"
	"github.com/goran-ethernal/ChainReducer/pkg/config"
	"github.com/goran-ethernal/ChainReducer/pkg/model"
)

// ReduceFunc runs the full reduce path of one entity.
type ReduceFunc func(ctx context.Context, family model.Family, id string) error

// SweepStats summarizes one sweep.
type SweepStats struct {
	Claimed int
	Reduced int
	Failed  int
}

// Sweeper periodically drains the marker store through ReduceFunc.
type Sweeper struct {
	store  *Store
	reduce ReduceFunc
	config config.AutoReduceConfig
	log    *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSweeper creates a new Sweeper.
func NewSweeper(store *Store, reduce ReduceFunc, cfg *config.AutoReduceConfig, log *logger.Logger) *Sweeper {
	c := config.AutoReduceConfig{}
	if cfg != nil {
		c = *cfg
	}
	c.ApplyDefaults()

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Sweeper{
		store:  store,
		reduce: reduce,
		config: c,
		log:    log.WithComponent(common.ComponentAutoReduce),
	}
}

// Start begins sweeping in the background if enabled.
func (s *Sweeper) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.log.Info("Auto-reduce sweeper is disabled")
		return
	}

	var sweepCtx context.Context
	sweepCtx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.worker(sweepCtx)

	s.log.Infof("Auto-reduce sweeper started - interval: %v, batch size: %d",
		s.config.Interval.Duration, s.config.BatchSize)
}

// Stop stops the background sweeper and waits for the running sweep.
func (s *Sweeper) Stop() {
	if s.cancel == nil {
		return
	}

	s.cancel()
	s.wg.Wait()
	s.log.Info("Auto-reduce sweeper stopped")
}

func (s *Sweeper) worker(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			stats, err := s.RunOnce(ctx)
			if err != nil {
				s.log.Warnf("Auto-reduce sweep failed: %v", err)
				continue
			}
			if stats.Claimed > 0 {
				s.log.Infof("Auto-reduce sweep: %d claimed, %d reduced, %d failed",
					stats.Claimed, stats.Reduced, stats.Failed)
			}
		}
	}
}

// RunOnce claims one batch of markers and reduces each of them. Reduced
// entities are unmarked; failed ones keep their marker with one more attempt.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	markers, err := s.store.Claim(ctx, s.config.BatchSize, s.config.MaxAttempts)
	if err != nil {
		return stats, err
	}
	stats.Claimed = len(markers)

	for _, m := range markers {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		if err := s.reduce(ctx, m.Family, m.EntityID); err != nil {
			stats.Failed++
			SweptInc(false)
			if ferr := s.store.Fail(ctx, m, err); ferr != nil {
				return stats, ferr
			}
			continue
		}

		stats.Reduced++
		SweptInc(true)
		if err := s.store.Remove(ctx, m); err != nil {
			return stats, err
		}
	}

	count, err := s.store.Count(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to count remaining markers: %w", err)
	}
	PendingMarkersLog(count)

	return stats, nil
}
