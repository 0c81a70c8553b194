package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goran-ethernal/ChainReducer/internal/common"
	"github.com/goran-ethernal/ChainReducer/internal/logger"
	"github.com/goran-ethernal/ChainReducer/pkg/config"
)

// Maintenance serializes database housekeeping against regular reads and
// writes. Stores hold the operation lock for every statement they run;
// maintenance takes it exclusively.
type Maintenance interface {
	Start(ctx context.Context) error
	Stop() error
	// AcquireOperationLock blocks while maintenance runs. The returned
	// function releases the lock.
	AcquireOperationLock() func()
	RunMaintenance(ctx context.Context) error
	Stats() MaintenanceStats
}

// MaintenanceStats describes past maintenance runs.
type MaintenanceStats struct {
	Runs    uint64
	LastRun time.Time
	LastErr error
}

// NoOpMaintenance never runs and never blocks.
type NoOpMaintenance struct{}

func (*NoOpMaintenance) Start(context.Context) error          { return nil }
func (*NoOpMaintenance) Stop() error                          { return nil }
func (*NoOpMaintenance) AcquireOperationLock() func()         { return func() {} }
func (*NoOpMaintenance) RunMaintenance(context.Context) error { return nil }
func (*NoOpMaintenance) Stats() MaintenanceStats              { return MaintenanceStats{} }

type maintenanceStep struct {
	name string
	run  func(ctx context.Context) error
}

// MaintenanceCoordinator checkpoints the WAL, refreshes planner statistics
// and vacuums the reducer database, on demand or on an interval.
type MaintenanceCoordinator struct {
	db    *sql.DB
	path  string
	cfg   config.MaintenanceConfig
	log   *logger.Logger
	steps []maintenanceStep

	opLock sync.RWMutex

	cancel context.CancelFunc
	done   chan struct{}

	statsMu sync.Mutex
	stats   MaintenanceStats
}

// NewMaintenanceCoordinator returns a coordinator for the database at path,
// or a NoOpMaintenance when cfg is nil.
func NewMaintenanceCoordinator(
	path string,
	db *sql.DB,
	cfg *config.MaintenanceConfig,
	log *logger.Logger,
) Maintenance {
	if cfg == nil {
		return &NoOpMaintenance{}
	}
	return newMaintenanceCoordinator(path, db, *cfg, log)
}

func newMaintenanceCoordinator(
	path string,
	db *sql.DB,
	cfg config.MaintenanceConfig,
	log *logger.Logger,
) *MaintenanceCoordinator {
	m := &MaintenanceCoordinator{
		db:   db,
		path: path,
		cfg:  cfg,
		log:  log.WithComponent(common.ComponentMaintenance),
	}
	m.steps = []maintenanceStep{
		{name: "wal_checkpoint", run: m.checkpoint},
		{name: "optimize", run: m.optimize},
		{name: "vacuum", run: m.vacuum},
	}
	return m
}

// Start runs maintenance every check interval until Stop is called or ctx ends.
func (m *MaintenanceCoordinator) Start(ctx context.Context) error {
	if !m.cfg.Enabled {
		m.log.Info("Background maintenance is disabled")
		return nil
	}
	if m.cancel != nil {
		return errors.New("maintenance already started")
	}

	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})

	if m.cfg.VacuumOnStartup {
		if err := m.RunMaintenance(ctx); err != nil {
			m.log.Warnf("Startup maintenance failed: %v", err)
		}
	}

	go m.loop(ctx, m.cfg.CheckInterval.Duration)

	m.log.Infof("Background maintenance started (interval %v, checkpoint %s)",
		m.cfg.CheckInterval.Duration, m.cfg.WALCheckpointMode)
	return nil
}

// Stop cancels the background loop and waits for a running pass to finish.
func (m *MaintenanceCoordinator) Stop() error {
	if m.cancel == nil {
		return nil
	}

	m.cancel()
	<-m.done
	m.cancel = nil

	m.log.Info("Background maintenance stopped")
	return nil
}

func (m *MaintenanceCoordinator) loop(ctx context.Context, interval time.Duration) {
	defer close(m.done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.RunMaintenance(ctx); err != nil && ctx.Err() == nil {
				m.log.Warnf("Periodic maintenance failed: %v", err)
			}
		}
	}
}

// RunMaintenance waits for in-flight operations, then runs every step while
// holding the operation lock exclusively. A failed step does not stop the
// ones after it; their errors are joined.
func (m *MaintenanceCoordinator) RunMaintenance(ctx context.Context) error {
	m.opLock.Lock()
	defer m.opLock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	before := m.size()

	var errs []error
	for _, step := range m.steps {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		stepStart := time.Now()
		err := step.run(ctx)
		observeStep(step.name, time.Since(stepStart), err)

		if err != nil {
			m.log.Warnf("Maintenance step %s failed: %v", step.name, err)
			errs = append(errs, fmt.Errorf("%s: %w", step.name, err))
		}
	}

	after := m.size()
	err := errors.Join(errs...)
	observeRun(err, before, after)

	m.statsMu.Lock()
	m.stats.Runs++
	m.stats.LastRun = time.Now().UTC()
	m.stats.LastErr = err
	m.statsMu.Unlock()

	if err != nil {
		return err
	}

	m.log.Infof("Maintenance finished in %v, size %d MB (was %d MB)",
		time.Since(start), common.BytesToMB(uint64(after)), common.BytesToMB(uint64(before)))
	return nil
}

func (m *MaintenanceCoordinator) AcquireOperationLock() func() {
	m.opLock.RLock()
	return m.opLock.RUnlock
}

func (m *MaintenanceCoordinator) Stats() MaintenanceStats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()

	return m.stats
}

func (m *MaintenanceCoordinator) size() int64 {
	size, err := TotalSize(m.path)
	if err != nil {
		m.log.Warnf("Failed to measure database size: %v", err)
	}
	return size
}

// checkpoint moves WAL frames into the main file. Databases outside WAL mode
// have nothing to checkpoint.
func (m *MaintenanceCoordinator) checkpoint(ctx context.Context) error {
	var mode string
	if err := m.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode); err != nil {
		return fmt.Errorf("failed to read journal mode: %w", err)
	}
	if !strings.EqualFold(mode, "wal") {
		m.log.Debugf("Journal mode is %s, skipping WAL checkpoint", mode)
		return nil
	}

	var blocked, frames, checkpointed int
	query := fmt.Sprintf("PRAGMA wal_checkpoint(%s)", m.cfg.WALCheckpointMode)
	if err := m.db.QueryRowContext(ctx, query).Scan(&blocked, &frames, &checkpointed); err != nil {
		return err
	}

	if blocked != 0 {
		m.log.Warnf("WAL checkpoint %s was blocked, %d of %d frames checkpointed",
			m.cfg.WALCheckpointMode, checkpointed, frames)
		return nil
	}

	m.log.Debugf("WAL checkpoint %s done, %d frames", m.cfg.WALCheckpointMode, checkpointed)
	return nil
}

// optimize refreshes the statistics the query planner uses for the entity
// and journal indexes.
func (m *MaintenanceCoordinator) optimize(ctx context.Context) error {
	_, err := m.db.ExecContext(ctx, "PRAGMA optimize")
	return err
}

// vacuum reclaims pages freed by entity rewrites and cleared markers.
func (m *MaintenanceCoordinator) vacuum(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, "VACUUM"); err != nil {
		if strings.Contains(err.Error(), "database is locked") {
			return fmt.Errorf("database is locked, vacuum skipped: %w", err)
		}
		return err
	}
	return nil
}
