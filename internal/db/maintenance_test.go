package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/goran-ethernal/ChainReducer/internal/common"
	"github.com/goran-ethernal/ChainReducer/internal/logger"
	"github.com/goran-ethernal/ChainReducer/pkg/config"
	"github.com/stretchr/testify/require"
)

func newTestCoordinator(t *testing.T, journalMode string, cfg config.MaintenanceConfig) *MaintenanceCoordinator {
	t.Helper()

	database, path := openTestDB(t, journalMode)

	_, err := database.Exec(`CREATE TABLE entities (id INTEGER PRIMARY KEY, body TEXT)`)
	require.NoError(t, err)
	for i := range 500 {
		_, err := database.Exec(`INSERT INTO entities (body) VALUES (?)`, fmt.Sprintf("entity-%04d", i))
		require.NoError(t, err)
	}
	_, err = database.Exec(`DELETE FROM entities WHERE id % 2 = 0`)
	require.NoError(t, err)

	cfg.ApplyDefaults()
	return newMaintenanceCoordinator(path, database, cfg, logger.NewNopLogger())
}

func TestNewMaintenanceCoordinator_NilConfig(t *testing.T) {
	database, path := openTestDB(t, "WAL")

	m := NewMaintenanceCoordinator(path, database, nil, logger.NewNopLogger())
	require.IsType(t, &NoOpMaintenance{}, m)

	unlock := m.AcquireOperationLock()
	unlock()
	require.NoError(t, m.RunMaintenance(context.Background()))
	require.Zero(t, m.Stats().Runs)
}

func TestRunMaintenance(t *testing.T) {
	for _, mode := range []string{"WAL", "DELETE"} {
		t.Run(mode, func(t *testing.T) {
			m := newTestCoordinator(t, mode, config.MaintenanceConfig{})

			before, err := TotalSize(m.path)
			require.NoError(t, err)

			require.NoError(t, m.RunMaintenance(context.Background()))

			after, err := TotalSize(m.path)
			require.NoError(t, err)
			require.LessOrEqual(t, after, before)

			stats := m.Stats()
			require.Equal(t, uint64(1), stats.Runs)
			require.NoError(t, stats.LastErr)
			require.False(t, stats.LastRun.IsZero())

			var rows int
			require.NoError(t, m.db.QueryRow(`SELECT COUNT(*) FROM entities`).Scan(&rows))
			require.Equal(t, 250, rows)
		})
	}
}

func TestRunMaintenance_Cancelled(t *testing.T) {
	m := newTestCoordinator(t, "WAL", config.MaintenanceConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, m.RunMaintenance(ctx), context.Canceled)
	require.Zero(t, m.Stats().Runs)
}

func TestRunMaintenance_WaitsForOperations(t *testing.T) {
	m := newTestCoordinator(t, "WAL", config.MaintenanceConfig{})

	unlock := m.AcquireOperationLock()

	done := make(chan error, 1)
	go func() { done <- m.RunMaintenance(context.Background()) }()

	select {
	case <-done:
		t.Fatal("maintenance ran while an operation held the lock")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("maintenance did not finish after the operation released the lock")
	}
}

func TestStartStop(t *testing.T) {
	m := newTestCoordinator(t, "WAL", config.MaintenanceConfig{
		Enabled:         true,
		VacuumOnStartup: true,
		CheckInterval:   common.NewDuration(20 * time.Millisecond),
	})

	require.NoError(t, m.Start(context.Background()))
	require.Error(t, m.Start(context.Background()))

	require.Eventually(t, func() bool {
		return m.Stats().Runs >= 3
	}, 10*time.Second, 10*time.Millisecond)

	require.NoError(t, m.Stop())
	runs := m.Stats().Runs

	time.Sleep(60 * time.Millisecond)
	require.Equal(t, runs, m.Stats().Runs)
	require.NoError(t, m.Stop())
}

func TestStart_Disabled(t *testing.T) {
	m := newTestCoordinator(t, "WAL", config.MaintenanceConfig{VacuumOnStartup: true})

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.Stop())
	require.Zero(t, m.Stats().Runs)
}
