// Package autoreduce keeps the durable set of entities that need to be reduced
// again out of band, and the sweeper that drains it.
package autoreduce

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/goran-ethernal/ChainReducer/internal/common"
	"github.com/goran-ethernal/ChainReducer/internal/db"
	"github.com/goran-ethernal/ChainReducer/internal/logger"
	"github.com/goran-ethernal/ChainReducer/pkg/model"
	"github.com/russross/meddler"
)

// Reasons recorded on markers.
const (
	ReasonReduceFailed       = "reduce-failed"
	ReasonCreatorsUnresolved = "creators-unresolved"
	ReasonStandardUnresolved = "standard-unresolved"
)

// Marker flags one entity for re-computation.
type Marker struct {
	Family    model.Family
	EntityID  string
	Reason    string
	Attempts  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type dbMarker struct {
	Family    string `meddler:"family"`
	EntityID  string `meddler:"entity_id"`
	Reason    string `meddler:"reason"`
	Attempts  int    `meddler:"attempts"`
	CreatedAt int64  `meddler:"created_at"`
	UpdatedAt int64  `meddler:"updated_at"`
}

// Store is the SQLite-backed marker set. There is at most one marker per
// (family, id).
type Store struct {
	db          *sql.DB
	maintenance db.Maintenance
	log         *logger.Logger
	now         func() time.Time
}

// NewStore creates a new marker store.
func NewStore(database *sql.DB, maintenance db.Maintenance, log *logger.Logger) *Store {
	if maintenance == nil {
		maintenance = &db.NoOpMaintenance{}
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Store{
		db:          database,
		maintenance: maintenance,
		log:         log.WithComponent(common.ComponentAutoReduce),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Mark flags the entity. Marking an already flagged entity refreshes its
// reason and keeps its attempt count.
func (s *Store) Mark(ctx context.Context, family model.Family, id, reason string) error {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	const query = `
		INSERT INTO auto_reduce_markers (family, entity_id, reason, attempts, created_at, updated_at)
		VALUES (?, ?, ?, 0, ?, ?)
		ON CONFLICT(family, entity_id) DO UPDATE SET
			reason = excluded.reason,
			updated_at = excluded.updated_at
	`

	now := s.now().UnixNano()
	if _, err := s.db.ExecContext(ctx, query, string(family), id, reason, now, now); err != nil {
		return fmt.Errorf("failed to mark %s %s: %w", family, id, err)
	}

	MarkedInc(string(family), reason)
	s.log.Debugf("marked %s %s for auto-reduce: %s", family, id, reason)

	return nil
}

// Claim returns up to limit markers, least recently touched first. Markers
// that failed maxAttempts times are left out; zero means no limit.
func (s *Store) Claim(ctx context.Context, limit, maxAttempts int) ([]Marker, error) {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	const query = `
		SELECT * FROM auto_reduce_markers
		WHERE ? = 0 OR attempts < ?
		ORDER BY updated_at ASC, family ASC, entity_id ASC
		LIMIT ?
	`

	var rows []*dbMarker
	if err := meddler.QueryAll(s.db, &rows, query, maxAttempts, maxAttempts, limit); err != nil {
		return nil, fmt.Errorf("failed to claim markers: %w", err)
	}

	markers := make([]Marker, len(rows))
	for i, row := range rows {
		markers[i] = Marker{
			Family:    model.Family(row.Family),
			EntityID:  row.EntityID,
			Reason:    row.Reason,
			Attempts:  row.Attempts,
			CreatedAt: time.Unix(0, row.CreatedAt).UTC(),
			UpdatedAt: time.Unix(0, row.UpdatedAt).UTC(),
		}
	}

	return markers, nil
}

// Remove deletes a claimed marker. A marker refreshed by Mark after it was
// claimed is kept so the newer request is not lost.
func (s *Store) Remove(ctx context.Context, m Marker) error {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	const query = `
		DELETE FROM auto_reduce_markers
		WHERE family = ? AND entity_id = ? AND updated_at <= ?
	`

	if _, err := s.db.ExecContext(ctx, query, string(m.Family), m.EntityID, m.UpdatedAt.UnixNano()); err != nil {
		return fmt.Errorf("failed to remove marker %s %s: %w", m.Family, m.EntityID, err)
	}

	return nil
}

// Fail records a failed re-reduce of a claimed marker.
func (s *Store) Fail(ctx context.Context, m Marker, cause error) error {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	const query = `
		UPDATE auto_reduce_markers
		SET attempts = attempts + 1, updated_at = ?
		WHERE family = ? AND entity_id = ?
	`

	if _, err := s.db.ExecContext(ctx, query, s.now().UnixNano(), string(m.Family), m.EntityID); err != nil {
		return fmt.Errorf("failed to record failure of %s %s: %w", m.Family, m.EntityID, err)
	}

	s.log.Warnf("auto-reduce of %s %s failed (attempt %d): %v", m.Family, m.EntityID, m.Attempts+1, cause)

	return nil
}

// Count returns the number of pending markers.
func (s *Store) Count(ctx context.Context) (int, error) {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM auto_reduce_markers`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count markers: %w", err)
	}

	return count, nil
}
