package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goran-ethernal/ChainReducer/internal/common"
	"github.com/goran-ethernal/ChainReducer/internal/db"
	"github.com/goran-ethernal/ChainReducer/internal/logger"
	"github.com/goran-ethernal/ChainReducer/pkg/model"
	"github.com/goran-ethernal/ChainReducer/pkg/store"
	"github.com/russross/meddler"
)

const entityColumns = "family, id, version, deleted, document, updated_at"

// EntityStore implements store.EntityStore using SQLite as the backend.
type EntityStore struct {
	db          *sql.DB
	maintenance db.Maintenance
	log         *logger.Logger
}

var _ store.EntityStore = (*EntityStore)(nil)

// NewEntityStore creates a new SQLite-backed EntityStore.
func NewEntityStore(database *sql.DB, maintenance db.Maintenance, log *logger.Logger) *EntityStore {
	if maintenance == nil {
		maintenance = &db.NoOpMaintenance{}
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &EntityStore{
		db:          database,
		maintenance: maintenance,
		log:         log.WithComponent(common.ComponentEntityStore),
	}
}

// Get returns the record stored under id, or store.ErrNotFound.
func (s *EntityStore) Get(ctx context.Context, family model.Family, id string) (*store.Record, error) {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()
	defer observe(string(family), "get")()

	const query = `SELECT ` + entityColumns + ` FROM entities WHERE family = ? AND id = ?`

	var row dbEntity
	if err := meddler.QueryRow(s.db, &row, query, string(family), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s %s: %w", family, id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to query %s %s: %w", family, id, err)
	}

	return toRecord(&row), nil
}

// GetByIDs returns the records stored under ids.
func (s *EntityStore) GetByIDs(
	ctx context.Context,
	family model.Family,
	ids []string,
	includeDeleted bool,
) ([]*store.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()
	defer observe(string(family), "get_by_ids")()

	args := make([]any, 0, len(ids)+1)
	args = append(args, string(family))
	for _, id := range ids {
		args = append(args, id)
	}

	query := `SELECT ` + entityColumns + ` FROM entities WHERE family = ? AND id IN (` +
		strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",") + `)`
	if !includeDeleted {
		query += ` AND deleted = 0`
	}

	var rows []*dbEntity
	if err := meddler.QueryAll(s.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query %s entities: %w", family, err)
	}

	return toRecords(rows), nil
}

// List returns up to limit records with an id greater than afterID.
func (s *EntityStore) List(
	ctx context.Context,
	family model.Family,
	afterID string,
	limit int,
	includeDeleted bool,
) ([]*store.Record, error) {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()
	defer observe(string(family), "list")()

	query := `SELECT ` + entityColumns + ` FROM entities WHERE family = ? AND id > ?`
	if !includeDeleted {
		query += ` AND deleted = 0`
	}
	query += ` ORDER BY id ASC LIMIT ?`

	var rows []*dbEntity
	if err := meddler.QueryAll(s.db, &rows, query, string(family), afterID, limit); err != nil {
		return nil, fmt.Errorf("failed to list %s entities: %w", family, err)
	}

	return toRecords(rows), nil
}

// Save persists rec under an optimistic version check.
func (s *EntityStore) Save(ctx context.Context, rec store.Record) (int64, error) {
	unlock := s.maintenance.AcquireOperationLock()
	defer unlock()
	defer observe(string(rec.Family), "save")()

	var (
		res sql.Result
		err error
	)

	if rec.Version == 0 {
		const insertQuery = `
			INSERT INTO entities (` + entityColumns + `)
			VALUES (?, ?, 1, ?, ?, ?)
			ON CONFLICT(family, id) DO NOTHING
		`
		res, err = s.db.ExecContext(ctx, insertQuery,
			string(rec.Family), rec.ID, rec.Deleted, string(rec.Document), rec.UpdatedAt)
	} else {
		const updateQuery = `
			UPDATE entities
			SET version = version + 1, deleted = ?, document = ?, updated_at = ?
			WHERE family = ? AND id = ? AND version = ?
		`
		res, err = s.db.ExecContext(ctx, updateQuery,
			rec.Deleted, string(rec.Document), rec.UpdatedAt, string(rec.Family), rec.ID, rec.Version)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to save %s %s: %w", rec.Family, rec.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if affected == 0 {
		StoreConflictInc(string(rec.Family))
		s.log.Debugf("version conflict saving %s %s at version %d", rec.Family, rec.ID, rec.Version)
		return 0, fmt.Errorf("%s %s at version %d: %w", rec.Family, rec.ID, rec.Version, store.ErrConflict)
	}

	return rec.Version + 1, nil
}

func toRecord(row *dbEntity) *store.Record {
	return &store.Record{
		Family:    model.Family(row.Family),
		ID:        row.ID,
		Version:   row.Version,
		Deleted:   row.Deleted,
		UpdatedAt: row.UpdatedAt,
		Document:  []byte(row.Document),
	}
}

func toRecords(rows []*dbEntity) []*store.Record {
	records := make([]*store.Record, len(rows))
	for i, row := range rows {
		records[i] = toRecord(row)
	}
	return records
}
