package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/goran-ethernal/ChainReducer/internal/common"
	"github.com/goran-ethernal/ChainReducer/internal/db"
	"github.com/goran-ethernal/ChainReducer/internal/logger"
	"github.com/goran-ethernal/ChainReducer/pkg/model"
	"github.com/goran-ethernal/ChainReducer/pkg/store"
	"github.com/russross/meddler"
)

// EventJournal implements store.EventJournal using SQLite as the backend.
type EventJournal struct {
	db          *sql.DB
	maintenance db.Maintenance
	log         *logger.Logger
}

var _ store.EventJournal = (*EventJournal)(nil)

// NewEventJournal creates a new SQLite-backed EventJournal.
func NewEventJournal(database *sql.DB, maintenance db.Maintenance, log *logger.Logger) *EventJournal {
	if maintenance == nil {
		maintenance = &db.NoOpMaintenance{}
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	return &EventJournal{
		db:          database,
		maintenance: maintenance,
		log:         log.WithComponent(common.ComponentEventJournal),
	}
}

// Append records events in a single transaction.
func (j *EventJournal) Append(ctx context.Context, family model.Family, events []model.Event) error {
	if len(events) == 0 {
		return nil
	}

	unlock := j.maintenance.AcquireOperationLock()
	defer unlock()
	defer observe(string(family), "journal_append")()

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			j.log.Errorf("failed to rollback transaction: %v", err)
		}
	}()

	now := time.Now().UTC().Unix()
	for _, event := range events {
		encoded, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to encode event %s: %w", event, err)
		}

		row := &dbJournalEvent{
			Family:        string(family),
			EntityID:      event.EntityID,
			BlockNumber:   event.BlockNumber,
			LogIndex:      event.LogIndex,
			MinorLogIndex: event.MinorLogIndex,
			TxHash:        event.TxHash,
			Address:       event.Address,
			Status:        string(event.Status),
			Event:         string(encoded),
			RecordedAt:    now,
		}

		if err := meddler.Insert(tx, "event_journal", row); err != nil {
			return fmt.Errorf("failed to journal event %s: %w", event, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	JournaledEventsInc(string(family), len(events))
	j.log.Debugf("journaled %d %s events", len(events), family)

	return nil
}

// Load returns the journaled events of the entity in append order.
func (j *EventJournal) Load(ctx context.Context, family model.Family, id string) ([]model.Event, error) {
	unlock := j.maintenance.AcquireOperationLock()
	defer unlock()
	defer observe(string(family), "journal_load")()

	const query = `
		SELECT * FROM event_journal
		WHERE family = ? AND entity_id = ?
		ORDER BY seq ASC
	`

	var rows []*dbJournalEvent
	if err := meddler.QueryAll(j.db, &rows, query, string(family), id); err != nil {
		return nil, fmt.Errorf("failed to load journal of %s %s: %w", family, id, err)
	}

	events := make([]model.Event, 0, len(rows))
	for _, row := range rows {
		var event model.Event
		if err := json.Unmarshal([]byte(row.Event), &event); err != nil {
			return nil, fmt.Errorf("failed to decode journaled event %d: %w", row.Seq, err)
		}
		events = append(events, event)
	}

	return events, nil
}

// EntityIDs returns the distinct entity ids journaled for the family.
func (j *EventJournal) EntityIDs(ctx context.Context, family model.Family) ([]string, error) {
	unlock := j.maintenance.AcquireOperationLock()
	defer unlock()
	defer observe(string(family), "journal_ids")()

	rows, err := j.db.QueryContext(ctx,
		`SELECT DISTINCT entity_id FROM event_journal WHERE family = ? ORDER BY entity_id ASC`, string(family))
	if err != nil {
		return nil, fmt.Errorf("failed to query journaled %s ids: %w", family, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan entity id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
