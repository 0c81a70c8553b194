// Package notifier delivers snapshots of persisted entities to downstream consumers.
package notifier

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/goran-ethernal/ChainReducer/internal/common"
	"github.com/goran-ethernal/ChainReducer/internal/logger"
	"github.com/goran-ethernal/ChainReducer/pkg/model"
)

// Snapshot is the persisted state of an entity as delivered to consumers.
type Snapshot struct {
	Family   model.Family    `json:"family"`
	ID       string          `json:"id"`
	Version  int64           `json:"version"`
	Deleted  bool            `json:"deleted"`
	Document json.RawMessage `json:"document"`
}

// Notifier is invoked after an entity write became durable.
type Notifier interface {
	Notify(ctx context.Context, family model.Family, snapshot Snapshot) error
}

// LogNotifier writes every snapshot to the log.
type LogNotifier struct {
	log *logger.Logger
}

// NewLogNotifier creates a new LogNotifier.
func NewLogNotifier(log *logger.Logger) *LogNotifier {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &LogNotifier{log: log.WithComponent(common.ComponentNotifier)}
}

func (n *LogNotifier) Notify(_ context.Context, family model.Family, snapshot Snapshot) error {
	n.log.Infow("entity changed",
		"family", family,
		"id", snapshot.ID,
		"version", snapshot.Version,
		"deleted", snapshot.Deleted,
	)
	return nil
}

// Fanout delivers to every notifier and joins their errors.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, family model.Family, snapshot Snapshot) error {
	var errs []error
	for _, n := range f {
		if err := n.Notify(ctx, family, snapshot); err != nil {
			errs = append(errs, err)
		}
	}
	NotificationsInc(string(family), len(errs) == 0)
	return errors.Join(errs...)
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, model.Family, Snapshot) error { return nil }
