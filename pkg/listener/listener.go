// Package listener routes batches of upstream log records to the reducers
// registered for their subscription.
package listener

import (
	"context"

	"github.com/goran-ethernal/ChainReducer/pkg/model"
)

// Listener defines the interface that all log listeners must implement.
// Listeners receive record batches from the upstream scanner.
type Listener interface {
	// Family returns the entity family the listener reduces.
	Family() model.Family

	// HandleBatch processes an ordered batch of records.
	// Implementations must isolate per-entity failures and only return
	// errors that affect the whole batch.
	HandleBatch(ctx context.Context, records []LogRecord) error
}

// Key identifies a subscription: a logical group on a named chain.
type Key struct {
	GroupID    string
	Blockchain string
}

func (k Key) String() string {
	return k.Blockchain + "/" + k.GroupID
}
