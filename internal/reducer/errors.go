package reducer

import (
	"errors"
	"fmt"

	"github.com/goran-ethernal/ChainReducer/pkg/model"
)

// ErrUnavailable is returned by lookups whose data is not known yet. Reducers
// fall back to a provisional value and flag the entity for a later reduce.
var ErrUnavailable = errors.New("lookup data unavailable")

// UnprocessableEventError is returned for an event that has no defined
// semantics for the entity family and status it was routed to. It is never
// retried.
type UnprocessableEventError struct {
	Family model.Family
	Event  model.Event
	Reason string
}

func (e *UnprocessableEventError) Error() string {
	return fmt.Sprintf("unprocessable %s event %s: %s", e.Family, e.Event, e.Reason)
}

// NewUnprocessableEventError creates a new UnprocessableEventError.
func NewUnprocessableEventError(family model.Family, event model.Event, reason string) error {
	return &UnprocessableEventError{
		Family: family,
		Event:  event,
		Reason: reason,
	}
}

// IsUnprocessable reports whether err carries an UnprocessableEventError.
func IsUnprocessable(err error) bool {
	var unprocessable *UnprocessableEventError
	return errors.As(err, &unprocessable)
}
