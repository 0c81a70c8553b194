package reducer

import (
	"context"

	"github.com/goran-ethernal/ChainReducer/pkg/model"
)

// calculatedFields derives fields from the event history.
func calculatedFields[T model.Entity[T]](_ context.Context, entity T, _ model.Event) (T, error) {
	meta := entity.Meta()

	meta.LastUpdatedAt = 0
	if last, ok := meta.LastEvent(); ok {
		meta.LastUpdatedAt = last.Timestamp
	}

	return entity.WithMeta(meta), nil
}

// softDelete marks entities that hold nothing and have nothing pending.
func softDelete[T model.Entity[T]](_ context.Context, entity T, _ model.Event) (T, error) {
	meta := entity.Meta()
	meta.Deleted = entity.Empty() && len(meta.PendingEvents) == 0
	return entity.WithMeta(meta), nil
}
