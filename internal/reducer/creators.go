package reducer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ChainReducer/pkg/model"
)

// CreatorResolver finds the creator of items minted in a collection.
// It returns ErrUnavailable while the collection is not known.
type CreatorResolver interface {
	CollectionCreator(ctx context.Context, token common.Address) (common.Address, error)
}

func itemCreators(resolver CreatorResolver) Reducer[model.Item] {
	return func(ctx context.Context, i model.Item, event model.Event) (model.Item, error) {
		switch p := event.Payload.(type) {
		case model.CreatorsChange:
			return withFinalCreators(i, p.Creators), nil

		case model.LazyMint:
			if len(p.Creators) == 0 || i.CreatorsFinal {
				return i, nil
			}
			return withFinalCreators(i, p.Creators), nil

		case model.Mint:
			if i.MintedAt == 0 {
				i.MintedAt = event.Timestamp
			}
			if i.CreatorsFinal || (len(i.Creators) > 0 && !i.CreatorsUnresolved) {
				return i, nil
			}
			return resolveCreator(ctx, resolver, i, p.Owner)
		}

		return i, nil
	}
}

func resolveCreator(ctx context.Context, resolver CreatorResolver, i model.Item, minter common.Address) (model.Item, error) {
	creator := minter
	unresolved := false

	if resolver != nil {
		owner, err := resolver.CollectionCreator(ctx, i.Token)
		switch {
		case err == nil:
			creator = owner
		case errors.Is(err, ErrUnavailable):
			unresolved = true
		default:
			return i, fmt.Errorf("failed to resolve creator of %s: %w", i.ID, err)
		}
	}

	i.Creators = []model.Part{model.NewFullPart(creator)}
	i.CreatorsUnresolved = unresolved

	return i, nil
}

// revertedItemCreators undoes creator changes by falling back to the latest
// creators change still in history. A reverted first mint clears the mint
// time and any creators derived from it.
func revertedItemCreators(_ context.Context, i model.Item, event model.Event) (model.Item, error) {
	switch event.Payload.(type) {
	case model.CreatorsChange:
		for idx := len(i.RevertableEvents) - 1; idx >= 0; idx-- {
			if change, ok := i.RevertableEvents[idx].Payload.(model.CreatorsChange); ok {
				return withFinalCreators(i, change.Creators), nil
			}
		}
		i.CreatorsFinal = false

	case model.Mint:
		for _, e := range i.RevertableEvents {
			if _, ok := e.Payload.(model.Mint); ok {
				return i, nil
			}
		}
		i.MintedAt = 0
		if !i.CreatorsFinal {
			i.Creators = nil
			i.CreatorsUnresolved = false
		}
	}

	return i, nil
}

func withFinalCreators(i model.Item, creators []model.Part) model.Item {
	i.Creators = append([]model.Part(nil), creators...)
	i.CreatorsFinal = true
	i.CreatorsUnresolved = false
	return i
}
