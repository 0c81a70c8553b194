package reducer

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ChainReducer/pkg/model"
)

// StandardResolver detects the token standard implemented by a contract.
type StandardResolver interface {
	Standard(ctx context.Context, contract common.Address) (model.TokenStandard, error)
}

func tokenFields(resolver StandardResolver) Reducer[model.Token] {
	return func(ctx context.Context, t model.Token, event model.Event) (model.Token, error) {
		switch p := event.Payload.(type) {
		case model.CollectionCreate:
			t.Created = true
			t.Owner = p.Owner
			t.Name = p.Name
			t.Symbol = p.Symbol
			t.Standard = p.Standard

			t.StandardUnresolved = false

			if t.Standard == model.StandardUnknown && resolver != nil {
				standard, err := resolver.Standard(ctx, t.Address)
				switch {
				case err == nil:
					t.Standard = standard
				case errors.Is(err, ErrUnavailable):
					// left unknown, picked up again by auto-reduce
					t.StandardUnresolved = true
				default:
					return t, fmt.Errorf("failed to resolve standard of %s: %w", t.ID, err)
				}
			}

		case model.OwnershipTransfer:
			t.Owner = p.NewOwner
		}

		return t, nil
	}
}

func revertedTokenFields(_ context.Context, t model.Token, event model.Event) (model.Token, error) {
	if p, ok := event.Payload.(model.OwnershipTransfer); ok {
		t.Owner = p.PreviousOwner
	}
	return t, nil
}
