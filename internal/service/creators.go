package service

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ChainReducer/internal/reducer"
	"github.com/goran-ethernal/ChainReducer/pkg/model"
)

// TokenCreators resolves item creators from the stored collections. Items of
// a collection that is not created yet are left for auto-reduce.
type TokenCreators struct {
	tokens *EntityService[model.Token]
}

var _ reducer.CreatorResolver = (*TokenCreators)(nil)

// NewTokenCreators creates a new TokenCreators over the token service.
func NewTokenCreators(tokens *EntityService[model.Token]) *TokenCreators {
	return &TokenCreators{tokens: tokens}
}

// CollectionCreator returns the owner of the collection deployed at token.
func (c *TokenCreators) CollectionCreator(ctx context.Context, token common.Address) (common.Address, error) {
	t, err := c.tokens.Get(ctx, model.TokenID(token))
	if errors.Is(err, ErrNotFound) {
		return common.Address{}, reducer.ErrUnavailable
	}
	if err != nil {
		return common.Address{}, err
	}

	if !t.Created || t.Owner == (common.Address{}) {
		return common.Address{}, reducer.ErrUnavailable
	}

	return t.Owner, nil
}
