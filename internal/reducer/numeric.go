package reducer

import (
	"context"
	"maps"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ChainReducer/pkg/model"
)

type balanced[T any] interface {
	model.Entity[T]
	model.Balanced[T]
}

// ownershipValue applies transfers to an ownership. A transfer from the zero
// address is a mint and also counts toward realized lazy supply.
func ownershipValue(dir direction) Reducer[model.Ownership] {
	return func(_ context.Context, o model.Ownership, event model.Event) (model.Ownership, error) {
		b := o.Balance

		switch p := event.Payload.(type) {
		case model.TransferTo:
			if p.From == o.Owner {
				return o, nil
			}
			b.Real = dir.adjust(b.Real, p.Value)
			if p.From == (common.Address{}) {
				b.Minted = dir.adjust(b.Minted, p.Value)
			}
		case model.TransferFrom:
			if p.To == o.Owner {
				return o, nil
			}
			b.Real = dir.opposite().adjust(b.Real, p.Value)
		default:
			return o, nil
		}

		return o.WithBalance(b.Settle()), nil
	}
}

// itemValue applies mints and burns to an item's supply.
func itemValue(dir direction) Reducer[model.Item] {
	return func(_ context.Context, i model.Item, event model.Event) (model.Item, error) {
		b := i.Balance

		switch p := event.Payload.(type) {
		case model.Mint:
			b.Real = dir.adjust(b.Real, p.Value)
			b.Minted = dir.adjust(b.Minted, p.Value)
		case model.Burn:
			b.Real = dir.opposite().adjust(b.Real, p.Value)
		default:
			return i, nil
		}

		return i.WithBalance(b.Settle()), nil
	}
}

// lazyValue applies lazy mints and burns. Lazy supply is realized by on-chain
// mints through Balance.Settle.
func lazyValue[T balanced[T]](dir direction) Reducer[T] {
	return func(_ context.Context, entity T, event model.Event) (T, error) {
		b := entity.GetBalance()

		switch p := event.Payload.(type) {
		case model.LazyMint:
			b.LazyMinted = dir.adjust(b.LazyMinted, p.Value)
		case model.LazyBurn:
			b.LazyMinted = dir.opposite().adjust(b.LazyMinted, p.Value)
		default:
			return entity, nil
		}

		return entity.WithBalance(b.Settle()), nil
	}
}

// itemOwners keeps the owner map of an item. Owners without balance are removed.
func itemOwners(dir direction) Reducer[model.Item] {
	return func(_ context.Context, i model.Item, event model.Event) (model.Item, error) {
		switch p := event.Payload.(type) {
		case model.Mint:
			i.Owners = credit(i.Owners, p.Owner, p.Value, dir)
		case model.Burn:
			i.Owners = credit(i.Owners, p.Owner, p.Value, dir.opposite())
		case model.Transfer:
			if p.From == p.To || p.Value.IsZero() {
				return i, nil
			}
			i.Owners = credit(i.Owners, p.From, p.Value, dir.opposite())
			i.Owners = credit(i.Owners, p.To, p.Value, dir)
		}

		return i, nil
	}
}

func credit(owners map[common.Address]model.Amount, owner common.Address, value model.Amount, dir direction) map[common.Address]model.Amount {
	if value.IsZero() || owner == (common.Address{}) {
		return owners
	}

	owners = maps.Clone(owners)
	if owners == nil {
		owners = make(map[common.Address]model.Amount)
	}

	balance := dir.adjust(owners[owner], value)
	if balance.IsZero() {
		delete(owners, owner)
	} else {
		owners[owner] = balance
	}

	return owners
}
