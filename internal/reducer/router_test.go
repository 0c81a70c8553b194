package reducer

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"math/rand/v2"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ChainReducer/internal/compaction"
	"github.com/goran-ethernal/ChainReducer/pkg/model"
	"github.com/stretchr/testify/require"
)

var (
	collection = common.HexToAddress("0xC011EC7100000000000000000000000000000001")
	owner      = common.HexToAddress("0x0000000000000000000000000000000000000A01")
	alice      = common.HexToAddress("0x0000000000000000000000000000000000000A11")
	bob        = common.HexToAddress("0x0000000000000000000000000000000000000B0B")
	zero       = common.Address{}
)

func newEvent(id string, status model.Status, block uint64, logIndex uint, payload model.Payload) model.Event {
	return model.Event{
		EntityID:  id,
		Key:       model.Key{BlockNumber: block, LogIndex: logIndex},
		TxHash:    common.BigToHash(new(big.Int).SetUint64(block*1000 + uint64(logIndex))),
		Address:   collection,
		Timestamp: block * 100,
		Status:    status,
		Payload:   payload,
	}
}

func amount(v uint64) model.Amount { return model.NewAmount(v) }

func newOwnership(t *testing.T) model.Ownership {
	t.Helper()
	o, err := model.NewOwnership(model.OwnershipID(collection, amount(1), owner))
	require.NoError(t, err)
	return o
}

func newItem(t *testing.T) model.Item {
	t.Helper()
	i, err := model.NewItem(model.ItemID(collection, amount(1)))
	require.NoError(t, err)
	return i
}

func newToken(t *testing.T) model.Token {
	t.Helper()
	tok, err := model.NewToken(model.TokenID(collection))
	require.NoError(t, err)
	return tok
}

type creatorResolverFunc func(ctx context.Context, token common.Address) (common.Address, error)

func (f creatorResolverFunc) CollectionCreator(ctx context.Context, token common.Address) (common.Address, error) {
	return f(ctx, token)
}

type standardResolverFunc func(ctx context.Context, contract common.Address) (model.TokenStandard, error)

func (f standardResolverFunc) Standard(ctx context.Context, contract common.Address) (model.TokenStandard, error) {
	return f(ctx, contract)
}

func TestOwnership_PendingLifecycle(t *testing.T) {
	ctx := context.Background()
	router := NewRouter(OwnershipChains(), compaction.Compactor{}, nil)
	o := newOwnership(t)

	steps := []struct {
		name     string
		event    model.Event
		expected uint64
	}{
		{"confirmed mint", newEvent(o.ID, model.StatusConfirmed, 1, 0, model.TransferTo{From: zero, Value: amount(10)}), 10},
		{"pending transfer in", newEvent(o.ID, model.StatusPending, 2, 0, model.TransferTo{From: alice, Value: amount(3)}), 13},
		{"same transfer inactive", newEvent(o.ID, model.StatusInactive, 2, 0, model.TransferTo{From: alice, Value: amount(3)}), 10},
		{"confirmed transfer out", newEvent(o.ID, model.StatusConfirmed, 3, 0, model.TransferFrom{To: bob, Value: amount(4)}), 6},
	}

	for _, step := range steps {
		var err error
		o, err = router.Reduce(ctx, o, step.event)
		require.NoError(t, err, step.name)
		require.Equal(t, amount(step.expected), o.Value, step.name)
	}

	require.Empty(t, o.PendingEvents)
	require.Len(t, o.RevertableEvents, 2)
	require.Equal(t, uint64(300), o.LastUpdatedAt)
	require.False(t, o.Deleted)
}

func TestOwnership_SameBlockCompaction(t *testing.T) {
	ctx := context.Background()
	router := NewRouter(OwnershipChains(), compaction.Compactor{Threshold: 1}, nil)
	o := newOwnership(t)

	first := newEvent(o.ID, model.StatusConfirmed, 5, 0, model.TransferTo{From: alice, Value: amount(2)})
	second := newEvent(o.ID, model.StatusConfirmed, 5, 1, model.TransferTo{From: alice, Value: amount(8)})

	o, err := router.Fold(ctx, o, []model.Event{first, second})
	require.NoError(t, err)

	require.Equal(t, amount(10), o.Value)
	require.Len(t, o.RevertableEvents, 1)
	require.Equal(t, second.Key, o.RevertableEvents[0].Key)
	require.Equal(t, model.TransferTo{From: alice, Value: amount(10)}, o.RevertableEvents[0].Payload)

	// a reorg adds a new event inside the compacted span
	inside := newEvent(o.ID, model.StatusConfirmed, 5, 0, model.TransferTo{From: alice, Value: amount(4)})
	inside.MinorLogIndex = 1
	o, err = router.Reduce(ctx, o, inside)
	require.NoError(t, err)
	require.Equal(t, amount(14), o.Value)
	require.Len(t, o.RevertableEvents[0].Members, 3)

	// the reorg then drops the first member
	o, err = router.Reduce(ctx, o, first.WithStatus(model.StatusReverted))
	require.NoError(t, err)
	require.Equal(t, amount(12), o.Value)
	require.Len(t, o.RevertableEvents[0].Members, 2)
}

func TestOwnership_Conservation(t *testing.T) {
	ctx := context.Background()
	router := NewRouter(OwnershipChains(), compaction.Compactor{Threshold: 5, ConfirmationBlocks: 2}, nil)
	o := newOwnership(t)
	rnd := rand.New(rand.NewPCG(7, 11))

	var in, out uint64
	senders := []common.Address{zero, alice, bob}
	for block := uint64(1); block <= 40; block++ {
		for logIndex := uint(0); logIndex < 5; logIndex++ {
			var payload model.Payload
			held := in - out
			if held > 0 && rnd.IntN(3) == 0 {
				value := 1 + rnd.Uint64N(held)
				out += value
				payload = model.TransferFrom{To: senders[1+rnd.IntN(2)], Value: amount(value)}
			} else {
				value := 1 + rnd.Uint64N(10)
				in += value
				payload = model.TransferTo{From: senders[rnd.IntN(3)], Value: amount(value)}
			}

			var err error
			o, err = router.Reduce(ctx, o, newEvent(o.ID, model.StatusConfirmed, block, logIndex, payload))
			require.NoError(t, err)
		}
	}

	require.Equal(t, amount(in-out), o.Value)
	require.LessOrEqual(t, len(o.RevertableEvents), 16)
}

func TestOwnership_RevertRoundTrip(t *testing.T) {
	ctx := context.Background()
	router := NewRouter(OwnershipChains(), compaction.Compactor{}, nil)

	base, err := router.Fold(ctx, newOwnership(t), []model.Event{
		newEvent("", model.StatusConfirmed, 1, 0, model.TransferTo{From: zero, Value: amount(5)}),
		newEvent("", model.StatusConfirmed, 2, 0, model.TransferTo{From: alice, Value: amount(7)}),
	})
	require.NoError(t, err)

	payloads := []model.Payload{
		model.TransferTo{From: bob, Value: amount(3)},
		model.TransferTo{From: zero, Value: amount(3)},
		model.TransferFrom{To: bob, Value: amount(12)},
	}

	for _, payload := range payloads {
		t.Run(string(payload.Kind()), func(t *testing.T) {
			event := newEvent("", model.StatusConfirmed, 3, 0, payload)

			applied, err := router.Reduce(ctx, base, event)
			require.NoError(t, err)
			require.NotEqual(t, base, applied)

			restored, err := router.Reduce(ctx, applied, event.WithStatus(model.StatusReverted))
			require.NoError(t, err)
			require.Equal(t, base, restored)
		})
	}
}

func TestOwnership_SelfTransfer(t *testing.T) {
	ctx := context.Background()
	router := NewRouter(OwnershipChains(), compaction.Compactor{}, nil)
	o := newOwnership(t)

	o, err := router.Fold(ctx, o, []model.Event{
		newEvent(o.ID, model.StatusConfirmed, 1, 0, model.TransferTo{From: zero, Value: amount(4)}),
		newEvent(o.ID, model.StatusConfirmed, 2, 0, model.TransferTo{From: owner, Value: amount(9)}),
		newEvent(o.ID, model.StatusConfirmed, 2, 1, model.TransferFrom{To: owner, Value: amount(9)}),
	})
	require.NoError(t, err)
	require.Equal(t, amount(4), o.Value)
}

func TestTemplateDeterminism(t *testing.T) {
	ctx := context.Background()

	item := newItem(t)
	reducedItem, err := NewRouter(ItemChains(nil), compaction.Compactor{}, nil).Fold(ctx, item, nil)
	require.NoError(t, err)
	require.Equal(t, item, reducedItem)

	o := newOwnership(t)
	reducedOwnership, err := NewRouter(OwnershipChains(), compaction.Compactor{}, nil).Fold(ctx, o, nil)
	require.NoError(t, err)
	require.Equal(t, o, reducedOwnership)
}

func TestOwnership_DuplicatesAndStale(t *testing.T) {
	ctx := context.Background()
	router := NewRouter(OwnershipChains(), compaction.Compactor{}, nil)
	o := newOwnership(t)

	event := newEvent(o.ID, model.StatusConfirmed, 5, 2, model.TransferTo{From: alice, Value: amount(3)})
	stale := newEvent(o.ID, model.StatusConfirmed, 4, 0, model.TransferTo{From: alice, Value: amount(100)})
	pending := newEvent(o.ID, model.StatusPending, 6, 0, model.TransferTo{From: bob, Value: amount(1)})

	o, err := router.Fold(ctx, o, []model.Event{event, event, stale, pending, pending})
	require.NoError(t, err)
	require.Equal(t, amount(4), o.Value)
	require.Len(t, o.RevertableEvents, 1)
	require.Len(t, o.PendingEvents, 1)

	// the pending event is confirmed in a different block
	confirmed := pending.WithStatus(model.StatusConfirmed)
	confirmed.BlockNumber = 7
	o, err = router.Reduce(ctx, o, confirmed)
	require.NoError(t, err)
	require.Equal(t, amount(4), o.Value)
	require.Empty(t, o.PendingEvents)
	require.Len(t, o.RevertableEvents, 2)

	// reverting an unknown key does nothing
	unknown := newEvent(o.ID, model.StatusReverted, 9, 0, model.TransferTo{From: bob, Value: amount(1)})
	reverted, err := router.Reduce(ctx, o, unknown)
	require.NoError(t, err)
	require.Equal(t, o, reverted)

	// dropping a missing pending event does nothing
	dropped, err := router.Reduce(ctx, o, unknown.WithStatus(model.StatusDropped))
	require.NoError(t, err)
	require.Equal(t, o, dropped)
}

func TestUnprocessableEvents(t *testing.T) {
	ctx := context.Background()

	itemRouter := NewRouter(ItemChains(nil), compaction.Compactor{}, nil)
	ownershipRouter := NewRouter(OwnershipChains(), compaction.Compactor{}, nil)
	tokenRouter := NewRouter(TokenChains(nil), compaction.Compactor{}, nil)

	t.Run("reverted lazy mint", func(t *testing.T) {
		_, err := itemRouter.Reduce(ctx, newItem(t),
			newEvent("", model.StatusReverted, 1, 0, model.LazyMint{Value: amount(1)}))
		require.True(t, IsUnprocessable(err))
	})

	t.Run("collection create on ownership", func(t *testing.T) {
		_, err := ownershipRouter.Reduce(ctx, newOwnership(t),
			newEvent("", model.StatusConfirmed, 1, 0, model.CollectionCreate{Owner: owner}))
		require.True(t, IsUnprocessable(err))
	})

	t.Run("pending creators change", func(t *testing.T) {
		_, err := itemRouter.Reduce(ctx, newItem(t),
			newEvent("", model.StatusPending, 1, 0, model.CreatorsChange{Creators: []model.Part{model.NewFullPart(alice)}}))
		require.True(t, IsUnprocessable(err))
	})

	t.Run("reverted collection create", func(t *testing.T) {
		_, err := tokenRouter.Reduce(ctx, newToken(t),
			newEvent("", model.StatusReverted, 1, 0, model.CollectionCreate{Owner: owner}))
		require.True(t, IsUnprocessable(err))
	})

	t.Run("missing payload", func(t *testing.T) {
		_, err := tokenRouter.Reduce(ctx, newToken(t), newEvent("", model.StatusConfirmed, 1, 0, nil))
		var unprocessable *UnprocessableEventError
		require.ErrorAs(t, err, &unprocessable)
		require.Equal(t, model.FamilyToken, unprocessable.Family)
	})
}

func TestItem_RevertCompactedHistory(t *testing.T) {
	ctx := context.Background()
	router := NewRouter(ItemChains(nil), compaction.Compactor{Threshold: 2}, nil)
	item := newItem(t)

	var mints, burns2, burns3 []model.Event
	for i := range uint(101) {
		mints = append(mints, newEvent(item.ID, model.StatusConfirmed, 1, i, model.Mint{Owner: alice, Value: amount(1)}))
	}
	for i := range uint(50) {
		burns2 = append(burns2, newEvent(item.ID, model.StatusConfirmed, 2, i, model.Burn{Owner: alice, Value: amount(1)}))
		burns3 = append(burns3, newEvent(item.ID, model.StatusConfirmed, 3, i, model.Burn{Owner: alice, Value: amount(1)}))
	}

	var err error
	for _, batch := range [][]model.Event{mints, burns2, burns3} {
		item, err = router.Fold(ctx, item, batch)
		require.NoError(t, err)
	}
	require.Equal(t, amount(1), item.Supply())
	require.Len(t, item.RevertableEvents, 3)
	require.Equal(t, uint64(100), item.MintedAt)

	revertAll := func(events []model.Event) {
		for i := len(events) - 1; i >= 0; i-- {
			item, err = router.Reduce(ctx, item, events[i].WithStatus(model.StatusReverted))
			require.NoError(t, err)
		}
	}

	revertAll(burns3)
	require.Equal(t, amount(51), item.Supply())
	require.Equal(t, amount(51), item.Owners[alice])
	require.Len(t, item.RevertableEvents, 2)

	revertAll(burns2)
	require.Equal(t, amount(101), item.Supply())
	require.Len(t, item.RevertableEvents, 1)

	revertAll(mints)
	require.True(t, item.Supply().IsZero())
	require.True(t, item.Deleted)
	require.Empty(t, item.Owners)
	require.Empty(t, item.RevertableEvents)
	require.Zero(t, item.MintedAt)
}

func TestItem_LazySupply(t *testing.T) {
	ctx := context.Background()
	router := NewRouter(ItemChains(nil), compaction.Compactor{}, nil)
	item := newItem(t)

	lazy := newEvent(item.ID, model.StatusConfirmed, 1, 0, model.LazyMint{
		Value:    amount(1),
		Creators: []model.Part{model.NewFullPart(bob)},
	})
	mint := newEvent(item.ID, model.StatusConfirmed, 2, 0, model.Mint{Owner: alice, Value: amount(1)})

	item, err := router.Reduce(ctx, item, lazy)
	require.NoError(t, err)
	require.Equal(t, amount(1), item.Supply())
	require.Equal(t, amount(1), item.LazySupply())
	require.True(t, item.CreatorsFinal)

	item, err = router.Reduce(ctx, item, mint)
	require.NoError(t, err)
	require.Equal(t, amount(1), item.Supply())
	require.True(t, item.LazySupply().IsZero())
	require.Equal(t, []model.Part{model.NewFullPart(bob)}, item.Creators)

	item, err = router.Reduce(ctx, item, mint.WithStatus(model.StatusReverted))
	require.NoError(t, err)
	require.Equal(t, amount(1), item.Supply())
	require.Equal(t, amount(1), item.LazySupply())

	burn := newEvent(item.ID, model.StatusConfirmed, 3, 0, model.LazyBurn{Value: amount(1)})
	item, err = router.Reduce(ctx, item, burn)
	require.NoError(t, err)
	require.True(t, item.Supply().IsZero())
	require.True(t, item.Deleted)
}

func TestItem_Owners(t *testing.T) {
	ctx := context.Background()
	router := NewRouter(ItemChains(nil), compaction.Compactor{}, nil)
	item := newItem(t)

	item, err := router.Fold(ctx, item, []model.Event{
		newEvent(item.ID, model.StatusConfirmed, 1, 0, model.Mint{Owner: alice, Value: amount(5)}),
		newEvent(item.ID, model.StatusConfirmed, 2, 0, model.Transfer{From: alice, To: bob, Value: amount(2)}),
		newEvent(item.ID, model.StatusConfirmed, 2, 1, model.Transfer{From: alice, To: alice, Value: amount(2)}),
		newEvent(item.ID, model.StatusConfirmed, 2, 2, model.Transfer{From: bob, To: alice, Value: amount(0)}),
	})
	require.NoError(t, err)
	require.Equal(t, map[common.Address]model.Amount{alice: amount(3), bob: amount(2)}, item.Owners)

	before := item
	move := newEvent(item.ID, model.StatusConfirmed, 3, 0, model.Transfer{From: alice, To: bob, Value: amount(3)})
	item, err = router.Reduce(ctx, item, move)
	require.NoError(t, err)
	require.Equal(t, map[common.Address]model.Amount{bob: amount(5)}, item.Owners)
	require.Equal(t, amount(5), item.Supply())

	item, err = router.Reduce(ctx, item, move.WithStatus(model.StatusReverted))
	require.NoError(t, err)
	require.Equal(t, before, item)
}

func TestItem_Creators(t *testing.T) {
	ctx := context.Background()
	mint := newEvent("", model.StatusConfirmed, 1, 0, model.Mint{Owner: alice, Value: amount(1)})

	t.Run("collection owner", func(t *testing.T) {
		resolver := creatorResolverFunc(func(_ context.Context, token common.Address) (common.Address, error) {
			require.Equal(t, collection, token)
			return owner, nil
		})

		item, err := NewRouter(ItemChains(resolver), compaction.Compactor{}, nil).Reduce(ctx, newItem(t), mint)
		require.NoError(t, err)
		require.Equal(t, []model.Part{model.NewFullPart(owner)}, item.Creators)
		require.False(t, item.CreatorsUnresolved)
		require.False(t, item.CreatorsFinal)
	})

	t.Run("collection not known yet", func(t *testing.T) {
		resolver := creatorResolverFunc(func(context.Context, common.Address) (common.Address, error) {
			return common.Address{}, ErrUnavailable
		})

		item, err := NewRouter(ItemChains(resolver), compaction.Compactor{}, nil).Reduce(ctx, newItem(t), mint)
		require.NoError(t, err)
		require.Equal(t, []model.Part{model.NewFullPart(alice)}, item.Creators)
		require.True(t, item.CreatorsUnresolved)
	})

	t.Run("lookup failure", func(t *testing.T) {
		resolver := creatorResolverFunc(func(context.Context, common.Address) (common.Address, error) {
			return common.Address{}, errors.New("database is locked")
		})

		_, err := NewRouter(ItemChains(resolver), compaction.Compactor{}, nil).Reduce(ctx, newItem(t), mint)
		require.Error(t, err)
		require.False(t, IsUnprocessable(err))
	})

	t.Run("creators change and revert", func(t *testing.T) {
		router := NewRouter(ItemChains(nil), compaction.Compactor{}, nil)
		first := newEvent("", model.StatusConfirmed, 2, 0, model.CreatorsChange{Creators: []model.Part{model.NewFullPart(bob)}})
		second := newEvent("", model.StatusConfirmed, 3, 0, model.CreatorsChange{Creators: []model.Part{
			{Account: bob, Value: 5000},
			{Account: owner, Value: 5000},
		}})

		item, err := router.Fold(ctx, newItem(t), []model.Event{mint, first, second})
		require.NoError(t, err)
		require.Len(t, item.Creators, 2)
		require.True(t, item.CreatorsFinal)

		item, err = router.Reduce(ctx, item, second.WithStatus(model.StatusReverted))
		require.NoError(t, err)
		require.Equal(t, []model.Part{model.NewFullPart(bob)}, item.Creators)
		require.True(t, item.CreatorsFinal)

		item, err = router.Reduce(ctx, item, first.WithStatus(model.StatusReverted))
		require.NoError(t, err)
		require.Equal(t, []model.Part{model.NewFullPart(bob)}, item.Creators)
		require.False(t, item.CreatorsFinal)
	})
}

func TestToken(t *testing.T) {
	ctx := context.Background()
	resolver := standardResolverFunc(func(_ context.Context, contract common.Address) (model.TokenStandard, error) {
		require.Equal(t, collection, contract)
		return model.StandardERC721, nil
	})
	router := NewRouter(TokenChains(resolver), compaction.Compactor{}, nil)

	create := newEvent("", model.StatusConfirmed, 1, 0, model.CollectionCreate{Owner: owner, Name: "Punks", Symbol: "PNK"})

	pending, err := router.Reduce(ctx, newToken(t), create.WithStatus(model.StatusPending))
	require.NoError(t, err)
	require.False(t, pending.Deleted)
	require.False(t, pending.Created)

	dropped, err := router.Reduce(ctx, pending, create.WithStatus(model.StatusDropped))
	require.NoError(t, err)
	require.True(t, dropped.Deleted)

	tok, err := router.Reduce(ctx, newToken(t), create)
	require.NoError(t, err)
	require.True(t, tok.Created)
	require.False(t, tok.Deleted)
	require.Equal(t, model.StandardERC721, tok.Standard)
	require.Equal(t, "Punks", tok.Name)
	require.Equal(t, owner, tok.Owner)

	transfer := newEvent("", model.StatusConfirmed, 2, 0, model.OwnershipTransfer{PreviousOwner: owner, NewOwner: alice})
	tok, err = router.Reduce(ctx, tok, transfer)
	require.NoError(t, err)
	require.Equal(t, alice, tok.Owner)
	require.Equal(t, uint64(200), tok.LastUpdatedAt)

	tok, err = router.Reduce(ctx, tok, transfer.WithStatus(model.StatusReverted))
	require.NoError(t, err)
	require.Equal(t, owner, tok.Owner)
	require.Equal(t, uint64(100), tok.LastUpdatedAt)

	failing := NewRouter(TokenChains(standardResolverFunc(func(context.Context, common.Address) (model.TokenStandard, error) {
		return model.StandardUnknown, errors.New("503 service unavailable")
	})), compaction.Compactor{}, nil)
	_, err = failing.Reduce(ctx, newToken(t), create)
	require.Error(t, err)

	unavailable := NewRouter(TokenChains(standardResolverFunc(func(context.Context, common.Address) (model.TokenStandard, error) {
		return model.StandardUnknown, fmt.Errorf("%w: node is syncing", ErrUnavailable)
	})), compaction.Compactor{}, nil)
	tok, err = unavailable.Reduce(ctx, newToken(t), create)
	require.NoError(t, err)
	require.True(t, tok.Created)
	require.Equal(t, model.StandardUnknown, tok.Standard)
	require.True(t, tok.StandardUnresolved)
}
