package compaction

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ChainReducer/pkg/model"
	"github.com/stretchr/testify/require"
)

var (
	alice = common.HexToAddress("0xA11CE")
	bob   = common.HexToAddress("0xB0B")
)

func transferTo(block uint64, logIndex uint, from common.Address, value uint64) model.Event {
	return model.Event{
		EntityID:  "ownership",
		Key:       model.Key{BlockNumber: block, LogIndex: logIndex},
		Timestamp: block * 10,
		Status:    model.StatusConfirmed,
		Payload:   model.TransferTo{From: from, Value: model.NewAmount(value)},
	}
}

func lazyMint(block uint64, logIndex uint, value uint64) model.Event {
	return model.Event{
		EntityID: "ownership",
		Key:      model.Key{BlockNumber: block, LogIndex: logIndex},
		Status:   model.StatusConfirmed,
		Payload:  model.LazyMint{Value: model.NewAmount(value)},
	}
}

func TestCompact_SameBlockTransfers(t *testing.T) {
	first := transferTo(7, 1, alice, 2)
	second := transferTo(7, 4, alice, 8)

	compacted := Compactor{Threshold: 1}.Apply([]model.Event{first, second}, 7)

	require.Len(t, compacted, 1)
	rep := compacted[0]
	require.Equal(t, second.Key, rep.Key)
	require.Equal(t, second.Timestamp, rep.Timestamp)
	require.Equal(t, model.TransferTo{From: alice, Value: model.NewAmount(10)}, rep.Payload)
	require.Equal(t, []model.Member{first.Origin(), second.Origin()}, rep.Members)
}

func TestCompact_KeepsUnmergeable(t *testing.T) {
	history := []model.Event{
		transferTo(1, 0, alice, 1),
		transferTo(1, 1, bob, 1),   // other counterparty
		lazyMint(1, 2, 5),          // not numeric
		transferTo(2, 0, bob, 3),   // other block
		transferTo(2, 1, bob, 4),
	}

	compacted := Compact(history)

	require.Len(t, compacted, 4)
	require.Equal(t, model.TransferTo{From: bob, Value: model.NewAmount(7)}, compacted[3].Payload)
	require.False(t, compacted[0].IsCompact())
	require.False(t, compacted[2].IsCompact())
}

func TestCompact_Idempotent(t *testing.T) {
	history := []model.Event{
		transferTo(1, 0, alice, 1),
		transferTo(1, 1, alice, 2),
		transferTo(1, 2, bob, 3),
		lazyMint(2, 0, 1),
		transferTo(3, 0, alice, 4),
		transferTo(3, 1, alice, 5),
		transferTo(3, 2, alice, 6),
	}

	once := Compact(history)
	twice := Compact(once)

	require.Equal(t, once, twice)
	require.Len(t, once, 4)
}

func TestApply_BelowThreshold(t *testing.T) {
	history := []model.Event{transferTo(1, 0, alice, 1), transferTo(1, 1, alice, 1)}

	require.Equal(t, history, Compactor{Threshold: 2}.Apply(history, 1))
	require.Equal(t, history, Compactor{}.Apply(history, 1))
}

func TestTrim(t *testing.T) {
	history := []model.Event{
		transferTo(1, 0, alice, 1),
		transferTo(5, 0, bob, 1),
		transferTo(10, 0, alice, 1),
		transferTo(12, 0, bob, 1),
	}

	tests := []struct {
		name     string
		block    uint64
		window   uint64
		expected []uint64
	}{
		{"disabled", 12, 0, []uint64{1, 5, 10, 12}},
		{"keeps last entry outside window", 13, 3, []uint64{5, 10, 12}},
		{"everything inside", 12, 20, []uint64{1, 5, 10, 12}},
		{"everything outside", 100, 3, []uint64{12}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trimmed := Trim(history, tt.block, tt.window)

			blocks := make([]uint64, 0, len(trimmed))
			for _, e := range trimmed {
				blocks = append(blocks, e.BlockNumber)
			}
			require.Equal(t, tt.expected, blocks)
		})
	}
}

func TestLocateAndSpan(t *testing.T) {
	history := Compact([]model.Event{
		transferTo(3, 0, alice, 1),
		transferTo(4, 1, alice, 2),
		transferTo(4, 5, alice, 3),
	})
	require.Len(t, history, 2)

	require.Equal(t, 0, Locate(history, model.Key{BlockNumber: 3}))
	require.Equal(t, 1, Locate(history, model.Key{BlockNumber: 4, LogIndex: 1}))
	require.Equal(t, 1, Locate(history, model.Key{BlockNumber: 4, LogIndex: 5}))
	require.Equal(t, -1, Locate(history, model.Key{BlockNumber: 4, LogIndex: 3}))

	require.Equal(t, 1, SpanOf(history, transferTo(4, 3, alice, 1)))
	require.Equal(t, -1, SpanOf(history, transferTo(4, 3, bob, 1)))
	require.Equal(t, -1, SpanOf(history, transferTo(4, 6, alice, 1)))
}

func TestAbsorbAndSplit(t *testing.T) {
	rep := Compact([]model.Event{
		transferTo(4, 1, alice, 2),
		transferTo(4, 5, alice, 3),
	})[0]

	absorbed, err := Absorb(rep, transferTo(4, 3, alice, 10))
	require.NoError(t, err)
	require.Equal(t, model.NewAmount(15), absorbed.Payload.(model.Numeric).Amount())
	require.Len(t, absorbed.Members, 3)
	require.Equal(t, rep.Key, absorbed.Key)

	_, err = Absorb(rep, transferTo(4, 3, bob, 1))
	require.Error(t, err)

	// removing the latest member moves the key back
	rest, keep, err := Split(absorbed, transferTo(4, 5, alice, 3))
	require.NoError(t, err)
	require.True(t, keep)
	require.Equal(t, model.Key{BlockNumber: 4, LogIndex: 3}, rest.Key)
	require.Equal(t, model.NewAmount(12), rest.Payload.(model.Numeric).Amount())

	rest, keep, err = Split(rest, transferTo(4, 3, alice, 10))
	require.NoError(t, err)
	require.True(t, keep)

	_, keep, err = Split(rest, transferTo(4, 1, alice, 2))
	require.NoError(t, err)
	require.False(t, keep)

	_, _, err = Split(rep, lazyMint(4, 1, 2))
	require.Error(t, err)
}

func TestSplit_RestoresPreviousOrigin(t *testing.T) {
	older := transferTo(4, 1, alice, 2)
	older.TxHash = common.HexToHash("0x01")
	older.Timestamp = 100

	latest := transferTo(4, 5, alice, 3)
	latest.TxHash = common.HexToHash("0x05")
	latest.Timestamp = 160

	rep := Compact([]model.Event{older, latest})[0]
	require.Equal(t, latest.Origin(), rep.Origin())

	// the latest member is reverted, nothing of it remains on rep
	rest, keep, err := Split(rep, latest)
	require.NoError(t, err)
	require.True(t, keep)
	require.Equal(t, older.Key, rest.Key)
	require.Equal(t, older.TxHash, rest.TxHash)
	require.Equal(t, uint64(100), rest.Timestamp)
	require.Equal(t, []model.Member{older.Origin()}, rest.Members)

	// a member absorbed into the span keeps its own origin
	middle := transferTo(4, 3, alice, 1)
	middle.Timestamp = 130

	absorbed, err := Absorb(rep, middle)
	require.NoError(t, err)
	require.Equal(t, latest.Origin(), absorbed.Origin())

	rest, keep, err = Split(absorbed, latest)
	require.NoError(t, err)
	require.True(t, keep)
	require.Equal(t, middle.Key, rest.Key)
	require.Equal(t, uint64(130), rest.Timestamp)
}
