package autoreduce

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goran-ethernal/ChainReducer/internal/common"
	"github.com/goran-ethernal/ChainReducer/pkg/config"
	"github.com/goran-ethernal/ChainReducer/pkg/model"
	"github.com/goran-ethernal/ChainReducer/tests/helpers"
	"github.com/stretchr/testify/require"
)

// newTestStore returns a store with a clock advancing one second per reading.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	s := NewStore(helpers.NewTestDB(t, "autoreduce.db"), nil, nil)

	clock := time.Unix(1_700_000_000, 0).UTC()
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	return s
}

func TestStore_MarkIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Mark(ctx, model.FamilyItem, "a", ReasonReduceFailed))
	require.NoError(t, s.Mark(ctx, model.FamilyOwnership, "a", ReasonReduceFailed))
	require.NoError(t, s.Mark(ctx, model.FamilyItem, "a", ReasonCreatorsUnresolved))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	markers, err := s.Claim(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, markers, 2)

	// the refreshed item marker is now the most recent one
	require.Equal(t, model.FamilyOwnership, markers[0].Family)
	require.Equal(t, model.FamilyItem, markers[1].Family)
	require.Equal(t, ReasonCreatorsUnresolved, markers[1].Reason)
	require.True(t, markers[1].UpdatedAt.After(markers[1].CreatedAt))
}

func TestStore_ClaimRespectsLimits(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Mark(ctx, model.FamilyItem, id, ReasonReduceFailed))
	}

	markers, err := s.Claim(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, markers, 2)
	require.Equal(t, "a", markers[0].EntityID)

	require.NoError(t, s.Fail(ctx, markers[0], errors.New("boom")))
	require.NoError(t, s.Fail(ctx, markers[0], errors.New("boom")))

	markers, err = s.Claim(ctx, 10, 2)
	require.NoError(t, err)
	require.Len(t, markers, 2)
	for _, m := range markers {
		require.NotEqual(t, "a", m.EntityID)
	}

	markers, err = s.Claim(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, markers, 3)
	require.Equal(t, "a", markers[2].EntityID)
	require.Equal(t, 2, markers[2].Attempts)
}

func TestStore_RemoveKeepsRefreshedMarker(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Mark(ctx, model.FamilyItem, "a", ReasonCreatorsUnresolved))

	claimed, err := s.Claim(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	// marked again while the claimed marker was being processed
	require.NoError(t, s.Mark(ctx, model.FamilyItem, "a", ReasonCreatorsUnresolved))
	require.NoError(t, s.Remove(ctx, claimed[0]))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	claimed, err = s.Claim(ctx, 10, 0)
	require.NoError(t, err)
	require.NoError(t, s.Remove(ctx, claimed[0]))

	count, err = s.Count(ctx)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestSweeper_RunOnce(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Mark(ctx, model.FamilyItem, "ok", ReasonReduceFailed))
	require.NoError(t, s.Mark(ctx, model.FamilyItem, "broken", ReasonReduceFailed))
	require.NoError(t, s.Mark(ctx, model.FamilyToken, "ok", ReasonStandardUnresolved))

	var reduced []string
	reduce := func(_ context.Context, family model.Family, id string) error {
		reduced = append(reduced, string(family)+"/"+id)
		if id == "broken" {
			return errors.New("still broken")
		}
		return nil
	}

	sweeper := NewSweeper(s, reduce, &config.AutoReduceConfig{BatchSize: 10}, nil)

	stats, err := sweeper.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, SweepStats{Claimed: 3, Reduced: 2, Failed: 1}, stats)
	require.ElementsMatch(t, []string{"item/ok", "item/broken", "token/ok"}, reduced)

	markers, err := s.Claim(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, markers, 1)
	require.Equal(t, "broken", markers[0].EntityID)
	require.Equal(t, 1, markers[0].Attempts)

	// the failed marker is picked up by the next sweep
	stats, err = sweeper.RunOnce(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.Claimed)
}

func TestSweeper_StartStop(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Mark(context.Background(), model.FamilyItem, "a", ReasonReduceFailed))

	done := make(chan struct{})
	reduce := func(context.Context, model.Family, string) error {
		select {
		case <-done:
		default:
			close(done)
		}
		return nil
	}

	sweeper := NewSweeper(s, reduce, &config.AutoReduceConfig{
		Enabled:  true,
		Interval: common.NewDuration(10 * time.Millisecond),
	}, nil)

	sweeper.Start(context.Background())
	defer sweeper.Stop()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("sweeper did not run")
	}
}

func TestSweeper_Disabled(t *testing.T) {
	sweeper := NewSweeper(newTestStore(t), nil, nil, nil)
	sweeper.Start(context.Background())
	sweeper.Stop()
}
