// Package compaction bounds the event history kept on entities by merging
// summable events of the same block and by trimming history that fell out of
// the confirmation window.
package compaction

import (
	"fmt"
	"slices"

	"github.com/goran-ethernal/ChainReducer/pkg/model"
)

// Compactor compacts entity histories once they grow past Threshold entries.
type Compactor struct {
	// Threshold is the history length above which compaction runs.
	// Zero disables compaction.
	Threshold int
	// ConfirmationBlocks is the window of blocks, counted back from the
	// incoming block, whose entries are kept when trimming. Zero disables
	// trimming.
	ConfirmationBlocks uint64
}

// Apply compacts history if it is longer than the threshold. block is the
// block of the event being reduced.
func (c Compactor) Apply(history []model.Event, block uint64) []model.Event {
	if c.Threshold <= 0 || len(history) <= c.Threshold {
		return history
	}

	return Compact(Trim(history, block, c.ConfirmationBlocks))
}

// Compact merges runs of consecutive numeric events that share a block, a
// kind and a merge key. The merged event takes the origin of its latest
// member and records the origins of all members. Compact is idempotent.
func Compact(history []model.Event) []model.Event {
	if len(history) < 2 {
		return history
	}

	out := make([]model.Event, 0, len(history))
	for _, event := range history {
		if n := len(out); n > 0 && Mergeable(out[n-1], event) {
			out[n-1] = merge(out[n-1], event)
			continue
		}
		out = append(out, event)
	}

	return out
}

// Trim drops entries older than window blocks before block, keeping the
// latest entry outside the window.
func Trim(history []model.Event, block, window uint64) []model.Event {
	if window == 0 || len(history) == 0 {
		return history
	}

	first := len(history)
	for i, event := range history {
		if event.BlockNumber+window >= block {
			first = i
			break
		}
	}

	// keep one entry preceding the window
	if first > 0 {
		first--
	}

	return slices.Clone(history[first:])
}

// Mergeable reports whether b can be folded into a.
func Mergeable(a, b model.Event) bool {
	if a.BlockNumber != b.BlockNumber {
		return false
	}

	na, ok := a.Payload.(model.Numeric)
	if !ok {
		return false
	}
	nb, ok := b.Payload.(model.Numeric)
	if !ok {
		return false
	}

	return na.Kind() == nb.Kind() && na.MergeKey() == nb.MergeKey()
}

// Locate returns the index of the history entry holding key, either as its
// own key or as a compacted member.
func Locate(history []model.Event, key model.Key) int {
	return slices.IndexFunc(history, func(e model.Event) bool {
		return e.HasMember(key)
	})
}

// SpanOf returns the index of the compacted entry whose span strictly
// contains event's key and that event could have been merged into.
func SpanOf(history []model.Event, event model.Event) int {
	return slices.IndexFunc(history, func(e model.Event) bool {
		if !e.IsCompact() || e.HasMember(event.Key) || !Mergeable(e, event) {
			return false
		}
		return e.Members[0].Compare(event.Key) < 0 && event.Key.Compare(e.Key) < 0
	})
}

// Absorb adds event to the compacted representative rep.
func Absorb(rep, event model.Event) (model.Event, error) {
	if !Mergeable(rep, event) {
		return model.Event{}, fmt.Errorf("event %s cannot be merged into %s", event, rep)
	}

	amount := rep.Payload.(model.Numeric).Amount().Add(event.Payload.(model.Numeric).Amount())

	members := slices.Clone(rep.Members)
	members = append(members, event.Origin())
	slices.SortFunc(members, compareMembers)

	rep.Payload = rep.Payload.(model.Numeric).WithAmount(amount)
	rep.Members = members

	return rep, nil
}

// Split removes member from the compacted representative rep, which then
// takes the origin of its latest remaining member. It returns false when
// nothing remains of rep.
func Split(rep, member model.Event) (model.Event, bool, error) {
	repAmount, ok := rep.Payload.(model.Numeric)
	if !ok {
		return model.Event{}, false, fmt.Errorf("compacted event %s is not numeric", rep)
	}
	memberAmount, ok := member.Payload.(model.Numeric)
	if !ok || memberAmount.Kind() != repAmount.Kind() {
		return model.Event{}, false, fmt.Errorf("event %s is not a member of %s", member, rep)
	}

	members := slices.DeleteFunc(slices.Clone(rep.Members), func(m model.Member) bool {
		return m.Key == member.Key
	})
	amount := repAmount.Amount().Sub(memberAmount.Amount())

	if len(members) == 0 || amount.IsZero() {
		return model.Event{}, false, nil
	}

	rep.Payload = repAmount.WithAmount(amount)
	rep.Members = members

	return rep.WithOrigin(members[len(members)-1]), true, nil
}

func merge(a, b model.Event) model.Event {
	amount := a.Payload.(model.Numeric).Amount().Add(b.Payload.(model.Numeric).Amount())

	members := membersOf(a)
	for _, m := range membersOf(b) {
		if !a.HasMember(m.Key) {
			members = append(members, m)
		}
	}
	slices.SortFunc(members, compareMembers)

	merged := b
	merged.Payload = b.Payload.(model.Numeric).WithAmount(amount)
	merged.Members = members

	return merged
}

func membersOf(e model.Event) []model.Member {
	if e.IsCompact() {
		return slices.Clone(e.Members)
	}
	return []model.Member{e.Origin()}
}

func compareMembers(a, b model.Member) int {
	return a.Key.Compare(b.Key)
}
