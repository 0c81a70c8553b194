package model

import (
	"cmp"
	"fmt"
)

// Key orders events within a chain. MinorLogIndex breaks ties between
// events produced by the same log (e.g. ERC-1155 batch transfers).
type Key struct {
	BlockNumber   uint64 `json:"blockNumber"`
	LogIndex      uint   `json:"logIndex"`
	MinorLogIndex uint   `json:"minorLogIndex"`
}

// Compare returns -1, 0 or +1 depending on whether k sorts before, equal to or after o.
func (k Key) Compare(o Key) int {
	if c := cmp.Compare(k.BlockNumber, o.BlockNumber); c != 0 {
		return c
	}
	if c := cmp.Compare(k.LogIndex, o.LogIndex); c != 0 {
		return c
	}
	return cmp.Compare(k.MinorLogIndex, o.MinorLogIndex)
}

func (k Key) String() string {
	return fmt.Sprintf("%d/%d/%d", k.BlockNumber, k.LogIndex, k.MinorLogIndex)
}
