package model

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
)

// Event is an immutable record of one on-chain effect on one entity.
type Event struct {
	EntityID string `json:"entityId"`
	Key
	TxHash    common.Hash    `json:"transactionHash"`
	Address   common.Address `json:"address"`
	Timestamp uint64         `json:"timestamp"`
	Status    Status         `json:"status"`
	Payload   Payload        `json:"-"`

	// Members holds the origins folded into a compacted event, sorted by key.
	// It is empty for events taken verbatim from the chain.
	Members []Member `json:"members,omitempty"`
}

// Member is the origin of one event folded into a compacted event.
type Member struct {
	Key
	TxHash    common.Hash `json:"transactionHash"`
	Timestamp uint64      `json:"timestamp"`
}

// Origin returns the member describing e itself.
func (e Event) Origin() Member {
	return Member{Key: e.Key, TxHash: e.TxHash, Timestamp: e.Timestamp}
}

// WithOrigin returns a copy of e keyed, hashed and timed after m.
func (e Event) WithOrigin(m Member) Event {
	e.Key = m.Key
	e.TxHash = m.TxHash
	e.Timestamp = m.Timestamp
	return e
}

// WithStatus returns a copy of e carrying status s.
func (e Event) WithStatus(s Status) Event {
	e.Status = s
	return e
}

// WithPayload returns a copy of e carrying p.
func (e Event) WithPayload(p Payload) Event {
	e.Payload = p
	return e
}

// IsCompact reports whether e was produced by compaction.
func (e Event) IsCompact() bool {
	return len(e.Members) > 0
}

// HasMember reports whether k was folded into e, or is e's own key.
func (e Event) HasMember(k Key) bool {
	if e.Key == k {
		return true
	}
	return slices.ContainsFunc(e.Members, func(m Member) bool { return m.Key == k })
}

// SameOrigin reports whether e and o were produced by the same log entry.
// Pending events are matched against their later confirmed or dropped
// counterparts this way because block placement may change in between.
func (e Event) SameOrigin(o Event) bool {
	return e.TxHash == o.TxHash &&
		e.LogIndex == o.LogIndex &&
		e.MinorLogIndex == o.MinorLogIndex &&
		e.EntityID == o.EntityID
}

func (e Event) String() string {
	kind := Kind("")
	if e.Payload != nil {
		kind = e.Payload.Kind()
	}
	return fmt.Sprintf("%s %s %s @%s", e.EntityID, e.Status, kind, e.Key)
}

type eventJSON struct {
	EntityID      string          `json:"entityId"`
	BlockNumber   uint64          `json:"blockNumber"`
	LogIndex      uint            `json:"logIndex"`
	MinorLogIndex uint            `json:"minorLogIndex"`
	TxHash        common.Hash     `json:"transactionHash"`
	Address       common.Address  `json:"address"`
	Timestamp     uint64          `json:"timestamp"`
	Status        Status          `json:"status"`
	Kind          Kind            `json:"kind"`
	Payload       json.RawMessage `json:"payload"`
	Members       []Member        `json:"members,omitempty"`
}

// MarshalJSON encodes the payload next to a kind discriminator.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Payload == nil {
		return nil, fmt.Errorf("event %s has no payload", e.Key)
	}

	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", e.Payload.Kind(), err)
	}

	return json.Marshal(eventJSON{
		EntityID:      e.EntityID,
		BlockNumber:   e.BlockNumber,
		LogIndex:      e.LogIndex,
		MinorLogIndex: e.MinorLogIndex,
		TxHash:        e.TxHash,
		Address:       e.Address,
		Timestamp:     e.Timestamp,
		Status:        e.Status,
		Kind:          e.Payload.Kind(),
		Payload:       raw,
		Members:       e.Members,
	})
}

// UnmarshalJSON decodes an event encoded by MarshalJSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	var raw eventJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	payload, err := DecodePayload(raw.Kind, raw.Payload)
	if err != nil {
		return err
	}

	*e = Event{
		EntityID: raw.EntityID,
		Key: Key{
			BlockNumber:   raw.BlockNumber,
			LogIndex:      raw.LogIndex,
			MinorLogIndex: raw.MinorLogIndex,
		},
		TxHash:    raw.TxHash,
		Address:   raw.Address,
		Timestamp: raw.Timestamp,
		Status:    raw.Status,
		Payload:   payload,
		Members:   raw.Members,
	}

	return nil
}

// DecodePayload decodes the JSON form of a payload of the given kind.
func DecodePayload(kind Kind, data []byte) (Payload, error) {
	switch kind {
	case KindTransferTo:
		return decodeAs[TransferTo](data)
	case KindTransferFrom:
		return decodeAs[TransferFrom](data)
	case KindMint:
		return decodeAs[Mint](data)
	case KindBurn:
		return decodeAs[Burn](data)
	case KindTransfer:
		return decodeAs[Transfer](data)
	case KindLazyMint:
		return decodeAs[LazyMint](data)
	case KindLazyBurn:
		return decodeAs[LazyBurn](data)
	case KindCreators:
		return decodeAs[CreatorsChange](data)
	case KindCollectionCreate:
		return decodeAs[CollectionCreate](data)
	case KindOwnershipTransfer:
		return decodeAs[OwnershipTransfer](data)
	default:
		return nil, fmt.Errorf("unknown payload kind: %q", kind)
	}
}

func decodeAs[P Payload](data []byte) (Payload, error) {
	var p P
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", p.Kind(), err)
	}
	return p, nil
}
