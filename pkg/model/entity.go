package model

import "github.com/ethereum/go-ethereum/common"

// Envelope is the bookkeeping shared by every entity family.
type Envelope struct {
	ID      string `json:"id"`
	Version int64  `json:"version"`
	Deleted bool   `json:"deleted"`

	// LastUpdatedAt is the timestamp of the latest confirmed event in history.
	LastUpdatedAt uint64 `json:"lastUpdatedAt"`

	// RevertableEvents are the applied CONFIRMED events, ascending by Key.
	RevertableEvents []Event `json:"revertableEvents"`

	// PendingEvents are the PENDING events whose effect is currently applied.
	PendingEvents []Event `json:"pendingEvents"`
}

// LastEvent returns the latest confirmed event in history.
func (m Envelope) LastEvent() (Event, bool) {
	if len(m.RevertableEvents) == 0 {
		return Event{}, false
	}
	return m.RevertableEvents[len(m.RevertableEvents)-1], true
}

// Balance holds the numeric state of items and ownerships.
// Value and LazyValue are derived from the counters by Settle.
type Balance struct {
	Value     Amount `json:"value"`
	LazyValue Amount `json:"lazyValue"`

	// Real is the on-chain minted-and-transferred amount.
	Real Amount `json:"real"`
	// Minted is the total of on-chain mints, used to realize lazy supply.
	Minted Amount `json:"minted"`
	// LazyMinted is the total announced through lazy mints.
	LazyMinted Amount `json:"lazyMinted"`
}

// Settle recomputes Value and LazyValue so that Value >= LazyValue >= 0.
func (b Balance) Settle() Balance {
	b.LazyValue = b.LazyMinted.Sub(b.Minted)
	b.Value = b.Real.Add(b.LazyValue)
	return b
}

// IsZero reports whether no value, real or lazy, is held.
func (b Balance) IsZero() bool {
	return b.Value.IsZero() && b.LazyValue.IsZero()
}

// Entity is implemented by the value types of every family. Implementations
// return modified copies and never change the receiver.
type Entity[T any] interface {
	Family() Family
	Meta() Envelope
	WithMeta(Envelope) T
	// Empty reports whether the entity holds nothing, ignoring pending events.
	Empty() bool
}

// Balanced is implemented by entities that carry a Balance.
type Balanced[T any] interface {
	GetBalance() Balance
	WithBalance(Balance) T
}

// Item is a single token of a collection. Value is its total supply.
type Item struct {
	Envelope
	Balance

	Token   common.Address `json:"token"`
	TokenID Amount         `json:"tokenId"`

	Owners map[common.Address]Amount `json:"owners"`

	Creators      []Part `json:"creators"`
	CreatorsFinal bool   `json:"creatorsFinal"`
	// CreatorsUnresolved is set while the collection needed to resolve
	// creators is not known yet.
	CreatorsUnresolved bool `json:"creatorsUnresolved"`

	MintedAt uint64 `json:"mintedAt"`
}

// Supply returns the total supply including lazy supply.
func (i Item) Supply() Amount { return i.Value }

// LazySupply returns the part of Supply not minted on chain yet.
func (i Item) LazySupply() Amount { return i.LazyValue }

func (i Item) Family() Family { return FamilyItem }

func (i Item) Meta() Envelope { return i.Envelope }

func (i Item) WithMeta(m Envelope) Item {
	i.Envelope = m
	return i
}

func (i Item) Empty() bool { return i.Balance.IsZero() }

func (i Item) GetBalance() Balance { return i.Balance }

func (i Item) WithBalance(b Balance) Item {
	i.Balance = b
	return i
}

// Ownership is the share of an item held by one owner.
type Ownership struct {
	Envelope
	Balance

	Token   common.Address `json:"token"`
	TokenID Amount         `json:"tokenId"`
	Owner   common.Address `json:"owner"`
}

func (o Ownership) Family() Family { return FamilyOwnership }

func (o Ownership) Meta() Envelope { return o.Envelope }

func (o Ownership) WithMeta(m Envelope) Ownership {
	o.Envelope = m
	return o
}

func (o Ownership) Empty() bool { return o.Balance.IsZero() }

func (o Ownership) GetBalance() Balance { return o.Balance }

func (o Ownership) WithBalance(b Balance) Ownership {
	o.Balance = b
	return o
}

// Token is a collection contract.
type Token struct {
	Envelope

	Address  common.Address `json:"address"`
	Owner    common.Address `json:"owner"`
	Name     string         `json:"name"`
	Symbol   string         `json:"symbol"`
	Standard TokenStandard  `json:"standard"`
	Created  bool           `json:"created"`

	// StandardUnresolved is set while the standard lookup keeps failing.
	StandardUnresolved bool `json:"standardUnresolved"`
}

func (t Token) Family() Family { return FamilyToken }

func (t Token) Meta() Envelope { return t.Envelope }

func (t Token) WithMeta(m Envelope) Token {
	t.Envelope = m
	return t
}

func (t Token) Empty() bool { return !t.Created }
